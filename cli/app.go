// Package cli contains the picarnav command line application.
package cli

import (
	"io"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/hpalin2/picarnav/config"
	"github.com/hpalin2/picarnav/logging"
)

const (
	// Flags.
	generalFlagConfig = "config"
	generalFlagDebug  = "debug"

	navigateFlagWorld          = "world"
	navigateFlagGoal           = "goal"
	navigateFlagSeed           = "seed"
	navigateFlagMapOut         = "map-out"
	navigateFlagPNG            = "png"
	navigateFlagRealtime       = "realtime"
	navigateFlagStatusInterval = "status-interval"
	navigateFlagShowMap        = "show-map"

	gridFlagMap          = "map"
	gridFlagPNG          = "png"
	gridFlagScale        = "scale"
	gridFlagColor        = "color"
	gridFlagStart        = "start"
	gridFlagGoal         = "goal"
	gridFlagInflate      = "inflate"
	gridFlagAvoidUnknown = "avoid-unknown"
)

// runner carries what the Before hook sets up to the actions.
type runner struct {
	logger logging.Logger
	cfg    *config.Config
}

func (r *runner) before(c *cli.Context) error {
	cfg := config.Default()
	if path := c.Path(generalFlagConfig); path != "" {
		var err error
		if cfg, err = config.Read(path); err != nil {
			return err
		}
	}
	r.cfg = cfg

	logger := logging.NewBlankLogger("picarnav")
	logger.AddAppender(logging.NewWriterAppender(c.App.ErrWriter))
	if _, err := cfg.Log.Apply(logger, c.Bool(generalFlagDebug)); err != nil {
		return err
	}
	r.logger = logger
	return nil
}

func (r *runner) after(c *cli.Context) error {
	if r.logger == nil {
		return nil
	}
	return r.logger.Sync()
}

// NewApp returns the picarnav application writing results to out and logs and errors to errOut.
func NewApp(out, errOut io.Writer) *cli.App {
	r := &runner{}
	return &cli.App{
		Name:            "picarnav",
		Usage:           "map, plan and drive a small wheeled robot to a goal",
		HideHelpCommand: true,
		Writer:          out,
		ErrWriter:       errOut,
		Flags: []cli.Flag{
			&cli.PathFlag{
				Name:    generalFlagConfig,
				Aliases: []string{"c"},
				Usage:   "load configuration from `FILE`",
			},
			&cli.BoolFlag{
				Name:    generalFlagDebug,
				Aliases: []string{"vvv"},
				Usage:   "enable debug logging",
			},
		},
		Before: r.before,
		After:  r.after,
		Commands: []*cli.Command{
			{
				Name:      "navigate",
				Usage:     "drive the simulated robot through a world to a goal",
				UsageText: "picarnav navigate --world FILE [--goal X,Y] [other options]",
				Flags: []cli.Flag{
					&cli.PathFlag{
						Name:     navigateFlagWorld,
						Required: true,
						Usage:    "world `FILE`: '#' obstacles, 'C' the start, 'G' the goal",
					},
					&cli.StringFlag{
						Name:  navigateFlagGoal,
						Usage: "goal cell as `X,Y`; defaults to the world's G or the configured goal",
					},
					&cli.Int64Flag{
						Name:  navigateFlagSeed,
						Value: 1,
						Usage: "seed for recovery turns, sensor noise and the random detector",
					},
					&cli.PathFlag{
						Name:  navigateFlagMapOut,
						Usage: "save the final grid to `FILE`",
					},
					&cli.PathFlag{
						Name:  navigateFlagPNG,
						Usage: "render the final grid to a PNG `FILE`",
					},
					&cli.BoolFlag{
						Name:  navigateFlagRealtime,
						Usage: "run on the wall clock instead of as fast as possible",
					},
					&cli.DurationFlag{
						Name:  navigateFlagStatusInterval,
						Value: time.Second,
						Usage: "how often to log progress",
					},
					&cli.BoolFlag{
						Name:  navigateFlagShowMap,
						Usage: "print the final grid",
					},
				},
				Action: r.navigateAction,
			},
			{
				Name:      "render",
				Usage:     "print or draw a saved grid",
				UsageText: "picarnav render --map FILE [--png FILE] [--color]",
				Flags: []cli.Flag{
					&cli.PathFlag{
						Name:     gridFlagMap,
						Required: true,
						Usage:    "grid `FILE` saved by navigate",
					},
					&cli.PathFlag{
						Name:  gridFlagPNG,
						Usage: "write a PNG to `FILE` instead of printing",
					},
					&cli.IntFlag{
						Name:  gridFlagScale,
						Value: 8,
						Usage: "pixels per cell in the PNG",
					},
					&cli.BoolFlag{
						Name:  gridFlagColor,
						Usage: "colour the printed grid",
					},
				},
				Action: r.renderAction,
			},
			{
				Name:      "plan",
				Usage:     "plan a path on a saved grid",
				UsageText: "picarnav plan --map FILE --goal X,Y [--start X,Y] [other options]",
				Flags: []cli.Flag{
					&cli.PathFlag{
						Name:     gridFlagMap,
						Required: true,
						Usage:    "grid `FILE` saved by navigate",
					},
					&cli.StringFlag{
						Name:  gridFlagStart,
						Usage: "start cell as `X,Y`; defaults to the pose saved with the grid",
					},
					&cli.StringFlag{
						Name:     gridFlagGoal,
						Required: true,
						Usage:    "goal cell as `X,Y`",
					},
					&cli.IntFlag{
						Name:  gridFlagInflate,
						Value: -1,
						Usage: "obstacle inflation in cells; defaults to the configured inflation",
					},
					&cli.BoolFlag{
						Name:  gridFlagAvoidUnknown,
						Usage: "treat unknown cells as blocked",
					},
					&cli.BoolFlag{
						Name:  gridFlagColor,
						Usage: "colour the printed grid",
					},
				},
				Action: r.planAction,
			},
			{
				Name:   "defaults",
				Usage:  "print the effective configuration",
				Action: r.defaultsAction,
			},
		},
	}
}

func (r *runner) defaultsAction(c *cli.Context) error {
	return r.cfg.Write(c.App.Writer)
}
