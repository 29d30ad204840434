package cli

import (
	"context"
	"fmt"
	"image"
	"math/rand"
	"os"
	"os/signal"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/hpalin2/picarnav/config"
	"github.com/hpalin2/picarnav/logging"
	"github.com/hpalin2/picarnav/occupancy"
	"github.com/hpalin2/picarnav/operation"
	"github.com/hpalin2/picarnav/services/navigation"
	"github.com/hpalin2/picarnav/services/vision"
	fakevision "github.com/hpalin2/picarnav/services/vision/fake"
	"github.com/hpalin2/picarnav/simulation"
	"github.com/hpalin2/picarnav/spatialmath"
)

// polledSource runs the detector whenever the controller looks. Simulations that run faster than
// the wall clock use it in place of a started publisher so every run with a seed is the same.
type polledSource struct {
	ctx context.Context
	pub *vision.Publisher
}

func (s *polledSource) Latest() *vision.Snapshot {
	s.pub.Poll(s.ctx)
	return s.pub.Latest()
}

func (r *runner) navigateAction(c *cli.Context) error {
	logger := r.logger
	world, err := simulation.LoadWorld(c.Path(navigateFlagWorld))
	if err != nil {
		return err
	}
	navCfg, err := r.cfg.Navigation()
	if err != nil {
		return err
	}
	if navCfg.Goal, err = goalFor(c.String(navigateFlagGoal), world, navCfg.Goal); err != nil {
		return err
	}

	ctx := c.Context
	realtime := c.Bool(navigateFlagRealtime)
	var (
		clk   clock.Clock
		pacer operation.Pacer
	)
	if realtime {
		var stop context.CancelFunc
		ctx, stop = signal.NotifyContext(ctx, os.Interrupt)
		defer stop()
		clk = clock.New()
		pacer = operation.NewPacer(clk, navCfg.Tick)
	} else {
		mock := clock.NewMock()
		clk = mock
		pacer = operation.NewSteppedPacer(mock, navCfg.Tick)
	}

	seed := c.Int64(navigateFlagSeed)
	//nolint:gosec
	robot := simulation.NewRobot(world, r.cfg.Robot(), clk, rand.New(rand.NewSource(seed+1)), logger.Sublogger("sim"))
	deps := navigation.Deps{Base: robot, Servo: robot, Sensor: robot, Odometer: robot}

	if r.cfg.Simulation.Detector == config.DetectorRandom {
		//nolint:gosec
		detector := fakevision.NewRandomDetector(rand.New(rand.NewSource(seed + 2)))
		pub := vision.NewPublisher(detector, clk, time.Duration(r.cfg.Vision.Interval), logger.Sublogger("vision"))
		if realtime {
			pub.Start()
			defer pub.Close()
			deps.Vision = pub
		} else {
			deps.Vision = &polledSource{ctx: ctx, pub: pub}
		}
	}

	grid := occupancy.NewGrid(navCfg.GridSize)
	opts := []navigation.Option{
		navigation.WithClock(clk),
		navigation.WithPacer(pacer),
		//nolint:gosec
		navigation.WithRand(rand.New(rand.NewSource(seed))),
		navigation.WithGrid(grid, spatialmath.NewPose(0, 0, 0)),
	}
	if path := r.cfg.Grid.AutosavePath; path != "" {
		opts = append(opts, navigation.WithAutosaver(
			occupancy.NewAutosaver(grid, path, time.Duration(r.cfg.Grid.AutosaveQuiet), logger.Sublogger("autosave"))))
	}

	ctrl, err := navigation.NewController(navCfg, deps, logger.Sublogger("navigation"), opts...)
	if err != nil {
		return err
	}

	var res *navigation.Result
	done := make(chan struct{})
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(done)
		var runErr error
		res, runErr = ctrl.Run(gctx)
		return runErr
	})
	g.Go(func() error {
		reportProgress(gctx, done, ctrl, c.Duration(navigateFlagStatusInterval), logger)
		return nil
	})
	runErr := g.Wait()
	if res == nil {
		return runErr
	}

	pose := res.Pose
	printf(c, "%s\n", summaryTable(res, robot, navCfg.Goal))
	if c.Bool(navigateFlagShowMap) {
		printf(c, "%s\n", occupancy.ASCII(grid, occupancy.Overlay{Pose: &pose, Path: robot.Trail()}))
	}
	if path := c.Path(navigateFlagMapOut); path != "" {
		runErr = multierr.Combine(runErr, grid.SaveFile(path, &pose))
	}
	if path := c.Path(navigateFlagPNG); path != "" {
		runErr = multierr.Combine(runErr, writePNG(path, grid, occupancy.Overlay{Pose: &pose, Path: robot.Trail()}, 8))
	}
	return runErr
}

// goalFor picks the goal from the flag, then the world file, then the configuration.
func goalFor(flag string, world *simulation.World, configured image.Point) (image.Point, error) {
	if flag != "" {
		return parseCell(flag)
	}
	if goal, ok := world.Goal(); ok {
		return goal, nil
	}
	return configured, nil
}

func reportProgress(ctx context.Context, done <-chan struct{}, ctrl *navigation.Controller, interval time.Duration,
	logger logging.Logger,
) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-done:
			return
		case <-ticker.C:
		}
		snap := ctrl.Snapshot()
		logger.Infow("progress",
			"state", snap.State.String(),
			"pose", snap.Pose.String(),
			"remaining", len(snap.Path),
			"known", snap.Counts.Free+snap.Counts.Occupied,
			"cycles", snap.Stats.Cycles)
	}
}

func summaryTable(res *navigation.Result, robot *simulation.Robot, goal image.Point) string {
	t := table.NewWriter()
	t.AppendHeader(table.Row{"Metric", "Value"})
	t.AppendRows([]table.Row{
		{"Session", res.SessionID.String()},
		{"State", res.State.String()},
		{"Goal", formatCell(goal)},
		{"Believed pose", res.Pose.String()},
		{"True pose", robot.Pose().String()},
		{"Elapsed", res.Elapsed.Round(time.Millisecond).String()},
		{"Cycles", res.Stats.Cycles},
		{"Scans", res.Stats.Scans},
		{"Plans", res.Stats.Plans},
		{"Failed plans", res.Stats.FailedPlans},
		{"Cells driven", res.Stats.Cells},
		{"Proximity stops", res.Stats.ProximityStops},
		{"Vision stops", res.Stats.VisionStops},
		{"Collisions", robot.Collisions()},
	})
	return t.Render()
}

func writePNG(path string, m occupancy.Map, overlay occupancy.Overlay, scale int) (err error) {
	//nolint:gosec
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "creating %q", path)
	}
	defer func() {
		err = multierr.Combine(err, f.Close())
	}()
	return occupancy.WritePNG(f, m, overlay, scale)
}

func printf(c *cli.Context, format string, a ...interface{}) {
	//nolint:errcheck
	fmt.Fprintf(c.App.Writer, format, a...)
}
