package cli

import (
	"fmt"
	"image"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/samber/lo"
	"github.com/urfave/cli/v2"

	"github.com/hpalin2/picarnav/motionplan"
	"github.com/hpalin2/picarnav/occupancy"
)

// parseCell parses "x,y" into a cell.
func parseCell(text string) (image.Point, error) {
	parts := strings.Split(text, ",")
	if len(parts) != 2 {
		return image.Point{}, errors.Errorf("cell %q must look like X,Y", text)
	}
	x, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return image.Point{}, errors.Wrapf(err, "cell %q", text)
	}
	y, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return image.Point{}, errors.Wrapf(err, "cell %q", text)
	}
	return image.Pt(x, y), nil
}

func formatCell(cell image.Point) string {
	return fmt.Sprintf("%d,%d", cell.X, cell.Y)
}

func (r *runner) renderAction(c *cli.Context) error {
	grid, pose, err := occupancy.LoadFile(c.Path(gridFlagMap))
	if err != nil {
		return err
	}
	overlay := occupancy.Overlay{Pose: pose, Color: c.Bool(gridFlagColor)}
	if path := c.Path(gridFlagPNG); path != "" {
		if err := writePNG(path, grid, overlay, c.Int(gridFlagScale)); err != nil {
			return err
		}
		r.logger.Infow("rendered map", "png", path, "size", grid.Size())
		return nil
	}
	printf(c, "%s\n", occupancy.ASCII(grid, overlay))
	return nil
}

func (r *runner) planAction(c *cli.Context) error {
	grid, pose, err := occupancy.LoadFile(c.Path(gridFlagMap))
	if err != nil {
		return err
	}

	var start image.Point
	switch {
	case c.String(gridFlagStart) != "":
		if start, err = parseCell(c.String(gridFlagStart)); err != nil {
			return err
		}
	case pose != nil:
		start = pose.Cell()
	}
	goal, err := parseCell(c.String(gridFlagGoal))
	if err != nil {
		return err
	}

	navCfg, err := r.cfg.Navigation()
	if err != nil {
		return err
	}
	inflate := c.Int(gridFlagInflate)
	if inflate < 0 {
		inflate = navCfg.InflationCells
	}
	opts := navCfg.Planner
	opts.AvoidUnknown = opts.AvoidUnknown || c.Bool(gridFlagAvoidUnknown)

	inflated := grid.Inflate(inflate)
	path, err := motionplan.Plan(c.Context, inflated, start, goal, opts)
	if err != nil {
		return errors.Wrapf(err, "planning from %s to %s with inflation %d", formatCell(start), formatCell(goal), inflate)
	}
	r.logger.Debugw("planned", "moves", path.Len(), "expanded", path.Expanded)

	printf(c, "%d moves, %d cells expanded\n", path.Len(), path.Expanded)
	printf(c, "%s\n", strings.Join(lo.Map(path.Cells, func(cell image.Point, _ int) string {
		return formatCell(cell)
	}), " "))
	printf(c, "%s\n", occupancy.ASCII(inflated, occupancy.Overlay{Pose: pose, Path: path.Cells, Color: c.Bool(gridFlagColor)}))
	return nil
}
