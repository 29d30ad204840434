// Package simulation implements a simulated car driving around a world of obstacle cells. The
// simulated car provides the base, servo, range sensor and odometer a navigation controller needs.
package simulation

import (
	"bufio"
	"image"
	"io"
	"math"
	"os"
	"sort"

	"github.com/golang/geo/r2"
	"github.com/pkg/errors"

	"github.com/hpalin2/picarnav/utils"
)

// rayStepCells is the raycast resolution. Samples are offset by half a step so they never land on
// a cell boundary.
const rayStepCells = 0.1

// A World is a set of obstacle cells in the same cell coordinates as the occupancy grid. The car
// starts at (0, 0).
type World struct {
	obstacles map[image.Point]struct{}
	goal      image.Point
	hasGoal   bool
}

// NewWorld returns a world containing the given obstacle cells.
func NewWorld(obstacles ...image.Point) *World {
	w := &World{obstacles: map[image.Point]struct{}{}}
	for _, p := range obstacles {
		w.obstacles[p] = struct{}{}
	}
	return w
}

// ParseWorld reads a text map. '#' is an obstacle, 'C' is where the car starts and 'G' is an
// optional goal; '.', '?' and spaces are open. The top line is the largest y. Without a 'C' the
// car starts at the centre of the text.
func ParseWorld(r io.Reader) (*World, error) {
	var lines []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "reading world")
	}
	if len(lines) == 0 {
		return nil, errors.New("world is empty")
	}

	width := 0
	car := image.Pt(-1, -1)
	for row, line := range lines {
		width = max(width, len(line))
		for col, ch := range line {
			if ch != 'C' {
				continue
			}
			if car.X >= 0 {
				return nil, errors.Errorf("second car at line %d column %d", row+1, col+1)
			}
			car = image.Pt(col, row)
		}
	}
	if car.X < 0 {
		car = image.Pt(width/2, len(lines)/2)
	}

	w := NewWorld()
	for row, line := range lines {
		for col, ch := range line {
			cell := image.Pt(col-car.X, car.Y-row)
			switch ch {
			case '#':
				w.obstacles[cell] = struct{}{}
			case 'G':
				w.goal, w.hasGoal = cell, true
			case 'C', '.', '?', ' ':
			default:
				return nil, errors.Errorf("unexpected %q at line %d column %d", ch, row+1, col+1)
			}
		}
	}
	return w, nil
}

// LoadWorld parses the world stored at path.
func LoadWorld(path string) (*World, error) {
	//nolint:gosec
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ParseWorld(f)
}

// Occupied reports whether cell holds an obstacle.
func (w *World) Occupied(cell image.Point) bool {
	_, ok := w.obstacles[cell]
	return ok
}

// Goal returns the goal marked in the world text, if any.
func (w *World) Goal() (image.Point, bool) {
	return w.goal, w.hasGoal
}

// Obstacles lists the obstacle cells ordered by y then x.
func (w *World) Obstacles() []image.Point {
	out := make([]image.Point, 0, len(w.obstacles))
	for p := range w.obstacles {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Y != out[j].Y {
			return out[i].Y < out[j].Y
		}
		return out[i].X < out[j].X
	})
	return out
}

// Raycast walks from along headingDeg and returns the distance in cells to the first obstacle
// within maxCells.
func (w *World) Raycast(from r2.Point, headingDeg, maxCells float64) (float64, bool) {
	rad := utils.DegToRad(headingDeg)
	dir := r2.Point{X: math.Cos(rad), Y: math.Sin(rad)}
	for i := 0; ; i++ {
		t := rayStepCells/2 + float64(i)*rayStepCells
		if t > maxCells {
			return 0, false
		}
		p := from.Add(dir.Mul(t))
		if w.Occupied(image.Pt(int(math.Round(p.X)), int(math.Round(p.Y)))) {
			return t, true
		}
	}
}
