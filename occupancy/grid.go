// Package occupancy implements the three-state occupancy grid the mapper writes and the planner
// reads.
package occupancy

import (
	"fmt"
	"image"
	"sync"
)

// State is the knowledge held about one cell.
type State int8

// The set of cell states. The numeric values are the persisted encoding.
const (
	Unknown  = State(-1)
	Free     = State(0)
	Occupied = State(1)
)

func (s State) String() string {
	switch s {
	case Unknown:
		return "unknown"
	case Free:
		return "free"
	case Occupied:
		return "occupied"
	}
	return fmt.Sprintf("State(%d)", int8(s))
}

// A Map is a read-only view of cell states. Cells outside Bounds read as Unknown.
type Map interface {
	Size() int
	Bounds() image.Rectangle
	In(cell image.Point) bool
	At(cell image.Point) State
}

// Counts tallies cells by state.
type Counts struct {
	Unknown  int `json:"unknown"`
	Free     int `json:"free"`
	Occupied int `json:"occupied"`
}

// MoreInformedThan reports whether c knows at least as much as other: no more unknown cells and
// no fewer occupied ones.
func (c Counts) MoreInformedThan(other Counts) bool {
	return c.Unknown <= other.Unknown && c.Occupied >= other.Occupied
}

// Grid is a square grid of side Size whose cell coordinates start at Origin. It is safe for
// concurrent use; writers go through Set or Mutate.
type Grid struct {
	mu     sync.RWMutex
	size   int
	origin image.Point
	cells  []State
}

// NewGrid returns an all-unknown grid of side size centred on cell (0,0).
func NewGrid(size int) *Grid {
	return NewGridWithOrigin(size, image.Pt(-size/2, -size/2))
}

// NewGridWithOrigin returns an all-unknown grid whose lowest cell is origin.
func NewGridWithOrigin(size int, origin image.Point) *Grid {
	g := &Grid{size: size, origin: origin, cells: make([]State, size*size)}
	g.resetInLock()
	return g
}

// Size is the side length in cells.
func (g *Grid) Size() int {
	return g.size
}

// Origin is the lowest cell of the grid.
func (g *Grid) Origin() image.Point {
	return g.origin
}

// Bounds is the rectangle of valid cells, max exclusive.
func (g *Grid) Bounds() image.Rectangle {
	return image.Rectangle{Min: g.origin, Max: g.origin.Add(image.Pt(g.size, g.size))}
}

// In reports whether cell lies on the grid.
func (g *Grid) In(cell image.Point) bool {
	return cell.In(g.Bounds())
}

func (g *Grid) index(cell image.Point) int {
	local := cell.Sub(g.origin)
	return local.Y*g.size + local.X
}

// At returns the state of a cell, Unknown when out of bounds.
func (g *Grid) At(cell image.Point) State {
	if !g.In(cell) {
		return Unknown
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.cells[g.index(cell)]
}

// Set writes a cell and reports whether the cell now holds state. Out-of-bounds writes are
// rejected. An occupied cell stays occupied and known cells never go back to unknown; only Reset
// clears them.
func (g *Grid) Set(cell image.Point, state State) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.setInLock(cell, state)
}

func (g *Grid) setInLock(cell image.Point, state State) bool {
	if !g.In(cell) {
		return false
	}
	idx := g.index(cell)
	current := g.cells[idx]
	switch {
	case current == state:
		return true
	case current == Occupied:
		return false
	case state == Unknown:
		return false
	}
	g.cells[idx] = state
	return true
}

// Reset marks every cell unknown.
func (g *Grid) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.resetInLock()
}

func (g *Grid) resetInLock() {
	for i := range g.cells {
		g.cells[i] = Unknown
	}
}

// Counts tallies the grid.
func (g *Grid) Counts() Counts {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return countCells(g.cells)
}

func countCells(cells []State) Counts {
	var c Counts
	for _, s := range cells {
		switch s {
		case Unknown:
			c.Unknown++
		case Free:
			c.Free++
		case Occupied:
			c.Occupied++
		}
	}
	return c
}

// MutableGrid is the view handed to Mutate callbacks. Its methods do not lock.
type MutableGrid interface {
	Map
	Set(cell image.Point, state State) bool
}

type mutableGrid Grid

func (mg *mutableGrid) Size() int                       { return (*Grid)(mg).Size() }
func (mg *mutableGrid) Bounds() image.Rectangle         { return (*Grid)(mg).Bounds() }
func (mg *mutableGrid) In(cell image.Point) bool        { return (*Grid)(mg).In(cell) }
func (mg *mutableGrid) Set(c image.Point, s State) bool { return (*Grid)(mg).setInLock(c, s) }

func (mg *mutableGrid) At(cell image.Point) State {
	if !mg.In(cell) {
		return Unknown
	}
	return mg.cells[(*Grid)(mg).index(cell)]
}

// Mutate runs mutator with the grid write-locked so a batch of updates is applied atomically.
func (g *Grid) Mutate(mutator func(grid MutableGrid)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	mutator((*mutableGrid)(g))
}

// Snapshot returns an unlocked copy of the grid, used for rendering and persistence.
func (g *Grid) Snapshot() *Inflated {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return &Inflated{size: g.size, origin: g.origin, cells: append([]State(nil), g.cells...)}
}

// Inflate returns a read-only copy in which every cell within radius (chebyshev, in cells) of an
// occupied cell reads occupied. The grid itself is not modified.
func (g *Grid) Inflate(radius int) *Inflated {
	base := g.Snapshot()
	base.radius = radius
	if radius <= 0 {
		return base
	}

	inflated := append([]State(nil), base.cells...)
	for idx, s := range base.cells {
		if s != Occupied {
			continue
		}
		cx, cy := idx%base.size, idx/base.size
		for dy := -radius; dy <= radius; dy++ {
			y := cy + dy
			if y < 0 || y >= base.size {
				continue
			}
			for dx := -radius; dx <= radius; dx++ {
				x := cx + dx
				if x < 0 || x >= base.size {
					continue
				}
				inflated[y*base.size+x] = Occupied
			}
		}
	}
	base.cells = inflated
	return base
}

// Inflated is an immutable copy of a grid, optionally with obstacles grown by Radius.
type Inflated struct {
	size   int
	origin image.Point
	radius int
	cells  []State
}

// Size is the side length in cells.
func (in *Inflated) Size() int {
	return in.size
}

// Radius is the inflation radius the copy was built with.
func (in *Inflated) Radius() int {
	return in.radius
}

// Bounds is the rectangle of valid cells, max exclusive.
func (in *Inflated) Bounds() image.Rectangle {
	return image.Rectangle{Min: in.origin, Max: in.origin.Add(image.Pt(in.size, in.size))}
}

// In reports whether cell lies on the grid.
func (in *Inflated) In(cell image.Point) bool {
	return cell.In(in.Bounds())
}

// At returns the state of a cell, Unknown when out of bounds.
func (in *Inflated) At(cell image.Point) State {
	if !in.In(cell) {
		return Unknown
	}
	local := cell.Sub(in.origin)
	return in.cells[local.Y*in.size+local.X]
}

// Counts tallies the copy.
func (in *Inflated) Counts() Counts {
	return countCells(in.cells)
}
