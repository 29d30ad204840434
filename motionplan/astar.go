// Package motionplan finds shortest 4-connected paths over occupancy maps.
package motionplan

import (
	"container/heap"
	"context"
	"image"

	"github.com/pkg/errors"

	"github.com/hpalin2/picarnav/occupancy"
)

// how many expansions happen between context checks.
const ctxCheckInterval = 1024

// neighbour order is part of the tie breaking and must stay fixed.
var moves = [4]image.Point{{1, 0}, {-1, 0}, {0, 1}, {0, -1}}

// Path is a sequence of adjacent cells from the start to the goal, both included.
type Path struct {
	Cells    []image.Point
	Expanded int
}

// Len is the number of moves, zero when start and goal coincide.
func (p *Path) Len() int {
	if p == nil || len(p.Cells) == 0 {
		return 0
	}
	return len(p.Cells) - 1
}

// Start is the first cell.
func (p *Path) Start() image.Point {
	return p.Cells[0]
}

// Goal is the last cell.
func (p *Path) Goal() image.Point {
	return p.Cells[len(p.Cells)-1]
}

type node struct {
	cell image.Point
	g    int
	h    float64
	seq  int
}

func (n *node) f() float64 {
	return float64(n.g) + n.h
}

// frontier orders by f, then h, then insertion order.
type frontier []*node

func (fr frontier) Len() int { return len(fr) }

func (fr frontier) Less(i, j int) bool {
	a, b := fr[i], fr[j]
	if a.f() != b.f() {
		return a.f() < b.f()
	}
	if a.h != b.h {
		return a.h < b.h
	}
	return a.seq < b.seq
}

func (fr frontier) Swap(i, j int) { fr[i], fr[j] = fr[j], fr[i] }

func (fr *frontier) Push(x any) { *fr = append(*fr, x.(*node)) }

func (fr *frontier) Pop() any {
	old := *fr
	n := old[len(old)-1]
	old[len(old)-1] = nil
	*fr = old[:len(old)-1]
	return n
}

// Traversable reports whether a planned path may enter cell.
func Traversable(m occupancy.Map, cell image.Point, opts Options) bool {
	if !m.In(cell) {
		return false
	}
	switch m.At(cell) {
	case occupancy.Free:
		return true
	case occupancy.Unknown:
		return !opts.AvoidUnknown
	default:
		return false
	}
}

// Plan runs A* from start to goal over m. The start cell is always expanded even if it is not
// traversable, so a robot whose pose drifted into an obstacle can still plan its way out.
func Plan(ctx context.Context, m occupancy.Map, start, goal image.Point, opts Options) (*Path, error) {
	if !m.In(start) {
		return nil, errors.Wrapf(ErrOutOfBounds, "start %v", start)
	}
	if !m.In(goal) {
		return nil, errors.Wrapf(ErrOutOfBounds, "goal %v", goal)
	}
	if start == goal {
		return &Path{Cells: []image.Point{start}}, nil
	}
	if !Traversable(m, goal, opts) {
		return nil, errors.Wrapf(ErrUnreachable, "goal %v is %v", goal, m.At(goal))
	}

	bounds := m.Bounds()
	width := bounds.Dx()
	index := func(c image.Point) int {
		local := c.Sub(bounds.Min)
		return local.Y*width + local.X
	}
	total := width * bounds.Dy()
	bestG := make([]int, total)
	for i := range bestG {
		bestG[i] = -1
	}
	parent := make([]int32, total)
	closed := make([]bool, total)

	h := func(c image.Point) float64 {
		return opts.Heuristic.estimate(goal.X-c.X, goal.Y-c.Y)
	}

	seq := 0
	open := &frontier{}
	heap.Push(open, &node{cell: start, h: h(start)})
	bestG[index(start)] = 0
	parent[index(start)] = -1

	limit := opts.expansionLimit(m.Size())
	expanded := 0
	for open.Len() > 0 {
		cur := heap.Pop(open).(*node)
		curIdx := index(cur.cell)
		if closed[curIdx] {
			continue
		}
		closed[curIdx] = true

		if cur.cell == goal {
			return &Path{Cells: tracePath(parent, curIdx, bounds.Min, width), Expanded: expanded}, nil
		}

		expanded++
		if expanded > limit {
			return nil, &expansionLimitError{limit: limit}
		}
		if expanded%ctxCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		for _, mv := range moves {
			next := cur.cell.Add(mv)
			if !Traversable(m, next, opts) {
				continue
			}
			nextIdx := index(next)
			if closed[nextIdx] {
				continue
			}
			g := cur.g + 1
			if old := bestG[nextIdx]; old >= 0 && old <= g {
				continue
			}
			bestG[nextIdx] = g
			parent[nextIdx] = int32(curIdx)
			seq++
			heap.Push(open, &node{cell: next, g: g, h: h(next), seq: seq})
		}
	}
	return nil, errors.Wrapf(ErrUnreachable, "no path from %v to %v after %d expansions", start, goal, expanded)
}

func tracePath(parent []int32, idx int, origin image.Point, width int) []image.Point {
	var cells []image.Point
	for i := int32(idx); i >= 0; i = parent[i] {
		cells = append(cells, origin.Add(image.Pt(int(i)%width, int(i)/width)))
	}
	for l, r := 0, len(cells)-1; l < r; l, r = l+1, r-1 {
		cells[l], cells[r] = cells[r], cells[l]
	}
	return cells
}
