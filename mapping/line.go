package mapping

import (
	"image"

	"github.com/hpalin2/picarnav/utils"
)

// Line returns the cells on the Bresenham line from a to b, both included.
func Line(a, b image.Point) []image.Point {
	dx := utils.AbsInt(b.X - a.X)
	dy := -utils.AbsInt(b.Y - a.Y)
	sx, sy := 1, 1
	if a.X > b.X {
		sx = -1
	}
	if a.Y > b.Y {
		sy = -1
	}

	cells := make([]image.Point, 0, max(dx, -dy)+1)
	errAcc := dx + dy
	for cur := a; ; {
		cells = append(cells, cur)
		if cur == b {
			return cells
		}
		e2 := 2 * errAcc
		if e2 >= dy {
			errAcc += dy
			cur.X += sx
		}
		if e2 <= dx {
			errAcc += dx
			cur.Y += sy
		}
	}
}
