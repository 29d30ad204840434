// Package spatialmath holds the robot's planar pose and dead-reckoning math.
package spatialmath

import (
	"fmt"
	"image"
	"math"

	"github.com/golang/geo/r2"

	"github.com/hpalin2/picarnav/utils"
)

// Pose is a position in grid cell units and a heading in degrees. Heading 0 faces +x and
// increases counter clockwise.
type Pose struct {
	Point   r2.Point `json:"point"`
	Heading float64  `json:"heading_deg"`
}

// NewPose returns a pose at (x, y) with the heading wrapped into [0, 360).
func NewPose(x, y, headingDeg float64) Pose {
	return Pose{Point: r2.Point{X: x, Y: y}, Heading: utils.ModAngDeg(headingDeg)}
}

// Cell is the grid cell containing the pose.
func (p Pose) Cell() image.Point {
	return image.Pt(int(math.Round(p.Point.X)), int(math.Round(p.Point.Y)))
}

// Project returns the point distance cells away along heading+bearingDeg.
func (p Pose) Project(bearingDeg, distance float64) r2.Point {
	rad := utils.DegToRad(p.Heading + bearingDeg)
	return p.Point.Add(r2.Point{X: math.Cos(rad), Y: math.Sin(rad)}.Mul(distance))
}

// Advance applies a dead-reckoning update: rotate by deltaHeadingDeg first, then translate
// distance along the new heading. A negative distance moves backwards.
func (p Pose) Advance(distance, deltaHeadingDeg float64) Pose {
	next := Pose{Point: p.Point, Heading: utils.ModAngDeg(p.Heading + deltaHeadingDeg)}
	if distance != 0 {
		next.Point = next.Project(0, distance)
	}
	return next
}

// Clamp keeps the pose inside bounds (max exclusive, as with image.Rectangle).
func (p Pose) Clamp(bounds image.Rectangle) Pose {
	p.Point.X = utils.Clamp(p.Point.X, float64(bounds.Min.X), float64(bounds.Max.X-1))
	p.Point.Y = utils.Clamp(p.Point.Y, float64(bounds.Min.Y), float64(bounds.Max.Y-1))
	return p
}

// DistanceTo is the euclidean distance from the pose to a cell centre.
func (p Pose) DistanceTo(cell image.Point) float64 {
	return p.Point.Sub(r2.Point{X: float64(cell.X), Y: float64(cell.Y)}).Norm()
}

// HeadingTo is the heading in degrees from the pose to a cell centre.
func (p Pose) HeadingTo(cell image.Point) float64 {
	d := r2.Point{X: float64(cell.X), Y: float64(cell.Y)}.Sub(p.Point)
	return utils.ModAngDeg(utils.RadToDeg(math.Atan2(d.Y, d.X)))
}

func (p Pose) String() string {
	return fmt.Sprintf("(%.2f, %.2f) @ %.1fdeg", p.Point.X, p.Point.Y, p.Heading)
}
