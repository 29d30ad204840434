// Package movementsensor defines the sensors that report how far the robot has moved.
package movementsensor

import (
	"context"
)

// Displacement is motion accumulated since the last query. HeadingDeg is counter clockwise
// positive; DistanceCm is negative when the robot reversed.
type Displacement struct {
	DistanceCm float64
	HeadingDeg float64
}

// Add combines two displacements.
func (d Displacement) Add(other Displacement) Displacement {
	return Displacement{DistanceCm: d.DistanceCm + other.DistanceCm, HeadingDeg: d.HeadingDeg + other.HeadingDeg}
}

// An Odometer reports and resets the displacement since it was last asked.
type Odometer interface {
	Displacement(ctx context.Context) (Displacement, error)
}
