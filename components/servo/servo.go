// Package servo defines the positional servo that pans the range sensor.
package servo

import (
	"context"
)

// A Servo rotates to an absolute angle in degrees, 0 being straight ahead.
type Servo interface {
	SetAngle(ctx context.Context, angleDeg float64) error
	Angle(ctx context.Context) (float64, error)
}
