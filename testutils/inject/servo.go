package inject

import (
	"context"

	"github.com/hpalin2/picarnav/components/servo"
)

// Servo is an injectable servo.
type Servo struct {
	servo.Servo
	SetAngleFunc func(ctx context.Context, angleDeg float64) error
	AngleFunc    func(ctx context.Context) (float64, error)
}

// NewServo returns a Servo wrapping s.
func NewServo(s servo.Servo) *Servo {
	return &Servo{Servo: s}
}

// SetAngle calls the injected SetAngle or the real version.
func (s *Servo) SetAngle(ctx context.Context, angleDeg float64) error {
	if s.SetAngleFunc == nil {
		return s.Servo.SetAngle(ctx, angleDeg)
	}
	return s.SetAngleFunc(ctx, angleDeg)
}

// Angle calls the injected Angle or the real version.
func (s *Servo) Angle(ctx context.Context) (float64, error) {
	if s.AngleFunc == nil {
		return s.Servo.Angle(ctx)
	}
	return s.AngleFunc(ctx)
}
