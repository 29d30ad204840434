// Package fake implements a fake servo.
package fake

import (
	"context"
	"sync"

	"github.com/pkg/errors"
)

// Servo is a fake servo that remembers the last angle it was set to.
type Servo struct {
	MinDeg, MaxDeg float64

	mu      sync.Mutex
	angle   float64
	history []float64
}

// NewServo returns a centred fake servo that accepts angles in [-90, 90].
func NewServo() *Servo {
	return &Servo{MinDeg: -90, MaxDeg: 90}
}

// SetAngle records angleDeg, rejecting angles outside the servo's range.
func (s *Servo) SetAngle(ctx context.Context, angleDeg float64) error {
	if angleDeg < s.MinDeg || angleDeg > s.MaxDeg {
		return errors.Errorf("angle %.1f outside servo range [%.1f, %.1f]", angleDeg, s.MinDeg, s.MaxDeg)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.angle = angleDeg
	s.history = append(s.history, angleDeg)
	return nil
}

// Angle returns the current angle.
func (s *Servo) Angle(ctx context.Context) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.angle, nil
}

// History returns every angle set so far.
func (s *Servo) History() []float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]float64(nil), s.history...)
}
