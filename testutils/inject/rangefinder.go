package inject

import (
	"context"

	"github.com/hpalin2/picarnav/components/rangefinder"
)

// Sensor is an injectable range sensor.
type Sensor struct {
	rangefinder.Sensor
	ReadDistanceFunc func(ctx context.Context) (rangefinder.Reading, error)
}

// NewSensor returns a Sensor wrapping s.
func NewSensor(s rangefinder.Sensor) *Sensor {
	return &Sensor{Sensor: s}
}

// ReadDistance calls the injected ReadDistance or the real version.
func (s *Sensor) ReadDistance(ctx context.Context) (rangefinder.Reading, error) {
	if s.ReadDistanceFunc == nil {
		return s.Sensor.ReadDistance(ctx)
	}
	return s.ReadDistanceFunc(ctx)
}
