package inject

import (
	"context"

	"github.com/hpalin2/picarnav/components/movementsensor"
)

// Odometer is an injectable odometer.
type Odometer struct {
	movementsensor.Odometer
	DisplacementFunc func(ctx context.Context) (movementsensor.Displacement, error)
}

// NewOdometer returns an Odometer wrapping odo.
func NewOdometer(odo movementsensor.Odometer) *Odometer {
	return &Odometer{Odometer: odo}
}

// Displacement calls the injected Displacement or the real version.
func (o *Odometer) Displacement(ctx context.Context) (movementsensor.Displacement, error) {
	if o.DisplacementFunc == nil {
		return o.Odometer.Displacement(ctx)
	}
	return o.DisplacementFunc(ctx)
}
