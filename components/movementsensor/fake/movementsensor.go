// Package fake is a fake odometer for testing
package fake

import (
	"context"
	"sync"

	"github.com/hpalin2/picarnav/components/movementsensor"
)

// Odometer hands back whatever displacement was queued with Push.
type Odometer struct {
	mu      sync.Mutex
	pending movementsensor.Displacement
}

// Push adds to the displacement returned by the next query.
func (o *Odometer) Push(d movementsensor.Displacement) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.pending = o.pending.Add(d)
}

// Displacement returns and clears the queued displacement.
func (o *Odometer) Displacement(ctx context.Context) (movementsensor.Displacement, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	d := o.pending
	o.pending = movementsensor.Displacement{}
	return d, nil
}
