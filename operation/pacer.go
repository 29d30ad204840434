package operation

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
)

// A Pacer waits out control ticks and other short delays.
type Pacer interface {
	Tick() time.Duration
	// Wait sleeps one tick and returns false if ctx ended first.
	Wait(ctx context.Context) bool
	// Sleep is like Wait for an arbitrary duration.
	Sleep(ctx context.Context, d time.Duration) bool
}

type clockPacer struct {
	clk  clock.Clock
	tick time.Duration
}

// NewPacer returns a Pacer that sleeps tick on clk.
func NewPacer(clk clock.Clock, tick time.Duration) Pacer {
	return &clockPacer{clk: clk, tick: tick}
}

func (p *clockPacer) Tick() time.Duration {
	return p.tick
}

func (p *clockPacer) Wait(ctx context.Context) bool {
	return p.Sleep(ctx, p.tick)
}

func (p *clockPacer) Sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := p.clk.Timer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

type steppedPacer struct {
	mock *clock.Mock
	tick time.Duration
}

// NewSteppedPacer returns a Pacer that advances mock by tick instead of sleeping. Simulations and
// tests use it to run control loops faster than real time.
func NewSteppedPacer(mock *clock.Mock, tick time.Duration) Pacer {
	return &steppedPacer{mock: mock, tick: tick}
}

func (p *steppedPacer) Tick() time.Duration {
	return p.tick
}

func (p *steppedPacer) Wait(ctx context.Context) bool {
	return p.Sleep(ctx, p.tick)
}

func (p *steppedPacer) Sleep(ctx context.Context, d time.Duration) bool {
	if ctx.Err() != nil {
		return false
	}
	if d > 0 {
		p.mock.Add(d)
	}
	return true
}
