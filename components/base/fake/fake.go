// Package fake implements a fake base.
package fake

import (
	"context"
	"sync"

	"github.com/hpalin2/picarnav/components/base"
	"github.com/hpalin2/picarnav/logging"
)

// Base is a fake base that records every command it is given.
type Base struct {
	mu       sync.Mutex
	logger   logging.Logger
	commands []base.Command
	current  base.Command
}

// NewBase returns a stopped fake base.
func NewBase(logger logging.Logger) *Base {
	return &Base{logger: logger}
}

func (b *Base) record(cmd base.Command) error {
	if err := base.ValidatePower(cmd.Power); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.commands = append(b.commands, cmd)
	b.current = cmd
	b.logger.Debugw("base command", "command", cmd.String())
	return nil
}

// Forward records a forward command.
func (b *Base) Forward(ctx context.Context, power int) error {
	return b.record(base.Command{Mode: base.Forward, Power: power})
}

// Backward records a backward command.
func (b *Base) Backward(ctx context.Context, power int) error {
	return b.record(base.Command{Mode: base.Backward, Power: power})
}

// Turn records an arcing turn.
func (b *Base) Turn(ctx context.Context, dir base.Direction, power int) error {
	return b.record(base.Command{Mode: base.Turning, Direction: dir, Power: power})
}

// TurnInPlace records a spin.
func (b *Base) TurnInPlace(ctx context.Context, dir base.Direction, power int) error {
	return b.record(base.Command{Mode: base.Spinning, Direction: dir, Power: power})
}

// Stop records a stop.
func (b *Base) Stop(ctx context.Context) error {
	return b.record(base.Command{Mode: base.Stopped})
}

// Current returns the last command.
func (b *Base) Current() base.Command {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.current
}

// Commands returns a copy of all commands so far.
func (b *Base) Commands() []base.Command {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]base.Command(nil), b.commands...)
}
