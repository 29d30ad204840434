// Package inject provides fakes whose behaviour is set per test through function fields. Unset
// fields fall through to the embedded implementation.
package inject

import (
	"context"

	"github.com/hpalin2/picarnav/components/base"
)

// Base is an injectable base.
type Base struct {
	base.Base
	ForwardFunc     func(ctx context.Context, power int) error
	BackwardFunc    func(ctx context.Context, power int) error
	TurnFunc        func(ctx context.Context, dir base.Direction, power int) error
	TurnInPlaceFunc func(ctx context.Context, dir base.Direction, power int) error
	StopFunc        func(ctx context.Context) error
}

// NewBase returns a Base wrapping b, which may be nil when every used func is set.
func NewBase(b base.Base) *Base {
	return &Base{Base: b}
}

// Forward calls the injected Forward or the real version.
func (b *Base) Forward(ctx context.Context, power int) error {
	if b.ForwardFunc == nil {
		return b.Base.Forward(ctx, power)
	}
	return b.ForwardFunc(ctx, power)
}

// Backward calls the injected Backward or the real version.
func (b *Base) Backward(ctx context.Context, power int) error {
	if b.BackwardFunc == nil {
		return b.Base.Backward(ctx, power)
	}
	return b.BackwardFunc(ctx, power)
}

// Turn calls the injected Turn or the real version.
func (b *Base) Turn(ctx context.Context, dir base.Direction, power int) error {
	if b.TurnFunc == nil {
		return b.Base.Turn(ctx, dir, power)
	}
	return b.TurnFunc(ctx, dir, power)
}

// TurnInPlace calls the injected TurnInPlace or the real version.
func (b *Base) TurnInPlace(ctx context.Context, dir base.Direction, power int) error {
	if b.TurnInPlaceFunc == nil {
		return b.Base.TurnInPlace(ctx, dir, power)
	}
	return b.TurnInPlaceFunc(ctx, dir, power)
}

// Stop calls the injected Stop or the real version.
func (b *Base) Stop(ctx context.Context) error {
	if b.StopFunc == nil {
		return b.Base.Stop(ctx)
	}
	return b.StopFunc(ctx)
}
