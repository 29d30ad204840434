// Package base defines the base that a robot uses to move around.
package base

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
)

// Direction is the side a base turns towards.
type Direction int

// Left turns counter clockwise, Right clockwise.
const (
	Left Direction = iota
	Right
)

func (d Direction) String() string {
	if d == Left {
		return "left"
	}
	return "right"
}

// Sign is +1 for Left and -1 for Right, matching a counter clockwise positive heading.
func (d Direction) Sign() float64 {
	if d == Left {
		return 1
	}
	return -1
}

// Mode is what the base was last commanded to do.
type Mode int

// Known modes.
const (
	Stopped Mode = iota
	Forward
	Backward
	Turning
	Spinning
)

func (m Mode) String() string {
	switch m {
	case Stopped:
		return "stopped"
	case Forward:
		return "forward"
	case Backward:
		return "backward"
	case Turning:
		return "turning"
	case Spinning:
		return "spinning"
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}

// A Base drives the robot. Every call returns as soon as the command is issued; the motors keep
// running until the next command. Power is a percentage in [0, 100].
type Base interface {
	Forward(ctx context.Context, power int) error
	Backward(ctx context.Context, power int) error
	// Turn arcs towards dir while moving forward.
	Turn(ctx context.Context, dir Direction, power int) error
	// TurnInPlace spins towards dir without translating.
	TurnInPlace(ctx context.Context, dir Direction, power int) error
	Stop(ctx context.Context) error
}

// Command is a single call made to a base, used by fakes and simulations.
type Command struct {
	Mode      Mode
	Direction Direction
	Power     int
}

func (c Command) String() string {
	switch c.Mode {
	case Turning, Spinning:
		return fmt.Sprintf("%s %s @%d", c.Mode, c.Direction, c.Power)
	case Stopped:
		return c.Mode.String()
	default:
		return fmt.Sprintf("%s @%d", c.Mode, c.Power)
	}
}

// ValidatePower returns an error if power is outside [0, 100].
func ValidatePower(power int) error {
	if power < 0 || power > 100 {
		return errors.Errorf("power must be between 0 and 100, got %d", power)
	}
	return nil
}
