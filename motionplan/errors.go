package motionplan

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrUnreachable means no traversable path joins start and goal.
	ErrUnreachable = errors.New("goal is unreachable")
	// ErrOutOfBounds means start or goal lies outside the map.
	ErrOutOfBounds = errors.New("cell is outside the map")
	// ErrExpansionLimit means the search gave up. Errors matching it also match ErrUnreachable.
	ErrExpansionLimit = errors.New("search expansion limit reached")
)

type expansionLimitError struct {
	limit int
}

func (e *expansionLimitError) Error() string {
	return fmt.Sprintf("%v after %d expansions: %v", ErrExpansionLimit, e.limit, ErrUnreachable)
}

func (e *expansionLimitError) Is(target error) bool {
	return target == ErrExpansionLimit || target == ErrUnreachable
}
