package motionplan

import (
	"math"

	"github.com/pkg/errors"
	goutils "go.viam.com/utils"
)

// Heuristic estimates the remaining cost between two cells.
type Heuristic int

// Supported heuristics. Both are admissible and consistent on a 4-connected unit-cost grid.
const (
	HeuristicManhattan Heuristic = iota
	HeuristicEuclidean
)

func (h Heuristic) String() string {
	if h == HeuristicEuclidean {
		return "euclidean"
	}
	return "manhattan"
}

// HeuristicFromString parses a heuristic name. The empty string is manhattan.
func HeuristicFromString(name string) (Heuristic, error) {
	switch name {
	case "", "manhattan":
		return HeuristicManhattan, nil
	case "euclidean":
		return HeuristicEuclidean, nil
	}
	return 0, errors.Errorf("unknown heuristic %q", name)
}

func (h Heuristic) estimate(dx, dy int) float64 {
	if h == HeuristicEuclidean {
		return math.Hypot(float64(dx), float64(dy))
	}
	return float64(abs(dx) + abs(dy))
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// Options tune a search.
type Options struct {
	Heuristic Heuristic
	// AvoidUnknown treats unknown cells as blocked.
	AvoidUnknown bool
	// MaxExpansions caps the number of cells expanded. Zero means 4 times the number of cells.
	MaxExpansions int
}

// Validate ensures all parts of the options are valid.
func (opts *Options) Validate(path string) error {
	if opts.MaxExpansions < 0 {
		return goutils.NewConfigValidationError(path, errors.New("max_expansions cannot be negative"))
	}
	if opts.Heuristic != HeuristicManhattan && opts.Heuristic != HeuristicEuclidean {
		return goutils.NewConfigValidationError(path, errors.Errorf("unknown heuristic %d", opts.Heuristic))
	}
	return nil
}

func (opts *Options) expansionLimit(size int) int {
	if opts.MaxExpansions > 0 {
		return opts.MaxExpansions
	}
	return 4 * size * size
}
