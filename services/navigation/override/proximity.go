// Package override holds the reactive checks that can interrupt path following: the proximity
// hard stop and the debounced vision stop. Both are plain values with pure transitions.
package override

import (
	"math/rand"
	"time"

	"github.com/pkg/errors"
	goutils "go.viam.com/utils"

	"github.com/hpalin2/picarnav/components/base"
	"github.com/hpalin2/picarnav/components/rangefinder"
)

// ProximityConfig configures the hard stop and the recovery that follows it.
type ProximityConfig struct {
	HardStopCm      float64
	ReverseCm       float64
	RecoveryTurnDeg float64
}

// DefaultProximityConfig stops at 20cm, backs up 10cm and turns 45 degrees.
func DefaultProximityConfig() ProximityConfig {
	return ProximityConfig{HardStopCm: 20, ReverseCm: 10, RecoveryTurnDeg: 45}
}

// Validate ensures all parts of the config are valid. The hard stop must trigger closer than the
// distance at which the mapper records obstacles, or the planner could route into it.
func (cfg *ProximityConfig) Validate(path string, obstacleThresholdCm float64) error {
	if cfg.HardStopCm <= 0 {
		return goutils.NewConfigValidationFieldRequiredError(path, "hard_stop_cm")
	}
	if cfg.HardStopCm >= obstacleThresholdCm {
		return goutils.NewConfigValidationError(path, errors.Errorf(
			"hard_stop_cm %v must be less than the mapping obstacle threshold %v", cfg.HardStopCm, obstacleThresholdCm))
	}
	if cfg.ReverseCm < 0 || cfg.RecoveryTurnDeg < 0 {
		return goutils.NewConfigValidationError(path, errors.New("recovery distances cannot be negative"))
	}
	return nil
}

// ProximityState is the latest proximity verdict.
type ProximityState struct {
	Triggered  bool
	Since      time.Time
	DistanceCm float64
}

// Observe folds in a forward reading. Invalid readings never trigger.
func (s ProximityState) Observe(now time.Time, sample rangefinder.Sample, cfg ProximityConfig) ProximityState {
	if !sample.Valid || sample.DistanceCm >= cfg.HardStopCm {
		return ProximityState{DistanceCm: sample.DistanceCm}
	}
	next := ProximityState{Triggered: true, Since: s.Since, DistanceCm: sample.DistanceCm}
	if !s.Triggered {
		next.Since = now
	}
	return next
}

// ChooseRecoveryTurn picks the side of the sweep that looks more open: the one with the larger
// mean valid distance, left being positive angles. Ties and missing data are broken by rng.
func ChooseRecoveryTurn(sweep *rangefinder.Sweep, rng *rand.Rand) base.Direction {
	var left, right float64
	var okLeft, okRight bool
	if sweep != nil {
		left, okLeft = sweep.MeanDistance(func(s rangefinder.Sample) bool { return s.AngleDeg > 0 })
		right, okRight = sweep.MeanDistance(func(s rangefinder.Sample) bool { return s.AngleDeg < 0 })
	}
	switch {
	case okLeft && (!okRight || left > right):
		return base.Left
	case okRight && (!okLeft || right > left):
		return base.Right
	}
	if rng.Intn(2) == 0 {
		return base.Left
	}
	return base.Right
}
