package override

import (
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/samber/lo"
	goutils "go.viam.com/utils"

	"github.com/hpalin2/picarnav/services/vision"
)

// VisionConfig configures when detections stop the robot and when it may go again.
type VisionConfig struct {
	TriggerLabels []string
	// MinConfidence is exclusive: a detection must score above it.
	MinConfidence float64
	// ClearCycles is how many distinct clear snapshots end a stop.
	ClearCycles int
	// ClearAfter is the least time since the last sighting before a stop can end.
	ClearAfter time.Duration
	// Freshness is how old a snapshot may be and still count.
	Freshness time.Duration
	// HoldFor keeps the robot stopped for a while after particular labels, like a stop sign.
	HoldFor map[string]time.Duration
}

// DefaultVisionConfig stops for people and stop signs, holding two seconds for a stop sign.
func DefaultVisionConfig() VisionConfig {
	return VisionConfig{
		TriggerLabels: []string{"person", "stop sign"},
		MinConfidence: 0.5,
		ClearCycles:   5,
		ClearAfter:    time.Second,
		Freshness:     2 * time.Second,
		HoldFor:       map[string]time.Duration{"stop sign": 2 * time.Second},
	}
}

// Validate ensures all parts of the config are valid.
func (cfg *VisionConfig) Validate(path string) error {
	if len(cfg.TriggerLabels) == 0 {
		return goutils.NewConfigValidationFieldRequiredError(path, "trigger_labels")
	}
	if cfg.MinConfidence < 0 || cfg.MinConfidence > 1 {
		return goutils.NewConfigValidationError(path,
			errors.Errorf("min_confidence must be within [0, 1], got %v", cfg.MinConfidence))
	}
	if cfg.ClearCycles < 1 {
		return goutils.NewConfigValidationError(path, errors.New("clear_cycles must be at least 1"))
	}
	if cfg.Freshness <= 0 {
		return goutils.NewConfigValidationFieldRequiredError(path, "freshness")
	}
	for label, hold := range cfg.HoldFor {
		if hold < 0 {
			return goutils.NewConfigValidationError(fmt.Sprintf("%s.hold_for", path),
				errors.Errorf("hold for %q cannot be negative", label))
		}
	}
	return nil
}

// VisionState tracks a vision stop.
type VisionState struct {
	Stopped bool
	// Since is when the current stop began.
	Since time.Time
	// LastSeen is the capture time of the latest triggering snapshot.
	LastSeen  time.Time
	HoldUntil time.Time
	Labels    []string
	Clear     int
	LastSeq   uint64
}

// Observe folds in the latest snapshot. A stale or missing snapshot counts as seeing nothing;
// clear cycles are only counted once per snapshot sequence number so a slow detector cannot end
// a stop early.
func (s VisionState) Observe(now time.Time, snap *vision.Snapshot, cfg VisionConfig) VisionState {
	fresh := !snap.Stale(now, cfg.Freshness)
	newCycle := fresh && snap.Seq != s.LastSeq
	if fresh {
		s.LastSeq = snap.Seq
	}

	if fresh {
		if matches := snap.Matching(cfg.TriggerLabels, cfg.MinConfidence); len(matches) > 0 {
			return s.sighted(now, snap.Captured, matches, cfg)
		}
	}
	if !s.Stopped {
		return s
	}

	if newCycle {
		s.Clear++
	}
	sinceSeen := now.Sub(s.LastSeen)
	cleared := s.Clear >= cfg.ClearCycles ||
		(!fresh && sinceSeen >= max(cfg.ClearAfter, cfg.Freshness))
	if cleared && sinceSeen >= cfg.ClearAfter && !now.Before(s.HoldUntil) {
		return VisionState{LastSeq: s.LastSeq}
	}
	return s
}

func (s VisionState) sighted(now, captured time.Time, matches []vision.Detection, cfg VisionConfig) VisionState {
	labels := lo.Uniq(lo.Map(matches, func(d vision.Detection, _ int) string { return vision.NormalizeLabel(d.Label) }))
	if !s.Stopped {
		s.Stopped = true
		s.Since = now
	}
	if captured.After(s.LastSeen) {
		s.LastSeen = captured
	}
	for _, l := range labels {
		for holdLabel, hold := range cfg.HoldFor {
			if vision.NormalizeLabel(holdLabel) != l {
				continue
			}
			if until := captured.Add(hold); until.After(s.HoldUntil) {
				s.HoldUntil = until
			}
		}
	}
	s.Labels = labels
	s.Clear = 0
	return s
}

// StoppedFor is how long the current stop has lasted, zero when not stopped.
func (s VisionState) StoppedFor(now time.Time) time.Duration {
	if !s.Stopped {
		return 0
	}
	return now.Sub(s.Since)
}
