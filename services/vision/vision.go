// Package vision publishes object detections to the navigation loop without ever blocking it.
package vision

import (
	"context"
	"image"
	"strings"
	"time"

	"github.com/samber/lo"
)

// Detection is one labelled bounding box from a detector.
type Detection struct {
	Label      string
	Confidence float64
	Box        image.Rectangle
	Time       time.Time
}

// A Detector runs the classification model on the current camera frame.
type Detector interface {
	Detect(ctx context.Context) ([]Detection, error)
}

// NormalizeLabel lower-cases a label, turns underscores into spaces and trims it, so that
// "Stop_Sign " and "stop sign" compare equal.
func NormalizeLabel(label string) string {
	return strings.TrimSpace(strings.ReplaceAll(strings.ToLower(label), "_", " "))
}

// Snapshot is the most recent set of detections. Seq increases by one per publication.
type Snapshot struct {
	Detections []Detection
	Captured   time.Time
	Seq        uint64
}

// Stale reports whether the snapshot was captured more than freshness before now. A nil
// snapshot is always stale.
func (s *Snapshot) Stale(now time.Time, freshness time.Duration) bool {
	return s == nil || now.Sub(s.Captured) > freshness
}

// Matching returns the detections whose normalized label is in labels and whose confidence is
// above minConfidence.
func (s *Snapshot) Matching(labels []string, minConfidence float64) []Detection {
	if s == nil {
		return nil
	}
	wanted := lo.Map(labels, func(l string, _ int) string { return NormalizeLabel(l) })
	return lo.Filter(s.Detections, func(d Detection, _ int) bool {
		return d.Confidence > minConfidence && lo.Contains(wanted, NormalizeLabel(d.Label))
	})
}

// Labels returns the distinct normalized labels in the snapshot.
func (s *Snapshot) Labels() []string {
	if s == nil {
		return nil
	}
	return lo.Uniq(lo.Map(s.Detections, func(d Detection, _ int) string { return NormalizeLabel(d.Label) }))
}
