// Package rangefinder turns a panning servo and a distance sensor into validated polar scans.
package rangefinder

import (
	"context"
	"time"

	"github.com/montanaflynn/stats"
	"github.com/samber/lo"
)

// Reading is one raw measurement. Valid is false when the sensor got no echo.
type Reading struct {
	DistanceCm float64
	Valid      bool
}

// A Sensor measures the distance straight ahead of wherever it is pointed.
type Sensor interface {
	ReadDistance(ctx context.Context) (Reading, error)
}

// Sample is a validated reading at a body-frame bearing (counter clockwise positive, 0 ahead).
type Sample struct {
	AngleDeg   float64   `json:"angle_deg"`
	DistanceCm float64   `json:"distance_cm"`
	Valid      bool      `json:"valid"`
	Time       time.Time `json:"time"`
}

// Sweep is the ordered result of one pass of the servo.
type Sweep struct {
	Samples []Sample
	Started time.Time
	Ended   time.Time
}

// Quality summarizes a sweep's valid samples.
type Quality struct {
	Valid    int
	Invalid  int
	MinCm    float64
	MedianCm float64
}

// Valid returns only the valid samples.
func (s *Sweep) Valid() []Sample {
	return lo.Filter(s.Samples, func(sample Sample, _ int) bool { return sample.Valid })
}

// Quality computes summary statistics. MinCm and MedianCm are zero when no sample is valid.
func (s *Sweep) Quality() Quality {
	valid := s.Valid()
	q := Quality{Valid: len(valid), Invalid: len(s.Samples) - len(valid)}
	if len(valid) == 0 {
		return q
	}
	distances := stats.Float64Data(lo.Map(valid, func(sample Sample, _ int) float64 { return sample.DistanceCm }))
	// only fails on empty input
	//nolint:errcheck
	q.MinCm, _ = distances.Min()
	//nolint:errcheck
	q.MedianCm, _ = distances.Median()
	return q
}

// MeanDistance returns the mean distance of the valid samples for which keep is true, and false
// if there are none.
func (s *Sweep) MeanDistance(keep func(Sample) bool) (float64, bool) {
	picked := lo.Filter(s.Valid(), func(sample Sample, _ int) bool { return keep(sample) })
	if len(picked) == 0 {
		return 0, false
	}
	mean, err := stats.Mean(lo.Map(picked, func(sample Sample, _ int) float64 { return sample.DistanceCm }))
	if err != nil {
		return 0, false
	}
	return mean, true
}
