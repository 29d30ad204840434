// Package mapping turns range sweeps into occupancy grid updates.
package mapping

import (
	"image"
	"math"

	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
	"go.uber.org/atomic"
	goutils "go.viam.com/utils"

	"github.com/hpalin2/picarnav/components/rangefinder"
	"github.com/hpalin2/picarnav/logging"
	"github.com/hpalin2/picarnav/occupancy"
	"github.com/hpalin2/picarnav/spatialmath"
)

// Config controls how readings are written into the grid.
type Config struct {
	CellSizeCm float64
	// Hits closer than ObstacleThresholdCm mark their endpoint occupied.
	ObstacleThresholdCm float64
	// Readings at or beyond MaxRangeCm only clear space, up to MaxRangeCm.
	MaxRangeCm float64
	// ScanStepDeg is the sweep's angular spacing, used to size interpolation.
	ScanStepDeg float64
	Interpolate bool
	// MaxInterpolationGapDeg bounds how far apart two hits may be and still be joined. Zero means
	// twice ScanStepDeg.
	MaxInterpolationGapDeg float64
}

// DefaultConfig returns 5cm cells, an 80cm obstacle threshold and a 100cm reliable range.
func DefaultConfig() Config {
	return Config{
		CellSizeCm:          5,
		ObstacleThresholdCm: 80,
		MaxRangeCm:          100,
		ScanStepDeg:         15,
		Interpolate:         true,
	}
}

// Validate ensures all parts of the config are valid.
func (cfg *Config) Validate(path string) error {
	if cfg.CellSizeCm <= 0 {
		return goutils.NewConfigValidationFieldRequiredError(path, "cell_size_cm")
	}
	if cfg.MaxRangeCm <= 0 {
		return goutils.NewConfigValidationFieldRequiredError(path, "max_range_cm")
	}
	if cfg.ObstacleThresholdCm <= 0 || cfg.ObstacleThresholdCm > cfg.MaxRangeCm {
		return goutils.NewConfigValidationError(path,
			errors.Errorf("obstacle_threshold_cm %v must be in (0, max_range_cm]", cfg.ObstacleThresholdCm))
	}
	if cfg.ScanStepDeg <= 0 {
		return goutils.NewConfigValidationFieldRequiredError(path, "scan_step_deg")
	}
	if cfg.MaxInterpolationGapDeg < 0 {
		return goutils.NewConfigValidationError(path, errors.New("max_interpolation_gap_deg cannot be negative"))
	}
	return nil
}

// InterpolationStepDeg is the spacing of synthesized samples: half the scan step, at most 5.
func (cfg *Config) InterpolationStepDeg() float64 {
	return math.Min(5, cfg.ScanStepDeg/2)
}

func (cfg *Config) maxGapDeg() float64 {
	if cfg.MaxInterpolationGapDeg > 0 {
		return cfg.MaxInterpolationGapDeg
	}
	return 2 * cfg.ScanStepDeg
}

// Stats describes one Update.
type Stats struct {
	Samples      int
	Skipped      int
	Rays         int
	FreeMarked   int
	Occupied     int
	Interpolated int
	Clipped      int
}

// Mapper marks cells seen by a sweep. It is the only writer of its grid.
type Mapper struct {
	cfg     Config
	grid    *occupancy.Grid
	logger  logging.Logger
	updates atomic.Int64
}

// NewMapper returns a Mapper writing to grid.
func NewMapper(grid *occupancy.Grid, cfg Config, logger logging.Logger) *Mapper {
	return &Mapper{cfg: cfg, grid: grid, logger: logger}
}

// Grid returns the grid being written.
func (m *Mapper) Grid() *occupancy.Grid {
	return m.grid
}

// Updates is the number of sweeps applied.
func (m *Mapper) Updates() int64 {
	return m.updates.Load()
}

type ray struct {
	cells    []image.Point
	freeUpTo int
	occupied bool
}

// Update writes every valid sample taken from pose into the grid. Free space is applied before
// obstacles so obstacle marks never lose to a ray from the same sweep.
func (m *Mapper) Update(pose spatialmath.Pose, samples []rangefinder.Sample) Stats {
	stats := Stats{Samples: len(samples)}
	var rays []ray
	for _, s := range samples {
		if !s.Valid {
			stats.Skipped++
			continue
		}
		rays = append(rays, m.castRay(pose, s))
	}

	var hits []image.Point
	if m.cfg.Interpolate {
		hits = m.interpolate(pose, samples)
		stats.Interpolated = len(hits)
	}
	stats.Rays = len(rays)

	m.grid.Mutate(func(grid occupancy.MutableGrid) {
		for _, r := range rays {
			for _, c := range r.cells[:r.freeUpTo] {
				if !grid.In(c) {
					stats.Clipped++
					continue
				}
				if grid.At(c) != occupancy.Free && grid.Set(c, occupancy.Free) {
					stats.FreeMarked++
				}
			}
		}
		mark := func(c image.Point) {
			if !grid.In(c) {
				stats.Clipped++
				return
			}
			if grid.At(c) != occupancy.Occupied && grid.Set(c, occupancy.Occupied) {
				stats.Occupied++
			}
		}
		for _, r := range rays {
			if r.occupied {
				mark(r.cells[len(r.cells)-1])
			}
		}
		for _, c := range hits {
			mark(c)
		}
	})

	m.updates.Inc()
	m.logger.Debugw("map updated",
		"samples", stats.Samples,
		"skipped", stats.Skipped,
		"free", stats.FreeMarked,
		"occupied", stats.Occupied,
		"interpolated", stats.Interpolated,
		"clipped", stats.Clipped)
	return stats
}

func (m *Mapper) endpoint(pose spatialmath.Pose, angleDeg, distanceCm float64) image.Point {
	return cellOf(pose.Project(angleDeg, distanceCm/m.cfg.CellSizeCm))
}

func cellOf(p r2.Point) image.Point {
	return image.Pt(int(math.Round(p.X)), int(math.Round(p.Y)))
}

func (m *Mapper) castRay(pose spatialmath.Pose, s rangefinder.Sample) ray {
	d := s.DistanceCm
	switch {
	case d < m.cfg.ObstacleThresholdCm:
		cells := Line(pose.Cell(), m.endpoint(pose, s.AngleDeg, d))
		return ray{cells: cells, freeUpTo: len(cells) - 1, occupied: true}
	case d < m.cfg.MaxRangeCm:
		cells := Line(pose.Cell(), m.endpoint(pose, s.AngleDeg, d))
		return ray{cells: cells, freeUpTo: len(cells) - 1}
	default:
		cells := Line(pose.Cell(), m.endpoint(pose, s.AngleDeg, m.cfg.MaxRangeCm))
		return ray{cells: cells, freeUpTo: len(cells)}
	}
}

// interpolate joins neighbouring obstacle hits that are too far apart in angle with synthesized
// hits at the interpolation step.
func (m *Mapper) interpolate(pose spatialmath.Pose, samples []rangefinder.Sample) []image.Point {
	step := m.cfg.InterpolationStepDeg()
	maxGap := m.cfg.maxGapDeg()
	isHit := func(s rangefinder.Sample) bool {
		return s.Valid && s.DistanceCm < m.cfg.ObstacleThresholdCm
	}

	var cells []image.Point
	for i := 1; i < len(samples); i++ {
		a, b := samples[i-1], samples[i]
		if !isHit(a) || !isHit(b) {
			continue
		}
		gap := b.AngleDeg - a.AngleDeg
		if math.Abs(gap) <= step || math.Abs(gap) > maxGap {
			continue
		}
		n := int(math.Ceil(math.Abs(gap)/step)) - 1
		for k := 1; k <= n; k++ {
			frac := float64(k) * step / math.Abs(gap)
			angle := a.AngleDeg + frac*gap
			dist := a.DistanceCm + frac*(b.DistanceCm-a.DistanceCm)
			cells = append(cells, m.endpoint(pose, angle, dist))
		}
	}
	return cells
}
