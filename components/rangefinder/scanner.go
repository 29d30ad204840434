package rangefinder

import (
	"context"
	"math"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	goutils "go.viam.com/utils"

	"github.com/hpalin2/picarnav/components/servo"
	"github.com/hpalin2/picarnav/logging"
	"github.com/hpalin2/picarnav/operation"
)

// Config describes how a scan is taken and which readings are believed.
type Config struct {
	MinAngleDeg float64
	MaxAngleDeg float64
	StepDeg     float64
	// SettleTime is waited after each servo move before reading.
	SettleTime time.Duration
	// Readings below MinRangeCm or above SensorLimitCm are invalid.
	MinRangeCm    float64
	SensorLimitCm float64
	// ServoClockwisePositive means positive servo angles point right of the robot.
	ServoClockwisePositive bool
}

// DefaultConfig is a -90..90 sweep in 15 degree steps.
func DefaultConfig() Config {
	return Config{
		MinAngleDeg:            -90,
		MaxAngleDeg:            90,
		StepDeg:                15,
		SettleTime:             100 * time.Millisecond,
		MinRangeCm:             2,
		SensorLimitCm:          400,
		ServoClockwisePositive: true,
	}
}

// Validate ensures all parts of the config are valid.
func (cfg *Config) Validate(path string) error {
	if cfg.StepDeg <= 0 {
		return goutils.NewConfigValidationError(path, errors.Errorf("step_deg must be positive, got %v", cfg.StepDeg))
	}
	if cfg.MinAngleDeg > cfg.MaxAngleDeg {
		return goutils.NewConfigValidationError(path,
			errors.Errorf("min_angle_deg %v is greater than max_angle_deg %v", cfg.MinAngleDeg, cfg.MaxAngleDeg))
	}
	if cfg.MinAngleDeg < -90 || cfg.MaxAngleDeg > 90 {
		return goutils.NewConfigValidationError(path, errors.New("sweep angles must be within [-90, 90]"))
	}
	if cfg.SensorLimitCm <= 0 {
		return goutils.NewConfigValidationFieldRequiredError(path, "sensor_limit_cm")
	}
	if cfg.MinRangeCm < 0 || cfg.MinRangeCm >= cfg.SensorLimitCm {
		return goutils.NewConfigValidationError(path,
			errors.Errorf("min_range_cm %v must be in [0, sensor_limit_cm)", cfg.MinRangeCm))
	}
	if cfg.SettleTime < 0 {
		return goutils.NewConfigValidationError(path, errors.New("settle time cannot be negative"))
	}
	return nil
}

// Angles lists the body-frame bearings of a sweep in the order they are visited.
func (cfg *Config) Angles() []float64 {
	var angles []float64
	for a := cfg.MinAngleDeg; a <= cfg.MaxAngleDeg+1e-9; a += cfg.StepDeg {
		angles = append(angles, a)
	}
	return angles
}

// A Scanner sweeps a sensor mounted on a servo.
type Scanner struct {
	cfg    Config
	servo  servo.Servo
	sensor Sensor
	clock  clock.Clock
	pacer  operation.Pacer
	logger logging.Logger
}

// NewScanner returns a Scanner. Settle delays go through pacer and samples are stamped with clk.
func NewScanner(
	cfg Config,
	srv servo.Servo,
	sensor Sensor,
	clk clock.Clock,
	pacer operation.Pacer,
	logger logging.Logger,
) *Scanner {
	return &Scanner{cfg: cfg, servo: srv, sensor: sensor, clock: clk, pacer: pacer, logger: logger}
}

// Config returns the scanner's configuration.
func (s *Scanner) Config() Config {
	return s.cfg
}

func (s *Scanner) servoAngle(bodyDeg float64) float64 {
	if s.cfg.ServoClockwisePositive {
		return -bodyDeg
	}
	return bodyDeg
}

// Validate applies the range limits to a raw reading.
func (s *Scanner) Validate(r Reading) bool {
	if !r.Valid || math.IsNaN(r.DistanceCm) {
		return false
	}
	return r.DistanceCm >= s.cfg.MinRangeCm && r.DistanceCm <= s.cfg.SensorLimitCm
}

func (s *Scanner) sample(ctx context.Context, bodyDeg float64) (Sample, error) {
	reading, err := s.sensor.ReadDistance(ctx)
	if err != nil {
		return Sample{}, errors.Wrapf(err, "reading distance at %.0f degrees", bodyDeg)
	}
	return Sample{
		AngleDeg:   bodyDeg,
		DistanceCm: reading.DistanceCm,
		Valid:      s.Validate(reading),
		Time:       s.clock.Now(),
	}, nil
}

// Sweep visits every angle, reads once at each and recentres the servo.
func (s *Scanner) Sweep(ctx context.Context) (*Sweep, error) {
	sweep := &Sweep{Started: s.clock.Now()}
	for _, bodyDeg := range s.cfg.Angles() {
		if err := s.servo.SetAngle(ctx, s.servoAngle(bodyDeg)); err != nil {
			return nil, errors.Wrapf(err, "pointing servo to %.0f degrees", bodyDeg)
		}
		if !s.pacer.Sleep(ctx, s.cfg.SettleTime) {
			return nil, ctx.Err()
		}
		sample, err := s.sample(ctx, bodyDeg)
		if err != nil {
			return nil, err
		}
		sweep.Samples = append(sweep.Samples, sample)
	}
	if err := s.servo.SetAngle(ctx, 0); err != nil {
		return nil, errors.Wrap(err, "recentring servo")
	}
	sweep.Ended = s.clock.Now()

	q := sweep.Quality()
	s.logger.Debugw("sweep complete", "valid", q.Valid, "invalid", q.Invalid, "min_cm", q.MinCm, "median_cm", q.MedianCm)
	return sweep, nil
}

// ReadAhead takes one reading without moving the servo, which is assumed centred.
func (s *Scanner) ReadAhead(ctx context.Context) (Sample, error) {
	return s.sample(ctx, 0)
}
