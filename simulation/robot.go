package simulation

import (
	"context"
	"image"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"

	"github.com/hpalin2/picarnav/components/base"
	"github.com/hpalin2/picarnav/components/movementsensor"
	"github.com/hpalin2/picarnav/components/rangefinder"
	"github.com/hpalin2/picarnav/logging"
	"github.com/hpalin2/picarnav/spatialmath"
)

// Config describes the simulated car.
type Config struct {
	CellSizeCm float64
	// Speeds at full power; they scale linearly with the commanded power.
	DriveCmPerSec float64
	TurnDegPerSec float64
	// Nothing further than SensorLimitCm echoes back.
	SensorLimitCm float64
	// NoiseCm adds a uniform integer error in [-NoiseCm, NoiseCm] to every reading.
	NoiseCm                int
	ServoClockwisePositive bool
}

// DefaultConfig matches the real car: at half power it drives 20cm/s and spins 90 degrees/s.
func DefaultConfig() Config {
	return Config{
		CellSizeCm:             5,
		DriveCmPerSec:          40,
		TurnDegPerSec:          180,
		SensorLimitCm:          400,
		ServoClockwisePositive: true,
	}
}

// Robot is a simulated car. Motion is integrated over the clock between calls, so with a mock
// clock the car only moves when the clock is advanced.
type Robot struct {
	mu     sync.Mutex
	cfg    Config
	world  *World
	clock  clock.Clock
	rng    *rand.Rand
	logger logging.Logger

	pose       spatialmath.Pose
	cmd        base.Command
	since      time.Time
	servoDeg   float64
	odometry   movementsensor.Displacement
	collisions int
	trail      []image.Point
}

// NewRobot places a car at (0, 0) facing +x. rng drives sensor noise and may be nil when
// NoiseCm is zero.
func NewRobot(world *World, cfg Config, clk clock.Clock, rng *rand.Rand, logger logging.Logger) *Robot {
	return &Robot{
		cfg:    cfg,
		world:  world,
		clock:  clk,
		rng:    rng,
		logger: logger,
		since:  clk.Now(),
		trail:  []image.Point{{}},
	}
}

// Pose is the car's true pose.
func (r *Robot) Pose() spatialmath.Pose {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.integrateInLock()
	return r.pose
}

// Collisions counts the moves that were blocked by an obstacle.
func (r *Robot) Collisions() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.collisions
}

// Trail lists the cells the car has driven through, in order.
func (r *Robot) Trail() []image.Point {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]image.Point(nil), r.trail...)
}

func (r *Robot) integrateInLock() {
	now := r.clock.Now()
	dt := now.Sub(r.since).Seconds()
	r.since = now
	if dt <= 0 {
		return
	}
	power := float64(r.cmd.Power) / 100
	drive := r.cfg.DriveCmPerSec * power * dt
	turn := r.cmd.Direction.Sign() * r.cfg.TurnDegPerSec * power * dt
	switch r.cmd.Mode {
	case base.Forward:
		r.translateInLock(drive)
	case base.Backward:
		r.translateInLock(-drive)
	case base.Spinning:
		r.rotateInLock(turn)
	case base.Turning:
		r.rotateInLock(turn / 2)
		r.translateInLock(drive / 2)
	case base.Stopped:
	}
}

func (r *Robot) rotateInLock(deg float64) {
	r.pose = r.pose.Advance(0, deg)
	r.odometry.HeadingDeg += deg
}

func (r *Robot) translateInLock(cm float64) {
	cells := cm / r.cfg.CellSizeCm
	steps := int(math.Ceil(math.Abs(cells) / rayStepCells))
	if steps == 0 {
		return
	}
	step := cells / float64(steps)
	for i := 0; i < steps; i++ {
		next := r.pose.Advance(step, 0)
		cell := next.Cell()
		if r.world.Occupied(cell) {
			r.collisions++
			r.logger.Warnw("simulated car hit an obstacle", "cell", cell, "pose", r.pose.String())
			return
		}
		r.pose = next
		r.odometry.DistanceCm += step * r.cfg.CellSizeCm
		if cell != r.trail[len(r.trail)-1] {
			r.trail = append(r.trail, cell)
		}
	}
}

func (r *Robot) command(cmd base.Command) error {
	if err := base.ValidatePower(cmd.Power); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.integrateInLock()
	r.cmd = cmd
	return nil
}

// Forward drives forward until the next command.
func (r *Robot) Forward(ctx context.Context, power int) error {
	return r.command(base.Command{Mode: base.Forward, Power: power})
}

// Backward reverses until the next command.
func (r *Robot) Backward(ctx context.Context, power int) error {
	return r.command(base.Command{Mode: base.Backward, Power: power})
}

// Turn arcs towards dir at half the drive and turn rates.
func (r *Robot) Turn(ctx context.Context, dir base.Direction, power int) error {
	return r.command(base.Command{Mode: base.Turning, Direction: dir, Power: power})
}

// TurnInPlace spins towards dir.
func (r *Robot) TurnInPlace(ctx context.Context, dir base.Direction, power int) error {
	return r.command(base.Command{Mode: base.Spinning, Direction: dir, Power: power})
}

// Stop halts the car.
func (r *Robot) Stop(ctx context.Context) error {
	return r.command(base.Command{Mode: base.Stopped})
}

// SetAngle points the sensor servo.
func (r *Robot) SetAngle(ctx context.Context, deg float64) error {
	if deg < -90 || deg > 90 {
		return errors.Errorf("servo angle %v out of range [-90, 90]", deg)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.servoDeg = deg
	return nil
}

// Angle returns the servo angle.
func (r *Robot) Angle(ctx context.Context) (float64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.servoDeg, nil
}

// ReadDistance casts a ray from the car along the servo bearing. Nothing within the sensor limit
// reads as invalid, like an ultrasonic sensor that hears no echo.
func (r *Robot) ReadDistance(ctx context.Context) (rangefinder.Reading, error) {
	if err := ctx.Err(); err != nil {
		return rangefinder.Reading{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.integrateInLock()

	bearing := r.servoDeg
	if r.cfg.ServoClockwisePositive {
		bearing = -bearing
	}
	cells, hit := r.world.Raycast(r.pose.Point, r.pose.Heading+bearing, r.cfg.SensorLimitCm/r.cfg.CellSizeCm)
	if !hit {
		return rangefinder.Reading{}, nil
	}
	cm := cells * r.cfg.CellSizeCm
	if r.cfg.NoiseCm > 0 && r.rng != nil {
		cm = math.Max(0, cm+float64(r.rng.Intn(2*r.cfg.NoiseCm+1)-r.cfg.NoiseCm))
	}
	return rangefinder.Reading{DistanceCm: cm, Valid: true}, nil
}

// Displacement returns the motion since the last call.
func (r *Robot) Displacement(ctx context.Context) (movementsensor.Displacement, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.integrateInLock()
	d := r.odometry
	r.odometry = movementsensor.Displacement{}
	return d, nil
}
