package navigation

import (
	"context"
	"image"
	"math"
	"math/rand"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"go.uber.org/atomic"
	"go.uber.org/multierr"

	"github.com/hpalin2/picarnav/components/base"
	"github.com/hpalin2/picarnav/components/rangefinder"
	"github.com/hpalin2/picarnav/logging"
	"github.com/hpalin2/picarnav/mapping"
	"github.com/hpalin2/picarnav/motionplan"
	"github.com/hpalin2/picarnav/occupancy"
	"github.com/hpalin2/picarnav/operation"
	"github.com/hpalin2/picarnav/services/navigation/override"
	"github.com/hpalin2/picarnav/services/vision"
	"github.com/hpalin2/picarnav/spatialmath"
	"github.com/hpalin2/picarnav/utils"
)

// Headings closer than this to the next cell need no turn.
const headingToleranceDeg = 1.0

// An Option customizes a Controller.
type Option func(*Controller)

// WithClock sets the clock used for timestamps and, unless WithPacer is given, for pacing.
func WithClock(clk clock.Clock) Option {
	return func(c *Controller) { c.clock = clk }
}

// WithRand sets the generator that breaks recovery turn ties.
func WithRand(rng *rand.Rand) Option {
	return func(c *Controller) { c.rng = rng }
}

// WithPacer sets how control ticks and sensor settle times are waited out.
func WithPacer(pacer operation.Pacer) Option {
	return func(c *Controller) { c.pacer = pacer }
}

// WithAutosaver saves the grid after every scan. The autosaver must write the grid given to
// WithGrid.
func WithAutosaver(as *occupancy.Autosaver) Option {
	return func(c *Controller) { c.autosaver = as }
}

// WithGrid starts from an existing map and pose instead of an empty grid with the car at the
// origin.
func WithGrid(grid *occupancy.Grid, pose spatialmath.Pose) Option {
	return func(c *Controller) {
		c.grid = grid
		c.startPose = pose
	}
}

// Controller is the navigation state machine. Step and Run must not be called concurrently;
// Snapshot may be called from anywhere.
type Controller struct {
	cfg       Config
	deps      Deps
	logger    logging.Logger
	clock     clock.Clock
	rng       *rand.Rand
	pacer     operation.Pacer
	autosaver *occupancy.Autosaver
	ops       *operation.Manager
	scanner   *rangefinder.Scanner
	mapper    *mapping.Mapper

	grid      *occupancy.Grid
	startPose spatialmath.Pose

	session   *Session
	state     State
	failure   error
	proximity override.ProximityState
	vision    override.VisionState
	lastSweep *rangefinder.Sweep
	stats     Stats
	latest    atomic.Pointer[Snapshot]
}

// NewController validates cfg and returns a controller in the Scanning state.
func NewController(cfg Config, deps Deps, logger logging.Logger, opts ...Option) (*Controller, error) {
	if cfg.Mapping.ScanStepDeg == 0 {
		cfg.Mapping.ScanStepDeg = cfg.Scan.StepDeg
	}
	if err := cfg.Validate("navigation"); err != nil {
		return nil, err
	}
	if err := deps.validate(); err != nil {
		return nil, err
	}

	c := &Controller{cfg: cfg, deps: deps, logger: logger}
	for _, opt := range opts {
		opt(c)
	}
	if c.clock == nil {
		c.clock = clock.New()
	}
	if c.rng == nil {
		//nolint:gosec
		c.rng = rand.New(rand.NewSource(c.clock.Now().UnixNano()))
	}
	if c.pacer == nil {
		c.pacer = operation.NewPacer(c.clock, cfg.Tick)
	}
	if c.grid == nil {
		c.grid = occupancy.NewGrid(cfg.GridSize)
	}
	c.ops = operation.NewManager(c.clock)
	c.scanner = rangefinder.NewScanner(cfg.Scan, deps.Servo, deps.Sensor, c.clock, c.pacer, logger.Sublogger("scanner"))
	c.mapper = mapping.NewMapper(c.grid, cfg.Mapping, logger.Sublogger("mapper"))
	c.session = newSession(c.grid, c.startPose.Clamp(c.grid.Bounds()), cfg.Goal, cfg.InflationCells)
	c.logger.Infow("navigation session started", "session", c.session.ID.String(), "goal", cfg.Goal,
		"pose", c.session.Pose.String())
	c.publish()
	return c, nil
}

// State is the current state.
func (c *Controller) State() State {
	return c.state
}

// Snapshot returns the state as of the last completed step or segment.
func (c *Controller) Snapshot() *Snapshot {
	return c.latest.Load()
}

// Step runs one transition. Errors from collaborators leave the state unchanged so the step can
// be retried; a Failed controller keeps returning its failure.
func (c *Controller) Step(ctx context.Context) (State, error) {
	if c.state.Terminal() {
		return c.state, c.failure
	}
	if err := ctx.Err(); err != nil {
		return c.state, err
	}

	var next State
	var err error
	switch c.state {
	case Scanning:
		next, err = c.scan(ctx)
	case Planning:
		next, err = c.plan(ctx)
	case Executing:
		next, err = c.execute(ctx)
	case Replan:
		next = Scanning
	case StoppedProximity:
		next, err = c.recover(ctx)
	case StoppedVision:
		next, err = c.holdForVision(ctx)
	case Done, Failed:
		next = c.state
	}

	c.stats.Cycles++
	if next != c.state {
		c.logger.Debugw("state change", "from", c.state.String(), "to", next.String(), "pose", c.session.Pose.String())
	}
	c.state = next
	c.publish()
	return next, err
}

// Run steps until the goal is reached, navigation fails, ctx ends or MaxCycles is used up. The
// base is always stopped on return.
func (c *Controller) Run(ctx context.Context) (*Result, error) {
	started := c.clock.Now()
	var err error
	for cycles := 0; !c.state.Terminal(); cycles++ {
		if c.cfg.MaxCycles > 0 && cycles >= c.cfg.MaxCycles {
			err = errors.Errorf("gave up after %d cycles in %v", cycles, c.state)
			break
		}
		if _, err = c.Step(ctx); err != nil {
			break
		}
	}

	err = multierr.Combine(err, c.deps.Base.Stop(context.WithoutCancel(ctx)))
	if c.autosaver != nil {
		err = multierr.Combine(err, c.autosaver.Flush())
	}
	s := c.session
	c.logger.Infow("navigation finished", "state", c.state.String(), "pose", s.Pose.String(),
		"scans", c.stats.Scans, "plans", c.stats.Plans, "cells", c.stats.Cells)
	return &Result{
		SessionID: s.ID,
		State:     c.state,
		Pose:      s.Pose,
		Elapsed:   c.clock.Now().Sub(started),
		Stats:     c.stats,
	}, err
}

func (c *Controller) publish() {
	s := c.session
	c.latest.Store(&Snapshot{
		SessionID: s.ID,
		State:     c.state,
		Pose:      s.Pose,
		Goal:      s.Goal,
		Path:      s.Remaining(),
		Inflation: s.Inflation,
		Counts:    s.Grid.Counts(),
		Proximity: c.proximity,
		Vision:    c.vision,
		Grid:      s.Grid,
		Stats:     c.stats,
	})
}

func (c *Controller) scan(ctx context.Context) (State, error) {
	sweep, err := c.scanner.Sweep(ctx)
	if err != nil {
		return Scanning, errors.Wrap(err, "scanning")
	}
	c.lastSweep = sweep
	c.mapper.Update(c.session.Pose, sweep.Samples)
	c.stats.Scans++
	if c.autosaver != nil {
		pose := c.session.Pose
		c.autosaver.Notify(&pose)
	}
	return Planning, nil
}

// atGoal compares whole cells so dead reckoning noise cannot flip the verdict.
func (c *Controller) atGoal() bool {
	d := c.session.Pose.Cell().Sub(c.session.Goal)
	return math.Hypot(float64(d.X), float64(d.Y)) <= c.cfg.GoalToleranceCells
}

func (c *Controller) plan(ctx context.Context) (State, error) {
	s := c.session
	if c.atGoal() {
		return Done, nil
	}
	path, err := motionplan.Plan(ctx, s.Grid.Inflate(s.Inflation), s.Pose.Cell(), s.Goal, c.cfg.Planner)
	switch {
	case err == nil:
		c.stats.Plans++
		c.logger.Debugw("planned", "moves", path.Len(), "expanded", path.Expanded, "inflation", s.Inflation)
		s.Plan, s.Cursor, s.StepsTaken, s.PlannedAt = path, 0, 0, c.clock.Now()
		s.Attempts = 0
		s.Inflation = c.cfg.InflationCells
		return Executing, nil
	case errors.Is(err, motionplan.ErrOutOfBounds):
		return c.fail(err)
	case errors.Is(err, motionplan.ErrUnreachable):
		c.stats.FailedPlans++
		s.Attempts++
		if s.Attempts > c.cfg.MaxPlanRetries {
			return c.fail(err)
		}
		s.Inflation = max(s.Inflation-1, c.cfg.MinInflationCells)
		c.logger.Infow("no path, relaxing inflation", "attempt", s.Attempts, "inflation", s.Inflation, "error", err)
		return Planning, nil
	default:
		return Planning, err
	}
}

func (c *Controller) fail(cause error) (State, error) {
	s := c.session
	c.failure = errors.Wrapf(ErrNavigationFailed, "reaching %v from %v: %v", s.Goal, s.Pose.Cell(), cause)
	s.dropPlan()
	c.logger.Errorw("navigation failed", "error", cause)
	return Failed, c.failure
}

func (c *Controller) latestVision() *vision.Snapshot {
	if c.deps.Vision == nil {
		return nil
	}
	return c.deps.Vision.Latest()
}

// checkOverrides reads ahead and folds in the latest vision snapshot. Proximity wins over vision;
// Executing means carry on.
func (c *Controller) checkOverrides(ctx context.Context) (State, error) {
	sample, err := c.scanner.ReadAhead(ctx)
	if err != nil {
		return Executing, err
	}
	now := c.clock.Now()
	c.proximity = c.proximity.Observe(now, sample, c.cfg.Proximity)
	c.vision = c.vision.Observe(now, c.latestVision(), c.cfg.Vision)
	switch {
	case c.proximity.Triggered:
		return StoppedProximity, nil
	case c.vision.Stopped:
		return StoppedVision, nil
	}
	return Executing, nil
}

func (c *Controller) interrupted(ctx context.Context, next State) (State, error) {
	switch next {
	case StoppedProximity:
		c.stats.ProximityStops++
		c.logger.Infow("proximity stop", "distance_cm", c.proximity.DistanceCm, "pose", c.session.Pose.String())
	case StoppedVision:
		c.stats.VisionStops++
		c.logger.Infow("vision stop", "labels", c.vision.Labels, "pose", c.session.Pose.String())
	default:
	}
	return next, c.deps.Base.Stop(ctx)
}

func (c *Controller) execute(ctx context.Context) (State, error) {
	next, err := c.checkOverrides(ctx)
	if err != nil {
		return Executing, err
	}
	if next != Executing {
		return c.interrupted(ctx, next)
	}

	s := c.session
	if c.atGoal() {
		return Done, c.deps.Base.Stop(ctx)
	}
	if s.Plan == nil ||
		s.Cursor+1 >= len(s.Plan.Cells) ||
		s.StepsTaken >= c.cfg.StepsPerPlan ||
		c.clock.Now().Sub(s.PlannedAt) >= c.cfg.ReplanInterval ||
		s.Pose.Cell() != s.Plan.Cells[s.Cursor] {
		return Replan, nil
	}
	return c.advance(ctx, s.Plan.Cells[s.Cursor], s.Plan.Cells[s.Cursor+1])
}

// axisHeading is the heading of a single 4-connected move.
func axisHeading(move image.Point) float64 {
	switch {
	case move.X > 0:
		return 0
	case move.X < 0:
		return 180
	case move.Y > 0:
		return 90
	default:
		return 270
	}
}

// advance turns to face the next cell and drives onto it.
func (c *Controller) advance(ctx context.Context, from, to image.Point) (State, error) {
	s := c.session
	if turn := utils.SignedAngleDiffDeg(s.Pose.Heading, axisHeading(to.Sub(from))); math.Abs(turn) > headingToleranceDeg {
		next, err := c.turn(ctx, turn, true)
		if err != nil || next != Executing {
			return next, err
		}
	}
	next, err := c.drive(ctx, c.cfg.Mapping.CellSizeCm, true)
	if err != nil || next != Executing {
		return next, err
	}
	s.Cursor++
	s.StepsTaken++
	c.stats.Cells++
	return Executing, nil
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

func (c *Controller) turn(ctx context.Context, deg float64, watch bool) (State, error) {
	dir := base.Left
	if deg < 0 {
		dir = base.Right
	}
	return c.segment(ctx, "turn "+dir.String(), seconds(math.Abs(deg)/c.cfg.Motion.TurnDegPerSec), watch,
		func(ctx context.Context) error {
			return c.deps.Base.TurnInPlace(ctx, dir, c.cfg.Motion.TurnPower)
		})
}

// drive moves cm forward, or backward when cm is negative.
func (c *Controller) drive(ctx context.Context, cm float64, watch bool) (State, error) {
	kind, start := "forward", c.deps.Base.Forward
	if cm < 0 {
		kind, start = "backward", c.deps.Base.Backward
	}
	return c.segment(ctx, kind, seconds(math.Abs(cm)/c.cfg.Motion.DriveCmPerSec), watch,
		func(ctx context.Context) error {
			return start(ctx, c.cfg.Motion.DrivePower)
		})
}

// segment runs one bounded motion and dead reckons from the odometer afterwards. When watch is
// set every tick checks the overrides and a trigger ends the segment. Executing means the
// segment completed.
func (c *Controller) segment(
	ctx context.Context,
	kind string,
	d time.Duration,
	watch bool,
	start func(context.Context) error,
) (State, error) {
	motion := operation.Motion{Kind: kind, Duration: d, Start: start, Stop: c.deps.Base.Stop}
	next := Executing
	if watch {
		motion.Check = func(ctx context.Context) (bool, error) {
			var err error
			next, err = c.checkOverrides(ctx)
			return next == Executing, err
		}
	}
	outcome, err := c.ops.Run(ctx, c.pacer, motion)
	err = multierr.Combine(err, c.updatePose(context.WithoutCancel(ctx)))
	c.publish()
	if err != nil {
		return c.state, errors.Wrap(err, kind)
	}
	switch outcome {
	case operation.Canceled:
		return c.state, ctx.Err()
	case operation.Preempted:
		return c.interrupted(ctx, next)
	case operation.Completed:
	}
	return Executing, nil
}

func (c *Controller) updatePose(ctx context.Context) error {
	d, err := c.deps.Odometer.Displacement(ctx)
	if err != nil {
		return errors.Wrap(err, "reading odometer")
	}
	s := c.session
	s.Pose = s.Pose.Advance(d.DistanceCm/c.cfg.Mapping.CellSizeCm, d.HeadingDeg).Clamp(s.Grid.Bounds())
	return nil
}

// recover backs away from whatever tripped the hard stop and turns toward the more open side of
// the last sweep, then rescans.
func (c *Controller) recover(ctx context.Context) (State, error) {
	if err := c.deps.Base.Stop(ctx); err != nil {
		return StoppedProximity, err
	}
	if reverse := c.cfg.Proximity.ReverseCm; reverse > 0 {
		if _, err := c.drive(ctx, -reverse, false); err != nil {
			return StoppedProximity, err
		}
	}
	dir := override.ChooseRecoveryTurn(c.lastSweep, c.rng)
	if deg := c.cfg.Proximity.RecoveryTurnDeg; deg > 0 {
		if _, err := c.turn(ctx, dir.Sign()*deg, false); err != nil {
			return StoppedProximity, err
		}
	}
	c.logger.Infow("recovered from proximity stop", "turned", dir.String(), "pose", c.session.Pose.String())
	c.proximity = override.ProximityState{}
	c.session.dropPlan()
	return Scanning, nil
}

// holdForVision waits one tick with the base stopped and the plan held. The forward reading is
// still checked so a hard stop can take over from a vision stop.
func (c *Controller) holdForVision(ctx context.Context) (State, error) {
	if !c.pacer.Wait(ctx) {
		return StoppedVision, ctx.Err()
	}
	sample, err := c.scanner.ReadAhead(ctx)
	if err != nil {
		return StoppedVision, err
	}
	now := c.clock.Now()
	c.proximity = c.proximity.Observe(now, sample, c.cfg.Proximity)
	if c.proximity.Triggered {
		return c.interrupted(ctx, StoppedProximity)
	}

	stoppedFor := c.vision.StoppedFor(now)
	c.vision = c.vision.Observe(now, c.latestVision(), c.cfg.Vision)
	if c.vision.Stopped {
		return StoppedVision, nil
	}
	c.logger.Infow("vision clear", "stopped_for", stoppedFor.String())
	if stoppedFor > c.cfg.VisionStaleAfter {
		c.session.dropPlan()
		return Scanning, nil
	}
	// time spent stopped does not count toward the replan interval
	c.session.PlannedAt = c.session.PlannedAt.Add(stoppedFor)
	return Executing, nil
}
