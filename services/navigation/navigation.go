// Package navigation drives the car to a goal cell: it maps with sweeps, plans on the inflated
// grid and follows the plan one cell at a time while the proximity and vision overrides watch.
package navigation

import (
	"context"
	"fmt"
	"image"
	"time"

	"github.com/pkg/errors"
	goutils "go.viam.com/utils"

	"github.com/hpalin2/picarnav/components/base"
	"github.com/hpalin2/picarnav/components/movementsensor"
	"github.com/hpalin2/picarnav/components/rangefinder"
	"github.com/hpalin2/picarnav/components/servo"
	"github.com/hpalin2/picarnav/mapping"
	"github.com/hpalin2/picarnav/motionplan"
	"github.com/hpalin2/picarnav/services/navigation/override"
	"github.com/hpalin2/picarnav/services/vision"
)

// ErrNavigationFailed is returned once the controller gives up on reaching the goal.
var ErrNavigationFailed = errors.New("navigation failed")

// State is the controller's current phase.
type State uint8

// The set of known states.
const (
	Scanning = State(iota)
	Planning
	Executing
	Replan
	StoppedProximity
	StoppedVision
	Done
	Failed
)

func (s State) String() string {
	switch s {
	case Scanning:
		return "SCANNING"
	case Planning:
		return "PLANNING"
	case Executing:
		return "EXECUTING"
	case Replan:
		return "REPLAN"
	case StoppedProximity:
		return "STOPPED_PROXIMITY"
	case StoppedVision:
		return "STOPPED_VISION"
	case Done:
		return "DONE"
	case Failed:
		return "FAILED"
	}
	return fmt.Sprintf("State(%d)", uint8(s))
}

// Terminal reports whether no further transitions happen from s.
func (s State) Terminal() bool {
	return s == Done || s == Failed
}

// MotionConfig holds the drive powers and the nominal rates they produce, used to size motion
// segments.
type MotionConfig struct {
	DrivePower    int
	TurnPower     int
	DriveCmPerSec float64
	TurnDegPerSec float64
}

// Validate ensures all parts of the config are valid.
func (cfg *MotionConfig) Validate(path string) error {
	if err := base.ValidatePower(cfg.DrivePower); err != nil || cfg.DrivePower == 0 {
		return goutils.NewConfigValidationFieldRequiredError(path, "drive_power")
	}
	if err := base.ValidatePower(cfg.TurnPower); err != nil || cfg.TurnPower == 0 {
		return goutils.NewConfigValidationFieldRequiredError(path, "turn_power")
	}
	if cfg.DriveCmPerSec <= 0 {
		return goutils.NewConfigValidationFieldRequiredError(path, "drive_cm_per_sec")
	}
	if cfg.TurnDegPerSec <= 0 {
		return goutils.NewConfigValidationFieldRequiredError(path, "turn_deg_per_sec")
	}
	return nil
}

// Config configures a Controller.
type Config struct {
	Goal     image.Point
	GridSize int

	Scan      rangefinder.Config
	Mapping   mapping.Config
	Planner   motionplan.Options
	Proximity override.ProximityConfig
	Vision    override.VisionConfig
	Motion    MotionConfig

	// InflationCells is the clearance kept from obstacles when planning; when no path exists it
	// is relaxed one cell per attempt down to MinInflationCells.
	InflationCells    int
	MinInflationCells int
	MaxPlanRetries    int
	// A plan is followed for at most StepsPerPlan cells or ReplanInterval before rescanning.
	StepsPerPlan   int
	ReplanInterval time.Duration
	// Tick is the control period; overrides are checked once per tick.
	Tick               time.Duration
	GoalToleranceCells float64
	// A vision stop longer than VisionStaleAfter drops the held plan.
	VisionStaleAfter time.Duration
	// MaxCycles bounds Run. Zero means no bound.
	MaxCycles int
}

// DefaultConfig returns the car's stock settings with the goal at the origin.
func DefaultConfig() Config {
	return Config{
		GridSize:  100,
		Scan:      rangefinder.DefaultConfig(),
		Mapping:   mapping.DefaultConfig(),
		Proximity: override.DefaultProximityConfig(),
		Vision:    override.DefaultVisionConfig(),
		Motion: MotionConfig{
			DrivePower:    50,
			TurnPower:     50,
			DriveCmPerSec: 20,
			TurnDegPerSec: 90,
		},
		InflationCells:     4,
		MaxPlanRetries:     3,
		StepsPerPlan:       5,
		ReplanInterval:     5 * time.Second,
		Tick:               100 * time.Millisecond,
		GoalToleranceCells: 1,
		VisionStaleAfter:   10 * time.Second,
		MaxCycles:          5000,
	}
}

// Validate ensures all parts of the config are valid.
func (cfg *Config) Validate(path string) error {
	if cfg.GridSize < 2 {
		return goutils.NewConfigValidationError(path, errors.Errorf("grid_size must be at least 2, got %d", cfg.GridSize))
	}
	if err := cfg.Scan.Validate(fmt.Sprintf("%s.scan", path)); err != nil {
		return err
	}
	if err := cfg.Mapping.Validate(fmt.Sprintf("%s.mapping", path)); err != nil {
		return err
	}
	if err := cfg.Planner.Validate(fmt.Sprintf("%s.planner", path)); err != nil {
		return err
	}
	if err := cfg.Proximity.Validate(fmt.Sprintf("%s.proximity", path), cfg.Mapping.ObstacleThresholdCm); err != nil {
		return err
	}
	if err := cfg.Vision.Validate(fmt.Sprintf("%s.vision", path)); err != nil {
		return err
	}
	if err := cfg.Motion.Validate(fmt.Sprintf("%s.motion", path)); err != nil {
		return err
	}
	if cfg.MinInflationCells < 0 || cfg.InflationCells < cfg.MinInflationCells {
		return goutils.NewConfigValidationError(path, errors.Errorf(
			"inflation_cells %d must be at least min_inflation_cells %d and neither negative",
			cfg.InflationCells, cfg.MinInflationCells))
	}
	if cfg.MaxPlanRetries < 0 {
		return goutils.NewConfigValidationError(path, errors.New("max_plan_retries cannot be negative"))
	}
	if cfg.StepsPerPlan < 1 {
		return goutils.NewConfigValidationError(path, errors.New("steps_per_plan must be at least 1"))
	}
	if cfg.Tick <= 0 {
		return goutils.NewConfigValidationFieldRequiredError(path, "tick")
	}
	if cfg.ReplanInterval <= 0 {
		return goutils.NewConfigValidationFieldRequiredError(path, "replan_interval")
	}
	if cfg.GoalToleranceCells < 0 {
		return goutils.NewConfigValidationError(path, errors.New("goal_tolerance_cells cannot be negative"))
	}
	if cfg.MaxCycles < 0 {
		return goutils.NewConfigValidationError(path, errors.New("max_cycles cannot be negative"))
	}
	return nil
}

// A VisionSource hands out the latest detections without blocking. A *vision.Publisher is one.
type VisionSource interface {
	Latest() *vision.Snapshot
}

// Deps are the collaborators a Controller drives. Vision may be nil.
type Deps struct {
	Base     base.Base
	Servo    servo.Servo
	Sensor   rangefinder.Sensor
	Odometer movementsensor.Odometer
	Vision   VisionSource
}

func (deps *Deps) validate() error {
	switch {
	case deps.Base == nil:
		return errors.New("navigation requires a base")
	case deps.Servo == nil:
		return errors.New("navigation requires a servo")
	case deps.Sensor == nil:
		return errors.New("navigation requires a range sensor")
	case deps.Odometer == nil:
		return errors.New("navigation requires an odometer")
	}
	return nil
}

// A Service drives toward a goal. *Controller is the implementation.
type Service interface {
	Step(ctx context.Context) (State, error)
	Run(ctx context.Context) (*Result, error)
	Snapshot() *Snapshot
}
