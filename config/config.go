// Package config defines the JSON configuration of a picarnav robot and reads it from disk.
package config

import (
	"encoding/json"
	"fmt"
	"image"
	"time"

	"github.com/pkg/errors"
	goutils "go.viam.com/utils"

	"github.com/hpalin2/picarnav/components/rangefinder"
	"github.com/hpalin2/picarnav/logging"
	"github.com/hpalin2/picarnav/mapping"
	"github.com/hpalin2/picarnav/motionplan"
	"github.com/hpalin2/picarnav/services/navigation"
	"github.com/hpalin2/picarnav/services/navigation/override"
	"github.com/hpalin2/picarnav/simulation"
)

// rootPath prefixes the dotted paths in validation errors.
const rootPath = "config"

// Duration is a time.Duration written in JSON as a string such as "250ms".
type Duration time.Duration

// MarshalJSON writes the duration in time.Duration.String form.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// UnmarshalJSON parses a duration string.
func (d *Duration) UnmarshalJSON(data []byte) error {
	var text string
	if err := json.Unmarshal(data, &text); err != nil {
		return errors.Errorf("duration must be a string like \"100ms\", got %s", data)
	}
	parsed, err := time.ParseDuration(text)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// Config is the whole robot configuration. Sections left out of the file keep their defaults.
type Config struct {
	ConfigFilePath string `json:"-"`

	Grid       GridConfig       `json:"grid"`
	Scan       ScanConfig       `json:"scan"`
	Mapping    MappingConfig    `json:"mapping"`
	Planner    PlannerConfig    `json:"planner"`
	Controller ControllerConfig `json:"controller"`
	Proximity  ProximityConfig  `json:"proximity"`
	Vision     VisionConfig     `json:"vision"`
	Motion     MotionConfig     `json:"motion"`
	Simulation SimulationConfig `json:"simulation"`
	Log        LogConfig        `json:"log"`
}

// GridConfig sizes the occupancy grid and where it is saved.
type GridConfig struct {
	Size       int     `json:"size"`
	CellSizeCm float64 `json:"cell_size_cm"`
	// AutosavePath, when set, is rewritten AutosaveQuiet after the grid stops changing.
	AutosavePath  string   `json:"autosave_path,omitempty"`
	AutosaveQuiet Duration `json:"autosave_quiet"`
}

// Validate ensures all parts of the config are valid.
func (cfg *GridConfig) Validate(path string) error {
	if cfg.Size < 2 {
		return goutils.NewConfigValidationError(path, errors.Errorf("size must be at least 2, got %d", cfg.Size))
	}
	if cfg.CellSizeCm <= 0 {
		return goutils.NewConfigValidationFieldRequiredError(path, "cell_size_cm")
	}
	if cfg.AutosaveQuiet < 0 {
		return goutils.NewConfigValidationError(path, errors.New("autosave_quiet cannot be negative"))
	}
	return nil
}

// ScanConfig is the sweep of the servo mounted range sensor.
type ScanConfig struct {
	MinAngleDeg            float64  `json:"min_angle_deg"`
	MaxAngleDeg            float64  `json:"max_angle_deg"`
	StepDeg                float64  `json:"step_deg"`
	SettleTime             Duration `json:"settle_time"`
	MinRangeCm             float64  `json:"min_range_cm"`
	SensorLimitCm          float64  `json:"sensor_limit_cm"`
	ServoClockwisePositive bool     `json:"servo_clockwise_positive"`
}

// MappingConfig controls how readings become grid cells.
type MappingConfig struct {
	ObstacleThresholdCm    float64 `json:"obstacle_threshold_cm"`
	MaxRangeCm             float64 `json:"max_range_cm"`
	Interpolate            bool    `json:"interpolate"`
	MaxInterpolationGapDeg float64 `json:"max_interpolation_gap_deg,omitempty"`
}

// PlannerConfig tunes the A* search.
type PlannerConfig struct {
	Heuristic     string `json:"heuristic"`
	AvoidUnknown  bool   `json:"avoid_unknown"`
	MaxExpansions int    `json:"max_expansions,omitempty"`
}

// ControllerConfig holds the navigation loop's goal, timing and replanning policy.
type ControllerConfig struct {
	Goal               [2]int   `json:"goal"`
	InflationCells     int      `json:"inflation_cells"`
	MinInflationCells  int      `json:"min_inflation_cells"`
	MaxPlanRetries     int      `json:"max_plan_retries"`
	StepsPerPlan       int      `json:"steps_per_plan"`
	ReplanInterval     Duration `json:"replan_interval"`
	Tick               Duration `json:"tick"`
	GoalToleranceCells float64  `json:"goal_tolerance_cells"`
	VisionStaleAfter   Duration `json:"vision_stale_after"`
	MaxCycles          int      `json:"max_cycles"`
}

// ProximityConfig is the reactive stop and its recovery manoeuvre.
type ProximityConfig struct {
	HardStopCm      float64 `json:"hard_stop_cm"`
	ReverseCm       float64 `json:"reverse_cm"`
	RecoveryTurnDeg float64 `json:"recovery_turn_deg"`
}

// VisionConfig is the detection driven stop. HoldFor entries merge with the defaults; a hold of
// "0s" removes one.
type VisionConfig struct {
	TriggerLabels []string            `json:"trigger_labels"`
	MinConfidence float64             `json:"min_confidence"`
	ClearCycles   int                 `json:"clear_cycles"`
	ClearAfter    Duration            `json:"clear_after"`
	Freshness     Duration            `json:"freshness"`
	HoldFor       map[string]Duration `json:"hold_for,omitempty"`
	// Interval is how often the detector is polled.
	Interval Duration `json:"interval"`
}

// MotionConfig holds drive powers and the speeds they produce.
type MotionConfig struct {
	DrivePower    int     `json:"drive_power"`
	TurnPower     int     `json:"turn_power"`
	DriveCmPerSec float64 `json:"drive_cm_per_sec"`
	TurnDegPerSec float64 `json:"turn_deg_per_sec"`
}

// Simulated detectors.
const (
	DetectorNone   = "none"
	DetectorRandom = "random"
)

// SimulationConfig describes the simulated robot used in place of hardware.
type SimulationConfig struct {
	// Speeds at full power.
	DriveCmPerSec float64 `json:"drive_cm_per_sec"`
	TurnDegPerSec float64 `json:"turn_deg_per_sec"`
	NoiseCm       int     `json:"noise_cm"`
	Detector      string  `json:"detector"`
}

// Validate ensures all parts of the config are valid.
func (cfg *SimulationConfig) Validate(path string) error {
	if cfg.DriveCmPerSec <= 0 {
		return goutils.NewConfigValidationFieldRequiredError(path, "drive_cm_per_sec")
	}
	if cfg.TurnDegPerSec <= 0 {
		return goutils.NewConfigValidationFieldRequiredError(path, "turn_deg_per_sec")
	}
	if cfg.NoiseCm < 0 {
		return goutils.NewConfigValidationError(path, errors.New("noise_cm cannot be negative"))
	}
	switch cfg.Detector {
	case "", DetectorNone, DetectorRandom:
	default:
		return goutils.NewConfigValidationError(path, errors.Errorf("unknown detector %q", cfg.Detector))
	}
	return nil
}

// Default returns the stock configuration.
func Default() *Config {
	nav := navigation.DefaultConfig()
	sim := simulation.DefaultConfig()

	hold := make(map[string]Duration, len(nav.Vision.HoldFor))
	for label, d := range nav.Vision.HoldFor {
		hold[label] = Duration(d)
	}

	return &Config{
		Grid: GridConfig{
			Size:          nav.GridSize,
			CellSizeCm:    nav.Mapping.CellSizeCm,
			AutosaveQuiet: Duration(time.Second),
		},
		Scan: ScanConfig{
			MinAngleDeg:            nav.Scan.MinAngleDeg,
			MaxAngleDeg:            nav.Scan.MaxAngleDeg,
			StepDeg:                nav.Scan.StepDeg,
			SettleTime:             Duration(nav.Scan.SettleTime),
			MinRangeCm:             nav.Scan.MinRangeCm,
			SensorLimitCm:          nav.Scan.SensorLimitCm,
			ServoClockwisePositive: nav.Scan.ServoClockwisePositive,
		},
		Mapping: MappingConfig{
			ObstacleThresholdCm:    nav.Mapping.ObstacleThresholdCm,
			MaxRangeCm:             nav.Mapping.MaxRangeCm,
			Interpolate:            nav.Mapping.Interpolate,
			MaxInterpolationGapDeg: nav.Mapping.MaxInterpolationGapDeg,
		},
		Planner: PlannerConfig{
			Heuristic:     nav.Planner.Heuristic.String(),
			AvoidUnknown:  nav.Planner.AvoidUnknown,
			MaxExpansions: nav.Planner.MaxExpansions,
		},
		Controller: ControllerConfig{
			Goal:               [2]int{nav.Goal.X, nav.Goal.Y},
			InflationCells:     nav.InflationCells,
			MinInflationCells:  nav.MinInflationCells,
			MaxPlanRetries:     nav.MaxPlanRetries,
			StepsPerPlan:       nav.StepsPerPlan,
			ReplanInterval:     Duration(nav.ReplanInterval),
			Tick:               Duration(nav.Tick),
			GoalToleranceCells: nav.GoalToleranceCells,
			VisionStaleAfter:   Duration(nav.VisionStaleAfter),
			MaxCycles:          nav.MaxCycles,
		},
		Proximity: ProximityConfig{
			HardStopCm:      nav.Proximity.HardStopCm,
			ReverseCm:       nav.Proximity.ReverseCm,
			RecoveryTurnDeg: nav.Proximity.RecoveryTurnDeg,
		},
		Vision: VisionConfig{
			TriggerLabels: append([]string(nil), nav.Vision.TriggerLabels...),
			MinConfidence: nav.Vision.MinConfidence,
			ClearCycles:   nav.Vision.ClearCycles,
			ClearAfter:    Duration(nav.Vision.ClearAfter),
			Freshness:     Duration(nav.Vision.Freshness),
			HoldFor:       hold,
			Interval:      Duration(nav.Tick),
		},
		Motion: MotionConfig{
			DrivePower:    nav.Motion.DrivePower,
			TurnPower:     nav.Motion.TurnPower,
			DriveCmPerSec: nav.Motion.DriveCmPerSec,
			TurnDegPerSec: nav.Motion.TurnDegPerSec,
		},
		Simulation: SimulationConfig{
			DriveCmPerSec: sim.DriveCmPerSec,
			TurnDegPerSec: sim.TurnDegPerSec,
			NoiseCm:       sim.NoiseCm,
			Detector:      DetectorNone,
		},
		Log: LogConfig{Level: "info"},
	}
}

// Navigation converts the file form into a controller configuration.
func (c *Config) Navigation() (navigation.Config, error) {
	heuristic, err := motionplan.HeuristicFromString(c.Planner.Heuristic)
	if err != nil {
		return navigation.Config{}, goutils.NewConfigValidationError(rootPath+".planner", err)
	}

	var hold map[string]time.Duration
	if len(c.Vision.HoldFor) > 0 {
		hold = make(map[string]time.Duration, len(c.Vision.HoldFor))
		for label, d := range c.Vision.HoldFor {
			if d != 0 {
				hold[label] = time.Duration(d)
			}
		}
	}

	return navigation.Config{
		Goal:     image.Pt(c.Controller.Goal[0], c.Controller.Goal[1]),
		GridSize: c.Grid.Size,
		Scan: rangefinder.Config{
			MinAngleDeg:            c.Scan.MinAngleDeg,
			MaxAngleDeg:            c.Scan.MaxAngleDeg,
			StepDeg:                c.Scan.StepDeg,
			SettleTime:             time.Duration(c.Scan.SettleTime),
			MinRangeCm:             c.Scan.MinRangeCm,
			SensorLimitCm:          c.Scan.SensorLimitCm,
			ServoClockwisePositive: c.Scan.ServoClockwisePositive,
		},
		Mapping: mapping.Config{
			CellSizeCm:             c.Grid.CellSizeCm,
			ObstacleThresholdCm:    c.Mapping.ObstacleThresholdCm,
			MaxRangeCm:             c.Mapping.MaxRangeCm,
			ScanStepDeg:            c.Scan.StepDeg,
			Interpolate:            c.Mapping.Interpolate,
			MaxInterpolationGapDeg: c.Mapping.MaxInterpolationGapDeg,
		},
		Planner: motionplan.Options{
			Heuristic:     heuristic,
			AvoidUnknown:  c.Planner.AvoidUnknown,
			MaxExpansions: c.Planner.MaxExpansions,
		},
		Proximity: override.ProximityConfig{
			HardStopCm:      c.Proximity.HardStopCm,
			ReverseCm:       c.Proximity.ReverseCm,
			RecoveryTurnDeg: c.Proximity.RecoveryTurnDeg,
		},
		Vision: override.VisionConfig{
			TriggerLabels: append([]string(nil), c.Vision.TriggerLabels...),
			MinConfidence: c.Vision.MinConfidence,
			ClearCycles:   c.Vision.ClearCycles,
			ClearAfter:    time.Duration(c.Vision.ClearAfter),
			Freshness:     time.Duration(c.Vision.Freshness),
			HoldFor:       hold,
		},
		Motion: navigation.MotionConfig{
			DrivePower:    c.Motion.DrivePower,
			TurnPower:     c.Motion.TurnPower,
			DriveCmPerSec: c.Motion.DriveCmPerSec,
			TurnDegPerSec: c.Motion.TurnDegPerSec,
		},
		InflationCells:     c.Controller.InflationCells,
		MinInflationCells:  c.Controller.MinInflationCells,
		MaxPlanRetries:     c.Controller.MaxPlanRetries,
		StepsPerPlan:       c.Controller.StepsPerPlan,
		ReplanInterval:     time.Duration(c.Controller.ReplanInterval),
		Tick:               time.Duration(c.Controller.Tick),
		GoalToleranceCells: c.Controller.GoalToleranceCells,
		VisionStaleAfter:   time.Duration(c.Controller.VisionStaleAfter),
		MaxCycles:          c.Controller.MaxCycles,
	}, nil
}

// Robot returns the simulated robot this config describes.
func (c *Config) Robot() simulation.Config {
	return simulation.Config{
		CellSizeCm:             c.Grid.CellSizeCm,
		DriveCmPerSec:          c.Simulation.DriveCmPerSec,
		TurnDegPerSec:          c.Simulation.TurnDegPerSec,
		SensorLimitCm:          c.Scan.SensorLimitCm,
		NoiseCm:                c.Simulation.NoiseCm,
		ServoClockwisePositive: c.Scan.ServoClockwisePositive,
	}
}

// Validate ensures all parts of the config are valid.
func (c *Config) Validate() error {
	if err := c.Grid.Validate(rootPath + ".grid"); err != nil {
		return err
	}
	if err := c.Simulation.Validate(rootPath + ".simulation"); err != nil {
		return err
	}
	if err := c.Log.Validate(rootPath + ".log"); err != nil {
		return err
	}
	if c.Vision.Interval <= 0 {
		return goutils.NewConfigValidationFieldRequiredError(rootPath+".vision", "interval")
	}
	for label, d := range c.Vision.HoldFor {
		if d < 0 {
			return goutils.NewConfigValidationError(rootPath+".vision.hold_for",
				errors.Errorf("hold for %q cannot be negative", label))
		}
	}
	nav, err := c.Navigation()
	if err != nil {
		return err
	}
	return nav.Validate(rootPath)
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level string `json:"level"`
	// File, when its path is set, receives a copy of every log line.
	File   LogFileConfig          `json:"file"`
	Levels []logging.LevelConfig `json:"levels,omitempty"`
}

// LogFileConfig is a size-rotated log file.
type LogFileConfig struct {
	Path       string `json:"path,omitempty"`
	MaxSizeMB  int    `json:"max_size_mb,omitempty"`
	MaxBackups int    `json:"max_backups,omitempty"`
}

// Validate ensures all parts of the config are valid.
func (cfg *LogConfig) Validate(path string) error {
	if _, err := logging.LevelFromString(cfg.Level); err != nil {
		return goutils.NewConfigValidationError(path, err)
	}
	if cfg.File.MaxSizeMB < 0 || cfg.File.MaxBackups < 0 {
		return goutils.NewConfigValidationError(fmt.Sprintf("%s.file", path),
			errors.New("max_size_mb and max_backups cannot be negative"))
	}
	for i, lc := range cfg.Levels {
		if err := lc.Validate(); err != nil {
			return goutils.NewConfigValidationError(fmt.Sprintf("%s.levels.%d", path, i), err)
		}
	}
	return nil
}

// Apply sets logger to the configured level, adds the file appender and applies the per-logger
// levels. debug forces the root level to debug. The returned appender is nil without a file and
// should be synced on exit.
func (cfg *LogConfig) Apply(logger logging.Logger, debug bool) (*logging.FileAppender, error) {
	level, err := logging.LevelFromString(cfg.Level)
	if err != nil {
		return nil, err
	}
	if debug {
		level = logging.DEBUG
	}
	logger.SetLevel(level)

	var file *logging.FileAppender
	if cfg.File.Path != "" {
		file = logging.NewFileAppender(cfg.File.Path, cfg.File.MaxSizeMB, cfg.File.MaxBackups)
		logger.AddAppender(file)
	}
	if err := logging.ApplyLevels(cfg.Levels); err != nil {
		return file, err
	}
	logger.Debugw("log level initialized", "level", level, "file", cfg.File.Path)
	return file, nil
}
