package navigation

import (
	"image"
	"time"

	"github.com/google/uuid"

	"github.com/hpalin2/picarnav/motionplan"
	"github.com/hpalin2/picarnav/occupancy"
	"github.com/hpalin2/picarnav/services/navigation/override"
	"github.com/hpalin2/picarnav/spatialmath"
)

// Session is everything one navigation attempt knows. It is owned by its Controller.
type Session struct {
	ID   uuid.UUID
	Grid *occupancy.Grid
	Pose spatialmath.Pose
	Goal image.Point

	// Plan is the path being followed, nil when none is held. Cursor indexes the plan cell the
	// car is on.
	Plan      *motionplan.Path
	Cursor    int
	PlannedAt time.Time
	// StepsTaken counts cells driven since Plan was made.
	StepsTaken int
	Inflation  int
	// Attempts counts consecutive failed plans.
	Attempts int
}

func newSession(grid *occupancy.Grid, pose spatialmath.Pose, goal image.Point, inflation int) *Session {
	return &Session{ID: uuid.New(), Grid: grid, Pose: pose, Goal: goal, Inflation: inflation}
}

// Remaining is the rest of the held plan starting at the car's cell.
func (s *Session) Remaining() []image.Point {
	if s.Plan == nil || s.Cursor >= len(s.Plan.Cells) {
		return nil
	}
	return append([]image.Point(nil), s.Plan.Cells[s.Cursor:]...)
}

func (s *Session) dropPlan() {
	s.Plan = nil
	s.Cursor = 0
	s.StepsTaken = 0
}

// Snapshot is a point in time copy of a controller, safe to hold across steps. Grid is shared
// and may keep changing; take Grid.Snapshot for a frozen copy.
type Snapshot struct {
	SessionID uuid.UUID
	State     State
	Pose      spatialmath.Pose
	Goal      image.Point
	Path      []image.Point
	Inflation int
	Counts    occupancy.Counts
	Proximity override.ProximityState
	Vision    override.VisionState
	Grid      *occupancy.Grid
	Stats     Stats
}

// Stats counts what a controller has done.
type Stats struct {
	Cycles         int
	Scans          int
	Plans          int
	FailedPlans    int
	Cells          int
	ProximityStops int
	VisionStops    int
}

// Result is how a Run ended.
type Result struct {
	SessionID uuid.UUID
	State     State
	Pose      spatialmath.Pose
	Elapsed   time.Duration
	Stats     Stats
}
