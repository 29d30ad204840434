package occupancy

import (
	"sync"
	"time"

	"github.com/bep/debounce"
	"go.uber.org/atomic"

	"github.com/hpalin2/picarnav/logging"
	"github.com/hpalin2/picarnav/spatialmath"
)

// An Autosaver writes a grid to disk shortly after the last of a burst of updates.
type Autosaver struct {
	grid      *Grid
	path      string
	logger    logging.Logger
	debounced func(f func())

	mu    sync.Mutex
	pose  *spatialmath.Pose
	dirty bool
	saves atomic.Int64
}

// NewAutosaver returns an Autosaver that saves grid to path once no update has been notified
// for quiet.
func NewAutosaver(grid *Grid, path string, quiet time.Duration, logger logging.Logger) *Autosaver {
	return &Autosaver{
		grid:      grid,
		path:      path,
		logger:    logger,
		debounced: debounce.New(quiet),
	}
}

// Notify records that the grid changed; pose, if non-nil, is saved alongside it.
func (as *Autosaver) Notify(pose *spatialmath.Pose) {
	as.mu.Lock()
	if pose != nil {
		p := *pose
		as.pose = &p
	}
	as.dirty = true
	as.mu.Unlock()
	as.debounced(as.save)
}

// Flush saves immediately if there are unsaved changes.
func (as *Autosaver) Flush() error {
	as.mu.Lock()
	defer as.mu.Unlock()
	return as.saveInLock()
}

// Saves is the number of completed writes.
func (as *Autosaver) Saves() int64 {
	return as.saves.Load()
}

func (as *Autosaver) save() {
	as.mu.Lock()
	defer as.mu.Unlock()
	if err := as.saveInLock(); err != nil {
		as.logger.Warnw("failed to autosave map", "path", as.path, "error", err)
	}
}

func (as *Autosaver) saveInLock() error {
	if !as.dirty {
		return nil
	}
	if err := as.grid.SaveFile(as.path, as.pose); err != nil {
		return err
	}
	as.dirty = false
	as.saves.Inc()
	as.logger.Debugw("saved map", "path", as.path)
	return nil
}
