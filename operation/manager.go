// Package operation runs bounded, preemptible motion segments.
package operation

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"go.uber.org/multierr"
)

// Segment is one bounded motion command in flight.
type Segment struct {
	ID      uuid.UUID
	Kind    string
	Started time.Time
	Ticks   int

	cancel context.CancelFunc
}

// Manager ensures only one segment runs at a time. Starting a segment cancels the previous one.
// Nested segments (started with a context that already carries a segment) join their parent.
type Manager struct {
	mu      sync.Mutex
	clock   clock.Clock
	current *Segment
}

// NewManager returns a Manager that stamps segments with clk.
func NewManager(clk clock.Clock) *Manager {
	if clk == nil {
		clk = clock.New()
	}
	return &Manager{clock: clk}
}

type segmentCtxKey byte

const segmentKey = segmentCtxKey(iota)

// FromContext returns the segment carried by ctx, if any.
func FromContext(ctx context.Context) *Segment {
	seg, _ := ctx.Value(segmentKey).(*Segment)
	return seg
}

// New registers a new segment, cancelling any other running one. The returned function must be
// called when the segment ends.
func (m *Manager) New(ctx context.Context, kind string, ticks int) (context.Context, func()) {
	if FromContext(ctx) != nil {
		return ctx, func() {}
	}

	m.mu.Lock()
	m.cancelInLock(ctx)
	seg := &Segment{ID: uuid.New(), Kind: kind, Started: m.clock.Now(), Ticks: ticks}
	ctx = context.WithValue(ctx, segmentKey, seg)
	ctx, seg.cancel = context.WithCancel(ctx)
	m.current = seg
	m.mu.Unlock()

	return ctx, func() {
		seg.cancel()
		m.mu.Lock()
		if m.current == seg {
			m.current = nil
		}
		m.mu.Unlock()
	}
}

// CancelRunning cancels the running segment unless ctx belongs to it.
func (m *Manager) CancelRunning(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cancelInLock(ctx)
}

// Current returns the running segment or nil.
func (m *Manager) Current() *Segment {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// OpRunning returns if there is a segment running.
func (m *Manager) OpRunning() bool {
	return m.Current() != nil
}

func (m *Manager) cancelInLock(ctx context.Context) {
	seg := m.current
	if seg == nil || FromContext(ctx) == seg {
		return
	}
	seg.cancel()
	m.current = nil
}

// Outcome is how a segment ended.
type Outcome int

const (
	// Completed means every tick of the segment ran.
	Completed Outcome = iota
	// Preempted means a per-tick check asked to stop.
	Preempted
	// Canceled means the context ended or another segment took over.
	Canceled
)

func (o Outcome) String() string {
	switch o {
	case Completed:
		return "completed"
	case Preempted:
		return "preempted"
	case Canceled:
		return "canceled"
	}
	return "unknown"
}

// Motion is a bounded segment: Start issues the fire-and-forget command, Check runs after every
// tick and returns false to preempt, Stop always runs at the end.
type Motion struct {
	Kind  string
	Ticks int
	// Duration, when set, replaces Ticks: the segment lasts exactly Duration with the last tick
	// cut short.
	Duration time.Duration
	Start func(ctx context.Context) error
	Check func(ctx context.Context) (bool, error)
	Stop  func(ctx context.Context) error
}

// Run executes m paced by pacer. Stop is called with a context that outlives the segment so a
// canceled segment still halts the actuator.
func (m *Manager) Run(ctx context.Context, pacer Pacer, motion Motion) (outcome Outcome, err error) {
	ticks := motion.Ticks
	remaining := motion.Duration
	if remaining > 0 {
		ticks = TicksFor(remaining, pacer.Tick())
	}
	segCtx, done := m.New(ctx, motion.Kind, ticks)
	defer done()
	defer func() {
		if motion.Stop != nil {
			err = multierr.Combine(err, motion.Stop(context.WithoutCancel(ctx)))
		}
	}()

	if motion.Start != nil {
		if err := motion.Start(segCtx); err != nil {
			return Canceled, err
		}
	}
	for i := 0; i < ticks; i++ {
		wait := pacer.Tick()
		if motion.Duration > 0 {
			wait = min(wait, remaining)
			remaining -= wait
		}
		if !pacer.Sleep(segCtx, wait) {
			return Canceled, ctx.Err()
		}
		if motion.Check == nil {
			continue
		}
		keepGoing, err := motion.Check(segCtx)
		if err != nil {
			return Preempted, err
		}
		if !keepGoing {
			return Preempted, nil
		}
	}
	return Completed, nil
}

// TicksFor returns how many ticks cover d, at least one.
func TicksFor(d, tick time.Duration) int {
	if tick <= 0 || d <= tick {
		return 1
	}
	n := int(d / tick)
	if d%tick != 0 {
		n++
	}
	return n
}
