package operation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"go.viam.com/test"
)

func TestManager(t *testing.T) {
	ctx := context.Background()
	mgr := NewManager(clock.NewMock())

	t.Run("nested segment does not cancel parent", func(t *testing.T) {
		ctx1, close1 := mgr.New(ctx, "forward", 1)
		defer close1()
		ctx2, close2 := mgr.New(ctx1, "inner", 1)
		defer close2()
		test.That(t, ctx1.Err(), test.ShouldBeNil)
		test.That(t, FromContext(ctx2), test.ShouldEqual, FromContext(ctx1))
	})

	t.Run("new segment cancels the running one", func(t *testing.T) {
		ctx1, close1 := mgr.New(ctx, "forward", 1)
		defer close1()
		first := mgr.Current()
		test.That(t, first.Kind, test.ShouldEqual, "forward")

		_, close2 := mgr.New(ctx, "turn", 1)
		defer close2()
		test.That(t, ctx1.Err(), test.ShouldNotBeNil)
		test.That(t, mgr.Current().Kind, test.ShouldEqual, "turn")
		test.That(t, mgr.Current().ID, test.ShouldNotEqual, first.ID)
	})

	t.Run("done clears the current segment", func(t *testing.T) {
		_, done := mgr.New(ctx, "reverse", 2)
		test.That(t, mgr.OpRunning(), test.ShouldBeTrue)
		done()
		test.That(t, mgr.OpRunning(), test.ShouldBeFalse)
	})

	t.Run("cancel running from outside", func(t *testing.T) {
		segCtx, done := mgr.New(ctx, "forward", 1)
		defer done()
		mgr.CancelRunning(ctx)
		test.That(t, segCtx.Err(), test.ShouldNotBeNil)
		test.That(t, mgr.OpRunning(), test.ShouldBeFalse)
	})
}

type recorder struct {
	mu     sync.Mutex
	calls  []string
	checks int
}

func (r *recorder) add(call string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, call)
}

func TestRun(t *testing.T) {
	ctx := context.Background()
	mock := clock.NewMock()
	pacer := NewSteppedPacer(mock, 100*time.Millisecond)
	mgr := NewManager(mock)

	t.Run("runs every tick then stops", func(t *testing.T) {
		rec := &recorder{}
		start := mock.Now()
		outcome, err := mgr.Run(ctx, pacer, Motion{
			Kind:  "forward",
			Ticks: 3,
			Start: func(ctx context.Context) error { rec.add("start"); return nil },
			Check: func(ctx context.Context) (bool, error) { rec.checks++; return true, nil },
			Stop:  func(ctx context.Context) error { rec.add("stop"); return nil },
		})
		test.That(t, err, test.ShouldBeNil)
		test.That(t, outcome, test.ShouldEqual, Completed)
		test.That(t, rec.calls, test.ShouldResemble, []string{"start", "stop"})
		test.That(t, rec.checks, test.ShouldEqual, 3)
		test.That(t, mock.Now().Sub(start), test.ShouldEqual, 300*time.Millisecond)
		test.That(t, mgr.OpRunning(), test.ShouldBeFalse)
	})

	t.Run("check preempts within the tick", func(t *testing.T) {
		rec := &recorder{}
		outcome, err := mgr.Run(ctx, pacer, Motion{
			Kind:  "forward",
			Ticks: 10,
			Check: func(ctx context.Context) (bool, error) {
				rec.checks++
				return rec.checks < 2, nil
			},
			Stop: func(ctx context.Context) error { rec.add("stop"); return nil },
		})
		test.That(t, err, test.ShouldBeNil)
		test.That(t, outcome, test.ShouldEqual, Preempted)
		test.That(t, rec.checks, test.ShouldEqual, 2)
		test.That(t, rec.calls, test.ShouldResemble, []string{"stop"})
	})

	t.Run("duration cuts the last tick short", func(t *testing.T) {
		checks := 0
		start := mock.Now()
		outcome, err := mgr.Run(ctx, pacer, Motion{
			Kind:     "forward",
			Duration: 250 * time.Millisecond,
			Check:    func(ctx context.Context) (bool, error) { checks++; return true, nil },
		})
		test.That(t, err, test.ShouldBeNil)
		test.That(t, outcome, test.ShouldEqual, Completed)
		test.That(t, checks, test.ShouldEqual, 3)
		test.That(t, mock.Now().Sub(start), test.ShouldEqual, 250*time.Millisecond)
	})

	t.Run("stop error is combined", func(t *testing.T) {
		outcome, err := mgr.Run(ctx, pacer, Motion{
			Kind:  "turn",
			Ticks: 1,
			Stop:  func(ctx context.Context) error { return errors.New("motor stuck") },
		})
		test.That(t, outcome, test.ShouldEqual, Completed)
		test.That(t, err, test.ShouldBeError, errors.New("motor stuck"))
	})

	t.Run("canceled context still stops", func(t *testing.T) {
		rec := &recorder{}
		cancelCtx, cancel := context.WithCancel(ctx)
		cancel()
		outcome, err := mgr.Run(cancelCtx, pacer, Motion{
			Kind:  "forward",
			Ticks: 5,
			Stop:  func(ctx context.Context) error { rec.add("stop"); return ctx.Err() },
		})
		test.That(t, outcome, test.ShouldEqual, Canceled)
		test.That(t, err, test.ShouldBeError, context.Canceled)
		test.That(t, rec.calls, test.ShouldResemble, []string{"stop"})
	})
}

func TestTicksFor(t *testing.T) {
	tick := 100 * time.Millisecond
	test.That(t, TicksFor(0, tick), test.ShouldEqual, 1)
	test.That(t, TicksFor(100*time.Millisecond, tick), test.ShouldEqual, 1)
	test.That(t, TicksFor(101*time.Millisecond, tick), test.ShouldEqual, 2)
	test.That(t, TicksFor(time.Second, tick), test.ShouldEqual, 10)
	test.That(t, TicksFor(time.Second, 0), test.ShouldEqual, 1)
}

func TestClockPacer(t *testing.T) {
	mock := clock.NewMock()
	pacer := NewPacer(mock, time.Second)
	test.That(t, pacer.Tick(), test.ShouldEqual, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	test.That(t, pacer.Wait(ctx), test.ShouldBeFalse)

	realPacer := NewPacer(clock.New(), time.Millisecond)
	test.That(t, realPacer.Wait(context.Background()), test.ShouldBeTrue)
	test.That(t, realPacer.Sleep(context.Background(), 0), test.ShouldBeTrue)
}

func TestSteppedPacerSleep(t *testing.T) {
	mock := clock.NewMock()
	pacer := NewSteppedPacer(mock, 100*time.Millisecond)
	start := mock.Now()
	test.That(t, pacer.Sleep(context.Background(), 250*time.Millisecond), test.ShouldBeTrue)
	test.That(t, mock.Now().Sub(start), test.ShouldEqual, 250*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	test.That(t, pacer.Sleep(ctx, time.Second), test.ShouldBeFalse)
	test.That(t, mock.Now().Sub(start), test.ShouldEqual, 250*time.Millisecond)
}
