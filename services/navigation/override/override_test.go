package override

import (
	"math/rand"
	"testing"
	"time"

	"go.viam.com/test"

	"github.com/hpalin2/picarnav/components/base"
	"github.com/hpalin2/picarnav/components/rangefinder"
	"github.com/hpalin2/picarnav/services/vision"
)

func TestProximityObserve(t *testing.T) {
	cfg := ProximityConfig{HardStopCm: 10}
	now := time.Unix(0, 0)
	var s ProximityState

	s = s.Observe(now, rangefinder.Sample{DistanceCm: 50, Valid: true}, cfg)
	test.That(t, s.Triggered, test.ShouldBeFalse)

	s = s.Observe(now, rangefinder.Sample{DistanceCm: 3}, cfg)
	test.That(t, s.Triggered, test.ShouldBeFalse)

	s = s.Observe(now.Add(time.Second), rangefinder.Sample{DistanceCm: 5, Valid: true}, cfg)
	test.That(t, s.Triggered, test.ShouldBeTrue)
	test.That(t, s.Since, test.ShouldEqual, now.Add(time.Second))

	s = s.Observe(now.Add(2*time.Second), rangefinder.Sample{DistanceCm: 4, Valid: true}, cfg)
	test.That(t, s.Since, test.ShouldEqual, now.Add(time.Second))
	test.That(t, s.DistanceCm, test.ShouldEqual, 4.)

	s = s.Observe(now, rangefinder.Sample{DistanceCm: 10, Valid: true}, cfg)
	test.That(t, s.Triggered, test.ShouldBeFalse)
}

func TestProximityValidate(t *testing.T) {
	cfg := DefaultProximityConfig()
	test.That(t, cfg.Validate("proximity", 80), test.ShouldBeNil)
	err := cfg.Validate("proximity", 20)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "obstacle threshold")
}

func TestChooseRecoveryTurn(t *testing.T) {
	sweep := func(samples ...rangefinder.Sample) *rangefinder.Sweep {
		return &rangefinder.Sweep{Samples: samples}
	}
	s := func(angle, d float64) rangefinder.Sample {
		return rangefinder.Sample{AngleDeg: angle, DistanceCm: d, Valid: true}
	}
	rng := rand.New(rand.NewSource(1))

	test.That(t, ChooseRecoveryTurn(sweep(s(-45, 20), s(45, 90)), rng), test.ShouldEqual, base.Left)
	test.That(t, ChooseRecoveryTurn(sweep(s(-45, 90), s(0, 500), s(45, 20)), rng), test.ShouldEqual, base.Right)
	test.That(t, ChooseRecoveryTurn(sweep(s(-45, 90)), rng), test.ShouldEqual, base.Right)
	// invalid samples do not count
	test.That(t, ChooseRecoveryTurn(sweep(s(-45, 30), rangefinder.Sample{AngleDeg: 45, DistanceCm: 300}), rng),
		test.ShouldEqual, base.Right)

	// ties follow the seeded generator
	tie := sweep(s(-45, 50), s(45, 50))
	seen := map[base.Direction]int{}
	for seed := int64(0); seed < 20; seed++ {
		a := ChooseRecoveryTurn(tie, rand.New(rand.NewSource(seed)))
		b := ChooseRecoveryTurn(tie, rand.New(rand.NewSource(seed)))
		test.That(t, a, test.ShouldEqual, b)
		seen[a]++
	}
	test.That(t, seen, test.ShouldHaveLength, 2)
	test.That(t, ChooseRecoveryTurn(nil, rand.New(rand.NewSource(0))), test.ShouldBeIn, base.Left, base.Right)
}

type snapshots struct {
	seq uint64
}

func (ss *snapshots) next(now time.Time, detections ...vision.Detection) *vision.Snapshot {
	ss.seq++
	return &vision.Snapshot{Detections: detections, Captured: now, Seq: ss.seq}
}

var person = vision.Detection{Label: "person", Confidence: 0.9}

func TestVisionStopsImmediately(t *testing.T) {
	cfg := DefaultVisionConfig()
	ss := &snapshots{}
	now := time.Unix(1000, 0)
	var s VisionState
	s = s.Observe(now, ss.next(now), cfg)
	test.That(t, s.Stopped, test.ShouldBeFalse)

	s = s.Observe(now, ss.next(now, vision.Detection{Label: "person", Confidence: 0.2}), cfg)
	test.That(t, s.Stopped, test.ShouldBeFalse)
	s = s.Observe(now, ss.next(now, vision.Detection{Label: "dog", Confidence: 0.9}), cfg)
	test.That(t, s.Stopped, test.ShouldBeFalse)

	s = s.Observe(now, ss.next(now, person), cfg)
	test.That(t, s.Stopped, test.ShouldBeTrue)
	test.That(t, s.Labels, test.ShouldResemble, []string{"person"})
	test.That(t, s.StoppedFor(now.Add(3*time.Second)), test.ShouldEqual, 3*time.Second)
}

func TestVisionFlickerHoldsStop(t *testing.T) {
	cfg := DefaultVisionConfig()
	test.That(t, cfg.ClearCycles, test.ShouldEqual, 5)
	ss := &snapshots{}
	now := time.Unix(1000, 0)
	var s VisionState
	for cycle := 0; cycle < 3; cycle++ {
		s = s.Observe(now, ss.next(now, person), cfg)
		test.That(t, s.Stopped, test.ShouldBeTrue)
		now = now.Add(time.Second)
		s = s.Observe(now, ss.next(now), cfg)
		test.That(t, s.Stopped, test.ShouldBeTrue)
		now = now.Add(time.Second)
	}
}

func TestVisionClearsAfterWindow(t *testing.T) {
	cfg := DefaultVisionConfig()
	ss := &snapshots{}
	now := time.Unix(1000, 0)
	var s VisionState
	s = s.Observe(now, ss.next(now, person), cfg)

	for i := 1; i <= 4; i++ {
		now = now.Add(time.Second)
		s = s.Observe(now, ss.next(now), cfg)
		test.That(t, s.Stopped, test.ShouldBeTrue)
		test.That(t, s.Clear, test.ShouldEqual, i)
	}

	// the fifth clear cycle ends the stop
	same := ss.next(now.Add(time.Second))
	now = now.Add(time.Second)
	s = s.Observe(now, same, cfg)
	test.That(t, s.Stopped, test.ShouldBeFalse)
	test.That(t, s.Clear, test.ShouldEqual, 0)
	test.That(t, s.LastSeq, test.ShouldEqual, same.Seq)
}

func TestVisionSameSnapshotCountsOnce(t *testing.T) {
	cfg := DefaultVisionConfig()
	ss := &snapshots{}
	now := time.Unix(1000, 0)
	var s VisionState
	s = s.Observe(now, ss.next(now, person), cfg)

	now = now.Add(100 * time.Millisecond)
	clear := ss.next(now)
	for tick := 0; tick < 10; tick++ {
		now = now.Add(100 * time.Millisecond)
		s = s.Observe(now, clear, cfg)
	}
	test.That(t, s.Clear, test.ShouldEqual, 1)
	test.That(t, s.Stopped, test.ShouldBeTrue)
}

func TestVisionStaleFeedEventuallyClears(t *testing.T) {
	cfg := DefaultVisionConfig()
	ss := &snapshots{}
	now := time.Unix(1000, 0)
	var s VisionState
	snap := ss.next(now, person)
	s = s.Observe(now, snap, cfg)

	// the detector stops publishing; the old sighting goes stale
	s = s.Observe(now.Add(1500*time.Millisecond), snap, cfg)
	test.That(t, s.Stopped, test.ShouldBeTrue)
	s = s.Observe(now.Add(2100*time.Millisecond), snap, cfg)
	test.That(t, s.Stopped, test.ShouldBeFalse)

	// a missing feed never stops the robot
	var fresh VisionState
	test.That(t, fresh.Observe(now, nil, cfg).Stopped, test.ShouldBeFalse)
}

func TestVisionStopSignHold(t *testing.T) {
	cfg := DefaultVisionConfig()
	cfg.ClearCycles = 1
	cfg.ClearAfter = 0
	ss := &snapshots{}
	now := time.Unix(1000, 0)
	var s VisionState
	s = s.Observe(now, ss.next(now, vision.Detection{Label: "Stop_Sign", Confidence: 0.95}), cfg)
	test.That(t, s.Stopped, test.ShouldBeTrue)
	test.That(t, s.HoldUntil, test.ShouldEqual, now.Add(2*time.Second))

	t1 := now.Add(time.Second)
	s = s.Observe(t1, ss.next(t1), cfg)
	test.That(t, s.Stopped, test.ShouldBeTrue)

	t2 := now.Add(2 * time.Second)
	s = s.Observe(t2, ss.next(t2), cfg)
	test.That(t, s.Stopped, test.ShouldBeFalse)

	// a person has no hold and clears as soon as the window allows
	s = s.Observe(t2, ss.next(t2, person), cfg)
	test.That(t, s.Stopped, test.ShouldBeTrue)
	t3 := t2.Add(100 * time.Millisecond)
	s = s.Observe(t3, ss.next(t3), cfg)
	test.That(t, s.Stopped, test.ShouldBeFalse)
}

func TestVisionValidate(t *testing.T) {
	cfg := DefaultVisionConfig()
	test.That(t, cfg.Validate("vision"), test.ShouldBeNil)
	cfg.ClearCycles = 0
	test.That(t, cfg.Validate("vision"), test.ShouldNotBeNil)
	cfg = DefaultVisionConfig()
	cfg.TriggerLabels = nil
	test.That(t, cfg.Validate("vision").Error(), test.ShouldContainSubstring, "trigger_labels")
}
