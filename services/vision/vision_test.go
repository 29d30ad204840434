package vision_test

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"go.viam.com/test"
	"go.viam.com/utils/testutils"

	"github.com/hpalin2/picarnav/logging"
	"github.com/hpalin2/picarnav/services/vision"
	"github.com/hpalin2/picarnav/services/vision/fake"
	"github.com/hpalin2/picarnav/testutils/inject"
)

func TestNormalizeLabel(t *testing.T) {
	for input, expected := range map[string]string{
		"Stop_Sign":     "stop sign",
		"  PERSON ":     "person",
		"stop sign":     "stop sign",
		"traffic_light": "traffic light",
		"":              "",
	} {
		test.That(t, vision.NormalizeLabel(input), test.ShouldEqual, expected)
	}
}

func TestSnapshot(t *testing.T) {
	now := time.Unix(100, 0)
	snap := &vision.Snapshot{
		Captured: now,
		Detections: []vision.Detection{
			{Label: "Stop_Sign", Confidence: 0.9},
			{Label: "person", Confidence: 0.3},
			{Label: "cat", Confidence: 0.99},
			{Label: "stop sign", Confidence: 0.7},
		},
	}
	matching := snap.Matching([]string{"person", "stop sign"}, 0.5)
	test.That(t, matching, test.ShouldHaveLength, 2)
	test.That(t, matching[0].Label, test.ShouldEqual, "Stop_Sign")
	test.That(t, snap.Labels(), test.ShouldResemble, []string{"stop sign", "person", "cat"})

	test.That(t, snap.Stale(now.Add(time.Second), 2*time.Second), test.ShouldBeFalse)
	test.That(t, snap.Stale(now.Add(3*time.Second), 2*time.Second), test.ShouldBeTrue)

	atThreshold := &vision.Snapshot{Detections: []vision.Detection{{Label: "person", Confidence: 0.5}}}
	test.That(t, atThreshold.Matching([]string{"person"}, 0.5), test.ShouldBeEmpty)
	test.That(t, atThreshold.Matching([]string{"person"}, 0.49), test.ShouldHaveLength, 1)

	var missing *vision.Snapshot
	test.That(t, missing.Stale(now, time.Hour), test.ShouldBeTrue)
	test.That(t, missing.Matching([]string{"person"}, 0), test.ShouldBeEmpty)
}

func TestPublisherPoll(t *testing.T) {
	ctx := context.Background()
	mock := clock.NewMock()
	detector := fake.NewScriptedDetector(fake.Person(), nil)
	pub := vision.NewPublisher(detector, mock, time.Second, logging.NewTestLogger(t))
	test.That(t, pub.Latest(), test.ShouldBeNil)

	pub.Poll(ctx)
	first := pub.Latest()
	test.That(t, first.Seq, test.ShouldEqual, 1)
	test.That(t, first.Detections, test.ShouldHaveLength, 1)
	test.That(t, first.Detections[0].Time, test.ShouldEqual, mock.Now())

	mock.Add(time.Second)
	pub.Poll(ctx)
	test.That(t, pub.Latest().Seq, test.ShouldEqual, 2)
	test.That(t, pub.Latest().Detections, test.ShouldBeEmpty)

	detector.SetError(errors.New("camera unplugged"))
	pub.Poll(ctx)
	test.That(t, pub.Latest().Seq, test.ShouldEqual, 2)
	test.That(t, pub.Errors(), test.ShouldEqual, 1)
}

func TestPublisherBackground(t *testing.T) {
	detector := fake.NewScriptedDetector(fake.StopSign())
	pub := vision.NewPublisher(detector, clock.New(), 5*time.Millisecond, logging.NewTestLogger(t))
	pub.Start()
	defer pub.Close()

	testutils.WaitForAssertion(t, func(tb testing.TB) {
		tb.Helper()
		test.That(tb, pub.Latest(), test.ShouldNotBeNil)
		test.That(tb, pub.Latest().Seq, test.ShouldBeGreaterThanOrEqualTo, 2)
	})
	pub.Close()
	calls := detector.Calls()
	time.Sleep(20 * time.Millisecond)
	test.That(t, detector.Calls(), test.ShouldEqual, calls)
}

func TestRandomDetector(t *testing.T) {
	detector := fake.NewRandomDetector(rand.New(rand.NewSource(5)))
	people, signs := 0, 0
	for i := 0; i < 2000; i++ {
		detections, err := detector.Detect(context.Background())
		test.That(t, err, test.ShouldBeNil)
		for _, d := range detections {
			switch d.Label {
			case "person":
				people++
				test.That(t, d.Confidence, test.ShouldEqual, 0.85)
			case "stop sign":
				signs++
				test.That(t, d.Confidence, test.ShouldEqual, 0.90)
			}
		}
	}
	test.That(t, people, test.ShouldBeBetween, 120, 280)
	test.That(t, signs, test.ShouldBeBetween, 40, 160)
}

func TestPollIgnoresCanceledDetect(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	detector := &inject.Detector{DetectFunc: func(ctx context.Context) ([]vision.Detection, error) {
		cancel()
		return nil, ctx.Err()
	}}
	pub := vision.NewPublisher(detector, clock.NewMock(), time.Second, logging.NewTestLogger(t))
	pub.Poll(ctx)
	test.That(t, pub.Errors(), test.ShouldEqual, 0)
	test.That(t, pub.Latest(), test.ShouldBeNil)

	detector.DetectFunc = func(ctx context.Context) ([]vision.Detection, error) {
		return []vision.Detection{{Label: "Person", Confidence: 1}}, nil
	}
	pub.Poll(context.Background())
	test.That(t, pub.Latest().Labels(), test.ShouldResemble, []string{"person"})
}
