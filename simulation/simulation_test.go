package simulation

import (
	"context"
	"image"
	"math"
	"math/rand"
	"strings"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/golang/geo/r2"
	"go.viam.com/test"

	"github.com/hpalin2/picarnav/components/base"
	"github.com/hpalin2/picarnav/logging"
)

const blockWorld = `
....#....
..C.#..G.
....#....
`

func TestParseWorld(t *testing.T) {
	w, err := ParseWorld(strings.NewReader(strings.TrimPrefix(blockWorld, "\n")))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, w.Obstacles(), test.ShouldResemble, []image.Point{{2, -1}, {2, 0}, {2, 1}})
	goal, ok := w.Goal()
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, goal, test.ShouldResemble, image.Pt(5, 0))
	test.That(t, w.Occupied(image.Pt(2, 0)), test.ShouldBeTrue)
	test.That(t, w.Occupied(image.Pt(0, 0)), test.ShouldBeFalse)

	centred, err := ParseWorld(strings.NewReader("#..\n...\n..."))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, centred.Obstacles(), test.ShouldResemble, []image.Point{{-1, 1}})
	_, ok = centred.Goal()
	test.That(t, ok, test.ShouldBeFalse)

	for _, tc := range []struct {
		description string
		text        string
		expected    string
	}{
		{"empty", "", "empty"},
		{"two cars", "C.C", "second car"},
		{"bad glyph", "C.x", "unexpected"},
	} {
		t.Run(tc.description, func(t *testing.T) {
			_, err := ParseWorld(strings.NewReader(tc.text))
			test.That(t, err, test.ShouldNotBeNil)
			test.That(t, err.Error(), test.ShouldContainSubstring, tc.expected)
		})
	}
}

func TestRaycast(t *testing.T) {
	w := NewWorld(image.Pt(8, 0), image.Pt(0, 3))
	d, hit := w.Raycast(r2.Point{}, 0, 20)
	test.That(t, hit, test.ShouldBeTrue)
	test.That(t, d, test.ShouldAlmostEqual, 7.55, 1e-9)

	d, hit = w.Raycast(r2.Point{}, 90, 20)
	test.That(t, hit, test.ShouldBeTrue)
	test.That(t, d, test.ShouldAlmostEqual, 2.55, 1e-9)

	_, hit = w.Raycast(r2.Point{}, 180, 20)
	test.That(t, hit, test.ShouldBeFalse)
	_, hit = w.Raycast(r2.Point{}, 0, 5)
	test.That(t, hit, test.ShouldBeFalse)
}

func newTestRobot(t *testing.T, w *World) (*Robot, *clock.Mock) {
	t.Helper()
	mock := clock.NewMock()
	return NewRobot(w, DefaultConfig(), mock, nil, logging.NewTestLogger(t)), mock
}

func TestRobotDrives(t *testing.T) {
	ctx := context.Background()
	r, mock := newTestRobot(t, NewWorld())

	test.That(t, r.Forward(ctx, 50), test.ShouldBeNil)
	mock.Add(time.Second)
	test.That(t, r.Stop(ctx), test.ShouldBeNil)
	mock.Add(time.Second)
	pose := r.Pose()
	test.That(t, pose.Point.X, test.ShouldAlmostEqual, 4, 1e-6)
	test.That(t, pose.Point.Y, test.ShouldAlmostEqual, 0, 1e-6)

	d, err := r.Displacement(ctx)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, d.DistanceCm, test.ShouldAlmostEqual, 20, 1e-6)
	test.That(t, d.HeadingDeg, test.ShouldEqual, 0.)

	test.That(t, r.TurnInPlace(ctx, base.Left, 50), test.ShouldBeNil)
	mock.Add(time.Second)
	test.That(t, r.TurnInPlace(ctx, base.Right, 50), test.ShouldBeNil)
	mock.Add(500 * time.Millisecond)
	test.That(t, r.Backward(ctx, 50), test.ShouldBeNil)
	mock.Add(500 * time.Millisecond)
	test.That(t, r.Stop(ctx), test.ShouldBeNil)

	d, err = r.Displacement(ctx)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, d.HeadingDeg, test.ShouldAlmostEqual, 45, 1e-6)
	test.That(t, d.DistanceCm, test.ShouldAlmostEqual, -10, 1e-6)
	pose = r.Pose()
	test.That(t, pose.Heading, test.ShouldAlmostEqual, 45, 1e-6)
	test.That(t, pose.Point.X, test.ShouldAlmostEqual, 4-2*math.Sqrt2/2*1, 1e-6)

	d, err = r.Displacement(ctx)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, d.DistanceCm, test.ShouldEqual, 0.)
	test.That(t, r.Trail()[0], test.ShouldResemble, image.Pt(0, 0))

	test.That(t, r.Forward(ctx, 101), test.ShouldNotBeNil)
}

func TestRobotCollides(t *testing.T) {
	ctx := context.Background()
	r, mock := newTestRobot(t, NewWorld(image.Pt(3, 0)))
	test.That(t, r.Forward(ctx, 50), test.ShouldBeNil)
	mock.Add(5 * time.Second)
	pose := r.Pose()
	test.That(t, pose.Cell(), test.ShouldResemble, image.Pt(2, 0))
	test.That(t, r.Collisions(), test.ShouldEqual, 1)
	test.That(t, r.Trail(), test.ShouldResemble, []image.Point{{0, 0}, {1, 0}, {2, 0}})
}

func TestRobotSensor(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestRobot(t, NewWorld(image.Pt(0, -6), image.Pt(10, 0)))

	reading, err := r.ReadDistance(ctx)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, reading.Valid, test.ShouldBeTrue)
	test.That(t, reading.DistanceCm, test.ShouldAlmostEqual, 9.55*5, 1e-6)

	// positive servo angles look right
	test.That(t, r.SetAngle(ctx, 90), test.ShouldBeNil)
	reading, err = r.ReadDistance(ctx)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, reading.DistanceCm, test.ShouldAlmostEqual, 5.55*5, 1e-6)

	test.That(t, r.SetAngle(ctx, -90), test.ShouldBeNil)
	reading, err = r.ReadDistance(ctx)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, reading.Valid, test.ShouldBeFalse)
	angle, err := r.Angle(ctx)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, angle, test.ShouldEqual, -90.)

	test.That(t, r.SetAngle(ctx, 91), test.ShouldNotBeNil)

	canceled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = r.ReadDistance(canceled)
	test.That(t, err, test.ShouldNotBeNil)
}

func TestRobotSensorNoise(t *testing.T) {
	ctx := context.Background()
	cfg := DefaultConfig()
	cfg.NoiseCm = 3
	r := NewRobot(NewWorld(image.Pt(10, 0)), cfg, clock.NewMock(), rand.New(rand.NewSource(3)), logging.NewTestLogger(t))
	for i := 0; i < 50; i++ {
		reading, err := r.ReadDistance(ctx)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, reading.DistanceCm, test.ShouldBeBetween, 9.55*5-3.01, 9.55*5+3.01)
	}
}
