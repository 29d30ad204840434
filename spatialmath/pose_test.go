package spatialmath

import (
	"image"
	"testing"

	"go.viam.com/test"
)

func TestProject(t *testing.T) {
	p := NewPose(0, 0, 0)
	ahead := p.Project(0, 10)
	test.That(t, ahead.X, test.ShouldAlmostEqual, 10)
	test.That(t, ahead.Y, test.ShouldAlmostEqual, 0)

	left := p.Project(90, 5)
	test.That(t, left.X, test.ShouldAlmostEqual, 0)
	test.That(t, left.Y, test.ShouldAlmostEqual, 5)

	turned := NewPose(1, 1, 90)
	right := turned.Project(-90, 3)
	test.That(t, right.X, test.ShouldAlmostEqual, 4)
	test.That(t, right.Y, test.ShouldAlmostEqual, 1)
}

func TestAdvanceRotatesThenTranslates(t *testing.T) {
	p := NewPose(0, 0, 0).Advance(10, 90)
	test.That(t, p.Heading, test.ShouldAlmostEqual, 90)
	test.That(t, p.Point.X, test.ShouldAlmostEqual, 0)
	test.That(t, p.Point.Y, test.ShouldAlmostEqual, 10)
	test.That(t, p.Cell(), test.ShouldResemble, image.Pt(0, 10))

	back := p.Advance(-4, 0)
	test.That(t, back.Point.Y, test.ShouldAlmostEqual, 6)

	spun := p.Advance(0, -270)
	test.That(t, spun.Heading, test.ShouldAlmostEqual, 180)
}

func TestClampAndHeading(t *testing.T) {
	bounds := image.Rect(-50, -50, 50, 50)
	p := NewPose(80, -70, 0).Clamp(bounds)
	test.That(t, p.Point.X, test.ShouldAlmostEqual, 49)
	test.That(t, p.Point.Y, test.ShouldAlmostEqual, -50)

	origin := NewPose(0, 0, 0)
	test.That(t, origin.HeadingTo(image.Pt(0, -3)), test.ShouldAlmostEqual, 270)
	test.That(t, origin.HeadingTo(image.Pt(-2, 0)), test.ShouldAlmostEqual, 180)
	test.That(t, origin.DistanceTo(image.Pt(3, 4)), test.ShouldAlmostEqual, 5)
}
