package vision

import (
	"testing"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"go.viam.com/test"
)

func referencePoints() []r3.Vector {
	return []r3.Vector{
		{X: 0, Y: 0, Z: 0},
		{X: 1, Y: 0, Z: 0},
		{X: 1, Y: 1, Z: 0},
		{X: 0, Y: 1, Z: 0},
		{X: 0.5, Y: 0.5, Z: 1},
	}
}

func TestSessionConfirm(t *testing.T) {
	s := NewSession(referencePoints())
	for i := 0; i < 4; i++ {
		test.That(t, s.AddPoint(r2.Point{X: float64(i), Y: float64(i)}), test.ShouldBeNil)
	}
	test.That(t, s.MarkNotVisible(), test.ShouldBeNil)

	img, obj, err := s.Confirm()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, img, test.ShouldHaveLength, 4)
	test.That(t, obj, test.ShouldHaveLength, 4)
	test.That(t, obj[3], test.ShouldResemble, r3.Vector{X: 0, Y: 1, Z: 0})

	// confirmed sessions accept no further input
	test.That(t, s.AddPoint(r2.Point{}), test.ShouldNotBeNil)
}

func TestSessionSkipKeepsPairing(t *testing.T) {
	s := NewSession(referencePoints())
	test.That(t, s.MarkNotVisible(), test.ShouldBeNil)
	for i := 1; i < 5; i++ {
		test.That(t, s.AddPoint(r2.Point{X: float64(i * 10)}), test.ShouldBeNil)
	}
	img, obj, err := s.Confirm()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, img, test.ShouldHaveLength, 4)
	// the skipped first object point must not appear
	test.That(t, obj[0], test.ShouldResemble, r3.Vector{X: 1, Y: 0, Z: 0})
}

func TestSessionRemoveLast(t *testing.T) {
	s := NewSession(referencePoints())
	test.That(t, s.AddPoint(r2.Point{X: 1}), test.ShouldBeNil)
	test.That(t, s.AddPoint(r2.Point{X: 2}), test.ShouldBeNil)
	test.That(t, s.RemoveLast(), test.ShouldBeNil)
	test.That(t, s.AddPoint(r2.Point{X: 3}), test.ShouldBeNil)
	for i := 0; i < 2; i++ {
		test.That(t, s.AddPoint(r2.Point{X: float64(4 + i)}), test.ShouldBeNil)
	}
	img, _, err := s.Confirm()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, img[1].X, test.ShouldEqual, 3.)
}

func TestSessionTooFewPoints(t *testing.T) {
	s := NewSession(referencePoints())
	test.That(t, s.AddPoint(r2.Point{}), test.ShouldBeNil)
	_, _, err := s.Confirm()
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "need at least 4")
}

func TestSessionCancel(t *testing.T) {
	s := NewSession(referencePoints())
	test.That(t, s.AddPoint(r2.Point{}), test.ShouldBeNil)
	s.Cancel()
	_, _, err := s.Confirm()
	test.That(t, err, test.ShouldEqual, ErrLabelingCancelled)
}

func TestCheckerboardObjectPoints(t *testing.T) {
	board := Checkerboard{Rows: 2, Cols: 3, SquareSize: 0.05}
	pts := board.ObjectPoints()
	test.That(t, pts, test.ShouldHaveLength, 6)
	// row index varies fastest, scaled by square size, all on z = 0
	test.That(t, pts[0], test.ShouldResemble, r3.Vector{})
	test.That(t, pts[1], test.ShouldResemble, r3.Vector{X: 0.05})
	test.That(t, pts[2], test.ShouldResemble, r3.Vector{Y: 0.05})
	for _, p := range pts {
		test.That(t, p.Z, test.ShouldEqual, 0.)
	}
}
