package spatial

import (
	"math"
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"
	"gonum.org/v1/gonum/mat"
)

func TestProjectionMatrix(t *testing.T) {
	k := mat.NewDense(3, 3, []float64{
		100, 0, 10,
		0, 100, 10,
		0, 0, 1,
	})
	p := ProjectionMatrix(k, r3.Vector{}, r3.Vector{Z: 5})
	rows, cols := p.Dims()
	test.That(t, rows, test.ShouldEqual, 3)
	test.That(t, cols, test.ShouldEqual, 4)

	// identity rotation: the left 3x3 block is K and the last column is K*t
	test.That(t, p.At(0, 0), test.ShouldAlmostEqual, 100, 1e-12)
	test.That(t, p.At(0, 3), test.ShouldAlmostEqual, 50, 1e-12)
	test.That(t, p.At(2, 3), test.ShouldAlmostEqual, 5, 1e-12)
}

func TestProjectPoint(t *testing.T) {
	k := mat.NewDense(3, 3, []float64{
		100, 0, 10,
		0, 100, 10,
		0, 0, 1,
	})
	p := ProjectionMatrix(k, r3.Vector{}, r3.Vector{Z: 5})

	x, y := ProjectPoint(p, [4]float64{0, 0, 0, 1})
	test.That(t, x, test.ShouldAlmostEqual, 10, 1e-9)
	test.That(t, y, test.ShouldAlmostEqual, 10, 1e-9)

	x, y = ProjectPoint(p, [4]float64{1, -1, 5, 1})
	test.That(t, x, test.ShouldAlmostEqual, 20, 1e-9)
	test.That(t, y, test.ShouldAlmostEqual, 0, 1e-9)

	// zero depth divides out to non-finite, it must not be masked
	x, y = ProjectPoint(p, [4]float64{0, 0, -5, 1})
	test.That(t, math.IsInf(x, 0) || math.IsNaN(x), test.ShouldBeTrue)
	test.That(t, math.IsInf(y, 0) || math.IsNaN(y), test.ShouldBeTrue)
}

func TestProjectPointRotated(t *testing.T) {
	k := mat.NewDense(3, 3, []float64{
		100, 0, 0,
		0, 100, 0,
		0, 0, 1,
	})
	// quarter turn about z maps world x onto camera y
	p := ProjectionMatrix(k, r3.Vector{Z: math.Pi / 2}, r3.Vector{Z: 2})
	x, y := ProjectPoint(p, [4]float64{0.5, 0, 0, 1})
	test.That(t, x, test.ShouldAlmostEqual, 0, 1e-9)
	test.That(t, y, test.ShouldAlmostEqual, 25, 1e-9)
}

func TestProjectPoints(t *testing.T) {
	k := mat.NewDense(3, 3, []float64{
		100, 0, 10,
		0, 100, 10,
		0, 0, 1,
	})
	p := ProjectionMatrix(k, r3.Vector{}, r3.Vector{Z: 5})
	pts := ProjectPoints(p, []r3.Vector{{}, {X: 1, Y: -1, Z: 5}})
	test.That(t, pts, test.ShouldHaveLength, 2)
	test.That(t, pts[0].X, test.ShouldAlmostEqual, 10, 1e-9)
	test.That(t, pts[1].X, test.ShouldAlmostEqual, 20, 1e-9)
	test.That(t, pts[1].Y, test.ShouldAlmostEqual, 0, 1e-9)
}
