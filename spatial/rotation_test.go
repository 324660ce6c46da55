package spatial

import (
	"math"
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"
	"gonum.org/v1/gonum/mat"
)

func matricesAlmostEqual(t *testing.T, a, b mat.Matrix, tol float64) {
	t.Helper()
	ar, ac := a.Dims()
	br, bc := b.Dims()
	test.That(t, ar, test.ShouldEqual, br)
	test.That(t, ac, test.ShouldEqual, bc)
	for i := 0; i < ar; i++ {
		for j := 0; j < ac; j++ {
			test.That(t, a.At(i, j), test.ShouldAlmostEqual, b.At(i, j), tol)
		}
	}
}

func TestRodriguesIdentity(t *testing.T) {
	m := RodriguesToMatrix(r3.Vector{})
	matricesAlmostEqual(t, m, identity3(), 1e-12)
	rv := MatrixToRodrigues(identity3())
	test.That(t, rv.Norm(), test.ShouldAlmostEqual, 0, 1e-12)
}

func TestRodriguesQuarterTurnZ(t *testing.T) {
	rv := r3.Vector{Z: math.Pi / 2}
	m := RodriguesToMatrix(rv)
	expected := mat.NewDense(3, 3, []float64{
		0, -1, 0,
		1, 0, 0,
		0, 0, 1,
	})
	matricesAlmostEqual(t, m, expected, 1e-12)
}

func TestRodriguesRoundTrip(t *testing.T) {
	for _, rv := range []r3.Vector{
		{X: 0.1, Y: -0.4, Z: 2.2},
		{X: math.Pi / 3},
		{Y: -1.5, Z: 0.01},
		{X: 1e-4, Y: 1e-5, Z: -1e-4},
	} {
		back := MatrixToRodrigues(RodriguesToMatrix(rv))
		test.That(t, back.X, test.ShouldAlmostEqual, rv.X, 1e-9)
		test.That(t, back.Y, test.ShouldAlmostEqual, rv.Y, 1e-9)
		test.That(t, back.Z, test.ShouldAlmostEqual, rv.Z, 1e-9)
	}
}

func TestRodriguesHalfTurn(t *testing.T) {
	// sin(theta) is zero at pi; the axis must still be recovered.
	rv := r3.Vector{X: math.Pi}
	back := MatrixToRodrigues(RodriguesToMatrix(rv))
	test.That(t, back.Norm(), test.ShouldAlmostEqual, math.Pi, 1e-6)
	// sign of the axis is ambiguous at pi
	test.That(t, math.Abs(back.X), test.ShouldAlmostEqual, math.Pi, 1e-6)
}

func TestQuaternionToMatrix(t *testing.T) {
	// 90 degrees about Z, scalar first
	s := math.Sqrt(2) / 2
	m, err := QuaternionToMatrix([]float64{s, 0, 0, s}, 0)
	test.That(t, err, test.ShouldBeNil)
	expected := RodriguesToMatrix(r3.Vector{Z: math.Pi / 2})
	matricesAlmostEqual(t, m, expected, 1e-12)

	// same rotation, scalar last (Vicon ordering)
	m2, err := QuaternionToMatrix([]float64{0, 0, s, s}, 3)
	test.That(t, err, test.ShouldBeNil)
	matricesAlmostEqual(t, m2, expected, 1e-12)
}

func TestQuaternionToMatrixNormalizes(t *testing.T) {
	m, err := QuaternionToMatrix([]float64{2, 0, 0, 0}, 0)
	test.That(t, err, test.ShouldBeNil)
	matricesAlmostEqual(t, m, identity3(), 1e-12)
}

func TestQuaternionToMatrixValidation(t *testing.T) {
	_, err := QuaternionToMatrix([]float64{1, 0, 0}, 0)
	test.That(t, err, test.ShouldNotBeNil)
	_, err = QuaternionToMatrix([]float64{1, 0, 0, 0}, 4)
	test.That(t, err, test.ShouldNotBeNil)
	_, err = QuaternionToMatrix([]float64{0, 0, 0, 0}, 0)
	test.That(t, err, test.ShouldNotBeNil)
}

func TestToObjectViewInvolution(t *testing.T) {
	r := RodriguesToMatrix(r3.Vector{X: 0.3, Y: -0.2, Z: 1.1})
	tv := r3.Vector{X: 1, Y: 2, Z: 3}
	r2, t2 := ToObjectView(r, tv)
	r3back, t3back := ToObjectView(r2, t2)
	matricesAlmostEqual(t, r3back, r, 1e-12)
	test.That(t, t3back.X, test.ShouldAlmostEqual, tv.X, 1e-12)
	test.That(t, t3back.Y, test.ShouldAlmostEqual, tv.Y, 1e-12)
	test.That(t, t3back.Z, test.ShouldAlmostEqual, tv.Z, 1e-12)
}

func TestRotateAxesPiAboutX(t *testing.T) {
	r := identity3()
	tv := r3.Vector{X: 1, Y: 2, Z: 3}
	rOut, tOut := RotateAxes(r, tv, math.Pi, 0, 0)
	expected := mat.NewDense(3, 3, []float64{
		1, 0, 0,
		0, -1, 0,
		0, 0, -1,
	})
	matricesAlmostEqual(t, rOut, expected, 1e-12)
	test.That(t, tOut.X, test.ShouldAlmostEqual, 1, 1e-12)
	test.That(t, tOut.Y, test.ShouldAlmostEqual, -2, 1e-12)
	test.That(t, tOut.Z, test.ShouldAlmostEqual, -3, 1e-12)
}

func TestRotateAxesComposesZYX(t *testing.T) {
	r := RodriguesToMatrix(r3.Vector{X: 0.2, Y: 0.1, Z: -0.4})
	tv := r3.Vector{X: -0.5, Y: 0.25, Z: 2}
	// applying X then Y then Z one at a time must equal the single call
	r1, t1 := RotateAxes(r, tv, 0.3, 0, 0)
	r1, t1 = RotateAxes(r1, t1, 0, -0.7, 0)
	r1, t1 = RotateAxes(r1, t1, 0, 0, 1.2)
	r2, t2 := RotateAxes(r, tv, 0.3, -0.7, 1.2)
	matricesAlmostEqual(t, r1, r2, 1e-12)
	test.That(t, t1.X, test.ShouldAlmostEqual, t2.X, 1e-12)
	test.That(t, t1.Y, test.ShouldAlmostEqual, t2.Y, 1e-12)
	test.That(t, t1.Z, test.ShouldAlmostEqual, t2.Z, 1e-12)
}
