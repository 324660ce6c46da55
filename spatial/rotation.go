// Package spatial converts between the rotation, translation and axis
// conventions used by motion capture vendors and the single canonical
// convention used internally: object space, right handed, Z-up, meters,
// rotations encoded as Rodrigues (R3 axis-angle) vectors.
package spatial

import (
	"math"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/num/quat"
)

const defaultAngleEpsilon = 1e-12

// RodriguesToMatrix converts an R3 axis-angle vector, whose norm is the
// rotation angle, to a 3x3 rotation matrix. The zero vector maps to identity.
func RodriguesToMatrix(rv r3.Vector) *mat.Dense {
	theta := rv.Norm()
	out := identity3()
	if theta < defaultAngleEpsilon {
		return out
	}
	axis := rv.Mul(1. / theta)
	k := skew(axis)
	var k2 mat.Dense
	k2.Mul(k, k)

	var sinTerm, cosTerm mat.Dense
	sinTerm.Scale(math.Sin(theta), k)
	cosTerm.Scale(1-math.Cos(theta), &k2)
	out.Add(out, &sinTerm)
	out.Add(out, &cosTerm)
	return out
}

// MatrixToRodrigues converts a 3x3 rotation matrix to an R3 axis-angle vector.
// The identity matrix maps to the zero vector.
func MatrixToRodrigues(m *mat.Dense) r3.Vector {
	trace := m.At(0, 0) + m.At(1, 1) + m.At(2, 2)
	cosTheta := (trace - 1.) / 2.
	// guard against round-off pushing the argument outside [-1, 1]
	cosTheta = math.Max(-1, math.Min(1, cosTheta))
	theta := math.Acos(cosTheta)

	switch {
	case theta < defaultAngleEpsilon:
		return r3.Vector{}
	case math.Pi-theta < 1e-6:
		// sin(theta) vanishes near pi, recover the axis from R+I instead.
		// Any column of R+I is parallel to the axis; take the one with the
		// largest diagonal entry for stability. The sign is ambiguous at pi.
		col := 0
		for i := 1; i < 3; i++ {
			if m.At(i, i) > m.At(col, col) {
				col = i
			}
		}
		axis := r3.Vector{
			X: m.At(0, col),
			Y: m.At(1, col),
			Z: m.At(2, col),
		}
		axis.X += delta(0, col)
		axis.Y += delta(1, col)
		axis.Z += delta(2, col)
		return axis.Normalize().Mul(theta)
	default:
		scale := theta / (2. * math.Sin(theta))
		return r3.Vector{
			X: (m.At(2, 1) - m.At(1, 2)) * scale,
			Y: (m.At(0, 2) - m.At(2, 0)) * scale,
			Z: (m.At(1, 0) - m.At(0, 1)) * scale,
		}
	}
}

// QuaternionToMatrix converts a unit quaternion to a 3x3 rotation matrix.
// scalarIndex selects which of the 4 input components holds the scalar part,
// since vendors disagree on the ordering (Vicon stores it last).
func QuaternionToMatrix(q []float64, scalarIndex int) (*mat.Dense, error) {
	if len(q) != 4 {
		return nil, errors.Errorf("quaternion must have 4 components, got %d", len(q))
	}
	if scalarIndex < 0 || scalarIndex > 3 {
		return nil, errors.Errorf("quaternion scalar index must be in [0,3], got %d", scalarIndex)
	}
	vec := make([]float64, 0, 3)
	for i, c := range q {
		if i != scalarIndex {
			vec = append(vec, c)
		}
	}
	number := quat.Number{Real: q[scalarIndex], Imag: vec[0], Jmag: vec[1], Kmag: vec[2]}
	norm := quat.Abs(number)
	if norm < defaultAngleEpsilon {
		return nil, errors.New("cannot convert zero-norm quaternion to a rotation")
	}
	number = quat.Scale(1./norm, number)

	w, x, y, z := number.Real, number.Imag, number.Jmag, number.Kmag
	return mat.NewDense(3, 3, []float64{
		1 - 2*(y*y+z*z), 2 * (x*y - w*z), 2 * (x*z + w*y),
		2 * (x*y + w*z), 1 - 2*(x*x+z*z), 2 * (y*z - w*x),
		2 * (x*z - w*y), 2 * (y*z + w*x), 1 - 2*(x*x+y*y),
	}), nil
}

// ToObjectView inverts a rigid transform, turning the world-to-camera form
// found in vendor exports into the canonical camera-to-world (object view)
// form: R' = Rᵀ, t' = -Rᵀ·t.
func ToObjectView(r *mat.Dense, t r3.Vector) (*mat.Dense, r3.Vector) {
	var rt mat.Dense
	rt.CloneFrom(r.T())
	return &rt, mulVec(&rt, t).Mul(-1)
}

// RotateAxes composes an additional fixed rotation, given as angles about the
// X, Y and Z axes, into an extrinsic transform: (A·R, A·t) with A = Rz·Ry·Rx.
// Needed because some vendors point the camera's forward axis the other way.
func RotateAxes(r *mat.Dense, t r3.Vector, angX, angY, angZ float64) (*mat.Dense, r3.Vector) {
	rx := mat.NewDense(3, 3, []float64{
		1, 0, 0,
		0, math.Cos(angX), -math.Sin(angX),
		0, math.Sin(angX), math.Cos(angX),
	})
	ry := mat.NewDense(3, 3, []float64{
		math.Cos(angY), 0, math.Sin(angY),
		0, 1, 0,
		-math.Sin(angY), 0, math.Cos(angY),
	})
	rz := mat.NewDense(3, 3, []float64{
		math.Cos(angZ), -math.Sin(angZ), 0,
		math.Sin(angZ), math.Cos(angZ), 0,
		0, 0, 1,
	})
	var a mat.Dense
	a.Mul(rz, ry)
	a.Mul(&a, rx)

	var rOut mat.Dense
	rOut.Mul(&a, r)
	return &rOut, mulVec(&a, t)
}

func identity3() *mat.Dense {
	return mat.NewDense(3, 3, []float64{
		1, 0, 0,
		0, 1, 0,
		0, 0, 1,
	})
}

func skew(v r3.Vector) *mat.Dense {
	return mat.NewDense(3, 3, []float64{
		0, -v.Z, v.Y,
		v.Z, 0, -v.X,
		-v.Y, v.X, 0,
	})
}

func mulVec(m *mat.Dense, v r3.Vector) r3.Vector {
	return r3.Vector{
		X: m.At(0, 0)*v.X + m.At(0, 1)*v.Y + m.At(0, 2)*v.Z,
		Y: m.At(1, 0)*v.X + m.At(1, 1)*v.Y + m.At(1, 2)*v.Z,
		Z: m.At(2, 0)*v.X + m.At(2, 1)*v.Y + m.At(2, 2)*v.Z,
	}
}

func delta(i, j int) float64 {
	if i == j {
		return 1
	}
	return 0
}
