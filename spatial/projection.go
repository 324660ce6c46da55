package spatial

import (
	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"
)

// ProjectionMatrix assembles the 3x4 pinhole projection matrix
// P = [K|0] · [[R, t], [0 0 0 1]] from a 3x3 camera matrix and an extrinsic
// pose given as a Rodrigues vector and a translation.
func ProjectionMatrix(k *mat.Dense, rotation, translation r3.Vector) *mat.Dense {
	var kh mat.Dense
	kh.Augment(k, mat.NewDense(3, 1, nil))

	r := RodriguesToMatrix(rotation)
	var rt mat.Dense
	rt.Augment(r, mat.NewDense(3, 1, []float64{translation.X, translation.Y, translation.Z}))
	var h mat.Dense
	h.Stack(&rt, mat.NewDense(1, 4, []float64{0, 0, 0, 1}))

	p := mat.NewDense(3, 4, nil)
	p.Mul(&kh, &h)
	return p
}

// ProjectPoint reprojects a homogeneous 3D point q = (x, y, z, 1) through a
// 3x4 projection matrix. A point on or behind the camera's focal plane makes
// the denominator vanish; the resulting non-finite value is returned as is,
// never trapped, so callers can treat it as "not visible in this view".
func ProjectPoint(p *mat.Dense, q [4]float64) (float64, float64) {
	row := func(i int) float64 {
		return p.At(i, 0)*q[0] + p.At(i, 1)*q[1] + p.At(i, 2)*q[2] + p.At(i, 3)*q[3]
	}
	w := row(2)
	return row(0) / w, row(1) / w
}

// ProjectPoints reprojects a slice of 3D points through one projection
// matrix.
func ProjectPoints(p *mat.Dense, pts []r3.Vector) []r2.Point {
	out := make([]r2.Point, len(pts))
	for i, pt := range pts {
		x, y := ProjectPoint(p, [4]float64{pt.X, pt.Y, pt.Z, 1})
		out[i] = r2.Point{X: x, Y: y}
	}
	return out
}
