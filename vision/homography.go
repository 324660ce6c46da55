package vision

import (
	"context"
	"image"
	"math"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/LempereurMat/pose2sim/spatial"
)

// HomographyKernel is a self-contained calibration numerics kernel built on
// homography estimation. It fits focal lengths from planar board views with
// the principal point held at the image center and distortion held at zero,
// and solves poses from planar or full 3D correspondences.
//
// It does not detect checkerboards; DetectCheckerboard always reports
// ErrNoCheckerboard so that callers fall back to manual labeling or cached
// parameters.
type HomographyKernel struct{}

// DetectCheckerboard implements Kernel. This kernel carries no corner
// detector.
func (k *HomographyKernel) DetectCheckerboard(context.Context, image.Image, Checkerboard) ([]r2.Point, error) {
	return nil, errors.Wrap(ErrNoCheckerboard, "homography kernel has no corner detector")
}

// FitCameraMatrix implements Kernel. Each view contributes two linear
// constraints on (1/fx^2, 1/fy^2) from the orthonormality of the board plane's
// rotation columns; at least two views are required. Distortion coefficients
// come back zero and the principal point sits at the image center regardless
// of flags.
func (k *HomographyKernel) FitCameraMatrix(
	_ context.Context,
	objectPoints [][]r3.Vector,
	imagePoints [][]r2.Point,
	width, height float64,
	_ FitFlag,
) (*mat.Dense, []float64, float64, error) {
	if len(objectPoints) != len(imagePoints) {
		return nil, nil, 0, errors.Errorf("got %d object point sets but %d image point sets",
			len(objectPoints), len(imagePoints))
	}
	if len(objectPoints) < 2 {
		return nil, nil, 0, errors.Errorf("focal fit needs at least 2 board views, got %d", len(objectPoints))
	}
	cx, cy := width/2, height/2

	homs := make([]*mat.Dense, len(objectPoints))
	for v := range objectPoints {
		// center the image points so the unknown matrix is diag(fx, fy, 1)
		centered := make([]r2.Point, len(imagePoints[v]))
		for i, p := range imagePoints[v] {
			centered[i] = r2.Point{X: p.X - cx, Y: p.Y - cy}
		}
		h, err := planeHomography(objectPoints[v], centered)
		if err != nil {
			return nil, nil, 0, errors.Wrapf(err, "view %d", v)
		}
		homs[v] = h
	}

	// h1' w h2 = 0 and h1' w h1 = h2' w h2, with w = diag(a, b, 1),
	// a = 1/fx^2, b = 1/fy^2
	a := mat.NewDense(2*len(homs), 2, nil)
	rhs := mat.NewVecDense(2*len(homs), nil)
	for v, h := range homs {
		h11, h12 := h.At(0, 0), h.At(0, 1)
		h21, h22 := h.At(1, 0), h.At(1, 1)
		h31, h32 := h.At(2, 0), h.At(2, 1)
		a.Set(2*v, 0, h11*h12)
		a.Set(2*v, 1, h21*h22)
		rhs.SetVec(2*v, -h31*h32)
		a.Set(2*v+1, 0, h11*h11-h12*h12)
		a.Set(2*v+1, 1, h21*h21-h22*h22)
		rhs.SetVec(2*v+1, -(h31*h31 - h32*h32))
	}
	var sol mat.VecDense
	if err := sol.SolveVec(a, rhs); err != nil {
		return nil, nil, 0, errors.Wrap(err, "degenerate board views")
	}
	if sol.AtVec(0) <= 0 || sol.AtVec(1) <= 0 {
		return nil, nil, 0, errors.New("board views do not constrain the focal lengths")
	}
	fx := 1 / math.Sqrt(sol.AtVec(0))
	fy := 1 / math.Sqrt(sol.AtVec(1))

	intrinsics := mat.NewDense(3, 3, []float64{
		fx, 0, cx,
		0, fy, cy,
		0, 0, 1,
	})

	var sum float64
	var n int
	for v, h := range homs {
		rot, trans, err := poseFromHomography(fx, fy, h)
		if err != nil {
			return nil, nil, 0, errors.Wrapf(err, "view %d", v)
		}
		for i, obj := range objectPoints[v] {
			px, py, ok := projectThrough(fx, fy, cx, cy, rot, trans, obj)
			if !ok {
				continue
			}
			dx := px - imagePoints[v][i].X
			dy := py - imagePoints[v][i].Y
			sum += dx*dx + dy*dy
			n++
		}
	}
	var residual float64
	if n > 0 {
		residual = math.Sqrt(sum / float64(n))
	}
	return intrinsics, []float64{0, 0, 0, 0}, residual, nil
}

// SolvePose implements Kernel. Planar correspondence sets (constant z) go
// through homography decomposition; general 3D sets go through a direct
// linear transform of the full projection matrix. Distortion is ignored.
func (k *HomographyKernel) SolvePose(
	_ context.Context,
	objectPoints []r3.Vector,
	imagePoints []r2.Point,
	intrinsics *mat.Dense,
	_ []float64,
) (r3.Vector, r3.Vector, error) {
	if len(objectPoints) != len(imagePoints) {
		return r3.Vector{}, r3.Vector{}, errors.Errorf("got %d object points but %d image points",
			len(objectPoints), len(imagePoints))
	}
	fx, fy := intrinsics.At(0, 0), intrinsics.At(1, 1)
	cx, cy := intrinsics.At(0, 2), intrinsics.At(1, 2)
	centered := make([]r2.Point, len(imagePoints))
	for i, p := range imagePoints {
		centered[i] = r2.Point{X: p.X - cx, Y: p.Y - cy}
	}

	var rot *mat.Dense
	var trans r3.Vector
	if planar(objectPoints) {
		if len(objectPoints) < 4 {
			return r3.Vector{}, r3.Vector{}, errors.Errorf("planar pose needs at least 4 points, got %d", len(objectPoints))
		}
		h, err := planeHomography(objectPoints, centered)
		if err != nil {
			return r3.Vector{}, r3.Vector{}, err
		}
		if rot, trans, err = poseFromHomography(fx, fy, h); err != nil {
			return r3.Vector{}, r3.Vector{}, err
		}
		// planeHomography drops z, so the decomposed translation absorbs the
		// plane offset along the rotated z axis; take it back out
		if z := objectPoints[0].Z; z != 0 {
			trans = r3.Vector{
				X: trans.X - rot.At(0, 2)*z,
				Y: trans.Y - rot.At(1, 2)*z,
				Z: trans.Z - rot.At(2, 2)*z,
			}
		}
	} else {
		if len(objectPoints) < 6 {
			return r3.Vector{}, r3.Vector{}, errors.Errorf("pose needs at least 6 non-planar points, got %d", len(objectPoints))
		}
		var err error
		if rot, trans, err = poseFromDLT(fx, fy, objectPoints, centered); err != nil {
			return r3.Vector{}, r3.Vector{}, err
		}
	}
	return spatial.MatrixToRodrigues(rot), trans, nil
}

// planar reports whether all points share one z value, the board-at-z plane
// case.
func planar(pts []r3.Vector) bool {
	if len(pts) == 0 {
		return false
	}
	z := pts[0].Z
	for _, p := range pts[1:] {
		if math.Abs(p.Z-z) > 1e-9 {
			return false
		}
	}
	return true
}

// planeHomography estimates the 3x3 homography mapping (x, y, 1) on the board
// plane to centered image coordinates, with Hartley normalization on both
// sides. The z coordinate of the object points is ignored.
func planeHomography(objectPoints []r3.Vector, imagePoints []r2.Point) (*mat.Dense, error) {
	n := len(objectPoints)
	if n < 4 {
		return nil, errors.Errorf("homography needs at least 4 correspondences, got %d", n)
	}
	obj2 := make([]r2.Point, n)
	for i, p := range objectPoints {
		obj2[i] = r2.Point{X: p.X, Y: p.Y}
	}
	tObj, normObj := normalize2D(obj2)
	tImg, normImg := normalize2D(imagePoints)

	a := mat.NewDense(2*n, 9, nil)
	for i := 0; i < n; i++ {
		x, y := normObj[i].X, normObj[i].Y
		u, v := normImg[i].X, normImg[i].Y
		a.SetRow(2*i, []float64{-x, -y, -1, 0, 0, 0, u * x, u * y, u})
		a.SetRow(2*i+1, []float64{0, 0, 0, -x, -y, -1, v * x, v * y, v})
	}
	h, err := smallestSingularVector(a)
	if err != nil {
		return nil, err
	}
	hn := mat.NewDense(3, 3, h)

	// denormalize: H = Timg^-1 * Hn * Tobj
	var tImgInv mat.Dense
	if err := tImgInv.Inverse(tImg); err != nil {
		return nil, errors.Wrap(err, "degenerate image normalization")
	}
	var out mat.Dense
	out.Mul(&tImgInv, hn)
	out.Mul(&out, tObj)
	if math.Abs(out.At(2, 2)) > 1e-12 {
		out.Scale(1/out.At(2, 2), &out)
	}
	return &out, nil
}

// normalize2D returns the similarity transform moving the centroid to the
// origin with mean distance sqrt(2), and the transformed points.
func normalize2D(pts []r2.Point) (*mat.Dense, []r2.Point) {
	var mx, my float64
	for _, p := range pts {
		mx += p.X
		my += p.Y
	}
	mx /= float64(len(pts))
	my /= float64(len(pts))
	var meanDist float64
	for _, p := range pts {
		meanDist += math.Hypot(p.X-mx, p.Y-my)
	}
	meanDist /= float64(len(pts))
	s := 1.0
	if meanDist > 1e-12 {
		s = math.Sqrt2 / meanDist
	}
	t := mat.NewDense(3, 3, []float64{
		s, 0, -s * mx,
		0, s, -s * my,
		0, 0, 1,
	})
	out := make([]r2.Point, len(pts))
	for i, p := range pts {
		out[i] = r2.Point{X: s * (p.X - mx), Y: s * (p.Y - my)}
	}
	return t, out
}

func smallestSingularVector(a *mat.Dense) ([]float64, error) {
	// full SVD: with a minimal correspondence set the null vector is not in
	// the thin factorization
	var svd mat.SVD
	if !svd.Factorize(a, mat.SVDFull) {
		return nil, errors.New("singular value decomposition failed")
	}
	var v mat.Dense
	svd.VTo(&v)
	_, cols := v.Dims()
	out := make([]float64, cols)
	for i := range out {
		out[i] = v.At(i, cols-1)
	}
	return out, nil
}

// poseFromHomography decomposes H = K [r1 r2 t] for K = diag(fx, fy, 1),
// returning the orthonormalized rotation and the translation. The sign is
// fixed so the board sits in front of the camera.
func poseFromHomography(fx, fy float64, h *mat.Dense) (*mat.Dense, r3.Vector, error) {
	// K^-1 H
	m := mat.NewDense(3, 3, nil)
	for j := 0; j < 3; j++ {
		m.Set(0, j, h.At(0, j)/fx)
		m.Set(1, j, h.At(1, j)/fy)
		m.Set(2, j, h.At(2, j))
	}
	c1 := r3.Vector{X: m.At(0, 0), Y: m.At(1, 0), Z: m.At(2, 0)}
	c2 := r3.Vector{X: m.At(0, 1), Y: m.At(1, 1), Z: m.At(2, 1)}
	scale := 2 / (c1.Norm() + c2.Norm())
	if math.IsInf(scale, 0) || math.IsNaN(scale) || scale == 0 {
		return nil, r3.Vector{}, errors.New("degenerate homography")
	}
	if m.At(2, 2)*scale < 0 {
		scale = -scale
	}
	c1 = c1.Mul(scale)
	c2 = c2.Mul(scale)
	c3 := c1.Cross(c2)
	trans := r3.Vector{X: m.At(0, 2) * scale, Y: m.At(1, 2) * scale, Z: m.At(2, 2) * scale}

	rot, err := nearestRotation(mat.NewDense(3, 3, []float64{
		c1.X, c2.X, c3.X,
		c1.Y, c2.Y, c3.Y,
		c1.Z, c2.Z, c3.Z,
	}))
	if err != nil {
		return nil, r3.Vector{}, err
	}
	return rot, trans, nil
}

// poseFromDLT estimates [R|t] from general 3D correspondences by a direct
// linear transform of the projection matrix with K = diag(fx, fy, 1) already
// removed from the image side.
func poseFromDLT(fx, fy float64, objectPoints []r3.Vector, imagePoints []r2.Point) (*mat.Dense, r3.Vector, error) {
	n := len(objectPoints)
	a := mat.NewDense(2*n, 12, nil)
	for i := 0; i < n; i++ {
		x, y, z := objectPoints[i].X, objectPoints[i].Y, objectPoints[i].Z
		u := imagePoints[i].X / fx
		v := imagePoints[i].Y / fy
		a.SetRow(2*i, []float64{-x, -y, -z, -1, 0, 0, 0, 0, u * x, u * y, u * z, u})
		a.SetRow(2*i+1, []float64{0, 0, 0, 0, -x, -y, -z, -1, v * x, v * y, v * z, v})
	}
	p, err := smallestSingularVector(a)
	if err != nil {
		return nil, r3.Vector{}, err
	}

	m := mat.NewDense(3, 3, []float64{
		p[0], p[1], p[2],
		p[4], p[5], p[6],
		p[8], p[9], p[10],
	})
	c1 := r3.Vector{X: p[0], Y: p[4], Z: p[8]}
	c2 := r3.Vector{X: p[1], Y: p[5], Z: p[9]}
	c3 := r3.Vector{X: p[2], Y: p[6], Z: p[10]}
	scale := 3 / (c1.Norm() + c2.Norm() + c3.Norm())
	if math.IsInf(scale, 0) || math.IsNaN(scale) || scale == 0 {
		return nil, r3.Vector{}, errors.New("degenerate correspondences")
	}
	// first point must land in front of the camera
	if (p[8]*objectPoints[0].X+p[9]*objectPoints[0].Y+p[10]*objectPoints[0].Z+p[11])*scale < 0 {
		scale = -scale
	}
	m.Scale(scale, m)
	trans := r3.Vector{X: p[3] * scale, Y: p[7] * scale, Z: p[11] * scale}

	rot, err := nearestRotation(m)
	if err != nil {
		return nil, r3.Vector{}, err
	}
	return rot, trans, nil
}

// nearestRotation projects a near-rotation matrix onto SO(3) via its singular
// value decomposition.
func nearestRotation(m *mat.Dense) (*mat.Dense, error) {
	var svd mat.SVD
	if !svd.Factorize(m, mat.SVDFull) {
		return nil, errors.New("singular value decomposition failed")
	}
	var u, vt mat.Dense
	svd.UTo(&u)
	svd.VTo(&vt)
	var rot mat.Dense
	rot.Mul(&u, vt.T())
	if mat.Det(&rot) < 0 {
		// flip the last column of U to stay in SO(3)
		for i := 0; i < 3; i++ {
			u.Set(i, 2, -u.At(i, 2))
		}
		rot.Mul(&u, vt.T())
	}
	return &rot, nil
}

func projectThrough(fx, fy, cx, cy float64, rot *mat.Dense, trans, obj r3.Vector) (float64, float64, bool) {
	x := rot.At(0, 0)*obj.X + rot.At(0, 1)*obj.Y + rot.At(0, 2)*obj.Z + trans.X
	y := rot.At(1, 0)*obj.X + rot.At(1, 1)*obj.Y + rot.At(1, 2)*obj.Z + trans.Y
	z := rot.At(2, 0)*obj.X + rot.At(2, 1)*obj.Y + rot.At(2, 2)*obj.Z + trans.Z
	if z == 0 {
		return 0, 0, false
	}
	return fx*x/z + cx, fy*y/z + cy, true
}
