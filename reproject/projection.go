// Package reproject projects triangulated 3D marker trajectories back onto
// each calibrated camera's image plane.
package reproject

import (
	"gonum.org/v1/gonum/mat"

	"github.com/LempereurMat/pose2sim/calib"
	"github.com/LempereurMat/pose2sim/spatial"
)

// BuildProjectionMatrices rebuilds every camera's 3x4 projection matrix from
// the persisted parameters. Projection matrices are derived, never persisted,
// and are constructed fresh each time a calibration is loaded.
func BuildProjectionMatrices(set *calib.CameraSet) ([]*mat.Dense, error) {
	if err := set.CheckValid(); err != nil {
		return nil, err
	}
	all := make([]*mat.Dense, len(set.Cameras))
	for i, cam := range set.Cameras {
		all[i] = spatial.ProjectionMatrix(cam.Intrinsics, cam.Rotation, cam.Translation)
	}
	return all, nil
}

// Reproject projects one homogeneous 3D point (x, y, z, 1) onto every
// camera's image plane. A point at or behind a camera's focal plane yields a
// non-finite coordinate for that camera; it is propagated, not trapped, and
// downstream consumers must treat it as "not visible in this view".
//
// Pure function of its inputs: safe to call concurrently across points and
// cameras.
func Reproject(pAll []*mat.Dense, q [4]float64) (xs, ys []float64) {
	xs = make([]float64, len(pAll))
	ys = make([]float64, len(pAll))
	for c, p := range pAll {
		xs[c], ys[c] = spatial.ProjectPoint(p, q)
	}
	return xs, ys
}
