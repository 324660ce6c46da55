// Package vision defines the contract with the external vision kernel that
// provides the calibration numerics (checkerboard corner detection, camera
// matrix fitting, PnP pose solving), plus the manual point-labeling session
// used when automatic detection fails.
package vision

import (
	"context"
	"image"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// ErrNoCheckerboard is returned by DetectCheckerboard when no board is found
// in the image. Recoverable: the caller skips the image or falls back to
// manual labeling.
var ErrNoCheckerboard = errors.New("checkerboard not detected")

// Checkerboard describes the calibration board by its internal corner grid
// and physical square size. Rows and Cols count internal corners, not
// squares.
type Checkerboard struct {
	Rows       int
	Cols       int
	SquareSize float64
}

// CornerCount returns the number of internal corners on the board.
func (b Checkerboard) CornerCount() int {
	return b.Rows * b.Cols
}

// ObjectPoints returns the board corners' 3D coordinates in the board's own
// plane (z = 0), row index varying fastest, scaled by the square size. The
// ordering matches the corner ordering returned by checkerboard detection.
func (b Checkerboard) ObjectPoints() []r3.Vector {
	pts := make([]r3.Vector, 0, b.CornerCount())
	for j := 0; j < b.Cols; j++ {
		for i := 0; i < b.Rows; i++ {
			pts = append(pts, r3.Vector{
				X: float64(i) * b.SquareSize,
				Y: float64(j) * b.SquareSize,
			})
		}
	}
	return pts
}

// FitFlag selects which parameters the camera matrix fit holds fixed.
type FitFlag uint

const (
	// FixThirdRadial pins the third radial distortion coefficient to 0.
	FixThirdRadial FitFlag = 1 << iota
	// FixPrincipalPoint pins the principal point to the image center.
	FixPrincipalPoint
)

// Kernel is the external vision kernel contract. Implementations wrap a
// calibration numerics library; tests use synthetic kernels.
type Kernel interface {
	// DetectCheckerboard finds and refines the board's internal corners in
	// the image, in the same order as Checkerboard.ObjectPoints. Returns
	// ErrNoCheckerboard when the board is not found.
	DetectCheckerboard(ctx context.Context, img image.Image, board Checkerboard) ([]r2.Point, error)

	// FitCameraMatrix estimates one camera's 3x3 matrix, its 4 distortion
	// coefficients (k1, k2, p1, p2) and the RMS reprojection residual in
	// pixels from accumulated 2D/3D correspondence sets, one set per
	// accepted calibration image.
	FitCameraMatrix(
		ctx context.Context,
		objectPoints [][]r3.Vector,
		imagePoints [][]r2.Point,
		width, height float64,
		flags FitFlag,
	) (*mat.Dense, []float64, float64, error)

	// SolvePose solves the PnP problem for a camera with known intrinsics,
	// returning the extrinsic rotation as a Rodrigues vector and the
	// translation. Requires at least 4 correspondences.
	SolvePose(
		ctx context.Context,
		objectPoints []r3.Vector,
		imagePoints []r2.Point,
		intrinsics *mat.Dense,
		distortion []float64,
	) (r3.Vector, r3.Vector, error)
}
