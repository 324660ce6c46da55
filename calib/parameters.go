package calib

import (
	"sort"
	"strconv"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// ResidualUnit tags the unit of a camera's residual calibration error, which
// depends on the calibration source: board calibration reports pixels, vendor
// conversions report millimeters.
type ResidualUnit string

const (
	// ResidualPixels is the unit of residuals from board calibration.
	ResidualPixels = ResidualUnit("px")
	// ResidualMillimeters is the unit of residuals from vendor conversion.
	ResidualMillimeters = ResidualUnit("mm")
)

// CameraParameters holds one physical camera's calibration in the canonical
// convention: object view, Z-up, meters, rotation as a Rodrigues vector.
type CameraParameters struct {
	Name string
	// Width and Height are float valued because vendor exports report
	// fractional sensor sizes after binning.
	Width  float64
	Height float64
	// Intrinsics is the 3x3 upper-triangular camera matrix
	// [[fx 0 cx], [0 fy cy], [0 0 1]].
	Intrinsics *mat.Dense
	// Distortion is (k1, k2, p1, p2); the third radial term is fixed to 0.
	Distortion []float64
	// Rotation is a 3-element Rodrigues vector, never a matrix.
	Rotation r3.Vector
	// Translation is in meters.
	Translation   r3.Vector
	ResidualError float64
	ResidualUnit  ResidualUnit
	// Fisheye is reserved; only the pinhole model is supported.
	Fisheye bool
}

// CheckValid checks the camera parameter invariants.
func (cp *CameraParameters) CheckValid() error {
	if cp == nil {
		return errors.New("camera parameters do not exist")
	}
	if cp.Width <= 0 || cp.Height <= 0 {
		return errors.Errorf("camera %q: invalid image size (%v, %v)", cp.Name, cp.Width, cp.Height)
	}
	if cp.Intrinsics == nil {
		return errors.Errorf("camera %q: no intrinsic matrix", cp.Name)
	}
	if r, c := cp.Intrinsics.Dims(); r != 3 || c != 3 {
		return errors.Errorf("camera %q: intrinsic matrix must be 3x3, got %dx%d", cp.Name, r, c)
	}
	for _, idx := range [][2]int{{1, 0}, {2, 0}, {2, 1}} {
		if cp.Intrinsics.At(idx[0], idx[1]) != 0 {
			return errors.Errorf("camera %q: intrinsic matrix must be upper triangular", cp.Name)
		}
	}
	if cp.Intrinsics.At(2, 2) != 1 {
		return errors.Errorf("camera %q: intrinsic matrix (3,3) entry must be 1", cp.Name)
	}
	if len(cp.Distortion) != 4 {
		return errors.Errorf("camera %q: distortion must have 4 coefficients, got %d", cp.Name, len(cp.Distortion))
	}
	return nil
}

// NewIntrinsicMatrix assembles the 3x3 camera matrix from focal lengths and
// principal point.
func NewIntrinsicMatrix(fx, fy, cx, cy float64) *mat.Dense {
	return mat.NewDense(3, 3, []float64{
		fx, 0, cx,
		0, fy, cy,
		0, 0, 1,
	})
}

// CameraSet is the ordered list of calibrated cameras. The index of a camera
// in the set is its camera index everywhere else in the pipeline, so order is
// semantically meaningful and must be kept stable.
type CameraSet struct {
	Cameras []*CameraParameters
}

// CheckValid checks every camera in the set.
func (cs *CameraSet) CheckValid() error {
	if cs == nil {
		return errors.New("camera set does not exist")
	}
	for i, cam := range cs.Cameras {
		if err := cam.CheckValid(); err != nil {
			return errors.Wrapf(err, "camera index %d", i)
		}
	}
	return nil
}

// SortNatural orders the cameras by a natural (digit-aware) ascending sort of
// their names, so that cam_10 sorts after cam_2. Each camera's parameters
// travel with its name, keeping index alignment across the whole set.
func (cs *CameraSet) SortNatural() {
	sort.SliceStable(cs.Cameras, func(i, j int) bool {
		return naturalLess(cs.Cameras[i].Name, cs.Cameras[j].Name)
	})
}

// naturalLess compares two strings chunk-wise, comparing runs of digits
// numerically and everything else lexically.
func naturalLess(a, b string) bool {
	for len(a) > 0 && len(b) > 0 {
		aChunk, aRest, aNum := nextChunk(a)
		bChunk, bRest, bNum := nextChunk(b)
		if aNum && bNum {
			ai, _ := strconv.ParseInt(aChunk, 10, 64)
			bi, _ := strconv.ParseInt(bChunk, 10, 64)
			if ai != bi {
				return ai < bi
			}
		} else if aChunk != bChunk {
			return aChunk < bChunk
		}
		a, b = aRest, bRest
	}
	return len(a) < len(b)
}

func nextChunk(s string) (chunk, rest string, numeric bool) {
	isDigit := func(c byte) bool { return c >= '0' && c <= '9' }
	numeric = isDigit(s[0])
	i := 1
	for i < len(s) && isDigit(s[i]) == numeric {
		i++
	}
	return s[:i], s[i:], numeric
}
