// Package calib builds per-camera calibration parameter sets from vendor
// exports or from checkerboard captures, and persists them in the calibration
// file format consumed by the reprojection and triangulation stages.
package calib

import "github.com/pkg/errors"

// ErrConfiguration is the root of fatal configuration errors: a required
// directory is absent, or a format/method selector is unsupported. It stops
// the whole calibration run.
var ErrConfiguration = errors.New("invalid calibration configuration")

// ErrParse is the root of vendor export parse failures.
var ErrParse = errors.New("malformed calibration export")

// ErrInsufficientCorrespondence is returned when fewer than the minimum
// usable 2D/3D correspondences are available. Fatal for a camera's
// extrinsics; a warning only for intrinsics.
var ErrInsufficientCorrespondence = errors.New("not enough point correspondences")

// NewConfigurationError wraps ErrConfiguration, naming the offending path or
// selector.
func NewConfigurationError(format string, args ...interface{}) error {
	return errors.Wrapf(ErrConfiguration, format, args...)
}

// NewParseError wraps ErrParse, naming the file and camera index so the user
// can find the bad record.
func NewParseError(path string, cameraIndex int, format string, args ...interface{}) error {
	return errors.Wrapf(ErrParse, "%s: camera %d: %s", path, cameraIndex, errors.Errorf(format, args...))
}

// IsConfigurationError reports whether err is fatal for the whole run.
func IsConfigurationError(err error) bool {
	return errors.Is(err, ErrConfiguration)
}

// IsParseError reports whether err came from a malformed vendor export.
func IsParseError(err error) bool {
	return errors.Is(err, ErrParse)
}
