package calib

import (
	"context"
	"fmt"
	"image"
	"math"
	"os"
	"path/filepath"
	"sort"

	"github.com/disintegration/imaging"
	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/montanaflynn/stats"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/LempereurMat/pose2sim/logging"
	"github.com/LempereurMat/pose2sim/spatial"
	"github.com/LempereurMat/pose2sim/video"
	"github.com/LempereurMat/pose2sim/vision"
)

// Below this many accepted board views the intrinsic fit is flagged as low
// confidence. Non-fatal at both stages.
const lowViewCountWarning = 10

// BoardEstimator runs the two-stage checkerboard calibration pipeline:
// intrinsics from many board views per camera, then optionally extrinsics
// from a single view or labeled scene reference points.
type BoardEstimator struct {
	kernel  vision.Kernel
	labeler vision.Labeler // nil disables the manual labeling fallback
	logger  logging.Logger
}

// NewBoardEstimator returns an estimator backed by the given vision kernel.
func NewBoardEstimator(kernel vision.Kernel, labeler vision.Labeler, logger logging.Logger) *BoardEstimator {
	return &BoardEstimator{kernel: kernel, labeler: labeler, logger: logger}
}

// Calibrate produces the full camera set for the capture session rooted at
// calibDir, which must contain an "intrinsics" directory (one subdirectory
// per camera) and, when extrinsics are calculated, an "extrinsics" directory
// with the same camera layout.
//
// If a previous calibration file exists in calibDir and overwrite is not
// requested, its intrinsics are reused and the intrinsics stage is skipped;
// the reused residual is reported as 0.0 since the stored value's provenance
// is unknown.
func (e *BoardEstimator) Calibrate(
	ctx context.Context,
	calibDir string,
	icfg IntrinsicsConfig,
	ecfg ExtrinsicsConfig,
) (*CameraSet, error) {
	var set *CameraSet
	cached := findCachedCalibration(calibDir)
	if cached != "" && !icfg.Overwrite {
		e.logger.Infof("preexisting calibration file found: %s", cached)
		e.logger.Infof("retrieving intrinsic parameters from file; set overwrite_intrinsics to recompute")
		var err error
		if set, err = loadCachedIntrinsics(cached); err != nil {
			return nil, err
		}
	} else {
		e.logger.Infof("calculating intrinsic parameters")
		var err error
		if set, err = e.CalibrateIntrinsics(ctx, calibDir, icfg); err != nil {
			return nil, err
		}
	}

	if !ecfg.Calculate {
		e.logger.Infof("extrinsic parameters won't be calculated; set calculate_extrinsics to calculate them")
		return set, nil
	}
	e.logger.Infof("calculating extrinsic parameters")
	if err := e.CalibrateExtrinsics(ctx, calibDir, ecfg, set); err != nil {
		return nil, err
	}
	return set, nil
}

// CalibrateIntrinsics fits one camera matrix and distortion set per camera
// directory under <calibDir>/intrinsics. Cameras are processed in parallel;
// a failure in one camera does not abort its siblings, and all per-camera
// failures are reported together.
func (e *BoardEstimator) CalibrateIntrinsics(
	ctx context.Context,
	calibDir string,
	cfg IntrinsicsConfig,
) (*CameraSet, error) {
	rows, cols, square, err := cfg.board()
	if err != nil {
		return nil, err
	}
	board := vision.Checkerboard{Rows: rows, Cols: cols, SquareSize: square}

	root := filepath.Join(calibDir, "intrinsics")
	camDirs, err := listCameraDirs(root)
	if err != nil {
		return nil, err
	}

	results := make([]*CameraParameters, len(camDirs))
	camErrs := make([]error, len(camDirs))
	var group errgroup.Group
	for i, dir := range camDirs {
		i, dir := i, dir
		group.Go(func() error {
			cam, err := e.intrinsicsForCamera(ctx, i, filepath.Join(root, dir), dir, cfg, board)
			if err != nil {
				camErrs[i] = errors.Wrapf(err, "camera %s", dir)
				return nil
			}
			results[i] = cam
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}
	if err := multierr.Combine(camErrs...); err != nil {
		return nil, err
	}
	return &CameraSet{Cameras: results}, nil
}

func (e *BoardEstimator) intrinsicsForCamera(
	ctx context.Context,
	camIdx int,
	dir, dirName string,
	cfg IntrinsicsConfig,
	board vision.Checkerboard,
) (*CameraParameters, error) {
	e.logger.Infof("camera %s: collecting board views", dirName)
	files, err := e.cameraFiles(ctx, dir, cfg.Extension, cfg.ExtractEveryNSec)
	if err != nil {
		return nil, err
	}

	objGrid := board.ObjectPoints()
	var objSets [][]r3.Vector
	var imgSets [][]r2.Point
	var width, height float64
	for _, path := range files {
		img, err := imaging.Open(path)
		if err != nil {
			return nil, errors.Wrapf(err, "opening %s", path)
		}
		width = float64(img.Bounds().Dx())
		height = float64(img.Bounds().Dy())

		imgPts, objPts, ok := e.boardCorrespondences(ctx, img, path, board, objGrid, cfg.ShowDetection)
		if !ok {
			continue
		}
		imgSets = append(imgSets, imgPts)
		objSets = append(objSets, objPts)
	}
	if len(imgSets) == 0 {
		return nil, errors.Wrapf(ErrInsufficientCorrespondence, "no usable board views in %s", dir)
	}
	if len(imgSets) < lowViewCountWarning {
		e.logger.Warnf("corners detected on only %d images for camera %s; "+
			"intrinsics may not be accurate with fewer than %d good board views",
			len(imgSets), dirName, lowViewCountWarning)
	}

	matrix, distortion, residual, err := e.kernel.FitCameraMatrix(
		ctx, objSets, imgSets, width, height,
		vision.FixThirdRadial|vision.FixPrincipalPoint,
	)
	if err != nil {
		return nil, errors.Wrap(err, "camera matrix fit")
	}
	return &CameraParameters{
		Name:          fmt.Sprintf("cam_%02d", camIdx+1),
		Width:         width,
		Height:        height,
		Intrinsics:    matrix,
		Distortion:    distortion,
		ResidualError: residual,
		ResidualUnit:  ResidualPixels,
	}, nil
}

// boardCorrespondences attempts automatic detection on one image and applies
// the manual labeling fallback when configured. ok is false when the image
// should be skipped.
func (e *BoardEstimator) boardCorrespondences(
	ctx context.Context,
	img image.Image,
	path string,
	board vision.Checkerboard,
	objGrid []r3.Vector,
	interactive bool,
) ([]r2.Point, []r3.Vector, bool) {
	corners, err := e.kernel.DetectCheckerboard(ctx, img, board)
	switch {
	case err == nil && (!interactive || e.labeler == nil):
		e.logger.Infof("%s: corners found", filepath.Base(path))
		return corners, objGrid, true
	case err == nil:
		confirmed, objPts, err := e.labeler.ConfirmOrRelabel(ctx, img, corners, objGrid)
		if err != nil {
			e.logger.Infof("%s: detection dismissed, skipping image", filepath.Base(path))
			return nil, nil, false
		}
		return confirmed, objPts, true
	case errors.Is(err, vision.ErrNoCheckerboard) && interactive && e.labeler != nil:
		e.logger.Infof("%s: corners not found, falling back to manual labeling", filepath.Base(path))
		confirmed, objPts, err := e.labeler.ConfirmOrRelabel(ctx, img, nil, objGrid)
		if err != nil {
			e.logger.Infof("%s: labeling cancelled, skipping image", filepath.Base(path))
			return nil, nil, false
		}
		return confirmed, objPts, true
	default:
		e.logger.Infof("%s: corners not found, skipping image "+
			"(set show_detection_intrinsics to label them by hand)", filepath.Base(path))
		return nil, nil, false
	}
}

// CalibrateExtrinsics solves each camera's pose from the first view under
// <calibDir>/extrinsics and stores the RMS pixel reprojection residual as
// that camera's calibration error. Per-camera failures are collected without
// aborting sibling cameras; a manual labeling suspension in one camera never
// blocks the others.
func (e *BoardEstimator) CalibrateExtrinsics(
	ctx context.Context,
	calibDir string,
	cfg ExtrinsicsConfig,
	set *CameraSet,
) error {
	root := filepath.Join(calibDir, "extrinsics")
	camDirs, err := listCameraDirs(root)
	if err != nil {
		return err
	}
	if len(camDirs) != len(set.Cameras) {
		return NewConfigurationError("%s has %d camera directories but %d cameras have intrinsics",
			root, len(camDirs), len(set.Cameras))
	}

	camErrs := make([]error, len(camDirs))
	var group errgroup.Group
	for i, dir := range camDirs {
		i, dir := i, dir
		group.Go(func() error {
			if err := e.extrinsicsForCamera(ctx, filepath.Join(root, dir), dir, cfg, set.Cameras[i]); err != nil {
				camErrs[i] = errors.Wrapf(err, "camera %s", dir)
			}
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return err
	}
	return multierr.Combine(camErrs...)
}

func (e *BoardEstimator) extrinsicsForCamera(
	ctx context.Context,
	dir, dirName string,
	cfg ExtrinsicsConfig,
	cam *CameraParameters,
) error {
	e.logger.Infof("camera %s: solving pose", dirName)
	files, err := e.cameraFiles(ctx, dir, cfg.Extension, 0)
	if err != nil {
		return err
	}
	imgPath := files[0]
	img, err := imaging.Open(imgPath)
	if err != nil {
		return errors.Wrapf(err, "opening %s", imgPath)
	}

	var imgPts []r2.Point
	var objPts []r3.Vector
	switch cfg.BoardType {
	case "checkerboard":
		rows, cols, square, err := cfg.board()
		if err != nil {
			return err
		}
		board := vision.Checkerboard{Rows: rows, Cols: cols, SquareSize: square}
		imgPts, err = e.kernel.DetectCheckerboard(ctx, img, board)
		if err != nil {
			// extrinsics cannot proceed without correspondences
			return errors.Wrapf(ErrInsufficientCorrespondence,
				"no corners found in %s; set extrinsics_board_type to \"scene\" to click reference points by hand", imgPath)
		}
		objPts = board.ObjectPoints()
	case "scene":
		if e.labeler == nil {
			return NewConfigurationError("scene extrinsics need an interactive labeler")
		}
		reference := make([]r3.Vector, len(cfg.ObjectCoords3D))
		for i, c := range cfg.ObjectCoords3D {
			if len(c) != 3 {
				return NewConfigurationError("object_coords_3d entry %d must have 3 coordinates, got %d", i, len(c))
			}
			reference[i] = r3.Vector{X: c[0], Y: c[1], Z: c[2]}
		}
		imgPts, objPts, err = e.labeler.ConfirmOrRelabel(ctx, img, nil, reference)
		if err != nil {
			return errors.Wrapf(err, "labeling scene points in %s", imgPath)
		}
		if len(objPts) < lowViewCountWarning {
			e.logger.Warnf("only %d reference points for camera %s; "+
				"extrinsics may not be accurate with fewer than %d spread-out points",
				len(objPts), dirName, lowViewCountWarning)
		}
	default:
		return NewConfigurationError("unsupported extrinsics_board_type %q", cfg.BoardType)
	}

	rotation, translation, err := e.kernel.SolvePose(ctx, objPts, imgPts, cam.Intrinsics, cam.Distortion)
	if err != nil {
		return errors.Wrap(err, "pose solve")
	}

	// reproject the reference points through the solved pose and report the
	// RMS pixel residual as the camera's calibration error
	proj := spatial.ProjectPoints(spatial.ProjectionMatrix(cam.Intrinsics, rotation, translation), objPts)
	squares := make([]float64, len(proj))
	for i := range proj {
		d := proj[i].Sub(imgPts[i])
		squares[i] = d.X*d.X + d.Y*d.Y
	}
	sum, err := stats.Sum(squares)
	if err != nil {
		return errors.Wrap(err, "residual aggregation")
	}

	cam.Rotation = rotation
	cam.Translation = translation
	cam.ResidualError = math.Sqrt(sum)
	cam.ResidualUnit = ResidualPixels

	if cfg.ShowReprojectionError {
		if err := renderOverlay(imgPath, imgPts, proj); err != nil {
			// presentational only, never blocks the calibration
			e.logger.Warnf("could not render reprojection overlay for %s: %v", imgPath, err)
		}
	}
	return nil
}

// cameraFiles enumerates a camera directory's calibration inputs in natural
// order, extracting frames first when the source is a video.
func (e *BoardEstimator) cameraFiles(ctx context.Context, dir, extension string, everyNSec float64) ([]string, error) {
	if extension == "" {
		extension = "png"
	}
	files, err := filepath.Glob(filepath.Join(dir, "*."+extension))
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, NewConfigurationError(
			"%s does not exist or contains no files with extension .%s", dir, extension)
	}
	sort.SliceStable(files, func(i, j int) bool { return naturalLess(files[i], files[j]) })

	if video.IsVideo(files[0]) {
		if err := video.ExtractFrames(ctx, files[0], everyNSec, false, e.logger); err != nil {
			return nil, err
		}
		frames, err := video.ExtractedFrames(files[0])
		if err != nil {
			return nil, err
		}
		if len(frames) == 0 {
			return nil, NewConfigurationError("no frames extracted from %s", files[0])
		}
		sort.SliceStable(frames, func(i, j int) bool { return naturalLess(frames[i], frames[j]) })
		return frames, nil
	}
	return files, nil
}

func listCameraDirs(root string) ([]string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, NewConfigurationError("no %s folder found", root)
	}
	var dirs []string
	for _, entry := range entries {
		if entry.IsDir() {
			dirs = append(dirs, entry.Name())
		}
	}
	if len(dirs) == 0 {
		return nil, NewConfigurationError("%s contains no camera directories", root)
	}
	sort.SliceStable(dirs, func(i, j int) bool { return naturalLess(dirs[i], dirs[j]) })
	return dirs, nil
}

func findCachedCalibration(calibDir string) string {
	matches, err := filepath.Glob(filepath.Join(calibDir, "Calib*.toml"))
	if err != nil || len(matches) == 0 {
		return ""
	}
	sort.Strings(matches)
	return matches[0]
}

// loadCachedIntrinsics reuses a prior calibration file's intrinsics with
// identity extrinsics. The residual is reported as 0.0: the stored value is
// stale and must not be presented as freshly computed.
func loadCachedIntrinsics(path string) (*CameraSet, error) {
	set, _, err := ReadFile(path)
	if err != nil {
		return nil, err
	}
	for _, cam := range set.Cameras {
		cam.Rotation = r3.Vector{}
		cam.Translation = r3.Vector{}
		cam.ResidualError = 0.0
		cam.ResidualUnit = ResidualPixels
	}
	return set, nil
}
