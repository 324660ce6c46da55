package calib

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"

	"github.com/montanaflynn/stats"

	"github.com/LempereurMat/pose2sim/logging"
)

// Source is one way of obtaining a canonical camera set: converting a vendor
// export or calculating from a board capture. All sources produce the same
// CameraSet shape.
type Source interface {
	Name() string
	Calibrate(ctx context.Context) (*CameraSet, error)
}

// QualisysSource converts a Qualisys .qca.txt export.
type QualisysSource struct {
	Path          string
	BinningFactor int
	Logger        logging.Logger
}

// Name implements Source.
func (s *QualisysSource) Name() string { return "convert_qualisys" }

// Calibrate implements Source.
func (s *QualisysSource) Calibrate(context.Context) (*CameraSet, error) {
	s.Logger.Infof("converting %s to a calibration file", s.Path)
	return ReadQualisys(s.Path, s.BinningFactor)
}

// ViconSource converts a Vicon .xcp export.
type ViconSource struct {
	Path   string
	Logger logging.Logger
}

// Name implements Source.
func (s *ViconSource) Name() string { return "convert_vicon" }

// Calibrate implements Source.
func (s *ViconSource) Calibrate(context.Context) (*CameraSet, error) {
	s.Logger.Infof("converting %s to a calibration file", s.Path)
	return ReadVicon(s.Path)
}

// BoardSource calculates calibration from checkerboard captures.
type BoardSource struct {
	Dir        string
	Estimator  *BoardEstimator
	Intrinsics IntrinsicsConfig
	Extrinsics ExtrinsicsConfig
}

// Name implements Source.
func (s *BoardSource) Name() string { return "calculate_board" }

// Calibrate implements Source.
func (s *BoardSource) Calibrate(ctx context.Context) (*CameraSet, error) {
	return s.Estimator.Calibrate(ctx, s.Dir, s.Intrinsics, s.Extrinsics)
}

// findExport locates the vendor calibration export in the calibration
// directory. Exactly one match is expected; with several, the first in
// natural order wins.
func findExport(calibDir, pattern string) (string, error) {
	matches, err := filepath.Glob(filepath.Join(calibDir, pattern))
	if err != nil {
		return "", err
	}
	if len(matches) == 0 {
		return "", NewConfigurationError("no %s export found in %s", pattern, calibDir)
	}
	sort.SliceStable(matches, func(i, j int) bool { return naturalLess(matches[i], matches[j]) })
	return matches[0], nil
}

// NewSource selects the calibration source from configuration and returns it
// along with the output calibration file path.
func NewSource(cfg *Config, calibDir string, est *BoardEstimator, logger logging.Logger) (Source, string, error) {
	switch cfg.Calibration.Type {
	case "convert":
		convert := cfg.Calibration.Convert
		switch convert.From {
		case "qualisys":
			path, err := findExport(calibDir, "*.qca.txt")
			if err != nil {
				return nil, "", err
			}
			binning := convert.Qualisys.BinningFactor
			if binning == 0 {
				binning = 1
			}
			return &QualisysSource{Path: path, BinningFactor: binning, Logger: logger},
				filepath.Join(calibDir, "Calib_qualisys.toml"), nil
		case "vicon":
			path, err := findExport(calibDir, "*.xcp")
			if err != nil {
				return nil, "", err
			}
			return &ViconSource{Path: path, Logger: logger},
				filepath.Join(calibDir, "Calib_vicon.toml"), nil
		default:
			return nil, "", NewConfigurationError("unsupported convert_from %q", convert.From)
		}
	case "calculate":
		calculate := cfg.Calibration.Calculate
		if calculate.Method != "board" {
			return nil, "", NewConfigurationError("unsupported calculate_method %q", calculate.Method)
		}
		board := calculate.Board
		output := fmt.Sprintf("Calib_int%s_ext%s.toml", "board", board.Extrinsics.BoardType)
		return &BoardSource{
			Dir:        calibDir,
			Estimator:  est,
			Intrinsics: board.Intrinsics,
			Extrinsics: board.Extrinsics,
		}, filepath.Join(calibDir, output), nil
	default:
		return nil, "", NewConfigurationError("unsupported calibration_type %q", cfg.Calibration.Type)
	}
}

// Run performs a full calibration: select the source, calibrate, persist,
// and log the residual recap.
func Run(ctx context.Context, cfg *Config, calibDir string, est *BoardEstimator, logger logging.Logger) (string, error) {
	source, outputPath, err := NewSource(cfg, calibDir, est, logger)
	if err != nil {
		return "", err
	}
	set, err := source.Calibrate(ctx)
	if err != nil {
		return "", err
	}
	if err := WriteFile(outputPath, set, Metadata{Adjusted: false, Error: 0.0}); err != nil {
		return "", err
	}
	recap(set, outputPath, logger)
	return outputPath, nil
}

// recap logs every camera's residual error in both pixels and millimeters.
// The px/mm conversion scales by the camera's distance to the origin and its
// focal length, so it is only indicative.
func recap(set *CameraSet, outputPath string, logger logging.Logger) {
	retPx := make([]float64, 0, len(set.Cameras))
	retMm := make([]float64, 0, len(set.Cameras))
	for _, cam := range set.Cameras {
		fpx := cam.Intrinsics.At(0, 0)
		distM := cam.Translation.Norm()
		switch cam.ResidualUnit {
		case ResidualMillimeters:
			retMm = append(retMm, cam.ResidualError)
			if distM > 0 {
				retPx = append(retPx, cam.ResidualError/(distM*1000)*fpx)
			} else {
				retPx = append(retPx, 0)
			}
		default:
			retPx = append(retPx, cam.ResidualError)
			if fpx > 0 {
				retMm = append(retMm, cam.ResidualError*distM*1000/fpx)
			} else {
				retMm = append(retMm, 0)
			}
		}
	}
	meanPx, err := stats.Mean(retPx)
	if err != nil {
		meanPx = 0
	}
	logger.Infof("residual (RMS) calibration errors per camera: %.3f px, i.e. %.3f mm (mean %.3f px)",
		retPx, retMm, meanPx)
	logger.Infof("calibration file stored at %s", outputPath)
}
