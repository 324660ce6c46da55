package calib

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"go.viam.com/test"

	"github.com/LempereurMat/pose2sim/logging"
)

func TestRunConvertQualisys(t *testing.T) {
	calibDir := t.TempDir()
	test.That(t, os.WriteFile(
		filepath.Join(calibDir, "session.qca.txt"), []byte(qualisysExport), 0o644,
	), test.ShouldBeNil)

	cfg := &Config{}
	cfg.Calibration.Type = "convert"
	cfg.Calibration.Convert.From = "qualisys"

	logger := logging.NewTestLogger(t)
	outputPath, err := Run(context.Background(), cfg, calibDir, nil, logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, outputPath, test.ShouldEqual, filepath.Join(calibDir, "Calib_qualisys.toml"))

	set, meta, err := ReadFile(outputPath)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, set.Cameras, test.ShouldHaveLength, 1)
	test.That(t, set.Cameras[0].Name, test.ShouldEqual, "21240")
	test.That(t, meta.Adjusted, test.ShouldBeFalse)
	test.That(t, meta.Error, test.ShouldEqual, 0.0)
}

func TestRunConvertVicon(t *testing.T) {
	calibDir := t.TempDir()
	test.That(t, os.WriteFile(
		filepath.Join(calibDir, "session.xcp"), []byte(viconExport), 0o644,
	), test.ShouldBeNil)

	cfg := &Config{}
	cfg.Calibration.Type = "convert"
	cfg.Calibration.Convert.From = "vicon"

	outputPath, err := Run(context.Background(), cfg, calibDir, nil, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, filepath.Base(outputPath), test.ShouldEqual, "Calib_vicon.toml")

	set, _, err := ReadFile(outputPath)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, set.Cameras, test.ShouldHaveLength, 2)
}

func TestNewSourceMissingExport(t *testing.T) {
	cfg := &Config{}
	cfg.Calibration.Type = "convert"
	cfg.Calibration.Convert.From = "qualisys"

	_, _, err := NewSource(cfg, t.TempDir(), nil, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, IsConfigurationError(err), test.ShouldBeTrue)
}

func TestNewSourceUnsupported(t *testing.T) {
	logger := logging.NewTestLogger(t)

	cfg := &Config{}
	cfg.Calibration.Type = "guess"
	_, _, err := NewSource(cfg, t.TempDir(), nil, logger)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "calibration_type")

	cfg.Calibration.Type = "convert"
	cfg.Calibration.Convert.From = "optitrack"
	_, _, err = NewSource(cfg, t.TempDir(), nil, logger)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "convert_from")
}

func TestNewSourceBoard(t *testing.T) {
	cfg := &Config{}
	cfg.Calibration.Type = "calculate"
	cfg.Calibration.Calculate.Method = "board"
	cfg.Calibration.Calculate.Board.Extrinsics.BoardType = "scene"

	calibDir := t.TempDir()
	source, outputPath, err := NewSource(cfg, calibDir, nil, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, source.Name(), test.ShouldEqual, "calculate_board")
	test.That(t, outputPath, test.ShouldEqual, filepath.Join(calibDir, "Calib_intboard_extscene.toml"))
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "Config.toml")
	doc := `
[calibration]
calibration_type = "calculate"

[calibration.convert]
convert_from = "qualisys"

[calibration.convert.qualisys]
binning_factor = 2

[calibration.calculate]
calculate_method = "board"

[calibration.calculate.board.intrinsics]
intrinsics_extension = "jpg"
extract_every_N_sec = 0.5
overwrite_intrinsics = false
intrinsics_corners_nb = [ 4, 7 ]
intrinsics_square_size = 60.0

[calibration.calculate.board.extrinsics]
calculate_extrinsics = true
extrinsics_board_type = "checkerboard"
extrinsics_corners_nb = [ 4, 7 ]
extrinsics_square_size = 60.0
`
	test.That(t, os.WriteFile(path, []byte(doc), 0o644), test.ShouldBeNil)

	cfg, err := LoadConfig(path)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cfg.Calibration.Type, test.ShouldEqual, "calculate")
	test.That(t, cfg.Calibration.Convert.Qualisys.BinningFactor, test.ShouldEqual, 2)
	test.That(t, cfg.Calibration.Calculate.Board.Intrinsics.CornersNb, test.ShouldResemble, []int{4, 7})
	test.That(t, cfg.Calibration.Calculate.Board.Extrinsics.Calculate, test.ShouldBeTrue)
	test.That(t, cfg.Calibration.Calculate.Board.Intrinsics.ExtractEveryNSec, test.ShouldAlmostEqual, 0.5, 1e-9)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.toml"))
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, IsConfigurationError(err), test.ShouldBeTrue)
}
