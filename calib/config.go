package calib

import (
	"os"

	"github.com/pelletier/go-toml/v2"
	"github.com/pkg/errors"
)

// IntrinsicsConfig drives the intrinsics stage of board calibration.
type IntrinsicsConfig struct {
	Extension        string  `toml:"intrinsics_extension"`
	ExtractEveryNSec float64 `toml:"extract_every_N_sec"`
	Overwrite        bool    `toml:"overwrite_intrinsics"`
	ShowDetection    bool    `toml:"show_detection_intrinsics"`
	CornersNb        []int   `toml:"intrinsics_corners_nb"`
	SquareSize       float64 `toml:"intrinsics_square_size"`
}

// ExtrinsicsConfig drives the extrinsics stage of board calibration.
type ExtrinsicsConfig struct {
	Calculate             bool        `toml:"calculate_extrinsics"`
	BoardType             string      `toml:"extrinsics_board_type"` // "checkerboard" or "scene"
	Extension             string      `toml:"extrinsics_extension"`
	CornersNb             []int       `toml:"extrinsics_corners_nb"`
	SquareSize            float64     `toml:"extrinsics_square_size"`
	ObjectCoords3D        [][]float64 `toml:"object_coords_3d"`
	ShowReprojectionError bool        `toml:"show_reprojection_error"`
}

// ConvertConfig selects a vendor export conversion.
type ConvertConfig struct {
	From     string `toml:"convert_from"` // "qualisys" or "vicon"
	Qualisys struct {
		BinningFactor int `toml:"binning_factor"`
	} `toml:"qualisys"`
}

// CalculateConfig selects a from-scratch calibration method.
type CalculateConfig struct {
	Method string `toml:"calculate_method"` // only "board" is supported
	Board  struct {
		Intrinsics IntrinsicsConfig `toml:"intrinsics"`
		Extrinsics ExtrinsicsConfig `toml:"extrinsics"`
	} `toml:"board"`
}

// Config is the calibration section of the project configuration.
type Config struct {
	Calibration struct {
		Type      string          `toml:"calibration_type"` // "convert" or "calculate"
		Convert   ConvertConfig   `toml:"convert"`
		Calculate CalculateConfig `toml:"calculate"`
	} `toml:"calibration"`
}

// LoadConfig reads the project configuration from a TOML file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path) //nolint:gosec
	if err != nil {
		return nil, NewConfigurationError("cannot read config %s: %v", path, err)
	}
	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrapf(err, "parsing config %s", path)
	}
	return &cfg, nil
}

func (c *IntrinsicsConfig) board() (int, int, float64, error) {
	if len(c.CornersNb) != 2 {
		return 0, 0, 0, NewConfigurationError("intrinsics_corners_nb must have 2 entries, got %d", len(c.CornersNb))
	}
	return c.CornersNb[0], c.CornersNb[1], c.SquareSize, nil
}

func (c *ExtrinsicsConfig) board() (int, int, float64, error) {
	if len(c.CornersNb) != 2 {
		return 0, 0, 0, NewConfigurationError("extrinsics_corners_nb must have 2 entries, got %d", len(c.CornersNb))
	}
	return c.CornersNb[0], c.CornersNb[1], c.SquareSize, nil
}
