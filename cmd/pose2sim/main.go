// Package main provides the command line entry point for camera calibration
// and trajectory reprojection.
package main

import (
	"os"
	"path/filepath"

	"github.com/urfave/cli/v2"

	"github.com/LempereurMat/pose2sim/calib"
	"github.com/LempereurMat/pose2sim/logging"
	"github.com/LempereurMat/pose2sim/reproject"
	"github.com/LempereurMat/pose2sim/vision"
)

func main() {
	var logger logging.Logger

	app := &cli.App{
		Name:  "pose2sim",
		Usage: "multi-camera calibration and 2D reprojection for markerless motion capture",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "enable debug logging",
			},
		},
		Before: func(c *cli.Context) error {
			if c.Bool("debug") {
				logger = logging.NewDebugLogger("pose2sim")
			} else {
				logger = logging.NewLogger("pose2sim")
			}
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:  "calibrate",
				Usage: "produce a calibration file from a vendor export or board captures",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "config",
						Aliases: []string{"c"},
						Value:   "Config.toml",
						Usage:   "project configuration file",
					},
					&cli.StringFlag{
						Name:  "calib-dir",
						Usage: "calibration directory (default: \"calibration\" beside the config)",
					},
				},
				Action: func(c *cli.Context) error {
					cfg, err := calib.LoadConfig(c.String("config"))
					if err != nil {
						return err
					}
					calibDir := c.String("calib-dir")
					if calibDir == "" {
						calibDir = filepath.Join(filepath.Dir(c.String("config")), "calibration")
					}
					est := calib.NewBoardEstimator(&vision.HomographyKernel{}, nil, logger)
					_, err = calib.Run(c.Context, cfg, calibDir, est, logger)
					return err
				},
			},
			{
				Name:  "reproject",
				Usage: "project 3D marker trajectories back onto each calibrated camera",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "trc",
						Aliases:  []string{"t"},
						Usage:    "trial trajectory file (TRC)",
						Required: true,
					},
					&cli.StringFlag{
						Name:     "calibration",
						Aliases:  []string{"c"},
						Usage:    "calibration file (TOML)",
						Required: true,
					},
					&cli.StringFlag{
						Name:    "format",
						Aliases: []string{"f"},
						Usage:   "output format: \"deeplabcut\" or \"openpose\"",
					},
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "output directory (default: <trial>_reproj beside the trajectory file)",
					},
					&cli.StringFlag{
						Name:  "scorer",
						Usage: "scorer label for keypoint tables",
						Value: "pose2sim",
					},
				},
				Action: func(c *cli.Context) error {
					return reproject.Trial(c.Context, c.String("trc"), reproject.Options{
						CalibrationPath: c.String("calibration"),
						Format:          reproject.Format(c.String("format")),
						OutputDir:       c.String("output"),
						Scorer:          c.String("scorer"),
					}, logger)
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		logging.NewLogger("pose2sim").Error(err)
		os.Exit(1)
	}
}
