package reproject

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/LempereurMat/pose2sim/calib"
	"github.com/LempereurMat/pose2sim/logging"
	"github.com/LempereurMat/pose2sim/spatial"
)

// Options configure a trial reprojection run.
type Options struct {
	CalibrationPath string
	Format          Format
	// OutputDir defaults to <trial>_reproj beside the trajectory file.
	OutputDir string
	// Scorer labels the keypoint table columns. Defaults to "pose2sim".
	Scorer string
}

// Trial reprojects one trial's 3D marker trajectories onto every calibrated
// camera and writes the per-camera 2D keypoint files in the selected format.
func Trial(ctx context.Context, trcPath string, opts Options, logger logging.Logger) error {
	format, err := ParseFormat(string(opts.Format))
	if err != nil {
		return err
	}
	scorer := opts.Scorer
	if scorer == "" {
		scorer = "pose2sim"
	}

	traj, err := ReadTRC(trcPath)
	if err != nil {
		return err
	}
	// trajectory files are Y-up; calibration lives in the Z-up world frame
	for i, row := range traj.Rows {
		converted, err := spatial.YUpToZUpRow(row)
		if err != nil {
			return err
		}
		traj.Rows[i] = converted
	}

	set, _, err := calib.ReadFile(opts.CalibrationPath)
	if err != nil {
		return err
	}
	pAll, err := BuildProjectionMatrices(set)
	if err != nil {
		return err
	}
	nCams := len(pAll)
	nFrames := len(traj.Rows)
	nMarkers := len(traj.Markers)
	logger.Infof("reprojecting %d frames of %d markers onto %d cameras", nFrames, nMarkers, nCams)

	// coords[cam][frame] holds 2N interleaved (x, y) values, frame-indexed so
	// parallel workers never contend and output order is deterministic.
	coords := make([][][]float64, nCams)
	for c := range coords {
		coords[c] = make([][]float64, nFrames)
	}
	group, _ := errgroup.WithContext(ctx)
	for frame := range traj.Rows {
		frame := frame
		group.Go(func() error {
			row := traj.Rows[frame]
			frameCoords := make([][]float64, nCams)
			for c := range frameCoords {
				frameCoords[c] = make([]float64, 2*nMarkers)
			}
			for m := 0; m < nMarkers; m++ {
				q := [4]float64{row[3*m], row[3*m+1], row[3*m+2], 1}
				xs, ys := Reproject(pAll, q)
				for c := range pAll {
					frameCoords[c][2*m] = xs[c]
					frameCoords[c][2*m+1] = ys[c]
				}
			}
			for c := range pAll {
				coords[c][frame] = frameCoords[c]
			}
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return err
	}

	clipName := strings.TrimSuffix(filepath.Base(trcPath), filepath.Ext(trcPath))
	outputDir := opts.OutputDir
	if outputDir == "" {
		outputDir = filepath.Join(filepath.Dir(trcPath), clipName+"_reproj")
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return err
	}

	for c := range pAll {
		switch format {
		case FormatStructured:
			camDir := filepath.Join(outputDir, fmt.Sprintf("cam_%02d_json", c+1))
			if err := os.MkdirAll(camDir, 0o755); err != nil {
				return err
			}
			if err := writeStructuredJSON(camDir, clipName, c, traj.Markers, coords[c]); err != nil {
				return err
			}
		default:
			path := filepath.Join(outputDir, fmt.Sprintf("%s_cam_%02d.csv", clipName, c+1))
			if err := writeLabeledCSV(path, clipName, scorer, traj.Markers, coords[c]); err != nil {
				return err
			}
		}
	}
	logger.Infof("2D keypoint files written under %s", outputDir)
	return nil
}
