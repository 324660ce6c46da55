package reproject

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/pkg/errors"
	"go.viam.com/utils"

	"github.com/LempereurMat/pose2sim/calib"
)

// Format selects the 2D keypoint output layout.
type Format string

const (
	// FormatLabeled writes one keypoint table per camera, keyed by
	// (scorer, individual, bodypart, coordinate) columns and
	// (split, clip, frame filename) rows.
	FormatLabeled = Format("deeplabcut")
	// FormatStructured writes one record per camera per frame with a
	// fixed-order flattened BODY_25B keypoint array.
	FormatStructured = Format("openpose")
)

// ParseFormat validates a format selector.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case FormatLabeled, FormatStructured:
		return Format(s), nil
	case "":
		return FormatLabeled, nil
	default:
		return "", calib.NewConfigurationError("output format must be %q or %q, got %q",
			FormatLabeled, FormatStructured, s)
	}
}

// writeLabeledCSV writes one camera's keypoint table. Layout mirrors the
// labeled-data table convention: four column-header rows (scorer,
// individuals, bodyparts, coords) over a three-level row index
// (labeled_data, clip name, synthetic frame filename).
func writeLabeledCSV(path, clipName, scorer string, markers []string, coords [][]float64) error {
	f, err := os.Create(path) //nolint:gosec
	if err != nil {
		return errors.Wrapf(err, "creating %s", path)
	}
	defer utils.UncheckedErrorFunc(f.Close)

	w := csv.NewWriter(f)
	width := 2 * len(markers)
	header := func(name string, value func(i int) string) error {
		row := make([]string, 3+width)
		row[0] = name
		for i := 0; i < width; i++ {
			row[3+i] = value(i)
		}
		return w.Write(row)
	}
	if err := header("scorer", func(int) string { return scorer }); err != nil {
		return err
	}
	if err := header("individuals", func(int) string { return "person0" }); err != nil {
		return err
	}
	if err := header("bodyparts", func(i int) string { return markers[i/2] }); err != nil {
		return err
	}
	if err := header("coords", func(i int) string {
		if i%2 == 0 {
			return "x"
		}
		return "y"
	}); err != nil {
		return err
	}

	for frame, row := range coords {
		record := make([]string, 3+width)
		record[0] = "labeled_data"
		record[1] = clipName
		record[2] = fmt.Sprintf("img_%03d.png", frame)
		for i, v := range row {
			record[3+i] = formatCoord(v)
		}
		if err := w.Write(record); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

type structuredPerson struct {
	PersonID             []int     `json:"person_id"`
	PoseKeypoints2D      []float64 `json:"pose_keypoints_2d"`
	FaceKeypoints2D      []float64 `json:"face_keypoints_2d"`
	HandLeftKeypoints2D  []float64 `json:"hand_left_keypoints_2d"`
	HandRightKeypoints2D []float64 `json:"hand_right_keypoints_2d"`
	PoseKeypoints3D      []float64 `json:"pose_keypoints_3d"`
	FaceKeypoints3D      []float64 `json:"face_keypoints_3d"`
	HandLeftKeypoints3D  []float64 `json:"hand_left_keypoints_3d"`
	HandRightKeypoints3D []float64 `json:"hand_right_keypoints_3d"`
}

type structuredFrame struct {
	Version float64            `json:"version"`
	People  []structuredPerson `json:"people"`
}

// writeStructuredJSON writes one camera's frames as per-frame records with
// the BODY_25B fixed-order keypoint array. Joints without a marker (ears,
// eyes) stay zero-filled; labeled joints carry (x, y, 1).
func writeStructuredJSON(camDir, clipName string, camIdx int, markers []string, coords [][]float64) error {
	jointIdx := make([]int, len(markers))
	for i, marker := range markers {
		idx, ok := body25BIndex[marker]
		if !ok {
			return calib.NewConfigurationError("marker %q is not a BODY_25B joint", marker)
		}
		jointIdx[i] = idx
	}

	for frame, row := range coords {
		keypoints := make([]float64, body25BJointCount*3)
		for i, idx := range jointIdx {
			keypoints[idx*3] = row[2*i]
			keypoints[idx*3+1] = row[2*i+1]
			keypoints[idx*3+2] = 1
		}
		record := structuredFrame{
			Version: 1.3,
			People: []structuredPerson{{
				PersonID:             []int{-1},
				PoseKeypoints2D:      keypoints,
				FaceKeypoints2D:      []float64{},
				HandLeftKeypoints2D:  []float64{},
				HandRightKeypoints2D: []float64{},
				PoseKeypoints3D:      []float64{},
				FaceKeypoints3D:      []float64{},
				HandLeftKeypoints3D:  []float64{},
				HandRightKeypoints3D: []float64{},
			}},
		}
		data, err := json.Marshal(record)
		if err != nil {
			return err
		}
		path := filepath.Join(camDir, fmt.Sprintf("%s_cam_%02d.%05d.json", clipName, camIdx+1, frame))
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return errors.Wrapf(err, "writing %s", path)
		}
	}
	return nil
}
