package reproject

import (
	"encoding/csv"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Trajectory is a frame-indexed table of 3D marker positions read from a TRC
// file. Coordinates are stored row-major, 3 values per marker per frame, in
// the file's Y-up convention until relabeled at ingestion.
type Trajectory struct {
	Markers    []string
	FrameNums  []int
	Times      []float64
	Rows       [][]float64 // one row per frame, 3*len(Markers) values
	DataRate   float64
	CameraRate float64
	NumFrames  int
	NumMarkers int
	Units      string
}

// ReadTRC parses a TRC trajectory file: two metadata header rows, a marker
// label row, a coordinate label row, then one data row per frame holding the
// frame number, the time and 3N coordinates.
func ReadTRC(path string) (*Trajectory, error) {
	f, err := os.Open(path) //nolint:gosec
	if err != nil {
		return nil, errors.Wrapf(err, "opening trajectory file")
	}
	defer f.Close() //nolint:errcheck,gosec

	reader := csv.NewReader(f)
	reader.Comma = '\t'
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return nil, errors.Wrapf(err, "parsing %s", path)
	}
	if len(records) < 6 {
		return nil, errors.Errorf("%s: too short to be a TRC file (%d lines)", path, len(records))
	}

	traj := &Trajectory{}
	// rows 2 and 3 are parallel metadata keys and values
	meta := map[string]string{}
	for i, key := range records[1] {
		if i < len(records[2]) {
			meta[key] = records[2][i]
		}
	}
	traj.DataRate, _ = strconv.ParseFloat(meta["DataRate"], 64)
	traj.CameraRate, _ = strconv.ParseFloat(meta["CameraRate"], 64)
	traj.NumFrames, _ = strconv.Atoi(meta["NumFrames"])
	traj.NumMarkers, _ = strconv.Atoi(meta["NumMarkers"])
	traj.Units = meta["Units"]

	// row 4 holds the marker labels, one every third column after Frame#/Time
	labels := records[3]
	for i := 2; i < len(labels); i += 3 {
		name := strings.TrimSpace(labels[i])
		if name != "" {
			traj.Markers = append(traj.Markers, name)
		}
	}
	if traj.NumMarkers != 0 && len(traj.Markers) != traj.NumMarkers {
		return nil, errors.Errorf("%s: header declares %d markers but %d are labeled",
			path, traj.NumMarkers, len(traj.Markers))
	}

	width := 3 * len(traj.Markers)
	for lineIdx, record := range records[5:] {
		if len(record) == 0 || (len(record) == 1 && strings.TrimSpace(record[0]) == "") {
			continue
		}
		if len(record) < 2+width {
			return nil, errors.Errorf("%s: frame line %d has %d fields, want %d",
				path, lineIdx+6, len(record), 2+width)
		}
		frameNum, err := strconv.Atoi(strings.TrimSpace(record[0]))
		if err != nil {
			return nil, errors.Wrapf(err, "%s: frame line %d", path, lineIdx+6)
		}
		tv, err := strconv.ParseFloat(strings.TrimSpace(record[1]), 64)
		if err != nil {
			return nil, errors.Wrapf(err, "%s: frame line %d", path, lineIdx+6)
		}
		row := make([]float64, width)
		for i := 0; i < width; i++ {
			v, err := strconv.ParseFloat(strings.TrimSpace(record[2+i]), 64)
			if err != nil {
				return nil, errors.Wrapf(err, "%s: frame line %d column %d", path, lineIdx+6, 2+i)
			}
			row[i] = v
		}
		traj.FrameNums = append(traj.FrameNums, frameNum)
		traj.Times = append(traj.Times, tv)
		traj.Rows = append(traj.Rows, row)
	}
	return traj, nil
}
