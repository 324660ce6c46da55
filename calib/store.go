package calib

import (
	"bytes"
	"fmt"
	"os"
	"sort"

	"github.com/golang/geo/r3"
	"github.com/pelletier/go-toml/v2"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// Metadata is the trailing metadata block of a calibration file.
type Metadata struct {
	Adjusted bool    `toml:"adjusted"`
	Error    float64 `toml:"error"`
}

// cameraRecord is the on-disk shape of one camera block. Field order and
// presence are fixed by the format.
type cameraRecord struct {
	Name         string      `toml:"name"`
	Size         []float64   `toml:"size"`
	Matrix       [][]float64 `toml:"matrix"`
	Distortions  []float64   `toml:"distortions"`
	Rotation     []float64   `toml:"rotation"`
	Translation  []float64   `toml:"translation"`
	Fisheye      bool        `toml:"fisheye"`
}

// WriteFile persists the camera set to path. One [cam_NN] table per camera,
// in set order, followed by the [metadata] table.
func WriteFile(path string, set *CameraSet, meta Metadata) error {
	if err := set.CheckValid(); err != nil {
		return errors.Wrap(err, "refusing to persist invalid calibration")
	}
	var buf bytes.Buffer
	for i, cam := range set.Cameras {
		block := map[string]cameraRecord{
			fmt.Sprintf("cam_%02d", i+1): toRecord(cam),
		}
		// one encoder call per camera keeps the tables in camera order
		if err := toml.NewEncoder(&buf).Encode(block); err != nil {
			return errors.Wrapf(err, "encoding camera %q", cam.Name)
		}
	}
	if err := toml.NewEncoder(&buf).Encode(map[string]Metadata{"metadata": meta}); err != nil {
		return errors.Wrap(err, "encoding metadata")
	}
	return os.WriteFile(path, buf.Bytes(), 0o644)
}

// ReadFile loads a calibration file. Unknown top-level tables are tolerated;
// camera tables are recognized by their required fields and returned in the
// natural order of their table names.
func ReadFile(path string) (*CameraSet, Metadata, error) {
	data, err := os.ReadFile(path) //nolint:gosec
	if err != nil {
		return nil, Metadata{}, errors.Wrap(err, "reading calibration file")
	}
	var doc map[string]interface{}
	if err := toml.Unmarshal(data, &doc); err != nil {
		return nil, Metadata{}, errors.Wrapf(err, "parsing calibration file %s", path)
	}

	var meta Metadata
	keys := make([]string, 0, len(doc))
	for key := range doc {
		if key == "metadata" {
			if err := reencode(doc[key], &meta); err != nil {
				return nil, Metadata{}, errors.Wrapf(err, "parsing metadata in %s", path)
			}
			continue
		}
		keys = append(keys, key)
	}
	sort.SliceStable(keys, func(i, j int) bool { return naturalLess(keys[i], keys[j]) })

	set := &CameraSet{}
	for _, key := range keys {
		var rec cameraRecord
		if err := reencode(doc[key], &rec); err != nil || rec.Name == "" || rec.Matrix == nil {
			// not a camera block
			continue
		}
		cam, err := fromRecord(rec)
		if err != nil {
			return nil, Metadata{}, errors.Wrapf(err, "camera block %q in %s", key, path)
		}
		set.Cameras = append(set.Cameras, cam)
	}
	return set, meta, nil
}

func toRecord(cam *CameraParameters) cameraRecord {
	k := cam.Intrinsics
	return cameraRecord{
		Name: cam.Name,
		Size: []float64{cam.Width, cam.Height},
		Matrix: [][]float64{
			{k.At(0, 0), k.At(0, 1), k.At(0, 2)},
			{k.At(1, 0), k.At(1, 1), k.At(1, 2)},
			{k.At(2, 0), k.At(2, 1), k.At(2, 2)},
		},
		Distortions: cam.Distortion,
		Rotation:    []float64{cam.Rotation.X, cam.Rotation.Y, cam.Rotation.Z},
		Translation: []float64{cam.Translation.X, cam.Translation.Y, cam.Translation.Z},
		Fisheye:     cam.Fisheye,
	}
}

func fromRecord(rec cameraRecord) (*CameraParameters, error) {
	if len(rec.Size) != 2 {
		return nil, errors.Errorf("size must have 2 entries, got %d", len(rec.Size))
	}
	if len(rec.Matrix) != 3 {
		return nil, errors.Errorf("matrix must have 3 rows, got %d", len(rec.Matrix))
	}
	k := mat.NewDense(3, 3, nil)
	for i, row := range rec.Matrix {
		if len(row) != 3 {
			return nil, errors.Errorf("matrix row %d must have 3 entries, got %d", i, len(row))
		}
		for j, v := range row {
			k.Set(i, j, v)
		}
	}
	if len(rec.Rotation) != 3 || len(rec.Translation) != 3 {
		return nil, errors.New("rotation and translation must have 3 entries")
	}
	cam := &CameraParameters{
		Name:        rec.Name,
		Width:       rec.Size[0],
		Height:      rec.Size[1],
		Intrinsics:  k,
		Distortion:  rec.Distortions,
		Rotation:    r3.Vector{X: rec.Rotation[0], Y: rec.Rotation[1], Z: rec.Rotation[2]},
		Translation: r3.Vector{X: rec.Translation[0], Y: rec.Translation[1], Z: rec.Translation[2]},
		Fisheye:     rec.Fisheye,
	}
	return cam, cam.CheckValid()
}

// reencode round-trips a decoded TOML value into a typed struct.
func reencode(value interface{}, out interface{}) error {
	sub, err := toml.Marshal(value)
	if err != nil {
		return err
	}
	return toml.Unmarshal(sub, out)
}
