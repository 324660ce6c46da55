package calib

import (
	"encoding/xml"
	"os"
	"strconv"
	"strings"

	"github.com/golang/geo/r3"

	"github.com/LempereurMat/pose2sim/spatial"
)

type xcpDocument struct {
	XMLName xml.Name    `xml:"Cameras"`
	Cameras []xcpCamera `xml:"Camera"`
}

type xcpCamera struct {
	DeviceID         string        `xml:"DEVICEID,attr"`
	SensorSize       string        `xml:"SENSOR_SIZE,attr"`
	PixelAspectRatio string        `xml:"PIXEL_ASPECT_RATIO,attr"`
	KeyFrames        []xcpKeyFrame `xml:"KeyFrames>KeyFrame"`
}

type xcpKeyFrame struct {
	FocalLength    string `xml:"FOCAL_LENGTH,attr"`
	PrincipalPoint string `xml:"PRINCIPAL_POINT,attr"`
	Orientation    string `xml:"ORIENTATION,attr"`
	Position       string `xml:"POSITION,attr"`
	WorldError     string `xml:"WORLD_ERROR,attr"`
	ViconRadial    string `xml:"VICON_RADIAL,attr"`
	ViconRadial2   string `xml:"VICON_RADIAL2,attr"`
}

// ReadVicon parses a Vicon .xcp calibration export into canonical camera
// parameters. Cameras are ordered by a natural sort of their device ids and
// the vendor's camera-view extrinsics are inverted to object view. The
// orientation quaternion is stored scalar-last.
func ReadVicon(path string) (*CameraSet, error) {
	data, err := os.ReadFile(path) //nolint:gosec
	if err != nil {
		return nil, NewConfigurationError("cannot read calibration export %s: %v", path, err)
	}
	var doc xcpDocument
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, NewParseError(path, -1, "invalid XML: %v", err)
	}

	set := &CameraSet{}
	for i, cam := range doc.Cameras {
		if len(cam.KeyFrames) == 0 {
			return nil, NewParseError(path, i, "camera %q has no KeyFrame", cam.DeviceID)
		}
		kf := cam.KeyFrames[0]
		p := &attrParser{path: path, camera: i}

		size := p.floats("SENSOR_SIZE", cam.SensorSize, 2)
		residual := p.float("WORLD_ERROR", kf.WorldError)

		// the 2-parameter VICON_RADIAL2 field supersedes VICON_RADIAL when
		// present; its radial coefficients sit at word offsets 3 and 4
		var dist []float64
		if kf.ViconRadial2 != "" {
			words := p.floats("VICON_RADIAL2", kf.ViconRadial2, 5)
			if p.err == nil {
				dist = []float64{words[3], words[4]}
			}
		} else {
			dist = p.floats("VICON_RADIAL", kf.ViconRadial, 2)
		}
		dist = append(dist, 0.0, 0.0)

		fu := p.float("FOCAL_LENGTH", kf.FocalLength)
		aspect := p.float("PIXEL_ASPECT_RATIO", cam.PixelAspectRatio)
		center := p.floats("PRINCIPAL_POINT", kf.PrincipalPoint, 2)
		quaternion := p.floats("ORIENTATION", kf.Orientation, 4)
		position := p.floats("POSITION", kf.Position, 3)
		if p.err != nil {
			return nil, p.err
		}
		if aspect == 0 {
			return nil, NewParseError(path, i, "PIXEL_ASPECT_RATIO must be non-zero")
		}
		fv := fu / aspect

		rot, err := spatial.QuaternionToMatrix(quaternion, 3)
		if err != nil {
			return nil, NewParseError(path, i, "ORIENTATION: %v", err)
		}
		trans := r3.Vector{X: position[0] / 1000., Y: position[1] / 1000., Z: position[2] / 1000.}
		objRot, objTrans := spatial.ToObjectView(rot, trans)

		set.Cameras = append(set.Cameras, &CameraParameters{
			Name:          cam.DeviceID,
			Width:         size[0],
			Height:        size[1],
			Intrinsics:    NewIntrinsicMatrix(fu, fv, center[0], center[1]),
			Distortion:    dist,
			Rotation:      spatial.MatrixToRodrigues(objRot),
			Translation:   objTrans,
			ResidualError: residual,
			ResidualUnit:  ResidualMillimeters,
		})
	}
	set.SortNatural()
	return set, nil
}

// floats parses a whitespace-separated attribute into at least min values.
func (p *attrParser) floats(name, value string, min int) []float64 {
	if p.err != nil {
		return make([]float64, min)
	}
	words := strings.Fields(value)
	if len(words) < min {
		p.err = NewParseError(p.path, p.camera, "attribute %q must have at least %d values, got %d", name, min, len(words))
		return make([]float64, min)
	}
	out := make([]float64, len(words))
	for i, w := range words {
		f, err := strconv.ParseFloat(w, 64)
		if err != nil {
			p.err = NewParseError(p.path, p.camera, "attribute %q: %v", name, err)
			return make([]float64, min)
		}
		out[i] = f
	}
	return out
}
