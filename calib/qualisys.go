package calib

import (
	"encoding/xml"
	"math"
	"os"
	"strconv"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"

	"github.com/LempereurMat/pose2sim/spatial"
)

// qualisysVideoModels are the camera models kept when reading a Qualisys
// export; marker-only cameras are excluded from the result.
var qualisysVideoModels = map[string]bool{
	"Miqus Video":            true,
	"Miqus Video UnderWater": true,
	"none":                   true,
}

// Qualisys stores focal lengths, centers and distortion as 1/64-pixel fixed
// point values.
const qualisysFixedPoint = 64.0

type qcaDocument struct {
	XMLName xml.Name    `xml:"calibration"`
	Cameras []qcaCamera `xml:"cameras>camera"`
}

type qcaCamera struct {
	Serial      string        `xml:"serial,attr"`
	Model       string        `xml:"model,attr"`
	AvgResidual string        `xml:"avg-residual,attr"`
	FovVideo    *qcaFov       `xml:"fov_video"`
	Intrinsic   *qcaIntrinsic `xml:"intrinsic"`
	Transform   *qcaTransform `xml:"transform"`
}

type qcaFov struct {
	Left   string `xml:"left,attr"`
	Right  string `xml:"right,attr"`
	Top    string `xml:"top,attr"`
	Bottom string `xml:"bottom,attr"`
}

type qcaIntrinsic struct {
	FocalLengthU         string `xml:"focalLengthU,attr"`
	FocalLengthV         string `xml:"focalLengthV,attr"`
	CenterPointU         string `xml:"centerPointU,attr"`
	CenterPointV         string `xml:"centerPointV,attr"`
	RadialDistortion1    string `xml:"radialDistortion1,attr"`
	RadialDistortion2    string `xml:"radialDistortion2,attr"`
	TangentalDistortion1 string `xml:"tangentalDistortion1,attr"`
	TangentalDistortion2 string `xml:"tangentalDistortion2,attr"`
}

type qcaTransform struct {
	X   string `xml:"x,attr"`
	Y   string `xml:"y,attr"`
	Z   string `xml:"z,attr"`
	R11 string `xml:"r11,attr"`
	R12 string `xml:"r12,attr"`
	R13 string `xml:"r13,attr"`
	R21 string `xml:"r21,attr"`
	R22 string `xml:"r22,attr"`
	R23 string `xml:"r23,attr"`
	R31 string `xml:"r31,attr"`
	R32 string `xml:"r32,attr"`
	R33 string `xml:"r33,attr"`
}

// ReadQualisys parses a Qualisys .qca.txt calibration export into canonical
// camera parameters. Non-video camera models are excluded, cameras are
// ordered by a natural sort of their serials, and the vendor's camera-view
// extrinsics are inverted to object view with a pi rotation about X folded
// in, since Qualisys points the camera's forward axis the other way.
func ReadQualisys(path string, binningFactor int) (*CameraSet, error) {
	data, err := os.ReadFile(path) //nolint:gosec
	if err != nil {
		return nil, NewConfigurationError("cannot read calibration export %s: %v", path, err)
	}
	var doc qcaDocument
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, NewParseError(path, -1, "invalid XML: %v", err)
	}
	binning := float64(binningFactor)
	if binning <= 0 {
		binning = 1
	}

	set := &CameraSet{}
	for i, cam := range doc.Cameras {
		if !qualisysVideoModels[cam.Model] {
			continue
		}
		p := &attrParser{path: path, camera: i}
		residual := p.float("avg-residual", cam.AvgResidual)

		if cam.FovVideo == nil || cam.Intrinsic == nil || cam.Transform == nil {
			return nil, NewParseError(path, i, "camera %q is missing fov_video, intrinsic or transform", cam.Serial)
		}
		left := p.float("left", cam.FovVideo.Left)
		right := p.float("right", cam.FovVideo.Right)
		top := p.float("top", cam.FovVideo.Top)
		bottom := p.float("bottom", cam.FovVideo.Bottom)
		width := (right - left + 1) / binning
		height := (bottom - top + 1) / binning

		scale := qualisysFixedPoint * binning
		k1 := p.float("radialDistortion1", cam.Intrinsic.RadialDistortion1) / scale
		k2 := p.float("radialDistortion2", cam.Intrinsic.RadialDistortion2) / scale
		p1 := p.float("tangentalDistortion1", cam.Intrinsic.TangentalDistortion1) / scale
		p2 := p.float("tangentalDistortion2", cam.Intrinsic.TangentalDistortion2) / scale
		fu := p.float("focalLengthU", cam.Intrinsic.FocalLengthU) / scale
		fv := p.float("focalLengthV", cam.Intrinsic.FocalLengthV) / scale
		cu := p.float("centerPointU", cam.Intrinsic.CenterPointU)/scale - left
		cv := p.float("centerPointV", cam.Intrinsic.CenterPointV)/scale - top

		// the file stores the rotation column-major, so transpose on read
		rot := mat.NewDense(3, 3, []float64{
			p.float("r11", cam.Transform.R11), p.float("r12", cam.Transform.R12), p.float("r13", cam.Transform.R13),
			p.float("r21", cam.Transform.R21), p.float("r22", cam.Transform.R22), p.float("r23", cam.Transform.R23),
			p.float("r31", cam.Transform.R31), p.float("r32", cam.Transform.R32), p.float("r33", cam.Transform.R33),
		})
		var rotT mat.Dense
		rotT.CloneFrom(rot.T())
		trans := r3.Vector{
			X: p.float("x", cam.Transform.X) / 1000.,
			Y: p.float("y", cam.Transform.Y) / 1000.,
			Z: p.float("z", cam.Transform.Z) / 1000.,
		}
		if p.err != nil {
			return nil, p.err
		}

		objRot, objTrans := spatial.ToObjectView(&rotT, trans)
		objRot, objTrans = spatial.RotateAxes(objRot, objTrans, math.Pi, 0, 0)

		set.Cameras = append(set.Cameras, &CameraParameters{
			Name:          cam.Serial,
			Width:         width,
			Height:        height,
			Intrinsics:    NewIntrinsicMatrix(fu, fv, cu, cv),
			Distortion:    []float64{k1, k2, p1, p2},
			Rotation:      spatial.MatrixToRodrigues(objRot),
			Translation:   objTrans,
			ResidualError: residual,
			ResidualUnit:  ResidualMillimeters,
		})
	}
	set.SortNatural()
	return set, nil
}

// attrParser accumulates the first float parse failure so a reader can
// convert a whole record and check once.
type attrParser struct {
	path   string
	camera int
	err    error
}

func (p *attrParser) float(name, value string) float64 {
	if p.err != nil {
		return 0
	}
	if value == "" {
		p.err = NewParseError(p.path, p.camera, "missing required attribute %q", name)
		return 0
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		p.err = NewParseError(p.path, p.camera, "attribute %q: %v", name, err)
		return 0
	}
	return f
}
