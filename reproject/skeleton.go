package reproject

// The BODY_25B skeleton (full body without hands, from OpenPose's
// experimental models) fixes the joint order of the flattened keypoint array
// in the structured per-frame output. Ears and eyes (indices 1-4) carry no
// marker and stay zero-filled.
const body25BJointCount = 25

// body25BIndex maps a joint name to its slot in the 25-joint output array.
// Built once; never mutated.
var body25BIndex = map[string]int{
	"Nose":      0,
	"LShoulder": 5,
	"RShoulder": 6,
	"LElbow":    7,
	"RElbow":    8,
	"LWrist":    9,
	"RWrist":    10,
	"LHip":      11,
	"RHip":      12,
	"LKnee":     13,
	"RKnee":     14,
	"LAnkle":    15,
	"RAnkle":    16,
	"Neck":      17,
	"Head":      18,
	"LBigToe":   19,
	"LSmallToe": 20,
	"LHeel":     21,
	"RBigToe":   22,
	"RSmallToe": 23,
	"RHeel":     24,
}
