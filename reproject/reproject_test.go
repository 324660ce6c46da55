package reproject

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"go.viam.com/test"

	"github.com/LempereurMat/pose2sim/calib"
	"github.com/LempereurMat/pose2sim/logging"
)

const trialSample = "PathFileType\t4\t(X/Y/Z)\ttrial.trc\n" +
	"DataRate\tCameraRate\tNumFrames\tNumMarkers\tUnits\n" +
	"60.0\t60.0\t2\t1\tm\n" +
	"Frame#\tTime\tNose\t\t\n" +
	"\tX1\tY1\tZ1\n" +
	"1\t0.000\t0\t0\t0\n" +
	"2\t0.017\t1\t2\t3\n"

func writeTrialFixtures(t *testing.T) (trcPath, calibPath string) {
	t.Helper()
	dir := t.TempDir()
	trcPath = filepath.Join(dir, "trial.trc")
	test.That(t, os.WriteFile(trcPath, []byte(trialSample), 0o644), test.ShouldBeNil)

	calibPath = filepath.Join(dir, "Calib.toml")
	set := &calib.CameraSet{Cameras: []*calib.CameraParameters{
		pinholeCamera("cam_01"), pinholeCamera("cam_02"),
	}}
	test.That(t, calib.WriteFile(calibPath, set, calib.Metadata{}), test.ShouldBeNil)
	return trcPath, calibPath
}

func TestTrialStructuredOutput(t *testing.T) {
	trcPath, calibPath := writeTrialFixtures(t)
	outputDir := filepath.Join(t.TempDir(), "out")

	err := Trial(context.Background(), trcPath, Options{
		CalibrationPath: calibPath,
		Format:          FormatStructured,
		OutputDir:       outputDir,
	}, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)

	// one json directory per camera, one record per frame
	for _, cam := range []string{"cam_01_json", "cam_02_json"} {
		entries, err := os.ReadDir(filepath.Join(outputDir, cam))
		test.That(t, err, test.ShouldBeNil)
		test.That(t, entries, test.ShouldHaveLength, 2)
	}

	data, err := os.ReadFile(filepath.Join(outputDir, "cam_01_json", "trial_cam_01.00000.json"))
	test.That(t, err, test.ShouldBeNil)
	var frame structuredFrame
	test.That(t, json.Unmarshal(data, &frame), test.ShouldBeNil)
	// the world origin projects onto the principal point
	test.That(t, frame.People[0].PoseKeypoints2D[0], test.ShouldAlmostEqual, 10, 1e-6)
	test.That(t, frame.People[0].PoseKeypoints2D[1], test.ShouldAlmostEqual, 10, 1e-6)

	data, err = os.ReadFile(filepath.Join(outputDir, "cam_01_json", "trial_cam_01.00001.json"))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, json.Unmarshal(data, &frame), test.ShouldBeNil)
	// trajectory (1, 2, 3) is stored Y-up; in the Z-up world it is (3, 1, 2)
	test.That(t, frame.People[0].PoseKeypoints2D[0], test.ShouldAlmostEqual, 10+300./7, 1e-6)
	test.That(t, frame.People[0].PoseKeypoints2D[1], test.ShouldAlmostEqual, 10+100./7, 1e-6)
}

func TestTrialLabeledOutput(t *testing.T) {
	trcPath, calibPath := writeTrialFixtures(t)
	outputDir := filepath.Join(t.TempDir(), "out")

	err := Trial(context.Background(), trcPath, Options{
		CalibrationPath: calibPath,
		OutputDir:       outputDir,
		Scorer:          "lab",
	}, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)

	for _, name := range []string{"trial_cam_01.csv", "trial_cam_02.csv"} {
		_, err := os.Stat(filepath.Join(outputDir, name))
		test.That(t, err, test.ShouldBeNil)
	}
}

func TestTrialBadFormat(t *testing.T) {
	trcPath, calibPath := writeTrialFixtures(t)
	err := Trial(context.Background(), trcPath, Options{
		CalibrationPath: calibPath,
		Format:          Format("yaml"),
	}, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, calib.IsConfigurationError(err), test.ShouldBeTrue)
}

func TestTrialDefaultOutputDir(t *testing.T) {
	trcPath, calibPath := writeTrialFixtures(t)
	err := Trial(context.Background(), trcPath, Options{
		CalibrationPath: calibPath,
	}, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)

	_, err = os.Stat(filepath.Join(filepath.Dir(trcPath), "trial_reproj", "trial_cam_01.csv"))
	test.That(t, err, test.ShouldBeNil)
}
