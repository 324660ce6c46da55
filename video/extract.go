// Package video extracts still frames from calibration capture videos.
package video

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/pkg/errors"
	ffmpeg "github.com/u2takey/ffmpeg-go"

	"github.com/LempereurMat/pose2sim/logging"
)

// videoExtensions are the container formats recognized as videos; anything
// else in a camera directory is treated as a still image.
var videoExtensions = map[string]bool{
	".mp4": true, ".avi": true, ".mov": true, ".mpg": true,
	".mpeg": true, ".mkv": true, ".wmv": true, ".m4v": true,
}

// extraction is serialized per source video so two workers never extract the
// same file concurrently.
var extractLocks sync.Map

// IsVideo reports whether path looks like a video container.
func IsVideo(path string) bool {
	return videoExtensions[strings.ToLower(filepath.Ext(path))]
}

// FramePattern returns the printf pattern the extracted frames of videoPath
// are written to.
func FramePattern(videoPath string) string {
	base := strings.TrimSuffix(videoPath, filepath.Ext(videoPath))
	return base + "_%05d.png"
}

// firstFramePath is the marker file used for the idempotence check.
func firstFramePath(videoPath string) string {
	return fmt.Sprintf(FramePattern(videoPath), 0)
}

// ExtractFrames writes one PNG every everyNSec seconds of video next to the
// source file. Extraction is idempotent: if the first frame already exists it
// is skipped unless overwrite is set. Concurrent calls for the same video are
// serialized.
func ExtractFrames(ctx context.Context, videoPath string, everyNSec float64, overwrite bool, logger logging.Logger) error {
	if everyNSec <= 0 {
		everyNSec = 1
	}
	lock, _ := extractLocks.LoadOrStore(videoPath, &sync.Mutex{})
	mu := lock.(*sync.Mutex)
	mu.Lock()
	defer mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := os.Stat(firstFramePath(videoPath)); err == nil && !overwrite {
		logger.Infof("frames already extracted for %s, skipping", videoPath)
		return nil
	}

	logger.Infof("extracting frames from %s every %gs", videoPath, everyNSec)
	err := ffmpeg.Input(videoPath).
		Filter("fps", ffmpeg.Args{fmt.Sprintf("1/%g", everyNSec)}).
		Output(FramePattern(videoPath), ffmpeg.KwArgs{"start_number": 0}).
		OverWriteOutput().
		Silent(true).
		Run()
	if err != nil {
		return errors.Wrapf(err, "extracting frames from %s", videoPath)
	}
	return nil
}

// ExtractedFrames lists the PNG frames previously extracted from videoPath,
// in frame order.
func ExtractedFrames(videoPath string) ([]string, error) {
	base := strings.TrimSuffix(videoPath, filepath.Ext(videoPath))
	frames, err := filepath.Glob(base + "_*.png")
	if err != nil {
		return nil, err
	}
	return frames, nil
}
