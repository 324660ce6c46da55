package vision

import (
	"context"
	"image"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
)

// ErrLabelingCancelled is returned when the operator cancels a labeling
// session. It fails that camera's calibration, not the whole run.
var ErrLabelingCancelled = errors.New("labeling cancelled")

// minCorrespondences is the pose-solve minimum; Confirm refuses below it.
const minCorrespondences = 4

// Labeler obtains confirmed 2D/3D correspondences from a human when
// automatic detection fails or scene reference points are used. The
// interactive UI behind it belongs to the host application; from the
// calibration worker's perspective this is a synchronous call that returns
// confirmed points or ErrLabelingCancelled.
type Labeler interface {
	ConfirmOrRelabel(
		ctx context.Context,
		img image.Image,
		detected []r2.Point,
		objectPoints []r3.Vector,
	) ([]r2.Point, []r3.Vector, error)
}

// Session collects manually labeled correspondences for one camera
// calibration task. Each session is owned by the worker that created it;
// there is no shared state between sessions. Labeled image points are paired
// with object points in order; points the operator cannot see are skipped
// with MarkNotVisible.
type Session struct {
	objectPoints []r3.Vector
	ops          []labelOp
	cancelled    bool
	confirmed    bool
}

type labelOp struct {
	point   r2.Point
	visible bool
}

// NewSession starts a labeling session. objectPoints may be nil when the
// operator is labeling checkerboard corners whose object grid is implied.
func NewSession(objectPoints []r3.Vector) *Session {
	return &Session{objectPoints: objectPoints}
}

// AddPoint pairs a clicked image point with the next unlabeled object point.
func (s *Session) AddPoint(p r2.Point) error {
	if err := s.open(); err != nil {
		return err
	}
	if s.objectPoints != nil && len(s.ops) >= len(s.objectPoints) {
		return errors.Errorf("all %d object points already labeled", len(s.objectPoints))
	}
	s.ops = append(s.ops, labelOp{point: p, visible: true})
	return nil
}

// MarkNotVisible records that the next object point cannot be seen in this
// view and moves on to the one after it.
func (s *Session) MarkNotVisible() error {
	if err := s.open(); err != nil {
		return err
	}
	if s.objectPoints == nil {
		return errors.New("cannot skip points without a reference object point list")
	}
	if len(s.ops) >= len(s.objectPoints) {
		return errors.Errorf("all %d object points already labeled", len(s.objectPoints))
	}
	s.ops = append(s.ops, labelOp{visible: false})
	return nil
}

// RemoveLast undoes the most recent AddPoint or MarkNotVisible.
func (s *Session) RemoveLast() error {
	if err := s.open(); err != nil {
		return err
	}
	if len(s.ops) == 0 {
		return errors.New("nothing to remove")
	}
	s.ops = s.ops[:len(s.ops)-1]
	return nil
}

// Confirm closes the session and returns the paired image and object points.
// At least 4 visible correspondences are required for a pose solve.
func (s *Session) Confirm() ([]r2.Point, []r3.Vector, error) {
	if err := s.open(); err != nil {
		return nil, nil, err
	}
	var imagePoints []r2.Point
	var objectPoints []r3.Vector
	for i, op := range s.ops {
		if !op.visible {
			continue
		}
		imagePoints = append(imagePoints, op.point)
		if s.objectPoints != nil {
			objectPoints = append(objectPoints, s.objectPoints[i])
		}
	}
	if len(imagePoints) < minCorrespondences {
		return nil, nil, errors.Wrapf(ErrLabelingCancelled,
			"only %d visible correspondences, need at least %d", len(imagePoints), minCorrespondences)
	}
	s.confirmed = true
	return imagePoints, objectPoints, nil
}

// Cancel closes the session without producing correspondences. The pending
// set is discarded and the camera's calibration fails with
// ErrLabelingCancelled.
func (s *Session) Cancel() {
	s.cancelled = true
	s.ops = nil
}

func (s *Session) open() error {
	if s.cancelled {
		return ErrLabelingCancelled
	}
	if s.confirmed {
		return errors.New("session already confirmed")
	}
	return nil
}
