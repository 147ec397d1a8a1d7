package pose

import (
	"errors"
	"fmt"
	"math"
	"time"
)

var ErrJointMissing = errors.New("joint missing")

// Joint is a single detected landmark. Confidence is optional, 0 means the
// detector did not report one.
type Joint struct {
	Point
	Confidence float64 `json:"confidence,omitempty"`
}

// Triple defines an angle by its three joints, Vertex being the middle one.
type Triple struct {
	A      JointID `json:"a" toml:"a"`
	Vertex JointID `json:"vertex" toml:"vertex"`
	B      JointID `json:"b" toml:"b"`
}

func (t Triple) String() string {
	return fmt.Sprintf("%s-%s-%s", t.A, t.Vertex, t.B)
}

// Frame is one frame observation as produced by the pose detector.
// Width is the frame width in pixels; zero means coordinates are normalized.
type Frame struct {
	Index     uint64            `json:"index"`
	Timestamp time.Time         `json:"timestamp"`
	Width     int               `json:"width,omitempty"`
	Height    int               `json:"height,omitempty"`
	Joints    map[JointID]Joint `json:"joints"`
}

// Empty means no person was detected in the frame.
func (f Frame) Empty() bool {
	return len(f.Joints) == 0
}

func (f Frame) Joint(id JointID, minConfidence float64) (Joint, error) {
	j, ok := f.Joints[id]
	if !ok {
		return Joint{}, fmt.Errorf("%w: %s", ErrJointMissing, id)
	}
	if j.Confidence > 0 && j.Confidence < minConfidence {
		return Joint{}, fmt.Errorf("%w: %s below confidence %.2f", ErrJointMissing, id, minConfidence)
	}
	return j, nil
}

func (f Frame) Angle(t Triple, minConfidence float64) (float64, error) {
	vertex, err := f.Joint(t.Vertex, minConfidence)
	if err != nil {
		return 0, err
	}
	a, err := f.Joint(t.A, minConfidence)
	if err != nil {
		return 0, err
	}
	b, err := f.Joint(t.B, minConfidence)
	if err != nil {
		return 0, err
	}

	angle, err := AngleAt(vertex.Point, a.Point, b.Point)
	if err != nil {
		return 0, fmt.Errorf("angle %s: %w", t, err)
	}
	return angle, nil
}

// HorizontalDistance returns |a.x - b.x| as a fraction of the frame width.
func (f Frame) HorizontalDistance(a, b JointID, minConfidence float64) (float64, error) {
	ja, err := f.Joint(a, minConfidence)
	if err != nil {
		return 0, err
	}
	jb, err := f.Joint(b, minConfidence)
	if err != nil {
		return 0, err
	}

	width := 1.0
	if f.Width > 0 {
		width = float64(f.Width)
	}
	d := math.Abs(ja.X-jb.X) / width
	if math.IsNaN(d) || math.IsInf(d, 0) {
		return 0, fmt.Errorf("distance %s-%s: %w", a, b, ErrDegenerate)
	}
	return d, nil
}
