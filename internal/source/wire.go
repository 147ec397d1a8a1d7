package source

import (
	"time"

	"github.com/2beens/formcoach/internal/pose"
)

// wireFrame is the line format written by pose detectors. Joints come
// either keyed by name or as the raw ordered landmark list.
type wireFrame struct {
	Index     uint64                      `json:"index"`
	Timestamp time.Time                   `json:"timestamp"`
	TimeMs    int64                       `json:"timeMs"`
	Width     int                         `json:"width"`
	Height    int                         `json:"height"`
	Joints    map[pose.JointID]pose.Joint `json:"joints"`
	Landmarks []wireLandmark              `json:"landmarks"`
}

type wireLandmark struct {
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Visibility float64 `json:"visibility"`
}

func (w wireFrame) toFrame() pose.Frame {
	f := pose.Frame{
		Index:     w.Index,
		Timestamp: w.Timestamp,
		Width:     w.Width,
		Height:    w.Height,
		Joints:    make(map[pose.JointID]pose.Joint, len(w.Joints)+len(w.Landmarks)),
	}
	if f.Timestamp.IsZero() && w.TimeMs > 0 {
		f.Timestamp = time.UnixMilli(w.TimeMs).UTC()
	}

	for id, j := range w.Joints {
		if id.IsKnown() {
			f.Joints[id] = j
		}
	}
	for i, lm := range w.Landmarks {
		id, ok := pose.LandmarkName(i)
		if !ok {
			continue
		}
		f.Joints[id] = pose.Joint{
			Point:      pose.Point{X: lm.X, Y: lm.Y},
			Confidence: lm.Visibility,
		}
	}
	return f
}
