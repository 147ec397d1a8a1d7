package source

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/2beens/formcoach/internal/pose"
)

// FrameSource yields pose frames in arrival order. Next returns io.EOF once
// the stream is over.
type FrameSource interface {
	Next(ctx context.Context) (pose.Frame, error)
	Close() error
}

// DecodeFrame parses one JSON encoded frame. Unknown joint names are
// dropped so detectors exporting extra keypoints can be replayed as is.
func DecodeFrame(line []byte) (pose.Frame, error) {
	var raw wireFrame
	if err := json.Unmarshal(line, &raw); err != nil {
		return pose.Frame{}, fmt.Errorf("decode frame: %w", err)
	}
	return raw.toFrame(), nil
}
