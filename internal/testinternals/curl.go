// Package testinternals builds synthetic pose streams for tests.
package testinternals

import (
	"bytes"
	"encoding/json"
	"math"
	"time"

	"github.com/2beens/formcoach/internal/pose"
)

// CurlStart is the timestamp of frame 0. Frames are 33ms apart.
var CurlStart = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

const FrameInterval = 33 * time.Millisecond

// CurlPose describes a left arm bicep curl seen from the side.
type CurlPose struct {
	Elbow float64
	// wrist angle, 180 is a straight wrist
	Wrist float64
	// horizontal hip offset in pixels
	HipOffset float64
}

func polar(origin pose.Point, deg, r float64) pose.Point {
	rad := deg * math.Pi / 180
	return pose.Point{X: origin.X + r*math.Cos(rad), Y: origin.Y + r*math.Sin(rad)}
}

// CurlFrame renders p as a 1280x720 frame with the given index.
func CurlFrame(index int, p CurlPose) pose.Frame {
	if p.Wrist == 0 {
		p.Wrist = 180
	}
	if p.HipOffset == 0 {
		p.HipOffset = 10
	}
	shoulder := pose.Point{X: 600, Y: 300}
	elbow := pose.Point{X: 600, Y: 450}
	hip := pose.Point{X: 600 + p.HipOffset, Y: 600}
	// the shoulder sits at -90 degrees seen from the elbow
	wrist := polar(elbow, -90+p.Elbow, 150)
	forearmDir := math.Atan2(elbow.Y-wrist.Y, elbow.X-wrist.X) * 180 / math.Pi
	pinky := polar(wrist, forearmDir+p.Wrist, 20)

	return pose.Frame{
		Index:     uint64(index),
		Timestamp: CurlStart.Add(time.Duration(index) * FrameInterval),
		Width:     1280,
		Height:    720,
		Joints: map[pose.JointID]pose.Joint{
			pose.LeftShoulder: {Point: shoulder, Confidence: 0.99},
			pose.LeftElbow:    {Point: elbow, Confidence: 0.99},
			pose.LeftWrist:    {Point: wrist, Confidence: 0.99},
			pose.LeftPinky:    {Point: pinky, Confidence: 0.99},
			pose.LeftHip:      {Point: hip, Confidence: 0.99},
		},
	}
}

// CleanReps returns the elbow angles of n clean reps, 160 -> 60 -> 160 in
// steps of 10, ending extended.
func CleanReps(n int) []float64 {
	angles := []float64{160}
	for r := 0; r < n; r++ {
		for a := 150.0; a >= 60; a -= 10 {
			angles = append(angles, a)
		}
		for a := 70.0; a <= 160; a += 10 {
			angles = append(angles, a)
		}
	}
	return angles
}

// CurlFrames renders poses as consecutive frames starting at index 0.
func CurlFrames(poses ...CurlPose) []pose.Frame {
	frames := make([]pose.Frame, 0, len(poses))
	for i, p := range poses {
		frames = append(frames, CurlFrame(i, p))
	}
	return frames
}

// ElbowPoses maps elbow angles to otherwise clean poses.
func ElbowPoses(angles []float64) []CurlPose {
	poses := make([]CurlPose, 0, len(angles))
	for _, a := range angles {
		poses = append(poses, CurlPose{Elbow: a})
	}
	return poses
}

// JSONL encodes frames one per line, the way pose detectors stream them.
func JSONL(frames []pose.Frame) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, f := range frames {
		if err := enc.Encode(f); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}
