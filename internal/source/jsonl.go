package source

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"

	log "github.com/sirupsen/logrus"

	"github.com/2beens/formcoach/internal/pose"
)

const maxLineSize = 1 << 20

// JSONLSource replays a recorded stream, one JSON frame per line. Blank
// lines are skipped, a malformed line is reported with its line number.
type JSONLSource struct {
	r       io.ReadCloser
	scanner *bufio.Scanner
	line    int
	next    uint64
	// SkipInvalid logs and skips malformed lines instead of failing.
	SkipInvalid bool
}

func NewJSONLSource(r io.ReadCloser) *JSONLSource {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)
	return &JSONLSource{
		r:       r,
		scanner: scanner,
	}
}

func (s *JSONLSource) Next(ctx context.Context) (pose.Frame, error) {
	for {
		if err := ctx.Err(); err != nil {
			return pose.Frame{}, err
		}
		if !s.scanner.Scan() {
			if err := s.scanner.Err(); err != nil {
				return pose.Frame{}, fmt.Errorf("read line %d: %w", s.line+1, err)
			}
			return pose.Frame{}, io.EOF
		}
		s.line++

		line := bytes.TrimSpace(s.scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		frame, err := DecodeFrame(line)
		if err != nil {
			if s.SkipInvalid {
				log.Warnf("jsonl source: skipping line %d: %s", s.line, err)
				continue
			}
			return pose.Frame{}, fmt.Errorf("line %d: %w", s.line, err)
		}
		// recorded files often carry no index, number them in order
		if frame.Index == 0 {
			frame.Index = s.next
		}
		s.next = frame.Index + 1
		return frame, nil
	}
}

func (s *JSONLSource) Close() error {
	return s.r.Close()
}
