package coach

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/2beens/formcoach/internal/formcheck"
	"github.com/2beens/formcoach/internal/source"
)

//go:generate mockgen -source=$GOFILE -destination=run_mocks_test.go -package=coach_test

// feedbackQueue takes notifications off the frame loop. Enqueue must not
// block.
type feedbackQueue interface {
	Enqueue(sessionID, exerciseID string, n formcheck.Notification) bool
}

// FrameObserver, when set, sees every frame result, e.g. to print progress.
type FrameObserver func(res formcheck.FrameResult)

// Run drives src through the session one frame at a time, until the source
// ends (nil is returned), ctx is done or the source fails.
func Run(ctx context.Context, src source.FrameSource, live *LiveSession, queue feedbackQueue, observe FrameObserver) error {
	for {
		frame, err := src.Next(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				log.Debugf("coach: source of session %s ended", live.ID)
				return nil
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("next frame: %w", err)
		}

		res, err := live.Process(frame, time.Now())
		if err != nil {
			return err
		}
		if observe != nil {
			observe(res)
		}
		if res.Notification != nil && queue != nil {
			queue.Enqueue(live.ID, live.ExerciseID, *res.Notification)
		}
	}
}
