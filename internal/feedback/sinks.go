package feedback

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	log "github.com/sirupsen/logrus"

	"github.com/2beens/formcoach/internal/formcheck"
)

// LogSink writes notifications to the service log.
type LogSink struct{}

func (LogSink) Name() string { return "log" }

func (LogSink) Deliver(_ context.Context, msg Message) error {
	log.WithFields(log.Fields{
		"session":  msg.SessionID,
		"exercise": msg.ExerciseID,
		"code":     msg.Notification.Code,
	}).Info(msg.Notification.Text())
	return nil
}

// WriterSink prints notifications as console lines, prefixed with the time
// the notification was emitted.
type WriterSink struct {
	mu sync.Mutex
	w  io.Writer
}

func NewWriterSink(w io.Writer) *WriterSink {
	return &WriterSink{w: w}
}

func (s *WriterSink) Name() string { return "writer" }

func (s *WriterSink) Deliver(_ context.Context, msg Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := fmt.Fprintf(s.w, "[%s] %s\n", msg.Notification.EmittedAt.Format("15:04:05.000"), msg.Notification.Text())
	return err
}

func ChannelName(sessionID string) string {
	return "formcoach:feedback:" + sessionID
}

// Payload is what subscribers of the feedback channel receive.
type Payload struct {
	SessionID  string              `json:"sessionId"`
	ExerciseID string              `json:"exerciseId"`
	Code       formcheck.ErrorCode `json:"code"`
	Message    string              `json:"message"`
	Speech     string              `json:"speech"`
	CreatedAt  time.Time           `json:"createdAt"`
	EmittedAt  time.Time           `json:"emittedAt"`
}

func NewPayload(msg Message) Payload {
	return Payload{
		SessionID:  msg.SessionID,
		ExerciseID: msg.ExerciseID,
		Code:       msg.Notification.Code,
		Message:    msg.Notification.Message,
		Speech:     msg.Notification.Speech(),
		CreatedAt:  msg.Notification.CreatedAt,
		EmittedAt:  msg.Notification.EmittedAt,
	}
}

// RedisSink publishes notifications on a per-session redis channel, a
// speech or overlay client subscribes to it.
type RedisSink struct {
	client redis.Cmdable
}

func NewRedisSink(client redis.Cmdable) *RedisSink {
	return &RedisSink{client: client}
}

func (s *RedisSink) Name() string { return "redis" }

func (s *RedisSink) Deliver(ctx context.Context, msg Message) error {
	body, err := json.Marshal(NewPayload(msg))
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	if err := s.client.Publish(ctx, ChannelName(msg.SessionID), body).Err(); err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	return nil
}
