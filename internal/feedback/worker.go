package feedback

import (
	"context"
	"errors"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/2beens/formcoach/internal/formcheck"
	"github.com/2beens/formcoach/internal/telemetry/metrics"
)

//go:generate mockgen -source=$GOFILE -destination=worker_mocks_test.go -package=feedback_test

var ErrWorkerStopped = errors.New("feedback worker stopped")

const defaultDeliverTimeout = 2 * time.Second

type Kind int

const (
	KindNotification Kind = iota
	// KindShutdown tells the consumer to stop once everything queued ahead
	// of it has been delivered.
	KindShutdown
)

func (k Kind) String() string {
	switch k {
	case KindNotification:
		return "notification"
	case KindShutdown:
		return "shutdown"
	default:
		return "unknown"
	}
}

type Message struct {
	Kind         Kind
	SessionID    string
	ExerciseID   string
	Notification formcheck.Notification
}

// Sink delivers a notification somewhere: logs, a console, a pub/sub channel.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, msg Message) error
}

// Worker hands notifications from the frame loop to the sinks on its own
// goroutine, so slow delivery never stalls frame processing.
type Worker struct {
	queue          chan Message
	sinks          []Sink
	metrics        *metrics.Manager
	deliverTimeout time.Duration

	mu      sync.RWMutex
	started bool
	stopped bool
	done    chan struct{}

	sendMu       sync.Mutex
	shutdownSent bool
}

func NewWorker(queueSize int, metricsManager *metrics.Manager, sinks ...Sink) *Worker {
	if queueSize <= 0 {
		queueSize = 1
	}
	return &Worker{
		queue:          make(chan Message, queueSize),
		sinks:          sinks,
		metrics:        metricsManager,
		deliverTimeout: defaultDeliverTimeout,
		done:           make(chan struct{}),
	}
}

func (w *Worker) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started || w.stopped {
		return
	}
	w.started = true

	go w.run()
}

func (w *Worker) run() {
	defer close(w.done)

	for msg := range w.queue {
		if msg.Kind == KindShutdown {
			log.Debugln("feedback worker: shutdown message received")
			return
		}
		w.deliver(msg)
	}
}

func (w *Worker) deliver(msg Message) {
	for _, sink := range w.sinks {
		ctx, cancel := context.WithTimeout(context.Background(), w.deliverTimeout)
		err := sink.Deliver(ctx, msg)
		cancel()
		if err != nil {
			log.WithFields(log.Fields{
				"sink":    sink.Name(),
				"session": msg.SessionID,
				"code":    msg.Notification.Code,
			}).Errorf("deliver feedback: %s", err)
			if w.metrics != nil {
				w.metrics.CounterFeedbackSinkFailures.WithLabelValues(sink.Name()).Inc()
			}
		}
	}
}

// Enqueue never blocks. It returns false when the queue is full or the
// worker was shut down, the notification is dropped then.
func (w *Worker) Enqueue(sessionID, exerciseID string, n formcheck.Notification) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if w.stopped {
		return false
	}

	select {
	case w.queue <- Message{
		Kind:         KindNotification,
		SessionID:    sessionID,
		ExerciseID:   exerciseID,
		Notification: n,
	}:
		return true
	default:
		if w.metrics != nil {
			w.metrics.CounterFeedbackQueueOverflow.Inc()
		}
		log.Warnf("feedback queue full, dropping [%s] for session %s", n.Code, sessionID)
		return false
	}
}

// Shutdown sends the shutdown message and waits for the consumer to drain
// everything queued before it. Safe to call more than once, a call that
// timed out can be retried.
func (w *Worker) Shutdown(ctx context.Context) error {
	w.mu.Lock()
	first := !w.stopped
	w.stopped = true
	started := w.started
	w.mu.Unlock()

	if !started {
		if first {
			close(w.done)
		}
		return nil
	}

	w.sendMu.Lock()
	defer w.sendMu.Unlock()
	if !w.shutdownSent {
		// no Enqueue can race past this point, the shutdown message is last
		select {
		case w.queue <- Message{Kind: KindShutdown}:
			w.shutdownSent = true
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return w.wait(ctx)
}

func (w *Worker) wait(ctx context.Context) error {
	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
