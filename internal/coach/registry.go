package coach

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/2beens/formcoach/internal/formcheck"
	"github.com/2beens/formcoach/internal/pose"
	"github.com/2beens/formcoach/internal/telemetry/metrics"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrUnknownExercise = errors.New("unknown exercise")
	ErrSessionFinished = errors.New("session already finished")
	ErrSessionIDInUse  = errors.New("session id in use")
)

// LiveSession wraps a formcheck session with the lock that makes frame
// processing sequential per session.
type LiveSession struct {
	ID         string
	ExerciseID string
	Kilos      int
	CreatedAt  time.Time

	def     formcheck.Definition
	metrics *metrics.Manager

	// pinned sessions are owned by the server and never expire
	pinned bool

	mu          sync.Mutex
	session     *formcheck.Session
	lastSeen    time.Time
	finished    bool
	lastDropped int
}

func (l *LiveSession) Definition() formcheck.Definition {
	return l.def
}

// Process runs a frame through the session and records its metrics.
func (l *LiveSession) Process(frame pose.Frame, now time.Time) (formcheck.FrameResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.finished {
		return formcheck.FrameResult{}, ErrSessionFinished
	}
	l.lastSeen = now

	start := time.Now()
	res := l.session.ProcessFrame(frame)
	l.observe(res, time.Since(start))
	return res, nil
}

func (l *LiveSession) observe(res formcheck.FrameResult, took time.Duration) {
	if l.metrics == nil {
		return
	}

	l.metrics.HistFrameProcessing.Observe(took.Seconds())
	outcome := "evaluated"
	switch {
	case !res.PersonDetected:
		outcome = "empty"
	case !res.Evaluable:
		outcome = "invalid"
	}
	l.metrics.CounterFrames.WithLabelValues(l.ExerciseID, outcome).Inc()

	if res.Credited {
		l.metrics.CounterReps.WithLabelValues(l.ExerciseID).Inc()
	}
	for _, code := range res.NewErrors {
		l.metrics.CounterFormErrors.WithLabelValues(l.ExerciseID, string(code)).Inc()
	}
	if res.Notification != nil {
		l.metrics.CounterNotificationsEmitted.Inc()
	}

	dropped := l.session.Snapshot().DroppedNotifications
	if dropped > l.lastDropped {
		l.metrics.CounterNotificationsDropped.Add(float64(dropped - l.lastDropped))
		l.lastDropped = dropped
	}
}

func (l *LiveSession) Snapshot() formcheck.Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.session.Snapshot()
}

// Summary reports the session so far without finishing it.
func (l *LiveSession) Summary() formcheck.Summary {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.session.Summary()
}

// Finish marks the session done and returns its summary. Frames arriving
// after it are rejected.
func (l *LiveSession) Finish() (formcheck.Summary, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.finished {
		return formcheck.Summary{}, ErrSessionFinished
	}
	l.finished = true
	return l.session.Summary(), nil
}

func (l *LiveSession) idleSince(now time.Time) time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	return now.Sub(l.lastSeen)
}

// Registry keeps the live sessions, keyed by id.
type Registry struct {
	idleTimeout time.Duration
	metrics     *metrics.Manager
	now         func() time.Time

	mu       sync.RWMutex
	sessions map[string]*LiveSession
}

func NewRegistry(idleTimeout time.Duration, metricsManager *metrics.Manager) *Registry {
	return &Registry{
		idleTimeout: idleTimeout,
		metrics:     metricsManager,
		now:         time.Now,
		sessions:    make(map[string]*LiveSession),
	}
}

// Create starts a session for def under a new random id.
func (r *Registry) Create(def formcheck.Definition, kilos int) (*LiveSession, error) {
	return r.CreateWithID(uuid.NewString(), def, kilos)
}

func (r *Registry) CreateWithID(id string, def formcheck.Definition, kilos int) (*LiveSession, error) {
	return r.create(id, def, kilos, false)
}

// CreatePinned starts a session that ExpireIdle never drops, e.g. the one
// fed by the pose socket, which can stay silent until a detector connects.
func (r *Registry) CreatePinned(id string, def formcheck.Definition, kilos int) (*LiveSession, error) {
	return r.create(id, def, kilos, true)
}

func (r *Registry) create(id string, def formcheck.Definition, kilos int, pinned bool) (*LiveSession, error) {
	session, err := formcheck.NewSession(def)
	if err != nil {
		return nil, err
	}

	now := r.now()
	live := &LiveSession{
		ID:         id,
		ExerciseID: def.ID,
		Kilos:      kilos,
		CreatedAt:  now,
		def:        session.Definition(),
		metrics:    r.metrics,
		pinned:     pinned,
		session:    session,
		lastSeen:   now,
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[id]; ok {
		return nil, ErrSessionIDInUse
	}
	r.sessions[id] = live
	r.updateGauge()

	log.Debugf("coach: session %s started [%s]", id, def.ID)
	return live, nil
}

func (r *Registry) Get(id string) (*LiveSession, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	live, ok := r.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return live, nil
}

func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
	r.updateGauge()
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// ExpireIdle drops unpinned sessions that received no frame within the idle
// timeout and returns how many were dropped.
func (r *Registry) ExpireIdle() int {
	if r.idleTimeout <= 0 {
		return 0
	}
	now := r.now()

	r.mu.Lock()
	defer r.mu.Unlock()

	expired := 0
	for id, live := range r.sessions {
		if live.pinned {
			continue
		}
		if live.idleSince(now) >= r.idleTimeout {
			delete(r.sessions, id)
			expired++
			log.Infof("coach: session %s expired after %s idle", id, r.idleTimeout)
		}
	}
	if expired > 0 {
		r.updateGauge()
	}
	return expired
}

// RunExpiry calls ExpireIdle every interval until ctx is done.
func (r *Registry) RunExpiry(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.ExpireIdle()
		}
	}
}

// caller holds r.mu
func (r *Registry) updateGauge() {
	if r.metrics != nil {
		r.metrics.GaugeActiveSessions.Set(float64(len(r.sessions)))
	}
}
