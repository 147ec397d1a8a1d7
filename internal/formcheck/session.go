package formcheck

import (
	"fmt"
	"math"
	"time"

	"github.com/2beens/formcoach/internal/pose"
)

// FrameResult is the per-frame output of a session.
type FrameResult struct {
	FrameIndex     uint64    `json:"frameIndex"`
	Timestamp      time.Time `json:"timestamp"`
	PersonDetected bool      `json:"personDetected"`
	// Evaluable is false when joints were missing or degenerate, the
	// rules were skipped and the counter state left untouched.
	Evaluable     bool   `json:"evaluable"`
	InvalidReason string `json:"invalidReason,omitempty"`

	Count        float64            `json:"count"`
	Phase        Phase              `json:"phase"`
	Progress     float64            `json:"progress"`
	PrimaryAngle float64            `json:"primaryAngle"`
	Signals      map[string]float64 `json:"signals,omitempty"`
	Credited     bool               `json:"credited"`

	Errors         []FormError   `json:"errors"`
	NewErrors      []ErrorCode   `json:"newErrors,omitempty"`
	ResolvedErrors []ErrorCode   `json:"resolvedErrors,omitempty"`
	Notification   *Notification `json:"notification,omitempty"`
}

// Snapshot is the reportable state of a session.
type Snapshot struct {
	ExerciseID           string            `json:"exerciseId"`
	Count                float64           `json:"count"`
	FullReps             int               `json:"fullReps"`
	Phase                Phase             `json:"phase"`
	Direction            Direction         `json:"direction"`
	Frames               int               `json:"frames"`
	EvaluatedFrames      int               `json:"evaluatedFrames"`
	EmptyFrames          int               `json:"emptyFrames"`
	InvalidFrames        int               `json:"invalidFrames"`
	ActiveErrors         []ErrorCode       `json:"activeErrors"`
	ErrorAppearances     map[ErrorCode]int `json:"errorAppearances"`
	PendingNotifications int               `json:"pendingNotifications"`
	DroppedNotifications int               `json:"droppedNotifications"`
	StartedAt            time.Time         `json:"startedAt"`
	LastFrameAt          time.Time         `json:"lastFrameAt"`
}

// Session owns all state of one exercise session. It is not safe for
// concurrent use, frames are processed one at a time in arrival order.
type Session struct {
	def       Definition
	evaluator *Evaluator
	counter   *RepCounter
	notifier  *Notifier
	trackers  []*Tracker
	speedIdx  int
	now       func() time.Time

	frames, evaluated, empty, invalid int
	appearances                       map[ErrorCode]int
	startedAt, lastFrameAt            time.Time
}

func NewSession(def Definition) (*Session, error) {
	def = def.WithDefaults()
	if err := def.Validate(); err != nil {
		return nil, err
	}

	s := &Session{
		def:         def,
		evaluator:   NewEvaluator(def),
		counter:     NewRepCounter(def),
		notifier:    NewNotifier(def.Cooldown(), def.MaxPending),
		speedIdx:    -1,
		now:         time.Now,
		appearances: make(map[ErrorCode]int),
	}
	for i, signal := range def.Stability {
		s.trackers = append(s.trackers, NewTracker(def.WindowSize, signal.Threshold))
		if signal.Speed {
			s.speedIdx = i
		}
	}
	return s, nil
}

func (s *Session) Definition() Definition {
	return s.def
}

// ProcessFrame runs one frame through the pipeline: angle extraction,
// stability tracking, form evaluation, repetition counting, notification.
func (s *Session) ProcessFrame(frame pose.Frame) FrameResult {
	ts := frame.Timestamp
	if ts.IsZero() {
		ts = s.now()
	}
	if s.startedAt.IsZero() {
		s.startedAt = ts
	}
	s.lastFrameAt = ts
	s.frames++

	res := FrameResult{
		FrameIndex:     frame.Index,
		Timestamp:      ts,
		PersonDetected: !frame.Empty(),
		Errors:         []FormError{},
	}

	switch {
	case frame.Empty():
		s.empty++
		// nobody in the frame, the active error set is cleared
		res.NewErrors, res.ResolvedErrors = s.notifier.Observe(nil, ts)
	default:
		if err := s.evaluate(frame, &res); err != nil {
			s.invalid++
			res.InvalidReason = err.Error()
		} else {
			s.evaluated++
			res.Evaluable = true
		}
	}

	if n, ok := s.notifier.Poll(ts); ok {
		res.Notification = &n
	}

	res.Count = s.counter.Count()
	res.Phase = s.counter.Phase()
	return res
}

func (s *Session) evaluate(frame pose.Frame, res *FrameResult) error {
	minConf := s.def.MinConfidence

	primary, err := frame.Angle(s.def.Primary, minConf)
	if err != nil {
		return fmt.Errorf("primary angle: %w", err)
	}

	// measure everything before touching any state, a frame is either
	// fully evaluated or not at all
	signals := make([]float64, len(s.def.Stability))
	for i, signal := range s.def.Stability {
		v, err := measure(frame, signal, minConf)
		if err != nil {
			return fmt.Errorf("signal %s: %w", signal.Name, err)
		}
		signals[i] = v
	}
	alignment := make([]float64, len(s.def.Alignment))
	for i, rule := range s.def.Alignment {
		v, err := frame.Angle(rule.Angle, minConf)
		if err != nil {
			return fmt.Errorf("alignment %s: %w", rule.Name, err)
		}
		alignment[i] = v
	}

	in := Input{
		Primary:   primary,
		Alignment: alignment,
	}
	res.Signals = make(map[string]float64, len(signals)+len(alignment))
	for i, v := range signals {
		reading := s.trackers[i].Push(v)
		in.Stability = append(in.Stability, SignalReading{Signal: s.def.Stability[i], Reading: reading})
		if i == s.speedIdx {
			in.SpeedDelta = reading.Delta
			in.HasSpeedDelta = reading.HasDelta
		}
		res.Signals[s.def.Stability[i].Name] = v
	}
	for i, v := range alignment {
		res.Signals[s.def.Alignment[i].Name] = v
	}

	errs := s.evaluator.Evaluate(in)
	progress := s.counter.Progress(primary)
	transition := s.counter.Update(progress, primary, len(errs) == 0)
	if transition.EnteredTop {
		// stale variance must not carry over into the next repetition
		for _, t := range s.trackers {
			t.Reset()
		}
	}

	appeared, resolved := s.notifier.Observe(errs, res.Timestamp)
	for _, code := range appeared {
		s.appearances[code]++
	}

	if errs != nil {
		res.Errors = errs
	}
	res.PrimaryAngle = primary
	res.Progress = progress
	res.Credited = transition.Credited
	res.NewErrors = appeared
	res.ResolvedErrors = resolved
	return nil
}

func measure(frame pose.Frame, signal StabilitySignal, minConf float64) (float64, error) {
	switch signal.Kind {
	case SignalAngle:
		return frame.Angle(signal.Angle, minConf)
	case SignalHorizontalDistance:
		return frame.HorizontalDistance(signal.From, signal.To, minConf)
	default:
		return 0, fmt.Errorf("unknown signal kind [%s]", signal.Kind)
	}
}

func (s *Session) Snapshot() Snapshot {
	appearances := make(map[ErrorCode]int, len(s.appearances))
	for code, n := range s.appearances {
		appearances[code] = n
	}
	count := s.counter.Count()
	return Snapshot{
		ExerciseID:           s.def.ID,
		Count:                count,
		FullReps:             int(math.Floor(count)),
		Phase:                s.counter.Phase(),
		Direction:            s.counter.Direction(),
		Frames:               s.frames,
		EvaluatedFrames:      s.evaluated,
		EmptyFrames:          s.empty,
		InvalidFrames:        s.invalid,
		ActiveErrors:         s.notifier.Active(),
		ErrorAppearances:     appearances,
		PendingNotifications: s.notifier.Pending(),
		DroppedNotifications: s.notifier.Dropped(),
		StartedAt:            s.startedAt,
		LastFrameAt:          s.lastFrameAt,
	}
}

// Reset restarts the session: counter, windows, notifier and stats.
func (s *Session) Reset() {
	s.counter.Reset()
	s.notifier.Reset()
	for _, t := range s.trackers {
		t.Reset()
	}
	s.frames, s.evaluated, s.empty, s.invalid = 0, 0, 0, 0
	s.appearances = make(map[ErrorCode]int)
	s.startedAt, s.lastFrameAt = time.Time{}, time.Time{}
}

// Summary is the report of a finished session.
type Summary struct {
	ExerciseID       string            `json:"exerciseId"`
	Count            float64           `json:"count"`
	FullReps         int               `json:"fullReps"`
	Frames           int               `json:"frames"`
	EvaluatedFrames  int               `json:"evaluatedFrames"`
	Duration         time.Duration     `json:"duration"`
	ErrorAppearances map[ErrorCode]int `json:"errorAppearances"`
	// MostFrequentError is empty when the set was performed cleanly.
	MostFrequentError ErrorCode `json:"mostFrequentError,omitempty"`
}

func (s *Session) Summary() Summary {
	snap := s.Snapshot()
	sum := Summary{
		ExerciseID:       snap.ExerciseID,
		Count:            snap.Count,
		FullReps:         snap.FullReps,
		Frames:           snap.Frames,
		EvaluatedFrames:  snap.EvaluatedFrames,
		ErrorAppearances: snap.ErrorAppearances,
	}
	if !snap.StartedAt.IsZero() {
		sum.Duration = snap.LastFrameAt.Sub(snap.StartedAt)
	}

	best := 0
	for code, n := range snap.ErrorAppearances {
		// ties resolved by code name so the result is stable
		if n > best || (n == best && code < sum.MostFrequentError) {
			best = n
			sum.MostFrequentError = code
		}
	}
	return sum
}
