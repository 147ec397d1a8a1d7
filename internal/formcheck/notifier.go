package formcheck

import (
	"slices"
	"strings"
	"time"
)

type Notification struct {
	Code      ErrorCode `json:"code"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"createdAt"`
	EmittedAt time.Time `json:"emittedAt,omitempty"`
}

// Text is the console form of the notification.
func (n Notification) Text() string {
	return "FORM ERROR: " + n.Message
}

// Speech is the phrase handed to speech sinks.
func (n Notification) Speech() string {
	if phrase, ok := speechOverrides[n.Code]; ok {
		return phrase
	}
	msg := strings.TrimSpace(n.Message)
	if msg == "" {
		return ""
	}
	return "Please " + strings.ToLower(msg[:1]) + msg[1:]
}

// Notifier turns per-frame error sets into a deduplicated, rate limited
// stream of notifications. An error is announced when it appears and has
// to disappear for at least one frame before it is announced again.
type Notifier struct {
	cooldown   time.Duration
	maxPending int

	previous     map[ErrorCode]struct{}
	pending      []Notification
	lastEmission time.Time
	dropped      int
}

func NewNotifier(cooldown time.Duration, maxPending int) *Notifier {
	return &Notifier{
		cooldown:   cooldown,
		maxPending: maxPending,
		previous:   make(map[ErrorCode]struct{}),
	}
}

// Observe compares the current frame's errors with the previous frame's,
// queues one notification per newly appeared error and returns the new and
// resolved codes. The dedup state is replaced on every call, independent
// of the emission throttle.
func (n *Notifier) Observe(current []FormError, now time.Time) (appeared, resolved []ErrorCode) {
	currentSet := make(map[ErrorCode]struct{}, len(current))
	for _, e := range current {
		if _, dup := currentSet[e.Code]; dup {
			continue
		}
		currentSet[e.Code] = struct{}{}
		if _, wasActive := n.previous[e.Code]; wasActive {
			continue
		}
		appeared = append(appeared, e.Code)
		n.enqueue(Notification{
			Code:      e.Code,
			Message:   e.Message,
			CreatedAt: now,
		})
	}

	for code := range n.previous {
		if _, stillActive := currentSet[code]; !stillActive {
			resolved = append(resolved, code)
		}
	}
	slices.Sort(resolved)

	n.previous = currentSet
	return appeared, resolved
}

func (n *Notifier) enqueue(notification Notification) {
	if n.maxPending > 0 && len(n.pending) >= n.maxPending {
		// oldest feedback is the least relevant one
		n.pending = n.pending[1:]
		n.dropped++
	}
	n.pending = append(n.pending, notification)
}

// Poll releases at most one pending notification, and only when the
// cooldown has passed since the previous emission.
func (n *Notifier) Poll(now time.Time) (Notification, bool) {
	if len(n.pending) == 0 {
		return Notification{}, false
	}
	if !n.lastEmission.IsZero() && now.Sub(n.lastEmission) < n.cooldown {
		return Notification{}, false
	}

	next := n.pending[0]
	n.pending = n.pending[1:]
	next.EmittedAt = now
	n.lastEmission = now
	return next, true
}

func (n *Notifier) Pending() int {
	return len(n.pending)
}

// Dropped is the number of notifications evicted from a full queue.
func (n *Notifier) Dropped() int {
	return n.dropped
}

func (n *Notifier) Active() []ErrorCode {
	codes := make([]ErrorCode, 0, len(n.previous))
	for code := range n.previous {
		codes = append(codes, code)
	}
	slices.Sort(codes)
	return codes
}

func (n *Notifier) Reset() {
	n.previous = make(map[ErrorCode]struct{})
	n.pending = nil
	n.lastEmission = time.Time{}
	n.dropped = 0
}
