package formcheck

type Phase string

const (
	// PhaseBottom is the extended position (progress near 0).
	PhaseBottom Phase = "bottom"
	// PhaseTop is the contracted position (progress near 100).
	PhaseTop    Phase = "top"
	PhaseMoving Phase = "moving"
)

type Direction string

const (
	// Ascending means the last credited position was the bottom, the next credit is at the top.
	Ascending  Direction = "ascending"
	Descending Direction = "descending"
)

// Transition describes what the counter did with a frame.
type Transition struct {
	Phase      Phase
	Credited   bool
	EnteredTop bool
	Suppressed bool
}

// RepCounter is the repetition state machine. Every credited phase change
// adds half a repetition.
type RepCounter struct {
	def       Definition
	count     float64
	phase     Phase
	direction Direction
}

func NewRepCounter(def Definition) *RepCounter {
	c := &RepCounter{def: def}
	c.Reset()
	return c
}

func (c *RepCounter) Reset() {
	c.count = 0
	c.phase = PhaseMoving
	c.direction = Ascending
}

func (c *RepCounter) Count() float64 {
	return c.count
}

func (c *RepCounter) Phase() Phase {
	return c.phase
}

func (c *RepCounter) Direction() Direction {
	return c.direction
}

// Progress maps the primary angle linearly from [contracted, extended] to
// [100, 0], clamping outside the range.
func (c *RepCounter) Progress(angle float64) float64 {
	lo, hi := c.def.ContractedAngle, c.def.ExtendedAngle
	switch {
	case angle <= lo:
		return 100
	case angle >= hi:
		return 0
	}
	return (hi - angle) / (hi - lo) * 100
}

// Update advances the machine. A frame that is not clean (has form errors)
// changes nothing, so a transition blocked by a transient error can still
// be credited once the error clears.
func (c *RepCounter) Update(progress, angle float64, clean bool) Transition {
	if !clean {
		return Transition{Phase: c.phase, Suppressed: true}
	}

	var t Transition
	switch {
	case progress >= c.def.TopProgress && angle <= c.def.ContractedAngle+c.def.TransitionMargin:
		c.phase = PhaseTop
		if c.direction == Ascending {
			c.count += 0.5
			c.direction = Descending
			t.Credited = true
			t.EnteredTop = true
		}
	case progress <= c.def.BottomProgress && angle >= c.def.ExtendedAngle-c.def.TransitionMargin:
		c.phase = PhaseBottom
		if c.direction == Descending {
			c.count += 0.5
			c.direction = Ascending
			t.Credited = true
		}
	default:
		c.phase = PhaseMoving
	}

	t.Phase = c.phase
	return t
}
