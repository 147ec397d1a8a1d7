package formcheck

import "math"

const DefaultWindowSize = 10

// Reading is the tracker output after a single push.
type Reading struct {
	Variance float64 `json:"variance"`
	Unstable bool    `json:"unstable"`
	// Full is false until the window holds as many samples as its capacity,
	// no stability judgment is made before that.
	Full bool `json:"full"`
	// Delta is the absolute change from the previously pushed value,
	// only meaningful when HasDelta is set.
	Delta    float64 `json:"delta"`
	HasDelta bool    `json:"hasDelta"`
}

// Tracker keeps a fixed capacity FIFO window of a scalar signal and
// classifies it as unstable when its variance exceeds the threshold.
type Tracker struct {
	capacity  int
	threshold float64
	values    []float64
}

func NewTracker(capacity int, threshold float64) *Tracker {
	if capacity <= 0 {
		capacity = DefaultWindowSize
	}
	return &Tracker{
		capacity:  capacity,
		threshold: threshold,
		values:    make([]float64, 0, capacity),
	}
}

func (t *Tracker) Push(v float64) Reading {
	var r Reading
	if n := len(t.values); n > 0 {
		r.Delta = math.Abs(v - t.values[n-1])
		r.HasDelta = true
	}

	if len(t.values) == t.capacity {
		copy(t.values, t.values[1:])
		t.values = t.values[:t.capacity-1]
	}
	t.values = append(t.values, v)

	if len(t.values) < t.capacity {
		return r
	}

	r.Full = true
	r.Variance = variance(t.values)
	r.Unstable = r.Variance > t.threshold
	return r
}

func (t *Tracker) Reset() {
	t.values = t.values[:0]
}

func (t *Tracker) Len() int {
	return len(t.values)
}

// Values returns a copy of the window, oldest first.
func (t *Tracker) Values() []float64 {
	out := make([]float64, len(t.values))
	copy(out, t.values)
	return out
}

// variance is the population variance of values.
func variance(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var mean float64
	for _, v := range values {
		mean += v
	}
	mean /= float64(len(values))

	var sum float64
	for _, v := range values {
		d := v - mean
		sum += d * d
	}
	return sum / float64(len(values))
}
