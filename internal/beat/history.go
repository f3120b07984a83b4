// internal/beat/history.go
package beat

import "gonum.org/v1/gonum/stat"

// History is a fixed-capacity ring of the most recent values. Every slot
// starts at zero and takes part in the statistics, so a young history pulls
// its mean towards zero until it has been filled once.
type History struct {
	values   []float64
	writePos int
}

// NewHistory creates a zero-filled history. Capacities below 1 are raised to 1.
func NewHistory(capacity int) *History {
	if capacity < 1 {
		capacity = 1
	}
	return &History{values: make([]float64, capacity)}
}

// Push overwrites the oldest slot with v.
func (h *History) Push(v float64) {
	h.values[h.writePos] = v
	h.writePos++
	if h.writePos == len(h.values) {
		h.writePos = 0
	}
}

// Mean returns the arithmetic mean over all slots
func (h *History) Mean() float64 {
	return stat.Mean(h.values, nil)
}

// MeanVariance returns the mean and population variance over all slots.
func (h *History) MeanVariance() (mean, variance float64) {
	return stat.PopMeanVariance(h.values, nil)
}

// PositiveMean returns the mean of the strictly positive slots, or 0 if
// there are none.
func (h *History) PositiveMean() float64 {
	var sum float64
	n := 0
	for _, v := range h.values {
		if v > 0 {
			sum += v
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// Reset zeroes every slot and rewinds the cursor
func (h *History) Reset() {
	clear(h.values)
	h.writePos = 0
}

// Cap returns the number of slots
func (h *History) Cap() int { return len(h.values) }

// Values returns a copy of the slots, oldest first.
func (h *History) Values() []float64 {
	out := make([]float64, 0, len(h.values))
	out = append(out, h.values[h.writePos:]...)
	return append(out, h.values[:h.writePos]...)
}

// Trace records a diagnostic series. When it fills up it starts over from
// an empty buffer instead of scrolling.
type Trace struct {
	values []float64
	count  int
}

// TraceLength is the number of entries a Trace holds before clearing
const TraceLength = 512

func newTrace() *Trace {
	return &Trace{values: make([]float64, TraceLength)}
}

func (t *Trace) push(v float64) {
	if t.count == len(t.values) {
		clear(t.values)
		t.count = 0
	}
	t.values[t.count] = v
	t.count++
}

// Len returns the number of entries recorded since the last clear
func (t *Trace) Len() int { return t.count }

// Values returns a copy of the recorded entries.
func (t *Trace) Values() []float64 {
	return append([]float64(nil), t.values[:t.count]...)
}
