// internal/beat/tracker.go
package beat

import "time"

// Coefficients of the linear fit between energy variance and the
// sensitivity multiplier C.
const (
	varianceSlope     = -0.0025714
	varianceIntercept = 1.5142857
)

// tracker runs the adaptive energy test for one signal (the whole frame or
// one frequency band). It owns the energy and deviation histories and the
// refractory timer.
type tracker struct {
	energy    *History
	deviation *History

	refractory time.Duration
	armed      bool // false until the first onset, so the timer cannot suppress it
	lastOnset  time.Duration

	onset   bool
	instant float64
	diff    float64
	diff2   float64
}

func newTracker(capacity int, refractory time.Duration) *tracker {
	return &tracker{
		energy:     NewHistory(capacity),
		deviation:  NewHistory(capacity),
		refractory: refractory,
	}
}

// evaluate scores instant against the histories, decides the onset flag and
// only then pushes the new values. gate is an extra condition that must hold
// for an onset to fire.
func (t *tracker) evaluate(instant float64, now time.Duration, gate bool) bool {
	e, v := t.energy.MeanVariance()
	c := varianceSlope*v + varianceIntercept

	diff := max(instant-c*e, 0)
	dAvg := t.deviation.PositiveMean()
	diff2 := max(diff-dAvg, 0)

	switch {
	case t.armed && now-t.lastOnset <= t.refractory:
		t.onset = false
	case diff2 > 0 && gate:
		t.onset = true
		t.armed = true
		t.lastOnset = now
	default:
		t.onset = false
	}

	t.instant = instant
	t.diff = diff
	t.diff2 = diff2
	t.energy.Push(instant)
	t.deviation.Push(diff)
	return t.onset
}
