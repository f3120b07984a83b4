// internal/dsp/window.go
package dsp

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// ErrUnknownWindow indicates an unrecognised window name
var ErrUnknownWindow = errors.New("unknown window function")

// Window selects the weighting function applied to a frame before the
// forward transform. Windows are stateless and safe to share.
type Window int

const (
	// WindowNone leaves samples untouched (rectangular window)
	WindowNone Window = iota
	// WindowHamming applies 0.54 - 0.46*cos(2πn/(N-1))
	WindowHamming
)

// ParseWindow maps a config name to a Window.
func ParseWindow(name string) (Window, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "none", "rectangular":
		return WindowNone, nil
	case "hamming":
		return WindowHamming, nil
	default:
		return WindowNone, fmt.Errorf("%w: %q", ErrUnknownWindow, name)
	}
}

func (w Window) String() string {
	switch w {
	case WindowNone:
		return "none"
	case WindowHamming:
		return "hamming"
	default:
		return fmt.Sprintf("Window(%d)", int(w))
	}
}

// Coefficient returns the weight for sample n of a window of the given length.
func (w Window) Coefficient(n, length int) float64 {
	if w != WindowHamming || length <= 1 {
		return 1
	}
	return 0.54 - 0.46*math.Cos(2*math.Pi*float64(n)/float64(length-1))
}

// Apply multiplies every sample by its coefficient, in place.
func (w Window) Apply(samples []float32) {
	w.ApplyRange(samples, 0, len(samples))
}

// ApplyRange windows samples[offset:offset+length] in place, treating the
// range as a window of the given length. Out-of-range requests are ignored.
func (w Window) ApplyRange(samples []float32, offset, length int) {
	if w == WindowNone || offset < 0 || length <= 0 || offset+length > len(samples) {
		return
	}
	for n := 0; n < length; n++ {
		samples[offset+n] = float32(float64(samples[offset+n]) * w.Coefficient(n, length))
	}
}

// Curve returns the window's coefficients without touching any data.
func (w Window) Curve(length int) []float64 {
	if length <= 0 {
		return []float64{}
	}
	curve := make([]float64, length)
	for n := range curve {
		curve[n] = w.Coefficient(n, length)
	}
	return curve
}
