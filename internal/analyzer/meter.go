// internal/analyzer/meter.go
package analyzer

import (
	"errors"
	"math"
)

// ErrInvalidMeterRate indicates the meter update rate must be positive and below the sample rate
var ErrInvalidMeterRate = errors.New("meter rate must be positive and at most the sample rate")

// Meter is a peak-hold VU meter. Every sampleRate/rate frames it publishes
// the mean over channels of each channel's peak absolute sample, then starts
// a new window.
type Meter struct {
	channels int
	window   int

	peaks   []float64
	channel int // channel of the next interleaved sample
	frames  int
	level   float64
}

// NewMeter creates a meter for interleaved audio at sampleRate Hz with rate
// updates per second.
func NewMeter(sampleRate float64, channels int, rate float64) (*Meter, error) {
	if channels <= 0 {
		return nil, ErrInvalidChannels
	}
	if rate <= 0 || rate > sampleRate {
		return nil, ErrInvalidMeterRate
	}
	return &Meter{
		channels: channels,
		window:   max(int(sampleRate/rate), 1),
		peaks:    make([]float64, channels),
	}, nil
}

// Window returns the number of frames per published level
func (m *Meter) Window() int { return m.window }

// Level returns the last published level
func (m *Meter) Level() float64 { return m.level }

// Push feeds interleaved samples and calls emit with every completed level.
// emit may be nil.
func (m *Meter) Push(interleaved []float32, emit func(level float64)) {
	for _, s := range interleaved {
		m.peaks[m.channel] = math.Max(m.peaks[m.channel], math.Abs(float64(s)))
		m.channel++
		if m.channel < m.channels {
			continue
		}
		m.channel = 0
		m.frames++
		if m.frames < m.window {
			continue
		}

		var sum float64
		for i, p := range m.peaks {
			sum += p
			m.peaks[i] = 0
		}
		m.level = sum / float64(m.channels)
		m.frames = 0
		if emit != nil {
			emit(m.level)
		}
	}
}

// Reset drops the partial window and the published level
func (m *Meter) Reset() {
	clear(m.peaks)
	m.channel = 0
	m.frames = 0
	m.level = 0
}
