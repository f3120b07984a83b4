// internal/analyzer/framer.go
package analyzer

import "errors"

var (
	// ErrInvalidChannels indicates the channel count must be positive
	ErrInvalidChannels = errors.New("channel count must be positive")
	// ErrInvalidOverlap indicates overlap percentage must be 0-99
	ErrInvalidOverlap = errors.New("overlap percentage must be between 0 and 99")
	// ErrInvalidFrameSize indicates the frame size must be positive
	ErrInvalidFrameSize = errors.New("frame size must be positive")
)

// Framer turns interleaved capture buffers of any length into mono frames
// of a fixed size. Channels are averaged, so stereo becomes (L+R)/2.
// Consecutive frames overlap by the configured percentage.
type Framer struct {
	channels  int
	frameSize int
	hopSize   int

	// mono samples waiting to fill a frame
	buffer []float32

	// running sum of an interleaved frame split across two buffers
	sum   float32
	count int
}

// NewFramer creates a framer emitting frames of frameSize mono samples.
func NewFramer(frameSize, channels, overlapPct int) (*Framer, error) {
	if frameSize <= 0 {
		return nil, ErrInvalidFrameSize
	}
	if channels <= 0 {
		return nil, ErrInvalidChannels
	}
	if overlapPct < 0 || overlapPct >= 100 {
		return nil, ErrInvalidOverlap
	}

	overlapSize := (frameSize * overlapPct) / 100
	return &Framer{
		channels:  channels,
		frameSize: frameSize,
		hopSize:   frameSize - overlapSize,
		buffer:    make([]float32, 0, 2*frameSize),
	}, nil
}

// HopSize returns the number of new mono samples between two frames
func (f *Framer) HopSize() int { return f.hopSize }

// FrameSize returns the length of emitted frames
func (f *Framer) FrameSize() int { return f.frameSize }

// Push adds interleaved samples and calls emit for every complete frame.
// The frame passed to emit is only valid during the call.
func (f *Framer) Push(interleaved []float32, emit func(frame []float32)) {
	if f.channels == 1 {
		f.buffer = append(f.buffer, interleaved...)
	} else {
		for _, s := range interleaved {
			f.sum += s
			f.count++
			if f.count == f.channels {
				f.buffer = append(f.buffer, f.sum/float32(f.channels))
				f.sum = 0
				f.count = 0
			}
		}
	}

	for len(f.buffer) >= f.frameSize {
		emit(f.buffer[:f.frameSize])

		// Slide the buffer by hopSize
		if f.hopSize < len(f.buffer) {
			copy(f.buffer, f.buffer[f.hopSize:])
			f.buffer = f.buffer[:len(f.buffer)-f.hopSize]
		} else {
			f.buffer = f.buffer[:0]
		}
	}
}

// Reset drops buffered samples
func (f *Framer) Reset() {
	f.buffer = f.buffer[:0]
	f.sum = 0
	f.count = 0
}
