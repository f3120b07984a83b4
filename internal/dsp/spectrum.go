// internal/dsp/spectrum.go
package dsp

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

var (
	// ErrInvalidAverageCount indicates the linear average count must be positive
	ErrInvalidAverageCount = errors.New("average count must be positive")
	// ErrTooManyAverages indicates more linear averages than half the spectrum length were requested
	ErrTooManyAverages = errors.New("average count exceeds half the spectrum length")
	// ErrInvalidBandwidth indicates the minimum octave bandwidth must be positive
	ErrInvalidBandwidth = errors.New("minimum bandwidth must be positive")
	// ErrInvalidBandsPerOctave indicates bands per octave must be positive
	ErrInvalidBandsPerOctave = errors.New("bands per octave must be positive")
	// ErrUnknownAveraging indicates an unrecognised averaging name
	ErrUnknownAveraging = errors.New("unknown averaging scheme")
)

// Averaging identifies how a Spectrum groups its bins into averages.
type Averaging int

const (
	AverageNone Averaging = iota
	AverageLinear
	AverageLog
)

// ParseAveraging maps a config name to an averaging scheme.
func ParseAveraging(name string) (Averaging, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "none":
		return AverageNone, nil
	case "linear":
		return AverageLinear, nil
	case "log":
		return AverageLog, nil
	default:
		return AverageNone, fmt.Errorf("%w: %q", ErrUnknownAveraging, name)
	}
}

func (a Averaging) String() string {
	switch a {
	case AverageLinear:
		return "linear"
	case AverageLog:
		return "log"
	default:
		return "none"
	}
}

// Spectrum holds the magnitude spectrum of a transform together with its
// frequency mapping and the active averaging scheme. It knows nothing about
// how the complex data was produced, so it can be tested on its own.
type Spectrum struct {
	timeSize   int
	sampleRate float64
	bandWidth  float64

	mags     []float64
	averages []float64

	averaging      Averaging
	octaves        int
	bandsPerOctave int
}

// NewSpectrum creates an empty spectrum for frames of timeSize samples at
// sampleRate Hz. The spectrum has timeSize/2+1 bins and no averages.
func NewSpectrum(timeSize int, sampleRate float64) *Spectrum {
	return &Spectrum{
		timeSize:   timeSize,
		sampleRate: sampleRate,
		bandWidth:  (2 / float64(timeSize)) * (sampleRate / 2),
		mags:       make([]float64, timeSize/2+1),
		averages:   []float64{},
		averaging:  AverageNone,
	}
}

// TimeSize returns the frame length the spectrum was built for
func (s *Spectrum) TimeSize() int { return s.timeSize }

// SampleRate returns the sample rate in Hz
func (s *Spectrum) SampleRate() float64 { return s.sampleRate }

// Len returns the number of bins, timeSize/2+1
func (s *Spectrum) Len() int { return len(s.mags) }

// BandWidth returns the width of one bin in Hz. The first and last bins are
// half as wide.
func (s *Spectrum) BandWidth() float64 { return s.bandWidth }

// Averaging returns the active averaging scheme
func (s *Spectrum) Averaging() Averaging { return s.averaging }

// Magnitudes returns the magnitude buffer. It is overwritten by every Update.
func (s *Spectrum) Magnitudes() []float64 { return s.mags }

// Band returns the magnitude of bin i, clamping i into range.
func (s *Spectrum) Band(i int) float64 {
	if i < 0 {
		i = 0
	}
	if i > len(s.mags)-1 {
		i = len(s.mags) - 1
	}
	return s.mags[i]
}

// FreqToIndex returns the bin containing freq.
func (s *Spectrum) FreqToIndex(freq float64) int {
	// bin 0 covers only [0, bw/2)
	if freq < s.bandWidth/2 {
		return 0
	}
	if freq > s.sampleRate/2-s.bandWidth/2 {
		return len(s.mags) - 1
	}
	return int(math.Round(float64(s.timeSize) * (freq / s.sampleRate)))
}

// IndexToFreq returns the center frequency of bin i.
func (s *Spectrum) IndexToFreq(i int) float64 {
	bw := s.bandWidth
	if i == 0 {
		return bw * 0.25
	}
	if i == len(s.mags)-1 {
		lastBinBegin := s.sampleRate/2 - bw/2
		return lastBinBegin + bw*0.25
	}
	return float64(i) * bw
}

// NoAverages disables averaging.
func (s *Spectrum) NoAverages() {
	s.averages = []float64{}
	s.averaging = AverageNone
}

// LinearAverages groups the spectrum into n averages of Len()/n bins each.
// n may be at most Len()/2; on error the previous scheme stays active.
func (s *Spectrum) LinearAverages(n int) error {
	if n <= 0 {
		return ErrInvalidAverageCount
	}
	if n > len(s.mags)/2 {
		return ErrTooManyAverages
	}
	s.averages = make([]float64, n)
	s.averaging = AverageLinear
	return nil
}

// LogAverages groups the spectrum into octaves, each split into
// bandsPerOctave bands of equal width. The octave count comes from halving
// the Nyquist frequency until it drops to minBandwidth or below, so the
// lowest octave may be narrower or wider than requested.
func (s *Spectrum) LogAverages(minBandwidth float64, bandsPerOctave int) error {
	if minBandwidth <= 0 {
		return ErrInvalidBandwidth
	}
	if bandsPerOctave <= 0 {
		return ErrInvalidBandsPerOctave
	}
	s.octaves = octaveCount(s.sampleRate/2, minBandwidth)
	s.bandsPerOctave = bandsPerOctave
	s.averages = make([]float64, s.octaves*bandsPerOctave)
	s.averaging = AverageLog
	return nil
}

func octaveCount(nyquist, minBandwidth float64) int {
	octaves := 1
	for nyquist /= 2; nyquist > minBandwidth; nyquist /= 2 {
		octaves++
	}
	return octaves
}

// Octaves returns the octave count of the log averaging scheme, 0 otherwise.
func (s *Spectrum) Octaves() int {
	if s.averaging != AverageLog {
		return 0
	}
	return s.octaves
}

// AvgSize returns the number of averages currently computed
func (s *Spectrum) AvgSize() int { return len(s.averages) }

// Avg returns average i, or 0 when no averages are computed or i is out of range.
func (s *Spectrum) Avg(i int) float64 {
	if i < 0 || i >= len(s.averages) {
		return 0
	}
	return s.averages[i]
}

// Averages returns the average buffer. It is overwritten by every Update.
func (s *Spectrum) Averages() []float64 { return s.averages }

// octaveBounds returns the low and high frequency of log octave k.
func (s *Spectrum) octaveBounds(k int) (float64, float64) {
	nyquist := s.sampleRate / 2
	low := 0.0
	if k > 0 {
		low = nyquist / math.Pow(2, float64(s.octaves-k))
	}
	high := nyquist / math.Pow(2, float64(s.octaves-k-1))
	return low, high
}

// AverageBandWidth returns the width in Hz of average i.
func (s *Spectrum) AverageBandWidth(i int) float64 {
	switch s.averaging {
	case AverageLinear:
		width := len(s.mags) / len(s.averages)
		return float64(width) * s.bandWidth
	case AverageLog:
		low, high := s.octaveBounds(i / s.bandsPerOctave)
		return (high - low) / float64(s.bandsPerOctave)
	}
	return 0
}

// AverageCenterFrequency returns the center frequency in Hz of average i.
func (s *Spectrum) AverageCenterFrequency(i int) float64 {
	switch s.averaging {
	case AverageLinear:
		width := len(s.mags) / len(s.averages)
		return s.IndexToFreq(i*width + width/2)
	case AverageLog:
		low, high := s.octaveBounds(i / s.bandsPerOctave)
		step := (high - low) / float64(s.bandsPerOctave)
		f := low + float64(i%s.bandsPerOctave)*step
		return f + step/2
	}
	return 0
}

// CalcAvg returns the mean magnitude of the bins spanning [lowFreq, highFreq], inclusive.
func (s *Spectrum) CalcAvg(lowFreq, highFreq float64) float64 {
	lo := s.FreqToIndex(lowFreq)
	hi := s.FreqToIndex(highFreq)
	if hi < lo {
		lo, hi = hi, lo
	}
	var sum float64
	for i := lo; i <= hi; i++ {
		sum += s.mags[i]
	}
	return sum / float64(hi-lo+1)
}

// Update recomputes the magnitudes from the complex pair and then the active
// averages. real and imag must hold at least Len() values.
func (s *Spectrum) Update(real, imag []float64) {
	for i := range s.mags {
		s.mags[i] = math.Sqrt(real[i]*real[i] + imag[i]*imag[i])
	}

	switch s.averaging {
	case AverageLinear:
		s.linearAverages()
	case AverageLog:
		s.logAverages()
	}
}

func (s *Spectrum) linearAverages() {
	width := len(s.mags) / len(s.averages)
	for i := range s.averages {
		var sum float64
		count := 0
		for j := 0; j < width; j++ {
			offset := j + i*width
			if offset >= len(s.mags) {
				break
			}
			sum += s.mags[offset]
			count++
		}
		if count > 0 {
			sum /= float64(count)
		}
		s.averages[i] = sum
	}
}

func (s *Spectrum) logAverages() {
	for k := 0; k < s.octaves; k++ {
		low, high := s.octaveBounds(k)
		step := (high - low) / float64(s.bandsPerOctave)
		f := low
		for j := 0; j < s.bandsPerOctave; j++ {
			s.averages[j+k*s.bandsPerOctave] = s.CalcAvg(f, f+step)
			f += step
		}
	}
}

// setMagnitude overrides bin i after a band edit.
func (s *Spectrum) setMagnitude(i int, v float64) {
	if i >= 0 && i < len(s.mags) {
		s.mags[i] = v
	}
}
