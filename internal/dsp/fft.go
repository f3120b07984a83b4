// internal/dsp/fft.go
package dsp

import (
	"errors"
	"math"
)

var (
	// ErrNotPowerOfTwo indicates the FFT time size must be a positive power of two
	ErrNotPowerOfTwo = errors.New("time size must be a power of two")
	// ErrInvalidSampleRate indicates sample rate must be positive
	ErrInvalidSampleRate = errors.New("sample rate must be positive")
	// ErrFrameLength indicates the buffer length does not match the time size
	ErrFrameLength = errors.New("buffer length must equal the time size")
	// ErrInsufficientSamples indicates not enough samples remain after the start offset
	ErrInsufficientSamples = errors.New("insufficient samples after start offset")
	// ErrOutputTooLong indicates the inverse output buffer is longer than the time size
	ErrOutputTooLong = errors.New("output buffer longer than the time size")
	// ErrNegativeAmplitude indicates a band cannot be set or scaled by a negative value
	ErrNegativeAmplitude = errors.New("amplitude must not be negative")
	// ErrBandOutOfRange indicates the band index is outside the spectrum
	ErrBandOutOfRange = errors.New("band index out of range")
)

// Transform is the narrow contract of a fixed-size Fourier transform.
type Transform interface {
	Forward(samples []float32) error
	Inverse(dst []float32) error
	SetBand(i int, amplitude float64) error
	ScaleBand(i int, factor float64) error
}

var _ Transform = (*FFT)(nil)

// FFT is an in-place iterative radix-2 Cooley-Tukey transform for frames of a
// fixed power-of-two length. It keeps its complex working state between
// calls, so the spectrum can be edited with SetBand/ScaleBand and turned back
// into samples with Inverse.
//
// An FFT is not safe for concurrent use.
type FFT struct {
	timeSize int
	window   Window
	spectrum *Spectrum

	real []float64
	imag []float64

	reverse []int
	// indexed by butterfly half size; slot 0 is never read
	sinTable []float64
	cosTable []float64
}

// NewFFT creates a transform for frames of timeSize samples at sampleRate Hz.
func NewFFT(timeSize int, sampleRate float64) (*FFT, error) {
	if timeSize <= 0 || timeSize&(timeSize-1) != 0 {
		return nil, ErrNotPowerOfTwo
	}
	if sampleRate <= 0 {
		return nil, ErrInvalidSampleRate
	}

	f := &FFT{
		timeSize: timeSize,
		window:   WindowNone,
		spectrum: NewSpectrum(timeSize, sampleRate),
		real:     make([]float64, timeSize),
		imag:     make([]float64, timeSize),
	}
	f.buildReverseTable()
	f.buildTrigTables()
	return f, nil
}

func (f *FFT) buildReverseTable() {
	n := f.timeSize
	f.reverse = make([]int, n)
	for limit, bit := 1, n/2; limit < n; limit, bit = limit<<1, bit>>1 {
		for i := 0; i < limit; i++ {
			f.reverse[i+limit] = f.reverse[i] + bit
		}
	}
}

func (f *FFT) buildTrigTables() {
	n := f.timeSize
	f.sinTable = make([]float64, n)
	f.cosTable = make([]float64, n)
	// -π/0 has no meaning; NaN makes any accidental read visible
	f.sinTable[0] = math.NaN()
	f.cosTable[0] = math.NaN()
	for i := 1; i < n; i++ {
		f.sinTable[i] = math.Sin(-math.Pi / float64(i))
		f.cosTable[i] = math.Cos(-math.Pi / float64(i))
	}
}

// TimeSize returns the frame length
func (f *FFT) TimeSize() int { return f.timeSize }

// SampleRate returns the sample rate in Hz
func (f *FFT) SampleRate() float64 { return f.spectrum.sampleRate }

// Spectrum returns the magnitude spectrum and averaging state of the transform.
func (f *FFT) Spectrum() *Spectrum { return f.spectrum }

// SetWindow selects the window applied by Forward and ForwardAt.
func (f *FFT) SetWindow(w Window) { f.window = w }

// Window returns the active window
func (f *FFT) Window() Window { return f.window }

// Real returns the real part of the complex state. The slice stays valid
// for the life of the transform and is overwritten by every call.
func (f *FFT) Real() []float64 { return f.real }

// Imag returns the imaginary part of the complex state, shared like Real.
func (f *FFT) Imag() []float64 { return f.imag }

// Forward transforms samples, which must be exactly TimeSize long.
// The active window is applied to samples in place.
func (f *FFT) Forward(samples []float32) error {
	if len(samples) != f.timeSize {
		return ErrFrameLength
	}
	f.window.Apply(samples)
	f.bitReverseSamples(samples, 0)
	f.butterfly()
	f.spectrum.Update(f.real, f.imag)
	return nil
}

// ForwardAt transforms the TimeSize samples starting at startAt, windowing
// that range in place.
func (f *FFT) ForwardAt(samples []float32, startAt int) error {
	if startAt < 0 || len(samples)-startAt < f.timeSize {
		return ErrInsufficientSamples
	}
	f.window.ApplyRange(samples, startAt, f.timeSize)
	f.bitReverseSamples(samples, startAt)
	f.butterfly()
	f.spectrum.Update(f.real, f.imag)
	return nil
}

// ForwardComplex transforms a complex signal. No window is applied.
func (f *FFT) ForwardComplex(re, im []float64) error {
	if len(re) != f.timeSize || len(im) != f.timeSize {
		return ErrFrameLength
	}
	copy(f.real, re)
	copy(f.imag, im)
	f.bitReverseComplex()
	f.butterfly()
	f.spectrum.Update(f.real, f.imag)
	return nil
}

// Inverse transforms the current complex state back to the time domain and
// writes the first len(dst) samples into dst.
func (f *FFT) Inverse(dst []float32) error {
	if len(dst) > f.timeSize {
		return ErrOutputTooLong
	}
	for i := range f.imag {
		f.imag[i] = -f.imag[i]
	}
	f.bitReverseComplex()
	f.butterfly()
	n := float64(f.timeSize)
	for i := range dst {
		dst[i] = float32(f.real[i] / n)
	}
	return nil
}

// InverseFrom loads the complex spectrum (re, im) and inverts it into dst.
func (f *FFT) InverseFrom(re, im []float64, dst []float32) error {
	if len(re) != f.timeSize || len(im) != f.timeSize {
		return ErrFrameLength
	}
	if len(dst) > f.timeSize {
		return ErrOutputTooLong
	}
	copy(f.real, re)
	copy(f.imag, im)
	return f.Inverse(dst)
}

// Band returns the magnitude of bin i (clamped).
func (f *FFT) Band(i int) float64 { return f.spectrum.Band(i) }

// Freq returns the magnitude of the bin containing freq.
func (f *FFT) Freq(freq float64) float64 {
	return f.spectrum.Band(f.spectrum.FreqToIndex(freq))
}

// SetBand sets the magnitude of bin i to amplitude, keeping its phase, and
// mirrors the change into bin TimeSize-i so the spectrum stays Hermitian.
func (f *FFT) SetBand(i int, amplitude float64) error {
	if amplitude < 0 {
		return ErrNegativeAmplitude
	}
	if i < 0 || i > f.timeSize/2 {
		return ErrBandOutOfRange
	}

	mag := math.Hypot(f.real[i], f.imag[i])
	if mag == 0 {
		f.real[i] = amplitude
		f.imag[i] = 0
	} else {
		f.real[i] = f.real[i] / mag * amplitude
		f.imag[i] = f.imag[i] / mag * amplitude
	}
	f.spectrum.setMagnitude(i, amplitude)
	f.mirror(i)
	return nil
}

// ScaleBand multiplies bin i by factor and mirrors it into bin TimeSize-i.
func (f *FFT) ScaleBand(i int, factor float64) error {
	if factor < 0 {
		return ErrNegativeAmplitude
	}
	if i < 0 || i > f.timeSize/2 {
		return ErrBandOutOfRange
	}

	f.real[i] *= factor
	f.imag[i] *= factor
	f.spectrum.setMagnitude(i, f.spectrum.mags[i]*factor)
	f.mirror(i)
	return nil
}

// SetFreq sets the amplitude of the bin containing freq.
func (f *FFT) SetFreq(freq, amplitude float64) error {
	return f.SetBand(f.spectrum.FreqToIndex(freq), amplitude)
}

// ScaleFreq scales the bin containing freq.
func (f *FFT) ScaleFreq(freq, factor float64) error {
	return f.ScaleBand(f.spectrum.FreqToIndex(freq), factor)
}

// mirror copies bin i into its conjugate position. DC and Nyquist are their
// own mirrors.
func (f *FFT) mirror(i int) {
	if i == 0 || i == f.timeSize/2 {
		return
	}
	f.real[f.timeSize-i] = f.real[i]
	f.imag[f.timeSize-i] = -f.imag[i]
}

// bitReverseSamples copies samples[startAt:] into real in bit-reversed order
// and clears imag.
func (f *FFT) bitReverseSamples(samples []float32, startAt int) {
	for i := 0; i < f.timeSize; i++ {
		f.real[i] = float64(samples[startAt+f.reverse[i]])
		f.imag[i] = 0
	}
}

// bitReverseComplex permutes real and imag in place. The reversal is an
// involution, so swapping each pair once is enough.
func (f *FFT) bitReverseComplex() {
	for i, j := range f.reverse {
		if i < j {
			f.real[i], f.real[j] = f.real[j], f.real[i]
			f.imag[i], f.imag[j] = f.imag[j], f.imag[i]
		}
	}
}

// butterfly runs the decimation-in-time passes over data that is already in
// bit-reversed order.
func (f *FFT) butterfly() {
	n := len(f.real)
	for halfSize := 1; halfSize < n; halfSize *= 2 {
		stepR := f.cosTable[halfSize]
		stepI := f.sinTable[halfSize]
		phaseR, phaseI := 1.0, 0.0
		for fftStep := 0; fftStep < halfSize; fftStep++ {
			for i := fftStep; i < n; i += 2 * halfSize {
				off := i + halfSize
				tr := phaseR*f.real[off] - phaseI*f.imag[off]
				ti := phaseR*f.imag[off] + phaseI*f.real[off]
				f.real[off] = f.real[i] - tr
				f.imag[off] = f.imag[i] - ti
				f.real[i] += tr
				f.imag[i] += ti
			}
			tmp := phaseR
			phaseR = tmp*stepR - phaseI*stepI
			phaseI = tmp*stepI + phaseI*stepR
		}
	}
}
