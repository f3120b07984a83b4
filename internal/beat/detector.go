// internal/beat/detector.go
package beat

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/ColonelBlimp/beatdetect/internal/dsp"
)

var (
	// ErrInvalidTimeSize indicates the frame length must be a positive power of two
	ErrInvalidTimeSize = errors.New("time size must be a positive power of two")
	// ErrInvalidSampleRate indicates sample rate must be positive
	ErrInvalidSampleRate = errors.New("sample rate must be positive")
	// ErrInvalidRefractory indicates the refractory period must be non-negative
	ErrInvalidRefractory = errors.New("refractory period must be non-negative")
	// ErrInvalidMinLevel indicates the wideband level gate must be non-negative
	ErrInvalidMinLevel = errors.New("minimum level must be non-negative")
	// ErrInvalidMinBandwidth indicates the per-band octave bandwidth must be positive
	ErrInvalidMinBandwidth = errors.New("minimum bandwidth must be positive")
	// ErrInvalidBandsPerOctave indicates bands per octave must be positive
	ErrInvalidBandsPerOctave = errors.New("bands per octave must be positive")
	// ErrEmptyFrame indicates a zero-length frame was passed in wideband mode
	ErrEmptyFrame = errors.New("frame is empty")
	// ErrUnknownMode indicates an unrecognised mode name
	ErrUnknownMode = errors.New("unknown detection mode")
)

// Mode selects what the detector measures.
type Mode int

const (
	// ModePerBand tracks the energy of each log-averaged frequency band
	ModePerBand Mode = 0
	// ModeWideband tracks the RMS energy of the whole frame
	ModeWideband Mode = 1
)

// clamp resolves out-of-range mode ids to wideband.
func (m Mode) clamp() Mode {
	if m != ModePerBand && m != ModeWideband {
		return ModeWideband
	}
	return m
}

func (m Mode) String() string {
	switch m {
	case ModePerBand:
		return "perband"
	case ModeWideband:
		return "wideband"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// ParseMode maps a config name to a Mode.
func ParseMode(name string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "wideband", "sound", "energy":
		return ModeWideband, nil
	case "perband", "per-band", "frequency", "bands":
		return ModePerBand, nil
	default:
		return ModeWideband, fmt.Errorf("%w: %q", ErrUnknownMode, name)
	}
}

// Config holds configuration for the beat detector.
type Config struct {
	// TimeSize is the frame length in samples, a power of two
	TimeSize int
	// SampleRate of the frames in Hz
	SampleRate float64
	// Mode is the initial detection mode; invalid ids become wideband
	Mode Mode
	// Refractory is the minimum time between two onsets of one signal
	Refractory time.Duration
	// MinBandwidth is the narrowest octave of the per-band averages in Hz
	MinBandwidth float64
	// BandsPerOctave splits every octave of the per-band averages
	BandsPerOctave int
	// MinLevel gates wideband onsets on the scaled RMS energy
	MinLevel float64
	// Window is applied before the per-band transform
	Window dsp.Window
}

// DefaultConfig returns the wideband detector for 1024-sample frames at 44.1kHz.
func DefaultConfig() Config {
	return Config{
		TimeSize:       1024,
		SampleRate:     44100,
		Mode:           ModeWideband,
		Refractory:     10 * time.Millisecond,
		MinBandwidth:   60,
		BandsPerOctave: 3,
		MinLevel:       2,
		Window:         dsp.WindowNone,
	}
}

// Validate checks the configuration
func (c Config) Validate() error {
	if c.TimeSize <= 0 || c.TimeSize&(c.TimeSize-1) != 0 {
		return ErrInvalidTimeSize
	}
	if c.SampleRate <= 0 {
		return ErrInvalidSampleRate
	}
	if c.Refractory < 0 {
		return ErrInvalidRefractory
	}
	if c.MinLevel < 0 {
		return ErrInvalidMinLevel
	}
	if c.MinBandwidth <= 0 {
		return ErrInvalidMinBandwidth
	}
	if c.BandsPerOctave <= 0 {
		return ErrInvalidBandsPerOctave
	}
	return nil
}

// HistoryLength returns how many frames the energy histories remember,
// about one second of audio.
func (c Config) HistoryLength() int {
	return max(int(c.SampleRate)/c.TimeSize, 1)
}

// FrameDuration returns the time covered by one frame.
func (c Config) FrameDuration() time.Duration {
	return time.Duration(float64(c.TimeSize) / c.SampleRate * float64(time.Second))
}

// modeState is the per-mode half of the detector. Switching modes replaces
// it with a freshly built value.
type modeState interface {
	mode() Mode
	detect(frame []float32, now time.Duration) error
}

type widebandState struct {
	tracker  *tracker
	minLevel float64
}

func (w *widebandState) mode() Mode { return ModeWideband }

func (w *widebandState) detect(frame []float32, now time.Duration) error {
	if len(frame) == 0 {
		return ErrEmptyFrame
	}
	var sum float64
	for _, s := range frame {
		sum += float64(s) * float64(s)
	}
	instant := math.Sqrt(sum/float64(len(frame))) * 100
	w.tracker.evaluate(instant, now, instant > w.minLevel)
	return nil
}

type perBandState struct {
	fft     *dsp.FFT
	scratch []float32
	bands   []*tracker
}

func newPerBandState(cfg Config) (*perBandState, error) {
	fft, err := dsp.NewFFT(cfg.TimeSize, cfg.SampleRate)
	if err != nil {
		return nil, fmt.Errorf("per-band transform: %w", err)
	}
	fft.SetWindow(cfg.Window)
	if err := fft.Spectrum().LogAverages(cfg.MinBandwidth, cfg.BandsPerOctave); err != nil {
		return nil, fmt.Errorf("per-band averages: %w", err)
	}

	bands := make([]*tracker, fft.Spectrum().AvgSize())
	for i := range bands {
		bands[i] = newTracker(cfg.HistoryLength(), cfg.Refractory)
	}
	return &perBandState{
		fft:     fft,
		scratch: make([]float32, cfg.TimeSize),
		bands:   bands,
	}, nil
}

func (p *perBandState) mode() Mode { return ModePerBand }

func (p *perBandState) detect(frame []float32, now time.Duration) error {
	if len(frame) != len(p.scratch) {
		return dsp.ErrFrameLength
	}
	// the window is applied in place, keep the caller's frame intact
	copy(p.scratch, frame)
	if err := p.fft.Forward(p.scratch); err != nil {
		return err
	}
	spectrum := p.fft.Spectrum()
	for i, t := range p.bands {
		t.evaluate(spectrum.Avg(i), now, true)
	}
	return nil
}

// Detector finds onsets in a stream of frames, either in the overall
// energy (wideband) or independently in each log-spaced frequency band
// (per-band). Refractory timing runs on a monotonic clock: Detect advances
// an internal frame clock, DetectAt takes the time from the caller.
//
// A Detector is not safe for concurrent use.
type Detector struct {
	config Config
	state  modeState
	clock  time.Duration

	diffTrace  *Trace
	diff2Trace *Trace
}

// New creates a detector with the given configuration.
func New(cfg Config) (*Detector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.Mode = cfg.Mode.clamp()

	d := &Detector{config: cfg}
	if err := d.reset(cfg.Mode); err != nil {
		return nil, err
	}
	return d, nil
}

// NewDefault creates a wideband detector using DefaultConfig.
func NewDefault() *Detector {
	d, err := New(DefaultConfig())
	if err != nil {
		panic(fmt.Sprintf("beat: default config rejected: %v", err))
	}
	return d
}

func (d *Detector) reset(m Mode) error {
	var state modeState
	if m == ModePerBand {
		pb, err := newPerBandState(d.config)
		if err != nil {
			return err
		}
		state = pb
	} else {
		state = &widebandState{
			tracker:  newTracker(d.config.HistoryLength(), d.config.Refractory),
			minLevel: d.config.MinLevel,
		}
	}
	d.state = state
	d.config.Mode = m
	d.clock = 0
	d.diffTrace = newTrace()
	d.diff2Trace = newTrace()
	return nil
}

// Config returns the active configuration
func (d *Detector) Config() Config { return d.config }

// Mode returns the active detection mode
func (d *Detector) Mode() Mode { return d.state.mode() }

// SetMode switches the detection mode. Invalid ids become wideband. A real
// switch discards all histories, timers and traces; setting the active mode
// again does nothing.
func (d *Detector) SetMode(m Mode) error {
	m = m.clamp()
	if m == d.state.mode() {
		return nil
	}
	return d.reset(m)
}

// Reset discards all histories, timers and traces of the active mode.
func (d *Detector) Reset() error {
	return d.reset(d.state.mode())
}

// Detect analyses the next frame. The frame clock advances by one frame
// duration after every accepted frame.
func (d *Detector) Detect(frame []float32) error {
	if err := d.DetectAt(frame, d.clock); err != nil {
		return err
	}
	d.clock += d.config.FrameDuration()
	return nil
}

// DetectAt analyses a frame that started at now on the caller's monotonic
// clock. On error the detector state is unchanged.
func (d *Detector) DetectAt(frame []float32, now time.Duration) error {
	if err := d.state.detect(frame, now); err != nil {
		return err
	}
	if w, ok := d.state.(*widebandState); ok {
		d.diffTrace.push(w.tracker.diff)
		d.diff2Trace.push(w.tracker.diff2)
	}
	return nil
}

// IsOnset reports whether the last wideband frame fired. Always false in
// per-band mode.
func (d *Detector) IsOnset() bool {
	w, ok := d.state.(*widebandState)
	return ok && w.tracker.onset
}

// IsOnsetBand reports whether band i fired on the last frame. Always false
// in wideband mode or for bands that do not exist.
func (d *Detector) IsOnsetBand(i int) bool {
	p, ok := d.state.(*perBandState)
	if !ok || i < 0 || i >= len(p.bands) {
		return false
	}
	return p.bands[i].onset
}

// IsRange reports whether at least threshold bands in [low, high] fired on
// the last frame. Always false in wideband mode.
func (d *Detector) IsRange(low, high, threshold int) bool {
	if _, ok := d.state.(*perBandState); !ok {
		return false
	}
	count := 0
	for i := low; i <= high; i++ {
		if d.IsOnsetBand(i) {
			count++
		}
	}
	return count >= threshold
}

// IsKick reports an onset in the lowest bands. Tuned for dance music.
func (d *Detector) IsKick() bool {
	if _, ok := d.state.(*perBandState); !ok {
		return false
	}
	upper := min(6, d.BandCount())
	return d.IsRange(1, upper, 2)
}

// IsSnare reports an onset in the upper-mid bands.
func (d *Detector) IsSnare() bool {
	if _, ok := d.state.(*perBandState); !ok {
		return false
	}
	n := d.BandCount()
	lower := min(8, n)
	upper := n - 1
	threshold := (upper-lower)/3 + 1
	return d.IsRange(lower, upper, threshold)
}

// IsHat reports an onset in the top bands.
func (d *Detector) IsHat() bool {
	if _, ok := d.state.(*perBandState); !ok {
		return false
	}
	n := d.BandCount()
	return d.IsRange(max(0, n-7), n-1, 1)
}

// BandCount returns the number of tracked bands, 0 in wideband mode.
func (d *Detector) BandCount() int {
	if p, ok := d.state.(*perBandState); ok {
		return len(p.bands)
	}
	return 0
}

// Level returns the scaled RMS energy of the last wideband frame, or the
// loudest band average in per-band mode.
func (d *Detector) Level() float64 {
	switch s := d.state.(type) {
	case *widebandState:
		return s.tracker.instant
	case *perBandState:
		var level float64
		for _, t := range s.bands {
			level = max(level, t.instant)
		}
		return level
	}
	return 0
}

// BandLevel returns the average magnitude of band i on the last frame.
func (d *Detector) BandLevel(i int) float64 {
	p, ok := d.state.(*perBandState)
	if !ok || i < 0 || i >= len(p.bands) {
		return 0
	}
	return p.bands[i].instant
}

// BandCenter returns the center frequency in Hz of band i, 0 in wideband mode.
func (d *Detector) BandCenter(i int) float64 {
	p, ok := d.state.(*perBandState)
	if !ok || i < 0 || i >= len(p.bands) {
		return 0
	}
	return p.fft.Spectrum().AverageCenterFrequency(i)
}

// Trace returns the recorded wideband diff and diff2 series. The traces
// hold up to TraceLength entries and start over when full.
func (d *Detector) Trace() (diff, diff2 []float64) {
	return d.diffTrace.Values(), d.diff2Trace.Values()
}
