// internal/analyzer/analyzer.go
package analyzer

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/floats"

	"github.com/ColonelBlimp/beatdetect/internal/beat"
	"github.com/ColonelBlimp/beatdetect/internal/dsp"
)

// Event is published once per analysed frame.
type Event struct {
	// Frame is the zero-based index of the analysed frame
	Frame int64
	// Time is the start of the frame relative to the first sample
	Time time.Duration
	// Mode is the detector mode that produced the flags
	Mode beat.Mode
	// Onset is the wideband onset flag
	Onset bool
	// Kick, Snare and Hat are the per-band composite flags
	Kick  bool
	Snare bool
	Hat   bool
	// Bands lists the per-band indices that fired
	Bands []int
	// Level is the detector energy of the frame
	Level float64
	// PeakFrequency is the center of the loudest spectrum bin in Hz
	PeakFrequency float64
	// Averages is a copy of the spectrum averages, empty without averaging
	Averages []float64
	// VU is the most recent meter level (0.0-1.0)
	VU float64
}

// Beat reports whether any onset flag is set
func (e Event) Beat() bool {
	return e.Onset || len(e.Bands) > 0
}

// EventCallback receives analysis events. It runs on the goroutine feeding
// the analyzer and must not block.
type EventCallback func(event Event)

// Config holds configuration for the analyzer.
type Config struct {
	// Channels of the interleaved input (from config: channels)
	Channels int
	// OverlapPct is the frame overlap percentage 0-99 (from config: overlap_pct)
	OverlapPct int
	// MeterRate is the VU meter update rate in Hz (from config: meter_rate)
	MeterRate float64
	// Averaging selects the spectrum averages reported in events (from config: averaging)
	Averaging dsp.Averaging
	// LinearAverages is the average count for linear averaging (from config: linear_averages)
	LinearAverages int
	// Beat configures the detector; its TimeSize, SampleRate and Window also
	// drive the spectrum
	Beat beat.Config
}

// DefaultConfig returns stereo input with log-averaged spectrum output and
// the default wideband detector.
func DefaultConfig() Config {
	return Config{
		Channels:       2,
		OverlapPct:     0,
		MeterRate:      25,
		Averaging:      dsp.AverageLog,
		LinearAverages: 32,
		Beat:           beat.DefaultConfig(),
	}
}

// Analyzer runs the spectrum, the beat detector and the VU meter over a
// stream of interleaved samples and publishes one Event per frame.
type Analyzer struct {
	config Config
	log    *logrus.Entry

	framer   *Framer
	meter    *Meter
	fft      *dsp.FFT
	detector *beat.Detector
	scratch  []float32

	frames   int64
	hopTime  time.Duration
	rejected int64

	callbackPtr atomic.Pointer[EventCallback]
}

// New creates an analyzer with the given configuration.
func New(cfg Config) (*Analyzer, error) {
	detector, err := beat.New(cfg.Beat)
	if err != nil {
		return nil, fmt.Errorf("beat detector: %w", err)
	}
	framer, err := NewFramer(cfg.Beat.TimeSize, cfg.Channels, cfg.OverlapPct)
	if err != nil {
		return nil, err
	}
	meter, err := NewMeter(cfg.Beat.SampleRate, cfg.Channels, cfg.MeterRate)
	if err != nil {
		return nil, err
	}
	fft, err := dsp.NewFFT(cfg.Beat.TimeSize, cfg.Beat.SampleRate)
	if err != nil {
		return nil, fmt.Errorf("spectrum: %w", err)
	}
	fft.SetWindow(cfg.Beat.Window)

	switch cfg.Averaging {
	case dsp.AverageLinear:
		err = fft.Spectrum().LinearAverages(cfg.LinearAverages)
	case dsp.AverageLog:
		err = fft.Spectrum().LogAverages(cfg.Beat.MinBandwidth, cfg.Beat.BandsPerOctave)
	}
	if err != nil {
		return nil, fmt.Errorf("spectrum averages: %w", err)
	}

	hop := float64(framer.HopSize()) / cfg.Beat.SampleRate
	return &Analyzer{
		config:   cfg,
		log:      logrus.WithField("component", "analyzer"),
		framer:   framer,
		meter:    meter,
		fft:      fft,
		detector: detector,
		scratch:  make([]float32, cfg.Beat.TimeSize),
		hopTime:  time.Duration(hop * float64(time.Second)),
	}, nil
}

// SetCallback sets the callback for analysis events.
func (a *Analyzer) SetCallback(cb EventCallback) {
	if cb == nil {
		a.callbackPtr.Store(nil)
	} else {
		a.callbackPtr.Store(&cb)
	}
}

// Detector returns the beat detector, e.g. to switch modes between frames
func (a *Analyzer) Detector() *beat.Detector { return a.detector }

// Spectrum returns the spectrum of the last analysed frame
func (a *Analyzer) Spectrum() *dsp.Spectrum { return a.fft.Spectrum() }

// Frames returns the number of analysed frames
func (a *Analyzer) Frames() int64 { return a.frames }

// Rejected returns the number of frames the detector refused
func (a *Analyzer) Rejected() int64 { return a.rejected }

// Process feeds interleaved samples normalized to -1.0..1.0.
func (a *Analyzer) Process(samples []float32) {
	a.meter.Push(samples, nil)
	a.framer.Push(samples, a.processFrame)
}

// Run processes buffers from samples until the channel closes or ctx is done.
func (a *Analyzer) Run(ctx context.Context, samples <-chan []float32) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case buf, ok := <-samples:
			if !ok {
				return nil
			}
			a.Process(buf)
		}
	}
}

func (a *Analyzer) processFrame(frame []float32) {
	at := time.Duration(a.frames) * a.hopTime

	if err := a.detector.DetectAt(frame, at); err != nil {
		a.rejected++
		a.log.WithFields(logrus.Fields{
			"frame": a.frames,
			"size":  len(frame),
		}).WithError(err).Warn("Frame skipped by beat detector")
		return
	}

	copy(a.scratch, frame)
	if err := a.fft.Forward(a.scratch); err != nil {
		// the framer only emits full frames
		a.log.WithError(err).Error("Spectrum rejected frame")
		return
	}

	event := a.buildEvent(at)
	a.frames++

	if event.Beat() {
		a.log.WithFields(logrus.Fields{
			"frame": event.Frame,
			"kick":  event.Kick,
			"snare": event.Snare,
			"hat":   event.Hat,
			"level": event.Level,
		}).Debug("Onset")
	}

	if cb := a.callbackPtr.Load(); cb != nil {
		(*cb)(event)
	}
}

func (a *Analyzer) buildEvent(at time.Duration) Event {
	d := a.detector
	spectrum := a.fft.Spectrum()

	event := Event{
		Frame:         a.frames,
		Time:          at,
		Mode:          d.Mode(),
		Onset:         d.IsOnset(),
		Kick:          d.IsKick(),
		Snare:         d.IsSnare(),
		Hat:           d.IsHat(),
		Level:         d.Level(),
		PeakFrequency: spectrum.IndexToFreq(floats.MaxIdx(spectrum.Magnitudes())),
		Averages:      append([]float64(nil), spectrum.Averages()...),
		VU:            a.meter.Level(),
	}
	for i := 0; i < d.BandCount(); i++ {
		if d.IsOnsetBand(i) {
			event.Bands = append(event.Bands, i)
		}
	}
	return event
}

// Reset drops buffered samples, the VU level and detector history
func (a *Analyzer) Reset() error {
	a.framer.Reset()
	a.meter.Reset()
	a.frames = 0
	a.rejected = 0
	if err := a.detector.Reset(); err != nil {
		return fmt.Errorf("reset detector: %w", err)
	}
	return nil
}
