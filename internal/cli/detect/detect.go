// internal/cli/detect/detect.go
package detect

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ColonelBlimp/beatdetect/internal/analyzer"
	"github.com/ColonelBlimp/beatdetect/internal/audio"
	"github.com/ColonelBlimp/beatdetect/internal/config"
	"github.com/ColonelBlimp/beatdetect/internal/recovery"
	"github.com/ColonelBlimp/beatdetect/internal/source"
)

// Summary counts what a run detected.
type Summary struct {
	Frames   int64
	Beats    int // wideband onsets, or kicks in per-band mode
	Kicks    int
	Snares   int
	Hats     int
	Duration time.Duration
	Dropped  uint64 // capture buffers lost to a full channel
}

func (s *Summary) add(e analyzer.Event, frameDuration time.Duration) {
	s.Frames++
	s.Duration = e.Time + frameDuration
	// per-band activity on its own is not a beat; only the kick sets tempo
	if e.Onset || e.Kick {
		s.Beats++
	}
	if e.Kick {
		s.Kicks++
	}
	if e.Snare {
		s.Snares++
	}
	if e.Hat {
		s.Hats++
	}
}

// BPM estimates tempo from the beat count, 0 for an empty run
func (s Summary) BPM() float64 {
	if s.Duration <= 0 {
		return 0
	}
	return float64(s.Beats) / s.Duration.Minutes()
}

func newAnalyzer(cfg analyzer.Config, p *Printer, summary *Summary) (*analyzer.Analyzer, error) {
	a, err := analyzer.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("analyzer: %w", err)
	}
	frameDuration := cfg.Beat.FrameDuration()
	a.SetCallback(func(e analyzer.Event) {
		summary.add(e, frameDuration)
		p.Print(e)
	})
	return a, nil
}

// ListAudioDevices returns the capture devices of the default backend.
func ListAudioDevices() ([]audio.DeviceInfo, error) {
	capture := audio.New(audio.DefaultConfig())
	defer capture.Close()

	if err := capture.Init(); err != nil {
		return nil, fmt.Errorf("audio init: %w", err)
	}
	return capture.Devices()
}

// Listen analyzes live input until ctx is cancelled. When recordPath is set
// the raw capture is also written there as 16-bit WAV.
func Listen(ctx context.Context, s *config.Settings, p *Printer, recordPath string) (Summary, error) {
	var summary Summary

	cfg, err := s.AnalyzerConfig()
	if err != nil {
		return summary, fmt.Errorf("config: %w", err)
	}
	a, err := newAnalyzer(cfg, p, &summary)
	if err != nil {
		return summary, err
	}

	capture := audio.New(s.CaptureConfig())
	defer capture.Close()
	if err := capture.Init(); err != nil {
		return summary, fmt.Errorf("audio init: %w", err)
	}

	var rec *source.Recorder
	if recordPath != "" {
		f, err := os.Create(recordPath)
		if err != nil {
			return summary, fmt.Errorf("create recording: %w", err)
		}
		rec = source.NewRecorder(f, int(s.SampleRate), s.Channels)
		defer func() {
			if err := errors.Join(rec.Close(), f.Close()); err != nil {
				logrus.WithError(err).Error("Closing recording")
			}
		}()
	}

	if err := capture.Start(ctx); err != nil {
		return summary, fmt.Errorf("audio start: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			summary.Dropped = capture.Dropped()
			return summary, p.Err()
		case buf, ok := <-capture.Samples:
			if !ok {
				return summary, p.Err()
			}
			if rec != nil {
				if err := rec.Write(buf); err != nil {
					return summary, err
				}
			}
			a.Process(buf)
		}
	}
}

// AnalyzeFile decodes the file at path and analyzes it at its own sample
// rate. Files with more than two channels are mixed to mono first.
func AnalyzeFile(ctx context.Context, s *config.Settings, path string, p *Printer) (Summary, error) {
	var summary Summary

	src, err := source.DefaultRegistry().Open(path)
	if err != nil {
		return summary, err
	}
	defer func() { _ = src.Close() }()

	var in source.Source = src
	if in.Channels() > 2 {
		in = source.NewMonoMixer(src)
	}

	cfg, err := s.AnalyzerConfig()
	if err != nil {
		return summary, fmt.Errorf("config: %w", err)
	}
	cfg.Channels = in.Channels()
	cfg.Beat.SampleRate = float64(in.SampleRate())

	a, err := newAnalyzer(cfg, p, &summary)
	if err != nil {
		return summary, err
	}

	logrus.WithFields(logrus.Fields{
		"file":        path,
		"sample_rate": in.SampleRate(),
		"channels":    src.Channels(),
		"mode":        cfg.Beat.Mode,
	}).Info("Analyzing file")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	samples := make(chan []float32, 16)
	streamErr := make(chan error, 1)
	go func() {
		defer recovery.HandlePanicFunc(cancel)
		defer close(samples)
		streamErr <- source.Stream(ctx, in, s.BufferSize, samples)
	}()

	if err := a.Run(ctx, samples); err != nil {
		return summary, err
	}
	if err := <-streamErr; err != nil {
		return summary, err
	}
	return summary, p.Err()
}
