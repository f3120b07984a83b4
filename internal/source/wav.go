// internal/source/wav.go
package source

import (
	"errors"
	"fmt"
	"io"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

var (
	// ErrNotWAV indicates the stream is not a RIFF/WAVE file
	ErrNotWAV = errors.New("not a WAV file")
	// ErrUnsupportedEncoding indicates a WAV encoding other than integer PCM
	ErrUnsupportedEncoding = errors.New("only integer PCM WAV is supported")
)

const wavFormatPCM = 1

// pcmReader is the part of wav.Decoder the source reads from
type pcmReader interface {
	PCMBuffer(buf *goaudio.IntBuffer) (int, error)
}

type wavSource struct {
	dec        pcmReader
	format     *goaudio.Format
	sampleRate int
	channels   int
	bitDepth   int
	intBuf     *goaudio.IntBuffer
}

func (s *wavSource) SampleRate() int { return s.sampleRate }
func (s *wavSource) Channels() int   { return s.channels }
func (s *wavSource) Close() error    { return nil }

func (s *wavSource) ReadSamples(dst []float32) (int, error) {
	if len(dst) == 0 {
		return 0, nil
	}
	if s.intBuf == nil || cap(s.intBuf.Data) < len(dst) {
		s.intBuf = &goaudio.IntBuffer{
			Data:           make([]int, len(dst)),
			Format:         s.format,
			SourceBitDepth: s.bitDepth,
		}
	} else {
		s.intBuf.Data = s.intBuf.Data[:len(dst)]
	}

	n, err := s.dec.PCMBuffer(s.intBuf)
	if err != nil {
		return 0, fmt.Errorf("read pcm: %w", err)
	}
	if n == 0 {
		return 0, io.EOF
	}

	scale, offset := pcmScale(s.bitDepth)
	for i := 0; i < n; i++ {
		dst[i] = float32(s.intBuf.Data[i]-offset) / scale
	}
	return n, nil
}

// pcmScale returns the divisor and zero offset for integer samples of the
// given bit depth. 8-bit WAV is unsigned.
func pcmScale(bitDepth int) (float32, int) {
	switch bitDepth {
	case 8:
		return 128, 128
	case 24:
		return 8388608, 0
	case 32:
		return 2147483648, 0
	default:
		return 32768, 0
	}
}

// WAVDecoder decodes integer PCM WAV files with go-audio/wav.
type WAVDecoder struct{}

// Decode reads the WAV header and positions r at the first sample.
func (WAVDecoder) Decode(r io.ReadSeeker) (Source, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return nil, ErrNotWAV
	}
	if err := dec.FwdToPCM(); err != nil {
		return nil, fmt.Errorf("find pcm chunk: %w", err)
	}
	if dec.WavAudioFormat != wavFormatPCM {
		return nil, fmt.Errorf("%w: format tag %d", ErrUnsupportedEncoding, dec.WavAudioFormat)
	}

	format := dec.Format()
	return &wavSource{
		dec:        dec,
		format:     format,
		sampleRate: format.SampleRate,
		channels:   format.NumChannels,
		bitDepth:   int(dec.BitDepth),
	}, nil
}

// Recorder writes interleaved float samples to a 16-bit PCM WAV file.
type Recorder struct {
	enc    *wav.Encoder
	buf    *goaudio.IntBuffer
	frames int
}

// NewRecorder starts a WAV stream on w. Close must be called to finalize
// the header.
func NewRecorder(w io.WriteSeeker, sampleRate, channels int) *Recorder {
	format := &goaudio.Format{NumChannels: channels, SampleRate: sampleRate}
	return &Recorder{
		enc: wav.NewEncoder(w, sampleRate, 16, channels, wavFormatPCM),
		buf: &goaudio.IntBuffer{Format: format, SourceBitDepth: 16},
	}
}

// Write appends samples, clipping them to -1.0..1.0.
func (r *Recorder) Write(samples []float32) error {
	if cap(r.buf.Data) < len(samples) {
		r.buf.Data = make([]int, len(samples))
	}
	r.buf.Data = r.buf.Data[:len(samples)]
	for i, s := range samples {
		r.buf.Data[i] = int(max(-1, min(1, s)) * 32767)
	}
	if err := r.enc.Write(r.buf); err != nil {
		return fmt.Errorf("write wav: %w", err)
	}
	r.frames += len(samples) / r.buf.Format.NumChannels
	return nil
}

// Frames returns the number of frames written so far
func (r *Recorder) Frames() int { return r.frames }

// Close flushes the encoder and patches the header sizes.
func (r *Recorder) Close() error {
	if err := r.enc.Close(); err != nil {
		return fmt.Errorf("close wav: %w", err)
	}
	return nil
}
