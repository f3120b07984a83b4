// internal/source/source.go
package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

var (
	// ErrUnsupportedFormat indicates no decoder is registered for a file extension
	ErrUnsupportedFormat = errors.New("unsupported audio format")
	// ErrInvalidBufferSize indicates a read buffer must hold at least one frame
	ErrInvalidBufferSize = errors.New("buffer size must be positive")
)

// Source is a decoded PCM stream.
type Source interface {
	// SampleRate of the stream in Hz
	SampleRate() int
	// Channels in each interleaved frame
	Channels() int
	// ReadSamples fills dst with interleaved samples in -1.0..1.0 and returns
	// the number of values written. It returns io.EOF once the stream ends.
	ReadSamples(dst []float32) (int, error)
	Close() error
}

// Decoder constructs a Source from an encoded stream.
type Decoder interface {
	Decode(r io.ReadSeeker) (Source, error)
}

// Registry maps lower-case file extensions to decoders.
type Registry struct {
	mu       sync.RWMutex
	decoders map[string]Decoder
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{decoders: make(map[string]Decoder)}
}

// DefaultRegistry returns a registry with the WAV, MP3 and Ogg Vorbis decoders.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(".wav", WAVDecoder{})
	r.Register(".wave", WAVDecoder{})
	r.Register(".mp3", MP3Decoder{})
	r.Register(".ogg", VorbisDecoder{})
	r.Register(".oga", VorbisDecoder{})
	return r
}

// Register binds ext (with or without the leading dot) to d.
func (r *Registry) Register(ext string, d Decoder) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.decoders[normalizeExt(ext)] = d
}

// Lookup returns the decoder registered for ext.
func (r *Registry) Lookup(ext string) (Decoder, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.decoders[normalizeExt(ext)]
	return d, ok
}

// Extensions lists the registered extensions in sorted order.
func (r *Registry) Extensions() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	exts := make([]string, 0, len(r.decoders))
	for ext := range r.decoders {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

// Open decodes the file at path with the decoder for its extension. Closing
// the returned Source closes the file.
func (r *Registry) Open(path string) (Source, error) {
	ext := filepath.Ext(path)
	d, ok := r.Lookup(ext)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open audio file: %w", err)
	}
	src, err := d.Decode(f)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return &fileSource{Source: src, file: f}, nil
}

func normalizeExt(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}

type fileSource struct {
	Source
	file *os.File
}

func (s *fileSource) Close() error {
	return errors.Join(s.Source.Close(), s.file.Close())
}

// Stream reads src in buffers of bufFrames frames and sends a fresh copy of
// each buffer on out. It returns nil at the end of the stream and does not
// close out.
func Stream(ctx context.Context, src Source, bufFrames int, out chan<- []float32) error {
	if bufFrames <= 0 {
		return ErrInvalidBufferSize
	}
	buf := make([]float32, bufFrames*src.Channels())
	for {
		n, err := src.ReadSamples(buf)
		if n > 0 {
			chunk := make([]float32, n)
			copy(chunk, buf[:n])
			select {
			case out <- chunk:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read samples: %w", err)
		}
	}
}
