// internal/source/vorbis.go
package source

import (
	"errors"
	"fmt"
	"io"

	"github.com/jfreymuth/oggvorbis"
)

type vorbisReader interface {
	SampleRate() int
	Channels() int
	Read(p []float32) (int, error)
}

type vorbisSource struct {
	dec vorbisReader
}

func (s *vorbisSource) SampleRate() int { return s.dec.SampleRate() }
func (s *vorbisSource) Channels() int   { return s.dec.Channels() }
func (s *vorbisSource) Close() error    { return nil }

func (s *vorbisSource) ReadSamples(dst []float32) (int, error) {
	// whole frames only
	dst = dst[:len(dst)-len(dst)%s.dec.Channels()]
	if len(dst) == 0 {
		return 0, nil
	}

	n, err := s.dec.Read(dst)
	if err != nil && !errors.Is(err, io.EOF) {
		return 0, fmt.Errorf("decode vorbis: %w", err)
	}
	if n == 0 && errors.Is(err, io.EOF) {
		return 0, io.EOF
	}
	return n, nil
}

// VorbisDecoder decodes Ogg Vorbis with jfreymuth/oggvorbis.
type VorbisDecoder struct{}

func (VorbisDecoder) Decode(r io.ReadSeeker) (Source, error) {
	dec, err := oggvorbis.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("open vorbis: %w", err)
	}
	return &vorbisSource{dec: dec}, nil
}
