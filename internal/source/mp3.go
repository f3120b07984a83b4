// internal/source/mp3.go
package source

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	gomp3 "github.com/hajimehoshi/go-mp3"
)

// go-mp3 always yields 16-bit little-endian stereo
const mp3Channels = 2

type mp3Reader interface {
	Read(p []byte) (int, error)
	SampleRate() int
}

type mp3Source struct {
	dec     mp3Reader
	buf     []byte
	pending []byte // trailing partial sample from the previous read
}

func (s *mp3Source) SampleRate() int { return s.dec.SampleRate() }
func (s *mp3Source) Channels() int   { return mp3Channels }
func (s *mp3Source) Close() error    { return nil }

func (s *mp3Source) ReadSamples(dst []float32) (int, error) {
	if len(dst) == 0 {
		return 0, nil
	}
	need := len(dst) * 2
	if cap(s.buf) < need {
		s.buf = make([]byte, need)
	}
	s.buf = s.buf[:need]

	held := copy(s.buf, s.pending)
	s.pending = s.pending[:0]

	n, err := s.dec.Read(s.buf[held:])
	n += held
	if err != nil && !errors.Is(err, io.EOF) {
		return 0, fmt.Errorf("decode mp3: %w", err)
	}

	samples := n / 2
	for i := 0; i < samples; i++ {
		v := int16(binary.LittleEndian.Uint16(s.buf[2*i:]))
		dst[i] = float32(v) / 32768
	}
	s.pending = append(s.pending, s.buf[2*samples:n]...)

	if samples == 0 && errors.Is(err, io.EOF) {
		return 0, io.EOF
	}
	return samples, nil
}

// MP3Decoder decodes MPEG-1/2 Layer III with hajimehoshi/go-mp3.
type MP3Decoder struct{}

func (MP3Decoder) Decode(r io.ReadSeeker) (Source, error) {
	dec, err := gomp3.NewDecoder(r)
	if err != nil {
		return nil, fmt.Errorf("open mp3: %w", err)
	}
	return &mp3Source{dec: dec, buf: make([]byte, 8192)}, nil
}
