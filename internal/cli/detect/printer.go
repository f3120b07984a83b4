// internal/cli/detect/printer.go
package detect

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/ColonelBlimp/beatdetect/internal/analyzer"
)

// ErrUnknownOutputFormat indicates an output format other than text or json
var ErrUnknownOutputFormat = errors.New("unknown output format")

// PrinterOptions selects what the printer writes.
type PrinterOptions struct {
	Format   string // text or json
	All      bool   // print every frame, not only beats
	Spectrum bool   // include spectrum averages (json only)
}

// Printer writes analysis events, one per line.
type Printer struct {
	w    io.Writer
	opts PrinterOptions
	enc  *json.Encoder
	err  error
}

// NewPrinter creates a printer writing to w.
func NewPrinter(w io.Writer, opts PrinterOptions) (*Printer, error) {
	p := &Printer{w: w, opts: opts}
	switch opts.Format {
	case "", "text":
	case "json":
		p.enc = json.NewEncoder(w)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownOutputFormat, opts.Format)
	}
	return p, nil
}

type jsonEvent struct {
	Time          float64   `json:"time"`
	Frame         int64     `json:"frame"`
	Mode          string    `json:"mode"`
	Onset         bool      `json:"onset"`
	Kick          bool      `json:"kick"`
	Snare         bool      `json:"snare"`
	Hat           bool      `json:"hat"`
	Bands         []int     `json:"bands,omitempty"`
	Level         float64   `json:"level"`
	PeakFrequency float64   `json:"peak_hz"`
	VU            float64   `json:"vu"`
	Averages      []float64 `json:"averages,omitempty"`
}

// Print writes e unless it carries no onset and All is off. The first write
// error is kept and later events are dropped.
func (p *Printer) Print(e analyzer.Event) {
	if p.err != nil || (!p.opts.All && !e.Beat()) {
		return
	}
	if p.enc != nil {
		je := jsonEvent{
			Time:          e.Time.Seconds(),
			Frame:         e.Frame,
			Mode:          e.Mode.String(),
			Onset:         e.Onset,
			Kick:          e.Kick,
			Snare:         e.Snare,
			Hat:           e.Hat,
			Bands:         e.Bands,
			Level:         e.Level,
			PeakFrequency: e.PeakFrequency,
			VU:            e.VU,
		}
		if p.opts.Spectrum {
			je.Averages = e.Averages
		}
		p.err = p.enc.Encode(je)
		return
	}
	_, p.err = fmt.Fprintln(p.w, formatText(e))
}

// Err returns the first write error
func (p *Printer) Err() error { return p.err }

func formatText(e analyzer.Event) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] #%-6d", formatClock(e.Time), e.Frame)

	var flags []string
	if e.Onset {
		flags = append(flags, "BEAT")
	}
	if e.Kick {
		flags = append(flags, "KICK")
	}
	if e.Snare {
		flags = append(flags, "SNARE")
	}
	if e.Hat {
		flags = append(flags, "HAT")
	}
	if len(flags) == 0 {
		flags = append(flags, "-")
	}
	fmt.Fprintf(&b, " %-15s level=%7.2f peak=%6.0fHz vu=%.2f",
		strings.Join(flags, " "), e.Level, e.PeakFrequency, e.VU)
	if len(e.Bands) > 0 {
		fmt.Fprintf(&b, " bands=%v", e.Bands)
	}
	return b.String()
}

// formatClock renders d as mm:ss.mmm
func formatClock(d time.Duration) string {
	ms := d.Milliseconds()
	return fmt.Sprintf("%02d:%02d.%03d", ms/60000, (ms/1000)%60, ms%1000)
}
