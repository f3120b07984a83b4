package beat

import (
	"errors"
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/ColonelBlimp/beatdetect/internal/dsp"
)

const testTimeSize = 1024

func createTestDetector(t *testing.T, mode Mode) *Detector {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Mode = mode
	d, err := New(cfg)
	if err != nil {
		t.Fatalf("Failed to create detector: %v", err)
	}
	return d
}

// constantFrame returns a frame whose RMS is exactly |amplitude|
func constantFrame(amplitude float32) []float32 {
	frame := make([]float32, testTimeSize)
	for i := range frame {
		frame[i] = amplitude
	}
	return frame
}

func noiseFrame(seed int64, amplitude float32) []float32 {
	rng := rand.New(rand.NewSource(seed))
	frame := make([]float32, testTimeSize)
	for i := range frame {
		frame[i] = amplitude * (2*rng.Float32() - 1)
	}
	return frame
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.TimeSize != 1024 || cfg.SampleRate != 44100 {
		t.Errorf("default frame = %d @ %v, want 1024 @ 44100", cfg.TimeSize, cfg.SampleRate)
	}
	if cfg.Mode != ModeWideband {
		t.Errorf("default mode = %v, want wideband", cfg.Mode)
	}
	if cfg.Refractory != 10*time.Millisecond {
		t.Errorf("default refractory = %v, want 10ms", cfg.Refractory)
	}
	if cfg.HistoryLength() != 43 {
		t.Errorf("HistoryLength() = %d, want 43", cfg.HistoryLength())
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("DefaultConfig().Validate() = %v", err)
	}
}

func TestConfig_Validate(t *testing.T) {
	testCases := []struct {
		name    string
		modify  func(*Config)
		wantErr error
	}{
		{"zero time size", func(c *Config) { c.TimeSize = 0 }, ErrInvalidTimeSize},
		{"non power of two", func(c *Config) { c.TimeSize = 1000 }, ErrInvalidTimeSize},
		{"zero sample rate", func(c *Config) { c.SampleRate = 0 }, ErrInvalidSampleRate},
		{"negative refractory", func(c *Config) { c.Refractory = -time.Millisecond }, ErrInvalidRefractory},
		{"negative min level", func(c *Config) { c.MinLevel = -1 }, ErrInvalidMinLevel},
		{"zero min bandwidth", func(c *Config) { c.MinBandwidth = 0 }, ErrInvalidMinBandwidth},
		{"zero bands per octave", func(c *Config) { c.BandsPerOctave = 0 }, ErrInvalidBandsPerOctave},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.modify(&cfg)
			if err := cfg.Validate(); err != tc.wantErr {
				t.Errorf("Validate() = %v, want %v", err, tc.wantErr)
			}
			if _, err := New(cfg); err != tc.wantErr {
				t.Errorf("New() error = %v, want %v", err, tc.wantErr)
			}
		})
	}
}

func TestConfig_HistoryLengthMinimum(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SampleRate = 8000
	cfg.TimeSize = 16384
	if cfg.HistoryLength() != 1 {
		t.Errorf("HistoryLength() = %d, want 1", cfg.HistoryLength())
	}
}

func TestParseMode(t *testing.T) {
	testCases := []struct {
		name string
		want Mode
	}{
		{"wideband", ModeWideband},
		{"sound", ModeWideband},
		{"perband", ModePerBand},
		{" Frequency ", ModePerBand},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseMode(tc.name)
			if err != nil {
				t.Fatalf("ParseMode(%q) error = %v", tc.name, err)
			}
			if got != tc.want {
				t.Errorf("ParseMode(%q) = %v, want %v", tc.name, got, tc.want)
			}
		})
	}

	if _, err := ParseMode("spectral"); !errors.Is(err, ErrUnknownMode) {
		t.Errorf("expected ErrUnknownMode, got: %v", err)
	}
}

func TestNewDefault(t *testing.T) {
	d := NewDefault()
	if d.Mode() != ModeWideband {
		t.Errorf("Mode() = %v, want wideband", d.Mode())
	}
	if d.BandCount() != 0 {
		t.Errorf("BandCount() = %d, want 0 in wideband", d.BandCount())
	}
}

func TestNew_ClampsInvalidMode(t *testing.T) {
	for _, m := range []Mode{-1, 2, 42} {
		d := createTestDetector(t, m)
		if d.Mode() != ModeWideband {
			t.Errorf("New(mode %d).Mode() = %v, want wideband", int(m), d.Mode())
		}
	}
}

func TestSetMode_ClampsInvalidMode(t *testing.T) {
	d := createTestDetector(t, ModePerBand)

	if err := d.SetMode(Mode(7)); err != nil {
		t.Fatalf("SetMode error = %v", err)
	}
	if d.Mode() != ModeWideband {
		t.Errorf("Mode() = %v, want wideband", d.Mode())
	}
}

func TestWideband_SilenceNeverFires(t *testing.T) {
	d := createTestDetector(t, ModeWideband)
	silence := make([]float32, testTimeSize)

	for i := 0; i < 200; i++ {
		if err := d.Detect(silence); err != nil {
			t.Fatalf("Detect() error = %v", err)
		}
		if d.IsOnset() {
			t.Fatalf("onset reported on silent frame %d", i)
		}
	}
}

func TestWideband_FirstLoudFrameFires(t *testing.T) {
	d := createTestDetector(t, ModeWideband)

	if err := d.Detect(constantFrame(0.5)); err != nil {
		t.Fatalf("Detect() error = %v", err)
	}
	if !d.IsOnset() {
		t.Error("expected onset on the first loud frame")
	}
	if math.Abs(d.Level()-50) > 1e-4 {
		t.Errorf("Level() = %v, want 50", d.Level())
	}
}

func TestWideband_LevelGate(t *testing.T) {
	d := createTestDetector(t, ModeWideband)

	// RMS 0.015 scales to 1.5, below the default gate of 2
	if err := d.Detect(constantFrame(0.015)); err != nil {
		t.Fatalf("Detect() error = %v", err)
	}
	if d.IsOnset() {
		t.Error("onset fired below the level gate")
	}
}

func TestWideband_ImpulsesWithinRefractory(t *testing.T) {
	d := createTestDetector(t, ModeWideband)
	impulse := constantFrame(1)

	fired := 0
	for _, at := range []time.Duration{0, 5 * time.Millisecond} {
		if err := d.DetectAt(impulse, at); err != nil {
			t.Fatalf("DetectAt() error = %v", err)
		}
		if d.IsOnset() {
			fired++
		}
	}
	if fired > 1 {
		t.Errorf("two impulses 5ms apart fired %d times, want at most 1", fired)
	}
}

func TestWideband_RefractoryPeriod(t *testing.T) {
	testCases := []struct {
		name      string
		spacing   time.Duration
		wantFired bool
	}{
		{"inside", 5 * time.Millisecond, false},
		{"boundary", 10 * time.Millisecond, false},
		{"after", 15 * time.Millisecond, true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			d := createTestDetector(t, ModeWideband)

			if err := d.DetectAt(constantFrame(0.05), 0); err != nil {
				t.Fatalf("DetectAt() error = %v", err)
			}
			if !d.IsOnset() {
				t.Fatal("first frame should fire")
			}

			// a much louder frame deserves an onset on energy alone
			if err := d.DetectAt(constantFrame(1), tc.spacing); err != nil {
				t.Fatalf("DetectAt() error = %v", err)
			}
			if d.IsOnset() != tc.wantFired {
				t.Errorf("IsOnset() = %v, want %v", d.IsOnset(), tc.wantFired)
			}
		})
	}
}

func TestDetect_AdvancesFrameClock(t *testing.T) {
	// one frame is ~23.2ms: enough for 10ms, not enough for 30ms
	testCases := []struct {
		name       string
		refractory time.Duration
		wantFired  bool
	}{
		{"short refractory", 10 * time.Millisecond, true},
		{"long refractory", 30 * time.Millisecond, false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Refractory = tc.refractory
			d, err := New(cfg)
			if err != nil {
				t.Fatalf("New() error = %v", err)
			}

			_ = d.Detect(constantFrame(0.05))
			_ = d.Detect(constantFrame(1))
			if d.IsOnset() != tc.wantFired {
				t.Errorf("IsOnset() = %v, want %v", d.IsOnset(), tc.wantFired)
			}
		})
	}
}

func TestWideband_SustainedToneSettles(t *testing.T) {
	d := createTestDetector(t, ModeWideband)
	tone := constantFrame(0.3)

	for i := 0; i < 100; i++ {
		_ = d.Detect(tone)
	}
	if d.IsOnset() {
		t.Error("steady level still reports onsets after the history filled")
	}
}

func TestWideband_EmptyFrame(t *testing.T) {
	d := createTestDetector(t, ModeWideband)
	_ = d.Detect(constantFrame(0.5))
	level := d.Level()

	if err := d.Detect(nil); err != ErrEmptyFrame {
		t.Fatalf("expected ErrEmptyFrame, got: %v", err)
	}
	if d.Level() != level || !d.IsOnset() {
		t.Error("state changed after rejected frame")
	}
}

func TestWideband_AcceptsAnyFrameLength(t *testing.T) {
	d := createTestDetector(t, ModeWideband)
	if err := d.Detect(make([]float32, 100)); err != nil {
		t.Errorf("Detect(100 samples) error = %v", err)
	}
}

func TestWideband_BandQueriesAreFalse(t *testing.T) {
	d := createTestDetector(t, ModeWideband)
	_ = d.Detect(constantFrame(0.8))

	if d.IsOnsetBand(0) || d.IsKick() || d.IsSnare() || d.IsHat() {
		t.Error("band queries must be false in wideband mode")
	}
	if d.IsRange(0, 10, 0) {
		t.Error("IsRange must be false in wideband mode even with threshold 0")
	}
	if d.BandLevel(0) != 0 || d.BandCenter(0) != 0 {
		t.Error("band levels must be 0 in wideband mode")
	}
}

func TestPerBand_Layout(t *testing.T) {
	d := createTestDetector(t, ModePerBand)

	if d.BandCount() != 27 {
		t.Errorf("BandCount() = %d, want 27", d.BandCount())
	}
	for i := 1; i < d.BandCount(); i++ {
		if d.BandCenter(i) <= d.BandCenter(i-1) {
			t.Fatalf("band centers not increasing at %d", i)
		}
	}
}

func TestPerBand_IsOnsetIsFalse(t *testing.T) {
	d := createTestDetector(t, ModePerBand)
	_ = d.Detect(noiseFrame(1, 0.8))

	if d.IsOnset() {
		t.Error("IsOnset() must be false in per-band mode")
	}
}

func TestPerBand_NoiseBurstAfterSilence(t *testing.T) {
	d := createTestDetector(t, ModePerBand)
	silence := make([]float32, testTimeSize)

	for i := 0; i < 10; i++ {
		if err := d.Detect(silence); err != nil {
			t.Fatalf("Detect() error = %v", err)
		}
		for b := 0; b < d.BandCount(); b++ {
			if d.IsOnsetBand(b) {
				t.Fatalf("band %d fired on silence", b)
			}
		}
	}

	if err := d.Detect(noiseFrame(7, 0.8)); err != nil {
		t.Fatalf("Detect() error = %v", err)
	}

	if !d.IsKick() {
		t.Error("expected kick on broadband burst")
	}
	if !d.IsSnare() {
		t.Error("expected snare on broadband burst")
	}
	if !d.IsHat() {
		t.Error("expected hat on broadband burst")
	}
	if d.Level() <= 0 {
		t.Errorf("Level() = %v, want > 0", d.Level())
	}

	if err := d.Detect(silence); err != nil {
		t.Fatalf("Detect() error = %v", err)
	}
	if d.IsRange(0, d.BandCount()-1, 1) {
		t.Error("silence after a burst must not fire")
	}
}

func TestPerBand_FrameLength(t *testing.T) {
	d := createTestDetector(t, ModePerBand)
	_ = d.Detect(noiseFrame(3, 0.8))
	before := d.BandLevel(5)

	if err := d.Detect(make([]float32, 512)); err != dsp.ErrFrameLength {
		t.Fatalf("expected dsp.ErrFrameLength, got: %v", err)
	}
	if d.BandLevel(5) != before {
		t.Error("band level changed after rejected frame")
	}
}

func TestPerBand_DoesNotMutateFrame(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Mode = ModePerBand
	cfg.Window = dsp.WindowHamming
	d, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	frame := constantFrame(0.5)
	if err := d.Detect(frame); err != nil {
		t.Fatalf("Detect() error = %v", err)
	}
	for i, s := range frame {
		if s != 0.5 {
			t.Fatalf("frame[%d] = %v, caller's frame was windowed", i, s)
		}
	}
}

func TestPerBand_CompositeRanges(t *testing.T) {
	d := createTestDetector(t, ModePerBand)
	bands := d.state.(*perBandState).bands

	set := func(indices ...int) {
		for _, b := range bands {
			b.onset = false
		}
		for _, i := range indices {
			bands[i].onset = true
		}
	}

	testCases := []struct {
		name      string
		onsets    []int
		wantKick  bool
		wantSnare bool
		wantHat   bool
	}{
		{"none", nil, false, false, false},
		{"band 0 is not kick", []int{0, 7}, false, false, false},
		{"one low band", []int{3}, false, false, false},
		{"two low bands", []int{1, 6}, true, false, false},
		// snare spans 8..26 and needs (26-8)/3+1 = 7 bands
		{"six mid bands", []int{8, 9, 10, 11, 12, 13}, false, false, false},
		{"seven mid bands", []int{8, 9, 10, 11, 12, 13, 14}, false, true, false},
		{"top band", []int{26}, false, false, true},
		{"hat lower edge", []int{20}, false, false, true},
		{"below hat range", []int{19}, false, false, false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			set(tc.onsets...)
			if d.IsKick() != tc.wantKick {
				t.Errorf("IsKick() = %v, want %v", d.IsKick(), tc.wantKick)
			}
			if d.IsSnare() != tc.wantSnare {
				t.Errorf("IsSnare() = %v, want %v", d.IsSnare(), tc.wantSnare)
			}
			if d.IsHat() != tc.wantHat {
				t.Errorf("IsHat() = %v, want %v", d.IsHat(), tc.wantHat)
			}
		})
	}
}

func TestIsRange_OutOfBoundsBands(t *testing.T) {
	d := createTestDetector(t, ModePerBand)
	bands := d.state.(*perBandState).bands
	bands[0].onset = true

	if !d.IsRange(-10, 0, 1) {
		t.Error("IsRange should count band 0")
	}
	if d.IsRange(50, 100, 1) {
		t.Error("IsRange should ignore bands that do not exist")
	}
	if d.IsOnsetBand(-1) || d.IsOnsetBand(27) {
		t.Error("IsOnsetBand must be false outside the band range")
	}
}

func TestSetMode_RoundTripResetsHistory(t *testing.T) {
	d := createTestDetector(t, ModeWideband)

	for i := 0; i < 20; i++ {
		_ = d.Detect(noiseFrame(int64(i), float32(i%5)*0.2))
	}

	if err := d.SetMode(ModePerBand); err != nil {
		t.Fatalf("SetMode(perband) error = %v", err)
	}
	for i := 0; i < 5; i++ {
		_ = d.Detect(noiseFrame(int64(100+i), 0.5))
	}
	if err := d.SetMode(ModeWideband); err != nil {
		t.Fatalf("SetMode(wideband) error = %v", err)
	}

	diff, diff2 := d.Trace()
	if len(diff) != 0 || len(diff2) != 0 {
		t.Errorf("traces not cleared by mode switch: %d/%d entries", len(diff), len(diff2))
	}

	fresh := createTestDetector(t, ModeWideband)
	for i, frame := range [][]float32{constantFrame(0.1), constantFrame(0.1), noiseFrame(9, 0.9)} {
		_ = d.Detect(frame)
		_ = fresh.Detect(frame)
		if d.IsOnset() != fresh.IsOnset() {
			t.Fatalf("frame %d: IsOnset() = %v, fresh detector = %v", i, d.IsOnset(), fresh.IsOnset())
		}
		if d.Level() != fresh.Level() {
			t.Fatalf("frame %d: Level() = %v, fresh detector = %v", i, d.Level(), fresh.Level())
		}
	}
}

func TestSetMode_SameModeKeepsState(t *testing.T) {
	d := createTestDetector(t, ModeWideband)
	_ = d.Detect(constantFrame(0.5))

	if err := d.SetMode(ModeWideband); err != nil {
		t.Fatalf("SetMode error = %v", err)
	}
	if !d.IsOnset() {
		t.Error("setting the active mode again should not reset state")
	}
}

func TestReset(t *testing.T) {
	d := createTestDetector(t, ModeWideband)
	_ = d.Detect(constantFrame(0.5))

	if err := d.Reset(); err != nil {
		t.Fatalf("Reset() error = %v", err)
	}
	if d.IsOnset() || d.Level() != 0 {
		t.Error("Reset() kept onset state")
	}
}

func TestTrace_RecordsWidebandFrames(t *testing.T) {
	d := createTestDetector(t, ModeWideband)

	_ = d.Detect(constantFrame(0.5))
	diff, diff2 := d.Trace()
	if len(diff) != 1 || len(diff2) != 1 {
		t.Fatalf("trace lengths = %d/%d, want 1/1", len(diff), len(diff2))
	}
	if math.Abs(diff[0]-50) > 1e-4 || math.Abs(diff2[0]-50) > 1e-4 {
		t.Errorf("first trace entries = %v/%v, want 50/50", diff[0], diff2[0])
	}

	for i := 0; i < TraceLength; i++ {
		_ = d.Detect(constantFrame(0.1))
	}
	diff, _ = d.Trace()
	if len(diff) != 1 {
		t.Errorf("trace length after overflow = %d, want 1", len(diff))
	}
}
