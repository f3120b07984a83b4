// internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/ColonelBlimp/beatdetect/internal/analyzer"
	"github.com/ColonelBlimp/beatdetect/internal/audio"
	"github.com/ColonelBlimp/beatdetect/internal/beat"
	"github.com/ColonelBlimp/beatdetect/internal/dsp"
)

const (
	AppName       = "beatdetect"
	ConfigType    = "yaml"
	DefaultConfig = `# Beat Detector Configuration

# Audio device settings
device_index: -1        # -1 for default device (see 'beatdetect devices')
sample_rate: 44100      # Audio sample rate in Hz
channels: 2             # Capture channels, stereo is downmixed to mono
buffer_size: 1024       # Frames per capture callback

# Analysis frames
time_size: 1024         # FFT frame length, must be a power of 2
overlap_pct: 0          # Frame overlap percentage (0-99)
window: "none"          # Window applied before the FFT: none, hamming

# Beat detection
detect_mode: "wideband" # wideband (overall energy) or perband (log-spaced bands)
refractory_ms: 10       # Minimum time between two onsets of one band
min_level: 2            # Wideband onsets need at least this scaled RMS energy
min_bandwidth: 60       # Narrowest octave of the per-band averages in Hz
bands_per_octave: 3     # Bands per octave in per-band mode

# Spectrum output
averaging: "log"        # none, linear or log
linear_averages: 32     # Number of averages when averaging is linear
meter_rate: 25          # VU meter updates per second

# Output
log_level: "info"       # trace, debug, info, warn, error
log_format: "text"      # text or json
debug: false            # Enable debug output (forces log_level debug)
`
)

// Settings holds all application configuration
type Settings struct {
	// Audio device settings
	DeviceIndex int     `mapstructure:"device_index"`
	SampleRate  float64 `mapstructure:"sample_rate"`
	Channels    int     `mapstructure:"channels"`
	BufferSize  int     `mapstructure:"buffer_size"`

	// Analysis frames
	TimeSize   int    `mapstructure:"time_size"`
	OverlapPct int    `mapstructure:"overlap_pct"`
	Window     string `mapstructure:"window"`

	// Beat detection
	DetectMode     string  `mapstructure:"detect_mode"`
	RefractoryMS   int     `mapstructure:"refractory_ms"`
	MinLevel       float64 `mapstructure:"min_level"`
	MinBandwidth   float64 `mapstructure:"min_bandwidth"`
	BandsPerOctave int     `mapstructure:"bands_per_octave"`

	// Spectrum output
	Averaging      string  `mapstructure:"averaging"`
	LinearAverages int     `mapstructure:"linear_averages"`
	MeterRate      float64 `mapstructure:"meter_rate"`

	// Output
	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`
	Debug     bool   `mapstructure:"debug"`
}

// setDefaults mirrors DefaultConfig so a partial file still yields a full Settings
func setDefaults() {
	viper.SetDefault("device_index", -1)
	viper.SetDefault("sample_rate", 44100)
	viper.SetDefault("channels", 2)
	viper.SetDefault("buffer_size", 1024)
	viper.SetDefault("time_size", 1024)
	viper.SetDefault("overlap_pct", 0)
	viper.SetDefault("window", "none")
	viper.SetDefault("detect_mode", "wideband")
	viper.SetDefault("refractory_ms", 10)
	viper.SetDefault("min_level", 2)
	viper.SetDefault("min_bandwidth", 60)
	viper.SetDefault("bands_per_octave", 3)
	viper.SetDefault("averaging", "log")
	viper.SetDefault("linear_averages", 32)
	viper.SetDefault("meter_rate", 25)
	viper.SetDefault("log_level", "info")
	viper.SetDefault("log_format", "text")
	viper.SetDefault("debug", false)
}

// Init initializes Viper with defaults and config file.
// Config file search order: current directory, then ~/.config/beatdetect/
func Init() error {
	setDefaults()

	// Support both config.yaml and .config.yaml
	viper.SetConfigType(ConfigType)

	// Priority order: current directory first, then XDG config
	viper.AddConfigPath(".")

	configDir, err := os.UserConfigDir()
	if err != nil {
		configDir = filepath.Join(os.Getenv("HOME"), ".config")
	}
	viper.AddConfigPath(filepath.Join(configDir, AppName))

	// Try .config.yaml first (hidden file), then config.yaml
	viper.SetConfigName(".config")
	if err = viper.ReadInConfig(); err != nil {
		viper.SetConfigName("config")
		err = viper.ReadInConfig()
	}

	// Read config file - if not found, create default in XDG config dir
	if err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return fmt.Errorf("read config: %w", err)
		}
		xdgConfigPath := filepath.Join(configDir, AppName)
		if err = ensureConfigExists(xdgConfigPath); err != nil {
			return err
		}
		if err = viper.ReadInConfig(); err != nil {
			return fmt.Errorf("read config: %w", err)
		}
		logrus.WithField("path", filepath.Join(xdgConfigPath, "config.yaml")).Info("Created default config")
	}

	return nil
}

func ensureConfigExists(configPath string) error {
	configFile := filepath.Join(configPath, "config.yaml")

	if _, err := os.Stat(configFile); os.IsNotExist(err) {
		if err = os.MkdirAll(configPath, 0755); err != nil {
			return fmt.Errorf("create config dir: %w", err)
		}
		if err = os.WriteFile(configFile, []byte(DefaultConfig), 0644); err != nil {
			return fmt.Errorf("write default config: %w", err)
		}
	}
	return nil
}

// Get returns the current settings
func Get() (*Settings, error) {
	var s Settings
	if err := viper.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &s, nil
}

// Validate checks that all settings are within acceptable ranges
func (s *Settings) Validate() error {
	var errs []error

	// Audio device settings
	if s.SampleRate < 8000 || s.SampleRate > 192000 {
		errs = append(errs, fmt.Errorf("sample_rate must be between 8000 and 192000 Hz, got %v", s.SampleRate))
	}
	if s.Channels < 1 || s.Channels > 2 {
		errs = append(errs, fmt.Errorf("channels must be 1 or 2, got %d", s.Channels))
	}
	if s.BufferSize < 64 || s.BufferSize > 8192 {
		errs = append(errs, fmt.Errorf("buffer_size must be between 64 and 8192, got %d", s.BufferSize))
	}

	// Analysis frames
	if s.TimeSize < 64 || s.TimeSize > 16384 {
		errs = append(errs, fmt.Errorf("time_size must be between 64 and 16384, got %d", s.TimeSize))
	}
	if s.TimeSize&(s.TimeSize-1) != 0 {
		errs = append(errs, fmt.Errorf("time_size must be a power of 2, got %d", s.TimeSize))
	}
	if s.OverlapPct < 0 || s.OverlapPct > 99 {
		errs = append(errs, fmt.Errorf("overlap_pct must be between 0 and 99, got %d", s.OverlapPct))
	}
	if _, err := dsp.ParseWindow(s.Window); err != nil {
		errs = append(errs, fmt.Errorf("window: %w", err))
	}

	// Beat detection
	if _, err := beat.ParseMode(s.DetectMode); err != nil {
		errs = append(errs, fmt.Errorf("detect_mode: %w", err))
	}
	if s.RefractoryMS < 0 || s.RefractoryMS > 1000 {
		errs = append(errs, fmt.Errorf("refractory_ms must be between 0 and 1000, got %d", s.RefractoryMS))
	}
	if s.MinLevel < 0 {
		errs = append(errs, fmt.Errorf("min_level must be non-negative, got %v", s.MinLevel))
	}
	if s.MinBandwidth <= 0 {
		errs = append(errs, fmt.Errorf("min_bandwidth must be positive, got %v", s.MinBandwidth))
	}
	if s.BandsPerOctave < 1 || s.BandsPerOctave > 24 {
		errs = append(errs, fmt.Errorf("bands_per_octave must be between 1 and 24, got %d", s.BandsPerOctave))
	}

	// Spectrum output
	averaging, err := dsp.ParseAveraging(s.Averaging)
	if err != nil {
		errs = append(errs, fmt.Errorf("averaging: %w", err))
	}
	maxAverages := (s.TimeSize/2 + 1) / 2
	if averaging == dsp.AverageLinear && (s.LinearAverages < 1 || s.LinearAverages > maxAverages) {
		errs = append(errs, fmt.Errorf("linear_averages must be between 1 and %d, got %d", maxAverages, s.LinearAverages))
	}
	if s.MeterRate <= 0 || s.MeterRate > s.SampleRate {
		errs = append(errs, fmt.Errorf("meter_rate must be between 0 and sample_rate, got %v", s.MeterRate))
	}

	// Output
	if _, err := logrus.ParseLevel(s.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("log_level: %w", err))
	}
	if s.LogFormat != "text" && s.LogFormat != "json" {
		errs = append(errs, fmt.Errorf("log_format must be text or json, got %q", s.LogFormat))
	}

	// the lowest octave must still hold at least one bin
	if s.MinBandwidth >= s.SampleRate/2 {
		errs = append(errs, fmt.Errorf("min_bandwidth (%v Hz) must be less than Nyquist frequency (%v Hz)", s.MinBandwidth, s.SampleRate/2))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// Refractory returns refractory_ms as a duration
func (s *Settings) Refractory() time.Duration {
	return time.Duration(s.RefractoryMS) * time.Millisecond
}

// BeatConfig translates the settings into a detector configuration.
func (s *Settings) BeatConfig() (beat.Config, error) {
	mode, err := beat.ParseMode(s.DetectMode)
	if err != nil {
		return beat.Config{}, err
	}
	window, err := dsp.ParseWindow(s.Window)
	if err != nil {
		return beat.Config{}, err
	}
	return beat.Config{
		TimeSize:       s.TimeSize,
		SampleRate:     s.SampleRate,
		Mode:           mode,
		Refractory:     s.Refractory(),
		MinBandwidth:   s.MinBandwidth,
		BandsPerOctave: s.BandsPerOctave,
		MinLevel:       s.MinLevel,
		Window:         window,
	}, nil
}

// AnalyzerConfig translates the settings into an analyzer configuration.
func (s *Settings) AnalyzerConfig() (analyzer.Config, error) {
	beatCfg, err := s.BeatConfig()
	if err != nil {
		return analyzer.Config{}, err
	}
	averaging, err := dsp.ParseAveraging(s.Averaging)
	if err != nil {
		return analyzer.Config{}, err
	}
	return analyzer.Config{
		Channels:       s.Channels,
		OverlapPct:     s.OverlapPct,
		MeterRate:      s.MeterRate,
		Averaging:      averaging,
		LinearAverages: s.LinearAverages,
		Beat:           beatCfg,
	}, nil
}

// CaptureConfig translates the device settings into a capture configuration.
func (s *Settings) CaptureConfig() audio.Config {
	return audio.Config{
		DeviceIndex: s.DeviceIndex,
		SampleRate:  uint32(s.SampleRate),
		Channels:    uint32(s.Channels),
		BufferSize:  uint32(s.BufferSize),
	}
}
