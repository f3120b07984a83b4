// cmd/root.go
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ColonelBlimp/beatdetect/internal/cli/detect"
	"github.com/ColonelBlimp/beatdetect/internal/config"
	"github.com/ColonelBlimp/beatdetect/internal/logging"
)

var rootCmd = &cobra.Command{
	Use:   "beatdetect",
	Short: "Real-time beat detector for audio input",
	Long: `A real-time beat detector. It tracks either the overall energy of the
signal (wideband) or the energy of log-spaced frequency bands (perband) and
reports onsets, plus kick, snare and hi-hat hits in perband mode.

Without a subcommand it listens to the default capture device.`,
	SilenceUsage: true,
	RunE:         runListen,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags (override config file)
	rootCmd.PersistentFlags().IntP("device", "d", -1, "audio device index (-1 for default)")
	rootCmd.PersistentFlags().StringP("mode", "m", "wideband", "detection mode: wideband or perband")
	rootCmd.PersistentFlags().StringP("window", "W", "none", "window applied before the FFT: none or hamming")
	rootCmd.PersistentFlags().IntP("time-size", "t", 1024, "analysis frame length (power of 2)")
	rootCmd.PersistentFlags().BoolP("debug", "D", false, "enable debug output")
	rootCmd.PersistentFlags().String("log-format", "text", "log format: text or json")

	// Event output
	rootCmd.PersistentFlags().StringP("output", "o", "text", "event output format: text or json")
	rootCmd.PersistentFlags().BoolP("all", "a", false, "print every frame, not only beats")
	rootCmd.PersistentFlags().Bool("spectrum", false, "include spectrum averages in json output")

	rootCmd.Flags().StringP("record", "r", "", "also record the capture to this WAV file")

	bindFlags()
}

// bindFlags binds the config-backed flags to viper keys
func bindFlags() {
	flags := rootCmd.PersistentFlags()
	_ = viper.BindPFlag("device_index", flags.Lookup("device"))
	_ = viper.BindPFlag("detect_mode", flags.Lookup("mode"))
	_ = viper.BindPFlag("window", flags.Lookup("window"))
	_ = viper.BindPFlag("time_size", flags.Lookup("time-size"))
	_ = viper.BindPFlag("debug", flags.Lookup("debug"))
	_ = viper.BindPFlag("log_format", flags.Lookup("log-format"))
}

func initConfig() {
	bindFlags()
	if err := config.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}
	err := logging.Setup(logging.Options{
		Level:  viper.GetString("log_level"),
		Format: viper.GetString("log_format"),
		Debug:  viper.GetBool("debug"),
	}, os.Stderr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}
}

// loadSettings returns the validated settings
func loadSettings() (*config.Settings, error) {
	s, err := config.Get()
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return s, nil
}

// newPrinter builds the event printer from the output flags
func newPrinter(cmd *cobra.Command) (*detect.Printer, error) {
	flags := cmd.Flags()
	format, _ := flags.GetString("output")
	all, _ := flags.GetBool("all")
	spectrum, _ := flags.GetBool("spectrum")
	return detect.NewPrinter(cmd.OutOrStdout(), detect.PrinterOptions{
		Format:   format,
		All:      all,
		Spectrum: spectrum,
	})
}
