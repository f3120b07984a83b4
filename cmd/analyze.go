// cmd/analyze.go
package cmd

import (
	"context"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/ColonelBlimp/beatdetect/internal/cli/detect"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze FILE",
	Short: "Detect beats in an audio file",
	Long: `Decodes a WAV, MP3 or Ogg Vorbis file and prints its onsets. The file
is analysed at its own sample rate.`,
	Args: cobra.ExactArgs(1),
	RunE: runAnalyze,
}

func init() {
	rootCmd.AddCommand(analyzeCmd)
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	s, err := loadSettings()
	if err != nil {
		return err
	}
	p, err := newPrinter(cmd)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	summary, err := detect.AnalyzeFile(ctx, s, args[0], p)
	if err != nil {
		return err
	}
	logSummary(summary)
	return nil
}
