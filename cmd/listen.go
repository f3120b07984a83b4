// cmd/listen.go
package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ColonelBlimp/beatdetect/internal/cli/detect"
)

var listenCmd = &cobra.Command{
	Use:   "listen",
	Short: "Detect beats on live audio input",
	Long:  `Captures audio from a device and prints onsets until interrupted.`,
	Args:  cobra.NoArgs,
	RunE:  runListen,
}

func init() {
	listenCmd.Flags().StringP("record", "r", "", "also record the capture to this WAV file")
	rootCmd.AddCommand(listenCmd)
}

func runListen(cmd *cobra.Command, _ []string) error {
	s, err := loadSettings()
	if err != nil {
		return err
	}
	p, err := newPrinter(cmd)
	if err != nil {
		return err
	}
	record, _ := cmd.Flags().GetString("record")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	summary, err := detect.Listen(ctx, s, p, record)
	logSummary(summary)
	return err
}

func logSummary(s detect.Summary) {
	logrus.WithFields(logrus.Fields{
		"frames":   s.Frames,
		"beats":    s.Beats,
		"kicks":    s.Kicks,
		"snares":   s.Snares,
		"hats":     s.Hats,
		"duration": s.Duration,
		"bpm":      s.BPM(),
		"dropped":  s.Dropped,
	}).Info("Detection finished")
}
