// internal/logging/logging.go
package logging

import (
	"fmt"
	"io"

	"github.com/sirupsen/logrus"
)

// Options selects how the standard logrus logger writes.
type Options struct {
	Level  string // trace, debug, info, warn, error
	Format string // text or json
	Debug  bool   // forces debug level when Level is less verbose
}

// Setup configures the standard logger. Logs go to out, which is normally
// stderr so stdout stays free for event output.
func Setup(opts Options, out io.Writer) error {
	return Configure(logrus.StandardLogger(), opts, out)
}

// Configure applies opts to logger.
func Configure(logger *logrus.Logger, opts Options, out io.Writer) error {
	level := logrus.InfoLevel
	if opts.Level != "" {
		parsed, err := logrus.ParseLevel(opts.Level)
		if err != nil {
			return fmt.Errorf("log level: %w", err)
		}
		level = parsed
	}
	if opts.Debug && level < logrus.DebugLevel {
		level = logrus.DebugLevel
	}

	switch opts.Format {
	case "", "text":
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "15:04:05.000",
		})
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{})
	default:
		return fmt.Errorf("unknown log format %q", opts.Format)
	}

	logger.SetLevel(level)
	if out != nil {
		logger.SetOutput(out)
	}
	return nil
}
