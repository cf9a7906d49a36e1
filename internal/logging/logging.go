// Package logging configures the process-wide zerolog logger.
package logging

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Options selects level and output format.
type Options struct {
	Level  string // trace, debug, info, warn, error
	Format string // json or console
}

// New builds a zerolog.Logger writing to stderr. Components receive the
// logger by value and attach their own context fields.
func New(opts Options) (zerolog.Logger, error) {
	level, err := zerolog.ParseLevel(opts.Level)
	if err != nil {
		return zerolog.Logger{}, fmt.Errorf("invalid log level %q: %w", opts.Level, err)
	}

	var output io.Writer = os.Stderr
	if opts.Format == "console" {
		output = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	}

	logger := zerolog.New(output).Level(level).With().Timestamp().Logger()
	return logger, nil
}
