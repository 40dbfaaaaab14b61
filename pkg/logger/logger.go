// Package logger builds the single zerolog.Logger threaded through every
// component constructor from the composition root.
package logger

import (
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Config controls the root logger's verbosity and output shape.
type Config struct {
	Level  string
	Pretty bool
}

// New builds the root logger. Pretty renders a human console writer for
// local/dev use; otherwise output is newline-delimited JSON on stdout.
func New(cfg Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339

	var output = os.Stdout
	if cfg.Pretty {
		return zerolog.New(zerolog.ConsoleWriter{Out: output, TimeFormat: time.RFC3339}).
			With().Timestamp().Caller().Logger()
	}
	return zerolog.New(output).With().Timestamp().Logger()
}
