// Package logger builds the zerolog logger shared by every stage of a run.
package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// New creates a logger writing to stderr. format "json" emits JSON lines, anything
// else uses the human-readable console writer. verbose forces the debug level.
func New(level, format string, verbose bool) zerolog.Logger {
	return NewWithWriter(os.Stderr, level, format, verbose)
}

// NewWithWriter is New with an explicit destination.
func NewWithWriter(w io.Writer, level, format string, verbose bool) zerolog.Logger {
	logLevel, err := zerolog.ParseLevel(level)
	if err != nil || logLevel == zerolog.NoLevel {
		logLevel = zerolog.InfoLevel
	}
	if verbose {
		logLevel = zerolog.DebugLevel
	}

	output := w
	if format != "json" {
		output = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339, NoColor: true}
	}
	return zerolog.New(output).Level(logLevel).With().Timestamp().Logger()
}
