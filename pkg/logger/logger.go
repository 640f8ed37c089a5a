package logger

import (
	"os"
	"time"

	"github.com/rs/zerolog"
)

// New creates a console logger at the given level, falling back to info for
// unknown levels.
func New(level string) zerolog.Logger {
	logLevel, err := zerolog.ParseLevel(level)
	if err != nil || logLevel == zerolog.NoLevel {
		logLevel = zerolog.InfoLevel
	}

	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.DateTime}).
		Level(logLevel).
		With().
		Timestamp().
		Logger()
}
