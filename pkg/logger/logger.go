// Package logger builds the root zerolog logger the worker's components
// derive their scoped loggers from.
package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Config maps the LOG_LEVEL and DEV_MODE settings onto logger behavior
type Config struct {
	Level  string // debug, info, warn or error; anything else falls back to info
	Pretty bool   // human-readable console output instead of JSON lines
}

// New builds the root logger and sets the global level. Components scope it
// further with With().Str("component", ...).
func New(cfg Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339

	var out io.Writer = os.Stdout
	if cfg.Pretty {
		out = zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: "15:04:05",
		}
	}

	return zerolog.New(out).
		With().
		Timestamp().
		Caller().
		Logger()
}
