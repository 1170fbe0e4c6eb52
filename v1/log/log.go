// Package log is the structured logging surface shared by every pqx
// component. It wraps zerolog the way the rest of the retrieved corpus does:
// one process-wide Logger, environment-driven level/format, and a
// `.With().Str("component", ...)` child logger per subsystem.
package log

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger is the process-wide base logger. Components derive a child via
// Component instead of writing to this directly.
var Logger zerolog.Logger

func init() {
	Init(os.Stdout)
}

// Init (re)configures the global Logger from LOG_LEVEL / LOG_FORMAT.
func Init(w io.Writer) {
	level := zerolog.InfoLevel
	if lv := os.Getenv("LOG_LEVEL"); lv != "" {
		if parsed, err := zerolog.ParseLevel(lv); err == nil {
			level = parsed
		}
	}

	if os.Getenv("LOG_FORMAT") == "json" {
		Logger = zerolog.New(w).With().Timestamp().Logger().Level(level)
		return
	}

	Logger = zerolog.New(zerolog.ConsoleWriter{
		Out:        w,
		TimeFormat: time.RFC3339,
	}).With().Timestamp().Logger().Level(level)
}

// Component returns a logger tagged with "component" so log lines can be
// filtered per subsystem (mq.client, mq.consumer, ec.runner, ...).
func Component(name string) zerolog.Logger {
	return Logger.With().Str("component", name).Logger()
}
