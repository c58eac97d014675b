// Package logger provides a zerolog-backed eventstore.Logger, grounded on
// auth-service/internal/logger: LOG_LEVEL/LOG_FORMAT env selection between
// a console and JSON writer.
package logger

import (
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger adapts zerolog.Logger to the narrow eventstore.Logger seam the
// core depends on.
type Logger struct {
	zl zerolog.Logger
}

// New builds a Logger from LOG_LEVEL (debug|info|warn|error, default info)
// and LOG_FORMAT (json|console, default console).
func New() Logger {
	return NewWithWriter(os.Stdout)
}

// NewWithWriter is New, writing to w — split out for tests that capture
// output.
func NewWithWriter(w *os.File) Logger {
	level, err := zerolog.ParseLevel(os.Getenv("LOG_LEVEL"))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	format := os.Getenv("LOG_FORMAT")
	var zl zerolog.Logger
	if format == "json" {
		zl = zerolog.New(w).With().Timestamp().Logger().Level(level)
	} else {
		zl = zerolog.New(zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}).With().Timestamp().Logger().Level(level)
	}
	return Logger{zl: zl}
}

// Warn logs at warn level with the given flat key/value fields.
func (l Logger) Warn(msg string, fields ...any) { l.event(l.zl.Warn(), fields).Msg(msg) }

// Error logs at error level with the given flat key/value fields.
func (l Logger) Error(msg string, fields ...any) { l.event(l.zl.Error(), fields).Msg(msg) }

func (l Logger) event(e *zerolog.Event, fields []any) *zerolog.Event {
	for i := 0; i+1 < len(fields); i += 2 {
		key, ok := fields[i].(string)
		if !ok {
			continue
		}
		e = e.Interface(key, fields[i+1])
	}
	return e
}
