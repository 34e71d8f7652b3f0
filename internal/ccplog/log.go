// Package ccplog provides the structured logging capability the control
// plane uses for per-flow and per-message diagnostics. A nil *Logger (or one
// wrapping a nil *slog.Logger) is valid and silently discards everything, so
// callers never need to guard a Logger field before use.
package ccplog

import (
	"log/slog"
)

// Logger wraps a *slog.Logger with a nil-tolerant API. The zero value and a
// Logger constructed with New(nil) both discard all output.
type Logger struct {
	sl *slog.Logger
}

// New wraps sl. Passing nil yields a Logger that discards everything.
func New(sl *slog.Logger) *Logger {
	return &Logger{sl: sl}
}

func (l *Logger) logger() *slog.Logger {
	if l == nil {
		return nil
	}
	return l.sl
}

// Debug logs at debug level. No-op if the Logger or its underlying sink is nil.
func (l *Logger) Debug(msg string, args ...any) {
	if sl := l.logger(); sl != nil {
		sl.Debug(msg, args...)
	}
}

// Info logs at info level. No-op if the Logger or its underlying sink is nil.
func (l *Logger) Info(msg string, args ...any) {
	if sl := l.logger(); sl != nil {
		sl.Info(msg, args...)
	}
}

// Warn logs at warn level. No-op if the Logger or its underlying sink is nil.
func (l *Logger) Warn(msg string, args ...any) {
	if sl := l.logger(); sl != nil {
		sl.Warn(msg, args...)
	}
}

// Error logs at error level. No-op if the Logger or its underlying sink is nil.
func (l *Logger) Error(msg string, args ...any) {
	if sl := l.logger(); sl != nil {
		sl.Error(msg, args...)
	}
}
