// Package logging wraps charmbracelet/log behind a small interface and a
// context carrier, the same shape bnema-uinputd-go's internal/logger uses
// (LogFromCtx) to thread one configured logger through request handlers
// without a global.
package logging

import (
	"context"
	"os"

	charmlog "github.com/charmbracelet/log"
)

// Logger is the subset of *charmlog.Logger this daemon uses. Keeping it as
// an interface lets tests swap in a discard logger without touching every
// call site.
type Logger interface {
	Debug(msg interface{}, kv ...interface{})
	Info(msg interface{}, kv ...interface{})
	Warn(msg interface{}, kv ...interface{})
	Error(msg interface{}, kv ...interface{})
}

var std Logger = charmlog.NewWithOptions(os.Stderr, charmlog.Options{
	ReportTimestamp: true,
	Prefix:          "umlautd",
})

// Default returns the process-wide logger. Configure adjusts its level;
// until Configure is called it defaults to INFO.
func Default() Logger {
	return std
}

// Configure sets the process-wide logger's level from a settings.log_level
// string (spec §6: DEBUG, INFO, WARN, ERROR; unrecognized values fall back
// to INFO).
func Configure(level string) {
	l, ok := std.(*charmlog.Logger)
	if !ok {
		return
	}
	l.SetLevel(parseLevel(level))
}

func parseLevel(level string) charmlog.Level {
	switch level {
	case "DEBUG", "debug":
		return charmlog.DebugLevel
	case "WARN", "warn", "WARNING", "warning":
		return charmlog.WarnLevel
	case "ERROR", "error":
		return charmlog.ErrorLevel
	default:
		return charmlog.InfoLevel
	}
}

// With returns a child logger carrying kv as structured fields on every
// subsequent line, the same shape as bnema-uinputd-go's per-request
// logger. Callers that only have the Logger interface (e.g. tests using a
// fake) get the unscoped default back.
func With(kv ...interface{}) Logger {
	if l, ok := std.(*charmlog.Logger); ok {
		return l.With(kv...)
	}
	return std
}

type ctxKey struct{}

// WithContext attaches log to ctx, returning a child context.
func WithContext(ctx context.Context, log Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, log)
}

// FromContext returns the logger attached to ctx, or the process default if
// none was attached.
func FromContext(ctx context.Context) Logger {
	if l, ok := ctx.Value(ctxKey{}).(Logger); ok {
		return l
	}
	return std
}
