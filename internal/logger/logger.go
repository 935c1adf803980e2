// Package logger wraps log/slog with the structured-logging
// conventions this codebase uses everywhere: a small set of well-known
// field keys (see fields.go), so call sites do not invent ad hoc keys,
// and a request-scoped context object (see context.go) for carrying
// replica identity through a context.Context.
package logger

import (
	"io"
	"log/slog"
	"os"
)

// Config controls how the package-level logger is constructed.
type Config struct {
	Level  string // debug, info, warn, error
	Format string // text, json
}

var base = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

// Init (re)configures the package-level logger. Safe to call once at
// process start; not safe to race with concurrent logging calls.
func Init(cfg Config) {
	base = New(os.Stdout, cfg)
}

// New builds a standalone *slog.Logger for cfg writing to w, without
// touching the package-level default — used by tests that want to
// capture output.
func New(w io.Writer, cfg Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func Debug(msg string, args ...any) { base.Debug(msg, args...) }
func Info(msg string, args ...any)  { base.Info(msg, args...) }
func Warn(msg string, args ...any)  { base.Warn(msg, args...) }
func Error(msg string, args ...any) { base.Error(msg, args...) }

// With returns a logger carrying the given key-value pairs on every
// subsequent call, so identity fields can be attached once rather than
// repeated at each log call site.
func With(args ...any) *slog.Logger {
	return base.With(args...)
}
