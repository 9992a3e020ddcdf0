// Package logging builds the one shared *slog.Logger each binary
// constructs and passes explicitly into every component, following the
// teacher's no-package-level-loggers convention.
package logging

import (
	"log/slog"
	"os"
)

// New builds a text-handler slog.Logger at the given level name
// ("debug", "info", "warn", "error"); an unrecognized name falls back
// to info.
func New(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})
	return slog.New(handler)
}
