package logger

import (
	"log/slog"
	"os"
)

// New returns the process-wide structured logger. LIMSCORE_LOG_LEVEL selects
// the level; output is JSON for log aggregation.
func New() *slog.Logger {
	level := slog.LevelInfo
	switch os.Getenv("LIMSCORE_LOG_LEVEL") {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
}
