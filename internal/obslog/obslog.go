// Package obslog initializes the process-wide slog default handler.
// Adapted from the teacher's util.InitSlog: only cmd/ entrypoints call this;
// every library package below it just calls slog.Default()/slog.With().
package obslog

import (
	"log/slog"
	"os"
	"strings"
)

// Init configures slog based on the LOG_LEVEL environment variable.
// Supported levels: debug, info, warn, error. Absent LOG_LEVEL, slog's
// built-in default (info, discarding nothing) is left untouched.
func Init() {
	logLevel, ok := os.LookupEnv("LOG_LEVEL")
	if !ok {
		return
	}

	var level slog.Level
	switch strings.ToLower(logLevel) {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(handler))
}
