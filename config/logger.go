package config

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// GetLogLevel maps CYBERIA_LOG_LEVEL to a slog level, defaulting to info.
func GetLogLevel() slog.Level {
	switch strings.ToLower(strings.TrimSpace(os.Getenv("CYBERIA_LOG_LEVEL"))) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger returns a text logger writing to w (stderr when nil).
func NewLogger(w io.Writer) *slog.Logger {
	if w == nil {
		w = os.Stderr
	}
	handler := slog.NewTextHandler(w, &slog.HandlerOptions{Level: GetLogLevel()})
	return slog.New(handler).With("plugin", "cyberia")
}
