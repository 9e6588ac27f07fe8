package logger

import (
	"log/slog"
	"os"
)

// NewTestLogger returns a WARN-level logger on stderr. Set
// JUKEBOX_TEST_LOG_LEVEL (e.g. DEBUG) to see more while a test runs.
func NewTestLogger() *slog.Logger {
	level := slog.LevelWarn
	if v := os.Getenv("JUKEBOX_TEST_LOG_LEVEL"); v != "" {
		level = ParseLevel(v)
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
