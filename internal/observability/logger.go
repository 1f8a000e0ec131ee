// Package observability provides simple logging utilities.
//
// This is a minimal implementation focused on structured logging with slog.
package observability

import (
	"log/slog"
	"os"

	"github.com/mkuiper/donorsync/internal/infrastructure/config"
)

// NewLogger creates a structured logger based on config
func NewLogger(cfg config.LoggingConfig) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
