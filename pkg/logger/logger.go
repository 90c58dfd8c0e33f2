// Package logger configures the process-wide structured logger.
package logger

import (
	"log/slog"
	"os"
)

// Setup configures the global logger for the given service and environment.
// It returns the logger instance and also installs it as slog's default,
// so packages that call slog.Info/slog.Error directly pick it up.
func Setup(service, env string) *slog.Logger {
	var handler slog.Handler

	opts := &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}

	if env == "production" {
		// JSON for machine parsing (log aggregators).
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		// Text for human readability in development.
		opts.Level = slog.LevelDebug
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler).With("service", service)
	slog.SetDefault(logger)

	return logger
}
