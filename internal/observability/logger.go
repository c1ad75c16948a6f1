package observability

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/microloan/backend/internal/version"
)

const serviceName = "microloan-backend"

// NewLogger returns the process logger for one binary ("api" or "worker").
// Production emits JSON for log shipping; everything else emits text.
func NewLogger(env, level, component string) *slog.Logger {
	return newLogger(os.Stdout, env, level, component)
}

func newLogger(w io.Writer, env, level, component string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}
	var h slog.Handler
	if env == "prod" || env == "production" {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}
	return slog.New(h).With(
		"service", serviceName,
		"component", component,
		"version", version.Version,
	)
}

// ParseLevel maps LOG_LEVEL values onto slog levels; unknown values mean info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
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
