// Package logger configures the process-wide slog logger.
package logger

import (
	"io"
	"log/slog"
)

// SetupWriter installs the default logger writing to w. The CLI passes
// stderr so stdout stays free for query results.
func SetupWriter(w io.Writer, level string, format string) {
	var handler slog.Handler
	opts := &slog.HandlerOptions{
		Level: ParseLevel(level),
	}
	switch format {
	case "json":
		handler = slog.NewJSONHandler(w, opts)
	default:
		handler = slog.NewTextHandler(w, opts)
	}
	slog.SetDefault(slog.New(handler))
}

func WithComponent(component string) *slog.Logger {
	return slog.Default().With("component", component)
}

// WithShard returns a component logger tagged with a shard name.
func WithShard(component, shard string) *slog.Logger {
	return slog.Default().With("component", component, "shard", shard)
}

func ParseLevel(level string) slog.Level {
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
