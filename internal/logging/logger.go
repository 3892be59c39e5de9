// Package logging provides structured logging configuration using log/slog.
//
// Every file operation gets an op_id (a random UUID) that is attached to all
// of its log entries, so the open, row and close events of one read or write
// can be correlated even when several operations interleave.
package logging

import (
	"context"
	"io"
	"log/slog"
	"strings"

	"github.com/google/uuid"
)

type ctxKey struct{}

// New builds a logger writing to w without touching the global default.
//
// Level values: "debug", "info", "warn", "error" (default: "info")
// Format values: "text", "json" (default: "text")
func New(level, format string, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: parseLevel(level),
	}

	var handler slog.Handler
	if strings.ToLower(format) == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	return slog.New(handler)
}

// parseLevel converts a string log level to slog.Level.
func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
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

// NewContext returns a copy of ctx carrying logger.
func NewContext(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, logger)
}

// FromContext returns the logger stored in ctx, or slog.Default().
func FromContext(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(ctxKey{}).(*slog.Logger); ok && logger != nil {
		return logger
	}
	return slog.Default()
}

// WithFields returns a logger with additional structured fields.
//
// Usage:
//
//	logger := logging.WithFields(ctx, "chunk", n)
//	logger.Debug("chunk emitted", "rows", len(batch))
func WithFields(ctx context.Context, args ...any) *slog.Logger {
	return FromContext(ctx).With(args...)
}

// WithOperation starts a logged operation. The returned logger carries the
// operation name, a fresh op_id and the path; the returned context carries
// the same logger for nested calls. A nil base falls back to FromContext(ctx).
func WithOperation(ctx context.Context, base *slog.Logger, op, path string) (context.Context, *slog.Logger) {
	if base == nil {
		base = FromContext(ctx)
	}
	logger := base.With(
		"op", op,
		"op_id", uuid.NewString(),
		"path", path,
	)
	return NewContext(ctx, logger), logger
}
