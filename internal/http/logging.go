package http

import (
	"context"
	"log/slog"

	"github.com/example/clientdb/internal/logging"
)

func defaultLogger(logger *slog.Logger) *slog.Logger {
	if logger != nil {
		return logger
	}
	return slog.Default()
}

func handlerLogger(ctx context.Context, fallback *slog.Logger, operation string, attrs ...any) *slog.Logger {
	pairs := []any{"handler", "DatabaseHandler"}
	if operation != "" {
		pairs = append(pairs, "operation", operation)
	}
	if name, ok := DatabaseNameFromContext(ctx); ok {
		pairs = append(pairs, "name", name)
	}
	pairs = append(pairs, attrs...)
	return logging.FromContextOr(ctx, fallback).With(pairs...)
}
