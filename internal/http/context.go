package http

import (
	"context"
	"log/slog"

	"github.com/example/clientdb/internal/logging"
)

type contextKey string

const databaseNameContextKey contextKey = "database_name"

// ContextWithLogger returns a derived context carrying the request logger.
func ContextWithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return logging.ContextWithLogger(ctx, logger)
}

// LoggerFromContext returns the request logger, if any.
func LoggerFromContext(ctx context.Context) *slog.Logger {
	return logging.FromContext(ctx)
}

// ContextWithDatabaseName injects the database name resolved from the request path.
func ContextWithDatabaseName(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, databaseNameContextKey, name)
}

// DatabaseNameFromContext extracts a database name previously associated with the context.
func DatabaseNameFromContext(ctx context.Context) (string, bool) {
	name, ok := ctx.Value(databaseNameContextKey).(string)
	return name, ok
}
