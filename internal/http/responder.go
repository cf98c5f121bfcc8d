package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/example/clientdb/internal/clientdb"
	"github.com/example/clientdb/internal/persistence"
	"github.com/example/clientdb/internal/persistence/sqlite/migration"
)

var (
	errBadRequestBody  = errors.New("invalid request body")
	errMissingName     = errors.New("database name is required")
	errMissingSQL      = errors.New("sql is required")
	errInvalidLimit    = errors.New("limit must be a non-negative integer")
	errUnsupportedCall = errors.New(`method must be "all" or "run"`)
)

type responder struct {
	logger *slog.Logger
}

func newResponder(logger *slog.Logger) responder {
	return responder{logger: defaultLogger(logger)}
}

func (r responder) writeJSON(ctx context.Context, w http.ResponseWriter, status int, payload any) {
	if w == nil {
		return
	}

	if status == http.StatusNoContent || payload == nil {
		w.WriteHeader(status)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		r.loggerFor(ctx).ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

func (r responder) writeError(ctx context.Context, w http.ResponseWriter, status int, err error) {
	message := http.StatusText(status)
	if err != nil {
		if msg := strings.TrimSpace(err.Error()); msg != "" {
			message = msg
		}
		r.loggerFor(ctx).ErrorContext(ctx, "request failed", "status", status, "error", err)
	}

	r.writeJSON(ctx, w, status, errorResponse{Message: message})
}

// handleManagerError maps registry, migration and storage errors to responses.
func (r responder) handleManagerError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		r.writeError(ctx, w, http.StatusInternalServerError, errors.New("unknown error"))
		return
	}

	var cfgErr *clientdb.ConfigError
	switch {
	case errors.As(err, &cfgErr):
		r.writeJSON(ctx, w, http.StatusUnprocessableEntity, errorResponse{
			ErrorCode: "INVALID_CONFIG",
			Message:   "database configuration is invalid",
			Errors:    cfgErr.FieldErrors,
		})
	case errors.Is(err, clientdb.ErrNotFound), errors.Is(err, persistence.ErrNotFound):
		r.writeJSON(ctx, w, http.StatusNotFound, errorResponse{Message: err.Error()})
	case errors.Is(err, persistence.ErrUnsupportedOperation):
		r.writeJSON(ctx, w, http.StatusConflict, errorResponse{
			ErrorCode: "UNSUPPORTED_OPERATION",
			Message:   err.Error(),
		})
	case errors.Is(err, migration.ErrInvalidLog), errors.Is(err, migration.ErrMigrationFailed):
		r.writeJSON(ctx, w, http.StatusInternalServerError, errorResponse{
			ErrorCode: "MIGRATION_FAILED",
			Message:   err.Error(),
		})
	case errors.Is(err, persistence.ErrClosed):
		r.writeJSON(ctx, w, http.StatusServiceUnavailable, errorResponse{
			ErrorCode: "DATABASE_CLOSED",
			Message:   err.Error(),
		})
	default:
		r.writeJSON(ctx, w, http.StatusInternalServerError, errorResponse{Message: "internal server error"})
	}
}

func (r responder) loggerFor(ctx context.Context) *slog.Logger {
	if logger := LoggerFromContext(ctx); logger != nil {
		return logger
	}
	return r.logger
}

type errorResponse struct {
	ErrorCode string            `json:"error_code,omitempty"`
	Message   string            `json:"message"`
	Errors    map[string]string `json:"errors,omitempty"`
}
