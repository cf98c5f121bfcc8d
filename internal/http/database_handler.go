package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/example/clientdb/internal/clientdb"
	"github.com/example/clientdb/internal/persistence/sqlite"
	"github.com/example/clientdb/internal/query"
)

type databaseRegistry interface {
	Exposed() []*clientdb.Entry
	Get(name string, opts ...clientdb.LookupOption) (*clientdb.Entry, error)
	DeleteStorage(ctx context.Context, name string) (sqlite.DeleteOutcome, error)
	Reinitialize(ctx context.Context, name string) (*clientdb.Entry, error)
}

// DatabaseHandler serves the inspector endpoints of exposed databases.
type DatabaseHandler struct {
	registry  databaseRegistry
	responder responder
	logger    *slog.Logger
}

func NewDatabaseHandler(registry databaseRegistry, logger *slog.Logger) *DatabaseHandler {
	base := defaultLogger(logger)
	return &DatabaseHandler{registry: registry, responder: newResponder(base), logger: base}
}

func (h *DatabaseHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	if h == nil {
		return slog.Default()
	}
	return handlerLogger(ctx, h.logger, operation, attrs...)
}

func (h *DatabaseHandler) List(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.registry == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	entries := h.registry.Exposed()
	dtos := make([]databaseDTO, 0, len(entries))
	for _, entry := range entries {
		dtos = append(dtos, toDatabaseDTO(entry))
	}

	h.log(r.Context(), "List", "count", len(dtos)).DebugContext(r.Context(), "databases listed")
	h.responder.writeJSON(r.Context(), w, http.StatusOK, databaseListResponse{Databases: dtos})
}

func (h *DatabaseHandler) Query(w http.ResponseWriter, r *http.Request) {
	entry, ok := h.exposedEntry(w, r, "Query")
	if !ok {
		return
	}

	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log(r.Context(), "Query", "error_kind", "bad_request").ErrorContext(r.Context(), "failed to decode query request", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}
	if strings.TrimSpace(req.SQL) == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errMissingSQL)
		return
	}

	logger := h.log(r.Context(), "Query", "method", req.method())
	start := time.Now()

	switch query.Method(req.method()) {
	case query.MethodAll:
		rows, err := entry.Handle().Query(r.Context(), req.SQL, req.Params...)
		if err != nil {
			h.statementFailed(r.Context(), w, logger, err)
			return
		}
		logger.InfoContext(r.Context(), "query executed", "rows", len(rows.Values), "duration", time.Since(start))
		h.responder.writeJSON(r.Context(), w, http.StatusOK, toRowsResponse(rows))
	case query.MethodRun:
		res, err := entry.Handle().Exec(r.Context(), req.SQL, req.Params...)
		if err != nil {
			h.statementFailed(r.Context(), w, logger, err)
			return
		}
		logger.InfoContext(r.Context(), "statement executed", "rows_affected", res.RowsAffected, "duration", time.Since(start))
		h.responder.writeJSON(r.Context(), w, http.StatusOK, res)
	default:
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errUnsupportedCall)
	}
}

func (h *DatabaseHandler) FindMany(w http.ResponseWriter, r *http.Request, table string) {
	entry, ok := h.exposedEntry(w, r, "FindMany")
	if !ok {
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidLimit)
			return
		}
		limit = n
	}

	rows, err := entry.Handle().FindMany(r.Context(), table, limit)
	if err != nil {
		h.log(r.Context(), "FindMany", "table", table).ErrorContext(r.Context(), "find many failed", "error", err, "error_kind", clientdb.ErrorKind(err))
		h.responder.handleManagerError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, toRowsResponse(rows))
}

func (h *DatabaseHandler) DeleteStorage(w http.ResponseWriter, r *http.Request) {
	entry, ok := h.exposedEntry(w, r, "DeleteStorage")
	if !ok {
		return
	}

	logger := h.log(r.Context(), "DeleteStorage")
	outcome, err := h.registry.DeleteStorage(r.Context(), entry.Name())
	if err != nil {
		logger.ErrorContext(r.Context(), "storage deletion failed", "error", err, "error_kind", clientdb.ErrorKind(err))
		h.responder.handleManagerError(r.Context(), w, err)
		return
	}

	logger.InfoContext(r.Context(), "storage deleted", "outcome", outcome.String())
	h.responder.writeJSON(r.Context(), w, http.StatusOK, deleteResponse{Outcome: outcome.String()})
}

func (h *DatabaseHandler) Reinitialize(w http.ResponseWriter, r *http.Request) {
	entry, ok := h.exposedEntry(w, r, "Reinitialize")
	if !ok {
		return
	}

	logger := h.log(r.Context(), "Reinitialize", "previous_id", entry.ID())
	fresh, err := h.registry.Reinitialize(r.Context(), entry.Name())
	if err != nil {
		logger.ErrorContext(r.Context(), "reinitialize failed", "error", err, "error_kind", clientdb.ErrorKind(err))
		h.responder.handleManagerError(r.Context(), w, err)
		return
	}

	logger.With("id", fresh.ID()).InfoContext(r.Context(), "database reinitialized")
	h.responder.writeJSON(r.Context(), w, http.StatusOK, databaseResponse{Database: toDatabaseDTO(fresh)})
}

// exposedEntry resolves the database named in the request context. Databases
// not exposed in dev are reported as missing.
func (h *DatabaseHandler) exposedEntry(w http.ResponseWriter, r *http.Request, operation string) (*clientdb.Entry, bool) {
	if h == nil || h.registry == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return nil, false
	}

	name, ok := DatabaseNameFromContext(r.Context())
	if !ok || strings.TrimSpace(name) == "" {
		h.log(r.Context(), operation, "error_kind", "bad_request").ErrorContext(r.Context(), "missing database name")
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errMissingName)
		return nil, false
	}

	entry, err := h.registry.Get(name)
	if err == nil && !entry.InitOptions().ExposeInDev {
		err = &clientdb.NotFoundError{Name: name}
	}
	if err != nil {
		h.log(r.Context(), operation, "error_kind", clientdb.ErrorKind(err)).WarnContext(r.Context(), "database lookup failed", "error", err)
		h.responder.handleManagerError(r.Context(), w, err)
		return nil, false
	}
	return entry, true
}

// statementFailed reports caller SQL errors as bad requests and everything
// the registry knows about through the usual mapping.
func (h *DatabaseHandler) statementFailed(ctx context.Context, w http.ResponseWriter, logger *slog.Logger, err error) {
	kind := clientdb.ErrorKind(err)
	logger.WarnContext(ctx, "statement failed", "error", err, "error_kind", kind)
	if kind != "unexpected" || errors.Is(err, context.Canceled) {
		h.responder.handleManagerError(ctx, w, err)
		return
	}
	h.responder.writeJSON(ctx, w, http.StatusBadRequest, errorResponse{ErrorCode: "STATEMENT_FAILED", Message: err.Error()})
}

type queryRequest struct {
	SQL    string `json:"sql"`
	Params []any  `json:"params"`
	Method string `json:"method"`
}

func (q queryRequest) method() string {
	if q.Method == "" {
		return string(query.MethodAll)
	}
	return q.Method
}

type rowsResponse struct {
	Columns []string         `json:"columns"`
	Rows    []map[string]any `json:"rows"`
}

func toRowsResponse(rows *query.Rows) rowsResponse {
	resp := rowsResponse{Columns: []string{}, Rows: []map[string]any{}}
	if rows == nil {
		return resp
	}
	if rows.Columns != nil {
		resp.Columns = rows.Columns
	}
	if maps := rows.Maps(); len(maps) > 0 {
		resp.Rows = maps
	}
	return resp
}

type deleteResponse struct {
	Outcome string `json:"outcome"`
}

type databaseDTO struct {
	ID                 string    `json:"id"`
	Name               string    `json:"name"`
	Mode               string    `json:"mode"`
	Location           string    `json:"location,omitempty"`
	CreatedAt          time.Time `json:"created_at"`
	AttemptedMigration bool      `json:"attempted_migration"`
	SkipMigration      bool      `json:"skip_migration"`
	Closed             bool      `json:"closed"`
}

type databaseListResponse struct {
	Databases []databaseDTO `json:"databases"`
}

type databaseResponse struct {
	Database databaseDTO `json:"database"`
}

func toDatabaseDTO(entry *clientdb.Entry) databaseDTO {
	attempted, skip := entry.MigrationState().Snapshot()
	dto := databaseDTO{
		ID:                 entry.ID(),
		Name:               entry.Name(),
		Mode:               entry.Mode().String(),
		CreatedAt:          entry.CreatedAt().UTC(),
		AttemptedMigration: attempted,
		SkipMigration:      skip,
	}
	if loc := entry.Location(); loc.Scheme != "" {
		dto.Location = loc.String()
	}
	if engine := entry.Engine(); engine != nil {
		dto.Closed = engine.Closed()
	}
	return dto
}
