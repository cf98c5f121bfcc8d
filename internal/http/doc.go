// Package http provides the development inspector for registered databases.
//
// Only databases initialised with ExposeInDev are visible. The router exposes:
//   - GET /databases: lists exposed databases as `databaseDTO` values with
//     their mode, location and migration state.
//   - POST /databases/{name}/query: runs ad-hoc SQL. Body: {"sql","params","method"}
//     where method is "all" (default) or "run". Responses carry either
//     {"columns","rows"} or {"rowsAffected","lastInsertId"}.
//   - GET /databases/{name}/tables/{table}?limit=N: reads a table declared in the
//     database schema.
//   - DELETE /databases/{name}/storage: deletes the on-disk files and returns the
//     outcome ("deleted" or "deleted_pending_close").
//   - POST /databases/{name}/reinitialize: rebuilds the database from its
//     registered config and returns the new `databaseDTO`.
//   - GET /metrics: Prometheus metrics, when a metrics handler is configured.
//
// Request/response DTOs live in database_handler.go.
package http
