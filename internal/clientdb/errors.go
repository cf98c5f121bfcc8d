package clientdb

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/example/clientdb/internal/persistence"
	"github.com/example/clientdb/internal/persistence/sqlite/migration"
)

var (
	// ErrConfig is returned when a database configuration is rejected.
	ErrConfig = errors.New("clientdb: invalid configuration")
	// ErrNotFound is returned when no database is registered under a name.
	ErrNotFound = errors.New("clientdb: database not found")
)

// UnsupportedOperationError reports an operation the database's mode or
// location cannot serve, such as deleting the storage of a proxied database.
type UnsupportedOperationError = persistence.UnsupportedOperationError

// ConfigError captures every configuration problem found for one database.
type ConfigError struct {
	Name        string
	FieldErrors map[string]string
}

// Error implements the error interface.
func (c *ConfigError) Error() string {
	if c == nil || len(c.FieldErrors) == 0 {
		return ErrConfig.Error()
	}
	fields := make([]string, 0, len(c.FieldErrors))
	for field := range c.FieldErrors {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	parts := make([]string, len(fields))
	for i, field := range fields {
		parts[i] = field + ": " + c.FieldErrors[field]
	}
	return fmt.Sprintf("%s for %q: %s", ErrConfig, c.Name, strings.Join(parts, "; "))
}

// Is lets errors.Is match ErrConfig.
func (c *ConfigError) Is(target error) bool {
	return target == ErrConfig
}

// HasErrors reports whether any field level issues were recorded.
func (c *ConfigError) HasErrors() bool {
	return c != nil && len(c.FieldErrors) > 0
}

func (c *ConfigError) add(field, message string) {
	if c.FieldErrors == nil {
		c.FieldErrors = make(map[string]string)
	}
	c.FieldErrors[field] = message
}

// NotFoundError names the database that was looked up.
type NotFoundError struct {
	Name string
}

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s: %q", ErrNotFound, e.Name)
}

// Is lets errors.Is match ErrNotFound.
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// ErrorKind maps sentinel and typed errors to a stable logging label.
func ErrorKind(err error) string {
	if err == nil {
		return ""
	}
	switch {
	case errors.Is(err, ErrConfig):
		return "config"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, persistence.ErrUnsupportedOperation):
		return "unsupported_operation"
	case errors.Is(err, migration.ErrInvalidLog):
		return "invalid_log"
	case errors.Is(err, migration.ErrMigrationFailed):
		return "migration_failed"
	case errors.Is(err, persistence.ErrStorage):
		return "storage"
	case errors.Is(err, persistence.ErrClosed):
		return "closed"
	}
	return "unexpected"
}
