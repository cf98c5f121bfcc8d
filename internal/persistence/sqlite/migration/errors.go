package migration

import (
	"errors"
	"fmt"
	"strings"
)

// Migration-specific error types for different failure scenarios
var (
	// ErrMigrationFailed indicates that applying statements or persisting the hash failed
	ErrMigrationFailed = errors.New("migration execution failed")

	// ErrInvalidLog indicates that a migration log is malformed
	ErrInvalidLog = errors.New("invalid migration log")

	// ErrInvalidMigrationFile indicates that a migration file is malformed or invalid
	ErrInvalidMigrationFile = errors.New("invalid migration file format")

	// ErrInvalidVersion indicates that a migration version is invalid or malformed
	ErrInvalidVersion = errors.New("invalid migration version")

	// ErrDuplicateVersion indicates that multiple migrations have the same version
	ErrDuplicateVersion = errors.New("duplicate migration version")
)

// MigrationError wraps a failed migration run with the step it failed in
type MigrationError struct {
	Name string // Database name
	Step string // Runner step (validate, read hash, pre-migration, apply, record hash)
	Hash string // Target hash, if known
	Err  error  // Underlying error
}

// Error implements the error interface
func (e *MigrationError) Error() string {
	if e.Hash != "" {
		return fmt.Sprintf("migration of %q to %s: %s: %v", e.Name, e.Hash, e.Step, e.Err)
	}
	return fmt.Sprintf("migration of %q: %s: %v", e.Name, e.Step, e.Err)
}

// Unwrap returns the underlying error for error unwrapping
func (e *MigrationError) Unwrap() error {
	return e.Err
}

// NewMigrationError creates a new MigrationError with context
func NewMigrationError(name, step, hash string, err error) *MigrationError {
	return &MigrationError{
		Name: name,
		Step: step,
		Hash: hash,
		Err:  err,
	}
}

// ValidationError lists every problem found in a migration log
type ValidationError struct {
	Problems []string
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	if e == nil || len(e.Problems) == 0 {
		return ErrInvalidLog.Error()
	}
	return fmt.Sprintf("%s: %s", ErrInvalidLog, strings.Join(e.Problems, "; "))
}

// Is lets errors.Is match ErrInvalidLog
func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidLog
}

func (e *ValidationError) add(format string, args ...any) {
	e.Problems = append(e.Problems, fmt.Sprintf(format, args...))
}

// FileSystemError wraps file system related errors while compiling a log
type FileSystemError struct {
	Path      string // File or directory path
	Operation string // File operation (read, scan, etc.)
	Err       error  // Underlying error
}

// Error implements the error interface
func (e *FileSystemError) Error() string {
	return fmt.Sprintf("filesystem error during %s of %s: %v", e.Operation, e.Path, e.Err)
}

// Unwrap returns the underlying error
func (e *FileSystemError) Unwrap() error {
	return e.Err
}

// NewFileSystemError creates a new FileSystemError
func NewFileSystemError(path, operation string, err error) *FileSystemError {
	return &FileSystemError{
		Path:      path,
		Operation: operation,
		Err:       err,
	}
}

// DatabaseError wraps database errors raised while applying a step
type DatabaseError struct {
	Hash      string // Step hash (if applicable)
	Query     string // SQL statement that failed (if applicable)
	Operation string // Database operation (execute, query, etc.)
	Err       error  // Underlying error
}

// Error implements the error interface
func (e *DatabaseError) Error() string {
	if e.Hash != "" {
		return fmt.Sprintf("database error in step %s during %s: %v", e.Hash, e.Operation, e.Err)
	}
	return fmt.Sprintf("database error during %s: %v", e.Operation, e.Err)
}

// Unwrap returns the underlying error
func (e *DatabaseError) Unwrap() error {
	return e.Err
}

// NewDatabaseError creates a new DatabaseError
func NewDatabaseError(hash, query, operation string, err error) *DatabaseError {
	return &DatabaseError{
		Hash:      hash,
		Query:     query,
		Operation: operation,
		Err:       err,
	}
}
