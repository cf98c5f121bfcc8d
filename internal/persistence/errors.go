package persistence

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when the requested record does not exist.
	ErrNotFound = errors.New("persistence: not found")
	// ErrUnsupportedOperation is returned when an operation does not apply to the
	// kind of database it was invoked on (for example deleting a proxied database).
	ErrUnsupportedOperation = errors.New("persistence: unsupported operation")
	// ErrStorage is returned when the persistent store rejects an operation.
	ErrStorage = errors.New("persistence: storage failure")
	// ErrClosed is returned when an engine is used after Close.
	ErrClosed = errors.New("persistence: engine closed")
)

// UnsupportedOperationError reports an operation that the named database's
// mode or location cannot serve.
type UnsupportedOperationError struct {
	Op     string
	Name   string
	Mode   Mode
	Reason string
}

func (e *UnsupportedOperationError) Error() string {
	if e.Name == "" {
		return fmt.Sprintf("%s on %s database: %s", e.Op, e.Mode, e.Reason)
	}
	return fmt.Sprintf("%s on %s database %q: %s", e.Op, e.Mode, e.Name, e.Reason)
}

// Is lets errors.Is match ErrUnsupportedOperation.
func (e *UnsupportedOperationError) Is(target error) bool {
	return target == ErrUnsupportedOperation
}
