package store

import (
	"errors"
)

// Sentinel errors for common error conditions
var (
	// ErrNotFound is wrapped by the entity specific not found errors.
	ErrNotFound = errors.New("not found")

	// ErrTransient indicates the store could not commit a transaction, for example
	// because of a serialization conflict, a deadlock or a lost connection. The whole
	// operation was rolled back and may be retried by the caller.
	ErrTransient = errors.New("transient store failure")

	// ErrOpenIntervalConflict is returned when a write would leave a position or a
	// person with more than one open interval.
	ErrOpenIntervalConflict = errors.New("open interval conflict")
)

// IsNotFound reports whether err signals a missing position or person.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
