package vectorstore

import (
	"errors"
	"fmt"
)

// Common errors
var (
	// ErrNotFound is returned when a fragment is not found in any tier
	ErrNotFound = errors.New("fragment not found")

	// ErrStoreClosed is returned when operating on a closed store
	ErrStoreClosed = errors.New("store is closed")

	// ErrInvalidConfig is returned when store configuration is invalid
	ErrInvalidConfig = errors.New("invalid store configuration")

	// ErrInvalidTopK is returned when a search requests a non-positive result count
	ErrInvalidTopK = errors.New("topK must be positive")
)

// StoreError wraps errors with operation context
type StoreError struct {
	Op  string // Operation name
	Err error  // Underlying error
}

// Error implements the error interface
func (e *StoreError) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("vectorstore: %v", e.Err)
	}
	return fmt.Sprintf("vectorstore: %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error
func (e *StoreError) Unwrap() error {
	return e.Err
}

// Is checks if the error matches the target
func (e *StoreError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// wrapError wraps an error with operation context
func wrapError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StoreError{Op: op, Err: err}
}
