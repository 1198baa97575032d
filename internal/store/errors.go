package store

import (
	"errors"
	"fmt"
)

var (
	// ErrNotConfigured is returned while no datastore has been selected.
	ErrNotConfigured = errors.New("datastore not configured")
	ErrNotFound      = errors.New("not found")
	ErrValidation    = errors.New("validation failed")
)

// StorageError wraps a failure reported by the underlying database.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

func storageErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StorageError{Op: op, Err: err}
}

// Invalidf builds an error matching ErrValidation.
func Invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// NotFoundf builds an error matching ErrNotFound.
func NotFoundf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}
