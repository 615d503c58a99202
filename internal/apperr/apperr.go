// Package apperr defines the error kinds returned by the query layer:
// invalid arguments, missing records and an unavailable store.
package apperr

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidArgument marks malformed or conflicting parameters.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrNotFound marks a specific-entity lookup that had no match.
	ErrNotFound = errors.New("not found")
	// ErrStorageUnavailable marks a failed read against the archive.
	ErrStorageUnavailable = errors.New("storage unavailable")
)

// ArgumentError describes a rejected parameter. It matches ErrInvalidArgument.
type ArgumentError struct {
	Field string
	Msg   string
}

func (e *ArgumentError) Error() string {
	if e.Field == "" {
		return e.Msg
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Msg)
}

// Is reports whether target is ErrInvalidArgument.
func (e *ArgumentError) Is(target error) bool {
	return target == ErrInvalidArgument
}

// Invalid returns an *ArgumentError for field.
func Invalid(field, format string, args ...any) error {
	return &ArgumentError{Field: field, Msg: fmt.Sprintf(format, args...)}
}

// NotFound wraps ErrNotFound with a description of what was missing.
func NotFound(format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrNotFound)
}

// Unavailable wraps a storage failure so it matches ErrStorageUnavailable
// while keeping the driver error in the chain.
func Unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w", op, errors.Join(ErrStorageUnavailable, err))
}

// IsInvalid reports whether err is an argument error.
func IsInvalid(err error) bool { return errors.Is(err, ErrInvalidArgument) }

// IsNotFound reports whether err is a not-found error.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }
