// Package errors holds the sentinels shared by the store adapters, the
// coordinator and the HTTP layer.
package errors

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrUnavailable marks a dependency (store, upstream API) that could not be reached.
	ErrUnavailable = errors.New("unavailable")
)

// Invalidf formats a message wrapped in ErrInvalidArgument.
func Invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}

// Unavailable wraps a dependency failure so callers can match both
// ErrUnavailable and the original cause.
func Unavailable(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", op, ErrUnavailable, err)
}
