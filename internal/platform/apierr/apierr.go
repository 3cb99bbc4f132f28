// Package apierr carries an HTTP status and machine code alongside an error.
package apierr

import (
	"errors"
	"fmt"
	"net/http"

	pkgerrors "github.com/yungbote/vizflow-backend/internal/pkg/errors"
)

type Error struct {
	Status int
	Code   string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	if e.Code != "" {
		return e.Code
	}
	return fmt.Sprintf("api error (%d)", e.Status)
}

func (e *Error) Unwrap() error { return e.Err }

func New(status int, code string, err error) *Error {
	return &Error{Status: status, Code: code, Err: err}
}

// From classifies err. An *Error in the chain wins; otherwise the shared
// sentinels pick the status and anything else is a 500 with fallbackCode.
func From(err error, fallbackCode string) *Error {
	var ae *Error
	if errors.As(err, &ae) && ae.Status != 0 {
		code := ae.Code
		if code == "" {
			code = fallbackCode
		}
		return &Error{Status: ae.Status, Code: code, Err: err}
	}
	switch {
	case errors.Is(err, pkgerrors.ErrInvalidArgument):
		return New(http.StatusBadRequest, "invalid_argument", err)
	case errors.Is(err, pkgerrors.ErrNotFound):
		return New(http.StatusNotFound, "not_found", err)
	case errors.Is(err, pkgerrors.ErrUnavailable):
		return New(http.StatusServiceUnavailable, "unavailable", err)
	default:
		return New(http.StatusInternalServerError, fallbackCode, err)
	}
}
