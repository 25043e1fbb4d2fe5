// Package apperr holds the error kinds shared by the service and transport layers.
// Callers wrap a kind with context, e.g. fmt.Errorf("%w: message is required", apperr.ErrValidation),
// and the transport layer maps it back with errors.Is.
package apperr

import (
	"errors"
	"fmt"
)

var (
	ErrValidation     = errors.New("validation failed")
	ErrAuthentication = errors.New("authentication failed")
	ErrAuthorization  = errors.New("not authorized")
	ErrNotFound       = errors.New("not found")

	// ErrTokenExpired is an authentication failure the client can recover
	// from by refreshing, so it also matches ErrAuthentication.
	ErrTokenExpired = fmt.Errorf("%w: token expired", ErrAuthentication)
)

func Validation(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

func Authentication(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrAuthentication, fmt.Sprintf(format, args...))
}

func Authorization(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrAuthorization, fmt.Sprintf(format, args...))
}

func NotFound(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}
