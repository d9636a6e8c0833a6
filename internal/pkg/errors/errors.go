package errors

import "errors"

var (
	// ErrNotFound is a generic sentinel for missing resources.
	ErrNotFound = errors.New("not found")
	// ErrInvalidInput is a generic sentinel for rejected input.
	ErrInvalidInput = errors.New("invalid input")
	// ErrUnavailable marks an optional backend that is not configured or not reachable.
	ErrUnavailable = errors.New("unavailable")
)
