package domain

import (
	"errors"
	"net/http"
)

// Domain errors represent the failure taxonomy shared by every backend.
// Adapters translate client-specific failures into these at the boundary,
// so callers only ever need errors.Is against this list.
var (
	// ErrInvalidArgument indicates a nil, empty or out-of-range parameter.
	// It is never retried.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrNotFound indicates a requested document or content does not exist.
	ErrNotFound = errors.New("not found")

	// ErrTimeout indicates a bounded operation (content read) exceeded its deadline.
	ErrTimeout = errors.New("timeout")

	// ErrConnection indicates a backend was unreachable when connecting.
	ErrConnection = errors.New("connection failed")

	// ErrTechnical wraps any other unexpected backend failure.
	ErrTechnical = errors.New("technical error")

	// ErrNoIndex indicates the operation needs an index that does not exist.
	ErrNoIndex = errors.New("index does not exist")

	// ErrNotConfigured indicates a required backend was not wired in.
	ErrNotConfigured = errors.New("not configured")
)

// IsNotFound reports whether err is, or wraps, ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// HTTPStatus maps an error of the taxonomy to the status code an outer
// HTTP layer is expected to return.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrNoIndex):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, ErrTimeout):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
