// Package apperr defines the error taxonomy shared by all components.
//
// Components return (wrapped) sentinel errors; the delivery layer maps them
// onto HTTP status codes with Status. Unrecognised errors are treated as
// internal and must never leak details to clients.
package apperr

import (
	"errors"
	"net/http"
)

var (
	// ErrValidation marks bad client input.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound marks a missing resource.
	ErrNotFound = errors.New("not found")
	// ErrForbidden marks access outside the allowed boundary
	// (paths escaping the home directory, expired share links).
	ErrForbidden = errors.New("forbidden")
	// ErrUnavailable marks a sub-service that is not initialised yet.
	ErrUnavailable = errors.New("unavailable")
	// ErrTruncated marks a queue cursor older than the retained window.
	// The client must reconcile with a full reload.
	ErrTruncated = errors.New("cursor truncated")
	// ErrBackpressure marks a refused submission; the queue never drops
	// silently.
	ErrBackpressure = errors.New("backpressure")
)

// Status maps an error onto its HTTP status code.
func Status(err error) int {
	switch {
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, ErrTruncated):
		return http.StatusConflict
	case errors.Is(err, ErrBackpressure):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
