// Package client exposes the generation backend to the view layer: the HTTP
// API client, the typed action dispatcher and the process manager that owns
// the reactive state.
package client

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates the backend has no record for the identifier.
	ErrNotFound = errors.New("not found")

	// ErrResponseTimeout indicates no new assistant content arrived within
	// the bounded wait. Fatal for that send only; the optimistic message is
	// rolled back.
	ErrResponseTimeout = errors.New("timed out waiting for assistant response")

	// ErrNoPendingInput indicates a user response was dispatched while the
	// process was not waiting for input.
	ErrNoPendingInput = errors.New("process is not waiting for input")
)

// APIError wraps a non-2xx backend response.
type APIError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: backend returned %d: %s", e.Op, e.StatusCode, e.Body)
}

func (e *APIError) Is(target error) bool {
	return target == ErrNotFound && e.StatusCode == 404
}
