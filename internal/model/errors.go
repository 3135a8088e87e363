package model

import "errors"

// Sentinel errors classify failures; wrap them with fmt.Errorf("...: %w", err)
// and test with errors.Is at the HTTP boundary.
var (
	// ErrInvalidInput marks missing or malformed client input
	ErrInvalidInput = errors.New("invalid input")

	// ErrNotFound marks an unknown job or resource
	ErrNotFound = errors.New("not found")

	// ErrNotReady marks a job whose artifact is not available yet
	ErrNotReady = errors.New("not ready")

	// ErrRetrieval marks a failed metadata or download operation
	ErrRetrieval = errors.New("retrieval failed")

	// ErrInternal marks persistence or filesystem failures
	ErrInternal = errors.New("internal error")
)
