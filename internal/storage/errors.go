package storage

import "errors"

// Sentinel errors returned by store implementations. Callers branch with
// errors.Is rather than inspecting driver-specific error strings.
var (
	// ErrNotFound indicates the requested row does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput indicates a malformed argument (empty id, nil record).
	ErrInvalidInput = errors.New("invalid input")
)
