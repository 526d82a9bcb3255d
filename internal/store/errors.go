package store

import "errors"

// Sentinel errors surfaced to callers via errors.Is. Everything else
// coming out of the store is an unexpected database failure.
var (
	ErrNotFound       = errors.New("not found")
	ErrConflict       = errors.New("transaction conflict")
	ErrAlreadyApplied = errors.New("queue item already resolved")
	ErrOwnership      = errors.New("suggestion does not belong to paragraph")
)
