package domain

import "errors"

// Domain errors represent storage-layer failures callers may branch on.
var (
	// ErrNotFound indicates a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput indicates malformed or invalid input, e.g. a crash
	// without an id or without a usable date_processed.
	ErrInvalidInput = errors.New("invalid input")

	// ErrStoreUnavailable marks a transient store failure.
	// Transaction executors retry operations failing with this error.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrIndexCreation indicates the index-creation service failed.
	ErrIndexCreation = errors.New("index creation failed")

	// ErrStorageClosed indicates a write was attempted after Close.
	ErrStorageClosed = errors.New("storage closed")
)
