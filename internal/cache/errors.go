package cache

import "errors"

var (
	// ErrUnknownBackend is returned by Open for an unrecognized backend name.
	ErrUnknownBackend = errors.New("unknown cache backend")

	// ErrClosed is returned by operations on a closed store.
	ErrClosed = errors.New("cache store is closed")

	// ErrMissingPath is returned when an on-disk backend has no directory.
	ErrMissingPath = errors.New("cache directory is required")
)
