package siteclear

import "errors"

var (
	// ErrStorageUnavailable is returned by stores disabled by policy.
	ErrStorageUnavailable = errors.New("storage unavailable")
	// ErrClosed is returned after the profile has been closed.
	ErrClosed = errors.New("profile closed")
	// ErrNoOrigin is returned when no events origin is configured.
	ErrNoOrigin = errors.New("events origin not configured")
	// ErrNotFound is returned for missing keys, caches and registrations.
	ErrNotFound = errors.New("not found")
)
