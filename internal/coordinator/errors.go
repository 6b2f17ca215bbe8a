package coordinator

import "errors"

// Domain-specific errors for the refresh coordinator.
var (
	// ErrDeviceNotFound is returned when patching a device that is not in
	// the current snapshot.
	ErrDeviceNotFound = errors.New("coordinator: device not found")

	// ErrReauthRequired is returned by cycles skipped because the account
	// credentials were rejected and have not been replaced yet.
	ErrReauthRequired = errors.New("coordinator: re-authentication required")

	// ErrMissingAPI is returned by New when no API client is supplied.
	ErrMissingAPI = errors.New("coordinator: api client is required")

	// ErrInvalidInterval is returned by New for a non-positive interval.
	ErrInvalidInterval = errors.New("coordinator: update interval must be positive")
)
