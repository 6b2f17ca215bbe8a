package aircloud

import (
	"errors"
	"fmt"
)

// Error classes for AirCloud API calls.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrAuthentication is returned for HTTP 401/403 and for sign-in
	// attempts without credentials. The held session is discarded.
	ErrAuthentication = errors.New("aircloud: authentication failed")

	// ErrCommunication is returned for timeouts, DNS and connection
	// failures, and unexpected HTTP statuses.
	ErrCommunication = errors.New("aircloud: communication failed")

	// ErrGeneral is returned for anything else, including response
	// bodies that cannot be decoded.
	ErrGeneral = errors.New("aircloud: unexpected error")
)

// StatusError carries the HTTP status of a rejected request.
type StatusError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: HTTP %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("%s: HTTP %d: %s", e.Op, e.StatusCode, e.Body)
}

// IsAuthentication reports whether err means the credentials or the
// session were rejected.
func IsAuthentication(err error) bool {
	return errors.Is(err, ErrAuthentication)
}

// IsCommunication reports whether err is a transport-level failure.
func IsCommunication(err error) bool {
	return errors.Is(err, ErrCommunication)
}
