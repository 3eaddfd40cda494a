package starblast

import (
	"errors"
	"fmt"
)

// The messages of these errors are shown to chat users verbatim.
var (
	// ErrFetchFailed covers transport failures and unreadable responses.
	ErrFetchFailed = errors.New("Failed to fetch system information")

	// ErrSystemNotFound is returned when the status API reports no_system.
	ErrSystemNotFound = errors.New("System not found")

	// ErrInvalidSystem is returned when a status document has no name.
	ErrInvalidSystem = errors.New("Invalid system data")

	// ErrNotInDirectory is returned by ResolveAddress when no host lists the id.
	ErrNotInDirectory = errors.New("system not listed in directory")
)

// HTTPError is returned when an endpoint answers outside the 2xx range.
type HTTPError struct {
	StatusCode int
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP error: %d", e.StatusCode)
}

func checkStatus(code int) error {
	if code < 200 || code > 299 {
		return &HTTPError{StatusCode: code}
	}
	return nil
}
