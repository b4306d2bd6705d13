package hub

import (
	"errors"
	"fmt"
)

var (
	// ErrClosed is returned when the client has been closed before a task
	// could be queued or processed.
	ErrClosed = errors.New("hub: client closed")

	// ErrInvalidJSON is returned when the hub answers 2xx with a body that is
	// not valid JSON on an endpoint that promises JSON.
	ErrInvalidJSON = errors.New("hub: response is not valid JSON")

	// ErrUploadFailed wraps the failure reported by another client's worker
	// for a task this client queued on a shared queue.
	ErrUploadFailed = errors.New("hub: upload failed")
)

// StatusError reports a non-2xx response from the hub.
type StatusError struct {
	// Endpoint is the request path, e.g. "/api/upload".
	Endpoint string

	// StatusCode is the HTTP status returned by the hub.
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("hub: %s: HTTP error! status: %d", e.Endpoint, e.StatusCode)
}

// IsStatus reports whether err is a StatusError carrying code.
func IsStatus(err error, code int) bool {
	var statusErr *StatusError
	return errors.As(err, &statusErr) && statusErr.StatusCode == code
}
