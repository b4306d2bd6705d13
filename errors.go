package membase

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
)

// Sentinel errors for the upload action.
var (
	// ErrMissingMessage indicates the action was invoked without a message.
	ErrMissingMessage = errors.New("missing message")

	// ErrMissingRuntime indicates the action was invoked without a runtime.
	ErrMissingRuntime = errors.New("missing runtime")

	// ErrNoResult indicates the hub client resolved an upload without a result.
	ErrNoResult = errors.New("upload finished without a result")
)

// Error kinds categorize errors by their type.
const (
	// KindValidation represents errors related to input validation.
	KindValidation = "validation"

	// KindConfiguration represents errors related to configuration.
	KindConfiguration = "configuration"

	// KindExecution represents errors that occur while running the action.
	KindExecution = "execution"

	// KindNetwork represents failed requests to the hub.
	KindNetwork = "network"

	// KindTimeout represents errors related to operation timeouts.
	KindTimeout = "timeout"
)

// Error wraps an underlying error with the operation that failed and the
// category of the failure. It supports errors.Is and errors.As.
//
//	err := &Error{
//		Op:   "UploadAction.Handle",
//		Kind: KindNetwork,
//		Err:  err,
//	}
type Error struct {
	// Op is the operation that failed (e.g., "UploadAction.Handle").
	Op string

	// Kind categorizes the error (e.g., KindNetwork, KindValidation).
	Kind string

	// Err is the underlying error that caused this error.
	Err error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("membase: %s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("membase: %s (%s): %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches a target *Error by Kind, and by Op when the target sets one.
// Other targets are compared against the underlying error.
func (e *Error) Is(target error) bool {
	if target == nil {
		return false
	}

	if t, ok := target.(*Error); ok {
		if t.Kind != "" && e.Kind == t.Kind {
			if t.Op == "" || e.Op == t.Op {
				return true
			}
		}
	}

	return errors.Is(e.Err, target)
}

// NewValidationError creates a new Error with KindValidation.
func NewValidationError(op string, err error) *Error {
	return &Error{Op: op, Kind: KindValidation, Err: err}
}

// NewConfigurationError creates a new Error with KindConfiguration.
func NewConfigurationError(op string, err error) *Error {
	return &Error{Op: op, Kind: KindConfiguration, Err: err}
}

// NewExecutionError creates a new Error with KindExecution.
func NewExecutionError(op string, err error) *Error {
	return &Error{Op: op, Kind: KindExecution, Err: err}
}

// NewNetworkError creates a new Error with KindNetwork.
func NewNetworkError(op string, err error) *Error {
	return &Error{Op: op, Kind: KindNetwork, Err: err}
}

// NewTimeoutError creates a new Error with KindTimeout.
func NewTimeoutError(op string, err error) *Error {
	return &Error{Op: op, Kind: KindTimeout, Err: err}
}

// CloseWithLog closes closer and logs a failure at warning level. It is
// meant for defer statements. A nil logger falls back to slog.Default().
//
//	defer membase.CloseWithLog(file, logger, "character file")
func CloseWithLog(closer io.Closer, logger *slog.Logger, name string) {
	if closer == nil {
		return
	}

	if logger == nil {
		logger = slog.Default()
	}

	if err := closer.Close(); err != nil {
		logger.Warn("failed to close resource",
			"resource", name,
			"error", err)
	}
}
