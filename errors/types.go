package errors

import (
	"encoding/json"
	"fmt"
)

// ErrorCode represents a specific error condition
type ErrorCode string

const (
	// Synchronization errors
	ErrCodeNotReady          ErrorCode = "NOT_READY"
	ErrCodeClosed            ErrorCode = "CLOSED"
	ErrCodeMalformedEvent    ErrorCode = "MALFORMED_EVENT"
	ErrCodeRemoteRejected    ErrorCode = "REMOTE_REJECTED"
	ErrCodeStreamInterrupted ErrorCode = "STREAM_INTERRUPTED"
	ErrCodeFetchFailed       ErrorCode = "FETCH_FAILED"

	// Configuration errors
	ErrCodeConfigNotFound ErrorCode = "CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid  ErrorCode = "CONFIG_INVALID"

	// Daemon errors
	ErrCodeDaemonNotRunning ErrorCode = "DAEMON_NOT_RUNNING"

	// General errors
	ErrCodeInternal     ErrorCode = "INTERNAL_ERROR"
	ErrCodeInvalidInput ErrorCode = "INVALID_INPUT"
)

// TestwatchError represents a structured error with context
type TestwatchError struct {
	Code    ErrorCode              `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
	Cause   error                  `json:"-"`
}

// Error implements the error interface
func (e *TestwatchError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap implements the errors.Unwrap interface
func (e *TestwatchError) Unwrap() error {
	return e.Cause
}

// WithDetail adds a detail to the error
func (e *TestwatchError) WithDetail(key string, value interface{}) *TestwatchError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// ToJSON converts the error to JSON
func (e *TestwatchError) ToJSON() string {
	data, _ := json.MarshalIndent(e, "", "  ")
	return string(data)
}

// New creates a new TestwatchError
func New(code ErrorCode, message string) *TestwatchError {
	return &TestwatchError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an existing error with a TestwatchError
func Wrap(err error, code ErrorCode, message string) *TestwatchError {
	return &TestwatchError{
		Code:    code,
		Message: message,
		Cause:   err,
	}
}

// Is checks if an error is a specific TestwatchError code
func Is(err error, code ErrorCode) bool {
	if err == nil {
		return false
	}

	twErr, ok := err.(*TestwatchError)
	if !ok {
		// Try to unwrap
		if unwrapper, ok := err.(interface{ Unwrap() error }); ok {
			return Is(unwrapper.Unwrap(), code)
		}
		return false
	}

	if twErr.Code == code {
		return true
	}
	return Is(twErr.Cause, code)
}

// GetCode extracts the error code from an error
func GetCode(err error) ErrorCode {
	if err == nil {
		return ""
	}

	twErr, ok := err.(*TestwatchError)
	if !ok {
		// Try to unwrap
		if unwrapper, ok := err.(interface{ Unwrap() error }); ok {
			return GetCode(unwrapper.Unwrap())
		}
		return ""
	}

	return twErr.Code
}

// IsRecoverable reports whether err describes a condition the view can
// recover from without being torn down. Closed and internal errors are the
// only fatal-to-the-component codes.
func IsRecoverable(err error) bool {
	switch GetCode(err) {
	case ErrCodeClosed, ErrCodeInternal:
		return false
	case "":
		return err == nil
	default:
		return true
	}
}
