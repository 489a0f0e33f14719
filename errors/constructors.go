package errors

import (
	"fmt"
)

// NotReady reports that a channel or snapshot has not completed its initial fetch
func NotReady(label string) *TestwatchError {
	return New(ErrCodeNotReady, fmt.Sprintf("%s is still loading", label)).
		WithDetail("source", label)
}

// Closed reports use of a channel after it was torn down
func Closed(label string) *TestwatchError {
	return New(ErrCodeClosed, fmt.Sprintf("%s is closed", label)).
		WithDetail("source", label)
}

// MalformedEvent wraps a failure to fold a delta into the current value
func MalformedEvent(label string, err error) *TestwatchError {
	return Wrap(err, ErrCodeMalformedEvent, fmt.Sprintf("discarded malformed event on %s", label)).
		WithDetail("source", label)
}

// RemoteRejected wraps a mutation the backend refused
func RemoteRejected(operation string, err error) *TestwatchError {
	return Wrap(err, ErrCodeRemoteRejected, fmt.Sprintf("%s was rejected", operation)).
		WithDetail("operation", operation)
}

// StreamInterrupted reports a subscription that ended or skipped events
func StreamInterrupted(label string, err error) *TestwatchError {
	msg := fmt.Sprintf("subscription for %s was interrupted", label)
	if err == nil {
		return New(ErrCodeStreamInterrupted, msg).WithDetail("source", label)
	}
	return Wrap(err, ErrCodeStreamInterrupted, msg).WithDetail("source", label)
}

// FetchFailed wraps a failed snapshot fetch
func FetchFailed(kind string, err error) *TestwatchError {
	return Wrap(err, ErrCodeFetchFailed, fmt.Sprintf("failed to fetch %s", kind)).
		WithDetail("kind", kind)
}

// ConfigNotFound creates a configuration not found error
func ConfigNotFound(path string) *TestwatchError {
	return New(ErrCodeConfigNotFound, fmt.Sprintf("configuration file not found: %s", path)).
		WithDetail("path", path)
}

// ConfigInvalid creates an invalid configuration error
func ConfigInvalid(reason string) *TestwatchError {
	return New(ErrCodeConfigInvalid, fmt.Sprintf("invalid configuration: %s", reason))
}

// DaemonNotRunning reports that no daemon answered on the socket
func DaemonNotRunning(socket string) *TestwatchError {
	return New(ErrCodeDaemonNotRunning, "testwatch daemon is not running").
		WithDetail("socket", socket)
}

// InvalidInput creates an invalid input error
func InvalidInput(reason string) *TestwatchError {
	return New(ErrCodeInvalidInput, reason)
}
