package app

import (
	"errors"
	"strings"
)

// ErrValidation and related errors classify board synchronization failures.
var (
	ErrValidation        = errors.New("validation failed")
	ErrSameState         = errors.New("task already in requested status")
	ErrNetwork           = errors.New("network failure")
	ErrServerRejected    = errors.New("server rejected change")
	ErrMalformedResponse = errors.New("malformed response")
	ErrStaleResponse     = errors.New("stale response")
)

// RejectedError carries the reason reported by the remote when it refuses a change.
type RejectedError struct {
	Reason string
}

// Error returns the rejection message.
func (e *RejectedError) Error() string {
	reason := strings.TrimSpace(e.Reason)
	if reason == "" {
		return ErrServerRejected.Error()
	}
	return ErrServerRejected.Error() + ": " + reason
}

// Is matches ErrServerRejected.
func (e *RejectedError) Is(target error) bool {
	return target == ErrServerRejected
}

// RejectionReason returns the remote-supplied reason when err is a rejection.
func RejectionReason(err error) string {
	var rejected *RejectedError
	if errors.As(err, &rejected) {
		return strings.TrimSpace(rejected.Reason)
	}
	return ""
}

// UserMessage maps an error to the text shown to the user.
func UserMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrServerRejected):
		if reason := RejectionReason(err); reason != "" {
			return "status change rejected: " + reason
		}
		return "status change rejected by server"
	case errors.Is(err, ErrNetwork):
		return "could not reach the task service, please retry"
	case errors.Is(err, ErrMalformedResponse):
		return "unexpected response from the task service, please retry"
	case errors.Is(err, ErrValidation):
		return err.Error()
	default:
		return "status change failed: " + err.Error()
	}
}
