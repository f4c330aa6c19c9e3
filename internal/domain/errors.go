package domain

import (
	"errors"
	"fmt"
)

// ErrAuthRequired is returned by every remote operation when no session is active.
var ErrAuthRequired = errors.New("authentication required")

// ValidationError reports bad caller input. It is never retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Reason
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// TransportError wraps a network or storage failure.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: transport failure: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// RemoteRejectedError is returned when the remote store refuses an operation,
// for example because the target id does not exist.
type RemoteRejectedError struct {
	Op     string
	Reason string
	Err    error
}

func (e *RemoteRejectedError) Error() string {
	return fmt.Sprintf("%s: rejected by remote store: %s", e.Op, e.Reason)
}

func (e *RemoteRejectedError) Unwrap() error { return e.Err }

// SyncError is surfaced when an optimistic mutation had to be rolled back.
type SyncError struct {
	Op     string
	TaskID string
	Err    error
}

func (e *SyncError) Error() string {
	return fmt.Sprintf("%s task %s rolled back: %v", e.Op, e.TaskID, e.Err)
}

func (e *SyncError) Unwrap() error { return e.Err }

// StaleDragError means the dragged task no longer exists locally.
type StaleDragError struct {
	TaskID string
}

func (e *StaleDragError) Error() string {
	return fmt.Sprintf("dragged task %s no longer exists", e.TaskID)
}

// Rejected builds a RemoteRejectedError.
func Rejected(op, reason string, err error) error {
	return &RemoteRejectedError{Op: op, Reason: reason, Err: err}
}

// Transport builds a TransportError unless err is already classified.
func Transport(op string, err error) error {
	if err == nil || IsClassified(err) {
		return err
	}
	return &TransportError{Op: op, Err: err}
}

// IsClassified reports whether err already belongs to the remote error taxonomy.
func IsClassified(err error) bool {
	if errors.Is(err, ErrAuthRequired) {
		return true
	}
	var te *TransportError
	var re *RemoteRejectedError
	var ve *ValidationError
	return errors.As(err, &te) || errors.As(err, &re) || errors.As(err, &ve)
}
