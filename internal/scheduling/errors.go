package scheduling

import (
	"errors"
	"fmt"
)

var (
	// ErrClientNotFound covers both "client does not exist" and "client
	// belongs to another professional" so callers cannot probe for other
	// owners' clients.
	ErrClientNotFound      = errors.New("client not found for this owner")
	ErrAppointmentNotFound = errors.New("appointment not found")

	// ErrScheduleBusy means the per-owner admission lock was held by a
	// concurrent request. Retryable by the caller.
	ErrScheduleBusy = errors.New("schedule is currently being modified, please retry")
)

// ValidationError reports the first malformed input field. Recoverable by
// correcting the input, never retried automatically.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("invalid appointment input: %s", e.Reason)
	}
	return fmt.Sprintf("invalid appointment input: %s: %s", e.Field, e.Reason)
}

// ConflictError carries the full ordered list of colliding appointments.
// Callers typically surface only the earliest conflict to the user, but the
// policy exposes all of them so that is the caller's choice.
type ConflictError struct {
	Conflicts []Appointment
}

func (e *ConflictError) Error() string {
	if len(e.Conflicts) == 1 {
		return fmt.Sprintf("schedule conflict with appointment starting at %s",
			e.Conflicts[0].StartTime.Format("2006-01-02 15:04"))
	}
	return fmt.Sprintf("schedule conflict with %d existing appointments", len(e.Conflicts))
}

// StorageError wraps an opaque failure from the storage collaborator. The
// core never retries or interprets these.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}
