package turn

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrAuthorizationDenied means the caller may not perform the intent in the current state.
	ErrAuthorizationDenied = errors.New("authorization denied")
	// ErrValidation means the intent was malformed or made no sense in the current state.
	ErrValidation = errors.New("validation failed")
	// ErrRemoteOperationMissing means an atomic store operation is not provisioned.
	// The engine absorbs it by switching to the fallback path.
	ErrRemoteOperationMissing = errors.New("remote operation missing")
	// ErrRemoteFailure wraps any other store or transport failure.
	ErrRemoteFailure = errors.New("remote failure")
	// ErrStaleRead names the race where a fallback sequence acts on a state that changed
	// between its read and its write. Clients cannot detect it; only the atomic path avoids it.
	ErrStaleRead = errors.New("stale read")
	// ErrIndeterminate marks a remote call that timed out. Its effect is unknown until the
	// next full reload.
	ErrIndeterminate = errors.New("outcome indeterminate")
)

var (
	ErrAlreadyActive = &ValidationError{Field: "slot", Reason: "slot is already active"}
	ErrNotRunning    = &ValidationError{Field: "state", Reason: "clock is not running"}
	ErrCombatActive  = &ValidationError{Field: "state", Reason: "combat in progress"}
	ErrRunning       = &ValidationError{Field: "state", Reason: "clock is running"}
	ErrUnknownSlot   = &ValidationError{Field: "slot", Reason: "no such slot"}
	ErrSameSlot      = &ValidationError{Field: "slot", Reason: "target must differ from the active slot"}
)

// ValidationError describes a rejected input. It matches ErrValidation with errors.Is.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// Invalid builds a ValidationError.
func Invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// Kind classifies an error for callers that render or map it, e.g. to an HTTP status.
type Kind string

const (
	KindNone                   Kind = ""
	KindAuthorizationDenied    Kind = "authorization_denied"
	KindValidation             Kind = "validation"
	KindRemoteOperationMissing Kind = "remote_operation_missing"
	KindRemoteFailure          Kind = "remote_failure"
)

// KindOf reports the kind of err. Unknown errors are treated as remote failures.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrAuthorizationDenied):
		return KindAuthorizationDenied
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrRemoteOperationMissing):
		return KindRemoteOperationMissing
	default:
		return KindRemoteFailure
	}
}

// IsTimeout reports whether err came from an expired or cancelled context.
func IsTimeout(err error) bool {
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
}
