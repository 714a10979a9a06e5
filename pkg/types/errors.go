package types

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for errors.Is matching. The concrete error types below
// unwrap to these so callers can branch without type assertions.
var (
	ErrValidation        = errors.New("validation failed")
	ErrNotFound          = errors.New("not found")
	ErrCorruptState      = errors.New("corrupt state")
	ErrInvalidTransition = errors.New("invalid state transition")
)

// ValidationError reports malformed input. No partial mutation happens when
// an operation returns one.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation: " + e.Reason
	}
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// Invalid is a shorthand constructor for ValidationError.
func Invalid(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// NotFoundError reports an unknown memory, arc, thread or event id.
type NotFoundError struct {
	Kind string // "memory", "arc", "thread", "event"
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// CorruptStateError reports persisted state that failed to decode. Sections
// lists the parts of the document that were dropped during recovery.
type CorruptStateError struct {
	Sections []string
	Cause    error
}

func (e *CorruptStateError) Error() string {
	msg := "corrupt campaign state"
	if len(e.Sections) > 0 {
		msg += " (dropped: " + strings.Join(e.Sections, ", ") + ")"
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *CorruptStateError) Unwrap() []error {
	if e.Cause == nil {
		return []error{ErrCorruptState}
	}
	return []error{ErrCorruptState, e.Cause}
}

// TransitionError reports a lifecycle change the state machine forbids.
type TransitionError struct {
	Entity string
	From   string
	To     string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s: cannot transition from %q to %q", e.Entity, e.From, e.To)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }

// DegradedRecommendation is informational. It is attached to orchestration
// results when fewer or weaker events than requested could be produced; it is
// never returned as an error.
type DegradedRecommendation struct {
	Reason string `json:"reason"`
}

func (d DegradedRecommendation) String() string { return "degraded recommendation: " + d.Reason }
