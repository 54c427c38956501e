package core

import (
	"errors"
	"fmt"
)

// ErrorKind categorizes every failure the orchestration core can surface.
// The taxonomy is closed: new kinds require a class assignment below.
type ErrorKind string

const (
	// Authorization class: fatal to the current step, never retried.
	KindMissingAttribute    ErrorKind = "missing_attribute"
	KindGuardRailViolation  ErrorKind = "guard_rail_violation"
	KindUnauthorizedHandoff ErrorKind = "unauthorized_handoff"

	// Contract class: a caller or tool broke its contract; logged with full
	// context and surfaced as a degraded answer, never retried.
	KindUnknownTool       ErrorKind = "unknown_tool"
	KindInvalidArguments  ErrorKind = "invalid_arguments"
	KindInvalidToolResult ErrorKind = "invalid_tool_result"

	// Transient class: retried with bounded exponential backoff before
	// being surfaced.
	KindRetrievalUnavailable ErrorKind = "retrieval_unavailable"
	KindModelUnavailable     ErrorKind = "model_unavailable"

	// Resource class: surfaced with a specific user-facing message.
	KindIterationLimitExceeded ErrorKind = "iteration_limit_exceeded"
	KindConversationBusy       ErrorKind = "conversation_busy"

	// KindCancelled marks a run terminated by caller cancellation.
	KindCancelled ErrorKind = "cancelled"
)

// ErrorClass groups kinds by handling policy (see spec of Error above).
type ErrorClass int

const (
	ClassAuthorization ErrorClass = iota
	ClassContract
	ClassTransient
	ClassResource
)

// Class returns the handling class for the kind.
func (k ErrorKind) Class() ErrorClass {
	switch k {
	case KindMissingAttribute, KindGuardRailViolation, KindUnauthorizedHandoff:
		return ClassAuthorization
	case KindUnknownTool, KindInvalidArguments, KindInvalidToolResult:
		return ClassContract
	case KindRetrievalUnavailable, KindModelUnavailable:
		return ClassTransient
	default:
		return ClassResource
	}
}

// Retryable reports whether callers may retry an operation failing with this
// kind. Only transient-class errors qualify.
func (k ErrorKind) Retryable() bool { return k.Class() == ClassTransient }

// UserMessage returns the user-facing phrasing for resource-class outcomes.
// Other classes fall back to a generic message; the full detail stays in logs
// and audit turns.
func (k ErrorKind) UserMessage() string {
	switch k {
	case KindIterationLimitExceeded:
		return "I could not complete the request within the allowed number of reasoning steps; the answer below may be partial."
	case KindConversationBusy:
		return "This conversation is already being processed; please retry in a moment."
	case KindCancelled:
		return "The request was cancelled."
	case KindRetrievalUnavailable:
		return "The knowledge store is currently unreachable; please try again later."
	default:
		return "The request could not be completed."
	}
}

// Error is the uniform error type flowing out of the orchestration core. It
// pairs a taxonomy Kind with a human-readable message and optional structured
// details (schema validation results, attribute names, wrapped causes).
type Error struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
	Details any       `json:"details,omitempty"`

	cause error
}

// NewError constructs an Error with a formatted message.
func NewError(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// WrapError constructs an Error retaining the underlying cause for
// errors.Unwrap chains.
func WrapError(kind ErrorKind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), cause: cause}
}

// WithDetails attaches structured details and returns the receiver for
// chaining.
func (e *Error) WithDetails(d any) *Error {
	e.Details = d
	return e
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap exposes the wrapped cause (nil if none).
func (e *Error) Unwrap() error { return e.cause }

// KindOf extracts the ErrorKind from err, returning "" when err does not
// carry one anywhere in its chain.
func KindOf(err error) ErrorKind {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return ""
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind ErrorKind) bool { return KindOf(err) == kind }
