package progression

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes engine errors.
type ErrorCode string

const (
	// ErrCodeNotFound indicates an unknown dimension name.
	ErrCodeNotFound ErrorCode = "NOT_FOUND"

	// ErrCodeConfig indicates a malformed step configuration, or a stored
	// value that does not belong to the configured value space.
	ErrCodeConfig ErrorCode = "CONFIG_ERROR"

	// ErrCodeConflict indicates an optimistic write collision that survived
	// every retry.
	ErrCodeConflict ErrorCode = "CONFLICT"

	// ErrCodeInvalidTransition indicates a transition the state machine does
	// not allow, such as a manual regress below the floor. Callers report it
	// as a no-op.
	ErrCodeInvalidTransition ErrorCode = "INVALID_TRANSITION"
)

// Error is the structured error returned by the store, policy and engine
// layers.
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// Dimension names the affected dimension, if any.
	Dimension string

	// Message is a human-readable description.
	Message string

	// Err is the underlying cause, if any.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.Dimension != "" {
		msg = fmt.Sprintf("%s: %s (dimension=%s)", e.Code, e.Message, e.Dimension)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NotFoundError reports an unknown dimension.
func NotFoundError(name string) *Error {
	return &Error{
		Code:      ErrCodeNotFound,
		Dimension: name,
		Message:   "unknown dimension",
	}
}

// ConfigError wraps a configuration problem for the named dimension.
func ConfigError(name string, err error) *Error {
	return &Error{
		Code:      ErrCodeConfig,
		Dimension: name,
		Message:   "invalid configuration",
		Err:       err,
	}
}

// ConflictError reports that a compare-and-update gave up after attempts
// tries.
func ConflictError(name string, attempts int) *Error {
	return &Error{
		Code:      ErrCodeConflict,
		Dimension: name,
		Message:   fmt.Sprintf("concurrent modification after %d attempts", attempts),
	}
}

// InvalidTransitionError reports a disallowed transition.
func InvalidTransitionError(name, format string, args ...any) *Error {
	return &Error{
		Code:      ErrCodeInvalidTransition,
		Dimension: name,
		Message:   fmt.Sprintf(format, args...),
	}
}

// CodeOf returns the ErrorCode carried by err, or "" if err is not an *Error.
// Uses errors.As to handle wrapped errors.
func CodeOf(err error) ErrorCode {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Code
	}
	return ""
}

// IsNotFound returns true if err reports an unknown dimension.
func IsNotFound(err error) bool {
	return CodeOf(err) == ErrCodeNotFound
}

// IsConfigError returns true if err reports a configuration problem.
func IsConfigError(err error) bool {
	return CodeOf(err) == ErrCodeConfig
}

// IsConflict returns true if err reports an unresolved write collision.
func IsConflict(err error) bool {
	return CodeOf(err) == ErrCodeConflict
}

// IsInvalidTransition returns true if err reports a disallowed transition.
func IsInvalidTransition(err error) bool {
	return CodeOf(err) == ErrCodeInvalidTransition
}
