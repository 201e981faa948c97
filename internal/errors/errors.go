package errors

import (
	"errors"
	"fmt"
)

// FoundryError is the structured error type for Index Foundry.
type FoundryError struct {
	// Code is the stable error identifier (e.g. "FetchTimeout").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category is the error category derived from the code.
	Category Category

	// Recoverable hints to callers that retrying may succeed.
	Recoverable bool

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Suggestion is an actionable hint for the user.
	Suggestion string

	// Cause is the underlying error, if any.
	Cause error
}

// Error implements the error interface. The cause is appended unless the
// message already carries it (Wrap copies the cause's text into Message).
func (e *FoundryError) Error() string {
	if e.Cause != nil && e.Message != e.Cause.Error() {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *FoundryError) Unwrap() error {
	return e.Cause
}

// Is matches errors by code, enabling errors.Is with sentinel instances.
func (e *FoundryError) Is(target error) bool {
	if t, ok := target.(*FoundryError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail. Returns the error for chaining.
func (e *FoundryError) WithDetail(key, value string) *FoundryError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithSuggestion sets an actionable suggestion. Returns the error for chaining.
func (e *FoundryError) WithSuggestion(suggestion string) *FoundryError {
	e.Suggestion = suggestion
	return e
}

// WithRecoverable overrides the recoverable flag derived from the code.
// Fetch errors use this to distinguish 4xx (permanent) from 5xx (transient).
func (e *FoundryError) WithRecoverable(recoverable bool) *FoundryError {
	e.Recoverable = recoverable
	return e
}

// New creates a FoundryError with the given code and message.
// Category and the recoverable default are derived from the code.
func New(code, message string) *FoundryError {
	return &FoundryError{
		Code:        code,
		Message:     message,
		Category:    categoryFromCode(code),
		Recoverable: defaultRecoverable(code),
	}
}

// Newf creates a FoundryError with a formatted message.
func Newf(code, format string, args ...any) *FoundryError {
	return New(code, fmt.Sprintf(format, args...))
}

// Wrap creates a FoundryError from an existing error, preserving it as the
// cause. Returns nil when err is nil.
func Wrap(code string, err error) *FoundryError {
	if err == nil {
		return nil
	}
	e := New(code, err.Error())
	e.Cause = err
	return e
}

// Wrapf wraps err with a formatted message while keeping it as the cause.
func Wrapf(code string, err error, format string, args ...any) *FoundryError {
	e := Newf(code, format, args...)
	e.Cause = err
	return e
}

// IsRecoverable reports whether err carries a recoverable hint.
func IsRecoverable(err error) bool {
	var fe *FoundryError
	if errors.As(err, &fe) {
		return fe.Recoverable
	}
	return false
}

// IsFatal reports whether err must abort the entire build.
// Per-source errors are locally recovered; only workspace-integrity errors
// (dimension mismatch, missing API key, checkpoint write failure) are fatal.
func IsFatal(err error) bool {
	var fe *FoundryError
	if errors.As(err, &fe) {
		return isFatalCode(fe.Code)
	}
	return false
}

// GetCode extracts the code from err, or "" if it is not a FoundryError.
func GetCode(err error) string {
	var fe *FoundryError
	if errors.As(err, &fe) {
		return fe.Code
	}
	return ""
}

// HasCode reports whether err carries the given code anywhere in its chain.
func HasCode(err error, code string) bool {
	return GetCode(err) == code
}
