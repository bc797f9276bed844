// Package dErrors provides coded domain errors. Services construct these at
// the point a rule is enforced; the HTTP layer maps codes to statuses. Stores
// never return coded errors directly, they return sentinel errors which the
// service layer translates.
package dErrors

import (
	"errors"
	"fmt"
)

// Code classifies a domain error for callers.
type Code string

const (
	// Request shape problems.
	CodeBadRequest Code = "bad_request"
	CodeValidation Code = "validation"

	// Domain rule problems.
	CodeInvariantViolation Code = "invariant_violation"
	CodeInvalidTransition  Code = "invalid_transition"
	CodeInvalidAmendment   Code = "invalid_amendment"

	// Resource state problems.
	CodeNotFound      Code = "not_found"
	CodeAlreadyExists Code = "already_exists"
	CodeConflict      Code = "conflict"

	// Principal problems.
	CodeUnauthorized     Code = "unauthorized"
	CodeForbidden        Code = "forbidden"
	CodeTenantUnresolved Code = "tenant_unresolved"

	// Infrastructure problems.
	CodeInternal Code = "internal"
	CodeTimeout  Code = "timeout"
)

// Error is a domain error with a stable code and a human-readable message.
type Error struct {
	Code    Code
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// New constructs a domain error with the given code.
func New(code Code, message string) error {
	return &Error{Code: code, Message: message}
}

// Newf constructs a domain error with a formatted message.
func Newf(code Code, format string, args ...any) error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying error, preserving the
// cause for errors.Is / errors.As chains.
func Wrap(err error, code Code, message string) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: message, cause: err}
}

// HasCode reports whether err carries the given code anywhere in its chain.
func HasCode(err error, code Code) bool {
	var de *Error
	for errors.As(err, &de) {
		if de.Code == code {
			return true
		}
		err = de.cause
		if err == nil {
			return false
		}
	}
	return false
}

// Is is shorthand for HasCode, matching the call sites that read better as a
// predicate.
func Is(err error, code Code) bool {
	return HasCode(err, code)
}

// CodeOf extracts the outermost code from err, or CodeInternal when err is
// not a domain error.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// MessageOf extracts the outermost message from err, or an empty string when
// err is not a domain error.
func MessageOf(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Message
	}
	return ""
}
