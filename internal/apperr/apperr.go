// Package apperr defines the boundary error taxonomy returned by the
// approval engine. Every error the engine returns to a caller can be
// unwrapped to exactly one Code via errors.As.
package apperr

import (
	"errors"
	"fmt"
)

// Code is one of the error kinds enumerated at the system boundary.
type Code string

const (
	UnknownUser       Code = "UNKNOWN_USER"
	Forbidden         Code = "FORBIDDEN"
	IllegalTransition Code = "ILLEGAL_TRANSITION"
	NotFound          Code = "NOT_FOUND"
	BadInput          Code = "BAD_INPUT"
	StoreUnavailable  Code = "STORE_UNAVAILABLE"
	Corrupt           Code = "CORRUPT"
	Deadline          Code = "DEADLINE"
)

// Error wraps a Code with a human message and an optional cause.
type Error struct {
	Code    Code
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds an *Error with no wrapped cause.
func New(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap builds an *Error that carries cause for errors.Is/errors.As chains.
func Wrap(code Code, cause error, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// Is reports whether err carries the given code.
func Is(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// CodeOf extracts the Code carried by err, defaulting to "" if err does
// not wrap an *Error.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// Retryable reports whether the caller-facing retry wrapper should retry
// this error kind (transport-like failures only; authorization and state
// errors are final).
func Retryable(err error) bool {
	switch CodeOf(err) {
	case StoreUnavailable, Deadline:
		return true
	default:
		return false
	}
}
