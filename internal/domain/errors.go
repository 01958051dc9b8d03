package domain

import (
	"errors"
	"fmt"
)

// Code is a stable, machine-readable error code surfaced to HTTP/WS callers.
type Code string

const (
	CodeValidation Code = "VALIDATION_ERROR"
	CodeNotFound   Code = "NOT_FOUND"
	CodeConflict   Code = "CONFLICT"
	CodeTransient  Code = "TRANSIENT"
	CodePermanent  Code = "PERMANENT"
	CodeProtocol   Code = "PROTOCOL_ERROR"
	CodeFatal      Code = "FATAL"
)

// ScoutError is the closed error taxonomy used across the engine. It never
// carries a stack trace across a process boundary; callers format Code and
// Message for HTTP bodies or WebSocket error envelopes.
type ScoutError struct {
	Code    Code
	Message string
	Cause   error
}

func (e *ScoutError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ScoutError) Unwrap() error { return e.Cause }

func newErr(code Code, msg string, cause error) *ScoutError {
	return &ScoutError{Code: code, Message: msg, Cause: cause}
}

func NewValidationError(msg string) *ScoutError        { return newErr(CodeValidation, msg, nil) }
func NewNotFoundError(msg string) *ScoutError           { return newErr(CodeNotFound, msg, nil) }
func NewConflictError(msg string) *ScoutError           { return newErr(CodeConflict, msg, nil) }
func NewProtocolError(msg string) *ScoutError           { return newErr(CodeProtocol, msg, nil) }
func NewTransientError(msg string, cause error) *ScoutError { return newErr(CodeTransient, msg, cause) }
func NewPermanentError(msg string, cause error) *ScoutError { return newErr(CodePermanent, msg, cause) }
func NewFatalError(msg string, cause error) *ScoutError     { return newErr(CodeFatal, msg, cause) }

// CodeOf extracts the Code from err, defaulting to CodeFatal for unmodeled errors.
func CodeOf(err error) Code {
	var se *ScoutError
	if errors.As(err, &se) {
		return se.Code
	}
	return CodeFatal
}

// IsTransient reports whether err (or a wrapped cause) is a Transient ScoutError.
func IsTransient(err error) bool {
	var se *ScoutError
	return errors.As(err, &se) && se.Code == CodeTransient
}

// IsPermanent reports whether err (or a wrapped cause) is a Permanent ScoutError.
func IsPermanent(err error) bool {
	var se *ScoutError
	return errors.As(err, &se) && se.Code == CodePermanent
}
