// Package domainerrors defines the typed error model shared by services and
// transports. Services return *Error values (optionally wrapping a cause) and
// transports translate the Code into a status without string matching.
package domainerrors

import (
	"errors"
	"fmt"
)

// Code classifies a domain error. Codes are stable strings surfaced to API clients.
type Code string

// Generic codes.
const (
	CodeBadRequest         Code = "bad_request"
	CodeValidation         Code = "validation_error"
	CodeInvalidInput       Code = "invalid_input"
	CodeUnauthorized       Code = "unauthorized"
	CodeForbidden          Code = "forbidden"
	CodeNotFound           Code = "not_found"
	CodeConflict           Code = "conflict"
	CodeTimeout            Code = "timeout"
	CodeInvariantViolation Code = "invariant_violation"
	CodeInternal           Code = "internal_error"
)

// Verification workflow codes.
const (
	CodeInvalidTransition     Code = "invalid_transition"
	CodeEvidenceMissing       Code = "evidence_missing"
	CodeApprovalRequired      Code = "approval_required"
	CodeSelfApproval          Code = "self_approval"
	CodeAlreadyApproved       Code = "already_approved"
	CodeImmutableCase         Code = "immutable_case"
	CodeIncompleteChecks      Code = "incomplete_checks"
	CodeAlreadyClosed         Code = "already_closed"
	CodeIntegrityMismatch     Code = "integrity_mismatch"
	CodeUnknownDiscrepancy    Code = "unknown_discrepancy"
	CodeNotificationFailed    Code = "notification_failed"
	CodeMisconfiguredWorkflow Code = "misconfigured_workflow"
)

// Error is a domain error carrying a Code, a client-safe message and optional
// structured details (allowed transitions, missing document types, ...).
type Error struct {
	Code    Code
	Message string
	Details map[string]any
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.cause
}

// New creates a domain error with the given code and message.
func New(code Code, msg string) *Error {
	return &Error{Code: code, Message: msg}
}

// Newf creates a domain error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying cause.
// A nil cause yields a plain domain error.
func Wrap(err error, code Code, msg string) *Error {
	return &Error{Code: code, Message: msg, cause: err}
}

// WithDetail returns the error with a detail entry added. The receiver is modified.
func (e *Error) WithDetail(key string, value any) *Error {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// As extracts the outermost *Error from an error chain.
func As(err error) (*Error, bool) {
	var de *Error
	if errors.As(err, &de) {
		return de, true
	}
	return nil, false
}

// HasCode reports whether any *Error in the chain carries the given code.
func HasCode(err error, code Code) bool {
	for err != nil {
		var de *Error
		if !errors.As(err, &de) {
			return false
		}
		if de.Code == code {
			return true
		}
		err = de.cause
	}
	return false
}

// CodeOf returns the code of the outermost *Error, or CodeInternal.
func CodeOf(err error) Code {
	if de, ok := As(err); ok {
		return de.Code
	}
	return CodeInternal
}

// Is is errors.Is, re-exported so callers need a single import.
func Is(err, target error) bool {
	return errors.Is(err, target)
}
