// Package apperr defines the typed errors returned by the convention engine.
// Every business-rule violation is reported as an *Error carrying a Code so
// callers can render a precise message or decide to retry.
package apperr

import (
	"errors"
	"fmt"
	"strings"
)

// Code classifies a failure.
type Code string

const (
	CodeInvalidTransition      Code = "invalid_transition"
	CodePlafondExceeded        Code = "plafond_exceeded"
	CodeIncompleteImputation   Code = "incomplete_imputation"
	CodeImputationMismatch     Code = "imputation_mismatch"
	CodeConcurrentModification Code = "concurrent_modification"
	CodeValidationRequired     Code = "validation_required"
	CodeNotFound               Code = "not_found"
	CodeNotImplemented         Code = "not_implemented"
	CodeConflict               Code = "conflict"
	CodeInternal               Code = "internal"
)

// Error is the canonical engine error.
type Error struct {
	Code    Code
	Op      string
	Message string
	// Details carries per-field information (violations, missing dimensions...).
	Details map[string]string
	Cause   error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	op := strings.TrimSpace(e.Op)
	msg := strings.TrimSpace(e.Message)
	switch {
	case op != "" && msg != "":
		return fmt.Sprintf("%s: %s (%s)", op, msg, e.Code)
	case op != "":
		return fmt.Sprintf("%s (%s)", op, e.Code)
	case msg != "":
		return fmt.Sprintf("%s (%s)", msg, e.Code)
	default:
		return string(e.Code)
	}
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds an error with explicit code and operation.
func New(code Code, op, message string) error {
	return &Error{Code: code, Op: strings.TrimSpace(op), Message: strings.TrimSpace(message)}
}

// Newf is New with a formatted message.
func Newf(code Code, op, format string, args ...any) error {
	return New(code, op, fmt.Sprintf(format, args...))
}

// WithDetails builds an error carrying per-field details.
func WithDetails(code Code, op, message string, details map[string]string) error {
	return &Error{Code: code, Op: strings.TrimSpace(op), Message: strings.TrimSpace(message), Details: details}
}

// Wrap annotates err with a code. An err that already carries a code keeps it.
func Wrap(code Code, op string, err error) error {
	if err == nil {
		return nil
	}
	var existing *Error
	if errors.As(err, &existing) {
		return err
	}
	return &Error{Code: code, Op: strings.TrimSpace(op), Message: err.Error(), Cause: err}
}

// IsCode reports whether err (or a wrapped error) carries code.
func IsCode(err error, code Code) bool {
	return CodeOf(err) == code
}

// CodeOf extracts the code, or "" when err is not an *Error.
func CodeOf(err error) Code {
	var e *Error
	if !errors.As(err, &e) {
		return ""
	}
	return e.Code
}

// DetailsOf returns the details attached to err, if any.
func DetailsOf(err error) map[string]string {
	var e *Error
	if !errors.As(err, &e) {
		return nil
	}
	return e.Details
}

// Retryable reports whether the caller may transparently re-fetch and retry.
func Retryable(err error) bool {
	return IsCode(err, CodeConcurrentModification)
}

// Shorthands used across services.

func InvalidTransition(op string, from, action string) error {
	return Newf(CodeInvalidTransition, op, "%s not permitted from status %s", action, from)
}

func NotFound(op, entity string, id uint) error {
	return Newf(CodeNotFound, op, "%s %d not found", entity, id)
}

func Required(op, field string) error {
	return WithDetails(CodeValidationRequired, op, field+" is required", map[string]string{field: "required"})
}

func Concurrent(op, message string) error {
	return New(CodeConcurrentModification, op, message)
}
