// Package errors provides standardized domain errors with codes for the VoxBook server.
//
// Usage:
//
//	// In services - return typed errors
//	if paragraphs == 0 {
//	    return errors.NoContent("chapter has no text to analyze")
//	}
//
//	// In callers - check with errors.Is against sentinels
//	if errors.Is(err, errors.ErrCancelled) {
//	    return result, nil // cancellation is not a retry case
//	}
//
//	// Or switch on the Code directly
//	var domainErr *errors.Error
//	if errors.As(err, &domainErr) {
//	    switch domainErr.Code {
//	    case errors.CodeModelUnavailable:
//	        // queue retries later
//	    case errors.CodeNoContent:
//	        // benign: nothing to analyze
//	    }
//	}
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Re-export standard library functions for convenience.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	Join   = errors.Join
)

// Code represents a machine-readable error code.
type Code string

// Error codes used throughout the application.
//
// The analysis pipeline codes map the failure taxonomy of chapter analysis:
// model_unavailable and batch_failed are transient (retryable), no_content,
// cancelled, and checkpoint_corrupt are terminal for the current attempt.
const (
	CodeNotFound      Code = "NOT_FOUND"
	CodeAlreadyExists Code = "ALREADY_EXISTS"
	CodeValidation    Code = "VALIDATION"
	CodeConflict      Code = "CONFLICT"
	CodeInternal      Code = "INTERNAL"

	CodeModelUnavailable  Code = "MODEL_UNAVAILABLE"
	CodeNoContent         Code = "NO_CONTENT"
	CodeCancelled         Code = "CANCELLED"
	CodeBatchFailed       Code = "BATCH_FAILED"
	CodeCheckpointCorrupt Code = "CHECKPOINT_CORRUPT"
)

// HTTPStatus returns the appropriate HTTP status code for an error code.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeNotFound:
		return http.StatusNotFound
	case CodeAlreadyExists, CodeConflict:
		return http.StatusConflict
	case CodeValidation, CodeNoContent:
		return http.StatusBadRequest
	case CodeCancelled:
		return http.StatusConflict
	case CodeModelUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Error is a domain error with a code, message, and optional details.
// Retryable marks conditions a caller may reasonably try again later;
// it is part of the error contract, not a hint.
type Error struct {
	Code      Code   `json:"code"`
	Message   string `json:"message"`
	Details   any    `json:"details,omitempty"`
	Retryable bool   `json:"retryable,omitempty"`
	cause     error  // unexported, for wrapping
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.cause)
	}
	return e.Message
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.cause
}

// Is reports whether target matches this error.
// Matches if target is an *Error with the same Code.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Code == t.Code
	}
	return false
}

// HTTPStatus returns the HTTP status code for this error.
func (e *Error) HTTPStatus() int {
	return e.Code.HTTPStatus()
}

// WithDetails returns a new error with additional details.
func (e *Error) WithDetails(details any) *Error {
	return &Error{
		Code:      e.Code,
		Message:   e.Message,
		Details:   details,
		Retryable: e.Retryable,
		cause:     e.cause,
	}
}

// WithCause wraps an underlying error.
func (e *Error) WithCause(err error) *Error {
	return &Error{
		Code:      e.Code,
		Message:   e.Message,
		Details:   e.Details,
		Retryable: e.Retryable,
		cause:     err,
	}
}

// IsRetryable reports whether err carries a retryable domain error.
// Non-domain errors are not retryable.
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable
	}
	return false
}

// CodeOf extracts the domain code from err, or CodeInternal for foreign errors.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// Sentinel errors for use with errors.Is().
var (
	ErrNotFound      = &Error{Code: CodeNotFound, Message: "not found"}
	ErrAlreadyExists = &Error{Code: CodeAlreadyExists, Message: "already exists"}
	ErrValidation    = &Error{Code: CodeValidation, Message: "validation error"}
	ErrConflict      = &Error{Code: CodeConflict, Message: "conflict"}
	ErrInternal      = &Error{Code: CodeInternal, Message: "internal error"}

	ErrModelUnavailable  = &Error{Code: CodeModelUnavailable, Message: "language model unavailable", Retryable: true}
	ErrNoContent         = &Error{Code: CodeNoContent, Message: "no content to analyze"}
	ErrCancelled         = &Error{Code: CodeCancelled, Message: "cancelled"}
	ErrBatchFailed       = &Error{Code: CodeBatchFailed, Message: "batch processing failed", Retryable: true}
	ErrCheckpointCorrupt = &Error{Code: CodeCheckpointCorrupt, Message: "checkpoint corrupt"}
)

// Constructor functions for creating errors with custom messages.

// NotFound creates a not found error.
func NotFound(msg string) *Error {
	return &Error{Code: CodeNotFound, Message: msg}
}

// NotFoundf creates a not found error with formatted message.
func NotFoundf(format string, args ...any) *Error {
	return &Error{Code: CodeNotFound, Message: fmt.Sprintf(format, args...)}
}

// AlreadyExists creates an already exists error.
func AlreadyExists(msg string) *Error {
	return &Error{Code: CodeAlreadyExists, Message: msg}
}

// Validation creates a validation error.
func Validation(msg string) *Error {
	return &Error{Code: CodeValidation, Message: msg}
}

// Validationf creates a validation error with formatted message.
func Validationf(format string, args ...any) *Error {
	return &Error{Code: CodeValidation, Message: fmt.Sprintf(format, args...)}
}

// ValidationWithDetails creates a validation error with details.
func ValidationWithDetails(msg string, details any) *Error {
	return &Error{Code: CodeValidation, Message: msg, Details: details}
}

// Conflict creates a conflict error.
func Conflict(msg string) *Error {
	return &Error{Code: CodeConflict, Message: msg}
}

// Internal creates an internal error.
func Internal(msg string) *Error {
	return &Error{Code: CodeInternal, Message: msg}
}

// Internalf creates an internal error with formatted message.
func Internalf(format string, args ...any) *Error {
	return &Error{Code: CodeInternal, Message: fmt.Sprintf(format, args...)}
}

// ModelUnavailable creates a model unavailable error. Retryable.
func ModelUnavailable(msg string) *Error {
	return &Error{Code: CodeModelUnavailable, Message: msg, Retryable: true}
}

// NoContent creates a no-content error. Not retryable: the chapter is empty.
func NoContent(msg string) *Error {
	return &Error{Code: CodeNoContent, Message: msg}
}

// Cancelled creates a cancellation error. Callers must not treat this as a
// failure needing retry.
func Cancelled(msg string) *Error {
	return &Error{Code: CodeCancelled, Message: msg}
}

// BatchFailed creates a batch processing error. Retryable on a later run.
func BatchFailed(msg string) *Error {
	return &Error{Code: CodeBatchFailed, Message: msg, Retryable: true}
}

// BatchFailedf creates a batch processing error with formatted message.
func BatchFailedf(format string, args ...any) *Error {
	return &Error{Code: CodeBatchFailed, Message: fmt.Sprintf(format, args...), Retryable: true}
}

// CheckpointCorrupt creates a checkpoint corruption error. The pipeline treats
// corrupt checkpoints as absent, so this surfaces only in logs and inspection
// tooling.
func CheckpointCorrupt(msg string) *Error {
	return &Error{Code: CodeCheckpointCorrupt, Message: msg}
}

// Wrap wraps an error with a code and message.
func Wrap(err error, code Code, msg string) *Error {
	return &Error{Code: code, Message: msg, cause: err}
}

// Wrapf wraps an error with a code and formatted message.
func Wrapf(err error, code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), cause: err}
}
