// Package errors provides standardized domain errors with codes for the Harmonia API.
//
// Usage:
//
//	// In services - return typed errors
//	if stderrMentionsCookies {
//	    return errors.ExpiredCredentials("cookies are expired or invalid")
//	}
//
//	// In handlers - check with errors.Is
//	if errors.Is(err, errors.ErrContentUnavailable) {
//	    response.HandleError(w, err, logger)
//	    return
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
const (
	CodeNotFound            Code = "NOT_FOUND"
	CodeValidation          Code = "VALIDATION"
	CodeConflict            Code = "CONFLICT"
	CodeInternal            Code = "INTERNAL"
	CodeExpiredCredentials  Code = "EXPIRED_CREDENTIALS"
	CodeContentUnavailable  Code = "CONTENT_UNAVAILABLE"
	CodeExtractionFailed    Code = "EXTRACTION_FAILED"
	CodeUnsupportedFormat   Code = "UNSUPPORTED_FORMAT"
	CodeProviderUnavailable Code = "PROVIDER_UNAVAILABLE"
)

// HTTPStatus returns the appropriate HTTP status code for an error code.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeNotFound:
		return http.StatusNotFound
	case CodeValidation, CodeUnsupportedFormat:
		return http.StatusBadRequest
	case CodeConflict:
		return http.StatusConflict
	case CodeExpiredCredentials:
		return http.StatusUnauthorized
	case CodeContentUnavailable:
		return http.StatusUnprocessableEntity
	case CodeProviderUnavailable:
		return http.StatusServiceUnavailable
	case CodeExtractionFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Error is a domain error with a code, message, and optional details.
type Error struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
	cause   error  // unexported, for wrapping
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

// WithCause wraps an underlying error.
func (e *Error) WithCause(err error) *Error {
	return &Error{
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
		cause:   err,
	}
}

// WithDetails returns a new error with additional details.
func (e *Error) WithDetails(details any) *Error {
	return &Error{
		Code:    e.Code,
		Message: e.Message,
		Details: details,
		cause:   e.cause,
	}
}

// Sentinel errors for use with errors.Is().
var (
	ErrNotFound            = &Error{Code: CodeNotFound, Message: "not found"}
	ErrValidation          = &Error{Code: CodeValidation, Message: "validation error"}
	ErrConflict            = &Error{Code: CodeConflict, Message: "conflict"}
	ErrInternal            = &Error{Code: CodeInternal, Message: "internal error"}
	ErrExpiredCredentials  = &Error{Code: CodeExpiredCredentials, Message: "credentials expired"}
	ErrContentUnavailable  = &Error{Code: CodeContentUnavailable, Message: "content unavailable"}
	ErrExtractionFailed    = &Error{Code: CodeExtractionFailed, Message: "extraction failed"}
	ErrUnsupportedFormat   = &Error{Code: CodeUnsupportedFormat, Message: "unsupported format"}
	ErrProviderUnavailable = &Error{Code: CodeProviderUnavailable, Message: "provider unavailable"}
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

// Validation creates a validation error.
func Validation(msg string) *Error {
	return &Error{Code: CodeValidation, Message: msg}
}

// Validationf creates a validation error with formatted message.
func Validationf(format string, args ...any) *Error {
	return &Error{Code: CodeValidation, Message: fmt.Sprintf(format, args...)}
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

// ExpiredCredentials creates an expired credentials error.
// Used when an extraction tool reports that stored cookies or tokens no
// longer authenticate against the upstream service.
func ExpiredCredentials(msg string) *Error {
	return &Error{Code: CodeExpiredCredentials, Message: msg}
}

// ContentUnavailable creates a content unavailable error (private or removed upstream media).
func ContentUnavailable(msg string) *Error {
	return &Error{Code: CodeContentUnavailable, Message: msg}
}

// ExtractionFailed creates an extraction failure error.
func ExtractionFailed(msg string) *Error {
	return &Error{Code: CodeExtractionFailed, Message: msg}
}

// ExtractionFailedf creates an extraction failure error with formatted message.
func ExtractionFailedf(format string, args ...any) *Error {
	return &Error{Code: CodeExtractionFailed, Message: fmt.Sprintf(format, args...)}
}

// UnsupportedFormat creates an unsupported format error.
func UnsupportedFormat(msg string) *Error {
	return &Error{Code: CodeUnsupportedFormat, Message: msg}
}

// ProviderUnavailable creates a provider unavailable error.
func ProviderUnavailable(msg string) *Error {
	return &Error{Code: CodeProviderUnavailable, Message: msg}
}

// Wrap wraps an error with a code and message.
func Wrap(err error, code Code, msg string) *Error {
	return &Error{Code: code, Message: msg, cause: err}
}

// Wrapf wraps an error with a code and formatted message.
func Wrapf(err error, code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), cause: err}
}
