// Package errs defines the error taxonomy surfaced by the HTTP API.
package errs

import (
	"errors"
	"net/http"
)

// Codes returned in the error envelope.
const (
	CodeUnauthorized       = "UNAUTHORIZED"
	CodeForbidden          = "FORBIDDEN"
	CodeValidation         = "VALIDATION_ERROR"
	CodeInvalidRequest     = "INVALID_REQUEST"
	CodeNotFound           = "NOT_FOUND"
	CodeDuplicateEntry     = "DUPLICATE_ENTRY"
	CodeInvalidCredentials = "INVALID_CREDENTIALS"
	CodeInvalidToken       = "INVALID_TOKEN"
	CodeTokenExpired       = "TOKEN_EXPIRED"
	CodeRateLimited        = "RATE_LIMITED"
	CodeInternal           = "INTERNAL_ERROR"
)

// FieldError describes one invalid input field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Error is a classified API error.
type Error struct {
	Code    string
	Message string
	Details []FieldError
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Code + ": " + e.Message + ": " + e.Err.Error()
	}
	return e.Code + ": " + e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Status maps the error code to an HTTP status.
func (e *Error) Status() int {
	return StatusForCode(e.Code)
}

// StatusForCode maps a code to its HTTP status; unknown codes are 500.
func StatusForCode(code string) int {
	switch code {
	case CodeUnauthorized, CodeInvalidCredentials:
		return http.StatusUnauthorized
	case CodeForbidden:
		return http.StatusForbidden
	case CodeValidation, CodeInvalidRequest, CodeInvalidToken, CodeTokenExpired:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodeDuplicateEntry:
		return http.StatusConflict
	case CodeRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// New builds an Error with the given code and message.
func New(code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Unauthorized reports a missing or invalid session.
func Unauthorized(message string) *Error {
	if message == "" {
		message = "Authentication required"
	}
	return New(CodeUnauthorized, message)
}

// Forbidden reports a valid session without sufficient rights.
func Forbidden(message string) *Error {
	if message == "" {
		message = "Insufficient permissions"
	}
	return New(CodeForbidden, message)
}

// Validation reports malformed input with optional field details.
func Validation(message string, details ...FieldError) *Error {
	if message == "" {
		message = "Invalid input data"
	}
	return &Error{Code: CodeValidation, Message: message, Details: details}
}

// InvalidRequest reports a request that is well formed but not acceptable.
func InvalidRequest(message string) *Error {
	return New(CodeInvalidRequest, message)
}

// NotFound reports a missing entity.
func NotFound(message string) *Error {
	if message == "" {
		message = "Record not found"
	}
	return New(CodeNotFound, message)
}

// DuplicateEntry reports a uniqueness violation.
func DuplicateEntry(err error) *Error {
	return &Error{Code: CodeDuplicateEntry, Message: "A record with this data already exists", Err: err}
}

// InvalidCredentials is the single failure returned for every login miss.
func InvalidCredentials() *Error {
	return New(CodeInvalidCredentials, "Invalid email or password")
}

// InvalidToken reports an unknown, malformed or mismatched token.
func InvalidToken(message string) *Error {
	if message == "" {
		message = "Invalid or expired token"
	}
	return New(CodeInvalidToken, message)
}

// TokenExpired reports a token whose validity window has passed.
func TokenExpired() *Error {
	return New(CodeTokenExpired, "Token has expired")
}

// RateLimited reports a throttled request.
func RateLimited() *Error {
	return New(CodeRateLimited, "Too many requests, try again later")
}

// Internal wraps an unexpected failure; the cause is never sent to clients.
func Internal(err error) *Error {
	return &Error{Code: CodeInternal, Message: "An unexpected error occurred", Err: err}
}

// As extracts an *Error from err.
func As(err error) (*Error, bool) {
	var target *Error
	if errors.As(err, &target) {
		return target, true
	}
	return nil, false
}

// CodeOf returns the taxonomy code of err, or CodeInternal.
func CodeOf(err error) string {
	if e, ok := As(err); ok {
		return e.Code
	}
	return CodeInternal
}
