package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Standard error types
var (
	ErrTransport     = errors.New("transport failure")
	ErrBusiness      = errors.New("business rejection")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrForbidden     = errors.New("forbidden")
	ErrNotFound      = errors.New("resource not found")
	ErrBadRequest    = errors.New("bad request")
	ErrInternal      = errors.New("internal server error")
	ErrValidation    = errors.New("validation error")
	ErrShapeMismatch = errors.New("unexpected response shape")
)

// AppError represents a failed API interaction with enough context for a
// front-end to render it.
type AppError struct {
	Err        error             `json:"-"`
	Message    string            `json:"message"`
	Code       string            `json:"code"`
	StatusCode int               `json:"status_code,omitempty"`
	// EnvelopeCode is the `code` field of a business-error envelope.
	EnvelopeCode int               `json:"envelope_code,omitempty"`
	Details      map[string]string `json:"details,omitempty"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error
func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError
func New(code string, message string, statusCode int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
	}
}

// Wrap wraps an error with additional context
func Wrap(err error, code string, message string, statusCode int) *AppError {
	return &AppError{
		Err:        err,
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
	}
}

// Common error constructors

// Transport reports a failure to reach the server or to read its response.
func Transport(err error) *AppError {
	message := "network failure"
	wrapped := ErrTransport
	if err != nil {
		message = err.Error()
		wrapped = fmt.Errorf("%w: %w", ErrTransport, err)
	}
	return &AppError{
		Err:     wrapped,
		Code:    "TRANSPORT_ERROR",
		Message: message,
	}
}

// Business reports an envelope whose code is not the success code.
func Business(envelopeCode int, message string) *AppError {
	if message == "" {
		message = "system error"
	}
	return &AppError{
		Err:          ErrBusiness,
		Code:         "BUSINESS_ERROR",
		Message:      message,
		StatusCode:   http.StatusOK,
		EnvelopeCode: envelopeCode,
	}
}

func Unauthorized(message string) *AppError {
	return &AppError{
		Err:        ErrUnauthorized,
		Code:       "UNAUTHORIZED",
		Message:    message,
		StatusCode: http.StatusUnauthorized,
	}
}

func Forbidden(message string) *AppError {
	return &AppError{
		Err:        ErrForbidden,
		Code:       "FORBIDDEN",
		Message:    message,
		StatusCode: http.StatusForbidden,
	}
}

func NotFound(message string) *AppError {
	return &AppError{
		Err:        ErrNotFound,
		Code:       "NOT_FOUND",
		Message:    message,
		StatusCode: http.StatusNotFound,
	}
}

func BadRequest(message string) *AppError {
	return &AppError{
		Err:        ErrBadRequest,
		Code:       "BAD_REQUEST",
		Message:    message,
		StatusCode: http.StatusBadRequest,
	}
}

func Internal(message string) *AppError {
	return &AppError{
		Err:        ErrInternal,
		Code:       "INTERNAL_ERROR",
		Message:    message,
		StatusCode: http.StatusInternalServerError,
	}
}

func Validation(details map[string]string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Code:    "VALIDATION_ERROR",
		Message: "validation failed",
		Details: details,
	}
}

// ShapeMismatch is logged by stores, never returned from a read path.
func ShapeMismatch(detail string) *AppError {
	return &AppError{
		Err:     ErrShapeMismatch,
		Code:    "SHAPE_MISMATCH",
		Message: detail,
	}
}

// Is checks if the error matches a target error
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As attempts to convert an error to a specific type
func As(err error, target any) bool {
	return errors.As(err, target)
}

// IsUnauthorized reports whether err terminated the session.
func IsUnauthorized(err error) bool {
	return errors.Is(err, ErrUnauthorized)
}
