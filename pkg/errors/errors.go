package errors

import (
	"errors"
	"fmt"
)

// ErrorCode represents a unique error code
type ErrorCode int

// AppError represents an application error
type AppError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Err     error     `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Common error codes
const (
	ErrNotFound ErrorCode = iota + 1000
	ErrBadRequest
	ErrUnauthorized
	ErrForbidden
	ErrInternal
	ErrConflict
)

// Structural input error codes. These mark upstream data that violates a
// stated precondition (broken reference table, unparseable date) as opposed
// to legitimately missing values, which are never errors.
const (
	ErrDuplicateAnchor ErrorCode = iota + 2000
	ErrMalformedDate
	ErrUnknownField
)

// Error constructors
func NewNotFound(resource string, err error) *AppError {
	return &AppError{
		Code:    ErrNotFound,
		Message: fmt.Sprintf("%s not found", resource),
		Err:     err,
	}
}

func NewBadRequest(message string, err error) *AppError {
	return &AppError{
		Code:    ErrBadRequest,
		Message: message,
		Err:     err,
	}
}

func NewInternal(err error) *AppError {
	return &AppError{
		Code:    ErrInternal,
		Message: "internal server error",
		Err:     err,
	}
}

func NewConflict(message string, err error) *AppError {
	return &AppError{
		Code:    ErrConflict,
		Message: message,
		Err:     err,
	}
}

// Common errors
func NotFound(resource string, err error) *AppError {
	return NewNotFound(resource, err)
}

func BadRequest(message string, err error) *AppError {
	return NewBadRequest(message, err)
}

func Internal(err error) *AppError {
	return NewInternal(err)
}

func Unauthorized(err error) *AppError {
	return &AppError{
		Code:    ErrUnauthorized,
		Message: "unauthorized",
		Err:     err,
	}
}

// DuplicateAnchor reports more than one reference-date row for a subject.
func DuplicateAnchor(subjectID string) *AppError {
	return &AppError{
		Code:    ErrDuplicateAnchor,
		Message: fmt.Sprintf("duplicate reference anchor for subject %s", subjectID),
	}
}

// MalformedDate reports a date string the mapping layer could not parse.
func MalformedDate(field, raw string, err error) *AppError {
	return &AppError{
		Code:    ErrMalformedDate,
		Message: fmt.Sprintf("malformed date in %s: %q", field, raw),
		Err:     err,
	}
}

// IsStructural reports whether err is a structural input error, i.e. a
// precondition violation rather than missing data or an infrastructure fault.
func IsStructural(err error) bool {
	var appErr *AppError
	if !errors.As(err, &appErr) {
		return false
	}
	return appErr.Code >= ErrDuplicateAnchor && appErr.Code <= ErrUnknownField
}
