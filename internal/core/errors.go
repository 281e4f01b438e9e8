package core

import (
	"errors"
	"fmt"
)

// Code classifies an error for transport mapping and retry decisions.
type Code string

const (
	CodeValidation      Code = "validation"
	CodeNotFound        Code = "not_found"
	CodeInvalidRequest  Code = "invalid_request"
	CodeCommunication   Code = "communication"
	CodeOfflineRecovery Code = "offline_recovery"
	CodeInternal        Code = "internal"
)

// Error is the domain error type. Two errors match under errors.Is when
// their codes are equal.
type Error struct {
	Code    Code
	Message string
	Cause   error
}

// Sentinels for errors.Is checks.
var (
	ErrValidation      = &Error{Code: CodeValidation}
	ErrNotFound        = &Error{Code: CodeNotFound}
	ErrInvalidRequest  = &Error{Code: CodeInvalidRequest}
	ErrCommunication   = &Error{Code: CodeCommunication}
	ErrOfflineRecovery = &Error{Code: CodeOfflineRecovery}
	ErrInternal        = &Error{Code: CodeInternal}
)

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Code)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error by code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// NewError creates a domain error with a formatted message.
func NewError(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WrapError creates a domain error around an underlying cause.
func WrapError(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// Validationf, NotFoundf and InvalidRequestf are shorthands for the
// codes raised by the engine itself.
func Validationf(format string, args ...any) *Error {
	return NewError(CodeValidation, format, args...)
}

func NotFoundf(format string, args ...any) *Error {
	return NewError(CodeNotFound, format, args...)
}

func InvalidRequestf(format string, args ...any) *Error {
	return NewError(CodeInvalidRequest, format, args...)
}

// CodeOf returns the code of the first domain error in err's chain, or
// CodeInternal for anything else.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}
