package escrow

import (
	"errors"
	"fmt"
)

// Code is the machine-readable category of an escrow error.
type Code string

const (
	CodeUnauthorized          Code = "unauthorized"
	CodeNotFound              Code = "not_found"
	CodeInvalidInput          Code = "invalid_input"
	CodeInvalidState          Code = "invalid_state"
	CodeAlreadyFunded         Code = "already_funded"
	CodeObjectiveNotFunded    Code = "objective_not_funded"
	CodeAlreadyCompleted      Code = "already_completed"
	CodeInsufficientFunds     Code = "insufficient_funds"
	CodeInsufficientAllowance Code = "insufficient_allowance"
	CodeIncompleteObjectives  Code = "incomplete_objectives"
	CodeInternal              Code = "internal"
)

// Error is the error type returned by every engine operation.
type Error struct {
	Code    Code
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches any *Error carrying the same code, so errors.Is(err, ErrNotFound)
// works for every not-found error regardless of message.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// New creates an error with a code and message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap creates an error with a code that wraps an underlying cause.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

func errorf(code Code, format string, args ...any) *Error {
	return New(code, fmt.Sprintf(format, args...))
}

// Sentinels for errors.Is comparisons.
var (
	ErrUnauthorized          = New(CodeUnauthorized, "unauthorized")
	ErrNotFound              = New(CodeNotFound, "not found")
	ErrInvalidInput          = New(CodeInvalidInput, "invalid input")
	ErrInvalidState          = New(CodeInvalidState, "invalid state")
	ErrAlreadyFunded         = New(CodeAlreadyFunded, "objective already funded")
	ErrObjectiveNotFunded    = New(CodeObjectiveNotFunded, "objective not funded")
	ErrAlreadyCompleted      = New(CodeAlreadyCompleted, "objective already completed")
	ErrInsufficientFunds     = New(CodeInsufficientFunds, "insufficient funds")
	ErrInsufficientAllowance = New(CodeInsufficientAllowance, "insufficient allowance")
	ErrIncompleteObjectives  = New(CodeIncompleteObjectives, "not all objectives are completed")
	ErrInternal              = New(CodeInternal, "internal error")

	// ErrProjectNotFound is returned by stores when no record exists for an id.
	ErrProjectNotFound = New(CodeNotFound, "project not found")
)

// CodeOf returns the code carried by err, CodeInternal for foreign errors and
// the empty code for nil.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}
