package engine

import (
	"errors"
	"fmt"
)

// Error represents a rejected engine operation.
//
// Every precondition failure leaves engine state untouched: there is no
// partial confirmation and no partial execution marking.
//
// Errors compare by Code under errors.Is, so callers can match against the
// sentinel values below regardless of the identifiers carried:
//
//	if errors.Is(err, engine.ErrAlreadyConfirmed) { ... }
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// ActionID identifies the affected action, or -1 when not applicable.
	ActionID ActionID

	// Owner identifies the principal that issued the call, if any.
	Owner OwnerID
}

// ErrorCode categorizes engine errors.
type ErrorCode string

const (
	// ErrCodeInvalidConfiguration indicates bad constructor input. Fatal.
	ErrCodeInvalidConfiguration ErrorCode = "INVALID_CONFIGURATION"

	// ErrCodeUnauthorized indicates the caller is not a registered owner.
	ErrCodeUnauthorized ErrorCode = "UNAUTHORIZED"

	// ErrCodeUnknownAction indicates the referenced id was never submitted.
	ErrCodeUnknownAction ErrorCode = "UNKNOWN_ACTION"

	// ErrCodeAlreadyConfirmed indicates a repeated confirm without a revoke.
	ErrCodeAlreadyConfirmed ErrorCode = "ALREADY_CONFIRMED"

	// ErrCodeNotConfirmed indicates a revoke without a standing confirmation.
	ErrCodeNotConfirmed ErrorCode = "NOT_CONFIRMED"

	// ErrCodeInvalidAmount indicates a negative transfer or deposit amount.
	ErrCodeInvalidAmount ErrorCode = "INVALID_AMOUNT"

	// ErrCodeReplayMismatch indicates an event log that cannot have been
	// produced by this engine configuration.
	ErrCodeReplayMismatch ErrorCode = "REPLAY_MISMATCH"
)

// Sentinels for errors.Is matching.
var (
	ErrInvalidConfiguration = &Error{Code: ErrCodeInvalidConfiguration, ActionID: -1}
	ErrUnauthorized         = &Error{Code: ErrCodeUnauthorized, ActionID: -1}
	ErrUnknownAction        = &Error{Code: ErrCodeUnknownAction, ActionID: -1}
	ErrAlreadyConfirmed     = &Error{Code: ErrCodeAlreadyConfirmed, ActionID: -1}
	ErrNotConfirmed         = &Error{Code: ErrCodeNotConfirmed, ActionID: -1}
	ErrInvalidAmount        = &Error{Code: ErrCodeInvalidAmount, ActionID: -1}
	ErrReplayMismatch       = &Error{Code: ErrCodeReplayMismatch, ActionID: -1}
)

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = "engine error"
	}
	switch {
	case e.ActionID >= 0 && e.Owner != "":
		return fmt.Sprintf("%s: %s (action=%d, owner=%s)", e.Code, msg, e.ActionID, e.Owner)
	case e.ActionID >= 0:
		return fmt.Sprintf("%s: %s (action=%d)", e.Code, msg, e.ActionID)
	case e.Owner != "":
		return fmt.Sprintf("%s: %s (owner=%s)", e.Code, msg, e.Owner)
	}
	return fmt.Sprintf("%s: %s", e.Code, msg)
}

// Is reports whether target is an *Error with the same code.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// CodeOf returns the ErrorCode of err, or "" if err is not an engine error.
// Uses errors.As to handle wrapped errors.
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

func newInvalidConfiguration(format string, args ...any) *Error {
	return &Error{
		Code:     ErrCodeInvalidConfiguration,
		Message:  fmt.Sprintf(format, args...),
		ActionID: -1,
	}
}

func newUnauthorized(id ActionID, owner OwnerID) *Error {
	return &Error{
		Code:     ErrCodeUnauthorized,
		Message:  "caller is not a registered owner",
		ActionID: id,
		Owner:    owner,
	}
}

func newUnknownAction(id ActionID) *Error {
	return &Error{
		Code:     ErrCodeUnknownAction,
		Message:  "action was never submitted",
		ActionID: id,
	}
}

func newAlreadyConfirmed(id ActionID, owner OwnerID) *Error {
	return &Error{
		Code:     ErrCodeAlreadyConfirmed,
		Message:  "owner has already confirmed this action",
		ActionID: id,
		Owner:    owner,
	}
}

func newNotConfirmed(id ActionID, owner OwnerID) *Error {
	return &Error{
		Code:     ErrCodeNotConfirmed,
		Message:  "owner has not confirmed this action",
		ActionID: id,
		Owner:    owner,
	}
}

func newInvalidAmount(what string) *Error {
	return &Error{
		Code:     ErrCodeInvalidAmount,
		Message:  what + " must not be negative",
		ActionID: -1,
	}
}

func newReplayMismatch(seq int64, format string, args ...any) *Error {
	return &Error{
		Code:     ErrCodeReplayMismatch,
		Message:  fmt.Sprintf("seq %d: ", seq) + fmt.Sprintf(format, args...),
		ActionID: -1,
	}
}

// ExecutionError wraps a failure returned by the Action Executor.
//
// It is recoverable: the action returns to the proposed state and any later
// confirm or revoke re-attempts execution.
type ExecutionError struct {
	ActionID ActionID
	Err      error
}

// Error implements the error interface.
func (e *ExecutionError) Error() string {
	return fmt.Sprintf("execution of action %d failed: %v", e.ActionID, e.Err)
}

// Unwrap returns the executor's error.
func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// IsExecutionError returns true if err is or wraps an *ExecutionError.
func IsExecutionError(err error) bool {
	var ee *ExecutionError
	return errors.As(err, &ee)
}
