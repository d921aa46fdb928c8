// Package domainerrors provides coded errors for the escrow domain. Services
// translate store sentinels and validation failures into these so transports
// can map a code to a response without string matching.
package domainerrors

import (
	"errors"
	"fmt"
)

// Code classifies a domain error. Codes are stable; messages are not.
type Code string

const (
	// Generic codes shared across modules.
	CodeValidation         Code = "validation"
	CodeInvalidInput       Code = "invalid_input"
	CodeBadRequest         Code = "bad_request"
	CodeNotFound           Code = "not_found"
	CodeConflict           Code = "conflict"
	CodeForbidden          Code = "forbidden"
	CodeUnauthorized       Code = "unauthorized"
	CodeInternal           Code = "internal"
	CodeInvariantViolation Code = "invariant_violation"

	// Escrow lifecycle codes. These mirror the engine's failure taxonomy:
	// InvalidTransition and FrozenByDispute are not retriable,
	// ConcurrentModification and SettlementFailure are retriable by the
	// caller, PartialSwapFailure requires operator intervention.
	CodeInvalidTransition         Code = "invalid_transition"
	CodeConcurrentModification    Code = "concurrent_modification"
	CodeFrozenByDispute           Code = "frozen_by_dispute"
	CodeInsufficientJustification Code = "insufficient_justification"
	CodeSplitExceedsEscrow        Code = "split_exceeds_escrow"
	CodePartialSwapFailure        Code = "partial_swap_failure"
	CodeSettlementFailure         Code = "settlement_failure"
)

// Error is a coded domain error, optionally wrapping a cause.
type Error struct {
	code Code
	msg  string
	err  error
}

func (e *Error) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %s: %v", e.code, e.msg, e.err)
	}
	return fmt.Sprintf("%s: %s", e.code, e.msg)
}

func (e *Error) Unwrap() error { return e.err }

// Code returns the error's classification code.
func (e *Error) Code() Code { return e.code }

// Message returns the human-readable message without the code prefix or the
// wrapped cause. Safe to expose to API clients.
func (e *Error) Message() string { return e.msg }

// New creates a domain error with the given code and message.
func New(code Code, msg string) error {
	return &Error{code: code, msg: msg}
}

// Newf creates a domain error with a formatted message.
func Newf(code Code, format string, args ...any) error {
	return &Error{code: code, msg: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying error. The cause remains
// reachable via errors.Is/errors.As.
func Wrap(err error, code Code, msg string) error {
	if err == nil {
		return nil
	}
	return &Error{code: code, msg: msg, err: err}
}

// Wrapf is Wrap with a formatted message.
func Wrapf(err error, code Code, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return &Error{code: code, msg: fmt.Sprintf(format, args...), err: err}
}

// HasCode reports whether err (or anything it wraps) carries the given code.
func HasCode(err error, code Code) bool {
	var de *Error
	for ; err != nil; err = errors.Unwrap(err) {
		if errors.As(err, &de) && de.code == code {
			return true
		}
	}
	return false
}

// Is is shorthand for HasCode, matching how handlers branch on outcomes.
func Is(err error, code Code) bool {
	return HasCode(err, code)
}

// CodeOf returns the outermost code carried by err, or CodeInternal when err
// is not a domain error.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.code
	}
	return CodeInternal
}
