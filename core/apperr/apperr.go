// Package apperr classifies command failures so the dispatcher can decide
// how to log them and what to tell the user.
package apperr

import (
	"errors"
	"fmt"
	"strings"
)

// Kind groups failures by how they are surfaced.
type Kind int

const (
	// KindUnexpected is anything not classified; logged with detail, generic reply.
	KindUnexpected Kind = iota
	// KindValidation is bad command input; the user gets a correction message.
	KindValidation
	// KindState is a domain precondition failure with a specific user message.
	KindState
	// KindExternal is a collaborator (HTTP API) failure; logged, apology reply.
	KindExternal
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindState:
		return "state"
	case KindExternal:
		return "external"
	default:
		return "unexpected"
	}
}

// Code is a machine-readable error code used in logs.
type Code string

const (
	CodeUnknown              Code = "UNKNOWN"
	CodeInvalidArguments     Code = "INVALID_ARGUMENTS"
	CodeNoPendingTransaction Code = "NO_PENDING_TRANSACTION"
	CodeInvalidBankCode      Code = "INVALID_BANK_CODE"
	CodeOTPVerification      Code = "OTP_VERIFICATION_FAILED"
	CodeTransferRejected     Code = "TRANSFER_REJECTED"
	CodeGateway              Code = "GATEWAY_ERROR"
	CodeUpstream             Code = "UPSTREAM_ERROR"
	CodeReminderNotFound     Code = "REMINDER_NOT_FOUND"
)

// Error is a classified failure carrying the message shown to the user.
type Error struct {
	kind    Kind
	code    Code
	message string
	err     error
}

// New builds a classified error. message is user-facing.
func New(kind Kind, code Code, message string) *Error {
	return &Error{kind: kind, code: code, message: message}
}

// Wrap builds a classified error around a cause.
func Wrap(kind Kind, code Code, message string, err error) *Error {
	return &Error{kind: kind, code: code, message: message, err: err}
}

// Validation reports bad command input with a correction message.
func Validation(format string, args ...any) *Error {
	return New(KindValidation, CodeInvalidArguments, fmt.Sprintf(format, args...))
}

// External reports a collaborator failure; message is the apology shown to the user.
func External(message string, err error) *Error {
	return Wrap(KindExternal, CodeUpstream, message, err)
}

func (e *Error) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %v", e.message, e.err)
	}
	return e.message
}

func (e *Error) Unwrap() error { return e.err }

// Kind reports the failure class.
func (e *Error) Kind() Kind { return e.kind }

// Code is the machine-readable code; see CodeOf.
func (e *Error) Code() string { return string(e.code) }

// UserMessage is the text replied to the sender.
func (e *Error) UserMessage() string { return e.message }

// Classified is implemented by errors that know how they should be surfaced.
type Classified interface {
	error
	Kind() Kind
	UserMessage() string
}

// Classify returns the kind and user message of err, walking the wrap chain.
// Unclassified errors report KindUnexpected and an empty message.
func Classify(err error) (Kind, string) {
	var c Classified
	if errors.As(err, &c) {
		return c.Kind(), c.UserMessage()
	}
	return KindUnexpected, ""
}

// CodeOf returns the first code found in err's wrap chain, or "".
func CodeOf(err error) Code {
	var c interface{ Code() string }
	if errors.As(err, &c) {
		return Code(strings.ToUpper(strings.TrimSpace(c.Code())))
	}
	return ""
}

// Prefix returns err with prefix prepended to its user message, keeping kind
// and code. Unexpected errors and errors without a message are returned as is.
func Prefix(prefix string, err error) error {
	var c Classified
	if !errors.As(err, &c) || c.Kind() == KindUnexpected || c.UserMessage() == "" {
		return err
	}
	code := CodeOf(err)
	if code == "" {
		code = CodeUnknown
	}
	return Wrap(c.Kind(), code, prefix+c.UserMessage(), err)
}
