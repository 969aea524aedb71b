package wallet

import (
	"fmt"

	"github.com/m3rciful/cmdbot/core/apperr"
)

var (
	// ErrNoPendingTransaction is returned when there is no load to verify.
	ErrNoPendingTransaction = apperr.New(apperr.KindState, apperr.CodeNoPendingTransaction, "No pending transaction found")
	// ErrInvalidBankCode is returned for bank codes that are not configured.
	ErrInvalidBankCode = apperr.New(apperr.KindState, apperr.CodeInvalidBankCode, "Invalid bank code")
	// ErrInvalidAmount is returned for non-positive amounts.
	ErrInvalidAmount = apperr.New(apperr.KindValidation, apperr.CodeInvalidArguments, "Please enter a valid amount greater than 0")
	// ErrAmountTooLarge is returned for amounts above the configured cap.
	ErrAmountTooLarge = apperr.New(apperr.KindValidation, apperr.CodeInvalidArguments, "Amount exceeds the allowed limit")
	// ErrInvalidNumber is returned for recipient numbers outside ^9\d{9}$.
	ErrInvalidNumber = apperr.New(apperr.KindValidation, apperr.CodeInvalidArguments, "Invalid phone number format. Please enter a valid 10-digit number starting with 9")
)

// GatewayError is a gateway call that failed for a reason other than a
// domain rejection. Message is safe to show to the user.
type GatewayError struct {
	Op      string
	Message string
	Err     error
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("wallet: %s: %s: %v", e.Op, e.Message, e.Err)
}

func (e *GatewayError) Unwrap() error { return e.Err }

func (e *GatewayError) Kind() apperr.Kind   { return apperr.KindExternal }
func (e *GatewayError) Code() string        { return string(apperr.CodeGateway) }
func (e *GatewayError) UserMessage() string { return e.Message }

// OTPVerificationError is a verification rejected by the gateway. The
// pending transaction is kept so the user can retry.
type OTPVerificationError struct {
	Message string
	Err     error
}

func (e *OTPVerificationError) Error() string {
	return fmt.Sprintf("wallet: otp verification: %s: %v", e.Message, e.Err)
}

func (e *OTPVerificationError) Unwrap() error { return e.Err }

func (e *OTPVerificationError) Kind() apperr.Kind   { return apperr.KindState }
func (e *OTPVerificationError) Code() string        { return string(apperr.CodeOTPVerification) }
func (e *OTPVerificationError) UserMessage() string { return e.Message }

// TransferRejectedError carries the gateway's field-level validation message.
type TransferRejectedError struct {
	Message string
	Err     error
}

func (e *TransferRejectedError) Error() string {
	return fmt.Sprintf("wallet: transfer rejected: %s: %v", e.Message, e.Err)
}

func (e *TransferRejectedError) Unwrap() error { return e.Err }

func (e *TransferRejectedError) Kind() apperr.Kind   { return apperr.KindState }
func (e *TransferRejectedError) Code() string        { return string(apperr.CodeTransferRejected) }
func (e *TransferRejectedError) UserMessage() string { return e.Message }
