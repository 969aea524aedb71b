// Package wallet runs fund loads (initiate, then OTP verify) and transfers
// against an external financial gateway, tracking at most one pending load
// per user.
package wallet

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Gateway is the remote financial API. Amounts are in minor units (paisa).
type Gateway interface {
	// InitiateLoad starts a bank-to-wallet load and returns the OTP reference.
	InitiateLoad(ctx context.Context, req LoadRequest) (string, error)
	// VerifyOTP completes a load and returns the gateway transaction id.
	VerifyOTP(ctx context.Context, otpRef, code string) (string, error)
	TransferFund(ctx context.Context, recipient string, amountMinor int64) (TransferReceipt, error)
	Topup(ctx context.Context, req TopupRequest) error
}

// LoadRequest is sent to the gateway to start a fund load.
type LoadRequest struct {
	AccountID   string
	BankCode    string
	AmountMinor int64
	Remarks     string
}

// TransferReceipt is the gateway's answer to a successful transfer.
type TransferReceipt struct {
	BalanceMinor  int64
	TransactionID string
	Detail        string
}

// TopupRequest recharges a mobile number through an operator service.
type TopupRequest struct {
	Operator string
	Number   string
	Amount   int64
}

// Bank is a configured funding source selectable by its code.
type Bank struct {
	// Code is what users type, e.g. "CITIZEN".
	Code      string
	AccountID string
	// BankCode is the gateway's identifier for the bank.
	BankCode string
}

// PendingTransaction is a load awaiting OTP verification.
type PendingTransaction struct {
	Owner        string
	OTPReference string
	Amount       decimal.Decimal
	BankCode     string
	CreatedAt    time.Time
}

// LoadResult describes a verified load.
type LoadResult struct {
	Amount        decimal.Decimal
	Detail        string
	TransactionID string
}

// TransferResult describes a completed transfer.
type TransferResult struct {
	Amount decimal.Decimal
	// Balance is the remaining wallet balance in major units, two decimals.
	Balance       string
	TransactionID string
	Detail        string
}

// TopupResult describes a completed mobile recharge.
type TopupResult struct {
	Operator string
	Number   string
	Amount   int64
}

// RejectionError is returned by gateways when the remote API answered with an
// error payload rather than failing at the transport level.
type RejectionError struct {
	Status   int
	Detail   string
	ErrorKey string
	Fields   map[string][]string
}

func (e *RejectionError) Error() string {
	parts := []string{fmt.Sprintf("gateway rejected request: status %d", e.Status)}
	if e.Detail != "" {
		parts = append(parts, "detail="+e.Detail)
	}
	if e.ErrorKey != "" {
		parts = append(parts, "error_key="+e.ErrorKey)
	}
	if len(e.Fields) > 0 {
		names := make([]string, 0, len(e.Fields))
		for name := range e.Fields {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			parts = append(parts, name+"="+strings.Join(e.Fields[name], "; "))
		}
	}
	return strings.Join(parts, " ")
}

// FieldMessage returns the first message of the first listed field present.
func (e *RejectionError) FieldMessage(fields ...string) string {
	for _, f := range fields {
		if msgs := e.Fields[f]; len(msgs) > 0 && msgs[0] != "" {
			return msgs[0]
		}
	}
	return ""
}

var maxMinor = decimal.NewFromInt(math.MaxInt64)

// ToMinor converts a major-unit amount to minor units (×100), rounding to the
// nearest unit. It reports false when the result does not fit in an int64.
func ToMinor(amount decimal.Decimal) (int64, bool) {
	minor := amount.Shift(2).Round(0)
	if minor.Abs().GreaterThan(maxMinor) {
		return 0, false
	}
	return minor.IntPart(), true
}

// FormatMinor renders minor units as a major-unit string with two decimals.
func FormatMinor(minor int64) string {
	return decimal.New(minor, -2).StringFixed(2)
}
