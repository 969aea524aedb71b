package apperr

import (
	"errors"
	"fmt"
	"testing"
)

func TestClassifyWalksWrapChain(t *testing.T) {
	err := fmt.Errorf("handler: %w", New(KindState, CodeInvalidBankCode, "Invalid bank code"))
	kind, msg := Classify(err)
	if kind != KindState || msg != "Invalid bank code" {
		t.Fatalf("Classify = %s, %q", kind, msg)
	}
	if kind, msg := Classify(errors.New("plain")); kind != KindUnexpected || msg != "" {
		t.Fatalf("plain error classified as %s, %q", kind, msg)
	}
}

func TestPrefixKeepsKindAndCode(t *testing.T) {
	base := New(KindState, CodeNoPendingTransaction, "No pending transaction found")
	err := Prefix("❌ Verification failed: ", fmt.Errorf("wallet: %w", base))

	kind, msg := Classify(err)
	if kind != KindState || msg != "❌ Verification failed: No pending transaction found" {
		t.Fatalf("Classify = %s, %q", kind, msg)
	}
	var e *Error
	if !errors.As(err, &e) || e.Code() != string(CodeNoPendingTransaction) {
		t.Fatalf("code not kept: %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("prefixed error must wrap the original")
	}
}

func TestPrefixPassesThroughUnclassified(t *testing.T) {
	plain := errors.New("boom")
	if got := Prefix("x: ", plain); got != plain {
		t.Fatalf("unexpected wrap of plain error: %v", got)
	}
	silent := External("", plain)
	if got := Prefix("x: ", silent); got != error(silent) {
		t.Fatalf("empty message should pass through, got %v", got)
	}
	if got := Prefix("x: ", nil); got != nil {
		t.Fatalf("nil should stay nil, got %v", got)
	}
}

func TestKindString(t *testing.T) {
	tests := map[Kind]string{
		KindValidation: "validation",
		KindState:      "state",
		KindExternal:   "external",
		KindUnexpected: "unexpected",
	}
	for k, want := range tests {
		if got := k.String(); got != want {
			t.Fatalf("%d.String() = %q, want %q", k, got, want)
		}
	}
}

func TestCodeOf(t *testing.T) {
	err := fmt.Errorf("verify: %w", New(KindState, CodeOTPVerification, "OTP rejected"))
	if got := CodeOf(err); got != CodeOTPVerification {
		t.Fatalf("CodeOf = %q", got)
	}
	if got := CodeOf(errors.New("plain")); got != "" {
		t.Fatalf("plain error code = %q", got)
	}
}
