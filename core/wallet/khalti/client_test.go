package khalti

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/m3rciful/cmdbot/core/wallet"
)

type captured struct {
	Path   string
	Auth   string
	Device string
	Body   map[string]any
}

func newServer(t *testing.T, status int, response string, got *captured) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s", r.Method)
		}
		got.Path = r.URL.Path
		got.Auth = r.Header.Get("Authorization")
		got.Device = r.Header.Get("DeviceId")
		b, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(b, &got.Body)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(response))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newClient(url string) *Client {
	return New(Config{BaseURL: url + "/", Token: "tok", DeviceID: "dev-1", Timeout: 2 * time.Second})
}

func TestInitiateLoad(t *testing.T) {
	t.Parallel()

	var got captured
	srv := newServer(t, http.StatusOK, `{"otp_id": 12345}`, &got)

	ref, err := newClient(srv.URL).InitiateLoad(context.Background(), wallet.LoadRequest{
		AccountID:   "acc-1",
		BankCode:    "CZBIL",
		AmountMinor: 10000,
		Remarks:     "load fund from citizen",
	})
	if err != nil {
		t.Fatalf("InitiateLoad: %v", err)
	}
	if ref != "12345" {
		t.Fatalf("ref = %q", ref)
	}
	if got.Path != "/bindtransaction/v2/load/" {
		t.Fatalf("path = %q", got.Path)
	}
	if got.Auth != "Token tok" || got.Device != "dev-1" {
		t.Fatalf("headers auth=%q device=%q", got.Auth, got.Device)
	}
	if got.Body["amount"] != float64(10000) || got.Body["account_id"] != "acc-1" || got.Body["bank"] != "CZBIL" || got.Body["remarks"] != "load fund from citizen" {
		t.Fatalf("body = %v", got.Body)
	}
}

func TestVerifyOTP(t *testing.T) {
	t.Parallel()

	var got captured
	srv := newServer(t, http.StatusOK, `{"transaction_id": "txn-9"}`, &got)

	txn, err := newClient(srv.URL).VerifyOTP(context.Background(), "otp-1", "123456")
	if err != nil {
		t.Fatalf("VerifyOTP: %v", err)
	}
	if txn != "txn-9" {
		t.Fatalf("txn = %q", txn)
	}
	if got.Path != "/otpmodule/verify/" || got.Body["otp_id"] != "otp-1" || got.Body["context"] != "load" || got.Body["code"] != "123456" {
		t.Fatalf("request = %+v", got)
	}
}

func TestVerifyOTPRejected(t *testing.T) {
	t.Parallel()

	var got captured
	srv := newServer(t, http.StatusBadRequest, `{"detail": "Invalid OTP"}`, &got)

	_, err := newClient(srv.URL).VerifyOTP(context.Background(), "otp-1", "000000")
	var rej *wallet.RejectionError
	if !errors.As(err, &rej) {
		t.Fatalf("expected RejectionError, got %v", err)
	}
	if rej.Status != http.StatusBadRequest || rej.Detail != "Invalid OTP" {
		t.Fatalf("rejection = %+v", rej)
	}
}

func TestTransferFund(t *testing.T) {
	t.Parallel()

	var got captured
	srv := newServer(t, http.StatusOK, `{"detail": "Transferred", "idx": "abc", "meta": {"balance": {"primary": 999000}}}`, &got)

	receipt, err := newClient(srv.URL).TransferFund(context.Background(), "9864461540", 1000)
	if err != nil {
		t.Fatalf("TransferFund: %v", err)
	}
	if receipt.BalanceMinor != 999000 || receipt.TransactionID != "abc" || receipt.Detail != "Transferred" {
		t.Fatalf("receipt = %+v", receipt)
	}
	if got.Path != "/fund/v2/offer/" || got.Body["user"] != "9864461540" || got.Body["amount"] != float64(1000) ||
		got.Body["purpose"] != "Personal use" || got.Body["remarks"] != "Fund transfer" {
		t.Fatalf("request = %+v", got)
	}
}

func TestTransferFundFieldErrors(t *testing.T) {
	t.Parallel()

	var got captured
	srv := newServer(t, http.StatusBadRequest, `{"user": ["Khalti user does not exist"], "amount": ["Too small"]}`, &got)

	_, err := newClient(srv.URL).TransferFund(context.Background(), "9800000000", 10)
	var rej *wallet.RejectionError
	if !errors.As(err, &rej) {
		t.Fatalf("expected RejectionError, got %v", err)
	}
	if msg := rej.FieldMessage("user", "amount"); msg != "Khalti user does not exist" {
		t.Fatalf("field message = %q", msg)
	}
}

func TestTopup(t *testing.T) {
	t.Parallel()

	var got captured
	srv := newServer(t, http.StatusOK, `{}`, &got)

	if err := newClient(srv.URL).Topup(context.Background(), wallet.TopupRequest{Operator: "ncell", Number: "9801234567", Amount: 50}); err != nil {
		t.Fatalf("Topup: %v", err)
	}
	if got.Path != "/service/use/ncell/" || got.Body["number"] != "9801234567" || got.Body["amount"] != "50" {
		t.Fatalf("request = %+v", got)
	}
}

func TestTopupErrorKey(t *testing.T) {
	t.Parallel()

	var got captured
	srv := newServer(t, http.StatusBadRequest, `{"error_key": "insufficient_balance", "detail": "Not enough"}`, &got)

	err := newClient(srv.URL).Topup(context.Background(), wallet.TopupRequest{Operator: "ntc", Number: "9841234567", Amount: 50})
	var rej *wallet.RejectionError
	if !errors.As(err, &rej) || rej.ErrorKey != "insufficient_balance" || rej.Detail != "Not enough" {
		t.Fatalf("err = %v", err)
	}
}

func TestNonJSONErrorBody(t *testing.T) {
	t.Parallel()

	var got captured
	srv := newServer(t, http.StatusBadGateway, `<html>bad gateway</html>`, &got)

	_, err := newClient(srv.URL).InitiateLoad(context.Background(), wallet.LoadRequest{AmountMinor: 100})
	var rej *wallet.RejectionError
	if !errors.As(err, &rej) || rej.Status != http.StatusBadGateway || rej.Detail != "" {
		t.Fatalf("err = %v", err)
	}
}

func TestServiceAgainstClient(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/bindtransaction/v2/load/", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"otp_id": "otp-77"}`))
	})
	mux.HandleFunc("/otpmodule/verify/", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"transaction_id": 501}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	svc, err := wallet.NewService(wallet.Options{
		Gateway: newClient(srv.URL),
		Banks:   []wallet.Bank{{Code: "CITIZEN", AccountID: "acc", BankCode: "CZ"}},
	})
	if err != nil {
		t.Fatalf("service: %v", err)
	}
	if _, err := svc.InitiateLoad(context.Background(), "user1", decimal.NewFromInt(100), "citizen"); err != nil {
		t.Fatalf("initiate: %v", err)
	}
	res, err := svc.VerifyOTP(context.Background(), "user1", "123456")
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if res.TransactionID != "501" || res.Detail != wallet.LoadVerifiedDetail {
		t.Fatalf("result = %+v", res)
	}
}
