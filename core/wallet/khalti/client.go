// Package khalti implements wallet.Gateway against the Khalti wallet API.
package khalti

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/m3rciful/cmdbot/core/httpx"
	"github.com/m3rciful/cmdbot/core/wallet"
)

// DefaultBaseURL is the production API root.
const DefaultBaseURL = "https://khalti.com/api/v2"

const (
	loadPath     = "/bindtransaction/v2/load/"
	verifyPath   = "/otpmodule/verify/"
	transferPath = "/fund/v2/offer/"
	topupPath    = "/service/use/%s/"

	webOrigin = "https://web.khalti.com"
)

// Config configures a Client.
type Config struct {
	BaseURL  string
	Token    string
	DeviceID string
	Timeout  time.Duration
	// HTTPClient overrides the default retrying client.
	HTTPClient *http.Client
}

// Client talks to the Khalti wallet API.
type Client struct {
	baseURL  string
	token    string
	deviceID string
	http     *http.Client
}

var _ wallet.Gateway = (*Client)(nil)

// New builds a Client.
func New(cfg Config) *Client {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		base = DefaultBaseURL
	}
	hc := cfg.HTTPClient
	if hc == nil {
		// Only transport failures are retried; POSTs are not idempotent
		// once the server has seen them.
		hc = httpx.BuildHTTPClient(httpx.Options{Name: "khalti", Timeout: cfg.Timeout, Retries: -1})
	}
	return &Client{baseURL: base, token: cfg.Token, deviceID: cfg.DeviceID, http: hc}
}

type loadRequest struct {
	Remarks   string `json:"remarks"`
	Amount    int64  `json:"amount"`
	AccountID string `json:"account_id"`
	Bank      string `json:"bank"`
}

type loadResponse struct {
	OTPID flexString `json:"otp_id"`
}

// InitiateLoad starts a bank load and returns the OTP id.
func (c *Client) InitiateLoad(ctx context.Context, req wallet.LoadRequest) (string, error) {
	var out loadResponse
	err := c.post(ctx, c.baseURL+loadPath, loadRequest{
		Remarks:   req.Remarks,
		Amount:    req.AmountMinor,
		AccountID: req.AccountID,
		Bank:      req.BankCode,
	}, &out)
	if err != nil {
		return "", err
	}
	if out.OTPID == "" {
		return "", errors.New("khalti: load response without otp_id")
	}
	return string(out.OTPID), nil
}

type verifyRequest struct {
	OTPID   string `json:"otp_id"`
	Context string `json:"context"`
	Code    string `json:"code"`
}

type verifyResponse struct {
	TransactionID flexString `json:"transaction_id"`
}

// VerifyOTP confirms a load with the code the user received.
func (c *Client) VerifyOTP(ctx context.Context, otpRef, code string) (string, error) {
	var out verifyResponse
	err := c.post(ctx, c.baseURL+verifyPath, verifyRequest{OTPID: otpRef, Context: "load", Code: code}, &out)
	if err != nil {
		return "", err
	}
	return string(out.TransactionID), nil
}

type transferRequest struct {
	User    string `json:"user"`
	Amount  int64  `json:"amount"`
	Purpose string `json:"purpose"`
	Remarks string `json:"remarks"`
}

type transferResponse struct {
	Detail string     `json:"detail"`
	Idx    flexString `json:"idx"`
	Meta   struct {
		Balance struct {
			Primary decimal.Decimal `json:"primary"`
		} `json:"balance"`
	} `json:"meta"`
}

// TransferFund sends amountMinor paisa to the recipient's wallet.
func (c *Client) TransferFund(ctx context.Context, recipient string, amountMinor int64) (wallet.TransferReceipt, error) {
	var out transferResponse
	err := c.post(ctx, c.baseURL+transferPath, transferRequest{
		User:    recipient,
		Amount:  amountMinor,
		Purpose: "Personal use",
		Remarks: "Fund transfer",
	}, &out)
	if err != nil {
		return wallet.TransferReceipt{}, err
	}
	return wallet.TransferReceipt{
		BalanceMinor:  out.Meta.Balance.Primary.Round(0).IntPart(),
		TransactionID: string(out.Idx),
		Detail:        out.Detail,
	}, nil
}

type topupRequest struct {
	Number string `json:"number"`
	Amount string `json:"amount"`
}

// Topup recharges a mobile number through the operator's service endpoint.
func (c *Client) Topup(ctx context.Context, req wallet.TopupRequest) error {
	url := c.baseURL + fmt.Sprintf(topupPath, req.Operator)
	return c.post(ctx, url, topupRequest{Number: req.Number, Amount: fmt.Sprint(req.Amount)}, nil)
}

func (c *Client) post(ctx context.Context, url string, in, out any) error {
	header := http.Header{}
	header.Set("Authorization", "Token "+c.token)
	if c.deviceID != "" {
		header.Set("DeviceId", c.deviceID)
	}
	header.Set("Origin", webOrigin)
	header.Set("Referer", webOrigin+"/")

	err := httpx.DoJSON(ctx, c.http, http.MethodPost, url, header, in, out)
	var se *httpx.StatusError
	if errors.As(err, &se) {
		return decodeRejection(se)
	}
	return err
}

// decodeRejection turns an error body such as
// {"detail": "..."} or {"user": ["..."], "amount": ["..."]} into a RejectionError.
func decodeRejection(se *httpx.StatusError) *wallet.RejectionError {
	rej := &wallet.RejectionError{Status: se.Status}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(se.Body, &raw); err != nil {
		return rej
	}
	for key, value := range raw {
		switch key {
		case "detail":
			rej.Detail = decodeText(value)
		case "error_key":
			rej.ErrorKey = decodeText(value)
		default:
			var msgs []string
			if err := json.Unmarshal(value, &msgs); err == nil && len(msgs) > 0 {
				if rej.Fields == nil {
					rej.Fields = make(map[string][]string)
				}
				rej.Fields[key] = msgs
			}
		}
	}
	return rej
}

func decodeText(value json.RawMessage) string {
	var s string
	if err := json.Unmarshal(value, &s); err == nil {
		return s
	}
	var list []string
	if err := json.Unmarshal(value, &list); err == nil && len(list) > 0 {
		return list[0]
	}
	return ""
}

// flexString accepts either a JSON string or number.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = flexString(n.String())
	return nil
}
