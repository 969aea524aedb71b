package wallet

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/m3rciful/cmdbot/core/apperr"
	"github.com/m3rciful/cmdbot/core/logger"
	"github.com/m3rciful/cmdbot/core/metrics"
)

// LoadVerifiedDetail is reported for every verified load.
const LoadVerifiedDetail = "Fund loaded successfully"

const (
	transferPurpose = "Personal use"

	minTopup = 10
	maxTopup = 500
)

var mobilePattern = regexp.MustCompile(`^9\d{9}$`)

// Options configures a Service.
type Options struct {
	Gateway Gateway
	Banks   []Bank
	// PendingTTL abandons loads not verified in time; zero keeps them forever.
	PendingTTL time.Duration
	// MaxAmount caps load and transfer amounts in major units; zero leaves
	// only the minor-unit range check.
	MaxAmount decimal.Decimal
	Now        func() time.Time
}

// Service owns the pending-transaction table.
type Service struct {
	gateway Gateway
	banks   map[string]Bank
	ttl     time.Duration
	max     decimal.Decimal
	now     func() time.Time

	mu      sync.Mutex
	pending map[string]PendingTransaction
}

// NewService builds a Service. Banks without an account id are skipped.
func NewService(opts Options) (*Service, error) {
	if opts.Gateway == nil {
		return nil, fmt.Errorf("wallet: gateway is required")
	}
	banks := make(map[string]Bank, len(opts.Banks))
	for _, b := range opts.Banks {
		code := strings.ToUpper(strings.TrimSpace(b.Code))
		if code == "" || b.AccountID == "" {
			continue
		}
		b.Code = code
		banks[code] = b
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		gateway: opts.Gateway,
		banks:   banks,
		ttl:     opts.PendingTTL,
		max:     opts.MaxAmount,
		now:     now,
		pending: make(map[string]PendingTransaction),
	}, nil
}

// Banks lists the configured bank codes.
func (s *Service) Banks() []string {
	codes := make([]string, 0, len(s.banks))
	for code := range s.banks {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// InitiateLoad asks the gateway to start a load from bankCode and stores the
// returned OTP reference as owner's pending transaction, replacing any earlier one.
func (s *Service) InitiateLoad(ctx context.Context, owner string, amount decimal.Decimal, bankCode string) (PendingTransaction, error) {
	bank, ok := s.banks[strings.ToUpper(strings.TrimSpace(bankCode))]
	if !ok {
		metrics.WalletOperations.WithLabelValues("load", "invalid").Inc()
		return PendingTransaction{}, ErrInvalidBankCode
	}
	minor, err := s.checkAmount(amount)
	if err != nil {
		metrics.WalletOperations.WithLabelValues("load", "invalid").Inc()
		return PendingTransaction{}, err
	}

	ref, err := s.gateway.InitiateLoad(ctx, LoadRequest{
		AccountID:   bank.AccountID,
		BankCode:    bank.BankCode,
		AmountMinor: minor,
		Remarks:     "load fund from " + strings.ToLower(bank.Code),
	})
	if err != nil {
		metrics.WalletOperations.WithLabelValues("load", "fail").Inc()
		s.logFailure(ctx, "wallet.load_failed", owner, err)
		return PendingTransaction{}, &GatewayError{Op: "load", Message: rejectionDetail(err, "Failed to initiate load"), Err: err}
	}
	if ref == "" {
		metrics.WalletOperations.WithLabelValues("load", "fail").Inc()
		err := errors.New("empty otp reference")
		return PendingTransaction{}, &GatewayError{Op: "load", Message: "Failed to initiate load", Err: err}
	}

	p := PendingTransaction{
		Owner:        owner,
		OTPReference: ref,
		Amount:       amount,
		BankCode:     bank.Code,
		CreatedAt:    s.now(),
	}
	s.mu.Lock()
	_, replaced := s.pending[owner]
	s.pending[owner] = p
	n := len(s.pending)
	s.mu.Unlock()

	metrics.PendingTransactions.Set(float64(n))
	metrics.WalletOperations.WithLabelValues("load", "ok").Inc()
	logger.LogEvent(ctx, logger.Wallet, slog.LevelInfo, "wallet.load_initiated",
		slog.String("sender_id", owner),
		slog.String("bank", bank.Code),
		slog.String("amount", amount.String()),
		slog.Bool("replaced", replaced),
	)
	return p, nil
}

// VerifyOTP completes owner's pending load with code. On success the pending
// record is removed unless a newer load replaced it meanwhile; on rejection it
// is kept so the user can retry.
func (s *Service) VerifyOTP(ctx context.Context, owner, code string) (LoadResult, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return LoadResult{}, apperr.Validation("OTP code is required")
	}
	p, ok := s.Pending(owner)
	if !ok {
		metrics.WalletOperations.WithLabelValues("verify", "invalid").Inc()
		return LoadResult{}, ErrNoPendingTransaction
	}

	txnID, err := s.gateway.VerifyOTP(ctx, p.OTPReference, code)
	if err != nil {
		metrics.WalletOperations.WithLabelValues("verify", "fail").Inc()
		s.logFailure(ctx, "wallet.verify_failed", owner, err)
		var rej *RejectionError
		if errors.As(err, &rej) {
			return LoadResult{}, &OTPVerificationError{Message: rejectionDetail(err, "OTP verification failed"), Err: err}
		}
		return LoadResult{}, &GatewayError{Op: "verify", Message: "OTP verification failed", Err: err}
	}

	s.mu.Lock()
	if cur, ok := s.pending[owner]; ok && cur.OTPReference == p.OTPReference {
		delete(s.pending, owner)
	}
	n := len(s.pending)
	s.mu.Unlock()

	metrics.PendingTransactions.Set(float64(n))
	metrics.WalletOperations.WithLabelValues("verify", "ok").Inc()
	logger.LogEvent(ctx, logger.Wallet, slog.LevelInfo, "wallet.load_verified",
		slog.String("sender_id", owner),
		slog.String("bank", p.BankCode),
		slog.String("amount", p.Amount.String()),
	)
	return LoadResult{Amount: p.Amount, Detail: LoadVerifiedDetail, TransactionID: txnID}, nil
}

// TransferFund sends amount to recipient. It keeps no state.
func (s *Service) TransferFund(ctx context.Context, recipient string, amount decimal.Decimal) (TransferResult, error) {
	recipient = strings.TrimSpace(recipient)
	if !mobilePattern.MatchString(recipient) {
		return TransferResult{}, ErrInvalidNumber
	}
	minor, err := s.checkAmount(amount)
	if err != nil {
		return TransferResult{}, err
	}

	receipt, err := s.gateway.TransferFund(ctx, recipient, minor)
	if err != nil {
		metrics.WalletOperations.WithLabelValues("transfer", "fail").Inc()
		s.logFailure(ctx, "wallet.transfer_failed", recipient, err)
		var rej *RejectionError
		if errors.As(err, &rej) {
			msg := rej.FieldMessage("user", "amount")
			if msg == "" {
				msg = rejectionDetail(err, "Fund transfer failed")
			}
			return TransferResult{}, &TransferRejectedError{Message: msg, Err: err}
		}
		return TransferResult{}, &GatewayError{Op: "transfer", Message: "Fund transfer failed", Err: err}
	}

	metrics.WalletOperations.WithLabelValues("transfer", "ok").Inc()
	logger.LogEvent(ctx, logger.Wallet, slog.LevelInfo, "wallet.transferred",
		slog.String("recipient", recipient),
		slog.String("amount", amount.String()),
	)
	return TransferResult{
		Amount:        amount,
		Balance:       FormatMinor(receipt.BalanceMinor),
		TransactionID: receipt.TransactionID,
		Detail:        receipt.Detail,
	}, nil
}

// Topup recharges number with a whole amount between 10 and 500.
func (s *Service) Topup(ctx context.Context, number string, amount int64) (TopupResult, error) {
	number = strings.TrimSpace(number)
	if !mobilePattern.MatchString(number) {
		return TopupResult{}, apperr.Validation("Please enter a valid 10-digit mobile number starting with 9")
	}
	if amount < minTopup || amount > maxTopup {
		return TopupResult{}, apperr.Validation("Please enter a valid amount between %d and %d NPR", minTopup, maxTopup)
	}
	operator, ok := DetectOperator(number)
	if !ok {
		return TopupResult{}, apperr.Validation("Unsupported operator for %s", number)
	}

	if err := s.gateway.Topup(ctx, TopupRequest{Operator: operator, Number: number, Amount: amount}); err != nil {
		metrics.WalletOperations.WithLabelValues("topup", "fail").Inc()
		s.logFailure(ctx, "wallet.topup_failed", number, err)
		return TopupResult{}, &GatewayError{Op: "topup", Message: topupMessage(err), Err: err}
	}

	metrics.WalletOperations.WithLabelValues("topup", "ok").Inc()
	logger.LogEvent(ctx, logger.Wallet, slog.LevelInfo, "wallet.topup",
		slog.String("operator", operator),
		slog.Int64("amount", amount),
	)
	return TopupResult{Operator: operator, Number: number, Amount: amount}, nil
}

// Pending returns owner's pending load. Expired records are dropped.
func (s *Service) Pending(owner string) (PendingTransaction, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pending[owner]
	if !ok {
		return PendingTransaction{}, false
	}
	if s.expired(p, s.now()) {
		delete(s.pending, owner)
		metrics.PendingTransactions.Set(float64(len(s.pending)))
		return PendingTransaction{}, false
	}
	return p, true
}

// ClearPending abandons owner's pending load and reports whether one existed.
func (s *Service) ClearPending(owner string) bool {
	s.mu.Lock()
	_, ok := s.pending[owner]
	delete(s.pending, owner)
	n := len(s.pending)
	s.mu.Unlock()
	metrics.PendingTransactions.Set(float64(n))
	return ok
}

// Sweep removes expired pending loads and returns how many were dropped.
func (s *Service) Sweep() int {
	if s.ttl <= 0 {
		return 0
	}
	now := s.now()
	s.mu.Lock()
	dropped := 0
	for owner, p := range s.pending {
		if s.expired(p, now) {
			delete(s.pending, owner)
			dropped++
		}
	}
	n := len(s.pending)
	s.mu.Unlock()

	metrics.PendingTransactions.Set(float64(n))
	if dropped > 0 {
		logger.Wallet.Info("pending loads expired",
			slog.String("event", "wallet.sweep"),
			slog.Int("dropped", dropped),
		)
	}
	return dropped
}

// Len reports the number of pending loads, expired ones included.
func (s *Service) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// RunJanitor sweeps expired loads every interval until ctx is done.
func (s *Service) RunJanitor(ctx context.Context, interval time.Duration) {
	if s.ttl <= 0 || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep()
		}
	}
}

func (s *Service) expired(p PendingTransaction, now time.Time) bool {
	return s.ttl > 0 && now.Sub(p.CreatedAt) >= s.ttl
}

// checkAmount validates a major-unit amount and returns it in minor units.
func (s *Service) checkAmount(amount decimal.Decimal) (int64, error) {
	if !amount.IsPositive() {
		return 0, ErrInvalidAmount
	}
	if s.max.IsPositive() && amount.GreaterThan(s.max) {
		return 0, ErrAmountTooLarge
	}
	minor, ok := ToMinor(amount)
	if !ok {
		return 0, ErrAmountTooLarge
	}
	if minor <= 0 {
		return 0, ErrInvalidAmount
	}
	return minor, nil
}

func (s *Service) logFailure(ctx context.Context, event, subject string, err error) {
	logger.LogEvent(ctx, logger.Wallet, slog.LevelWarn, event,
		slog.String("status", "fail"),
		slog.String("sender_id", subject),
		slog.String("err", logger.SanitizeLimit(err.Error(), 256)),
	)
}

// DetectOperator maps a mobile number's prefix to its topup service.
func DetectOperator(number string) (string, bool) {
	if len(number) < 3 {
		return "", false
	}
	switch number[:3] {
	case "984", "986", "974", "976":
		return "ntc", true
	case "980", "981", "982", "970":
		return "ncell", true
	case "985":
		return "nt-postpaid", true
	}
	return "", false
}

func rejectionDetail(err error, fallback string) string {
	var rej *RejectionError
	if errors.As(err, &rej) && rej.Detail != "" {
		return rej.Detail
	}
	return fallback
}

func topupMessage(err error) string {
	var rej *RejectionError
	if errors.As(err, &rej) {
		switch {
		case rej.ErrorKey == "insufficient_balance":
			return "Insufficient balance in wallet"
		case rej.Status == 403:
			return "Authentication failed."
		case rej.Status == 429:
			return "Too many requests. Please try again later"
		case rej.Detail != "":
			return rej.Detail
		}
	}
	return "Failed to process topup request"
}
