package handlers

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/m3rciful/cmdbot/core/apperr"
	"github.com/m3rciful/cmdbot/core/chat"
	"github.com/m3rciful/cmdbot/core/command"
)

const (
	loadFundUsage = "Invalid format. Usage: !load-fund [bank] [amount]\nExample: !load-fund CITIZEN 100"
	loadOTPUsage  = "Usage: !load-otp [6-digit-code]\nExample: !load-otp 123456"
	transferUsage = "Invalid format. Usage: !fund-transfer [phone_number] [amount]\nExample: !fund-transfer 9864461540 10"
	topupUsage    = "Invalid format. Usage: !topup [number] [amount]\nExample: !topup 9864461540 10"
)

func finance(d Deps) []command.Descriptor {
	return []command.Descriptor{
		{
			Token:       "!load-fund",
			Aliases:     []string{"!load_fund"},
			Usage:       "!load-fund [bank] [amount]",
			Description: "Load funds from a linked bank",
			Category:    CategoryFinance,
			Handler:     command.HandlerFunc(d.loadFund),
		},
		{
			Token:       "!load-otp",
			Aliases:     []string{"!load_otp"},
			Usage:       "!load-otp [code]",
			Description: "Verify the OTP of a pending load",
			Category:    CategoryFinance,
			Handler:     command.HandlerFunc(d.loadOTP),
		},
		{
			Token:       "!fund-transfer",
			Aliases:     []string{"!fund_transfer"},
			Usage:       "!fund-transfer [phone_number] [amount]",
			Description: "Transfer funds to a wallet",
			Category:    CategoryFinance,
			Handler:     command.HandlerFunc(d.fundTransfer),
		},
		{
			Token:       "!pending",
			Description: "Show your pending load",
			Category:    CategoryFinance,
			Handler:     command.HandlerFunc(d.pending),
		},
		{
			Token:       "!clear-pending",
			Aliases:     []string{"!clear_pending"},
			Usage:       "!clear-pending [sender]",
			Description: "Abandon a pending load",
			Category:    CategoryFinance,
			AdminOnly:   true,
			Handler:     command.HandlerFunc(d.clearPending),
		},
		{
			Token:       "!topup",
			Usage:       "!topup [number] [amount]",
			Description: "Top up mobile credit",
			Category:    CategoryFinance,
			AdminOnly:   true,
			Handler:     command.HandlerFunc(d.topup),
		},
	}
}

// failure prefixes err for the reply. Input mistakes only get the marker.
func failure(prefix string, err error) error {
	if kind, _ := apperr.Classify(err); kind == apperr.KindValidation {
		return apperr.Prefix("❌ ", err)
	}
	return apperr.Prefix(prefix, err)
}

func parseAmount(s string) (decimal.Decimal, bool) {
	amount, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil || !amount.IsPositive() {
		return decimal.Decimal{}, false
	}
	return amount, true
}

func (d Deps) loadFund(ctx context.Context, msg chat.Message, args []string) error {
	if len(args) < 2 {
		hint := loadFundUsage
		if banks := d.Wallet.Banks(); len(banks) > 0 {
			hint += "\nBanks: " + strings.Join(banks, ", ")
		}
		return apperr.Validation("%s", hint)
	}
	amount, ok := parseAmount(args[1])
	if !ok {
		return apperr.Validation("Please enter valid amount")
	}
	if _, err := d.Wallet.InitiateLoad(ctx, msg.SenderID, amount, args[0]); err != nil {
		return failure("❌ Load failed: ", err)
	}
	return msg.Reply(ctx, "📲 OTP sent to your registered mobile number. Please verify with !load-otp [code]")
}

func (d Deps) loadOTP(ctx context.Context, msg chat.Message, args []string) error {
	if len(args) != 1 {
		return apperr.Validation(loadOTPUsage)
	}
	res, err := d.Wallet.VerifyOTP(ctx, msg.SenderID, args[0])
	if err != nil {
		return failure("❌ Verification failed: ", err)
	}
	return msg.Reply(ctx, fmt.Sprintf("✅ %s\nAmount: NPR %s", res.Detail, res.Amount.StringFixed(2)))
}

func (d Deps) fundTransfer(ctx context.Context, msg chat.Message, args []string) error {
	if len(args) < 2 {
		return apperr.Validation(transferUsage)
	}
	amount, ok := parseAmount(args[1])
	if !ok {
		return apperr.Validation("❌ Please enter a valid amount greater than 0")
	}
	res, err := d.Wallet.TransferFund(ctx, args[0], amount)
	if err != nil {
		return failure("❌ Transfer failed: ", err)
	}
	detail := res.Detail
	if detail == "" {
		detail = "Transfer successful"
	}
	return msg.Reply(ctx, fmt.Sprintf("✅ %s\nAvailable Balance: Rs. %s", detail, res.Balance))
}

func (d Deps) pending(ctx context.Context, msg chat.Message, _ []string) error {
	p, ok := d.Wallet.Pending(msg.SenderID)
	if !ok {
		return msg.Reply(ctx, "You have no pending transaction")
	}
	return msg.Reply(ctx, fmt.Sprintf("⏳ Pending load: NPR %s from %s (started %s)\nVerify with !load-otp [code]",
		p.Amount.StringFixed(2), p.BankCode, p.CreatedAt.In(d.location()).Format("15:04:05")))
}

func (d Deps) clearPending(ctx context.Context, msg chat.Message, args []string) error {
	owner := msg.SenderID
	if len(args) > 0 {
		owner = args[0]
	}
	if !d.Wallet.ClearPending(owner) {
		return msg.Reply(ctx, "No pending transaction found")
	}
	return msg.Reply(ctx, "🧹 Pending transaction cleared")
}

func (d Deps) topup(ctx context.Context, msg chat.Message, args []string) error {
	if len(args) < 2 {
		return apperr.Validation(topupUsage)
	}
	number := args[0]
	amount, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil {
		return apperr.Validation("❌ Please enter a valid whole amount in NPR")
	}
	if err := msg.Reply(ctx, fmt.Sprintf("🔄 Processing %d NPR topup to %s...", amount, number)); err != nil {
		return err
	}
	res, err := d.Wallet.Topup(ctx, number, amount)
	if err != nil {
		return apperr.Prefix("❌ ", err)
	}
	return msg.Reply(ctx, fmt.Sprintf("✅ Topup Successful\n📱 Number: %s\n💰 Amount: %d NPR\n📡 Operator: %s",
		res.Number, res.Amount, strings.ToUpper(res.Operator)))
}
