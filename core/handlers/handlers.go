// Package handlers implements the bot's built-in commands on top of the
// reminder scheduler, the wallet service and the lookup integrations.
package handlers

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/m3rciful/cmdbot/core/command"
	"github.com/m3rciful/cmdbot/core/integrations"
	"github.com/m3rciful/cmdbot/core/reminder"
	"github.com/m3rciful/cmdbot/core/wallet"
)

// Help categories, in display order.
const (
	CategoryGeneral      = "General"
	CategoryInformation  = "Weather & Information"
	CategoryUtilities    = "Utilities"
	CategoryFinance      = "Finance & Transactions"
	CategoryProductivity = "Productivity"
	CategoryFun          = "Entertainment"
)

var categoryOrder = []string{
	CategoryGeneral,
	CategoryInformation,
	CategoryUtilities,
	CategoryFinance,
	CategoryProductivity,
	CategoryFun,
}

// Reminders is the scheduler surface used by the reminder commands.
type Reminders interface {
	Create(ctx context.Context, owner string, fireAt time.Time, payload string) (int64, error)
	CancelOwned(owner string, id int64) bool
	ListForOwner(owner string) []reminder.Reminder
}

// Wallet is the transaction surface used by the finance commands.
type Wallet interface {
	InitiateLoad(ctx context.Context, owner string, amount decimal.Decimal, bankCode string) (wallet.PendingTransaction, error)
	VerifyOTP(ctx context.Context, owner, code string) (wallet.LoadResult, error)
	TransferFund(ctx context.Context, recipient string, amount decimal.Decimal) (wallet.TransferResult, error)
	Topup(ctx context.Context, number string, amount int64) (wallet.TopupResult, error)
	Pending(owner string) (wallet.PendingTransaction, bool)
	ClearPending(owner string) bool
	Banks() []string
}

// Lookups is the set of third-party APIs behind the information commands.
type Lookups interface {
	Weather(ctx context.Context, location string) (integrations.Weather, error)
	News(ctx context.Context, query string) ([]integrations.Article, error)
	Define(ctx context.Context, word string) ([]integrations.Meaning, error)
	Joke(ctx context.Context) (string, error)
	Translate(ctx context.Context, target, text string) (string, error)
	RandomGIF(ctx context.Context, tag string) (string, error)
}

// Deps carries the collaborators of the built-in commands. Nil collaborators
// leave their command group out.
type Deps struct {
	Registry  *command.Registry
	IsAdmin   func(senderID string) bool
	Reminders Reminders
	Wallet    Wallet
	Lookups   Lookups
	// FAQ maps key phrases to !ask answers; empty uses DefaultFAQ.
	FAQ       map[string]string
	Location  *time.Location
	Now       func() time.Time
	StartedAt time.Time
	Version   string
}

func (d Deps) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

func (d Deps) location() *time.Location {
	if d.Location != nil {
		return d.Location
	}
	return time.Local
}

func (d Deps) prefix() string {
	if d.Registry != nil {
		return d.Registry.Prefix()
	}
	return command.DefaultPrefix
}

// Descriptors builds every built-in command the given deps can serve.
func Descriptors(d Deps) []command.Descriptor {
	ds := general(d)
	if d.Reminders != nil {
		ds = append(ds, reminders(d)...)
	}
	if d.Wallet != nil {
		ds = append(ds, finance(d)...)
	}
	if d.Lookups != nil {
		ds = append(ds, lookups(d)...)
	}
	return ds
}
