// Package telegram connects the command dispatcher to the Telegram Bot API.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/m3rciful/cmdbot/core/chat"
	"github.com/m3rciful/cmdbot/core/command"
	coreconfig "github.com/m3rciful/cmdbot/core/config"
	"github.com/m3rciful/cmdbot/core/dispatch"
	"github.com/m3rciful/cmdbot/core/httpx"
	"github.com/m3rciful/cmdbot/core/logger"
	"github.com/m3rciful/cmdbot/core/telegram/middleware"
	"github.com/m3rciful/cmdbot/core/telegram/sender"

	tele "gopkg.in/telebot.v4"
)

// Router handles one inbound message.
type Router interface {
	Route(ctx context.Context, msg chat.Message) dispatch.Outcome
}

// Options controls New.
type Options struct {
	Queue      sender.Options
	HTTPClient *http.Client
	// Offline skips the getMe call; used by tests.
	Offline bool
}

// Bot owns the telebot instance and the outbound queue.
type Bot struct {
	cfg      *coreconfig.Config
	tb       *tele.Bot
	queue    *sender.Queue
	outbound *Outbound
}

// New creates the bot and its outbound queue. Messages can be sent through
// Sender before Run is called.
func New(cfg *coreconfig.Config, opts Options) (*Bot, error) {
	if cfg == nil {
		return nil, fmt.Errorf("telegram: nil config provided")
	}
	client := opts.HTTPClient
	if client == nil {
		client = httpx.BuildHTTPClient(httpx.Options{Name: "telegram"})
	}

	poller := BuildPoller(PollerOptions{
		RunMode:                cfg.Telegram.RunMode,
		LongPollTimeoutSeconds: cfg.Telegram.LongPollTimeoutSeconds,
		Webhook:                cfg.Webhook,
	})

	start := time.Now()
	tb, err := tele.NewBot(tele.Settings{
		Token:   cfg.Telegram.Token,
		Poller:  poller,
		Client:  client,
		Offline: opts.Offline,
		OnError: func(err error, c tele.Context) {
			ctx := context.Background()
			if c != nil {
				ctx = BuildContext(c)
			}
			logger.LogEvent(ctx, logger.TG, slog.LevelError, "tg.error",
				slog.String("err", logger.SanitizeLimit(err.Error(), 256)),
			)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("telegram: bot initialization failed: %w", err)
	}

	switch p := poller.(type) {
	case *tele.Webhook:
		logger.TG.LogAttrs(context.Background(), slog.LevelInfo, "webhook mode",
			slog.String("event", "mode"),
			slog.String("mode", "webhook"),
			slog.String("listen", p.Listen),
			slog.String("public_url", p.Endpoint.PublicURL),
			slog.Duration("duration", logger.RoundMS(time.Since(start))),
		)
	case *tele.LongPoller:
		logger.TG.Info("polling mode",
			slog.String("event", "mode"),
			slog.String("mode", "polling"),
			slog.Duration("timeout", p.Timeout),
			slog.Duration("duration", logger.RoundMS(time.Since(start))),
		)
	}

	queue := sender.NewQueue(opts.Queue)
	return &Bot{
		cfg:      cfg,
		tb:       tb,
		queue:    queue,
		outbound: NewOutbound(tb, queue),
	}, nil
}

// Sender returns the outbound capability for unsolicited messages.
func (b *Bot) Sender() chat.Sender {
	return b.outbound
}

// Username reports the bot's @handle, empty when offline.
func (b *Bot) Username() string {
	if b.tb.Me == nil {
		return ""
	}
	return b.tb.Me.Username
}

// RunOptions controls Run.
type RunOptions struct {
	Router Router
	// Prefix replaces the leading slash of Telegram commands.
	Prefix string
	// Commands populate the client's command menu.
	Commands              []tele.Command
	DisableWebhookCleanup bool
}

// Handler returns the text handler wrapped in the recover and logging middleware.
func (b *Bot) Handler(opts RunOptions) tele.HandlerFunc {
	username := b.Username()
	handle := func(c tele.Context) error {
		ctx := BuildContext(c)
		opts.Router.Route(ctx, MessageFrom(c, b.queue, username, opts.Prefix))
		return nil
	}
	return middleware.Recover(middleware.Logger(func(c tele.Context) { BuildContext(c) })(handle))
}

// Run serves updates until ctx is done, then drains the outbound queue.
func (b *Bot) Run(ctx context.Context, opts RunOptions) error {
	if opts.Router == nil {
		return fmt.Errorf("telegram: router is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	defer b.queue.Close()

	if _, polling := b.tb.Poller.(*tele.LongPoller); polling && !opts.DisableWebhookCleanup {
		if err := b.tb.RemoveWebhook(false); err != nil {
			logger.TG.Warn("failed to delete webhook",
				slog.String("event", "delete_webhook"),
				slog.String("err", err.Error()),
			)
		}
	}

	b.tb.Handle(tele.OnText, b.Handler(opts))

	if len(opts.Commands) > 0 {
		if err := b.tb.SetCommands(opts.Commands); err != nil {
			logger.TWire.LogAttrs(ctx, slog.LevelError, "register.commands.set_failed",
				slog.String("err", err.Error()),
			)
		}
	}

	runDone := make(chan struct{})
	go func() {
		b.tb.Start()
		close(runDone)
	}()

	select {
	case <-ctx.Done():
		b.tb.Stop()
		<-runDone
		if errors.Is(ctx.Err(), context.Canceled) {
			return nil
		}
		return ctx.Err()
	case <-runDone:
		return nil
	}
}

// MenuCommands converts registry descriptors into Telegram menu entries.
// Telegram only shows [a-z0-9_] names, so '-' becomes '_'; the registry
// carries matching '_' aliases.
func MenuCommands(prefix string, ds []command.Descriptor) []tele.Command {
	out := make([]tele.Command, 0, len(ds))
	for _, d := range ds {
		name := strings.ReplaceAll(strings.TrimPrefix(d.Token, prefix), "-", "_")
		out = append(out, tele.Command{Text: name, Description: d.Description})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Text < out[j].Text })
	return out
}
