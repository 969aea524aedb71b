// Package dispatch routes inbound chat messages to registered commands.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"time"

	"github.com/m3rciful/cmdbot/core/apperr"
	"github.com/m3rciful/cmdbot/core/chat"
	"github.com/m3rciful/cmdbot/core/command"
	"github.com/m3rciful/cmdbot/core/logger"
	"github.com/m3rciful/cmdbot/core/metrics"
)

// Fixed replies sent by the dispatcher itself.
const (
	ReplyRateLimited  = "⚠️ Too many requests! Please wait..."
	ReplyAdminOnly    = "🔒 This command is for admins only"
	ReplyGenericError = "⚠️ An error occurred while processing your request"
)

// Outcome reports what Route did with a message.
type Outcome string

const (
	OutcomeHandled     Outcome = "handled"
	OutcomeFailed      Outcome = "failed"
	OutcomeRateLimited Outcome = "rate_limited"
	OutcomeIgnored     Outcome = "ignored"
	OutcomeDenied      Outcome = "denied"
)

// Admitter decides whether a sender may be served right now.
type Admitter interface {
	Admit(senderID string) bool
}

// Resolver maps a message body to a command and its args.
type Resolver interface {
	Resolve(body string) (command.Descriptor, []string, bool)
}

// Options configures a Dispatcher.
type Options struct {
	Limiter  Admitter
	Registry Resolver
	Admins   []string
	// Timeout bounds a single handler run; zero disables it.
	Timeout time.Duration
}

// Dispatcher runs the inbound pipeline: limiter, lookup, admin gate, handler.
type Dispatcher struct {
	limiter  Admitter
	registry Resolver
	admins   map[string]struct{}
	timeout  time.Duration
}

// New builds a Dispatcher. Registry is required.
func New(opts Options) (*Dispatcher, error) {
	if opts.Registry == nil {
		return nil, fmt.Errorf("dispatch: registry is required")
	}
	admins := make(map[string]struct{}, len(opts.Admins))
	for _, id := range opts.Admins {
		if id = strings.TrimSpace(id); id != "" {
			admins[id] = struct{}{}
		}
	}
	return &Dispatcher{
		limiter:  opts.Limiter,
		registry: opts.Registry,
		admins:   admins,
		timeout:  opts.Timeout,
	}, nil
}

// IsAdmin reports whether senderID belongs to the configured admin set.
func (d *Dispatcher) IsAdmin(senderID string) bool {
	_, ok := d.admins[senderID]
	return ok
}

// Route processes one inbound message. Handler errors and panics are turned
// into replies here and never escape.
func (d *Dispatcher) Route(ctx context.Context, msg chat.Message) Outcome {
	if ctx == nil {
		ctx = context.Background()
	}
	if logger.RIDFrom(ctx) == "" {
		ctx = logger.WithRID(ctx, logger.BuildRID(msg.UpdateID, msg.ChatID, msg.SenderID))
		ctx = logger.WithUpdateMeta(ctx, msg.UpdateID, msg.SenderID, msg.ChatID)
	}
	metrics.MessagesReceived.Inc()

	if d.limiter != nil && !d.limiter.Admit(msg.SenderID) {
		metrics.RateLimited.Inc()
		logger.LogEvent(ctx, logger.Dispatch, slog.LevelWarn, "dispatch.rate_limited",
			slog.String("status", "skip"),
			slog.String("sender_id", msg.SenderID),
		)
		d.reply(ctx, msg, ReplyRateLimited)
		return OutcomeRateLimited
	}

	desc, args, ok := d.registry.Resolve(msg.Body)
	if !ok {
		if logger.ShouldSampleDebug() {
			logger.LogEvent(ctx, logger.Dispatch, slog.LevelDebug, "dispatch.ignored",
				slog.String("payload", logger.SanitizeLimit(msg.Body, 64)),
			)
		}
		return OutcomeIgnored
	}

	name := handlerName(desc.Token)
	ctx = logger.WithHandler(ctx, name)
	start := time.Now()

	if desc.AdminOnly && !d.IsAdmin(msg.SenderID) {
		d.reply(ctx, msg, ReplyAdminOnly)
		logHandlerSummary(ctx, name, start, "skip", "denied", nil)
		metrics.CommandsHandled.WithLabelValues(name, string(OutcomeDenied)).Inc()
		return OutcomeDenied
	}

	err := d.execute(ctx, desc, msg, args)
	metrics.CommandDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	if err == nil {
		logHandlerSummary(ctx, name, start, "", "", nil)
		metrics.CommandsHandled.WithLabelValues(name, string(OutcomeHandled)).Inc()
		return OutcomeHandled
	}

	d.reply(ctx, msg, d.surface(ctx, name, err))
	logHandlerSummary(ctx, name, start, "", "", err)
	metrics.CommandsHandled.WithLabelValues(name, string(OutcomeFailed)).Inc()
	return OutcomeFailed
}

func (d *Dispatcher) execute(ctx context.Context, desc command.Descriptor, msg chat.Message, args []string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.LogEvent(ctx, logger.Dispatch, slog.LevelError, "dispatch.panic",
				slog.Any("err", r),
				slog.String("stack", string(debug.Stack())),
			)
			err = &panicError{value: r}
		}
	}()

	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}
	return desc.Handler.Execute(ctx, msg, args)
}

// surface logs err according to its kind and picks the reply text.
func (d *Dispatcher) surface(ctx context.Context, name string, err error) string {
	kind, message := apperr.Classify(err)
	attrs := []slog.Attr{
		slog.String("kind", kind.String()),
		slog.String("err", logger.SanitizeLimit(err.Error(), 256)),
		slog.String("err_code", errorCode(err)),
	}
	switch kind {
	case apperr.KindValidation:
		logger.LogEvent(ctx, logger.Dispatch, slog.LevelDebug, "command.rejected", attrs...)
	case apperr.KindState:
		logger.LogEvent(ctx, logger.Dispatch, slog.LevelInfo, "command.rejected", attrs...)
	case apperr.KindExternal:
		logger.LogEvent(ctx, logger.Dispatch, slog.LevelWarn, "command.upstream_failed", attrs...)
	default:
		logger.LogEvent(ctx, logger.Dispatch, slog.LevelError, "command.failed", attrs...)
		return ReplyGenericError
	}
	if message == "" {
		return ReplyGenericError
	}
	return message
}

func (d *Dispatcher) reply(ctx context.Context, msg chat.Message, content string) {
	if err := msg.Reply(ctx, content); err != nil {
		logger.LogEvent(ctx, logger.Dispatch, slog.LevelWarn, "dispatch.reply_failed",
			slog.String("err", logger.SanitizeLimit(err.Error(), 256)),
		)
	}
}

type panicError struct{ value any }

func (e *panicError) Error() string { return fmt.Sprintf("panic: %v", e.value) }

func (e *panicError) Code() string { return "PANIC" }
