package logger

import (
	"context"
	"fmt"
	"log/slog"
)

type ctxKey int

const (
	keyLogger ctxKey = iota
	keyRID
	keyMessage
	keyHandler
)

// messageMeta identifies the inbound message a log line belongs to.
type messageMeta struct {
	updateID int
	senderID string
	chatID   string
}

func ensure(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}

// WithLogger stores l in ctx; FromContext and LogEvent pick it up.
func WithLogger(ctx context.Context, l *slog.Logger) context.Context {
	ctx = ensure(ctx)
	if l == nil {
		return ctx
	}
	return context.WithValue(ctx, keyLogger, l)
}

// FromContext returns the logger stored in ctx, or L.
func FromContext(ctx context.Context) *slog.Logger {
	if ctx != nil {
		if l, ok := ctx.Value(keyLogger).(*slog.Logger); ok && l != nil {
			return l
		}
	}
	return L
}

// BuildRID returns the correlation id of one inbound message.
func BuildRID(updateID int, chatID, senderID string) string {
	return fmt.Sprintf("%d:%s:%s", updateID, chatID, senderID)
}

// WithRID attaches a request correlation id.
func WithRID(ctx context.Context, rid string) context.Context {
	return context.WithValue(ensure(ctx), keyRID, rid)
}

// RIDFrom returns the correlation id, if any.
func RIDFrom(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	rid, _ := ctx.Value(keyRID).(string)
	return rid
}

// WithUpdateMeta attaches the identifiers of the message being handled.
func WithUpdateMeta(ctx context.Context, updateID int, senderID, chatID string) context.Context {
	return context.WithValue(ensure(ctx), keyMessage, messageMeta{
		updateID: updateID,
		senderID: senderID,
		chatID:   chatID,
	})
}

func metaFrom(ctx context.Context) messageMeta {
	if ctx == nil {
		return messageMeta{}
	}
	m, _ := ctx.Value(keyMessage).(messageMeta)
	return m
}

// UpdateIDFrom returns the transport update id, or 0.
func UpdateIDFrom(ctx context.Context) int { return metaFrom(ctx).updateID }

// SenderIDFrom returns the sender of the message being handled.
func SenderIDFrom(ctx context.Context) string { return metaFrom(ctx).senderID }

// ChatIDFrom returns the chat of the message being handled.
func ChatIDFrom(ctx context.Context) string { return metaFrom(ctx).chatID }

// WithHandler records which command handler is running.
func WithHandler(ctx context.Context, name string) context.Context {
	ctx = ensure(ctx)
	if name == "" {
		return ctx
	}
	return context.WithValue(ctx, keyHandler, name)
}

// HandlerFrom returns the running command handler, if any.
func HandlerFrom(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	name, _ := ctx.Value(keyHandler).(string)
	return name
}
