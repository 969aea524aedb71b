// Package chat defines the transport-neutral message contracts shared by the
// dispatcher, the scheduler and the messaging adapters.
package chat

import (
	"context"
	"time"
)

// Replier answers the message it belongs to.
type Replier interface {
	Reply(ctx context.Context, content string) error
}

// ReplierFunc adapts a function to Replier.
type ReplierFunc func(ctx context.Context, content string) error

// Reply calls f.
func (f ReplierFunc) Reply(ctx context.Context, content string) error {
	return f(ctx, content)
}

// Sender delivers unsolicited messages, e.g. fired reminders.
type Sender interface {
	SendMessage(ctx context.Context, recipientID, content string) error
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(ctx context.Context, recipientID, content string) error

// SendMessage calls f.
func (f SenderFunc) SendMessage(ctx context.Context, recipientID, content string) error {
	return f(ctx, recipientID, content)
}

// Message is a single inbound text message.
type Message struct {
	// UpdateID is the transport's event id, 0 when unknown.
	UpdateID int
	SenderID string
	ChatID   string
	Body     string
	Replier  Replier

	// ReceivedAt is when the transport accepted the message; zero when unknown.
	ReceivedAt time.Time
}

// Reply answers through the message's reply capability.
// Messages without one drop the reply.
func (m Message) Reply(ctx context.Context, content string) error {
	if m.Replier == nil {
		return nil
	}
	return m.Replier.Reply(ctx, content)
}
