package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/m3rciful/cmdbot/core/chat"
	"github.com/m3rciful/cmdbot/core/logger"
	"github.com/m3rciful/cmdbot/core/telegram/sender"

	tele "gopkg.in/telebot.v4"
)

// NormalizeBody rewrites Telegram command syntax ("/cmd@bot args") into the
// bot's own prefix ("!cmd args"). Other text is returned trimmed.
func NormalizeBody(text, botUsername, prefix string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return text
	}
	head, rest, _ := strings.Cut(text, " ")
	head = strings.TrimPrefix(head, "/")
	if name, target, ok := strings.Cut(head, "@"); ok {
		if botUsername != "" && !strings.EqualFold(target, botUsername) {
			// Addressed to another bot in the group.
			return text
		}
		head = name
	}
	if head == "" {
		return text
	}
	if rest = strings.TrimSpace(rest); rest != "" {
		return prefix + head + " " + rest
	}
	return prefix + head
}

// MessageFrom maps a text update into a chat.Message whose replies go
// through q (or directly when q is nil).
func MessageFrom(c tele.Context, q *sender.Queue, botUsername, prefix string) chat.Message {
	senderID, chatID := identities(c)
	return chat.Message{
		UpdateID:   c.Update().ID,
		SenderID:   senderID,
		ChatID:     chatID,
		Body:       NormalizeBody(c.Text(), botUsername, prefix),
		ReceivedAt: time.Now(),
		Replier: chat.ReplierFunc(func(ctx context.Context, content string) error {
			return enqueue(ctx, q, chatID, "send.reply", func(context.Context) error {
				return c.Send(content, tele.NoPreview)
			})
		}),
	}
}

// API is the part of the bot used for unsolicited messages.
type API interface {
	Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error)
}

// Outbound delivers messages to a chat id on behalf of the scheduler.
type Outbound struct {
	api   API
	queue *sender.Queue
}

// NewOutbound builds an Outbound; queue may be nil for synchronous sends.
func NewOutbound(api API, queue *sender.Queue) *Outbound {
	return &Outbound{api: api, queue: queue}
}

// SendMessage implements chat.Sender. recipientID must be a numeric chat id.
func (o *Outbound) SendMessage(ctx context.Context, recipientID, content string) error {
	id, err := strconv.ParseInt(strings.TrimSpace(recipientID), 10, 64)
	if err != nil {
		return fmt.Errorf("telegram: invalid recipient %q: %w", recipientID, err)
	}
	return enqueue(ctx, o.queue, recipientID, "send.message", func(context.Context) error {
		_, err := o.api.Send(tele.ChatID(id), content, tele.NoPreview)
		return err
	})
}

func enqueue(ctx context.Context, q *sender.Queue, key, action string, run func(context.Context) error) error {
	if q == nil {
		return run(ctx)
	}
	err := q.Enqueue(ctx, sender.Job{Key: key, Action: action, Run: run})
	if errors.Is(err, sender.ErrQueueFull) || errors.Is(err, sender.ErrQueueClosed) {
		logger.Warn(ctx, "tg.sender", "queue.fallback",
			slog.String("action", action),
			slog.String("err", err.Error()),
		)
		return run(ctx)
	}
	return err
}
