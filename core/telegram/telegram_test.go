package telegram

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/m3rciful/cmdbot/core/chat"
	"github.com/m3rciful/cmdbot/core/command"
	coreconfig "github.com/m3rciful/cmdbot/core/config"
	"github.com/m3rciful/cmdbot/core/dispatch"
	"github.com/m3rciful/cmdbot/core/telegram/sender"

	tele "gopkg.in/telebot.v4"
)

func TestNormalizeBody(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"/ping", "!ping"},
		{"/ping@CmdBot hello world", "!ping hello world"},
		{"/ping@cmdbot", "!ping"},
		{"/ping@OtherBot", "/ping@OtherBot"},
		{"/load_fund CITIZEN 100", "!load_fund CITIZEN 100"},
		{"  !weather Kathmandu ", "!weather Kathmandu"},
		{"hello", "hello"},
		{"/", "/"},
	}
	for _, tt := range tests {
		if got := NormalizeBody(tt.in, "CmdBot", "!"); got != tt.want {
			t.Fatalf("NormalizeBody(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

type fakeAPI struct {
	mu   sync.Mutex
	sent []string
	to   []string
	err  error
}

func (f *fakeAPI) Send(to tele.Recipient, what interface{}, _ ...interface{}) (*tele.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.to = append(f.to, to.Recipient())
	f.sent = append(f.sent, what.(string))
	return &tele.Message{}, nil
}

func TestOutboundSendsToChat(t *testing.T) {
	api := &fakeAPI{}
	out := NewOutbound(api, nil)

	if err := out.SendMessage(context.Background(), "4242", "⏰ REMINDER: stretch"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if len(api.sent) != 1 || api.to[0] != "4242" || api.sent[0] != "⏰ REMINDER: stretch" {
		t.Fatalf("sent = %q to %q", api.sent, api.to)
	}
}

func TestOutboundRejectsNonNumericRecipient(t *testing.T) {
	out := NewOutbound(&fakeAPI{}, nil)
	if err := out.SendMessage(context.Background(), "alice", "hi"); err == nil {
		t.Fatalf("expected error for non-numeric recipient")
	}
}

func TestOutboundThroughQueue(t *testing.T) {
	api := &fakeAPI{}
	q := sender.NewQueue(sender.Options{Workers: 2})
	out := NewOutbound(api, q)

	for _, msg := range []string{"one", "two", "three"} {
		if err := out.SendMessage(context.Background(), "7", msg); err != nil {
			t.Fatalf("send: %v", err)
		}
	}
	q.Close()

	want := []string{"one", "two", "three"}
	if len(api.sent) != len(want) {
		t.Fatalf("sent = %q", api.sent)
	}
	for i := range want {
		if api.sent[i] != want[i] {
			t.Fatalf("order broken: %q", api.sent)
		}
	}
}

func TestOutboundFallsBackWhenQueueClosed(t *testing.T) {
	api := &fakeAPI{err: errors.New("blocked by user")}
	q := sender.NewQueue(sender.Options{})
	q.Close()

	err := NewOutbound(api, q).SendMessage(context.Background(), "7", "x")
	if err == nil || err.Error() != "blocked by user" {
		t.Fatalf("err = %v, want synchronous error after fallback", err)
	}
}

func TestMenuCommands(t *testing.T) {
	got := MenuCommands("!", []command.Descriptor{
		{Token: "!weather", Description: "Weather"},
		{Token: "!load-fund", Description: "Load"},
	})
	if len(got) != 2 || got[0].Text != "load_fund" || got[1].Text != "weather" {
		t.Fatalf("menu = %+v", got)
	}
}

type recordingRouter struct {
	mu   sync.Mutex
	msgs []chat.Message
}

func (r *recordingRouter) Route(_ context.Context, msg chat.Message) dispatch.Outcome {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
	return dispatch.OutcomeIgnored
}

func TestHandlerMapsUpdates(t *testing.T) {
	cfg := &coreconfig.Config{Telegram: coreconfig.TelegramConfig{Token: "123:abc", RunMode: coreconfig.RunModeLongpoll}}
	b, err := New(cfg, Options{Offline: true})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer b.queue.Close()

	router := &recordingRouter{}
	h := b.Handler(RunOptions{Router: router, Prefix: "!"})

	upd := tele.Update{ID: 9, Message: &tele.Message{
		Text:   "/remind 5m tea",
		Sender: &tele.User{ID: 11},
		Chat:   &tele.Chat{ID: 22, Type: tele.ChatPrivate},
	}}
	if err := h(b.tb.NewContext(upd)); err != nil {
		t.Fatalf("handler: %v", err)
	}

	if len(router.msgs) != 1 {
		t.Fatalf("routed %d messages", len(router.msgs))
	}
	msg := router.msgs[0]
	if msg.UpdateID != 9 || msg.SenderID != "11" || msg.ChatID != "22" || msg.Body != "!remind 5m tea" {
		t.Fatalf("message = %+v", msg)
	}
}
