// Package console serves the dispatcher from a line-oriented terminal, one
// message per line from a fixed sender. It is the local test mode.
package console

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/m3rciful/cmdbot/core/chat"
	"github.com/m3rciful/cmdbot/core/dispatch"
	"github.com/m3rciful/cmdbot/core/logger"
)

// Router handles one inbound message.
type Router interface {
	Route(ctx context.Context, msg chat.Message) dispatch.Outcome
}

// Terminal serializes everything written to the console.
type Terminal struct {
	mu  sync.Mutex
	out io.Writer
}

// NewTerminal wraps out.
func NewTerminal(out io.Writer) *Terminal {
	return &Terminal{out: out}
}

func (t *Terminal) println(s string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, err := fmt.Fprintln(t.out, s)
	return err
}

func (t *Terminal) print(s string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, _ = fmt.Fprint(t.out, s)
}

// SendMessage implements chat.Sender for unsolicited messages such as reminders.
func (t *Terminal) SendMessage(_ context.Context, recipientID, content string) error {
	return t.println(fmt.Sprintf("[to %s] %s", recipientID, content))
}

// Options configures Run.
type Options struct {
	In       io.Reader
	Terminal *Terminal
	SenderID string
	Prompt   string
	Router   Router
}

// Run reads lines until EOF, "exit" or ctx cancellation. Each non-empty
// line is routed as a message from SenderID; replies print to the terminal.
func Run(ctx context.Context, opts Options) error {
	if opts.Router == nil || opts.In == nil || opts.Terminal == nil {
		return fmt.Errorf("console: router, input and terminal are required")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	term := opts.Terminal
	replier := chat.ReplierFunc(func(_ context.Context, content string) error {
		return term.println(content)
	})

	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(opts.In)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr <- sc.Err()
	}()

	logger.Info(ctx, "console", "console.ready", slog.String("sender_id", opts.SenderID))
	updateID := 0
	for {
		term.print(opts.Prompt)
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-scanErr:
					return err
				default:
					return nil
				}
			}
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			if line == "exit" || line == "quit" {
				return nil
			}
			updateID++
			opts.Router.Route(ctx, chat.Message{
				UpdateID:   updateID,
				SenderID:   opts.SenderID,
				ChatID:     opts.SenderID,
				Body:       line,
				Replier:    replier,
				ReceivedAt: time.Now(),
			})
		}
	}
}
