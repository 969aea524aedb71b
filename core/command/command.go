// Package command holds the static command registry consulted by the dispatcher.
package command

import (
	"context"
	"strings"

	"github.com/m3rciful/cmdbot/core/chat"
)

// DefaultPrefix starts every command token.
const DefaultPrefix = "!"

// Handler executes a command. args are the tokens after the command token.
type Handler interface {
	Execute(ctx context.Context, msg chat.Message, args []string) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, msg chat.Message, args []string) error

// Execute calls f.
func (f HandlerFunc) Execute(ctx context.Context, msg chat.Message, args []string) error {
	return f(ctx, msg, args)
}

// Descriptor represents a bot command with its handler, description, and metadata.
type Descriptor struct {
	Token       string
	Description string
	// Usage is shown by !help, e.g. "!remind [time] [message]".
	Usage string
	// Category groups commands in !help.
	Category  string
	AdminOnly bool
	Hidden    bool
	Aliases   []string
	Handler   Handler
}

// Parse splits a message body into its lower-cased command token and args.
func Parse(body string) (string, []string) {
	fields := strings.Fields(body)
	if len(fields) == 0 {
		return "", nil
	}
	return Normalize(fields[0]), fields[1:]
}

// Normalize lower-cases and trims a command token.
func Normalize(token string) string {
	return strings.ToLower(strings.TrimSpace(token))
}
