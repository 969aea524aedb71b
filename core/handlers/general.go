package handlers

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/m3rciful/cmdbot/core/apperr"
	"github.com/m3rciful/cmdbot/core/calc"
	"github.com/m3rciful/cmdbot/core/chat"
	"github.com/m3rciful/cmdbot/core/command"
)

// HelpHeader starts the !help reply.
const HelpHeader = "🤖 Command Center"

// DefaultFAQ answers !ask when no FAQ is configured.
var DefaultFAQ = map[string]string{
	"list commands": "You can see all available commands by typing `!help`.",
	"bot commands":  "Type `!help` to see a list of all available commands.",
	"help":          "Type `!help` to see all available commands and their descriptions.",
	"reminder":      "Set one with `!remind 5min coffee break` and list them with `!reminders`.",
}

const askNoMatch = "I couldn't find a specific answer to your question. Type `!help` to see what I can do."

func general(d Deps) []command.Descriptor {
	return []command.Descriptor{
		{
			Token:       "!help",
			Description: "Show this help message",
			Category:    CategoryGeneral,
			Handler:     command.HandlerFunc(d.help),
		},
		{
			Token:       "!ping",
			Description: "Check bot responsiveness",
			Category:    CategoryGeneral,
			Handler:     command.HandlerFunc(d.ping),
		},
		{
			Token:       "!info",
			Description: "Show bot information",
			Category:    CategoryGeneral,
			Handler:     command.HandlerFunc(d.info),
		},
		{
			Token:       "!calc",
			Usage:       "!calc [expression]",
			Description: "Calculate math expressions",
			Category:    CategoryUtilities,
			Handler:     command.HandlerFunc(calculate),
		},
		{
			Token:       "!ask",
			Usage:       "!ask [question]",
			Description: "Get answers to common questions",
			Category:    CategoryGeneral,
			Handler:     command.HandlerFunc(d.ask),
		},
	}
}

func (d Deps) help(ctx context.Context, msg chat.Message, _ []string) error {
	if d.Registry == nil {
		return errors.New("help: registry not wired")
	}
	admin := d.IsAdmin != nil && d.IsAdmin(msg.SenderID)
	return msg.Reply(ctx, RenderHelp(d.Registry.List(false), admin))
}

// RenderHelp lists descriptors grouped by category. Hidden commands are
// skipped; admin-only ones are shown to admins only.
func RenderHelp(ds []command.Descriptor, admin bool) string {
	groups := make(map[string][]command.Descriptor)
	for _, desc := range ds {
		if desc.Hidden || (desc.AdminOnly && !admin) {
			continue
		}
		cat := desc.Category
		if cat == "" {
			cat = CategoryGeneral
		}
		groups[cat] = append(groups[cat], desc)
	}

	order := append([]string(nil), categoryOrder...)
	var extra []string
	for cat := range groups {
		if !contains(categoryOrder, cat) {
			extra = append(extra, cat)
		}
	}
	sort.Strings(extra)
	order = append(order, extra...)

	var b strings.Builder
	b.WriteString(HelpHeader)
	b.WriteString("\n")
	for _, cat := range order {
		list := groups[cat]
		if len(list) == 0 {
			continue
		}
		fmt.Fprintf(&b, "\n%s:\n", cat)
		for _, desc := range list {
			usage := desc.Usage
			if usage == "" {
				usage = desc.Token
			}
			fmt.Fprintf(&b, "%s - %s", usage, desc.Description)
			if desc.AdminOnly {
				b.WriteString(" (admin)")
			}
			b.WriteString("\n")
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func (d Deps) ping(ctx context.Context, msg chat.Message, _ []string) error {
	var elapsed time.Duration
	if !msg.ReceivedAt.IsZero() {
		elapsed = d.now().Sub(msg.ReceivedAt)
		if elapsed < 0 {
			elapsed = 0
		}
	}
	return msg.Reply(ctx, fmt.Sprintf("🏓 Pong! Response time: %dms", elapsed.Milliseconds()))
}

func (d Deps) info(ctx context.Context, msg chat.Message, _ []string) error {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	version := d.Version
	if version == "" {
		version = "dev"
	}
	uptime := time.Duration(0)
	if !d.StartedAt.IsZero() {
		uptime = d.now().Sub(d.StartedAt)
	}
	text := fmt.Sprintf("🤖 Bot Information\n\n"+
		"Version: %s\n"+
		"Uptime: %s\n"+
		"Go: %s\n"+
		"Memory Usage: %d MB\n"+
		"Goroutines: %d\n\n"+
		"Type %shelp to see available commands.",
		version, FormatUptime(uptime), runtime.Version(),
		mem.Sys/1024/1024, runtime.NumGoroutine(), d.prefix())
	return msg.Reply(ctx, text)
}

// FormatUptime renders d as "1d 2h 3m 4s".
func FormatUptime(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	s := int64(d / time.Second)
	return fmt.Sprintf("%dd %dh %dm %ds", s/86400, (s%86400)/3600, (s%3600)/60, s%60)
}

func calculate(ctx context.Context, msg chat.Message, args []string) error {
	if len(args) == 0 {
		return apperr.Validation("Please provide an expression. Example: !calc 2 + 2")
	}
	expr := strings.Join(args, " ")
	v, err := calc.Eval(expr)
	switch {
	case errors.Is(err, calc.ErrDivisionByZero):
		return apperr.Validation("Cannot divide by zero")
	case err != nil:
		return apperr.Validation("Invalid expression. Please use basic arithmetic operators (+, -, *, /)")
	}
	return msg.Reply(ctx, fmt.Sprintf("🔢 %s = %s", expr, calc.Format(v)))
}

func (d Deps) ask(ctx context.Context, msg chat.Message, args []string) error {
	question := strings.TrimSpace(strings.Join(args, " "))
	if question == "" {
		return apperr.Validation("Please ask a question!")
	}
	faq := d.FAQ
	if len(faq) == 0 {
		faq = DefaultFAQ
	}
	if answer, ok := BestMatch(question, faq); ok {
		return msg.Reply(ctx, answer)
	}
	return msg.Reply(ctx, askNoMatch)
}

// BestMatch returns the answer whose key phrase is contained in question,
// preferring the longest key. Matching ignores case.
func BestMatch(question string, faq map[string]string) (string, bool) {
	question = strings.ToLower(question)
	best := ""
	for key := range faq {
		k := strings.ToLower(key)
		if k == "" || !strings.Contains(question, k) {
			continue
		}
		if len(k) > len(best) || (len(k) == len(best) && k < best) {
			best = k
		}
	}
	if best == "" {
		return "", false
	}
	for key, answer := range faq {
		if strings.ToLower(key) == best {
			return answer, true
		}
	}
	return "", false
}
