package command

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/m3rciful/cmdbot/core/logger"
)

var (
	// ErrInvalidCommand is returned for descriptors missing a token, handler or description.
	ErrInvalidCommand = errors.New("command: invalid descriptor")
	// ErrDuplicateCommand is returned when a token or alias is already taken.
	ErrDuplicateCommand = errors.New("command: duplicate token")
)

// Registry maps command tokens and aliases to descriptors.
type Registry struct {
	prefix string

	mu       sync.RWMutex
	commands map[string]Descriptor
	index    map[string]string
}

// NewRegistry creates an empty Registry for tokens starting with prefix.
// An empty prefix selects DefaultPrefix.
func NewRegistry(prefix string) *Registry {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Registry{
		prefix:   prefix,
		commands: make(map[string]Descriptor),
		index:    make(map[string]string),
	}
}

// Prefix returns the token prefix commands must start with.
func (r *Registry) Prefix() string {
	return r.prefix
}

// Register adds a command. The first registration of a token or alias wins;
// later ones fail with ErrDuplicateCommand and are not stored.
func (r *Registry) Register(d Descriptor) error {
	token := Normalize(d.Token)
	if token == "" || d.Handler == nil || d.Description == "" {
		logger.TWire.LogAttrs(context.Background(), slog.LevelWarn, "register.command.skip",
			slog.String("command", d.Token),
			slog.String("reason", "invalid"),
		)
		return fmt.Errorf("%w: %q", ErrInvalidCommand, d.Token)
	}

	keys := []string{token}
	for _, alias := range d.Aliases {
		if a := Normalize(alias); a != "" && a != token {
			keys = append(keys, a)
		}
	}
	for _, k := range keys {
		if !strings.HasPrefix(k, r.prefix) || len(k) == len(r.prefix) {
			logger.TWire.LogAttrs(context.Background(), slog.LevelWarn, "register.command.skip",
				slog.String("command", k),
				slog.String("reason", "no_prefix"),
			)
			return fmt.Errorf("%w: %q must start with %q", ErrInvalidCommand, k, r.prefix)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, k := range keys {
		if owner, exists := r.index[k]; exists {
			logger.TWire.LogAttrs(context.Background(), slog.LevelWarn, "register.command.duplicate",
				slog.String("command", k),
				slog.String("owner", owner),
			)
			return fmt.Errorf("%w: %q already registered by %q", ErrDuplicateCommand, k, owner)
		}
	}

	d.Token = token
	d.Aliases = keys[1:]
	r.commands[token] = d
	for _, k := range keys {
		r.index[k] = token
	}
	return nil
}

// RegisterAll registers every descriptor and joins the failures.
func (r *Registry) RegisterAll(ds ...Descriptor) error {
	var errs []error
	for _, d := range ds {
		if err := r.Register(d); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Lookup finds a descriptor by token or alias, case-insensitively.
func (r *Registry) Lookup(token string) (Descriptor, bool) {
	token = Normalize(token)
	r.mu.RLock()
	defer r.mu.RUnlock()
	canonical, ok := r.index[token]
	if !ok {
		return Descriptor{}, false
	}
	d, ok := r.commands[canonical]
	return d, ok
}

// Resolve parses a message body and looks up its first token.
func (r *Registry) Resolve(body string) (Descriptor, []string, bool) {
	token, args := Parse(body)
	if token == "" {
		return Descriptor{}, nil, false
	}
	d, ok := r.Lookup(token)
	if !ok {
		return Descriptor{}, nil, false
	}
	return d, args, true
}

// List returns descriptors sorted by token, optionally skipping hidden and admin-only ones.
func (r *Registry) List(visibleOnly bool) []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	list := make([]Descriptor, 0, len(r.commands))
	for _, d := range r.commands {
		if visibleOnly && (d.Hidden || d.AdminOnly) {
			continue
		}
		list = append(list, d)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Token < list[j].Token })
	return list
}

// Len reports the number of registered commands, aliases excluded.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.commands)
}
