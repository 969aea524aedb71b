// Package ratelimit implements per-sender sliding-window admission control.
package ratelimit

import (
	"sync"
	"time"
)

const (
	// DefaultWindow is the rolling interval admissions are counted over.
	DefaultWindow = 60 * time.Second
	// DefaultLimit is the number of admissions allowed per window.
	DefaultLimit = 10
)

// Options configures a Limiter.
type Options struct {
	Window time.Duration
	Limit  int
	// Now overrides the clock; nil uses time.Now.
	Now func() time.Time
}

// Limiter admits at most Limit calls per sender within any rolling Window.
type Limiter struct {
	window time.Duration
	limit  int
	now    func() time.Time

	mu      sync.Mutex
	windows map[string][]time.Time
}

// New builds a Limiter, applying defaults for zero options.
func New(opts Options) *Limiter {
	if opts.Window <= 0 {
		opts.Window = DefaultWindow
	}
	if opts.Limit <= 0 {
		opts.Limit = DefaultLimit
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Limiter{
		window:  opts.Window,
		limit:   opts.Limit,
		now:     opts.Now,
		windows: make(map[string][]time.Time),
	}
}

// Admit records a call for senderID and reports whether it is allowed.
// Rejected calls are not recorded.
func (l *Limiter) Admit(senderID string) bool {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	entries := prune(l.windows[senderID], now, l.window)
	if len(entries) >= l.limit {
		l.windows[senderID] = entries
		return false
	}
	l.windows[senderID] = append(entries, now)
	return true
}

// Remaining reports how many admissions senderID has left in the current window.
func (l *Limiter) Remaining(senderID string) int {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	n := l.limit - len(prune(l.windows[senderID], now, l.window))
	if n < 0 {
		return 0
	}
	return n
}

// Reset forgets all recorded admissions for senderID.
func (l *Limiter) Reset(senderID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.windows, senderID)
}

// Prune drops expired entries for every sender and forgets idle senders.
// It returns the number of senders still tracked.
func (l *Limiter) Prune() int {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	for id, entries := range l.windows {
		kept := prune(entries, now, l.window)
		if len(kept) == 0 {
			delete(l.windows, id)
			continue
		}
		l.windows[id] = kept
	}
	return len(l.windows)
}

// prune keeps entries younger than window; entries are in admission order.
func prune(entries []time.Time, now time.Time, window time.Duration) []time.Time {
	i := 0
	for i < len(entries) && now.Sub(entries[i]) >= window {
		i++
	}
	if i == 0 {
		return entries
	}
	kept := make([]time.Time, len(entries)-i)
	copy(kept, entries[i:])
	return kept
}
