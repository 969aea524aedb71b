package reminder

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/m3rciful/cmdbot/core/logger"
)

// Handle cancels an armed reminder.
type Handle interface {
	Stop()
}

// Backend arms a one-shot callback at fireAt.
type Backend interface {
	Arm(fireAt time.Time, fire func()) (Handle, error)
}

// TimerBackend arms in-process timers. Used for near-term reminders.
type TimerBackend struct {
	Now func() time.Time
}

// Arm schedules fire after fireAt minus now; past times fire immediately.
func (b TimerBackend) Arm(fireAt time.Time, fire func()) (Handle, error) {
	now := time.Now
	if b.Now != nil {
		now = b.Now
	}
	delay := fireAt.Sub(now())
	if delay < 0 {
		delay = 0
	}
	return timerHandle{t: time.AfterFunc(delay, fire)}, nil
}

type timerHandle struct{ t *time.Timer }

func (h timerHandle) Stop() { h.t.Stop() }

// CronBackend arms entries on a robfig/cron scheduler. Used for far-term reminders.
type CronBackend struct {
	c *cron.Cron
}

// NewCronBackend creates a started cron backend evaluating times in loc.
func NewCronBackend(loc *time.Location) *CronBackend {
	if loc == nil {
		loc = time.Local
	}
	cl := cronLogger{}
	c := cron.New(
		cron.WithLocation(loc),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl)),
	)
	c.Start()
	return &CronBackend{c: c}
}

// Arm adds a one-shot entry; the entry removes itself after it runs.
func (b *CronBackend) Arm(fireAt time.Time, fire func()) (Handle, error) {
	if !fireAt.After(time.Now()) {
		return nil, fmt.Errorf("reminder: fire time %s is not in the future", fireAt.Format(time.RFC3339))
	}
	h := &cronHandle{c: b.c}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.id = b.c.Schedule(onceSchedule{at: fireAt}, cron.FuncJob(func() {
		fire()
		h.Stop()
	}))
	return h, nil
}

// Entries reports how many entries the cron scheduler holds.
func (b *CronBackend) Entries() int {
	return len(b.c.Entries())
}

// Stop halts the cron scheduler and waits for running jobs or ctx.
func (b *CronBackend) Stop(ctx context.Context) error {
	done := b.c.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type cronHandle struct {
	c *cron.Cron

	mu      sync.Mutex
	id      cron.EntryID
	removed bool
}

func (h *cronHandle) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.removed {
		return
	}
	h.removed = true
	h.c.Remove(h.id)
}

// onceSchedule activates exactly once, at a fixed instant.
type onceSchedule struct {
	at time.Time
}

// Next returns at while it is still ahead of t, then the zero time,
// which cron treats as "never again".
func (s onceSchedule) Next(t time.Time) time.Time {
	if t.Before(s.at) {
		return s.at
	}
	return time.Time{}
}

// cronLogger routes cron's internal logging into the reminder component.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	if !logger.ShouldSampleDebug() {
		return
	}
	logger.Reminder.Debug(msg, append([]interface{}{slog.String("event", "cron.info")}, keysAndValues...)...)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	args := []interface{}{slog.String("event", "cron.error"), slog.String("err", err.Error()), slog.String("cause", msg)}
	logger.Reminder.Error(msg, append(args, keysAndValues...)...)
}
