// Package reminder schedules one-off reminder deliveries.
//
// Near-term reminders run on in-process timers; far-term ones are handed to a
// calendar scheduler. Both paths end in the same fire action, which removes
// the reminder before delivering it so a reminder fires at most once.
package reminder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/m3rciful/cmdbot/core/apperr"
	"github.com/m3rciful/cmdbot/core/chat"
	"github.com/m3rciful/cmdbot/core/logger"
	"github.com/m3rciful/cmdbot/core/metrics"
)

// DefaultNearThreshold separates timer-backed from scheduled reminders.
const DefaultNearThreshold = 120 * time.Second

// DeliveryPrefix starts every delivered reminder.
const DeliveryPrefix = "⏰ REMINDER: "

const defaultDeliveryTimeout = 15 * time.Second

// Mode is the delivery mechanism picked for a reminder.
type Mode string

const (
	ModeTimer     Mode = "timer"
	ModeScheduled Mode = "scheduled"
)

// SelectMode picks the backend for a reminder due after delay.
func SelectMode(delay, threshold time.Duration) Mode {
	if threshold <= 0 {
		threshold = DefaultNearThreshold
	}
	if delay < threshold {
		return ModeTimer
	}
	return ModeScheduled
}

// Reminder is a pending delivery.
type Reminder struct {
	ID        int64
	Owner     string
	FireAt    time.Time
	Payload   string
	Mode      Mode
	CreatedAt time.Time
}

// ErrStopped is returned by Create after Stop.
var ErrStopped = errors.New("reminder: scheduler stopped")

// Options configures a Scheduler.
type Options struct {
	Sender chat.Sender
	// Near and Far default to TimerBackend and a started CronBackend.
	Near          Backend
	Far           Backend
	NearThreshold time.Duration
	Location      *time.Location
	Now           func() time.Time
	// DeliveryTimeout bounds a single SendMessage call.
	DeliveryTimeout time.Duration
}

type entry struct {
	Reminder
	handle Handle
}

// Scheduler owns all pending reminders.
type Scheduler struct {
	sender          chat.Sender
	near            Backend
	far             Backend
	ownedFar        *CronBackend
	threshold       time.Duration
	now             func() time.Time
	deliveryTimeout time.Duration

	mu      sync.Mutex
	nextID  int64
	entries map[int64]*entry
	stopped bool
}

// New builds a Scheduler. Sender is required.
func New(opts Options) (*Scheduler, error) {
	if opts.Sender == nil {
		return nil, fmt.Errorf("reminder: sender is required")
	}
	s := &Scheduler{
		sender:          opts.Sender,
		near:            opts.Near,
		far:             opts.Far,
		threshold:       opts.NearThreshold,
		now:             opts.Now,
		deliveryTimeout: opts.DeliveryTimeout,
		entries:         make(map[int64]*entry),
	}
	if s.threshold <= 0 {
		s.threshold = DefaultNearThreshold
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.deliveryTimeout <= 0 {
		s.deliveryTimeout = defaultDeliveryTimeout
	}
	if s.near == nil {
		s.near = TimerBackend{Now: s.now}
	}
	if s.far == nil {
		s.ownedFar = NewCronBackend(opts.Location)
		s.far = s.ownedFar
	}
	return s, nil
}

// Create schedules payload for owner at fireAt and returns the reminder id.
// Ids are unique and increase from 1.
func (s *Scheduler) Create(ctx context.Context, owner string, fireAt time.Time, payload string) (int64, error) {
	owner = strings.TrimSpace(owner)
	payload = strings.TrimSpace(payload)
	if owner == "" {
		return 0, apperr.Validation("Reminder owner is missing")
	}
	if payload == "" {
		return 0, apperr.Validation("Reminder message cannot be empty")
	}

	now := s.now()
	mode := SelectMode(fireAt.Sub(now), s.threshold)
	backend := s.near
	if mode == ModeScheduled {
		backend = s.far
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return 0, ErrStopped
	}

	s.nextID++
	id := s.nextID
	e := &entry{Reminder: Reminder{
		ID:        id,
		Owner:     owner,
		FireAt:    fireAt,
		Payload:   payload,
		Mode:      mode,
		CreatedAt: now,
	}}
	// The fire callback takes s.mu, so it cannot observe the entry before
	// it is stored below.
	handle, err := backend.Arm(fireAt, func() { s.fire(id) })
	if err != nil {
		logger.LogEvent(ctx, logger.Reminder, slog.LevelError, "reminder.arm_failed",
			slog.Int64("reminder_id", id),
			slog.String("mode", string(mode)),
			slog.String("err", err.Error()),
		)
		return 0, apperr.Wrap(apperr.KindUnexpected, apperr.CodeUnknown, "Failed to create reminder", err)
	}
	e.handle = handle
	s.entries[id] = e

	metrics.RemindersScheduled.WithLabelValues(string(mode)).Inc()
	metrics.RemindersActive.Inc()
	logger.LogEvent(ctx, logger.Reminder, slog.LevelInfo, "reminder.created",
		slog.Int64("reminder_id", id),
		slog.String("mode", string(mode)),
		slog.Time("fire_at", fireAt),
	)
	return id, nil
}

// Cancel removes a reminder and stops its backend handle.
// Unknown ids report false.
func (s *Scheduler) Cancel(id int64) bool {
	s.mu.Lock()
	e, ok := s.entries[id]
	if ok {
		delete(s.entries, id)
	}
	s.mu.Unlock()
	if !ok {
		return false
	}
	e.handle.Stop()
	metrics.RemindersActive.Dec()
	logger.Reminder.Info("reminder cancelled",
		slog.String("event", "reminder.cancelled"),
		slog.Int64("reminder_id", id),
	)
	return true
}

// CancelOwned cancels id only if it belongs to owner.
func (s *Scheduler) CancelOwned(owner string, id int64) bool {
	s.mu.Lock()
	e, ok := s.entries[id]
	if !ok || e.Owner != owner {
		s.mu.Unlock()
		return false
	}
	s.mu.Unlock()
	return s.Cancel(id)
}

// Get returns a pending reminder by id.
func (s *Scheduler) Get(id int64) (Reminder, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok {
		return Reminder{}, false
	}
	return e.Reminder, true
}

// ListForOwner returns the owner's pending reminders ordered by fire time.
func (s *Scheduler) ListForOwner(owner string) []Reminder {
	s.mu.Lock()
	out := make([]Reminder, 0)
	for _, e := range s.entries {
		if e.Owner == owner {
			out = append(out, e.Reminder)
		}
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].FireAt.Equal(out[j].FireAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].FireAt.Before(out[j].FireAt)
	})
	return out
}

// Len reports the number of pending reminders.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Stop cancels every pending reminder and shuts down an owned cron backend.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	s.stopped = true
	pending := s.entries
	s.entries = make(map[int64]*entry)
	s.mu.Unlock()

	for _, e := range pending {
		e.handle.Stop()
	}
	metrics.RemindersActive.Sub(float64(len(pending)))
	logger.LogEvent(ctx, logger.Reminder, slog.LevelInfo, "reminder.stopped",
		slog.Int("dropped", len(pending)),
	)
	if s.ownedFar != nil {
		return s.ownedFar.Stop(ctx)
	}
	return nil
}

// fire is the single delivery path for both backends.
func (s *Scheduler) fire(id int64) {
	s.mu.Lock()
	e, ok := s.entries[id]
	if ok {
		delete(s.entries, id)
	}
	s.mu.Unlock()
	if !ok {
		return
	}
	metrics.RemindersActive.Dec()

	ctx, cancel := context.WithTimeout(context.Background(), s.deliveryTimeout)
	defer cancel()
	ctx = logger.WithUpdateMeta(ctx, 0, e.Owner, e.Owner)

	err := s.sender.SendMessage(ctx, e.Owner, DeliveryPrefix+e.Payload)
	metrics.RemindersDispatched.WithLabelValues(metrics.Status(err)).Inc()
	if err != nil {
		// No retry: reminders are best effort.
		logger.LogEvent(ctx, logger.Reminder, slog.LevelWarn, "reminder.dispatch_failed",
			slog.String("status", "fail"),
			slog.Int64("reminder_id", id),
			slog.String("err", logger.SanitizeLimit(err.Error(), 256)),
		)
		return
	}
	lateness := s.now().Sub(e.FireAt)
	logger.LogEvent(ctx, logger.Reminder, slog.LevelInfo, "reminder.dispatched",
		slog.String("status", "ok"),
		slog.Int64("reminder_id", id),
		slog.String("mode", string(e.Mode)),
		slog.Int64("lateness_ms", logger.RoundMS(lateness).Milliseconds()),
	)
}
