package reminder

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/m3rciful/cmdbot/core/apperr"
	"github.com/m3rciful/cmdbot/core/metrics"
)

type sent struct {
	to      string
	content string
	at      time.Time
}

type recordingSender struct {
	mu   sync.Mutex
	msgs []sent
	err  error
	ch   chan sent
}

func newRecordingSender() *recordingSender {
	return &recordingSender{ch: make(chan sent, 16)}
}

func (r *recordingSender) SendMessage(_ context.Context, to, content string) error {
	m := sent{to: to, content: content, at: time.Now()}
	r.mu.Lock()
	r.msgs = append(r.msgs, m)
	err := r.err
	r.mu.Unlock()
	r.ch <- m
	return err
}

func (r *recordingSender) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.msgs)
}

// fakeBackend records armed callbacks so tests can fire them by hand.
type fakeBackend struct {
	mu    sync.Mutex
	armed map[time.Time][]func()
	stops int
	err   error
}

type fakeHandle struct{ b *fakeBackend }

func (h fakeHandle) Stop() {
	h.b.mu.Lock()
	h.b.stops++
	h.b.mu.Unlock()
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{armed: make(map[time.Time][]func())}
}

func (b *fakeBackend) Arm(at time.Time, fire func()) (Handle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return nil, b.err
	}
	b.armed[at] = append(b.armed[at], fire)
	return fakeHandle{b: b}, nil
}

func (b *fakeBackend) fireAll() {
	b.mu.Lock()
	var fns []func()
	for _, list := range b.armed {
		fns = append(fns, list...)
	}
	b.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

func (b *fakeBackend) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, list := range b.armed {
		n += len(list)
	}
	return n
}

var testNow = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func newTestScheduler(t *testing.T) (*Scheduler, *fakeBackend, *fakeBackend, *recordingSender) {
	t.Helper()
	near, far := newFakeBackend(), newFakeBackend()
	sender := newRecordingSender()
	s, err := New(Options{
		Sender: sender,
		Near:   near,
		Far:    far,
		Now:    func() time.Time { return testNow },
	})
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}
	return s, near, far, sender
}

func TestSelectMode(t *testing.T) {
	tests := []struct {
		delay time.Duration
		want  Mode
	}{
		{0, ModeTimer},
		{-time.Second, ModeTimer},
		{119999 * time.Millisecond, ModeTimer},
		{120000 * time.Millisecond, ModeScheduled},
		{24 * time.Hour, ModeScheduled},
	}
	for _, tt := range tests {
		if got := SelectMode(tt.delay, DefaultNearThreshold); got != tt.want {
			t.Fatalf("SelectMode(%v) = %s, want %s", tt.delay, got, tt.want)
		}
	}
	if got := SelectMode(time.Minute, 0); got != ModeTimer {
		t.Fatalf("zero threshold should fall back to default, got %s", got)
	}
}

func TestCreatePicksBackendByDistance(t *testing.T) {
	s, near, far, _ := newTestScheduler(t)
	ctx := context.Background()

	nearID, err := s.Create(ctx, "alice", testNow.Add(30*time.Second), "stretch")
	if err != nil {
		t.Fatalf("create near: %v", err)
	}
	farID, err := s.Create(ctx, "alice", testNow.Add(3*time.Hour), "meeting")
	if err != nil {
		t.Fatalf("create far: %v", err)
	}

	if nearID != 1 || farID != 2 {
		t.Fatalf("ids = %d, %d; want 1, 2", nearID, farID)
	}
	if near.count() != 1 || far.count() != 1 {
		t.Fatalf("near=%d far=%d, want 1 each", near.count(), far.count())
	}
	if r, _ := s.Get(nearID); r.Mode != ModeTimer {
		t.Fatalf("near mode = %s", r.Mode)
	}
	if r, _ := s.Get(farID); r.Mode != ModeScheduled {
		t.Fatalf("far mode = %s", r.Mode)
	}
}

func TestFireDeliversOnceAndRemoves(t *testing.T) {
	s, near, _, sender := newTestScheduler(t)

	id, err := s.Create(context.Background(), "alice", testNow.Add(time.Second), "tea")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	near.fireAll()
	near.fireAll()

	if got := sender.count(); got != 1 {
		t.Fatalf("deliveries = %d, want 1", got)
	}
	msg := <-sender.ch
	if msg.to != "alice" || msg.content != "⏰ REMINDER: tea" {
		t.Fatalf("delivered %+v", msg)
	}
	if _, ok := s.Get(id); ok {
		t.Fatalf("fired reminder must be removed")
	}
	if s.Len() != 0 {
		t.Fatalf("len = %d", s.Len())
	}
}

func TestCancelStopsHandleAndPreventsDelivery(t *testing.T) {
	s, _, far, sender := newTestScheduler(t)

	id, _ := s.Create(context.Background(), "alice", testNow.Add(time.Hour), "standup")
	if !s.Cancel(id) {
		t.Fatalf("cancel returned false")
	}
	if far.stops != 1 {
		t.Fatalf("handle stops = %d, want 1", far.stops)
	}
	far.fireAll()
	if sender.count() != 0 {
		t.Fatalf("cancelled reminder was delivered")
	}
	if s.Cancel(id) {
		t.Fatalf("second cancel should report false")
	}
	if s.Cancel(999) {
		t.Fatalf("unknown id should report false")
	}
}

func TestCancelOwned(t *testing.T) {
	s, _, _, _ := newTestScheduler(t)
	id, _ := s.Create(context.Background(), "alice", testNow.Add(time.Hour), "x")

	if s.CancelOwned("bob", id) {
		t.Fatalf("bob must not cancel alice's reminder")
	}
	if !s.CancelOwned("alice", id) {
		t.Fatalf("alice should cancel her reminder")
	}
}

func TestDeliveryFailureIsSwallowed(t *testing.T) {
	s, near, _, sender := newTestScheduler(t)
	sender.err = errors.New("client offline")

	id, _ := s.Create(context.Background(), "alice", testNow.Add(time.Second), "tea")
	near.fireAll()

	if sender.count() != 1 {
		t.Fatalf("expected a single attempt, got %d", sender.count())
	}
	if _, ok := s.Get(id); ok {
		t.Fatalf("failed delivery must not re-queue the reminder")
	}
}

func TestFireCountsDispatchByStatus(t *testing.T) {
	s, near, _, sender := newTestScheduler(t)
	ok := metrics.RemindersDispatched.WithLabelValues("ok")
	fail := metrics.RemindersDispatched.WithLabelValues("fail")
	okBefore, failBefore := testutil.ToFloat64(ok), testutil.ToFloat64(fail)

	s.Create(context.Background(), "alice", testNow.Add(time.Second), "tea")
	near.fireAll()
	sender.err = errors.New("queue full")
	s.Create(context.Background(), "alice", testNow.Add(time.Second), "coffee")
	near.fireAll()

	if got := testutil.ToFloat64(ok) - okBefore; got != 1 {
		t.Fatalf("ok dispatches = %v, want 1", got)
	}
	if got := testutil.ToFloat64(fail) - failBefore; got != 1 {
		t.Fatalf("failed dispatches = %v, want 1", got)
	}
}

func TestCreateValidation(t *testing.T) {
	s, _, _, _ := newTestScheduler(t)

	_, err := s.Create(context.Background(), "alice", testNow.Add(time.Minute), "   ")
	var ae *apperr.Error
	if !errors.As(err, &ae) || ae.Kind() != apperr.KindValidation {
		t.Fatalf("empty payload: got %v", err)
	}
	if _, err := s.Create(context.Background(), "", testNow.Add(time.Minute), "x"); err == nil {
		t.Fatalf("missing owner should fail")
	}
	if s.Len() != 0 {
		t.Fatalf("invalid requests must not be stored")
	}
}

func TestCreateArmFailure(t *testing.T) {
	s, _, far, _ := newTestScheduler(t)
	far.err = errors.New("scheduler full")

	if _, err := s.Create(context.Background(), "alice", testNow.Add(time.Hour), "x"); err == nil {
		t.Fatalf("expected arm failure to surface")
	}
	if s.Len() != 0 {
		t.Fatalf("failed reminder must not be stored")
	}
}

func TestListForOwnerOrdersByFireTime(t *testing.T) {
	s, _, _, _ := newTestScheduler(t)
	ctx := context.Background()

	s.Create(ctx, "alice", testNow.Add(2*time.Hour), "late")
	s.Create(ctx, "bob", testNow.Add(time.Minute), "other")
	s.Create(ctx, "alice", testNow.Add(10*time.Second), "early")

	list := s.ListForOwner("alice")
	if len(list) != 2 || list[0].Payload != "early" || list[1].Payload != "late" {
		t.Fatalf("list = %+v", list)
	}
	if got := s.ListForOwner("carol"); len(got) != 0 {
		t.Fatalf("carol has %d reminders", len(got))
	}
}

func TestIDsAreUniqueUnderConcurrency(t *testing.T) {
	s, _, _, _ := newTestScheduler(t)

	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		ids = make(map[int64]bool)
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id, err := s.Create(context.Background(), "alice", testNow.Add(time.Minute), "x")
			if err != nil {
				t.Errorf("create: %v", err)
				return
			}
			mu.Lock()
			ids[id] = true
			mu.Unlock()
		}()
	}
	wg.Wait()
	if len(ids) != 50 {
		t.Fatalf("unique ids = %d, want 50", len(ids))
	}
}

func TestStopDropsPendingAndRejectsCreate(t *testing.T) {
	s, near, far, _ := newTestScheduler(t)
	s.Create(context.Background(), "alice", testNow.Add(time.Second), "a")
	s.Create(context.Background(), "alice", testNow.Add(time.Hour), "b")

	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if near.stops != 1 || far.stops != 1 {
		t.Fatalf("stops near=%d far=%d", near.stops, far.stops)
	}
	if s.Len() != 0 {
		t.Fatalf("len = %d after stop", s.Len())
	}
	if _, err := s.Create(context.Background(), "alice", testNow.Add(time.Second), "c"); !errors.Is(err, ErrStopped) {
		t.Fatalf("create after stop: %v", err)
	}
}

func TestNewRequiresSender(t *testing.T) {
	if _, err := New(Options{Near: newFakeBackend(), Far: newFakeBackend()}); err == nil {
		t.Fatalf("expected error without sender")
	}
}
