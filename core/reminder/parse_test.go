package reminder

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/m3rciful/cmdbot/core/apperr"
)

func TestParseRequestRelative(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	tests := []struct {
		in      string
		delay   time.Duration
		message string
	}{
		{"1s test", time.Second, "test"},
		{"5min coffee break", 5 * time.Minute, "coffee break"},
		{"in 2 hours meeting", 2 * time.Hour, "meeting"},
		{"call mom in 3 days", 72 * time.Hour, "call mom"},
		{"10 Minutes stretch", 10 * time.Minute, "stretch"},
		{"30 sec", 30 * time.Second, ""},
	}
	for _, tt := range tests {
		at, msg, err := ParseRequest(tt.in, now, time.UTC)
		if err != nil {
			t.Fatalf("ParseRequest(%q): %v", tt.in, err)
		}
		if got := at.Sub(now); got != tt.delay {
			t.Fatalf("ParseRequest(%q) delay = %v, want %v", tt.in, got, tt.delay)
		}
		if msg != tt.message {
			t.Fatalf("ParseRequest(%q) message = %q, want %q", tt.in, msg, tt.message)
		}
	}
}

func TestParseRequestAbsolute(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	at, msg, err := ParseRequest("2026-03-05 14:30 dentist appointment", now, time.UTC)
	if err != nil {
		t.Fatalf("absolute: %v", err)
	}
	if !at.Equal(time.Date(2026, 3, 5, 14, 30, 0, 0, time.UTC)) || msg != "dentist appointment" {
		t.Fatalf("absolute = %v %q", at, msg)
	}

	at, msg, err = ParseRequest("18:30 call home", now, time.UTC)
	if err != nil {
		t.Fatalf("time of day: %v", err)
	}
	if !at.Equal(time.Date(2026, 3, 1, 18, 30, 0, 0, time.UTC)) || msg != "call home" {
		t.Fatalf("time of day = %v %q", at, msg)
	}

	at, _, err = ParseRequest("08:15 wake up", now, time.UTC)
	if err != nil {
		t.Fatalf("rollover: %v", err)
	}
	if !at.Equal(time.Date(2026, 3, 2, 8, 15, 0, 0, time.UTC)) {
		t.Fatalf("past time of day should roll to tomorrow, got %v", at)
	}
}

func TestParseRequestInvalid(t *testing.T) {
	now := time.Now()
	for _, in := range []string{"", "sometime later", "tomorrow coffee"} {
		if _, _, err := ParseRequest(in, now, time.UTC); err == nil {
			t.Fatalf("ParseRequest(%q) should fail", in)
		}
	}
}

func TestParseRequestBoundsFireTime(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	tests := []struct {
		in   string
		want string
	}{
		{"200000d tea", "at most 365 days"},
		{"9999999999h tea", "at most 365 days"},
		{"366 days renew passport", "at most 365 days"},
		{"2027-06-01 10:00 far away", "at most 365 days"},
		{"2020-01-01 10:00 x", "already passed"},
		{"2026-03-01 09:00 right now", "already passed"},
		{"0s nothing", "already passed"},
	}
	for _, tt := range tests {
		at, _, err := ParseRequest(tt.in, now, time.UTC)
		if err == nil {
			t.Fatalf("ParseRequest(%q) = %v, want error", tt.in, at)
		}
		var c apperr.Classified
		if !errors.As(err, &c) || c.Kind() != apperr.KindValidation || !strings.Contains(c.UserMessage(), tt.want) {
			t.Fatalf("ParseRequest(%q) err = %v, want validation %q", tt.in, err, tt.want)
		}
	}

	at, _, err := ParseRequest("365 days renew", now, time.UTC)
	if err != nil || at.Sub(now) != MaxHorizon {
		t.Fatalf("horizon edge = %v, %v", at, err)
	}
}
