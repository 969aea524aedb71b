package reminder

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/m3rciful/cmdbot/core/apperr"
)

// MaxHorizon is the furthest ahead a reminder may be set.
const MaxHorizon = 365 * 24 * time.Hour

// UsageHint is shown when a reminder request cannot be parsed.
const UsageHint = "Invalid format. Examples:\n!remind 1s test\n!remind 5min coffee break\n!remind in 2 hours meeting\n!remind 2026-01-02 15:04 dentist\n!remind 18:30 call home"

var relativePattern = regexp.MustCompile(`(?i)(?:in\s+)?(\d+)\s*(s|sec|seconds?|m|min|minutes?|h|hours?|d|days?)\b`)

var unitByInitial = map[byte]time.Duration{
	's': time.Second,
	'm': time.Minute,
	'h': time.Hour,
	'd': 24 * time.Hour,
}

var absoluteLayouts = []string{
	"2006-01-02 15:04",
	"2006-1-2 15:04",
	"02.01.2006 15:04",
	"2.1.2006 15:04",
}

// ParseRequest extracts a fire time and message from free text such as
// "5min coffee break", "call mom in 2 hours", "2026-01-02 15:04 dentist" or
// "18:30 call home". Times of day already passed roll over to tomorrow.
func ParseRequest(text string, now time.Time, loc *time.Location) (time.Time, string, error) {
	text = strings.TrimSpace(text)
	if loc == nil {
		loc = time.Local
	}
	if text == "" {
		return time.Time{}, "", apperr.Validation(UsageHint)
	}

	if m := relativePattern.FindStringSubmatchIndex(text); m != nil {
		value, err := strconv.Atoi(text[m[2]:m[3]])
		if err != nil {
			return time.Time{}, "", apperr.Validation(UsageHint)
		}
		unit := unitByInitial[strings.ToLower(text[m[4]:m[5]])[0]]
		if value > int(MaxHorizon/unit) {
			return time.Time{}, "", errTooFar
		}
		message := collapse(text[:m[0]] + " " + text[m[1]:])
		return checkFireTime(now.Add(time.Duration(value)*unit), now, message)
	}

	fields := strings.Fields(text)
	if len(fields) >= 2 {
		head := fields[0] + " " + fields[1]
		for _, layout := range absoluteLayouts {
			if t, err := time.ParseInLocation(layout, head, loc); err == nil {
				return checkFireTime(t, now, strings.Join(fields[2:], " "))
			}
		}
	}
	if t, err := time.ParseInLocation("15:04", fields[0], loc); err == nil {
		local := now.In(loc)
		at := time.Date(local.Year(), local.Month(), local.Day(), t.Hour(), t.Minute(), 0, 0, loc)
		if !at.After(now) {
			at = at.AddDate(0, 0, 1)
		}
		return at, strings.Join(fields[1:], " "), nil
	}

	return time.Time{}, "", apperr.Validation(UsageHint)
}

var errTooFar = apperr.Validation("Reminders can be set at most 365 days ahead")

// checkFireTime accepts at only when it is after now and within MaxHorizon.
func checkFireTime(at, now time.Time, message string) (time.Time, string, error) {
	if !at.After(now) {
		return time.Time{}, "", apperr.Validation("That time has already passed. Please choose a future time.")
	}
	if at.Sub(now) > MaxHorizon {
		return time.Time{}, "", errTooFar
	}
	return at, message, nil
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
