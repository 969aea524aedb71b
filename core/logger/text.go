package logger

import (
	"strings"
	"time"
	"unicode"
)

// RoundMS rounds d to whole milliseconds; negative durations become 0.
func RoundMS(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return d.Round(time.Millisecond)
}

// SanitizeLimit drops control and format runes (keeping tab and newline)
// and truncates the result to max runes.
func SanitizeLimit(s string, max int) string {
	if max <= 0 || s == "" {
		return ""
	}
	var b strings.Builder
	b.Grow(min(len(s), max*4))
	n := 0
	for _, r := range s {
		if r != '\n' && r != '\t' && (unicode.IsControl(r) || unicode.Is(unicode.Cf, r)) {
			continue
		}
		if n == max {
			break
		}
		b.WriteRune(r)
		n++
	}
	return b.String()
}

// sensitiveKeys are masked before a line is written.
var sensitiveKeys = map[string]bool{
	"otp":        true,
	"otp_code":   true,
	"otp_ref":    true,
	"token":      true,
	"account_id": true,
	"recipient":  true,
	"number":     true,
}

// mask keeps the last two runes of values long enough to stay recognisable.
func mask(v string) string {
	r := []rune(v)
	if len(r) < 6 {
		return "***"
	}
	return "***" + string(r[len(r)-2:])
}
