package logger

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"
)

type logFormat int

const (
	formatJSON logFormat = iota
	formatKV
)

const tsLayout = "2006-01-02T15:04:05.000Z07:00"

// defaultKeyOrder puts routing context first; unlisted keys follow sorted.
var defaultKeyOrder = []string{
	"ts", "level", "component", "event", "status",
	"rid", "update_id", "sender_id", "chat_id", "handler", "command",
	"outcome", "duration_ms", "mode",
	"reminder_id", "fire_at", "bank", "amount",
	"method", "endpoint", "http_status", "attempt",
	"err", "err_code", "cause",
}

type lineWriter interface {
	Write(line []byte) error
}

type field struct {
	key string
	val any
}

// handler renders records as one kv or JSON line each.
type handler struct {
	level  slog.Leveler
	w      lineWriter
	format logFormat
	order  []string

	fixed  []field
	prefix string
}

func (h *handler) Enabled(_ context.Context, lvl slog.Level) bool {
	return lvl >= h.level.Level()
}

func (h *handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	c := *h
	c.fixed = append(append([]field(nil), h.fixed...), flatten(h.prefix, attrs)...)
	return &c
}

func (h *handler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	c := *h
	c.prefix = joinKey(h.prefix, name)
	return &c
}

func (h *handler) Handle(ctx context.Context, r slog.Record) error {
	fields := make(map[string]any, 16)
	fields["ts"] = r.Time.UTC().Format(tsLayout)
	fields["level"] = r.Level.String()
	for _, f := range h.fixed {
		fields[f.key] = f.val
	}
	var attrs []slog.Attr
	r.Attrs(func(a slog.Attr) bool {
		attrs = append(attrs, a)
		return true
	})
	for _, f := range flatten(h.prefix, attrs) {
		fields[f.key] = f.val
	}
	addMessageContext(ctx, fields)

	if s, _ := fields["event"].(string); s == "" {
		fields["event"] = r.Message
		if r.Message == "" {
			fields["event"] = "unknown"
		}
	}
	if s, _ := fields["component"].(string); s == "" {
		fields["component"] = "app"
	}
	for k, v := range fields {
		switch {
		case v == nil || v == "":
			delete(fields, k)
		case sensitiveKeys[k]:
			fields[k] = mask(fmt.Sprint(v))
		}
	}

	var line []byte
	if h.format == formatKV {
		line = encodeKV(fields, h.order)
	} else {
		var err error
		if line, err = encodeJSON(fields, h.order); err != nil {
			return err
		}
	}
	return h.w.Write(append(line, '\n'))
}

func addMessageContext(ctx context.Context, fields map[string]any) {
	if ctx == nil {
		return
	}
	setDefault := func(k string, v any) {
		if _, ok := fields[k]; !ok {
			fields[k] = v
		}
	}
	if rid := RIDFrom(ctx); rid != "" {
		setDefault("rid", rid)
	}
	m := metaFrom(ctx)
	if m.updateID != 0 {
		setDefault("update_id", m.updateID)
	}
	if m.senderID != "" {
		setDefault("sender_id", m.senderID)
	}
	if m.chatID != "" {
		setDefault("chat_id", m.chatID)
	}
	if name := HandlerFrom(ctx); name != "" {
		setDefault("handler", name)
	}
}

func joinKey(prefix, key string) string {
	if prefix == "" {
		return key
	}
	if key == "" {
		return prefix
	}
	return prefix + "." + key
}

// flatten resolves attrs into dotted keys. Durations are reported in
// milliseconds under a key ending in _ms.
func flatten(prefix string, attrs []slog.Attr) []field {
	var out []field
	for _, a := range attrs {
		v := a.Value.Resolve()
		if v.Kind() == slog.KindGroup {
			out = append(out, flatten(joinKey(prefix, a.Key), v.Group())...)
			continue
		}
		if a.Key == "" {
			continue
		}
		key := joinKey(prefix, a.Key)
		switch v.Kind() {
		case slog.KindString:
			out = append(out, field{key, strings.TrimSpace(v.String())})
		case slog.KindInt64:
			out = append(out, field{key, v.Int64()})
		case slog.KindUint64:
			out = append(out, field{key, v.Uint64()})
		case slog.KindFloat64:
			out = append(out, field{key, v.Float64()})
		case slog.KindBool:
			out = append(out, field{key, v.Bool()})
		case slog.KindDuration:
			out = append(out, field{msKey(key), RoundMS(v.Duration()).Milliseconds()})
		case slog.KindTime:
			out = append(out, field{key, v.Time().UTC().Format(time.RFC3339Nano)})
		default:
			switch x := v.Any().(type) {
			case nil:
			case error:
				out = append(out, field{key, x.Error()})
			case fmt.Stringer:
				out = append(out, field{key, x.String()})
			default:
				out = append(out, field{key, fmt.Sprint(x)})
			}
		}
	}
	return out
}

func msKey(key string) string {
	switch {
	case key == "duration":
		return "duration_ms"
	case strings.HasSuffix(key, "_ms"):
		return key
	}
	return key + "_ms"
}

func sortedKeys(fields map[string]any, order []string) []string {
	keys := make([]string, 0, len(fields))
	seen := make(map[string]bool, len(order))
	for _, k := range order {
		if _, ok := fields[k]; ok && !seen[k] {
			keys = append(keys, k)
			seen[k] = true
		}
	}
	rest := make([]string, 0, len(fields)-len(keys))
	for k := range fields {
		if !seen[k] {
			rest = append(rest, k)
		}
	}
	sort.Strings(rest)
	return append(keys, rest...)
}

func encodeJSON(fields map[string]any, order []string) ([]byte, error) {
	buf := []byte{'{'}
	for i, k := range sortedKeys(fields, order) {
		v, err := json.Marshal(fields[k])
		if err != nil {
			return nil, fmt.Errorf("logger: encode %s: %w", k, err)
		}
		if i > 0 {
			buf = append(buf, ',')
		}
		buf = strconv.AppendQuote(buf, k)
		buf = append(buf, ':')
		buf = append(buf, v...)
	}
	return append(buf, '}'), nil
}

func encodeKV(fields map[string]any, order []string) []byte {
	var b strings.Builder
	for i, k := range sortedKeys(fields, order) {
		if i > 0 {
			b.WriteByte(' ')
		}
		s := fmt.Sprint(fields[k])
		if strings.IndexFunc(s, func(r rune) bool { return r <= ' ' || r == '=' || r == '"' }) >= 0 {
			s = strconv.Quote(s)
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(s)
	}
	return []byte(b.String())
}
