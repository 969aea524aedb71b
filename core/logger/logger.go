// Package logger configures the bot's structured logging: a single slog
// handler that writes kv or JSON lines through an async writer, component
// loggers, and helpers that carry inbound message metadata in context.
package logger

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/m3rciful/cmdbot/core/buildinfo"
	coreconfig "github.com/m3rciful/cmdbot/core/config"
)

var (
	setupOnce sync.Once
	closeMu   sync.Mutex
	closed    bool

	out   *asyncWriter
	files []io.Closer

	level        slog.LevelVar
	debugSampler = newSampler(1, 50)
	traceAll     bool

	// L is the base logger. Every component logger derives from it.
	L *slog.Logger

	// TG logs Telegram transport events.
	TG *slog.Logger
	// TWire logs command wiring steps.
	TWire *slog.Logger
	// Dispatch logs inbound message routing.
	Dispatch *slog.Logger
	// Reminder logs reminder scheduling and delivery.
	Reminder *slog.Logger
	// Wallet logs fund transaction state changes.
	Wallet *slog.Logger
	// Gateway logs outbound HTTP calls to external APIs.
	Gateway *slog.Logger
	// HTTP logs the liveness listener.
	HTTP *slog.Logger
)

// Until InitLogger runs, component loggers write through slog's default
// logger so packages can log from tests and early startup.
func init() {
	L = slog.Default()
	wireComponents()
}

func wireComponents() {
	TG = L.With("component", "tg")
	TWire = L.With("component", "tg.wire")
	Dispatch = L.With("component", "dispatch")
	Reminder = L.With("component", "reminder")
	Wallet = L.With("component", "wallet")
	Gateway = L.With("component", "gateway")
	HTTP = L.With("component", "http")
}

type settings struct {
	format  logFormat
	order   []string
	level   slog.Level
	keep    int
	every   int
	profile string
	file    string
}

func settingsFrom(cfg *coreconfig.Config) settings {
	s := settings{
		format:  formatJSON,
		order:   defaultKeyOrder,
		level:   slog.LevelInfo,
		keep:    1,
		every:   50,
		profile: "prod",
	}
	if cfg == nil {
		return s
	}
	lc := cfg.Logging
	if p := strings.ToLower(strings.TrimSpace(lc.Profile)); p != "" {
		s.profile = p
	}
	switch strings.ToLower(strings.TrimSpace(lc.Format)) {
	case "kv", "text", "pretty":
		s.format = formatKV
	case "json":
	default:
		if s.profile == "debug" || s.profile == "dev" {
			s.format = formatKV
		}
	}
	switch strings.ToLower(strings.TrimSpace(lc.Level)) {
	case "debug":
		s.level = slog.LevelDebug
	case "warn", "warning":
		s.level = slog.LevelWarn
	case "error":
		s.level = slog.LevelError
	}
	if raw := strings.TrimSpace(lc.KeysOrder); raw != "" && raw != "default" {
		var order []string
		for _, k := range strings.Split(raw, ",") {
			if k = strings.TrimSpace(k); k != "" {
				order = append(order, k)
			}
		}
		if len(order) > 0 {
			s.order = order
		}
	}
	if spec := strings.TrimSpace(lc.DebugSample); spec != "" {
		if keep, every, ok := parseRatio(spec); ok {
			s.keep, s.every = keep, every
		}
	}
	if dir, name := strings.TrimSpace(lc.Dir), strings.TrimSpace(lc.BotFile); dir != "" && name != "" {
		s.file = filepath.Join(dir, name)
	}
	return s
}

// InitLogger configures the global structured logger. Only the first call
// has an effect.
func InitLogger(cfg *coreconfig.Config) error {
	var initErr error
	setupOnce.Do(func() {
		s := settingsFrom(cfg)
		sinks := []io.Writer{os.Stdout}
		if s.file != "" {
			f, err := openLogFile(s.file)
			if err != nil {
				initErr = err
				return
			}
			sinks = append(sinks, f)
			files = append(files, f)
		}

		level.Set(s.level)
		debugSampler.set(s.keep, s.every)
		traceAll = envFlag("TRACE") || envFlag("LOG_TRACE")

		out = newAsyncWriter(64*1024, sinks...)
		L = slog.New(&handler{
			level:  &level,
			w:      out,
			format: s.format,
			order:  s.order,
		})
		slog.SetDefault(L)
		wireComponents()
		logStartup(cfg, s)
	})
	return initErr
}

func openLogFile(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("logger: create log dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("logger: open log file: %w", err)
	}
	return f, nil
}

func logStartup(cfg *coreconfig.Config, s settings) {
	attrs := []slog.Attr{
		slog.String("component", "app"),
		slog.String("event", "startup"),
		slog.String("go_version", runtime.Version()),
		slog.String("build_commit", buildinfo.Commit),
		slog.String("build_time", buildinfo.Date),
		slog.String("cfg_profile", s.profile),
	}
	if cfg != nil {
		attrs = append(attrs,
			slog.String("mode", cfg.Telegram.RunMode),
			slog.Int("admins", len(cfg.Access.Admins)),
		)
		if cfg.App.Session != "" {
			attrs = append(attrs, slog.String("session", cfg.App.Session))
		}
	}
	L.LogAttrs(context.Background(), slog.LevelInfo, "startup", attrs...)
}

// Shutdown flushes buffered output and closes log files.
func Shutdown() error {
	closeMu.Lock()
	defer closeMu.Unlock()
	if closed {
		return nil
	}
	closed = true

	var errs []error
	if out != nil {
		errs = append(errs, out.Close())
	}
	for _, c := range files {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}

// LogEvent writes an event-keyed record. A nil logger falls back to the one
// stored in ctx, then to L.
func LogEvent(ctx context.Context, logg *slog.Logger, lvl slog.Level, event string, attrs ...slog.Attr) {
	if logg == nil {
		logg = FromContext(ctx)
	}
	if event != "" {
		attrs = append([]slog.Attr{slog.String("event", event)}, attrs...)
	}
	logg.LogAttrs(ctx, lvl, "", attrs...)
}

func componentEvent(ctx context.Context, component string, lvl slog.Level, event string, attrs []slog.Attr) {
	logg := FromContext(ctx)
	if c := strings.TrimSpace(component); c != "" {
		logg = logg.With("component", c)
	}
	LogEvent(ctx, logg, lvl, event, attrs...)
}

// Debug logs a debug-level event for component.
func Debug(ctx context.Context, component, event string, attrs ...slog.Attr) {
	componentEvent(ctx, component, slog.LevelDebug, event, attrs)
}

// Info logs an info-level event for component.
func Info(ctx context.Context, component, event string, attrs ...slog.Attr) {
	componentEvent(ctx, component, slog.LevelInfo, event, attrs)
}

// Warn logs a warn-level event for component.
func Warn(ctx context.Context, component, event string, attrs ...slog.Attr) {
	componentEvent(ctx, component, slog.LevelWarn, event, attrs)
}

// Error logs an error-level event for component.
func Error(ctx context.Context, component, event string, attrs ...slog.Attr) {
	componentEvent(ctx, component, slog.LevelError, event, attrs)
}

// ShouldSampleDebug reports whether a high-volume debug event should be
// logged. TRACE=1 in the environment lets everything through.
func ShouldSampleDebug() bool {
	return traceAll || debugSampler.allow()
}

func envFlag(name string) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(name))) {
	case "1", "true", "on", "yes":
		return true
	}
	return false
}
