package dispatch

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/m3rciful/cmdbot/core/apperr"
	"github.com/m3rciful/cmdbot/core/logger"
)

// logHandlerSummary writes the one line every routed command produces.
// An empty status or outcome is derived from err.
func logHandlerSummary(ctx context.Context, handler string, start time.Time, status, outcome string, err error) {
	result := "ok"
	if err != nil {
		result = "fail"
	}
	if status == "" {
		status = result
	}
	if outcome == "" {
		outcome = result
	}

	attrs := []slog.Attr{
		slog.String("status", status),
		slog.String("handler", handler),
		slog.String("outcome", outcome),
		slog.Duration("duration", time.Since(start)),
	}
	if err != nil {
		attrs = append(attrs,
			slog.String("err", logger.SanitizeLimit(err.Error(), 256)),
			slog.String("err_code", errorCode(err)),
		)
	}
	logger.LogEvent(ctx, logger.Dispatch, slog.LevelInfo, "handler.handled", attrs...)
}

// handlerName turns a command token into a metric-safe label: "!load-fund" -> "load_fund".
func handlerName(token string) string {
	name := strings.ToLower(strings.TrimLeft(strings.TrimSpace(token), "!/"))
	if name == "" {
		return "unknown"
	}
	return strings.NewReplacer(" ", "_", "-", "_").Replace(name)
}

func errorCode(err error) string {
	if err == nil {
		return ""
	}
	if code := apperr.CodeOf(err); code != "" {
		return string(code)
	}
	return "UNCLASSIFIED"
}
