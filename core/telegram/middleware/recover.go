package middleware

import (
	"log/slog"
	"runtime/debug"

	"github.com/m3rciful/cmdbot/core/logger"

	tele "gopkg.in/telebot.v4"
)

// Recover keeps a panicking update from taking the poller down.
func Recover(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) (err error) {
		defer func() {
			if r := recover(); r != nil {
				logger.TG.Error("panic recovered",
					slog.String("event", "tg.panic"),
					slog.Int("update_id", c.Update().ID),
					slog.Any("err", r),
					slog.String("stack", string(debug.Stack())),
				)
				err = nil
			}
		}()
		return next(c)
	}
}
