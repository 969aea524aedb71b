package middleware

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/m3rciful/cmdbot/core/logger"

	tele "gopkg.in/telebot.v4"
)

// recentUpdates keeps a short-lived set of update ids so a redelivered
// update is logged once.
var (
	recentMu     sync.Mutex
	recentUpdate = make(map[int]time.Time)
	keepFor      = 10 * time.Second
)

func alreadyLogged(updateID int) bool {
	now := time.Now()
	recentMu.Lock()
	defer recentMu.Unlock()
	for id, ts := range recentUpdate {
		if now.Sub(ts) > keepFor {
			delete(recentUpdate, id)
		}
	}
	if _, ok := recentUpdate[updateID]; ok {
		return true
	}
	recentUpdate[updateID] = now
	return false
}

// ContextSetter stores the request context on tele.Context.
type ContextSetter func(tele.Context)

// Logger sets rid on the update, lets build attach the request context and
// logs one sampled receipt line per update.
func Logger(build ContextSetter) func(tele.HandlerFunc) tele.HandlerFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			upd := c.Update()
			var senderID, chatID string
			if u := c.Sender(); u != nil {
				senderID = strconv.FormatInt(u.ID, 10)
			}
			if ch := c.Chat(); ch != nil {
				chatID = strconv.FormatInt(ch.ID, 10)
			}
			rid := logger.BuildRID(upd.ID, chatID, senderID)
			c.Set("rid", rid)
			c.Set("update_start", time.Now())
			if build != nil {
				build(c)
			}

			if logger.ShouldSampleDebug() && !alreadyLogged(upd.ID) {
				attrs := []slog.Attr{
					slog.String("status", "ok"),
					slog.String("rid", rid),
					slog.Int("update_id", upd.ID),
				}
				if ch := c.Chat(); ch != nil {
					attrs = append(attrs, slog.String("chat_id", chatID), slog.String("chat_type", string(ch.Type)))
				}
				if u := c.Sender(); u != nil {
					attrs = append(attrs, slog.String("sender_id", senderID))
					if u.Username != "" {
						attrs = append(attrs, slog.String("username", logger.SanitizeLimit(u.Username, 64)))
					}
					if u.LanguageCode != "" {
						attrs = append(attrs, slog.String("lang", u.LanguageCode))
					}
				}
				if t := c.Text(); t != "" {
					attrs = append(attrs, slog.String("payload", logger.SanitizeLimit(t, 256)))
				}
				ctx := logger.WithRID(context.Background(), rid)
				logger.LogEvent(ctx, logger.TG, slog.LevelDebug, "update.received", attrs...)
			}

			return next(c)
		}
	}
}
