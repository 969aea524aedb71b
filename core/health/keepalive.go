package health

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/m3rciful/cmdbot/core/logger"
)

// Pinger periodically requests URL so idle-suspending hosts keep the bot up.
type Pinger struct {
	URL      string
	Interval time.Duration
	Client   *http.Client
}

// Ping performs one keep-alive request.
func (p Pinger) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.URL, nil)
	if err != nil {
		return err
	}
	client := p.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("keep-alive status: %s", resp.Status)
	}
	return nil
}

// Start schedules Ping every Interval and returns a stop function.
func (p Pinger) Start() (func(), error) {
	c := cron.New()
	_, err := c.AddFunc(fmt.Sprintf("@every %s", p.Interval), func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := p.Ping(ctx); err != nil {
			logger.HTTP.Warn("keep-alive ping failed",
				slog.String("event", "http.keepalive"),
				slog.String("status", "fail"),
				slog.String("err", err.Error()),
			)
			return
		}
		if logger.ShouldSampleDebug() {
			logger.HTTP.Debug("keep-alive ping", slog.String("event", "http.keepalive"), slog.String("status", "ok"))
		}
	})
	if err != nil {
		return nil, fmt.Errorf("health: keep-alive schedule: %w", err)
	}
	c.Start()
	return func() { <-c.Stop().Done() }, nil
}
