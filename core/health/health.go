// Package health serves the liveness and metrics endpoints and the optional
// keep-alive self ping.
package health

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/m3rciful/cmdbot/core/buildinfo"
	"github.com/m3rciful/cmdbot/core/logger"
)

// RootBody is the plain-text answer of GET /.
const RootBody = "Bot is running"

// Options configures the router.
type Options struct {
	// Stats adds gauges such as pending reminders to /healthz.
	Stats func() map[string]int
	Now   func() time.Time
}

type status struct {
	Status        string         `json:"status"`
	Version       string         `json:"version"`
	UptimeSeconds int64          `json:"uptime_seconds"`
	Stats         map[string]int `json:"stats,omitempty"`
}

// NewRouter builds the chi router for /, /healthz and /metrics.
func NewRouter(opts Options) chi.Router {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	started := now()

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requestLog)

	r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte(RootBody))
	})
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		body := status{
			Status:        "ok",
			Version:       buildinfo.Version,
			UptimeSeconds: int64(now().Sub(started).Seconds()),
		}
		if opts.Stats != nil {
			body.Stats = opts.Stats()
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(body)
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	return r
}

func requestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		if logger.ShouldSampleDebug() {
			logger.HTTP.LogAttrs(r.Context(), slog.LevelDebug, "http.request",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("http_status", ww.Status()),
				slog.Duration("duration", logger.RoundMS(time.Since(start))),
			)
		}
	})
}

// Serve listens on port until ctx is done, then shuts down gracefully.
func Serve(ctx context.Context, port int, h http.Handler) error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return fmt.Errorf("health: listen: %w", err)
	}
	return ServeListener(ctx, ln, h)
}

// ServeListener is Serve on an existing listener.
func ServeListener(ctx context.Context, ln net.Listener, h http.Handler) error {
	srv := &http.Server{
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	logger.HTTP.Info("health listener started",
		slog.String("event", "http.listen"),
		slog.String("addr", ln.Addr().String()),
	)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("health: shutdown: %w", err)
		}
		return nil
	}
}
