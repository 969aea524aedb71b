// Package httpx builds the outbound HTTP clients used for the messaging
// API, the financial gateway and the integrations.
package httpx

import (
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/m3rciful/cmdbot/core/logger"
	"github.com/m3rciful/cmdbot/core/metrics"
)

const (
	defaultDialTimeout       = 5 * time.Second
	defaultTLSHandshake      = 5 * time.Second
	defaultIdleConnTimeout   = 30 * time.Second
	defaultResponseTimeout   = 10 * time.Second
	defaultClientTimeout     = 30 * time.Second
	defaultKeepAliveInterval = 30 * time.Second
	defaultRetryAttempts     = 3
	defaultRetryBackoff      = 2 * time.Second
)

// Options tunes a client built by BuildHTTPClient.
type Options struct {
	// Name labels metrics and logs, e.g. "telegram" or "khalti".
	Name    string
	Timeout time.Duration
	// Retries is the number of extra attempts on transient network errors.
	// Negative disables retrying; zero selects the default.
	Retries int
	Backoff time.Duration
	// Base overrides the underlying transport, mostly for tests.
	Base http.RoundTripper
}

// BuildHTTPClient returns a client with tuned timeouts, retries on transient
// dial/timeout failures and per-call metrics.
func BuildHTTPClient(opts Options) *http.Client {
	base := opts.Base
	if base == nil {
		base = &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			DialContext:           (&net.Dialer{Timeout: defaultDialTimeout, KeepAlive: defaultKeepAliveInterval}).DialContext,
			ForceAttemptHTTP2:     true,
			MaxIdleConns:          100,
			MaxIdleConnsPerHost:   10,
			IdleConnTimeout:       defaultIdleConnTimeout,
			TLSHandshakeTimeout:   defaultTLSHandshake,
			ResponseHeaderTimeout: defaultResponseTimeout,
			ExpectContinueTimeout: 1 * time.Second,
		}
	}

	retries := opts.Retries
	switch {
	case retries == 0:
		retries = defaultRetryAttempts
	case retries < 0:
		retries = 0
	}
	backoff := opts.Backoff
	if backoff <= 0 {
		backoff = defaultRetryBackoff
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultClientTimeout
	}
	name := opts.Name
	if name == "" {
		name = "http"
	}

	return &http.Client{
		Timeout: timeout,
		Transport: &instrumentedTransport{
			name: name,
			next: &retryTransport{
				base:       base,
				maxRetries: retries,
				backoff:    backoff,
			},
		},
	}
}

type retryTransport struct {
	base       http.RoundTripper
	maxRetries int
	backoff    time.Duration
}

func (t *retryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}
	attempts := t.maxRetries + 1
	var lastErr error

	for attempt := 1; attempt <= attempts; attempt++ {
		currReq := req
		if attempt > 1 {
			currReq = req.Clone(req.Context())
			if req.GetBody != nil {
				body, err := req.GetBody()
				if err != nil {
					return nil, err
				}
				currReq.Body = body
			} else if req.Body != nil && req.Body != http.NoBody {
				return nil, lastErr
			}
		}

		resp, err := base.RoundTrip(currReq)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if !ShouldRetry(err) || attempt == attempts {
			break
		}

		delay := t.backoff * time.Duration(attempt)
		timer := time.NewTimer(delay)
		select {
		case <-req.Context().Done():
			timer.Stop()
			return nil, req.Context().Err()
		case <-timer.C:
		}
	}

	return nil, lastErr
}

// instrumentedTransport records call duration by endpoint and status.
type instrumentedTransport struct {
	name string
	next http.RoundTripper
}

func (t *instrumentedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()
	resp, err := t.next.RoundTrip(req)

	status := "error"
	if resp != nil {
		status = strconv.Itoa(resp.StatusCode)
	}
	metrics.GatewayDuration.WithLabelValues(t.name, status).Observe(time.Since(start).Seconds())

	if logger.ShouldSampleDebug() || err != nil {
		level := slog.LevelDebug
		attrs := []slog.Attr{
			slog.String("endpoint", t.name),
			slog.String("method", req.Method),
			slog.String("path", req.URL.Path),
			slog.String("http_status", status),
			slog.Int64("duration_ms", logger.RoundMS(time.Since(start)).Milliseconds()),
		}
		if err != nil {
			level = slog.LevelWarn
			attrs = append(attrs, slog.String("err", logger.SanitizeLimit(err.Error(), 256)))
		}
		logger.LogEvent(req.Context(), logger.Gateway, level, "http.call", attrs...)
	}
	return resp, err
}
