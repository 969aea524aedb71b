// Package sender runs outbound Telegram calls on a small worker pool.
package sender

import (
	"context"
	"crypto/tls"
	"errors"
	"hash/fnv"
	"log/slog"
	"net"
	"regexp"
	"sync"
	"sync/atomic"
	"time"

	"github.com/m3rciful/cmdbot/core/httpx"
	"github.com/m3rciful/cmdbot/core/logger"
	"github.com/m3rciful/cmdbot/core/metrics"

	tele "gopkg.in/telebot.v4"
)

var (
	// ErrQueueClosed is returned when enqueue is attempted after Close.
	ErrQueueClosed = errors.New("telegram sender: queue closed")
	// ErrQueueFull indicates the job's shard is saturated and the job was not accepted.
	ErrQueueFull = errors.New("telegram sender: queue full")

	tokenRe = regexp.MustCompile(`bot[0-9]+:[A-Za-z0-9_-]+`)
)

// Options controls the behaviour of the outbound queue.
type Options struct {
	// QueueSize is the buffer of each worker shard.
	QueueSize    int
	Workers      int
	MaxRetries   int
	RetryBackoff time.Duration
	// MaxDuration bounds the time spent retrying a single job.
	MaxDuration time.Duration
}

// Job is one outbound call. Jobs sharing a Key run in enqueue order.
type Job struct {
	Key    string
	Action string
	Run    func(ctx context.Context) error
}

type queued struct {
	ctx context.Context
	Job
}

// Queue executes outbound calls asynchronously with retries.
type Queue struct {
	opts   Options
	shards []chan queued

	mu     sync.RWMutex
	closed bool
	once   sync.Once
	wg     sync.WaitGroup
	errs   atomic.Uint64
}

// NewQueue starts a queue, applying defaults for zero options.
func NewQueue(opts Options) *Queue {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 64
	}
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = 2 * time.Second
	}
	if opts.MaxDuration <= 0 {
		opts.MaxDuration = 12 * time.Second
	}

	q := &Queue{
		opts:   opts,
		shards: make([]chan queued, opts.Workers),
	}
	q.wg.Add(opts.Workers)
	for i := range q.shards {
		q.shards[i] = make(chan queued, opts.QueueSize)
		go q.worker(q.shards[i])
	}
	return q
}

// Enqueue schedules j. Run must be idempotent if retries are desired.
func (q *Queue) Enqueue(ctx context.Context, j Job) error {
	if j.Run == nil {
		return errors.New("telegram sender: nil run function")
	}
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrQueueClosed
	}
	select {
	case q.shards[q.shardFor(j.Key)] <- queued{ctx: ctx, Job: j}:
		return nil
	default:
		return ErrQueueFull
	}
}

// ErrorCount returns the number of failed jobs.
func (q *Queue) ErrorCount() uint64 {
	return q.errs.Load()
}

// Close stops accepting jobs and waits for queued ones to finish.
func (q *Queue) Close() {
	q.once.Do(func() {
		q.mu.Lock()
		q.closed = true
		for _, ch := range q.shards {
			close(ch)
		}
		q.mu.Unlock()
		q.wg.Wait()
	})
}

func (q *Queue) shardFor(key string) int {
	if len(q.shards) == 1 || key == "" {
		return 0
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % uint32(len(q.shards)))
}

func (q *Queue) worker(jobs <-chan queued) {
	defer q.wg.Done()
	for j := range jobs {
		q.handle(j)
	}
}

func (q *Queue) handle(j queued) {
	ctx := j.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	// Replies outlive the update handler that enqueued them.
	deadlineCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), q.opts.MaxDuration)
	defer cancel()

	start := time.Now()
	logger.Debug(ctx, "tg.sender", "send.start", sendLogAttrs(ctx, j.Job)...)

	var lastErr error
	attempts := q.opts.MaxRetries + 1

attemptLoop:
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := deadlineCtx.Err(); err != nil {
			lastErr = err
			break
		}

		err := j.Run(deadlineCtx)
		if err == nil {
			if attempt > 1 {
				logger.Info(ctx, "tg.sender", "send.retry.success",
					append(sendLogAttrs(ctx, j.Job),
						slog.Int("attempt", attempt),
						slog.Duration("elapsed", time.Since(start)),
					)...,
				)
			}
			metrics.OutboundMessages.WithLabelValues("ok").Inc()
			logger.Debug(ctx, "tg.sender", "send.success",
				append(sendLogAttrs(ctx, j.Job), slog.Duration("elapsed", time.Since(start)))...,
			)
			return
		}

		lastErr = err
		if !shouldRetry(err) || attempt == attempts {
			break
		}
		delay := retryDelay(err, q.opts.RetryBackoff*time.Duration(attempt))
		timer := time.NewTimer(delay)
		select {
		case <-deadlineCtx.Done():
			timer.Stop()
			lastErr = deadlineCtx.Err()
			break attemptLoop
		case <-timer.C:
		}
		logger.Debug(ctx, "tg.sender", "send.retry.backoff",
			append(sendLogAttrs(ctx, j.Job),
				slog.Int("attempt", attempt),
				slog.Duration("delay", delay),
			)...,
		)
	}

	q.errs.Add(1)
	metrics.OutboundMessages.WithLabelValues("fail").Inc()
	logSendFailure(ctx, j.Job, lastErr, attempts, time.Since(start))
}

// shouldRetry extends the transport retry rule with Telegram flood control.
func shouldRetry(err error) bool {
	var flood tele.FloodError
	if errors.As(err, &flood) {
		return true
	}
	return httpx.ShouldRetry(err)
}

func retryDelay(err error, fallback time.Duration) time.Duration {
	var flood tele.FloodError
	if errors.As(err, &flood) && flood.RetryAfter > 0 {
		return time.Duration(flood.RetryAfter) * time.Second
	}
	return fallback
}

func sendLogAttrs(ctx context.Context, j Job) []slog.Attr {
	attrs := []slog.Attr{slog.String("action", j.Action)}
	if rid := logger.RIDFrom(ctx); rid != "" {
		attrs = append(attrs, slog.String("rid", rid))
	}
	if j.Key != "" {
		attrs = append(attrs, slog.String("chat_id", j.Key))
	}
	return attrs
}

func logSendFailure(ctx context.Context, j Job, err error, attempts int, elapsed time.Duration) {
	attrs := append(sendLogAttrs(ctx, j),
		slog.String("err", redactToken(err)),
		slog.String("error_kind", failureKind(err)),
		slog.Duration("elapsed", elapsed),
		slog.Int("attempts", attempts),
	)
	logger.Error(ctx, "tg.sender", "send.fail", attrs...)
}

// failureKind buckets a send error for logs and alerting.
func failureKind(err error) string {
	var (
		flood  tele.FloodError
		apiErr *tele.Error
		dnsErr *net.DNSError
		opErr  *net.OpError
		tlsErr tls.AlertError
	)
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.As(err, &flood):
		return "flood"
	case errors.As(err, &apiErr) && apiErr.Code >= 500:
		return "http_5xx"
	case errors.As(err, &apiErr) && apiErr.Code >= 400:
		return "http_4xx"
	case errors.As(err, &dnsErr):
		return "dns"
	case errors.As(err, &opErr) && opErr.Timeout():
		return "timeout"
	case errors.As(err, &opErr) && opErr.Op == "dial":
		return "dial"
	case errors.As(err, &tlsErr):
		return "tls"
	}
	return "unknown"
}

// redactToken keeps the bot token out of logged error text.
func redactToken(err error) string {
	if err == nil {
		return ""
	}
	return tokenRe.ReplaceAllString(err.Error(), "bot<redacted>")
}
