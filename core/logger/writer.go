package logger

import (
	"bytes"
	"errors"
	"io"
	"sync"
)

var errWriterClosed = errors.New("logger: writer closed")

// asyncWriter collects lines in memory and copies them to the sinks from a
// background goroutine. Once limit bytes are pending, Write drains inline.
type asyncWriter struct {
	mu      sync.Mutex
	pending bytes.Buffer
	limit   int
	closed  bool

	// sinkMu serializes drains, which keeps batches in write order.
	sinkMu sync.Mutex
	sinks  []io.Writer
	err    error

	wake chan struct{}
	stop chan struct{}
	done chan struct{}
	once sync.Once
}

func newAsyncWriter(limit int, sinks ...io.Writer) *asyncWriter {
	if limit <= 0 {
		limit = 64 * 1024
	}
	w := &asyncWriter{
		limit: limit,
		sinks: sinks,
		wake:  make(chan struct{}, 1),
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
	}
	go w.loop()
	return w
}

func (w *asyncWriter) loop() {
	defer close(w.done)
	for {
		select {
		case <-w.wake:
			_ = w.drain()
		case <-w.stop:
			_ = w.drain()
			return
		}
	}
}

// Write queues line. After Close it returns errWriterClosed.
func (w *asyncWriter) Write(line []byte) error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return errWriterClosed
	}
	w.pending.Write(line)
	full := w.pending.Len() >= w.limit
	w.mu.Unlock()

	if full {
		return w.drain()
	}
	select {
	case w.wake <- struct{}{}:
	default:
	}
	return nil
}

// Flush writes everything queued so far and reports the first sink error.
func (w *asyncWriter) Flush() error {
	return w.drain()
}

// Close stops the background goroutine after a final drain.
func (w *asyncWriter) Close() error {
	w.once.Do(func() {
		w.mu.Lock()
		w.closed = true
		w.mu.Unlock()
		close(w.stop)
	})
	<-w.done
	w.sinkMu.Lock()
	defer w.sinkMu.Unlock()
	return w.err
}

func (w *asyncWriter) drain() error {
	w.sinkMu.Lock()
	defer w.sinkMu.Unlock()

	w.mu.Lock()
	if w.pending.Len() == 0 {
		w.mu.Unlock()
		return w.err
	}
	batch := bytes.Clone(w.pending.Bytes())
	w.pending.Reset()
	w.mu.Unlock()

	for _, s := range w.sinks {
		if _, err := s.Write(batch); err != nil && w.err == nil {
			w.err = err
		}
	}
	return w.err
}
