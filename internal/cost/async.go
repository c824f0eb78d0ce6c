package cost

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

var (
	// ErrQueueFull is returned when the async reporter cannot accept more work.
	ErrQueueFull = errors.New("usage queue full")
	// ErrClosed is returned for reports made after Close.
	ErrClosed = errors.New("usage reporter closed")
)

// Async forwards reports to a Tracker on a background worker so callers
// never wait on bookkeeping.
type Async struct {
	inner  Tracker
	queue  chan Usage
	done   chan struct{}
	once   sync.Once
	logger *slog.Logger

	mu      sync.Mutex
	idle    *sync.Cond
	pending int
	closed  bool
}

// NewAsync starts a reporter with the given queue size.
func NewAsync(inner Tracker, queueSize int, logger *slog.Logger) *Async {
	if queueSize <= 0 {
		queueSize = 256
	}
	if logger == nil {
		logger = slog.Default()
	}
	a := &Async{
		inner:  inner,
		queue:  make(chan Usage, queueSize),
		done:   make(chan struct{}),
		logger: logger.With("component", "cost"),
	}
	a.idle = sync.NewCond(&a.mu)
	go a.run()
	return a
}

// TrackUsage enqueues u without blocking. It fails when the queue is full
// or the reporter is closed.
func (a *Async) TrackUsage(_ context.Context, u Usage) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return ErrClosed
	}
	select {
	case a.queue <- u:
		a.pending++
		return nil
	default:
		a.logger.Warn("dropping usage report", "service", u.Service, "endpoint", u.Endpoint)
		return ErrQueueFull
	}
}

func (a *Async) run() {
	defer close(a.done)
	for u := range a.queue {
		if err := a.inner.TrackUsage(context.Background(), u); err != nil {
			a.logger.Warn("track usage failed", "service", u.Service, "err", err)
		}
		a.mu.Lock()
		a.pending--
		if a.pending == 0 {
			a.idle.Broadcast()
		}
		a.mu.Unlock()
	}
}

// Flush blocks until every accepted report has been processed.
func (a *Async) Flush() {
	a.mu.Lock()
	for a.pending > 0 {
		a.idle.Wait()
	}
	a.mu.Unlock()
}

// Close drains the queue and stops the worker. Later reports return ErrClosed.
func (a *Async) Close() {
	a.once.Do(func() {
		a.mu.Lock()
		a.closed = true
		close(a.queue)
		a.mu.Unlock()
		<-a.done
	})
}
