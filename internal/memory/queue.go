package memory

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

var (
	// ErrQueueFull is returned when the task queue cannot accept more work.
	ErrQueueFull = errors.New("task queue full")
	// ErrQueueClosed is returned by Submit after Close.
	ErrQueueClosed = errors.New("task queue closed")
)

// Task is a unit of background work.
type Task func(ctx context.Context) error

type queued struct {
	name string
	fn   Task
}

// TaskQueue runs submitted tasks on one background worker. Wait blocks until
// every accepted task has finished.
type TaskQueue struct {
	mu      sync.Mutex
	closed  bool
	tasks   chan queued
	pending sync.WaitGroup
	done    chan struct{}
	logger  *slog.Logger
}

// NewTaskQueue starts a queue holding up to size waiting tasks.
func NewTaskQueue(size int, logger *slog.Logger) *TaskQueue {
	if size <= 0 {
		size = 64
	}
	if logger == nil {
		logger = slog.Default()
	}
	q := &TaskQueue{
		tasks:  make(chan queued, size),
		done:   make(chan struct{}),
		logger: logger.With("component", "memory.queue"),
	}
	go q.run()
	return q
}

// Submit enqueues fn without blocking.
func (q *TaskQueue) Submit(name string, fn Task) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrQueueClosed
	}
	q.pending.Add(1)
	select {
	case q.tasks <- queued{name: name, fn: fn}:
		return nil
	default:
		q.pending.Done()
		q.logger.Warn("dropping task", "task", name)
		return ErrQueueFull
	}
}

func (q *TaskQueue) run() {
	defer close(q.done)
	for t := range q.tasks {
		q.exec(t)
	}
}

func (q *TaskQueue) exec(t queued) {
	defer q.pending.Done()
	defer func() {
		if r := recover(); r != nil {
			q.logger.Error("task panicked", "task", t.name, "panic", r)
		}
	}()
	if err := t.fn(context.Background()); err != nil {
		q.logger.Warn("task failed", "task", t.name, "err", err)
	}
}

// Wait blocks until every accepted task has run.
func (q *TaskQueue) Wait() {
	q.pending.Wait()
}

// Close stops accepting tasks, drains the queue and stops the worker.
func (q *TaskQueue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.tasks)
	q.mu.Unlock()
	<-q.done
}
