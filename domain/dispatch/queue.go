// Package dispatch provides serial execution contexts: the per-capturer
// sample queue and the main context that owns view and display work.
package dispatch

import (
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
)

// Queue runs submitted functions one at a time in submission order.
type Queue interface {
	// Async enqueues fn and returns immediately. It reports false when the
	// queue no longer accepts work.
	Async(fn func()) bool
	// Sync enqueues fn and waits for it to finish. Calling Sync from a task
	// running on the same queue deadlocks.
	Sync(fn func()) bool
}

// Fatal marks a task panic the queue must not absorb. It is logged and then
// re-raised so the process stops.
type Fatal struct{ Err error }

func (f Fatal) Error() string { return fmt.Sprintf("dispatch: fatal: %v", f.Err) }

func (f Fatal) Unwrap() error { return f.Err }

// SerialQueue is a Queue backed by a single goroutine and an unbounded FIFO,
// so Async never blocks the submitting context.
type SerialQueue struct {
	name   string
	logger *slog.Logger

	mu     sync.Mutex
	cond   *sync.Cond
	tasks  []func()
	closed bool
	done   chan struct{}
}

// NewSerialQueue starts a queue. name appears in panic logs.
func NewSerialQueue(name string, logger *slog.Logger) *SerialQueue {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	q := &SerialQueue{name: name, logger: logger, done: make(chan struct{})}
	q.cond = sync.NewCond(&q.mu)
	go q.loop()
	return q
}

// Name returns the queue label.
func (q *SerialQueue) Name() string { return q.name }

func (q *SerialQueue) Async(fn func()) bool {
	if fn == nil {
		return false
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false
	}
	q.tasks = append(q.tasks, fn)
	q.cond.Signal()
	return true
}

func (q *SerialQueue) Sync(fn func()) bool {
	if fn == nil {
		return false
	}
	finished := make(chan struct{})
	if !q.Async(func() {
		defer close(finished)
		fn()
	}) {
		return false
	}
	<-finished
	return true
}

// Close rejects new work, runs what is already queued, then stops the
// goroutine. Blocks until the queue is drained. Idempotent.
func (q *SerialQueue) Close() {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		q.cond.Signal()
	}
	q.mu.Unlock()
	<-q.done
}

func (q *SerialQueue) loop() {
	defer close(q.done)
	for {
		q.mu.Lock()
		for len(q.tasks) == 0 && !q.closed {
			q.cond.Wait()
		}
		if len(q.tasks) == 0 && q.closed {
			q.mu.Unlock()
			return
		}
		fn := q.tasks[0]
		q.tasks[0] = nil
		q.tasks = q.tasks[1:]
		q.mu.Unlock()
		q.run(fn)
	}
}

func (q *SerialQueue) run(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			q.logger.Error("dispatch task panic", "queue", q.name, "error", r, "stack", string(debug.Stack()))
			if f, ok := r.(Fatal); ok {
				panic(f)
			}
		}
	}()
	fn()
}
