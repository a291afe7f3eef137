package render

import (
	"context"
	"sync"

	"github.com/go-drift/renderbridge/pkg/errors"
)

// Executor runs callbacks one at a time on a dedicated goroutine.
//
// The queue is unbounded so that a callback may post follow-up work without
// blocking itself.
type Executor struct {
	mu     sync.Mutex
	queue  []func()
	closed bool
	wake   chan struct{}
	done   chan struct{}
}

// NewExecutor starts an executor. backlog presizes the queue.
func NewExecutor(backlog int) *Executor {
	e := &Executor{
		queue: make([]func(), 0, max(backlog, 0)),
		wake:  make(chan struct{}, 1),
		done:  make(chan struct{}),
	}
	go e.loop()
	return e
}

// Post schedules fn. It returns false if fn is nil or the executor is
// closed.
func (e *Executor) Post(fn func()) bool {
	if fn == nil {
		return false
	}
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return false
	}
	e.queue = append(e.queue, fn)
	e.mu.Unlock()
	e.signal()
	return true
}

// Run schedules fn and waits for it to finish or for ctx to end. Run must
// not be called from a callback running on the same executor.
func (e *Executor) Run(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	if !e.Post(func() {
		defer close(finished)
		fn()
	}) {
		return ErrClosed
	}
	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting work. Callbacks already queued still run.
func (e *Executor) Close() {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()
	e.signal()
}

// Done is closed once the executor goroutine has exited.
func (e *Executor) Done() <-chan struct{} {
	return e.done
}

func (e *Executor) signal() {
	select {
	case e.wake <- struct{}{}:
	default:
	}
}

func (e *Executor) loop() {
	defer close(e.done)
	for {
		e.mu.Lock()
		if len(e.queue) == 0 {
			closed := e.closed
			e.mu.Unlock()
			if closed {
				return
			}
			<-e.wake
			continue
		}
		fn := e.queue[0]
		e.queue[0] = nil
		e.queue = e.queue[1:]
		e.mu.Unlock()
		e.run(fn)
	}
}

func (e *Executor) run(fn func()) {
	defer errors.Recover("render.Executor")
	fn()
}
