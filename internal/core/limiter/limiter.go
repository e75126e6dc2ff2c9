package limiter

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Limiter bounds the number of concurrently running tasks to n and
// dispatches waiting tasks strictly FIFO by submission order. Completion
// order across running tasks is unconstrained. The wait list is unbounded.
type Limiter struct {
	mu     sync.Mutex
	n      int
	active int
	queue  []*task
	closed bool
}

type task struct {
	fn   func() error
	done chan error
}

func New(n int) *Limiter {
	if n < 1 {
		n = 1
	}
	return &Limiter{n: n}
}

// Enqueue submits fn and returns a channel that receives its outcome
// exactly once. fn runs as soon as a slot frees up and every earlier
// submission has been dispatched.
func (l *Limiter) Enqueue(fn func() error) <-chan error {
	t := &task{fn: fn, done: make(chan error, 1)}
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		t.done <- fmt.Errorf("limiter closed")
		return t.done
	}
	l.queue = append(l.queue, t)
	l.dispatchLocked()
	l.mu.Unlock()
	return t.done
}

// dispatchLocked starts queued tasks while capacity remains. Callers hold mu.
func (l *Limiter) dispatchLocked() {
	for l.active < l.n && len(l.queue) > 0 {
		t := l.queue[0]
		l.queue = l.queue[1:]
		l.active++
		go l.run(t)
	}
}

func (l *Limiter) run(t *task) {
	err := safeCall(t.fn)
	t.done <- err

	l.mu.Lock()
	l.active--
	l.dispatchLocked()
	l.mu.Unlock()
}

func safeCall(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panic: %v", r)
		}
	}()
	return fn()
}

// Active reports the number of tasks currently running.
func (l *Limiter) Active() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.active
}

// Len reports the number of tasks waiting for a slot.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.queue)
}

// Drain rejects new submissions and waits until running and queued work
// has finished, or ctx expires.
func (l *Limiter) Drain(ctx context.Context) error {
	l.mu.Lock()
	l.closed = true
	l.mu.Unlock()

	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	for {
		l.mu.Lock()
		idle := l.active == 0 && len(l.queue) == 0
		l.mu.Unlock()
		if idle {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
