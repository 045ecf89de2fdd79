// Package memory provides the in-process task queue.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/jfaulkner/crm-bridge/internal/uow"
)

// Queue is a bounded in-memory task queue with context-aware operations.
type Queue struct {
	ch      chan uow.Task
	closeMu sync.Mutex
	closed  bool
}

// NewQueue constructs a queue with the provided capacity.
func NewQueue(capacity int) *Queue {
	return &Queue{
		ch: make(chan uow.Task, capacity),
	}
}

// Enqueue pushes a task or returns when the context ends. With a short
// deadline this doubles as a backpressure signal: a full queue bounces the
// request instead of blocking it.
func (q *Queue) Enqueue(ctx context.Context, task uow.Task) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("enqueue canceled: %w", ctx.Err())
	case q.ch <- task:
		return nil
	}
}

// Dequeue pops the next task, respecting context cancellation.
func (q *Queue) Dequeue(ctx context.Context) (uow.Task, error) {
	select {
	case <-ctx.Done():
		return uow.Task{}, fmt.Errorf("dequeue canceled: %w", ctx.Err())
	case task, ok := <-q.ch:
		if !ok {
			return uow.Task{}, errors.New("queue closed")
		}
		return task, nil
	}
}

// Close closes the underlying channel for shutdown.
func (q *Queue) Close() {
	q.closeMu.Lock()
	defer q.closeMu.Unlock()
	if q.closed {
		return
	}
	close(q.ch)
	q.closed = true
}
