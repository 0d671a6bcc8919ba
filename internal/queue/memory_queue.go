package queue

import (
	"context"
	"errors"
	"sync"
)

const defaultMemoryCapacity = 256

// MemoryQueue is an in-process queue backed by a buffered channel.
// Tasks are lost on restart.
type MemoryQueue struct {
	tasks  chan Task
	mu     sync.RWMutex
	closed bool
}

func NewMemoryQueue(capacity int) *MemoryQueue {
	if capacity <= 0 {
		capacity = defaultMemoryCapacity
	}
	return &MemoryQueue{tasks: make(chan Task, capacity)}
}

func (q *MemoryQueue) Publish(ctx context.Context, task Task) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrClosed
	}
	select {
	case q.tasks <- task:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return errors.New("queue: memory queue is full")
	}
}

func (q *MemoryQueue) Next(ctx context.Context) (Task, error) {
	select {
	case task, ok := <-q.tasks:
		if !ok {
			return Task{}, ErrClosed
		}
		return task, nil
	case <-ctx.Done():
		return Task{}, ctx.Err()
	}
}

func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		q.closed = true
		close(q.tasks)
	}
	return nil
}

// Len reports the number of buffered tasks.
func (q *MemoryQueue) Len() int {
	return len(q.tasks)
}
