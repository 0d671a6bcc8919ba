package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Handler processes one task type.
type Handler func(ctx context.Context, task Task) error

// Worker consumes tasks and re-publishes failed ones until MaxAttempts.
type Worker struct {
	queue       Queue
	maxAttempts int
	errorDelay  time.Duration

	mu       sync.RWMutex
	handlers map[string]Handler
}

func NewWorker(q Queue, maxAttempts int) *Worker {
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	return &Worker{
		queue:       q,
		maxAttempts: maxAttempts,
		errorDelay:  time.Second,
		handlers:    make(map[string]Handler),
	}
}

// Handle registers the handler for taskType, replacing any previous one.
func (w *Worker) Handle(taskType string, handler Handler) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.handlers[taskType] = handler
}

// Run blocks until ctx is done or the queue is closed.
func (w *Worker) Run(ctx context.Context) error {
	logrus.WithField("max_attempts", w.maxAttempts).Info("outbox_worker_started")
	for {
		task, err := w.queue.Next(ctx)
		if err != nil {
			if errors.Is(err, ErrClosed) || ctx.Err() != nil {
				logrus.Info("outbox_worker_stopped")
				return nil
			}
			logrus.WithError(err).Warn("outbox_worker_next_failed")
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(w.errorDelay):
			}
			continue
		}
		w.process(ctx, task)
	}
}

func (w *Worker) process(ctx context.Context, task Task) {
	task.Attempts++
	logger := logrus.WithFields(logrus.Fields{
		"task_id":   task.ID,
		"task_type": task.Type,
		"attempt":   task.Attempts,
	})

	err := w.dispatch(ctx, task)
	if err == nil {
		logger.Debug("outbox_task_done")
		return
	}
	if task.Attempts >= w.maxAttempts {
		logger.WithError(err).Error("outbox_task_dropped")
		return
	}
	logger.WithError(err).Warn("outbox_task_retry")
	if pubErr := w.queue.Publish(ctx, task); pubErr != nil {
		logger.WithError(pubErr).Error("outbox_task_requeue_failed")
	}
}

func (w *Worker) dispatch(ctx context.Context, task Task) (err error) {
	w.mu.RLock()
	handler, ok := w.handlers[task.Type]
	w.mu.RUnlock()
	if !ok {
		return fmt.Errorf("no handler for task type %q", task.Type)
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return handler(ctx, task)
}
