package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrClosed is returned by Next once the queue has been closed and drained.
var ErrClosed = errors.New("queue closed")

// Task is one unit of outbox work.
type Task struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	Payload    json.RawMessage `json:"payload"`
	Attempts   int             `json:"attempts"`
	EnqueuedAt time.Time       `json:"enqueuedAt"`
}

// NewTask marshals payload into a task of the given type.
func NewTask(taskType string, payload any) (Task, error) {
	taskType = strings.TrimSpace(taskType)
	if taskType == "" {
		return Task{}, errors.New("queue: task type is required")
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return Task{}, fmt.Errorf("queue: encode payload: %w", err)
	}
	return Task{
		ID:         uuid.NewString(),
		Type:       taskType,
		Payload:    raw,
		EnqueuedAt: time.Now().UTC(),
	}, nil
}

// Publisher enqueues tasks.
type Publisher interface {
	Publish(ctx context.Context, task Task) error
}

// Queue is a Publisher that can also hand tasks to a worker.
type Queue interface {
	Publisher
	// Next blocks until a task is available or ctx is done.
	Next(ctx context.Context) (Task, error)
	Close() error
}

func encodeTask(task Task) ([]byte, error) {
	return json.Marshal(task)
}

func decodeTask(raw []byte) (Task, error) {
	var task Task
	if err := json.Unmarshal(raw, &task); err != nil {
		return Task{}, fmt.Errorf("queue: decode task: %w", err)
	}
	if strings.TrimSpace(task.Type) == "" {
		return Task{}, errors.New("queue: task without type")
	}
	return task, nil
}
