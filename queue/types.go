package queue

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrClosed is returned by queue operations after Close has been called.
var ErrClosed = errors.New("queue: closed")

// Queue is an ordered store of pending upload tasks.
// Implementations must be safe for concurrent use by one consumer and any
// number of producers, and must preserve insertion order.
type Queue interface {
	// Push appends a task to the tail of the queue.
	Push(ctx context.Context, task Task) error

	// Pop removes and returns the task at the head of the queue.
	// Blocks until a task is available or ctx is cancelled.
	Pop(ctx context.Context) (*Task, error)

	// Len returns the number of tasks waiting in the queue.
	Len(ctx context.Context) (int, error)

	// Close releases resources held by the queue.
	Close() error
}

// Completion is the outcome of a task, published by the consumer that
// processed it for the producer that queued it.
type Completion struct {
	// TaskID is the ID of the processed task.
	TaskID string `json:"task_id"`

	// Error is the upload failure message, empty on success.
	Error string `json:"error,omitempty"`
}

// Completer is implemented by queues that several consumers can share. A
// consumer that pops a task it did not queue publishes the outcome, and
// every subscriber receives it.
type Completer interface {
	// Publish delivers c to every current subscriber.
	Publish(ctx context.Context, c Completion) error

	// Subscribe returns a channel of completions that stays open until ctx
	// is done. Completions published after Subscribe returns are delivered.
	Subscribe(ctx context.Context) (<-chan Completion, error)
}

// Task is a single pending upload of a memory record to the hub.
type Task struct {
	// ID is a UUID that keys the caller's completion handle.
	ID string `json:"id"`

	// Owner is the hub account the record is stored under.
	Owner string `json:"owner"`

	// Filename is the record identifier on the hub.
	Filename string `json:"filename"`

	// Message is the serialized record body.
	Message string `json:"message"`

	// SubmittedAt is the Unix timestamp in milliseconds when the task was queued.
	SubmittedAt int64 `json:"submitted_at"`
}

// IsValid checks that the task carries the fields needed to key and order it.
// Owner, Filename and Message are transmitted as given and are not checked.
func (t *Task) IsValid() error {
	if t.ID == "" {
		return fmt.Errorf("id is required")
	}
	if t.SubmittedAt <= 0 {
		return fmt.Errorf("submitted_at must be positive, got %d", t.SubmittedAt)
	}
	return nil
}

// Age returns the duration since this task was submitted.
func (t *Task) Age() time.Duration {
	if t.SubmittedAt <= 0 {
		return 0
	}
	now := time.Now().UnixMilli()
	return time.Duration(now-t.SubmittedAt) * time.Millisecond
}
