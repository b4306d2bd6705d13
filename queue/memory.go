package queue

import (
	"context"
	"sync"
)

// completionBuffer is the capacity of each subscriber channel.
const completionBuffer = 64

// MemoryQueue is an in-process FIFO queue.
// Pop parks the consumer until Push signals new work, so an idle consumer
// does not poll. It implements Completer for clients sharing one queue.
type MemoryQueue struct {
	mu     sync.Mutex
	tasks  []Task
	notify chan struct{}
	closed bool
	done   chan struct{}
	subs   map[chan Completion]struct{}
}

// NewMemoryQueue creates an empty in-memory queue.
func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
		subs:   make(map[chan Completion]struct{}),
	}
}

// Push appends a task to the tail of the queue and wakes a parked consumer.
func (q *MemoryQueue) Push(ctx context.Context, task Task) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrClosed
	}
	q.tasks = append(q.tasks, task)
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
		// a wakeup is already pending
	}
	return nil
}

// Pop removes and returns the head task, blocking until one is available.
func (q *MemoryQueue) Pop(ctx context.Context) (*Task, error) {
	for {
		q.mu.Lock()
		if q.closed {
			q.mu.Unlock()
			return nil, ErrClosed
		}
		if len(q.tasks) > 0 {
			task := q.tasks[0]
			q.tasks[0] = Task{}
			q.tasks = q.tasks[1:]
			q.mu.Unlock()
			return &task, nil
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-q.done:
			return nil, ErrClosed
		case <-q.notify:
		}
	}
}

// Len returns the number of queued tasks.
func (q *MemoryQueue) Len(ctx context.Context) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks), nil
}

// Drain removes and returns every queued task without blocking.
func (q *MemoryQueue) Drain() []Task {
	q.mu.Lock()
	defer q.mu.Unlock()
	tasks := q.tasks
	q.tasks = nil
	return tasks
}

// Publish sends c to every subscriber. It blocks while a subscriber's buffer
// is full, until ctx is done.
func (q *MemoryQueue) Publish(ctx context.Context, c Completion) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrClosed
	}
	for ch := range q.subs {
		select {
		case ch <- c:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Subscribe registers a completion channel. The channel is closed when ctx
// is done or the queue is closed.
func (q *MemoryQueue) Subscribe(ctx context.Context) (<-chan Completion, error) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil, ErrClosed
	}
	ch := make(chan Completion, completionBuffer)
	q.subs[ch] = struct{}{}
	q.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
		case <-q.done:
		}
		q.unsubscribe(ch)
	}()
	return ch, nil
}

func (q *MemoryQueue) unsubscribe(ch chan Completion) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.subs[ch]; ok {
		delete(q.subs, ch)
		close(ch)
	}
}

// Close wakes any parked consumer, ends every subscription and rejects
// further pushes. Tasks still queued are kept and can be retrieved with Drain.
func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		q.closed = true
		close(q.done)
		for ch := range q.subs {
			delete(q.subs, ch)
			close(ch)
		}
	}
	return nil
}
