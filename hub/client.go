package hub

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/membase-hub/plugin-membase/queue"
	"go.opentelemetry.io/otel/trace"
)

// outcome is the value delivered through a task's completion handle.
type outcome struct {
	result *UploadResult
	err    error
}

// Client uploads memory records to a Membase hub.
//
// Queued uploads are transmitted by a single background worker, one task at a
// time and in enqueue order. The remaining operations are one-shot requests
// that bypass the queue and may run concurrently with it and with each other.
type Client struct {
	baseURL string
	http    *http.Client

	queue     queue.Queue
	ownsQueue bool

	// completer is set when a shared queue carries outcomes between clients.
	completer queue.Completer

	logger  *slog.Logger
	tracer  trace.Tracer
	metrics *instruments

	requestTimeout time.Duration
	cooldown       time.Duration
	drainInterval  time.Duration

	mu      sync.Mutex
	pending map[string]chan outcome
	closed  bool

	processing atomic.Bool

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a client for the hub at baseURL and starts its upload worker.
// The scheme of baseURL is forced to https. Call Close to stop the worker.
func New(baseURL string, opts ...Option) (*Client, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	metrics, err := newInstruments(cfg.meter())
	if err != nil {
		return nil, fmt.Errorf("hub: %w", err)
	}

	logger := cfg.logger
	if logger == nil {
		logger = slog.Default()
	}

	q, owns := cfg.queue, false
	if q == nil {
		q, owns = queue.NewMemoryQueue(), true
	}

	ctx, cancel := context.WithCancel(context.Background())

	c := &Client{
		baseURL:        NormalizeBaseURL(baseURL),
		http:           cfg.client(),
		queue:          q,
		ownsQueue:      owns,
		tracer:         cfg.tracer(),
		metrics:        metrics,
		requestTimeout: cfg.requestTimeout,
		cooldown:       cfg.cooldown,
		drainInterval:  cfg.drainInterval,
		pending:        make(map[string]chan outcome),
		ctx:            ctx,
		cancel:         cancel,
		done:           make(chan struct{}),
	}
	c.logger = logger.With("hub", c.baseURL)

	if comp, ok := q.(queue.Completer); ok && !owns {
		completions, err := comp.Subscribe(ctx)
		if err != nil {
			cancel()
			return nil, fmt.Errorf("hub: subscribe to completions: %w", err)
		}
		c.completer = comp
		go c.listen(completions)
	}

	go c.run()

	return c, nil
}

// BaseURL returns the normalized hub URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Processing reports whether the worker is transmitting a task right now.
func (c *Client) Processing() bool {
	return c.processing.Load()
}

// Pending returns the number of callers waiting on a completion handle.
func (c *Client) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// EnqueueUpload appends an upload of message to the tail of the queue.
//
// When wait is false it returns a Queued result immediately; the task is still
// processed but the caller is not told the outcome. When wait is true it
// blocks until the worker has processed this task and returns a Completed
// result, or nil and the upload error. Cancelling ctx stops the wait but not
// the upload. Owner, filename and message are transmitted as given.
func (c *Client) EnqueueUpload(ctx context.Context, owner, filename, message string, wait bool) (*UploadResult, error) {
	task := queue.Task{
		ID:          uuid.NewString(),
		Owner:       owner,
		Filename:    filename,
		Message:     message,
		SubmittedAt: time.Now().UnixMilli(),
	}

	var done chan outcome

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	if wait {
		done = make(chan outcome, 1)
		c.pending[task.ID] = done
	}
	c.mu.Unlock()

	if err := c.queue.Push(ctx, task); err != nil {
		c.forget(task.ID)
		c.logger.Error("failed to queue upload task",
			"owner", owner,
			"filename", filename,
			"error", err,
		)
		if errors.Is(err, queue.ErrClosed) {
			return nil, ErrClosed
		}
		return nil, fmt.Errorf("hub: queue upload: %w", err)
	}

	c.metrics.enqueued.Add(ctx, 1)
	c.logger.Debug("upload task queued",
		"task_id", task.ID,
		"owner", owner,
		"filename", filename,
	)

	if !wait {
		return queuedResult(), nil
	}

	select {
	case out := <-done:
		return out.result, out.err
	case <-ctx.Done():
		c.forget(task.ID)
		return nil, ctx.Err()
	}
}

// WaitForQueueDrain blocks until the queue is observed empty.
// The task the worker is transmitting at that moment may still be in flight;
// callers that need every upload finished must wait on each of them.
func (c *Client) WaitForQueueDrain(ctx context.Context) error {
	ticker := time.NewTicker(c.drainInterval)
	defer ticker.Stop()

	for {
		n, err := c.queue.Len(ctx)
		if err != nil {
			return fmt.Errorf("hub: read queue length: %w", err)
		}
		if n == 0 {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Close stops the worker and waits for the in-flight task, if any, until ctx
// ends. Callers still waiting on a task receive ErrClosed. Tasks left in the
// default in-memory queue are dropped; tasks in a queue supplied with
// WithQueue stay there. Close is safe to call more than once.
func (c *Client) Close(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.cancel()

	var err error
	select {
	case <-c.done:
	case <-ctx.Done():
		err = ctx.Err()
		c.logger.Warn("upload worker did not stop in time", "error", err)
	}

	c.mu.Lock()
	pending := c.pending
	c.pending = make(map[string]chan outcome)
	c.mu.Unlock()

	for _, done := range pending {
		done <- outcome{err: ErrClosed}
	}

	if c.ownsQueue {
		if mq, ok := c.queue.(*queue.MemoryQueue); ok {
			if dropped := mq.Drain(); len(dropped) > 0 {
				c.logger.Warn("dropping queued upload tasks", "count", len(dropped))
			}
		}
		if closeErr := c.queue.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("hub: close queue: %w", closeErr)
		}
	}

	return err
}

// run is the upload worker. It blocks on the queue until a task arrives,
// transmits it, then pauses for the cooldown before taking the next one.
func (c *Client) run() {
	defer close(c.done)

	c.logger.Debug("upload worker started")

	for {
		task, err := c.queue.Pop(c.ctx)
		if err != nil {
			if c.ctx.Err() != nil || errors.Is(err, queue.ErrClosed) {
				c.logger.Debug("upload worker stopped")
				return
			}
			c.logger.Error("failed to pop upload task", "error", err)
			if !c.sleep(c.cooldown) {
				return
			}
			continue
		}

		c.process(*task)

		if !c.sleep(c.cooldown) {
			c.logger.Debug("upload worker stopped")
			return
		}
	}
}

// process transmits one task and resolves its completion handle.
// The request context is detached from the worker so Close lets it finish;
// it is bounded by the request timeout instead.
func (c *Client) process(task queue.Task) {
	c.processing.Store(true)
	defer c.processing.Store(false)

	logger := c.logger.With(
		"task_id", task.ID,
		"owner", task.Owner,
		"filename", task.Filename,
	)

	ctx := context.Background()
	data, err := c.postJSON(ctx, endpointUpload, MemoryRecord{
		Owner:   task.Owner,
		ID:      task.Filename,
		Message: task.Message,
	})
	c.metrics.recordUpload(ctx, err)

	if err != nil {
		logger.Error("error during upload", "error", err)
		c.resolve(task.ID, outcome{err: err})
		return
	}

	logger.Debug("upload done", "response", string(data), "queued_for", task.Age())
	c.resolve(task.ID, outcome{result: completedResult()})
}

// resolve delivers out to the task's waiting caller, if one is still waiting.
// A task queued by another client on a shared queue has its outcome
// published instead.
func (c *Client) resolve(id string, out outcome) {
	if c.deliver(id, out) || c.completer == nil {
		return
	}

	completion := queue.Completion{TaskID: id}
	if out.err != nil {
		completion.Error = out.err.Error()
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.requestTimeout)
	defer cancel()
	if err := c.completer.Publish(ctx, completion); err != nil {
		c.logger.Warn("failed to publish upload outcome", "task_id", id, "error", err)
	}
}

// deliver hands out to the local waiter for id and reports whether there
// was one.
func (c *Client) deliver(id string, out outcome) bool {
	c.mu.Lock()
	done, ok := c.pending[id]
	delete(c.pending, id)
	c.mu.Unlock()

	if ok {
		done <- out
	}
	return ok
}

// listen resolves local waiters from completions published by other
// clients sharing the queue. Completions for unknown tasks are ignored.
func (c *Client) listen(completions <-chan queue.Completion) {
	for comp := range completions {
		out := outcome{result: completedResult()}
		if comp.Error != "" {
			out = outcome{err: fmt.Errorf("%w: %s", ErrUploadFailed, comp.Error)}
		}
		if c.deliver(comp.TaskID, out) {
			c.logger.Debug("upload resolved by another worker", "task_id", comp.TaskID)
		}
	}
}

func (c *Client) forget(id string) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

// sleep pauses for d and reports false if the client closed meanwhile.
func (c *Client) sleep(d time.Duration) bool {
	if d <= 0 {
		return c.ctx.Err() == nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-c.ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
