package queue

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisKey is the list that holds pending upload tasks.
const DefaultRedisKey = "membase:upload:queue"

// resultsSuffix names the pub/sub channel for completions: <key>:results.
const resultsSuffix = ":results"

// MinPopTimeout is the shortest BRPOP timeout Redis accepts.
const MinPopTimeout = time.Second

// RedisOptions configures the Redis connection.
type RedisOptions struct {
	// URL is the Redis connection string (e.g., "redis://localhost:6379")
	URL string

	// Key is the Redis list holding the queue. Defaults to DefaultRedisKey.
	Key string

	// TLS configuration for secure connections
	TLS *tls.Config

	// ConnectTimeout is the maximum time to wait for connection establishment
	ConnectTimeout time.Duration

	// ReadTimeout is the maximum time to wait for read operations
	ReadTimeout time.Duration

	// WriteTimeout is the maximum time to wait for write operations
	WriteTimeout time.Duration

	// PopTimeout bounds each BRPOP so Pop rechecks its context between
	// calls. Defaults to MinPopTimeout; shorter values are raised to it.
	PopTimeout time.Duration
}

// RedisQueue is a Queue stored in a Redis list. Tasks are pushed with LPUSH
// and consumed with BRPOP, so several processes can share one queue.
// Completion handles are not stored in Redis: outcomes travel over the
// <key>:results pub/sub channel to whichever client holds the waiter.
type RedisQueue struct {
	client     *redis.Client
	key        string
	results    string
	popTimeout time.Duration
}

// NewRedisQueue connects to Redis and returns a queue bound to opts.Key.
func NewRedisQueue(opts RedisOptions) (*RedisQueue, error) {
	if opts.URL == "" {
		opts.URL = "redis://localhost:6379"
	}
	if opts.Key == "" {
		opts.Key = DefaultRedisKey
	}
	if opts.ConnectTimeout == 0 {
		opts.ConnectTimeout = 5 * time.Second
	}
	if opts.ReadTimeout == 0 {
		opts.ReadTimeout = 30 * time.Second
	}
	if opts.WriteTimeout == 0 {
		opts.WriteTimeout = 5 * time.Second
	}
	if opts.PopTimeout < MinPopTimeout {
		opts.PopTimeout = MinPopTimeout
	}

	redisOpts, err := redis.ParseURL(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	redisOpts.TLSConfig = opts.TLS
	redisOpts.DialTimeout = opts.ConnectTimeout
	redisOpts.ReadTimeout = opts.ReadTimeout
	redisOpts.WriteTimeout = opts.WriteTimeout
	redisOpts.ContextTimeoutEnabled = true

	client := redis.NewClient(redisOpts)

	ctx, cancel := context.WithTimeout(context.Background(), opts.ConnectTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisQueue{
		client:     client,
		key:        opts.Key,
		results:    opts.Key + resultsSuffix,
		popTimeout: opts.PopTimeout,
	}, nil
}

// Key returns the Redis list name backing this queue.
func (q *RedisQueue) Key() string {
	return q.key
}

// Push adds a task to the tail of the queue.
func (q *RedisQueue) Push(ctx context.Context, task Task) error {
	data, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to marshal task: %w", err)
	}

	if err := q.client.LPush(ctx, q.key, data).Err(); err != nil {
		return fmt.Errorf("failed to push to queue %s: %w", q.key, err)
	}

	return nil
}

// Pop removes and returns the task at the head of the queue.
// Blocks until a task is available or ctx is cancelled.
func (q *RedisQueue) Pop(ctx context.Context) (*Task, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		// BRPOP returns [key, value], or redis.Nil when popTimeout elapses
		result, err := q.client.BRPop(ctx, q.popTimeout, q.key).Result()
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			if errors.Is(err, redis.Nil) {
				continue
			}
			if errors.Is(err, redis.ErrClosed) {
				return nil, ErrClosed
			}
			return nil, fmt.Errorf("failed to pop from queue %s: %w", q.key, err)
		}

		if len(result) != 2 {
			return nil, fmt.Errorf("unexpected BRPOP result length: %d", len(result))
		}

		return q.claim(ctx, result[1])
	}
}

// claim decodes a popped payload. A consumer whose context ended while BRPOP
// was returning puts the payload back at the head of the list instead.
func (q *RedisQueue) claim(ctx context.Context, payload string) (*Task, error) {
	if ctxErr := ctx.Err(); ctxErr != nil {
		if err := q.client.RPush(context.WithoutCancel(ctx), q.key, payload).Err(); err != nil {
			return nil, fmt.Errorf("failed to requeue task on %s: %w", q.key, err)
		}
		return nil, ctxErr
	}

	var task Task
	if err := json.Unmarshal([]byte(payload), &task); err != nil {
		return nil, fmt.Errorf("failed to unmarshal task: %w", err)
	}
	return &task, nil
}

// Len returns the number of tasks waiting in the Redis list.
func (q *RedisQueue) Len(ctx context.Context) (int, error) {
	n, err := q.client.LLen(ctx, q.key).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to read length of queue %s: %w", q.key, err)
	}
	return int(n), nil
}

// Publish sends a completion to the results channel.
func (q *RedisQueue) Publish(ctx context.Context, c Completion) error {
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal completion: %w", err)
	}

	if err := q.client.Publish(ctx, q.results, data).Err(); err != nil {
		return fmt.Errorf("failed to publish to channel %s: %w", q.results, err)
	}

	return nil
}

// Subscribe listens on the results channel until ctx is done.
func (q *RedisQueue) Subscribe(ctx context.Context) (<-chan Completion, error) {
	pubsub := q.client.Subscribe(ctx, q.results)

	// Wait for subscription confirmation
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to channel %s: %w", q.results, err)
	}

	completions := make(chan Completion, completionBuffer)

	go func() {
		defer close(completions)
		defer pubsub.Close()

		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}

				var c Completion
				if err := json.Unmarshal([]byte(msg.Payload), &c); err != nil {
					continue
				}

				select {
				case completions <- c:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return completions, nil
}

// Close closes the Redis connection.
func (q *RedisQueue) Close() error {
	return q.client.Close()
}
