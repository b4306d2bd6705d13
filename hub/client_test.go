package hub

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/membase-hub/plugin-membase/queue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// stubHub is a TLS test server that records /api/upload calls.
type stubHub struct {
	server *httptest.Server

	mu      sync.Mutex
	records []MemoryRecord
	headers []http.Header

	calls       atomic.Int32
	inFlight    atomic.Int32
	maxInFlight atomic.Int32

	delay  time.Duration
	status int
	body   string
}

func newStubHub(t *testing.T) *stubHub {
	t.Helper()

	h := &stubHub{status: http.StatusOK, body: `{"ok":true}`}
	h.server = httptest.NewTLSServer(http.HandlerFunc(h.serveHTTP))
	t.Cleanup(h.server.Close)
	return h
}

func (h *stubHub) serveHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != endpointUpload {
		http.NotFound(w, r)
		return
	}

	n := h.inFlight.Add(1)
	defer h.inFlight.Add(-1)
	for {
		max := h.maxInFlight.Load()
		if n <= max || h.maxInFlight.CompareAndSwap(max, n) {
			break
		}
	}
	h.calls.Add(1)

	var record MemoryRecord
	_ = json.NewDecoder(r.Body).Decode(&record)

	h.mu.Lock()
	h.records = append(h.records, record)
	h.headers = append(h.headers, r.Header.Clone())
	delay, status, body := h.delay, h.status, h.body
	h.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}

	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)
}

func (h *stubHub) recordIDs() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	ids := make([]string, 0, len(h.records))
	for _, r := range h.records {
		ids = append(ids, r.ID)
	}
	return ids
}

// newTestLogger creates a logger that discards output for tests.
func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestClient(t *testing.T, baseURL string, opts ...Option) *Client {
	t.Helper()

	opts = append([]Option{
		WithLogger(newTestLogger()),
		WithCooldown(5 * time.Millisecond),
		WithDrainInterval(5 * time.Millisecond),
		WithRequestTimeout(2 * time.Second),
	}, opts...)

	client, err := New(baseURL, opts...)
	require.NoError(t, err)

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = client.Close(ctx)
	})
	return client
}

// orderedQueue records the order in which tasks were pushed.
type orderedQueue struct {
	*queue.MemoryQueue
	mu     sync.Mutex
	pushed []string
}

func (q *orderedQueue) Push(ctx context.Context, task queue.Task) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pushed = append(q.pushed, task.Filename)
	return q.MemoryQueue.Push(ctx, task)
}

func TestNew(t *testing.T) {
	client := newTestClient(t, "http://hub.example/")
	assert.Equal(t, "https://hub.example", client.BaseURL())
	assert.False(t, client.Processing())
	assert.Zero(t, client.Pending())
}

func TestEnqueueUpload_WaitCompleted(t *testing.T) {
	hub := newStubHub(t)
	client := newTestClient(t, hub.server.URL)

	result, err := client.EnqueueUpload(context.Background(), "eliza_test_user", "eliza_test_message", "test message", true)
	require.NoError(t, err)
	assert.Equal(t, &UploadResult{Kind: KindCompleted, Message: "Upload task completed"}, result)
	assert.True(t, result.Completed())

	hub.mu.Lock()
	defer hub.mu.Unlock()
	require.Len(t, hub.records, 1)
	assert.Equal(t, MemoryRecord{Owner: "eliza_test_user", ID: "eliza_test_message", Message: "test message"}, hub.records[0])
	assert.Equal(t, "application/json", hub.headers[0].Get("Content-Type"))
	assert.Equal(t, "application/json", hub.headers[0].Get("Accept"))
}

func TestEnqueueUpload_InsecureSchemeIsUpgraded(t *testing.T) {
	hub := newStubHub(t)
	insecure := "http://" + strings.TrimPrefix(hub.server.URL, "https://")
	client := newTestClient(t, insecure)

	result, err := client.EnqueueUpload(context.Background(), "owner", "file", "msg", true)
	require.NoError(t, err)
	assert.True(t, result.Completed())
}

func TestEnqueueUpload_NoWaitQueued(t *testing.T) {
	hub := newStubHub(t)
	hub.status = http.StatusInternalServerError
	client := newTestClient(t, hub.server.URL)

	result, err := client.EnqueueUpload(context.Background(), "owner", "file", "msg", false)
	require.NoError(t, err)
	assert.Equal(t, &UploadResult{Kind: KindQueued, Message: "Upload task has been queued"}, result)
	assert.True(t, result.Queued())

	// the task is still transmitted even though nobody waits for it
	require.Eventually(t, func() bool { return hub.calls.Load() == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.Zero(t, client.Pending())
}

func TestEnqueueUpload_Failures(t *testing.T) {
	t.Run("http error", func(t *testing.T) {
		hub := newStubHub(t)
		hub.status = http.StatusBadGateway
		client := newTestClient(t, hub.server.URL)

		result, err := client.EnqueueUpload(context.Background(), "owner", "file", "msg", true)
		assert.Nil(t, result)
		require.Error(t, err)
		assert.True(t, IsStatus(err, http.StatusBadGateway))
	})

	t.Run("invalid json body", func(t *testing.T) {
		hub := newStubHub(t)
		hub.body = "<html>ok</html>"
		client := newTestClient(t, hub.server.URL)

		result, err := client.EnqueueUpload(context.Background(), "owner", "file", "msg", true)
		assert.Nil(t, result)
		assert.ErrorIs(t, err, ErrInvalidJSON)
	})

	t.Run("network failure", func(t *testing.T) {
		hub := newStubHub(t)
		url := hub.server.URL
		hub.server.Close()
		client := newTestClient(t, url)

		result, err := client.EnqueueUpload(context.Background(), "owner", "file", "msg", true)
		assert.Nil(t, result)
		assert.Error(t, err)
	})

	t.Run("worker survives failures", func(t *testing.T) {
		hub := newStubHub(t)
		hub.status = http.StatusInternalServerError
		client := newTestClient(t, hub.server.URL)

		_, err := client.EnqueueUpload(context.Background(), "owner", "first", "msg", true)
		require.Error(t, err)

		hub.mu.Lock()
		hub.status = http.StatusOK
		hub.mu.Unlock()

		result, err := client.EnqueueUpload(context.Background(), "owner", "second", "msg", true)
		require.NoError(t, err)
		assert.True(t, result.Completed())
	})
}

func TestEnqueueUpload_SequentialFIFO(t *testing.T) {
	hub := newStubHub(t)
	hub.delay = 30 * time.Millisecond

	q := &orderedQueue{MemoryQueue: queue.NewMemoryQueue()}
	t.Cleanup(func() { q.Close() })
	client := newTestClient(t, hub.server.URL, WithQueue(q))

	names := []string{"A", "B", "C"}
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		resolved []string
		results  = make(map[string]*UploadResult)
	)

	for i, name := range names {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			result, err := client.EnqueueUpload(context.Background(), "owner", name, "msg "+name, true)
			assert.NoError(t, err)

			mu.Lock()
			resolved = append(resolved, name)
			results[name] = result
			mu.Unlock()
		}(name)
		// let each push land before starting the next caller
		require.Eventually(t, func() bool {
			q.mu.Lock()
			defer q.mu.Unlock()
			return len(q.pushed) == i+1
		}, time.Second, time.Millisecond)
	}
	wg.Wait()

	for _, name := range names {
		assert.Equal(t, &UploadResult{Kind: KindCompleted, Message: CompletedMessage}, results[name])
	}

	q.mu.Lock()
	pushed := append([]string(nil), q.pushed...)
	q.mu.Unlock()

	assert.Equal(t, int32(3), hub.calls.Load())
	assert.Equal(t, int32(1), hub.maxInFlight.Load(), "uploads overlapped")
	assert.Equal(t, pushed, hub.recordIDs(), "hub saw tasks out of enqueue order")
	assert.Equal(t, pushed, resolved, "results resolved out of enqueue order")
}

func TestEnqueueUpload_ManyCallersAllResolve(t *testing.T) {
	hub := newStubHub(t)
	client := newTestClient(t, hub.server.URL, WithCooldown(0))

	const n = 20
	var wg sync.WaitGroup
	var completed atomic.Int32
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			result, err := client.EnqueueUpload(context.Background(), "owner", fmt.Sprintf("file-%d", i), "msg", true)
			if err == nil && result.Completed() {
				completed.Add(1)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(n), completed.Load())
	assert.Equal(t, int32(1), hub.maxInFlight.Load())
}

func TestEnqueueUpload_ContextCancelledWhileWaiting(t *testing.T) {
	hub := newStubHub(t)
	hub.delay = 200 * time.Millisecond
	client := newTestClient(t, hub.server.URL)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	result, err := client.EnqueueUpload(ctx, "owner", "file", "msg", true)
	assert.Nil(t, result)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Zero(t, client.Pending())

	// the upload itself still happens
	require.Eventually(t, func() bool { return hub.calls.Load() == 1 }, 2*time.Second, 5*time.Millisecond)
}

func TestWaitForQueueDrain(t *testing.T) {
	hub := newStubHub(t)
	client := newTestClient(t, hub.server.URL)
	ctx := context.Background()

	require.NoError(t, client.WaitForQueueDrain(ctx), "empty queue must not block")

	for i := 0; i < 5; i++ {
		_, err := client.EnqueueUpload(ctx, "owner", fmt.Sprintf("file-%d", i), "msg", false)
		require.NoError(t, err)
	}

	drainCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	require.NoError(t, client.WaitForQueueDrain(drainCtx))

	n, err := client.queue.Len(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.GreaterOrEqual(t, hub.calls.Load(), int32(4), "at most one task may still be in flight")
}

func TestWaitForQueueDrain_ContextDeadline(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
		_, _ = io.WriteString(w, `{}`)
	}))
	t.Cleanup(server.Close)

	client := newTestClient(t, server.URL)
	t.Cleanup(func() { close(release) })
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := client.EnqueueUpload(ctx, "owner", fmt.Sprintf("file-%d", i), "msg", false)
		require.NoError(t, err)
	}

	drainCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, client.WaitForQueueDrain(drainCtx), context.DeadlineExceeded)
}

func TestClose(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
		_, _ = io.WriteString(w, `{}`)
	}))
	t.Cleanup(server.Close)

	client, err := New(server.URL, WithLogger(newTestLogger()), WithCooldown(time.Millisecond))
	require.NoError(t, err)

	type res struct {
		result *UploadResult
		err    error
	}
	first := make(chan res, 1)
	second := make(chan res, 1)

	go func() {
		r, err := client.EnqueueUpload(context.Background(), "owner", "in-flight", "msg", true)
		first <- res{r, err}
	}()
	require.Eventually(t, client.Processing, 2*time.Second, time.Millisecond)

	go func() {
		r, err := client.EnqueueUpload(context.Background(), "owner", "queued", "msg", true)
		second <- res{r, err}
	}()
	require.Eventually(t, func() bool { return client.Pending() == 2 }, 2*time.Second, time.Millisecond)

	closeCtx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, client.Close(closeCtx), context.DeadlineExceeded)

	for _, ch := range []chan res{first, second} {
		select {
		case r := <-ch:
			assert.Nil(t, r.result)
			assert.ErrorIs(t, r.err, ErrClosed)
		case <-time.After(2 * time.Second):
			t.Fatal("waiting caller was not released by Close")
		}
	}

	close(release)

	assert.NoError(t, client.Close(context.Background()), "second Close is a no-op")

	result, err := client.EnqueueUpload(context.Background(), "owner", "late", "msg", false)
	assert.Nil(t, result)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestEnqueueUpload_RecordsSpans(t *testing.T) {
	hub := newStubHub(t)
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	client := newTestClient(t, hub.server.URL, WithTracerProvider(tp))

	_, err := client.EnqueueUpload(context.Background(), "owner", "file", "msg", true)
	require.NoError(t, err)

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "POST /api/upload", spans[0].Name())

	var status int64
	for _, attr := range spans[0].Attributes() {
		if attr.Key == "http.response.status_code" {
			status = attr.Value.AsInt64()
		}
	}
	assert.Equal(t, int64(http.StatusOK), status)
}

func TestEnqueueUpload_RedisQueue(t *testing.T) {
	mr := miniredis.RunT(t)
	q, err := queue.NewRedisQueue(queue.RedisOptions{
		URL:        fmt.Sprintf("redis://%s", mr.Addr()),
		PopTimeout: time.Second,
	})
	require.NoError(t, err)
	t.Cleanup(func() { q.Close() })

	hub := newStubHub(t)
	client := newTestClient(t, hub.server.URL, WithQueue(q))

	result, err := client.EnqueueUpload(context.Background(), "owner", "via-redis", "msg", true)
	require.NoError(t, err)
	assert.True(t, result.Completed())
	assert.Equal(t, []string{"via-redis"}, hub.recordIDs())
}
