// Package queue provides the FIFO task stores behind the hub upload worker.
//
// Two implementations satisfy the Queue interface:
//
//   - MemoryQueue: process-local, the default. Pop parks on a notification
//     channel that Push signals, so an idle worker costs nothing and picks up
//     new work without a polling delay.
//   - RedisQueue: a Redis list shared between processes. Tasks are pushed
//     with LPUSH and consumed with BRPOP, giving the same FIFO order.
//
// # Redis Key Schema
//
//   - membase:upload:queue - List of JSON-encoded Task values (LPUSH/BRPOP)
//   - membase:upload:queue:results - Pub/Sub channel of JSON-encoded Completion values
//
// # Usage
//
//	q := queue.NewMemoryQueue()
//	_ = q.Push(ctx, queue.Task{
//		ID:          uuid.NewString(),
//		Owner:       "alice",
//		Filename:    "eliza_1234",
//		Message:     `{"text":"hello"}`,
//		SubmittedAt: time.Now().UnixMilli(),
//	})
//	task, err := q.Pop(ctx)
//
// Completion handles never enter the queue. The producer keeps them in memory
// keyed by Task.ID. Both implementations also satisfy Completer: when
// several clients share a queue, the consumer that pops another client's task
// publishes a Completion and the producer resolves its handle from it.
package queue
