// Package hub is the HTTP client for a Membase hub, the remote service that
// durably stores uploaded memory records.
//
// # Upload Queue
//
// EnqueueUpload never talks to the hub itself. It appends a task to the
// client's queue and, if asked to wait, parks on that task's completion
// handle. A single worker goroutine, started by New and stopped by Close,
// pops tasks in FIFO order and transmits them one at a time:
//
//	client, err := hub.New("testnet.hub.membase.io", hub.WithLogger(logger))
//	if err != nil {
//	    return err
//	}
//	defer client.Close(context.Background())
//
//	result, err := client.EnqueueUpload(ctx, "alice", "eliza_42", payload, true)
//	if err != nil {
//	    // HTTP status, network or JSON failure; result is nil
//	}
//
// After each task the worker pauses for the cooldown (100ms by default), which
// throttles the hub to roughly one upload per cooldown.
//
// # One-shot Operations
//
// UploadBinaryData, ListConversations, GetConversation and DownloadFile issue
// a single request on the caller's goroutine and do not touch the queue.
//
// # Transport
//
// The base URL is always rewritten to https. Certificate verification is
// disabled unless WithInsecureSkipVerify(false) or WithTLSConfig says
// otherwise. Every request, including the worker's, is bounded by the request
// timeout (30s by default).
//
// # Endpoints
//
//   - POST /api/upload - JSON {"Owner","ID","Message"}
//   - POST /api/uploadData - multipart form: file, owner
//   - POST /api/conversation - form: owner [, id]
//   - POST /api/download - form: id, owner
package hub
