package hub

// ResultKind distinguishes an acknowledged enqueue from a finished upload.
type ResultKind string

const (
	// KindQueued is returned to callers that did not wait for the upload.
	KindQueued ResultKind = "queued"

	// KindCompleted is returned once the hub accepted the upload.
	KindCompleted ResultKind = "completed"
)

// Messages carried by UploadResult.
const (
	QueuedMessage    = "Upload task has been queued"
	CompletedMessage = "Upload task completed"
)

// UploadResult is the outcome delivered through a task's completion handle.
// A failed upload has no UploadResult; callers receive nil and an error.
type UploadResult struct {
	Kind    ResultKind `json:"status"`
	Message string     `json:"message"`
}

// Queued reports whether the result only acknowledges the enqueue.
func (r *UploadResult) Queued() bool {
	return r != nil && r.Kind == KindQueued
}

// Completed reports whether the hub accepted the upload.
func (r *UploadResult) Completed() bool {
	return r != nil && r.Kind == KindCompleted
}

func queuedResult() *UploadResult {
	return &UploadResult{Kind: KindQueued, Message: QueuedMessage}
}

func completedResult() *UploadResult {
	return &UploadResult{Kind: KindCompleted, Message: CompletedMessage}
}

// MemoryRecord is the JSON body of an /api/upload request.
type MemoryRecord struct {
	Owner   string `json:"Owner"`
	ID      string `json:"ID"`
	Message string `json:"Message"`
}
