package queue

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

const (
	// TypeCSVImport is the task type for asynchronous catalog imports.
	TypeCSVImport = "csv:import"

	// QueueImports is the broker queue all import tasks land on.
	QueueImports = "imports"

	// maxRetries is how many times a failed import task is retried
	// before it is marked failed for good.
	maxRetries = 3
)

// ImportTaskPayload travels through the broker from submitter to worker.
type ImportTaskPayload struct {
	JobID      string    `json:"jobId"`
	SourcePath string    `json:"sourcePath"`
	Owner      uuid.UUID `json:"owner"`
}

// NewImportTask builds the broker task for one import submission. The
// task ID is pinned to the job ID so duplicate submissions collapse.
func NewImportTask(p ImportTaskPayload) (*asynq.Task, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshal import task: %w", err)
	}
	return asynq.NewTask(TypeCSVImport, b,
		asynq.TaskID(p.JobID),
		asynq.Queue(QueueImports),
		asynq.MaxRetry(maxRetries),
	), nil
}

// ParseImportTask decodes a broker task back into its payload.
func ParseImportTask(t *asynq.Task) (ImportTaskPayload, error) {
	var p ImportTaskPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return p, fmt.Errorf("unmarshal import task: %w", err)
	}
	return p, nil
}

// RetryDelay backs off 2s, 4s, 8s across the three retry attempts.
// n is the number of times the task has already been retried.
func RetryDelay(n int, _ error, _ *asynq.Task) time.Duration {
	return (2 * time.Second) << n
}
