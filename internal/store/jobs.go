package store

import (
	"context"
	"fmt"
	"time"
)

// Import job states. Transitions are monotonic: queued may become active,
// and any non-terminal state may become completed or failed. The SQL
// guards below enforce this so a late worker update can never resurrect
// a finished job.
const (
	JobQueued    = "queued"
	JobActive    = "active"
	JobCompleted = "completed"
	JobFailed    = "failed"
)

// ImportJob tracks one asynchronous CSV import across processes.
type ImportJob struct {
	ID        string    `json:"id"`
	Payload   []byte    `json:"data,omitempty"`
	State     string    `json:"state"`
	Progress  int       `json:"progress"`
	Result    []byte    `json:"result,omitempty"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Terminal reports whether the job has finished, successfully or not.
func (j *ImportJob) Terminal() bool {
	return j.State == JobCompleted || j.State == JobFailed
}

// JobStore persists import job status rows.
type JobStore struct {
	db DBTX
}

// NewJobStore creates a JobStore backed by db.
func NewJobStore(db DBTX) *JobStore {
	return &JobStore{db: db}
}

// CreateQueued records a freshly enqueued job. The insert is idempotent:
// if the worker already picked the task up and wrote its own row, that
// row wins.
func (s *JobStore) CreateQueued(ctx context.Context, id string, payload []byte) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO import_jobs (id, payload, state, progress)
		VALUES ($1, $2, 'queued', 0)
		ON CONFLICT (id) DO NOTHING`, id, payload)
	if err != nil {
		return fmt.Errorf("create import job: %w", err)
	}
	return nil
}

// MarkActive flips the job to active. The worker may run before the
// enqueuer's insert lands, so this upserts; the guard keeps a retried
// task from reviving a job that already finished.
func (s *JobStore) MarkActive(ctx context.Context, id string, payload []byte) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO import_jobs (id, payload, state, progress)
		VALUES ($1, $2, 'active', 0)
		ON CONFLICT (id) DO UPDATE
		SET state = 'active', updated_at = now()
		WHERE import_jobs.state = 'queued'`, id, payload)
	if err != nil {
		return fmt.Errorf("mark import job active: %w", err)
	}
	return nil
}

// SetProgress updates the job's processed-row counter.
func (s *JobStore) SetProgress(ctx context.Context, id string, processed int) error {
	_, err := s.db.Exec(ctx, `
		UPDATE import_jobs SET progress = $2, updated_at = now()
		WHERE id = $1 AND state NOT IN ('completed', 'failed')`, id, processed)
	if err != nil {
		return fmt.Errorf("set import job progress: %w", err)
	}
	return nil
}

// Complete marks the job finished and stores its JSON result summary.
func (s *JobStore) Complete(ctx context.Context, id string, result []byte) error {
	_, err := s.db.Exec(ctx, `
		UPDATE import_jobs
		SET state = 'completed', result = $2, updated_at = now()
		WHERE id = $1 AND state NOT IN ('completed', 'failed')`, id, result)
	if err != nil {
		return fmt.Errorf("complete import job: %w", err)
	}
	return nil
}

// Fail marks the job failed with reason. Called only after the last
// retry attempt is spent.
func (s *JobStore) Fail(ctx context.Context, id string, reason string) error {
	_, err := s.db.Exec(ctx, `
		UPDATE import_jobs
		SET state = 'failed', error = $2, updated_at = now()
		WHERE id = $1 AND state NOT IN ('completed', 'failed')`, id, reason)
	if err != nil {
		return fmt.Errorf("fail import job: %w", err)
	}
	return nil
}

// Get fetches a job by ID.
func (s *JobStore) Get(ctx context.Context, id string) (*ImportJob, error) {
	j := &ImportJob{}
	err := s.db.QueryRow(ctx, `
		SELECT id, payload, state, progress, result, error, created_at, updated_at
		FROM import_jobs WHERE id = $1`, id,
	).Scan(&j.ID, &j.Payload, &j.State, &j.Progress, &j.Result, &j.Error, &j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		return nil, mapNoRows(err, "get import job")
	}
	return j, nil
}
