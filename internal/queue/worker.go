package queue

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/docmine/server/internal/store"
)

// WorkerJobStore is the worker-side view of job state.
type WorkerJobStore interface {
	MarkActive(ctx context.Context, id string, payload []byte) error
	SetProgress(ctx context.Context, id string, processed int) error
	Complete(ctx context.Context, id string, result []byte) error
	Fail(ctx context.Context, id string, reason string) error
}

// Worker consumes import tasks from the broker.
type Worker struct {
	jobs   WorkerJobStore
	exec   Executor
	events EventDispatcher
	log    *slog.Logger
}

// NewWorker wires a Worker.
func NewWorker(jobs WorkerJobStore, exec Executor, events EventDispatcher, log *slog.Logger) *Worker {
	return &Worker{jobs: jobs, exec: exec, events: events, log: log}
}

// Mux returns the task router for this worker.
func (w *Worker) Mux() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeCSVImport, w.HandleCSVImport)
	return mux
}

// HandleCSVImport processes one queued import. Returning an error lets
// the broker retry; the job row is marked failed only once retries are
// exhausted.
func (w *Worker) HandleCSVImport(ctx context.Context, t *asynq.Task) error {
	p, err := ParseImportTask(t)
	if err != nil {
		// A payload that does not decode will never decode.
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}

	log := w.log.With("job_id", p.JobID, "owner_id", p.Owner)
	if err := w.jobs.MarkActive(ctx, p.JobID, t.Payload()); err != nil {
		log.Error("could not mark job active", "error", err)
	}

	res, err := w.exec.Execute(ctx, p.SourcePath, p.Owner, func(processed int) {
		if perr := w.jobs.SetProgress(ctx, p.JobID, processed); perr != nil {
			log.Warn("could not record progress", "error", perr)
		}
	})
	if err != nil {
		retried, _ := asynq.GetRetryCount(ctx)
		maxRetry, _ := asynq.GetMaxRetry(ctx)
		log.Error("import attempt failed", "error", err, "retried", retried, "max_retry", maxRetry)
		if retried >= maxRetry {
			if ferr := w.jobs.Fail(ctx, p.JobID, err.Error()); ferr != nil {
				log.Error("could not mark job failed", "error", ferr)
			}
		}
		return err
	}

	if cerr := w.jobs.Complete(ctx, p.JobID, res.JSON()); cerr != nil {
		log.Error("could not mark job completed", "error", cerr)
	}
	w.events.Dispatch(ctx, p.Owner, store.EventProductBulkImport, res.Summary())
	return nil
}
