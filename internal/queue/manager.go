// Package queue owns import submission. When the Redis broker is
// reachable, submissions are enqueued for a worker process; when it is
// not, the manager degrades permanently to inline execution and every
// submission runs to completion before returning.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/docmine/server/internal/importer"
	"github.com/docmine/server/internal/store"
	"github.com/docmine/server/internal/webhook"
)

// syncPrefix marks job IDs whose import already ran inline. Handles with
// such IDs carry the result and have no broker-side status.
const syncPrefix = "sync-"

// Mode is the manager's broker connectivity state.
type Mode int32

const (
	// ModeConnected means submissions are enqueued to the broker.
	ModeConnected Mode = iota
	// ModeDegraded means the broker is gone for the life of the process
	// and submissions execute inline.
	ModeDegraded
)

func (m Mode) String() string {
	if m == ModeConnected {
		return "connected"
	}
	return "degraded"
}

// Handle identifies a submitted import. Synchronous handles additionally
// carry the finished result inline.
type Handle struct {
	ID     string           `json:"id"`
	Result *importer.Result `json:"result,omitempty"`
}

// Synchronous reports whether the import already ran inline.
func (h *Handle) Synchronous() bool {
	return strings.HasPrefix(h.ID, syncPrefix)
}

// Status is a point-in-time snapshot of a broker-mode job.
type Status struct {
	ID       string          `json:"id"`
	State    string          `json:"state"`
	Progress int             `json:"progress"`
	Data     json.RawMessage `json:"data,omitempty"`
	Result   json.RawMessage `json:"result,omitempty"`
	Error    string          `json:"error,omitempty"`
}

// Terminal reports whether the job will never change state again.
func (s *Status) Terminal() bool {
	return s.State == store.JobCompleted || s.State == store.JobFailed
}

// Broker enqueues tasks. Satisfied by asynq.Client via asynqBroker.
type Broker interface {
	Enqueue(ctx context.Context, task *asynq.Task) error
}

// JobStatusStore records and reads submission-side job state.
type JobStatusStore interface {
	CreateQueued(ctx context.Context, id string, payload []byte) error
	Get(ctx context.Context, id string) (*store.ImportJob, error)
}

// Executor runs an import to completion.
type Executor interface {
	Execute(ctx context.Context, sourcePath string, owner uuid.UUID, progress importer.ProgressFunc) (*importer.Result, error)
}

// EventDispatcher fans a domain event out to webhook subscribers.
type EventDispatcher interface {
	Dispatch(ctx context.Context, ownerID uuid.UUID, event string, data interface{}) []webhook.Outcome
}

// Manager decides per submission whether to enqueue or run inline.
type Manager struct {
	brokerAddr   string
	probeTimeout time.Duration

	broker Broker
	jobs   JobStatusStore
	exec   Executor
	events EventDispatcher
	log    *slog.Logger

	initOnce sync.Once
	mode     atomic.Int32
}

// NewManager wires a Manager. Initialize must run before the first
// submission; Submit calls it as a safety net.
func NewManager(brokerAddr string, probeTimeout time.Duration, broker Broker, jobs JobStatusStore, exec Executor, events EventDispatcher, log *slog.Logger) *Manager {
	m := &Manager{
		brokerAddr:   brokerAddr,
		probeTimeout: probeTimeout,
		broker:       broker,
		jobs:         jobs,
		exec:         exec,
		events:       events,
		log:          log,
	}
	m.mode.Store(int32(ModeDegraded))
	return m
}

// Initialize probes the broker once and fixes the starting mode.
// Concurrent callers block on the same probe; none runs a second one.
func (m *Manager) Initialize() Mode {
	m.initOnce.Do(func() {
		if err := ProbeBroker(m.brokerAddr, m.probeTimeout); err != nil {
			m.log.Warn("broker unreachable, imports will run inline",
				"addr", m.brokerAddr, "error", err)
			m.mode.Store(int32(ModeDegraded))
			return
		}
		m.mode.Store(int32(ModeConnected))
		m.log.Info("broker connected", "addr", m.brokerAddr)
	})
	return m.Mode()
}

// Mode returns the current connectivity state.
func (m *Manager) Mode() Mode {
	return Mode(m.mode.Load())
}

// Submit accepts one import. In Connected mode it enqueues and returns a
// queued handle immediately; in Degraded mode, or when enqueueing fails,
// it runs the import inline and returns a synchronous handle carrying
// the result. Broker errors never reach the caller.
func (m *Manager) Submit(ctx context.Context, sourcePath string, owner uuid.UUID) (*Handle, error) {
	m.Initialize()

	if m.Mode() == ModeConnected {
		h, err := m.enqueue(ctx, sourcePath, owner)
		if err == nil {
			return h, nil
		}
		if isConnectivityErr(err) {
			m.demote(err)
		} else {
			m.log.Error("enqueue failed, running import inline", "error", err)
		}
	}

	return m.runInline(ctx, sourcePath, owner)
}

func (m *Manager) enqueue(ctx context.Context, sourcePath string, owner uuid.UUID) (*Handle, error) {
	payload := ImportTaskPayload{
		JobID:      uuid.NewString(),
		SourcePath: sourcePath,
		Owner:      owner,
	}
	task, err := NewImportTask(payload)
	if err != nil {
		return nil, err
	}
	if err := m.broker.Enqueue(ctx, task); err != nil {
		return nil, err
	}

	// The worker upserts its own row if this write loses the race or
	// fails outright, so a failure here costs only early status reads.
	b, _ := json.Marshal(payload)
	if err := m.jobs.CreateQueued(ctx, payload.JobID, b); err != nil {
		m.log.Error("could not record queued job", "job_id", payload.JobID, "error", err)
	}

	m.log.Info("import enqueued", "job_id", payload.JobID, "owner_id", owner)
	return &Handle{ID: payload.JobID}, nil
}

func (m *Manager) runInline(ctx context.Context, sourcePath string, owner uuid.UUID) (*Handle, error) {
	res, err := m.exec.Execute(ctx, sourcePath, owner, nil)
	if err != nil {
		return nil, err
	}
	m.events.Dispatch(ctx, owner, store.EventProductBulkImport, res.Summary())
	id := fmt.Sprintf("%s%d", syncPrefix, time.Now().UnixMilli())
	return &Handle{ID: id, Result: res}, nil
}

// GetStatus returns the snapshot for a broker-mode job, or
// store.ErrNotFound for unknown IDs. Synchronous IDs are always unknown;
// their result traveled inline on the handle.
func (m *Manager) GetStatus(ctx context.Context, id string) (*Status, error) {
	if strings.HasPrefix(id, syncPrefix) {
		return nil, store.ErrNotFound
	}
	job, err := m.jobs.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return &Status{
		ID:       job.ID,
		State:    job.State,
		Progress: job.Progress,
		Data:     job.Payload,
		Result:   job.Result,
		Error:    job.Error,
	}, nil
}

// demote flips to Degraded permanently. The transition is logged once no
// matter how many submissions observe the dead broker.
func (m *Manager) demote(err error) {
	if m.mode.CompareAndSwap(int32(ModeConnected), int32(ModeDegraded)) {
		m.log.Warn("broker connection lost, demoting to inline imports", "error", err)
	}
}

// isConnectivityErr tells broker-down failures apart from bad-task ones.
// Only the former justifies demotion; anything else is a one-off.
func isConnectivityErr(err error) bool {
	if err == nil {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	msg := err.Error()
	for _, s := range []string{
		"connection refused",
		"connection reset",
		"i/o timeout",
		"broken pipe",
		"EOF",
		"dial tcp",
	} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

// asynqBroker adapts an asynq.Client to the Broker interface.
type asynqBroker struct {
	client *asynq.Client
}

// NewAsynqBroker wraps client for use by the Manager.
func NewAsynqBroker(client *asynq.Client) Broker {
	return &asynqBroker{client: client}
}

func (b *asynqBroker) Enqueue(ctx context.Context, task *asynq.Task) error {
	_, err := b.client.EnqueueContext(ctx, task)
	return err
}
