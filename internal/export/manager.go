package export

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/clipforge/clipforge-agent/internal/catalog"
	"github.com/clipforge/clipforge-agent/internal/logging"
)

// submitQueueSize bounds how many jobs may wait behind the running one.
const submitQueueSize = 16

var (
	// ErrJobNotFound reports an unknown job id.
	ErrJobNotFound = errors.New("export job not found")
	// ErrJobFinished reports a cancel attempt on a terminal job.
	ErrJobFinished = errors.New("export job already finished")
	// ErrQueueFull reports that the submission queue is at capacity.
	ErrQueueFull = errors.New("export queue is full")
)

// InvalidRequestError marks a submission rejected before any work started.
type InvalidRequestError struct {
	Err error
}

func (e *InvalidRequestError) Error() string { return e.Err.Error() }

func (e *InvalidRequestError) Unwrap() error { return e.Err }

// Store is the slice of the catalog repository the manager persists jobs
// through.
type Store interface {
	CreateJob(ctx context.Context, job *catalog.Job) error
	GetJob(ctx context.Context, id string) (*catalog.Job, error)
	UpdateJobStatus(ctx context.Context, id, status, errorMsg string) error
	UpdateJobProgress(ctx context.Context, id string, progress int) error
}

// Manager owns the export queue. Jobs are persisted on submit, processed
// one at a time by Run's worker goroutine, and their progress is fanned
// out to subscribers. At most one transcode runs at any moment.
type Manager struct {
	store    Store
	exporter *Exporter
	logger   *slog.Logger

	hub    *hub
	submit chan string

	mu       sync.Mutex
	activeID string
	cancel   context.CancelFunc
}

func NewManager(store Store, exporter *Exporter, logger *slog.Logger) *Manager {
	return &Manager{
		store:    store,
		exporter: exporter,
		logger:   logger,
		hub:      newHub(),
		submit:   make(chan string, submitQueueSize),
	}
}

// Submit validates the request, persists a pending job, and queues it for
// the worker. The returned job reflects the persisted pending state.
func (m *Manager) Submit(ctx context.Context, req Request) (*catalog.Job, error) {
	if err := m.exporter.Validate(req); err != nil {
		return nil, &InvalidRequestError{Err: err}
	}
	data, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	now := time.Now().UTC()
	job := &catalog.Job{
		ID:         catalog.NewID(),
		Status:     catalog.JobStatusPending,
		ClipCount:  len(req.Clips),
		Resolution: req.Resolution,
		OutputPath: req.OutputPath,
		Request:    string(data),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := m.store.CreateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("persist job: %w", err)
	}

	select {
	case m.submit <- job.ID:
	default:
		_ = m.store.UpdateJobStatus(ctx, job.ID, catalog.JobStatusFailed, "export queue is full")
		return nil, ErrQueueFull
	}

	m.logger.Info("export job queued", "id", job.ID, "clips", job.ClipCount, "resolution", job.Resolution)
	return job, nil
}

// Run processes queued jobs until ctx is canceled. Start it once, as a
// goroutine, after the manager is constructed.
func (m *Manager) Run(ctx context.Context) {
	m.logger.Info("export manager started")
	for {
		select {
		case <-ctx.Done():
			m.logger.Info("export manager stopped")
			return
		case id := <-m.submit:
			m.process(ctx, id)
		}
	}
}

func (m *Manager) process(ctx context.Context, id string) {
	jobCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Register before reading job state so a concurrent Cancel either
	// sees us here and cancels jobCtx, or wrote the canceled status we
	// are about to read.
	m.mu.Lock()
	m.activeID = id
	m.cancel = cancel
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		m.activeID = ""
		m.cancel = nil
		m.mu.Unlock()
		m.hub.closeJob(id)
	}()

	job, err := m.store.GetJob(ctx, id)
	if err != nil {
		m.logger.Error("load queued job", "id", id, "error", err)
		return
	}
	if job == nil || job.Status != catalog.JobStatusPending {
		return
	}

	var req Request
	if err := json.Unmarshal([]byte(job.Request), &req); err != nil {
		m.logger.Error("decode job request", "id", id, "error", err)
		m.updateStatus(ctx, id, catalog.JobStatusFailed, "corrupt job request")
		return
	}

	m.updateStatus(ctx, id, catalog.JobStatusRunning, "")
	sampler := logging.NewProgressSampler(10)
	emit := func(p int) {
		if err := m.store.UpdateJobProgress(ctx, id, p); err != nil {
			m.logger.Warn("persist job progress", "id", id, "error", err)
		}
		if sampler.ShouldLog(p, "") {
			m.logger.Debug("export progress", "id", id, "percent", p)
		}
		m.hub.publish(id, p)
	}

	start := time.Now()
	output, err := m.exporter.Export(jobCtx, req, emit)
	switch {
	case err == nil:
		m.updateStatus(ctx, id, catalog.JobStatusCompleted, "")
		m.logger.Info("export job completed", "id", id, "output", output,
			"duration_ms", time.Since(start).Milliseconds())
	case ctx.Err() != nil:
		// Agent is shutting down; the restart sweep marks the row.
		m.logger.Info("export job interrupted by shutdown", "id", id)
	case jobCtx.Err() != nil:
		m.updateStatus(ctx, id, catalog.JobStatusCanceled, "export canceled")
		m.logger.Info("export job canceled", "id", id)
	default:
		m.updateStatus(ctx, id, catalog.JobStatusFailed, err.Error())
		m.logger.Error("export job failed", "id", id, "error", err)
	}
}

func (m *Manager) updateStatus(ctx context.Context, id, status, errorMsg string) {
	if err := m.store.UpdateJobStatus(ctx, id, status, errorMsg); err != nil {
		m.logger.Error("persist job status", "id", id, "status", status, "error", err)
	}
}

// Cancel stops a job. A running job's transcode is killed and the worker
// records the canceled state; a queued job is marked canceled directly and
// skipped when dequeued.
func (m *Manager) Cancel(ctx context.Context, id string) error {
	job, err := m.store.GetJob(ctx, id)
	if err != nil {
		return err
	}
	if job == nil {
		return ErrJobNotFound
	}
	if job.Terminal() {
		return ErrJobFinished
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.activeID == id && m.cancel != nil {
		m.cancel()
		return nil
	}
	if err := m.store.UpdateJobStatus(ctx, id, catalog.JobStatusCanceled, "canceled before start"); err != nil {
		return err
	}
	m.hub.closeJob(id)
	m.logger.Info("export job canceled before start", "id", id)
	return nil
}

// ActiveJobID returns the id of the job currently transcoding, or "".
func (m *Manager) ActiveJobID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.activeID
}

// Subscribe attaches a progress listener to a job. The channel delivers
// 0-100 values and is closed when the job reaches a terminal state; slow
// listeners miss intermediate values instead of blocking the worker.
func (m *Manager) Subscribe(jobID string) chan int {
	return m.hub.subscribe(jobID)
}

// Unsubscribe detaches a listener obtained from Subscribe.
func (m *Manager) Unsubscribe(jobID string, ch chan int) {
	m.hub.unsubscribe(jobID, ch)
}
