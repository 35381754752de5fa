package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"fedflow/pkg/contracts/domain"
)

// JobStatus is the lifecycle state of a queued run trigger.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// Job is one asynchronous run trigger. The queue tracks the trigger's
// lifecycle; the run itself is persisted by the run store once a worker
// hands the request to the manager.
type Job struct {
	ID        string    `json:"id"`
	Request   Request   `json:"request"`
	Status    JobStatus `json:"status"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`

	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// RunID and RunStatus are filled once execution starts and finishes.
	RunID     string           `json:"run_id,omitempty"`
	RunStatus domain.RunStatus `json:"run_status,omitempty"`
}

// JobFilter narrows ListJobs results. Zero fields match everything.
type JobFilter struct {
	Status JobStatus
	Mode   domain.Mode
	Since  time.Time
	Limit  int
}

// JobQueue serializes triggered runs. Jobs live in memory only; durable run
// history belongs to the run store. The default single worker keeps runs
// from contending for the same artifact directories.
type JobQueue struct {
	jobs     chan *Job
	workers  int
	wg       sync.WaitGroup
	manager  *Manager
	logger   *slog.Logger
	shutdown chan struct{}

	mu      sync.RWMutex
	byID    map[string]*Job
	cancels map[string]context.CancelFunc
}

// NewJobQueue creates a queue draining into manager. workers <= 0 means one
// worker.
func NewJobQueue(workers int, manager *Manager, logger *slog.Logger) *JobQueue {
	if workers <= 0 {
		workers = 1
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &JobQueue{
		jobs:     make(chan *Job, workers*2),
		workers:  workers,
		manager:  manager,
		logger:   logger.With(slog.String("component", "jobqueue")),
		shutdown: make(chan struct{}),
		byID:     make(map[string]*Job),
		cancels:  make(map[string]context.CancelFunc),
	}
}

// Start launches the worker goroutines.
func (q *JobQueue) Start(ctx context.Context) {
	q.logger.InfoContext(ctx, "job_queue_started", slog.Int("workers", q.workers))

	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker(ctx, i)
	}
}

// Stop signals the workers and waits up to timeout for in-flight runs to
// finish. Queued jobs that never started stay pending in the job map.
func (q *JobQueue) Stop(timeout time.Duration) error {
	q.logger.Info("job_queue_stopping")
	close(q.shutdown)

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		q.logger.Info("job_queue_stopped")
		return nil
	case <-time.After(timeout):
		q.logger.Warn("job_queue_stop_timeout")
		return fmt.Errorf("timeout waiting for workers to finish")
	}
}

// Enqueue registers a pending job for req and hands it to a worker. A full
// queue rejects the job immediately rather than blocking the caller.
func (q *JobQueue) Enqueue(req Request) (*Job, error) {
	job := &Job{
		ID:        uuid.New().String(),
		Request:   req,
		Status:    JobStatusPending,
		CreatedAt: time.Now().UTC(),
	}

	q.mu.Lock()
	q.byID[job.ID] = job
	q.mu.Unlock()

	select {
	case q.jobs <- job:
		q.logger.Info("job_enqueued",
			slog.String("job_id", job.ID),
			slog.String("mode", string(req.Mode)),
			slog.String("window", req.Window.String()))
		return q.snapshot(job.ID), nil
	default:
		q.fail(job.ID, "job queue is full")
		return q.snapshot(job.ID), fmt.Errorf("job queue is full")
	}
}

// GetJob returns a copy of the job, or an error if the id is unknown.
func (q *JobQueue) GetJob(id string) (*Job, error) {
	job := q.snapshot(id)
	if job == nil {
		return nil, fmt.Errorf("job %s not found", id)
	}
	return job, nil
}

// ListJobs returns copies of jobs matching the filter, newest first.
func (q *JobQueue) ListJobs(filter JobFilter) []*Job {
	q.mu.RLock()
	matched := make([]*Job, 0, len(q.byID))
	for _, job := range q.byID {
		if filter.Status != "" && job.Status != filter.Status {
			continue
		}
		if filter.Mode != "" && job.Request.Mode != filter.Mode {
			continue
		}
		if !filter.Since.IsZero() && job.CreatedAt.Before(filter.Since) {
			continue
		}
		c := *job
		matched = append(matched, &c)
	}
	q.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID > matched[j].ID
	})
	if filter.Limit > 0 && len(matched) > filter.Limit {
		matched = matched[:filter.Limit]
	}
	return matched
}

// CancelJob cancels a pending or running job. A pending job is marked
// cancelled and skipped when dequeued; a running job has its run context
// cancelled, and the pipeline stops at the next stage boundary.
func (q *JobQueue) CancelJob(id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	job, ok := q.byID[id]
	if !ok {
		return fmt.Errorf("job %s not found", id)
	}

	switch job.Status {
	case JobStatusPending:
		job.Status = JobStatusCancelled
		now := time.Now().UTC()
		job.CompletedAt = &now
		return nil
	case JobStatusRunning:
		if cancel, ok := q.cancels[id]; ok {
			cancel()
			return nil
		}
		return fmt.Errorf("job %s has no cancellable run", id)
	default:
		return fmt.Errorf("job %s cannot be cancelled (status: %s)", id, job.Status)
	}
}

func (q *JobQueue) worker(ctx context.Context, workerID int) {
	defer q.wg.Done()

	logger := q.logger.With(slog.Int("worker_id", workerID))

	for {
		select {
		case <-ctx.Done():
			return
		case <-q.shutdown:
			return
		case job := <-q.jobs:
			q.process(ctx, job.ID, logger)
		}
	}
}

func (q *JobQueue) process(ctx context.Context, id string, logger *slog.Logger) {
	q.mu.Lock()
	job, ok := q.byID[id]
	if !ok || job.Status != JobStatusPending {
		q.mu.Unlock()
		return
	}
	job.Status = JobStatusRunning
	now := time.Now().UTC()
	job.StartedAt = &now
	req := job.Request

	runCtx, cancel := context.WithCancel(ctx)
	q.cancels[id] = cancel
	q.mu.Unlock()

	defer func() {
		cancel()
		q.mu.Lock()
		delete(q.cancels, id)
		q.mu.Unlock()

		if r := recover(); r != nil {
			logger.Error("job_panicked",
				slog.String("job_id", id),
				slog.Any("panic", r))
			q.fail(id, fmt.Sprintf("job panicked: %v", r))
		}
	}()

	logger.Info("job_started", slog.String("job_id", id))

	record, err := q.manager.Execute(runCtx, req)

	q.mu.Lock()
	defer q.mu.Unlock()
	job, ok = q.byID[id]
	if !ok {
		return
	}
	finished := time.Now().UTC()
	job.CompletedAt = &finished
	job.RunID = record.RunID
	job.RunStatus = record.Status
	if err != nil {
		job.Status = JobStatusFailed
		job.Error = err.Error()
		if record.Cancelled {
			job.Status = JobStatusCancelled
		}
		logger.Warn("job_failed",
			slog.String("job_id", id),
			slog.String("run_id", record.RunID),
			slog.String("error", err.Error()))
		return
	}
	job.Status = JobStatusCompleted
	logger.Info("job_completed",
		slog.String("job_id", id),
		slog.String("run_id", record.RunID),
		slog.String("run_status", string(record.Status)))
}

// snapshot returns a copy of the job under the read lock, or nil.
func (q *JobQueue) snapshot(id string) *Job {
	q.mu.RLock()
	defer q.mu.RUnlock()
	job, ok := q.byID[id]
	if !ok {
		return nil
	}
	c := *job
	return &c
}

func (q *JobQueue) fail(id, msg string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	job, ok := q.byID[id]
	if !ok {
		return
	}
	job.Status = JobStatusFailed
	job.Error = msg
	now := time.Now().UTC()
	job.CompletedAt = &now
}
