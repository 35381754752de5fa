package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	apierrors "fedflow/internal/errors"
	"fedflow/internal/pipeline"
	"fedflow/internal/runstore"
	"fedflow/internal/window"
	"fedflow/pkg/contracts/domain"
)

// RunService mediates between the HTTP surface and the run engine. Triggers
// go through the job queue so handlers return immediately; history comes from
// the run store.
type RunService struct {
	queue    *pipeline.JobQueue
	manager  *pipeline.Manager
	store    runstore.Store
	resolver *window.Resolver
	logger   *slog.Logger
}

// NewRunService wires the service. All collaborators are required.
func NewRunService(queue *pipeline.JobQueue, manager *pipeline.Manager, store runstore.Store, resolver *window.Resolver, logger *slog.Logger) (*RunService, error) {
	switch {
	case queue == nil:
		return nil, fmt.Errorf("services: nil job queue")
	case manager == nil:
		return nil, fmt.Errorf("services: nil pipeline manager")
	case store == nil:
		return nil, fmt.Errorf("services: nil run store")
	case resolver == nil:
		return nil, fmt.Errorf("services: nil window resolver")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &RunService{
		queue:    queue,
		manager:  manager,
		store:    store,
		resolver: resolver,
		logger:   logger.With(slog.String("component", "run_service")),
	}, nil
}

// TriggerParams is a validated run trigger. Start and End, when both set,
// override the mode-derived window.
type TriggerParams struct {
	Mode         domain.Mode
	Start        time.Time
	End          time.Time
	BackfillDays int
	DryRun       bool
}

// Trigger resolves the window for the request and enqueues an asynchronous
// run. The returned job carries the pending status; callers poll it for the
// run id once a worker picks the job up.
func (s *RunService) Trigger(ctx context.Context, p TriggerParams) (*pipeline.Job, error) {
	w, err := s.resolver.Resolve(window.Request{
		Mode:         p.Mode,
		BackfillDays: p.BackfillDays,
		Start:        p.Start,
		End:          p.End,
	})
	if err != nil {
		// InvalidWindowError reaches the handler typed; the error handler
		// maps it to a 400 window problem.
		return nil, err
	}

	job, err := s.queue.Enqueue(pipeline.Request{Mode: p.Mode, Window: w, DryRun: p.DryRun})
	if err != nil {
		s.logger.WarnContext(ctx, "trigger_rejected",
			slog.String("mode", string(p.Mode)),
			slog.String("window", w.String()),
			slog.String("error", err.Error()))
		return nil, apierrors.New(http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE",
			"Run queue is full. Retry once the active run finishes.")
	}

	s.logger.InfoContext(ctx, "run_triggered",
		slog.String("job_id", job.ID),
		slog.String("mode", string(p.Mode)),
		slog.String("window", w.String()),
		slog.Bool("dry_run", p.DryRun))
	return job, nil
}

// Get returns the persisted record for a run id.
func (s *RunService) Get(ctx context.Context, runID string) (domain.RunRecord, error) {
	record, err := s.store.Get(ctx, runID)
	if err != nil {
		if errors.Is(err, runstore.ErrNotFound) {
			return domain.RunRecord{}, apierrors.New(http.StatusNotFound, "RUN_NOT_FOUND",
				fmt.Sprintf("no run record for id %q", runID))
		}
		return domain.RunRecord{}, fmt.Errorf("load run %s: %w", runID, err)
	}
	return record, nil
}

// List returns persisted records, newest first. limit <= 0 returns all.
func (s *RunService) List(ctx context.Context, limit int) ([]domain.RunRecord, error) {
	records, err := s.store.List(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return records, nil
}

// Delete removes a run record. Records of executing runs are protected; the
// orchestrator still owns them.
func (s *RunService) Delete(ctx context.Context, runID string) error {
	for _, active := range s.manager.ActiveRuns() {
		if active.RunID == runID {
			return apierrors.New(http.StatusConflict, "RUN_ACTIVE",
				fmt.Sprintf("run %s is still executing", runID))
		}
	}

	if err := s.store.Delete(ctx, runID); err != nil {
		if errors.Is(err, runstore.ErrNotFound) {
			return apierrors.New(http.StatusNotFound, "RUN_NOT_FOUND",
				fmt.Sprintf("no run record for id %q", runID))
		}
		return fmt.Errorf("delete run %s: %w", runID, err)
	}

	s.logger.InfoContext(ctx, "run_deleted", slog.String("run_id", runID))
	return nil
}

// Active returns snapshots of currently executing runs.
func (s *RunService) Active() []domain.RunRecord {
	return s.manager.ActiveRuns()
}

// Job returns the queue entry for a trigger.
func (s *RunService) Job(ctx context.Context, jobID string) (*pipeline.Job, error) {
	job, err := s.queue.GetJob(jobID)
	if err != nil {
		return nil, apierrors.New(http.StatusNotFound, "NOT_FOUND",
			fmt.Sprintf("no job for id %q", jobID))
	}
	return job, nil
}

// Jobs lists queue entries matching the filter, newest first.
func (s *RunService) Jobs(ctx context.Context, filter pipeline.JobFilter) []*pipeline.Job {
	return s.queue.ListJobs(filter)
}

// TriggerMode enqueues a run whose window derives from the mode alone. The
// scheduler uses it for recurring daily, weekly, and monthly runs.
func (s *RunService) TriggerMode(ctx context.Context, mode domain.Mode) error {
	_, err := s.Trigger(ctx, TriggerParams{Mode: mode})
	return err
}

// ModeActive reports whether a run of the mode is queued or executing.
func (s *RunService) ModeActive(mode domain.Mode) bool {
	for _, record := range s.manager.ActiveRuns() {
		if record.Mode == mode {
			return true
		}
	}
	for _, status := range []pipeline.JobStatus{pipeline.JobStatusPending, pipeline.JobStatusRunning} {
		if len(s.queue.ListJobs(pipeline.JobFilter{Status: status, Mode: mode, Limit: 1})) > 0 {
			return true
		}
	}
	return false
}

// CancelJob cancels a pending trigger or an executing run. A running run
// stops at the next stage boundary under the containment policy.
func (s *RunService) CancelJob(ctx context.Context, jobID string) error {
	if err := s.queue.CancelJob(jobID); err != nil {
		if strings.Contains(err.Error(), "not found") {
			return apierrors.New(http.StatusNotFound, "NOT_FOUND",
				fmt.Sprintf("no job for id %q", jobID))
		}
		return apierrors.New(http.StatusConflict, "CONFLICT", err.Error())
	}

	s.logger.InfoContext(ctx, "job_cancelled", slog.String("job_id", jobID))
	return nil
}
