package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"k8s.io/utils/clock"

	"fedflow/internal/exporter"
	"fedflow/internal/notify"
	"fedflow/internal/quality"
	"fedflow/internal/runstore"
	"fedflow/internal/schema"
	"fedflow/internal/source"
	"fedflow/internal/transform"
	"fedflow/pkg/contracts/domain"
)

// Request asks for one run over an already-resolved window.
type Request struct {
	Mode   domain.Mode   `json:"mode"`
	Window domain.Window `json:"window"`
	DryRun bool          `json:"dry_run,omitempty"`
}

// Deps are the collaborators a Manager drives. Provider, Table, Engine,
// Profiler, Exporter, Store, and Notifier are required.
type Deps struct {
	Provider source.Provider
	Table    *schema.Table
	Engine   *transform.Engine
	Profiler *quality.Profiler
	Exporter *exporter.Writer
	Notifier notify.Notifier
	Store    runstore.Store

	Publisher Publisher
	Clock     clock.PassiveClock
	Logger    *slog.Logger

	DatasetDir string
	ReportDir  string
}

// Manager executes runs: five stages in fixed order under the containment
// policy, with the record persisted after every transition.
type Manager struct {
	stages    []Stage
	config    *Config
	store     runstore.Store
	publisher Publisher
	tracer    *RunTracer
	clock     clock.PassiveClock
	logger    *slog.Logger

	mu     sync.RWMutex
	active map[string]*RunState
}

// NewManager wires the five stages from deps.
func NewManager(deps Deps, config *Config) (*Manager, error) {
	switch {
	case deps.Provider == nil:
		return nil, fmt.Errorf("pipeline: nil source provider")
	case deps.Table == nil:
		return nil, fmt.Errorf("pipeline: nil schema table")
	case deps.Engine == nil:
		return nil, fmt.Errorf("pipeline: nil transform engine")
	case deps.Profiler == nil:
		return nil, fmt.Errorf("pipeline: nil quality profiler")
	case deps.Exporter == nil:
		return nil, fmt.Errorf("pipeline: nil exporter")
	case deps.Store == nil:
		return nil, fmt.Errorf("pipeline: nil run store")
	case deps.Notifier == nil:
		return nil, fmt.Errorf("pipeline: nil notifier")
	}
	if config == nil {
		config = NewConfig()
	}
	if deps.Publisher == nil {
		deps.Publisher = NopPublisher{}
	}
	if deps.Clock == nil {
		deps.Clock = clock.RealClock{}
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	logger := deps.Logger.With(slog.String("component", "pipeline"))

	tracer, err := NewRunTracer()
	if err != nil {
		return nil, err
	}

	stages := []Stage{
		NewDownloadStage(deps.Provider, logger),
		NewTransformStage(deps.Table, deps.Engine, deps.Exporter, deps.DatasetDir, logger),
		NewQualityStage(deps.Profiler, deps.ReportDir, config.WriteWorkbook, deps.Clock, logger),
		NewCleanupStage(deps.DatasetDir, deps.ReportDir, config.KeepRuns, logger),
		NewNotifyStage(deps.Notifier, logger),
	}

	return &Manager{
		stages:    stages,
		config:    config,
		store:     deps.Store,
		publisher: deps.Publisher,
		tracer:    tracer,
		clock:     deps.Clock,
		logger:    logger,
		active:    make(map[string]*RunState),
	}, nil
}

// Execute runs the pipeline once. The returned record is terminal. The error
// is non-nil exactly when the run FAILED, so callers can map it straight to
// an exit code.
func (m *Manager) Execute(ctx context.Context, req Request) (domain.RunRecord, error) {
	if !req.Mode.Valid() {
		return domain.RunRecord{}, fmt.Errorf("invalid mode %q", req.Mode)
	}
	if req.Window.Start.IsZero() || req.Window.End.IsZero() || req.Window.End.Before(req.Window.Start) {
		return domain.RunRecord{}, fmt.Errorf("invalid window %s", req.Window)
	}

	now := m.clock.Now()
	runID := domain.NewRunID(req.Mode, req.Window, now)
	state := NewRunState(runID, req.Mode, req.Window, req.DryRun, now)

	if err := m.trackRun(state); err != nil {
		return domain.RunRecord{}, err
	}
	defer m.untrackRun(runID)

	runCtx, span := m.tracer.StartRun(ctx, runID, req.Mode, req.Window)
	m.logger.InfoContext(runCtx, "run_started",
		slog.String("run_id", runID),
		slog.String("mode", string(req.Mode)),
		slog.String("window", req.Window.String()),
		slog.Bool("dry_run", req.DryRun))

	m.save(runCtx, state)
	m.publisher.PublishRun(state.Record())

	failure, cancelled := m.runDataStages(runCtx, state)

	// Cleanup and notify run even for failed or cancelled runs, so they get
	// a context that survives the caller's cancellation. A dry run skips
	// cleanup too: pruning artifacts would be a side effect.
	containCtx := context.WithoutCancel(runCtx)
	var cleanupErr error
	if state.DryRun() {
		m.skip(containCtx, state, domain.StageCleanup, "dry run")
	} else {
		cleanupErr = m.runStage(containCtx, state, m.stages[3])
	}

	status, errMsg := finalStatus(failure, cancelled, cleanupErr != nil)
	state.Finish(status, m.clock.Now(), cancelled, errMsg)
	m.save(containCtx, state)

	if err := m.runStage(containCtx, state, m.stages[4]); err != nil {
		m.logger.ErrorContext(containCtx, "notify_failed",
			slog.String("run_id", runID),
			slog.String("error", err.Error()))
	}
	m.save(containCtx, state)

	record := state.Record()
	m.publisher.PublishRun(record)
	m.tracer.EndRun(runCtx, span, record, m.clock.Now().Sub(record.StartedAt))
	m.logger.InfoContext(containCtx, "run_finished",
		slog.String("run_id", runID),
		slog.String("status", string(record.Status)),
		slog.Int64("raw_rows", record.RawRows),
		slog.Int64("output_rows", record.OutputRows))

	if status == domain.RunFailed {
		if failure != nil {
			return record, failure
		}
		return record, NewCancelError("", ctx.Err())
	}
	return record, nil
}

// runDataStages drives download, transform, and quality under the
// containment policy. Dry runs skip all three: the run exists to validate
// the request and record the resolved window, not to move data. Returns the
// first failure and whether cancellation stopped the run.
func (m *Manager) runDataStages(ctx context.Context, state *RunState) (*StageError, bool) {
	var failure *StageError
	cancelled := false

	for _, stage := range m.stages[:3] {
		name := stage.Name()

		if state.DryRun() {
			m.skip(ctx, state, name, "dry run")
			continue
		}
		if err := ctx.Err(); err != nil {
			cancelled = true
			m.skip(ctx, state, name, "run cancelled")
			continue
		}
		if failure != nil && !m.qualityBestEffort(name, state, failure) {
			m.skip(ctx, state, name, fmt.Sprintf("stage %s failed", failure.Stage))
			continue
		}

		if err := m.runStage(ctx, state, stage); err != nil {
			norm := Normalize(err, name)
			if norm.Type == ErrorTypeCancel {
				cancelled = true
			}
			if failure == nil {
				failure = norm
			}
		}
	}
	return failure, cancelled
}

// qualityBestEffort allows the quality stage to profile a partial result
// when transform failed after producing one, so the failure report still
// carries evidence.
func (m *Manager) qualityBestEffort(name string, state *RunState, failure *StageError) bool {
	return name == domain.StageQuality &&
		failure.Stage == domain.StageTransform &&
		state.TransformResult() != nil
}

// runStage executes one stage with its timeout, retry policy, and panic
// containment, recording the transition into the state.
func (m *Manager) runStage(ctx context.Context, state *RunState, stage Stage) error {
	name := stage.Name()
	timeout := m.config.StageTimeout(name)

	stageCtx, cancelStage := context.WithTimeout(ctx, timeout)
	defer cancelStage()
	stageCtx, span := m.tracer.StartStage(stageCtx, state.RunID(), name)

	started := m.clock.Now()
	state.StartStage(name, started)
	m.save(ctx, state)
	m.publisher.PublishStage(state.RunID(), name, domain.StagePending, "started")
	m.logger.InfoContext(stageCtx, "stage_started",
		slog.String("run_id", state.RunID()),
		slog.String("stage", name))

	var lastErr *StageError
attempts:
	for attempt := 1; ; attempt++ {
		err := m.safeRun(stageCtx, stage, state)
		if err == nil {
			finished := m.clock.Now()
			state.FinishStage(name, domain.StageSuccess, finished, "", nil)
			m.save(ctx, state)
			m.publisher.PublishStage(state.RunID(), name, domain.StageSuccess, "completed")
			m.tracer.EndStage(stageCtx, span, name, domain.StageSuccess, finished.Sub(started))
			m.logger.InfoContext(stageCtx, "stage_completed",
				slog.String("run_id", state.RunID()),
				slog.String("stage", name),
				slog.Duration("duration", finished.Sub(started)))
			return nil
		}

		lastErr = Normalize(err, name)
		m.logger.ErrorContext(stageCtx, "stage_failed",
			slog.String("run_id", state.RunID()),
			slog.String("stage", name),
			slog.String("error_type", string(lastErr.Type)),
			slog.Int("attempt", attempt),
			slog.String("error", lastErr.Error()))

		if !lastErr.Retryable || attempt >= m.config.Retry.MaxAttempts {
			break
		}

		delay := m.config.Retry.Delay(attempt)
		m.logger.WarnContext(stageCtx, "stage_retry",
			slog.String("run_id", state.RunID()),
			slog.String("stage", name),
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", m.config.Retry.MaxAttempts),
			slog.Duration("delay", delay))
		select {
		case <-time.After(delay):
		case <-stageCtx.Done():
			if stageCtx.Err() == context.DeadlineExceeded {
				lastErr = NewTimeoutError(name, timeout.String())
			} else {
				lastErr = NewCancelError(name, stageCtx.Err())
			}
			break attempts
		}
	}

	finished := m.clock.Now()
	state.FinishStage(name, domain.StageFailed, finished, lastErr.Error(), nil)
	m.save(ctx, state)
	m.publisher.PublishStage(state.RunID(), name, domain.StageFailed, lastErr.Error())
	m.tracer.EndStage(stageCtx, span, name, domain.StageFailed, finished.Sub(started))
	return lastErr
}

// safeRun converts a stage panic into a stage error instead of taking the
// process down.
func (m *Manager) safeRun(ctx context.Context, stage Stage, state *RunState) (err error) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.ErrorContext(ctx, "stage_panicked",
				slog.String("run_id", state.RunID()),
				slog.String("stage", stage.Name()),
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())))
			err = NewStageError(ErrorTypeInternal, stage.Name(), fmt.Sprintf("stage panicked: %v", r), nil)
		}
	}()
	return stage.Run(ctx, state)
}

func (m *Manager) skip(ctx context.Context, state *RunState, name, reason string) {
	state.SkipStage(name, reason)
	m.save(ctx, state)
	m.publisher.PublishStage(state.RunID(), name, domain.StageSkipped, reason)
	m.logger.InfoContext(ctx, "stage_skipped",
		slog.String("run_id", state.RunID()),
		slog.String("stage", name),
		slog.String("reason", reason))
}

// save persists the current record. Persistence failures are logged, not
// fatal: the run's outcome must not depend on store health.
func (m *Manager) save(ctx context.Context, state *RunState) {
	if err := m.store.Save(context.WithoutCancel(ctx), state.Record()); err != nil {
		m.logger.ErrorContext(ctx, "run_record_save_failed",
			slog.String("run_id", state.RunID()),
			slog.String("error", err.Error()))
	}
}

// finalStatus applies the containment policy.
func finalStatus(failure *StageError, cancelled, cleanupFailed bool) (domain.RunStatus, string) {
	switch {
	case failure != nil:
		return domain.RunFailed, failure.Error()
	case cancelled:
		return domain.RunFailed, "run cancelled before completion"
	case cleanupFailed:
		return domain.RunPartialSuccess, ""
	default:
		return domain.RunSuccess, ""
	}
}

func (m *Manager) trackRun(state *RunState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.active[state.RunID()]; exists {
		return fmt.Errorf("run %s already active", state.RunID())
	}
	m.active[state.RunID()] = state
	return nil
}

func (m *Manager) untrackRun(runID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.active, runID)
}

// ActiveRuns snapshots the currently executing runs, newest first.
func (m *Manager) ActiveRuns() []domain.RunRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()

	records := make([]domain.RunRecord, 0, len(m.active))
	for _, state := range m.active {
		records = append(records, state.Record())
	}
	for i := 1; i < len(records); i++ {
		for j := i; j > 0 && records[j].StartedAt.After(records[j-1].StartedAt); j-- {
			records[j], records[j-1] = records[j-1], records[j]
		}
	}
	return records
}

// Busy reports whether any run is currently executing.
func (m *Manager) Busy() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.active) > 0
}
