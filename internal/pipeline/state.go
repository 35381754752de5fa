package pipeline

import (
	"sync"
	"time"

	"fedflow/internal/source"
	"fedflow/internal/transform"
	"fedflow/pkg/contracts/domain"
)

// RunState carries one run's record and the data flowing between stages.
// Stages mutate it only through its methods; the orchestrator snapshots it
// for persistence after every transition.
type RunState struct {
	mu     sync.RWMutex
	record domain.RunRecord

	artifacts []source.Artifact
	result    *transform.Result
	report    *domain.QualityReport
}

// NewRunState initializes the state for a fresh run: status RUNNING, every
// stage PENDING.
func NewRunState(runID string, mode domain.Mode, window domain.Window, dryRun bool, startedAt time.Time) *RunState {
	stages := make([]domain.StageResult, 0, len(domain.StageOrder))
	for _, name := range domain.StageOrder {
		stages = append(stages, domain.StageResult{Name: name, Status: domain.StagePending})
	}
	return &RunState{
		record: domain.RunRecord{
			RunID:     runID,
			Mode:      mode,
			Window:    window,
			Status:    domain.RunRunning,
			DryRun:    dryRun,
			Stages:    stages,
			StartedAt: startedAt.UTC(),
		},
	}
}

// Record returns a snapshot safe to persist or publish. The stage slice is
// copied; detail maps are owned by finished stages and no longer written.
func (s *RunState) Record() domain.RunRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record := s.record
	record.Stages = make([]domain.StageResult, len(s.record.Stages))
	copy(record.Stages, s.record.Stages)
	return record
}

// RunID is immutable, so no lock is needed.
func (s *RunState) RunID() string { return s.record.RunID }

// DryRun reports whether this run validates the request without moving data.
func (s *RunState) DryRun() bool { return s.record.DryRun }

// Window returns the run's inclusive date window.
func (s *RunState) Window() domain.Window { return s.record.Window }

// StartStage marks the stage as begun.
func (s *RunState) StartStage(name string, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if stage := s.record.Stage(name); stage != nil {
		t := now.UTC()
		stage.StartedAt = &t
	}
}

// FinishStage records the outcome of a started stage.
func (s *RunState) FinishStage(name string, status domain.StageStatus, now time.Time, errMsg string, detail map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stage := s.record.Stage(name)
	if stage == nil {
		return
	}
	t := now.UTC()
	stage.FinishedAt = &t
	if stage.StartedAt != nil {
		stage.Duration = t.Sub(*stage.StartedAt)
	}
	stage.Status = status
	stage.Error = errMsg
	if len(detail) > 0 {
		stage.Detail = detail
	}
}

// SetStageDetail attaches stage-produced facts to the stage entry. The
// orchestrator's FinishStage preserves them.
func (s *RunState) SetStageDetail(name string, detail map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if stage := s.record.Stage(name); stage != nil {
		stage.Detail = detail
	}
}

// SkipStage marks a stage that will never run, with the reason.
func (s *RunState) SkipStage(name, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if stage := s.record.Stage(name); stage != nil {
		stage.Status = domain.StageSkipped
		stage.Error = reason
	}
}

// StageStatus returns the current status of the named stage.
func (s *RunState) StageStatus(name string) domain.StageStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if stage := s.record.Stage(name); stage != nil {
		return stage.Status
	}
	return ""
}

// Finish freezes the run with its final status.
func (s *RunState) Finish(status domain.RunStatus, now time.Time, cancelled bool, errMsg string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := now.UTC()
	s.record.Status = status
	s.record.FinishedAt = &t
	s.record.Cancelled = cancelled
	s.record.Error = errMsg
}

// SetArtifacts stores the download stage's output.
func (s *RunState) SetArtifacts(artifacts []source.Artifact) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.artifacts = artifacts
}

// Artifacts returns the download stage's output.
func (s *RunState) Artifacts() []source.Artifact {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.artifacts
}

// SetTransformResult stores the transform output and folds its counts into
// the record.
func (s *RunState) SetTransformResult(result *transform.Result) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.result = result
	if result != nil {
		s.record.RawRows = result.RawRows
		s.record.OutputRows = int64(len(result.Records))
		s.record.DuplicateRows = result.Duplicates.RowsRemoved
	}
}

// TransformResult returns the transform output, nil until that stage ran.
func (s *RunState) TransformResult() *transform.Result {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.result
}

// SetDatasetPath records where the canonical dataset landed.
func (s *RunState) SetDatasetPath(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record.DatasetPath = path
}

// SetReport stores the quality report and folds its counts into the record.
func (s *RunState) SetReport(report *domain.QualityReport, path string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.report = report
	s.record.ReportPath = path
	if report != nil {
		s.record.IssueCount = report.Counts.Total()
	}
}

// Report returns the quality report, nil until the quality stage ran.
func (s *RunState) Report() *domain.QualityReport {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.report
}
