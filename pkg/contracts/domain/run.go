package domain

import (
	"fmt"
	"time"
)

// Mode selects how the processing window is derived.
type Mode string

const (
	ModeDaily    Mode = "daily"
	ModeWeekly   Mode = "weekly"
	ModeMonthly  Mode = "monthly"
	ModeBackfill Mode = "backfill"
	ModeRange    Mode = "range"
)

// Valid reports whether m names a known scheduling mode.
func (m Mode) Valid() bool {
	switch m {
	case ModeDaily, ModeWeekly, ModeMonthly, ModeBackfill, ModeRange:
		return true
	}
	return false
}

// Window is the inclusive date range a run is responsible for. Start and End
// are UTC dates (midnight).
type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Days returns the number of calendar days the window covers, inclusive.
func (w Window) Days() int {
	return int(w.End.Sub(w.Start).Hours()/24) + 1
}

// Contains reports whether the UTC date of t falls inside the window.
func (w Window) Contains(t time.Time) bool {
	y, m, d := t.UTC().Date()
	day := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return !day.Before(w.Start) && !day.After(w.End)
}

// String renders the window as start..end for logs and run ids.
func (w Window) String() string {
	return w.Start.Format(DateLayout) + ".." + w.End.Format(DateLayout)
}

// RunStatus is the overall status of one orchestrated run.
type RunStatus string

const (
	RunPending        RunStatus = "PENDING"
	RunRunning        RunStatus = "RUNNING"
	RunSuccess        RunStatus = "SUCCESS"
	RunPartialSuccess RunStatus = "PARTIAL_SUCCESS"
	RunFailed         RunStatus = "FAILED"
)

// Terminal reports whether the status is final. A terminal RunRecord is never
// mutated again.
func (s RunStatus) Terminal() bool {
	switch s {
	case RunSuccess, RunPartialSuccess, RunFailed:
		return true
	}
	return false
}

// StageStatus is the outcome of one stage within a run.
type StageStatus string

const (
	StagePending StageStatus = "PENDING"
	StageSkipped StageStatus = "SKIPPED"
	StageSuccess StageStatus = "SUCCESS"
	StageFailed  StageStatus = "FAILED"
)

// Stage names, in execution order.
const (
	StageDownload  = "download"
	StageTransform = "transform"
	StageQuality   = "quality"
	StageCleanup   = "cleanup"
	StageNotify    = "notify"
)

// StageOrder is the fixed execution sequence.
var StageOrder = []string{StageDownload, StageTransform, StageQuality, StageCleanup, StageNotify}

// StageResult records the outcome of one stage. Owned exclusively by the
// RunRecord that contains it.
type StageResult struct {
	Name       string            `json:"name"`
	Status     StageStatus       `json:"status"`
	StartedAt  *time.Time        `json:"started_at,omitempty"`
	FinishedAt *time.Time        `json:"finished_at,omitempty"`
	Duration   time.Duration     `json:"duration_ns,omitempty"`
	Error      string            `json:"error,omitempty"`
	Detail     map[string]string `json:"detail,omitempty"`
}

// RunRecord is the unit of orchestration state. It is created at run start,
// mutated only by the orchestrator as stages complete, and persisted after
// every stage transition. The final save, after the notify stage settles, is
// the frozen form.
type RunRecord struct {
	RunID      string        `json:"run_id"`
	Mode       Mode          `json:"mode"`
	Window     Window        `json:"window"`
	Status     RunStatus     `json:"status"`
	DryRun     bool          `json:"dry_run,omitempty"`
	Stages     []StageResult `json:"stages"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt *time.Time    `json:"finished_at,omitempty"`
	// Cancelled distinguishes operator cancellation from stage failure.
	Cancelled bool   `json:"cancelled,omitempty"`
	Error     string `json:"error,omitempty"`

	// Artifact references, named deterministically from RunID.
	DatasetPath string `json:"dataset_path,omitempty"`
	ReportPath  string `json:"report_path,omitempty"`

	// Summary counts for notification payloads and the runs API.
	RawRows       int64 `json:"raw_rows"`
	OutputRows    int64 `json:"output_rows"`
	DuplicateRows int64 `json:"duplicate_rows"`
	IssueCount    int   `json:"issue_count"`
}

// Stage returns the result for the named stage, or nil.
func (r *RunRecord) Stage(name string) *StageResult {
	for i := range r.Stages {
		if r.Stages[i].Name == name {
			return &r.Stages[i]
		}
	}
	return nil
}

// NewRunID derives the run identifier from mode, window, and invocation time.
// It is a pure function of its inputs: re-invoking the same logical request at
// the same instant yields the same id, so reruns are traceable and comparable.
func NewRunID(mode Mode, w Window, invokedAt time.Time) string {
	return fmt.Sprintf("%s_%s_%s_%s",
		mode,
		w.Start.Format("20060102"),
		w.End.Format("20060102"),
		invokedAt.UTC().Format("20060102T150405Z"))
}
