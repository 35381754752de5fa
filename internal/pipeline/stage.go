package pipeline

import (
	"context"

	"fedflow/pkg/contracts/domain"
)

// Stage is one unit of run execution. Run reads and writes shared data
// through the state; a nil return means the stage succeeded.
type Stage interface {
	Name() string
	Run(ctx context.Context, state *RunState) error
}

// dataStages are the stages whose failure fails the run. Cleanup and notify
// are containment stages and degrade at most.
var dataStages = map[string]bool{
	domain.StageDownload:  true,
	domain.StageTransform: true,
	domain.StageQuality:   true,
}

// IsDataStage reports whether a failure in the named stage fails the run.
func IsDataStage(name string) bool { return dataStages[name] }

// Publisher receives stage transitions for live observers. Implementations
// must not block; a nil Publisher is valid and drops everything.
type Publisher interface {
	PublishStage(runID, stage string, status domain.StageStatus, message string)
	PublishRun(record domain.RunRecord)
}

// NopPublisher drops all updates.
type NopPublisher struct{}

func (NopPublisher) PublishStage(string, string, domain.StageStatus, string) {}
func (NopPublisher) PublishRun(domain.RunRecord)                             {}
