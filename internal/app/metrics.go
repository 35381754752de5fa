package app

import (
	"context"
	"strconv"
	"strings"
	"time"

	"fedflow/internal/infrastructure"
	"fedflow/internal/pipeline"
	"fedflow/pkg/contracts/domain"
)

// metricsPublisher decorates the event publisher with OpenTelemetry
// instrument updates so the run engine stays free of metrics plumbing.
// Everything the instruments need travels in the published run snapshots.
type metricsPublisher struct {
	next    pipeline.Publisher
	metrics *infrastructure.PipelineMetrics
}

func newMetricsPublisher(next pipeline.Publisher, metrics *infrastructure.PipelineMetrics) *metricsPublisher {
	if next == nil {
		next = pipeline.NopPublisher{}
	}
	return &metricsPublisher{next: next, metrics: metrics}
}

func (p *metricsPublisher) PublishStage(runID, stage string, status domain.StageStatus, message string) {
	p.next.PublishStage(runID, stage, status, message)
}

func (p *metricsPublisher) PublishRun(record domain.RunRecord) {
	p.next.PublishRun(record)

	// The engine publishes snapshots from its own goroutine; instrument
	// updates must not inherit a request context that may already be done.
	ctx := context.Background()
	switch {
	case record.Status == domain.RunRunning:
		infrastructure.RecordActiveRunChange(ctx, p.metrics, 1)
	case record.Status.Terminal():
		p.recordTerminal(ctx, record)
	}
}

func (p *metricsPublisher) recordTerminal(ctx context.Context, record domain.RunRecord) {
	infrastructure.RecordActiveRunChange(ctx, p.metrics, -1)

	var elapsed time.Duration
	if record.FinishedAt != nil {
		elapsed = record.FinishedAt.Sub(record.StartedAt)
	}
	infrastructure.RecordRunMetrics(ctx, p.metrics, string(record.Mode), string(record.Status), elapsed)
	infrastructure.RecordRowCounts(ctx, p.metrics, record.RawRows, record.OutputRows, record.DuplicateRows)

	if record.Cancelled {
		infrastructure.RecordRunCancellation(ctx, p.metrics, string(record.Mode))
	}

	for _, stage := range record.Stages {
		if stage.FinishedAt == nil {
			continue
		}
		infrastructure.RecordStageMetrics(ctx, p.metrics, stage.Name, string(stage.Status), stage.Duration)
		if stage.Status == domain.StageFailed {
			infrastructure.RecordRunError(ctx, p.metrics, stage.Name, errorKind(stage.Error))
		}
	}

	if stage := record.Stage(domain.StageQuality); stage != nil {
		critical := detailCount(stage.Detail, "critical_issues")
		errs := detailCount(stage.Detail, "error_issues")
		warnings := detailCount(stage.Detail, "warning_issues")
		if critical+errs+warnings > 0 {
			infrastructure.RecordQualityIssues(ctx, p.metrics, critical, errs, warnings)
		}
	}
}

// errorKind extracts the taxonomy type from a StageError's "[kind] stage:
// message" rendering. Anything else counts as internal.
func errorKind(message string) string {
	if strings.HasPrefix(message, "[") {
		if end := strings.Index(message, "]"); end > 1 {
			return message[1:end]
		}
	}
	return string(pipeline.ErrorTypeInternal)
}

func detailCount(detail map[string]string, key string) int64 {
	n, err := strconv.ParseInt(detail[key], 10, 64)
	if err != nil {
		return 0
	}
	return n
}
