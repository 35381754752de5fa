package pipeline

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"fedflow/pkg/contracts/domain"
)

const instrumentationName = "fedflow.pipeline"

// RunTracer instruments run and stage execution with traces and metrics.
// Built on the global otel providers, so it degrades to no-ops when no SDK
// is installed.
type RunTracer struct {
	tracer trace.Tracer

	runsTotal     metric.Int64Counter
	runDuration   metric.Float64Histogram
	stageDuration metric.Float64Histogram
	activeRuns    metric.Int64UpDownCounter
	rowsProcessed metric.Int64Counter
}

// NewRunTracer creates the pipeline instruments.
func NewRunTracer() (*RunTracer, error) {
	meter := otel.Meter(instrumentationName)

	runsTotal, err := meter.Int64Counter("fedflow_runs_total",
		metric.WithDescription("Completed runs by status"))
	if err != nil {
		return nil, fmt.Errorf("create runs counter: %w", err)
	}
	runDuration, err := meter.Float64Histogram("fedflow_run_duration_seconds",
		metric.WithDescription("End-to-end run duration"))
	if err != nil {
		return nil, fmt.Errorf("create run duration histogram: %w", err)
	}
	stageDuration, err := meter.Float64Histogram("fedflow_stage_duration_seconds",
		metric.WithDescription("Per-stage execution duration"))
	if err != nil {
		return nil, fmt.Errorf("create stage duration histogram: %w", err)
	}
	activeRuns, err := meter.Int64UpDownCounter("fedflow_active_runs",
		metric.WithDescription("Runs currently executing"))
	if err != nil {
		return nil, fmt.Errorf("create active runs counter: %w", err)
	}
	rowsProcessed, err := meter.Int64Counter("fedflow_rows_processed_total",
		metric.WithDescription("Raw rows consumed by completed runs"))
	if err != nil {
		return nil, fmt.Errorf("create rows counter: %w", err)
	}

	return &RunTracer{
		tracer:        otel.Tracer(instrumentationName),
		runsTotal:     runsTotal,
		runDuration:   runDuration,
		stageDuration: stageDuration,
		activeRuns:    activeRuns,
		rowsProcessed: rowsProcessed,
	}, nil
}

// StartRun opens the run span and bumps the active gauge.
func (t *RunTracer) StartRun(ctx context.Context, runID string, mode domain.Mode, window domain.Window) (context.Context, trace.Span) {
	ctx, span := t.tracer.Start(ctx, fmt.Sprintf("run.%s", mode),
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("run.id", runID),
			attribute.String("run.mode", string(mode)),
			attribute.String("run.window", window.String()),
		),
	)
	t.activeRuns.Add(ctx, 1, metric.WithAttributes(attribute.String("mode", string(mode))))
	return ctx, span
}

// EndRun closes the run span and records the outcome metrics.
func (t *RunTracer) EndRun(ctx context.Context, span trace.Span, record domain.RunRecord, duration time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("mode", string(record.Mode)),
		attribute.String("status", string(record.Status)),
	)
	t.runsTotal.Add(ctx, 1, attrs)
	t.runDuration.Record(ctx, duration.Seconds(), attrs)
	t.activeRuns.Add(ctx, -1, metric.WithAttributes(attribute.String("mode", string(record.Mode))))
	if record.RawRows > 0 {
		t.rowsProcessed.Add(ctx, record.RawRows,
			metric.WithAttributes(attribute.String("mode", string(record.Mode))))
	}

	span.SetAttributes(
		attribute.String("run.status", string(record.Status)),
		attribute.Float64("run.duration_seconds", duration.Seconds()),
		attribute.Int64("run.raw_rows", record.RawRows),
		attribute.Int64("run.output_rows", record.OutputRows),
	)
	if record.Status == domain.RunFailed {
		span.SetStatus(codes.Error, record.Error)
	} else {
		span.SetStatus(codes.Ok, string(record.Status))
	}
	span.End()
}

// StartStage opens a child span for one stage.
func (t *RunTracer) StartStage(ctx context.Context, runID, stage string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, fmt.Sprintf("stage.%s", stage),
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("run.id", runID),
			attribute.String("stage.name", stage),
		),
	)
}

// EndStage closes the stage span with its outcome.
func (t *RunTracer) EndStage(ctx context.Context, span trace.Span, stage string, status domain.StageStatus, duration time.Duration) {
	t.stageDuration.Record(ctx, duration.Seconds(),
		metric.WithAttributes(
			attribute.String("stage", stage),
			attribute.String("status", string(status)),
		))
	span.SetAttributes(
		attribute.String("stage.status", string(status)),
		attribute.Float64("stage.duration_seconds", duration.Seconds()),
	)
	if status == domain.StageFailed {
		span.SetStatus(codes.Error, "stage failed")
	} else {
		span.SetStatus(codes.Ok, string(status))
	}
	span.End()
}
