package infrastructure

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	"fedflow/internal/config"
)

// MeterName scopes every tracer and meter this package hands out.
const MeterName = config.AppName

// OTelConfig holds OpenTelemetry configuration.
type OTelConfig struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	TraceExporter  string // "stdout", "none"
	MetricExporter string // "prometheus", "none"
	EnableTracing  bool
	EnableMetrics  bool
	SampleRatio    float64
}

// OTelProviders holds the initialized OpenTelemetry providers.
type OTelProviders struct {
	TracerProvider *sdktrace.TracerProvider
	MeterProvider  *sdkmetric.MeterProvider
	Tracer         trace.Tracer
	Meter          metric.Meter
	PrometheusHTTP http.Handler
	Logger         *slog.Logger
}

// DefaultOTelConfig returns the configuration used when the caller passes
// nil to InitializeOTel: full sampling, stdout traces, Prometheus metrics.
func DefaultOTelConfig() *OTelConfig {
	env := os.Getenv("ENVIRONMENT")
	if env == "" {
		env = "development"
	}

	return &OTelConfig{
		ServiceName:    config.AppName,
		ServiceVersion: config.AppVersion,
		Environment:    env,
		TraceExporter:  "stdout",
		MetricExporter: "prometheus",
		EnableTracing:  true,
		EnableMetrics:  true,
		SampleRatio:    1.0,
	}
}

// InitializeOTel sets up tracing and metrics providers and installs them as
// the otel globals. The returned providers must be shut down on exit.
func InitializeOTel(cfg *OTelConfig, logger *slog.Logger) (*OTelProviders, error) {
	if cfg == nil {
		cfg = DefaultOTelConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}

	ctx := context.Background()

	logger.InfoContext(ctx, "initializing OpenTelemetry",
		slog.String("service", cfg.ServiceName),
		slog.String("version", cfg.ServiceVersion),
		slog.String("environment", cfg.Environment),
		slog.Bool("tracing_enabled", cfg.EnableTracing),
		slog.Bool("metrics_enabled", cfg.EnableMetrics))

	res, err := createResource(cfg)
	if err != nil {
		return nil, fmt.Errorf("create resource: %w", err)
	}

	providers := &OTelProviders{Logger: logger}

	if cfg.EnableTracing {
		tp, err := initializeTracing(cfg, res)
		if err != nil {
			return nil, fmt.Errorf("initialize tracing: %w", err)
		}
		providers.TracerProvider = tp
		otel.SetTracerProvider(tp)
	}

	if cfg.EnableMetrics {
		mp, handler, err := initializeMetrics(cfg, res)
		if err != nil {
			return nil, fmt.Errorf("initialize metrics: %w", err)
		}
		providers.MeterProvider = mp
		providers.PrometheusHTTP = handler
		otel.SetMeterProvider(mp)
	}

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	providers.Tracer = otel.Tracer(MeterName)
	providers.Meter = otel.Meter(MeterName)

	logger.InfoContext(ctx, "OpenTelemetry initialized")
	return providers, nil
}

// Shutdown flushes and stops the providers. Safe on a partially
// initialized set.
func (p *OTelProviders) Shutdown(ctx context.Context) error {
	var errs []error

	if p.TracerProvider != nil {
		if err := p.TracerProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown tracer provider: %w", err))
		}
	}
	if p.MeterProvider != nil {
		if err := p.MeterProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown meter provider: %w", err))
		}
	}

	return errors.Join(errs...)
}

func createResource(cfg *OTelConfig) (*resource.Resource, error) {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}

	return resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(cfg.ServiceName),
		semconv.ServiceVersion(cfg.ServiceVersion),
		semconv.DeploymentEnvironment(cfg.Environment),
		attribute.String("service.instance.id", fmt.Sprintf("%s-%d", hostname, time.Now().Unix())),
	), nil
}

func initializeTracing(cfg *OTelConfig, res *resource.Resource) (*sdktrace.TracerProvider, error) {
	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.TraceIDRatioBased(cfg.SampleRatio)),
	}

	switch cfg.TraceExporter {
	case "stdout":
		exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, fmt.Errorf("create stdout trace exporter: %w", err)
		}
		opts = append(opts, sdktrace.WithBatcher(exporter))
	case "none", "":
		// Spans are recorded but never exported.
	default:
		return nil, fmt.Errorf("unsupported trace exporter %q", cfg.TraceExporter)
	}

	return sdktrace.NewTracerProvider(opts...), nil
}

func initializeMetrics(cfg *OTelConfig, res *resource.Resource) (*sdkmetric.MeterProvider, http.Handler, error) {
	opts := []sdkmetric.Option{sdkmetric.WithResource(res)}

	var handler http.Handler
	switch cfg.MetricExporter {
	case "prometheus":
		exporter, err := prometheus.New()
		if err != nil {
			return nil, nil, fmt.Errorf("create prometheus exporter: %w", err)
		}
		opts = append(opts, sdkmetric.WithReader(exporter))
		handler = promhttp.Handler()
	case "none", "":
		// Instruments work but nothing scrapes them.
	default:
		return nil, nil, fmt.Errorf("unsupported metric exporter %q", cfg.MetricExporter)
	}

	return sdkmetric.NewMeterProvider(opts...), handler, nil
}

// PipelineMetrics bundles the instruments recorded across the HTTP surface
// and the run pipeline.
type PipelineMetrics struct {
	// HTTP metrics
	HTTPRequestsTotal   metric.Int64Counter
	HTTPRequestDuration metric.Float64Histogram
	HTTPActiveRequests  metric.Int64UpDownCounter

	// Run metrics
	RunExecutionsTotal metric.Int64Counter
	RunDuration        metric.Float64Histogram
	ActiveRuns         metric.Int64UpDownCounter
	RunErrors          metric.Int64Counter
	RunCancellations   metric.Int64Counter

	// Stage metrics
	StageExecutionsTotal metric.Int64Counter
	StageDuration        metric.Float64Histogram

	// Row and quality metrics
	RowsProcessed metric.Int64Counter
	RowsOutput    metric.Int64Counter
	RowsDuplicate metric.Int64Counter
	QualityIssues metric.Int64Counter
}

// CreatePipelineMetrics registers the pipeline instruments on the meter.
func CreatePipelineMetrics(meter metric.Meter) (*PipelineMetrics, error) {
	httpRequestsTotal, err := meter.Int64Counter("http_requests_total",
		metric.WithDescription("Total HTTP requests processed"),
		metric.WithUnit("1"))
	if err != nil {
		return nil, fmt.Errorf("create http_requests_total: %w", err)
	}

	httpRequestDuration, err := meter.Float64Histogram("http_request_duration_seconds",
		metric.WithDescription("HTTP request latency"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, fmt.Errorf("create http_request_duration_seconds: %w", err)
	}

	httpActiveRequests, err := meter.Int64UpDownCounter("http_active_requests",
		metric.WithDescription("HTTP requests currently in flight"),
		metric.WithUnit("1"))
	if err != nil {
		return nil, fmt.Errorf("create http_active_requests: %w", err)
	}

	runExecutionsTotal, err := meter.Int64Counter("run_executions_total",
		metric.WithDescription("Completed pipeline runs by mode and status"),
		metric.WithUnit("1"))
	if err != nil {
		return nil, fmt.Errorf("create run_executions_total: %w", err)
	}

	runDuration, err := meter.Float64Histogram("run_duration_seconds",
		metric.WithDescription("End-to-end pipeline run duration"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, fmt.Errorf("create run_duration_seconds: %w", err)
	}

	activeRuns, err := meter.Int64UpDownCounter("active_runs",
		metric.WithDescription("Pipeline runs currently executing"),
		metric.WithUnit("1"))
	if err != nil {
		return nil, fmt.Errorf("create active_runs: %w", err)
	}

	runErrors, err := meter.Int64Counter("run_errors_total",
		metric.WithDescription("Run failures by stage and error kind"),
		metric.WithUnit("1"))
	if err != nil {
		return nil, fmt.Errorf("create run_errors_total: %w", err)
	}

	runCancellations, err := meter.Int64Counter("run_cancellations_total",
		metric.WithDescription("Runs cancelled before completion"),
		metric.WithUnit("1"))
	if err != nil {
		return nil, fmt.Errorf("create run_cancellations_total: %w", err)
	}

	stageExecutionsTotal, err := meter.Int64Counter("stage_executions_total",
		metric.WithDescription("Completed pipeline stages by name and status"),
		metric.WithUnit("1"))
	if err != nil {
		return nil, fmt.Errorf("create stage_executions_total: %w", err)
	}

	stageDuration, err := meter.Float64Histogram("stage_duration_seconds",
		metric.WithDescription("Per-stage execution duration"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, fmt.Errorf("create stage_duration_seconds: %w", err)
	}

	rowsProcessed, err := meter.Int64Counter("rows_processed_total",
		metric.WithDescription("Raw rows read from source files"),
		metric.WithUnit("1"))
	if err != nil {
		return nil, fmt.Errorf("create rows_processed_total: %w", err)
	}

	rowsOutput, err := meter.Int64Counter("rows_output_total",
		metric.WithDescription("Canonical rows written to datasets"),
		metric.WithUnit("1"))
	if err != nil {
		return nil, fmt.Errorf("create rows_output_total: %w", err)
	}

	rowsDuplicate, err := meter.Int64Counter("rows_duplicate_total",
		metric.WithDescription("Rows dropped by deduplication"),
		metric.WithUnit("1"))
	if err != nil {
		return nil, fmt.Errorf("create rows_duplicate_total: %w", err)
	}

	qualityIssues, err := meter.Int64Counter("quality_issues_total",
		metric.WithDescription("Quality issues by severity"),
		metric.WithUnit("1"))
	if err != nil {
		return nil, fmt.Errorf("create quality_issues_total: %w", err)
	}

	return &PipelineMetrics{
		HTTPRequestsTotal:    httpRequestsTotal,
		HTTPRequestDuration:  httpRequestDuration,
		HTTPActiveRequests:   httpActiveRequests,
		RunExecutionsTotal:   runExecutionsTotal,
		RunDuration:          runDuration,
		ActiveRuns:           activeRuns,
		RunErrors:            runErrors,
		RunCancellations:     runCancellations,
		StageExecutionsTotal: stageExecutionsTotal,
		StageDuration:        stageDuration,
		RowsProcessed:        rowsProcessed,
		RowsOutput:           rowsOutput,
		RowsDuplicate:        rowsDuplicate,
		QualityIssues:        qualityIssues,
	}, nil
}

// RecordRunMetrics records one finished run. Status is the terminal run
// status string, mode the window mode that produced it.
func RecordRunMetrics(ctx context.Context, metrics *PipelineMetrics, mode, status string, duration time.Duration) {
	if metrics == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("mode", mode),
		attribute.String("status", status),
	)
	metrics.RunExecutionsTotal.Add(ctx, 1, attrs)
	metrics.RunDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordStageMetrics records one finished stage.
func RecordStageMetrics(ctx context.Context, metrics *PipelineMetrics, stage, status string, duration time.Duration) {
	if metrics == nil {
		return
	}
	metrics.StageExecutionsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("stage", stage),
		attribute.String("status", status),
	))
	metrics.StageDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String("stage", stage),
	))
}

// RecordActiveRunChange moves the active-run gauge by delta (+1 on start,
// -1 on completion).
func RecordActiveRunChange(ctx context.Context, metrics *PipelineMetrics, delta int64) {
	if metrics == nil {
		return
	}
	metrics.ActiveRuns.Add(ctx, delta)
}

// RecordRunError counts a run failure attributed to a stage and error kind.
func RecordRunError(ctx context.Context, metrics *PipelineMetrics, stage, kind string) {
	if metrics == nil {
		return
	}
	metrics.RunErrors.Add(ctx, 1, metric.WithAttributes(
		attribute.String("stage", stage),
		attribute.String("kind", kind),
	))
}

// RecordRunCancellation counts a cancelled run.
func RecordRunCancellation(ctx context.Context, metrics *PipelineMetrics, mode string) {
	if metrics == nil {
		return
	}
	metrics.RunCancellations.Add(ctx, 1, metric.WithAttributes(
		attribute.String("mode", mode),
	))
}

// RecordRowCounts records the row accounting of one run.
func RecordRowCounts(ctx context.Context, metrics *PipelineMetrics, raw, output, duplicates int64) {
	if metrics == nil {
		return
	}
	metrics.RowsProcessed.Add(ctx, raw)
	metrics.RowsOutput.Add(ctx, output)
	metrics.RowsDuplicate.Add(ctx, duplicates)
}

// RecordQualityIssues records issue counts from a quality report.
func RecordQualityIssues(ctx context.Context, metrics *PipelineMetrics, critical, errs, warnings int64) {
	if metrics == nil {
		return
	}
	if critical > 0 {
		metrics.QualityIssues.Add(ctx, critical, metric.WithAttributes(attribute.String("severity", "critical")))
	}
	if errs > 0 {
		metrics.QualityIssues.Add(ctx, errs, metric.WithAttributes(attribute.String("severity", "error")))
	}
	if warnings > 0 {
		metrics.QualityIssues.Add(ctx, warnings, metric.WithAttributes(attribute.String("severity", "warning")))
	}
}

// TraceIDFromContext extracts the OpenTelemetry trace ID from an active
// span, falling back to the application trace ID carried by the context.
func TraceIDFromContext(ctx context.Context) string {
	spanCtx := trace.SpanContextFromContext(ctx)
	if spanCtx.HasTraceID() {
		return spanCtx.TraceID().String()
	}
	return GetTraceID(ctx)
}

// RecordError marks the active span as failed and records err on it.
func RecordError(ctx context.Context, err error) {
	if err == nil {
		return
	}
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
