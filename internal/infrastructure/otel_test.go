package infrastructure

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fedflow/internal/config"
)

// quietOTelConfig keeps tests from exporting spans to stdout or
// registering collectors on the global Prometheus registry.
func quietOTelConfig() *OTelConfig {
	return &OTelConfig{
		ServiceName:    "fedflow-test",
		ServiceVersion: "v0.0.0",
		Environment:    "test",
		TraceExporter:  "none",
		MetricExporter: "none",
		EnableTracing:  true,
		EnableMetrics:  true,
		SampleRatio:    1.0,
	}
}

func TestDefaultOTelConfig(t *testing.T) {
	cfg := DefaultOTelConfig()

	assert.Equal(t, config.AppName, cfg.ServiceName)
	assert.Equal(t, config.AppVersion, cfg.ServiceVersion)
	assert.Equal(t, "stdout", cfg.TraceExporter)
	assert.Equal(t, "prometheus", cfg.MetricExporter)
	assert.True(t, cfg.EnableTracing)
	assert.True(t, cfg.EnableMetrics)
	assert.Equal(t, 1.0, cfg.SampleRatio)
}

func TestOTelInitialization(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	providers, err := InitializeOTel(quietOTelConfig(), logger)
	require.NoError(t, err)
	require.NotNil(t, providers)

	assert.NotNil(t, providers.TracerProvider)
	assert.NotNil(t, providers.Tracer)
	assert.NotNil(t, providers.MeterProvider)
	assert.NotNil(t, providers.Meter)
	assert.Nil(t, providers.PrometheusHTTP)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	assert.NoError(t, providers.Shutdown(ctx))
}

func TestOTelInitializationRejectsUnknownExporters(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	cfg := quietOTelConfig()
	cfg.TraceExporter = "jaeger"
	_, err := InitializeOTel(cfg, logger)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "trace exporter")

	cfg = quietOTelConfig()
	cfg.MetricExporter = "statsd"
	_, err = InitializeOTel(cfg, logger)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "metric exporter")
}

func TestOTelDisabledSignals(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	cfg := quietOTelConfig()
	cfg.EnableTracing = false
	cfg.EnableMetrics = false

	providers, err := InitializeOTel(cfg, logger)
	require.NoError(t, err)

	assert.Nil(t, providers.TracerProvider)
	assert.Nil(t, providers.MeterProvider)
	assert.NotNil(t, providers.Tracer)
	assert.NotNil(t, providers.Meter)

	assert.NoError(t, providers.Shutdown(context.Background()))
}

func TestTraceCorrelation(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	providers, err := InitializeOTel(quietOTelConfig(), logger)
	require.NoError(t, err)
	defer providers.Shutdown(context.Background())

	ctx, span := providers.Tracer.Start(context.Background(), "test-operation")
	defer span.End()

	traceID := TraceIDFromContext(ctx)
	assert.NotEmpty(t, traceID)
	assert.Equal(t, span.SpanContext().TraceID().String(), traceID)

	// Without a span the application trace ID is the fallback.
	plain := WithTraceID(context.Background(), "app-trace-42")
	assert.Equal(t, "app-trace-42", TraceIDFromContext(plain))
	assert.Empty(t, TraceIDFromContext(context.Background()))
}

func TestCreatePipelineMetrics(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	providers, err := InitializeOTel(quietOTelConfig(), logger)
	require.NoError(t, err)
	defer providers.Shutdown(context.Background())

	metrics, err := CreatePipelineMetrics(providers.Meter)
	require.NoError(t, err)
	require.NotNil(t, metrics)

	assert.NotNil(t, metrics.HTTPRequestsTotal)
	assert.NotNil(t, metrics.HTTPRequestDuration)
	assert.NotNil(t, metrics.HTTPActiveRequests)

	assert.NotNil(t, metrics.RunExecutionsTotal)
	assert.NotNil(t, metrics.RunDuration)
	assert.NotNil(t, metrics.ActiveRuns)
	assert.NotNil(t, metrics.RunErrors)
	assert.NotNil(t, metrics.RunCancellations)

	assert.NotNil(t, metrics.StageExecutionsTotal)
	assert.NotNil(t, metrics.StageDuration)

	assert.NotNil(t, metrics.RowsProcessed)
	assert.NotNil(t, metrics.RowsOutput)
	assert.NotNil(t, metrics.RowsDuplicate)
	assert.NotNil(t, metrics.QualityIssues)
}

func TestRecordHelpers(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	providers, err := InitializeOTel(quietOTelConfig(), logger)
	require.NoError(t, err)
	defer providers.Shutdown(context.Background())

	metrics, err := CreatePipelineMetrics(providers.Meter)
	require.NoError(t, err)

	ctx := context.Background()
	RecordRunMetrics(ctx, metrics, "daily", "SUCCESS", 90*time.Second)
	RecordStageMetrics(ctx, metrics, "transform", "SUCCESS", 12*time.Second)
	RecordActiveRunChange(ctx, metrics, 1)
	RecordActiveRunChange(ctx, metrics, -1)
	RecordRunError(ctx, metrics, "download", "source")
	RecordRunCancellation(ctx, metrics, "backfill")
	RecordRowCounts(ctx, metrics, 1000, 950, 50)
	RecordQualityIssues(ctx, metrics, 2, 10, 40)
}

func TestRecordHelpersNilMetrics(t *testing.T) {
	ctx := context.Background()

	RecordRunMetrics(ctx, nil, "daily", "FAILED", time.Second)
	RecordStageMetrics(ctx, nil, "quality", "FAILED", time.Second)
	RecordActiveRunChange(ctx, nil, 1)
	RecordRunError(ctx, nil, "transform", "validation")
	RecordRunCancellation(ctx, nil, "daily")
	RecordRowCounts(ctx, nil, 1, 1, 0)
	RecordQualityIssues(ctx, nil, 0, 0, 0)
}

func TestRecordError(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	providers, err := InitializeOTel(quietOTelConfig(), logger)
	require.NoError(t, err)
	defer providers.Shutdown(context.Background())

	ctx, span := providers.Tracer.Start(context.Background(), "failing-operation")
	defer span.End()

	RecordError(ctx, assert.AnError)
	assert.True(t, span.IsRecording())

	// No span and no error are both no-ops.
	RecordError(context.Background(), assert.AnError)
	RecordError(ctx, nil)
}

func TestShutdownSafeOnPartialProviders(t *testing.T) {
	providers := &OTelProviders{}
	assert.NoError(t, providers.Shutdown(context.Background()))
}

func TestPrometheusEndpoint(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	cfg := quietOTelConfig()
	cfg.MetricExporter = "prometheus"

	providers, err := InitializeOTel(cfg, logger)
	require.NoError(t, err)
	defer providers.Shutdown(context.Background())

	require.NotNil(t, providers.PrometheusHTTP)

	server := httptest.NewServer(providers.PrometheusHTTP)
	defer server.Close()

	resp, err := http.Get(server.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/plain")
}

func BenchmarkSpanCreation(b *testing.B) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	providers, err := InitializeOTel(quietOTelConfig(), logger)
	require.NoError(b, err)
	defer providers.Shutdown(context.Background())

	ctx := context.Background()

	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_, span := providers.Tracer.Start(ctx, "benchmark-span")
		span.End()
	}
}
