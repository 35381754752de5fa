package pipeline

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fedflow/internal/exporter"
	"fedflow/internal/quality"
	"fedflow/internal/source"
	"fedflow/internal/transform"
	"fedflow/pkg/contracts/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestState(t *testing.T) *RunState {
	t.Helper()
	day := time.Date(2025, 10, 27, 0, 0, 0, 0, time.UTC)
	window := domain.Window{Start: day, End: day}
	runID := domain.NewRunID(domain.ModeDaily, window, day.Add(6*time.Hour))
	return NewRunState(runID, domain.ModeDaily, window, false, day.Add(6*time.Hour))
}

func TestDownloadStageRecordsArtifacts(t *testing.T) {
	dir := t.TempDir()
	a := writeRawArtifact(t, dir, "contracts_a.csv", contractRows())
	b := writeRawArtifact(t, dir, "contracts_b.csv", contractRows())
	stage := NewDownloadStage(&source.StaticProvider{Artifacts: []source.Artifact{a, b}}, discardLogger())
	state := newTestState(t)

	require.NoError(t, stage.Run(context.Background(), state))

	assert.Len(t, state.Artifacts(), 2)
	record := state.Record()
	download := record.Stage(domain.StageDownload)
	require.NotNil(t, download)
	assert.Equal(t, "2", download.Detail["artifacts"])
	assert.Equal(t, "6", download.Detail["rows"])
	assert.NotEqual(t, "0", download.Detail["bytes"])
}

func TestDownloadStageNormalizesUnavailable(t *testing.T) {
	stage := NewDownloadStage(&source.StaticProvider{Err: &source.UnavailableError{Reason: "dns failure"}}, discardLogger())
	state := newTestState(t)

	err := stage.Run(context.Background(), state)
	require.Error(t, err)

	var stageErr *StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, ErrorTypeSourceUnavailable, stageErr.Type)
	assert.True(t, stageErr.Retryable)
}

func TestTransformStageProducesResultAndDataset(t *testing.T) {
	root := t.TempDir()
	table := pipelineTestTable(t)
	logger := discardLogger()
	artifact := writeRawArtifact(t, filepath.Join(root, "raw"), "contracts.csv", contractRows())
	datasetDir := filepath.Join(root, "datasets")

	stage := NewTransformStage(table,
		transform.NewEngine(table, transform.Options{Workers: 1}, logger),
		exporter.NewWriter(false, logger), datasetDir, logger)
	state := newTestState(t)
	state.SetArtifacts([]source.Artifact{artifact})

	require.NoError(t, stage.Run(context.Background(), state))

	result := state.TransformResult()
	require.NotNil(t, result)
	assert.Equal(t, int64(3), result.RawRows)
	assert.Len(t, result.Records, 2)

	record := state.Record()
	assert.Equal(t, int64(1), record.DuplicateRows)
	require.NotEmpty(t, record.DatasetPath)
	_, err := os.Stat(record.DatasetPath)
	assert.NoError(t, err)
}

func TestQualityStageRequiresTransformResult(t *testing.T) {
	table := pipelineTestTable(t)
	stage := NewQualityStage(quality.NewProfiler(table, 100), t.TempDir(), false, nil, discardLogger())
	state := newTestState(t)

	err := stage.Run(context.Background(), state)
	require.Error(t, err)
	assert.Equal(t, ErrorTypeData, TypeOf(err))
}

func TestQualityStageWritesReportAndWorkbook(t *testing.T) {
	root := t.TempDir()
	table := pipelineTestTable(t)
	logger := discardLogger()
	artifact := writeRawArtifact(t, filepath.Join(root, "raw"), "contracts.csv", contractRows())
	reportDir := filepath.Join(root, "reports")

	state := newTestState(t)
	state.SetArtifacts([]source.Artifact{artifact})
	transformStage := NewTransformStage(table,
		transform.NewEngine(table, transform.Options{Workers: 1}, logger),
		exporter.NewWriter(false, logger), filepath.Join(root, "datasets"), logger)
	require.NoError(t, transformStage.Run(context.Background(), state))

	stage := NewQualityStage(quality.NewProfiler(table, 100), reportDir, true, nil, logger)
	require.NoError(t, stage.Run(context.Background(), state))

	record := state.Record()
	require.NotEmpty(t, record.ReportPath)
	assert.FileExists(t, record.ReportPath)
	assert.FileExists(t, filepath.Join(reportDir, quality.WorkbookFileName(state.RunID())))

	qualityStage := record.Stage(domain.StageQuality)
	require.NotNil(t, qualityStage)
	assert.NotEmpty(t, qualityStage.Detail["completeness"])
	assert.NotNil(t, state.Report())
}

func TestCleanupStageRetention(t *testing.T) {
	root := t.TempDir()
	datasetDir := filepath.Join(root, "datasets")
	reportDir := filepath.Join(root, "reports")
	require.NoError(t, os.MkdirAll(datasetDir, 0o755))
	require.NoError(t, os.MkdirAll(reportDir, 0o755))

	base := time.Now().Add(-4 * time.Hour)
	names := []string{
		"canonical_daily_20250101_20250101_20250101T000000Z.csv",
		"canonical_daily_20250102_20250102_20250102T000000Z.csv",
		"canonical_daily_20250103_20250103_20250103T000000Z.csv",
		"canonical_daily_20250104_20250104_20250104T000000Z.csv",
	}
	for i, name := range names {
		path := filepath.Join(datasetDir, name)
		require.NoError(t, os.WriteFile(path, []byte("rows"), 0o644))
		mod := base.Add(time.Duration(i) * time.Hour)
		require.NoError(t, os.Chtimes(path, mod, mod))
	}
	stray := filepath.Join(reportDir, "quality_report_x.json.tmp")
	require.NoError(t, os.WriteFile(stray, []byte("partial"), 0o644))

	stage := NewCleanupStage(datasetDir, reportDir, 2, discardLogger())
	state := newTestState(t)
	require.NoError(t, stage.Run(context.Background(), state))

	// The two oldest datasets and the stray temp file go; the two newest stay.
	for _, name := range names[:2] {
		_, err := os.Stat(filepath.Join(datasetDir, name))
		assert.True(t, os.IsNotExist(err), "%s should be pruned", name)
	}
	for _, name := range names[2:] {
		assert.FileExists(t, filepath.Join(datasetDir, name))
	}
	_, err := os.Stat(stray)
	assert.True(t, os.IsNotExist(err))

	cleanupStage := state.Record().Stage(domain.StageCleanup)
	require.NotNil(t, cleanupStage)
	assert.Equal(t, "3", cleanupStage.Detail["removed_files"])
}

func TestNotifyStageDeliversSummary(t *testing.T) {
	notifier := &recordingNotifier{}
	stage := NewNotifyStage(notifier, discardLogger())

	state := newTestState(t)
	report := domain.QualityReport{
		RunID:        state.RunID(),
		Completeness: 0.87,
		Counts:       domain.IssueCounts{Warning: 2},
	}
	state.SetReport(&report, "")
	state.Finish(domain.RunSuccess, time.Now(), false, "")

	require.NoError(t, stage.Run(context.Background(), state))

	summary := notifier.last(t)
	assert.Equal(t, state.RunID(), summary.RunID)
	assert.Equal(t, domain.RunSuccess, summary.Status)
	assert.InDelta(t, 0.87, summary.Completeness, 1e-9)
	assert.Equal(t, 2, summary.Issues.Total())
}

func TestNotifyStageNormalizesFailure(t *testing.T) {
	notifier := &recordingNotifier{err: os.ErrPermission}
	stage := NewNotifyStage(notifier, discardLogger())
	state := newTestState(t)
	state.Finish(domain.RunFailed, time.Now(), false, "boom")

	err := stage.Run(context.Background(), state)
	require.Error(t, err)
	assert.Equal(t, ErrorTypeInternal, TypeOf(err))
}
