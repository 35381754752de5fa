package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"k8s.io/utils/clock"

	"fedflow/internal/exporter"
	"fedflow/internal/notify"
	"fedflow/internal/quality"
	"fedflow/internal/schema"
	"fedflow/internal/source"
	"fedflow/internal/transform"
	"fedflow/pkg/contracts/domain"
)

// DownloadStage resolves the window to a set of raw artifacts.
type DownloadStage struct {
	provider source.Provider
	logger   *slog.Logger
}

func NewDownloadStage(provider source.Provider, logger *slog.Logger) *DownloadStage {
	if logger == nil {
		logger = slog.Default()
	}
	return &DownloadStage{provider: provider, logger: logger}
}

func (s *DownloadStage) Name() string { return domain.StageDownload }

func (s *DownloadStage) Run(ctx context.Context, state *RunState) error {
	artifacts, err := s.provider.Fetch(ctx, state.Window())
	if err != nil {
		return Normalize(err, s.Name())
	}

	var bytes, rows int64
	for _, a := range artifacts {
		bytes += a.Size
		rows += a.Rows
	}
	state.SetArtifacts(artifacts)
	state.SetStageDetail(s.Name(), map[string]string{
		"artifacts": strconv.Itoa(len(artifacts)),
		"bytes":     strconv.FormatInt(bytes, 10),
		"rows":      strconv.FormatInt(rows, 10),
	})

	s.logger.InfoContext(ctx, "download_completed",
		slog.String("run_id", state.RunID()),
		slog.Int("artifacts", len(artifacts)),
		slog.Int64("bytes", bytes),
		slog.Int64("rows", rows))
	return nil
}

// TransformStage reads the artifacts, runs the canonicalization engine, and
// exports the dataset.
type TransformStage struct {
	table      *schema.Table
	engine     *transform.Engine
	writer     *exporter.Writer
	datasetDir string
	logger     *slog.Logger
}

func NewTransformStage(table *schema.Table, engine *transform.Engine, writer *exporter.Writer, datasetDir string, logger *slog.Logger) *TransformStage {
	if logger == nil {
		logger = slog.Default()
	}
	return &TransformStage{
		table:      table,
		engine:     engine,
		writer:     writer,
		datasetDir: datasetDir,
		logger:     logger,
	}
}

func (s *TransformStage) Name() string { return domain.StageTransform }

func (s *TransformStage) Run(ctx context.Context, state *RunState) error {
	raws, err := source.ReadRows(ctx, state.Artifacts())
	if err != nil {
		if ctx.Err() != nil {
			return Normalize(ctx.Err(), s.Name())
		}
		return NewStageError(ErrorTypeData, s.Name(), "read raw artifacts", err)
	}

	result, err := s.engine.Run(ctx, raws)
	if err != nil {
		return Normalize(err, s.Name())
	}
	state.SetTransformResult(result)
	state.SetStageDetail(s.Name(), map[string]string{
		"raw_rows":       strconv.FormatInt(result.RawRows, 10),
		"output_rows":    strconv.Itoa(len(result.Records)),
		"duplicate_rows": strconv.FormatInt(result.Duplicates.RowsRemoved, 10),
		"flagged_rows":   strconv.FormatInt(result.FlaggedRows, 10),
	})

	path, err := s.writer.WriteDataset(ctx, s.datasetDir, state.RunID(), s.table, result.Records)
	if err != nil {
		if ctx.Err() != nil {
			return Normalize(ctx.Err(), s.Name())
		}
		return NewStageError(ErrorTypeArtifact, s.Name(), "write canonical dataset", err)
	}
	state.SetDatasetPath(path)
	return nil
}

// QualityStage profiles the canonical dataset and persists the report.
type QualityStage struct {
	profiler  *quality.Profiler
	reportDir string
	workbook  bool
	clock     clock.PassiveClock
	logger    *slog.Logger
}

func NewQualityStage(profiler *quality.Profiler, reportDir string, workbook bool, clk clock.PassiveClock, logger *slog.Logger) *QualityStage {
	if clk == nil {
		clk = clock.RealClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &QualityStage{
		profiler:  profiler,
		reportDir: reportDir,
		workbook:  workbook,
		clock:     clk,
		logger:    logger,
	}
}

func (s *QualityStage) Name() string { return domain.StageQuality }

func (s *QualityStage) Run(ctx context.Context, state *RunState) error {
	result := state.TransformResult()
	if result == nil {
		return NewStageError(ErrorTypeData, s.Name(), "no transform output to profile", nil)
	}

	report := s.profiler.Profile(state.RunID(), s.clock.Now(), result.Records, result)

	path, err := quality.WriteReport(s.reportDir, report)
	if err != nil {
		return NewStageError(ErrorTypeArtifact, s.Name(), "write quality report", err)
	}
	if s.workbook {
		if _, err := quality.WriteWorkbook(s.reportDir, report); err != nil {
			return NewStageError(ErrorTypeArtifact, s.Name(), "write quality workbook", err)
		}
	}
	state.SetReport(&report, path)
	state.SetStageDetail(s.Name(), map[string]string{
		"completeness":    strconv.FormatFloat(report.Completeness, 'f', 4, 64),
		"issues":          strconv.Itoa(report.Counts.Total()),
		"critical_issues": strconv.Itoa(report.Counts.Critical),
		"error_issues":    strconv.Itoa(report.Counts.Error),
		"warning_issues":  strconv.Itoa(report.Counts.Warning),
	})

	s.logger.InfoContext(ctx, "quality_profiled",
		slog.String("run_id", state.RunID()),
		slog.Float64("completeness", report.Completeness),
		slog.Int("issues", report.Counts.Total()))
	return nil
}

// CleanupStage removes stray temp files and prunes artifacts beyond the
// retention horizon.
type CleanupStage struct {
	datasetDir string
	reportDir  string
	keepRuns   int
	logger     *slog.Logger
}

func NewCleanupStage(datasetDir, reportDir string, keepRuns int, logger *slog.Logger) *CleanupStage {
	if keepRuns <= 0 {
		keepRuns = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CleanupStage{
		datasetDir: datasetDir,
		reportDir:  reportDir,
		keepRuns:   keepRuns,
		logger:     logger,
	}
}

func (s *CleanupStage) Name() string { return domain.StageCleanup }

func (s *CleanupStage) Run(ctx context.Context, state *RunState) error {
	groups := []struct {
		dir    string
		prefix string
		suffix string
	}{
		{s.datasetDir, "canonical_", ".csv"},
		{s.reportDir, "quality_report_", ".json"},
		{s.reportDir, "quality_report_", ".xlsx"},
	}

	var removed int
	var firstErr error
	for _, g := range groups {
		if err := ctx.Err(); err != nil {
			return Normalize(err, s.Name())
		}
		n, err := s.prune(g.dir, g.prefix, g.suffix)
		removed += n
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	for _, dir := range []string{s.datasetDir, s.reportDir} {
		n, err := removeStrayTemp(dir)
		removed += n
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	if firstErr != nil {
		return NewStageError(ErrorTypeArtifact, s.Name(), "prune artifacts", firstErr)
	}

	state.SetStageDetail(s.Name(), map[string]string{"removed_files": strconv.Itoa(removed)})
	s.logger.InfoContext(ctx, "cleanup_completed",
		slog.String("run_id", state.RunID()),
		slog.Int("removed_files", removed))
	return nil
}

// prune keeps the newest keepRuns files of one artifact family and removes
// the rest.
func (s *CleanupStage) prune(dir, prefix, suffix string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("scan %s: %w", dir, err)
	}

	type candidate struct {
		path string
		mod  int64
	}
	var candidates []candidate
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, suffix) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		candidates = append(candidates, candidate{
			path: filepath.Join(dir, name),
			mod:  info.ModTime().UnixNano(),
		})
	}

	sort.Slice(candidates, func(i, j int) bool { return candidates[i].mod > candidates[j].mod })

	removed := 0
	var firstErr error
	for i := s.keepRuns; i < len(candidates); i++ {
		if err := os.Remove(candidates[i].path); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		removed++
	}
	return removed, firstErr
}

func removeStrayTemp(dir string) (int, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*.tmp"))
	if err != nil {
		return 0, err
	}
	removed := 0
	var firstErr error
	for _, path := range matches {
		if err := os.Remove(path); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		removed++
	}
	return removed, firstErr
}

// NotifyStage publishes the run outcome. It runs even for failed runs so
// operators hear about failures from the pipeline itself.
type NotifyStage struct {
	notifier notify.Notifier
	logger   *slog.Logger
}

func NewNotifyStage(notifier notify.Notifier, logger *slog.Logger) *NotifyStage {
	if logger == nil {
		logger = slog.Default()
	}
	return &NotifyStage{notifier: notifier, logger: logger}
}

func (s *NotifyStage) Name() string { return domain.StageNotify }

func (s *NotifyStage) Run(ctx context.Context, state *RunState) error {
	summary := notify.NewSummary(state.Record(), state.Report())
	if err := s.notifier.Notify(ctx, summary); err != nil {
		return Normalize(err, s.Name())
	}
	return nil
}
