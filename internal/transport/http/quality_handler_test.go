package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fedflow/internal/quality"
	"fedflow/pkg/contracts/domain"
)

func writeQualityReport(t *testing.T, dir, runID string) string {
	t.Helper()
	report := domain.QualityReport{
		RunID:       runID,
		GeneratedAt: handlerNow,
		RowCount:    120,
		RawRowCount: 125,
		Issues: []domain.Issue{
			{Column: domain.HeaderDollarsObligated, Severity: domain.SeverityError, Message: "3 value(s) outside plausible range", Rows: 3},
		},
		Counts: domain.IssueCounts{Error: 1},
	}
	path, err := quality.WriteReport(dir, report)
	require.NoError(t, err)
	return path
}

func TestGetQualityReport(t *testing.T) {
	h := newHandlerHarness(t)
	router := NewQualityHandler(h.runs, h.errs, h.logger).Routes()

	runID := "daily_20260824_20260824_20260824T060000Z"
	record := seedRun(t, h.store, runID, domain.RunSuccess)
	record.ReportPath = writeQualityReport(t, filepath.Join(h.rootDir, "reports"), runID)
	require.NoError(t, h.store.Save(context.Background(), record))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/"+runID, nil))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var report domain.QualityReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, runID, report.RunID)
	assert.EqualValues(t, 120, report.RowCount)
	require.Len(t, report.Issues, 1)
	assert.Equal(t, domain.SeverityError, report.Issues[0].Severity)
}

func TestGetQualityReport_UnknownRun(t *testing.T) {
	h := newHandlerHarness(t)
	router := NewQualityHandler(h.runs, h.errs, h.logger).Routes()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/daily_20260101_20260101_20260101T000000Z", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetQualityReport_NoReport(t *testing.T) {
	h := newHandlerHarness(t)
	router := NewQualityHandler(h.runs, h.errs, h.logger).Routes()

	// A dry run persists its record without artifacts.
	record := seedRun(t, h.store, "daily_20260824_20260824_20260824T060000Z", domain.RunSuccess)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/"+record.RunID, nil))

	require.Equal(t, http.StatusNotFound, rec.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Contains(t, body["detail"], "no quality report")
}

func TestGetQualityReport_ArtifactPruned(t *testing.T) {
	h := newHandlerHarness(t)
	router := NewQualityHandler(h.runs, h.errs, h.logger).Routes()

	runID := "daily_20260820_20260820_20260820T060000Z"
	record := seedRun(t, h.store, runID, domain.RunSuccess)
	record.ReportPath = filepath.Join(h.rootDir, "reports", quality.ReportFileName(runID))
	require.NoError(t, h.store.Save(context.Background(), record))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/"+runID, nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetWorkbook(t *testing.T) {
	h := newHandlerHarness(t)
	router := NewQualityHandler(h.runs, h.errs, h.logger).Routes()

	runID := "daily_20260824_20260824_20260824T060000Z"
	record := seedRun(t, h.store, runID, domain.RunSuccess)
	reportDir := filepath.Join(h.rootDir, "reports")
	record.ReportPath = writeQualityReport(t, reportDir, runID)
	require.NoError(t, h.store.Save(context.Background(), record))

	// Workbook absent: 404.
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/"+runID+"/workbook", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	workbook := filepath.Join(reportDir, quality.WorkbookFileName(runID))
	require.NoError(t, os.WriteFile(workbook, []byte("xlsx-bytes"), 0o644))

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/"+runID+"/workbook", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), quality.WorkbookFileName(runID))
	assert.Equal(t, "xlsx-bytes", rec.Body.String())
}
