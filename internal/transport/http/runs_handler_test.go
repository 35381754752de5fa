package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	clocktesting "k8s.io/utils/clock/testing"

	apierrors "fedflow/internal/errors"
	"fedflow/internal/exporter"
	"fedflow/internal/notify"
	"fedflow/internal/pipeline"
	"fedflow/internal/quality"
	"fedflow/internal/runstore"
	"fedflow/internal/schema"
	"fedflow/internal/services"
	"fedflow/internal/source"
	"fedflow/internal/transform"
	"fedflow/internal/window"
	"fedflow/pkg/contracts/domain"
)

// handlerNow freezes the resolver clock for all handler tests.
var handlerNow = time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC)

type handlerHarness struct {
	runs    *services.RunService
	manager *pipeline.Manager
	store   runstore.Store
	errs    *apierrors.ErrorHandler
	logger  *slog.Logger
	router  chi.Router
	rootDir string
}

func newHandlerHarness(t *testing.T) *handlerHarness {
	t.Helper()
	root := t.TempDir()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	table, err := schema.NewTable([]schema.FieldSpec{
		{Header: domain.HeaderPIID, Source: "award_id_piid", Kind: domain.KindText, Required: true},
		{Header: domain.HeaderDateSigned, Source: "action_date", Kind: domain.KindDate},
		{Header: domain.HeaderDollarsObligated, Source: "federal_action_obligation", Kind: domain.KindDecimal},
	})
	require.NoError(t, err)

	store, err := runstore.NewFileStore(filepath.Join(root, "runs"))
	require.NoError(t, err)

	manager, err := pipeline.NewManager(pipeline.Deps{
		Provider:   &source.StaticProvider{},
		Table:      table,
		Engine:     transform.NewEngine(table, transform.Options{Workers: 2}, logger),
		Profiler:   quality.NewProfiler(table, 100),
		Exporter:   exporter.NewWriter(false, logger),
		Notifier:   notify.NewLogNotifier(logger),
		Store:      store,
		Logger:     logger,
		DatasetDir: filepath.Join(root, "datasets"),
		ReportDir:  filepath.Join(root, "reports"),
	}, nil)
	require.NoError(t, err)

	queue := pipeline.NewJobQueue(1, manager, logger)
	resolver := window.NewResolver(clocktesting.NewFakePassiveClock(handlerNow), 0)

	runs, err := services.NewRunService(queue, manager, store, resolver, logger)
	require.NoError(t, err)

	errs := apierrors.NewErrorHandler(logger, false)
	handler := NewRunsHandler(runs, errs, logger)

	return &handlerHarness{
		runs:    runs,
		manager: manager,
		store:   store,
		errs:    errs,
		logger:  logger,
		router:  handler.Routes(),
		rootDir: root,
	}
}

func (h *handlerHarness) do(t *testing.T, method, target string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), "body: %s", rec.Body.String())
	return body
}

func seedRun(t *testing.T, store runstore.Store, runID string, status domain.RunStatus) domain.RunRecord {
	t.Helper()
	record := domain.RunRecord{
		RunID:  runID,
		Mode:   domain.ModeDaily,
		Window: domain.Window{Start: handlerNow.AddDate(0, 0, -1), End: handlerNow.AddDate(0, 0, -1)},
		Status: status,
	}
	require.NoError(t, store.Save(context.Background(), record))
	return record
}

func TestTriggerRun(t *testing.T) {
	h := newHandlerHarness(t)

	rec := h.do(t, http.MethodPost, "/", map[string]interface{}{"mode": "daily"})

	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	body := decodeBody(t, rec)
	assert.NotEmpty(t, body["job_id"])
	assert.Equal(t, "pending", body["status"])
	assert.Equal(t, "daily", body["mode"])
	assert.Equal(t, "2026-08-24..2026-08-24", body["window"])
	assert.Equal(t, "/api/v1/runs/jobs/"+body["job_id"].(string), body["poll_url"])
}

func TestTriggerRun_InvalidMode(t *testing.T) {
	h := newHandlerHarness(t)

	rec := h.do(t, http.MethodPost, "/", map[string]interface{}{"mode": "hourly"})

	require.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeBody(t, rec)
	assert.Contains(t, body["detail"], "invalid mode")
}

func TestTriggerRun_MissingMode(t *testing.T) {
	h := newHandlerHarness(t)

	rec := h.do(t, http.MethodPost, "/", map[string]interface{}{"dry_run": true})

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTriggerRun_InvalidWindow(t *testing.T) {
	h := newHandlerHarness(t)

	// Reversed bounds pass Bind but fail window resolution.
	rec := h.do(t, http.MethodPost, "/", map[string]interface{}{
		"mode": "range",
		"from": "2026-08-07",
		"to":   "2026-08-01",
	})

	require.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "range", body["mode"])
	assert.NotEmpty(t, body["detail"])
}

func TestTriggerRun_QueueFull(t *testing.T) {
	h := newHandlerHarness(t)

	// Workers never started; the buffer takes two jobs.
	for i := 0; i < 2; i++ {
		rec := h.do(t, http.MethodPost, "/", map[string]interface{}{"mode": "daily"})
		require.Equal(t, http.StatusAccepted, rec.Code)
	}

	rec := h.do(t, http.MethodPost, "/", map[string]interface{}{"mode": "daily"})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestGetRun(t *testing.T) {
	h := newHandlerHarness(t)
	record := seedRun(t, h.store, "daily_20260824_20260824_20260824T060000Z", domain.RunSuccess)

	rec := h.do(t, http.MethodGet, "/"+record.RunID, nil)

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, record.RunID, body["run_id"])
	assert.Equal(t, "SUCCESS", body["status"])
}

func TestGetRun_NotFound(t *testing.T) {
	h := newHandlerHarness(t)

	rec := h.do(t, http.MethodGet, "/daily_20260101_20260101_20260101T000000Z", nil)

	require.Equal(t, http.StatusNotFound, rec.Code)
	body := decodeBody(t, rec)
	assert.EqualValues(t, http.StatusNotFound, body["status"])
}

func TestListRuns(t *testing.T) {
	h := newHandlerHarness(t)
	seedRun(t, h.store, "daily_20260822_20260822_20260822T060000Z", domain.RunSuccess)
	seedRun(t, h.store, "daily_20260823_20260823_20260823T060000Z", domain.RunFailed)

	rec := h.do(t, http.MethodGet, "/", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.EqualValues(t, 2, body["count"])

	rec = h.do(t, http.MethodGet, "/?limit=1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, decodeBody(t, rec)["count"])
}

func TestListRuns_InvalidLimit(t *testing.T) {
	h := newHandlerHarness(t)

	rec := h.do(t, http.MethodGet, "/?limit=abc", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.do(t, http.MethodGet, "/?limit=100000", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestActiveRuns_Empty(t *testing.T) {
	h := newHandlerHarness(t)

	rec := h.do(t, http.MethodGet, "/active", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 0, decodeBody(t, rec)["count"])
}

func TestDeleteRun(t *testing.T) {
	h := newHandlerHarness(t)
	record := seedRun(t, h.store, "daily_20260824_20260824_20260824T060000Z", domain.RunSuccess)

	rec := h.do(t, http.MethodDelete, "/"+record.RunID, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = h.do(t, http.MethodDelete, "/"+record.RunID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestJobLifecycle(t *testing.T) {
	h := newHandlerHarness(t)

	rec := h.do(t, http.MethodPost, "/", map[string]interface{}{"mode": "weekly"})
	require.Equal(t, http.StatusAccepted, rec.Code)
	jobID := decodeBody(t, rec)["job_id"].(string)

	rec = h.do(t, http.MethodGet, "/jobs/"+jobID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, jobID, body["id"])
	assert.Equal(t, "pending", body["status"])
	assert.Equal(t, "weekly", body["mode"])

	rec = h.do(t, http.MethodPost, "/jobs/"+jobID+"/cancel", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = h.do(t, http.MethodGet, "/jobs/"+jobID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "cancelled", decodeBody(t, rec)["status"])

	// A cancelled job cannot be cancelled again.
	rec = h.do(t, http.MethodPost, "/jobs/"+jobID+"/cancel", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestGetJob_NotFound(t *testing.T) {
	h := newHandlerHarness(t)

	rec := h.do(t, http.MethodGet, "/jobs/unknown", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListJobs_Filtered(t *testing.T) {
	h := newHandlerHarness(t)

	rec := h.do(t, http.MethodPost, "/", map[string]interface{}{"mode": "daily"})
	require.Equal(t, http.StatusAccepted, rec.Code)
	rec = h.do(t, http.MethodPost, "/", map[string]interface{}{"mode": "weekly"})
	require.Equal(t, http.StatusAccepted, rec.Code)

	rec = h.do(t, http.MethodGet, "/jobs?mode=weekly", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.EqualValues(t, 1, body["count"])

	rec = h.do(t, http.MethodGet, "/jobs?status=nonsense", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
