package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	apierrors "fedflow/internal/errors"
	"fedflow/internal/middleware"
	"fedflow/internal/pipeline"
	"fedflow/internal/services"
	v1 "fedflow/pkg/contracts/api/v1"
	"fedflow/pkg/contracts/domain"
)

// RunsHandler exposes the run lifecycle API: triggering, history, and the
// async job queue behind POST.
type RunsHandler struct {
	service      *services.RunService
	errorHandler *apierrors.ErrorHandler
	query        *middleware.QueryParamValidator
	logger       *slog.Logger
}

// NewRunsHandler creates the runs handler.
func NewRunsHandler(service *services.RunService, errorHandler *apierrors.ErrorHandler, logger *slog.Logger) *RunsHandler {
	if service == nil {
		panic("service cannot be nil")
	}
	if errorHandler == nil {
		panic("errorHandler cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &RunsHandler{
		service:      service,
		errorHandler: errorHandler,
		query:        middleware.NewQueryParamValidator(logger, errorHandler),
		logger:       logger.With(slog.String("handler", "runs")),
	}
}

// Routes wires the run endpoints onto a subrouter.
func (h *RunsHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Timeout(60*time.Second, h.logger))

	r.Post("/", h.TriggerRun)
	r.Get("/", h.ListRuns)
	r.Get("/active", h.ActiveRuns)

	r.Get("/jobs", h.ListJobs)
	r.Get("/jobs/{jobID}", h.GetJob)
	r.Post("/jobs/{jobID}/cancel", h.CancelJob)

	r.Get("/{runID}", h.GetRun)
	r.Delete("/{runID}", h.DeleteRun)

	return r
}

// TriggerRun handles POST /api/v1/runs. The run executes asynchronously; the
// response carries the job id to poll for the run record.
func (h *RunsHandler) TriggerRun(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	reqID := middleware.GetRequestID(ctx)
	tracer := otel.Tracer("runs-handler")

	ctx, span := tracer.Start(ctx, "runs_handler.trigger",
		trace.WithAttributes(
			attribute.String("http.method", r.Method),
			attribute.String("http.route", "/api/v1/runs"),
			attribute.String("request_id", reqID),
		),
	)
	defer span.End()

	req := &v1.TriggerRunRequest{}
	if err := render.Bind(r, req); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid trigger request")
		h.errorHandler.HandleError(w, r, apierrors.New(
			http.StatusBadRequest, "VALIDATION_FAILED", err.Error()))
		return
	}

	// Bind already validated the date shape.
	start, end, _ := req.Dates()

	h.logger.DebugContext(ctx, "run trigger request",
		slog.String("mode", req.Mode),
		slog.Bool("dry_run", req.DryRun),
		slog.String("request_id", reqID))

	job, err := h.service.Trigger(ctx, services.TriggerParams{
		Mode:         domain.Mode(req.Mode),
		Start:        start,
		End:          end,
		BackfillDays: req.BackfillDays,
		DryRun:       req.DryRun,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "trigger rejected")
		h.errorHandler.HandleError(w, r, err)
		return
	}

	span.SetAttributes(
		attribute.String("job.id", job.ID),
		attribute.String("run.mode", req.Mode),
		attribute.String("run.window", job.Request.Window.String()),
	)

	render.Status(r, http.StatusAccepted)
	render.JSON(w, r, map[string]interface{}{
		"job_id":   job.ID,
		"status":   string(job.Status),
		"mode":     req.Mode,
		"window":   job.Request.Window.String(),
		"dry_run":  req.DryRun,
		"message":  "Run queued for execution",
		"poll_url": "/api/v1/runs/jobs/" + job.ID,
	})
}

// ListRuns handles GET /api/v1/runs.
func (h *RunsHandler) ListRuns(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	limit, ok := h.query.ValidateInt(w, r, "limit", 1, 1000, 50)
	if !ok {
		return
	}

	listCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	records, err := h.service.List(listCtx, limit)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	render.JSON(w, r, map[string]interface{}{
		"runs":  records,
		"count": len(records),
	})
}

// ActiveRuns handles GET /api/v1/runs/active.
func (h *RunsHandler) ActiveRuns(w http.ResponseWriter, r *http.Request) {
	active := h.service.Active()
	render.JSON(w, r, map[string]interface{}{
		"active": active,
		"count":  len(active),
	})
}

// GetRun handles GET /api/v1/runs/{runID}.
func (h *RunsHandler) GetRun(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	runID := chi.URLParam(r, "runID")
	tracer := otel.Tracer("runs-handler")

	ctx, span := tracer.Start(ctx, "runs_handler.get_run",
		trace.WithAttributes(
			attribute.String("http.route", "/api/v1/runs/{runID}"),
			attribute.String("run.id", runID),
		),
	)
	defer span.End()

	getCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	record, err := h.service.Get(getCtx, runID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "run lookup failed")
		h.errorHandler.HandleError(w, r, err)
		return
	}

	span.SetAttributes(attribute.String("run.status", string(record.Status)))
	render.JSON(w, r, record)
}

// DeleteRun handles DELETE /api/v1/runs/{runID}.
func (h *RunsHandler) DeleteRun(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	runID := chi.URLParam(r, "runID")

	deleteCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := h.service.Delete(deleteCtx, runID); err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	render.NoContent(w, r)
}

// GetJob handles GET /api/v1/runs/jobs/{jobID}.
func (h *RunsHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")

	job, err := h.service.Job(r.Context(), jobID)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	render.JSON(w, r, jobResponse(job))
}

// ListJobs handles GET /api/v1/runs/jobs.
func (h *RunsHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	status, ok := h.query.ValidateEnum(w, r, "status", []string{
		"pending", "running", "completed", "failed", "cancelled",
	}, "")
	if !ok {
		return
	}
	mode, ok := h.query.ValidateEnum(w, r, "mode", []string{
		"daily", "weekly", "monthly", "backfill", "range",
	}, "")
	if !ok {
		return
	}
	since, ok := h.query.ValidateDate(w, r, "since")
	if !ok {
		return
	}
	limit, ok := h.query.ValidateInt(w, r, "limit", 1, 1000, 100)
	if !ok {
		return
	}

	jobs := h.service.Jobs(r.Context(), pipeline.JobFilter{
		Status: pipeline.JobStatus(status),
		Mode:   domain.Mode(mode),
		Since:  since,
		Limit:  limit,
	})

	responses := make([]map[string]interface{}, 0, len(jobs))
	for _, job := range jobs {
		responses = append(responses, jobResponse(job))
	}

	render.JSON(w, r, map[string]interface{}{
		"jobs":  responses,
		"count": len(responses),
	})
}

// CancelJob handles POST /api/v1/runs/jobs/{jobID}/cancel. Cancelling a
// running job stops the run at the next stage boundary.
func (h *RunsHandler) CancelJob(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	jobID := chi.URLParam(r, "jobID")

	if err := h.service.CancelJob(ctx, jobID); err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	render.JSON(w, r, map[string]interface{}{
		"job_id":  jobID,
		"message": "Cancellation requested",
	})
}

func jobResponse(job *pipeline.Job) map[string]interface{} {
	response := map[string]interface{}{
		"id":         job.ID,
		"status":     string(job.Status),
		"mode":       string(job.Request.Mode),
		"window":     job.Request.Window.String(),
		"dry_run":    job.Request.DryRun,
		"created_at": job.CreatedAt,
	}
	if job.StartedAt != nil {
		response["started_at"] = job.StartedAt
	}
	if job.CompletedAt != nil {
		response["completed_at"] = job.CompletedAt
	}
	if job.RunID != "" {
		response["run_id"] = job.RunID
		response["run_status"] = string(job.RunStatus)
		response["run_url"] = "/api/v1/runs/" + job.RunID
	}
	if job.Error != "" {
		response["error"] = job.Error
	}
	return response
}
