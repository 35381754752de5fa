package http

import (
	"errors"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	apierrors "fedflow/internal/errors"
	"fedflow/internal/quality"
	"fedflow/internal/services"
)

// QualityHandler serves the quality report artifacts written by completed
// runs.
type QualityHandler struct {
	service      *services.RunService
	errorHandler *apierrors.ErrorHandler
	logger       *slog.Logger
}

// NewQualityHandler creates the quality handler.
func NewQualityHandler(service *services.RunService, errorHandler *apierrors.ErrorHandler, logger *slog.Logger) *QualityHandler {
	if service == nil {
		panic("service cannot be nil")
	}
	if errorHandler == nil {
		panic("errorHandler cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &QualityHandler{
		service:      service,
		errorHandler: errorHandler,
		logger:       logger.With(slog.String("handler", "quality")),
	}
}

// Routes wires the quality endpoints onto a subrouter.
func (h *QualityHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/{runID}", h.GetReport)
	r.Get("/{runID}/workbook", h.GetWorkbook)
	return r
}

// GetReport handles GET /api/v1/quality/{runID}.
func (h *QualityHandler) GetReport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	runID := chi.URLParam(r, "runID")
	tracer := otel.Tracer("quality-handler")

	ctx, span := tracer.Start(ctx, "quality_handler.get_report",
		trace.WithAttributes(
			attribute.String("http.route", "/api/v1/quality/{runID}"),
			attribute.String("run.id", runID),
		),
	)
	defer span.End()

	record, err := h.service.Get(ctx, runID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "run lookup failed")
		h.errorHandler.HandleError(w, r, err)
		return
	}

	if record.ReportPath == "" {
		h.errorHandler.HandleError(w, r, apierrors.New(
			http.StatusNotFound, "REPORT_NOT_FOUND",
			"run "+runID+" produced no quality report"))
		return
	}

	report, err := quality.ReadReport(record.ReportPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			// Retention cleanup prunes artifacts of old runs while the
			// record survives.
			h.errorHandler.HandleError(w, r, apierrors.New(
				http.StatusNotFound, "REPORT_NOT_FOUND",
				"quality report for run "+runID+" is no longer on disk"))
			return
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "report read failed")
		h.errorHandler.HandleError(w, r, err)
		return
	}

	span.SetAttributes(attribute.Int("report.issues", len(report.Issues)))
	render.JSON(w, r, report)
}

// GetWorkbook handles GET /api/v1/quality/{runID}/workbook, streaming the
// Excel rendering when the run was configured to write one.
func (h *QualityHandler) GetWorkbook(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")

	record, err := h.service.Get(r.Context(), runID)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	if record.ReportPath == "" {
		h.errorHandler.HandleError(w, r, apierrors.New(
			http.StatusNotFound, "REPORT_NOT_FOUND",
			"run "+runID+" produced no quality report"))
		return
	}

	name := quality.WorkbookFileName(runID)
	path := filepath.Join(filepath.Dir(record.ReportPath), name)
	if _, err := os.Stat(path); err != nil {
		h.errorHandler.HandleError(w, r, apierrors.New(
			http.StatusNotFound, "WORKBOOK_NOT_FOUND",
			"no workbook artifact for run "+runID))
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	http.ServeFile(w, r, path)
}
