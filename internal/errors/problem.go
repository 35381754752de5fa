package errors

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/render"
)

// ProblemDetails implements RFC 7807 Problem Details for HTTP APIs
type ProblemDetails struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`

	// Additional fields for extensibility
	Extensions map[string]interface{} `json:"-"`
}

// Render implements the render.Renderer interface
func (pd *ProblemDetails) Render(w http.ResponseWriter, r *http.Request) error {
	render.Status(r, pd.Status)
	return nil
}

// MarshalJSON custom marshaler to include extensions
func (pd *ProblemDetails) MarshalJSON() ([]byte, error) {
	data := make(map[string]interface{})

	data["type"] = pd.Type
	data["title"] = pd.Title
	data["status"] = pd.Status

	if pd.Detail != "" {
		data["detail"] = pd.Detail
	}
	if pd.Instance != "" {
		data["instance"] = pd.Instance
	}

	for key, value := range pd.Extensions {
		data[key] = value
	}

	return json.Marshal(data)
}

// NewProblemDetails creates a new RFC 7807 problem details response
func NewProblemDetails(status int, problemType, title, detail, instance string) *ProblemDetails {
	return &ProblemDetails{
		Type:       problemType,
		Title:      title,
		Status:     status,
		Detail:     detail,
		Instance:   instance,
		Extensions: make(map[string]interface{}),
	}
}

// WithExtension adds an extension field to the problem details
func (pd *ProblemDetails) WithExtension(key string, value interface{}) *ProblemDetails {
	pd.Extensions[key] = value
	return pd
}

// RunConflictDetails provides context for a rejected run trigger while
// another run holds the pipeline.
type RunConflictDetails struct {
	ActiveRunID string     `json:"active_run_id,omitempty"`
	Mode        string     `json:"mode,omitempty"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
}

// NewRunConflictError creates a 409 problem for a trigger that collided
// with an executing run.
func NewRunConflictError(details *RunConflictDetails, traceID string) *ProblemDetails {
	problem := NewProblemDetails(
		http.StatusConflict,
		TypeRunActive,
		"Run Already Executing",
		"Another run is currently executing. Wait for it to finish or cancel it first.",
		fmt.Sprintf("/api/v1/runs#%s", traceID),
	)

	problem.WithExtension("error_type", "run_active").
		WithExtension("trace_id", traceID)

	if details != nil {
		problem.WithExtension("conflict", details)
	}

	return problem
}

// NewInvalidWindowProblem creates a 400 problem for an unusable date window.
func NewInvalidWindowProblem(mode, reason, traceID string) *ProblemDetails {
	problem := NewProblemDetails(
		http.StatusBadRequest,
		TypeWindow,
		"Invalid Date Window",
		reason,
		fmt.Sprintf("/api/v1/runs#%s", traceID),
	)

	problem.WithExtension("error_type", "invalid_window").
		WithExtension("mode", mode).
		WithExtension("trace_id", traceID)

	return problem
}
