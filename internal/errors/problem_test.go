package errors

import (
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProblemDetailsMarshalJSON(t *testing.T) {
	problem := NewProblemDetails(
		http.StatusNotFound,
		TypeRunNotFound,
		"Run Not Found",
		"run 20250708-143000-a1b2c3 not found",
		"/api/v1/runs/20250708-143000-a1b2c3",
	).WithExtension("trace_id", "trace-9")

	data, err := json.Marshal(problem)
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &decoded))

	assert.Equal(t, TypeRunNotFound, decoded["type"])
	assert.Equal(t, "Run Not Found", decoded["title"])
	assert.Equal(t, float64(http.StatusNotFound), decoded["status"])
	assert.Equal(t, "run 20250708-143000-a1b2c3 not found", decoded["detail"])
	assert.Equal(t, "/api/v1/runs/20250708-143000-a1b2c3", decoded["instance"])
	assert.Equal(t, "trace-9", decoded["trace_id"])
}

func TestProblemDetailsOmitsEmptyFields(t *testing.T) {
	problem := NewProblemDetails(http.StatusInternalServerError, TypeInternal, "Internal Server Error", "", "")

	data, err := json.Marshal(problem)
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &decoded))

	_, hasDetail := decoded["detail"]
	_, hasInstance := decoded["instance"]
	assert.False(t, hasDetail)
	assert.False(t, hasInstance)
}

func TestNewRunConflictError(t *testing.T) {
	started := time.Date(2025, 7, 8, 14, 30, 0, 0, time.UTC)
	details := &RunConflictDetails{
		ActiveRunID: "20250708-143000-a1b2c3",
		Mode:        "daily",
		StartedAt:   &started,
	}

	problem := NewRunConflictError(details, "trace-42")

	assert.Equal(t, http.StatusConflict, problem.Status)
	assert.Equal(t, TypeRunActive, problem.Type)
	assert.Equal(t, "run_active", problem.Extensions["error_type"])
	assert.Equal(t, "trace-42", problem.Extensions["trace_id"])

	conflict, ok := problem.Extensions["conflict"].(*RunConflictDetails)
	require.True(t, ok)
	assert.Equal(t, "20250708-143000-a1b2c3", conflict.ActiveRunID)
}

func TestNewRunConflictErrorWithoutDetails(t *testing.T) {
	problem := NewRunConflictError(nil, "trace-1")

	assert.Equal(t, http.StatusConflict, problem.Status)
	_, hasConflict := problem.Extensions["conflict"]
	assert.False(t, hasConflict)
}

func TestNewInvalidWindowProblem(t *testing.T) {
	problem := NewInvalidWindowProblem("range", "end precedes start", "trace-7")

	assert.Equal(t, http.StatusBadRequest, problem.Status)
	assert.Equal(t, TypeWindow, problem.Type)
	assert.Equal(t, "end precedes start", problem.Detail)
	assert.Equal(t, "range", problem.Extensions["mode"])
	assert.Equal(t, "invalid_window", problem.Extensions["error_type"])
}
