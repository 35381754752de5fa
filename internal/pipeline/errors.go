package pipeline

import (
	"context"
	"errors"
	"fmt"

	"fedflow/internal/source"
)

// ErrorType classifies a stage failure for containment and retry decisions.
type ErrorType string

const (
	// ErrorTypeSourceUnavailable means the upstream source could not be
	// reached. Transient by nature, so retryable.
	ErrorTypeSourceUnavailable ErrorType = "source_unavailable"
	// ErrorTypeData means the inputs were readable but wrong: corrupt
	// artifacts, unreadable rows. Retrying the same inputs cannot help.
	ErrorTypeData ErrorType = "data"
	// ErrorTypeArtifact means a produced artifact could not be written.
	ErrorTypeArtifact ErrorType = "artifact"
	ErrorTypeTimeout  ErrorType = "timeout"
	ErrorTypeCancel   ErrorType = "cancelled"
	ErrorTypeInternal ErrorType = "internal"
)

// StageError is the error every stage failure is normalized into before the
// containment policy runs.
type StageError struct {
	Type      ErrorType `json:"type"`
	Stage     string    `json:"stage"`
	Message   string    `json:"message"`
	Cause     error     `json:"-"`
	Retryable bool      `json:"retryable"`
}

func (e *StageError) Error() string {
	if e == nil {
		return "unknown stage error"
	}
	if e.Stage != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Type, e.Stage, e.Message)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

func (e *StageError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// NewStageError builds a non-retryable error of the given type.
func NewStageError(errType ErrorType, stage, message string, cause error) *StageError {
	return &StageError{
		Type:    errType,
		Stage:   stage,
		Message: message,
		Cause:   cause,
	}
}

// NewTimeoutError reports a stage exceeding its configured budget.
func NewTimeoutError(stage string, budget string) *StageError {
	return &StageError{
		Type:      ErrorTypeTimeout,
		Stage:     stage,
		Message:   fmt.Sprintf("stage exceeded timeout of %s", budget),
		Retryable: true,
	}
}

// NewCancelError reports a run stopped by its caller.
func NewCancelError(stage string, cause error) *StageError {
	return &StageError{
		Type:    ErrorTypeCancel,
		Stage:   stage,
		Message: "run cancelled",
		Cause:   cause,
	}
}

// Normalize maps an arbitrary stage failure into a StageError, classifying
// the well-known causes.
func Normalize(err error, stage string) *StageError {
	if err == nil {
		return nil
	}

	var stageErr *StageError
	if errors.As(err, &stageErr) {
		if stageErr.Stage == "" {
			stageErr.Stage = stage
		}
		return stageErr
	}

	var unavailable *source.UnavailableError
	if errors.As(err, &unavailable) {
		return &StageError{
			Type:      ErrorTypeSourceUnavailable,
			Stage:     stage,
			Message:   unavailable.Error(),
			Cause:     err,
			Retryable: true,
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return NewTimeoutError(stage, "configured budget")
	}
	if errors.Is(err, context.Canceled) {
		return NewCancelError(stage, err)
	}

	return &StageError{
		Type:    ErrorTypeInternal,
		Stage:   stage,
		Message: err.Error(),
		Cause:   err,
	}
}

// IsRetryable reports whether the orchestrator may re-attempt the stage.
func IsRetryable(err error) bool {
	var stageErr *StageError
	if errors.As(err, &stageErr) {
		return stageErr.Retryable
	}
	return false
}

// TypeOf extracts the error classification, defaulting to internal.
func TypeOf(err error) ErrorType {
	var stageErr *StageError
	if errors.As(err, &stageErr) {
		return stageErr.Type
	}
	return ErrorTypeInternal
}
