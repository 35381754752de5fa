package pipeline

import (
	"time"

	"fedflow/pkg/contracts/domain"
)

// Default stage timeouts. Transform dominates because it reads and reshapes
// every row; notify only serializes a summary.
const (
	DefaultStageTimeout     = 30 * time.Minute
	DefaultDownloadTimeout  = 15 * time.Minute
	DefaultTransformTimeout = 30 * time.Minute
	DefaultQualityTimeout   = 10 * time.Minute
	DefaultCleanupTimeout   = 5 * time.Minute
	DefaultNotifyTimeout    = 2 * time.Minute
)

// RetryConfig bounds re-attempts of a retryable stage failure.
type RetryConfig struct {
	MaxAttempts  int           `json:"max_attempts"`
	InitialDelay time.Duration `json:"initial_delay"`
	MaxDelay     time.Duration `json:"max_delay"`
	Multiplier   float64       `json:"multiplier"`
}

// NewRetryConfig returns the default retry configuration.
func NewRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:  3,
		InitialDelay: 1 * time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
	}
}

// Delay returns the backoff before the given attempt (1-based).
func (r RetryConfig) Delay(attempt int) time.Duration {
	delay := r.InitialDelay
	for i := 1; i < attempt; i++ {
		delay = time.Duration(float64(delay) * r.Multiplier)
		if delay >= r.MaxDelay {
			return r.MaxDelay
		}
	}
	if delay > r.MaxDelay {
		return r.MaxDelay
	}
	return delay
}

// Config is the orchestrator's execution policy.
type Config struct {
	StageTimeouts map[string]time.Duration `json:"stage_timeouts"`
	Retry         RetryConfig              `json:"retry"`
	// KeepRuns is how many past runs' artifacts cleanup retains per kind.
	KeepRuns int `json:"keep_runs"`
	// WriteWorkbook also renders the quality report as an Excel workbook.
	WriteWorkbook bool `json:"write_workbook"`
}

// NewConfig returns the default orchestration policy.
func NewConfig() *Config {
	return &Config{
		StageTimeouts: map[string]time.Duration{
			domain.StageDownload:  DefaultDownloadTimeout,
			domain.StageTransform: DefaultTransformTimeout,
			domain.StageQuality:   DefaultQualityTimeout,
			domain.StageCleanup:   DefaultCleanupTimeout,
			domain.StageNotify:    DefaultNotifyTimeout,
		},
		Retry:    NewRetryConfig(),
		KeepRuns: 30,
	}
}

// StageTimeout returns the budget for the named stage.
func (c *Config) StageTimeout(stage string) time.Duration {
	if timeout, ok := c.StageTimeouts[stage]; ok && timeout > 0 {
		return timeout
	}
	return DefaultStageTimeout
}

// SetStageTimeout overrides the budget for one stage.
func (c *Config) SetStageTimeout(stage string, timeout time.Duration) {
	if c.StageTimeouts == nil {
		c.StageTimeouts = make(map[string]time.Duration)
	}
	c.StageTimeouts[stage] = timeout
}
