package services

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"time"

	"fedflow/internal/pipeline"
	"fedflow/internal/runstore"
	"fedflow/internal/websocket"
)

// HealthService reports process health for the operational API. Readiness
// exercises the run store and the source directory because a serve process
// that cannot reach either will fail every triggered run.
type HealthService struct {
	version   string
	store     runstore.Store
	sourceDir string
	hub       *websocket.Hub
	manager   *pipeline.Manager
	config    ConfigSummary
	startTime time.Time
	logger    *slog.Logger
}

// ConfigSummary is the operator-safe slice of the effective configuration
// echoed by the health endpoint.
type ConfigSummary struct {
	SourceDir    string `json:"source_dir"`
	DataDir      string `json:"data_dir"`
	StoreBackend string `json:"store_backend"`
	Workers      int    `json:"workers"`
	KeepRuns     int    `json:"keep_runs"`
	Scheduler    bool   `json:"scheduler_enabled"`
}

// HealthStatus is the health endpoint response shape.
type HealthStatus struct {
	Status    string                   `json:"status"`
	Timestamp time.Time                `json:"timestamp"`
	Version   string                   `json:"version"`
	Uptime    string                   `json:"uptime,omitempty"`
	Runtime   map[string]interface{}   `json:"runtime,omitempty"`
	Services  map[string]ServiceHealth `json:"services,omitempty"`
	Config    *ConfigSummary           `json:"config,omitempty"`
}

// ServiceHealth is one dependency's contribution to readiness.
type ServiceHealth struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// NewHealthService wires the health surface.
func NewHealthService(version string, store runstore.Store, sourceDir string, hub *websocket.Hub, manager *pipeline.Manager, config ConfigSummary, logger *slog.Logger) *HealthService {
	if logger == nil {
		logger = slog.Default()
	}

	return &HealthService{
		version:   version,
		store:     store,
		sourceDir: sourceDir,
		hub:       hub,
		manager:   manager,
		config:    config,
		startTime: time.Now(),
		logger:    logger.With(slog.String("component", "health_service")),
	}
}

// Health returns the liveness summary with the config echo.
func (hs *HealthService) Health(ctx context.Context) HealthStatus {
	config := hs.config
	return HealthStatus{
		Status:    "ok",
		Timestamp: time.Now().UTC(),
		Version:   hs.version,
		Uptime:    time.Since(hs.startTime).Round(time.Second).String(),
		Config:    &config,
	}
}

// Liveness reports process vitals only; it never touches dependencies.
func (hs *HealthService) Liveness(ctx context.Context) HealthStatus {
	return HealthStatus{
		Status:    "alive",
		Timestamp: time.Now().UTC(),
		Version:   hs.version,
		Runtime: map[string]interface{}{
			"uptime_seconds": time.Since(hs.startTime).Seconds(),
			"go_version":     runtime.Version(),
			"goroutines":     runtime.NumGoroutine(),
		},
	}
}

// Readiness checks every dependency a run needs. Any failing check flips the
// overall status to not_ready.
func (hs *HealthService) Readiness(ctx context.Context) HealthStatus {
	status := HealthStatus{
		Status:    "ready",
		Timestamp: time.Now().UTC(),
		Version:   hs.version,
		Services:  make(map[string]ServiceHealth),
	}

	status.Services["store"] = hs.checkStore(ctx)
	status.Services["source"] = hs.checkSource()
	status.Services["pipeline"] = hs.checkPipeline()
	status.Services["websocket"] = hs.checkWebSocket()

	for _, service := range status.Services {
		if service.Status != "ready" {
			status.Status = "not_ready"
			break
		}
	}

	if status.Status != "ready" {
		hs.logger.WarnContext(ctx, "readiness_degraded",
			slog.Any("services", status.Services))
	}
	return status
}

func (hs *HealthService) checkStore(ctx context.Context) ServiceHealth {
	if hs.store == nil {
		return ServiceHealth{Status: "not_ready", Message: "run store not configured"}
	}
	if _, err := hs.store.List(ctx, 1); err != nil {
		return ServiceHealth{Status: "not_ready", Message: fmt.Sprintf("run store unreachable: %v", err)}
	}
	return ServiceHealth{Status: "ready"}
}

func (hs *HealthService) checkSource() ServiceHealth {
	info, err := os.Stat(hs.sourceDir)
	if err != nil {
		return ServiceHealth{Status: "not_ready", Message: fmt.Sprintf("source directory: %v", err)}
	}
	if !info.IsDir() {
		return ServiceHealth{Status: "not_ready", Message: fmt.Sprintf("source path %s is not a directory", hs.sourceDir)}
	}
	return ServiceHealth{Status: "ready"}
}

func (hs *HealthService) checkPipeline() ServiceHealth {
	if hs.manager == nil {
		return ServiceHealth{Status: "not_ready", Message: "pipeline manager not initialized"}
	}
	if hs.manager.Busy() {
		return ServiceHealth{Status: "ready", Message: fmt.Sprintf("%d run(s) executing", len(hs.manager.ActiveRuns()))}
	}
	return ServiceHealth{Status: "ready", Message: "idle"}
}

func (hs *HealthService) checkWebSocket() ServiceHealth {
	if hs.hub == nil {
		return ServiceHealth{Status: "ready", Message: "event stream disabled"}
	}
	return ServiceHealth{Status: "ready", Message: fmt.Sprintf("%d client(s) connected", hs.hub.ClientCount())}
}
