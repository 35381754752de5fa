package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"k8s.io/utils/clock"

	"fedflow/internal/config"
	apierrors "fedflow/internal/errors"
	"fedflow/internal/exporter"
	"fedflow/internal/infrastructure"
	customMiddleware "fedflow/internal/middleware"
	"fedflow/internal/notify"
	"fedflow/internal/pipeline"
	"fedflow/internal/quality"
	"fedflow/internal/runstore"
	"fedflow/internal/scheduler"
	"fedflow/internal/schema"
	"fedflow/internal/services"
	"fedflow/internal/source"
	"fedflow/internal/transform"
	handlers "fedflow/internal/transport/http"
	"fedflow/internal/websocket"
	"fedflow/internal/window"
	"fedflow/pkg/contracts"
	"fedflow/pkg/contracts/domain"
)

// Application is the composition root. Every collaborator is wired from
// configuration in New; lifecycle is owned by Start and Stop.
type Application struct {
	Config *config.Config
	Logger *slog.Logger
	Router *chi.Mux
	Server *http.Server

	OTelProviders *infrastructure.OTelProviders
	Hub           *websocket.Hub
	Store         runstore.Store
	Manager       *pipeline.Manager
	JobQueue      *pipeline.JobQueue
	Resolver      *window.Resolver
	RunService    *services.RunService
	HealthService *services.HealthService
	Scheduler     *scheduler.Scheduler

	otelMiddleware *customMiddleware.OTelMiddleware
	queueCancel    context.CancelFunc
}

// New builds the application from configuration. A nil cfg loads the default
// configuration chain (built-ins, then config file, then environment).
func New(cfg *config.Config) (*Application, error) {
	if cfg == nil {
		var err error
		cfg, err = config.Load("")
		if err != nil {
			return nil, fmt.Errorf("load configuration: %w", err)
		}
	}

	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("initialize logger: %w", err)
	}

	logger.Info("application starting",
		slog.String("version", contracts.Version),
		slog.Int("port", cfg.Server.Port),
		slog.String("data_dir", cfg.Paths.DataDir))

	if err := cfg.EnsureDirs(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}

	otelProviders, err := infrastructure.InitializeOTel(infrastructure.DefaultOTelConfig(), logger)
	if err != nil {
		return nil, fmt.Errorf("initialize OpenTelemetry: %w", err)
	}

	app := &Application{
		Config:        cfg,
		Logger:        logger,
		OTelProviders: otelProviders,
	}

	if err := app.initializeServices(); err != nil {
		return nil, fmt.Errorf("initialize services: %w", err)
	}

	app.setupRouter()
	app.createServer()

	return app, nil
}

// initializeServices builds the domain collaborators in dependency order:
// schema and store first, then the run engine, then the request-facing
// services on top.
func (a *Application) initializeServices() error {
	cfg := a.Config

	store, err := OpenStore(cfg)
	if err != nil {
		return err
	}
	a.Store = store

	a.Hub = websocket.NewHub(a.Logger)

	otelMiddleware, err := customMiddleware.NewOTelMiddleware(a.OTelProviders)
	if err != nil {
		return fmt.Errorf("create OpenTelemetry middleware: %w", err)
	}
	a.otelMiddleware = otelMiddleware

	// Stage and run events flow to websocket clients and, via the
	// decorator, into the OTel instruments.
	publisher := newMetricsPublisher(websocket.NewEventPublisher(a.Hub), otelMiddleware.Metrics())

	manager, err := BuildManager(cfg, store, publisher, a.Logger)
	if err != nil {
		return err
	}
	a.Manager = manager

	// A single queue worker serializes runs; parallelism lives inside the
	// transform engine, not across runs sharing artifact directories.
	a.JobQueue = pipeline.NewJobQueue(1, manager, a.Logger)

	a.Resolver = window.NewResolver(clock.RealClock{}, cfg.Pipeline.MaxSpanDays)

	runService, err := services.NewRunService(a.JobQueue, manager, store, a.Resolver, a.Logger)
	if err != nil {
		return err
	}
	a.RunService = runService

	a.HealthService = services.NewHealthService(contracts.Version, store, cfg.Source.Dir,
		a.Hub, manager, services.ConfigSummary{
			SourceDir:    cfg.Source.Dir,
			DataDir:      cfg.Paths.DataDir,
			StoreBackend: cfg.Store.Backend,
			Workers:      cfg.Pipeline.Workers,
			KeepRuns:     cfg.Pipeline.KeepRuns,
			Scheduler:    cfg.Scheduler.Enabled,
		}, a.Logger)

	if cfg.Scheduler.Enabled {
		sched, err := scheduler.New(scheduler.Config{
			DailySpec:   cfg.Scheduler.DailySpec,
			WeeklySpec:  cfg.Scheduler.WeeklySpec,
			MonthlySpec: cfg.Scheduler.MonthlySpec,
			Timezone:    cfg.Scheduler.Timezone,
		}, runService, a.Logger)
		if err != nil {
			return err
		}
		a.Scheduler = sched
	}

	return nil
}

// BuildManager wires the pipeline from configuration: schema table,
// transform engine, profiler, exporter, notifier. The publisher receives run
// and stage events; command-line callers pass pipeline.NopPublisher.
func BuildManager(cfg *config.Config, store runstore.Store, publisher pipeline.Publisher, logger *slog.Logger) (*pipeline.Manager, error) {
	specs, err := config.LoadSpecs(cfg.Validation.SchemaFile)
	if err != nil {
		return nil, fmt.Errorf("load field specs: %w", err)
	}
	table, err := schema.NewTable(specs)
	if err != nil {
		return nil, fmt.Errorf("build schema table: %w", err)
	}

	engine := transform.NewEngine(table, transform.Options{
		Workers:         cfg.Pipeline.Workers,
		Coercion:        cfg.Coercion.Rules(),
		Filters:         cfg.Filters.Rules(),
		RequiredHeaders: cfg.Validation.RequiredHeaders,
	}, logger)

	var runNotifier notify.Notifier
	if cfg.Notify.Outbox != "" {
		runNotifier = notify.NewFileNotifier(cfg.Notify.Outbox)
	} else {
		runNotifier = notify.NewLogNotifier(logger)
	}

	manager, err := pipeline.NewManager(pipeline.Deps{
		Provider:   source.NewDirProvider(cfg.Source.Dir, cfg.Source.Pattern, logger),
		Table:      table,
		Engine:     engine,
		Profiler:   quality.NewProfiler(table, cfg.Pipeline.DistinctCap),
		Exporter:   exporter.NewWriter(true, logger),
		Notifier:   runNotifier,
		Store:      store,
		Publisher:  publisher,
		Logger:     logger,
		DatasetDir: cfg.Paths.DatasetsDir,
		ReportDir:  cfg.Paths.ReportsDir,
	}, PipelineConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("build run engine: %w", err)
	}
	return manager, nil
}

// OpenStore opens the run-record store the configuration names. The CLI
// commands share it with the server.
func OpenStore(cfg *config.Config) (runstore.Store, error) {
	switch cfg.Store.Backend {
	case "sqlite":
		store, err := runstore.OpenSQLite(cfg.Store.Path)
		if err != nil {
			return nil, fmt.Errorf("open sqlite run store: %w", err)
		}
		return store, nil
	default:
		store, err := runstore.NewFileStore(cfg.Paths.RunsDir)
		if err != nil {
			return nil, fmt.Errorf("open file run store: %w", err)
		}
		return store, nil
	}
}

// PipelineConfig translates the config section into the engine's execution
// policy.
func PipelineConfig(cfg *config.Config) *pipeline.Config {
	policy := pipeline.NewConfig()
	policy.SetStageTimeout(domain.StageDownload, cfg.Pipeline.DownloadTimeout)
	policy.SetStageTimeout(domain.StageTransform, cfg.Pipeline.TransformTimeout)
	policy.SetStageTimeout(domain.StageQuality, cfg.Pipeline.QualityTimeout)
	policy.SetStageTimeout(domain.StageCleanup, cfg.Pipeline.CleanupTimeout)
	policy.SetStageTimeout(domain.StageNotify, cfg.Pipeline.NotifyTimeout)
	policy.Retry = pipeline.RetryConfig{
		MaxAttempts:  cfg.Pipeline.RetryMaxAttempts,
		InitialDelay: cfg.Pipeline.RetryInitialDelay,
		MaxDelay:     cfg.Pipeline.RetryMaxDelay,
		Multiplier:   cfg.Pipeline.RetryMultiplier,
	}
	policy.KeepRuns = cfg.Pipeline.KeepRuns
	policy.WriteWorkbook = cfg.Pipeline.WriteWorkbook
	return policy
}

// setupRouter assembles the chi router. Middleware that must not wrap the
// ResponseWriter registers first so the websocket upgrade still reaches a
// plain connection; everything else runs inside the full group.
func (a *Application) setupRouter() {
	r := chi.NewRouter()

	r.Use(customMiddleware.RequestID)
	r.Use(customMiddleware.RealIP)

	wsHandler := handlers.NewWebSocketHandler(a.Hub,
		a.Config.WebSocket.ReadBufferSize,
		a.Config.WebSocket.WriteBufferSize,
		websocket.Timing{
			PongWait:   a.Config.WebSocket.PongWait,
			PingPeriod: a.Config.WebSocket.PingPeriod,
		},
		a.Config.Security.AllowedOrigins,
		a.Logger)
	r.With(customMiddleware.WebSocketTraceMiddleware(a.Logger)).Handle("/ws", wsHandler)

	errorHandler := apierrors.NewErrorHandler(a.Logger, false)

	r.Group(func(r chi.Router) {
		r.Use(a.otelMiddleware.Handler)
		r.Use(apierrors.NewErrorMiddleware(errorHandler, a.Logger).Handler)
		r.Use(customMiddleware.DefaultSecureHeaders().Handler)

		if a.Config.Security.EnableCORS {
			r.Use(customMiddleware.CORS(a.corsConfig()))
		}
		if a.Config.Security.RateLimit.Enabled {
			r.Use(customMiddleware.NewRateLimiter(
				a.Config.Security.RateLimit.RPS,
				a.Config.Security.RateLimit.Burst,
				a.Logger,
			).Handler)
		}

		a.setupAPIRoutes(r, errorHandler)
	})

	// Probe and scrape endpoints stay outside the middleware group so load
	// balancers and Prometheus skip the request pipeline.
	healthHandler := handlers.NewHealthHandler(a.HealthService, a.Logger)
	r.Get("/healthz", healthHandler.Healthz)
	if a.OTelProviders.PrometheusHTTP != nil {
		r.Handle("/metrics", a.OTelProviders.PrometheusHTTP)
	}

	a.Router = r
}

// setupAPIRoutes mounts the versioned API surface.
func (a *Application) setupAPIRoutes(r chi.Router, errorHandler *apierrors.ErrorHandler) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(render.SetContentType(render.ContentTypeJSON))

		r.Group(func(r chi.Router) {
			r.Use(customMiddleware.Timeout(a.Config.Server.ReadTimeout, a.Logger))

			healthHandler := handlers.NewHealthHandler(a.HealthService, a.Logger)
			r.Mount("/health", healthHandler.Routes())

			r.Get("/version", func(w http.ResponseWriter, req *http.Request) {
				render.JSON(w, req, contracts.GetVersionInfo())
			})

			qualityHandler := handlers.NewQualityHandler(a.RunService, errorHandler, a.Logger)
			r.Mount("/quality", qualityHandler.Routes())
		})

		// The runs router carries its own timeout sized for trigger and
		// history handling.
		runsHandler := handlers.NewRunsHandler(a.RunService, errorHandler, a.Logger)
		r.Mount("/runs", runsHandler.Routes())
	})
}

func (a *Application) corsConfig() customMiddleware.CORSConfig {
	return customMiddleware.CORSConfig{
		AllowedOrigins:   a.Config.Security.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           300,
		Logger:           a.Logger,
	}
}

func (a *Application) createServer() {
	a.Server = &http.Server{
		Addr:           fmt.Sprintf(":%d", a.Config.Server.Port),
		Handler:        a.Router,
		ReadTimeout:    a.Config.Server.ReadTimeout,
		WriteTimeout:   a.Config.Server.WriteTimeout,
		IdleTimeout:    a.Config.Server.IdleTimeout,
		MaxHeaderBytes: a.Config.Server.MaxHeaderBytes,
	}
}

// Start launches the hub, the queue workers, the scheduler, and the HTTP
// server. Server failure cancels the supplied context so Run can unwind.
func (a *Application) Start(ctx context.Context, cancel context.CancelFunc) error {
	a.Logger.InfoContext(ctx, "starting services",
		slog.String("version", contracts.Version),
		slog.Int("port", a.Config.Server.Port),
		slog.Bool("scheduler", a.Scheduler != nil))

	a.Hub.Start()

	queueCtx, queueCancel := context.WithCancel(context.Background())
	a.queueCancel = queueCancel
	a.JobQueue.Start(queueCtx)

	if a.Scheduler != nil {
		a.Scheduler.Start()
	}

	go func() {
		if err := a.Server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.Logger.ErrorContext(ctx, "server error", slog.String("error", err.Error()))
			cancel()
		}
	}()

	a.startupCheck(ctx)

	a.Logger.InfoContext(ctx, "application started",
		slog.String("address", fmt.Sprintf("http://localhost:%d", a.Config.Server.Port)))
	return nil
}

// startupCheck surfaces configuration problems that are worth a warning but
// not a refusal to start. A missing source directory, for example, fails the
// first run rather than the process.
func (a *Application) startupCheck(ctx context.Context) {
	if _, err := os.Stat(a.Config.Source.Dir); err != nil {
		a.Logger.WarnContext(ctx, "source directory not accessible",
			slog.String("dir", a.Config.Source.Dir),
			slog.String("error", err.Error()))
	}
	if _, err := a.Store.List(ctx, 1); err != nil {
		a.Logger.WarnContext(ctx, "run store not readable",
			slog.String("error", err.Error()))
	}
}

// Stop shuts the application down in reverse order: no new triggers, no new
// requests, drain in-flight runs, then tear down the event and telemetry
// plumbing.
func (a *Application) Stop(ctx context.Context) error {
	a.Logger.InfoContext(ctx, "shutting down")

	shutdownCtx, cancel := context.WithTimeout(ctx, a.Config.Server.ShutdownTimeout)
	defer cancel()

	if a.Scheduler != nil {
		a.Scheduler.Stop()
	}

	if err := a.Server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	if err := a.JobQueue.Stop(a.Config.Server.ShutdownTimeout); err != nil {
		a.Logger.ErrorContext(ctx, "job queue did not drain, cancelling in-flight runs",
			slog.String("error", err.Error()))
		if a.queueCancel != nil {
			a.queueCancel()
		}
	}

	a.Hub.Stop()

	if a.OTelProviders != nil {
		if err := a.OTelProviders.Shutdown(shutdownCtx); err != nil {
			a.Logger.ErrorContext(ctx, "OpenTelemetry shutdown error",
				slog.String("error", err.Error()))
		}
	}

	if closer, ok := a.Store.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			a.Logger.ErrorContext(ctx, "run store close error",
				slog.String("error", err.Error()))
		}
	}

	a.Logger.InfoContext(ctx, "shutdown complete")
	return infrastructure.CloseLogFile()
}

// Run starts the application and blocks until an interrupt or a fatal server
// error, then shuts down gracefully.
func (a *Application) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	if err := a.Start(ctx, cancel); err != nil {
		return err
	}

	select {
	case sig := <-sigChan:
		a.Logger.InfoContext(ctx, "received signal", slog.String("signal", sig.String()))
	case <-ctx.Done():
	}

	return a.Stop(context.Background())
}
