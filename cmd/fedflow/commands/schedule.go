package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"k8s.io/utils/clock"

	"fedflow/internal/app"
	"fedflow/internal/infrastructure"
	"fedflow/internal/pipeline"
	"fedflow/internal/scheduler"
	"fedflow/internal/services"
	"fedflow/internal/window"
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Run the cron scheduler in the foreground",
	Long: `Run the cron scheduler in the foreground, without the HTTP server.

Each configured cron entry triggers a run of its mode; a tick is skipped
while a run of the same mode is still active. At least one schedule spec
must be configured. The scheduler.enabled flag only controls the scheduler
embedded in "fedflow serve"; this command always starts it.`,
	Args: cobra.NoArgs,
	RunE: runSchedule,
}

func runSchedule(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.EnsureDirs(); err != nil {
		return usageError(fmt.Errorf("prepare directories: %w", err))
	}
	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		return usageError(fmt.Errorf("initialize logging: %w", err))
	}
	defer infrastructure.CloseLogFile()

	store, err := app.OpenStore(cfg)
	if err != nil {
		return err
	}
	defer closeStore(store)

	manager, err := app.BuildManager(cfg, store, pipeline.NopPublisher{}, logger)
	if err != nil {
		return err
	}

	queue := pipeline.NewJobQueue(1, manager, logger)
	resolver := window.NewResolver(clock.RealClock{}, cfg.Pipeline.MaxSpanDays)
	runService, err := services.NewRunService(queue, manager, store, resolver, logger)
	if err != nil {
		return err
	}

	sched, err := scheduler.New(scheduler.Config{
		DailySpec:   cfg.Scheduler.DailySpec,
		WeeklySpec:  cfg.Scheduler.WeeklySpec,
		MonthlySpec: cfg.Scheduler.MonthlySpec,
		Timezone:    cfg.Scheduler.Timezone,
	}, runService, logger)
	if err != nil {
		return usageError(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	queueCtx, cancelQueue := context.WithCancel(context.Background())
	defer cancelQueue()
	queue.Start(queueCtx)
	sched.Start()

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "Scheduler running. Press Ctrl+C to stop.")
	for _, mode := range sched.Modes() {
		fmt.Fprintf(out, "  %-8s next run %s\n", mode, sched.NextRun(mode).Format(time.RFC3339))
	}

	<-ctx.Done()
	fmt.Fprintln(out, "Stopping...")

	sched.Stop()
	if err := queue.Stop(cfg.Server.ShutdownTimeout); err != nil {
		logger.Warn("job queue did not drain, cancelling in-flight runs")
		cancelQueue()
	}
	return nil
}
