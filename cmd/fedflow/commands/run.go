package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"k8s.io/utils/clock"

	"fedflow/internal/app"
	"fedflow/internal/infrastructure"
	"fedflow/internal/pipeline"
	"fedflow/internal/window"
	"fedflow/pkg/contracts/domain"
)

var (
	runMode         string
	runBackfillDays int
	runFrom         string
	runTo           string
	runDryRun       bool
	runWorkers      int
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Execute one pipeline run in the foreground",
	Long: `Execute one pipeline run in the foreground.

The window derives from --mode unless --from and --to pin an explicit range.
A dry run validates the configuration, resolves the window, and records the
plan without touching the source data.

Exit codes: 0 on SUCCESS or PARTIAL_SUCCESS, 1 on FAILED, 2 on configuration
or window errors.

Examples:
  fedflow run --mode daily
  fedflow run --mode backfill --backfill-days 90
  fedflow run --from 2025-10-01 --to 2025-10-28 --dry-run`,
	Args: cobra.NoArgs,
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringVar(&runMode, "mode", "daily", "window mode: daily, weekly, monthly, backfill")
	runCmd.Flags().IntVar(&runBackfillDays, "backfill-days", 0, "days to cover in backfill mode")
	runCmd.Flags().StringVar(&runFrom, "from", "", "explicit window start (YYYY-MM-DD), overrides --mode")
	runCmd.Flags().StringVar(&runTo, "to", "", "explicit window end (YYYY-MM-DD)")
	runCmd.Flags().BoolVar(&runDryRun, "dry-run", false, "resolve and validate without transforming")
	runCmd.Flags().IntVar(&runWorkers, "workers", 0, "transform worker count (overrides configuration)")
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if runWorkers > 0 {
		cfg.Pipeline.Workers = runWorkers
	}

	mode := domain.Mode(runMode)
	req := window.Request{Mode: mode, BackfillDays: runBackfillDays}
	if runFrom != "" || runTo != "" {
		if req.Start, err = parseDate(runFrom, "--from"); err != nil {
			return err
		}
		if req.End, err = parseDate(runTo, "--to"); err != nil {
			return err
		}
		mode = domain.ModeRange
	}

	resolver := window.NewResolver(clock.RealClock{}, cfg.Pipeline.MaxSpanDays)
	win, err := resolver.Resolve(req)
	if err != nil {
		return usageError(err)
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

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	record, runErr := manager.Execute(ctx, pipeline.Request{Mode: mode, Window: win, DryRun: runDryRun})
	if record.RunID == "" {
		return runErr
	}
	printRunRecord(cmd.OutOrStdout(), record)
	// Execute's error is non-nil exactly when the run FAILED.
	return runErr
}

func parseDate(value, flag string) (time.Time, error) {
	if value == "" {
		return time.Time{}, usageError(fmt.Errorf("%s is required when the other bound is set", flag))
	}
	t, err := time.Parse(domain.DateLayout, value)
	if err != nil {
		return time.Time{}, usageError(fmt.Errorf("%s must be a YYYY-MM-DD date: %w", flag, err))
	}
	return t, nil
}

// printRunRecord writes the operator-facing summary. The structured log
// carries the same facts; this is for the terminal.
func printRunRecord(w io.Writer, record domain.RunRecord) {
	fmt.Fprintf(w, "\nRun:      %s\n", record.RunID)
	fmt.Fprintf(w, "Mode:     %s", record.Mode)
	if record.DryRun {
		fmt.Fprint(w, " (dry run)")
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Window:   %s\n", record.Window)
	fmt.Fprintf(w, "Status:   %s\n", record.Status)
	if record.Error != "" {
		fmt.Fprintf(w, "Error:    %s\n", record.Error)
	}
	if !record.DryRun {
		fmt.Fprintf(w, "Rows:     %d raw, %d output, %d duplicates removed\n",
			record.RawRows, record.OutputRows, record.DuplicateRows)
	}
	if record.IssueCount > 0 {
		fmt.Fprintf(w, "Issues:   %d\n", record.IssueCount)
	}
	if record.DatasetPath != "" {
		fmt.Fprintf(w, "Dataset:  %s\n", record.DatasetPath)
	}
	if record.ReportPath != "" {
		fmt.Fprintf(w, "Report:   %s\n", record.ReportPath)
	}

	fmt.Fprintln(w, "Stages:")
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, stage := range record.Stages {
		line := fmt.Sprintf("  %s\t%s\t%s", stage.Name, stage.Status, stage.Duration.Round(time.Millisecond))
		if stage.Error != "" {
			line += "\t" + stage.Error
		}
		fmt.Fprintln(tw, line)
	}
	tw.Flush()
}
