package commands

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"fedflow/internal/config"
	"fedflow/internal/runstore"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "fedflow",
	Short: "Incremental ETL engine for federal contract transaction data",
	Long: `fedflow ingests bulk contract-transaction extracts, maps them onto the
canonical column contract, coerces and validates every cell, removes
modification-level duplicates, and writes a canonical dataset plus a data
quality report per run.

Configuration loads from ` + config.DefaultConfigFile + ` (working directory or
configs/), overridden by ` + config.EnvPrefix + `_* environment variables.

Examples:
  fedflow run --mode daily              # process yesterday's window
  fedflow run --from 2025-01-01 --to 2025-03-31
  fedflow runs list                     # inspect run history
  fedflow analyze data/datasets/canonical_daily_20251027.csv
  fedflow serve                         # HTTP API + WebSocket server
  fedflow schedule                      # cron daemon in the foreground`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "",
		"path to a configuration file (default: probe "+config.DefaultConfigFile+")")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(runsCmd)
	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(scheduleCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// exitError carries the process exit code alongside the cause.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

// usageError marks configuration and window problems so the process exits
// with code 2 instead of the generic 1.
func usageError(err error) error {
	return &exitError{code: 2, err: err}
}

// ExitCode maps an Execute error to the process exit code.
func ExitCode(err error) int {
	var exit *exitError
	if errors.As(err, &exit) {
		return exit.code
	}
	return 1
}

// loadConfig reads the configuration for the current invocation.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, usageError(fmt.Errorf("load configuration: %w", err))
	}
	return cfg, nil
}

// closeStore releases backends that hold resources; the file store does not.
func closeStore(store runstore.Store) {
	if closer, ok := store.(io.Closer); ok {
		closer.Close()
	}
}
