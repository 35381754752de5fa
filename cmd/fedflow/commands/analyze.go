package commands

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"fedflow/internal/analysis"
	"fedflow/internal/config"
	"fedflow/internal/schema"
)

var (
	analyzeOut  string
	analyzeXLSX bool
	analyzeTop  int
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze DATASET",
	Short: "Summarize a canonical dataset artifact",
	Long: `Summarize a canonical dataset artifact.

Reads the dataset back through the column contract and reports dollar
statistics, fiscal year and contract type distributions, agency and vendor
rankings, small-business participation, and missing data.

The text summary goes to stdout, or to a file when --out names a directory.
--xlsx additionally writes an Excel workbook.

Examples:
  fedflow analyze data/datasets/canonical_daily_20251027.csv
  fedflow analyze canonical_x.csv --out reports --xlsx --top 25`,
	Args: cobra.ExactArgs(1),
	RunE: runAnalyze,
}

func init() {
	analyzeCmd.Flags().StringVar(&analyzeOut, "out", "", "directory for report files (default: text to stdout)")
	analyzeCmd.Flags().BoolVar(&analyzeXLSX, "xlsx", false, "also write an Excel workbook")
	analyzeCmd.Flags().IntVar(&analyzeTop, "top", analysis.DefaultTopN, "entries per agency and vendor ranking")
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	datasetPath := args[0]

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	specs, err := config.LoadSpecs(cfg.Validation.SchemaFile)
	if err != nil {
		return usageError(fmt.Errorf("load field specs: %w", err))
	}
	table, err := schema.NewTable(specs)
	if err != nil {
		return usageError(fmt.Errorf("build schema table: %w", err))
	}

	records, err := analysis.LoadDataset(cmd.Context(), datasetPath, table)
	if err != nil {
		return err
	}

	// Reports render on stdout, so diagnostics go to stderr.
	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: slog.LevelWarn}))
	analyzer := analysis.NewAnalyzer(table, analyzeTop, logger)
	report := analyzer.Analyze(filepath.Base(datasetPath), records, time.Now())

	out := cmd.OutOrStdout()
	if analyzeOut == "" {
		if err := analysis.WriteText(out, report); err != nil {
			return err
		}
	} else {
		if err := os.MkdirAll(analyzeOut, 0o755); err != nil {
			return fmt.Errorf("create report dir: %w", err)
		}
		textPath := filepath.Join(analyzeOut, analysis.ReportFileName(datasetPath))
		f, err := os.Create(textPath)
		if err != nil {
			return fmt.Errorf("create report: %w", err)
		}
		if err := analysis.WriteText(f, report); err != nil {
			f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return err
		}
		fmt.Fprintf(out, "Report written to %s\n", textPath)
	}

	if analyzeXLSX {
		dir := analyzeOut
		if dir == "" {
			dir = filepath.Dir(datasetPath)
		}
		workbookPath, err := analysis.WriteWorkbook(dir, report)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Workbook written to %s\n", workbookPath)
	}
	return nil
}
