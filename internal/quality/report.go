package quality

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"fedflow/pkg/contracts/domain"
)

// ReportFileName returns the deterministic artifact name for a run's quality
// report.
func ReportFileName(runID string) string {
	return fmt.Sprintf("quality_report_%s.json", runID)
}

// WorkbookFileName returns the deterministic name of the Excel rendering.
func WorkbookFileName(runID string) string {
	return fmt.Sprintf("quality_report_%s.xlsx", runID)
}

// WriteReport persists the report as pretty-printed JSON under dir, writing
// through a temp file so a crash never leaves a half-written artifact.
func WriteReport(dir string, report domain.QualityReport) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create report dir: %w", err)
	}

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal quality report: %w", err)
	}

	path := filepath.Join(dir, ReportFileName(report.RunID))
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return "", fmt.Errorf("write quality report: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("finalize quality report: %w", err)
	}
	return path, nil
}

// ReadReport loads a previously written report.
func ReadReport(path string) (domain.QualityReport, error) {
	var report domain.QualityReport
	data, err := os.ReadFile(path)
	if err != nil {
		return report, fmt.Errorf("read quality report: %w", err)
	}
	if err := json.Unmarshal(data, &report); err != nil {
		return report, fmt.Errorf("parse quality report %s: %w", filepath.Base(path), err)
	}
	return report, nil
}
