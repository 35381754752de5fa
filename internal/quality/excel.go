package quality

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/xuri/excelize/v2"

	"fedflow/pkg/contracts/domain"
)

const (
	sheetSummary = "Summary"
	sheetColumns = "Columns"
	sheetIssues  = "Issues"
)

// WriteWorkbook renders the report as an Excel workbook with summary, column
// profile and issue sheets. Returns the written path.
func WriteWorkbook(dir string, report domain.QualityReport) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create report dir: %w", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	f.SetSheetName("Sheet1", sheetSummary)
	if _, err := f.NewSheet(sheetColumns); err != nil {
		return "", fmt.Errorf("create columns sheet: %w", err)
	}
	if _, err := f.NewSheet(sheetIssues); err != nil {
		return "", fmt.Errorf("create issues sheet: %w", err)
	}

	writeSummarySheet(f, report)
	writeColumnsSheet(f, report)
	writeIssuesSheet(f, report)

	path := filepath.Join(dir, WorkbookFileName(report.RunID))
	if err := f.SaveAs(path); err != nil {
		return "", fmt.Errorf("save workbook: %w", err)
	}
	return path, nil
}

func writeSummarySheet(f *excelize.File, report domain.QualityReport) {
	rows := [][]interface{}{
		{"Run ID", report.RunID},
		{"Generated At", report.GeneratedAt.Format("2006-01-02 15:04:05 MST")},
		{"Raw Rows", report.RawRowCount},
		{"Output Rows", report.RowCount},
		{"Completeness", report.Completeness},
		{"Critical Issues", report.Counts.Critical},
		{"Error Issues", report.Counts.Error},
		{"Warning Issues", report.Counts.Warning},
		{"Info Issues", report.Counts.Info},
	}
	for i, row := range rows {
		setRow(f, sheetSummary, i+1, row)
	}
}

func writeColumnsSheet(f *excelize.File, report domain.QualityReport) {
	setRow(f, sheetColumns, 1, []interface{}{
		"Column", "Kind", "Null Count", "Null Rate", "Coercion Failures",
		"Coercion Rate", "Distinct", "Min", "Max", "Mean", "True", "False", "Absent",
	})
	for i, col := range report.Columns {
		row := []interface{}{
			col.Column, string(col.Kind), col.NullCount, col.NullRate,
			col.CoercionFails, col.CoercionRate, distinctCell(col),
			floatCell(col.NumericMin), floatCell(col.NumericMax), floatCell(col.NumericMean),
			col.TrueCount, col.FalseCount, col.StructurallyAbsent,
		}
		setRow(f, sheetColumns, i+2, row)
	}
}

func writeIssuesSheet(f *excelize.File, report domain.QualityReport) {
	setRow(f, sheetIssues, 1, []interface{}{"Severity", "Column", "Affected Rows", "Message"})
	for i, issue := range report.Issues {
		setRow(f, sheetIssues, i+2, []interface{}{
			string(issue.Severity), issue.Column, issue.Rows, issue.Message,
		})
	}
}

func setRow(f *excelize.File, sheet string, row int, values []interface{}) {
	for col, v := range values {
		cell, err := excelize.CoordinatesToCellName(col+1, row)
		if err != nil {
			continue
		}
		f.SetCellValue(sheet, cell, v)
	}
}

func distinctCell(col domain.ColumnProfile) string {
	if col.DistinctCapped {
		return fmt.Sprintf("%d+", col.DistinctCount)
	}
	return fmt.Sprintf("%d", col.DistinctCount)
}

func floatCell(v *float64) interface{} {
	if v == nil {
		return ""
	}
	return *v
}
