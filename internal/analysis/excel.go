package analysis

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/xuri/excelize/v2"

	"fedflow/pkg/contracts/domain"
)

const (
	sheetSummary  = "Summary"
	sheetYears    = "Fiscal Years"
	sheetAgencies = "Agencies"
	sheetVendors  = "Vendors"
	sheetTypes    = "Contract Types"
	sheetFlags    = "Small Business"
	sheetMissing  = "Missing Data"
)

// WriteWorkbook renders the report as an Excel workbook, one sheet per
// section. The file name derives from the source dataset. Returns the
// written path.
func WriteWorkbook(dir string, report Report) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create report dir: %w", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	f.SetSheetName("Sheet1", sheetSummary)
	for _, sheet := range []string{sheetYears, sheetAgencies, sheetVendors, sheetTypes, sheetFlags, sheetMissing} {
		if _, err := f.NewSheet(sheet); err != nil {
			return "", fmt.Errorf("create %s sheet: %w", sheet, err)
		}
	}

	writeSummarySheet(f, report)
	writeYearsSheet(f, report)
	writeRankedSheet(f, sheetAgencies, "Agency", report.TopAgenciesByRows, report.TopAgenciesByDollars)
	writeRankedSheet(f, sheetVendors, "Vendor", report.TopVendorsByRows, report.TopVendorsByDollars)
	writeTypesSheet(f, report)
	writeFlagsSheet(f, report)
	writeMissingSheet(f, report)

	path := filepath.Join(dir, WorkbookFileName(report.Source))
	if err := f.SaveAs(path); err != nil {
		return "", fmt.Errorf("save workbook: %w", err)
	}
	return path, nil
}

func writeSummarySheet(f *excelize.File, report Report) {
	rows := [][]interface{}{
		{"Source", report.Source},
		{"Generated At", report.GeneratedAt.Format("2006-01-02 15:04:05 MST")},
		{"Rows", report.Rows},
		{"Date Min", dateCell(report.DateMin)},
		{"Date Max", dateCell(report.DateMax)},
		{"Completeness", report.Completeness},
		{"Dollars Known", report.Dollars.Known},
		{"Dollars Total", report.Dollars.Total},
		{"Dollars Mean", report.Dollars.Mean},
		{"Dollars Median", report.Dollars.Median},
		{"Dollars Min", report.Dollars.Min},
		{"Dollars Max", report.Dollars.Max},
	}
	for i, row := range rows {
		setRow(f, sheetSummary, i+1, row)
	}
}

func writeYearsSheet(f *excelize.File, report Report) {
	setRow(f, sheetYears, 1, []interface{}{"Fiscal Year", "Rows"})
	for i, y := range report.FiscalYears {
		setRow(f, sheetYears, i+2, []interface{}{y.Year, y.Rows})
	}
}

func writeRankedSheet(f *excelize.File, sheet, noun string, byRows, byDollars []GroupStat) {
	row := 1
	setRow(f, sheet, row, []interface{}{"Top by Contract Count"})
	row++
	row = writeGroupTable(f, sheet, row, noun, byRows)
	row++
	setRow(f, sheet, row, []interface{}{"Top by Dollars Obligated"})
	row++
	writeGroupTable(f, sheet, row, noun, byDollars)
}

func writeGroupTable(f *excelize.File, sheet string, row int, noun string, groups []GroupStat) int {
	setRow(f, sheet, row, []interface{}{"Rank", noun, "Rows", "Dollars"})
	row++
	for i, g := range groups {
		setRow(f, sheet, row, []interface{}{i + 1, g.Name, g.Rows, g.Dollars})
		row++
	}
	return row
}

func writeTypesSheet(f *excelize.File, report Report) {
	setRow(f, sheetTypes, 1, []interface{}{"Type", "Rows", "Share", "Dollars"})
	for i, g := range report.InstrumentTypes {
		share := 0.0
		if report.Rows > 0 {
			share = float64(g.Rows) / float64(report.Rows) * 100
		}
		setRow(f, sheetTypes, i+2, []interface{}{g.Name, g.Rows, share, g.Dollars})
	}
}

func writeFlagsSheet(f *excelize.File, report Report) {
	setRow(f, sheetFlags, 1, []interface{}{"Flag", "True", "Known", "Rate", "Dollars", "Dollar Share"})
	for i, flag := range report.SmallBusiness {
		setRow(f, sheetFlags, i+2, []interface{}{
			flag.Flag, flag.True, flag.Known, flag.Rate, flag.Dollars, flag.DollarShare,
		})
	}
}

func writeMissingSheet(f *excelize.File, report Report) {
	setRow(f, sheetMissing, 1, []interface{}{"Column", "Missing Rows", "Share"})
	for i, c := range report.MissingColumns {
		setRow(f, sheetMissing, i+2, []interface{}{c.Column, c.Rows, c.Share})
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

func dateCell(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(domain.DateLayout)
}
