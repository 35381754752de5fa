package analysis

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"fedflow/internal/exporter"
	"fedflow/internal/schema"
	"fedflow/pkg/contracts/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func analysisSpecs() []schema.FieldSpec {
	return []schema.FieldSpec{
		{Header: domain.HeaderPIID, Source: "award_id_piid", Kind: domain.KindText, Required: true},
		{Header: domain.HeaderFiscalYear, Source: "fiscal_year", Kind: domain.KindInteger},
		{Header: domain.HeaderDateSigned, Source: "date_signed", Kind: domain.KindDate},
		{Header: domain.HeaderDollarsObligated, Source: "dollars_obligated", Kind: domain.KindDecimal},
		{Header: domain.HeaderFundingAgencyName, Source: "funding_agency_name", Kind: domain.KindText},
		{Header: domain.HeaderLegalBusinessName, Source: "legal_business_name", Kind: domain.KindText},
		{Header: domain.HeaderInstrumentType, Source: "instrument_type", Kind: domain.KindText},
		{Header: "Is Vendor Business Type - Small Business", Source: "small_business", Kind: domain.KindBoolean},
		{Header: "Is Vendor Business Type - Veteran Owned", Source: "veteran_owned", Kind: domain.KindBoolean},
	}
}

func testTable(t *testing.T) *schema.Table {
	t.Helper()
	table, err := schema.NewTable(analysisSpecs())
	require.NoError(t, err)
	return table
}

func record(t *testing.T, table *schema.Table, values map[string]domain.Value) domain.Record {
	t.Helper()
	rec := table.NewRecord()
	for header, v := range values {
		_, ok := table.Spec(header)
		require.True(t, ok, "unknown header %q", header)
		rec.Values[header] = v
	}
	return rec
}

func day(t *testing.T, s string) domain.Value {
	t.Helper()
	d, err := time.Parse(domain.DateLayout, s)
	require.NoError(t, err)
	return domain.DateValue(d)
}

func TestAnalyzeEmptyDataset(t *testing.T) {
	analyzer := NewAnalyzer(testTable(t), 0, testLogger())

	report := analyzer.Analyze("canonical_empty.csv", nil, time.Now())

	assert.Equal(t, "canonical_empty.csv", report.Source)
	assert.Zero(t, report.Rows)
	assert.Zero(t, report.Dollars.Known)
	assert.Empty(t, report.FiscalYears)
	assert.Empty(t, report.MissingColumns)
	assert.Zero(t, report.Completeness)
}

func TestAnalyzeDollarAndDateStats(t *testing.T) {
	table := testTable(t)
	records := []domain.Record{
		record(t, table, map[string]domain.Value{
			domain.HeaderDollarsObligated: domain.DecimalValue(100),
			domain.HeaderDateSigned:       day(t, "2013-10-01"),
			domain.HeaderFiscalYear:       domain.IntegerValue(2014),
		}),
		record(t, table, map[string]domain.Value{
			domain.HeaderDollarsObligated: domain.DecimalValue(300),
			domain.HeaderDateSigned:       day(t, "2014-09-30"),
			domain.HeaderFiscalYear:       domain.IntegerValue(2014),
		}),
		record(t, table, map[string]domain.Value{
			domain.HeaderDollarsObligated: domain.DecimalValue(200),
			domain.HeaderFiscalYear:       domain.IntegerValue(2013),
		}),
		record(t, table, nil),
	}

	report := NewAnalyzer(table, 0, testLogger()).Analyze("canonical_x.csv", records, time.Now())

	assert.Equal(t, int64(4), report.Rows)
	assert.Equal(t, int64(3), report.Dollars.Known)
	assert.InDelta(t, 600, report.Dollars.Total, 1e-9)
	assert.InDelta(t, 200, report.Dollars.Mean, 1e-9)
	assert.InDelta(t, 200, report.Dollars.Median, 1e-9)
	assert.InDelta(t, 100, report.Dollars.Min, 1e-9)
	assert.InDelta(t, 300, report.Dollars.Max, 1e-9)

	assert.Equal(t, "2013-10-01", report.DateMin.Format(domain.DateLayout))
	assert.Equal(t, "2014-09-30", report.DateMax.Format(domain.DateLayout))

	require.Len(t, report.FiscalYears, 2, "years sort ascending, missing rows dropped")
	assert.Equal(t, YearCount{Year: 2013, Rows: 1}, report.FiscalYears[0])
	assert.Equal(t, YearCount{Year: 2014, Rows: 2}, report.FiscalYears[1])
}

func TestAnalyzeMedianEvenCount(t *testing.T) {
	table := testTable(t)
	var records []domain.Record
	for _, v := range []float64{40, 10, 30, 20} {
		records = append(records, record(t, table, map[string]domain.Value{
			domain.HeaderDollarsObligated: domain.DecimalValue(v),
		}))
	}

	report := NewAnalyzer(table, 0, testLogger()).Analyze("canonical_x.csv", records, time.Now())

	assert.InDelta(t, 25, report.Dollars.Median, 1e-9)
}

func TestAnalyzeRankings(t *testing.T) {
	table := testTable(t)
	rows := []struct {
		agency, vendor, kind string
		dollars              float64
	}{
		{"ALPHA", "V1", "DELIVERY ORDER", 100},
		{"ALPHA", "V2", "DELIVERY ORDER", 50},
		{"BRAVO", "V3", "DELIVERY ORDER", 100},
		{"BRAVO", "V4", "PURCHASE ORDER", 200},
		{"CHARLIE", "V5", "BPA CALL", 1000},
	}
	records := make([]domain.Record, 0, len(rows)+1)
	for _, r := range rows {
		records = append(records, record(t, table, map[string]domain.Value{
			domain.HeaderFundingAgencyName: domain.TextValue(r.agency),
			domain.HeaderLegalBusinessName: domain.TextValue(r.vendor),
			domain.HeaderInstrumentType:    domain.TextValue(r.kind),
			domain.HeaderDollarsObligated:  domain.DecimalValue(r.dollars),
		}))
	}
	// A fully missing row must not show up in any grouping.
	records = append(records, record(t, table, nil))

	report := NewAnalyzer(table, 2, testLogger()).Analyze("canonical_x.csv", records, time.Now())

	require.Len(t, report.TopAgenciesByRows, 2)
	assert.Equal(t, "ALPHA", report.TopAgenciesByRows[0].Name, "row-count ties break by name")
	assert.Equal(t, "BRAVO", report.TopAgenciesByRows[1].Name)
	assert.Equal(t, int64(2), report.TopAgenciesByRows[0].Rows)
	assert.InDelta(t, 150, report.TopAgenciesByRows[0].Dollars, 1e-9)

	require.Len(t, report.TopAgenciesByDollars, 2)
	assert.Equal(t, "CHARLIE", report.TopAgenciesByDollars[0].Name)
	assert.Equal(t, "BRAVO", report.TopAgenciesByDollars[1].Name)

	require.Len(t, report.TopVendorsByRows, 2)
	assert.Equal(t, "V1", report.TopVendorsByRows[0].Name)

	require.Len(t, report.InstrumentTypes, 3, "type distribution is never truncated")
	assert.Equal(t, "DELIVERY ORDER", report.InstrumentTypes[0].Name)
	assert.Equal(t, int64(3), report.InstrumentTypes[0].Rows)
	assert.Equal(t, "BPA CALL", report.InstrumentTypes[1].Name)
	assert.Equal(t, "PURCHASE ORDER", report.InstrumentTypes[2].Name)
}

func TestAnalyzeFlagStats(t *testing.T) {
	table := testTable(t)
	const flag = "Is Vendor Business Type - Small Business"
	records := []domain.Record{
		record(t, table, map[string]domain.Value{
			flag:                          domain.BoolValue(true),
			domain.HeaderDollarsObligated: domain.DecimalValue(100),
		}),
		record(t, table, map[string]domain.Value{
			flag:                          domain.BoolValue(false),
			domain.HeaderDollarsObligated: domain.DecimalValue(50),
		}),
		record(t, table, map[string]domain.Value{
			domain.HeaderDollarsObligated: domain.DecimalValue(25),
		}),
		record(t, table, map[string]domain.Value{
			flag:                          domain.BoolValue(true),
			domain.HeaderDollarsObligated: domain.DecimalValue(200),
		}),
	}

	report := NewAnalyzer(table, 0, testLogger()).Analyze("canonical_x.csv", records, time.Now())

	require.Len(t, report.SmallBusiness, 2, "one entry per boolean column")

	small := report.SmallBusiness[0]
	assert.Equal(t, "Small Business", small.Flag, "shared prefix stripped for display")
	assert.Equal(t, int64(2), small.True)
	assert.Equal(t, int64(3), small.Known)
	assert.InDelta(t, 2.0/3.0*100, small.Rate, 1e-9)
	assert.InDelta(t, 300, small.Dollars, 1e-9)
	assert.InDelta(t, 300.0/375.0*100, small.DollarShare, 1e-9)

	veteran := report.SmallBusiness[1]
	assert.Equal(t, "Veteran Owned", veteran.Flag)
	assert.Zero(t, veteran.Known)
	assert.Zero(t, veteran.Rate)
}

func TestAnalyzeMissingColumnsAndCompleteness(t *testing.T) {
	table := testTable(t)
	full := map[string]domain.Value{
		domain.HeaderPIID:              domain.TextValue("A1"),
		domain.HeaderFiscalYear:        domain.IntegerValue(2014),
		domain.HeaderDateSigned:        day(t, "2014-01-15"),
		domain.HeaderDollarsObligated:  domain.DecimalValue(100),
		domain.HeaderFundingAgencyName: domain.TextValue("ALPHA"),
		domain.HeaderLegalBusinessName: domain.TextValue("V1"),
		domain.HeaderInstrumentType:    domain.TextValue("DELIVERY ORDER"),
		"Is Vendor Business Type - Small Business": domain.BoolValue(true),
		"Is Vendor Business Type - Veteran Owned":  domain.BoolValue(false),
	}
	partial := map[string]domain.Value{}
	for header, v := range full {
		partial[header] = v
	}
	delete(partial, domain.HeaderDateSigned)
	delete(partial, domain.HeaderDollarsObligated)
	delete(partial, domain.HeaderLegalBusinessName)

	records := []domain.Record{
		record(t, table, full),
		record(t, table, partial),
	}

	report := NewAnalyzer(table, 0, testLogger()).Analyze("canonical_x.csv", records, time.Now())

	require.Len(t, report.MissingColumns, 3)
	// Equal counts sort by column name.
	assert.Equal(t, domain.HeaderDateSigned, report.MissingColumns[0].Column)
	assert.Equal(t, domain.HeaderDollarsObligated, report.MissingColumns[1].Column)
	assert.Equal(t, domain.HeaderLegalBusinessName, report.MissingColumns[2].Column)
	assert.Equal(t, int64(1), report.MissingColumns[0].Rows)
	assert.InDelta(t, 50, report.MissingColumns[0].Share, 1e-9)

	// 18 cells, 3 missing.
	assert.InDelta(t, 15.0/18.0*100, report.Completeness, 1e-9)
}

func TestLoadDatasetRoundTrip(t *testing.T) {
	table := testTable(t)
	dir := t.TempDir()
	records := []domain.Record{
		record(t, table, map[string]domain.Value{
			domain.HeaderPIID:              domain.TextValue("A1"),
			domain.HeaderFiscalYear:        domain.IntegerValue(2014),
			domain.HeaderDateSigned:        day(t, "2014-01-15"),
			domain.HeaderDollarsObligated:  domain.DecimalValue(1234.56),
			domain.HeaderFundingAgencyName: domain.TextValue("DEPT OF THE NAVY"),
			domain.HeaderLegalBusinessName: domain.TextValue("ACME CORP"),
			domain.HeaderInstrumentType:    domain.TextValue("DELIVERY ORDER"),
			"Is Vendor Business Type - Small Business": domain.BoolValue(true),
			"Is Vendor Business Type - Veteran Owned":  domain.BoolValue(false),
		}),
		record(t, table, map[string]domain.Value{
			domain.HeaderPIID:             domain.TextValue("B2"),
			domain.HeaderDollarsObligated: domain.DecimalValue(-50.5),
		}),
	}

	path, err := exporter.NewWriter(true, testLogger()).WriteDataset(context.Background(), dir, "run1", table, records)
	require.NoError(t, err)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	require.True(t, len(raw) > 3 && raw[0] == 0xEF && raw[1] == 0xBB && raw[2] == 0xBF,
		"artifact carries a UTF-8 BOM the loader must strip")

	loaded, err := LoadDataset(context.Background(), path, table)
	require.NoError(t, err)
	require.Len(t, loaded, 2)

	for i, want := range records {
		for _, header := range table.Headers() {
			assert.True(t, loaded[i].Values[header].Equal(want.Values[header]),
				"row %d column %q: got %v want %v", i, header, loaded[i].Values[header], want.Values[header])
		}
	}
	assert.Equal(t, int64(1), loaded[0].Seq)
	assert.Equal(t, int64(2), loaded[1].Seq)
	assert.Equal(t, "canonical_run1.csv", loaded[0].SourceFile)
}

func TestLoadDatasetRejectsUnknownColumn(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.csv")
	require.NoError(t, os.WriteFile(path, []byte("PIID,Bogus\nA1,x\n"), 0o644))

	_, err := LoadDataset(context.Background(), path, testTable(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown column "Bogus"`)
}

func TestLoadDatasetRejectsMalformedCell(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.csv")
	require.NoError(t, os.WriteFile(path, []byte("Dollars Obligated\nabc\n"), 0o644))

	_, err := LoadDataset(context.Background(), path, testTable(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "row 2")
	assert.Contains(t, err.Error(), "parse decimal")
}

func TestLoadDatasetMissingFile(t *testing.T) {
	_, err := LoadDataset(context.Background(), filepath.Join(t.TempDir(), "nope.csv"), testTable(t))
	assert.Error(t, err)
}

func TestLoadDatasetHonoursCancellation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ok.csv")
	require.NoError(t, os.WriteFile(path, []byte("PIID\nA1\n"), 0o644))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := LoadDataset(ctx, path, testTable(t))
	assert.ErrorIs(t, err, context.Canceled)
}

func sampleAnalysisReport() Report {
	return Report{
		Source:      "canonical_daily_20251028.csv",
		GeneratedAt: time.Date(2025, 10, 29, 3, 20, 0, 0, time.UTC),
		Rows:        4,
		DateMin:     time.Date(2013, 10, 1, 0, 0, 0, 0, time.UTC),
		DateMax:     time.Date(2014, 9, 30, 0, 0, 0, 0, time.UTC),
		Dollars: DollarStats{
			Known: 3, Total: 1234567.5, Mean: 411522.5, Median: 200000,
			Min: 34567.5, Max: 1000000,
		},
		FiscalYears: []YearCount{{Year: 2013, Rows: 1}, {Year: 2014, Rows: 3}},
		TopAgenciesByRows: []GroupStat{
			{Name: "DEPT OF THE NAVY", Rows: 3, Dollars: 1200000},
		},
		TopAgenciesByDollars: []GroupStat{
			{Name: "DEPT OF THE NAVY", Rows: 3, Dollars: 1200000},
		},
		TopVendorsByRows: []GroupStat{
			{Name: "ACME CORP", Rows: 2, Dollars: 200000},
		},
		TopVendorsByDollars: []GroupStat{
			{Name: "ACME CORP", Rows: 2, Dollars: 200000},
		},
		InstrumentTypes: []GroupStat{
			{Name: "DELIVERY ORDER", Rows: 3, Dollars: 1200000},
			{Name: "PURCHASE ORDER", Rows: 1, Dollars: 34567.5},
		},
		SmallBusiness: []FlagStat{
			{Flag: "Small Business", True: 2, Known: 3, Rate: 66.7, Dollars: 234567.5, DollarShare: 19.0},
		},
		MissingColumns: []ColumnStat{{Column: "Completion Date", Rows: 2, Share: 50}},
		Completeness:   91.3,
	}
}

func TestWriteTextReport(t *testing.T) {
	var b strings.Builder
	require.NoError(t, WriteText(&b, sampleAnalysisReport()))
	out := b.String()

	assert.Contains(t, out, "FEDERAL CONTRACT DATASET ANALYSIS")
	assert.Contains(t, out, "Source:    canonical_daily_20251028.csv")
	assert.Contains(t, out, "Date range:    2013-10-01 to 2014-09-30")
	assert.Contains(t, out, "Completeness:  91.3%")
	assert.Contains(t, out, "$1,234,567.50")
	assert.Contains(t, out, "FISCAL YEARS")
	assert.Contains(t, out, "TOP FUNDING AGENCIES BY CONTRACT COUNT")
	assert.Contains(t, out, "DEPT OF THE NAVY")
	assert.Contains(t, out, "CONTRACT TYPES")
	assert.Contains(t, out, "75.0%")
	assert.Contains(t, out, "SMALL BUSINESS PARTICIPATION")
	assert.Contains(t, out, "2 of 3")
	assert.Contains(t, out, "MISSING DATA")
	assert.Contains(t, out, "Completion Date")
}

func TestWriteTextSkipsEmptySections(t *testing.T) {
	var b strings.Builder
	require.NoError(t, WriteText(&b, Report{Source: "canonical_empty.csv", GeneratedAt: time.Now()}))
	out := b.String()

	assert.Contains(t, out, "OVERVIEW")
	assert.NotContains(t, out, "DOLLARS OBLIGATED")
	assert.NotContains(t, out, "FISCAL YEARS")
	assert.NotContains(t, out, "MISSING DATA")
}

func TestWriteAnalysisWorkbook(t *testing.T) {
	dir := t.TempDir()
	report := sampleAnalysisReport()

	path, err := WriteWorkbook(dir, report)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "analysis_report_canonical_daily_20251028.xlsx"), path)

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	source, err := f.GetCellValue(sheetSummary, "B1")
	require.NoError(t, err)
	assert.Equal(t, report.Source, source)

	year, err := f.GetCellValue(sheetYears, "A2")
	require.NoError(t, err)
	assert.Equal(t, "2013", year)

	title, err := f.GetCellValue(sheetAgencies, "A1")
	require.NoError(t, err)
	assert.Equal(t, "Top by Contract Count", title)

	agency, err := f.GetCellValue(sheetAgencies, "B3")
	require.NoError(t, err)
	assert.Equal(t, "DEPT OF THE NAVY", agency)

	second, err := f.GetCellValue(sheetAgencies, "A5")
	require.NoError(t, err)
	assert.Equal(t, "Top by Dollars Obligated", second)

	flag, err := f.GetCellValue(sheetFlags, "A2")
	require.NoError(t, err)
	assert.Equal(t, "Small Business", flag)

	missing, err := f.GetCellValue(sheetMissing, "A2")
	require.NoError(t, err)
	assert.Equal(t, "Completion Date", missing)
}

func TestMoneyFormatting(t *testing.T) {
	assert.Equal(t, "$0.00", money(0))
	assert.Equal(t, "$987.00", money(987))
	assert.Equal(t, "$1,234,567.89", money(1234567.89))
	assert.Equal(t, "-$5,000.00", money(-5000))
	assert.Equal(t, "1,234,567", grouped(1234567))
	assert.Equal(t, "-42", grouped(-42))
}

func TestReportFileNames(t *testing.T) {
	assert.Equal(t, "analysis_report_canonical_abc.txt", ReportFileName("/data/datasets/canonical_abc.csv"))
	assert.Equal(t, "analysis_report_canonical_abc.xlsx", WorkbookFileName("canonical_abc.csv"))
}
