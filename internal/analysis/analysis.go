package analysis

import (
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"fedflow/internal/schema"
	"fedflow/pkg/contracts/domain"
)

// DefaultTopN bounds the agency and vendor rankings.
const DefaultTopN = 10

// vendorFlagPrefix strips the shared column prefix from small-business flag
// names for display.
const vendorFlagPrefix = "Is Vendor Business Type - "

// Report is the computed insight set over one canonical dataset.
type Report struct {
	Source      string    `json:"source"`
	GeneratedAt time.Time `json:"generated_at"`

	Rows    int64       `json:"rows"`
	DateMin time.Time   `json:"date_min,omitempty"`
	DateMax time.Time   `json:"date_max,omitempty"`
	Dollars DollarStats `json:"dollars"`

	FiscalYears          []YearCount  `json:"fiscal_years,omitempty"`
	TopAgenciesByRows    []GroupStat  `json:"top_agencies_by_rows,omitempty"`
	TopAgenciesByDollars []GroupStat  `json:"top_agencies_by_dollars,omitempty"`
	TopVendorsByRows     []GroupStat  `json:"top_vendors_by_rows,omitempty"`
	TopVendorsByDollars  []GroupStat  `json:"top_vendors_by_dollars,omitempty"`
	InstrumentTypes      []GroupStat  `json:"instrument_types,omitempty"`
	SmallBusiness        []FlagStat   `json:"small_business,omitempty"`
	MissingColumns       []ColumnStat `json:"missing_columns,omitempty"`
	Completeness         float64      `json:"completeness"`
}

// DollarStats summarizes the obligated-dollars column over non-missing cells.
type DollarStats struct {
	Known  int64   `json:"known"`
	Total  float64 `json:"total"`
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
}

// YearCount is one fiscal year's row count.
type YearCount struct {
	Year int64 `json:"year"`
	Rows int64 `json:"rows"`
}

// GroupStat is one grouping value's row count and dollar sum.
type GroupStat struct {
	Name    string  `json:"name"`
	Rows    int64   `json:"rows"`
	Dollars float64 `json:"dollars"`
}

// FlagStat is one small-business flag's participation summary. Rate and
// DollarShare are percentages.
type FlagStat struct {
	Flag        string  `json:"flag"`
	True        int64   `json:"true"`
	Known       int64   `json:"known"`
	Rate        float64 `json:"rate"`
	Dollars     float64 `json:"dollars"`
	DollarShare float64 `json:"dollar_share"`
}

// ColumnStat is one column's missing-cell count.
type ColumnStat struct {
	Column string  `json:"column"`
	Rows   int64   `json:"rows"`
	Share  float64 `json:"share"`
}

// Analyzer computes reports against one schema table.
type Analyzer struct {
	table  *schema.Table
	topN   int
	logger *slog.Logger
}

// NewAnalyzer builds an analyzer. topN <= 0 uses DefaultTopN.
func NewAnalyzer(table *schema.Table, topN int, logger *slog.Logger) *Analyzer {
	if topN <= 0 {
		topN = DefaultTopN
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Analyzer{
		table:  table,
		topN:   topN,
		logger: logger.With(slog.String("component", "analysis")),
	}
}

// Analyze computes the full report. Missing cells never contribute to a
// grouping or a sum; rankings break ties by name so output is deterministic.
func (a *Analyzer) Analyze(source string, records []domain.Record, generatedAt time.Time) Report {
	report := Report{
		Source:      source,
		GeneratedAt: generatedAt.UTC(),
		Rows:        int64(len(records)),
	}
	if len(records) == 0 {
		return report
	}

	report.Dollars = dollarStats(records)
	report.DateMin, report.DateMax = dateRange(records)
	report.FiscalYears = fiscalYears(records)

	agencies := groupBy(records, domain.HeaderFundingAgencyName)
	report.TopAgenciesByRows = topBy(agencies, a.topN, byRows)
	report.TopAgenciesByDollars = topBy(agencies, a.topN, byDollars)

	vendors := groupBy(records, domain.HeaderLegalBusinessName)
	report.TopVendorsByRows = topBy(vendors, a.topN, byRows)
	report.TopVendorsByDollars = topBy(vendors, a.topN, byDollars)

	// The instrument distribution is small; report it whole.
	report.InstrumentTypes = topBy(groupBy(records, domain.HeaderInstrumentType), 0, byRows)

	report.SmallBusiness = a.flagStats(records, report.Dollars.Total)
	report.MissingColumns, report.Completeness = a.missingColumns(records)

	a.logger.Debug("dataset analyzed",
		slog.String("source", source),
		slog.Int64("rows", report.Rows))
	return report
}

func dollarStats(records []domain.Record) DollarStats {
	values := make([]float64, 0, len(records))
	for _, rec := range records {
		if f, ok := rec.Values[domain.HeaderDollarsObligated].Float(); ok {
			values = append(values, f)
		}
	}
	if len(values) == 0 {
		return DollarStats{}
	}

	sort.Float64s(values)
	stats := DollarStats{
		Known: int64(len(values)),
		Min:   values[0],
		Max:   values[len(values)-1],
	}
	for _, v := range values {
		stats.Total += v
	}
	stats.Mean = stats.Total / float64(len(values))
	mid := len(values) / 2
	if len(values)%2 == 0 {
		stats.Median = (values[mid-1] + values[mid]) / 2
	} else {
		stats.Median = values[mid]
	}
	return stats
}

func dateRange(records []domain.Record) (min, max time.Time) {
	for _, rec := range records {
		v := rec.Values[domain.HeaderDateSigned]
		if v.IsMissing() || v.Kind != domain.KindDate {
			continue
		}
		d := v.Date()
		if min.IsZero() || d.Before(min) {
			min = d
		}
		if max.IsZero() || d.After(max) {
			max = d
		}
	}
	return min, max
}

func fiscalYears(records []domain.Record) []YearCount {
	counts := make(map[int64]int64)
	for _, rec := range records {
		v := rec.Values[domain.HeaderFiscalYear]
		if v.IsMissing() || v.Kind != domain.KindInteger {
			continue
		}
		counts[v.Integer()]++
	}
	years := make([]YearCount, 0, len(counts))
	for year, rows := range counts {
		years = append(years, YearCount{Year: year, Rows: rows})
	}
	sort.Slice(years, func(i, j int) bool { return years[i].Year < years[j].Year })
	return years
}

func groupBy(records []domain.Record, header string) []GroupStat {
	groups := make(map[string]*GroupStat)
	for _, rec := range records {
		v := rec.Values[header]
		if v.IsMissing() {
			continue
		}
		name := v.Render()
		stat, ok := groups[name]
		if !ok {
			stat = &GroupStat{Name: name}
			groups[name] = stat
		}
		stat.Rows++
		if f, ok := rec.Values[domain.HeaderDollarsObligated].Float(); ok {
			stat.Dollars += f
		}
	}
	out := make([]GroupStat, 0, len(groups))
	for _, stat := range groups {
		out = append(out, *stat)
	}
	return out
}

type rankKey func(GroupStat) float64

func byRows(s GroupStat) float64    { return float64(s.Rows) }
func byDollars(s GroupStat) float64 { return s.Dollars }

// topBy sorts descending by key, name ascending on ties, and truncates to n.
// n <= 0 keeps everything.
func topBy(groups []GroupStat, n int, key rankKey) []GroupStat {
	out := make([]GroupStat, len(groups))
	copy(out, groups)
	sort.Slice(out, func(i, j int) bool {
		ki, kj := key(out[i]), key(out[j])
		if ki != kj {
			return ki > kj
		}
		return out[i].Name < out[j].Name
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

func (a *Analyzer) flagStats(records []domain.Record, totalDollars float64) []FlagStat {
	var stats []FlagStat
	for _, spec := range a.table.Specs() {
		if spec.Kind != domain.KindBoolean {
			continue
		}
		stat := FlagStat{Flag: strings.TrimPrefix(spec.Header, vendorFlagPrefix)}
		for _, rec := range records {
			v := rec.Values[spec.Header]
			if v.IsMissing() {
				continue
			}
			stat.Known++
			if v.Bool() {
				stat.True++
				if f, ok := rec.Values[domain.HeaderDollarsObligated].Float(); ok {
					stat.Dollars += f
				}
			}
		}
		if stat.Known > 0 {
			stat.Rate = float64(stat.True) / float64(stat.Known) * 100
		}
		if totalDollars != 0 {
			stat.DollarShare = stat.Dollars / totalDollars * 100
		}
		stats = append(stats, stat)
	}
	return stats
}

func (a *Analyzer) missingColumns(records []domain.Record) ([]ColumnStat, float64) {
	headers := a.table.Headers()
	var out []ColumnStat
	var missingCells int64

	for _, header := range headers {
		var count int64
		for _, rec := range records {
			if rec.Values[header].IsMissing() {
				count++
			}
		}
		missingCells += count
		if count > 0 {
			out = append(out, ColumnStat{
				Column: header,
				Rows:   count,
				Share:  float64(count) / float64(len(records)) * 100,
			})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Rows != out[j].Rows {
			return out[i].Rows > out[j].Rows
		}
		return out[i].Column < out[j].Column
	})

	totalCells := int64(len(records)) * int64(len(headers))
	completeness := 100.0
	if totalCells > 0 {
		completeness = float64(totalCells-missingCells) / float64(totalCells) * 100
	}
	return out, completeness
}

// ReportFileName returns the default text-report name for a dataset artifact.
func ReportFileName(datasetPath string) string {
	return "analysis_report_" + datasetStem(datasetPath) + ".txt"
}

// WorkbookFileName returns the default workbook name for a dataset artifact.
func WorkbookFileName(datasetPath string) string {
	return "analysis_report_" + datasetStem(datasetPath) + ".xlsx"
}

func datasetStem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
