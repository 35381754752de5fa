package analysis

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"fedflow/pkg/contracts/domain"
)

// WriteText renders the report as a sectioned plain-text summary. Sections
// with nothing to say are omitted.
func WriteText(w io.Writer, report Report) error {
	var b strings.Builder

	heading(&b, "FEDERAL CONTRACT DATASET ANALYSIS", '=')
	fmt.Fprintf(&b, "Source:    %s\n", report.Source)
	fmt.Fprintf(&b, "Generated: %s\n\n", report.GeneratedAt.Format("2006-01-02 15:04:05 MST"))

	heading(&b, "OVERVIEW", '-')
	fmt.Fprintf(&b, "Rows:          %s\n", grouped(report.Rows))
	if !report.DateMin.IsZero() {
		fmt.Fprintf(&b, "Date range:    %s to %s\n",
			report.DateMin.Format(domain.DateLayout), report.DateMax.Format(domain.DateLayout))
	}
	fmt.Fprintf(&b, "Completeness:  %.1f%%\n\n", report.Completeness)

	writeDollarSection(&b, report.Dollars, report.Rows)
	writeYearSection(&b, report.FiscalYears)
	writeGroupSection(&b, "TOP FUNDING AGENCIES BY CONTRACT COUNT", report.TopAgenciesByRows)
	writeGroupSection(&b, "TOP FUNDING AGENCIES BY DOLLARS OBLIGATED", report.TopAgenciesByDollars)
	writeTypeSection(&b, report.InstrumentTypes, report.Rows)
	writeFlagSection(&b, report.SmallBusiness)
	writeGroupSection(&b, "TOP VENDORS BY CONTRACT COUNT", report.TopVendorsByRows)
	writeGroupSection(&b, "TOP VENDORS BY DOLLARS OBLIGATED", report.TopVendorsByDollars)
	writeMissingSection(&b, report.MissingColumns)

	_, err := io.WriteString(w, b.String())
	return err
}

func heading(b *strings.Builder, s string, underline rune) {
	b.WriteString(s)
	b.WriteByte('\n')
	b.WriteString(strings.Repeat(string(underline), len(s)))
	b.WriteByte('\n')
}

func writeDollarSection(b *strings.Builder, stats DollarStats, rows int64) {
	if stats.Known == 0 {
		return
	}
	heading(b, "DOLLARS OBLIGATED", '-')
	fmt.Fprintf(b, "Known:   %s of %s rows\n", grouped(stats.Known), grouped(rows))
	fmt.Fprintf(b, "Total:   %s\n", money(stats.Total))
	fmt.Fprintf(b, "Mean:    %s\n", money(stats.Mean))
	fmt.Fprintf(b, "Median:  %s\n", money(stats.Median))
	fmt.Fprintf(b, "Min:     %s\n", money(stats.Min))
	fmt.Fprintf(b, "Max:     %s\n\n", money(stats.Max))
}

func writeYearSection(b *strings.Builder, years []YearCount) {
	if len(years) == 0 {
		return
	}
	heading(b, "FISCAL YEARS", '-')
	tw := tabwriter.NewWriter(b, 0, 0, 2, ' ', tabwriter.AlignRight)
	for _, y := range years {
		fmt.Fprintf(tw, "%d\t%s rows\t\n", y.Year, grouped(y.Rows))
	}
	tw.Flush()
	b.WriteByte('\n')
}

func writeGroupSection(b *strings.Builder, title string, groups []GroupStat) {
	if len(groups) == 0 {
		return
	}
	heading(b, title, '-')
	tw := tabwriter.NewWriter(b, 0, 0, 2, ' ', tabwriter.AlignRight)
	for i, g := range groups {
		fmt.Fprintf(tw, "%d.\t%s rows\t%s\t%s\n", i+1, grouped(g.Rows), money(g.Dollars), g.Name)
	}
	tw.Flush()
	b.WriteByte('\n')
}

func writeTypeSection(b *strings.Builder, types []GroupStat, rows int64) {
	if len(types) == 0 {
		return
	}
	heading(b, "CONTRACT TYPES", '-')
	tw := tabwriter.NewWriter(b, 0, 0, 2, ' ', tabwriter.AlignRight)
	for _, g := range types {
		share := 0.0
		if rows > 0 {
			share = float64(g.Rows) / float64(rows) * 100
		}
		fmt.Fprintf(tw, "%s rows\t%.1f%%\t%s\t%s\n", grouped(g.Rows), share, money(g.Dollars), g.Name)
	}
	tw.Flush()
	b.WriteByte('\n')
}

func writeFlagSection(b *strings.Builder, flags []FlagStat) {
	if len(flags) == 0 {
		return
	}
	heading(b, "SMALL BUSINESS PARTICIPATION", '-')
	tw := tabwriter.NewWriter(b, 0, 0, 2, ' ', tabwriter.AlignRight)
	for _, f := range flags {
		fmt.Fprintf(tw, "%s of %s\t%.1f%%\t%s\t%.1f%% of dollars\t%s\n",
			grouped(f.True), grouped(f.Known), f.Rate, money(f.Dollars), f.DollarShare, f.Flag)
	}
	tw.Flush()
	b.WriteByte('\n')
}

func writeMissingSection(b *strings.Builder, columns []ColumnStat) {
	if len(columns) == 0 {
		return
	}
	heading(b, "MISSING DATA", '-')
	tw := tabwriter.NewWriter(b, 0, 0, 2, ' ', tabwriter.AlignRight)
	for _, c := range columns {
		fmt.Fprintf(tw, "%s rows\t%.1f%%\t%s\n", grouped(c.Rows), c.Share, c.Column)
	}
	tw.Flush()
	b.WriteByte('\n')
}

// money renders a dollar amount with comma grouping, sign before the symbol.
func money(v float64) string {
	s := strconv.FormatFloat(v, 'f', 2, 64)
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	dot := strings.IndexByte(s, '.')
	s = groupDigits(s[:dot]) + s[dot:]
	if neg {
		return "-$" + s
	}
	return "$" + s
}

func grouped(n int64) string {
	s := strconv.FormatInt(n, 10)
	if strings.HasPrefix(s, "-") {
		return "-" + groupDigits(s[1:])
	}
	return groupDigits(s)
}

func groupDigits(digits string) string {
	if len(digits) <= 3 {
		return digits
	}
	var b strings.Builder
	head := len(digits) % 3
	if head > 0 {
		b.WriteString(digits[:head])
	}
	for i := head; i < len(digits); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(digits[i : i+3])
	}
	return b.String()
}
