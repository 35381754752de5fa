package quality

import (
	"sort"
	"time"

	"fedflow/internal/schema"
	"fedflow/internal/transform"
	"fedflow/pkg/contracts/domain"
)

// DefaultDistinctCap bounds distinct-value counting. Columns exceeding the
// cap report DistinctCapped instead of an exact count; booleans and
// instrument types stay well under it.
const DefaultDistinctCap = 50

// Profiler computes the quality report for one run.
type Profiler struct {
	table       *schema.Table
	distinctCap int
}

// NewProfiler builds a profiler over the table. distinctCap <= 0 falls back
// to DefaultDistinctCap.
func NewProfiler(table *schema.Table, distinctCap int) *Profiler {
	if distinctCap <= 0 {
		distinctCap = DefaultDistinctCap
	}
	return &Profiler{table: table, distinctCap: distinctCap}
}

// Profile aggregates the final record set and the transform evidence into a
// report. records must already be deduplicated; acc carries the merged
// tallies and issues from the transform sub-pipeline.
func (p *Profiler) Profile(runID string, generatedAt time.Time, records []domain.Record, result *transform.Result) domain.QualityReport {
	report := domain.QualityReport{
		RunID:       runID,
		GeneratedAt: generatedAt.UTC(),
		RowCount:    int64(len(records)),
	}
	if result != nil {
		report.RawRowCount = result.RawRows
	}

	rows := int64(len(records))
	var completenessSum float64

	for _, spec := range p.table.Specs() {
		profile := p.profileColumn(spec, records, rows, result)
		completenessSum += 1 - profile.NullRate
		report.Columns = append(report.Columns, profile)
	}
	if n := len(report.Columns); n > 0 {
		report.Completeness = completenessSum / float64(n)
	}

	if result != nil {
		report.Issues = append(report.Issues, result.Issues...)
	}
	SortIssues(report.Issues)
	for _, issue := range report.Issues {
		switch issue.Severity {
		case domain.SeverityCritical:
			report.Counts.Critical++
		case domain.SeverityError:
			report.Counts.Error++
		case domain.SeverityWarning:
			report.Counts.Warning++
		case domain.SeverityInfo:
			report.Counts.Info++
		}
	}

	return report
}

// profileColumn computes the statistics for one canonical column.
func (p *Profiler) profileColumn(spec schema.FieldSpec, records []domain.Record, rows int64, result *transform.Result) domain.ColumnProfile {
	profile := domain.ColumnProfile{Column: spec.Header, Kind: spec.Kind}

	distinct := make(map[string]struct{})
	distinctOverflow := false
	var (
		numericCount int64
		numericSum   float64
		numericMin   float64
		numericMax   float64
		textCount    int64
		textLenSum   int64
		textLenMax   int64
	)

	for _, rec := range records {
		v := rec.Value(spec.Header)
		if v.IsMissing() {
			profile.NullCount++
			continue
		}

		if !distinctOverflow {
			key := v.Render()
			distinct[key] = struct{}{}
			if len(distinct) > p.distinctCap {
				distinctOverflow = true
			}
		}

		switch spec.Kind {
		case domain.KindDecimal, domain.KindInteger:
			f, _ := v.Float()
			if numericCount == 0 || f < numericMin {
				numericMin = f
			}
			if numericCount == 0 || f > numericMax {
				numericMax = f
			}
			numericSum += f
			numericCount++
		case domain.KindText:
			l := int64(len(v.Text()))
			textLenSum += l
			if l > textLenMax {
				textLenMax = l
			}
			textCount++
		case domain.KindBoolean:
			if v.Bool() {
				profile.TrueCount++
			} else {
				profile.FalseCount++
			}
		}
	}

	if rows > 0 {
		profile.NullRate = float64(profile.NullCount) / float64(rows)
	} else {
		// An empty dataset has no evidence of presence; every column counts
		// as fully null so completeness reads zero, not perfect.
		profile.NullRate = 1
	}

	if distinctOverflow {
		profile.DistinctCapped = true
		profile.DistinctCount = int64(p.distinctCap)
	} else {
		profile.DistinctCount = int64(len(distinct))
	}

	if numericCount > 0 {
		mean := numericSum / float64(numericCount)
		profile.NumericMin = &numericMin
		profile.NumericMax = &numericMax
		profile.NumericMean = &mean
	}
	if textCount > 0 {
		avg := float64(textLenSum) / float64(textCount)
		profile.TextAvgLength = &avg
		profile.TextMaxLength = &textLenMax
	}

	if result != nil {
		profile.CoercionFails = result.Accumulator.CoercionFailures[spec.Header]
		if result.RawRows > 0 {
			profile.CoercionRate = float64(profile.CoercionFails) / float64(result.RawRows)
		}
		profile.StructurallyAbsent = !result.Accumulator.Presence.Seen(spec.Header)
	}

	return profile
}

// SortIssues orders issues severity-descending, then column name, then
// message for a stable report.
func SortIssues(issues []domain.Issue) {
	sort.SliceStable(issues, func(i, j int) bool {
		if issues[i].Severity.Rank() != issues[j].Severity.Rank() {
			return issues[i].Severity.Rank() > issues[j].Severity.Rank()
		}
		if issues[i].Column != issues[j].Column {
			return issues[i].Column < issues[j].Column
		}
		return issues[i].Message < issues[j].Message
	})
}
