package transform

import (
	"sort"

	"fedflow/internal/schema"
	"fedflow/pkg/contracts/domain"
)

// Accumulator collects per-worker transformation evidence: coercion-failure
// tallies, validation counts, and source-column presence. Each worker owns
// one; partials merge at the batch synchronization point so hot counters are
// never shared between goroutines.
type Accumulator struct {
	CoercionFailures map[string]int64
	// RequiredMissing counts rows per required column that arrived with the
	// column missing.
	RequiredMissing map[string]int64
	// RangeViolations counts rows per column whose value fell outside the
	// configured range and was degraded to missing.
	RangeViolations map[string]int64
	// FilteredRows counts rows removed per filter name.
	FilteredRows map[string]int64
	Presence     *schema.Presence
	RowsIn       int64
}

// NewAccumulator returns an empty accumulator.
func NewAccumulator() *Accumulator {
	return &Accumulator{
		CoercionFailures: make(map[string]int64),
		RequiredMissing:  make(map[string]int64),
		RangeViolations:  make(map[string]int64),
		FilteredRows:     make(map[string]int64),
		Presence:         schema.NewPresence(),
	}
}

// TallyCoercionFailure records one unusable cell for the column.
func (a *Accumulator) TallyCoercionFailure(column string) {
	a.CoercionFailures[column]++
}

// Merge folds another accumulator into this one. The other accumulator must
// no longer be written to.
func (a *Accumulator) Merge(o *Accumulator) {
	if o == nil {
		return
	}
	for col, n := range o.CoercionFailures {
		a.CoercionFailures[col] += n
	}
	for col, n := range o.RequiredMissing {
		a.RequiredMissing[col] += n
	}
	for col, n := range o.RangeViolations {
		a.RangeViolations[col] += n
	}
	for name, n := range o.FilteredRows {
		a.FilteredRows[name] += n
	}
	a.Presence.Merge(o.Presence)
	a.RowsIn += o.RowsIn
}

// Issues renders the accumulated evidence as quality issues: CRITICAL for
// required columns that arrived missing, ERROR for range violations, WARNING
// for coercion failures, plus structural-absence findings from the presence
// tracker. Output is deterministic (sorted by column within each class).
func (a *Accumulator) Issues(table *schema.Table) []domain.Issue {
	var issues []domain.Issue

	for _, col := range sortedKeys(a.RequiredMissing) {
		issues = append(issues, domain.Issue{
			Column:   col,
			Severity: domain.SeverityCritical,
			Message:  "required field missing",
			Rows:     a.RequiredMissing[col],
		})
	}
	for _, col := range sortedKeys(a.RangeViolations) {
		issues = append(issues, domain.Issue{
			Column:   col,
			Severity: domain.SeverityError,
			Message:  "value outside configured range, degraded to missing",
			Rows:     a.RangeViolations[col],
		})
	}
	for _, col := range sortedKeys(a.CoercionFailures) {
		issues = append(issues, domain.Issue{
			Column:   col,
			Severity: domain.SeverityWarning,
			Message:  "raw value could not be coerced to declared kind",
			Rows:     a.CoercionFailures[col],
		})
	}
	for _, spec := range a.Presence.Absent(table) {
		severity := domain.SeverityWarning
		msg := "source column absent from every input row"
		if spec.Optional {
			severity = domain.SeverityInfo
			msg = "optional source column absent from every input row"
		}
		issues = append(issues, domain.Issue{
			Column:   spec.Header,
			Severity: severity,
			Message:  msg,
			Rows:     a.RowsIn,
		})
	}
	for _, name := range sortedKeys(a.FilteredRows) {
		issues = append(issues, domain.Issue{
			Column:   name,
			Severity: domain.SeverityInfo,
			Message:  "rows removed by configured filter",
			Rows:     a.FilteredRows[name],
		})
	}

	return issues
}

func sortedKeys(m map[string]int64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
