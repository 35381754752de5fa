package domain

import "time"

// Severity classifies a quality issue. Order matters: reports sort CRITICAL
// first.
type Severity string

const (
	SeverityCritical Severity = "CRITICAL"
	SeverityError    Severity = "ERROR"
	SeverityWarning  Severity = "WARNING"
	SeverityInfo     Severity = "INFO"
)

// Rank returns the sort weight of the severity, highest first.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 4
	case SeverityError:
		return 3
	case SeverityWarning:
		return 2
	case SeverityInfo:
		return 1
	}
	return 0
}

// Issue is one data-quality finding: which column, how bad, what happened,
// and how many rows were affected. Immutable once emitted.
type Issue struct {
	Column   string   `json:"column"`
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
	Rows     int64    `json:"affected_rows"`
}

// ColumnProfile describes one canonical column over the final dataset.
type ColumnProfile struct {
	Column          string   `json:"column"`
	Kind            Kind     `json:"kind"`
	NullCount       int64    `json:"null_count"`
	NullRate        float64  `json:"null_rate"`
	CoercionFails   int64    `json:"coercion_failures"`
	CoercionRate    float64  `json:"coercion_failure_rate"`
	DistinctCount   int64    `json:"distinct_count,omitempty"`
	DistinctCapped  bool     `json:"distinct_capped,omitempty"`
	NumericMin      *float64 `json:"numeric_min,omitempty"`
	NumericMax      *float64 `json:"numeric_max,omitempty"`
	NumericMean     *float64 `json:"numeric_mean,omitempty"`
	TextAvgLength   *float64 `json:"text_avg_length,omitempty"`
	TextMaxLength   *int64   `json:"text_max_length,omitempty"`
	TrueCount       int64    `json:"true_count,omitempty"`
	FalseCount      int64    `json:"false_count,omitempty"`
	StructurallyAbsent bool  `json:"structurally_absent,omitempty"`
}

// QualityReport aggregates every issue and per-column statistic for one run.
type QualityReport struct {
	RunID       string          `json:"run_id"`
	GeneratedAt time.Time       `json:"generated_at"`
	RowCount    int64           `json:"row_count"`
	RawRowCount int64           `json:"raw_row_count"`
	// Completeness is the mean of (1 - null_rate) across all canonical
	// columns, in [0, 1].
	Completeness float64         `json:"completeness"`
	Columns      []ColumnProfile `json:"columns"`
	// Issues are sorted by severity descending, then column name.
	Issues []Issue `json:"issues"`
	Counts IssueCounts `json:"issue_counts"`
}

// IssueCounts summarizes issues by severity for quick triage.
type IssueCounts struct {
	Critical int `json:"critical"`
	Error    int `json:"error"`
	Warning  int `json:"warning"`
	Info     int `json:"info"`
}

// Total returns the total number of issues.
func (c IssueCounts) Total() int {
	return c.Critical + c.Error + c.Warning + c.Info
}
