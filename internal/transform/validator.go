package transform

import (
	"fedflow/internal/schema"
	"fedflow/pkg/contracts/domain"
)

// Validator applies required-field and range rules to coerced records.
// Validation is row-local: it flags and degrades values, and it never drops
// or reorders a row. Downstream consumers decide whether to filter flagged
// rows.
type Validator struct {
	table    *schema.Table
	required []string
}

// NewValidator builds a validator from the table. requiredOverride, when
// non-nil, replaces the table's required-header set (it is config after all).
func NewValidator(table *schema.Table, requiredOverride []string) *Validator {
	required := requiredOverride
	if required == nil {
		required = table.RequiredHeaders()
	}
	return &Validator{table: table, required: required}
}

// Validate checks one record in place. Required columns that are missing are
// tallied as CRITICAL evidence; numeric values outside their configured range
// are tallied as ERROR evidence and degraded to missing so clearly-wrong data
// does not propagate. Returns whether the record carries at least one
// CRITICAL violation (the record is retained either way).
func (v *Validator) Validate(rec *domain.Record, acc *Accumulator) bool {
	flagged := false

	for _, header := range v.required {
		if rec.Value(header).IsMissing() {
			acc.RequiredMissing[header]++
			flagged = true
		}
	}

	for _, spec := range v.table.Specs() {
		if spec.Range == nil {
			continue
		}
		val := rec.Value(spec.Header)
		f, ok := val.Float()
		if !ok {
			continue
		}
		if f < spec.Range.Min || f > spec.Range.Max {
			acc.RangeViolations[spec.Header]++
			rec.Values[spec.Header] = domain.MissingValue(spec.Kind)
		}
	}

	return flagged
}
