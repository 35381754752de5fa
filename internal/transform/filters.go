package transform

import (
	"fedflow/pkg/contracts/domain"
)

// FilterRules are the optional row filters applied between coercion and
// validation. All zero values mean "no filtering".
type FilterRules struct {
	FiscalYearMin   int
	FiscalYearMax   int
	MinDollars      *float64
	InstrumentTypes []string
	Agencies        []string
}

// Enabled reports whether any filter is configured.
func (r FilterRules) Enabled() bool {
	return (r.FiscalYearMin != 0 && r.FiscalYearMax != 0) ||
		r.MinDollars != nil ||
		len(r.InstrumentTypes) > 0 ||
		len(r.Agencies) > 0
}

// Filter drops records outside the configured business slices.
type Filter struct {
	rules       FilterRules
	instruments map[string]struct{}
	agencies    map[string]struct{}
}

// NewFilter compiles the rules. Returns nil when nothing is configured so
// callers can skip the pass entirely.
func NewFilter(rules FilterRules) *Filter {
	if !rules.Enabled() {
		return nil
	}
	f := &Filter{rules: rules}
	if len(rules.InstrumentTypes) > 0 {
		f.instruments = make(map[string]struct{}, len(rules.InstrumentTypes))
		for _, t := range rules.InstrumentTypes {
			f.instruments[t] = struct{}{}
		}
	}
	if len(rules.Agencies) > 0 {
		f.agencies = make(map[string]struct{}, len(rules.Agencies))
		for _, a := range rules.Agencies {
			f.agencies[a] = struct{}{}
		}
	}
	return f
}

// Keep reports whether the record survives the filters; rejected records are
// tallied per filter name in acc. Missing values never match an exclusion:
// a record without a fiscal year is not "outside" the fiscal-year slice.
func (f *Filter) Keep(rec domain.Record, acc *Accumulator) bool {
	if f.rules.FiscalYearMin != 0 && f.rules.FiscalYearMax != 0 {
		if y, ok := rec.Value(domain.HeaderFiscalYear).Float(); ok {
			if y < float64(f.rules.FiscalYearMin) || y > float64(f.rules.FiscalYearMax) {
				acc.FilteredRows["fiscal_year_range"]++
				return false
			}
		}
	}
	if f.rules.MinDollars != nil {
		if d, ok := rec.Value(domain.HeaderDollarsObligated).Float(); ok && d < *f.rules.MinDollars {
			acc.FilteredRows["min_dollars_obligated"]++
			return false
		}
	}
	if f.instruments != nil {
		v := rec.Value(domain.HeaderInstrumentType)
		if !v.IsMissing() {
			if _, ok := f.instruments[v.Text()]; !ok {
				acc.FilteredRows["instrument_types"]++
				return false
			}
		}
	}
	if f.agencies != nil {
		v := rec.Value(domain.HeaderFundingAgencyName)
		if !v.IsMissing() {
			if _, ok := f.agencies[v.Text()]; !ok {
				acc.FilteredRows["agencies"]++
				return false
			}
		}
	}
	return true
}
