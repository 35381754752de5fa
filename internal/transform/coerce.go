package transform

import (
	"math"
	"strconv"
	"strings"
	"time"

	"fedflow/internal/schema"
	"fedflow/pkg/contracts/domain"
)

// DefaultDateLayouts are tried in order when parsing date-kind cells.
var DefaultDateLayouts = []string{
	"2006-01-02",
	"2006-01-02T15:04:05",
	time.RFC3339,
	"01/02/2006",
}

// CoercionRules carry the configurable parts of type coercion. The boolean
// token sets exist because the source encodes booleans as bare "t"/"f"
// tokens; which literals count as true/false is a data-source contract that
// may change per export format, so it is configuration, not code.
type CoercionRules struct {
	TrueTokens  []string
	FalseTokens []string
	DateLayouts []string
}

// DefaultCoercionRules match the current bulk export: lowercase "t"/"f" only.
// Anything else, including "T", "1", and empty, is missing; absence is never
// false.
func DefaultCoercionRules() CoercionRules {
	return CoercionRules{
		TrueTokens:  []string{"t"},
		FalseTokens: []string{"f"},
		DateLayouts: DefaultDateLayouts,
	}
}

// Coercer converts raw textual cells into typed canonical values per the
// field-spec kind. It never fails a record: an unusable cell degrades to
// missing and the failure is tallied per column.
type Coercer struct {
	trueTokens  map[string]struct{}
	falseTokens map[string]struct{}
	layouts     []string
}

// NewCoercer builds a coercer from the rules. Empty token sets fall back to
// the defaults.
func NewCoercer(rules CoercionRules) *Coercer {
	if len(rules.TrueTokens) == 0 {
		rules.TrueTokens = []string{"t"}
	}
	if len(rules.FalseTokens) == 0 {
		rules.FalseTokens = []string{"f"}
	}
	if len(rules.DateLayouts) == 0 {
		rules.DateLayouts = DefaultDateLayouts
	}
	c := &Coercer{
		trueTokens:  make(map[string]struct{}, len(rules.TrueTokens)),
		falseTokens: make(map[string]struct{}, len(rules.FalseTokens)),
		layouts:     rules.DateLayouts,
	}
	for _, tok := range rules.TrueTokens {
		c.trueTokens[tok] = struct{}{}
	}
	for _, tok := range rules.FalseTokens {
		c.falseTokens[tok] = struct{}{}
	}
	return c
}

// textSentinels are raw spellings of "no value" produced by upstream export
// tooling.
var textSentinels = map[string]struct{}{
	"nan": {}, "NaN": {}, "NAN": {}, "null": {}, "NULL": {}, "None": {},
}

// Coerce types one projected row into a canonical record. Failed cells are
// tallied into acc; the record always carries the full header set.
func (c *Coercer) Coerce(table *schema.Table, row schema.Projected, acc *Accumulator) domain.Record {
	rec := table.NewRecord()
	for _, spec := range table.Specs() {
		cell := row.Cells[spec.Header]
		if !cell.Present {
			continue // already missing
		}
		value, failed := c.coerceCell(spec.Kind, cell.Raw)
		rec.Values[spec.Header] = value
		if failed {
			acc.TallyCoercionFailure(spec.Header)
		}
	}
	return rec
}

// coerceCell converts one raw cell. The second return reports a coercion
// failure: a non-empty raw that could not be typed. Empty raws are plain
// missing, not failures, except for boolean kind where any unrecognized
// token (empty included) counts against the column per the two-valued
// encoding contract.
func (c *Coercer) coerceCell(kind domain.Kind, raw string) (domain.Value, bool) {
	trimmed := strings.TrimSpace(raw)

	switch kind {
	case domain.KindBoolean:
		if _, ok := c.trueTokens[trimmed]; ok {
			return domain.BoolValue(true), false
		}
		if _, ok := c.falseTokens[trimmed]; ok {
			return domain.BoolValue(false), false
		}
		// Any other token, empty included, is unknown, never false. It is
		// tallied so the profiler can show how much of the column is
		// unusable.
		return domain.MissingValue(kind), true

	case domain.KindDate:
		if trimmed == "" {
			return domain.MissingValue(kind), false
		}
		for _, layout := range c.layouts {
			if t, err := time.Parse(layout, trimmed); err == nil {
				return domain.DateValue(t), false
			}
		}
		return domain.MissingValue(kind), true

	case domain.KindDecimal:
		if trimmed == "" {
			return domain.MissingValue(kind), false
		}
		f, err := parseNumeric(trimmed)
		if err != nil {
			return domain.MissingValue(kind), true
		}
		return domain.DecimalValue(f), false

	case domain.KindInteger:
		if trimmed == "" {
			return domain.MissingValue(kind), false
		}
		f, err := parseNumeric(trimmed)
		if err != nil || f != math.Trunc(f) {
			return domain.MissingValue(kind), true
		}
		return domain.IntegerValue(int64(f)), false

	default: // text
		if trimmed == "" {
			return domain.MissingValue(kind), false
		}
		if _, sentinel := textSentinels[trimmed]; sentinel {
			return domain.MissingValue(kind), false
		}
		return domain.TextValue(trimmed), false
	}
}

// parseNumeric parses numeric text after stripping currency symbols,
// thousands separators, and accounting-style parentheses for negatives.
func parseNumeric(s string) (float64, error) {
	s = strings.TrimSpace(s)
	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = s[1 : len(s)-1]
	}
	s = strings.ReplaceAll(s, "$", "")
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimSpace(s)

	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if negative {
		f = -f
	}
	return f, nil
}
