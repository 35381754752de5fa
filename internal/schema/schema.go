package schema

import (
	"fmt"

	"fedflow/pkg/contracts/domain"
)

// Range bounds a numeric column. Values outside the bounds are validation
// errors and are degraded to missing.
type Range struct {
	Min float64 `yaml:"min" json:"min"`
	Max float64 `yaml:"max" json:"max"`
}

// FieldSpec describes one canonical column: its header, the raw source column
// it is populated from, its declared kind, and its validation flags.
type FieldSpec struct {
	Header string      `yaml:"header" json:"header"`
	Source string      `yaml:"source" json:"source"`
	Kind   domain.Kind `yaml:"kind" json:"kind"`
	// Required columns missing in a record raise CRITICAL issues.
	Required bool `yaml:"required" json:"required"`
	// Optional marks source columns that are known to be absent from some
	// exports; their structural absence reports INFO instead of WARNING.
	Optional bool   `yaml:"optional" json:"optional"`
	Range    *Range `yaml:"range" json:"range,omitempty"`
}

// Table is the validated, immutable field-spec set for a run.
type Table struct {
	specs    []FieldSpec
	headers  []string
	kinds    map[string]domain.Kind
	byHeader map[string]FieldSpec
}

// NewTable validates the spec list and builds the lookup table. Header order
// is preserved as given; it is the stable column order of every artifact.
func NewTable(specs []FieldSpec) (*Table, error) {
	if len(specs) == 0 {
		return nil, fmt.Errorf("field-spec table is empty")
	}

	t := &Table{
		specs:    make([]FieldSpec, len(specs)),
		headers:  make([]string, 0, len(specs)),
		kinds:    make(map[string]domain.Kind, len(specs)),
		byHeader: make(map[string]FieldSpec, len(specs)),
	}
	copy(t.specs, specs)

	for i, spec := range t.specs {
		if spec.Header == "" {
			return nil, fmt.Errorf("field spec %d: header is empty", i)
		}
		if !spec.Kind.Valid() {
			return nil, fmt.Errorf("field spec %q: unknown kind %q", spec.Header, spec.Kind)
		}
		if _, dup := t.byHeader[spec.Header]; dup {
			return nil, fmt.Errorf("field spec %q: duplicate header", spec.Header)
		}
		if spec.Range != nil {
			if spec.Kind != domain.KindDecimal && spec.Kind != domain.KindInteger {
				return nil, fmt.Errorf("field spec %q: range rule on non-numeric kind %q", spec.Header, spec.Kind)
			}
			if spec.Range.Min > spec.Range.Max {
				return nil, fmt.Errorf("field spec %q: range min %v exceeds max %v", spec.Header, spec.Range.Min, spec.Range.Max)
			}
		}
		t.headers = append(t.headers, spec.Header)
		t.kinds[spec.Header] = spec.Kind
		t.byHeader[spec.Header] = spec
	}

	return t, nil
}

// Specs returns the field specs in table order.
func (t *Table) Specs() []FieldSpec { return t.specs }

// Headers returns the canonical headers in stable table order.
func (t *Table) Headers() []string { return t.headers }

// Kinds returns the header to kind mapping.
func (t *Table) Kinds() map[string]domain.Kind { return t.kinds }

// Spec returns the spec for a canonical header.
func (t *Table) Spec(header string) (FieldSpec, bool) {
	s, ok := t.byHeader[header]
	return s, ok
}

// Len returns the number of canonical columns.
func (t *Table) Len() int { return len(t.specs) }

// NewRecord returns a record with every canonical header present and missing.
func (t *Table) NewRecord() domain.Record {
	return domain.NewRecord(t.headers, t.kinds)
}

// RequiredHeaders returns the headers flagged required, in table order.
func (t *Table) RequiredHeaders() []string {
	var out []string
	for _, s := range t.specs {
		if s.Required {
			out = append(out, s.Header)
		}
	}
	return out
}
