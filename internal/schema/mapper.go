package schema

// RawCell is one mapper output cell: whether the source column supplied a
// value for this row, and the raw text if so. Typing happens downstream in
// the coercion unit.
type RawCell struct {
	Present bool
	Raw     string
}

// Projected is the mapper output for one raw row: a cell for every canonical
// header, keyed by header.
type Projected struct {
	Cells map[string]RawCell
}

// Mapper projects raw source rows onto the canonical header set. It is a pure
// lookup over the field-spec table; absence of a source column marks the
// canonical field missing and never fails the record.
type Mapper struct {
	table *Table
}

// NewMapper returns a mapper over the given table.
func NewMapper(table *Table) *Mapper {
	return &Mapper{table: table}
}

// Map projects one raw row. Every canonical header receives a cell; headers
// whose source column is absent from the row get Present=false.
func (m *Mapper) Map(raw map[string]string) Projected {
	cells := make(map[string]RawCell, m.table.Len())
	for _, spec := range m.table.specs {
		if spec.Source == "" {
			cells[spec.Header] = RawCell{}
			continue
		}
		v, ok := raw[spec.Source]
		if !ok {
			cells[spec.Header] = RawCell{}
			continue
		}
		cells[spec.Header] = RawCell{Present: true, Raw: v}
	}
	return Projected{Cells: cells}
}

// Presence tracks, across a batch, which canonical headers were backed by a
// source column in at least one row. Workers keep their own Presence and
// merge at the batch synchronization point.
type Presence struct {
	seen map[string]bool
}

// NewPresence returns an empty tracker.
func NewPresence() *Presence {
	return &Presence{seen: make(map[string]bool)}
}

// Observe marks every header the projected row had a present cell for.
func (p *Presence) Observe(row Projected) {
	for header, cell := range row.Cells {
		if cell.Present {
			p.seen[header] = true
		}
	}
}

// Merge folds another tracker into this one.
func (p *Presence) Merge(o *Presence) {
	if o == nil {
		return
	}
	for header := range o.seen {
		p.seen[header] = true
	}
}

// Seen reports whether the header was populated in any observed row.
func (p *Presence) Seen(header string) bool { return p.seen[header] }

// Absent returns the specs whose header was never populated in any observed
// row: the structurally absent columns of the batch.
func (p *Presence) Absent(t *Table) []FieldSpec {
	var out []FieldSpec
	for _, spec := range t.specs {
		if !p.seen[spec.Header] {
			out = append(out, spec)
		}
	}
	return out
}
