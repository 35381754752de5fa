package analysis

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"fedflow/internal/schema"
	"fedflow/pkg/contracts/domain"
)

// loadCheckInterval is how many rows are read between context checks.
const loadCheckInterval = 4096

// LoadDataset reads a canonical dataset artifact back into records. Every
// column in the header row must be declared by the table; cells parse by
// their declared kind, with the empty string as the missing marker. Unlike
// raw bulk extracts, canonical artifacts are rectangular, so a ragged row is
// an error rather than something to reconcile.
func LoadDataset(ctx context.Context, path string, table *schema.Table) ([]domain.Record, error) {
	base := filepath.Base(path)

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open dataset: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)

	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("dataset %s: missing header row", base)
	}
	if err != nil {
		return nil, fmt.Errorf("dataset %s: read header: %w", base, err)
	}
	header[0] = strings.TrimPrefix(header[0], "\uFEFF")

	kinds := table.Kinds()
	for _, h := range header {
		if _, ok := kinds[h]; !ok {
			return nil, fmt.Errorf("dataset %s: unknown column %q", base, h)
		}
	}

	var records []domain.Record
	for n := 0; ; n++ {
		if n%loadCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			return records, nil
		}
		if err != nil {
			return nil, fmt.Errorf("dataset %s: row %d: %w", base, n+2, err)
		}

		rec := domain.Record{
			Values:     make(map[string]domain.Value, len(header)),
			Seq:        int64(n + 1),
			SourceFile: base,
		}
		for i, h := range header {
			v, err := parseCell(row[i], kinds[h])
			if err != nil {
				return nil, fmt.Errorf("dataset %s: row %d, column %q: %w", base, n+2, h, err)
			}
			rec.Values[h] = v
		}
		records = append(records, rec)
	}
}

// parseCell inverts Value.Render for one cell.
func parseCell(cell string, kind domain.Kind) (domain.Value, error) {
	if cell == "" {
		return domain.MissingValue(kind), nil
	}
	switch kind {
	case domain.KindDate:
		t, err := time.Parse(domain.DateLayout, cell)
		if err != nil {
			return domain.Value{}, fmt.Errorf("parse date %q: %w", cell, err)
		}
		return domain.DateValue(t), nil
	case domain.KindDecimal:
		d, err := strconv.ParseFloat(cell, 64)
		if err != nil {
			return domain.Value{}, fmt.Errorf("parse decimal %q: %w", cell, err)
		}
		return domain.DecimalValue(d), nil
	case domain.KindInteger:
		i, err := strconv.ParseInt(cell, 10, 64)
		if err != nil {
			return domain.Value{}, fmt.Errorf("parse integer %q: %w", cell, err)
		}
		return domain.IntegerValue(i), nil
	case domain.KindBoolean:
		b, err := strconv.ParseBool(cell)
		if err != nil {
			return domain.Value{}, fmt.Errorf("parse boolean %q: %w", cell, err)
		}
		return domain.BoolValue(b), nil
	default:
		return domain.TextValue(cell), nil
	}
}
