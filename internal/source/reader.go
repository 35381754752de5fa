package source

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"fedflow/pkg/contracts/domain"
)

// readCheckInterval is how many rows are read between context checks.
const readCheckInterval = 4096

// CountRows scans one artifact and returns its data row count. The scan
// parses CSV for real, so quoted embedded newlines do not inflate the count
// and a malformed file surfaces here instead of mid-transform.
func CountRows(ctx context.Context, path string) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.ReuseRecord = true

	if _, err := r.Read(); err != nil {
		if errors.Is(err, io.EOF) {
			return 0, errors.New("missing header row")
		}
		return 0, err
	}

	var rows int64
	for {
		if rows%readCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return 0, err
			}
		}
		if _, err := r.Read(); err != nil {
			if errors.Is(err, io.EOF) {
				return rows, nil
			}
			return rows, err
		}
		rows++
	}
}

// ReadRows loads the data rows of every artifact, in artifact order. The
// first row of each artifact is its header; data rows are keyed by those
// headers. Seq increases in read order across all artifacts so downstream
// resolution can tell which of two otherwise identical rows arrived last.
func ReadRows(ctx context.Context, artifacts []Artifact) ([]domain.RawRecord, error) {
	var rows []domain.RawRecord
	var seq int64
	for _, artifact := range artifacts {
		if err := readArtifact(ctx, artifact, &rows, &seq); err != nil {
			return nil, err
		}
	}
	return rows, nil
}

func readArtifact(ctx context.Context, artifact Artifact, rows *[]domain.RawRecord, seq *int64) error {
	f, err := os.Open(artifact.Path)
	if err != nil {
		return fmt.Errorf("open artifact %s: %w", artifact.Name, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	// Bulk extracts occasionally carry ragged rows; length is reconciled
	// against the header below instead of failing the whole artifact.
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return fmt.Errorf("artifact %s: missing header row", artifact.Name)
	}
	if err != nil {
		return fmt.Errorf("artifact %s: read header: %w", artifact.Name, err)
	}
	header[0] = strings.TrimPrefix(header[0], "\uFEFF")

	for n := 0; ; n++ {
		if n%readCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("artifact %s: row %d: %w", artifact.Name, n+2, err)
		}

		values := make(map[string]string, len(header))
		for i, h := range header {
			if i < len(row) {
				values[h] = row[i]
			}
		}
		*seq++
		*rows = append(*rows, domain.RawRecord{
			Values:     values,
			SourceFile: artifact.Name,
			Seq:        *seq,
		})
	}
}
