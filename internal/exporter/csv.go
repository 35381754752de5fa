package exporter

import (
	"context"
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"fedflow/internal/schema"
	"fedflow/pkg/contracts/domain"
)

// writeCheckInterval is how many rows are written between context checks.
const writeCheckInterval = 4096

// DatasetFileName returns the deterministic artifact name for a run's
// canonical dataset.
func DatasetFileName(runID string) string {
	return fmt.Sprintf("canonical_%s.csv", runID)
}

// Writer exports canonical records as CSV.
type Writer struct {
	bom    bool
	logger *slog.Logger
}

// NewWriter builds a writer. bom prepends a UTF-8 BOM so Excel recognizes
// the encoding.
func NewWriter(bom bool, logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Writer{bom: bom, logger: logger.With(slog.String("component", "exporter"))}
}

// WriteDataset streams the records into dir under the run's canonical name.
// The header row and cell order follow the table. Returns the final path.
func (w *Writer) WriteDataset(ctx context.Context, dir, runID string, table *schema.Table, records []domain.Record) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create dataset dir: %w", err)
	}

	path := filepath.Join(dir, DatasetFileName(runID))
	sw, err := w.newStreamWriter(path+".tmp", table.Headers())
	if err != nil {
		return "", err
	}

	headers := table.Headers()
	row := make([]string, len(headers))
	for i, rec := range records {
		if i%writeCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				sw.abort()
				return "", err
			}
		}
		for j, header := range headers {
			row[j] = rec.Value(header).Render()
		}
		if err := sw.WriteRecord(row); err != nil {
			sw.abort()
			return "", fmt.Errorf("write row %d: %w", i+1, err)
		}
	}

	if err := sw.Close(); err != nil {
		return "", fmt.Errorf("finalize dataset: %w", err)
	}
	if err := os.Rename(path+".tmp", path); err != nil {
		os.Remove(path + ".tmp")
		return "", fmt.Errorf("finalize dataset: %w", err)
	}

	w.logger.InfoContext(ctx, "dataset_written",
		slog.String("path", path),
		slog.Int("rows", len(records)),
		slog.Int("columns", len(headers)))
	return path, nil
}

// StreamWriter writes CSV rows incrementally for datasets too large to hold
// as string slices.
type StreamWriter struct {
	file   *os.File
	writer *csv.Writer
}

// NewStreamWriter opens path, writes the optional BOM and the header row,
// and returns a writer ready for records.
func (w *Writer) NewStreamWriter(path string, headers []string) (*StreamWriter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create dataset dir: %w", err)
	}
	return w.newStreamWriter(path, headers)
}

func (w *Writer) newStreamWriter(path string, headers []string) (*StreamWriter, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create dataset file: %w", err)
	}

	if w.bom {
		if _, err := file.Write([]byte{0xEF, 0xBB, 0xBF}); err != nil {
			file.Close()
			return nil, fmt.Errorf("write BOM: %w", err)
		}
	}

	writer := csv.NewWriter(file)
	if len(headers) > 0 {
		if err := writer.Write(headers); err != nil {
			file.Close()
			return nil, fmt.Errorf("write header row: %w", err)
		}
	}
	return &StreamWriter{file: file, writer: writer}, nil
}

// WriteRecord writes a single row.
func (s *StreamWriter) WriteRecord(record []string) error {
	return s.writer.Write(record)
}

// Close flushes and closes the underlying file.
func (s *StreamWriter) Close() error {
	s.writer.Flush()
	if err := s.writer.Error(); err != nil {
		s.file.Close()
		return err
	}
	return s.file.Close()
}

// abort closes and removes a partially written file.
func (s *StreamWriter) abort() {
	name := s.file.Name()
	s.file.Close()
	os.Remove(name)
}
