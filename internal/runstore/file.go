package runstore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"fedflow/pkg/contracts/domain"
)

const (
	recordPrefix = "run_record_"
	recordSuffix = ".json"
)

// FileStore keeps one pretty-printed JSON file per run under a directory.
type FileStore struct {
	dir string
	mu  sync.Mutex
}

// NewFileStore creates the directory if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create run store dir: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) path(runID string) string {
	return filepath.Join(s.dir, recordPrefix+runID+recordSuffix)
}

// Save writes the record through a temp file so readers never observe a
// partially written snapshot.
func (s *FileStore) Save(ctx context.Context, record domain.RunRecord) error {
	if record.RunID == "" {
		return fmt.Errorf("save run record: empty run id")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal run record: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.path(record.RunID)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write run record: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("finalize run record: %w", err)
	}
	return nil
}

func (s *FileStore) Get(ctx context.Context, runID string) (domain.RunRecord, error) {
	var record domain.RunRecord
	if err := ctx.Err(); err != nil {
		return record, err
	}

	data, err := os.ReadFile(s.path(runID))
	if err != nil {
		if os.IsNotExist(err) {
			return record, fmt.Errorf("run %s: %w", runID, ErrNotFound)
		}
		return record, fmt.Errorf("read run record: %w", err)
	}
	if err := json.Unmarshal(data, &record); err != nil {
		return record, fmt.Errorf("parse run record %s: %w", runID, err)
	}
	return record, nil
}

func (s *FileStore) List(ctx context.Context, limit int) ([]domain.RunRecord, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("scan run store dir: %w", err)
	}

	var records []domain.RunRecord
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, recordPrefix) || !strings.HasSuffix(name, recordSuffix) {
			continue
		}
		runID := strings.TrimSuffix(strings.TrimPrefix(name, recordPrefix), recordSuffix)
		record, err := s.Get(ctx, runID)
		if err != nil {
			// A half-migrated or corrupt file must not hide the rest of the
			// history.
			continue
		}
		records = append(records, record)
	}

	sort.Slice(records, func(i, j int) bool {
		if !records[i].StartedAt.Equal(records[j].StartedAt) {
			return records[i].StartedAt.After(records[j].StartedAt)
		}
		return records[i].RunID > records[j].RunID
	})
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

func (s *FileStore) Delete(ctx context.Context, runID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.Remove(s.path(runID)); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("run %s: %w", runID, ErrNotFound)
		}
		return fmt.Errorf("delete run record: %w", err)
	}
	return nil
}
