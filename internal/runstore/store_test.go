package runstore

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fedflow/pkg/contracts/domain"
)

func testRecord(runID string, started time.Time, status domain.RunStatus) domain.RunRecord {
	return domain.RunRecord{
		RunID:  runID,
		Mode:   domain.ModeDaily,
		Window: domain.Window{Start: started.AddDate(0, 0, -1), End: started.AddDate(0, 0, -1)},
		Status: status,
		Stages: []domain.StageResult{
			{Name: domain.StageDownload, Status: domain.StageSuccess},
		},
		StartedAt:  started,
		RawRows:    120,
		OutputRows: 115,
	}
}

func openStores(t *testing.T) map[string]Store {
	t.Helper()
	fileStore, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	sqliteStore, err := OpenSQLite(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { sqliteStore.Close() })
	return map[string]Store{"file": fileStore, "sqlite": sqliteStore}
}

func TestStoreSaveGetRoundTrip(t *testing.T) {
	started := time.Date(2025, 10, 29, 3, 15, 0, 0, time.UTC)

	for name, store := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			record := testRecord("daily_20251028_20251028_20251029T031500Z", started, domain.RunRunning)
			require.NoError(t, store.Save(ctx, record))

			got, err := store.Get(ctx, record.RunID)
			require.NoError(t, err)
			assert.Equal(t, record.RunID, got.RunID)
			assert.Equal(t, domain.RunRunning, got.Status)
			assert.Equal(t, int64(120), got.RawRows)
			require.Len(t, got.Stages, 1)
			assert.Equal(t, domain.StageDownload, got.Stages[0].Name)
			assert.True(t, got.Window.Start.Equal(record.Window.Start))
		})
	}
}

func TestStoreSaveIsUpsert(t *testing.T) {
	started := time.Date(2025, 10, 29, 3, 15, 0, 0, time.UTC)

	for name, store := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			record := testRecord("daily_20251028_20251028_20251029T031500Z", started, domain.RunRunning)
			require.NoError(t, store.Save(ctx, record))

			finished := started.Add(2 * time.Minute)
			record.Status = domain.RunSuccess
			record.FinishedAt = &finished
			record.Stages = append(record.Stages, domain.StageResult{
				Name: domain.StageTransform, Status: domain.StageSuccess,
			})
			require.NoError(t, store.Save(ctx, record))

			got, err := store.Get(ctx, record.RunID)
			require.NoError(t, err)
			assert.Equal(t, domain.RunSuccess, got.Status)
			require.NotNil(t, got.FinishedAt)
			assert.True(t, got.FinishedAt.Equal(finished))
			assert.Len(t, got.Stages, 2)

			all, err := store.List(ctx, 0)
			require.NoError(t, err)
			assert.Len(t, all, 1, "upsert must not duplicate the run")
		})
	}
}

func TestStoreGetMissing(t *testing.T) {
	for name, store := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			_, err := store.Get(context.Background(), "absent")
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestStoreListNewestFirst(t *testing.T) {
	base := time.Date(2025, 10, 27, 3, 15, 0, 0, time.UTC)

	for name, store := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			ids := []string{
				"daily_20251026_20251026_20251027T031500Z",
				"daily_20251027_20251027_20251028T031500Z",
				"daily_20251028_20251028_20251029T031500Z",
			}
			for i, id := range ids {
				record := testRecord(id, base.AddDate(0, 0, i), domain.RunSuccess)
				require.NoError(t, store.Save(ctx, record))
			}

			records, err := store.List(ctx, 0)
			require.NoError(t, err)
			require.Len(t, records, 3)
			assert.Equal(t, ids[2], records[0].RunID)
			assert.Equal(t, ids[0], records[2].RunID)

			limited, err := store.List(ctx, 2)
			require.NoError(t, err)
			require.Len(t, limited, 2)
			assert.Equal(t, ids[2], limited[0].RunID)
		})
	}
}

func TestStoreDelete(t *testing.T) {
	started := time.Date(2025, 10, 29, 3, 15, 0, 0, time.UTC)

	for name, store := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			record := testRecord("daily_20251028_20251028_20251029T031500Z", started, domain.RunFailed)
			require.NoError(t, store.Save(ctx, record))

			require.NoError(t, store.Delete(ctx, record.RunID))
			_, err := store.Get(ctx, record.RunID)
			assert.ErrorIs(t, err, ErrNotFound)

			assert.ErrorIs(t, store.Delete(ctx, record.RunID), ErrNotFound)
		})
	}
}

func TestFileStoreIgnoresForeignFiles(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	require.NoError(t, err)

	ctx := context.Background()
	record := testRecord("daily_20251028_20251028_20251029T031500Z",
		time.Date(2025, 10, 29, 3, 15, 0, 0, time.UTC), domain.RunSuccess)
	require.NoError(t, store.Save(ctx, record))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("not a record"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "run_record_bad.json"), []byte("{corrupt"), 0o644))

	records, err := store.List(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, records, 1)
}
