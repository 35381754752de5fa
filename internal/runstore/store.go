package runstore

import (
	"context"
	"errors"

	"fedflow/pkg/contracts/domain"
)

// ErrNotFound is returned when no record exists for the requested run id.
var ErrNotFound = errors.New("run record not found")

// Store persists run records keyed by run id. Save is an upsert: the
// orchestrator saves after every stage transition, overwriting the previous
// snapshot of the same run.
type Store interface {
	Save(ctx context.Context, record domain.RunRecord) error
	Get(ctx context.Context, runID string) (domain.RunRecord, error)
	// List returns records ordered newest-first. limit <= 0 returns all.
	List(ctx context.Context, limit int) ([]domain.RunRecord, error)
	Delete(ctx context.Context, runID string) error
}
