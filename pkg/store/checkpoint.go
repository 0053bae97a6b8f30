package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tessera-intel/tessera/pkg/models"
)

// CheckpointStore mirrors the on-disk per-phase checkpoint files into
// Postgres for operator visibility. The files remain authoritative for
// resumption; this table is write-only from the runner's point of view.
type CheckpointStore struct {
	pool *pgxpool.Pool
}

// NewCheckpointStore creates a CheckpointStore.
func NewCheckpointStore(pool *pgxpool.Pool) *CheckpointStore {
	if pool == nil {
		panic("NewCheckpointStore: pool must not be nil")
	}
	return &CheckpointStore{pool: pool}
}

// Upsert records the latest checkpoint for a phase.
func (s *CheckpointStore) Upsert(ctx context.Context, cp models.Checkpoint) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO pipeline_checkpoints (phase, last_item_id, processed_count, succeeded, failed, last_run_at)
		VALUES ($1, $2, $3, $4, $5, now())
		ON CONFLICT (phase) DO UPDATE SET
			last_item_id    = EXCLUDED.last_item_id,
			processed_count = EXCLUDED.processed_count,
			succeeded       = EXCLUDED.succeeded,
			failed          = EXCLUDED.failed,
			last_run_at     = now()`,
		cp.Phase, cp.LastItemID, cp.ProcessedCount, cp.Succeeded, cp.Failed)
	if err != nil {
		return fmt.Errorf("failed to upsert checkpoint for phase %s: %w", cp.Phase, err)
	}
	return nil
}
