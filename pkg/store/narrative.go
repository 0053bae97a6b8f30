package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tessera-intel/tessera/pkg/models"
)

// NarrativeStore owns narrative frame rows, keyed by
// (entity_type, entity_id, label).
type NarrativeStore struct {
	pool *pgxpool.Pool
}

// NewNarrativeStore creates a NarrativeStore.
func NewNarrativeStore(pool *pgxpool.Pool) *NarrativeStore {
	if pool == nil {
		panic("NewNarrativeStore: pool must not be nil")
	}
	return &NarrativeStore{pool: pool}
}

// ReplaceFrames atomically refreshes the frames of one entity:
// delete-then-insert in a single transaction, so readers never observe the
// old and new sets together.
func (s *NarrativeStore) ReplaceFrames(ctx context.Context, entityType models.NarrativeEntityType,
	entityID string, frames []models.NarrativeFrame) error {

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin frame refresh: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx,
		`DELETE FROM narratives WHERE entity_type = $1 AND entity_id = $2`, entityType, entityID)
	if err != nil {
		return fmt.Errorf("failed to delete frames for %s %s: %w", entityType, entityID, err)
	}

	for _, f := range frames {
		if f.Label == "" {
			return NewValidationError("label", "frame label is required")
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO narratives
				(entity_type, entity_id, label, description, moral_frame, title_count,
				 top_sources, proportional_sources, top_countries, sample_titles)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			entityType, entityID, f.Label, f.Description, f.MoralFrame, f.TitleCount,
			f.TopSources, f.ProportionalSources, f.TopCountries, f.SampleTitles)
		if err != nil {
			return fmt.Errorf("failed to insert frame %q for %s %s: %w", f.Label, entityType, entityID, err)
		}
	}

	return tx.Commit(ctx)
}

// Frames returns the current frames of an entity, in insertion order.
func (s *NarrativeStore) Frames(ctx context.Context, entityType models.NarrativeEntityType,
	entityID string) ([]models.NarrativeFrame, error) {

	rows, err := s.pool.Query(ctx, `
		SELECT entity_type, entity_id, label, description, moral_frame, title_count,
		       top_sources, proportional_sources, top_countries, sample_titles, created_at
		FROM narratives
		WHERE entity_type = $1 AND entity_id = $2
		ORDER BY created_at, label`, entityType, entityID)
	if err != nil {
		return nil, fmt.Errorf("failed to query frames: %w", err)
	}
	defer rows.Close()

	var out []models.NarrativeFrame
	for rows.Next() {
		var f models.NarrativeFrame
		err := rows.Scan(&f.EntityType, &f.EntityID, &f.Label, &f.Description, &f.MoralFrame,
			&f.TitleCount, &f.TopSources, &f.ProportionalSources, &f.TopCountries,
			&f.SampleTitles, &f.CreatedAt)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}
