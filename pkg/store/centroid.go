package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tessera-intel/tessera/pkg/models"
)

// CentroidStore mirrors the immutable centroid configuration into Postgres
// so CTM rows can carry a real foreign key.
type CentroidStore struct {
	pool *pgxpool.Pool
}

// NewCentroidStore creates a CentroidStore.
func NewCentroidStore(pool *pgxpool.Pool) *CentroidStore {
	if pool == nil {
		panic("NewCentroidStore: pool must not be nil")
	}
	return &CentroidStore{pool: pool}
}

// Sync upserts the configured centroids. Existing rows are overwritten;
// centroids removed from configuration are left in place because CTM
// history still references them.
func (s *CentroidStore) Sync(ctx context.Context, centroids []models.Centroid) error {
	for _, c := range centroids {
		_, err := s.pool.Exec(ctx, `
			INSERT INTO centroids (id, label, keywords, actors, theaters)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (id) DO UPDATE SET
				label    = EXCLUDED.label,
				keywords = EXCLUDED.keywords,
				actors   = EXCLUDED.actors,
				theaters = EXCLUDED.theaters`,
			c.ID, c.Label, c.Keywords, c.Actors, c.Theaters)
		if err != nil {
			return fmt.Errorf("failed to sync centroid %s: %w", c.ID, err)
		}
	}
	return nil
}

// List returns all centroids, id order.
func (s *CentroidStore) List(ctx context.Context) ([]models.Centroid, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, label, keywords, actors, theaters FROM centroids ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query centroids: %w", err)
	}
	defer rows.Close()

	var out []models.Centroid
	for rows.Next() {
		var c models.Centroid
		if err := rows.Scan(&c.ID, &c.Label, &c.Keywords, &c.Actors, &c.Theaters); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
