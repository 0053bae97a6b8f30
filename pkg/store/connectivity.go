package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tessera-intel/tessera/pkg/models"
)

// ConnectivityStore owns the pairwise connectivity cache.
type ConnectivityStore struct {
	pool *pgxpool.Pool
}

// NewConnectivityStore creates a ConnectivityStore.
func NewConnectivityStore(pool *pgxpool.Pool) *ConnectivityStore {
	if pool == nil {
		panic("NewConnectivityStore: pool must not be nil")
	}
	return &ConnectivityStore{pool: pool}
}

// ReplaceForUnassigned deletes every cached row touching an unassigned
// strategic title and bulk-inserts the fresh pairs in batches, all inside a
// single transaction: the working set is never partially stale. Pairs must
// arrive ordered (TitleA < TitleB) and already filtered to composite ≥ 0.3.
func (s *ConnectivityStore) ReplaceForUnassigned(ctx context.Context, pairs []models.ConnectivityPair, batchSize int) error {
	if batchSize <= 0 {
		batchSize = 1000
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin connectivity refresh: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
		DELETE FROM title_connectivity_cache c
		USING titles ta
		WHERE (c.title_a = ta.id OR c.title_b = ta.id)
		  AND ta.event_family_id IS NULL
		  AND ta.verdict = 'strategic'`)
	if err != nil {
		return fmt.Errorf("failed to clear stale connectivity rows: %w", err)
	}

	for start := 0; start < len(pairs); start += batchSize {
		end := start + batchSize
		if end > len(pairs) {
			end = len(pairs)
		}
		if err := insertPairBatch(ctx, tx, pairs[start:end]); err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

func insertPairBatch(ctx context.Context, tx pgx.Tx, batch []models.ConnectivityPair) error {
	a := make([]string, len(batch))
	b := make([]string, len(batch))
	jaccard := make([]float64, len(batch))
	actor := make([]float64, len(batch))
	composite := make([]float64, len(batch))
	shared := make([]*string, len(batch))
	for i, p := range batch {
		a[i], b[i] = p.TitleA, p.TitleB
		jaccard[i], actor[i], composite[i] = p.EntityJaccard, p.ActorMatch, p.Composite
		if p.SharedActor != "" {
			v := p.SharedActor
			shared[i] = &v
		}
	}

	_, err := tx.Exec(ctx, `
		INSERT INTO title_connectivity_cache
			(title_a, title_b, entity_jaccard, actor_match, composite, shared_actor)
		SELECT * FROM unnest($1::text[], $2::text[], $3::float8[], $4::float8[], $5::float8[], $6::text[])
		ON CONFLICT (title_a, title_b) DO UPDATE SET
			entity_jaccard = EXCLUDED.entity_jaccard,
			actor_match    = EXCLUDED.actor_match,
			composite      = EXCLUDED.composite,
			shared_actor   = EXCLUDED.shared_actor`,
		a, b, jaccard, actor, composite, shared)
	if err != nil {
		return fmt.Errorf("failed to insert connectivity batch: %w", err)
	}
	return nil
}

// PairsFor returns cached pairs where both endpoints are in ids, strongest
// first. P3 feeds these to the assembly prompt as grouping hints.
func (s *ConnectivityStore) PairsFor(ctx context.Context, ids []string) ([]models.ConnectivityPair, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT title_a, title_b, entity_jaccard, actor_match, composite, COALESCE(shared_actor, '')
		FROM title_connectivity_cache
		WHERE title_a = ANY($1) AND title_b = ANY($1)
		ORDER BY composite DESC`, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to query connectivity pairs: %w", err)
	}
	defer rows.Close()

	var out []models.ConnectivityPair
	for rows.Next() {
		var p models.ConnectivityPair
		if err := rows.Scan(&p.TitleA, &p.TitleB, &p.EntityJaccard, &p.ActorMatch, &p.Composite, &p.SharedActor); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Count returns the number of cached pairs.
func (s *ConnectivityStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM title_connectivity_cache`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count connectivity rows: %w", err)
	}
	return n, nil
}
