package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tessera-intel/tessera/pkg/models"
)

// EventFamilyStore owns Event Family records.
type EventFamilyStore struct {
	pool *pgxpool.Pool
}

// NewEventFamilyStore creates an EventFamilyStore.
func NewEventFamilyStore(pool *pgxpool.Pool) *EventFamilyStore {
	if pool == nil {
		panic("NewEventFamilyStore: pool must not be nil")
	}
	return &EventFamilyStore{pool: pool}
}

const efColumns = `id, title, summary, key_actors, event_type, primary_theater,
	event_start, event_end, source_title_ids, confidence, coherence_reason,
	status, tags, ef_context, enrichment, created_at, updated_at`

func scanEventFamily(row pgx.Row) (*models.EventFamily, error) {
	var ef models.EventFamily
	err := row.Scan(
		&ef.ID, &ef.Title, &ef.Summary, &ef.KeyActors, &ef.EventType, &ef.PrimaryTheater,
		&ef.EventStart, &ef.EventEnd, &ef.SourceTitleIDs, &ef.Confidence, &ef.CoherenceReason,
		&ef.Status, &ef.Tags, &ef.Context, &ef.Enrichment, &ef.CreatedAt, &ef.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &ef, nil
}

// Get loads an Event Family by id.
func (s *EventFamilyStore) Get(ctx context.Context, id string) (*models.EventFamily, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+efColumns+` FROM event_families WHERE id = $1`, id)
	return scanEventFamily(row)
}

// Create persists a new seed Event Family. Confidence must already be
// clamped; date ordering is re-checked here and by the schema.
func (s *EventFamilyStore) Create(ctx context.Context, ef *models.EventFamily) error {
	if ef.ID == "" {
		return NewValidationError("id", "event family id is required")
	}
	if ef.Confidence < 0 || ef.Confidence > 1 {
		return NewValidationError("confidence", "must be within [0,1]")
	}
	if ef.EventEnd != nil && ef.EventEnd.Before(ef.EventStart) {
		return NewValidationError("event_end", "must not precede event_start")
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO event_families
			(id, title, summary, key_actors, event_type, primary_theater,
			 event_start, event_end, source_title_ids, confidence, coherence_reason, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO NOTHING`,
		ef.ID, ef.Title, ef.Summary, ef.KeyActors, ef.EventType, ef.PrimaryTheater,
		ef.EventStart, ef.EventEnd, ef.SourceTitleIDs, ef.Confidence, ef.CoherenceReason,
		models.EFStatusSeed,
	)
	if err != nil {
		return fmt.Errorf("failed to create event family %s: %w", ef.ID, err)
	}
	return nil
}

// CompleteEnrichment persists the enrichment payload, tags, context, and the
// enriched summary, and promotes the EF seed→active. Cardinality bounds are
// enforced here before the write.
func (s *EventFamilyStore) CompleteEnrichment(ctx context.Context, id string, summary string,
	tags []string, efCtx *models.EFContext, enrichment *models.Enrichment) error {

	if len(tags) != 3 {
		return NewValidationError("tags", fmt.Sprintf("exactly 3 tags required, got %d", len(tags)))
	}
	if enrichment == nil {
		return NewValidationError("enrichment", "enrichment payload is required")
	}
	if len(enrichment.Magnitudes) > 3 {
		return NewValidationError("magnitudes", "at most 3 magnitudes")
	}
	if len(enrichment.OfficialSources) > 2 {
		return NewValidationError("official_sources", "at most 2 official sources")
	}
	if efCtx != nil && len(efCtx.Comparables) > 3 {
		return NewValidationError("comparables", "at most 3 comparables")
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE event_families SET
			summary    = $2,
			tags       = $3,
			ef_context = $4,
			enrichment = $5,
			status     = $6,
			updated_at = now()
		WHERE id = $1 AND status = $7`,
		id, summary, tags, efCtx, enrichment, models.EFStatusActive, models.EFStatusSeed)
	if err != nil {
		return fmt.Errorf("failed to complete enrichment for EF %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		ef, getErr := s.Get(ctx, id)
		if getErr != nil {
			return getErr
		}
		if ef.Status == models.EFStatusActive {
			return nil // already enriched; idempotent re-run
		}
		return ErrNotFound
	}
	return nil
}

// SeedCandidate is a seed EF with the fields the enrichment prioritizer
// scores on.
type SeedCandidate struct {
	EF         *models.EventFamily
	TitleCount int
	DaysOld    int
}

// SeedCandidates returns seed EFs, newest first, with member title counts.
func (s *EventFamilyStore) SeedCandidates(ctx context.Context, limit int) ([]SeedCandidate, error) {
	query := `
		SELECT ` + efColumns + `,
			(SELECT count(*) FROM titles t WHERE t.event_family_id = event_families.id),
			GREATEST(0, EXTRACT(DAY FROM now() - created_at))::int
		FROM event_families
		WHERE status = $1
		ORDER BY created_at DESC`
	args := []any{models.EFStatusSeed}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query seed candidates: %w", err)
	}
	defer rows.Close()

	var out []SeedCandidate
	for rows.Next() {
		var ef models.EventFamily
		var c SeedCandidate
		err := rows.Scan(
			&ef.ID, &ef.Title, &ef.Summary, &ef.KeyActors, &ef.EventType, &ef.PrimaryTheater,
			&ef.EventStart, &ef.EventEnd, &ef.SourceTitleIDs, &ef.Confidence, &ef.CoherenceReason,
			&ef.Status, &ef.Tags, &ef.Context, &ef.Enrichment, &ef.CreatedAt, &ef.UpdatedAt,
			&c.TitleCount, &c.DaysOld,
		)
		if err != nil {
			return nil, err
		}
		c.EF = &ef
		out = append(out, c)
	}
	return out, rows.Err()
}

// ActiveForMonth returns active EFs whose event started inside the given
// month, used by the epic builder.
func (s *EventFamilyStore) ActiveForMonth(ctx context.Context, month time.Time) ([]*models.EventFamily, error) {
	start := time.Date(month.Year(), month.Month(), 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, 0)

	rows, err := s.pool.Query(ctx, `
		SELECT `+efColumns+` FROM event_families
		WHERE status = $1 AND event_start >= $2 AND event_start < $3
		ORDER BY event_start`, models.EFStatusActive, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to query active EFs for month: %w", err)
	}
	defer rows.Close()

	var out []*models.EventFamily
	for rows.Next() {
		ef, err := scanEventFamily(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ef)
	}
	return out, rows.Err()
}
