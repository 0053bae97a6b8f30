// Package store implements Postgres persistence for the pipeline. Every
// mutation is an idempotent SQL statement keyed by a natural identifier;
// key invariants (single EF per title, ordered connectivity pairs, unique
// frame labels) are enforced by the schema itself.
package store

import (
	"context"
	"errors"
	"fmt"
	"reflect"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tessera-intel/tessera/pkg/models"
)

// TitleStore owns Title records.
type TitleStore struct {
	pool *pgxpool.Pool
}

// NewTitleStore creates a TitleStore.
func NewTitleStore(pool *pgxpool.Pool) *TitleStore {
	if pool == nil {
		panic("NewTitleStore: pool must not be nil")
	}
	return &TitleStore{pool: pool}
}

const titleColumns = `id, text, normalized_text, publisher, published_at, language, iso_codes,
	verdict, verdict_reason, actors, entities, action_triple,
	event_family_id, assignment_confidence, assignment_rationale, processing_status`

func scanTitle(row pgx.Row) (*models.Title, error) {
	var t models.Title
	var efID *string
	var confidence *float64
	err := row.Scan(
		&t.ID, &t.Text, &t.NormalizedText, &t.Publisher, &t.PublishedAt, &t.Language, &t.ISOCodes,
		&t.Verdict, &t.VerdictReason, &t.Actors, &t.Entities, &t.Triple,
		&efID, &confidence, &t.AssignmentRationale, &t.Status,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if efID != nil {
		t.EventFamilyID = *efID
	}
	if confidence != nil {
		t.AssignmentConfidence = *confidence
	}
	return &t, nil
}

// Get loads a title by id.
func (s *TitleStore) Get(ctx context.Context, id string) (*models.Title, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+titleColumns+` FROM titles WHERE id = $1`, id)
	return scanTitle(row)
}

// Upsert inserts or updates a title by identifier. Already-set extraction
// fields (entities, action triple) are immutable: an upsert carrying
// different values fails with ErrConflictingImmutableField.
func (s *TitleStore) Upsert(ctx context.Context, t *models.Title) error {
	if t.ID == "" {
		return NewValidationError("id", "title id is required")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin upsert: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var existingEntities []models.Entity
	var existingTriple *models.ActionTriple
	err = tx.QueryRow(ctx,
		`SELECT entities, action_triple FROM titles WHERE id = $1 FOR UPDATE`, t.ID,
	).Scan(&existingEntities, &existingTriple)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		// fresh insert below
	case err != nil:
		return fmt.Errorf("failed to read existing title: %w", err)
	default:
		if len(existingEntities) > 0 && len(t.Entities) > 0 && !reflect.DeepEqual(existingEntities, t.Entities) {
			return fmt.Errorf("%w: entities differ for title %s", ErrConflictingImmutableField, t.ID)
		}
		if existingTriple != nil && t.Triple != nil && !reflect.DeepEqual(existingTriple, t.Triple) {
			return fmt.Errorf("%w: action triple differs for title %s", ErrConflictingImmutableField, t.ID)
		}
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO titles (id, text, normalized_text, publisher, published_at, language, iso_codes,
			actors, entities, action_triple, processing_status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			text            = EXCLUDED.text,
			normalized_text = EXCLUDED.normalized_text,
			publisher       = EXCLUDED.publisher,
			published_at    = EXCLUDED.published_at,
			language        = EXCLUDED.language,
			iso_codes       = EXCLUDED.iso_codes,
			actors          = CASE WHEN cardinality(titles.actors) = 0 THEN EXCLUDED.actors ELSE titles.actors END,
			entities        = CASE WHEN titles.entities = '[]'::jsonb THEN EXCLUDED.entities ELSE titles.entities END,
			action_triple   = COALESCE(titles.action_triple, EXCLUDED.action_triple),
			updated_at      = now()`,
		t.ID, t.Text, t.NormalizedText, t.Publisher, t.PublishedAt, t.Language, t.ISOCodes,
		t.Actors, t.Entities, t.Triple, models.StatusPending,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert title %s: %w", t.ID, err)
	}

	return tx.Commit(ctx)
}

// MarkVerdict atomically writes all P2 outputs for a title. Precondition:
// the current verdict is unfiltered. Returns ErrVerdictAlreadySet otherwise.
func (s *TitleStore) MarkVerdict(ctx context.Context, id string, verdict models.Verdict, reason string,
	entities []models.Entity, actors []string, triple *models.ActionTriple) error {

	if verdict != models.VerdictStrategic && verdict != models.VerdictNonStrategic {
		return NewValidationError("verdict", fmt.Sprintf("invalid verdict %q", verdict))
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE titles SET
			verdict           = $2,
			verdict_reason    = $3,
			entities          = $4,
			actors            = $5,
			action_triple     = $6,
			processing_status = $7,
			updated_at        = now()
		WHERE id = $1 AND verdict = $8`,
		id, verdict, reason, entities, actors, triple, models.StatusFiltered, models.VerdictUnfiltered,
	)
	if err != nil {
		return fmt.Errorf("failed to mark verdict for title %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		current, getErr := s.Get(ctx, id)
		if getErr != nil {
			return getErr
		}
		if current.Verdict != models.VerdictUnfiltered {
			return fmt.Errorf("%w: title %s is %s", ErrVerdictAlreadySet, id, current.Verdict)
		}
		return ErrNotFound
	}
	return nil
}

// AssignToEventFamily batch-assigns titles to an Event Family and refreshes
// the EF's denormalized source_title_ids cache. Titles that already carry an
// EF reference are skipped; the count of newly assigned titles is returned.
func (s *TitleStore) AssignToEventFamily(ctx context.Context, ids []string, efID string,
	confidence float64, rationale string) (int, error) {

	if len(ids) == 0 {
		return 0, nil
	}
	if confidence < 0 || confidence > 1 {
		return 0, NewValidationError("confidence", "must be within [0,1]")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin assignment: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `
		UPDATE titles SET
			event_family_id       = $2,
			assignment_confidence = $3,
			assignment_rationale  = $4,
			processing_status     = $5,
			updated_at            = now()
		WHERE id = ANY($1)
		  AND event_family_id IS NULL
		  AND verdict = $6`,
		ids, efID, confidence, rationale, models.StatusAssigned, models.VerdictStrategic,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to assign titles to EF %s: %w", efID, err)
	}

	// Titles own the assignment edge; the EF-side id list is a derived
	// cache refreshed here in the same transaction.
	_, err = tx.Exec(ctx, `
		UPDATE event_families SET
			source_title_ids = COALESCE(
				(SELECT array_agg(id ORDER BY published_at DESC) FROM titles WHERE event_family_id = $1),
				'{}'),
			updated_at = now()
		WHERE id = $1`, efID)
	if err != nil {
		return 0, fmt.Errorf("failed to refresh source_title_ids for EF %s: %w", efID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

// LoadUnassignedStrategic returns strategic titles with no EF reference,
// newest first. limit ≤ 0 means the whole backlog.
func (s *TitleStore) LoadUnassignedStrategic(ctx context.Context, limit int) ([]*models.Title, error) {
	query := `SELECT ` + titleColumns + ` FROM titles
		WHERE verdict = $1 AND event_family_id IS NULL
		ORDER BY published_at DESC`
	args := []any{models.VerdictStrategic}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}
	return s.queryTitles(ctx, query, args...)
}

// LoadUnfilteredAfter returns unfiltered titles with id strictly after
// afterID, in id order, for resumable P2 runs.
func (s *TitleStore) LoadUnfilteredAfter(ctx context.Context, afterID string, limit int) ([]*models.Title, error) {
	query := `SELECT ` + titleColumns + ` FROM titles
		WHERE verdict = $1 AND id > $2
		ORDER BY id`
	args := []any{models.VerdictUnfiltered, afterID}
	if limit > 0 {
		query += ` LIMIT $3`
		args = append(args, limit)
	}
	return s.queryTitles(ctx, query, args...)
}

// MemberTitles returns the titles assigned to an EF, newest first.
func (s *TitleStore) MemberTitles(ctx context.Context, efID string, limit int) ([]*models.Title, error) {
	query := `SELECT ` + titleColumns + ` FROM titles
		WHERE event_family_id = $1
		ORDER BY published_at DESC`
	args := []any{efID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}
	return s.queryTitles(ctx, query, args...)
}

// SetProcessingStatus moves a title between pipeline stages. Stages are
// mutually exclusive per title; this is the gate.
func (s *TitleStore) SetProcessingStatus(ctx context.Context, id string, status models.ProcessingStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE titles SET processing_status = $2, updated_at = now() WHERE id = $1`, id, status)
	if err != nil {
		return fmt.Errorf("failed to set processing status for title %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ResetExtraction clears verdict, extraction output, and assignment so a
// title can be re-filtered from scratch.
func (s *TitleStore) ResetExtraction(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE titles SET
			verdict               = $2,
			verdict_reason        = '',
			actors                = '{}',
			entities              = '[]'::jsonb,
			action_triple         = NULL,
			event_family_id       = NULL,
			assignment_confidence = NULL,
			assignment_rationale  = '',
			processing_status     = $3,
			updated_at            = now()
		WHERE id = $1`,
		id, models.VerdictUnfiltered, models.StatusPending)
	if err != nil {
		return fmt.Errorf("failed to reset title %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// TitleMeta is the slim per-title view the connectivity driver joins
// against graph pair counts.
type TitleMeta struct {
	ID           string
	EntityCount  int
	PrimaryActor string
}

// LoadMeta returns entity counts and primary actors for the given titles.
// Titles that no longer exist are simply absent from the result.
func (s *TitleStore) LoadMeta(ctx context.Context, ids []string) (map[string]TitleMeta, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id,
			jsonb_array_length(entities),
			COALESCE(action_triple->>'actor', actors[1], '')
		FROM titles WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load title meta: %w", err)
	}
	defer rows.Close()

	meta := make(map[string]TitleMeta, len(ids))
	for rows.Next() {
		var m TitleMeta
		if err := rows.Scan(&m.ID, &m.EntityCount, &m.PrimaryActor); err != nil {
			return nil, err
		}
		meta[m.ID] = m
	}
	return meta, rows.Err()
}

func (s *TitleStore) queryTitles(ctx context.Context, query string, args ...any) ([]*models.Title, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query titles: %w", err)
	}
	defer rows.Close()

	var titles []*models.Title
	for rows.Next() {
		t, err := scanTitle(rows)
		if err != nil {
			return nil, err
		}
		titles = append(titles, t)
	}
	return titles, rows.Err()
}
