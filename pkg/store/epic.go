package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tessera-intel/tessera/pkg/models"
)

// EpicStore owns epics: cross-centroid groupings built from thematic-tag
// co-occurrence across the Event Families of a month.
type EpicStore struct {
	pool *pgxpool.Pool
	efs  *EventFamilyStore
}

// NewEpicStore creates an EpicStore.
func NewEpicStore(pool *pgxpool.Pool, efs *EventFamilyStore) *EpicStore {
	if pool == nil {
		panic("NewEpicStore: pool must not be nil")
	}
	if efs == nil {
		panic("NewEpicStore: event family store must not be nil")
	}
	return &EpicStore{pool: pool, efs: efs}
}

// Get loads an epic by id.
func (s *EpicStore) Get(ctx context.Context, id string) (*models.Epic, error) {
	var e models.Epic
	err := s.pool.QueryRow(ctx, `
		SELECT id, label, month, tags, event_family_ids, created_at
		FROM epics WHERE id = $1`, id).
		Scan(&e.ID, &e.Label, &e.Month, &e.Tags, &e.EventFamilyIDs, &e.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &e, nil
}

// BuildForMonth derives the month's epics from tag co-occurrence: each
// thematic tag shared by active EFs spanning more than one centroid becomes
// an epic. Existing epics for the month are replaced by label.
func (s *EpicStore) BuildForMonth(ctx context.Context, month time.Time) ([]models.Epic, error) {
	families, err := s.efs.ActiveForMonth(ctx, month)
	if err != nil {
		return nil, err
	}

	type group struct {
		efIDs     []string
		centroids map[string]bool
	}
	byTag := make(map[string]*group)
	for _, ef := range families {
		link := ""
		if ef.Context != nil {
			link = ef.Context.MacroLink
		}
		// The third tag is geographic; only thematic tags group epics.
		thematic := ef.Tags
		if len(thematic) == 3 {
			thematic = thematic[:2]
		}
		for _, tag := range thematic {
			g := byTag[tag]
			if g == nil {
				g = &group{centroids: make(map[string]bool)}
				byTag[tag] = g
			}
			g.efIDs = append(g.efIDs, ef.ID)
			if link != "" {
				g.centroids[link] = true
			}
		}
	}

	tags := make([]string, 0, len(byTag))
	for tag, g := range byTag {
		if len(g.efIDs) >= 2 && len(g.centroids) >= 2 {
			tags = append(tags, tag)
		}
	}
	sort.Strings(tags)

	start := time.Date(month.Year(), month.Month(), 1, 0, 0, 0, 0, time.UTC)
	var epics []models.Epic
	for _, tag := range tags {
		g := byTag[tag]
		e := models.Epic{
			ID:             uuid.NewString(),
			Label:          tag,
			Month:          start,
			Tags:           []string{tag},
			EventFamilyIDs: g.efIDs,
		}
		_, err := s.pool.Exec(ctx, `
			INSERT INTO epics (id, label, month, tags, event_family_ids)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (label, month) DO UPDATE SET
				tags             = EXCLUDED.tags,
				event_family_ids = EXCLUDED.event_family_ids`,
			e.ID, e.Label, e.Month, e.Tags, e.EventFamilyIDs)
		if err != nil {
			return nil, fmt.Errorf("failed to upsert epic %q: %w", e.Label, err)
		}
		epics = append(epics, e)
	}
	return epics, nil
}

// MemberTitles returns all titles of the epic's member EFs, newest first,
// annotated with each EF's macro-link so the sampler can stratify by
// centroid.
func (s *EpicStore) MemberTitles(ctx context.Context, epicID string) ([]*models.Title, map[string]string, error) {
	epic, err := s.Get(ctx, epicID)
	if err != nil {
		return nil, nil, err
	}

	rows, err := s.pool.Query(ctx, `
		SELECT t.id, t.text, t.normalized_text, t.publisher, t.published_at, t.language, t.iso_codes,
		       t.verdict, t.verdict_reason, t.actors, t.entities, t.action_triple,
		       t.event_family_id, t.assignment_confidence, t.assignment_rationale, t.processing_status,
		       COALESCE(ef.ef_context->>'macro_link', '')
		FROM titles t
		JOIN event_families ef ON ef.id = t.event_family_id
		WHERE t.event_family_id = ANY($1::uuid[])
		ORDER BY t.published_at DESC`, epic.EventFamilyIDs)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to query epic member titles: %w", err)
	}
	defer rows.Close()

	var titles []*models.Title
	centroidOf := make(map[string]string)
	for rows.Next() {
		var t models.Title
		var efID *string
		var confidence *float64
		var link string
		err := rows.Scan(
			&t.ID, &t.Text, &t.NormalizedText, &t.Publisher, &t.PublishedAt, &t.Language, &t.ISOCodes,
			&t.Verdict, &t.VerdictReason, &t.Actors, &t.Entities, &t.Triple,
			&efID, &confidence, &t.AssignmentRationale, &t.Status, &link,
		)
		if err != nil {
			return nil, nil, err
		}
		if efID != nil {
			t.EventFamilyID = *efID
		}
		if confidence != nil {
			t.AssignmentConfidence = *confidence
		}
		titles = append(titles, &t)
		centroidOf[t.ID] = link
	}
	return titles, centroidOf, rows.Err()
}
