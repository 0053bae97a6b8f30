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

// CTMStore owns Centroid × Track × Month buckets.
type CTMStore struct {
	pool *pgxpool.Pool
}

// NewCTMStore creates a CTMStore.
func NewCTMStore(pool *pgxpool.Pool) *CTMStore {
	if pool == nil {
		panic("NewCTMStore: pool must not be nil")
	}
	return &CTMStore{pool: pool}
}

// monthStart truncates to the first of the month in UTC.
func monthStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

const ctmColumns = `centroid_id, track, month, title_count, is_frozen,
	COALESCE(summary_text, ''), COALESCE(event_count_at_summary, 0), last_summary_at,
	last_narrative_count, last_narrative_at`

func scanCTM(row pgx.Row) (*models.CTM, error) {
	var c models.CTM
	err := row.Scan(&c.CentroidID, &c.Track, &c.Month, &c.TitleCount, &c.IsFrozen,
		&c.SummaryText, &c.EventCountAtSummary, &c.LastSummaryAt,
		&c.LastNarrativeCount, &c.LastNarrativeAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

// Get loads one bucket.
func (s *CTMStore) Get(ctx context.Context, centroidID, track string, month time.Time) (*models.CTM, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+ctmColumns+` FROM ctm WHERE centroid_id = $1 AND track = $2 AND month = $3`,
		centroidID, track, monthStart(month))
	return scanCTM(row)
}

// Accumulate adds delta titles to a bucket, creating it on first touch.
// Frozen buckets reject accumulation.
func (s *CTMStore) Accumulate(ctx context.Context, centroidID, track string, month time.Time, delta int) error {
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO ctm (centroid_id, track, month, title_count)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (centroid_id, track, month) DO UPDATE SET
			title_count = ctm.title_count + EXCLUDED.title_count
		WHERE ctm.is_frozen = FALSE`,
		centroidID, track, monthStart(month), delta)
	if err != nil {
		return fmt.Errorf("failed to accumulate ctm %s/%s: %w", centroidID, track, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s/%s/%s", ErrFrozen, centroidID, track, monthStart(month).Format("2006-01"))
	}
	return nil
}

// FreezeBefore freezes every unfrozen bucket for months strictly before
// the month containing cutoff. Frozen buckets reject further accumulation.
func (s *CTMStore) FreezeBefore(ctx context.Context, cutoff time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE ctm SET is_frozen = TRUE WHERE is_frozen = FALSE AND month < $1`,
		monthStart(cutoff))
	if err != nil {
		return 0, fmt.Errorf("failed to freeze ctm buckets: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// MarkNarrativeRefreshed records the title count and time of the last frame
// regeneration, the two inputs of the refresh gate.
func (s *CTMStore) MarkNarrativeRefreshed(ctx context.Context, centroidID, track string, month time.Time, titleCount int) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE ctm SET last_narrative_count = $4, last_narrative_at = now()
		WHERE centroid_id = $1 AND track = $2 AND month = $3`,
		centroidID, track, monthStart(month), titleCount)
	if err != nil {
		return fmt.Errorf("failed to mark narrative refresh: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// NarrativeCandidates returns unfrozen buckets with at least minTitles whose
// title count grew by refreshGrowth since the last regeneration and whose
// last regeneration is older than minInterval.
func (s *CTMStore) NarrativeCandidates(ctx context.Context, minTitles, refreshGrowth int,
	minInterval time.Duration) ([]*models.CTM, error) {

	rows, err := s.pool.Query(ctx, `
		SELECT `+ctmColumns+` FROM ctm
		WHERE is_frozen = FALSE
		  AND title_count >= $1
		  AND title_count >= last_narrative_count + $2
		  AND (last_narrative_at IS NULL OR last_narrative_at <= now() - $3::interval)
		ORDER BY month DESC, title_count DESC`,
		minTitles, refreshGrowth, fmt.Sprintf("%d seconds", int(minInterval.Seconds())))
	if err != nil {
		return nil, fmt.Errorf("failed to query narrative candidates: %w", err)
	}
	defer rows.Close()

	var out []*models.CTM
	for rows.Next() {
		c, err := scanCTM(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// MemberTitles returns the titles of all EFs linked to the bucket's centroid
// whose events fall in the bucket's month.
func (s *CTMStore) MemberTitles(ctx context.Context, c *models.CTM) ([]*models.Title, error) {
	start := monthStart(c.Month)
	end := start.AddDate(0, 1, 0)

	rows, err := s.pool.Query(ctx, `
		SELECT `+titleColumns+` FROM titles
		WHERE event_family_id IN (
			SELECT id FROM event_families
			WHERE ef_context->>'macro_link' = $1
			  AND event_start >= $2 AND event_start < $3
		)
		ORDER BY published_at DESC`, c.CentroidID, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to query ctm member titles: %w", err)
	}
	defer rows.Close()

	var out []*models.Title
	for rows.Next() {
		t, err := scanTitle(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
