package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tessera-intel/tessera/pkg/assembly"
	"github.com/tessera-intel/tessera/pkg/config"
	"github.com/tessera-intel/tessera/pkg/connectivity"
	"github.com/tessera-intel/tessera/pkg/enrich"
	"github.com/tessera-intel/tessera/pkg/filter"
	"github.com/tessera-intel/tessera/pkg/models"
	"github.com/tessera-intel/tessera/pkg/narrative"
	"github.com/tessera-intel/tessera/pkg/store"
)

// Phase names, which are also the checkpoint file names.
const (
	PhaseFilter       = "filter"
	PhaseConnectivity = "connectivity"
	PhaseAssembly     = "assembly"
	PhaseEnrichment   = "enrichment"
	PhaseNarrative    = "narrative"
)

// Phases lists every runnable phase in pipeline order.
var Phases = []string{PhaseFilter, PhaseConnectivity, PhaseAssembly, PhaseEnrichment, PhaseNarrative}

// FilterTitleStore is the title surface the filter phase drives.
type FilterTitleStore interface {
	LoadUnfilteredAfter(ctx context.Context, afterID string, limit int) ([]*models.Title, error)
	MarkVerdict(ctx context.Context, id string, verdict models.Verdict, reason string,
		entities []models.Entity, actors []string, triple *models.ActionTriple) error
}

// GraphSink receives kept titles, best-effort.
type GraphSink interface {
	SyncTitle(ctx context.Context, t *models.Title) error
	SyncActionTriple(ctx context.Context, titleID string, triple *models.ActionTriple) error
}

// Stages bundles every stage dependency the CLI and server wire up once.
type Stages struct {
	Titles     FilterTitleStore
	EFs        *store.EventFamilyStore
	CTMs       *store.CTMStore
	Epics      *store.EpicStore
	Graph      GraphSink
	Filter     *filter.Filter
	Refresher  *connectivity.Refresher
	Assembler  *assembly.Assembler
	Enricher   *enrich.Processor
	Extractor  *narrative.Extractor
	Runner     *Runner
	Logger     *slog.Logger

	NarrativeCfg config.NarrativeConfig
}

// RunOptions selects how a phase run behaves.
type RunOptions struct {
	BatchSize int  // >0 stops the filter phase after this many items
	Resume    bool // false discards any existing checkpoint first
	DryRun    bool // classify and log, write nothing
}

// RunPhase dispatches one phase by name.
func (s *Stages) RunPhase(ctx context.Context, phase string, opts RunOptions) error {
	switch phase {
	case PhaseFilter:
		return s.runFilter(ctx, opts)
	case PhaseConnectivity:
		_, err := s.Refresher.Refresh(ctx)
		return err
	case PhaseAssembly:
		return s.runAssembly(ctx)
	case PhaseEnrichment:
		return s.runEnrichment(ctx)
	case PhaseNarrative:
		return s.runNarrative(ctx)
	default:
		return fmt.Errorf("unknown phase %q", phase)
	}
}

// runFilter walks unfiltered titles strictly after the checkpoint cursor,
// classifies each, writes the verdict, and syncs kept titles into the
// graph. Items inside a chunk fan out across the worker pool; the cursor
// advances only past fully processed chunks, so a crash re-runs at most
// one chunk and MarkVerdict's idempotence absorbs the overlap.
func (s *Stages) runFilter(ctx context.Context, opts RunOptions) error {
	cp, err := s.loadCheckpoint(PhaseFilter, opts.Resume)
	if err != nil {
		return err
	}

	const chunk = 200
	processed := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		limit := chunk
		if opts.BatchSize > 0 && opts.BatchSize-processed < limit {
			limit = opts.BatchSize - processed
		}
		if limit <= 0 {
			break
		}

		titles, err := s.Titles.LoadUnfilteredAfter(ctx, cp.LastItemID, limit)
		if err != nil {
			return err
		}
		if len(titles) == 0 {
			// Full drain: the cursor is spent.
			if opts.BatchSize <= 0 && !opts.DryRun {
				return s.Runner.Checkpoints().Clear(PhaseFilter)
			}
			return nil
		}

		failed := make([]bool, len(titles))
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(s.Runner.Workers())
		for i, t := range titles {
			g.Go(func() error {
				return s.filterOne(gctx, t, opts.DryRun, &failed[i])
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}

		for _, f := range failed {
			if f {
				cp.Failed++
			} else {
				cp.Succeeded++
			}
		}
		cp.LastItemID = titles[len(titles)-1].ID
		cp.ProcessedCount += len(titles)
		processed += len(titles)
		// A dry run never persists the cursor.
		if !opts.DryRun {
			if err := s.Runner.Checkpoints().Save(ctx, cp); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *Stages) filterOne(ctx context.Context, t *models.Title, dryRun bool, failed *bool) error {
	decision := s.Filter.Classify(ctx, t)
	verdict := models.VerdictNonStrategic
	if decision.Keep {
		verdict = models.VerdictStrategic
	}

	if dryRun {
		s.Logger.InfoContext(ctx, "dry-run verdict",
			"title_id", t.ID, "verdict", verdict, "reason", decision.Reason)
		return nil
	}

	err := s.Runner.Retry(ctx, func(ctx context.Context) error {
		return s.Titles.MarkVerdict(ctx, t.ID, verdict, decision.Reason,
			t.Entities, t.Actors, t.Triple)
	})
	if err != nil {
		if !permanent(err) {
			return err
		}
		// Invariant violation: skip the item, keep going.
		s.Logger.WarnContext(ctx, "verdict rejected, skipping",
			"title_id", t.ID, "error", err)
		*failed = true
		return nil
	}

	if decision.Keep && s.Graph != nil {
		// Best-effort: later titles read this via stage 2.
		t.Verdict = verdict
		if err := s.Graph.SyncTitle(ctx, t); err != nil {
			s.Logger.WarnContext(ctx, "graph sync failed", "title_id", t.ID, "error", err)
		} else if err := s.Graph.SyncActionTriple(ctx, t.ID, t.Triple); err != nil {
			s.Logger.WarnContext(ctx, "action triple sync failed", "title_id", t.ID, "error", err)
		}
	}
	return nil
}

func (s *Stages) runAssembly(ctx context.Context) error {
	var stats assembly.Stats
	err := s.Runner.WithLLM(ctx, func(ctx context.Context) error {
		var runErr error
		stats, runErr = s.Assembler.Run(ctx)
		return runErr
	})
	if err != nil {
		return err
	}
	s.Logger.InfoContext(ctx, "assembly run complete",
		"titles", stats.TitlesLoaded, "families", stats.FamiliesCreated,
		"assigned", stats.TitlesAssigned, "dropped", stats.ProposalsDropped,
		"abandoned_batches", stats.BatchesAbandoned)

	return s.Runner.Checkpoints().Save(ctx, models.Checkpoint{
		Phase:          PhaseAssembly,
		ProcessedCount: stats.TitlesLoaded,
		Succeeded:      stats.TitlesAssigned,
		Failed:         stats.ProposalsDropped,
	})
}

func (s *Stages) runEnrichment(ctx context.Context) error {
	var stats enrich.Stats
	err := s.Runner.WithLLM(ctx, func(ctx context.Context) error {
		var runErr error
		stats, runErr = s.Enricher.Run(ctx)
		return runErr
	})
	if err != nil {
		return err
	}
	s.Logger.InfoContext(ctx, "enrichment run complete",
		"candidates", stats.Candidates, "enriched", stats.Enriched, "failed", stats.Failed)

	return s.Runner.Checkpoints().Save(ctx, models.Checkpoint{
		Phase:          PhaseEnrichment,
		ProcessedCount: stats.Enriched + stats.Failed,
		Succeeded:      stats.Enriched,
		Failed:         stats.Failed,
	})
}

// runNarrative freezes spent months, regenerates frames for CTM buckets
// that pass the refresh gate, and rebuilds + frames the current month's
// epics.
func (s *Stages) runNarrative(ctx context.Context) error {
	now := time.Now().UTC()
	if frozen, err := s.CTMs.FreezeBefore(ctx, now); err != nil {
		return err
	} else if frozen > 0 {
		s.Logger.InfoContext(ctx, "froze ctm buckets for past months", "count", frozen)
	}

	candidates, err := s.CTMs.NarrativeCandidates(ctx,
		s.NarrativeCfg.CTMMinTitles, s.NarrativeCfg.RefreshGrowth, s.NarrativeCfg.RefreshInterval)
	if err != nil {
		return err
	}

	cp := models.Checkpoint{Phase: PhaseNarrative}
	for _, ctm := range candidates {
		if err := ctx.Err(); err != nil {
			return err
		}
		titles, err := s.CTMs.MemberTitles(ctx, ctm)
		if err != nil {
			return err
		}
		err = s.Runner.WithLLM(ctx, func(ctx context.Context) error {
			return s.Extractor.FrameCTM(ctx, ctm, titles)
		})
		cp.ProcessedCount++
		if err != nil {
			cp.Failed++
			if errors.Is(err, narrative.ErrInsufficientTitles) {
				continue
			}
			s.Logger.WarnContext(ctx, "ctm framing failed",
				"centroid", ctm.CentroidID, "track", ctm.Track, "error", err)
			continue
		}
		if err := s.CTMs.MarkNarrativeRefreshed(ctx, ctm.CentroidID, ctm.Track, ctm.Month, len(titles)); err != nil {
			return err
		}
		cp.Succeeded++
	}

	epics, err := s.Epics.BuildForMonth(ctx, now)
	if err != nil {
		return err
	}
	for i := range epics {
		epic := &epics[i]
		titles, centroidOf, err := s.Epics.MemberTitles(ctx, epic.ID)
		if err != nil {
			return err
		}
		err = s.Runner.WithLLM(ctx, func(ctx context.Context) error {
			return s.Extractor.FrameEpic(ctx, epic, titles, centroidOf)
		})
		cp.ProcessedCount++
		if err != nil {
			cp.Failed++
			if !errors.Is(err, narrative.ErrInsufficientTitles) {
				s.Logger.WarnContext(ctx, "epic framing failed", "epic", epic.Label, "error", err)
			}
			continue
		}
		cp.Succeeded++
	}

	return s.Runner.Checkpoints().Save(ctx, cp)
}

func (s *Stages) loadCheckpoint(phase string, resume bool) (models.Checkpoint, error) {
	if !resume {
		if err := s.Runner.Checkpoints().Clear(phase); err != nil {
			return models.Checkpoint{}, err
		}
		return models.Checkpoint{Phase: phase}, nil
	}
	return s.Runner.Checkpoints().Load(phase)
}
