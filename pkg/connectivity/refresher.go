// Package connectivity rebuilds the pairwise connectivity cache from graph
// co-occurrence counts. The graph contributes only raw shared-entity
// counts; Jaccard, actor match, and the composite are computed here and
// batched into Postgres as a full refresh of the unassigned working set.
package connectivity

import (
	"context"
	"log/slog"
	"strings"

	"github.com/tessera-intel/tessera/pkg/config"
	"github.com/tessera-intel/tessera/pkg/graph"
	"github.com/tessera-intel/tessera/pkg/models"
	"github.com/tessera-intel/tessera/pkg/store"
)

// PairSource is the slice of the graph index the refresher needs.
type PairSource interface {
	RebuildDerivedEdges(ctx context.Context) error
	UnassignedSharedEntityPairs(ctx context.Context, minShared, max int) ([]graph.SharedPair, error)
}

// MetaSource supplies entity counts and primary actors for scoring.
type MetaSource interface {
	LoadMeta(ctx context.Context, ids []string) (map[string]store.TitleMeta, error)
}

// PairSink persists the refreshed cache.
type PairSink interface {
	ReplaceForUnassigned(ctx context.Context, pairs []models.ConnectivityPair, batchSize int) error
}

// Refresher drives one connectivity cache rebuild.
type Refresher struct {
	cfg    config.ConnectivityConfig
	graph  PairSource
	titles MetaSource
	cache  PairSink
	logger *slog.Logger
}

// NewRefresher creates a Refresher.
func NewRefresher(cfg config.ConnectivityConfig, graphSrc PairSource, titles MetaSource,
	cache PairSink, logger *slog.Logger) *Refresher {

	if graphSrc == nil {
		panic("NewRefresher: graph source must not be nil")
	}
	if titles == nil {
		panic("NewRefresher: title meta source must not be nil")
	}
	if cache == nil {
		panic("NewRefresher: pair sink must not be nil")
	}
	if logger == nil {
		panic("NewRefresher: logger must not be nil")
	}
	return &Refresher{cfg: cfg, graph: graphSrc, titles: titles, cache: cache,
		logger: logger.With("component", "connectivity")}
}

// Refresh rebuilds the cache: fetch capped pairs from the graph, join
// against the title store for entity counts and actors, score, filter, and
// replace the working set in one transaction.
func (r *Refresher) Refresh(ctx context.Context) (int, error) {
	if err := r.graph.RebuildDerivedEdges(ctx); err != nil {
		// Derived edges only accelerate graph-side queries; stale ones do
		// not change the pair counts fetched below.
		r.logger.WarnContext(ctx, "derived edge rebuild failed, continuing", "error", err)
	}

	raw, err := r.graph.UnassignedSharedEntityPairs(ctx, r.cfg.MinSharedEntities, r.cfg.MaxPairs)
	if err != nil {
		return 0, err
	}
	if len(raw) == 0 {
		return 0, r.cache.ReplaceForUnassigned(ctx, nil, r.cfg.InsertBatchSize)
	}

	idSet := make(map[string]bool, len(raw)*2)
	for _, p := range raw {
		idSet[p.TitleA] = true
		idSet[p.TitleB] = true
	}
	ids := make([]string, 0, len(idSet))
	for id := range idSet {
		ids = append(ids, id)
	}
	meta, err := r.titles.LoadMeta(ctx, ids)
	if err != nil {
		return 0, err
	}

	pairs := make([]models.ConnectivityPair, 0, len(raw))
	for _, p := range raw {
		ma, okA := meta[p.TitleA]
		mb, okB := meta[p.TitleB]
		if !okA || !okB {
			// Title deleted since the graph snapshot.
			continue
		}
		pair, ok := Score(p, ma, mb, r.cfg.MinComposite)
		if !ok {
			continue
		}
		pairs = append(pairs, pair)
	}

	if err := r.cache.ReplaceForUnassigned(ctx, pairs, r.cfg.InsertBatchSize); err != nil {
		return 0, err
	}
	r.logger.InfoContext(ctx, "connectivity cache refreshed",
		"graph_pairs", len(raw), "kept", len(pairs))
	return len(pairs), nil
}

// Score computes the composite for one pair. Returns false when the pair
// falls below minComposite or the counts cannot produce a Jaccard.
func Score(p graph.SharedPair, a, b store.TitleMeta, minComposite float64) (models.ConnectivityPair, bool) {
	union := a.EntityCount + b.EntityCount - p.SharedCount
	if union <= 0 || p.SharedCount <= 0 {
		return models.ConnectivityPair{}, false
	}
	jaccard := float64(p.SharedCount) / float64(union)
	if jaccard > 1 {
		jaccard = 1
	}

	actorMatch, sharedActor := actorScore(a.PrimaryActor, b.PrimaryActor)
	composite := 0.5*jaccard + 0.2*actorMatch
	if composite < minComposite {
		return models.ConnectivityPair{}, false
	}

	pair := models.ConnectivityPair{
		TitleA:        p.TitleA,
		TitleB:        p.TitleB,
		EntityJaccard: jaccard,
		ActorMatch:    actorMatch,
		Composite:     composite,
		SharedActor:   sharedActor,
	}
	if pair.TitleA > pair.TitleB {
		pair.TitleA, pair.TitleB = pair.TitleB, pair.TitleA
	}
	return pair, true
}

// actorScore compares normalized primary actors: 1.0 for equality, 0.8 for
// substring containment, 0 otherwise.
func actorScore(a, b string) (float64, string) {
	na := strings.ToLower(strings.TrimSpace(a))
	nb := strings.ToLower(strings.TrimSpace(b))
	if na == "" || nb == "" {
		return 0, ""
	}
	if na == nb {
		return 1.0, na
	}
	if strings.Contains(na, nb) || strings.Contains(nb, na) {
		shorter := na
		if len(nb) < len(na) {
			shorter = nb
		}
		return 0.8, shorter
	}
	return 0, ""
}
