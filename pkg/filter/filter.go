// Package filter implements the P2 strategic filter: a three-stage
// per-title classifier that decides strategic vs non-strategic exactly
// once. Stage 1 is mechanical rules, stage 2 consults the graph for
// neighborhood evidence, stage 3 is the reject fallback.
package filter

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/tessera-intel/tessera/pkg/config"
	"github.com/tessera-intel/tessera/pkg/graph"
	"github.com/tessera-intel/tessera/pkg/models"
)

// GraphReader is the slice of the graph index the filter needs.
type GraphReader interface {
	StrategicNeighbors(ctx context.Context, titleID string, minShared, days, limit int) ([]graph.Neighbor, error)
}

// Decision is the filter outcome for one title.
type Decision struct {
	Keep   bool
	Reason string
}

// Filter classifies titles.
type Filter struct {
	cfg    config.FilterConfig
	graph  GraphReader
	logger *slog.Logger
}

// New creates a Filter. The graph reader may be nil, in which case stage 2
// is skipped entirely.
func New(cfg config.FilterConfig, graphReader GraphReader, logger *slog.Logger) *Filter {
	if logger == nil {
		panic("filter.New: logger must not be nil")
	}
	return &Filter{cfg: cfg, graph: graphReader, logger: logger.With("component", "filter")}
}

// Classify walks the three stages and returns a terminal decision. Stage 2
// is best-effort: a graph error is logged and treated as no boost.
func (f *Filter) Classify(ctx context.Context, t *models.Title) Decision {
	if d, terminal := f.mechanical(t); terminal {
		return d
	}

	if f.graph != nil && len(t.Entities) >= f.cfg.MinSharedEntities {
		neighbors, err := f.graph.StrategicNeighbors(ctx, t.ID,
			f.cfg.MinSharedEntities, f.cfg.GraphWindowDays, f.cfg.MaxNeighbors)
		if err != nil {
			f.logger.WarnContext(ctx, "graph stage unavailable, no boost",
				"title_id", t.ID, "error", err)
		} else {
			connected := 0
			for _, n := range neighbors {
				if n.SharedCount >= f.cfg.KeepSharedEntities {
					connected = len(neighbors)
					break
				}
			}
			if connected > 0 {
				return Decision{
					Keep:   true,
					Reason: fmt.Sprintf("connected to %d strategic articles", connected),
				}
			}
		}
	}

	return Decision{Keep: false, Reason: "no_strategic_signal"}
}

// mechanical runs stage 1. The second return is false when the title is
// borderline and stage 2 should run.
func (f *Filter) mechanical(t *models.Title) (Decision, bool) {
	normalized := t.NormalizedText
	if normalized == "" {
		normalized = strings.ToLower(t.Text)
	}

	// Stop list blocks regardless of any later signal.
	if _, ok := firstMatch(normalized, stopList); ok {
		return Decision{Keep: false, Reason: "blocked_by_stop"}, true
	}
	if actor, ok := firstMatch(normalized, actorAllowList); ok {
		return Decision{Keep: true, Reason: `mechanical KEEP: actor allow-list hit on "` + actor + `"`}, true
	}
	if kw, ok := firstMatch(normalized, strategicKeywords); ok {
		return Decision{Keep: true, Reason: `mechanical KEEP: strategic keyword "` + kw + `"`}, true
	}
	return Decision{}, false
}
