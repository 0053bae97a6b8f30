package filter

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/tessera-intel/tessera/pkg/config"
	"github.com/tessera-intel/tessera/pkg/graph"
	"github.com/tessera-intel/tessera/pkg/models"
)

type stubGraph struct {
	neighbors []graph.Neighbor
	err       error
	calls     int
}

func (s *stubGraph) StrategicNeighbors(_ context.Context, _ string, _, _, _ int) ([]graph.Neighbor, error) {
	s.calls++
	return s.neighbors, s.err
}

func testConfig() config.FilterConfig {
	return config.FilterConfig{
		MinSharedEntities:  2,
		KeepSharedEntities: 3,
		GraphWindowDays:    2,
		MaxNeighbors:       3,
	}
}

func title(id, text string, entities ...models.Entity) *models.Title {
	return &models.Title{
		ID:          id,
		Text:        text,
		PublishedAt: time.Now(),
		Verdict:     models.VerdictUnfiltered,
		Entities:    entities,
	}
}

func TestClassifyKeywordKeep(t *testing.T) {
	g := &stubGraph{}
	f := New(testConfig(), g, slog.Default())

	d := f.Classify(context.Background(), title("T1", "US imposes new sanctions on Iran",
		models.Entity{Text: "US", Type: "GPE"},
		models.Entity{Text: "Iran", Type: "GPE"},
		models.Entity{Text: "sanctions", Type: "EVENT"},
	))

	assert.True(t, d.Keep)
	assert.Contains(t, d.Reason, "mechanical KEEP")
	assert.Equal(t, 0, g.calls, "mechanical keep must not consult the graph")
}

func TestClassifyNoSignalReject(t *testing.T) {
	g := &stubGraph{}
	f := New(testConfig(), g, slog.Default())

	d := f.Classify(context.Background(), title("T2", "Celebrity wedding breaks internet records",
		models.Entity{Text: "wedding", Type: "EVENT"},
		models.Entity{Text: "internet", Type: "ORG"},
	))

	assert.False(t, d.Keep)
	assert.Equal(t, "no_strategic_signal", d.Reason)
	assert.Equal(t, 1, g.calls, "borderline title with two entities goes to stage 2")
}

func TestClassifyStopListBlocks(t *testing.T) {
	g := &stubGraph{neighbors: []graph.Neighbor{{ID: "N1", SharedCount: 5}}}
	f := New(testConfig(), g, slog.Default())

	d := f.Classify(context.Background(), title("T3", "Weekly horoscope: Mars enters sanctions house",
		models.Entity{Text: "Mars", Type: "LOC"},
		models.Entity{Text: "sanctions", Type: "EVENT"},
	))

	assert.False(t, d.Keep)
	assert.Equal(t, "blocked_by_stop", d.Reason)
	assert.Equal(t, 0, g.calls, "stop list blocks regardless of graph signal")
}

func TestClassifyGraphBoost(t *testing.T) {
	g := &stubGraph{neighbors: []graph.Neighbor{
		{ID: "N1", SharedCount: 4},
		{ID: "N2", SharedCount: 2},
	}}
	f := New(testConfig(), g, slog.Default())

	d := f.Classify(context.Background(), title("T4", "Tanker convoy rerouted after port inspection",
		models.Entity{Text: "tanker convoy", Type: "ORG"},
		models.Entity{Text: "port", Type: "FAC"},
	))

	assert.True(t, d.Keep)
	assert.Equal(t, "connected to 2 strategic articles", d.Reason)
}

func TestClassifyNeighborsBelowKeepThreshold(t *testing.T) {
	g := &stubGraph{neighbors: []graph.Neighbor{{ID: "N1", SharedCount: 2}}}
	f := New(testConfig(), g, slog.Default())

	d := f.Classify(context.Background(), title("T5", "Regional council debates ferry schedule",
		models.Entity{Text: "council", Type: "ORG"},
		models.Entity{Text: "ferry", Type: "FAC"},
	))

	assert.False(t, d.Keep)
	assert.Equal(t, "no_strategic_signal", d.Reason)
}

func TestClassifyGraphErrorDemotes(t *testing.T) {
	g := &stubGraph{err: errors.New("neo4j unreachable")}
	f := New(testConfig(), g, slog.Default())

	d := f.Classify(context.Background(), title("T6", "Port authority reviews foreign lease",
		models.Entity{Text: "port authority", Type: "ORG"},
		models.Entity{Text: "lease", Type: "EVENT"},
	))

	assert.False(t, d.Keep)
	assert.Equal(t, "no_strategic_signal", d.Reason, "graph errors demote to stage 3, never poison the verdict")
}

func TestClassifyTooFewEntitiesSkipsGraph(t *testing.T) {
	g := &stubGraph{neighbors: []graph.Neighbor{{ID: "N1", SharedCount: 5}}}
	f := New(testConfig(), g, slog.Default())

	d := f.Classify(context.Background(), title("T7", "Quiet day on the markets",
		models.Entity{Text: "markets", Type: "ORG"},
	))

	assert.False(t, d.Keep)
	assert.Equal(t, 0, g.calls)
}

func TestClassifyNilGraph(t *testing.T) {
	f := New(testConfig(), nil, slog.Default())

	d := f.Classify(context.Background(), title("T8", "Local fair draws record crowds",
		models.Entity{Text: "fair", Type: "EVENT"},
		models.Entity{Text: "crowds", Type: "ORG"},
	))

	assert.False(t, d.Keep)
	assert.Equal(t, "no_strategic_signal", d.Reason)
}
