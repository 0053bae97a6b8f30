package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tessera-intel/tessera/pkg/config"
	"github.com/tessera-intel/tessera/pkg/filter"
	"github.com/tessera-intel/tessera/pkg/models"
	"github.com/tessera-intel/tessera/pkg/store"
)

type fakeFilterTitles struct {
	mu       sync.Mutex
	backlog  []*models.Title
	verdicts map[string]models.Verdict
	failIDs  map[string]bool

	inFlight      int
	maxConcurrent int
}

func newFakeFilterTitles(n int) *fakeFilterTitles {
	f := &fakeFilterTitles{verdicts: map[string]models.Verdict{}, failIDs: map[string]bool{}}
	for i := 1; i <= n; i++ {
		f.backlog = append(f.backlog, &models.Title{
			ID:   fmt.Sprintf("t-%02d", i),
			Text: fmt.Sprintf("local council meeting %d", i),
		})
	}
	return f
}

func (f *fakeFilterTitles) LoadUnfilteredAfter(_ context.Context, afterID string, limit int) ([]*models.Title, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []*models.Title
	for _, t := range f.backlog {
		if t.ID > afterID {
			if _, done := f.verdicts[t.ID]; !done {
				out = append(out, t)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeFilterTitles) MarkVerdict(_ context.Context, id string, verdict models.Verdict, _ string,
	_ []models.Entity, _ []string, _ *models.ActionTriple) error {

	f.mu.Lock()
	f.inFlight++
	if f.inFlight > f.maxConcurrent {
		f.maxConcurrent = f.inFlight
	}
	fail := f.failIDs[id]
	f.mu.Unlock()

	time.Sleep(10 * time.Millisecond)

	f.mu.Lock()
	f.inFlight--
	if !fail {
		f.verdicts[id] = verdict
	}
	f.mu.Unlock()

	if fail {
		return store.ErrVerdictAlreadySet
	}
	return nil
}

func newFilterStages(t *testing.T, titles *fakeFilterTitles, workers int) *Stages {
	t.Helper()
	checkpoints, err := NewCheckpointManager(t.TempDir(), nil, slog.Default())
	require.NoError(t, err)

	runner := NewRunner(config.RunnerConfig{
		WorkerCount:    workers,
		LLMConcurrency: 1,
		InitialBackoff: time.Millisecond,
	}, checkpoints, slog.Default())

	return &Stages{
		Titles: titles,
		Filter: filter.New(config.FilterConfig{MinSharedEntities: 2, KeepSharedEntities: 3},
			nil, slog.Default()),
		Runner: runner,
		Logger: slog.Default(),
	}
}

func TestRunFilterFansOutAcrossWorkers(t *testing.T) {
	titles := newFakeFilterTitles(8)
	s := newFilterStages(t, titles, 4)

	require.NoError(t, s.RunPhase(context.Background(), PhaseFilter, RunOptions{}))

	assert.Len(t, titles.verdicts, 8, "every backlog title gets a verdict")
	assert.GreaterOrEqual(t, titles.maxConcurrent, 2,
		"a worker count of 4 processes items concurrently")

	// Full drain clears the checkpoint.
	cp, err := s.Runner.Checkpoints().Load(PhaseFilter)
	require.NoError(t, err)
	assert.Empty(t, cp.LastItemID)
}

func TestRunFilterSequentialWithOneWorker(t *testing.T) {
	titles := newFakeFilterTitles(5)
	s := newFilterStages(t, titles, 1)

	require.NoError(t, s.RunPhase(context.Background(), PhaseFilter, RunOptions{}))

	assert.Len(t, titles.verdicts, 5)
	assert.Equal(t, 1, titles.maxConcurrent)
}

func TestRunFilterSkipsInvariantViolations(t *testing.T) {
	titles := newFakeFilterTitles(6)
	titles.failIDs["t-03"] = true
	s := newFilterStages(t, titles, 4)

	require.NoError(t, s.RunPhase(context.Background(), PhaseFilter, RunOptions{BatchSize: 6}))

	cp, err := s.Runner.Checkpoints().Load(PhaseFilter)
	require.NoError(t, err)
	assert.Equal(t, 6, cp.ProcessedCount)
	assert.Equal(t, 5, cp.Succeeded)
	assert.Equal(t, 1, cp.Failed)
	assert.Equal(t, "t-06", cp.LastItemID, "the cursor advances past the rejected item")
}

func TestRunFilterDryRunWritesNothing(t *testing.T) {
	titles := newFakeFilterTitles(4)
	s := newFilterStages(t, titles, 2)

	require.NoError(t, s.RunPhase(context.Background(), PhaseFilter, RunOptions{DryRun: true, BatchSize: 4}))
	assert.Empty(t, titles.verdicts)

	cp, err := s.Runner.Checkpoints().Load(PhaseFilter)
	require.NoError(t, err)
	assert.Empty(t, cp.LastItemID, "a dry run never persists the cursor")
}
