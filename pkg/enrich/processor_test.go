package enrich

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tessera-intel/tessera/pkg/centroid"
	"github.com/tessera-intel/tessera/pkg/config"
	"github.com/tessera-intel/tessera/pkg/llm"
	"github.com/tessera-intel/tessera/pkg/models"
	"github.com/tessera-intel/tessera/pkg/store"
)

func TestPriorityScoring(t *testing.T) {
	fresh := store.SeedCandidate{
		EF:         &models.EventFamily{Title: "Routine trade talks"},
		TitleCount: 4,
		DaysOld:    1,
	}
	// recency 6 + size 4 = 10.
	assert.InDelta(t, 10, Priority(fresh), 1e-9)

	hot := store.SeedCandidate{
		EF:         &models.EventFamily{Title: "Nuclear enrichment resumes"},
		TitleCount: 25,
		DaysOld:    0,
	}
	// recency 7 + size capped at 10 + keyword bonus 2 = 19.
	assert.InDelta(t, 19, Priority(hot), 1e-9)
}

func TestRankOrdersByPriority(t *testing.T) {
	low := store.SeedCandidate{EF: &models.EventFamily{ID: "low", Title: "a"}, TitleCount: 1, DaysOld: 6}
	high := store.SeedCandidate{EF: &models.EventFamily{ID: "high", Title: "b"}, TitleCount: 9, DaysOld: 0}

	ranked := Rank([]store.SeedCandidate{low, high})
	require.Len(t, ranked, 2)
	assert.Equal(t, "high", ranked[0].EF.ID)
}

type fakeEFStore struct {
	seeds []store.SeedCandidate

	completedID      string
	completedSummary string
	completedTags    []string
	completedCtx     *models.EFContext
	completedPayload *models.Enrichment
}

func (f *fakeEFStore) SeedCandidates(context.Context, int) ([]store.SeedCandidate, error) {
	return f.seeds, nil
}

func (f *fakeEFStore) CompleteEnrichment(_ context.Context, id, summary string,
	tags []string, efCtx *models.EFContext, enrichment *models.Enrichment) error {
	f.completedID = id
	f.completedSummary = summary
	f.completedTags = tags
	f.completedCtx = efCtx
	f.completedPayload = enrichment
	return nil
}

type fakeMembers struct{ titles []*models.Title }

func (f *fakeMembers) MemberTitles(_ context.Context, _ string, limit int) ([]*models.Title, error) {
	if limit > 0 && limit < len(f.titles) {
		return f.titles[:limit], nil
	}
	return f.titles, nil
}

type fakeCTMSink struct {
	centroidID string
	track      string
	month      time.Time
	delta      int
	calls      int
}

func (f *fakeCTMSink) Accumulate(_ context.Context, centroidID, track string,
	month time.Time, delta int) error {
	f.centroidID = centroidID
	f.track = track
	f.month = month
	f.delta = delta
	f.calls++
	return nil
}

type recordingCompleter struct {
	jsonResponses []llm.Result
	jsonCalls     int
	completeCalls int
	completeOut   string
	completeErr   error
}

func (r *recordingCompleter) CompleteJSON(_ context.Context, _, _ string, _ llm.Options) (llm.Result, error) {
	resp := r.jsonResponses[r.jsonCalls]
	r.jsonCalls++
	return resp, nil
}

func (r *recordingCompleter) Complete(context.Context, string, string, llm.Options) (string, error) {
	r.completeCalls++
	return r.completeOut, r.completeErr
}

func stepAResult() llm.Result {
	payload := map[string]any{
		"canonical_actors": []map[string]string{
			{"name": "Russia", "role": "initiator"},
			{"name": "Ukraine", "role": "target"},
		},
		"policy_status":    "implemented",
		"time_span":        map[string]string{"start": "2026-08-01T00:00:00Z", "end": ""},
		"temporal_pattern": "escalating",
		"systemic_context": "part of a wider energy confrontation",
		"why_strategic":    "alters European energy security",
		"official_sources": []string{"kremlin.ru", "energy ministry", "a third outlet"},
		"tags":             []string{"energy", "sanctions", "europe"},
	}
	data, _ := json.Marshal(payload)
	return llm.Result{Outcome: llm.OutcomeOK, JSON: data}
}

func warMatcher() *centroid.Matcher {
	return centroid.NewMatcher([]models.Centroid{{
		ID:       "ARC-UKR",
		Label:    "Russia-Ukraine war",
		Keywords: []string{"ukraine", "gas", "pipeline"},
		Actors:   []string{"russia", "ukraine"},
		Theaters: []string{"eastern europe"},
	}})
}

func strongMatchEF() *models.EventFamily {
	return &models.EventFamily{
		ID:             "ef-1",
		Title:          "Ukraine pipeline gas cutoff",
		Summary:        "Russia halts pipeline gas to Ukraine",
		KeyActors:      []string{"Russia", "Ukraine"},
		EventType:      "Energy",
		PrimaryTheater: "eastern europe",
		EventStart:     time.Date(2026, 8, 14, 0, 0, 0, 0, time.UTC),
		Status:         models.EFStatusSeed,
	}
}

func TestEnrichAutoLinkSkipsSecondJSONCall(t *testing.T) {
	efs := &fakeEFStore{}
	ctms := &fakeCTMSink{}
	members := &fakeMembers{titles: []*models.Title{
		{ID: "t1", Text: "Russia halts gas flows worth $4 billion"},
	}}
	completer := &recordingCompleter{
		jsonResponses: []llm.Result{stepAResult()},
		completeOut:   "Rewritten strategic summary.",
	}

	p := NewProcessor(config.EnrichmentConfig{
		DailyCap: 10, MemberTitleLimit: 5, AutoLinkScore: 0.7, CandidateCount: 5,
	}, efs, members, ctms, warMatcher(), completer, slog.Default())

	require.NoError(t, p.Enrich(context.Background(), strongMatchEF()))

	assert.Equal(t, 1, completer.jsonCalls, "strong centroid match links without the macro-link call")
	assert.Equal(t, "ARC-UKR", efs.completedCtx.MacroLink)
	assert.Equal(t, []string{"energy", "sanctions", "europe"}, efs.completedTags)
	assert.Equal(t, "implemented", efs.completedPayload.PolicyStatus)
	assert.Equal(t, []string{"kremlin.ru", "energy ministry"}, efs.completedPayload.OfficialSources,
		"official sources carried from the canonicalization call, capped at 2")
	require.Len(t, efs.completedPayload.Magnitudes, 1)
	assert.InDelta(t, 4e9, efs.completedPayload.Magnitudes[0].Value, 1)
	assert.Equal(t, "Rewritten strategic summary.", efs.completedSummary,
		"auto-link leaves budget for the rewrite call")
	assert.Equal(t, 1, completer.completeCalls)

	require.Equal(t, 1, ctms.calls, "a macro-linked EF feeds its monthly track bucket")
	assert.Equal(t, "ARC-UKR", ctms.centroidID)
	assert.Equal(t, "energy", ctms.track)
	assert.Equal(t, time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC), ctms.month)
	assert.Equal(t, 1, ctms.delta)
}

func TestEnrichRewriteErrorKeepsOriginalSummary(t *testing.T) {
	efs := &fakeEFStore{}
	ctms := &fakeCTMSink{}
	members := &fakeMembers{titles: []*models.Title{{ID: "t1", Text: "headline"}}}
	completer := &recordingCompleter{
		jsonResponses: []llm.Result{stepAResult()},
		completeErr:   errors.New("model overloaded"),
	}

	p := NewProcessor(config.EnrichmentConfig{
		MemberTitleLimit: 5, AutoLinkScore: 0.7, CandidateCount: 5,
	}, efs, members, ctms, warMatcher(), completer, slog.Default())

	ef := strongMatchEF()
	require.NoError(t, p.Enrich(context.Background(), ef))
	assert.Equal(t, 1, completer.completeCalls)
	assert.Equal(t, ef.Summary, efs.completedSummary,
		"a failed rewrite keeps the original summary, not the template")
}

func TestEnrichNoMacroLinkSkipsAccumulation(t *testing.T) {
	efs := &fakeEFStore{}
	ctms := &fakeCTMSink{}
	members := &fakeMembers{titles: []*models.Title{{ID: "t1", Text: "headline"}}}

	ctxPayload, _ := json.Marshal(map[string]any{"macro_link": ""})
	completer := &recordingCompleter{jsonResponses: []llm.Result{
		stepAResult(),
		{Outcome: llm.OutcomeOK, JSON: ctxPayload},
	}}

	ef := strongMatchEF()
	ef.Title = "Unrelated statement"
	ef.Summary = ""
	ef.KeyActors = nil
	ef.PrimaryTheater = ""

	p := NewProcessor(config.EnrichmentConfig{
		MemberTitleLimit: 5, AutoLinkScore: 0.7, CandidateCount: 5,
	}, efs, members, ctms, warMatcher(), completer, slog.Default())

	require.NoError(t, p.Enrich(context.Background(), ef))
	assert.Zero(t, ctms.calls, "an unlinked EF feeds no bucket")
}

func TestEnrichModerateMatchUsesMacroLinkCall(t *testing.T) {
	efs := &fakeEFStore{}
	members := &fakeMembers{titles: []*models.Title{{ID: "t1", Text: "headline"}}}

	ctxPayload, _ := json.Marshal(map[string]any{
		"macro_link":  "ARC-UKR",
		"comparables": []string{"2022 Nord Stream shutoff"},
	})
	completer := &recordingCompleter{jsonResponses: []llm.Result{
		stepAResult(),
		{Outcome: llm.OutcomeOK, JSON: ctxPayload},
	}}

	// Weak EF signals so the matcher stays below the auto-link score.
	ef := strongMatchEF()
	ef.Title = "Ukraine statement"
	ef.Summary = ""
	ef.KeyActors = []string{"Ukraine"}
	ef.PrimaryTheater = ""

	p := NewProcessor(config.EnrichmentConfig{
		DailyCap: 10, MemberTitleLimit: 5, AutoLinkScore: 0.7, CandidateCount: 5,
	}, efs, members, &fakeCTMSink{}, warMatcher(), completer, slog.Default())

	require.NoError(t, p.Enrich(context.Background(), ef))

	assert.Equal(t, 2, completer.jsonCalls)
	assert.Equal(t, "ARC-UKR", efs.completedCtx.MacroLink)
	assert.Equal(t, []string{"2022 Nord Stream shutoff"}, efs.completedCtx.Comparables)
	assert.Zero(t, completer.completeCalls,
		"the call budget is spent, so the summary uses the deterministic template")
	assert.Contains(t, efs.completedSummary, "Principal actors")
}

func TestEnrichRejectsWrongTagCount(t *testing.T) {
	payload, _ := json.Marshal(map[string]any{
		"canonical_actors": []map[string]string{},
		"tags":             []string{"only", "two"},
	})
	completer := &recordingCompleter{jsonResponses: []llm.Result{
		{Outcome: llm.OutcomeOK, JSON: payload},
	}}
	efs := &fakeEFStore{}
	members := &fakeMembers{titles: []*models.Title{{ID: "t1", Text: "x"}}}

	p := NewProcessor(config.EnrichmentConfig{MemberTitleLimit: 5, AutoLinkScore: 0.7, CandidateCount: 5},
		efs, members, &fakeCTMSink{}, warMatcher(), completer, slog.Default())

	err := p.Enrich(context.Background(), strongMatchEF())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "3 tags")
	assert.Empty(t, efs.completedID, "a failed step A leaves the EF untouched")
}

func TestEnrichRejectsUnknownPolicyStatus(t *testing.T) {
	payload, _ := json.Marshal(map[string]any{
		"policy_status": "meandering",
		"tags":          []string{"a", "b", "c"},
	})
	completer := &recordingCompleter{jsonResponses: []llm.Result{
		{Outcome: llm.OutcomeOK, JSON: payload},
	}}
	efs := &fakeEFStore{}
	members := &fakeMembers{titles: []*models.Title{{ID: "t1", Text: "x"}}}

	p := NewProcessor(config.EnrichmentConfig{MemberTitleLimit: 5, AutoLinkScore: 0.7, CandidateCount: 5},
		efs, members, &fakeCTMSink{}, warMatcher(), completer, slog.Default())

	err := p.Enrich(context.Background(), strongMatchEF())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "vocabulary")
}
