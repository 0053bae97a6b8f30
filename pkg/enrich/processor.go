// Package enrich implements the per-EF enrichment processor: canonical
// actors and context from one LLM call, magnitudes from a regex pass, a
// centroid macro-link (second LLM call only below the auto-link score),
// and an enriched summary. The cost cap is a contract: at most two LLM
// calls and one regex pass per Event Family.
package enrich

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/tessera-intel/tessera/pkg/centroid"
	"github.com/tessera-intel/tessera/pkg/config"
	"github.com/tessera-intel/tessera/pkg/llm"
	"github.com/tessera-intel/tessera/pkg/models"
	"github.com/tessera-intel/tessera/pkg/store"
)

// Completer is the slice of the LLM client the processor needs.
type Completer interface {
	CompleteJSON(ctx context.Context, system, user string, opts llm.Options) (llm.Result, error)
	Complete(ctx context.Context, system, user string, opts llm.Options) (string, error)
}

// EFStore is the Event-Family surface the processor needs.
type EFStore interface {
	SeedCandidates(ctx context.Context, limit int) ([]store.SeedCandidate, error)
	CompleteEnrichment(ctx context.Context, id string, summary string,
		tags []string, efCtx *models.EFContext, enrichment *models.Enrichment) error
}

// TitleSource loads member titles.
type TitleSource interface {
	MemberTitles(ctx context.Context, efID string, limit int) ([]*models.Title, error)
}

// CTMSink accumulates macro-linked EFs into monthly centroid-track
// buckets.
type CTMSink interface {
	Accumulate(ctx context.Context, centroidID, track string, month time.Time, delta int) error
}

// priorityKeywords add a bonus during candidate ranking.
var priorityKeywords = []string{
	"nuclear", "invasion", "sanctions", "missile", "ceasefire", "blockade",
}

// Processor enriches seed Event Families.
type Processor struct {
	cfg     config.EnrichmentConfig
	efs     EFStore
	titles  TitleSource
	ctms    CTMSink
	matcher *centroid.Matcher
	llm     Completer
	logger  *slog.Logger
}

// NewProcessor creates a Processor.
func NewProcessor(cfg config.EnrichmentConfig, efs EFStore, titles TitleSource,
	ctms CTMSink, matcher *centroid.Matcher, completer Completer, logger *slog.Logger) *Processor {

	if efs == nil {
		panic("enrich.NewProcessor: EF store must not be nil")
	}
	if titles == nil {
		panic("enrich.NewProcessor: title source must not be nil")
	}
	if ctms == nil {
		panic("enrich.NewProcessor: CTM sink must not be nil")
	}
	if matcher == nil {
		panic("enrich.NewProcessor: matcher must not be nil")
	}
	if completer == nil {
		panic("enrich.NewProcessor: completer must not be nil")
	}
	if logger == nil {
		panic("enrich.NewProcessor: logger must not be nil")
	}
	return &Processor{cfg: cfg, efs: efs, titles: titles, ctms: ctms, matcher: matcher,
		llm: completer, logger: logger.With("component", "enrich")}
}

// Stats summarizes one enrichment run.
type Stats struct {
	Candidates int
	Enriched   int
	Failed     int
}

// Run ranks seed EFs and enriches them up to the daily cap.
func (p *Processor) Run(ctx context.Context) (Stats, error) {
	var stats Stats

	candidates, err := p.efs.SeedCandidates(ctx, 0)
	if err != nil {
		return stats, err
	}
	ranked := Rank(candidates)
	stats.Candidates = len(ranked)

	dailyCap := p.cfg.DailyCap
	for i, cand := range ranked {
		if dailyCap > 0 && i >= dailyCap {
			break
		}
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		if err := p.Enrich(ctx, cand.EF); err != nil {
			stats.Failed++
			p.logger.WarnContext(ctx, "enrichment failed, EF stays seed",
				"ef_id", cand.EF.ID, "error", err)
			continue
		}
		stats.Enriched++
	}
	return stats, nil
}

// Rank orders seed candidates by recency + size + strategic keyword bonus,
// highest first.
func Rank(candidates []store.SeedCandidate) []store.SeedCandidate {
	type scored struct {
		c store.SeedCandidate
		s float64
	}
	scoredList := make([]scored, len(candidates))
	for i, c := range candidates {
		scoredList[i] = scored{c: c, s: Priority(c)}
	}
	// Insertion sort keeps ties in SeedCandidates order (newest first).
	for i := 1; i < len(scoredList); i++ {
		for j := i; j > 0 && scoredList[j].s > scoredList[j-1].s; j-- {
			scoredList[j], scoredList[j-1] = scoredList[j-1], scoredList[j]
		}
	}
	out := make([]store.SeedCandidate, len(scoredList))
	for i, s := range scoredList {
		out[i] = s.c
	}
	return out
}

// Priority scores one candidate: recency (7 − days old), size (title count
// capped at 10), plus a keyword bonus.
func Priority(c store.SeedCandidate) float64 {
	score := float64(7 - c.DaysOld)
	size := c.TitleCount
	if size > 10 {
		size = 10
	}
	score += float64(size)

	text := strings.ToLower(c.EF.Title + " " + c.EF.Summary)
	for _, kw := range priorityKeywords {
		if strings.Contains(text, kw) {
			score += 2
			break
		}
	}
	return score
}

// stepAResponse is the Step-A JSON shape.
type stepAResponse struct {
	CanonicalActors []models.CanonicalActor `json:"canonical_actors"`
	PolicyStatus    string                  `json:"policy_status"`
	TimeSpan        struct {
		Start string `json:"start"`
		End   string `json:"end"`
	} `json:"time_span"`
	TemporalPattern   string   `json:"temporal_pattern"`
	MagnitudeBaseline string   `json:"magnitude_baseline"`
	SystemicContext   string   `json:"systemic_context"`
	WhyStrategic      string   `json:"why_strategic"`
	OfficialSources   []string `json:"official_sources"`
	Tags              []string `json:"tags"`
}

// Enrich runs steps A through E on one EF. A failed Step A aborts with the
// EF unchanged; a failed Step C degrades to an empty context; a failed
// Step D keeps the original EF summary.
func (p *Processor) Enrich(ctx context.Context, ef *models.EventFamily) error {
	members, err := p.titles.MemberTitles(ctx, ef.ID, p.cfg.MemberTitleLimit)
	if err != nil {
		return err
	}

	// Step A: canonicalize + context, temperature 0.
	stepA, err := p.canonicalize(ctx, ef, members)
	if err != nil {
		return fmt.Errorf("canonicalization failed: %w", err)
	}
	llmCalls := 1

	enrichment := &models.Enrichment{
		CanonicalActors:   stepA.CanonicalActors,
		PolicyStatus:      stepA.PolicyStatus,
		TemporalPattern:   stepA.TemporalPattern,
		MagnitudeBaseline: stepA.MagnitudeBaseline,
		SystemicContext:   stepA.SystemicContext,
		OfficialSources:   stepA.OfficialSources,
		WhyStrategic:      stepA.WhyStrategic,
	}
	if start, err := time.Parse(time.RFC3339, stepA.TimeSpan.Start); err == nil {
		enrichment.TimeSpan.Start = start
	} else {
		enrichment.TimeSpan.Start = ef.EventStart
	}
	if end, err := time.Parse(time.RFC3339, stepA.TimeSpan.End); err == nil {
		enrichment.TimeSpan.End = end
	}

	// Step B: regex magnitude pass over every member title.
	allMembers, err := p.titles.MemberTitles(ctx, ef.ID, 0)
	if err != nil {
		return err
	}
	texts := make([]string, len(allMembers))
	for i, t := range allMembers {
		texts[i] = t.Text
	}
	enrichment.Magnitudes = ExtractMagnitudes(texts)

	// Step C: macro-link via matcher, LLM only below the auto-link score.
	efCtx := p.macroLink(ctx, ef, &llmCalls)

	// Step D: enriched summary. The rewrite call runs only when the
	// context is non-trivial and an LLM call remains under the cap. A
	// rewrite error keeps the original EF summary.
	summary := templateSummary(ef, enrichment)
	if !efCtx.Trivial() && llmCalls < 2 {
		rewritten, err := p.llm.Complete(ctx, rewriteSystemPrompt,
			rewritePrompt(ef, enrichment, efCtx), llm.Options{})
		switch {
		case err != nil:
			p.logger.WarnContext(ctx, "summary rewrite failed, keeping original summary",
				"ef_id", ef.ID, "error", err)
			summary = ef.Summary
		case rewritten != "":
			summary = rewritten
		}
	}

	// Step E: persist and promote seed→active.
	if err := p.efs.CompleteEnrichment(ctx, ef.ID, summary, stepA.Tags, efCtx, enrichment); err != nil {
		return err
	}

	// A macro-linked EF feeds its centroid's monthly track bucket. The
	// bucket is derived bookkeeping, so a failed accumulate is logged, not
	// fatal.
	if efCtx.MacroLink != "" {
		month := monthOf(enrichment.TimeSpan.Start)
		if err := p.ctms.Accumulate(ctx, efCtx.MacroLink, trackOf(ef), month, len(allMembers)); err != nil {
			p.logger.WarnContext(ctx, "ctm accumulation failed",
				"ef_id", ef.ID, "centroid", efCtx.MacroLink, "error", err)
		}
	}
	return nil
}

// trackOf maps an EF to its CTM track tag.
func trackOf(ef *models.EventFamily) string {
	if t := strings.ToLower(strings.TrimSpace(ef.EventType)); t != "" {
		return t
	}
	return "general"
}

// monthOf truncates a time to the first of its month, UTC. A zero time
// buckets into the current month.
func monthOf(t time.Time) time.Time {
	if t.IsZero() {
		t = time.Now()
	}
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

func (p *Processor) canonicalize(ctx context.Context, ef *models.EventFamily,
	members []*models.Title) (*stepAResponse, error) {

	result, err := p.llm.CompleteJSON(ctx, canonicalizeSystemPrompt,
		canonicalizePrompt(ef, members), llm.Options{Temperature: llm.Temp(0)})
	if err != nil {
		return nil, err
	}

	var resp stepAResponse
	result = result.Decode(&resp)
	if result.Outcome != llm.OutcomeOK {
		return nil, fmt.Errorf("canonicalization response unusable (%s): %w", result.Outcome, result.Err)
	}
	if len(resp.Tags) != 3 {
		return nil, fmt.Errorf("expected exactly 3 tags, got %d", len(resp.Tags))
	}
	if resp.PolicyStatus != "" && !contains(models.PolicyStatuses, resp.PolicyStatus) {
		return nil, fmt.Errorf("policy status %q outside vocabulary", resp.PolicyStatus)
	}
	if len(resp.OfficialSources) > 2 {
		resp.OfficialSources = resp.OfficialSources[:2]
	}
	return &resp, nil
}

// macroLink asks the matcher first: a strong composite links without the
// LLM; a moderate one goes to the macro-link prompt with the top
// candidates. Failures degrade to an empty context.
func (p *Processor) macroLink(ctx context.Context, ef *models.EventFamily, llmCalls *int) *models.EFContext {
	best := p.matcher.Best(ef)
	if best.Composite >= p.cfg.AutoLinkScore {
		return &models.EFContext{MacroLink: best.CentroidID}
	}

	candidates := p.matcher.TopCandidates(ef, p.cfg.CandidateCount)
	result, err := p.llm.CompleteJSON(ctx, macroLinkSystemPrompt,
		macroLinkPrompt(ef, candidates), llm.Options{})
	*llmCalls++
	if err != nil {
		p.logger.WarnContext(ctx, "macro-link assessment failed, empty context",
			"ef_id", ef.ID, "error", err)
		return &models.EFContext{}
	}

	var efCtx models.EFContext
	result = result.Decode(&efCtx)
	if result.Outcome != llm.OutcomeOK {
		p.logger.WarnContext(ctx, "macro-link response unusable, empty context",
			"ef_id", ef.ID, "outcome", result.Outcome)
		return &models.EFContext{}
	}
	if efCtx.MacroLink != "" && !p.validCentroid(efCtx.MacroLink, candidates) {
		efCtx.MacroLink = ""
	}
	if len(efCtx.Comparables) > 3 {
		efCtx.Comparables = efCtx.Comparables[:3]
	}
	return &efCtx
}

func (p *Processor) validCentroid(id string, candidates []centroid.Match) bool {
	for _, c := range candidates {
		if c.CentroidID == id {
			return true
		}
	}
	return false
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
