package enrich

import (
	"fmt"
	"strings"

	"github.com/tessera-intel/tessera/pkg/centroid"
	"github.com/tessera-intel/tessera/pkg/models"
)

const canonicalizeSystemPrompt = `You are an intelligence analyst enriching one Event Family.

Return a JSON object:
{
  "canonical_actors": [{"name": string, "role": "initiator"|"target"|"beneficiary"|"mediator"}],
  "policy_status": "announced"|"proposed"|"negotiating"|"agreed"|"implemented"|"suspended"|"collapsed"|"disputed",
  "time_span": {"start": ISO-8601, "end": ISO-8601 or ""},
  "temporal_pattern": string,
  "magnitude_baseline": string,
  "systemic_context": string,
  "why_strategic": string,
  "official_sources": [string] (at most 2),
  "tags": [string, string, string]
}

Rules:
- canonical_actors must merge equivalent names into one canonical form.
- tags: exactly 3, first two thematic, third geographic.
- policy_status must be one of the eight listed values.
- official_sources: government or institutional outlets among the member
  publishers, at most 2, or [] when none apply.`

func canonicalizePrompt(ef *models.EventFamily, members []*models.Title) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Event Family: %s\nEvent type: %s\nTheater: %s\n\nMost recent member headlines:\n",
		ef.Title, ef.EventType, ef.PrimaryTheater)
	for _, t := range members {
		fmt.Fprintf(&b, "- [%s] %s (%s)\n", t.Publisher, t.Text, t.PublishedAt.UTC().Format("2006-01-02"))
	}
	return b.String()
}

const macroLinkSystemPrompt = `You assess whether an Event Family belongs to one of the listed strategic storylines.

Return a JSON object:
{
  "macro_link": string (a centroid id from the candidates, or ""),
  "comparables": [string] (at most 3),
  "abnormality": string or ""
}

Rules:
- Link only when the event genuinely advances the storyline; otherwise leave macro_link empty.
- comparables must be recent precedents with similar actors. Famous historical analogies are forbidden.`

func macroLinkPrompt(ef *models.EventFamily, candidates []centroid.Match) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Event Family: %s\nSummary: %s\nActors: %s\n\nCandidate storylines:\n",
		ef.Title, ef.Summary, strings.Join(ef.KeyActors, ", "))
	for _, c := range candidates {
		fmt.Fprintf(&b, "- %s (%s): composite=%.2f keyword=%.2f actor=%.2f theater=%.2f\n",
			c.CentroidID, c.Label, c.Composite, c.KeywordScore, c.ActorScore, c.TheaterScore)
	}
	return b.String()
}

const rewriteSystemPrompt = `You are a strategic-intelligence editor. Rewrite the event summary in an analytic voice for a government reader: what happened, who moved, why it matters systemically. 150-250 words, plain prose, no headers or bullet points.`

func rewritePrompt(ef *models.EventFamily, enrichment *models.Enrichment, efCtx *models.EFContext) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Original summary: %s\n\nWhy strategic: %s\nSystemic context: %s\n",
		ef.Summary, enrichment.WhyStrategic, enrichment.SystemicContext)
	if efCtx != nil {
		if efCtx.MacroLink != "" {
			fmt.Fprintf(&b, "Part of storyline: %s\n", efCtx.MacroLink)
		}
		if len(efCtx.Comparables) > 0 {
			fmt.Fprintf(&b, "Comparable precedents: %s\n", strings.Join(efCtx.Comparables, "; "))
		}
		if efCtx.Abnormality != "" {
			fmt.Fprintf(&b, "Abnormality: %s\n", efCtx.Abnormality)
		}
	}
	return b.String()
}

// templateSummary is the deterministic fallback when the context is
// trivial or the LLM budget is spent: compose the enriched summary from
// the Step-A fields.
func templateSummary(ef *models.EventFamily, enrichment *models.Enrichment) string {
	var parts []string
	if ef.Summary != "" {
		parts = append(parts, ef.Summary)
	}
	if len(enrichment.CanonicalActors) > 0 {
		names := make([]string, 0, len(enrichment.CanonicalActors))
		for _, a := range enrichment.CanonicalActors {
			names = append(names, fmt.Sprintf("%s (%s)", a.Name, a.Role))
		}
		parts = append(parts, "Principal actors: "+strings.Join(names, ", ")+".")
	}
	if enrichment.PolicyStatus != "" {
		parts = append(parts, "Current status: "+enrichment.PolicyStatus+".")
	}
	if enrichment.WhyStrategic != "" {
		parts = append(parts, enrichment.WhyStrategic)
	}
	if enrichment.SystemicContext != "" {
		parts = append(parts, enrichment.SystemicContext)
	}
	return strings.Join(parts, " ")
}
