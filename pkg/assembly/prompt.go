package assembly

import (
	"fmt"
	"strings"

	"github.com/tessera-intel/tessera/pkg/models"
)

const systemPrompt = `You are an intelligence analyst grouping news headlines into Event Families.

An Event Family is one coherent ongoing strategic event. Rules:
- Strategic content only: statecraft, conflict, sanctions, trade, energy, security.
- Group by ongoing narrative, not by one-off incident resemblance.
- Canonicalize equivalent actors ("US", "Washington", "White House" are one actor).
- Prefer fewer, broader Event Families over many narrow ones.
- A single-headline Event Family is acceptable only with an explicit coherence_reason.

Return a JSON array. Each element:
{
  "title": string,
  "summary": string,
  "key_actors": [string],
  "event_type": string,
  "geography": string,
  "event_start": string (ISO-8601 Zulu),
  "event_end": string (ISO-8601 Zulu) or "",
  "source_title_ids": [string],
  "confidence": number in [0,1],
  "coherence_reason": string
}`

// batchPrompt renders one batch of titles plus connectivity hints for the
// assembly call.
func batchPrompt(titles []*models.Title, hints []models.ConnectivityPair) string {
	var b strings.Builder
	b.WriteString("Headlines:\n")
	for _, t := range titles {
		fmt.Fprintf(&b, "- id=%s | %s | %s | %s | actors=%s | %s\n",
			t.ID,
			t.PublishedAt.UTC().Format("2006-01-02"),
			t.Publisher,
			t.Language,
			strings.Join(t.Actors, ","),
			t.Text)
	}

	if len(hints) > 0 {
		b.WriteString("\nPrecomputed similarity hints (higher composite = more likely same event):\n")
		for i, p := range hints {
			if i >= 20 {
				break
			}
			fmt.Fprintf(&b, "- %s <-> %s composite=%.2f\n", p.TitleA, p.TitleB, p.Composite)
		}
	}

	b.WriteString("\nGroup these into Event Families. Respond with the JSON array only.")
	return b.String()
}
