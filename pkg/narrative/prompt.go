package narrative

import (
	"fmt"
	"strings"

	"github.com/tessera-intel/tessera/pkg/models"
)

func discoverySystemPrompt(entityType models.NarrativeEntityType) string {
	frameRange := "3 to 5"
	if entityType == models.NarrativeEntityEvent {
		frameRange = "2 to 5"
	}
	return fmt.Sprintf(`You identify competing narrative frames in news coverage.

A narrative frame is an editorial interpretation: the same facts told with different heroes and villains. Hard rules:
- Every frame MUST assign moral roles (hero/villain or victim/aggressor).
- Neutral or purely topic-descriptive frames are rejected. "Coverage of the conflict" is not a frame; "Defender resisting unprovoked aggression" is.
- Return %s frames.

Return a JSON array of:
{
  "label": string (short, distinctive),
  "description": string (one sentence),
  "moral_frame": string (who is cast as hero/victim, who as villain/aggressor),
  "title_indices": [int] (0-based indices of headlines expressing this frame)
}`, frameRange)
}

func discoveryPrompt(context string, titles []*models.Title) string {
	var b strings.Builder
	if context != "" {
		b.WriteString(context)
		b.WriteString("\n\n")
	}
	b.WriteString("Headlines:\n")
	for i, t := range titles {
		fmt.Fprintf(&b, "%d. [%s] %s\n", i, t.Publisher, t.Text)
	}
	return b.String()
}

const classifySystemPrompt = `You assign news headlines to previously discovered narrative frames.

Return a JSON array with one element per headline, in order:
{"index": int, "label": string}

The label must be one of the provided frame labels, or "neutral" when the headline expresses none of them.`

func classifyPrompt(labels []string, titles []*models.Title, offset int) string {
	var b strings.Builder
	b.WriteString("Frame labels:\n")
	for _, l := range labels {
		fmt.Fprintf(&b, "- %s\n", l)
	}
	b.WriteString("\nHeadlines:\n")
	for i, t := range titles {
		fmt.Fprintf(&b, "%d. [%s] %s\n", offset+i, t.Publisher, t.Text)
	}
	return b.String()
}
