package models

import "time"

// Verdict is the P2 strategic-filter outcome for a title.
type Verdict string

// Verdict values. A title starts unfiltered and moves exactly once to
// strategic or non-strategic; the transition is terminal.
const (
	VerdictUnfiltered   Verdict = "unfiltered"
	VerdictStrategic    Verdict = "strategic"
	VerdictNonStrategic Verdict = "non_strategic"
)

// ProcessingStatus tracks where a title sits in the P1→P4 pipeline.
type ProcessingStatus string

// Processing status values.
const (
	StatusPending  ProcessingStatus = "pending"
	StatusFiltered ProcessingStatus = "filtered"
	StatusAssigned ProcessingStatus = "assigned"
	StatusFailed   ProcessingStatus = "failed"
)

// Entity is a named real-world referent extracted from a title.
// Identity is the (Text, Type) pair.
type Entity struct {
	Text string `json:"text"`
	Type string `json:"type"` // PERSON, GPE, ORG, EVENT, ...
}

// ActionTriple is the structured (actor?, action, target?) extracted from a
// title. Action is a verb-class string; actor and target are optional.
type ActionTriple struct {
	Actor  string `json:"actor,omitempty"`
	Action string `json:"action"`
	Target string `json:"target,omitempty"`
}

// Complete reports whether the triple can be projected into the graph:
// it needs an action and at least one endpoint.
func (t *ActionTriple) Complete() bool {
	return t != nil && t.Action != "" && (t.Actor != "" || t.Target != "")
}

// Title is one news headline and everything the pipeline has learned about it.
type Title struct {
	ID             string    `json:"id"`
	Text           string    `json:"text"`
	NormalizedText string    `json:"normalized_text"`
	Publisher      string    `json:"publisher"`
	PublishedAt    time.Time `json:"published_at"`
	Language       string    `json:"language"`
	ISOCodes       []string  `json:"iso_codes,omitempty"`

	Verdict       Verdict `json:"verdict"`
	VerdictReason string  `json:"verdict_reason,omitempty"`

	// Extraction outputs. Once set these are immutable for downstream
	// stages; re-extraction requires an explicit reset.
	Actors   []string      `json:"actors,omitempty"`
	Entities []Entity      `json:"entities,omitempty"`
	Triple   *ActionTriple `json:"action_triple,omitempty"`

	// Event-Family assignment. A title belongs to at most one EF and
	// assignment requires Verdict == VerdictStrategic.
	EventFamilyID        string  `json:"event_family_id,omitempty"`
	AssignmentConfidence float64 `json:"assignment_confidence,omitempty"`
	AssignmentRationale  string  `json:"assignment_rationale,omitempty"`

	Status ProcessingStatus `json:"processing_status"`
}

// PrimaryActor returns the triple's actor, the first extracted actor
// otherwise, or "" when the title carries no actor signal.
func (t *Title) PrimaryActor() string {
	if t.Triple != nil && t.Triple.Actor != "" {
		return t.Triple.Actor
	}
	if len(t.Actors) > 0 {
		return t.Actors[0]
	}
	return ""
}
