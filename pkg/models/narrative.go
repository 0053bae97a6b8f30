package models

import "time"

// NarrativeEntityType identifies what a narrative frame was extracted over.
type NarrativeEntityType string

// Narrative entity types.
const (
	NarrativeEntityEvent NarrativeEntityType = "event"
	NarrativeEntityCTM   NarrativeEntityType = "ctm"
	NarrativeEntityEpic  NarrativeEntityType = "epic"
)

// SourceScore attributes a publisher to a frame with its over-index ratio
// (share of the publisher inside the frame divided by its share across all
// classified titles of the entity).
type SourceScore struct {
	Publisher string  `json:"publisher"`
	Count     int     `json:"count"`
	OverIndex float64 `json:"over_index,omitempty"`
}

// CountryCount is a country ISO code with its title count.
type CountryCount struct {
	Code  string `json:"code"`
	Count int    `json:"count"`
}

// NarrativeFrame is an editorially-attributed interpretation over the
// headlines of an EF, CTM, or epic. Frames are unique per (entity, label)
// and refreshed by atomic delete-then-insert.
type NarrativeFrame struct {
	EntityType  NarrativeEntityType `json:"entity_type"`
	EntityID    string              `json:"entity_id"`
	Label       string              `json:"label"`
	Description string              `json:"description"` // one sentence
	MoralFrame  string              `json:"moral_frame"`

	TitleCount          int            `json:"title_count"`
	TopSources          []SourceScore  `json:"top_sources,omitempty"`          // ≤10
	ProportionalSources []SourceScore  `json:"proportional_sources,omitempty"` // ≤5
	TopCountries        []CountryCount `json:"top_countries,omitempty"`        // ≤10
	SampleTitles        []string       `json:"sample_titles,omitempty"`        // ≤15

	CreatedAt time.Time `json:"created_at"`
}
