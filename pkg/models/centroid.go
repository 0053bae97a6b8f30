package models

import "time"

// Centroid is a predeclared strategic storyline used as an aggregation
// anchor for Event Families (e.g. "ARC-UKR"). Centroids are immutable
// configuration loaded at startup.
type Centroid struct {
	ID       string   `json:"id" yaml:"id"`
	Label    string   `json:"label" yaml:"label"`
	Keywords []string `json:"keywords" yaml:"keywords"`
	Actors   []string `json:"actors" yaml:"actors"`
	Theaters []string `json:"theaters" yaml:"theaters"`
}

// CTM is a Centroid × Track × Month aggregation bucket. It accumulates
// EFs and titles monotonically until frozen at the month boundary.
type CTM struct {
	CentroidID string    `json:"centroid_id"`
	Track      string    `json:"track"`
	Month      time.Time `json:"month"` // first of month, UTC

	TitleCount int  `json:"title_count"`
	IsFrozen   bool `json:"is_frozen"`

	SummaryText         string     `json:"summary_text,omitempty"`
	EventCountAtSummary int        `json:"event_count_at_summary,omitempty"`
	LastSummaryAt       *time.Time `json:"last_summary_at,omitempty"`

	// LastNarrativeCount and LastNarrativeAt gate narrative regeneration:
	// the bucket must grow by the configured threshold AND 24h must elapse.
	LastNarrativeCount int        `json:"last_narrative_count,omitempty"`
	LastNarrativeAt    *time.Time `json:"last_narrative_at,omitempty"`
}

// Epic is a cross-centroid grouping built from tag co-occurrence across the
// Event Families of a month.
type Epic struct {
	ID             string    `json:"id"`
	Label          string    `json:"label"`
	Month          time.Time `json:"month"`
	Tags           []string  `json:"tags"`
	EventFamilyIDs []string  `json:"event_family_ids"`
	CreatedAt      time.Time `json:"created_at"`
}

// ConnectivityPair is a precomputed similarity record between two unassigned
// strategic titles. TitleA < TitleB lexicographically; Composite =
// 0.5·EntityJaccard + 0.2·ActorMatch and is only stored when ≥ 0.3. The
// composite is a ranking score with a ceiling of 0.7, not a probability.
type ConnectivityPair struct {
	TitleA        string  `json:"title_a"`
	TitleB        string  `json:"title_b"`
	EntityJaccard float64 `json:"entity_jaccard"`
	ActorMatch    float64 `json:"actor_match"`
	Composite     float64 `json:"composite"`
	SharedActor   string  `json:"shared_actor,omitempty"`
}
