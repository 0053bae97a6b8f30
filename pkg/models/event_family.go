package models

import "time"

// EFStatus is the lifecycle state of an Event Family.
type EFStatus string

// Event Families are created as seeds by P3 and promoted to active exactly
// once, when enrichment completes.
const (
	EFStatusSeed   EFStatus = "seed"
	EFStatusActive EFStatus = "active"
)

// ActorRole classifies a canonical actor's part in an Event Family.
type ActorRole string

// Canonical actor roles.
const (
	RoleInitiator   ActorRole = "initiator"
	RoleTarget      ActorRole = "target"
	RoleBeneficiary ActorRole = "beneficiary"
	RoleMediator    ActorRole = "mediator"
)

// PolicyStatuses is the closed vocabulary accepted for
// Enrichment.PolicyStatus.
var PolicyStatuses = []string{
	"announced", "proposed", "negotiating", "agreed",
	"implemented", "suspended", "collapsed", "disputed",
}

// CanonicalActor is an enrichment-resolved actor with its role.
type CanonicalActor struct {
	Name string    `json:"name"`
	Role ActorRole `json:"role"`
}

// Magnitude is a quantitative measure extracted from member titles,
// normalized to base units (billion → 1e9, million → 1e6).
type Magnitude struct {
	Value float64 `json:"value"`
	Unit  string  `json:"unit"`
	What  string  `json:"what,omitempty"`
}

// TimeSpan bounds an event in time. End may be zero for ongoing events.
type TimeSpan struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end,omitempty"`
}

// EFContext carries the macro-level framing of an Event Family.
// Comparables are recent precedents with similar actors, capped at 3.
type EFContext struct {
	MacroLink   string   `json:"macro_link,omitempty"`
	Comparables []string `json:"comparables,omitempty"`
	Abnormality string   `json:"abnormality,omitempty"`
}

// Trivial reports whether the context carries no usable signal, in which
// case the enrichment summary falls back to the deterministic template.
func (c *EFContext) Trivial() bool {
	return c == nil || (c.MacroLink == "" && len(c.Comparables) == 0 && c.Abnormality == "")
}

// Enrichment is the payload written by the enrichment processor.
// Cardinality bounds (magnitudes ≤3, official sources ≤2) are enforced on
// write by the store.
type Enrichment struct {
	CanonicalActors   []CanonicalActor `json:"canonical_actors"`
	PolicyStatus      string           `json:"policy_status,omitempty"`
	TimeSpan          TimeSpan         `json:"time_span"`
	TemporalPattern   string           `json:"temporal_pattern,omitempty"`
	MagnitudeBaseline string           `json:"magnitude_baseline,omitempty"`
	SystemicContext   string           `json:"systemic_context,omitempty"`
	Magnitudes        []Magnitude      `json:"magnitudes,omitempty"`
	OfficialSources   []string         `json:"official_sources,omitempty"`
	WhyStrategic      string           `json:"why_strategic,omitempty"`
}

// EventFamily is a coherent strategic event spanning one or more headlines.
type EventFamily struct {
	ID             string     `json:"id"`
	Title          string     `json:"title"`
	Summary        string     `json:"summary"`
	KeyActors      []string   `json:"key_actors"`
	EventType      string     `json:"event_type"`
	PrimaryTheater string     `json:"primary_theater"`
	EventStart     time.Time  `json:"event_start"`
	EventEnd       *time.Time `json:"event_end,omitempty"` // nil or ≥ EventStart

	// SourceTitleIDs is a denormalized convenience cache; titles own the
	// assignment edge and this set is refreshed on each assignment.
	SourceTitleIDs []string `json:"source_title_ids"`

	Confidence      float64  `json:"confidence"` // ∈ [0,1]
	CoherenceReason string   `json:"coherence_reason"`
	Status          EFStatus `json:"status"`

	// Tags has exactly 3 entries once enriched: two thematic, one geographic.
	Tags       []string    `json:"tags,omitempty"`
	Context    *EFContext  `json:"ef_context,omitempty"`
	Enrichment *Enrichment `json:"enrichment,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
