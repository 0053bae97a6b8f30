// Package centroid scores Event Families against the predeclared strategic
// centroids. The matcher is a pure function of the EF and the centroid
// configuration; no I/O happens after construction.
package centroid

import (
	"sort"
	"strings"

	"github.com/tessera-intel/tessera/pkg/models"
)

// Composite weights.
const (
	keywordWeight   = 0.4
	actorWeight     = 0.3
	theaterWeight   = 0.2
	eventTypeWeight = 0.1
)

// Confidence band cut points. A composite at exactly StrongMatch is strong.
const (
	StrongMatch   = 0.7
	ModerateMatch = 0.4
)

// Match is one centroid's score against an EF, with the component
// breakdown the macro-link prompt shows the model.
type Match struct {
	CentroidID     string  `json:"centroid_id"`
	Label          string  `json:"label"`
	Composite      float64 `json:"composite"`
	KeywordScore   float64 `json:"keyword_score"`
	ActorScore     float64 `json:"actor_score"`
	TheaterScore   float64 `json:"theater_score"`
	EventTypeScore float64 `json:"event_type_score"`
}

// Band classifies the composite: strong matches auto-link, moderate ones
// go to LLM verification, low ones are no match.
type Band string

// Band values.
const (
	BandStrong   Band = "strong"
	BandModerate Band = "moderate"
	BandNone     Band = "none"
)

// BandOf returns the confidence band for a composite.
func BandOf(composite float64) Band {
	switch {
	case composite >= StrongMatch:
		return BandStrong
	case composite >= ModerateMatch:
		return BandModerate
	default:
		return BandNone
	}
}

// eventTypeBonus maps event types to the centroids they weakly indicate.
// Bonuses are capped at 0.25 and enter the composite only through the 0.1
// event-type weight.
var eventTypeBonus = map[string]map[string]float64{
	"military":  {"ARC-UKR": 0.25, "ARC-TWN": 0.25, "ARC-MEA": 0.2},
	"conflict":  {"ARC-UKR": 0.25, "ARC-MEA": 0.25},
	"sanctions": {"ARC-TRADE": 0.25, "ARC-UKR": 0.15},
	"trade":     {"ARC-TRADE": 0.25, "ARC-ENERGY": 0.1},
	"energy":    {"ARC-ENERGY": 0.25, "ARC-TRADE": 0.1},
	"diplomacy": {"ARC-MEA": 0.15, "ARC-TWN": 0.15},
}

// actorVariants expands known aliases to one normalized form before set
// intersection.
var actorVariants = map[string]string{
	"us":             "united states",
	"usa":            "united states",
	"u.s.":           "united states",
	"america":        "united states",
	"washington":     "united states",
	"uk":             "united kingdom",
	"britain":        "united kingdom",
	"prc":            "china",
	"beijing":        "china",
	"moscow":         "russia",
	"tehran":         "iran",
	"brussels":       "european union",
	"eu":             "european union",
	"kyiv":           "ukraine",
	"kiev":           "ukraine",
	"taipei":         "taiwan",
	"pyongyang":      "north korea",
	"dprk":           "north korea",
	"riyadh":         "saudi arabia",
	"the white house": "united states",
}

// theaterContainment maps specific theaters to the broader ones that
// contain them; containment scores 0.8.
var theaterContainment = map[string][]string{
	"ukraine":      {"eastern europe", "europe"},
	"taiwan":       {"east asia", "asia pacific", "indo-pacific"},
	"south china sea": {"east asia", "asia pacific", "indo-pacific"},
	"gaza":         {"middle east", "levant"},
	"israel":       {"middle east", "levant"},
	"lebanon":      {"middle east", "levant"},
	"red sea":      {"middle east"},
	"strait of hormuz": {"middle east", "persian gulf"},
	"black sea":    {"eastern europe", "europe"},
}

// Matcher scores EFs against a fixed centroid set.
type Matcher struct {
	centroids []models.Centroid
}

// NewMatcher creates a Matcher over the configured centroids.
func NewMatcher(centroids []models.Centroid) *Matcher {
	if len(centroids) == 0 {
		panic("NewMatcher: at least one centroid is required")
	}
	return &Matcher{centroids: centroids}
}

// Best returns the highest-scoring match for the EF.
func (m *Matcher) Best(ef *models.EventFamily) Match {
	return m.TopCandidates(ef, 1)[0]
}

// TopCandidates returns the n highest composites, best first, with
// component breakdowns.
func (m *Matcher) TopCandidates(ef *models.EventFamily, n int) []Match {
	matches := make([]Match, 0, len(m.centroids))
	for _, c := range m.centroids {
		matches = append(matches, score(ef, c))
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Composite > matches[j].Composite
	})
	if n > 0 && n < len(matches) {
		matches = matches[:n]
	}
	return matches
}

func score(ef *models.EventFamily, c models.Centroid) Match {
	text := strings.ToLower(ef.Title + " " + ef.Summary)
	kw := keywordScore(text, c.Keywords)
	actor := actorScore(ef.KeyActors, c.Actors)
	theater := theaterScore(ef.PrimaryTheater, c.Theaters)
	evt := eventTypeBonus[strings.ToLower(ef.EventType)][c.ID]

	return Match{
		CentroidID:     c.ID,
		Label:          c.Label,
		KeywordScore:   kw,
		ActorScore:     actor,
		TheaterScore:   theater,
		EventTypeScore: evt,
		Composite:      keywordWeight*kw + actorWeight*actor + theaterWeight*theater + eventTypeWeight*evt,
	}
}

// keywordScore is the fraction of centroid keywords present in the text,
// matching exactly or by word prefix at ratio ≥ 0.8.
func keywordScore(text string, keywords []string) float64 {
	if len(keywords) == 0 {
		return 0
	}
	words := strings.FieldsFunc(text, func(r rune) bool {
		return !('a' <= r && r <= 'z' || '0' <= r && r <= '9')
	})

	hits := 0
	for _, kw := range keywords {
		kw = strings.ToLower(kw)
		if strings.Contains(kw, " ") {
			if strings.Contains(text, kw) {
				hits++
			}
			continue
		}
		for _, w := range words {
			if w == kw || prefixRatio(w, kw) >= 0.8 {
				hits++
				break
			}
		}
	}
	score := float64(hits) / float64(len(keywords))
	if score > 1 {
		score = 1
	}
	return score
}

// prefixRatio is the shared-prefix length over the longer word's length.
// "sanctions" vs "sanction" scores 8/9.
func prefixRatio(a, b string) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	shared := 0
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			break
		}
		shared++
	}
	longer := len(a)
	if len(b) > longer {
		longer = len(b)
	}
	if longer == 0 {
		return 0
	}
	return float64(shared) / float64(longer)
}

// actorScore is the normalized intersection size over the centroid's actor
// set.
func actorScore(efActors, centroidActors []string) float64 {
	if len(centroidActors) == 0 {
		return 0
	}
	efSet := make(map[string]bool, len(efActors))
	for _, a := range efActors {
		efSet[NormalizeActor(a)] = true
	}
	hits := 0
	for _, a := range centroidActors {
		if efSet[NormalizeActor(a)] {
			hits++
		}
	}
	return float64(hits) / float64(len(centroidActors))
}

// NormalizeActor lowercases, trims, and expands known variants.
func NormalizeActor(a string) string {
	n := strings.ToLower(strings.TrimSpace(a))
	n = strings.TrimPrefix(n, "the ")
	if canonical, ok := actorVariants[n]; ok {
		return canonical
	}
	if canonical, ok := actorVariants["the "+n]; ok {
		return canonical
	}
	return n
}

// theaterScore: 1.0 direct, 0.8 hierarchical containment, 0.6 fuzzy ≥0.8.
func theaterScore(efTheater string, centroidTheaters []string) float64 {
	t := strings.ToLower(strings.TrimSpace(efTheater))
	if t == "" {
		return 0
	}
	best := 0.0
	for _, ct := range centroidTheaters {
		ct = strings.ToLower(ct)
		switch {
		case t == ct:
			return 1.0
		case contains(theaterContainment[t], ct):
			if best < 0.8 {
				best = 0.8
			}
		case prefixRatio(t, ct) >= 0.8:
			if best < 0.6 {
				best = 0.6
			}
		}
	}
	return best
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
