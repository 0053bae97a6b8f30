package centroid

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tessera-intel/tessera/pkg/models"
)

func testCentroids() []models.Centroid {
	return []models.Centroid{
		{
			ID:       "ARC-UKR",
			Label:    "Russia-Ukraine war",
			Keywords: []string{"ukraine", "offensive", "drone", "ceasefire"},
			Actors:   []string{"russia", "ukraine", "nato"},
			Theaters: []string{"eastern europe", "black sea"},
		},
		{
			ID:       "ARC-TRADE",
			Label:    "Trade and sanctions",
			Keywords: []string{"tariff", "sanctions", "export controls"},
			Actors:   []string{"united states", "china", "european union"},
			Theaters: []string{"global"},
		},
	}
}

func TestBandBoundaries(t *testing.T) {
	assert.Equal(t, BandStrong, BandOf(0.7), "exactly 0.7 is strong")
	assert.Equal(t, BandModerate, BandOf(0.699))
	assert.Equal(t, BandModerate, BandOf(0.4), "exactly 0.4 is moderate")
	assert.Equal(t, BandNone, BandOf(0.399))
}

func TestTopCandidatesOrdering(t *testing.T) {
	m := NewMatcher(testCentroids())
	ef := &models.EventFamily{
		Title:          "Ukraine drone offensive hits Black Sea fleet",
		Summary:        "Kyiv expands drone strikes, ceasefire talks stall in Ukraine",
		KeyActors:      []string{"Ukraine", "Russia"},
		PrimaryTheater: "eastern europe",
		EventType:      "military",
	}

	candidates := m.TopCandidates(ef, 2)
	require.Len(t, candidates, 2)
	assert.Equal(t, "ARC-UKR", candidates[0].CentroidID)
	assert.Greater(t, candidates[0].Composite, candidates[1].Composite)
}

func TestKeywordPrefixFuzzy(t *testing.T) {
	// "sanction" matches keyword "sanctions" at prefix ratio 8/9 ≈ 0.89.
	score := keywordScore("eu approves new sanction package", []string{"sanctions"})
	assert.InDelta(t, 1.0, score, 1e-9)

	// "san" shares only 3/9 with "sanctions".
	score = keywordScore("san francisco summit", []string{"sanctions"})
	assert.Zero(t, score)
}

func TestActorVariantNormalization(t *testing.T) {
	assert.Equal(t, "united states", NormalizeActor("US"))
	assert.Equal(t, "united states", NormalizeActor("USA"))
	assert.Equal(t, "united states", NormalizeActor("America"))
	assert.Equal(t, "united states", NormalizeActor("the White House"))
	assert.Equal(t, "china", NormalizeActor("Beijing"))
	assert.Equal(t, "france", NormalizeActor("France"))
}

func TestActorScoreUsesVariants(t *testing.T) {
	// "US" and "Beijing" normalize into 2 of 3 centroid actors.
	score := actorScore([]string{"US", "Beijing"},
		[]string{"united states", "china", "european union"})
	assert.InDelta(t, 2.0/3.0, score, 1e-9)
}

func TestTheaterScoring(t *testing.T) {
	assert.InDelta(t, 1.0, theaterScore("eastern europe", []string{"eastern europe"}), 1e-9)
	assert.InDelta(t, 0.8, theaterScore("ukraine", []string{"eastern europe"}), 1e-9,
		"hierarchical containment scores 0.8")
	assert.InDelta(t, 0.6, theaterScore("eastern europ", []string{"eastern europe"}), 1e-9,
		"fuzzy match scores 0.6")
	assert.Zero(t, theaterScore("andes", []string{"eastern europe"}))
}

func TestEventTypeBonusIsBounded(t *testing.T) {
	for evt, bonuses := range eventTypeBonus {
		for id, bonus := range bonuses {
			assert.LessOrEqual(t, bonus, 0.25, "event type %s centroid %s", evt, id)
		}
	}
}

func TestStrongMatchReachable(t *testing.T) {
	m := NewMatcher(testCentroids())
	ef := &models.EventFamily{
		Title:          "Ukraine offensive: drone strikes ahead of ceasefire push",
		Summary:        "Ukraine presses its offensive with drone attacks while ceasefire terms stall",
		KeyActors:      []string{"Ukraine", "Russia", "NATO"},
		PrimaryTheater: "eastern europe",
		EventType:      "military",
	}

	best := m.Best(ef)
	assert.Equal(t, "ARC-UKR", best.CentroidID)
	// All four keywords, all three actors, direct theater, full bonus:
	// 0.4·1 + 0.3·1 + 0.2·1 + 0.1·0.25 = 0.925.
	assert.InDelta(t, 0.925, best.Composite, 1e-9)
	assert.Equal(t, BandStrong, BandOf(best.Composite))
}
