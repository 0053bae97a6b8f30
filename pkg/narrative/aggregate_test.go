package narrative

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tessera-intel/tessera/pkg/models"
)

func publisherTitles(publisher string, n int, iso ...string) []*models.Title {
	out := make([]*models.Title, n)
	for i := range out {
		out[i] = &models.Title{
			ID:        fmt.Sprintf("%s-%d", publisher, i),
			Text:      fmt.Sprintf("%s headline %d", publisher, i),
			Publisher: publisher,
			ISOCodes:  iso,
		}
	}
	return out
}

func TestAggregateOverIndexedSources(t *testing.T) {
	// Global: skewed has 20 of 100 (20%); inside the frame it has 10 of 25
	// (40%) for an over-index of 2.0.
	var all []*models.Title
	all = append(all, publisherTitles("skewed", 20)...)
	all = append(all, publisherTitles("balanced", 80)...)

	var frameTitles []*models.Title
	frameTitles = append(frameTitles, all[:10]...)   // 10 skewed
	frameTitles = append(frameTitles, all[20:35]...) // 15 balanced

	frame := models.NarrativeFrame{Label: "test"}
	aggregate(&frame, frameTitles, all)

	assert.Equal(t, 25, frame.TitleCount)
	require.NotEmpty(t, frame.TopSources)
	assert.Equal(t, "skewed", frame.TopSources[0].Publisher)
	assert.InDelta(t, 2.0, frame.TopSources[0].OverIndex, 1e-9)
}

func TestAggregateOverIndexBoundary(t *testing.T) {
	// pub has 25 of 100 globally; 13 of 40 in frame → over-index 1.3 exactly.
	var all []*models.Title
	all = append(all, publisherTitles("pub", 25)...)
	all = append(all, publisherTitles("other", 75)...)

	var frameTitles []*models.Title
	frameTitles = append(frameTitles, all[:13]...)
	frameTitles = append(frameTitles, all[25:52]...)

	frame := models.NarrativeFrame{Label: "boundary"}
	aggregate(&frame, frameTitles, all)

	found := false
	for _, s := range frame.TopSources {
		if s.Publisher == "pub" {
			found = true
			assert.InDelta(t, 1.3, s.OverIndex, 1e-9)
		}
	}
	assert.True(t, found, "over-index of exactly 1.3 qualifies")
}

func TestAggregateFallbackToRawCounts(t *testing.T) {
	// One publisher everywhere: over-index is 1.0, nothing qualifies, so
	// top sources fall back to raw counts.
	all := publisherTitles("only", 30)
	frame := models.NarrativeFrame{Label: "uniform"}
	aggregate(&frame, all[:10], all)

	require.Len(t, frame.TopSources, 1)
	assert.Equal(t, "only", frame.TopSources[0].Publisher)
	assert.Equal(t, 10, frame.TopSources[0].Count)
	assert.Zero(t, frame.TopSources[0].OverIndex)
}

func TestAggregateProportionalSources(t *testing.T) {
	// steady: 30 of 100 globally (30%), 9 of 30 in frame (30%) → 1.0,
	// global count ≥ 20 → proportional.
	var all []*models.Title
	all = append(all, publisherTitles("steady", 30)...)
	all = append(all, publisherTitles("loud", 30)...)
	all = append(all, publisherTitles("quiet", 40)...)

	var frameTitles []*models.Title
	frameTitles = append(frameTitles, all[:9]...)    // 9 steady
	frameTitles = append(frameTitles, all[30:48]...) // 18 loud
	frameTitles = append(frameTitles, all[60:63]...) // 3 quiet

	frame := models.NarrativeFrame{Label: "prop"}
	aggregate(&frame, frameTitles, all)

	pubs := make([]string, 0, len(frame.ProportionalSources))
	for _, s := range frame.ProportionalSources {
		pubs = append(pubs, s.Publisher)
	}
	assert.Contains(t, pubs, "steady")
	assert.NotContains(t, pubs, "loud", "over-indexed publishers are not proportional")
}

func TestAggregateMinimumFramePresence(t *testing.T) {
	var all []*models.Title
	all = append(all, publisherTitles("tiny", 4)...)
	all = append(all, publisherTitles("big", 96)...)

	var frameTitles []*models.Title
	frameTitles = append(frameTitles, all[:2]...) // 2 tiny, below the floor of 3
	frameTitles = append(frameTitles, all[4:24]...)

	frame := models.NarrativeFrame{Label: "floor"}
	aggregate(&frame, frameTitles, all)

	for _, s := range frame.TopSources {
		assert.NotEqual(t, "tiny", s.Publisher, "publishers under 3 frame titles are excluded")
	}
}

func TestAggregateTopCountriesAndSamples(t *testing.T) {
	var all []*models.Title
	all = append(all, publisherTitles("a", 10, "UA", "RU")...)
	all = append(all, publisherTitles("b", 10, "UA")...)

	frame := models.NarrativeFrame{Label: "geo"}
	aggregate(&frame, all, all)

	require.NotEmpty(t, frame.TopCountries)
	assert.Equal(t, "UA", frame.TopCountries[0].Code)
	assert.Equal(t, 20, frame.TopCountries[0].Count)
	assert.LessOrEqual(t, len(frame.SampleTitles), 15)

	// Publisher-diverse prefix: both outlets appear in the first two.
	seen := map[string]bool{}
	for _, text := range frame.SampleTitles[:2] {
		seen[text[:1]] = true
	}
	assert.Len(t, seen, 2)
}

func TestAggregateEmptyFrame(t *testing.T) {
	frame := models.NarrativeFrame{Label: "empty"}
	aggregate(&frame, nil, publisherTitles("x", 5))
	assert.Zero(t, frame.TitleCount)
	assert.Empty(t, frame.TopSources)
}
