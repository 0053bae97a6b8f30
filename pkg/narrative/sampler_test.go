package narrative

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tessera-intel/tessera/pkg/models"
)

func makeTitles(lang, publisher string, n int) []*models.Title {
	out := make([]*models.Title, n)
	for i := range out {
		out[i] = &models.Title{
			ID:        fmt.Sprintf("%s-%s-%d", lang, publisher, i),
			Text:      fmt.Sprintf("headline %d", i),
			Language:  lang,
			Publisher: publisher,
		}
	}
	return out
}

func TestSampleCTMUnderLimitReturnsAll(t *testing.T) {
	titles := makeTitles("en", "wire", 50)
	assert.Len(t, SampleCTM(titles, 200), 50)
}

func TestSampleCTMDropsRareLanguages(t *testing.T) {
	var titles []*models.Title
	titles = append(titles, makeTitles("en", "wire", 150)...)
	titles = append(titles, makeTitles("fr", "lemonde", 100)...)
	titles = append(titles, makeTitles("sw", "local", 2)...) // below the 3-title floor

	sample := SampleCTM(titles, 100)
	require.NotEmpty(t, sample)
	assert.LessOrEqual(t, len(sample), 100)
	for _, title := range sample {
		assert.NotEqual(t, "sw", title.Language)
	}
}

func TestSampleCTMMinorityLanguageFloor(t *testing.T) {
	var titles []*models.Title
	titles = append(titles, makeTitles("en", "wire", 500)...)
	titles = append(titles, makeTitles("de", "dw", 4)...)

	sample := SampleCTM(titles, 100)
	german := 0
	for _, title := range sample {
		if title.Language == "de" {
			german++
		}
	}
	assert.GreaterOrEqual(t, german, 1, "small eligible languages keep representation")
}

func TestSampleCTMPublisherRoundRobin(t *testing.T) {
	var titles []*models.Title
	titles = append(titles, makeTitles("en", "dominant", 90)...)
	titles = append(titles, makeTitles("en", "minor", 10)...)

	sample := SampleCTM(titles, 20)
	minor := 0
	for _, title := range sample {
		if title.Publisher == "minor" {
			minor++
		}
	}
	assert.GreaterOrEqual(t, minor, 5, "round-robin prevents a single outlet dominating")
}

func TestSampleEpicCentroidProportional(t *testing.T) {
	var titles []*models.Title
	centroidOf := make(map[string]string)
	for _, ct := range []struct {
		id string
		n  int
	}{{"ARC-UKR", 120}, {"ARC-TWN", 40}} {
		ts := makeTitles("en", "wire-"+ct.id, ct.n)
		titles = append(titles, ts...)
		for _, title := range ts {
			centroidOf[title.ID] = ct.id
		}
	}

	sample := SampleEpic(titles, centroidOf, 40)
	counts := map[string]int{}
	for _, title := range sample {
		counts[centroidOf[title.ID]]++
	}
	assert.Greater(t, counts["ARC-UKR"], counts["ARC-TWN"])
	assert.Greater(t, counts["ARC-TWN"], 0)
	assert.LessOrEqual(t, len(sample), 40)
}

func TestRoundRobinExhaustsSmallPublishers(t *testing.T) {
	var titles []*models.Title
	titles = append(titles, makeTitles("en", "a", 2)...)
	titles = append(titles, makeTitles("en", "b", 8)...)

	picked := roundRobinByPublisher(titles, 6)
	require.Len(t, picked, 6)
	counts := map[string]int{}
	for _, title := range picked {
		counts[title.Publisher]++
	}
	assert.Equal(t, 2, counts["a"])
	assert.Equal(t, 4, counts["b"])
}
