package narrative

import (
	"sort"

	"github.com/tessera-intel/tessera/pkg/models"
)

// Source-attribution thresholds.
const (
	overIndexFloor    = 1.3  // publisher counts as over-indexed at or above this
	proportionalLow   = 0.85 // proportional band lower bound
	proportionalHigh  = 1.15 // proportional band upper bound
	proportionalMinGl = 20   // global count floor for the proportional list
	minFramePresence  = 3    // publisher needs this many titles inside the frame
	maxTopSources     = 10
	maxProportional   = 5
	maxTopCountries   = 10
	maxSampleTitles   = 15
)

// aggregate fills the statistical fields of a frame from its classified
// titles against the global distribution of all classified titles.
func aggregate(frame *models.NarrativeFrame, frameTitles, allTitles []*models.Title) {
	frame.TitleCount = len(frameTitles)
	if len(frameTitles) == 0 || len(allTitles) == 0 {
		return
	}

	globalCounts := make(map[string]int)
	for _, t := range allTitles {
		globalCounts[t.Publisher]++
	}
	frameCounts := make(map[string]int)
	for _, t := range frameTitles {
		frameCounts[t.Publisher]++
	}

	var top, proportional []models.SourceScore
	for pub, inFrame := range frameCounts {
		if inFrame < minFramePresence {
			continue
		}
		shareInFrame := float64(inFrame) / float64(len(frameTitles))
		globalShare := float64(globalCounts[pub]) / float64(len(allTitles))
		if globalShare == 0 {
			continue
		}
		overIndex := shareInFrame / globalShare

		score := models.SourceScore{Publisher: pub, Count: inFrame, OverIndex: overIndex}
		if overIndex >= overIndexFloor {
			top = append(top, score)
		}
		if overIndex >= proportionalLow && overIndex <= proportionalHigh &&
			globalCounts[pub] >= proportionalMinGl {
			proportional = append(proportional, score)
		}
	}

	if len(top) > 0 {
		sort.Slice(top, func(i, j int) bool { return top[i].OverIndex > top[j].OverIndex })
		if len(top) > maxTopSources {
			top = top[:maxTopSources]
		}
	} else {
		// No over-indexed publisher: fall back to raw counts.
		for pub, inFrame := range frameCounts {
			top = append(top, models.SourceScore{Publisher: pub, Count: inFrame})
		}
		sort.Slice(top, func(i, j int) bool {
			if top[i].Count != top[j].Count {
				return top[i].Count > top[j].Count
			}
			return top[i].Publisher < top[j].Publisher
		})
		if len(top) > maxTopSources {
			top = top[:maxTopSources]
		}
	}
	frame.TopSources = top

	sort.Slice(proportional, func(i, j int) bool {
		if proportional[i].Count != proportional[j].Count {
			return proportional[i].Count > proportional[j].Count
		}
		return proportional[i].Publisher < proportional[j].Publisher
	})
	if len(proportional) > maxProportional {
		proportional = proportional[:maxProportional]
	}
	frame.ProportionalSources = proportional

	frame.TopCountries = topCountries(frameTitles)
	frame.SampleTitles = sampleTexts(frameTitles)
}

func topCountries(titles []*models.Title) []models.CountryCount {
	counts := make(map[string]int)
	for _, t := range titles {
		for _, code := range t.ISOCodes {
			counts[code]++
		}
	}
	out := make([]models.CountryCount, 0, len(counts))
	for code, n := range counts {
		out = append(out, models.CountryCount{Code: code, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Code < out[j].Code
	})
	if len(out) > maxTopCountries {
		out = out[:maxTopCountries]
	}
	return out
}

// sampleTexts picks a publisher-diverse sample first, then fills the rest
// in order, up to the cap.
func sampleTexts(titles []*models.Title) []string {
	var out []string
	seenPub := make(map[string]bool)
	used := make(map[string]bool)
	for _, t := range titles {
		if len(out) == maxSampleTitles {
			return out
		}
		if !seenPub[t.Publisher] {
			seenPub[t.Publisher] = true
			used[t.ID] = true
			out = append(out, t.Text)
		}
	}
	for _, t := range titles {
		if len(out) == maxSampleTitles {
			break
		}
		if !used[t.ID] {
			used[t.ID] = true
			out = append(out, t.Text)
		}
	}
	return out
}
