package narrative

import (
	"math"
	"sort"

	"github.com/tessera-intel/tessera/pkg/models"
)

// Sampling keeps prompt size bounded while preserving the mix of voices:
// CTMs stratify by language, epics by centroid, and both round-robin
// across publishers inside each stratum.

// SampleCTM returns at most n titles. Languages with fewer than 3 titles
// are dropped; each remaining language gets max(5, round(n·share)) slots,
// scaled back proportionally when the quotas overshoot.
func SampleCTM(titles []*models.Title, n int) []*models.Title {
	if len(titles) <= n {
		return titles
	}

	byLang := make(map[string][]*models.Title)
	for _, t := range titles {
		byLang[t.Language] = append(byLang[t.Language], t)
	}

	langs := make([]string, 0, len(byLang))
	eligible := 0
	for lang, ts := range byLang {
		if len(ts) >= 3 {
			langs = append(langs, lang)
			eligible += len(ts)
		}
	}
	sort.Strings(langs)
	if eligible == 0 {
		return roundRobinByPublisher(titles, n)
	}

	quotas := make(map[string]int, len(langs))
	total := 0
	for _, lang := range langs {
		share := float64(len(byLang[lang])) / float64(eligible)
		q := int(math.Round(float64(n) * share))
		if q < 5 {
			q = 5
		}
		quotas[lang] = q
		total += q
	}
	if total > n {
		scale := float64(n) / float64(total)
		for _, lang := range langs {
			q := int(math.Floor(float64(quotas[lang]) * scale))
			if q < 1 {
				q = 1
			}
			quotas[lang] = q
		}
	}

	var out []*models.Title
	for _, lang := range langs {
		out = append(out, roundRobinByPublisher(byLang[lang], quotas[lang])...)
	}
	if len(out) > n {
		out = out[:n]
	}
	return out
}

// SampleEpic returns at most n titles, proportional per centroid with
// publisher round-robin inside each centroid. centroidOf maps title id to
// its EF's macro-link; titles with no link share one stratum.
func SampleEpic(titles []*models.Title, centroidOf map[string]string, n int) []*models.Title {
	if len(titles) <= n {
		return titles
	}

	byCentroid := make(map[string][]*models.Title)
	for _, t := range titles {
		byCentroid[centroidOf[t.ID]] = append(byCentroid[centroidOf[t.ID]], t)
	}
	centroids := make([]string, 0, len(byCentroid))
	for c := range byCentroid {
		centroids = append(centroids, c)
	}
	sort.Strings(centroids)

	var out []*models.Title
	for _, c := range centroids {
		share := float64(len(byCentroid[c])) / float64(len(titles))
		q := int(math.Round(float64(n) * share))
		if q < 1 {
			q = 1
		}
		out = append(out, roundRobinByPublisher(byCentroid[c], q)...)
	}
	if len(out) > n {
		out = out[:n]
	}
	return out
}

// roundRobinByPublisher takes up to n titles cycling across publishers so
// no single outlet dominates the sample.
func roundRobinByPublisher(titles []*models.Title, n int) []*models.Title {
	if len(titles) <= n {
		return titles
	}

	byPub := make(map[string][]*models.Title)
	for _, t := range titles {
		byPub[t.Publisher] = append(byPub[t.Publisher], t)
	}
	pubs := make([]string, 0, len(byPub))
	for p := range byPub {
		pubs = append(pubs, p)
	}
	sort.Strings(pubs)

	out := make([]*models.Title, 0, n)
	for round := 0; len(out) < n; round++ {
		advanced := false
		for _, p := range pubs {
			if round < len(byPub[p]) {
				out = append(out, byPub[p][round])
				advanced = true
				if len(out) == n {
					break
				}
			}
		}
		if !advanced {
			break
		}
	}
	return out
}
