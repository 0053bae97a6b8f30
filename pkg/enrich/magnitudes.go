package enrich

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/tessera-intel/tessera/pkg/models"
)

// The magnitude pass is pure regex over member-title text: six named
// families, scale-word normalization, dedupe, cap at 3. No LLM involvement
// by contract.

type magnitudeFamily struct {
	name    string
	pattern *regexp.Regexp
	unit    func(match []string) string
}

var scaleWords = map[string]float64{
	"trillion": 1e12,
	"billion":  1e9,
	"bn":       1e9,
	"million":  1e6,
	"mn":       1e6,
	"thousand": 1e3,
}

var magnitudeFamilies = []magnitudeFamily{
	{
		name: "money",
		pattern: regexp.MustCompile(
			`(?i)[$€£]\s?(\d+(?:[.,]\d+)?)\s*(trillion|billion|bn|million|mn|thousand)?`),
		unit: func(m []string) string { return "usd" },
	},
	{
		name: "money",
		pattern: regexp.MustCompile(
			`(?i)(\d+(?:[.,]\d+)?)\s*(trillion|billion|bn|million|mn)\s*(?:dollars|euros|pounds|yuan|usd)`),
		unit: func(m []string) string { return "usd" },
	},
	{
		name: "energy",
		pattern: regexp.MustCompile(
			`(?i)(\d+(?:[.,]\d+)?)\s*(billion|million)?\s*(bcm|mcm|gwh?|mwh?|barrels(?: per day)?|bpd|tonnes? of lng|mmbtu)`),
		unit: func(m []string) string { return strings.ToLower(m[3]) },
	},
	{
		name: "military",
		pattern: regexp.MustCompile(
			`(?i)(\d+(?:,\d{3})*)\s*(troops|soldiers|tanks|aircraft|fighter jets|jets|missiles|drones|warships|ships)`),
		unit: func(m []string) string { return strings.ToLower(m[2]) },
	},
	{
		name: "casualties",
		pattern: regexp.MustCompile(
			`(?i)(\d+(?:,\d{3})*)\s*(?:people\s+)?(killed|dead|deaths|wounded|injured|casualties|displaced)`),
		unit: func(m []string) string { return strings.ToLower(m[2]) },
	},
	{
		name: "percentage",
		pattern: regexp.MustCompile(
			`(?i)(\d+(?:[.,]\d+)?)\s*(?:%|percent|per cent)`),
		unit: func(m []string) string { return "percent" },
	},
	{
		name: "trade",
		pattern: regexp.MustCompile(
			`(?i)(\d+(?:[.,]\d+)?)\s*(billion|million)?\s*(?:in\s+)?(exports|imports|tariffs?)`),
		unit: func(m []string) string { return strings.ToLower(m[3]) },
	},
}

// ExtractMagnitudes runs every family over every text, normalizes scale
// words, dedupes by (rounded value, unit), and returns at most 3
// magnitudes in discovery order.
func ExtractMagnitudes(texts []string) []models.Magnitude {
	seen := make(map[string]bool)
	var out []models.Magnitude

	for _, text := range texts {
		for _, fam := range magnitudeFamilies {
			for _, m := range fam.pattern.FindAllStringSubmatch(text, -1) {
				value, ok := parseNumber(m[1])
				if !ok {
					continue
				}
				for _, g := range m[2:] {
					if scale, isScale := scaleWords[strings.ToLower(g)]; isScale {
						value *= scale
						break
					}
				}
				unit := strings.ToLower(strings.TrimSpace(fam.unit(m)))
				if unit == "" {
					continue
				}

				key := strconv.FormatFloat(math.Round(value), 'f', -1, 64) + "|" + unit
				if seen[key] {
					continue
				}
				seen[key] = true
				out = append(out, models.Magnitude{Value: value, Unit: unit, What: fam.name})
				if len(out) == 3 {
					return out
				}
			}
		}
	}
	return out
}

func parseNumber(s string) (float64, bool) {
	s = strings.ReplaceAll(s, ",", "")
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v <= 0 {
		return 0, false
	}
	return v, true
}
