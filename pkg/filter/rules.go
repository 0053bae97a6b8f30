package filter

import "strings"

// Stage-1 vocabularies. Matching is on the normalized (lowercased) title
// text; multi-word phrases match as substrings, single words match on
// token boundaries.

// actorAllowList keeps a title outright when a state-level actor appears.
var actorAllowList = []string{
	"nato", "united nations", "european union", "white house", "kremlin",
	"pentagon", "beijing", "washington", "moscow", "tehran", "pyongyang",
	"opec", "imf", "world bank", "security council",
}

// stopList blocks a title regardless of any later signal.
var stopList = []string{
	"horoscope", "celebrity gossip", "box office", "red carpet",
	"royal baby", "lottery", "recipe", "fashion week",
	"transfer rumour", "transfer rumor", "matchday", "movie review",
}

// strategicKeywords keep a title on a mechanical heuristic hit.
var strategicKeywords = []string{
	"sanction", "sanctions", "tariff", "tariffs", "embargo", "blockade",
	"missile", "missiles", "airstrike", "airstrikes", "ceasefire",
	"mobilization", "mobilisation", "troops", "warship", "warships",
	"nuclear", "enrichment", "ballistic", "drone strike",
	"coup", "annexation", "invasion", "offensive", "incursion",
	"treaty", "summit", "diplomatic", "ambassador", "expelled",
	"pipeline", "lng", "export controls", "semiconductor", "chip ban",
	"cyberattack", "espionage", "defense pact", "defence pact",
	"arms deal", "military aid", "peacekeeping",
}

func containsPhrase(normalized, phrase string) bool {
	if strings.Contains(phrase, " ") {
		return strings.Contains(normalized, phrase)
	}
	for _, tok := range strings.FieldsFunc(normalized, func(r rune) bool {
		return !('a' <= r && r <= 'z' || '0' <= r && r <= '9')
	}) {
		if tok == phrase {
			return true
		}
	}
	return false
}

func firstMatch(normalized string, vocab []string) (string, bool) {
	for _, phrase := range vocab {
		if containsPhrase(normalized, phrase) {
			return phrase, true
		}
	}
	return "", false
}
