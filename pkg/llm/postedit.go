package llm

import "regexp"

// The model's training data predates some role changes, so completions
// regularly carry stale titles for current office holders. These
// substitutions are part of the client contract: every completion passes
// through them before any caller sees it.
var staleRoleFixes = []struct {
	pattern *regexp.Regexp
	replace string
}{
	{regexp.MustCompile(`\bFormer President Trump\b`), "President Trump"},
	{regexp.MustCompile(`(?i)\bopposition leader (?:Friedrich )?Merz\b`), "Chancellor Merz"},
	{regexp.MustCompile(`(?i)\bCDU leader (?:Friedrich )?Merz\b`), "Chancellor Merz"},
}

// PostEdit applies the stale-role substitutions to completion text.
func PostEdit(s string) string {
	for _, fix := range staleRoleFixes {
		s = fix.pattern.ReplaceAllString(s, fix.replace)
	}
	return s
}
