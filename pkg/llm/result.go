package llm

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Outcome discriminates how a JSON completion was interpreted.
type Outcome string

// Outcome values. Only parse errors are worth a retry; schema errors mean
// the model answered with well-formed JSON of the wrong shape, which a
// retry at the same prompt rarely fixes.
const (
	OutcomeOK          Outcome = "ok"
	OutcomeParseError  Outcome = "parse_error"
	OutcomeSchemaError Outcome = "schema_error"
)

// Result is the outcome of extracting JSON from a completion.
type Result struct {
	Outcome Outcome
	Raw     string          // full post-edited completion text
	JSON    json.RawMessage // extracted document when Outcome is ok
	Err     error
}

// Retryable reports whether a repeat call might produce parseable output.
func (r Result) Retryable() bool {
	return r.Outcome == OutcomeParseError
}

// Decode unmarshals the extracted document into v. A mismatch between the
// document and v's shape turns the result into a schema error.
func (r Result) Decode(v any) Result {
	if r.Outcome != OutcomeOK {
		return r
	}
	if err := json.Unmarshal(r.JSON, v); err != nil {
		return Result{
			Outcome: OutcomeSchemaError,
			Raw:     r.Raw,
			JSON:    r.JSON,
			Err:     fmt.Errorf("response does not match expected schema: %w", err),
		}
	}
	return r
}

// SchemaError marks an otherwise-ok result as schema-invalid. Callers use
// this after their own semantic validation.
func (r Result) SchemaError(err error) Result {
	return Result{Outcome: OutcomeSchemaError, Raw: r.Raw, JSON: r.JSON, Err: err}
}

// Recover extracts a JSON document from raw completion text. It tries the
// whole text first, then strips Markdown code fences, then falls back to
// the first balanced {…} or […] block.
func Recover(raw string) Result {
	candidates := []string{strings.TrimSpace(raw)}
	if fenced := stripCodeFence(raw); fenced != "" {
		candidates = append(candidates, fenced)
	}
	if block := firstJSONBlock(raw); block != "" {
		candidates = append(candidates, block)
	}

	for _, cand := range candidates {
		if json.Valid([]byte(cand)) && (strings.HasPrefix(cand, "{") || strings.HasPrefix(cand, "[")) {
			return Result{Outcome: OutcomeOK, Raw: raw, JSON: json.RawMessage(cand)}
		}
	}
	return Result{
		Outcome: OutcomeParseError,
		Raw:     raw,
		Err:     fmt.Errorf("no valid JSON document in %d chars of response", len(raw)),
	}
}

// stripCodeFence returns the body of the first ```-fenced block, or "".
func stripCodeFence(s string) string {
	start := strings.Index(s, "```")
	if start < 0 {
		return ""
	}
	rest := s[start+3:]
	if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
		// Drop the language tag line (```json).
		rest = rest[nl+1:]
	}
	end := strings.Index(rest, "```")
	if end < 0 {
		return strings.TrimSpace(rest)
	}
	return strings.TrimSpace(rest[:end])
}

// firstJSONBlock scans for the first balanced object or array, respecting
// string literals and escapes.
func firstJSONBlock(s string) string {
	start := -1
	var open, close byte
	for i := 0; i < len(s); i++ {
		if s[i] == '{' {
			start, open, close = i, '{', '}'
			break
		}
		if s[i] == '[' {
			start, open, close = i, '[', ']'
			break
		}
	}
	if start < 0 {
		return ""
	}

	depth := 0
	inString := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch c {
			case '\\':
				i++
			case '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case open:
			depth++
		case close:
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}
