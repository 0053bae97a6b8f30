package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecoverPlainObject(t *testing.T) {
	r := Recover(`{"a": 1}`)
	assert.Equal(t, OutcomeOK, r.Outcome)
	assert.JSONEq(t, `{"a": 1}`, string(r.JSON))
}

func TestRecoverPlainArray(t *testing.T) {
	r := Recover(`[{"a": 1}, {"a": 2}]`)
	assert.Equal(t, OutcomeOK, r.Outcome)
}

func TestRecoverCodeFence(t *testing.T) {
	r := Recover("Here is the result:\n```json\n{\"a\": 1}\n```\nDone.")
	require.Equal(t, OutcomeOK, r.Outcome)
	assert.JSONEq(t, `{"a": 1}`, string(r.JSON))
}

func TestRecoverEmbeddedBlock(t *testing.T) {
	r := Recover(`Sure! The families are [{"title": "A {brace} inside", "n": 1}] as requested.`)
	require.Equal(t, OutcomeOK, r.Outcome)
	assert.JSONEq(t, `[{"title": "A {brace} inside", "n": 1}]`, string(r.JSON))
}

func TestRecoverStringWithBraces(t *testing.T) {
	r := Recover(`prefix {"text": "closing } in a string", "ok": true} suffix`)
	require.Equal(t, OutcomeOK, r.Outcome)
	assert.JSONEq(t, `{"text": "closing } in a string", "ok": true}`, string(r.JSON))
}

func TestRecoverGarbageIsParseError(t *testing.T) {
	r := Recover("I could not produce the requested structure.")
	assert.Equal(t, OutcomeParseError, r.Outcome)
	assert.True(t, r.Retryable())
	assert.Error(t, r.Err)
}

func TestRecoverTruncatedIsParseError(t *testing.T) {
	r := Recover(`{"a": [1, 2,`)
	assert.Equal(t, OutcomeParseError, r.Outcome)
}

func TestDecodeSchemaMismatch(t *testing.T) {
	r := Recover(`{"count": "not-a-number"}`)
	require.Equal(t, OutcomeOK, r.Outcome)

	var v struct {
		Count int `json:"count"`
	}
	r = r.Decode(&v)
	assert.Equal(t, OutcomeSchemaError, r.Outcome)
	assert.False(t, r.Retryable(), "schema errors are not retryable")
}

func TestDecodeOK(t *testing.T) {
	r := Recover(`{"count": 3}`)
	var v struct {
		Count int `json:"count"`
	}
	r = r.Decode(&v)
	assert.Equal(t, OutcomeOK, r.Outcome)
	assert.Equal(t, 3, v.Count)
}

func TestPostEditStaleRoles(t *testing.T) {
	cases := map[string]string{
		"Former President Trump announced tariffs":    "President Trump announced tariffs",
		"Opposition leader Merz met allies":           "Chancellor Merz met allies",
		"opposition leader Friedrich Merz said":       "Chancellor Merz said",
		"CDU leader Merz responded":                   "Chancellor Merz responded",
		"President Trump kept his title":              "President Trump kept his title",
		"The former president's allies were present":  "The former president's allies were present",
	}
	for in, want := range cases {
		assert.Equal(t, want, PostEdit(in), "input: %s", in)
	}
}
