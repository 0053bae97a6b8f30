package enrich

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractMoney(t *testing.T) {
	mags := ExtractMagnitudes([]string{"EU approves $50 billion aid package"})
	require.Len(t, mags, 1)
	assert.InDelta(t, 50e9, mags[0].Value, 1)
	assert.Equal(t, "usd", mags[0].Unit)
	assert.Equal(t, "money", mags[0].What)
}

func TestExtractMoneyWordForm(t *testing.T) {
	mags := ExtractMagnitudes([]string{"Deal worth 3.5 billion euros signed"})
	require.Len(t, mags, 1)
	assert.InDelta(t, 3.5e9, mags[0].Value, 1)
}

func TestExtractEnergy(t *testing.T) {
	mags := ExtractMagnitudes([]string{"Pipeline to carry 55 bcm annually"})
	require.Len(t, mags, 1)
	assert.InDelta(t, 55, mags[0].Value, 1e-9)
	assert.Equal(t, "bcm", mags[0].Unit)
	assert.Equal(t, "energy", mags[0].What)
}

func TestExtractMilitaryWithCommas(t *testing.T) {
	mags := ExtractMagnitudes([]string{"Country deploys 10,000 troops to border"})
	require.Len(t, mags, 1)
	assert.InDelta(t, 10000, mags[0].Value, 1e-9)
	assert.Equal(t, "troops", mags[0].Unit)
}

func TestExtractCasualties(t *testing.T) {
	mags := ExtractMagnitudes([]string{"At least 34 killed in strike on port"})
	require.Len(t, mags, 1)
	assert.Equal(t, "killed", mags[0].Unit)
	assert.Equal(t, "casualties", mags[0].What)
}

func TestExtractPercentage(t *testing.T) {
	mags := ExtractMagnitudes([]string{"Tariffs raised by 25% on imports"})
	require.NotEmpty(t, mags)
	assert.Equal(t, "percent", mags[0].Unit)
	assert.InDelta(t, 25, mags[0].Value, 1e-9)
}

func TestExtractDedupesAcrossTitles(t *testing.T) {
	mags := ExtractMagnitudes([]string{
		"Aid package of $50 billion announced",
		"The $50 billion package clears parliament",
	})
	assert.Len(t, mags, 1, "same rounded value and unit dedupes")
}

func TestExtractCapsAtThree(t *testing.T) {
	mags := ExtractMagnitudes([]string{
		"Pact covers $10 billion in aid, 5,000 troops, 20 bcm of gas, and a 15% tariff cut",
	})
	assert.Len(t, mags, 3)
}

func TestExtractNothing(t *testing.T) {
	mags := ExtractMagnitudes([]string{"Leaders meet to discuss regional security"})
	assert.Empty(t, mags)
}
