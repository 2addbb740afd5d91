package analyzer_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/byaboneka/byaboneka/internal/analyzer"
)

// ---- Keywords --------------------------------------------------------------

func TestKeywordsEmptyInput(t *testing.T) {
	assert.Nil(t, analyzer.Keywords(""))
	assert.Nil(t, analyzer.Keywords("   \t\n"))
}

func TestKeywordsSingleStopword(t *testing.T) {
	assert.Nil(t, analyzer.Keywords("the"))
	assert.Nil(t, analyzer.Keywords("muri"))
}

func TestKeywordsLowercasesAndStripsPunctuation(t *testing.T) {
	got := analyzer.Keywords("Black iPhone 13 Pro, cracked screen!")
	assert.Equal(t, []string{"black", "iphone", "pro", "cracked", "screen"}, got)
}

func TestKeywordsDropsShortTokens(t *testing.T) {
	// "13" and "of" are short/stopword; "pro" survives at exactly 3.
	got := analyzer.Keywords("13 of pro")
	assert.Equal(t, []string{"pro"}, got)
}

func TestKeywordsRetainsShortColorAndBrand(t *testing.T) {
	// Length-2 brand and length-3 color survive the length heuristic.
	got := analyzer.Keywords("bk card, tan case")
	assert.Contains(t, got, "bk")
	assert.Contains(t, got, "tan")
}

func TestKeywordsDeduplicates(t *testing.T) {
	got := analyzer.Keywords("wallet wallet black wallet")
	assert.Equal(t, []string{"wallet", "black"}, got)
}

func TestKeywordsKinyarwanda(t *testing.T) {
	got := analyzer.Keywords("Telefone umukara yabuze muri Kimironko")
	assert.Equal(t, []string{"telefone", "umukara", "kimironko"}, got)
}

func TestSharedKeywords(t *testing.T) {
	a := []string{"black", "iphone", "cracked"}
	b := []string{"iphone", "kimironko", "black"}
	assert.Equal(t, 2, analyzer.SharedKeywords(a, b))
	assert.Equal(t, 0, analyzer.SharedKeywords(nil, b))
	assert.Equal(t, 0, analyzer.SharedKeywords(a, nil))
}

func TestSharedKeywordsCountsEachTokenOnce(t *testing.T) {
	a := []string{"black", "black"}
	b := []string{"black"}
	assert.Equal(t, 1, analyzer.SharedKeywords(a, b))
}

// ---- Distance --------------------------------------------------------------

func TestDistanceSameArea(t *testing.T) {
	assert.Equal(t, analyzer.DistanceSame, analyzer.Distance("Kimironko", "kimironko"))
	assert.Equal(t, analyzer.DistanceSame, analyzer.Distance("  Remera ", "remera"))
}

func TestDistanceAdjacencyIsSymmetric(t *testing.T) {
	// The table row is kimironko → remera; both directions must hit.
	assert.Equal(t, analyzer.DistanceAdjacent, analyzer.Distance("kimironko", "remera"))
	assert.Equal(t, analyzer.DistanceAdjacent, analyzer.Distance("remera", "kimironko"))
}

func TestDistanceSameDistrict(t *testing.T) {
	// Kimironko and gisozi are both in Gasabo but not adjacent.
	assert.Equal(t, analyzer.DistanceSameDistrict, analyzer.Distance("kimironko", "gisozi"))
}

func TestDistanceFar(t *testing.T) {
	// Different districts, not adjacent.
	assert.Equal(t, analyzer.DistanceFar, analyzer.Distance("kimironko", "nyamirambo"))
}

func TestDistanceUnknownAreas(t *testing.T) {
	assert.Equal(t, analyzer.DistanceSame, analyzer.Distance("Huye", "huye"))
	assert.Equal(t, analyzer.DistanceFar, analyzer.Distance("huye", "kimironko"))
	assert.Equal(t, analyzer.DistanceFar, analyzer.Distance("huye", "musanze"))
}
