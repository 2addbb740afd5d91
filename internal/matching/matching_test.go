package matching

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/byaboneka/byaboneka/internal/model"
)

var anchor = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func lostItem(category model.Category, area string, lostAt time.Time, keywords ...string) model.LostItem {
	return model.LostItem{Category: category, LocationArea: area, LostDate: lostAt, Keywords: keywords}
}

func foundItem(category model.Category, area string, foundAt time.Time, keywords ...string) model.FoundItem {
	return model.FoundItem{Category: category, LocationArea: area, FoundDate: foundAt, Keywords: keywords}
}

func TestScoreCategoryMismatchShortCircuits(t *testing.T) {
	lost := lostItem(model.CategoryPhone, "kimironko", anchor, "black", "iphone")
	found := foundItem(model.CategoryWallet, "kimironko", anchor, "black", "iphone")

	score, explanations := Score(lost, found)
	assert.Zero(t, score)
	assert.Equal(t, []string{"Category mismatch"}, explanations)
}

func TestScoreFullAlignment(t *testing.T) {
	lost := lostItem(model.CategoryPhone, "Kimironko", anchor, "black", "iphone", "cracked")
	found := foundItem(model.CategoryPhone, "kimironko", anchor.Add(6*time.Hour), "black", "iphone", "cracked")

	// category 5 + same area 5 + within 24h 3 + 3 keywords 3.
	score, explanations := Score(lost, found)
	assert.Equal(t, 16, score)
	assert.Equal(t, []string{"Category match", "Same location", "Within 24 hours", "3 shared keyword(s)"}, explanations)
}

func TestScoreAdjacentArea(t *testing.T) {
	lost := lostItem(model.CategoryBag, "kimironko", anchor)
	found := foundItem(model.CategoryBag, "remera", anchor.Add(time.Hour))

	score, explanations := Score(lost, found)
	assert.Equal(t, 5+3+3, score)
	assert.Contains(t, explanations, "Adjacent location")
}

func TestScoreAdjacencyIsSymmetric(t *testing.T) {
	a := lostItem(model.CategoryBag, "remera", anchor)
	b := foundItem(model.CategoryBag, "kimironko", anchor)
	score, _ := Score(a, b)
	assert.Equal(t, 5+3+3, score)
}

func TestScoreSameDistrict(t *testing.T) {
	// Gisozi and ndera are both Gasabo but not adjacent.
	lost := lostItem(model.CategoryKeys, "gisozi", anchor)
	found := foundItem(model.CategoryKeys, "ndera", anchor)

	score, explanations := Score(lost, found)
	assert.Equal(t, 5+1+3, score)
	assert.Contains(t, explanations, "Same district")
}

func TestScoreUnknownAreasOnlyMatchExactly(t *testing.T) {
	lost := lostItem(model.CategoryOther, "musanze", anchor)
	same := foundItem(model.CategoryOther, "Musanze", anchor)
	other := foundItem(model.CategoryOther, "huye", anchor)

	score, _ := Score(lost, same)
	assert.Equal(t, 5+5+3, score)
	score, _ = Score(lost, other)
	assert.Equal(t, 5+3, score)
}

func TestScoreTemporalBands(t *testing.T) {
	lost := lostItem(model.CategoryWallet, "kiyovu", anchor)

	cases := []struct {
		name   string
		offset time.Duration
		want   int
	}{
		{"within 24h", 12 * time.Hour, 3},
		{"within 72h", 48 * time.Hour, 2},
		{"within 7d", 6 * 24 * time.Hour, 1},
		{"beyond 7d", 8 * 24 * time.Hour, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			found := foundItem(model.CategoryWallet, "kiyovu", anchor.Add(tc.offset))
			score, _ := Score(lost, found)
			assert.Equal(t, 5+5+tc.want, score)
		})
	}
}

func TestScoreFoundShortlyBeforeLostStillCounts(t *testing.T) {
	// Reporting order is unreliable within a day; a found stamp up to
	// 24h before the lost stamp keeps the recency bonus.
	lost := lostItem(model.CategoryPhone, "remera", anchor)
	found := foundItem(model.CategoryPhone, "remera", anchor.Add(-20*time.Hour))

	score, explanations := Score(lost, found)
	assert.Equal(t, 5+5+3, score)
	assert.Contains(t, explanations, "Within 24 hours")
}

func TestScoreFoundLongBeforeLostGetsNoTimeBonus(t *testing.T) {
	lost := lostItem(model.CategoryPhone, "remera", anchor)
	found := foundItem(model.CategoryPhone, "remera", anchor.Add(-48*time.Hour))

	score, _ := Score(lost, found)
	assert.Equal(t, 5+5, score)
}

func TestScoreKeywordBonusCapped(t *testing.T) {
	words := []string{"black", "iphone", "cracked", "screen", "leather", "case", "sticker"}
	lost := lostItem(model.CategoryPhone, "gikondo", anchor, words...)
	found := foundItem(model.CategoryPhone, "gikondo", anchor, words...)

	// 7 shared keywords, bonus capped at 5.
	score, explanations := Score(lost, found)
	assert.Equal(t, 5+5+3+5, score)
	assert.Contains(t, explanations, "7 shared keyword(s)")
}

func TestTopSortsDescendingAndTruncates(t *testing.T) {
	var results []model.MatchResult
	for _, s := range []int{6, 12, 8, 20, 7, 9, 15} {
		results = append(results, model.MatchResult{Score: s})
	}

	got := top(results)
	assert.Len(t, got, MaxResults)
	scores := make([]int, len(got))
	for i, r := range got {
		scores[i] = r.Score
	}
	assert.Equal(t, []int{20, 15, 12, 9, 8}, scores)
}

func TestTopTiesFavorEarlierCandidates(t *testing.T) {
	first := model.MatchResult{Score: 10, Explanations: []string{"first"}}
	second := model.MatchResult{Score: 10, Explanations: []string{"second"}}

	got := top([]model.MatchResult{first, second})
	assert.Equal(t, "first", got[0].Explanations[0])
	assert.Equal(t, "second", got[1].Explanations[0])
}
