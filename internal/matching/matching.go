// Package matching proposes candidate lost-found pairs. Scoring is a
// deterministic, explainable sum of factors; results for a lost item
// are cached with a freshness stamp and recomputed through a
// singleflight group on miss. Matches are advisory: no state
// transition ever depends on them.
package matching

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/byaboneka/byaboneka/internal/analyzer"
	"github.com/byaboneka/byaboneka/internal/model"
	"github.com/byaboneka/byaboneka/internal/storage"
)

// Scoring factor points.
const (
	pointsCategory     = 5
	pointsSameArea     = 5
	pointsAdjacentArea = 3
	pointsSameDistrict = 1
	pointsWithin24h    = 3
	pointsWithin72h    = 2
	pointsWithin7d     = 1
	pointsPerKeyword   = 1
	maxKeywordBonus    = 5
)

// Engine limits.
const (
	// MinScore is the floor below which a pairing is not reported.
	MinScore = 5
	// MaxResults caps the matches returned per item.
	MaxResults = 5
	// candidateLimit bounds one scoring pass.
	candidateLimit = 100
	// candidateWindow is the ± date window around the anchor date.
	candidateWindow = 7 * 24 * time.Hour
	// CacheTTL is the freshness horizon for cached lost-item results.
	CacheTTL = time.Hour
	// foundRefreshLimit bounds how many lost items a new found item
	// refreshes in the background.
	foundRefreshLimit = 20
)

// Score rates one (lost, found) pair. Category is a hard gate:
// mismatched categories score zero and short-circuit every other
// factor.
func Score(lost model.LostItem, found model.FoundItem) (int, []string) {
	if lost.Category != found.Category {
		return 0, []string{"Category mismatch"}
	}

	score := pointsCategory
	explanations := []string{"Category match"}

	switch analyzer.Distance(lost.LocationArea, found.LocationArea) {
	case analyzer.DistanceSame:
		score += pointsSameArea
		explanations = append(explanations, "Same location")
	case analyzer.DistanceAdjacent:
		score += pointsAdjacentArea
		explanations = append(explanations, "Adjacent location")
	case analyzer.DistanceSameDistrict:
		score += pointsSameDistrict
		explanations = append(explanations, "Same district")
	}

	delta := found.FoundDate.Sub(lost.LostDate)
	gap := delta.Abs()
	if delta >= 0 || gap <= 24*time.Hour {
		switch {
		case gap <= 24*time.Hour:
			score += pointsWithin24h
			explanations = append(explanations, "Within 24 hours")
		case gap <= 72*time.Hour:
			score += pointsWithin72h
			explanations = append(explanations, "Within 72 hours")
		case gap <= 168*time.Hour:
			score += pointsWithin7d
			explanations = append(explanations, "Within 7 days")
		}
	}

	if shared := analyzer.SharedKeywords(lost.Keywords, found.Keywords); shared > 0 {
		bonus := shared * pointsPerKeyword
		if bonus > maxKeywordBonus {
			bonus = maxKeywordBonus
		}
		score += bonus
		explanations = append(explanations, fmt.Sprintf("%d shared keyword(s)", shared))
	}

	return score, explanations
}

// Engine computes and caches matches.
type Engine struct {
	db     *storage.DB
	logger *slog.Logger
	sf     singleflight.Group
}

// New creates a matching engine.
func New(db *storage.DB, logger *slog.Logger) *Engine {
	return &Engine{db: db, logger: logger}
}

// MatchesForLost returns the top matches for a lost item. A cache row
// stamped within CacheTTL is served as-is; otherwise the result set is
// recomputed synchronously, deduplicated across concurrent readers by
// the singleflight group.
func (e *Engine) MatchesForLost(ctx context.Context, lost model.LostItem) ([]model.MatchResult, error) {
	cached, stamp, err := e.db.GetMatchResults(ctx, lost.ID)
	if err != nil {
		return nil, err
	}
	if !stamp.IsZero() && time.Since(stamp) < CacheTTL {
		return cached, nil
	}

	v, err, _ := e.sf.Do(lost.ID.String(), func() (any, error) {
		return e.recomputeLost(ctx, lost)
	})
	if err != nil {
		return nil, err
	}
	return v.([]model.MatchResult), nil
}

// MatchesForFound scores a found item against recent active lost
// items. Found-side results are computed on demand and not cached.
func (e *Engine) MatchesForFound(ctx context.Context, found model.FoundItem) ([]model.MatchResult, error) {
	candidates, err := e.db.FindLostCandidates(ctx, found.Category, found.FoundDate, candidateWindow, candidateLimit)
	if err != nil {
		return nil, err
	}

	var results []model.MatchResult
	for _, lost := range candidates {
		score, explanations := Score(lost, found)
		if score < MinScore {
			continue
		}
		results = append(results, model.MatchResult{
			LostItemID:   lost.ID,
			FoundItemID:  found.ID,
			Score:        score,
			Explanations: explanations,
		})
	}
	return top(results), nil
}

// RefreshLost recomputes and stores the cache row for one lost item.
// Used by background tasks triggered on publication.
func (e *Engine) RefreshLost(ctx context.Context, lostID uuid.UUID) error {
	lost, err := e.db.GetLostItem(ctx, lostID)
	if err != nil {
		return err
	}
	_, err = e.recomputeLost(ctx, lost)
	return err
}

// RefreshForFound refreshes the cached results of recent candidate
// lost items after a found item is published, so owners see the new
// counterpart without waiting out the TTL.
func (e *Engine) RefreshForFound(ctx context.Context, found model.FoundItem) error {
	candidates, err := e.db.FindLostCandidates(ctx, found.Category, found.FoundDate, candidateWindow, foundRefreshLimit)
	if err != nil {
		return err
	}
	for _, lost := range candidates {
		if _, err := e.recomputeLost(ctx, lost); err != nil {
			e.logger.Warn("matching: refresh for found item failed",
				"lost_item_id", lost.ID, "found_item_id", found.ID, "error", err)
		}
	}
	return nil
}

// recomputeLost scores the candidate set for a lost item and replaces
// its cache rows atomically.
func (e *Engine) recomputeLost(ctx context.Context, lost model.LostItem) ([]model.MatchResult, error) {
	candidates, err := e.db.FindFoundCandidates(ctx, lost.Category, lost.LostDate, candidateWindow, candidateLimit)
	if err != nil {
		return nil, err
	}

	var results []model.MatchResult
	for _, found := range candidates {
		score, explanations := Score(lost, found)
		if score < MinScore {
			continue
		}
		results = append(results, model.MatchResult{
			LostItemID:   lost.ID,
			FoundItemID:  found.ID,
			Score:        score,
			Explanations: explanations,
		})
	}
	results = top(results)

	if err := e.db.ReplaceMatchResults(ctx, lost.ID, results); err != nil {
		return nil, err
	}
	return results, nil
}

// top sorts by score descending and truncates to MaxResults. The sort
// is stable on insertion order, which is most-recent-first from the
// candidate query, so ties favor newer counterparts.
func top(results []model.MatchResult) []model.MatchResult {
	for i := 1; i < len(results); i++ {
		for j := i; j > 0 && results[j].Score > results[j-1].Score; j-- {
			results[j], results[j-1] = results[j-1], results[j]
		}
	}
	if len(results) > MaxResults {
		results = results[:MaxResults]
	}
	return results
}
