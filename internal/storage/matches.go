package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/byaboneka/byaboneka/internal/model"
)

// ReplaceMatchResults atomically swaps the cached match rows for a
// lost item: the prior rows are deleted and the new set inserted in
// one transaction, so readers never observe a half-written cache.
func (db *DB) ReplaceMatchResults(ctx context.Context, lostItemID uuid.UUID, results []model.MatchResult) error {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("storage: begin replace matches: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx,
		`DELETE FROM match_results WHERE lost_item_id = $1`, lostItemID,
	); err != nil {
		return fmt.Errorf("storage: clear match results: %w", err)
	}

	now := time.Now().UTC()
	for _, r := range results {
		if r.ID == uuid.Nil {
			r.ID = uuid.New()
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO match_results (id, lost_item_id, found_item_id, score, explanations, computed_at)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			r.ID, lostItemID, r.FoundItemID, r.Score, r.Explanations, now,
		); err != nil {
			return fmt.Errorf("storage: insert match result: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("storage: commit replace matches: %w", err)
	}
	return nil
}

// GetMatchResults returns the cached rows for a lost item, best score
// first, along with the cache stamp. An empty slice with a zero stamp
// means no cache row exists.
func (db *DB) GetMatchResults(ctx context.Context, lostItemID uuid.UUID) ([]model.MatchResult, time.Time, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT id, lost_item_id, found_item_id, score, explanations, computed_at
		 FROM match_results WHERE lost_item_id = $1 ORDER BY score DESC`,
		lostItemID,
	)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("storage: get match results: %w", err)
	}
	defer rows.Close()

	var (
		results []model.MatchResult
		stamp   time.Time
	)
	for rows.Next() {
		var r model.MatchResult
		if err := rows.Scan(&r.ID, &r.LostItemID, &r.FoundItemID, &r.Score, &r.Explanations, &r.ComputedAt); err != nil {
			return nil, time.Time{}, fmt.Errorf("storage: scan match result: %w", err)
		}
		if r.ComputedAt.After(stamp) {
			stamp = r.ComputedAt
		}
		results = append(results, r)
	}
	return results, stamp, rows.Err()
}
