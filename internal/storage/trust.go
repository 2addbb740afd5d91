package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/byaboneka/byaboneka/internal/model"
)

// TrustWrite is the outcome of one ledger append.
type TrustWrite struct {
	Event      model.TrustEvent
	NewScore   int
	AutoBanned bool
}

// ApplyTrustDelta appends a trust event and refreshes the materialized
// score in its own transaction. Use applyTrustDeltaTx when the write
// must ride an existing claim transaction.
func (db *DB) ApplyTrustDelta(ctx context.Context, userID uuid.UUID, delta int, reason string) (TrustWrite, error) {
	var w TrustWrite
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return w, fmt.Errorf("storage: begin trust delta: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	w, err = applyTrustDeltaTx(ctx, tx, userID, delta, reason)
	if err != nil {
		return w, err
	}
	if err := tx.Commit(ctx); err != nil {
		return w, fmt.Errorf("storage: commit trust delta: %w", err)
	}
	return w, nil
}

// applyTrustDeltaTx serializes ledger writes per user by locking the
// user row, appends the event, and writes back the clamped score. The
// materialized score is always clamp(Σ deltas) recomputed from the
// log, so it never drifts from the recompute invariant. Crossing the
// ban floor flips is_banned inside the same transaction.
func applyTrustDeltaTx(ctx context.Context, tx pgx.Tx, userID uuid.UUID, delta int, reason string) (TrustWrite, error) {
	var w TrustWrite

	var preScore int
	err := tx.QueryRow(ctx,
		`SELECT trust_score FROM users WHERE id = $1 FOR UPDATE`, userID,
	).Scan(&preScore)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return w, fmt.Errorf("storage: user %s: %w", userID, ErrNotFound)
		}
		return w, fmt.Errorf("storage: lock user for trust delta: %w", err)
	}

	var rawSum int
	if err := tx.QueryRow(ctx,
		`SELECT COALESCE(SUM(delta), 0) FROM trust_events WHERE user_id = $1`, userID,
	).Scan(&rawSum); err != nil {
		return w, fmt.Errorf("storage: sum trust deltas: %w", err)
	}

	newScore := model.ClampTrust(rawSum + delta)

	event := model.TrustEvent{
		ID:        uuid.New(),
		UserID:    userID,
		Delta:     delta,
		Reason:    reason,
		NewScore:  newScore,
		CreatedAt: time.Now().UTC(),
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO trust_events (id, user_id, delta, reason, new_score, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		event.ID, event.UserID, event.Delta, event.Reason, event.NewScore, event.CreatedAt,
	); err != nil {
		return w, fmt.Errorf("storage: insert trust event: %w", err)
	}

	autoBan := model.CrossedBanFloor(preScore, newScore)
	if autoBan {
		if _, err := tx.Exec(ctx,
			`UPDATE users SET trust_score = $2, is_banned = true, ban_reason = $3, updated_at = now()
			 WHERE id = $1`,
			userID, newScore, model.BanReasonLowTrust,
		); err != nil {
			return w, fmt.Errorf("storage: auto-ban user: %w", err)
		}
	} else {
		if _, err := tx.Exec(ctx,
			`UPDATE users SET trust_score = $2, updated_at = now() WHERE id = $1`,
			userID, newScore,
		); err != nil {
			return w, fmt.Errorf("storage: update trust score: %w", err)
		}
	}

	return TrustWrite{Event: event, NewScore: newScore, AutoBanned: autoBan}, nil
}

// ListTrustEvents returns a user's most recent ledger entries.
func (db *DB) ListTrustEvents(ctx context.Context, userID uuid.UUID, limit int) ([]model.TrustEvent, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT id, user_id, delta, reason, new_score, created_at
		 FROM trust_events WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2`,
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: list trust events: %w", err)
	}
	defer rows.Close()

	var events []model.TrustEvent
	for rows.Next() {
		var e model.TrustEvent
		if err := rows.Scan(&e.ID, &e.UserID, &e.Delta, &e.Reason, &e.NewScore, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("storage: scan trust event: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// RecomputeTrust replays the full ledger for a user and writes the
// clamped sum back to the user row. It returns the stored score before
// the write and the recomputed value, so the admin operation can
// assert the invariant held.
func (db *DB) RecomputeTrust(ctx context.Context, userID uuid.UUID) (stored, recomputed int, err error) {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("storage: begin trust recompute: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	err = tx.QueryRow(ctx,
		`SELECT trust_score FROM users WHERE id = $1 FOR UPDATE`, userID,
	).Scan(&stored)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, 0, fmt.Errorf("storage: user %s: %w", userID, ErrNotFound)
		}
		return 0, 0, fmt.Errorf("storage: lock user for recompute: %w", err)
	}

	var rawSum int
	if err := tx.QueryRow(ctx,
		`SELECT COALESCE(SUM(delta), 0) FROM trust_events WHERE user_id = $1`, userID,
	).Scan(&rawSum); err != nil {
		return 0, 0, fmt.Errorf("storage: sum trust deltas: %w", err)
	}
	recomputed = model.ClampTrust(rawSum)

	if _, err := tx.Exec(ctx,
		`UPDATE users SET trust_score = $2, updated_at = now() WHERE id = $1`,
		userID, recomputed,
	); err != nil {
		return 0, 0, fmt.Errorf("storage: write recomputed score: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, 0, fmt.Errorf("storage: commit trust recompute: %w", err)
	}
	return stored, recomputed, nil
}
