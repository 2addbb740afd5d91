package storage

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/byaboneka/byaboneka/internal/model"
)

// isRetriable returns true for Postgres error codes that indicate a
// transient conflict.
func isRetriable(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	switch pgErr.Code {
	case "40001": // serialization_failure
		return true
	case "40P01": // deadlock_detected
		return true
	default:
		return false
	}
}

// isUniqueViolation returns true when err is a Postgres unique
// constraint violation.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// WithRetry executes fn, retrying up to maxRetries times on
// serialization or deadlock errors. Retries use jittered exponential
// backoff starting at baseDelay.
func WithRetry(ctx context.Context, maxRetries int, baseDelay time.Duration, fn func() error) error {
	var err error
	for attempt := range maxRetries + 1 {
		err = fn()
		if err == nil || !isRetriable(err) {
			return err
		}
		if attempt == maxRetries {
			break
		}
		jitter := time.Duration(rand.Int64N(int64(baseDelay))) //nolint:gosec // jitter doesn't need crypto-strength randomness
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(baseDelay + jitter):
		}
		baseDelay *= 2
	}
	return err
}

// lockClaimTx loads a claim row under FOR UPDATE, serializing every
// multi-table mutation per claim. Lock order across the schema is
// always claim row first, then item rows, then user rows.
func lockClaimTx(ctx context.Context, tx pgx.Tx, claimID uuid.UUID) (model.Claim, error) {
	var c model.Claim
	err := tx.QueryRow(ctx,
		`SELECT id, lost_item_id, found_item_id, claimant_id, status, verification_score,
		        attempts_made, consecutive_failures, next_attempt_at, status_before_dispute,
		        created_at, updated_at
		 FROM claims WHERE id = $1 FOR UPDATE`, claimID,
	).Scan(
		&c.ID, &c.LostItemID, &c.FoundItemID, &c.ClaimantID, &c.Status, &c.VerificationScore,
		&c.AttemptsMade, &c.ConsecutiveFailures, &c.NextAttemptAt, &c.StatusBeforeDispute,
		&c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Claim{}, fmt.Errorf("storage: claim %s: %w", claimID, ErrNotFound)
		}
		return model.Claim{}, fmt.Errorf("storage: lock claim: %w", err)
	}
	return c, nil
}

// setClaimStatusTx updates a claim's status after the transition table
// has ruled the pair admissible.
func setClaimStatusTx(ctx context.Context, tx pgx.Tx, claimID uuid.UUID, to model.ClaimStatus) error {
	if _, err := tx.Exec(ctx,
		`UPDATE claims SET status = $2, updated_at = now() WHERE id = $1`, claimID, to,
	); err != nil {
		return fmt.Errorf("storage: set claim status: %w", err)
	}
	return nil
}

// setLostItemStatusTx and setFoundItemStatusTx update item lifecycle
// columns inside a claim transaction.
func setLostItemStatusTx(ctx context.Context, tx pgx.Tx, itemID uuid.UUID, to model.LostItemStatus) error {
	if _, err := tx.Exec(ctx,
		`UPDATE lost_items SET status = $2, updated_at = now() WHERE id = $1`, itemID, to,
	); err != nil {
		return fmt.Errorf("storage: set lost item status: %w", err)
	}
	return nil
}

func setFoundItemStatusTx(ctx context.Context, tx pgx.Tx, itemID uuid.UUID, to model.FoundItemStatus) error {
	if _, err := tx.Exec(ctx,
		`UPDATE found_items SET status = $2, updated_at = now() WHERE id = $1`, itemID, to,
	); err != nil {
		return fmt.Errorf("storage: set found item status: %w", err)
	}
	return nil
}

// insertActionTx appends a user_actions row inside a transaction.
func insertActionTx(ctx context.Context, tx pgx.Tx, userID uuid.UUID, action, ip string) error {
	if _, err := tx.Exec(ctx,
		`INSERT INTO user_actions (id, user_id, action, ip, created_at)
		 VALUES ($1, $2, $3, $4, now())`,
		uuid.New(), userID, action, ip,
	); err != nil {
		return fmt.Errorf("storage: insert user action: %w", err)
	}
	return nil
}
