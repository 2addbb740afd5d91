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

const claimColumns = `id, lost_item_id, found_item_id, claimant_id, status, verification_score,
	attempts_made, consecutive_failures, next_attempt_at, status_before_dispute,
	created_at, updated_at`

func scanClaim(row pgx.Row) (model.Claim, error) {
	var c model.Claim
	err := row.Scan(
		&c.ID, &c.LostItemID, &c.FoundItemID, &c.ClaimantID, &c.Status, &c.VerificationScore,
		&c.AttemptsMade, &c.ConsecutiveFailures, &c.NextAttemptAt, &c.StatusBeforeDispute,
		&c.CreatedAt, &c.UpdatedAt,
	)
	return c, err
}

// CreateClaim inserts a claim in Pending state. The partial unique
// index on (lost, found, claimant) rejects a second live claim for the
// tuple; that surfaces as ErrDuplicate.
func (db *DB) CreateClaim(ctx context.Context, c model.Claim) (model.Claim, error) {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if c.Status == "" {
		c.Status = model.ClaimPending
	}
	now := time.Now().UTC()
	c.CreatedAt = now
	c.UpdatedAt = now

	_, err := db.pool.Exec(ctx,
		`INSERT INTO claims (id, lost_item_id, found_item_id, claimant_id, status,
		 verification_score, attempts_made, consecutive_failures, next_attempt_at,
		 status_before_dispute, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		c.ID, c.LostItemID, c.FoundItemID, c.ClaimantID, c.Status,
		c.VerificationScore, c.AttemptsMade, c.ConsecutiveFailures, c.NextAttemptAt,
		c.StatusBeforeDispute, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return model.Claim{}, fmt.Errorf("storage: create claim: %w", ErrDuplicate)
		}
		return model.Claim{}, fmt.Errorf("storage: create claim: %w", err)
	}
	return c, nil
}

// GetClaim retrieves a claim by ID without locking.
func (db *DB) GetClaim(ctx context.Context, id uuid.UUID) (model.Claim, error) {
	c, err := scanClaim(db.pool.QueryRow(ctx,
		`SELECT `+claimColumns+` FROM claims WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Claim{}, fmt.Errorf("storage: claim %s: %w", id, ErrNotFound)
		}
		return model.Claim{}, fmt.Errorf("storage: get claim: %w", err)
	}
	return c, nil
}

// ListClaimsForUser returns claims the user participates in, either as
// claimant or as the finder of the found item, most recent first.
func (db *DB) ListClaimsForUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]model.Claim, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT `+claimColumns+` FROM claims c
		 WHERE c.claimant_id = $1
		    OR EXISTS (SELECT 1 FROM found_items f WHERE f.id = c.found_item_id AND f.user_id = $1)
		 ORDER BY c.created_at DESC LIMIT $2 OFFSET $3`,
		userID, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: list claims: %w", err)
	}
	defer rows.Close()

	var claims []model.Claim
	for rows.Next() {
		c, err := scanClaim(rows)
		if err != nil {
			return nil, fmt.Errorf("storage: scan claim: %w", err)
		}
		claims = append(claims, c)
	}
	return claims, rows.Err()
}

// ExpirePendingClaims archives pending claims older than maxAge in one
// bounded batch. Returns the number of rows expired.
func (db *DB) ExpirePendingClaims(ctx context.Context, maxAge time.Duration, batchSize int) (int64, error) {
	cutoff := time.Now().UTC().Add(-maxAge)
	tag, err := db.pool.Exec(ctx,
		`UPDATE claims SET status = $1, updated_at = now()
		 WHERE id IN (
		   SELECT id FROM claims
		   WHERE status = $2 AND created_at < $3
		   LIMIT $4
		 )`,
		model.ClaimExpired, model.ClaimPending, cutoff, batchSize,
	)
	if err != nil {
		return 0, fmt.Errorf("storage: expire pending claims: %w", err)
	}
	return tag.RowsAffected(), nil
}

// CountClaimAttemptsSince counts verification attempts recorded for a
// claim since the cutoff. Used for the per-claim daily cap.
func (db *DB) CountClaimAttemptsSince(ctx context.Context, claimID uuid.UUID, since time.Time) (int, error) {
	var n int
	err := db.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM verification_attempts WHERE claim_id = $1 AND created_at >= $2`,
		claimID, since,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("storage: count claim attempts: %w", err)
	}
	return n, nil
}

// ClaimTx exposes the write operations permitted inside a per-claim
// transaction. The claim row is held FOR UPDATE for the transaction's
// lifetime, so verification attempts and OTP redemptions on one claim
// are totally ordered. Lock order across the schema is claim row
// first, then item rows, then user rows.
type ClaimTx struct {
	tx    pgx.Tx
	claim model.Claim
}

// Claim returns the row as loaded under the lock.
func (ct *ClaimTx) Claim() model.Claim { return ct.claim }

// WithClaimTx runs fn inside a transaction holding the claim row lock.
// A non-nil error from fn rolls everything back, so guard violations
// raised by the state machine never commit partial state.
func (db *DB) WithClaimTx(ctx context.Context, claimID uuid.UUID, fn func(ct *ClaimTx) error) error {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("storage: begin claim tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	claim, err := lockClaimTx(ctx, tx, claimID)
	if err != nil {
		return err
	}

	if err := fn(&ClaimTx{tx: tx, claim: claim}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("storage: commit claim tx: %w", err)
	}
	return nil
}

// SetStatus transitions the claim's status column.
func (ct *ClaimTx) SetStatus(ctx context.Context, to model.ClaimStatus) error {
	if err := setClaimStatusTx(ctx, ct.tx, ct.claim.ID, to); err != nil {
		return err
	}
	ct.claim.Status = to
	return nil
}

// SetStatusBeforeDispute stamps (or clears) the state a dispute forked
// from, so resolution can restore it.
func (ct *ClaimTx) SetStatusBeforeDispute(ctx context.Context, from *model.ClaimStatus) error {
	if _, err := ct.tx.Exec(ctx,
		`UPDATE claims SET status_before_dispute = $2, updated_at = now() WHERE id = $1`,
		ct.claim.ID, from,
	); err != nil {
		return fmt.Errorf("storage: set status before dispute: %w", err)
	}
	ct.claim.StatusBeforeDispute = from
	return nil
}

// RecordVerificationResult updates the verification bookkeeping
// columns after an attempt.
func (ct *ClaimTx) RecordVerificationResult(ctx context.Context, score float64, attemptsMade, consecutiveFailures int, nextAttemptAt *time.Time) error {
	if _, err := ct.tx.Exec(ctx,
		`UPDATE claims SET verification_score = $2, attempts_made = $3,
		 consecutive_failures = $4, next_attempt_at = $5, updated_at = now()
		 WHERE id = $1`,
		ct.claim.ID, score, attemptsMade, consecutiveFailures, nextAttemptAt,
	); err != nil {
		return fmt.Errorf("storage: record verification result: %w", err)
	}
	ct.claim.VerificationScore = score
	ct.claim.AttemptsMade = attemptsMade
	ct.claim.ConsecutiveFailures = consecutiveFailures
	ct.claim.NextAttemptAt = nextAttemptAt
	return nil
}

// AppendAttempt inserts one row into the append-only attempts log.
func (ct *ClaimTx) AppendAttempt(ctx context.Context, a model.VerificationAttempt) (model.VerificationAttempt, error) {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	a.ClaimID = ct.claim.ID
	a.CreatedAt = time.Now().UTC()
	if _, err := ct.tx.Exec(ctx,
		`INSERT INTO verification_attempts (id, claim_id, user_id, correct_answers, status, ip, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		a.ID, a.ClaimID, a.UserID, a.CorrectAnswers, a.Status, a.IP, a.CreatedAt,
	); err != nil {
		return model.VerificationAttempt{}, fmt.Errorf("storage: append attempt: %w", err)
	}
	return a, nil
}

// CountAttemptsSince counts this claim's attempts since the cutoff,
// under the lock.
func (ct *ClaimTx) CountAttemptsSince(ctx context.Context, since time.Time) (int, error) {
	var n int
	err := ct.tx.QueryRow(ctx,
		`SELECT COUNT(*) FROM verification_attempts WHERE claim_id = $1 AND created_at >= $2`,
		ct.claim.ID, since,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("storage: count attempts: %w", err)
	}
	return n, nil
}

// CountUserFailuresSince counts a user's failed attempts across all
// claims since the cutoff. Drives the repeated-failure trust penalty.
func (ct *ClaimTx) CountUserFailuresSince(ctx context.Context, userID uuid.UUID, since time.Time) (int, error) {
	var n int
	err := ct.tx.QueryRow(ctx,
		`SELECT COUNT(*) FROM verification_attempts
		 WHERE user_id = $1 AND status = $2 AND created_at >= $3`,
		userID, model.AttemptFailed, since,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("storage: count user failures: %w", err)
	}
	return n, nil
}

// SetLostItemStatus updates the linked lost item inside the claim
// transaction.
func (ct *ClaimTx) SetLostItemStatus(ctx context.Context, to model.LostItemStatus) error {
	return setLostItemStatusTx(ctx, ct.tx, ct.claim.LostItemID, to)
}

// SetFoundItemStatus updates the linked found item inside the claim
// transaction.
func (ct *ClaimTx) SetFoundItemStatus(ctx context.Context, to model.FoundItemStatus) error {
	return setFoundItemStatusTx(ctx, ct.tx, ct.claim.FoundItemID, to)
}

// ApplyTrustDelta appends a ledger event inside the claim transaction,
// so the trust side effect commits or rolls back with the state change
// it attends.
func (ct *ClaimTx) ApplyTrustDelta(ctx context.Context, userID uuid.UUID, delta int, reason string) (TrustWrite, error) {
	return applyTrustDeltaTx(ctx, ct.tx, userID, delta, reason)
}

// RecordAction appends a user_actions row inside the claim transaction.
func (ct *ClaimTx) RecordAction(ctx context.Context, userID uuid.UUID, action, ip string) error {
	return insertActionTx(ctx, ct.tx, userID, action, ip)
}
