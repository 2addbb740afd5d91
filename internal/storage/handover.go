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

const handoverColumns = `id, claim_id, otp_salt, otp_hash, expires_at, verified,
	attempts, max_attempts, redeemed_by, redeemed_at, created_at`

func scanHandover(row pgx.Row) (model.HandoverConfirmation, error) {
	var h model.HandoverConfirmation
	err := row.Scan(
		&h.ID, &h.ClaimID, &h.OTPSalt, &h.OTPHash, &h.ExpiresAt, &h.Verified,
		&h.Attempts, &h.MaxAttempts, &h.RedeemedBy, &h.RedeemedAt, &h.CreatedAt,
	)
	return h, err
}

// GetHandoverByClaim retrieves a claim's handover confirmation without
// locking. Used by the read-only status endpoint.
func (db *DB) GetHandoverByClaim(ctx context.Context, claimID uuid.UUID) (model.HandoverConfirmation, error) {
	h, err := scanHandover(db.pool.QueryRow(ctx,
		`SELECT `+handoverColumns+` FROM handover_confirmations WHERE claim_id = $1`, claimID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.HandoverConfirmation{}, fmt.Errorf("storage: handover for claim %s: %w", claimID, ErrNotFound)
		}
		return model.HandoverConfirmation{}, fmt.Errorf("storage: get handover: %w", err)
	}
	return h, nil
}

// Handover retrieves this claim's confirmation under the claim lock.
// Returns ErrNotFound when none exists.
func (ct *ClaimTx) Handover(ctx context.Context) (model.HandoverConfirmation, error) {
	h, err := scanHandover(ct.tx.QueryRow(ctx,
		`SELECT `+handoverColumns+` FROM handover_confirmations WHERE claim_id = $1`, ct.claim.ID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.HandoverConfirmation{}, fmt.Errorf("storage: handover for claim %s: %w", ct.claim.ID, ErrNotFound)
		}
		return model.HandoverConfirmation{}, fmt.Errorf("storage: get handover: %w", err)
	}
	return h, nil
}

// DeleteHandover removes an expired, never-verified confirmation so a
// fresh one can be minted.
func (ct *ClaimTx) DeleteHandover(ctx context.Context, id uuid.UUID) error {
	if _, err := ct.tx.Exec(ctx,
		`DELETE FROM handover_confirmations WHERE id = $1 AND verified = false`, id,
	); err != nil {
		return fmt.Errorf("storage: delete handover: %w", err)
	}
	return nil
}

// InsertHandover stores a freshly minted confirmation. Only the salted
// hash of the OTP is persisted.
func (ct *ClaimTx) InsertHandover(ctx context.Context, h model.HandoverConfirmation) (model.HandoverConfirmation, error) {
	if h.ID == uuid.Nil {
		h.ID = uuid.New()
	}
	h.ClaimID = ct.claim.ID
	h.CreatedAt = time.Now().UTC()
	if _, err := ct.tx.Exec(ctx,
		`INSERT INTO handover_confirmations (id, claim_id, otp_salt, otp_hash, expires_at,
		 verified, attempts, max_attempts, redeemed_by, redeemed_at, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		h.ID, h.ClaimID, h.OTPSalt, h.OTPHash, h.ExpiresAt,
		h.Verified, h.Attempts, h.MaxAttempts, h.RedeemedBy, h.RedeemedAt, h.CreatedAt,
	); err != nil {
		if isUniqueViolation(err) {
			return model.HandoverConfirmation{}, fmt.Errorf("storage: insert handover: %w", ErrDuplicate)
		}
		return model.HandoverConfirmation{}, fmt.Errorf("storage: insert handover: %w", err)
	}
	return h, nil
}

// IncrementHandoverAttempts bumps the failed-redemption counter and
// returns the new value.
func (ct *ClaimTx) IncrementHandoverAttempts(ctx context.Context, id uuid.UUID) (int, error) {
	var attempts int
	err := ct.tx.QueryRow(ctx,
		`UPDATE handover_confirmations SET attempts = attempts + 1
		 WHERE id = $1 RETURNING attempts`, id,
	).Scan(&attempts)
	if err != nil {
		return 0, fmt.Errorf("storage: increment handover attempts: %w", err)
	}
	return attempts, nil
}

// MarkHandoverVerified stamps the redeemer and completion time. The
// verified = false condition makes a double redemption structurally
// impossible even if a caller bypassed the state guards.
func (ct *ClaimTx) MarkHandoverVerified(ctx context.Context, id, redeemedBy uuid.UUID, at time.Time) error {
	tag, err := ct.tx.Exec(ctx,
		`UPDATE handover_confirmations
		 SET verified = true, redeemed_by = $2, redeemed_at = $3
		 WHERE id = $1 AND verified = false`,
		id, redeemedBy, at,
	)
	if err != nil {
		return fmt.Errorf("storage: mark handover verified: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("storage: handover %s already verified: %w", id, ErrDuplicate)
	}
	return nil
}
