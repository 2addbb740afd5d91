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

const disputeColumns = `id, claim_id, opened_by, reason, status, resolution,
	resolved_by, resolved_at, created_at`

func scanDispute(row pgx.Row) (model.Dispute, error) {
	var d model.Dispute
	err := row.Scan(
		&d.ID, &d.ClaimID, &d.OpenedBy, &d.Reason, &d.Status, &d.Resolution,
		&d.ResolvedBy, &d.ResolvedAt, &d.CreatedAt,
	)
	return d, err
}

// GetDispute retrieves a dispute by ID.
func (db *DB) GetDispute(ctx context.Context, id uuid.UUID) (model.Dispute, error) {
	d, err := scanDispute(db.pool.QueryRow(ctx,
		`SELECT `+disputeColumns+` FROM disputes WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Dispute{}, fmt.Errorf("storage: dispute %s: %w", id, ErrNotFound)
		}
		return model.Dispute{}, fmt.Errorf("storage: get dispute: %w", err)
	}
	return d, nil
}

// InsertDispute opens a dispute for this claim under the claim lock.
// The partial unique index rejects a second open dispute.
func (ct *ClaimTx) InsertDispute(ctx context.Context, d model.Dispute) (model.Dispute, error) {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	d.ClaimID = ct.claim.ID
	d.Status = model.DisputeOpen
	d.CreatedAt = time.Now().UTC()
	if _, err := ct.tx.Exec(ctx,
		`INSERT INTO disputes (id, claim_id, opened_by, reason, status, resolution,
		 resolved_by, resolved_at, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		d.ID, d.ClaimID, d.OpenedBy, d.Reason, d.Status, d.Resolution,
		d.ResolvedBy, d.ResolvedAt, d.CreatedAt,
	); err != nil {
		if isUniqueViolation(err) {
			return model.Dispute{}, fmt.Errorf("storage: insert dispute: %w", ErrDuplicate)
		}
		return model.Dispute{}, fmt.Errorf("storage: insert dispute: %w", err)
	}
	return d, nil
}

// ResolveDispute records the operator ruling under the claim lock.
func (ct *ClaimTx) ResolveDispute(ctx context.Context, disputeID, resolvedBy uuid.UUID, resolution model.DisputeResolution) error {
	tag, err := ct.tx.Exec(ctx,
		`UPDATE disputes SET status = $2, resolution = $3, resolved_by = $4, resolved_at = now()
		 WHERE id = $1 AND status = $5`,
		disputeID, model.DisputeResolved, resolution, resolvedBy, model.DisputeOpen,
	)
	if err != nil {
		return fmt.Errorf("storage: resolve dispute: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("storage: dispute %s not open: %w", disputeID, ErrNotFound)
	}
	return nil
}
