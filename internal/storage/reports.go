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

const scamReportColumns = `id, reporter_id, reported_user_id, claim_id, reason, status,
	resolved_by, resolved_at, created_at`

func scanScamReport(row pgx.Row) (model.ScamReport, error) {
	var r model.ScamReport
	err := row.Scan(
		&r.ID, &r.ReporterID, &r.ReportedUserID, &r.ClaimID, &r.Reason, &r.Status,
		&r.ResolvedBy, &r.ResolvedAt, &r.CreatedAt,
	)
	return r, err
}

// CreateScamReport inserts an open scam report.
func (db *DB) CreateScamReport(ctx context.Context, r model.ScamReport) (model.ScamReport, error) {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	r.Status = model.ScamReportOpen
	r.CreatedAt = time.Now().UTC()
	if _, err := db.pool.Exec(ctx,
		`INSERT INTO scam_reports (id, reporter_id, reported_user_id, claim_id, reason,
		 status, resolved_by, resolved_at, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		r.ID, r.ReporterID, r.ReportedUserID, r.ClaimID, r.Reason,
		r.Status, r.ResolvedBy, r.ResolvedAt, r.CreatedAt,
	); err != nil {
		return model.ScamReport{}, fmt.Errorf("storage: create scam report: %w", err)
	}
	return r, nil
}

// GetScamReport retrieves a scam report by ID.
func (db *DB) GetScamReport(ctx context.Context, id uuid.UUID) (model.ScamReport, error) {
	r, err := scanScamReport(db.pool.QueryRow(ctx,
		`SELECT `+scamReportColumns+` FROM scam_reports WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.ScamReport{}, fmt.Errorf("storage: scam report %s: %w", id, ErrNotFound)
		}
		return model.ScamReport{}, fmt.Errorf("storage: get scam report: %w", err)
	}
	return r, nil
}

// ResolveScamReport records the operator ruling and applies the
// compensating trust deltas in one transaction. deltas maps user IDs
// to (delta, reason) pairs assembled by the caller.
func (db *DB) ResolveScamReport(ctx context.Context, reportID, resolvedBy uuid.UUID, outcome model.ScamReportStatus, deltas []TrustDeltaRequest) ([]TrustWrite, error) {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("storage: begin resolve scam report: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx,
		`UPDATE scam_reports SET status = $2, resolved_by = $3, resolved_at = now()
		 WHERE id = $1 AND status = $4`,
		reportID, outcome, resolvedBy, model.ScamReportOpen,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: resolve scam report: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, fmt.Errorf("storage: scam report %s not open: %w", reportID, ErrNotFound)
	}

	writes := make([]TrustWrite, 0, len(deltas))
	for _, d := range deltas {
		w, err := applyTrustDeltaTx(ctx, tx, d.UserID, d.Delta, d.Reason)
		if err != nil {
			return nil, err
		}
		writes = append(writes, w)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("storage: commit resolve scam report: %w", err)
	}
	return writes, nil
}

// TrustDeltaRequest is one ledger write requested alongside a
// transactional resolution.
type TrustDeltaRequest struct {
	UserID uuid.UUID
	Delta  int
	Reason string
}
