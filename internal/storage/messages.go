package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/byaboneka/byaboneka/internal/model"
)

// CreateClaimMessage inserts a claim message. Flagging was decided at
// ingest by the caller; the row stores the verdict and the terms that
// triggered it.
func (db *DB) CreateClaimMessage(ctx context.Context, m model.ClaimMessage) (model.ClaimMessage, error) {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	m.CreatedAt = time.Now().UTC()
	if m.FlagTerms == nil {
		m.FlagTerms = []string{}
	}
	if _, err := db.pool.Exec(ctx,
		`INSERT INTO claim_messages (id, claim_id, sender_id, body, flagged, flag_terms, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		m.ID, m.ClaimID, m.SenderID, m.Body, m.Flagged, m.FlagTerms, m.CreatedAt,
	); err != nil {
		return model.ClaimMessage{}, fmt.Errorf("storage: create claim message: %w", err)
	}
	return m, nil
}

// ListClaimMessages returns a claim's messages in send order.
func (db *DB) ListClaimMessages(ctx context.Context, claimID uuid.UUID, limit, offset int) ([]model.ClaimMessage, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT id, claim_id, sender_id, body, flagged, flag_terms, created_at
		 FROM claim_messages WHERE claim_id = $1
		 ORDER BY created_at LIMIT $2 OFFSET $3`,
		claimID, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: list claim messages: %w", err)
	}
	defer rows.Close()

	var messages []model.ClaimMessage
	for rows.Next() {
		var m model.ClaimMessage
		if err := rows.Scan(&m.ID, &m.ClaimID, &m.SenderID, &m.Body, &m.Flagged, &m.FlagTerms, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("storage: scan claim message: %w", err)
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}
