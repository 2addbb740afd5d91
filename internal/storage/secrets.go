package storage

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/byaboneka/byaboneka/internal/model"
)

// GetItemSecrets returns a lost item's secret triples ordered by
// position. Salts and hashes stay inside the secrets package; callers
// above it only ever see questions.
func (db *DB) GetItemSecrets(ctx context.Context, lostItemID uuid.UUID) ([]model.ItemSecret, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT id, lost_item_id, position, question, salt, answer_hash, created_at
		 FROM item_secrets WHERE lost_item_id = $1 ORDER BY position`,
		lostItemID,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: get item secrets: %w", err)
	}
	defer rows.Close()

	var secrets []model.ItemSecret
	for rows.Next() {
		var s model.ItemSecret
		if err := rows.Scan(&s.ID, &s.LostItemID, &s.Position, &s.Question, &s.Salt, &s.AnswerHash, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("storage: scan item secret: %w", err)
		}
		secrets = append(secrets, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("storage: get item secrets: %w", err)
	}
	if len(secrets) == 0 {
		return nil, fmt.Errorf("storage: secrets for lost item %s: %w", lostItemID, ErrNotFound)
	}
	return secrets, nil
}
