package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/byaboneka/byaboneka/internal/model"
)

// InsertAuditEvent appends one audit row. Callers treat failures as
// best-effort: an audit miss never changes the outcome of the
// operation it attended.
func (db *DB) InsertAuditEvent(ctx context.Context, e model.AuditEvent) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	e.CreatedAt = time.Now().UTC()

	var metadata []byte
	if e.Metadata != nil {
		var err error
		metadata, err = json.Marshal(e.Metadata)
		if err != nil {
			return fmt.Errorf("storage: marshal audit metadata: %w", err)
		}
	}

	if _, err := db.pool.Exec(ctx,
		`INSERT INTO audit_events (id, actor_id, action, entity_type, entity_id, metadata, ip, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		e.ID, e.ActorID, e.Action, e.EntityType, e.EntityID, metadata, e.IP, e.CreatedAt,
	); err != nil {
		return fmt.Errorf("storage: insert audit event: %w", err)
	}
	return nil
}

// ListAuditEvents returns audit rows, newest first, optionally
// filtered by entity type.
func (db *DB) ListAuditEvents(ctx context.Context, entityType string, limit, offset int) ([]model.AuditEvent, error) {
	var (
		rows pgx.Rows
		err  error
	)
	if entityType == "" {
		rows, err = db.pool.Query(ctx,
			`SELECT id, actor_id, action, entity_type, entity_id, metadata, ip, created_at
			 FROM audit_events ORDER BY created_at DESC LIMIT $1 OFFSET $2`,
			limit, offset,
		)
	} else {
		rows, err = db.pool.Query(ctx,
			`SELECT id, actor_id, action, entity_type, entity_id, metadata, ip, created_at
			 FROM audit_events WHERE entity_type = $1
			 ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
			entityType, limit, offset,
		)
	}
	if err != nil {
		return nil, fmt.Errorf("storage: list audit events: %w", err)
	}
	defer rows.Close()

	var events []model.AuditEvent
	for rows.Next() {
		var (
			e        model.AuditEvent
			metadata []byte
		)
		if err := rows.Scan(&e.ID, &e.ActorID, &e.Action, &e.EntityType, &e.EntityID, &metadata, &e.IP, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("storage: scan audit event: %w", err)
		}
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &e.Metadata); err != nil {
				return nil, fmt.Errorf("storage: unmarshal audit metadata: %w", err)
			}
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
