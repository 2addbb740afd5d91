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

const lostItemColumns = `id, user_id, category, title, description, location_area,
	lost_date, status, keywords, created_at, updated_at`

const foundItemColumns = `id, user_id, cooperative_id, category, title, description,
	location_area, found_date, status, source, image_urls, keywords, created_at, updated_at`

func scanLostItem(row pgx.Row) (model.LostItem, error) {
	var li model.LostItem
	err := row.Scan(
		&li.ID, &li.UserID, &li.Category, &li.Title, &li.Description, &li.LocationArea,
		&li.LostDate, &li.Status, &li.Keywords, &li.CreatedAt, &li.UpdatedAt,
	)
	return li, err
}

func scanFoundItem(row pgx.Row) (model.FoundItem, error) {
	var fi model.FoundItem
	err := row.Scan(
		&fi.ID, &fi.UserID, &fi.CooperativeID, &fi.Category, &fi.Title, &fi.Description,
		&fi.LocationArea, &fi.FoundDate, &fi.Status, &fi.Source, &fi.ImageURLs, &fi.Keywords,
		&fi.CreatedAt, &fi.UpdatedAt,
	)
	return fi, err
}

// CreateLostItem inserts a lost item together with its three secret
// triples in one transaction, so an item never exists without its
// verification questions.
func (db *DB) CreateLostItem(ctx context.Context, li model.LostItem, secrets []model.ItemSecret) (model.LostItem, error) {
	if li.ID == uuid.Nil {
		li.ID = uuid.New()
	}
	if li.Status == "" {
		li.Status = model.LostActive
	}
	now := time.Now().UTC()
	li.CreatedAt = now
	li.UpdatedAt = now

	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return model.LostItem{}, fmt.Errorf("storage: begin create lost item: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx,
		`INSERT INTO lost_items (id, user_id, category, title, description, location_area,
		 lost_date, status, keywords, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		li.ID, li.UserID, li.Category, li.Title, li.Description, li.LocationArea,
		li.LostDate, li.Status, li.Keywords, li.CreatedAt, li.UpdatedAt,
	); err != nil {
		return model.LostItem{}, fmt.Errorf("storage: create lost item: %w", err)
	}

	for i, s := range secrets {
		if s.ID == uuid.Nil {
			s.ID = uuid.New()
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO item_secrets (id, lost_item_id, position, question, salt, answer_hash, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			s.ID, li.ID, i+1, s.Question, s.Salt, s.AnswerHash, now,
		); err != nil {
			return model.LostItem{}, fmt.Errorf("storage: create item secret: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return model.LostItem{}, fmt.Errorf("storage: commit create lost item: %w", err)
	}
	return li, nil
}

// GetLostItem retrieves a lost item by ID.
func (db *DB) GetLostItem(ctx context.Context, id uuid.UUID) (model.LostItem, error) {
	li, err := scanLostItem(db.pool.QueryRow(ctx,
		`SELECT `+lostItemColumns+` FROM lost_items WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.LostItem{}, fmt.Errorf("storage: lost item %s: %w", id, ErrNotFound)
		}
		return model.LostItem{}, fmt.Errorf("storage: get lost item: %w", err)
	}
	return li, nil
}

// ListLostItemsByUser returns a user's lost items, most recent first.
func (db *DB) ListLostItemsByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]model.LostItem, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT `+lostItemColumns+` FROM lost_items
		 WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		userID, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: list lost items: %w", err)
	}
	defer rows.Close()
	return collectLostItems(rows)
}

// CreateFoundItem inserts a found item.
func (db *DB) CreateFoundItem(ctx context.Context, fi model.FoundItem) (model.FoundItem, error) {
	if fi.ID == uuid.Nil {
		fi.ID = uuid.New()
	}
	if fi.Status == "" {
		fi.Status = model.FoundUnclaimed
	}
	if fi.Source == "" {
		fi.Source = model.SourceCitizen
	}
	now := time.Now().UTC()
	fi.CreatedAt = now
	fi.UpdatedAt = now

	_, err := db.pool.Exec(ctx,
		`INSERT INTO found_items (id, user_id, cooperative_id, category, title, description,
		 location_area, found_date, status, source, image_urls, keywords, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		fi.ID, fi.UserID, fi.CooperativeID, fi.Category, fi.Title, fi.Description,
		fi.LocationArea, fi.FoundDate, fi.Status, fi.Source, fi.ImageURLs, fi.Keywords,
		fi.CreatedAt, fi.UpdatedAt,
	)
	if err != nil {
		return model.FoundItem{}, fmt.Errorf("storage: create found item: %w", err)
	}
	return fi, nil
}

// GetFoundItem retrieves a found item by ID.
func (db *DB) GetFoundItem(ctx context.Context, id uuid.UUID) (model.FoundItem, error) {
	fi, err := scanFoundItem(db.pool.QueryRow(ctx,
		`SELECT `+foundItemColumns+` FROM found_items WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.FoundItem{}, fmt.Errorf("storage: found item %s: %w", id, ErrNotFound)
		}
		return model.FoundItem{}, fmt.Errorf("storage: get found item: %w", err)
	}
	return fi, nil
}

// ListFoundItemsByUser returns a user's found items, most recent first.
func (db *DB) ListFoundItemsByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]model.FoundItem, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT `+foundItemColumns+` FROM found_items
		 WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		userID, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: list found items: %w", err)
	}
	defer rows.Close()
	return collectFoundItems(rows)
}

// FindFoundCandidates returns unclaimed found items of the given
// category whose found_date lies within the ±window of anchor, most
// recent first, capped at limit.
func (db *DB) FindFoundCandidates(ctx context.Context, category model.Category, anchor time.Time, window time.Duration, limit int) ([]model.FoundItem, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT `+foundItemColumns+` FROM found_items
		 WHERE category = $1 AND status = $2
		   AND found_date BETWEEN $3 AND $4
		 ORDER BY found_date DESC LIMIT $5`,
		category, model.FoundUnclaimed, anchor.Add(-window), anchor.Add(window), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: find found candidates: %w", err)
	}
	defer rows.Close()
	return collectFoundItems(rows)
}

// FindLostCandidates returns active lost items of the given category
// whose lost_date lies within the ±window of anchor, most recent
// first, capped at limit.
func (db *DB) FindLostCandidates(ctx context.Context, category model.Category, anchor time.Time, window time.Duration, limit int) ([]model.LostItem, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT `+lostItemColumns+` FROM lost_items
		 WHERE category = $1 AND status = $2
		   AND lost_date BETWEEN $3 AND $4
		 ORDER BY lost_date DESC LIMIT $5`,
		category, model.LostActive, anchor.Add(-window), anchor.Add(window), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: find lost candidates: %w", err)
	}
	defer rows.Close()
	return collectLostItems(rows)
}

// ExpireIdleItems archives lost and found items untouched for longer
// than idleFor, in one bounded batch per table. Returns the total
// number of rows expired.
func (db *DB) ExpireIdleItems(ctx context.Context, idleFor time.Duration, batchSize int) (int64, error) {
	cutoff := time.Now().UTC().Add(-idleFor)
	var total int64

	tag, err := db.pool.Exec(ctx,
		`UPDATE lost_items SET status = $1, updated_at = now()
		 WHERE id IN (
		   SELECT id FROM lost_items
		   WHERE status = $2 AND updated_at < $3
		   LIMIT $4
		 )`,
		model.LostExpired, model.LostActive, cutoff, batchSize,
	)
	if err != nil {
		return 0, fmt.Errorf("storage: expire lost items: %w", err)
	}
	total += tag.RowsAffected()

	tag, err = db.pool.Exec(ctx,
		`UPDATE found_items SET status = $1, updated_at = now()
		 WHERE id IN (
		   SELECT id FROM found_items
		   WHERE status = $2 AND updated_at < $3
		   LIMIT $4
		 )`,
		model.FoundExpired, model.FoundUnclaimed, cutoff, batchSize,
	)
	if err != nil {
		return total, fmt.Errorf("storage: expire found items: %w", err)
	}
	total += tag.RowsAffected()
	return total, nil
}

func collectLostItems(rows pgx.Rows) ([]model.LostItem, error) {
	var items []model.LostItem
	for rows.Next() {
		li, err := scanLostItem(rows)
		if err != nil {
			return nil, fmt.Errorf("storage: scan lost item: %w", err)
		}
		items = append(items, li)
	}
	return items, rows.Err()
}

func collectFoundItems(rows pgx.Rows) ([]model.FoundItem, error) {
	var items []model.FoundItem
	for rows.Next() {
		fi, err := scanFoundItem(rows)
		if err != nil {
			return nil, fmt.Errorf("storage: scan found item: %w", err)
		}
		items = append(items, fi)
	}
	return items, rows.Err()
}
