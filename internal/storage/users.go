package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/byaboneka/byaboneka/internal/model"
)

const userColumns = `id, email, phone, password_hash, name, role, trust_score,
	email_verified, phone_verified, is_banned, ban_reason, cooperative_id,
	created_at, updated_at`

func scanUser(row pgx.Row) (model.User, error) {
	var u model.User
	err := row.Scan(
		&u.ID, &u.Email, &u.Phone, &u.PasswordHash, &u.Name, &u.Role, &u.TrustScore,
		&u.EmailVerified, &u.PhoneVerified, &u.IsBanned, &u.BanReason, &u.CooperativeID,
		&u.CreatedAt, &u.UpdatedAt,
	)
	return u, err
}

// CreateUser inserts a new user. Email is stored lowercased. Returns
// ErrDuplicate when the email or phone is already registered.
func (db *DB) CreateUser(ctx context.Context, u model.User) (model.User, error) {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	if u.Role == "" {
		u.Role = model.RoleCitizen
	}
	u.Email = strings.ToLower(u.Email)
	now := time.Now().UTC()
	u.CreatedAt = now
	u.UpdatedAt = now

	_, err := db.pool.Exec(ctx,
		`INSERT INTO users (id, email, phone, password_hash, name, role, trust_score,
		 email_verified, phone_verified, is_banned, ban_reason, cooperative_id, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		u.ID, u.Email, u.Phone, u.PasswordHash, u.Name, u.Role, u.TrustScore,
		u.EmailVerified, u.PhoneVerified, u.IsBanned, u.BanReason, u.CooperativeID,
		u.CreatedAt, u.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return model.User{}, fmt.Errorf("storage: create user: %w", ErrDuplicate)
		}
		return model.User{}, fmt.Errorf("storage: create user: %w", err)
	}
	return u, nil
}

// GetUser retrieves a user by ID.
func (db *DB) GetUser(ctx context.Context, id uuid.UUID) (model.User, error) {
	u, err := scanUser(db.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.User{}, fmt.Errorf("storage: user %s: %w", id, ErrNotFound)
		}
		return model.User{}, fmt.Errorf("storage: get user: %w", err)
	}
	return u, nil
}

// GetUserByEmail retrieves a user by email, case-insensitively.
func (db *DB) GetUserByEmail(ctx context.Context, email string) (model.User, error) {
	u, err := scanUser(db.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = $1`, strings.ToLower(email)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.User{}, fmt.Errorf("storage: user by email: %w", ErrNotFound)
		}
		return model.User{}, fmt.Errorf("storage: get user by email: %w", err)
	}
	return u, nil
}

// UpdateUserPassword replaces the stored password verifier.
func (db *DB) UpdateUserPassword(ctx context.Context, userID uuid.UUID, passwordHash string) error {
	tag, err := db.pool.Exec(ctx,
		`UPDATE users SET password_hash = $2, updated_at = now() WHERE id = $1`,
		userID, passwordHash,
	)
	if err != nil {
		return fmt.Errorf("storage: update password: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("storage: user %s: %w", userID, ErrNotFound)
	}
	return nil
}

// SetUserBanned sets or clears the ban flag and reason.
func (db *DB) SetUserBanned(ctx context.Context, userID uuid.UUID, banned bool, reason *string) error {
	tag, err := db.pool.Exec(ctx,
		`UPDATE users SET is_banned = $2, ban_reason = $3, updated_at = now() WHERE id = $1`,
		userID, banned, reason,
	)
	if err != nil {
		return fmt.Errorf("storage: set user banned: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("storage: user %s: %w", userID, ErrNotFound)
	}
	return nil
}

// MarkEmailVerified flips the email_verified bit. Returns true when the
// bit was previously unset, so the trust delta is applied exactly once.
func (db *DB) MarkEmailVerified(ctx context.Context, userID uuid.UUID) (bool, error) {
	tag, err := db.pool.Exec(ctx,
		`UPDATE users SET email_verified = true, updated_at = now()
		 WHERE id = $1 AND email_verified = false`, userID,
	)
	if err != nil {
		return false, fmt.Errorf("storage: mark email verified: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// MarkPhoneVerified flips the phone_verified bit. Returns true when the
// bit was previously unset.
func (db *DB) MarkPhoneVerified(ctx context.Context, userID uuid.UUID) (bool, error) {
	tag, err := db.pool.Exec(ctx,
		`UPDATE users SET phone_verified = true, updated_at = now()
		 WHERE id = $1 AND phone_verified = false`, userID,
	)
	if err != nil {
		return false, fmt.Errorf("storage: mark phone verified: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// CreateCooperative inserts a new cooperative. Returns ErrDuplicate on
// a code collision.
func (db *DB) CreateCooperative(ctx context.Context, c model.Cooperative) (model.Cooperative, error) {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	c.CreatedAt = time.Now().UTC()

	_, err := db.pool.Exec(ctx,
		`INSERT INTO cooperatives (id, name, code, created_at) VALUES ($1, $2, $3, $4)`,
		c.ID, c.Name, c.Code, c.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return model.Cooperative{}, fmt.Errorf("storage: create cooperative: %w", ErrDuplicate)
		}
		return model.Cooperative{}, fmt.Errorf("storage: create cooperative: %w", err)
	}
	return c, nil
}

// GetCooperative retrieves a cooperative by ID.
func (db *DB) GetCooperative(ctx context.Context, id uuid.UUID) (model.Cooperative, error) {
	var c model.Cooperative
	err := db.pool.QueryRow(ctx,
		`SELECT id, name, code, created_at FROM cooperatives WHERE id = $1`, id,
	).Scan(&c.ID, &c.Name, &c.Code, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Cooperative{}, fmt.Errorf("storage: cooperative %s: %w", id, ErrNotFound)
		}
		return model.Cooperative{}, fmt.Errorf("storage: get cooperative: %w", err)
	}
	return c, nil
}

// ListCooperatives returns all cooperatives ordered by name.
func (db *DB) ListCooperatives(ctx context.Context) ([]model.Cooperative, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT id, name, code, created_at FROM cooperatives ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("storage: list cooperatives: %w", err)
	}
	defer rows.Close()

	var coops []model.Cooperative
	for rows.Next() {
		var c model.Cooperative
		if err := rows.Scan(&c.ID, &c.Name, &c.Code, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("storage: scan cooperative: %w", err)
		}
		coops = append(coops, c)
	}
	return coops, rows.Err()
}
