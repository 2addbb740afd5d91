package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// RefreshToken is a stored refresh-token row. Only the salted hash of
// the signed token ever touches disk.
type RefreshToken struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	TokenSalt []byte
	TokenHash []byte
	ExpiresAt time.Time
	RevokedAt *time.Time
	CreatedAt time.Time
}

// CreateRefreshToken stores a refresh-token row keyed by the token's
// jti, so rotation can revoke the exact predecessor.
func (db *DB) CreateRefreshToken(ctx context.Context, t RefreshToken) error {
	t.CreatedAt = time.Now().UTC()
	if _, err := db.pool.Exec(ctx,
		`INSERT INTO refresh_tokens (id, user_id, token_salt, token_hash, expires_at, revoked_at, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		t.ID, t.UserID, t.TokenSalt, t.TokenHash, t.ExpiresAt, t.RevokedAt, t.CreatedAt,
	); err != nil {
		return fmt.Errorf("storage: create refresh token: %w", err)
	}
	return nil
}

// GetRefreshToken retrieves a refresh-token row by jti.
func (db *DB) GetRefreshToken(ctx context.Context, id uuid.UUID) (RefreshToken, error) {
	var t RefreshToken
	err := db.pool.QueryRow(ctx,
		`SELECT id, user_id, token_salt, token_hash, expires_at, revoked_at, created_at
		 FROM refresh_tokens WHERE id = $1`, id,
	).Scan(&t.ID, &t.UserID, &t.TokenSalt, &t.TokenHash, &t.ExpiresAt, &t.RevokedAt, &t.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return RefreshToken{}, fmt.Errorf("storage: refresh token %s: %w", id, ErrNotFound)
		}
		return RefreshToken{}, fmt.Errorf("storage: get refresh token: %w", err)
	}
	return t, nil
}

// RevokeRefreshToken marks one token revoked. Revoking an already
// revoked token is a no-op, not an error.
func (db *DB) RevokeRefreshToken(ctx context.Context, id uuid.UUID) error {
	if _, err := db.pool.Exec(ctx,
		`UPDATE refresh_tokens SET revoked_at = now() WHERE id = $1 AND revoked_at IS NULL`, id,
	); err != nil {
		return fmt.Errorf("storage: revoke refresh token: %w", err)
	}
	return nil
}

// RevokeUserRefreshTokens revokes every live refresh token a user
// holds. Used on password reset and on ban.
func (db *DB) RevokeUserRefreshTokens(ctx context.Context, userID uuid.UUID) error {
	if _, err := db.pool.Exec(ctx,
		`UPDATE refresh_tokens SET revoked_at = now() WHERE user_id = $1 AND revoked_at IS NULL`, userID,
	); err != nil {
		return fmt.Errorf("storage: revoke user refresh tokens: %w", err)
	}
	return nil
}

// ResetToken is a stored single-use credential row shared by password
// resets and email/phone verification codes.
type ResetToken struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	Salt      []byte
	Hash      []byte
	ExpiresAt time.Time
	UsedAt    *time.Time
}

// CreatePasswordReset stores a password-reset token row.
func (db *DB) CreatePasswordReset(ctx context.Context, t ResetToken) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	if _, err := db.pool.Exec(ctx,
		`INSERT INTO password_resets (id, user_id, token_salt, token_hash, expires_at, used_at, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, now())`,
		t.ID, t.UserID, t.Salt, t.Hash, t.ExpiresAt, t.UsedAt,
	); err != nil {
		return fmt.Errorf("storage: create password reset: %w", err)
	}
	return nil
}

// LatestPasswordReset returns a user's newest unused, unexpired reset
// row.
func (db *DB) LatestPasswordReset(ctx context.Context, userID uuid.UUID) (ResetToken, error) {
	var t ResetToken
	err := db.pool.QueryRow(ctx,
		`SELECT id, user_id, token_salt, token_hash, expires_at, used_at
		 FROM password_resets
		 WHERE user_id = $1 AND used_at IS NULL AND expires_at > now()
		 ORDER BY created_at DESC LIMIT 1`, userID,
	).Scan(&t.ID, &t.UserID, &t.Salt, &t.Hash, &t.ExpiresAt, &t.UsedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ResetToken{}, fmt.Errorf("storage: password reset for user %s: %w", userID, ErrNotFound)
		}
		return ResetToken{}, fmt.Errorf("storage: latest password reset: %w", err)
	}
	return t, nil
}

// MarkPasswordResetUsed consumes a reset row. Returns ErrNotFound when
// the row was already used, so a replayed token fails closed.
func (db *DB) MarkPasswordResetUsed(ctx context.Context, id uuid.UUID) error {
	tag, err := db.pool.Exec(ctx,
		`UPDATE password_resets SET used_at = now() WHERE id = $1 AND used_at IS NULL`, id,
	)
	if err != nil {
		return fmt.Errorf("storage: mark password reset used: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("storage: password reset %s: %w", id, ErrNotFound)
	}
	return nil
}

// CreateVerificationCode stores a hashed email or phone verification
// code.
func (db *DB) CreateVerificationCode(ctx context.Context, t ResetToken, channel string) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	if _, err := db.pool.Exec(ctx,
		`INSERT INTO verification_codes (id, user_id, channel, code_salt, code_hash, expires_at, used_at, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, now())`,
		t.ID, t.UserID, channel, t.Salt, t.Hash, t.ExpiresAt, t.UsedAt,
	); err != nil {
		return fmt.Errorf("storage: create verification code: %w", err)
	}
	return nil
}

// LatestVerificationCode returns a user's newest unused, unexpired
// code for the channel.
func (db *DB) LatestVerificationCode(ctx context.Context, userID uuid.UUID, channel string) (ResetToken, error) {
	var t ResetToken
	err := db.pool.QueryRow(ctx,
		`SELECT id, user_id, code_salt, code_hash, expires_at, used_at
		 FROM verification_codes
		 WHERE user_id = $1 AND channel = $2 AND used_at IS NULL AND expires_at > now()
		 ORDER BY created_at DESC LIMIT 1`, userID, channel,
	).Scan(&t.ID, &t.UserID, &t.Salt, &t.Hash, &t.ExpiresAt, &t.UsedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ResetToken{}, fmt.Errorf("storage: verification code for user %s: %w", userID, ErrNotFound)
		}
		return ResetToken{}, fmt.Errorf("storage: latest verification code: %w", err)
	}
	return t, nil
}

// MarkVerificationCodeUsed consumes a verification code row.
func (db *DB) MarkVerificationCodeUsed(ctx context.Context, id uuid.UUID) error {
	tag, err := db.pool.Exec(ctx,
		`UPDATE verification_codes SET used_at = now() WHERE id = $1 AND used_at IS NULL`, id,
	)
	if err != nil {
		return fmt.Errorf("storage: mark verification code used: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("storage: verification code %s: %w", id, ErrNotFound)
	}
	return nil
}
