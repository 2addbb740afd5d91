package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/byaboneka/byaboneka/internal/fraud"
	"github.com/byaboneka/byaboneka/internal/model"
)

// RecordAction appends a user_actions row outside any transaction.
func (db *DB) RecordAction(ctx context.Context, userID uuid.UUID, action, ip string) error {
	if _, err := db.pool.Exec(ctx,
		`INSERT INTO user_actions (id, user_id, action, ip, created_at)
		 VALUES ($1, $2, $3, $4, now())`,
		uuid.New(), userID, action, ip,
	); err != nil {
		return fmt.Errorf("storage: record action: %w", err)
	}
	return nil
}

// CountUserActionsSince counts a user's actions matching any of the
// given verbs since the cutoff. An empty verb list counts everything.
func (db *DB) CountUserActionsSince(ctx context.Context, userID uuid.UUID, actions []string, since time.Time) (int, error) {
	var (
		n   int
		err error
	)
	if len(actions) == 0 {
		err = db.pool.QueryRow(ctx,
			`SELECT COUNT(*) FROM user_actions WHERE user_id = $1 AND created_at >= $2`,
			userID, since,
		).Scan(&n)
	} else {
		err = db.pool.QueryRow(ctx,
			`SELECT COUNT(*) FROM user_actions
			 WHERE user_id = $1 AND action = ANY($2) AND created_at >= $3`,
			userID, actions, since,
		).Scan(&n)
	}
	if err != nil {
		return 0, fmt.Errorf("storage: count user actions: %w", err)
	}
	return n, nil
}

// FraudStats assembles the activity counts the fraud scorer consumes.
// Account-level fields (age, verification, trust) are filled by the
// caller from the user row it already holds.
func (db *DB) FraudStats(ctx context.Context, userID uuid.UUID, ip string) (fraud.Context, error) {
	var fc fraud.Context
	now := time.Now().UTC()

	err := db.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM verification_attempts
		 WHERE user_id = $1 AND status = $2 AND created_at >= $3`,
		userID, model.AttemptFailed, now.Add(-24*time.Hour),
	).Scan(&fc.FailedAttempts24h)
	if err != nil {
		return fc, fmt.Errorf("storage: fraud stats failed attempts: %w", err)
	}

	err = db.pool.QueryRow(ctx,
		`SELECT COUNT(DISTINCT c.lost_item_id) FROM verification_attempts a
		 JOIN claims c ON c.id = a.claim_id
		 WHERE a.user_id = $1 AND a.status = $2 AND a.created_at >= $3`,
		userID, model.AttemptFailed, now.Add(-7*24*time.Hour),
	).Scan(&fc.FailedClaimItems7d)
	if err != nil {
		return fc, fmt.Errorf("storage: fraud stats failed items: %w", err)
	}

	if ip != "" {
		err = db.pool.QueryRow(ctx,
			`SELECT COUNT(DISTINCT user_id) FROM user_actions
			 WHERE ip = $1 AND user_id <> $2 AND created_at >= $3`,
			ip, userID, now.Add(-24*time.Hour),
		).Scan(&fc.IPSharedUsers24h)
		if err != nil {
			return fc, fmt.Errorf("storage: fraud stats shared ip: %w", err)
		}

		var seen int
		err = db.pool.QueryRow(ctx,
			`SELECT COUNT(*) FROM user_actions WHERE user_id = $1 AND ip = $2`,
			userID, ip,
		).Scan(&seen)
		if err != nil {
			return fc, fmt.Errorf("storage: fraud stats known ip: %w", err)
		}
		fc.IPKnownForUser = seen > 0
	} else {
		fc.IPKnownForUser = true
	}

	fc.ClaimsLastHour, err = db.CountUserActionsSince(ctx, userID,
		[]string{model.ActionClaimCreated}, now.Add(-time.Hour))
	if err != nil {
		return fc, err
	}

	fc.ReportsLast24h, err = db.CountUserActionsSince(ctx, userID,
		[]string{model.ActionLostItemCreated, model.ActionFoundItemCreated, model.ActionScamReportFiled},
		now.Add(-24*time.Hour))
	if err != nil {
		return fc, err
	}

	fc.ActionsLastHour, err = db.CountUserActionsSince(ctx, userID, nil, now.Add(-time.Hour))
	if err != nil {
		return fc, err
	}

	return fc, nil
}
