package fraud

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/byaboneka/byaboneka/internal/model"
)

// StatsSource supplies the activity counts behind a risk assessment.
// Implemented by the storage layer.
type StatsSource interface {
	FraudStats(ctx context.Context, userID uuid.UUID, ip string) (Context, error)
}

// Gate assembles a scoring Context for a user and action and applies
// the block threshold. It sits in front of every state-changing
// operation; the pure scorer stays storage-free.
type Gate struct {
	src    StatsSource
	logger *slog.Logger
}

// NewGate creates a Gate backed by src.
func NewGate(src StatsSource, logger *slog.Logger) *Gate {
	return &Gate{src: src, logger: logger}
}

// Check scores one action. A blocked verdict is returned as a typed
// Blocked error carrying the level only; the contributing factors go
// to the structured log, where admins can review them.
func (g *Gate) Check(ctx context.Context, user model.User, action, ip string) (Assessment, error) {
	fc, err := g.src.FraudStats(ctx, user.ID, ip)
	if err != nil {
		return Assessment{}, err
	}
	fc.AccountAge = time.Since(user.CreatedAt)
	fc.EmailVerified = user.EmailVerified
	fc.PhoneVerified = user.PhoneVerified
	fc.TrustScore = user.TrustScore

	a := Score(fc)
	if a.ShouldBlock {
		g.logger.Warn("fraud: action blocked",
			"user_id", user.ID,
			"action", action,
			"score", a.Score,
			"level", a.Level,
			"factors", a.Factors,
		)
		return a, model.Errorf(model.KindBlocked, "Action blocked for review (risk level: %s)", a.Level)
	}
	if a.ShouldFlag {
		g.logger.Info("fraud: action flagged",
			"user_id", user.ID,
			"action", action,
			"score", a.Score,
			"level", a.Level,
			"factors", a.Factors,
		)
	}
	return a, nil
}
