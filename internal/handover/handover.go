// Package handover owns the single-use OTP exchange that closes a
// verified claim. The owner mints a code and shows it at the physical
// exchange; the finder (or cooperative staff holding the item) redeems
// it. Minting, redemption, and the attempt counter all run inside the
// claim-row lock, and redemption, the triple returned transition, and
// both trust awards commit in one transaction.
package handover

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/byaboneka/byaboneka/internal/auth"
	"github.com/byaboneka/byaboneka/internal/fraud"
	"github.com/byaboneka/byaboneka/internal/model"
	"github.com/byaboneka/byaboneka/internal/storage"
	"github.com/byaboneka/byaboneka/internal/trust"
)

const (
	// CodeTTL is the handover code lifetime.
	CodeTTL = 24 * time.Hour
	// MaxAttempts bounds redemption attempts per code.
	MaxAttempts = 3
)

// Service implements the handover exchange.
type Service struct {
	db     *storage.DB
	gate   *fraud.Gate
	logger *slog.Logger
}

// New creates a handover service.
func New(db *storage.DB, gate *fraud.Gate, logger *slog.Logger) *Service {
	return &Service{db: db, gate: gate, logger: logger}
}

// Mint issues a fresh handover code for a verified claim. Only the
// claimant may mint. An expired or exhausted unverified code is
// replaced; a live one is a conflict so two plaintext codes never
// coexist. The plaintext is returned exactly once and never stored.
func (s *Service) Mint(ctx context.Context, user model.User, claimID uuid.UUID) (model.MintOTPResponse, error) {
	var resp model.MintOTPResponse
	err := s.db.WithClaimTx(ctx, claimID, func(ct *storage.ClaimTx) error {
		claim := ct.Claim()
		now := time.Now().UTC()

		if claim.ClaimantID != user.ID {
			return model.NewError(model.KindForbidden, "Only the claimant can generate a handover code")
		}
		if claim.Status != model.ClaimVerified {
			return model.Errorf(model.KindConflict, "Claim is not verified (status: %s)", claim.Status)
		}

		existing, err := ct.Handover(ctx)
		switch {
		case err == nil:
			if existing.Verified {
				return model.NewError(model.KindConflict, "Handover is already confirmed")
			}
			if now.Before(existing.ExpiresAt) && existing.AttemptsRemaining() > 0 {
				return model.CooldownUntil(existing.ExpiresAt, "An active handover code already exists")
			}
			if err := ct.DeleteHandover(ctx, existing.ID); err != nil {
				return err
			}
		case !errors.Is(err, storage.ErrNotFound):
			return err
		}

		code, err := auth.GenerateOTP()
		if err != nil {
			return err
		}
		salt, err := auth.NewSalt()
		if err != nil {
			return err
		}
		h, err := ct.InsertHandover(ctx, model.HandoverConfirmation{
			OTPSalt:     salt,
			OTPHash:     auth.HashSecret(code, salt),
			ExpiresAt:   now.Add(CodeTTL),
			MaxAttempts: MaxAttempts,
		})
		if err != nil {
			return err
		}
		resp = model.MintOTPResponse{OTP: code, ExpiresAt: h.ExpiresAt}
		return nil
	})
	if err != nil {
		return model.MintOTPResponse{}, err
	}
	s.logger.Info("handover: code minted", "claim_id", claimID, "claimant_id", user.ID)
	return resp, nil
}

// Redeem checks a submitted code and, on match, confirms the handover:
// claim, lost item, and found item all move to returned and both
// parties earn trust, atomically. A mismatch burns one attempt and is
// audited. A second redemption of an already confirmed handover is a
// conflict regardless of code correctness. The fraud gate runs before
// any state is touched.
func (s *Service) Redeem(ctx context.Context, user model.User, claimID uuid.UUID, code, ip string) (model.RedeemOTPResponse, error) {
	if _, err := s.gate.Check(ctx, user, "handover_redeem", ip); err != nil {
		return model.RedeemOTPResponse{}, err
	}

	// A wrong code must still commit its attempt increment, so the
	// mismatch error is carried out of the callback instead of
	// returned from it (a returned error would roll the counter back).
	var (
		resp        model.RedeemOTPResponse
		mismatchErr error
	)
	err := s.db.WithClaimTx(ctx, claimID, func(ct *storage.ClaimTx) error {
		claim := ct.Claim()
		now := time.Now().UTC()

		found, err := s.db.GetFoundItem(ctx, claim.FoundItemID)
		if err != nil {
			return err
		}
		if claim.ClaimantID == user.ID {
			return model.NewError(model.KindForbidden, "Item owner cannot confirm handover")
		}
		if !canRedeem(user, found) {
			return model.NewError(model.KindForbidden, "Only the finder or cooperative staff can confirm handover")
		}
		if claim.Status != model.ClaimVerified {
			if claim.Status == model.ClaimReturned {
				return model.NewError(model.KindConflict, "Handover is already confirmed")
			}
			return model.Errorf(model.KindConflict, "Claim is not verified (status: %s)", claim.Status)
		}

		h, err := ct.Handover(ctx)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return model.NewError(model.KindNotFound, "No handover code has been generated for this claim").WithCause(err)
			}
			return err
		}
		if h.Verified {
			return model.NewError(model.KindConflict, "Handover is already confirmed")
		}
		if now.After(h.ExpiresAt) {
			return model.NewError(model.KindExpired, "Handover code has expired")
		}
		if h.AttemptsRemaining() == 0 {
			return model.NewError(model.KindForbidden, "Maximum handover attempts exceeded")
		}

		if !auth.VerifySecret(code, h.OTPSalt, h.OTPHash) {
			attempts, err := ct.IncrementHandoverAttempts(ctx, h.ID)
			if err != nil {
				return err
			}
			remaining := h.MaxAttempts - attempts
			if remaining < 0 {
				remaining = 0
			}
			s.audit(ctx, user.ID, "handover_code_mismatch", claim.ID, ip, map[string]any{
				"attempts_remaining": remaining,
			})
			mismatchErr = model.Errorf(model.KindInvalidInput, "Incorrect handover code (%d attempts remaining)", remaining)
			return nil
		}

		if err := ct.MarkHandoverVerified(ctx, h.ID, user.ID, now); err != nil {
			if errors.Is(err, storage.ErrDuplicate) {
				return model.NewError(model.KindConflict, "Handover is already confirmed").WithCause(err)
			}
			return err
		}
		if err := ct.SetStatus(ctx, model.ClaimReturned); err != nil {
			return err
		}
		if err := ct.SetLostItemStatus(ctx, model.LostReturned); err != nil {
			return err
		}
		if err := ct.SetFoundItemStatus(ctx, model.FoundReturned); err != nil {
			return err
		}
		if _, err := ct.ApplyTrustDelta(ctx, found.UserID, trust.DeltaSuccessfulReturnFinder, trust.ReasonSuccessfulReturnFinder); err != nil {
			return err
		}
		if _, err := ct.ApplyTrustDelta(ctx, claim.ClaimantID, trust.DeltaSuccessfulReturnOwner, trust.ReasonSuccessfulReturnOwner); err != nil {
			return err
		}
		if err := ct.RecordAction(ctx, user.ID, model.ActionHandoverRedeem, ip); err != nil {
			return err
		}

		resp = model.RedeemOTPResponse{
			ClaimStatus:     model.ClaimReturned,
			LostItemStatus:  model.LostReturned,
			FoundItemStatus: model.FoundReturned,
			RedeemedAt:      now,
		}
		return nil
	})
	if err != nil {
		return model.RedeemOTPResponse{}, err
	}
	if mismatchErr != nil {
		return model.RedeemOTPResponse{}, mismatchErr
	}

	s.audit(ctx, user.ID, "handover_confirmed", claimID, ip, nil)
	s.logger.Info("handover: confirmed", "claim_id", claimID, "redeemed_by", user.ID)
	return resp, nil
}

// Status reports the handover state to a claim participant. No code
// material is ever included.
func (s *Service) Status(ctx context.Context, user model.User, claimID uuid.UUID) (model.HandoverStatusResponse, error) {
	claim, err := s.db.GetClaim(ctx, claimID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return model.HandoverStatusResponse{}, model.NewError(model.KindNotFound, "Claim not found").WithCause(err)
		}
		return model.HandoverStatusResponse{}, err
	}
	found, err := s.db.GetFoundItem(ctx, claim.FoundItemID)
	if err != nil {
		return model.HandoverStatusResponse{}, err
	}
	if user.Role != model.RoleAdmin && claim.ClaimantID != user.ID && !canRedeem(user, found) {
		return model.HandoverStatusResponse{}, model.NewError(model.KindForbidden, "You are not a participant in this claim")
	}

	h, err := s.db.GetHandoverByClaim(ctx, claimID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return model.HandoverStatusResponse{}, model.NewError(model.KindNotFound, "No handover code has been generated for this claim").WithCause(err)
		}
		return model.HandoverStatusResponse{}, err
	}
	return model.HandoverStatusResponse{
		ClaimID:           claimID,
		Verified:          h.Verified,
		ExpiresAt:         h.ExpiresAt,
		AttemptsRemaining: h.AttemptsRemaining(),
		RedeemedAt:        h.RedeemedAt,
	}, nil
}

// canRedeem admits the finder, and cooperative staff of the
// cooperative holding the found item.
func canRedeem(user model.User, found model.FoundItem) bool {
	if found.UserID == user.ID {
		return true
	}
	if user.Role == model.RoleCoopStaff && user.CooperativeID != nil &&
		found.CooperativeID != nil && *user.CooperativeID == *found.CooperativeID {
		return true
	}
	return false
}

func (s *Service) audit(ctx context.Context, actorID uuid.UUID, action string, claimID uuid.UUID, ip string, metadata map[string]any) {
	if err := s.db.InsertAuditEvent(ctx, model.AuditEvent{
		ActorID:    &actorID,
		Action:     action,
		EntityType: "claim",
		EntityID:   &claimID,
		Metadata:   metadata,
		IP:         ip,
	}); err != nil {
		s.logger.Warn("handover: audit write failed", "claim_id", claimID, "action", action, "error", err)
	}
}
