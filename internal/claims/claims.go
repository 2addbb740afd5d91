// Package claims drives the claim state machine: opening a claim,
// running the verification challenge, cancellation, disputes, and the
// in-claim message channel. Every status mutation runs inside a
// claim-row lock so concurrent requests against the same claim
// serialize; guard failures surface as typed errors and roll back.
package claims

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/byaboneka/byaboneka/internal/fraud"
	"github.com/byaboneka/byaboneka/internal/model"
	"github.com/byaboneka/byaboneka/internal/secrets"
	"github.com/byaboneka/byaboneka/internal/storage"
	"github.com/byaboneka/byaboneka/internal/trust"
)

// Verification challenge limits.
const (
	// PassThreshold is the minimum correct answers out of three.
	PassThreshold = 2
	// DailyAttemptCap bounds verification attempts per claim per
	// rolling 24 hours.
	DailyAttemptCap = 3
	// FailureWindow is the trailing window for the repeated-failure
	// penalty.
	FailureWindow = 7 * 24 * time.Hour
	// FailurePatternEvery triggers the extra penalty at each multiple
	// of this many failed attempts inside FailureWindow.
	FailurePatternEvery = 3
	// PendingTTL is how long a pending claim lives before expiry.
	PendingTTL = 7 * 24 * time.Hour
	// MaxMessageLen bounds one claim message body.
	MaxMessageLen = 1000
	// MaxDisputeReasonLen bounds a dispute reason.
	MaxDisputeReasonLen = 1000
)

// cooldowns escalate with consecutive failures on one claim: first
// failure 1h, second 4h, third and beyond 24h. A passed attempt
// resets the ladder.
var cooldowns = []time.Duration{time.Hour, 4 * time.Hour, 24 * time.Hour}

func cooldownFor(consecutiveFailures int) time.Duration {
	if consecutiveFailures <= 0 {
		return cooldowns[0]
	}
	if consecutiveFailures > len(cooldowns) {
		return cooldowns[len(cooldowns)-1]
	}
	return cooldowns[consecutiveFailures-1]
}

// Service implements the claim lifecycle.
type Service struct {
	db      *storage.DB
	secrets *secrets.Store
	gate    *fraud.Gate
	logger  *slog.Logger
}

// New creates a claims service.
func New(db *storage.DB, secretStore *secrets.Store, gate *fraud.Gate, logger *slog.Logger) *Service {
	return &Service{db: db, secrets: secretStore, gate: gate, logger: logger}
}

// Open creates a pending claim binding the caller's lost item to a
// found item. Ownership, item statuses, the tier claim cap, pair
// uniqueness, and the fraud gate are all checked before the insert.
func (s *Service) Open(ctx context.Context, user model.User, req model.OpenClaimRequest, ip string) (model.Claim, error) {
	lost, err := s.db.GetLostItem(ctx, req.LostItemID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return model.Claim{}, model.NewError(model.KindNotFound, "Lost item not found").WithCause(err)
		}
		return model.Claim{}, err
	}
	found, err := s.db.GetFoundItem(ctx, req.FoundItemID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return model.Claim{}, model.NewError(model.KindNotFound, "Found item not found").WithCause(err)
		}
		return model.Claim{}, err
	}

	if lost.UserID != user.ID {
		return model.Claim{}, model.NewError(model.KindForbidden, "You can only claim against your own lost item")
	}
	if found.UserID == user.ID {
		return model.Claim{}, model.NewError(model.KindForbidden, "You cannot claim an item you reported found")
	}
	if lost.Status != model.LostActive {
		return model.Claim{}, model.Errorf(model.KindConflict, "Lost item is not active (status: %s)", lost.Status)
	}
	if found.Status != model.FoundUnclaimed {
		return model.Claim{}, model.Errorf(model.KindConflict, "Found item is not available (status: %s)", found.Status)
	}

	tier := trust.TierFor(user.TrustScore)
	tierCap := tier.ClaimCap()
	if tierCap == 0 {
		return model.Claim{}, model.NewError(model.KindForbidden, "Your account cannot open claims")
	}
	recent, err := s.db.CountUserActionsSince(ctx, user.ID, []string{model.ActionClaimCreated}, time.Now().UTC().Add(-24*time.Hour))
	if err != nil {
		return model.Claim{}, err
	}
	if recent >= tierCap {
		return model.Claim{}, model.Errorf(model.KindRateLimited, "Claim limit reached for your trust tier (%d per 24h)", tierCap)
	}

	if _, err := s.gate.Check(ctx, user, "claim_open", ip); err != nil {
		return model.Claim{}, err
	}

	claim, err := s.db.CreateClaim(ctx, model.Claim{
		LostItemID:  lost.ID,
		FoundItemID: found.ID,
		ClaimantID:  user.ID,
	})
	if err != nil {
		if errors.Is(err, storage.ErrDuplicate) {
			return model.Claim{}, model.NewError(model.KindConflict, "An open claim already exists for this item pair").WithCause(err)
		}
		return model.Claim{}, err
	}

	if err := s.db.RecordAction(ctx, user.ID, model.ActionClaimCreated, ip); err != nil {
		s.logger.Warn("claims: record action failed", "claim_id", claim.ID, "error", err)
	}
	s.logger.Info("claims: opened",
		"claim_id", claim.ID, "lost_item_id", lost.ID, "found_item_id", found.ID, "claimant_id", user.ID)
	return claim, nil
}

// Get returns a claim visible to the caller: the claimant, the finder
// of the bound found item, or an admin.
func (s *Service) Get(ctx context.Context, user model.User, claimID uuid.UUID) (model.Claim, error) {
	claim, err := s.db.GetClaim(ctx, claimID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return model.Claim{}, model.NewError(model.KindNotFound, "Claim not found").WithCause(err)
		}
		return model.Claim{}, err
	}
	if err := s.authorizeParticipant(ctx, user, claim); err != nil {
		return model.Claim{}, err
	}
	return claim, nil
}

// ListForUser returns claims where the caller is claimant or finder.
func (s *Service) ListForUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]model.Claim, error) {
	return s.db.ListClaimsForUser(ctx, userID, limit, offset)
}

// Questions returns the verification questions for a pending claim.
// Only the claimant may see them, only while the claim is pending, and
// only while today's attempt budget has room: a claimant out of
// attempts has no use for the questions until the window rolls over.
func (s *Service) Questions(ctx context.Context, user model.User, claimID uuid.UUID) (model.ClaimQuestionsResponse, error) {
	claim, err := s.db.GetClaim(ctx, claimID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return model.ClaimQuestionsResponse{}, model.NewError(model.KindNotFound, "Claim not found").WithCause(err)
		}
		return model.ClaimQuestionsResponse{}, err
	}
	if claim.ClaimantID != user.ID {
		return model.ClaimQuestionsResponse{}, model.NewError(model.KindForbidden, "Only the claimant can view verification questions")
	}
	if claim.Status != model.ClaimPending {
		return model.ClaimQuestionsResponse{}, model.Errorf(model.KindConflict, "Claim is not pending verification (status: %s)", claim.Status)
	}
	attemptsToday, err := s.db.CountClaimAttemptsSince(ctx, claim.ID, time.Now().UTC().Add(-24*time.Hour))
	if err != nil {
		return model.ClaimQuestionsResponse{}, err
	}
	if attemptsToday >= DailyAttemptCap {
		return model.ClaimQuestionsResponse{}, model.Errorf(model.KindRateLimited, "Daily verification attempt limit reached (%d per 24h)", DailyAttemptCap)
	}

	questions, err := s.secrets.Questions(ctx, claim.LostItemID)
	if err != nil {
		return model.ClaimQuestionsResponse{}, err
	}
	return model.ClaimQuestionsResponse{ClaimID: claim.ID, Questions: questions}, nil
}

// Verify runs one verification attempt. The fraud gate runs before
// any state is touched; cooldown and the daily cap are then checked
// inside the claim lock before any answer is compared, so a throttled
// caller learns nothing about answer correctness. Passing
// (two or more correct) verifies the claim and moves both items; a
// failure escalates the cooldown ladder and costs trust.
func (s *Service) Verify(ctx context.Context, user model.User, claimID uuid.UUID, req model.VerifyClaimRequest, ip string) (model.VerifyClaimResponse, error) {
	if len(req.Answers) != model.SecretSetSize {
		return model.VerifyClaimResponse{}, model.Invalid(
			fmt.Sprintf("Exactly %d answers are required", model.SecretSetSize),
			model.FieldError{Field: "answers", Message: fmt.Sprintf("expected %d answers, got %d", model.SecretSetSize, len(req.Answers))},
		)
	}
	if _, err := s.gate.Check(ctx, user, "claim_verify", ip); err != nil {
		return model.VerifyClaimResponse{}, err
	}

	var resp model.VerifyClaimResponse
	err := s.db.WithClaimTx(ctx, claimID, func(ct *storage.ClaimTx) error {
		claim := ct.Claim()
		now := time.Now().UTC()

		if claim.ClaimantID != user.ID {
			return model.NewError(model.KindForbidden, "Only the claimant can verify this claim")
		}
		if claim.Status != model.ClaimPending {
			return model.Errorf(model.KindConflict, "Claim is not pending verification (status: %s)", claim.Status)
		}
		if claim.NextAttemptAt != nil && now.Before(*claim.NextAttemptAt) {
			return model.CooldownUntil(*claim.NextAttemptAt, "Verification is cooling down after a failed attempt")
		}
		attemptsToday, err := ct.CountAttemptsSince(ctx, now.Add(-24*time.Hour))
		if err != nil {
			return err
		}
		if attemptsToday >= DailyAttemptCap {
			return model.Errorf(model.KindRateLimited, "Daily verification attempt limit reached (%d per 24h)", DailyAttemptCap)
		}

		bits, err := s.secrets.Verify(ctx, claim.LostItemID, req.Answers)
		if err != nil {
			return err
		}
		correct := 0
		for _, ok := range bits {
			if ok {
				correct++
			}
		}
		passed := correct >= PassThreshold

		status := model.AttemptFailed
		if passed {
			status = model.AttemptPassed
		}
		if _, err := ct.AppendAttempt(ctx, model.VerificationAttempt{
			UserID:         user.ID,
			CorrectAnswers: correct,
			Status:         status,
			IP:             ip,
		}); err != nil {
			return err
		}

		score := float64(correct) / model.SecretSetSize
		if passed {
			if err := ct.RecordVerificationResult(ctx, score, claim.AttemptsMade+1, 0, nil); err != nil {
				return err
			}
			if err := ct.SetStatus(ctx, model.ClaimVerified); err != nil {
				return err
			}
			if err := ct.SetLostItemStatus(ctx, model.LostClaimed); err != nil {
				return err
			}
			if err := ct.SetFoundItemStatus(ctx, model.FoundMatched); err != nil {
				return err
			}
			resp = model.VerifyClaimResponse{Passed: true, Score: correct, Status: model.ClaimVerified}
		} else {
			failures := claim.ConsecutiveFailures + 1
			next := now.Add(cooldownFor(failures))
			if err := ct.RecordVerificationResult(ctx, score, claim.AttemptsMade+1, failures, &next); err != nil {
				return err
			}
			if _, err := ct.ApplyTrustDelta(ctx, user.ID, trust.DeltaFailedVerification, trust.ReasonFailedVerification); err != nil {
				return err
			}
			recentFailures, err := ct.CountUserFailuresSince(ctx, user.ID, now.Add(-FailureWindow))
			if err != nil {
				return err
			}
			if recentFailures > 0 && recentFailures%FailurePatternEvery == 0 {
				if _, err := ct.ApplyTrustDelta(ctx, user.ID, trust.DeltaRepeatedFailedClaims, trust.ReasonRepeatedFailedClaims); err != nil {
					return err
				}
			}
			resp = model.VerifyClaimResponse{Passed: false, Score: correct, Status: model.ClaimPending, NextAttemptAt: &next}
		}

		return ct.RecordAction(ctx, user.ID, model.ActionClaimVerify, ip)
	})
	if err != nil {
		return model.VerifyClaimResponse{}, err
	}

	s.logger.Info("claims: verification attempt",
		"claim_id", claimID, "claimant_id", user.ID, "passed", resp.Passed, "score", resp.Score)
	return resp, nil
}

// Cancel moves a pending or verified claim to cancelled. Cancelling a
// verified claim releases both items and discards any unverified
// handover code.
func (s *Service) Cancel(ctx context.Context, user model.User, claimID uuid.UUID) (model.Claim, error) {
	var out model.Claim
	err := s.db.WithClaimTx(ctx, claimID, func(ct *storage.ClaimTx) error {
		claim := ct.Claim()
		if claim.ClaimantID != user.ID {
			return model.NewError(model.KindForbidden, "Only the claimant can cancel this claim")
		}
		if !model.ValidClaimTransition(claim.Status, model.ClaimCancelled) {
			return model.Errorf(model.KindConflict, "Claim cannot be cancelled (status: %s)", claim.Status)
		}
		if err := ct.SetStatus(ctx, model.ClaimCancelled); err != nil {
			return err
		}
		if claim.Status == model.ClaimVerified {
			h, err := ct.Handover(ctx)
			switch {
			case err == nil:
				if err := ct.DeleteHandover(ctx, h.ID); err != nil {
					return err
				}
			case !errors.Is(err, storage.ErrNotFound):
				return err
			}
			if err := ct.SetLostItemStatus(ctx, model.LostActive); err != nil {
				return err
			}
			if err := ct.SetFoundItemStatus(ctx, model.FoundUnclaimed); err != nil {
				return err
			}
		}
		out = claim
		out.Status = model.ClaimCancelled
		return nil
	})
	if err != nil {
		return model.Claim{}, err
	}
	s.logger.Info("claims: cancelled", "claim_id", claimID, "claimant_id", user.ID)
	return out, nil
}

// OpenDispute forks a claim into the disputed state. Either
// participant may open one; the pre-dispute status is remembered so a
// dismissal can restore it.
func (s *Service) OpenDispute(ctx context.Context, user model.User, claimID uuid.UUID, reason string) (model.Dispute, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return model.Dispute{}, model.Invalid("A dispute reason is required",
			model.FieldError{Field: "reason", Message: "reason is required"})
	}
	if len(reason) > MaxDisputeReasonLen {
		return model.Dispute{}, model.Invalid("Dispute reason is too long",
			model.FieldError{Field: "reason", Message: fmt.Sprintf("reason must be at most %d characters", MaxDisputeReasonLen)})
	}

	var out model.Dispute
	err := s.db.WithClaimTx(ctx, claimID, func(ct *storage.ClaimTx) error {
		claim := ct.Claim()
		if err := s.authorizeParticipant(ctx, user, claim); err != nil {
			return err
		}
		if !claim.Status.Disputable() {
			return model.Errorf(model.KindConflict, "Claim cannot be disputed (status: %s)", claim.Status)
		}

		d, err := ct.InsertDispute(ctx, model.Dispute{
			OpenedBy: user.ID,
			Reason:   reason,
		})
		if err != nil {
			if errors.Is(err, storage.ErrDuplicate) {
				return model.NewError(model.KindConflict, "An open dispute already exists for this claim").WithCause(err)
			}
			return err
		}
		if err := ct.SetStatusBeforeDispute(ctx, &claim.Status); err != nil {
			return err
		}
		if err := ct.SetStatus(ctx, model.ClaimDisputed); err != nil {
			return err
		}
		out = d
		return nil
	})
	if err != nil {
		return model.Dispute{}, err
	}
	s.logger.Info("claims: dispute opened", "claim_id", claimID, "dispute_id", out.ID, "opened_by", user.ID)
	return out, nil
}

// ResolveDispute applies an operator ruling. resolved_owner verifies
// the claim in the claimant's favor; resolved_finder rejects it and
// releases the items; dismissed restores the pre-dispute status.
func (s *Service) ResolveDispute(ctx context.Context, admin model.User, disputeID uuid.UUID, resolution model.DisputeResolution) (model.Dispute, error) {
	if !model.ValidDisputeResolution(resolution) {
		return model.Dispute{}, model.Invalid("Unknown dispute resolution",
			model.FieldError{Field: "resolution", Message: fmt.Sprintf("unknown resolution %q", resolution)})
	}
	dispute, err := s.db.GetDispute(ctx, disputeID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return model.Dispute{}, model.NewError(model.KindNotFound, "Dispute not found").WithCause(err)
		}
		return model.Dispute{}, err
	}

	err = s.db.WithClaimTx(ctx, dispute.ClaimID, func(ct *storage.ClaimTx) error {
		claim := ct.Claim()
		if claim.Status != model.ClaimDisputed {
			return model.Errorf(model.KindConflict, "Claim is not disputed (status: %s)", claim.Status)
		}
		if err := ct.ResolveDispute(ctx, disputeID, admin.ID, resolution); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return model.NewError(model.KindConflict, "Dispute is already resolved").WithCause(err)
			}
			return err
		}

		switch resolution {
		case model.ResolvedOwner:
			if err := ct.SetStatus(ctx, model.ClaimVerified); err != nil {
				return err
			}
			if err := ct.SetLostItemStatus(ctx, model.LostClaimed); err != nil {
				return err
			}
			if err := ct.SetFoundItemStatus(ctx, model.FoundMatched); err != nil {
				return err
			}
			if _, err := ct.ApplyTrustDelta(ctx, claim.ClaimantID, trust.DeltaAccurateReport, trust.ReasonAccurateReport); err != nil {
				return err
			}
		case model.ResolvedFinder:
			if err := ct.SetStatus(ctx, model.ClaimRejected); err != nil {
				return err
			}
			if err := ct.SetLostItemStatus(ctx, model.LostActive); err != nil {
				return err
			}
			if err := ct.SetFoundItemStatus(ctx, model.FoundUnclaimed); err != nil {
				return err
			}
			if _, err := ct.ApplyTrustDelta(ctx, claim.ClaimantID, trust.DeltaScamReported, trust.ReasonScamReported); err != nil {
				return err
			}
		case model.Dismissed:
			restore := model.ClaimPending
			if claim.StatusBeforeDispute != nil {
				restore = *claim.StatusBeforeDispute
			}
			if err := ct.SetStatus(ctx, restore); err != nil {
				return err
			}
			if restore == model.ClaimVerified {
				if err := ct.SetLostItemStatus(ctx, model.LostClaimed); err != nil {
					return err
				}
				if err := ct.SetFoundItemStatus(ctx, model.FoundMatched); err != nil {
					return err
				}
			} else {
				if err := ct.SetLostItemStatus(ctx, model.LostActive); err != nil {
					return err
				}
				if err := ct.SetFoundItemStatus(ctx, model.FoundUnclaimed); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return model.Dispute{}, err
	}

	s.logger.Info("claims: dispute resolved",
		"dispute_id", disputeID, "claim_id", dispute.ClaimID, "resolution", resolution, "resolved_by", admin.ID)
	return s.db.GetDispute(ctx, disputeID)
}

// PostMessage sends a message between claim participants. The body is
// screened once at ingest; flagged messages are stored and delivered
// with their flag terms attached.
func (s *Service) PostMessage(ctx context.Context, user model.User, claimID uuid.UUID, body string) (model.ClaimMessage, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return model.ClaimMessage{}, model.Invalid("A message body is required",
			model.FieldError{Field: "body", Message: "body is required"})
	}
	if len(body) > MaxMessageLen {
		return model.ClaimMessage{}, model.Invalid("Message is too long",
			model.FieldError{Field: "body", Message: fmt.Sprintf("body must be at most %d characters", MaxMessageLen)})
	}

	claim, err := s.db.GetClaim(ctx, claimID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return model.ClaimMessage{}, model.NewError(model.KindNotFound, "Claim not found").WithCause(err)
		}
		return model.ClaimMessage{}, err
	}
	if err := s.authorizeParticipant(ctx, user, claim); err != nil {
		return model.ClaimMessage{}, err
	}

	flagged, terms := fraud.FlagMessage(body)
	msg, err := s.db.CreateClaimMessage(ctx, model.ClaimMessage{
		ClaimID:   claim.ID,
		SenderID:  user.ID,
		Body:      body,
		Flagged:   flagged,
		FlagTerms: terms,
	})
	if err != nil {
		return model.ClaimMessage{}, err
	}
	if flagged {
		s.logger.Warn("claims: message flagged",
			"claim_id", claim.ID, "sender_id", user.ID, "terms", terms)
	}
	return msg, nil
}

// ListMessages returns the message thread for a claim participant.
func (s *Service) ListMessages(ctx context.Context, user model.User, claimID uuid.UUID, limit, offset int) ([]model.ClaimMessage, error) {
	claim, err := s.db.GetClaim(ctx, claimID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, model.NewError(model.KindNotFound, "Claim not found").WithCause(err)
		}
		return nil, err
	}
	if err := s.authorizeParticipant(ctx, user, claim); err != nil {
		return nil, err
	}
	return s.db.ListClaimMessages(ctx, claimID, limit, offset)
}

// authorizeParticipant admits the claimant, the finder of the bound
// found item, and admins.
func (s *Service) authorizeParticipant(ctx context.Context, user model.User, claim model.Claim) error {
	if user.Role == model.RoleAdmin || claim.ClaimantID == user.ID {
		return nil
	}
	found, err := s.db.GetFoundItem(ctx, claim.FoundItemID)
	if err != nil {
		return err
	}
	if found.UserID == user.ID {
		return nil
	}
	return model.NewError(model.KindForbidden, "You are not a participant in this claim")
}
