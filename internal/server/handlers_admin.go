package server

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/byaboneka/byaboneka/internal/jobs"
	"github.com/byaboneka/byaboneka/internal/model"
	"github.com/byaboneka/byaboneka/internal/notify"
	"github.com/byaboneka/byaboneka/internal/storage"
	"github.com/byaboneka/byaboneka/internal/trust"
)

// HandleResolveDispute applies an operator ruling to a disputed claim.
func (h *Handlers) HandleResolveDispute(w http.ResponseWriter, r *http.Request) {
	admin := requestUser(r)
	id, err := pathUUID(r, "id")
	if err != nil {
		writeAppError(w, err)
		return
	}
	var req model.ResolveDisputeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeAppError(w, err)
		return
	}
	dispute, err := h.claims.ResolveDispute(r.Context(), admin, id, req.Resolution)
	if err != nil {
		writeAppError(w, err)
		return
	}

	h.notifyDisputeResolved(dispute.ClaimID, string(req.Resolution))
	writeJSON(w, http.StatusOK, dispute)
}

// notifyDisputeResolved queues the resolution email to both claim
// participants.
func (h *Handlers) notifyDisputeResolved(claimID uuid.UUID, resolution string) {
	h.queue.Enqueue(jobs.Task{
		Name: "notify_dispute_resolved",
		Run: func(taskCtx context.Context) error {
			claim, err := h.db.GetClaim(taskCtx, claimID)
			if err != nil {
				return err
			}
			found, err := h.db.GetFoundItem(taskCtx, claim.FoundItemID)
			if err != nil {
				return err
			}
			subject, body := notify.DisputeResolved(found.Title, resolution)
			for _, userID := range []uuid.UUID{claim.ClaimantID, found.UserID} {
				u, err := h.db.GetUser(taskCtx, userID)
				if err != nil {
					return err
				}
				if err := h.notifier.Send(taskCtx, u.Email, subject, body); err != nil {
					return err
				}
			}
			return nil
		},
	})
}

// HandleResolveScamReport rules on a scam report. Confirming applies
// the scam penalty to the reported user and credits the reporter;
// dismissing penalizes the reporter for the false report.
func (h *Handlers) HandleResolveScamReport(w http.ResponseWriter, r *http.Request) {
	admin := requestUser(r)
	id, err := pathUUID(r, "id")
	if err != nil {
		writeAppError(w, err)
		return
	}
	var req model.ResolveScamReportRequest
	if err := decodeJSON(r, &req); err != nil {
		writeAppError(w, err)
		return
	}
	if req.Outcome != model.ScamReportConfirmed && req.Outcome != model.ScamReportDismissed {
		writeAppError(w, model.Invalid("Validation failed",
			model.FieldError{Field: "outcome", Message: "outcome must be confirmed or dismissed"}))
		return
	}

	report, err := h.db.GetScamReport(r.Context(), id)
	if err != nil {
		writeAppError(w, err)
		return
	}
	if report.Status != model.ScamReportOpen {
		writeError(w, http.StatusConflict, "Scam report is already resolved")
		return
	}

	var deltas []storage.TrustDeltaRequest
	if req.Outcome == model.ScamReportConfirmed {
		deltas = []storage.TrustDeltaRequest{
			{UserID: report.ReportedUserID, Delta: trust.DeltaScamConfirmed, Reason: trust.ReasonScamConfirmed},
			{UserID: report.ReporterID, Delta: trust.DeltaAccurateReport, Reason: trust.ReasonAccurateReport},
		}
	} else {
		deltas = []storage.TrustDeltaRequest{
			{UserID: report.ReporterID, Delta: trust.DeltaFalseScamReport, Reason: trust.ReasonFalseScamReport},
		}
	}

	if _, err := h.db.ResolveScamReport(r.Context(), id, admin.ID, req.Outcome, deltas); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusConflict, "Scam report is already resolved")
			return
		}
		writeAppError(w, err)
		return
	}

	resolved, err := h.db.GetScamReport(r.Context(), id)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resolved)
}

// HandleBanUser suspends an account. Refresh tokens are revoked so the
// ban holds once the current access token expires; the auth middleware
// blocks the account immediately regardless.
func (h *Handlers) HandleBanUser(w http.ResponseWriter, r *http.Request) {
	admin := requestUser(r)
	id, err := pathUUID(r, "id")
	if err != nil {
		writeAppError(w, err)
		return
	}
	var req model.BanUserRequest
	if err := decodeJSON(r, &req); err != nil {
		writeAppError(w, err)
		return
	}
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		writeAppError(w, model.Invalid("Validation failed",
			model.FieldError{Field: "reason", Message: "reason is required"}))
		return
	}
	if id == admin.ID {
		writeError(w, http.StatusConflict, "You cannot ban your own account")
		return
	}

	if err := h.db.SetUserBanned(r.Context(), id, true, &reason); err != nil {
		writeAppError(w, err)
		return
	}
	if err := h.db.RevokeUserRefreshTokens(r.Context(), id); err != nil {
		h.logger.Error("revoke tokens on ban", "user_id", id, "error", err)
	}
	h.logger.Info("user banned", "user_id", id, "admin_id", admin.ID, "reason", reason)
	writeJSON(w, http.StatusOK, map[string]any{"user_id": id, "banned": true})
}

// HandleUnbanUser lifts a suspension.
func (h *Handlers) HandleUnbanUser(w http.ResponseWriter, r *http.Request) {
	admin := requestUser(r)
	id, err := pathUUID(r, "id")
	if err != nil {
		writeAppError(w, err)
		return
	}
	if err := h.db.SetUserBanned(r.Context(), id, false, nil); err != nil {
		writeAppError(w, err)
		return
	}
	h.logger.Info("user unbanned", "user_id", id, "admin_id", admin.ID)
	writeJSON(w, http.StatusOK, map[string]any{"user_id": id, "banned": false})
}

// HandleRecalculateTrust replays a user's trust ledger and compares the
// result against the materialized score.
func (h *Handlers) HandleRecalculateTrust(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeAppError(w, err)
		return
	}
	stored, recomputed, err := h.db.RecomputeTrust(r.Context(), id)
	if err != nil {
		writeAppError(w, err)
		return
	}
	if stored != recomputed {
		h.logger.Error("trust score drift", "user_id", id, "stored", stored, "recomputed", recomputed)
	}
	writeJSON(w, http.StatusOK, model.RecalculateTrustResponse{
		UserID:     id,
		Stored:     stored,
		Recomputed: recomputed,
		Consistent: stored == recomputed,
	})
}

// HandleListAuditEvents lists audit events, optionally filtered by
// entity type.
func (h *Handlers) HandleListAuditEvents(w http.ResponseWriter, r *http.Request) {
	limit, offset := listParams(r, 50, 200)
	entityType := r.URL.Query().Get("entity_type")
	events, err := h.db.ListAuditEvents(r.Context(), entityType, limit+1, offset)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeList(w, events, limit, offset)
}

// HandleCreateCooperative registers a transport cooperative.
func (h *Handlers) HandleCreateCooperative(w http.ResponseWriter, r *http.Request) {
	var req model.CreateCooperativeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeAppError(w, err)
		return
	}
	name := strings.TrimSpace(req.Name)
	code := strings.ToUpper(strings.TrimSpace(req.Code))
	var fields []model.FieldError
	if name == "" {
		fields = append(fields, model.FieldError{Field: "name", Message: "name is required"})
	}
	if code == "" {
		fields = append(fields, model.FieldError{Field: "code", Message: "code is required"})
	}
	if len(fields) > 0 {
		writeAppError(w, model.Invalid("Validation failed", fields...))
		return
	}

	coop, err := h.db.CreateCooperative(r.Context(), model.Cooperative{Name: name, Code: code})
	if err != nil {
		if errors.Is(err, storage.ErrDuplicate) {
			writeError(w, http.StatusConflict, "A cooperative with this code already exists")
			return
		}
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, coop)
}
