package server

import (
	"net/http"
	"strings"

	"github.com/byaboneka/byaboneka/internal/model"
	"github.com/byaboneka/byaboneka/internal/trust"
)

const maxScamReportReasonLen = 1000

// HandleMe returns the caller's profile.
func (h *Handlers) HandleMe(w http.ResponseWriter, r *http.Request) {
	user := requestUser(r)
	writeJSON(w, http.StatusOK, profileFor(user))
}

// HandleMyTrust returns the caller's trust score, tier, caps, and
// recent ledger events.
func (h *Handlers) HandleMyTrust(w http.ResponseWriter, r *http.Request) {
	user := requestUser(r)
	events, err := h.db.ListTrustEvents(r.Context(), user.ID, 50)
	if err != nil {
		writeAppError(w, err)
		return
	}
	tier := trust.TierFor(user.TrustScore)
	writeJSON(w, http.StatusOK, model.TrustSummary{
		Score:     user.TrustScore,
		Tier:      string(tier),
		ClaimCap:  tier.ClaimCap(),
		ReportCap: tier.ReportCap(),
		Events:    events,
	})
}

// HandleCreateScamReport files a scam report against another user. The
// report counts against the caller's tier report cap; resolution and
// any trust consequences are operator decisions.
func (h *Handlers) HandleCreateScamReport(w http.ResponseWriter, r *http.Request) {
	user := requestUser(r)
	var req model.CreateScamReportRequest
	if err := decodeJSON(r, &req); err != nil {
		writeAppError(w, err)
		return
	}

	reason := strings.TrimSpace(req.Reason)
	var fields []model.FieldError
	if reason == "" {
		fields = append(fields, model.FieldError{Field: "reason", Message: "reason is required"})
	} else if len(reason) > maxScamReportReasonLen {
		fields = append(fields, model.FieldError{Field: "reason", Message: "reason is too long"})
	}
	if req.ReportedUserID == user.ID {
		fields = append(fields, model.FieldError{Field: "reported_user_id", Message: "you cannot report yourself"})
	}
	if len(fields) > 0 {
		writeAppError(w, model.Invalid("Validation failed", fields...))
		return
	}

	if _, err := h.db.GetUser(r.Context(), req.ReportedUserID); err != nil {
		writeAppError(w, err)
		return
	}
	if req.ClaimID != nil {
		claim, err := h.db.GetClaim(r.Context(), *req.ClaimID)
		if err != nil {
			writeAppError(w, err)
			return
		}
		if claim.ClaimantID != user.ID {
			found, err := h.db.GetFoundItem(r.Context(), claim.FoundItemID)
			if err != nil || found.UserID != user.ID {
				writeError(w, http.StatusForbidden, "You are not a participant in this claim")
				return
			}
		}
	}

	if err := h.checkReportCap(r, user, model.ActionScamReportFiled); err != nil {
		writeAppError(w, err)
		return
	}

	report, err := h.db.CreateScamReport(r.Context(), model.ScamReport{
		ReporterID:     user.ID,
		ReportedUserID: req.ReportedUserID,
		ClaimID:        req.ClaimID,
		Reason:         reason,
	})
	if err != nil {
		h.logger.Error("create scam report", "reporter_id", user.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	h.recordPublication(r, user, model.ActionScamReportFiled)
	writeJSON(w, http.StatusCreated, report)
}

// HandleListCooperatives lists registered transport cooperatives so
// finders can say where an item was deposited.
func (h *Handlers) HandleListCooperatives(w http.ResponseWriter, r *http.Request) {
	coops, err := h.db.ListCooperatives(r.Context())
	if err != nil {
		writeAppError(w, err)
		return
	}
	if coops == nil {
		coops = []model.Cooperative{}
	}
	writeJSON(w, http.StatusOK, coops)
}
