package server

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/byaboneka/byaboneka/internal/jobs"
	"github.com/byaboneka/byaboneka/internal/model"
	"github.com/byaboneka/byaboneka/internal/notify"
)

// HandleMintHandoverCode mints the handover code for a verified claim.
// The plaintext code appears in this response and nowhere else.
func (h *Handlers) HandleMintHandoverCode(w http.ResponseWriter, r *http.Request) {
	user := requestUser(r)
	id, err := pathUUID(r, "id")
	if err != nil {
		writeAppError(w, err)
		return
	}
	resp, err := h.handover.Mint(r.Context(), user, id)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

// HandleRedeemHandoverCode lets the finder confirm the physical
// handover by entering the code the owner read out. Both parties are
// notified on success.
func (h *Handlers) HandleRedeemHandoverCode(w http.ResponseWriter, r *http.Request) {
	user := requestUser(r)
	id, err := pathUUID(r, "id")
	if err != nil {
		writeAppError(w, err)
		return
	}
	var req model.RedeemOTPRequest
	if err := decodeJSON(r, &req); err != nil {
		writeAppError(w, err)
		return
	}

	resp, err := h.handover.Redeem(r.Context(), user, id, req.OTP, clientIP(r))
	if err != nil {
		writeAppError(w, err)
		return
	}

	h.notifyHandoverDone(id)
	writeJSON(w, http.StatusOK, resp)
}

// HandleHandoverStatus reports handover progress without exposing any
// code material.
func (h *Handlers) HandleHandoverStatus(w http.ResponseWriter, r *http.Request) {
	user := requestUser(r)
	id, err := pathUUID(r, "id")
	if err != nil {
		writeAppError(w, err)
		return
	}
	resp, err := h.handover.Status(r.Context(), user, id)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// notifyHandoverDone queues confirmation emails to the claimant and
// the finder after a successful redemption.
func (h *Handlers) notifyHandoverDone(claimID uuid.UUID) {
	h.queue.Enqueue(jobs.Task{
		Name: "notify_handover_done",
		Run: func(taskCtx context.Context) error {
			claim, err := h.db.GetClaim(taskCtx, claimID)
			if err != nil {
				return err
			}
			found, err := h.db.GetFoundItem(taskCtx, claim.FoundItemID)
			if err != nil {
				return err
			}
			subject, body := notify.HandoverConfirmed(found.Title)
			for _, id := range []uuid.UUID{claim.ClaimantID, found.UserID} {
				u, err := h.db.GetUser(taskCtx, id)
				if err != nil {
					continue
				}
				if err := h.notifier.Send(taskCtx, u.Email, subject, body); err != nil {
					h.logger.Warn("notify handover failed", "user_id", id, "error", err)
				}
			}
			return nil
		},
	})
}
