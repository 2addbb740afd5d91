package server

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/byaboneka/byaboneka/internal/jobs"
	"github.com/byaboneka/byaboneka/internal/model"
	"github.com/byaboneka/byaboneka/internal/notify"
)

// HandleOpenClaim opens a claim linking the caller's lost item to a
// found item. The finder is notified asynchronously.
func (h *Handlers) HandleOpenClaim(w http.ResponseWriter, r *http.Request) {
	user := requestUser(r)
	var req model.OpenClaimRequest
	if err := decodeJSON(r, &req); err != nil {
		writeAppError(w, err)
		return
	}

	claim, err := h.claims.Open(r.Context(), user, req, clientIP(r))
	if err != nil {
		writeAppError(w, err)
		return
	}

	h.notifyClaimEvent(claim.FoundItemID, notify.ClaimOpened)
	writeJSON(w, http.StatusCreated, claim)
}

// HandleGetClaim returns one claim visible to the caller.
func (h *Handlers) HandleGetClaim(w http.ResponseWriter, r *http.Request) {
	user := requestUser(r)
	id, err := pathUUID(r, "id")
	if err != nil {
		writeAppError(w, err)
		return
	}
	claim, err := h.claims.Get(r.Context(), user, id)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, claim)
}

// HandleListClaims lists claims the caller participates in.
func (h *Handlers) HandleListClaims(w http.ResponseWriter, r *http.Request) {
	user := requestUser(r)
	limit, offset := listParams(r, 20, 100)
	claims, err := h.claims.ListForUser(r.Context(), user.ID, limit+1, offset)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeList(w, claims, limit, offset)
}

// HandleClaimQuestions returns the verification questions for a claim.
func (h *Handlers) HandleClaimQuestions(w http.ResponseWriter, r *http.Request) {
	user := requestUser(r)
	id, err := pathUUID(r, "id")
	if err != nil {
		writeAppError(w, err)
		return
	}
	questions, err := h.claims.Questions(r.Context(), user, id)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, questions)
}

// HandleVerifyClaim grades the claimant's answers. On a pass the finder
// is notified so the handover can be arranged.
func (h *Handlers) HandleVerifyClaim(w http.ResponseWriter, r *http.Request) {
	user := requestUser(r)
	id, err := pathUUID(r, "id")
	if err != nil {
		writeAppError(w, err)
		return
	}
	var req model.VerifyClaimRequest
	if err := decodeJSON(r, &req); err != nil {
		writeAppError(w, err)
		return
	}

	result, err := h.claims.Verify(r.Context(), user, id, req, clientIP(r))
	if err != nil {
		writeAppError(w, err)
		return
	}

	if result.Passed {
		if claim, err := h.db.GetClaim(r.Context(), id); err == nil {
			h.notifyClaimEvent(claim.FoundItemID, notify.ClaimVerified)
		}
	}
	writeJSON(w, http.StatusOK, result)
}

// HandleCancelClaim cancels the caller's own claim.
func (h *Handlers) HandleCancelClaim(w http.ResponseWriter, r *http.Request) {
	user := requestUser(r)
	id, err := pathUUID(r, "id")
	if err != nil {
		writeAppError(w, err)
		return
	}
	claim, err := h.claims.Cancel(r.Context(), user, id)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, claim)
}

// HandleOpenDispute opens a dispute on a claim.
func (h *Handlers) HandleOpenDispute(w http.ResponseWriter, r *http.Request) {
	user := requestUser(r)
	id, err := pathUUID(r, "id")
	if err != nil {
		writeAppError(w, err)
		return
	}
	var req model.OpenDisputeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeAppError(w, err)
		return
	}
	dispute, err := h.claims.OpenDispute(r.Context(), user, id, req.Reason)
	if err != nil {
		writeAppError(w, err)
		return
	}

	h.notifyDisputeOpened(id, user.ID)
	writeJSON(w, http.StatusCreated, dispute)
}

// HandlePostClaimMessage posts a message on a claim thread.
func (h *Handlers) HandlePostClaimMessage(w http.ResponseWriter, r *http.Request) {
	user := requestUser(r)
	id, err := pathUUID(r, "id")
	if err != nil {
		writeAppError(w, err)
		return
	}
	var req model.PostMessageRequest
	if err := decodeJSON(r, &req); err != nil {
		writeAppError(w, err)
		return
	}
	msg, err := h.claims.PostMessage(r.Context(), user, id, req.Body)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}

// HandleListClaimMessages lists a claim's message thread.
func (h *Handlers) HandleListClaimMessages(w http.ResponseWriter, r *http.Request) {
	user := requestUser(r)
	id, err := pathUUID(r, "id")
	if err != nil {
		writeAppError(w, err)
		return
	}
	limit, offset := listParams(r, 50, 200)
	msgs, err := h.claims.ListMessages(r.Context(), user, id, limit+1, offset)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeList(w, msgs, limit, offset)
}

// notifyDisputeOpened queues an email to the dispute's counterparty:
// the finder when the claimant disputed, the claimant otherwise.
func (h *Handlers) notifyDisputeOpened(claimID, actorID uuid.UUID) {
	h.queue.Enqueue(jobs.Task{
		Name: "notify_dispute_opened",
		Run: func(taskCtx context.Context) error {
			claim, err := h.db.GetClaim(taskCtx, claimID)
			if err != nil {
				return err
			}
			found, err := h.db.GetFoundItem(taskCtx, claim.FoundItemID)
			if err != nil {
				return err
			}
			otherID := claim.ClaimantID
			if otherID == actorID {
				otherID = found.UserID
			}
			other, err := h.db.GetUser(taskCtx, otherID)
			if err != nil {
				return err
			}
			subject, body := notify.DisputeOpened(found.Title)
			return h.notifier.Send(taskCtx, other.Email, subject, body)
		},
	})
}

// notifyClaimEvent queues an email to the holder of a found item using
// the given message builder.
func (h *Handlers) notifyClaimEvent(foundItemID uuid.UUID, build func(string) (subject, body string)) {
	h.queue.Enqueue(jobs.Task{
		Name: "notify_claim_event",
		Run: func(taskCtx context.Context) error {
			found, err := h.db.GetFoundItem(taskCtx, foundItemID)
			if err != nil {
				return err
			}
			finder, err := h.db.GetUser(taskCtx, found.UserID)
			if err != nil {
				return err
			}
			subject, body := build(found.Title)
			return h.notifier.Send(taskCtx, finder.Email, subject, body)
		},
	})
}
