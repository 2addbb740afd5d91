package server

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/byaboneka/byaboneka/internal/analyzer"
	"github.com/byaboneka/byaboneka/internal/jobs"
	"github.com/byaboneka/byaboneka/internal/model"
	"github.com/byaboneka/byaboneka/internal/notify"
	"github.com/byaboneka/byaboneka/internal/secrets"
	"github.com/byaboneka/byaboneka/internal/trust"
)

// HandleCreateLostItem publishes a lost item with its three
// verification questions. Keywords are derived server-side; answers
// are hashed and the plaintext discarded.
func (h *Handlers) HandleCreateLostItem(w http.ResponseWriter, r *http.Request) {
	user := requestUser(r)
	var req model.CreateLostItemRequest
	if err := decodeJSON(r, &req); err != nil {
		writeAppError(w, err)
		return
	}

	fields := validateItemFields(req.Category, req.Title, req.Description, req.LocationArea, "lost_date", req.LostDate)
	if len(req.VerificationQuestions) != model.SecretSetSize {
		fields = append(fields, model.FieldError{
			Field:   "verification_questions",
			Message: fmt.Sprintf("exactly %d question-answer pairs are required", model.SecretSetSize),
		})
	}
	if len(fields) > 0 {
		writeAppError(w, model.Invalid("Validation failed", fields...))
		return
	}

	if err := h.checkReportCap(r, user, model.ActionLostItemCreated); err != nil {
		writeAppError(w, err)
		return
	}

	secretSet, err := secrets.BuildSet(req.VerificationQuestions)
	if err != nil {
		writeAppError(w, model.Invalid("Invalid verification questions",
			model.FieldError{Field: "verification_questions", Message: err.Error()}))
		return
	}

	item, err := h.db.CreateLostItem(r.Context(), model.LostItem{
		UserID:       user.ID,
		Category:     req.Category,
		Title:        strings.TrimSpace(req.Title),
		Description:  strings.TrimSpace(req.Description),
		LocationArea: strings.TrimSpace(req.LocationArea),
		LostDate:     req.LostDate,
		Keywords:     analyzer.Keywords(req.Title + " " + req.Description),
	}, secretSet)
	if err != nil {
		h.logger.Error("create lost item", "user_id", user.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	h.recordPublication(r, user, model.ActionLostItemCreated)
	lostID := item.ID
	h.queue.Enqueue(jobs.Task{
		Name: "match_lost_item",
		Run: func(taskCtx context.Context) error {
			return h.matcher.RefreshLost(taskCtx, lostID)
		},
	})

	writeJSON(w, http.StatusCreated, item)
}

// HandleCreateFoundItem publishes a found item. Cooperative staff
// publish on behalf of their cooperative.
func (h *Handlers) HandleCreateFoundItem(w http.ResponseWriter, r *http.Request) {
	user := requestUser(r)
	var req model.CreateFoundItemRequest
	if err := decodeJSON(r, &req); err != nil {
		writeAppError(w, err)
		return
	}

	fields := validateItemFields(req.Category, req.Title, req.Description, req.LocationArea, "found_date", req.FoundDate)
	if len(req.ImageURLs) > model.MaxImageURLs {
		fields = append(fields, model.FieldError{
			Field:   "image_urls",
			Message: fmt.Sprintf("at most %d image URLs are allowed", model.MaxImageURLs),
		})
	}
	for i, raw := range req.ImageURLs {
		if err := model.ValidateImageURL(raw); err != nil {
			fields = append(fields, model.FieldError{
				Field:   fmt.Sprintf("image_urls[%d]", i),
				Message: err.Error(),
			})
		}
	}
	if len(fields) > 0 {
		writeAppError(w, model.Invalid("Validation failed", fields...))
		return
	}

	if err := h.checkReportCap(r, user, model.ActionFoundItemCreated); err != nil {
		writeAppError(w, err)
		return
	}

	source := model.SourceCitizen
	var coopID *uuid.UUID
	if user.Role == model.RoleCoopStaff && user.CooperativeID != nil {
		source = model.SourceCooperative
		coopID = user.CooperativeID
	}

	item, err := h.db.CreateFoundItem(r.Context(), model.FoundItem{
		UserID:        user.ID,
		CooperativeID: coopID,
		Category:      req.Category,
		Title:         strings.TrimSpace(req.Title),
		Description:   strings.TrimSpace(req.Description),
		LocationArea:  strings.TrimSpace(req.LocationArea),
		FoundDate:     req.FoundDate,
		Source:        source,
		ImageURLs:     req.ImageURLs,
		Keywords:      analyzer.Keywords(req.Title + " " + req.Description),
	})
	if err != nil {
		h.logger.Error("create found item", "user_id", user.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	h.recordPublication(r, user, model.ActionFoundItemCreated)
	found := item
	h.queue.Enqueue(jobs.Task{
		Name: "match_found_item",
		Run: func(taskCtx context.Context) error {
			return h.matcher.RefreshForFound(taskCtx, found)
		},
	})
	h.notifyMatchedOwners(found)

	writeJSON(w, http.StatusCreated, item)
}

// HandleGetLostItem returns one of the caller's lost items.
func (h *Handlers) HandleGetLostItem(w http.ResponseWriter, r *http.Request) {
	user := requestUser(r)
	id, err := pathUUID(r, "id")
	if err != nil {
		writeAppError(w, err)
		return
	}
	item, err := h.db.GetLostItem(r.Context(), id)
	if err != nil {
		writeAppError(w, err)
		return
	}
	if item.UserID != user.ID && user.Role != model.RoleAdmin {
		writeError(w, http.StatusForbidden, "You do not own this item")
		return
	}
	writeJSON(w, http.StatusOK, item)
}

// HandleListLostItems lists the caller's lost items.
func (h *Handlers) HandleListLostItems(w http.ResponseWriter, r *http.Request) {
	user := requestUser(r)
	limit, offset := listParams(r, 20, 100)
	items, err := h.db.ListLostItemsByUser(r.Context(), user.ID, limit+1, offset)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeList(w, items, limit, offset)
}

// HandleGetFoundItem returns one found item. Found items are readable
// by any authenticated user; that is what makes claiming possible.
func (h *Handlers) HandleGetFoundItem(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeAppError(w, err)
		return
	}
	item, err := h.db.GetFoundItem(r.Context(), id)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

// HandleListFoundItems lists the caller's found items.
func (h *Handlers) HandleListFoundItems(w http.ResponseWriter, r *http.Request) {
	user := requestUser(r)
	limit, offset := listParams(r, 20, 100)
	items, err := h.db.ListFoundItemsByUser(r.Context(), user.ID, limit+1, offset)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeList(w, items, limit, offset)
}

// HandleLostItemMatches returns cached matches for the caller's lost
// item, joined with the counterpart found items.
func (h *Handlers) HandleLostItemMatches(w http.ResponseWriter, r *http.Request) {
	user := requestUser(r)
	id, err := pathUUID(r, "id")
	if err != nil {
		writeAppError(w, err)
		return
	}
	item, err := h.db.GetLostItem(r.Context(), id)
	if err != nil {
		writeAppError(w, err)
		return
	}
	if item.UserID != user.ID && user.Role != model.RoleAdmin {
		writeError(w, http.StatusForbidden, "You do not own this item")
		return
	}

	results, err := h.matcher.MatchesForLost(r.Context(), item)
	if err != nil {
		writeAppError(w, err)
		return
	}
	matches := make([]model.Match, 0, len(results))
	for _, res := range results {
		found, err := h.db.GetFoundItem(r.Context(), res.FoundItemID)
		if err != nil {
			continue
		}
		matches = append(matches, model.Match{Score: res.Score, Explanations: res.Explanations, FoundItem: &found})
	}
	writeJSON(w, http.StatusOK, matches)
}

// HandleFoundItemMatches returns matches for the caller's found item,
// computed synchronously.
func (h *Handlers) HandleFoundItemMatches(w http.ResponseWriter, r *http.Request) {
	user := requestUser(r)
	id, err := pathUUID(r, "id")
	if err != nil {
		writeAppError(w, err)
		return
	}
	item, err := h.db.GetFoundItem(r.Context(), id)
	if err != nil {
		writeAppError(w, err)
		return
	}
	if item.UserID != user.ID && user.Role != model.RoleAdmin {
		writeError(w, http.StatusForbidden, "You do not own this item")
		return
	}

	results, err := h.matcher.MatchesForFound(r.Context(), item)
	if err != nil {
		writeAppError(w, err)
		return
	}
	matches := make([]model.Match, 0, len(results))
	for _, res := range results {
		lost, err := h.db.GetLostItem(r.Context(), res.LostItemID)
		if err != nil {
			continue
		}
		matches = append(matches, model.Match{Score: res.Score, Explanations: res.Explanations, LostItem: &lost})
	}
	writeJSON(w, http.StatusOK, matches)
}

// checkReportCap enforces the tier report cap and the fraud gate for a
// publication.
func (h *Handlers) checkReportCap(r *http.Request, user model.User, action string) error {
	tier := trust.TierFor(user.TrustScore)
	tierCap := tier.ReportCap()
	if tierCap == 0 {
		return model.NewError(model.KindForbidden, "Your account cannot publish reports")
	}
	recent, err := h.db.CountUserActionsSince(r.Context(), user.ID,
		[]string{model.ActionLostItemCreated, model.ActionFoundItemCreated, model.ActionScamReportFiled},
		time.Now().UTC().Add(-24*time.Hour))
	if err != nil {
		return err
	}
	if recent >= tierCap {
		return model.Errorf(model.KindRateLimited, "Report limit reached for your trust tier (%d per 24h)", tierCap)
	}
	if _, err := h.gate.Check(r.Context(), user, action, clientIP(r)); err != nil {
		return err
	}
	return nil
}

func (h *Handlers) recordPublication(r *http.Request, user model.User, action string) {
	if err := h.db.RecordAction(r.Context(), user.ID, action, clientIP(r)); err != nil {
		h.logger.Warn("record publication action failed", "user_id", user.ID, "action", action, "error", err)
	}
}

// notifyMatchedOwners queues owner notifications for strong matches of
// a fresh found item.
func (h *Handlers) notifyMatchedOwners(found model.FoundItem) {
	h.queue.Enqueue(jobs.Task{
		Name: "notify_matched_owners",
		Run: func(taskCtx context.Context) error {
			results, err := h.matcher.MatchesForFound(taskCtx, found)
			if err != nil {
				return err
			}
			for _, res := range results {
				lost, err := h.db.GetLostItem(taskCtx, res.LostItemID)
				if err != nil {
					continue
				}
				owner, err := h.db.GetUser(taskCtx, lost.UserID)
				if err != nil {
					continue
				}
				subject, body := notify.MatchFound(lost.Title, res.Score)
				if err := h.notifier.Send(taskCtx, owner.Email, subject, body); err != nil {
					h.logger.Warn("notify matched owner failed", "lost_item_id", lost.ID, "error", err)
				}
			}
			return nil
		},
	})
}

func validateItemFields(category model.Category, title, description, area, dateField string, date time.Time) []model.FieldError {
	var fields []model.FieldError
	if !model.ValidCategory(category) {
		fields = append(fields, model.FieldError{Field: "category", Message: fmt.Sprintf("unknown category %q", category)})
	}
	if err := model.ValidateTitle(title); err != nil {
		fields = append(fields, model.FieldError{Field: "title", Message: err.Error()})
	}
	if err := model.ValidateDescription(description); err != nil {
		fields = append(fields, model.FieldError{Field: "description", Message: err.Error()})
	}
	if err := model.ValidateLocationArea(area); err != nil {
		fields = append(fields, model.FieldError{Field: "location_area", Message: err.Error()})
	}
	if err := model.ValidateItemDate(dateField, date, time.Now().UTC()); err != nil {
		fields = append(fields, model.FieldError{Field: dateField, Message: err.Error()})
	}
	return fields
}

// writeList writes a paginated list envelope using the limit+1 probe
// pattern: callers fetch one extra row to learn whether more exist.
func writeList[T any](w http.ResponseWriter, items []T, limit, offset int) {
	hasMore := len(items) > limit
	if hasMore {
		items = items[:limit]
	}
	if items == nil {
		items = []T{}
	}
	writeJSON(w, http.StatusOK, model.ListResponse{
		Items:   items,
		Total:   offset + len(items),
		HasMore: hasMore,
		Limit:   limit,
		Offset:  offset,
	})
}
