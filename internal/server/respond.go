package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/byaboneka/byaboneka/internal/model"
	"github.com/byaboneka/byaboneka/internal/storage"
)

// writeJSON writes a success envelope.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(model.Response{Success: true, Data: data})
}

// writeError writes an error envelope with a plain message.
func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(model.ErrorResponse{Success: false, Message: message})
}

// writeAppError maps a service error onto the envelope. Typed errors
// carry their own status, message, and field details; anything else is
// an internal error with a generic message, and storage.ErrNotFound
// surfaces as 404 when a service let it through unwrapped.
func writeAppError(w http.ResponseWriter, err error) {
	if appErr, ok := model.AsError(err); ok {
		if !appErr.RetryAt.IsZero() {
			retryAfter := int(time.Until(appErr.RetryAt).Seconds())
			if retryAfter < 1 {
				retryAfter = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(appErr.Kind.HTTPStatus())
		_ = json.NewEncoder(w).Encode(model.ErrorResponse{
			Success: false,
			Message: appErr.Message,
			Errors:  appErr.Fields,
		})
		return
	}
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Not found")
		return
	}
	writeError(w, http.StatusInternalServerError, "Internal server error")
}

// decodeJSON decodes a JSON request body, rejecting unknown fields.
func decodeJSON(r *http.Request, target any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(target); err != nil {
		return model.NewError(model.KindInvalidInput, "Invalid request body").WithCause(err)
	}
	return nil
}

// pathUUID parses a UUID path segment.
func pathUUID(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(r.PathValue(name))
	if err != nil {
		return uuid.Nil, model.Errorf(model.KindInvalidInput, "Invalid %s", name)
	}
	return id, nil
}

// listParams extracts limit/offset query parameters with bounds.
func listParams(r *http.Request, defaultLimit, maxLimit int) (limit, offset int) {
	limit = defaultLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}
	return limit, offset
}

// requestUser returns the authenticated user or panics; the auth
// middleware guarantees presence on protected routes.
func requestUser(r *http.Request) model.User {
	u, ok := UserFromContext(r.Context())
	if !ok {
		panic(fmt.Sprintf("no authenticated user on %s %s", r.Method, r.URL.Path))
	}
	return u
}
