package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/byaboneka/byaboneka/internal/model"
	"github.com/byaboneka/byaboneka/internal/storage"
	"github.com/byaboneka/byaboneka/internal/testutil"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRequestIDMiddleware(t *testing.T) {
	var seen string
	handler := requestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
	}))

	t.Run("generates when absent", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

		got := rec.Header().Get("X-Request-ID")
		require.NotEmpty(t, got)
		_, err := uuid.Parse(got)
		assert.NoError(t, err)
		assert.Equal(t, got, seen)
	})

	t.Run("echoes caller-provided id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		req.Header.Set("X-Request-ID", "req-123")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, "req-123", rec.Header().Get("X-Request-ID"))
		assert.Equal(t, "req-123", seen)
	})
}

func TestSecurityHeadersMiddleware(t *testing.T) {
	rec := httptest.NewRecorder()
	securityHeadersMiddleware(okHandler()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.Equal(t, "no-referrer", rec.Header().Get("Referrer-Policy"))
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
}

func TestCORSMiddleware(t *testing.T) {
	allowed := []string{"https://app.byaboneka.rw"}

	t.Run("allowed origin gets headers", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/cooperatives", nil)
		req.Header.Set("Origin", "https://app.byaboneka.rw")
		rec := httptest.NewRecorder()
		corsMiddleware(allowed, okHandler()).ServeHTTP(rec, req)

		assert.Equal(t, "https://app.byaboneka.rw", rec.Header().Get("Access-Control-Allow-Origin"))
		assert.Equal(t, "Origin", rec.Header().Get("Vary"))
	})

	t.Run("unlisted origin gets nothing", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/cooperatives", nil)
		req.Header.Set("Origin", "https://evil.example")
		rec := httptest.NewRecorder()
		corsMiddleware(allowed, okHandler()).ServeHTTP(rec, req)

		assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("preflight short-circuits", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodOptions, "/api/v1/claims", nil)
		req.Header.Set("Origin", "https://app.byaboneka.rw")
		rec := httptest.NewRecorder()
		corsMiddleware(allowed, okHandler()).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusNoContent, rec.Code)
	})

	t.Run("empty allowlist is same-origin only", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/cooperatives", nil)
		req.Header.Set("Origin", "https://app.byaboneka.rw")
		rec := httptest.NewRecorder()
		corsMiddleware(nil, okHandler()).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
	})
}

func TestRecoveryMiddleware(t *testing.T) {
	handler := recoveryMiddleware(testutil.TestLogger(), http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/users/me", nil))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	var resp model.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
	assert.Equal(t, "Internal server error", resp.Message)
}

func TestRequireRole(t *testing.T) {
	adminOnly := requireRole(model.RoleAdmin)

	t.Run("no user is unauthorized", func(t *testing.T) {
		rec := httptest.NewRecorder()
		adminOnly(okHandler()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/admin/audit-events", nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("citizen is forbidden", func(t *testing.T) {
		req := requestWithUser(model.User{ID: uuid.New(), Role: model.RoleCitizen})
		rec := httptest.NewRecorder()
		adminOnly(okHandler()).ServeHTTP(rec, req)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("admin passes", func(t *testing.T) {
		req := requestWithUser(model.User{ID: uuid.New(), Role: model.RoleAdmin})
		rec := httptest.NewRecorder()
		adminOnly(okHandler()).ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}

func TestUserKeyFunc(t *testing.T) {
	t.Run("admin is exempt", func(t *testing.T) {
		req := requestWithUser(model.User{ID: uuid.New(), Role: model.RoleAdmin})
		assert.Empty(t, userKeyFunc(req))
	})

	t.Run("citizen keyed by id", func(t *testing.T) {
		id := uuid.New()
		req := requestWithUser(model.User{ID: id, Role: model.RoleCitizen})
		assert.Equal(t, id.String(), userKeyFunc(req))
	})

	t.Run("unauthenticated falls back to ip", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/lost-items", nil)
		req.RemoteAddr = "203.0.113.9:52114"
		assert.Equal(t, "203.0.113.9", userKeyFunc(req))
	})
}

func TestWriteAppError(t *testing.T) {
	t.Run("cooldown sets retry-after", func(t *testing.T) {
		rec := httptest.NewRecorder()
		writeAppError(rec, model.CooldownUntil(time.Now().Add(90*time.Second), "Verification is on cooldown"))

		assert.Equal(t, http.StatusTooManyRequests, rec.Code)
		assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	})

	t.Run("unwrapped storage not-found is 404", func(t *testing.T) {
		rec := httptest.NewRecorder()
		writeAppError(rec, fmt.Errorf("storage: claim x: %w", storage.ErrNotFound))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("field errors survive the envelope", func(t *testing.T) {
		rec := httptest.NewRecorder()
		writeAppError(rec, model.Invalid("Validation failed",
			model.FieldError{Field: "title", Message: "required"}))

		require.Equal(t, http.StatusBadRequest, rec.Code)
		var resp model.ErrorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.Len(t, resp.Errors, 1)
		assert.Equal(t, "title", resp.Errors[0].Field)
	})

	t.Run("unknown errors stay opaque", func(t *testing.T) {
		rec := httptest.NewRecorder()
		writeAppError(rec, fmt.Errorf("pool exhausted"))

		require.Equal(t, http.StatusInternalServerError, rec.Code)
		var resp model.ErrorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "Internal server error", resp.Message)
	})
}

func TestListParams(t *testing.T) {
	newReq := func(query string) *http.Request {
		return httptest.NewRequest(http.MethodGet, "/api/v1/claims?"+query, nil)
	}

	limit, offset := listParams(newReq(""), 20, 100)
	assert.Equal(t, 20, limit)
	assert.Equal(t, 0, offset)

	limit, offset = listParams(newReq("limit=50&offset=10"), 20, 100)
	assert.Equal(t, 50, limit)
	assert.Equal(t, 10, offset)

	limit, _ = listParams(newReq("limit=500"), 20, 100)
	assert.Equal(t, 100, limit)

	limit, offset = listParams(newReq("limit=-3&offset=junk"), 20, 100)
	assert.Equal(t, 20, limit)
	assert.Equal(t, 0, offset)
}

func requestWithUser(u model.User) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	return req.WithContext(context.WithValue(req.Context(), contextKeyUser, u))
}
