package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/byaboneka/byaboneka/internal/auth"
	"github.com/byaboneka/byaboneka/internal/claims"
	"github.com/byaboneka/byaboneka/internal/fraud"
	"github.com/byaboneka/byaboneka/internal/handover"
	"github.com/byaboneka/byaboneka/internal/jobs"
	"github.com/byaboneka/byaboneka/internal/matching"
	"github.com/byaboneka/byaboneka/internal/model"
	"github.com/byaboneka/byaboneka/internal/notify"
	"github.com/byaboneka/byaboneka/internal/storage"
	"github.com/byaboneka/byaboneka/internal/trust"
)

// Handlers bundles the services behind the HTTP surface.
type Handlers struct {
	db       *storage.DB
	jwtMgr   *auth.JWTManager
	matcher  *matching.Engine
	claims   *claims.Service
	handover *handover.Service
	gate     *fraud.Gate
	notifier notify.Notifier
	baseURL  string
	queue    *jobs.Queue
	logger   *slog.Logger

	version   string
	startTime time.Time
}

// HandlersDeps holds the dependencies for NewHandlers.
type HandlersDeps struct {
	DB       *storage.DB
	JWTMgr   *auth.JWTManager
	Matcher  *matching.Engine
	Claims   *claims.Service
	Handover *handover.Service
	Gate     *fraud.Gate
	Notifier notify.Notifier
	BaseURL  string
	Queue    *jobs.Queue
	Logger   *slog.Logger
	Version  string
}

// NewHandlers creates the handler set.
func NewHandlers(deps HandlersDeps) *Handlers {
	return &Handlers{
		db:        deps.DB,
		jwtMgr:    deps.JWTMgr,
		matcher:   deps.Matcher,
		claims:    deps.Claims,
		handover:  deps.Handover,
		gate:      deps.Gate,
		notifier:  deps.Notifier,
		baseURL:   deps.BaseURL,
		queue:     deps.Queue,
		logger:    deps.Logger,
		version:   deps.Version,
		startTime: time.Now(),
	}
}

// HandleHealth reports liveness, database reachability, and queue
// pressure.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	resp := model.HealthResponse{
		Status:   "ok",
		Version:  h.version,
		Postgres: "ok",
		Uptime:   int64(time.Since(h.startTime).Seconds()),
	}
	status := http.StatusOK

	if err := h.db.Ping(r.Context()); err != nil {
		resp.Status = "degraded"
		resp.Postgres = "unreachable"
		status = http.StatusServiceUnavailable
	}

	depth := h.queue.Depth()
	resp.QueueDepth = depth
	switch {
	case depth > 200:
		resp.QueueStatus = "critical"
	case depth > 100:
		resp.QueueStatus = "high"
	default:
		resp.QueueStatus = "ok"
	}

	// Health is consumed by probes that expect a flat document, so it
	// skips the success envelope.
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}

// profileFor converts a user row into its public profile view.
func profileFor(u model.User) model.UserProfile {
	return model.UserProfile{
		ID:            u.ID,
		Email:         u.Email,
		Phone:         u.Phone,
		Name:          u.Name,
		Role:          u.Role,
		TrustScore:    u.TrustScore,
		Tier:          string(trust.TierFor(u.TrustScore)),
		EmailVerified: u.EmailVerified,
		PhoneVerified: u.PhoneVerified,
		CooperativeID: u.CooperativeID,
		CreatedAt:     u.CreatedAt,
	}
}
