package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/byaboneka/byaboneka/internal/model"
	"github.com/byaboneka/byaboneka/internal/ratelimit"
)

// Config carries the HTTP-layer settings for New.
type Config struct {
	Port                int
	ReadTimeout         time.Duration
	WriteTimeout        time.Duration
	CORSAllowedOrigins  []string
	MaxRequestBodyBytes int64
}

// Server wraps the http.Server with the assembled middleware chain and
// route table.
type Server struct {
	httpServer *http.Server
	handler    http.Handler
	logger     *slog.Logger
}

// Rate limit rules. Auth endpoints are keyed by client IP; write
// endpoints by authenticated user.
var (
	authRule  = ratelimit.Rule{Prefix: "auth", Limit: 10, Window: time.Minute}
	writeRule = ratelimit.Rule{Prefix: "write", Limit: 30, Window: time.Minute}
)

// New assembles the route table and middleware chain.
func New(cfg Config, h *Handlers, limiter *ratelimit.Limiter, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	authLimited := ratelimit.Middleware(limiter, authRule, ratelimit.IPKeyFunc)
	writeLimited := ratelimit.Middleware(limiter, writeRule, userKeyFunc)
	adminOnly := requireRole(model.RoleAdmin)

	mux.HandleFunc("GET /health", h.HandleHealth)

	// Auth. All public except the verification endpoints, which need a
	// valid access token.
	mux.Handle("POST /api/v1/auth/register", authLimited(http.HandlerFunc(h.HandleRegister)))
	mux.Handle("POST /api/v1/auth/login", authLimited(http.HandlerFunc(h.HandleLogin)))
	mux.Handle("POST /api/v1/auth/refresh", authLimited(http.HandlerFunc(h.HandleRefresh)))
	mux.Handle("POST /api/v1/auth/logout", authLimited(http.HandlerFunc(h.HandleLogout)))
	mux.Handle("POST /api/v1/auth/forgot-password", authLimited(http.HandlerFunc(h.HandleForgotPassword)))
	mux.Handle("POST /api/v1/auth/reset-password", authLimited(http.HandlerFunc(h.HandleResetPassword)))
	mux.Handle("POST /api/v1/auth/verify-email", authLimited(http.HandlerFunc(h.HandleVerifyEmail)))
	mux.Handle("POST /api/v1/auth/verify-phone", authLimited(http.HandlerFunc(h.HandleVerifyPhone)))
	mux.Handle("POST /api/v1/auth/request-phone-code", authLimited(http.HandlerFunc(h.HandleRequestPhoneCode)))

	// Users.
	mux.HandleFunc("GET /api/v1/users/me", h.HandleMe)
	mux.HandleFunc("GET /api/v1/users/me/trust", h.HandleMyTrust)

	// Items and matching.
	mux.Handle("POST /api/v1/lost-items", writeLimited(http.HandlerFunc(h.HandleCreateLostItem)))
	mux.HandleFunc("GET /api/v1/lost-items", h.HandleListLostItems)
	mux.HandleFunc("GET /api/v1/lost-items/{id}", h.HandleGetLostItem)
	mux.HandleFunc("GET /api/v1/lost-items/{id}/matches", h.HandleLostItemMatches)
	mux.Handle("POST /api/v1/found-items", writeLimited(http.HandlerFunc(h.HandleCreateFoundItem)))
	mux.HandleFunc("GET /api/v1/found-items", h.HandleListFoundItems)
	mux.HandleFunc("GET /api/v1/found-items/{id}", h.HandleGetFoundItem)
	mux.HandleFunc("GET /api/v1/found-items/{id}/matches", h.HandleFoundItemMatches)

	// Claims, verification, handover.
	mux.Handle("POST /api/v1/claims", writeLimited(http.HandlerFunc(h.HandleOpenClaim)))
	mux.HandleFunc("GET /api/v1/claims", h.HandleListClaims)
	mux.HandleFunc("GET /api/v1/claims/{id}", h.HandleGetClaim)
	mux.HandleFunc("GET /api/v1/claims/{id}/questions", h.HandleClaimQuestions)
	mux.Handle("POST /api/v1/claims/{id}/verify", writeLimited(http.HandlerFunc(h.HandleVerifyClaim)))
	mux.Handle("POST /api/v1/claims/{id}/cancel", writeLimited(http.HandlerFunc(h.HandleCancelClaim)))
	mux.Handle("POST /api/v1/claims/{id}/dispute", writeLimited(http.HandlerFunc(h.HandleOpenDispute)))
	mux.Handle("POST /api/v1/claims/{id}/messages", writeLimited(http.HandlerFunc(h.HandlePostClaimMessage)))
	mux.HandleFunc("GET /api/v1/claims/{id}/messages", h.HandleListClaimMessages)
	mux.Handle("POST /api/v1/claims/{id}/handover/otp", writeLimited(http.HandlerFunc(h.HandleMintHandoverCode)))
	mux.Handle("POST /api/v1/claims/{id}/handover/verify", writeLimited(http.HandlerFunc(h.HandleRedeemHandoverCode)))
	mux.HandleFunc("GET /api/v1/claims/{id}/handover", h.HandleHandoverStatus)

	// Scam reports and cooperatives.
	mux.Handle("POST /api/v1/scam-reports", writeLimited(http.HandlerFunc(h.HandleCreateScamReport)))
	mux.HandleFunc("GET /api/v1/cooperatives", h.HandleListCooperatives)

	// Admin.
	mux.Handle("POST /api/v1/admin/disputes/{id}/resolve", adminOnly(http.HandlerFunc(h.HandleResolveDispute)))
	mux.Handle("POST /api/v1/admin/scam-reports/{id}/resolve", adminOnly(http.HandlerFunc(h.HandleResolveScamReport)))
	mux.Handle("POST /api/v1/admin/users/{id}/ban", adminOnly(http.HandlerFunc(h.HandleBanUser)))
	mux.Handle("POST /api/v1/admin/users/{id}/unban", adminOnly(http.HandlerFunc(h.HandleUnbanUser)))
	mux.Handle("POST /api/v1/admin/users/{id}/trust/recalculate", adminOnly(http.HandlerFunc(h.HandleRecalculateTrust)))
	mux.Handle("GET /api/v1/admin/audit-events", adminOnly(http.HandlerFunc(h.HandleListAuditEvents)))
	mux.Handle("POST /api/v1/admin/cooperatives", adminOnly(http.HandlerFunc(h.HandleCreateCooperative)))

	var handler http.Handler = mux
	if cfg.MaxRequestBodyBytes > 0 {
		handler = maxBytesMiddleware(cfg.MaxRequestBodyBytes, handler)
	}
	handler = recoveryMiddleware(logger, handler)
	handler = authMiddleware(h.jwtMgr, h.db, handler)
	handler = loggingMiddleware(logger, handler)
	handler = tracingMiddleware(handler)
	handler = corsMiddleware(cfg.CORSAllowedOrigins, handler)
	handler = securityHeadersMiddleware(handler)
	handler = requestIDMiddleware(handler)

	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      handler,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		},
		handler: handler,
		logger:  logger,
	}
}

// Handler exposes the full middleware-wrapped handler for tests.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start blocks serving HTTP until Shutdown or a listener error.
func (s *Server) Start() error {
	s.logger.Info("http server listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// userKeyFunc keys rate limits by authenticated user. Admins are
// exempt; unauthenticated requests fall back to the client IP so the
// auth middleware's 401 still costs the caller budget.
func userKeyFunc(r *http.Request) string {
	if u, ok := UserFromContext(r.Context()); ok {
		if u.Role == model.RoleAdmin {
			return ""
		}
		return u.ID.String()
	}
	return ratelimit.IPKeyFunc(r)
}

// maxBytesMiddleware caps request body size.
func maxBytesMiddleware(limit int64, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, limit)
		}
		next.ServeHTTP(w, r)
	})
}
