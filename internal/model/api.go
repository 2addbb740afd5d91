package model

import (
	"time"

	"github.com/google/uuid"
)

// Response is the success envelope for every API response.
type Response struct {
	Success bool `json:"success"`
	Data    any  `json:"data,omitempty"`
}

// ErrorResponse is the error envelope. Errors carries field-level
// details for validation failures and is omitted otherwise.
type ErrorResponse struct {
	Success bool         `json:"success"`
	Message string       `json:"message"`
	Errors  []FieldError `json:"errors,omitempty"`
}

// ListResponse is the envelope payload for paginated list endpoints.
type ListResponse struct {
	Items   any  `json:"items"`
	Total   int  `json:"total"`
	HasMore bool `json:"has_more"`
	Limit   int  `json:"limit"`
	Offset  int  `json:"offset"`
}

// RegisterRequest is the request body for POST /auth/register.
type RegisterRequest struct {
	Email    string  `json:"email"`
	Phone    *string `json:"phone,omitempty"`
	Password string  `json:"password"`
	Name     string  `json:"name"`
}

// LoginRequest is the request body for POST /auth/login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// RefreshRequest is the request body for POST /auth/refresh and
// POST /auth/logout.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// ForgotPasswordRequest is the request body for POST /auth/forgot-password.
type ForgotPasswordRequest struct {
	Email string `json:"email"`
}

// ResetPasswordRequest is the request body for POST /auth/reset-password.
type ResetPasswordRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"new_password"`
}

// VerifyCodeRequest is the request body for POST /auth/verify-email and
// POST /auth/verify-phone.
type VerifyCodeRequest struct {
	Code string `json:"code"`
}

// AuthTokens is the token pair returned by register, login, and refresh.
type AuthTokens struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// AuthResponse is the response payload for register and login.
type AuthResponse struct {
	User   UserProfile `json:"user"`
	Tokens AuthTokens  `json:"tokens"`
}

// UserProfile is the public view of a user account.
type UserProfile struct {
	ID            uuid.UUID  `json:"id"`
	Email         string     `json:"email"`
	Phone         *string    `json:"phone,omitempty"`
	Name          string     `json:"name"`
	Role          Role       `json:"role"`
	TrustScore    int        `json:"trust_score"`
	Tier          string     `json:"tier"`
	EmailVerified bool       `json:"email_verified"`
	PhoneVerified bool       `json:"phone_verified"`
	CooperativeID *uuid.UUID `json:"cooperative_id,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

// TrustSummary is the response payload for GET /users/me/trust.
type TrustSummary struct {
	Score     int          `json:"score"`
	Tier      string       `json:"tier"`
	ClaimCap  int          `json:"claim_cap"`
	ReportCap int          `json:"report_cap"`
	Events    []TrustEvent `json:"events"`
}

// QAPair is one verification question with its plaintext answer,
// accepted only at lost item creation.
type QAPair struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// CreateLostItemRequest is the request body for POST /lost-items.
type CreateLostItemRequest struct {
	Category              Category  `json:"category"`
	Title                 string    `json:"title"`
	Description           string    `json:"description"`
	LocationArea          string    `json:"location_area"`
	LostDate              time.Time `json:"lost_date"`
	VerificationQuestions []QAPair  `json:"verification_questions"`
}

// CreateFoundItemRequest is the request body for POST /found-items.
type CreateFoundItemRequest struct {
	Category     Category  `json:"category"`
	Title        string    `json:"title"`
	Description  string    `json:"description"`
	LocationArea string    `json:"location_area"`
	FoundDate    time.Time `json:"found_date"`
	ImageURLs    []string  `json:"image_urls,omitempty"`
}

// OpenClaimRequest is the request body for POST /claims.
type OpenClaimRequest struct {
	LostItemID  uuid.UUID `json:"lost_item_id"`
	FoundItemID uuid.UUID `json:"found_item_id"`
}

// VerifyClaimRequest is the request body for POST /claims/{id}/verify.
type VerifyClaimRequest struct {
	Answers []string `json:"answers"`
}

// VerifyClaimResponse is the response payload for claim verification.
// Score is the number of correct answers (0..3).
type VerifyClaimResponse struct {
	Passed        bool        `json:"passed"`
	Score         int         `json:"score"`
	Status        ClaimStatus `json:"status"`
	NextAttemptAt *time.Time  `json:"next_attempt_at,omitempty"`
}

// ClaimQuestionsResponse is the response payload for
// GET /claims/{id}/questions. Only questions are exposed.
type ClaimQuestionsResponse struct {
	ClaimID   uuid.UUID `json:"claim_id"`
	Questions []string  `json:"questions"`
}

// MintOTPResponse returns the plaintext handover code exactly once.
type MintOTPResponse struct {
	OTP       string    `json:"otp"`
	ExpiresAt time.Time `json:"expires_at"`
}

// RedeemOTPRequest is the request body for POST /claims/{id}/handover/verify.
type RedeemOTPRequest struct {
	OTP string `json:"otp"`
}

// HandoverStatusResponse is the response payload for
// GET /claims/{id}/handover. No OTP material is ever included.
type HandoverStatusResponse struct {
	ClaimID           uuid.UUID  `json:"claim_id"`
	Verified          bool       `json:"verified"`
	ExpiresAt         time.Time  `json:"expires_at"`
	AttemptsRemaining int        `json:"attempts_remaining"`
	RedeemedAt        *time.Time `json:"redeemed_at,omitempty"`
}

// RedeemOTPResponse is the response payload for a successful redemption.
type RedeemOTPResponse struct {
	ClaimStatus     ClaimStatus     `json:"claim_status"`
	LostItemStatus  LostItemStatus  `json:"lost_item_status"`
	FoundItemStatus FoundItemStatus `json:"found_item_status"`
	RedeemedAt      time.Time       `json:"redeemed_at"`
}

// OpenDisputeRequest is the request body for POST /claims/{id}/dispute.
type OpenDisputeRequest struct {
	Reason string `json:"reason"`
}

// ResolveDisputeRequest is the request body for
// POST /admin/disputes/{id}/resolve.
type ResolveDisputeRequest struct {
	Resolution DisputeResolution `json:"resolution"`
}

// CreateScamReportRequest is the request body for POST /scam-reports.
type CreateScamReportRequest struct {
	ReportedUserID uuid.UUID  `json:"reported_user_id"`
	ClaimID        *uuid.UUID `json:"claim_id,omitempty"`
	Reason         string     `json:"reason"`
}

// ResolveScamReportRequest is the request body for
// POST /admin/scam-reports/{id}/resolve.
type ResolveScamReportRequest struct {
	Outcome ScamReportStatus `json:"outcome"` // confirmed or dismissed
}

// BanUserRequest is the request body for POST /admin/users/{id}/ban.
type BanUserRequest struct {
	Reason string `json:"reason"`
}

// PostMessageRequest is the request body for POST /claims/{id}/messages.
type PostMessageRequest struct {
	Body string `json:"body"`
}

// CreateCooperativeRequest is the request body for POST /admin/cooperatives.
type CreateCooperativeRequest struct {
	Name string `json:"name"`
	Code string `json:"code"`
}

// RecalculateTrustResponse is the response payload for
// POST /admin/users/{id}/trust/recalculate.
type RecalculateTrustResponse struct {
	UserID     uuid.UUID `json:"user_id"`
	Stored     int       `json:"stored"`
	Recomputed int       `json:"recomputed"`
	Consistent bool      `json:"consistent"`
}

// HealthResponse is the response for GET /health.
type HealthResponse struct {
	Status      string `json:"status"`
	Version     string `json:"version"`
	Postgres    string `json:"postgres"`
	QueueDepth  int    `json:"queue_depth"`
	QueueStatus string `json:"queue_status"` // "ok", "high", "critical"
	Uptime      int64  `json:"uptime_seconds"`
}
