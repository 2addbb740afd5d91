package server

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/byaboneka/byaboneka/internal/auth"
	"github.com/byaboneka/byaboneka/internal/jobs"
	"github.com/byaboneka/byaboneka/internal/model"
	"github.com/byaboneka/byaboneka/internal/notify"
	"github.com/byaboneka/byaboneka/internal/storage"
	"github.com/byaboneka/byaboneka/internal/trust"
)

const (
	passwordResetTTL    = time.Hour
	verificationCodeTTL = 24 * time.Hour

	channelEmail = "email"
	channelPhone = "phone"
)

// HandleRegister creates an account and returns a token pair. An email
// verification code is queued immediately.
func (h *Handlers) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req model.RegisterRequest
	if err := decodeJSON(r, &req); err != nil {
		writeAppError(w, err)
		return
	}

	var fields []model.FieldError
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if err := model.ValidateEmail(req.Email); err != nil {
		fields = append(fields, model.FieldError{Field: "email", Message: err.Error()})
	}
	if err := model.ValidatePassword(req.Password); err != nil {
		fields = append(fields, model.FieldError{Field: "password", Message: err.Error()})
	}
	if err := model.ValidateName(req.Name); err != nil {
		fields = append(fields, model.FieldError{Field: "name", Message: err.Error()})
	}
	if req.Phone != nil {
		normalized, err := model.NormalizePhone(*req.Phone)
		if err != nil {
			fields = append(fields, model.FieldError{Field: "phone", Message: err.Error()})
		} else {
			req.Phone = &normalized
		}
	}
	if len(fields) > 0 {
		writeAppError(w, model.Invalid("Validation failed", fields...))
		return
	}

	passwordHash, err := auth.HashPassword(req.Password)
	if err != nil {
		h.logger.Error("register: hash password", "error", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	user, err := h.db.CreateUser(r.Context(), model.User{
		Email:        req.Email,
		Phone:        req.Phone,
		PasswordHash: passwordHash,
		Name:         strings.TrimSpace(req.Name),
		Role:         model.RoleCitizen,
	})
	if err != nil {
		if errors.Is(err, storage.ErrDuplicate) {
			writeAppError(w, model.NewError(model.KindConflict, "An account with this email already exists"))
			return
		}
		h.logger.Error("register: create user", "error", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	h.sendVerificationCode(r.Context(), user, channelEmail)

	tokens, err := h.issueTokens(r.Context(), user)
	if err != nil {
		h.logger.Error("register: issue tokens", "user_id", user.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	writeJSON(w, http.StatusCreated, model.AuthResponse{User: profileFor(user), Tokens: tokens})
}

// HandleLogin authenticates by email and password.
func (h *Handlers) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req model.LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeAppError(w, err)
		return
	}

	user, err := h.db.GetUserByEmail(r.Context(), strings.ToLower(strings.TrimSpace(req.Email)))
	if err != nil {
		// Burn an equivalent hash so a missing account is not
		// distinguishable by response time.
		auth.DummyVerify()
		writeError(w, http.StatusUnauthorized, "Invalid email or password")
		return
	}

	ok, err := auth.VerifyPassword(req.Password, user.PasswordHash)
	if err != nil || !ok {
		writeError(w, http.StatusUnauthorized, "Invalid email or password")
		return
	}
	if user.IsBanned {
		writeError(w, http.StatusForbidden, "Account has been suspended")
		return
	}

	tokens, err := h.issueTokens(r.Context(), user)
	if err != nil {
		h.logger.Error("login: issue tokens", "user_id", user.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	writeJSON(w, http.StatusOK, model.AuthResponse{User: profileFor(user), Tokens: tokens})
}

// HandleRefresh rotates a refresh token: the presented token is
// revoked and a fresh pair issued. Presenting an already revoked token
// is treated as theft and revokes every live token the user holds.
func (h *Handlers) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	var req model.RefreshRequest
	if err := decodeJSON(r, &req); err != nil {
		writeAppError(w, err)
		return
	}

	claims, err := h.jwtMgr.ValidateRefreshToken(req.RefreshToken)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Invalid or expired refresh token")
		return
	}

	row, err := h.db.GetRefreshToken(r.Context(), claims.JTI())
	if err != nil || !auth.VerifyToken(req.RefreshToken, row.TokenSalt, row.TokenHash) {
		writeError(w, http.StatusUnauthorized, "Invalid or expired refresh token")
		return
	}
	if row.RevokedAt != nil {
		h.logger.Warn("refresh: revoked token replayed, revoking session family", "user_id", row.UserID)
		_ = h.db.RevokeUserRefreshTokens(r.Context(), row.UserID)
		writeError(w, http.StatusUnauthorized, "Invalid or expired refresh token")
		return
	}
	if time.Now().After(row.ExpiresAt) {
		writeError(w, http.StatusUnauthorized, "Invalid or expired refresh token")
		return
	}

	user, err := h.db.GetUser(r.Context(), row.UserID)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Invalid or expired refresh token")
		return
	}
	if user.IsBanned {
		writeError(w, http.StatusForbidden, "Account has been suspended")
		return
	}

	if err := h.db.RevokeRefreshToken(r.Context(), row.ID); err != nil {
		h.logger.Error("refresh: revoke predecessor", "user_id", user.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	tokens, err := h.issueTokens(r.Context(), user)
	if err != nil {
		h.logger.Error("refresh: issue tokens", "user_id", user.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	writeJSON(w, http.StatusOK, tokens)
}

// HandleLogout revokes the presented refresh token. Always succeeds:
// revoking an invalid token leaks nothing.
func (h *Handlers) HandleLogout(w http.ResponseWriter, r *http.Request) {
	var req model.RefreshRequest
	if err := decodeJSON(r, &req); err != nil {
		writeAppError(w, err)
		return
	}
	if claims, err := h.jwtMgr.ValidateRefreshToken(req.RefreshToken); err == nil {
		_ = h.db.RevokeRefreshToken(r.Context(), claims.JTI())
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Logged out"})
}

// HandleForgotPassword queues a reset email. The response is identical
// whether or not the account exists.
func (h *Handlers) HandleForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req model.ForgotPasswordRequest
	if err := decodeJSON(r, &req); err != nil {
		writeAppError(w, err)
		return
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	if user, err := h.db.GetUserByEmail(r.Context(), email); err == nil && !user.IsBanned {
		h.sendPasswordReset(r.Context(), user)
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "If an account exists for that email, a reset link has been sent",
	})
}

// HandleResetPassword consumes a reset token and sets a new password.
// All live sessions are revoked.
func (h *Handlers) HandleResetPassword(w http.ResponseWriter, r *http.Request) {
	var req model.ResetPasswordRequest
	if err := decodeJSON(r, &req); err != nil {
		writeAppError(w, err)
		return
	}
	if err := model.ValidatePassword(req.NewPassword); err != nil {
		writeAppError(w, model.Invalid("Validation failed",
			model.FieldError{Field: "new_password", Message: err.Error()}))
		return
	}

	userID, secret, ok := splitResetToken(req.Token)
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid or expired reset token")
		return
	}
	row, err := h.db.LatestPasswordReset(r.Context(), userID)
	if err != nil || !auth.VerifyToken(secret, row.Salt, row.Hash) {
		writeError(w, http.StatusBadRequest, "Invalid or expired reset token")
		return
	}
	if err := h.db.MarkPasswordResetUsed(r.Context(), row.ID); err != nil {
		// Already consumed: a replayed token fails closed.
		writeError(w, http.StatusBadRequest, "Invalid or expired reset token")
		return
	}

	passwordHash, err := auth.HashPassword(req.NewPassword)
	if err != nil {
		h.logger.Error("reset password: hash", "error", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	if err := h.db.UpdateUserPassword(r.Context(), userID, passwordHash); err != nil {
		h.logger.Error("reset password: update", "user_id", userID, "error", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	_ = h.db.RevokeUserRefreshTokens(r.Context(), userID)

	writeJSON(w, http.StatusOK, map[string]string{"message": "Password updated, sign in with your new password"})
}

// HandleVerifyEmail consumes an email verification code. The +1 trust
// delta applies only on the first successful verification.
func (h *Handlers) HandleVerifyEmail(w http.ResponseWriter, r *http.Request) {
	h.handleVerifyCode(w, r, channelEmail)
}

// HandleRequestPhoneCode queues a fresh phone verification code.
func (h *Handlers) HandleRequestPhoneCode(w http.ResponseWriter, r *http.Request) {
	user := requestUser(r)
	if user.Phone == nil {
		writeAppError(w, model.Invalid("No phone number on this account",
			model.FieldError{Field: "phone", Message: "add a phone number first"}))
		return
	}
	if user.PhoneVerified {
		writeAppError(w, model.NewError(model.KindConflict, "Phone is already verified"))
		return
	}
	h.sendVerificationCode(r.Context(), user, channelPhone)
	writeJSON(w, http.StatusOK, map[string]string{"message": "Verification code sent"})
}

// HandleVerifyPhone consumes a phone verification code.
func (h *Handlers) HandleVerifyPhone(w http.ResponseWriter, r *http.Request) {
	h.handleVerifyCode(w, r, channelPhone)
}

func (h *Handlers) handleVerifyCode(w http.ResponseWriter, r *http.Request, channel string) {
	user := requestUser(r)
	var req model.VerifyCodeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeAppError(w, err)
		return
	}

	row, err := h.db.LatestVerificationCode(r.Context(), user.ID, channel)
	if err != nil || !auth.VerifySecret(strings.TrimSpace(req.Code), row.Salt, row.Hash) {
		writeError(w, http.StatusBadRequest, "Invalid or expired verification code")
		return
	}
	if err := h.db.MarkVerificationCodeUsed(r.Context(), row.ID); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid or expired verification code")
		return
	}

	var (
		first bool
		delta int
		why   string
	)
	switch channel {
	case channelEmail:
		first, err = h.db.MarkEmailVerified(r.Context(), user.ID)
		delta, why = trust.DeltaEmailVerified, trust.ReasonEmailVerified
	case channelPhone:
		first, err = h.db.MarkPhoneVerified(r.Context(), user.ID)
		delta, why = trust.DeltaPhoneVerified, trust.ReasonPhoneVerified
	}
	if err != nil {
		h.logger.Error("verify code: mark verified", "user_id", user.ID, "channel", channel, "error", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	if first {
		if _, err := h.db.ApplyTrustDelta(r.Context(), user.ID, delta, why); err != nil {
			h.logger.Error("verify code: trust delta", "user_id", user.ID, "channel", channel, "error", err)
		}
	}

	updated, err := h.db.GetUser(r.Context(), user.ID)
	if err != nil {
		updated = user
	}
	writeJSON(w, http.StatusOK, profileFor(updated))
}

// issueTokens creates an access/refresh pair and persists the refresh
// row.
func (h *Handlers) issueTokens(ctx context.Context, user model.User) (model.AuthTokens, error) {
	access, accessExp, err := h.jwtMgr.IssueAccessToken(user)
	if err != nil {
		return model.AuthTokens{}, err
	}
	refresh, jti, refreshExp, err := h.jwtMgr.IssueRefreshToken(user)
	if err != nil {
		return model.AuthTokens{}, err
	}
	salt, err := auth.NewSalt()
	if err != nil {
		return model.AuthTokens{}, err
	}
	if err := h.db.CreateRefreshToken(ctx, storage.RefreshToken{
		ID:        jti,
		UserID:    user.ID,
		TokenSalt: salt,
		TokenHash: auth.HashToken(refresh, salt),
		ExpiresAt: refreshExp,
	}); err != nil {
		return model.AuthTokens{}, err
	}
	return model.AuthTokens{AccessToken: access, RefreshToken: refresh, ExpiresAt: accessExp}, nil
}

// sendVerificationCode stores a hashed code and queues its delivery.
func (h *Handlers) sendVerificationCode(ctx context.Context, user model.User, channel string) {
	code, err := auth.GenerateOTP()
	if err != nil {
		h.logger.Error("verification code: generate", "user_id", user.ID, "error", err)
		return
	}
	salt, err := auth.NewSalt()
	if err != nil {
		h.logger.Error("verification code: salt", "user_id", user.ID, "error", err)
		return
	}
	if err := h.db.CreateVerificationCode(ctx, storage.ResetToken{
		UserID:    user.ID,
		Salt:      salt,
		Hash:      auth.HashSecret(code, salt),
		ExpiresAt: time.Now().UTC().Add(verificationCodeTTL),
	}, channel); err != nil {
		h.logger.Error("verification code: store", "user_id", user.ID, "channel", channel, "error", err)
		return
	}

	// Phone delivery goes to email as well until an SMS gateway is
	// integrated; the verification semantics are identical.
	subject, body := notify.VerificationCode(code)
	email := user.Email
	h.queue.Enqueue(jobs.Task{
		Name: "notify_verification_code",
		Run: func(taskCtx context.Context) error {
			return h.notifier.Send(taskCtx, email, subject, body)
		},
	})
}

// sendPasswordReset stores a hashed reset token and queues the email.
func (h *Handlers) sendPasswordReset(ctx context.Context, user model.User) {
	secret, err := auth.GenerateOpaqueToken()
	if err != nil {
		h.logger.Error("password reset: generate", "user_id", user.ID, "error", err)
		return
	}
	salt, err := auth.NewSalt()
	if err != nil {
		h.logger.Error("password reset: salt", "user_id", user.ID, "error", err)
		return
	}
	if err := h.db.CreatePasswordReset(ctx, storage.ResetToken{
		UserID:    user.ID,
		Salt:      salt,
		Hash:      auth.HashToken(secret, salt),
		ExpiresAt: time.Now().UTC().Add(passwordResetTTL),
	}); err != nil {
		h.logger.Error("password reset: store", "user_id", user.ID, "error", err)
		return
	}

	subject, body := notify.PasswordReset(h.baseURL, joinResetToken(user.ID, secret))
	email := user.Email
	h.queue.Enqueue(jobs.Task{
		Name: "notify_password_reset",
		Run: func(taskCtx context.Context) error {
			return h.notifier.Send(taskCtx, email, subject, body)
		},
	})
}

// Reset tokens are "<base64(user id)>.<secret>" so the lookup does not
// need an indexable plaintext token column.
func joinResetToken(userID uuid.UUID, secret string) string {
	return base64.RawURLEncoding.EncodeToString(userID[:]) + "." + secret
}

func splitResetToken(token string) (uuid.UUID, string, bool) {
	idPart, secret, found := strings.Cut(token, ".")
	if !found || secret == "" {
		return uuid.Nil, "", false
	}
	raw, err := base64.RawURLEncoding.DecodeString(idPart)
	if err != nil || len(raw) != 16 {
		return uuid.Nil, "", false
	}
	id, err := uuid.FromBytes(raw)
	if err != nil {
		return uuid.Nil, "", false
	}
	return id, secret, true
}
