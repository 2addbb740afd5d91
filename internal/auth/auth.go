// Package auth provides the credential primitives for the service:
// Argon2id hashing for passwords, answers, and OTPs, and HMAC-signed
// JWT access/refresh token pairs.
//
// Access and refresh tokens are signed with separate secrets so a leak
// of one never compromises the other.
package auth

import (
	"crypto/rand"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/byaboneka/byaboneka/internal/model"
)

const issuer = "byaboneka"

// Claims extends jwt.RegisteredClaims with the user's role. The
// subject is the user ID; the token kind claim separates access from
// refresh tokens so one can never stand in for the other.
type Claims struct {
	jwt.RegisteredClaims
	Role model.Role `json:"role"`
	Kind string     `json:"kind"` // "access" or "refresh"
}

const (
	kindAccess  = "access"
	kindRefresh = "refresh"
)

// JWTManager issues and validates the two token kinds.
type JWTManager struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
}

// NewJWTManager creates a JWTManager from the two signing secrets.
// Empty secrets are replaced with ephemeral random ones for
// development; config validation rejects that in production.
func NewJWTManager(accessSecret, refreshSecret []byte, accessTTL, refreshTTL time.Duration) (*JWTManager, error) {
	if len(accessSecret) == 0 {
		slog.Warn("auth: no access token secret configured, generating ephemeral secret (not for production)")
		accessSecret = make([]byte, 32)
		if _, err := rand.Read(accessSecret); err != nil {
			return nil, fmt.Errorf("auth: generate access secret: %w", err)
		}
	}
	if len(refreshSecret) == 0 {
		slog.Warn("auth: no refresh token secret configured, generating ephemeral secret (not for production)")
		refreshSecret = make([]byte, 32)
		if _, err := rand.Read(refreshSecret); err != nil {
			return nil, fmt.Errorf("auth: generate refresh secret: %w", err)
		}
	}
	return &JWTManager{
		accessSecret:  accessSecret,
		refreshSecret: refreshSecret,
		accessTTL:     accessTTL,
		refreshTTL:    refreshTTL,
	}, nil
}

// AccessTTL returns the configured access token lifetime.
func (m *JWTManager) AccessTTL() time.Duration { return m.accessTTL }

// RefreshTTL returns the configured refresh token lifetime.
func (m *JWTManager) RefreshTTL() time.Duration { return m.refreshTTL }

// IssueAccessToken creates a signed short-lived access token.
func (m *JWTManager) IssueAccessToken(user model.User) (string, time.Time, error) {
	return m.issue(user, kindAccess, m.accessSecret, m.accessTTL, uuid.New())
}

// IssueRefreshToken creates a signed refresh token. The returned jti
// identifies the stored row so rotation can revoke the predecessor.
func (m *JWTManager) IssueRefreshToken(user model.User) (string, uuid.UUID, time.Time, error) {
	jti := uuid.New()
	token, exp, err := m.issue(user, kindRefresh, m.refreshSecret, m.refreshTTL, jti)
	return token, jti, exp, err
}

func (m *JWTManager) issue(user model.User, kind string, secret []byte, ttl time.Duration, jti uuid.UUID) (string, time.Time, error) {
	now := time.Now().UTC()
	exp := now.Add(ttl)

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID.String(),
			Issuer:    issuer,
			Audience:  jwt.ClaimStrings{issuer},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        jti.String(),
		},
		Role: user.Role,
		Kind: kind,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("auth: sign %s token: %w", kind, err)
	}
	return signed, exp, nil
}

// ValidateAccessToken parses and validates an access token.
func (m *JWTManager) ValidateAccessToken(tokenStr string) (*Claims, error) {
	return m.validate(tokenStr, kindAccess, m.accessSecret)
}

// ValidateRefreshToken parses and validates a refresh token.
func (m *JWTManager) ValidateRefreshToken(tokenStr string) (*Claims, error) {
	return m.validate(tokenStr, kindRefresh, m.refreshSecret)
}

func (m *JWTManager) validate(tokenStr, kind string, secret []byte) (*Claims, error) {
	token, err := jwt.ParseWithClaims(
		tokenStr,
		&Claims{},
		func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("auth: unexpected signing method: %v", token.Header["alg"])
			}
			return secret, nil
		},
		jwt.WithAudience(issuer),
	)
	if err != nil {
		return nil, fmt.Errorf("auth: validate token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("auth: invalid token claims")
	}

	if claims.Issuer != issuer {
		return nil, fmt.Errorf("auth: invalid issuer: %s", claims.Issuer)
	}
	if claims.Kind != kind {
		return nil, fmt.Errorf("auth: wrong token kind: %s", claims.Kind)
	}
	if _, err := uuid.Parse(claims.Subject); err != nil {
		return nil, fmt.Errorf("auth: invalid subject (expected UUID): %w", err)
	}
	if _, err := uuid.Parse(claims.ID); err != nil {
		return nil, fmt.Errorf("auth: invalid token id (expected UUID): %w", err)
	}

	return claims, nil
}

// UserID returns the parsed subject. Validation guarantees it parses.
func (c *Claims) UserID() uuid.UUID {
	id, _ := uuid.Parse(c.Subject)
	return id
}

// JTI returns the parsed token ID. Validation guarantees it parses.
func (c *Claims) JTI() uuid.UUID {
	id, _ := uuid.Parse(c.ID)
	return id
}
