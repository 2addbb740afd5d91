package auth_test

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/byaboneka/byaboneka/internal/auth"
	"github.com/byaboneka/byaboneka/internal/model"
)

func TestHashAndVerifyPassword(t *testing.T) {
	hash, err := auth.HashPassword("correct horse battery")
	require.NoError(t, err)
	assert.NotEmpty(t, hash)

	valid, err := auth.VerifyPassword("correct horse battery", hash)
	require.NoError(t, err)
	assert.True(t, valid)

	valid, err = auth.VerifyPassword("wrong password", hash)
	require.NoError(t, err)
	assert.False(t, valid)
}

func TestVerifyPasswordMalformedHash(t *testing.T) {
	_, err := auth.VerifyPassword("anything", "not-a-valid-hash")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid hash format")
}

func TestSecretHashRoundTrip(t *testing.T) {
	salt, err := auth.NewSalt()
	require.NoError(t, err)
	require.Len(t, salt, 16)

	hash := auth.HashSecret("mountains", salt)
	assert.True(t, auth.VerifySecret("mountains", salt, hash))
	assert.False(t, auth.VerifySecret("rivers", salt, hash))

	// A different salt yields a different hash for the same input.
	otherSalt, err := auth.NewSalt()
	require.NoError(t, err)
	assert.NotEqual(t, hash, auth.HashSecret("mountains", otherSalt))
}

func TestTokenHashRoundTrip(t *testing.T) {
	salt, err := auth.NewSalt()
	require.NoError(t, err)

	digest := auth.HashToken("opaque-token-value", salt)
	assert.True(t, auth.VerifyToken("opaque-token-value", salt, digest))
	assert.False(t, auth.VerifyToken("other-token", salt, digest))
}

// testUser returns a minimal user for token issuance.
func testUser() model.User {
	return model.User{
		ID:   uuid.New(),
		Role: model.RoleCitizen,
	}
}

// testManager builds a JWTManager with fixed secrets so tests can forge
// tokens signed with the same key material.
func testManager(t *testing.T) *auth.JWTManager {
	t.Helper()
	mgr, err := auth.NewJWTManager(
		[]byte("0123456789abcdef0123456789abcdef"),
		[]byte("fedcba9876543210fedcba9876543210"),
		15*time.Minute,
		7*24*time.Hour,
	)
	require.NoError(t, err)
	return mgr
}

func TestJWTIssueAndValidateAccess(t *testing.T) {
	mgr := testManager(t)
	user := testUser()

	token, expiresAt, err := mgr.IssueAccessToken(user)
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.True(t, expiresAt.After(time.Now()))
	assert.True(t, expiresAt.Before(time.Now().Add(16*time.Minute)))

	claims, err := mgr.ValidateAccessToken(token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, claims.UserID())
	assert.Equal(t, model.RoleCitizen, claims.Role)
}

func TestRefreshTokenRoundTrip(t *testing.T) {
	mgr := testManager(t)
	user := testUser()

	token, jti, expiresAt, err := mgr.IssueRefreshToken(user)
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.NotEqual(t, uuid.Nil, jti)
	assert.True(t, expiresAt.After(time.Now().Add(6*24*time.Hour)))

	claims, err := mgr.ValidateRefreshToken(token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, claims.UserID())
	assert.Equal(t, jti, claims.JTI())
}

func TestAccessTokenRejectedAsRefresh(t *testing.T) {
	mgr := testManager(t)
	user := testUser()

	access, _, err := mgr.IssueAccessToken(user)
	require.NoError(t, err)

	// Different secrets: the access token cannot even pass signature
	// verification under the refresh secret.
	_, err = mgr.ValidateRefreshToken(access)
	require.Error(t, err)
}

func TestEphemeralSecretsStillRoundTrip(t *testing.T) {
	mgr, err := auth.NewJWTManager(nil, nil, time.Hour, 24*time.Hour)
	require.NoError(t, err)

	token, _, err := mgr.IssueAccessToken(testUser())
	require.NoError(t, err)

	_, err = mgr.ValidateAccessToken(token)
	require.NoError(t, err)
}

// forgeToken signs a JWT with the given secret and claims.
func forgeToken(t *testing.T, secret []byte, claims jwt.Claims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(secret)
	require.NoError(t, err)
	return signed
}

func TestValidateToken_WrongIssuer(t *testing.T) {
	mgr := testManager(t)
	secret := []byte("0123456789abcdef0123456789abcdef")

	now := time.Now().UTC()
	token := forgeToken(t, secret, &auth.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   uuid.New().String(),
			Issuer:    "someone-else",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
			ID:        uuid.New().String(),
		},
		Role: model.RoleCitizen,
		Kind: "access",
	})

	_, err := mgr.ValidateAccessToken(token)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid issuer")
}

func TestValidateToken_MalformedSubject(t *testing.T) {
	mgr := testManager(t)
	secret := []byte("0123456789abcdef0123456789abcdef")

	now := time.Now().UTC()
	token := forgeToken(t, secret, &auth.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "not-a-uuid",
			Issuer:    "byaboneka",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
			ID:        uuid.New().String(),
		},
		Role: model.RoleCitizen,
		Kind: "access",
	})

	_, err := mgr.ValidateAccessToken(token)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid subject")
}

func TestValidateToken_WrongKind(t *testing.T) {
	mgr := testManager(t)
	secret := []byte("0123456789abcdef0123456789abcdef")

	now := time.Now().UTC()
	token := forgeToken(t, secret, &auth.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   uuid.New().String(),
			Issuer:    "byaboneka",
			Audience:  jwt.ClaimStrings{"byaboneka"},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
			ID:        uuid.New().String(),
		},
		Role: model.RoleCitizen,
		Kind: "refresh",
	})

	_, err := mgr.ValidateAccessToken(token)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "wrong token kind")
}

func TestValidateToken_ExpiredRejected(t *testing.T) {
	mgr := testManager(t)
	secret := []byte("0123456789abcdef0123456789abcdef")

	now := time.Now().UTC()
	token := forgeToken(t, secret, &auth.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   uuid.New().String(),
			Issuer:    "byaboneka",
			Audience:  jwt.ClaimStrings{"byaboneka"},
			IssuedAt:  jwt.NewNumericDate(now.Add(-2 * time.Hour)),
			ExpiresAt: jwt.NewNumericDate(now.Add(-time.Hour)),
			ID:        uuid.New().String(),
		},
		Role: model.RoleCitizen,
		Kind: "access",
	})

	_, err := mgr.ValidateAccessToken(token)
	require.Error(t, err)
}

func TestGenerateOTPFormat(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 20; i++ {
		otp, err := auth.GenerateOTP()
		require.NoError(t, err)
		require.Len(t, otp, auth.OTPLength)
		for _, c := range otp {
			assert.True(t, c >= '0' && c <= '9', "otp %q has non-digit", otp)
		}
		seen[otp] = true
	}
	// 20 draws from a million values colliding every time is absurd.
	assert.Greater(t, len(seen), 1)
}

func TestGenerateOpaqueToken(t *testing.T) {
	a, err := auth.GenerateOpaqueToken()
	require.NoError(t, err)
	b, err := auth.GenerateOpaqueToken()
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
	assert.GreaterOrEqual(t, len(a), 43) // 32 bytes base64url
}
