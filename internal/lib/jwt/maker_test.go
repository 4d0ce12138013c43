package jwt

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test_secret_key_1234567890"

func TestJWTMaker_GenerateAndParseToken(t *testing.T) {
	tokenTTL := 15 * time.Minute
	maker := NewJWTMaker(testSecret, tokenTTL)

	tests := []struct {
		name     string
		username string
		role     string
	}{
		{name: "admin", username: "admin", role: RoleAdmin},
		{name: "viewer", username: "support@example.com", role: "viewer"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token, err := maker.GenerateToken(tt.username, tt.role)
			require.NoError(t, err)
			assert.NotEmpty(t, token)

			claims, err := maker.ParseToken(token)
			require.NoError(t, err)

			assert.Equal(t, tt.username, claims.Username)
			assert.Equal(t, tt.username, claims.Subject)
			assert.Equal(t, tt.role, claims.Role)
			assert.WithinDuration(t, time.Now().Add(tokenTTL), claims.ExpiresAt.Time, time.Second)
		})
	}
}

func TestJWTMaker_ParseToken_InvalidTokens(t *testing.T) {
	maker := NewJWTMaker(testSecret, 15*time.Minute)

	validToken, err := maker.GenerateToken("admin", RoleAdmin)
	require.NoError(t, err)

	expired, err := NewJWTMaker(testSecret, -time.Hour).GenerateToken("admin", RoleAdmin)
	require.NoError(t, err)

	wrongSecret, err := NewJWTMaker("wrong_secret_key", 15*time.Minute).GenerateToken("admin", RoleAdmin)
	require.NoError(t, err)

	noExpiry, err := jwt.NewWithClaims(jwt.SigningMethodHS256, CustomClaims{
		Username:         "admin",
		Role:             RoleAdmin,
		RegisteredClaims: jwt.RegisteredClaims{Issuer: "purchasekit"},
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)

	foreignIssuer, err := jwt.NewWithClaims(jwt.SigningMethodHS256, CustomClaims{
		Username: "admin",
		Role:     RoleAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "someone-else",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
	}{
		{name: "empty token", token: ""},
		{name: "malformed token", token: "invalid.token.here"},
		{name: "expired token", token: expired},
		{name: "wrong secret key", token: wrongSecret},
		{name: "tampered token", token: validToken + "tampered"},
		{name: "missing expiry", token: noExpiry},
		{name: "foreign issuer", token: foreignIssuer},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims, err := maker.ParseToken(tt.token)
			assert.Error(t, err)
			assert.Nil(t, claims)
		})
	}
}

func TestJWTMaker_EmptySecret(t *testing.T) {
	maker := NewJWTMaker("", time.Minute)

	_, err := maker.GenerateToken("admin", RoleAdmin)
	assert.ErrorIs(t, err, ErrEmptySecret)

	_, err = maker.ParseToken("a.b.c")
	assert.ErrorIs(t, err, ErrEmptySecret)
}

func TestJWTMaker_TokenExpiration(t *testing.T) {
	maker := NewJWTMaker(testSecret, time.Second)

	token, err := maker.GenerateToken("admin", RoleAdmin)
	require.NoError(t, err)

	_, err = maker.ParseToken(token)
	require.NoError(t, err)

	time.Sleep(2100 * time.Millisecond)

	_, err = maker.ParseToken(token)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expired")
}
