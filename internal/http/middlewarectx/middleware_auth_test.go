package middlewarectx_test

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/magabrotheeeer/purchasekit/internal/http/middlewarectx"
	"github.com/magabrotheeeer/purchasekit/internal/lib/jwt"
)

type TokenParserMock struct {
	mock.Mock
}

func (m *TokenParserMock) ParseToken(token string) (*jwt.CustomClaims, error) {
	args := m.Called(token)
	claims, _ := args.Get(0).(*jwt.CustomClaims)
	return claims, args.Error(1)
}

func newNoopLogger() *slog.Logger {
	h := slog.NewTextHandler(io.Discard, &slog.HandlerOptions{})
	return slog.New(h)
}

func TestJWTMiddleware(t *testing.T) {
	tests := []struct {
		name           string
		authHeader     string
		token          string
		mockClaims     *jwt.CustomClaims
		mockErr        error
		wantStatusCode int
		wantCalled     bool
	}{
		{
			name:           "missing Authorization header",
			wantStatusCode: http.StatusUnauthorized,
		},
		{
			name:           "invalid Authorization header prefix",
			authHeader:     "Basic sometoken",
			wantStatusCode: http.StatusUnauthorized,
		},
		{
			name:           "token parse error",
			authHeader:     "Bearer token",
			token:          "token",
			mockErr:        errors.New("token is expired"),
			wantStatusCode: http.StatusUnauthorized,
		},
		{
			name:           "wrong role",
			authHeader:     "Bearer token",
			token:          "token",
			mockClaims:     &jwt.CustomClaims{Username: "viewer", Role: "user"},
			wantStatusCode: http.StatusForbidden,
		},
		{
			name:           "valid admin token",
			authHeader:     "Bearer validtoken",
			token:          "validtoken",
			mockClaims:     &jwt.CustomClaims{Username: "admin", Role: jwt.RoleAdmin},
			wantStatusCode: http.StatusOK,
			wantCalled:     true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parser := new(TokenParserMock)
			if tt.token != "" {
				parser.On("ParseToken", tt.token).Return(tt.mockClaims, tt.mockErr).Once()
			}

			called := false
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				called = true
				assert.Equal(t, "admin", r.Context().Value(middlewarectx.User))
				assert.Equal(t, jwt.RoleAdmin, r.Context().Value(middlewarectx.Role))
				w.WriteHeader(http.StatusOK)
			})
			h := middlewarectx.JWTMiddleware(parser, jwt.RoleAdmin, newNoopLogger())(next)

			req := httptest.NewRequest(http.MethodPut, "/api/v1/admin/override", nil)
			if tt.authHeader != "" {
				req.Header.Set("Authorization", tt.authHeader)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatusCode, rec.Code)
			assert.Equal(t, tt.wantCalled, called)
			parser.AssertExpectations(t)
		})
	}
}

func TestJWTMiddleware_RealMaker(t *testing.T) {
	maker := jwt.NewJWTMaker("secret", time.Minute)
	token, err := maker.GenerateToken("admin", jwt.RoleAdmin)
	if !assert.NoError(t, err) {
		return
	}

	h := middlewarectx.JWTMiddleware(maker, jwt.RoleAdmin, newNoopLogger())(
		http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNoContent) }),
	)
	req := httptest.NewRequest(http.MethodPut, "/api/v1/admin/override", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	other := jwt.NewJWTMaker("another-secret", time.Minute)
	req = httptest.NewRequest(http.MethodPut, "/api/v1/admin/override", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	middlewarectx.JWTMiddleware(other, jwt.RoleAdmin, newNoopLogger())(h).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRateLimitMiddleware(t *testing.T) {
	h := middlewarectx.RateLimitMiddleware(newNoopLogger(), 0.001, 2)(
		http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) }),
	)

	codes := make([]int, 0, 3)
	for range 3 {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/purchases", nil))
		codes = append(codes, rec.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)

	// второй экземпляр не делит квоту с первым
	other := middlewarectx.RateLimitMiddleware(newNoopLogger(), 0.001, 1)(
		http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) }),
	)
	rec := httptest.NewRecorder()
	other.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/tips", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
