package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agrinova/agrinova/internal/transport/httpapi/middleware"
)

const jwtTestSecret = "test-secret-key-minimum-32-characters-long-for-security"

func TestJWTService_GenerateAndValidateToken(t *testing.T) {
	jwtService := middleware.NewJWTService(jwtTestSecret)

	userID := uuid.New()
	email := "amina@example.com"

	t.Run("round trip", func(t *testing.T) {
		token, err := jwtService.GenerateToken(userID, email)
		require.NoError(t, err)
		assert.Len(t, strings.Split(token, "."), 3)

		claims, err := jwtService.ValidateToken(token)
		require.NoError(t, err)
		assert.Equal(t, userID, claims.UserID)
		assert.Equal(t, email, claims.Email)
		assert.Equal(t, "agrinova", claims.Issuer)
		assert.WithinDuration(t, time.Now().Add(24*time.Hour), claims.ExpiresAt.Time, time.Minute)
	})

	t.Run("reject malformed token", func(t *testing.T) {
		claims, err := jwtService.ValidateToken("invalid.token.here")
		require.Error(t, err)
		assert.Nil(t, claims)
	})

	t.Run("reject token signed with another secret", func(t *testing.T) {
		other := middleware.NewJWTService("wrong-secret-key-minimum-32-characters-long")
		token, err := other.GenerateToken(userID, email)
		require.NoError(t, err)

		claims, err := jwtService.ValidateToken(token)
		require.Error(t, err)
		assert.Nil(t, claims)
	})

	t.Run("refresh keeps user identity", func(t *testing.T) {
		token, err := jwtService.GenerateToken(userID, email)
		require.NoError(t, err)

		refreshed, err := jwtService.RefreshToken(token)
		require.NoError(t, err)

		claims, err := jwtService.ValidateToken(refreshed)
		require.NoError(t, err)
		assert.Equal(t, userID, claims.UserID)
		assert.Equal(t, email, claims.Email)
	})

	t.Run("cannot refresh garbage", func(t *testing.T) {
		refreshed, err := jwtService.RefreshToken("invalid.token.here")
		require.Error(t, err)
		assert.Empty(t, refreshed)
	})
}

func TestJWTMiddleware(t *testing.T) {
	jwtService := middleware.NewJWTService(jwtTestSecret)
	userID := uuid.New()

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotID, ok := middleware.GetUserIDFromContext(r.Context())
		require.True(t, ok)
		assert.Equal(t, userID, gotID)

		email, ok := middleware.GetUserEmailFromContext(r.Context())
		require.True(t, ok)
		assert.Equal(t, "amina@example.com", email)

		w.WriteHeader(http.StatusNoContent)
	})
	protected := middleware.JWTMiddleware(jwtService)(next)

	t.Run("valid bearer token passes", func(t *testing.T) {
		token, err := jwtService.GenerateToken(userID, "amina@example.com")
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()

		protected.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusNoContent, rec.Code)
	})

	t.Run("missing header rejected", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rec := httptest.NewRecorder()

		protected.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("non-bearer scheme rejected", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
		rec := httptest.NewRecorder()

		protected.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("tampered token rejected", func(t *testing.T) {
		token, err := jwtService.GenerateToken(userID, "amina@example.com")
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer "+token+"x")
		rec := httptest.NewRecorder()

		protected.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}
