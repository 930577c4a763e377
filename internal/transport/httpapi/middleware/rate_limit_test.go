package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/time/rate"
)

func rateLimitedHandler(r rate.Limit, b int) http.Handler {
	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	return NewRateLimiter(r, b).Middleware(next)
}

func hit(handler http.Handler, remoteAddr, forwardedFor string) int {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = remoteAddr
	if forwardedFor != "" {
		req.Header.Set("X-Forwarded-For", forwardedFor)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec.Code
}

func TestRateLimiter_EnforcesBurst(t *testing.T) {
	handler := rateLimitedHandler(1, 2)

	assert.Equal(t, http.StatusNoContent, hit(handler, "10.0.0.1:1234", ""))
	assert.Equal(t, http.StatusNoContent, hit(handler, "10.0.0.1:1234", ""))
	assert.Equal(t, http.StatusTooManyRequests, hit(handler, "10.0.0.1:1234", ""))
}

func TestRateLimiter_PerIPIsolation(t *testing.T) {
	handler := rateLimitedHandler(1, 1)

	assert.Equal(t, http.StatusNoContent, hit(handler, "10.0.0.1:1234", ""))
	assert.Equal(t, http.StatusTooManyRequests, hit(handler, "10.0.0.1:1234", ""))

	// A different caller has its own budget
	assert.Equal(t, http.StatusNoContent, hit(handler, "10.0.0.2:1234", ""))
}

func TestRateLimiter_ForwardedForFirstHop(t *testing.T) {
	handler := rateLimitedHandler(1, 1)

	// Both requests resolve to the same originating client even though the
	// proxy chain differs
	assert.Equal(t, http.StatusNoContent, hit(handler, "172.16.0.1:1234", "203.0.113.9"))
	assert.Equal(t, http.StatusTooManyRequests, hit(handler, "172.16.0.2:1234", "203.0.113.9, 172.16.0.2"))
}

func TestNewRateLimiter_Defaults(t *testing.T) {
	rl := NewRateLimiter(0, 0)

	assert.Equal(t, rate.Limit(DefaultRequestsPerSecond), rl.r)
	assert.Equal(t, DefaultBurst, rl.b)
}
