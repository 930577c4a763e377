//go:build integration

package integration

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegister_CreatesUserWithAnchorAddress(t *testing.T) {
	router := setupTestRouter(t)

	resp := registerUser(t, router, "amina@example.com")

	assert.NotEmpty(t, resp.User.ID)
	assert.Equal(t, "amina@example.com", resp.User.Email)
	assert.Regexp(t, "^0x[0-9a-fA-F]{40}$", resp.User.AnchorAddress)
}

func TestRegister_DuplicateEmail(t *testing.T) {
	router := setupTestRouter(t)

	registerUser(t, router, "amina@example.com")

	rec := doRequest(t, router, http.MethodPost, "/api/v1/auth/register", "", map[string]string{
		"name":     "Someone Else",
		"email":    "amina@example.com",
		"password": "another-long-password",
	}, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestRegister_RejectsShortPassword(t *testing.T) {
	router := setupTestRouter(t)

	rec := doRequest(t, router, http.MethodPost, "/api/v1/auth/register", "", map[string]string{
		"name":     "Amina Diallo",
		"email":    "amina@example.com",
		"password": "short",
	}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLogin_ReturnsUsableToken(t *testing.T) {
	router := setupTestRouter(t)
	registerUser(t, router, "amina@example.com")

	var resp authResponse
	rec := doRequest(t, router, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"email":    "amina@example.com",
		"password": "correct-horse-battery",
	}, &resp)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotEmpty(t, resp.Token)

	// The login token must open protected routes
	rec = doRequest(t, router, http.MethodGet, "/api/v1/balance", resp.Token, nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestLogin_WrongPassword(t *testing.T) {
	router := setupTestRouter(t)
	registerUser(t, router, "amina@example.com")

	rec := doRequest(t, router, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"email":    "amina@example.com",
		"password": "not-the-password",
	}, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestProtectedRoutes_RequireToken(t *testing.T) {
	router := setupTestRouter(t)

	rec := doRequest(t, router, http.MethodGet, "/api/v1/balance", "", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doRequest(t, router, http.MethodGet, "/api/v1/transactions", "garbage-token", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHealthEndpoints(t *testing.T) {
	router := setupTestRouter(t)

	rec := doRequest(t, router, http.MethodGet, "/health", "", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, router, http.MethodGet, "/health/ready", "", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	var detailed struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	rec = doRequest(t, router, http.MethodGet, "/health/detailed", "", nil, &detailed)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "signing", detailed.Checks["anchoring"])
}
