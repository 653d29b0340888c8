package auth_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unclebandit/campaign-dispatch/internal/auth"
)

const secret = "test-secret"

func TestIssueAndVerify(t *testing.T) {
	token, err := auth.IssueAdminToken(secret, "ops@example.com", time.Hour)
	require.NoError(t, err)

	claims, err := auth.VerifyAdmin(secret, token)
	require.NoError(t, err)
	assert.Equal(t, "ops@example.com", claims.Subject)
	assert.Equal(t, auth.RoleAdmin, claims.Role)
}

func TestIssueAdminToken_EmptySecret(t *testing.T) {
	_, err := auth.IssueAdminToken("", "ops", time.Hour)
	assert.Error(t, err)
}

func TestVerifyAdmin_Rejects(t *testing.T) {
	good, err := auth.IssueAdminToken(secret, "ops", time.Hour)
	require.NoError(t, err)
	expired, err := auth.IssueAdminToken(secret, "ops", -time.Minute)
	require.NoError(t, err)

	viewer, err := jwt.NewWithClaims(jwt.SigningMethodHS256, auth.AdminClaims{
		Role:             "viewer",
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
	}).SignedString([]byte(secret))
	require.NoError(t, err)

	noExpiry, err := jwt.NewWithClaims(jwt.SigningMethodHS256, auth.AdminClaims{Role: auth.RoleAdmin}).SignedString([]byte(secret))
	require.NoError(t, err)

	cases := map[string]struct{ secret, token string }{
		"wrong secret": {"other", good},
		"expired":      {secret, expired},
		"wrong role":   {secret, viewer},
		"no expiry":    {secret, noExpiry},
		"garbage":      {secret, "abc.def.ghi"},
		"empty secret": {"", good},
		"empty token":  {secret, ""},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := auth.VerifyAdmin(tc.secret, tc.token)
			assert.ErrorIs(t, err, auth.ErrUnauthorized)
		})
	}
}

func TestRequireAdmin(t *testing.T) {
	token, err := auth.IssueAdminToken(secret, "ops", time.Hour)
	require.NoError(t, err)

	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNoContent) })

	cases := []struct {
		name   string
		secret string
		header string
		want   int
	}{
		{"valid", secret, "Bearer " + token, http.StatusNoContent},
		{"missing header", secret, "", http.StatusUnauthorized},
		{"not bearer", secret, "Basic " + token, http.StatusUnauthorized},
		{"server without secret", "", "Bearer " + token, http.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/quota", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			w := httptest.NewRecorder()
			auth.RequireAdmin(tc.secret)(next).ServeHTTP(w, req)
			assert.Equal(t, tc.want, w.Code)
		})
	}
}
