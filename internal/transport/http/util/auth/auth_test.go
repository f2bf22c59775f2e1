package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssuerRoundTrip(t *testing.T) {
	issuer := NewIssuer("secret", time.Hour)
	token, exp, err := issuer.Generate("admin")
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), exp, time.Minute)

	claims, err := issuer.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, "admin", claims.Username)

	_, err = NewIssuer("other", time.Hour).Validate(token)
	assert.Error(t, err)

	issuer.Revoke(token, exp)
	_, err = issuer.Validate(token)
	assert.ErrorIs(t, err, ErrTokenRevoked)
}

func TestIssuerRejectsOtherAlgorithms(t *testing.T) {
	issuer := NewIssuer("secret", time.Hour)
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS512, &Claims{Username: "admin"}).SignedString([]byte("secret"))
	require.NoError(t, err)
	_, err = issuer.Validate(token)
	assert.Error(t, err)
}

func TestMiddleware(t *testing.T) {
	issuer := NewIssuer("secret", time.Hour)
	token, _, err := issuer.Generate("admin")
	require.NoError(t, err)

	var seen string
	h := Middleware(issuer, "/status")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetUsernameFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	cases := []struct {
		name   string
		target string
		header string
		want   int
		user   string
	}{
		{"public", "/status", "", http.StatusNoContent, ""},
		{"missing", "/sessions", "", http.StatusUnauthorized, ""},
		{"malformed", "/sessions", "Token " + token, http.StatusUnauthorized, ""},
		{"bearer", "/sessions", "Bearer " + token, http.StatusNoContent, "admin"},
		{"query", "/ws/sessions?token=" + token, "", http.StatusNoContent, "admin"},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			seen = ""
			req := httptest.NewRequest(http.MethodGet, tc.target, nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tc.want, rec.Code)
			assert.Equal(t, tc.user, seen)
		})
	}
}

func TestPasswordAcceptsPlainOrDigest(t *testing.T) {
	hash, err := HashPassword("s3cret")
	require.NoError(t, err)

	sum := sha256.Sum256([]byte("s3cret"))
	assert.True(t, VerifyPassword("s3cret", hash))
	assert.True(t, VerifyPassword(hex.EncodeToString(sum[:]), hash))
	assert.False(t, VerifyPassword("wrong", hash))
}
