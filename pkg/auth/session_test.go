package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signedToken(t *testing.T, userID, firstName string) string {
	t.Helper()
	claims := &Claims{
		UserID:    userID,
		FirstName: firstName,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test_key"))
	require.NoError(t, err)
	return token
}

func TestLoginUsesResponseIdentity(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/login", r.URL.Path)
		var req map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "dev@knot.io", req["emailId"])

		json.NewEncoder(w).Encode(map[string]any{
			"token": signedToken(t, "u1", "Dev"),
			"user":  map[string]string{"_id": "u1", "firstName": "Dev"},
		})
	}))
	defer srv.Close()

	s, err := Login(context.Background(), srv.URL, "dev@knot.io", "secret")
	require.NoError(t, err)
	assert.Equal(t, "u1", s.UserID)
	assert.Equal(t, "Dev", s.FirstName)
	assert.NotEmpty(t, s.Token)
}

func TestLoginFallsBackToTokenClaims(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"token": signedToken(t, "u2", "Sam")})
	}))
	defer srv.Close()

	s, err := Login(context.Background(), srv.URL, "dev@knot.io", "secret")
	require.NoError(t, err)
	assert.Equal(t, "u2", s.UserID)
	assert.Equal(t, "Sam", s.FirstName)
}

func TestLoginSurfacesServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "invalid credentials", http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := Login(context.Background(), srv.URL, "dev@knot.io", "wrong")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid credentials")
}

func TestIdentityFromToken(t *testing.T) {
	claims, err := IdentityFromToken(signedToken(t, "u3", "Ada"))
	require.NoError(t, err)
	assert.Equal(t, "u3", claims.UserID)

	_, err = IdentityFromToken("not-a-token")
	assert.Error(t, err)
}
