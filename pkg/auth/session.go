// Package auth handles the client side of the external authentication
// boundary: logging in, holding the session token, and extracting the
// user's identity from it. Token validation is the server's job; the
// client only reads claims.
package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

type Claims struct {
	UserID    string `json:"userId"`
	FirstName string `json:"firstName"`
	jwt.RegisteredClaims
}

// Session is an authenticated identity plus the bearer token that proves it.
type Session struct {
	Token     string
	UserID    string
	FirstName string
}

type loginRequest struct {
	EmailID  string `json:"emailId"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token string `json:"token"`
	User  struct {
		ID        string `json:"_id"`
		FirstName string `json:"firstName"`
	} `json:"user"`
}

// Login authenticates against the API and returns the session. Identity
// comes from the login response when present, otherwise from the token
// claims.
func Login(ctx context.Context, apiBase, emailID, password string) (*Session, error) {
	reqBody, err := json.Marshal(loginRequest{EmailID: emailID, Password: password})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		strings.TrimRight(apiBase, "/")+"/login", bytes.NewBuffer(reqBody))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("login failed: %s", strings.TrimSpace(string(body)))
	}

	var lr loginResponse
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		return nil, err
	}
	if lr.Token == "" {
		return nil, errors.New("login response carried no token")
	}

	s := &Session{Token: lr.Token, UserID: lr.User.ID, FirstName: lr.User.FirstName}
	if s.UserID == "" {
		claims, err := IdentityFromToken(lr.Token)
		if err != nil {
			return nil, fmt.Errorf("no identity in login response or token: %w", err)
		}
		s.UserID = claims.UserID
		if s.FirstName == "" {
			s.FirstName = claims.FirstName
		}
	}
	return s, nil
}

// Logout tells the API to end the session. Best-effort: the caller clears
// local state regardless.
func Logout(ctx context.Context, apiBase, token string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		strings.TrimRight(apiBase, "/")+"/logout", nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("logout returned %s", resp.Status)
	}
	return nil
}

// IdentityFromToken parses the token claims without verifying the
// signature. The server verified the token when it issued it.
func IdentityFromToken(token string) (*Claims, error) {
	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, err
	}
	if claims.UserID == "" {
		return nil, errors.New("token carries no userId claim")
	}
	return claims, nil
}
