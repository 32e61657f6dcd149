// Package auth implements the bearer-token verification named in spec §6:
// extraction from header, query string, or payload field, and a pluggable
// TokenVerifier behind a default golang-jwt/jwt/v5 implementation.
package auth

import (
	"errors"
	"net/http"
	"strings"
)

// ErrNoVerifier means no verifier configuration is present. Spec §6:
// "Absence of a verifier configuration → reject all authenticated
// requests."
var ErrNoVerifier = errors.New("auth: no token verifier configured")

// ErrInvalidToken means the presented token failed verification.
var ErrInvalidToken = errors.New("auth: invalid token")

// Claims is the decoded identity and metadata a verified token yields.
// UserID is mandatory; everything else is optional passthrough metadata
// (spec §6).
type Claims struct {
	UserID      string   `json:"user_id"`
	FullName    string   `json:"full_name,omitempty"`
	Age         int      `json:"age,omitempty"`
	DateOfBirth string   `json:"date_of_birth,omitempty"`
	Roles       []string `json:"roles,omitempty"`
	Permissions []string `json:"permissions,omitempty"`
	FamilyIDs   []string `json:"family_ids,omitempty"`
	ParentID    string   `json:"parent_id,omitempty"`
}

// TokenVerifier verifies a bearer token string and yields Claims.
type TokenVerifier interface {
	Verify(token string) (Claims, error)
}

// ExtractToken finds the bearer token from one of the three sources named
// in spec §6: the Authorization header, a "token" query parameter, or an
// "auth.token" field in a parsed payload (payloadToken, passed in by the
// caller for the websocket auth-frame case).
func ExtractToken(r *http.Request, payloadToken string) (string, bool) {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer "), true
	}
	if t := r.URL.Query().Get("token"); t != "" {
		return t, true
	}
	if payloadToken != "" {
		return payloadToken, true
	}
	return "", false
}
