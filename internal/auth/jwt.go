package auth

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// jwtClaims is the on-wire shape of an app-minted token, matching Claims
// plus the registered JWT fields.
type jwtClaims struct {
	jwt.RegisteredClaims
	UserID      string   `json:"user_id"`
	FullName    string   `json:"full_name,omitempty"`
	Age         int      `json:"age,omitempty"`
	DateOfBirth string   `json:"date_of_birth,omitempty"`
	Roles       []string `json:"roles,omitempty"`
	Permissions []string `json:"permissions,omitempty"`
	FamilyIDs   []string `json:"family_ids,omitempty"`
	ParentID    string   `json:"parent_id,omitempty"`
}

// JWTVerifier is the default TokenVerifier, keyed off JWT_SECRET (spec §6).
type JWTVerifier struct {
	secret []byte
}

// NewJWTVerifier builds a JWTVerifier from the configured secret.
func NewJWTVerifier(secret string) *JWTVerifier {
	return &JWTVerifier{secret: []byte(secret)}
}

func (v *JWTVerifier) Verify(token string) (Claims, error) {
	parsed, err := jwt.ParseWithClaims(token, &jwtClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("auth: unexpected signing method %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil || !parsed.Valid {
		return Claims{}, ErrInvalidToken
	}
	claims, ok := parsed.Claims.(*jwtClaims)
	if !ok || claims.UserID == "" {
		return Claims{}, ErrInvalidToken
	}
	return Claims{
		UserID:      claims.UserID,
		FullName:    claims.FullName,
		Age:         claims.Age,
		DateOfBirth: claims.DateOfBirth,
		Roles:       claims.Roles,
		Permissions: claims.Permissions,
		FamilyIDs:   claims.FamilyIDs,
		ParentID:    claims.ParentID,
	}, nil
}
