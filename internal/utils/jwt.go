package utils

import (
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

var jwtSecret []byte

// SetSigningSecret configures the shared secret used to verify identity
// tokens. Called once at startup.
func SetSigningSecret(secret []byte) { jwtSecret = secret }

// IdentityClaims are the signed identity claims a client may present instead
// of raw auth fields.
type IdentityClaims struct {
	UID      string `json:"uid"`
	Name     string `json:"name"`
	PhotoURL string `json:"photoURL,omitempty"`
	Email    string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// SigningEnabled reports whether a shared secret is configured. Without one,
// identity tokens are rejected and clients must supply raw claims.
func SigningEnabled() bool { return len(jwtSecret) > 0 }

// ValidateIdentityToken parses and verifies a signed identity token.
func ValidateIdentityToken(tokenStr string) (*IdentityClaims, error) {
	if !SigningEnabled() {
		return nil, errors.New("identity token signing is not configured")
	}

	claims := &IdentityClaims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return jwtSecret, nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}

// ExtractTokenFromHeader pulls the bearer token out of an Authorization header.
func ExtractTokenFromHeader(header string) (string, error) {
	if header == "" {
		return "", errors.New("missing authorization header")
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" {
		return "", errors.New("authorization header must be a bearer token")
	}
	return parts[1], nil
}
