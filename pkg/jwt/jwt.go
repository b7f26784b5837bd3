// Package jwt inspects access tokens before they are exchanged for a
// session key. Signatures are not verified; the remote identity endpoint
// remains the authority on validity.
package jwt

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrExpiredToken = errors.New("access token has expired")

// Inspect decodes the registered claims of a JWT access token.
// ok is false for opaque (non-JWT) tokens.
func Inspect(tokenString string) (claims *jwt.RegisteredClaims, ok bool) {
	claims = &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tokenString, claims); err != nil {
		return nil, false
	}
	return claims, true
}

// CheckExpiry returns ErrExpiredToken if tokenString is a JWT whose exp
// claim is before now. Opaque tokens and tokens without exp pass.
func CheckExpiry(tokenString string, now time.Time) error {
	claims, ok := Inspect(tokenString)
	if !ok || claims.ExpiresAt == nil {
		return nil
	}
	if claims.ExpiresAt.Time.Before(now) {
		return ErrExpiredToken
	}
	return nil
}
