package jwt

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signed(t *testing.T, claims jwt.RegisteredClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("irrelevant"))
	require.NoError(t, err)
	return token
}

func TestCheckExpiry(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		token   string
		wantErr error
	}{
		{"opaque token", "f1d2d2f924e986ac86fdf7b36c94bcdf32beec15", nil},
		{"empty token", "", nil},
		{"no exp claim", signed(t, jwt.RegisteredClaims{Subject: "auth0|abc"}), nil},
		{"valid", signed(t, jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour))}), nil},
		{"expired", signed(t, jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(now.Add(-time.Minute))}), ErrExpiredToken},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantErr, CheckExpiry(tt.token, now))
		})
	}
}

func TestInspect_ReadsSubject(t *testing.T) {
	claims, ok := Inspect(signed(t, jwt.RegisteredClaims{Subject: "auth0|abc"}))

	require.True(t, ok)
	assert.Equal(t, "auth0|abc", claims.Subject)
}
