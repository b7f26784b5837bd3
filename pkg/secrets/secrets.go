package secrets

import (
	"context"
	"errors"
	"os"
	"strings"
)

// AccessTokenKey names the auth0 access token exchanged by Client.Authenticate
const AccessTokenKey = "characterai_token"

// Common errors
var (
	ErrSecretNotFound = errors.New("secret not found")
	ErrNoVaultToken   = errors.New("no vault token provided")
	ErrNoVaultAddress = errors.New("no vault address provided")
)

// Manager provides access to secrets from various sources
type Manager interface {
	// GetSecret retrieves a secret by key
	GetSecret(ctx context.Context, key string) (string, error)
}

// EnvManager reads secrets from environment variables
type EnvManager struct{}

// GetSecret looks key up as an upper-case environment variable
func (EnvManager) GetSecret(_ context.Context, key string) (string, error) {
	value := os.Getenv(EnvKey(key))
	if value == "" {
		return "", ErrSecretNotFound
	}
	return value, nil
}

// EnvKey converts snake, kebab or dotted keys to an environment variable name
func EnvKey(key string) string {
	return strings.ToUpper(strings.NewReplacer("-", "_", ".", "_").Replace(key))
}

// GetSecretWithDefault retrieves a secret with a default value if not found
func GetSecretWithDefault(ctx context.Context, m Manager, key, defaultValue string) string {
	value, err := m.GetSecret(ctx, key)
	if err != nil {
		return defaultValue
	}
	return value
}

// AccessToken fetches the access token from m
func AccessToken(ctx context.Context, m Manager) (string, error) {
	return m.GetSecret(ctx, AccessTokenKey)
}
