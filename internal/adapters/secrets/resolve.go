package secrets

import (
	"context"
	"fmt"

	"github.com/kevin07696/bikeshare-payments/internal/adapters/ports"
)

// Resolve returns value when it is set, otherwise reads path from the secret
// manager. An empty path with no value resolves to "" (secret not configured).
func Resolve(ctx context.Context, sm ports.SecretManagerAdapter, value, path string) (string, error) {
	if value != "" || path == "" {
		return value, nil
	}
	if sm == nil {
		return "", fmt.Errorf("secret %s requested but no secret manager is configured", path)
	}

	secret, err := sm.GetSecret(ctx, path)
	if err != nil {
		return "", err
	}
	if secret.Value == "" {
		return "", fmt.Errorf("secret %s is empty", path)
	}
	return secret.Value, nil
}
