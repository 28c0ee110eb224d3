package ports

import (
	"context"
)

// Secret represents a retrieved secret with metadata
type Secret struct {
	Value     string            // The secret value (e.g., webhook signing key)
	Version   string            // Secret version identifier
	Metadata  map[string]string // Additional secret metadata
	CreatedAt string            // When this version was created
}

// SecretManagerAdapter defines the port for reading secrets from a secret management service.
// Backends: local filesystem, AWS Secrets Manager, HashiCorp Vault.
//
// The service only reads secrets. Rotation happens in the backend and is
// picked up on the next restart or cache expiry.
type SecretManagerAdapter interface {
	// GetSecret retrieves the current version of a secret by its path/name.
	// Path format depends on implementation:
	//   - Local: relative file path under the base directory
	//   - AWS: "bikeshare-payments/webhooks/card" or a full ARN
	//   - Vault: "bikeshare-payments/webhooks/card" under the KV mount
	GetSecret(ctx context.Context, path string) (*Secret, error)
}
