package secrets

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	vault "github.com/hashicorp/vault/api"
	"github.com/kevin07696/bikeshare-payments/internal/adapters/ports"
	"go.uber.org/zap"
)

// VaultConfig contains configuration for HashiCorp Vault adapter
type VaultConfig struct {
	// Vault server address (e.g., "https://vault.example.com:8200")
	Address string

	// Authentication method: "token", "approle", "kubernetes"
	AuthMethod string

	Token string

	// AppRole credentials
	RoleID   string
	SecretID string

	// Kubernetes service account token path and role
	K8sTokenPath string
	K8sRole      string

	// Vault namespace (Vault Enterprise)
	Namespace string

	// KV secrets engine mount path (default: "secret")
	MountPath string

	// KV version: "v1" or "v2" (default: "v2")
	KVVersion string

	CacheTTL    time.Duration
	EnableCache bool

	TLSSkipVerify bool
}

// DefaultVaultConfig returns default configuration for Vault adapter
func DefaultVaultConfig(address string) *VaultConfig {
	return &VaultConfig{
		Address:      address,
		AuthMethod:   "token",
		K8sTokenPath: "/var/run/secrets/kubernetes.io/serviceaccount/token",
		MountPath:    "secret",
		KVVersion:    "v2",
		CacheTTL:     5 * time.Minute,
		EnableCache:  true,
	}
}

// vaultAdapter implements the SecretManagerAdapter port for HashiCorp Vault
type vaultAdapter struct {
	client *vault.Client
	config *VaultConfig
	logger *zap.Logger
	cache  *secretCache
}

// NewVaultAdapter creates a new HashiCorp Vault adapter
func NewVaultAdapter(ctx context.Context, cfg *VaultConfig, logger *zap.Logger) (ports.SecretManagerAdapter, error) {
	vaultConfig := vault.DefaultConfig()
	vaultConfig.Address = cfg.Address

	if cfg.TLSSkipVerify {
		if err := vaultConfig.ConfigureTLS(&vault.TLSConfig{Insecure: true}); err != nil {
			return nil, fmt.Errorf("failed to configure TLS: %w", err)
		}
	}

	client, err := vault.NewClient(vaultConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create Vault client: %w", err)
	}

	if cfg.Namespace != "" {
		client.SetNamespace(cfg.Namespace)
	}

	if err := authenticateVault(ctx, client, cfg); err != nil {
		return nil, fmt.Errorf("failed to authenticate with Vault: %w", err)
	}

	logger.Info("Vault adapter initialized",
		zap.String("address", cfg.Address),
		zap.String("auth_method", cfg.AuthMethod),
		zap.String("mount_path", cfg.MountPath),
		zap.String("kv_version", cfg.KVVersion),
	)

	return &vaultAdapter{
		client: client,
		config: cfg,
		logger: logger,
		cache:  newSecretCache(cfg.EnableCache, cfg.CacheTTL),
	}, nil
}

func authenticateVault(ctx context.Context, client *vault.Client, cfg *VaultConfig) error {
	var (
		path string
		data map[string]interface{}
	)

	switch cfg.AuthMethod {
	case "token":
		if cfg.Token == "" {
			return fmt.Errorf("token is required for token auth")
		}
		client.SetToken(cfg.Token)
		return nil

	case "approle":
		if cfg.RoleID == "" || cfg.SecretID == "" {
			return fmt.Errorf("role_id and secret_id are required for AppRole auth")
		}
		path = "auth/approle/login"
		data = map[string]interface{}{
			"role_id":   cfg.RoleID,
			"secret_id": cfg.SecretID,
		}

	case "kubernetes":
		if cfg.K8sTokenPath == "" || cfg.K8sRole == "" {
			return fmt.Errorf("k8s_token_path and k8s_role are required for Kubernetes auth")
		}
		jwt, err := os.ReadFile(cfg.K8sTokenPath)
		if err != nil {
			return fmt.Errorf("failed to read k8s token: %w", err)
		}
		path = "auth/kubernetes/login"
		data = map[string]interface{}{
			"jwt":  string(jwt),
			"role": cfg.K8sRole,
		}

	default:
		return fmt.Errorf("unsupported auth method: %s", cfg.AuthMethod)
	}

	resp, err := client.Logical().WriteWithContext(ctx, path, data)
	if err != nil {
		return fmt.Errorf("%s login failed: %w", cfg.AuthMethod, err)
	}
	if resp == nil || resp.Auth == nil {
		return fmt.Errorf("%s login returned no auth info", cfg.AuthMethod)
	}
	client.SetToken(resp.Auth.ClientToken)
	return nil
}

// GetSecret retrieves a secret stored under the "value" key (or the first string field)
func (a *vaultAdapter) GetSecret(ctx context.Context, path string) (*ports.Secret, error) {
	if cached := a.cache.get(path); cached != nil {
		a.logger.Debug("Secret retrieved from cache", zap.String("path", path))
		return cached, nil
	}

	fullPath := fmt.Sprintf("%s/%s", a.config.MountPath, path)
	if a.config.KVVersion == "v2" {
		fullPath = fmt.Sprintf("%s/data/%s", a.config.MountPath, path)
	}

	result, err := a.read(ctx, fullPath)
	if err != nil {
		a.logger.Error("Failed to retrieve secret from Vault",
			zap.String("path", path),
			zap.Error(err),
		)
		return nil, fmt.Errorf("failed to read secret %s from Vault: %w", path, err)
	}

	a.cache.set(path, result)
	return result, nil
}

func (a *vaultAdapter) read(ctx context.Context, fullPath string) (*ports.Secret, error) {
	secret, err := a.client.Logical().ReadWithContext(ctx, fullPath)
	if err != nil {
		return nil, err
	}
	if secret == nil {
		return nil, fmt.Errorf("secret not found")
	}
	return parseVaultSecret(secret.Data, a.config.KVVersion == "v2")
}

// parseVaultSecret extracts the value and metadata from a KV v1 or v2 response body
func parseVaultSecret(raw map[string]interface{}, kv2 bool) (*ports.Secret, error) {
	secretData := raw
	version := "1"
	var createdTime string

	if kv2 {
		data, ok := raw["data"].(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("invalid secret format from Vault")
		}
		secretData = data

		if metadata, ok := raw["metadata"].(map[string]interface{}); ok {
			switch v := metadata["version"].(type) {
			case json.Number:
				version = v.String()
			case float64:
				version = fmt.Sprintf("%.0f", v)
			}
			if ct, ok := metadata["created_time"].(string); ok {
				createdTime = ct
			}
		}
	}

	value, _ := secretData["value"].(string)
	if value == "" {
		for _, v := range secretData {
			if str, ok := v.(string); ok && str != "" {
				value = str
				break
			}
		}
	}
	if value == "" {
		return nil, fmt.Errorf("secret value is empty or not found")
	}

	result := &ports.Secret{
		Value:     value,
		Version:   version,
		CreatedAt: createdTime,
		Metadata:  make(map[string]string),
	}
	for k, v := range secretData {
		if str, ok := v.(string); ok && k != "value" {
			result.Metadata[k] = str
		}
	}
	return result, nil
}
