package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kevin07696/bikeshare-payments/internal/config"
)

func TestNewSecretManager(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.SecretsConfig
		wantErr string
	}{
		{name: "local", cfg: config.SecretsConfig{Backend: "local", LocalPath: t.TempDir()}},
		{name: "default_is_local", cfg: config.SecretsConfig{LocalPath: t.TempDir()}},
		{name: "vault_token_missing", cfg: config.SecretsConfig{Backend: "vault", VaultAddress: "http://127.0.0.1:8200", VaultAuthMethod: "token"}, wantErr: "token is required"},
		{name: "unknown", cfg: config.SecretsConfig{Backend: "gcp"}, wantErr: "unknown secret manager"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sm, err := NewSecretManager(context.Background(), tt.cfg, zap.NewNop())
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, sm)
		})
	}
}

func TestBuild_RefusesEmptyWebhookSecret(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "psp"), []byte("  \n"), 0o600))

	cfg := &config.Config{
		Payout: config.PayoutConfig{
			SharePercent:   decimal.NewFromInt(100),
			DefaultMinimum: decimal.NewFromInt(10),
		},
		Secrets: config.SecretsConfig{Backend: "local", LocalPath: dir},
		Webhook: config.WebhookConfig{
			CardSecret:    "whsec_card",
			PSPSecretPath: "psp",
			PayoutSecret:  "payout-secret",
		},
		PayoutAPI: config.PayoutAPIConfig{APIKey: "key"},
	}

	app, err := Build(context.Background(), cfg, zap.NewNop())
	require.Error(t, err)
	assert.Nil(t, app)
	assert.Contains(t, err.Error(), "psp_webhook")
}
