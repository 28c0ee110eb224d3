// Package app builds the service graph shared by the server and the operator CLI.
package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/kevin07696/bikeshare-payments/internal/adapters/database"
	"github.com/kevin07696/bikeshare-payments/internal/adapters/payoutapi"
	"github.com/kevin07696/bikeshare-payments/internal/adapters/ports"
	"github.com/kevin07696/bikeshare-payments/internal/adapters/postgres"
	"github.com/kevin07696/bikeshare-payments/internal/adapters/psp"
	"github.com/kevin07696/bikeshare-payments/internal/adapters/secrets"
	"github.com/kevin07696/bikeshare-payments/internal/adapters/stripe"
	"github.com/kevin07696/bikeshare-payments/internal/config"
	"github.com/kevin07696/bikeshare-payments/internal/services/payout"
	"github.com/kevin07696/bikeshare-payments/internal/services/refund"
	"github.com/kevin07696/bikeshare-payments/internal/services/statemachine"
	"github.com/kevin07696/bikeshare-payments/internal/services/webhook"
	pkghttp "github.com/kevin07696/bikeshare-payments/pkg/http"
	"github.com/kevin07696/bikeshare-payments/pkg/resilience"
	"github.com/kevin07696/bikeshare-payments/pkg/security"
)

// App holds the wired services and the adapters the HTTP layer needs
type App struct {
	DB        *database.PostgreSQLAdapter
	Timeouts  *resilience.TimeoutConfig
	PayoutAPI *payoutapi.Client

	Payouts  *payout.Service
	Refunds  *refund.Service
	Ingestor *webhook.Ingestor

	CardWebhooks   *stripe.WebhookAdapter
	PSPWebhooks    *psp.WebhookAdapter
	PayoutWebhooks *payoutapi.WebhookAdapter
}

// Build connects to the database, resolves secrets and wires every service.
// The caller owns Close.
func Build(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	calcConfig := payout.CalculatorConfig{
		Minimums:       cfg.Payout.Minimums,
		SharePercent:   cfg.Payout.SharePercent,
		DefaultMinimum: cfg.Payout.DefaultMinimum,
	}
	if err := calcConfig.Validate(); err != nil {
		return nil, fmt.Errorf("payout config: %w", err)
	}

	sm, err := NewSecretManager(ctx, cfg.Secrets, logger)
	if err != nil {
		return nil, fmt.Errorf("init secret manager: %w", err)
	}

	resolved := make(map[string]string, 4)
	for name, ref := range map[string][2]string{
		"card_webhook":   {cfg.Webhook.CardSecret, cfg.Webhook.CardSecretPath},
		"psp_webhook":    {cfg.Webhook.PSPSecret, cfg.Webhook.PSPSecretPath},
		"payout_webhook": {cfg.Webhook.PayoutSecret, cfg.Webhook.PayoutSecretPath},
		"payout_api_key": {cfg.PayoutAPI.APIKey, cfg.PayoutAPI.APIKeyPath},
	} {
		value, err := secrets.Resolve(ctx, sm, ref[0], ref[1])
		if err != nil {
			return nil, fmt.Errorf("resolve %s secret: %w", name, err)
		}
		if value == "" {
			return nil, fmt.Errorf("%s secret is empty", name)
		}
		resolved[name] = value
	}

	dbCfg := database.DefaultPostgreSQLConfig(cfg.Database.ConnectionString())
	dbCfg.MaxConns = cfg.Database.MaxConns
	dbCfg.MinConns = cfg.Database.MinConns
	dbCfg.StatementTimeout = cfg.Database.StatementTimeout

	dbAdapter, err := database.NewPostgreSQLAdapter(ctx, dbCfg, logger)
	if err != nil {
		return nil, err
	}

	timeouts := resilience.DefaultTimeoutConfig()
	timeouts.HTTPHandler = cfg.Server.HandlerTimeout
	timeouts.ExternalAPI = cfg.PayoutAPI.Timeout

	executor := postgres.NewDBExecutor(dbAdapter.Pool())
	transactions := postgres.NewTransactionRepository(executor)
	refunds := postgres.NewRefundRepository(executor)
	payouts := postgres.NewPayoutRepository(executor)
	processed := postgres.NewIdempotencyStore(executor)
	revenue := postgres.NewRevenueSource(executor)
	accounts := postgres.NewBankAccountRegistry(executor)

	apiConfig := payoutapi.DefaultConfig()
	apiConfig.BaseURL = cfg.PayoutAPI.BaseURL
	apiConfig.APIKey = resolved["payout_api_key"]
	apiConfig.StatusRetries = cfg.PayoutAPI.StatusRetries
	apiConfig.CircuitBreaker.MaxFailures = cfg.PayoutAPI.BreakerMaxFailures
	apiConfig.CircuitBreaker.Timeout = cfg.PayoutAPI.BreakerTimeout
	apiClient := payoutapi.NewClient(
		apiConfig,
		pkghttp.NewHTTPClient(pkghttp.PayoutAPIClientConfig(), cfg.PayoutAPI.Timeout),
		security.NewZapLogger(logger),
	)

	machine := statemachine.New(logger)
	calculator := payout.NewCalculator(revenue, calcConfig, logger)
	dispatcher := payout.NewDispatcher(executor, payouts, accounts, apiClient, machine, timeouts, logger)

	return &App{
		DB:        dbAdapter,
		Timeouts:  timeouts,
		PayoutAPI: apiClient,
		Payouts:   payout.NewService(executor, payouts, calculator, dispatcher, machine, logger),
		Refunds:   refund.NewService(executor, transactions, refunds, machine, logger),
		Ingestor:  webhook.NewIngestor(executor, transactions, refunds, payouts, processed, machine, logger),
		CardWebhooks: stripe.NewWebhookAdapter(stripe.Config{
			SigningSecret: resolved["card_webhook"],
			Tolerance:     cfg.Webhook.TimestampTolerance,
		}),
		PSPWebhooks: psp.NewWebhookAdapter(psp.Config{
			SigningSecret: resolved["psp_webhook"],
			Tolerance:     cfg.Webhook.TimestampTolerance,
		}),
		PayoutWebhooks: payoutapi.NewWebhookAdapter(resolved["payout_webhook"]),
	}, nil
}

// Close releases the database pool
func (a *App) Close() {
	a.DB.Close()
}

// NewSecretManager builds the configured secret backend
func NewSecretManager(ctx context.Context, cfg config.SecretsConfig, logger *zap.Logger) (ports.SecretManagerAdapter, error) {
	switch cfg.Backend {
	case "aws":
		awsCfg := secrets.DefaultAWSSecretsManagerConfig(cfg.AWSRegion)
		awsCfg.Profile = cfg.AWSProfile
		awsCfg.Endpoint = cfg.AWSEndpoint
		awsCfg.CacheTTL = cfg.CacheTTL
		return secrets.NewAWSSecretsManagerAdapter(ctx, awsCfg, logger)

	case "vault":
		vaultCfg := secrets.DefaultVaultConfig(cfg.VaultAddress)
		vaultCfg.AuthMethod = cfg.VaultAuthMethod
		vaultCfg.Token = cfg.VaultToken
		vaultCfg.RoleID = cfg.VaultRoleID
		vaultCfg.SecretID = cfg.VaultSecretID
		vaultCfg.K8sRole = cfg.VaultK8sRole
		vaultCfg.Namespace = cfg.VaultNamespace
		vaultCfg.MountPath = cfg.VaultMountPath
		vaultCfg.CacheTTL = cfg.CacheTTL
		return secrets.NewVaultAdapter(ctx, vaultCfg, logger)

	case "local", "":
		logger.Warn("Using local filesystem secret manager - NOT for production use!",
			zap.String("path", cfg.LocalPath),
		)
		return secrets.NewLocalSecretManager(cfg.LocalPath, logger), nil

	default:
		return nil, fmt.Errorf("unknown secret manager backend %q", cfg.Backend)
	}
}
