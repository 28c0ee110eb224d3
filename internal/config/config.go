package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Config holds all application configuration
type Config struct {
	Environment string
	Server      ServerConfig
	Database    DatabaseConfig
	Webhook     WebhookConfig
	PayoutAPI   PayoutAPIConfig
	Payout      PayoutConfig
	Secrets     SecretsConfig
	Admin       AdminConfig
	Logger      LoggerConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int
	Host            string
	MetricsPort     int
	HandlerTimeout  time.Duration
	ShutdownTimeout time.Duration
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	Host             string
	Port             int
	User             string
	Password         string
	Database         string
	SSLMode          string
	MaxConns         int32
	MinConns         int32
	StatementTimeout time.Duration
}

// WebhookConfig holds per-gateway signing secrets. A value wins over its
// secret-manager path; every gateway needs one or the other.
type WebhookConfig struct {
	CardSecret       string
	CardSecretPath   string
	PSPSecret        string
	PSPSecretPath    string
	PayoutSecret     string
	PayoutSecretPath string

	TimestampTolerance time.Duration
	RateLimitRPS       float64
	RateLimitBurst     int
}

// PayoutAPIConfig holds payout provider configuration
type PayoutAPIConfig struct {
	BaseURL    string
	APIKey     string
	APIKeyPath string
	Timeout    time.Duration

	BreakerMaxFailures uint32
	BreakerTimeout     time.Duration
	StatusRetries      uint64
}

// PayoutConfig holds payout calculation rules
type PayoutConfig struct {
	SharePercent   decimal.Decimal
	DefaultMinimum decimal.Decimal
	Minimums       map[string]decimal.Decimal
}

// SecretsConfig selects and configures the secret manager backend
type SecretsConfig struct {
	Backend  string // local, aws, vault
	CacheTTL time.Duration

	LocalPath string

	AWSRegion   string
	AWSProfile  string
	AWSEndpoint string

	VaultAddress    string
	VaultAuthMethod string
	VaultToken      string
	VaultRoleID     string
	VaultSecretID   string
	VaultK8sRole    string
	VaultNamespace  string
	VaultMountPath  string
}

// AdminConfig holds operator surface credentials
type AdminConfig struct {
	Token      string
	CronSecret string
}

// LoggerConfig holds logging configuration
type LoggerConfig struct {
	Level       string // debug, info, warn, error
	Development bool
}

// Load reads an optional .env file and then the environment. Variables
// already set in the environment are not overridden by the file.
func Load(envFiles ...string) (*Config, error) {
	if err := godotenv.Load(envFiles...); err != nil && len(envFiles) > 0 {
		return nil, fmt.Errorf("load env file: %w", err)
	}
	return LoadFromEnv()
}

// LoadFromEnv loads configuration from environment variables
func LoadFromEnv() (*Config, error) {
	minimums, err := getEnvAsDecimalMap("PAYOUT_MINIMUMS")
	if err != nil {
		return nil, err
	}
	share, err := getEnvAsDecimal("PAYOUT_SHARE_PERCENT", "100")
	if err != nil {
		return nil, err
	}
	defaultMinimum, err := getEnvAsDecimal("PAYOUT_DEFAULT_MINIMUM", "10.00")
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Server: ServerConfig{
			Port:            getEnvAsInt("SERVER_PORT", 8080),
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			MetricsPort:     getEnvAsInt("METRICS_PORT", 9090),
			HandlerTimeout:  getEnvAsDuration("HANDLER_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getEnvAsDuration("SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		Database: DatabaseConfig{
			Host:             getEnv("DB_HOST", "localhost"),
			Port:             getEnvAsInt("DB_PORT", 5432),
			User:             getEnv("DB_USER", "postgres"),
			Password:         getEnv("DB_PASSWORD", ""),
			Database:         getEnv("DB_NAME", "bikeshare_payments"),
			SSLMode:          getEnv("DB_SSL_MODE", "disable"),
			MaxConns:         int32(getEnvAsInt("DB_MAX_CONNS", 25)),
			MinConns:         int32(getEnvAsInt("DB_MIN_CONNS", 5)),
			StatementTimeout: getEnvAsDuration("DB_STATEMENT_TIMEOUT", 5*time.Second),
		},
		Webhook: WebhookConfig{
			CardSecret:         getEnv("CARD_WEBHOOK_SECRET", ""),
			CardSecretPath:     getEnv("CARD_WEBHOOK_SECRET_PATH", ""),
			PSPSecret:          getEnv("PSP_WEBHOOK_SECRET", ""),
			PSPSecretPath:      getEnv("PSP_WEBHOOK_SECRET_PATH", ""),
			PayoutSecret:       getEnv("PAYOUT_WEBHOOK_SECRET", ""),
			PayoutSecretPath:   getEnv("PAYOUT_WEBHOOK_SECRET_PATH", ""),
			TimestampTolerance: getEnvAsDuration("WEBHOOK_TIMESTAMP_TOLERANCE", 5*time.Minute),
			RateLimitRPS:       getEnvAsFloat("WEBHOOK_RATE_LIMIT_RPS", 50),
			RateLimitBurst:     getEnvAsInt("WEBHOOK_RATE_LIMIT_BURST", 100),
		},
		PayoutAPI: PayoutAPIConfig{
			BaseURL:            getEnv("PAYOUT_API_BASE_URL", ""),
			APIKey:             getEnv("PAYOUT_API_KEY", ""),
			APIKeyPath:         getEnv("PAYOUT_API_KEY_PATH", ""),
			Timeout:            getEnvAsDuration("PAYOUT_API_TIMEOUT", 30*time.Second),
			BreakerMaxFailures: uint32(getEnvAsInt("PAYOUT_API_BREAKER_MAX_FAILURES", 5)),
			BreakerTimeout:     getEnvAsDuration("PAYOUT_API_BREAKER_TIMEOUT", 30*time.Second),
			StatusRetries:      uint64(getEnvAsInt("PAYOUT_API_STATUS_RETRIES", 3)),
		},
		Payout: PayoutConfig{
			SharePercent:   share,
			DefaultMinimum: defaultMinimum,
			Minimums:       minimums,
		},
		Secrets: SecretsConfig{
			Backend:         getEnv("SECRET_MANAGER", "local"),
			CacheTTL:        getEnvAsDuration("SECRET_CACHE_TTL", 5*time.Minute),
			LocalPath:       getEnv("LOCAL_SECRETS_PATH", "./secrets"),
			AWSRegion:       getEnv("AWS_REGION", "eu-west-1"),
			AWSProfile:      getEnv("AWS_PROFILE", ""),
			AWSEndpoint:     getEnv("AWS_SECRETS_ENDPOINT", ""),
			VaultAddress:    getEnv("VAULT_ADDR", ""),
			VaultAuthMethod: getEnv("VAULT_AUTH_METHOD", "token"),
			VaultToken:      getEnv("VAULT_TOKEN", ""),
			VaultRoleID:     getEnv("VAULT_ROLE_ID", ""),
			VaultSecretID:   getEnv("VAULT_SECRET_ID", ""),
			VaultK8sRole:    getEnv("VAULT_K8S_ROLE", ""),
			VaultNamespace:  getEnv("VAULT_NAMESPACE", ""),
			VaultMountPath:  getEnv("VAULT_MOUNT_PATH", "secret"),
		},
		Admin: AdminConfig{
			Token:      getEnv("ADMIN_TOKEN", ""),
			CronSecret: getEnv("CRON_SECRET", ""),
		},
		Logger: LoggerConfig{
			Level:       getEnv("LOG_LEVEL", "info"),
			Development: getEnvAsBool("LOG_DEVELOPMENT", false),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks required fields and value ranges
func (c *Config) Validate() error {
	if c.Database.Password == "" {
		return fmt.Errorf("DB_PASSWORD is required")
	}
	if c.Database.MaxConns < 2 {
		return fmt.Errorf("DB_MAX_CONNS must be at least 2")
	}
	if c.PayoutAPI.BaseURL == "" {
		return fmt.Errorf("PAYOUT_API_BASE_URL is required")
	}
	if c.PayoutAPI.APIKey == "" && c.PayoutAPI.APIKeyPath == "" {
		return fmt.Errorf("PAYOUT_API_KEY or PAYOUT_API_KEY_PATH is required")
	}
	for _, secret := range []struct{ env, value, path string }{
		{"CARD_WEBHOOK_SECRET", c.Webhook.CardSecret, c.Webhook.CardSecretPath},
		{"PSP_WEBHOOK_SECRET", c.Webhook.PSPSecret, c.Webhook.PSPSecretPath},
		{"PAYOUT_WEBHOOK_SECRET", c.Webhook.PayoutSecret, c.Webhook.PayoutSecretPath},
	} {
		if secret.value == "" && secret.path == "" {
			return fmt.Errorf("%s or %s_PATH is required", secret.env, secret.env)
		}
	}
	if c.Payout.SharePercent.LessThanOrEqual(decimal.Zero) || c.Payout.SharePercent.GreaterThan(decimal.NewFromInt(100)) {
		return fmt.Errorf("PAYOUT_SHARE_PERCENT must be in (0, 100]")
	}
	if c.Payout.DefaultMinimum.IsNegative() {
		return fmt.Errorf("PAYOUT_DEFAULT_MINIMUM must not be negative")
	}
	switch c.Secrets.Backend {
	case "local", "aws":
	case "vault":
		if c.Secrets.VaultAddress == "" {
			return fmt.Errorf("VAULT_ADDR is required when SECRET_MANAGER=vault")
		}
	default:
		return fmt.Errorf("unknown SECRET_MANAGER %q (want local, aws or vault)", c.Secrets.Backend)
	}
	return nil
}

// IsProduction reports whether ENVIRONMENT=production
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// ConnectionString returns PostgreSQL connection URL
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, c.SSLMode,
	)
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	value, err := strconv.ParseFloat(os.Getenv(key), 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	value, err := time.ParseDuration(os.Getenv(key))
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDecimal(key, defaultValue string) (decimal.Decimal, error) {
	value, err := decimal.NewFromString(getEnv(key, defaultValue))
	if err != nil {
		return decimal.Zero, fmt.Errorf("%s: %w", key, err)
	}
	return value, nil
}

// getEnvAsDecimalMap parses "EUR=10.00,GBP=8.50"
func getEnvAsDecimalMap(key string) (map[string]decimal.Decimal, error) {
	out := make(map[string]decimal.Decimal)
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return out, nil
	}
	for _, pair := range strings.Split(raw, ",") {
		currency, amount, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok {
			return nil, fmt.Errorf("%s: expected CURRENCY=AMOUNT, got %q", key, pair)
		}
		value, err := decimal.NewFromString(strings.TrimSpace(amount))
		if err != nil {
			return nil, fmt.Errorf("%s: %s: %w", key, currency, err)
		}
		out[strings.ToUpper(strings.TrimSpace(currency))] = value
	}
	return out, nil
}
