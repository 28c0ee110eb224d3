// Package payoutapi talks to the external bank payout provider.
package payoutapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"
	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker/v2"

	adapterports "github.com/kevin07696/bikeshare-payments/internal/adapters/ports"
	"github.com/kevin07696/bikeshare-payments/internal/domain/ports"
	pkgerrors "github.com/kevin07696/bikeshare-payments/pkg/errors"
	"github.com/kevin07696/bikeshare-payments/pkg/observability"
	"github.com/kevin07696/bikeshare-payments/pkg/resilience"
)

// Config contains configuration for the payout API adapter
type Config struct {
	BaseURL        string // e.g., "https://api.payouts.example.com"
	APIKey         string
	CircuitBreaker CircuitBreakerConfig
	// StatusRetries bounds retries of read-only status queries
	StatusRetries uint64
}

// DefaultConfig returns default configuration
func DefaultConfig() *Config {
	return &Config{
		BaseURL:        "https://api.payouts.example.com",
		CircuitBreaker: DefaultCircuitBreakerConfig(),
		StatusRetries:  3,
	}
}

// Client implements ports.PayoutGateway over the provider's JSON API
type Client struct {
	config     *Config
	httpClient adapterports.HTTPClient
	breaker    *gobreaker.CircuitBreaker[struct{}]
	backoff    resilience.BackoffConfig
	logger     adapterports.Logger
}

// NewClient creates a payout API client
func NewClient(config *Config, httpClient adapterports.HTTPClient, logger adapterports.Logger) *Client {
	return &Client{
		config:     config,
		httpClient: httpClient,
		breaker:    newCircuitBreaker(config.CircuitBreaker, logger),
		backoff:    resilience.PayoutStatusBackoff(config.StatusRetries),
		logger:     logger,
	}
}

// Payout API request/response structures
type createPayoutRequest struct {
	Amount      string      `json:"amount"`
	Currency    string      `json:"currency"`
	Destination destination `json:"destination"`
	Description string      `json:"description,omitempty"`
	Reference   string      `json:"reference"`
}

type destination struct {
	IBAN       string `json:"iban"`
	HolderName string `json:"holder_name"`
}

type payoutResponse struct {
	ID             string `json:"id"`
	Status         string `json:"status"`
	Amount         string `json:"amount"`
	Currency       string `json:"currency"`
	FailureMessage string `json:"failure_message"`
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// CreatePayout asks the provider to transfer req.Amount to the bank account.
// The idempotency key makes a repeated request for the same attempt safe.
func (c *Client) CreatePayout(ctx context.Context, req *ports.PayoutRequest) (*ports.PayoutResult, error) {
	body, err := json.Marshal(createPayoutRequest{
		Amount:   req.Amount.StringFixed(2),
		Currency: req.Currency,
		Destination: destination{
			IBAN:       req.IBAN,
			HolderName: req.HolderName,
		},
		Description: req.Description,
		Reference:   req.PayoutID.String(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payout request: %w", err)
	}

	c.logger.Info("Creating payout",
		adapterports.String("payout_id", req.PayoutID.String()),
		adapterports.String("currency", req.Currency),
		adapterports.String("idempotency_key", req.IdempotencyKey),
	)

	var resp payoutResponse
	err = c.call("create", func() error {
		return c.do(ctx, http.MethodPost, "/v1/payouts", body, req.IdempotencyKey, &resp)
	})
	if err != nil {
		c.logger.Error("Payout request failed",
			adapterports.String("payout_id", req.PayoutID.String()),
			adapterports.Bool("retriable", pkgerrors.IsRetriable(err)),
			adapterports.Err(err),
		)
		return nil, err
	}
	if resp.ID == "" {
		return nil, invalidReply("payout response missing id")
	}

	return &ports.PayoutResult{ExternalReference: resp.ID, Status: resp.Status}, nil
}

// GetPayout reads the provider's view of a payout. Read-only, so transient
// failures are retried with backoff.
func (c *Client) GetPayout(ctx context.Context, externalReference string) (*ports.PayoutStatusResult, error) {
	if externalReference == "" {
		return nil, pkgerrors.NewIntegrationError("INVALID_REQUEST", "payout reference is empty", pkgerrors.CategoryInvalidRequest, false)
	}
	path := "/v1/payouts/" + url.PathEscape(externalReference)

	var resp payoutResponse
	err := retry.Do(ctx, c.backoff.New(), func(ctx context.Context) error {
		err := c.call("get", func() error {
			return c.do(ctx, http.MethodGet, path, nil, "", &resp)
		})
		if err != nil && pkgerrors.IsRetriable(err) && !rejectedByBreaker(err) {
			c.logger.Warn("Payout status query failed, retrying",
				adapterports.String("external_reference", externalReference),
				adapterports.Err(err),
			)
			return retry.RetryableError(err)
		}
		return err
	})
	if err != nil {
		return nil, err
	}

	amount := decimal.Zero
	if resp.Amount != "" {
		if amount, err = decimal.NewFromString(resp.Amount); err != nil {
			return nil, invalidReply("payout amount is not a decimal")
		}
	}
	return &ports.PayoutStatusResult{
		ExternalReference: resp.ID,
		Status:            resp.Status,
		FailureMessage:    resp.FailureMessage,
		Amount:            amount,
		Currency:          resp.Currency,
	}, nil
}

// Healthy reports an open circuit, for the health endpoint
func (c *Client) Healthy(ctx context.Context) error {
	if state := c.breaker.State(); state == StateOpen {
		return fmt.Errorf("payout API circuit %s", state)
	}
	return nil
}

// call runs fn through the circuit breaker and records latency
func (c *Client) call(operation string, fn func() error) error {
	start := time.Now()
	_, err := c.breaker.Execute(func() (struct{}, error) {
		return struct{}{}, fn()
	})
	if rejectedByBreaker(err) {
		e := pkgerrors.NewIntegrationError("CIRCUIT_OPEN", "payout API circuit open", pkgerrors.CategoryUnavailable, true)
		e.Err = err
		err = e
	}

	result := "success"
	if err != nil {
		result = "permanent"
		if pkgerrors.IsRetriable(err) {
			result = "transient"
		}
	}
	observability.RecordPayoutAPICall(operation, result, time.Since(start).Seconds())
	return err
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, idempotencyKey string, out interface{}) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, strings.TrimRight(c.config.BaseURL, "/")+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create HTTP request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if idempotencyKey != "" {
		httpReq.Header.Set("Idempotency-Key", idempotencyKey)
	}

	startTime := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return pkgerrors.FromTransportError(err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return pkgerrors.FromTransportError(err)
	}

	c.logger.Debug("Payout API response",
		adapterports.String("method", method),
		adapterports.String("path", path),
		adapterports.Int("status_code", resp.StatusCode),
		adapterports.Duration("duration", time.Since(startTime)),
	)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr errorResponse
		message := strings.TrimSpace(string(respBody))
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Error.Message != "" {
			message = apiErr.Error.Message
		}
		e := pkgerrors.FromStatusCode(resp.StatusCode, message)
		if apiErr.Error.Code != "" {
			e.Details["provider_code"] = apiErr.Error.Code
		}
		return e
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		e := invalidReply("failed to decode payout API response")
		e.Err = err
		return e
	}
	return nil
}

// invalidReply is an unreadable 2xx answer. The request may have been
// executed, so it is not safe to call it permanent.
func invalidReply(msg string) *pkgerrors.IntegrationError {
	return pkgerrors.NewIntegrationError("INVALID_RESPONSE", msg, pkgerrors.CategoryInvalidReply, true)
}
