package payoutapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/kevin07696/bikeshare-payments/internal/domain/ports"
	"github.com/kevin07696/bikeshare-payments/internal/testutil/fixtures"
	pkgerrors "github.com/kevin07696/bikeshare-payments/pkg/errors"
	"github.com/kevin07696/bikeshare-payments/pkg/resilience"
	"github.com/kevin07696/bikeshare-payments/pkg/security"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := DefaultConfig()
	cfg.BaseURL = srv.URL
	cfg.APIKey = "sk_test"
	cfg.CircuitBreaker.MaxFailures = 2
	c := NewClient(cfg, srv.Client(), security.NewZapLogger(zaptest.NewLogger(t)))
	c.backoff = resilience.BackoffConfig{Base: time.Millisecond, Max: time.Millisecond, MaxRetries: cfg.StatusRetries}
	return c
}

func samplePayoutRequest() *ports.PayoutRequest {
	return &ports.PayoutRequest{
		Amount:         fixtures.Dec("118.50"),
		Currency:       "EUR",
		IBAN:           "NL91ABNA0417164300",
		HolderName:     "Amsterdam Centraal Bikes",
		Description:    "Payout 2026-02",
		IdempotencyKey: "3b8e-0",
		PayoutID:       uuid.New(),
	}
}

func TestCreatePayout_SendsIdempotentRequest(t *testing.T) {
	req := samplePayoutRequest()

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/payouts", r.URL.Path)
		assert.Equal(t, "Bearer sk_test", r.Header.Get("Authorization"))
		assert.Equal(t, "3b8e-0", r.Header.Get("Idempotency-Key"))

		var body createPayoutRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "118.50", body.Amount)
		assert.Equal(t, "EUR", body.Currency)
		assert.Equal(t, "NL91ABNA0417164300", body.Destination.IBAN)
		assert.Equal(t, req.PayoutID.String(), body.Reference)

		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"po_123","status":"pending"}`))
	})

	result, err := client.CreatePayout(t.Context(), req)
	require.NoError(t, err)
	assert.Equal(t, "po_123", result.ExternalReference)
	assert.Equal(t, "pending", result.Status)
}

func TestCreatePayout_ClassifiesErrors(t *testing.T) {
	tests := []struct {
		name          string
		status        int
		body          string
		wantRetriable bool
		wantCode      string
	}{
		{name: "server_error_is_transient", status: 500, body: `{"error":{"code":"internal","message":"boom"}}`, wantRetriable: true, wantCode: "SERVER_ERROR"},
		{name: "unavailable_is_transient", status: 503, body: ``, wantRetriable: true, wantCode: "UNAVAILABLE"},
		{name: "rate_limited_is_transient", status: 429, body: ``, wantRetriable: true, wantCode: "RATE_LIMITED"},
		{name: "invalid_iban_is_permanent", status: 400, body: `{"error":{"code":"invalid_iban","message":"IBAN checksum failed"}}`, wantRetriable: false, wantCode: "INVALID_REQUEST"},
		{name: "closed_account_is_permanent", status: 422, body: `{"error":{"code":"account_closed","message":"account closed"}}`, wantRetriable: false, wantCode: "REJECTED"},
		{name: "bad_credentials_are_permanent", status: 401, body: ``, wantRetriable: false, wantCode: "UNAUTHORIZED"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})

			_, err := client.CreatePayout(t.Context(), samplePayoutRequest())
			require.Error(t, err)
			assert.Equal(t, tt.wantRetriable, pkgerrors.IsRetriable(err))

			var integrationErr *pkgerrors.IntegrationError
			require.ErrorAs(t, err, &integrationErr)
			assert.Equal(t, tt.wantCode, integrationErr.Code)
			assert.Equal(t, tt.status, integrationErr.StatusCode)
		})
	}
}

func TestCreatePayout_ProviderCodeKept(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"code":"invalid_iban","message":"IBAN checksum failed"}}`))
	})

	_, err := client.CreatePayout(t.Context(), samplePayoutRequest())

	var integrationErr *pkgerrors.IntegrationError
	require.ErrorAs(t, err, &integrationErr)
	assert.Equal(t, "IBAN checksum failed", integrationErr.GatewayMessage)
	assert.Equal(t, "invalid_iban", integrationErr.Details["provider_code"])
}

func TestCreatePayout_MissingIDIsTransient(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"pending"}`))
	})

	_, err := client.CreatePayout(t.Context(), samplePayoutRequest())
	require.Error(t, err)
	assert.True(t, pkgerrors.IsRetriable(err))
}

func TestCreatePayout_CircuitOpensOnTransientFailures(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	})

	for i := 0; i < 2; i++ {
		_, err := client.CreatePayout(t.Context(), samplePayoutRequest())
		require.Error(t, err)
	}
	assert.Equal(t, StateOpen, client.breaker.State())
	assert.Error(t, client.Healthy(t.Context()))

	_, err := client.CreatePayout(t.Context(), samplePayoutRequest())
	require.ErrorIs(t, err, ErrCircuitOpen)
	assert.True(t, pkgerrors.IsRetriable(err))
	assert.Equal(t, int32(2), calls.Load(), "open circuit must not reach the API")
}

func TestCreatePayout_PermanentErrorsKeepCircuitClosed(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
	})

	for i := 0; i < 5; i++ {
		_, err := client.CreatePayout(t.Context(), samplePayoutRequest())
		require.Error(t, err)
	}
	assert.Equal(t, StateClosed, client.breaker.State())
	assert.NoError(t, client.Healthy(t.Context()))
}

func TestGetPayout_RetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/payouts/po_123", r.URL.Path)
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"id":"po_123","status":"failed","amount":"118.50","currency":"EUR","failure_message":"account closed"}`))
	})

	result, err := client.GetPayout(t.Context(), "po_123")
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, "failed", result.Status)
	assert.Equal(t, "account closed", result.FailureMessage)
	assert.True(t, fixtures.Dec("118.50").Equal(result.Amount))
}

func TestGetPayout_PermanentFailureNotRetried(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	})

	_, err := client.GetPayout(t.Context(), "po_missing")
	require.Error(t, err)
	assert.False(t, pkgerrors.IsRetriable(err))
	assert.Equal(t, int32(1), calls.Load())
}

func TestGetPayout_EmptyReference(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no request expected")
	})

	_, err := client.GetPayout(t.Context(), "")
	require.Error(t, err)
	assert.False(t, pkgerrors.IsRetriable(err))
}
