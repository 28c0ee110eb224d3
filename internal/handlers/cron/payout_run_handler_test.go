package cron

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/kevin07696/bikeshare-payments/internal/domain"
	"github.com/kevin07696/bikeshare-payments/internal/services/payout"
	"github.com/kevin07696/bikeshare-payments/pkg/resilience"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const secret = "cron-secret"

type mockRunner struct {
	mock.Mock
}

func (m *mockRunner) RunPayoutPeriod(ctx context.Context, start, end time.Time) (*payout.RunReport, error) {
	args := m.Called(ctx, start, end)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payout.RunReport), args.Error(1)
}

func newHandler(runner PayoutRunner) *PayoutRunHandler {
	h := NewPayoutRunHandler(runner, resilience.TestTimeoutConfig(), zap.NewNop(), secret)
	h.now = func() time.Time { return time.Date(2026, 3, 1, 2, 0, 0, 0, time.UTC) }
	return h
}

func emptyReport(start, end time.Time) *payout.RunReport {
	return &payout.RunReport{
		PeriodStart: start,
		PeriodEnd:   end,
		Created:     []*domain.Payout{},
		Skipped:     []*domain.PayoutDraft{},
		Failed:      []payout.ScopeFailure{},
	}
}

func TestProcessPayoutRun_Authentication(t *testing.T) {
	tests := []struct {
		name       string
		header     string
		value      string
		wantStatus int
	}{
		{"cron_secret_header", "X-Cron-Secret", secret, http.StatusOK},
		{"bearer", "Authorization", "Bearer " + secret, http.StatusOK},
		{"wrong_secret", "X-Cron-Secret", "nope", http.StatusUnauthorized},
		{"wrong_bearer", "Authorization", "Bearer nope", http.StatusUnauthorized},
		{"no_credentials", "", "", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := new(mockRunner)
			runner.On("RunPayoutPeriod", mock.Anything, mock.Anything, mock.Anything).
				Return(emptyReport(time.Time{}, time.Time{}), nil)

			req := httptest.NewRequest(http.MethodPost, "/cron/payout-run", nil)
			if tt.header != "" {
				req.Header.Set(tt.header, tt.value)
			}
			rec := httptest.NewRecorder()
			newHandler(runner).ProcessPayoutRun(rec, req)
			assert.Equal(t, tt.wantStatus, rec.Code)
		})
	}
}

func TestProcessPayoutRun_DefaultsToPreviousMonth(t *testing.T) {
	start := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	runner := new(mockRunner)
	runner.On("RunPayoutPeriod", mock.Anything, start, end).Return(emptyReport(start, end), nil)

	req := httptest.NewRequest(http.MethodPost, "/cron/payout-run", nil)
	req.Header.Set("X-Cron-Secret", secret)
	rec := httptest.NewRecorder()
	newHandler(runner).ProcessPayoutRun(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp PayoutRunResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, "2026-02-01T00:00:00Z", resp.PeriodStart)
	assert.Equal(t, "2026-03-01T00:00:00Z", resp.PeriodEnd)
	runner.AssertExpectations(t)
}

func TestProcessPayoutRun_ExplicitPeriod(t *testing.T) {
	start := time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	runner := new(mockRunner)
	runner.On("RunPayoutPeriod", mock.Anything, start, end).Return(emptyReport(start, end), nil)

	req := httptest.NewRequest(http.MethodPost, "/cron/payout-run",
		strings.NewReader(`{"period_start":"2025-12-01","period_end":"2026-01-01"}`))
	req.Header.Set("X-Cron-Secret", secret)
	rec := httptest.NewRecorder()
	newHandler(runner).ProcessPayoutRun(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	runner.AssertExpectations(t)
}

func TestProcessPayoutRun_BadPeriods(t *testing.T) {
	bodies := map[string]string{
		"only_start": `{"period_start":"2025-12-01"}`,
		"bad_date":   `{"period_start":"december","period_end":"2026-01-01"}`,
		"inverted":   `{"period_start":"2026-01-01","period_end":"2025-12-01"}`,
		"not_json":   `period=december`,
	}
	for name, body := range bodies {
		t.Run(name, func(t *testing.T) {
			runner := new(mockRunner)
			req := httptest.NewRequest(http.MethodPost, "/cron/payout-run", strings.NewReader(body))
			req.Header.Set("X-Cron-Secret", secret)
			rec := httptest.NewRecorder()
			newHandler(runner).ProcessPayoutRun(rec, req)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			runner.AssertNotCalled(t, "RunPayoutPeriod", mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestProcessPayoutRun_PartialFailure(t *testing.T) {
	runner := new(mockRunner)
	payoutID := uuid.New()
	report := emptyReport(time.Time{}, time.Time{})
	report.Scopes = 2
	report.Created = []*domain.Payout{{}}
	report.Failed = []payout.ScopeFailure{{
		PayoutID: &payoutID,
		Scope:    domain.PayoutScope{Type: domain.ScopeLocation, ID: "utrecht-centraal"},
		Currency: "EUR",
		Code:     string(domain.ErrorCodeGatewayTransient),
		Category: domain.CategoryIntegrationTransient,
	}}
	runner.On("RunPayoutPeriod", mock.Anything, mock.Anything, mock.Anything).Return(report, nil)

	req := httptest.NewRequest(http.MethodPost, "/cron/payout-run", nil)
	req.Header.Set("Authorization", "Bearer "+secret)
	rec := httptest.NewRecorder()
	newHandler(runner).ProcessPayoutRun(rec, req)

	assert.Equal(t, http.StatusPartialContent, rec.Code)
	var resp PayoutRunResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "partial", resp.Result)
	require.Len(t, resp.Failures, 1)
	assert.Equal(t, "location:utrecht-centraal", resp.Failures[0].Scope)
	assert.Equal(t, payoutID.String(), resp.Failures[0].PayoutID)
	assert.Equal(t, "integration_transient", resp.Failures[0].Category)
}

func TestProcessPayoutRun_RunInProgress(t *testing.T) {
	runner := new(mockRunner)
	runner.On("RunPayoutPeriod", mock.Anything, mock.Anything, mock.Anything).Return(nil, domain.ErrPayoutRunInProgress)

	req := httptest.NewRequest(http.MethodPost, "/cron/payout-run", nil)
	req.Header.Set("X-Cron-Secret", secret)
	rec := httptest.NewRecorder()
	newHandler(runner).ProcessPayoutRun(rec, req)

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestProcessPayoutRun_MethodNotAllowed(t *testing.T) {
	rec := httptest.NewRecorder()
	newHandler(new(mockRunner)).ProcessPayoutRun(rec, httptest.NewRequest(http.MethodGet, "/cron/payout-run", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHealthCheck(t *testing.T) {
	rec := httptest.NewRecorder()
	newHandler(new(mockRunner)).HealthCheck(rec, httptest.NewRequest(http.MethodGet, "/cron/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"healthy"`)
}
