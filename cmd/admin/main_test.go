package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/kevin07696/bikeshare-payments/internal/domain"
	"github.com/kevin07696/bikeshare-payments/internal/domain/ports"
	"github.com/kevin07696/bikeshare-payments/internal/services/payout"
	"github.com/kevin07696/bikeshare-payments/internal/testutil/fixtures"
	"github.com/kevin07696/bikeshare-payments/internal/testutil/mocks"
)

type harness struct {
	payouts *mocks.MockPayoutService
	refunds *mocks.MockRefundService
	out     *bytes.Buffer
	closed  int
	cli     *cli
}

func newHarness() *harness {
	h := &harness{
		payouts: new(mocks.MockPayoutService),
		refunds: new(mocks.MockRefundService),
		out:     new(bytes.Buffer),
	}
	h.cli = &cli{
		out:     h.out,
		now:     func() time.Time { return time.Date(2026, 3, 15, 9, 0, 0, 0, time.UTC) },
		timeout: time.Minute,
		open: func(ctx context.Context) (*services, error) {
			return &services{payouts: h.payouts, refunds: h.refunds, close: func() { h.closed++ }}, nil
		},
	}
	return h
}

func (h *harness) run(args ...string) error {
	cmd := newRootCmd(h.cli)
	cmd.SetArgs(args)
	cmd.SetOut(h.out)
	cmd.SetErr(h.out)
	return cmd.Execute()
}

var (
	febStart = time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	marStart = time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
)

func TestPayoutsRun_DefaultsToPreviousMonth(t *testing.T) {
	h := newHarness()
	h.payouts.On("RunPayoutPeriod", mock.Anything, febStart, marStart).
		Return(&payout.RunReport{PeriodStart: febStart, PeriodEnd: marStart}, nil)

	require.NoError(t, h.run("payouts", "run"))

	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(h.out.Bytes(), &out))
	assert.Equal(t, "success", out["result"])
	assert.Equal(t, 1, h.closed)
	h.payouts.AssertExpectations(t)
}

func TestPayoutsRun_SingleScope(t *testing.T) {
	h := newHarness()
	scope := domain.PayoutScope{Type: domain.ScopeLocation, ID: "amsterdam-zuid"}
	start := time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	h.payouts.On("RunScope", mock.Anything, scope, start, end).Return(&payout.RunReport{}, nil)

	require.NoError(t, h.run("payouts", "run", "--from", "2025-12-01", "--to", "2026-01-01",
		"--scope-type", "location", "--scope-id", "amsterdam-zuid"))
	h.payouts.AssertExpectations(t)
}

func TestPayoutsRun_BadFlags(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"only_from", []string{"--from", "2026-01-01"}},
		{"inverted", []string{"--from", "2026-02-01", "--to", "2026-01-01"}},
		{"bad_date", []string{"--from", "jan", "--to", "2026-01-01"}},
		{"unknown_scope_type", []string{"--scope-type", "planet", "--scope-id", "earth"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness()
			err := h.run(append([]string{"payouts", "run"}, tt.args...)...)
			assert.Error(t, err)
			assert.Equal(t, 0, h.closed, "services must not be opened for invalid input")
		})
	}
}

func TestPayoutsRetry_ErrorCarriesCategory(t *testing.T) {
	h := newHarness()
	id := uuid.New()
	h.payouts.On("Retry", mock.Anything, id, true).Return(nil, domain.ErrPayoutNotRetryable)

	err := h.run("payouts", "retry", id.String(), "--force")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "[invalid_state]")
	assert.True(t, errors.Is(err, domain.ErrPayoutNotRetryable))
}

func TestPayoutsCancel(t *testing.T) {
	h := newHarness()
	p := fixtures.NewPayout().WithStatus(domain.PayoutStatusCancelled).Build()
	h.payouts.On("Cancel", mock.Anything, p.ExternalID, "duplicate bank account").Return(p, nil)

	require.NoError(t, h.run("payouts", "cancel", p.ExternalID.String(), "--reason", "  duplicate bank account "))
	h.payouts.AssertExpectations(t)

	assert.Error(t, newHarness().run("payouts", "cancel", p.ExternalID.String()), "reason is required")
	assert.Error(t, newHarness().run("payouts", "cancel", "not-a-uuid", "--reason", "x"))
}

func TestPayoutsList_Filters(t *testing.T) {
	h := newHarness()
	h.payouts.On("History", mock.Anything, mock.MatchedBy(func(f ports.PayoutFilter) bool {
		return f.Status != nil && *f.Status == domain.PayoutStatusFailed &&
			f.Scope != nil && f.Scope.Type == domain.ScopeCompany && f.Limit == 10
	})).Return([]*domain.Payout{}, nil)

	require.NoError(t, h.run("payouts", "list", "--status", "failed", "--scope-type", "company", "--scope-id", "velo-nl", "-n", "10"))
	h.payouts.AssertExpectations(t)
}

func TestPayoutsStatus(t *testing.T) {
	h := newHarness()
	id := uuid.New()
	h.payouts.On("Get", mock.Anything, id).Return(&payout.PayoutDetail{}, nil)
	h.payouts.On("ExternalStatus", mock.Anything, id).Return(&payout.ExternalStatus{}, nil)

	require.NoError(t, h.run("payouts", "status", id.String()))
	require.NoError(t, h.run("payouts", "status", id.String(), "--external"))
	h.payouts.AssertExpectations(t)
}

func TestRefunds(t *testing.T) {
	h := newHarness()
	txnID := uuid.New()
	refundID := uuid.New()
	h.refunds.On("Request", mock.Anything, txnID, fixtures.Dec("12.50"), "damaged_bike").Return(&domain.Refund{}, nil)
	h.refunds.On("Complete", mock.Anything, refundID).Return(&domain.Refund{}, nil)

	require.NoError(t, h.run("refunds", "request", txnID.String(), "--amount", "12.50", "--reason", "damaged_bike"))
	require.NoError(t, h.run("refunds", "complete", refundID.String()))
	h.refunds.AssertExpectations(t)

	assert.Error(t, newHarness().run("refunds", "request", txnID.String(), "--amount", "lots", "--reason", "x"))
}

func TestOpenFailure(t *testing.T) {
	h := newHarness()
	h.cli.open = func(ctx context.Context) (*services, error) { return nil, errors.New("connection refused") }

	err := h.run("payouts", "preview")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connect")
}
