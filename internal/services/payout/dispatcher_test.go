package payout_test

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/kevin07696/bikeshare-payments/internal/domain"
	"github.com/kevin07696/bikeshare-payments/internal/domain/ports"
	"github.com/kevin07696/bikeshare-payments/internal/services/payout"
	"github.com/kevin07696/bikeshare-payments/internal/services/statemachine"
	"github.com/kevin07696/bikeshare-payments/internal/testutil/fixtures"
	"github.com/kevin07696/bikeshare-payments/internal/testutil/mocks"
	pkgerrors "github.com/kevin07696/bikeshare-payments/pkg/errors"
	"github.com/kevin07696/bikeshare-payments/pkg/resilience"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type payoutHarness struct {
	db         *mocks.MockDBPort
	payouts    *mocks.MockPayoutRepository
	accounts   *mocks.MockBankAccountRegistry
	gateway    *mocks.MockPayoutGateway
	revenue    *mocks.MockRevenueSource
	machine    *statemachine.Machine
	logs       *observer.ObservedLogs
	dispatcher *payout.Dispatcher
	service    *payout.Service
}

func newPayoutHarness() *payoutHarness {
	core, logs := observer.New(zapcore.DebugLevel)
	logger := zap.New(core)

	h := &payoutHarness{
		db:       new(mocks.MockDBPort),
		payouts:  new(mocks.MockPayoutRepository),
		accounts: new(mocks.MockBankAccountRegistry),
		gateway:  new(mocks.MockPayoutGateway),
		revenue:  new(mocks.MockRevenueSource),
		machine:  statemachine.New(logger),
		logs:     logs,
	}
	h.dispatcher = payout.NewDispatcher(h.db, h.payouts, h.accounts, h.gateway, h.machine, resilience.TestTimeoutConfig(), logger)
	calc := payout.NewCalculator(h.revenue, payout.DefaultCalculatorConfig(), logger)
	h.service = payout.NewService(h.db, h.payouts, calc, h.dispatcher, h.machine, logger)
	return h
}

func sampleDraft(amounts ...string) *domain.PayoutDraft {
	d := &domain.PayoutDraft{
		Scope:        scope,
		PeriodStart:  periodStart,
		PeriodEnd:    periodEnd,
		Currency:     "EUR",
		Total:        fixtures.Dec("0"),
		Minimum:      fixtures.Dec("10.00"),
		SharePercent: fixtures.Dec("100"),
	}
	for _, a := range amounts {
		d.Items = append(d.Items, domain.PayoutDraftItem{
			SourceTransactionID: uuid.New(),
			RevenueRecordID:     uuid.New(),
			GrossAmount:         fixtures.Dec(a),
			RefundedAmount:      fixtures.Dec("0"),
			Amount:              fixtures.Dec(a),
		})
		d.Total = d.Total.Add(fixtures.Dec(a))
	}
	return d
}

// expectCreate wires the persistence half of a successful Dispatch
func (h *payoutHarness) expectCreate(account *domain.BankAccount) {
	h.accounts.On("GetPayoutAccount", mock.Anything, mock.Anything, scope).Return(account, nil)
	h.payouts.On("LockScope", mock.Anything, mock.Anything, scope).Return(nil)
	h.payouts.On("CountAttachedTransactions", mock.Anything, mock.Anything, mock.Anything).Return(0, nil)
	h.payouts.On("CreateWithItems", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)
}

func TestDispatch_Success(t *testing.T) {
	h := newPayoutHarness()
	account := fixtures.VerifiedAccount(scope)
	h.expectCreate(account)

	var sent *ports.PayoutRequest
	h.gateway.On("CreatePayout", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { sent = args.Get(1).(*ports.PayoutRequest) }).
		Return(&ports.PayoutResult{ExternalReference: "po_1", Status: "pending"}, nil)
	h.payouts.On("Update", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	p, err := h.dispatcher.Dispatch(t.Context(), sampleDraft("100.00", "50.00", "25.00"))
	require.NoError(t, err)

	assert.Equal(t, domain.PayoutStatusProcessing, p.Status)
	assert.Equal(t, "po_1", p.GetExternalReference())
	assert.Equal(t, 1, p.Attempts)
	assert.True(t, fixtures.Dec("175.00").Equal(p.TotalAmount))
	assert.NoError(t, p.CheckInvariants())

	require.NotNil(t, sent)
	assert.Equal(t, fmt.Sprintf("%s-1", p.ExternalID), sent.IdempotencyKey)
	assert.Equal(t, account.IBAN, sent.IBAN)
	assert.Equal(t, p.ExternalID, sent.PayoutID)
	assert.True(t, fixtures.Dec("175.00").Equal(sent.Amount))

	h.payouts.AssertCalled(t, "CreateWithItems", mock.Anything, mock.Anything, mock.Anything,
		mock.MatchedBy(func(items []*domain.PayoutItem) bool { return len(items) == 3 }))
	// attempt claim, then the API result
	h.payouts.AssertNumberOfCalls(t, "Update", 2)
}

func TestDispatch_TimeoutThenRetryCompletes(t *testing.T) {
	h := newPayoutHarness()
	h.accounts.On("GetPayoutAccount", mock.Anything, mock.Anything, scope).Return(fixtures.VerifiedAccount(scope), nil)

	var stored *domain.Payout
	var storedItems []*domain.PayoutItem
	h.payouts.On("LockScope", mock.Anything, mock.Anything, scope).Return(nil)
	h.payouts.On("CountAttachedTransactions", mock.Anything, mock.Anything, mock.Anything).Return(0, nil)
	h.payouts.On("CreateWithItems", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			stored = args.Get(2).(*domain.Payout)
			storedItems = args.Get(3).([]*domain.PayoutItem)
		}).
		Return(nil)
	h.payouts.On("Update", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	timeout := pkgerrors.FromTransportError(context.DeadlineExceeded)
	h.gateway.On("CreatePayout", mock.Anything, mock.MatchedBy(func(r *ports.PayoutRequest) bool {
		return r.IdempotencyKey == fmt.Sprintf("%s-1", r.PayoutID)
	})).Return(nil, timeout).Once()

	p, err := h.dispatcher.Dispatch(t.Context(), sampleDraft("100.00"))
	require.NoError(t, err)
	assert.Equal(t, domain.PayoutStatusFailed, p.Status)
	assert.NotEmpty(t, p.GetFailureReason())
	assert.Equal(t, domain.FailureTransient, p.FailureCategory)
	assert.True(t, p.Retryable)
	assert.Equal(t, 1, h.logs.FilterMessage("Payout dispatch failed").Len())

	// operator retry
	h.payouts.On("GetByExternalID", mock.Anything, mock.Anything, stored.ExternalID).Return(stored, nil)
	h.payouts.On("ListItems", mock.Anything, mock.Anything, stored.ID).Return(storedItems, nil)
	h.gateway.On("CreatePayout", mock.Anything, mock.MatchedBy(func(r *ports.PayoutRequest) bool {
		return r.IdempotencyKey == fmt.Sprintf("%s-2", r.PayoutID)
	})).Return(&ports.PayoutResult{ExternalReference: "po_2"}, nil).Once()

	retried, err := h.service.Retry(t.Context(), stored.ExternalID, false)
	require.NoError(t, err)
	assert.Equal(t, domain.PayoutStatusProcessing, retried.Status)
	assert.Nil(t, retried.FailureReason)
	assert.Equal(t, "po_2", retried.GetExternalReference())

	// provider confirms through the payout webhook
	outcome, err := h.machine.ApplyPayoutEvent(retried, &domain.GatewayEvent{
		Gateway:      domain.GatewayPayoutProvider,
		Kind:         domain.EventKindPayoutStatus,
		EventID:      "po_2:paid",
		PayoutStatus: domain.PayoutStatusCompleted,
		Recognized:   true,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeApplied, outcome)
	assert.Equal(t, domain.PayoutStatusCompleted, retried.Status)
	assert.True(t, retried.RemainingAmount.IsZero())
	h.gateway.AssertExpectations(t)
}

func TestDispatch_PermanentFailureNeedsForce(t *testing.T) {
	h := newPayoutHarness()
	p := fixtures.NewPayout().WithFailure("IBAN checksum failed", domain.FailurePermanent).WithAttempts(1).Build()
	h.payouts.On("GetByExternalID", mock.Anything, mock.Anything, p.ExternalID).Return(p, nil)

	_, err := h.dispatcher.Retry(t.Context(), p.ExternalID, false)
	assert.True(t, domain.IsDomainError(err, domain.ErrorCodePayoutNotRetryable))
	h.gateway.AssertNotCalled(t, "CreatePayout", mock.Anything, mock.Anything)

	corrected := fixtures.VerifiedAccount(scope)
	h.payouts.On("ListItems", mock.Anything, mock.Anything, p.ID).Return(fixtures.ItemsFor(p), nil)
	h.accounts.On("GetPayoutAccount", mock.Anything, mock.Anything, scope).Return(corrected, nil)
	h.gateway.On("CreatePayout", mock.Anything, mock.Anything).
		Return(nil, pkgerrors.FromStatusCode(http.StatusUnprocessableEntity, "account closed"))
	h.payouts.On("Update", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	retried, err := h.dispatcher.Retry(t.Context(), p.ExternalID, true)
	require.NoError(t, err)
	assert.Equal(t, domain.PayoutStatusFailed, retried.Status)
	assert.Equal(t, corrected.ID, retried.BankAccountID)
	assert.Equal(t, 2, retried.Attempts)
	assert.Contains(t, retried.GetFailureReason(), "account closed")
	assert.False(t, retried.Retryable)
}

func TestRetry_Rejections(t *testing.T) {
	tests := []struct {
		name     string
		payout   *domain.Payout
		findErr  error
		wantCode domain.ErrorCode
	}{
		{"unknown_payout", nil, domain.ErrPayoutNotFound, domain.ErrorCodePayoutNotFound},
		{"processing_not_failed", fixtures.NewPayout().WithStatus(domain.PayoutStatusProcessing).Build(), nil, domain.ErrorCodePayoutInvalidState},
		{"completed_not_failed", fixtures.NewPayout().WithStatus(domain.PayoutStatusCompleted).Build(), nil, domain.ErrorCodePayoutInvalidState},
		{"pending_never_claimed", fixtures.NewPayout().Build(), nil, domain.ErrorCodePayoutInvalidState},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newPayoutHarness()
			id := uuid.New()
			if tt.payout != nil {
				h.payouts.On("GetByExternalID", mock.Anything, mock.Anything, id).Return(tt.payout, nil)
			} else {
				h.payouts.On("GetByExternalID", mock.Anything, mock.Anything, id).Return(nil, tt.findErr)
			}

			_, err := h.dispatcher.Retry(t.Context(), id, true)
			assert.True(t, domain.IsDomainError(err, tt.wantCode), "got %v", err)
			h.gateway.AssertNotCalled(t, "CreatePayout", mock.Anything, mock.Anything)
		})
	}
}

func TestRetry_ResumesInterruptedDispatch(t *testing.T) {
	h := newPayoutHarness()
	p := fixtures.NewPayout().WithAttempts(1).Build()
	h.payouts.On("GetByExternalID", mock.Anything, mock.Anything, p.ExternalID).Return(p, nil)
	h.payouts.On("ListItems", mock.Anything, mock.Anything, p.ID).Return(fixtures.ItemsFor(p), nil)
	h.accounts.On("GetPayoutAccount", mock.Anything, mock.Anything, scope).Return(fixtures.VerifiedAccount(scope), nil)
	h.gateway.On("CreatePayout", mock.Anything, mock.MatchedBy(func(r *ports.PayoutRequest) bool {
		return r.IdempotencyKey == fmt.Sprintf("%s-1", p.ExternalID)
	})).Return(&ports.PayoutResult{ExternalReference: "po_1"}, nil)
	h.payouts.On("Update", mock.Anything, mock.Anything, p).Return(nil)

	got, err := h.dispatcher.Retry(t.Context(), p.ExternalID, false)
	require.NoError(t, err)
	assert.Equal(t, domain.PayoutStatusProcessing, got.Status)
	assert.Equal(t, 1, got.Attempts)
	assert.Equal(t, "po_1", got.GetExternalReference())
	// no second claim
	h.payouts.AssertNumberOfCalls(t, "Update", 1)
	h.gateway.AssertExpectations(t)
}

func TestRetry_ItemMismatchAborts(t *testing.T) {
	h := newPayoutHarness()
	p := fixtures.NewPayout().WithFailure("timeout", domain.FailureTransient).Build()
	items := fixtures.ItemsFor(p)
	items[0].Amount = fixtures.Dec("99.99")
	h.payouts.On("GetByExternalID", mock.Anything, mock.Anything, p.ExternalID).Return(p, nil)
	h.payouts.On("ListItems", mock.Anything, mock.Anything, p.ID).Return(items, nil)

	_, err := h.dispatcher.Retry(t.Context(), p.ExternalID, false)
	assert.True(t, domain.IsDomainError(err, domain.ErrorCodeCalculationMismatch))
	h.gateway.AssertNotCalled(t, "CreatePayout", mock.Anything, mock.Anything)
}

func TestDispatch_NothingPersistedWhen(t *testing.T) {
	unverified := fixtures.VerifiedAccount(scope)
	unverified.Verified = false

	tests := []struct {
		name     string
		draft    *domain.PayoutDraft
		setup    func(h *payoutHarness)
		wantCode domain.ErrorCode
	}{
		{
			name:  "bank_account_unverified",
			draft: sampleDraft("100.00"),
			setup: func(h *payoutHarness) {
				h.accounts.On("GetPayoutAccount", mock.Anything, mock.Anything, scope).Return(unverified, nil)
			},
			wantCode: domain.ErrorCodeBankAccountUnverified,
		},
		{
			name:  "no_bank_account",
			draft: sampleDraft("100.00"),
			setup: func(h *payoutHarness) {
				h.accounts.On("GetPayoutAccount", mock.Anything, mock.Anything, scope).Return(nil, domain.ErrBankAccountUnverified)
			},
			wantCode: domain.ErrorCodeBankAccountUnverified,
		},
		{
			name: "items_do_not_sum",
			draft: func() *domain.PayoutDraft {
				d := sampleDraft("100.00", "50.00")
				d.Total = fixtures.Dec("150.01")
				return d
			}(),
			setup:    func(h *payoutHarness) {},
			wantCode: domain.ErrorCodeCalculationMismatch,
		},
		{
			name: "skipped_draft",
			draft: func() *domain.PayoutDraft {
				d := sampleDraft("8.00")
				d.Skipped, d.SkipReason = true, domain.SkipReasonBelowMinimum
				return d
			}(),
			setup:    func(h *payoutHarness) {},
			wantCode: domain.ErrorCodePayoutInvalidState,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newPayoutHarness()
			tt.setup(h)

			p, err := h.dispatcher.Dispatch(t.Context(), tt.draft)
			assert.Nil(t, p)
			assert.True(t, domain.IsDomainError(err, tt.wantCode), "got %v", err)
			h.payouts.AssertNotCalled(t, "CreateWithItems", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
			h.gateway.AssertNotCalled(t, "CreatePayout", mock.Anything, mock.Anything)
		})
	}
}

func TestDispatch_AlreadyAttachedTransactions(t *testing.T) {
	h := newPayoutHarness()
	h.accounts.On("GetPayoutAccount", mock.Anything, mock.Anything, scope).Return(fixtures.VerifiedAccount(scope), nil)
	h.payouts.On("LockScope", mock.Anything, mock.Anything, scope).Return(nil)
	h.payouts.On("CountAttachedTransactions", mock.Anything, mock.Anything, mock.Anything).Return(1, nil)

	_, err := h.dispatcher.Dispatch(t.Context(), sampleDraft("100.00"))
	assert.True(t, domain.IsDomainError(err, domain.ErrorCodePayoutAlreadyExists))
	h.payouts.AssertNotCalled(t, "CreateWithItems", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	h.gateway.AssertNotCalled(t, "CreatePayout", mock.Anything, mock.Anything)
}

func TestDispatch_ConcurrentCancelWinsBeforeCall(t *testing.T) {
	h := newPayoutHarness()
	h.expectCreate(fixtures.VerifiedAccount(scope))
	h.payouts.On("Update", mock.Anything, mock.Anything, mock.Anything).Return(domain.ErrConcurrentModification).Once()

	_, err := h.dispatcher.Dispatch(t.Context(), sampleDraft("100.00"))
	require.Error(t, err)
	assert.Equal(t, domain.CategoryConflict, domain.CategoryOf(err))
	h.gateway.AssertNotCalled(t, "CreatePayout", mock.Anything, mock.Anything)
}

// expectCreateCapturing is expectCreate that also hands back the stored payout
func (h *payoutHarness) expectCreateCapturing(created **domain.Payout) {
	h.accounts.On("GetPayoutAccount", mock.Anything, mock.Anything, scope).Return(fixtures.VerifiedAccount(scope), nil)
	h.payouts.On("LockScope", mock.Anything, mock.Anything, scope).Return(nil)
	h.payouts.On("CountAttachedTransactions", mock.Anything, mock.Anything, mock.Anything).Return(0, nil)
	h.payouts.On("CreateWithItems", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { *created = args.Get(2).(*domain.Payout) }).
		Return(nil)
}

// expectReload makes GetByID return the stored row as it was after the claim,
// changed by edit.
func (h *payoutHarness) expectReload(created **domain.Payout, edit func(fresh *domain.Payout)) {
	fresh := &domain.Payout{}
	h.payouts.On("GetByID", mock.Anything, mock.Anything, mock.Anything).
		Run(func(mock.Arguments) {
			*fresh = **created
			fresh.Status = domain.PayoutStatusPending
			fresh.ExternalReference = nil
			fresh.DispatchedAt = nil
			fresh.Version++
			edit(fresh)
		}).
		Return(fresh, nil)
}

func TestDispatch_ResultReappliedAfterConflict(t *testing.T) {
	h := newPayoutHarness()
	var created *domain.Payout
	h.expectCreateCapturing(&created)

	h.payouts.On("Update", mock.Anything, mock.Anything, mock.Anything).Return(nil).Once()
	h.gateway.On("CreatePayout", mock.Anything, mock.Anything).Return(&ports.PayoutResult{ExternalReference: "po_1"}, nil)
	h.payouts.On("Update", mock.Anything, mock.Anything, mock.Anything).Return(domain.ErrConcurrentModification).Once()
	// an operator touched the row without moving it out of PENDING
	h.expectReload(&created, func(*domain.Payout) {})
	h.payouts.On("Update", mock.Anything, mock.Anything, mock.MatchedBy(func(p *domain.Payout) bool {
		return p.Status == domain.PayoutStatusProcessing && p.GetExternalReference() == "po_1"
	})).Return(nil).Once()

	p, err := h.dispatcher.Dispatch(t.Context(), sampleDraft("100.00"))
	require.NoError(t, err)
	assert.Equal(t, domain.PayoutStatusProcessing, p.Status)
	assert.Equal(t, "po_1", p.GetExternalReference())
	assert.Equal(t, 1, p.Attempts)
	h.payouts.AssertNumberOfCalls(t, "Update", 3)
	assert.Equal(t, 1, h.logs.FilterMessage("Concurrent update during dispatch, reapplying result").Len())
	assert.Zero(t, h.logs.FilterMessage("Payout API result not persisted").Len())
}

func TestDispatch_ResultNotPersisted(t *testing.T) {
	tests := []struct {
		name string
		edit func(fresh *domain.Payout)
	}{
		{"conflict_persists_after_reload", func(*domain.Payout) {}},
		{"row_claimed_by_another_attempt", func(fresh *domain.Payout) { fresh.Attempts++ }},
		{"row_cancelled", func(fresh *domain.Payout) { fresh.Status = domain.PayoutStatusCancelled }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newPayoutHarness()
			var created *domain.Payout
			h.expectCreateCapturing(&created)
			h.payouts.On("Update", mock.Anything, mock.Anything, mock.Anything).Return(nil).Once()
			h.gateway.On("CreatePayout", mock.Anything, mock.Anything).Return(&ports.PayoutResult{ExternalReference: "po_1"}, nil)
			h.payouts.On("Update", mock.Anything, mock.Anything, mock.Anything).Return(domain.ErrConcurrentModification)
			h.expectReload(&created, tt.edit)

			_, err := h.dispatcher.Dispatch(t.Context(), sampleDraft("100.00"))
			require.Error(t, err)
			assert.Equal(t, domain.CategoryConflict, domain.CategoryOf(err))

			entries := h.logs.FilterMessage("Payout API result not persisted").All()
			require.Len(t, entries, 1)
			assert.Equal(t, zapcore.ErrorLevel, entries[0].Level)
		})
	}
}

func TestExternalStatus(t *testing.T) {
	t.Run("never_dispatched", func(t *testing.T) {
		h := newPayoutHarness()
		p := fixtures.NewPayout().WithFailure("timeout", domain.FailureTransient).Build()
		h.payouts.On("GetByExternalID", mock.Anything, mock.Anything, p.ExternalID).Return(p, nil)

		_, err := h.service.ExternalStatus(t.Context(), p.ExternalID)
		assert.True(t, domain.IsDomainError(err, domain.ErrorCodePayoutInvalidState))
	})

	t.Run("provider_status", func(t *testing.T) {
		h := newPayoutHarness()
		p := fixtures.NewPayout().WithStatus(domain.PayoutStatusProcessing).WithExternalReference("po_9").Build()
		h.payouts.On("GetByExternalID", mock.Anything, mock.Anything, p.ExternalID).Return(p, nil)
		h.gateway.On("GetPayout", mock.Anything, "po_9").Return(&ports.PayoutStatusResult{ExternalReference: "po_9", Status: "in_transit"}, nil)

		status, err := h.service.ExternalStatus(t.Context(), p.ExternalID)
		require.NoError(t, err)
		assert.Equal(t, "in_transit", status.Provider.Status)
		assert.Equal(t, p, status.Payout)
	})

	t.Run("provider_unavailable", func(t *testing.T) {
		h := newPayoutHarness()
		p := fixtures.NewPayout().WithStatus(domain.PayoutStatusProcessing).WithExternalReference("po_9").Build()
		h.payouts.On("GetByExternalID", mock.Anything, mock.Anything, p.ExternalID).Return(p, nil)
		h.gateway.On("GetPayout", mock.Anything, "po_9").Return(nil, pkgerrors.FromStatusCode(http.StatusServiceUnavailable, ""))

		_, err := h.service.ExternalStatus(t.Context(), p.ExternalID)
		assert.Equal(t, domain.CategoryIntegrationTransient, domain.CategoryOf(err))
	})
}
