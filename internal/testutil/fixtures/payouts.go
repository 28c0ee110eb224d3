package fixtures

import (
	"time"

	"github.com/google/uuid"
	"github.com/kevin07696/bikeshare-payments/internal/domain"
	"github.com/shopspring/decimal"
)

// PayoutBuilder provides fluent API for building test payouts.
type PayoutBuilder struct {
	payout *domain.Payout
}

// NewPayout creates a PENDING 100.00 EUR payout for February 2026.
func NewPayout() *PayoutBuilder {
	now := time.Date(2026, 3, 1, 2, 0, 0, 0, time.UTC)
	total := decimal.RequireFromString("100.00")
	return &PayoutBuilder{
		payout: &domain.Payout{
			ID:              uuid.New(),
			ExternalID:      uuid.New(),
			Scope:           domain.PayoutScope{Type: domain.ScopeLocation, ID: "amsterdam-centraal"},
			PeriodStart:     time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
			PeriodEnd:       time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
			TotalAmount:     total,
			PaidAmount:      decimal.Zero,
			RemainingAmount: total,
			Currency:        "EUR",
			Status:          domain.PayoutStatusPending,
			BankAccountID:   uuid.New(),
			Version:         1,
			CreatedAt:       now,
			UpdatedAt:       now,
		},
	}
}

func (b *PayoutBuilder) WithStatus(status domain.PayoutStatus) *PayoutBuilder {
	b.payout.Status = status
	if status == domain.PayoutStatusCompleted {
		b.payout.PaidAmount = b.payout.TotalAmount
		b.payout.RemainingAmount = decimal.Zero
	}
	return b
}

func (b *PayoutBuilder) WithExternalReference(ref string) *PayoutBuilder {
	b.payout.ExternalReference = &ref
	return b
}

func (b *PayoutBuilder) WithFailure(reason string, category domain.FailureCategory) *PayoutBuilder {
	b.payout.Status = domain.PayoutStatusFailed
	b.payout.FailureReason = &reason
	b.payout.FailureCategory = category
	b.payout.Retryable = category != domain.FailurePermanent
	return b
}

func (b *PayoutBuilder) WithAttempts(n int) *PayoutBuilder {
	b.payout.Attempts = n
	return b
}

func (b *PayoutBuilder) Build() *domain.Payout {
	return b.payout
}

// ItemsFor builds a single item carrying the whole payout total.
func ItemsFor(p *domain.Payout) []*domain.PayoutItem {
	return []*domain.PayoutItem{{
		ID:                  uuid.New(),
		PayoutID:            p.ID,
		SourceTransactionID: uuid.New(),
		RevenueRecordID:     uuid.New(),
		Amount:              p.TotalAmount,
		GrossAmount:         p.TotalAmount,
		RefundedAmount:      decimal.Zero,
		Currency:            p.Currency,
		CreatedAt:           p.CreatedAt,
	}}
}

// VerifiedAccount returns an active verified bank account for scope.
func VerifiedAccount(scope domain.PayoutScope) *domain.BankAccount {
	return &domain.BankAccount{
		ID:         uuid.New(),
		Scope:      scope,
		IBAN:       "NL91ABNA0417164300",
		HolderName: "Amsterdam Centraal Bikes BV",
		Verified:   true,
		Active:     true,
	}
}
