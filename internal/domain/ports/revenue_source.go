package ports

import (
	"context"
	"time"

	"github.com/kevin07696/bikeshare-payments/internal/domain"
)

// RevenueSource reads rental and sale records qualifying for revenue share.
// It is read-only: the records belong to the rental side of the platform.
type RevenueSource interface {
	// ListEligible returns records of scope that occurred in [start, end), whose
	// payment succeeded and that are not yet part of a non-cancelled payout.
	// RefundedAmount carries the completed refund sum per transaction.
	ListEligible(ctx context.Context, db DBTX, scope domain.PayoutScope, start, end time.Time) ([]domain.RevenueTransaction, error)

	// ListScopes returns every scope with at least one eligible record in [start, end)
	ListScopes(ctx context.Context, db DBTX, start, end time.Time) ([]domain.PayoutScope, error)
}

// BankAccountRegistry resolves the payout destination of a scope
type BankAccountRegistry interface {
	// GetPayoutAccount returns the scope's active account, or domain.ErrBankAccountUnverified
	// when the scope has no verified active account.
	GetPayoutAccount(ctx context.Context, db DBTX, scope domain.PayoutScope) (*domain.BankAccount, error)
}
