package ports

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/kevin07696/bikeshare-payments/internal/domain"
)

// PayoutFilter narrows payout history queries
type PayoutFilter struct {
	Status *domain.PayoutStatus
	Scope  *domain.PayoutScope
	Limit  int32
	Offset int32
}

// PayoutRepository defines the interface for payout and payout item persistence
type PayoutRepository interface {
	// CreateWithItems inserts a PENDING payout and all of its items.
	// Returns domain.ErrPayoutAlreadyExists when a non-cancelled payout already
	// covers the same scope, currency and period.
	CreateWithItems(ctx context.Context, tx DBTX, payout *domain.Payout, items []*domain.PayoutItem) error

	GetByID(ctx context.Context, db DBTX, id uuid.UUID) (*domain.Payout, error)
	GetByExternalID(ctx context.Context, db DBTX, externalID uuid.UUID) (*domain.Payout, error)

	// GetByExternalReference looks a payout up by the payout API's own identifier
	GetByExternalReference(ctx context.Context, db DBTX, ref string) (*domain.Payout, error)

	ListItems(ctx context.Context, db DBTX, payoutID uuid.UUID) ([]*domain.PayoutItem, error)
	List(ctx context.Context, db DBTX, filter PayoutFilter) ([]*domain.Payout, error)

	// Update writes the mutable payout fields guarded by the version column
	Update(ctx context.Context, tx DBTX, payout *domain.Payout) error

	// CountAttachedTransactions counts which of the given source transactions are
	// already part of a payout that was not cancelled
	CountAttachedTransactions(ctx context.Context, tx DBTX, transactionIDs []uuid.UUID) (int, error)

	// LockScope serializes payout creation for a scope until tx ends
	LockScope(ctx context.Context, tx DBTX, scope domain.PayoutScope) error

	// TryLockPeriod takes a transaction-scoped lock for a period run; false if another run holds it
	TryLockPeriod(ctx context.Context, tx DBTX, start, end time.Time) (bool, error)
}
