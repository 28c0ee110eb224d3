package ports

import (
	"context"

	"github.com/google/uuid"
	"github.com/kevin07696/bikeshare-payments/internal/domain"
)

// TransactionRepository defines the interface for financial transaction persistence
type TransactionRepository interface {
	// Create creates a new transaction in INITIALIZED status
	Create(ctx context.Context, tx DBTX, txn *domain.FinancialTransaction) error

	// GetByID retrieves a transaction by its internal ID
	GetByID(ctx context.Context, db DBTX, id uuid.UUID) (*domain.FinancialTransaction, error)

	// GetByExternalID retrieves a transaction by its customer-facing ID
	GetByExternalID(ctx context.Context, db DBTX, externalID uuid.UUID) (*domain.FinancialTransaction, error)

	// GetByGatewayReference retrieves a transaction by the reference the gateway assigned
	GetByGatewayReference(ctx context.Context, db DBTX, gateway domain.GatewayKind, ref string) (*domain.FinancialTransaction, error)

	// Update writes status, gateway reference and quarantine marker when the
	// stored version still equals txn.Version, then bumps the version.
	// Returns domain.ErrConcurrentModification when another writer got there first.
	Update(ctx context.Context, tx DBTX, txn *domain.FinancialTransaction) error
}

// RefundRepository defines the interface for refund persistence
type RefundRepository interface {
	Create(ctx context.Context, tx DBTX, refund *domain.Refund) error
	GetByExternalID(ctx context.Context, db DBTX, externalID uuid.UUID) (*domain.Refund, error)
	ListByTransaction(ctx context.Context, db DBTX, transactionID uuid.UUID) ([]*domain.Refund, error)
	UpdateStatus(ctx context.Context, tx DBTX, refund *domain.Refund) error
}
