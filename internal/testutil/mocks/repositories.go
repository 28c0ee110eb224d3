package mocks

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/kevin07696/bikeshare-payments/internal/domain"
	"github.com/kevin07696/bikeshare-payments/internal/domain/ports"
	"github.com/stretchr/testify/mock"
)

// MockTransactionRepository mocks ports.TransactionRepository
type MockTransactionRepository struct {
	mock.Mock
}

func (m *MockTransactionRepository) Create(ctx context.Context, tx ports.DBTX, txn *domain.FinancialTransaction) error {
	args := m.Called(ctx, tx, txn)
	return args.Error(0)
}

func (m *MockTransactionRepository) GetByID(ctx context.Context, db ports.DBTX, id uuid.UUID) (*domain.FinancialTransaction, error) {
	args := m.Called(ctx, db, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.FinancialTransaction), args.Error(1)
}

func (m *MockTransactionRepository) GetByExternalID(ctx context.Context, db ports.DBTX, externalID uuid.UUID) (*domain.FinancialTransaction, error) {
	args := m.Called(ctx, db, externalID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.FinancialTransaction), args.Error(1)
}

func (m *MockTransactionRepository) GetByGatewayReference(ctx context.Context, db ports.DBTX, gateway domain.GatewayKind, ref string) (*domain.FinancialTransaction, error) {
	args := m.Called(ctx, db, gateway, ref)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.FinancialTransaction), args.Error(1)
}

func (m *MockTransactionRepository) Update(ctx context.Context, tx ports.DBTX, txn *domain.FinancialTransaction) error {
	args := m.Called(ctx, tx, txn)
	return args.Error(0)
}

// MockRefundRepository mocks ports.RefundRepository
type MockRefundRepository struct {
	mock.Mock
}

func (m *MockRefundRepository) Create(ctx context.Context, tx ports.DBTX, refund *domain.Refund) error {
	args := m.Called(ctx, tx, refund)
	return args.Error(0)
}

func (m *MockRefundRepository) GetByExternalID(ctx context.Context, db ports.DBTX, externalID uuid.UUID) (*domain.Refund, error) {
	args := m.Called(ctx, db, externalID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Refund), args.Error(1)
}

func (m *MockRefundRepository) ListByTransaction(ctx context.Context, db ports.DBTX, transactionID uuid.UUID) ([]*domain.Refund, error) {
	args := m.Called(ctx, db, transactionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Refund), args.Error(1)
}

func (m *MockRefundRepository) UpdateStatus(ctx context.Context, tx ports.DBTX, refund *domain.Refund) error {
	args := m.Called(ctx, tx, refund)
	return args.Error(0)
}

// MockPayoutRepository mocks ports.PayoutRepository
type MockPayoutRepository struct {
	mock.Mock
}

func (m *MockPayoutRepository) CreateWithItems(ctx context.Context, tx ports.DBTX, payout *domain.Payout, items []*domain.PayoutItem) error {
	args := m.Called(ctx, tx, payout, items)
	return args.Error(0)
}

func (m *MockPayoutRepository) GetByID(ctx context.Context, db ports.DBTX, id uuid.UUID) (*domain.Payout, error) {
	args := m.Called(ctx, db, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Payout), args.Error(1)
}

func (m *MockPayoutRepository) GetByExternalID(ctx context.Context, db ports.DBTX, externalID uuid.UUID) (*domain.Payout, error) {
	args := m.Called(ctx, db, externalID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Payout), args.Error(1)
}

func (m *MockPayoutRepository) GetByExternalReference(ctx context.Context, db ports.DBTX, ref string) (*domain.Payout, error) {
	args := m.Called(ctx, db, ref)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Payout), args.Error(1)
}

func (m *MockPayoutRepository) ListItems(ctx context.Context, db ports.DBTX, payoutID uuid.UUID) ([]*domain.PayoutItem, error) {
	args := m.Called(ctx, db, payoutID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.PayoutItem), args.Error(1)
}

func (m *MockPayoutRepository) List(ctx context.Context, db ports.DBTX, filter ports.PayoutFilter) ([]*domain.Payout, error) {
	args := m.Called(ctx, db, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Payout), args.Error(1)
}

func (m *MockPayoutRepository) Update(ctx context.Context, tx ports.DBTX, payout *domain.Payout) error {
	args := m.Called(ctx, tx, payout)
	return args.Error(0)
}

func (m *MockPayoutRepository) CountAttachedTransactions(ctx context.Context, tx ports.DBTX, transactionIDs []uuid.UUID) (int, error) {
	args := m.Called(ctx, tx, transactionIDs)
	return args.Int(0), args.Error(1)
}

func (m *MockPayoutRepository) LockScope(ctx context.Context, tx ports.DBTX, scope domain.PayoutScope) error {
	args := m.Called(ctx, tx, scope)
	return args.Error(0)
}

func (m *MockPayoutRepository) TryLockPeriod(ctx context.Context, tx ports.DBTX, start, end time.Time) (bool, error) {
	args := m.Called(ctx, tx, start, end)
	return args.Bool(0), args.Error(1)
}

// MockIdempotencyStore mocks ports.IdempotencyStore
type MockIdempotencyStore struct {
	mock.Mock
}

func (m *MockIdempotencyStore) HasProcessed(ctx context.Context, db ports.DBTX, gateway domain.GatewayKind, eventID string) (bool, error) {
	args := m.Called(ctx, db, gateway, eventID)
	return args.Bool(0), args.Error(1)
}

func (m *MockIdempotencyStore) MarkProcessed(ctx context.Context, tx ports.DBTX, event *domain.ProcessedEvent) error {
	args := m.Called(ctx, tx, event)
	return args.Error(0)
}

// MockRevenueSource mocks ports.RevenueSource
type MockRevenueSource struct {
	mock.Mock
}

func (m *MockRevenueSource) ListEligible(ctx context.Context, db ports.DBTX, scope domain.PayoutScope, start, end time.Time) ([]domain.RevenueTransaction, error) {
	args := m.Called(ctx, db, scope, start, end)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.RevenueTransaction), args.Error(1)
}

func (m *MockRevenueSource) ListScopes(ctx context.Context, db ports.DBTX, start, end time.Time) ([]domain.PayoutScope, error) {
	args := m.Called(ctx, db, start, end)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.PayoutScope), args.Error(1)
}

// MockBankAccountRegistry mocks ports.BankAccountRegistry
type MockBankAccountRegistry struct {
	mock.Mock
}

func (m *MockBankAccountRegistry) GetPayoutAccount(ctx context.Context, db ports.DBTX, scope domain.PayoutScope) (*domain.BankAccount, error) {
	args := m.Called(ctx, db, scope)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.BankAccount), args.Error(1)
}
