package mocks

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"

	"github.com/kevin07696/bikeshare-payments/internal/domain"
	"github.com/kevin07696/bikeshare-payments/internal/domain/ports"
	"github.com/kevin07696/bikeshare-payments/internal/services/payout"
)

// MockPayoutService is a mock of the payout service operator surface
type MockPayoutService struct {
	mock.Mock
}

func (m *MockPayoutService) RunPayoutPeriod(ctx context.Context, start, end time.Time) (*payout.RunReport, error) {
	args := m.Called(ctx, start, end)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payout.RunReport), args.Error(1)
}

func (m *MockPayoutService) RunScope(ctx context.Context, scope domain.PayoutScope, start, end time.Time) (*payout.RunReport, error) {
	args := m.Called(ctx, scope, start, end)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payout.RunReport), args.Error(1)
}

func (m *MockPayoutService) Preview(ctx context.Context, scope *domain.PayoutScope, start, end time.Time) ([]*domain.PayoutDraft, error) {
	args := m.Called(ctx, scope, start, end)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.PayoutDraft), args.Error(1)
}

func (m *MockPayoutService) Retry(ctx context.Context, externalID uuid.UUID, force bool) (*domain.Payout, error) {
	args := m.Called(ctx, externalID, force)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Payout), args.Error(1)
}

func (m *MockPayoutService) Cancel(ctx context.Context, externalID uuid.UUID, reason string) (*domain.Payout, error) {
	args := m.Called(ctx, externalID, reason)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Payout), args.Error(1)
}

func (m *MockPayoutService) Get(ctx context.Context, externalID uuid.UUID) (*payout.PayoutDetail, error) {
	args := m.Called(ctx, externalID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payout.PayoutDetail), args.Error(1)
}

func (m *MockPayoutService) History(ctx context.Context, filter ports.PayoutFilter) ([]*domain.Payout, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Payout), args.Error(1)
}

func (m *MockPayoutService) ExternalStatus(ctx context.Context, externalID uuid.UUID) (*payout.ExternalStatus, error) {
	args := m.Called(ctx, externalID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payout.ExternalStatus), args.Error(1)
}

// MockRefundService is a mock of the refund service
type MockRefundService struct {
	mock.Mock
}

func (m *MockRefundService) Request(ctx context.Context, transactionExternalID uuid.UUID, amount decimal.Decimal, reasonCode string) (*domain.Refund, error) {
	args := m.Called(ctx, transactionExternalID, amount, reasonCode)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Refund), args.Error(1)
}

func (m *MockRefundService) Complete(ctx context.Context, refundExternalID uuid.UUID) (*domain.Refund, error) {
	args := m.Called(ctx, refundExternalID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Refund), args.Error(1)
}

func (m *MockRefundService) Cancel(ctx context.Context, refundExternalID uuid.UUID) (*domain.Refund, error) {
	args := m.Called(ctx, refundExternalID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Refund), args.Error(1)
}

func (m *MockRefundService) ListForTransaction(ctx context.Context, transactionExternalID uuid.UUID) ([]*domain.Refund, error) {
	args := m.Called(ctx, transactionExternalID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Refund), args.Error(1)
}
