package mocks

import (
	"context"

	"github.com/kevin07696/bikeshare-payments/internal/domain/ports"
	"github.com/stretchr/testify/mock"
)

// MockPayoutGateway mocks ports.PayoutGateway
type MockPayoutGateway struct {
	mock.Mock
}

func (m *MockPayoutGateway) CreatePayout(ctx context.Context, req *ports.PayoutRequest) (*ports.PayoutResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ports.PayoutResult), args.Error(1)
}

func (m *MockPayoutGateway) GetPayout(ctx context.Context, externalReference string) (*ports.PayoutStatusResult, error) {
	args := m.Called(ctx, externalReference)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ports.PayoutStatusResult), args.Error(1)
}
