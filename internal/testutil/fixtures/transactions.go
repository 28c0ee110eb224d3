package fixtures

import (
	"time"

	"github.com/google/uuid"
	"github.com/kevin07696/bikeshare-payments/internal/domain"
	"github.com/shopspring/decimal"
)

// TransactionBuilder provides fluent API for building test transactions.
type TransactionBuilder struct {
	txn *domain.FinancialTransaction
}

// NewTransaction creates a new INITIALIZED card transaction of 25.00 EUR.
func NewTransaction() *TransactionBuilder {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	return &TransactionBuilder{
		txn: &domain.FinancialTransaction{
			ID:                 uuid.New(),
			ExternalID:         uuid.New(),
			PayerRef:           "rider-42",
			Scope:              domain.PayoutScope{Type: domain.ScopeLocation, ID: "amsterdam-centraal"},
			Amount:             decimal.RequireFromString("25.00"),
			Currency:           "EUR",
			Gateway:            domain.GatewayCard,
			Status:             domain.PaymentStatusInitialized,
			Version:            1,
			CreatedAt:          now,
			LastTransitionedAt: now,
		},
	}
}

func (b *TransactionBuilder) WithStatus(status domain.PaymentStatus) *TransactionBuilder {
	b.txn.Status = status
	return b
}

func (b *TransactionBuilder) WithAmount(amount string) *TransactionBuilder {
	b.txn.Amount = decimal.RequireFromString(amount)
	return b
}

func (b *TransactionBuilder) WithCurrency(currency string) *TransactionBuilder {
	b.txn.Currency = currency
	return b
}

func (b *TransactionBuilder) WithGateway(gateway domain.GatewayKind) *TransactionBuilder {
	b.txn.Gateway = gateway
	return b
}

func (b *TransactionBuilder) WithGatewayReference(ref string) *TransactionBuilder {
	b.txn.GatewayReference = &ref
	return b
}

func (b *TransactionBuilder) WithScope(scope domain.PayoutScope) *TransactionBuilder {
	b.txn.Scope = scope
	return b
}

func (b *TransactionBuilder) Build() *domain.FinancialTransaction {
	return b.txn
}
