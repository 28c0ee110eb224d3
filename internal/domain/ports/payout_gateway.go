package ports

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PayoutRequest is what the payout API needs to move money to a bank account
type PayoutRequest struct {
	Amount         decimal.Decimal
	Currency       string
	IBAN           string
	HolderName     string
	Description    string
	IdempotencyKey string
	PayoutID       uuid.UUID
}

// PayoutResult is the payout API's acknowledgement of a request
type PayoutResult struct {
	ExternalReference string
	Status            string
}

// PayoutStatusResult is the read-only status the payout API reports for a payout
type PayoutStatusResult struct {
	ExternalReference string
	Status            string
	FailureMessage    string
	Amount            decimal.Decimal
	Currency          string
}

// PayoutGateway is the external payout API.
// Errors are *pkg/errors.IntegrationError values classified transient or permanent.
type PayoutGateway interface {
	CreatePayout(ctx context.Context, req *PayoutRequest) (*PayoutResult, error)
	GetPayout(ctx context.Context, externalReference string) (*PayoutStatusResult, error)
}
