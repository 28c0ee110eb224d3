package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PaymentStatus is the lifecycle state of a financial transaction
type PaymentStatus string

const (
	PaymentStatusInitialized       PaymentStatus = "INITIALIZED"
	PaymentStatusSucceeded         PaymentStatus = "SUCCEEDED"
	PaymentStatusFailed            PaymentStatus = "FAILED"
	PaymentStatusCanceled          PaymentStatus = "CANCELED"
	PaymentStatusRefunded          PaymentStatus = "REFUNDED"
	PaymentStatusPartiallyRefunded PaymentStatus = "PARTIALLY_REFUNDED"
)

// paymentTransitions lists the statuses reachable from each status.
// Re-applying the current status is handled separately as a no-op.
var paymentTransitions = map[PaymentStatus][]PaymentStatus{
	PaymentStatusInitialized:       {PaymentStatusSucceeded, PaymentStatusFailed, PaymentStatusCanceled},
	PaymentStatusSucceeded:         {PaymentStatusPartiallyRefunded, PaymentStatusRefunded},
	PaymentStatusPartiallyRefunded: {PaymentStatusRefunded},
}

// ParsePaymentStatus parses a stored status value
func ParsePaymentStatus(s string) (PaymentStatus, error) {
	status := PaymentStatus(strings.ToUpper(strings.TrimSpace(s)))
	switch status {
	case PaymentStatusInitialized, PaymentStatusSucceeded, PaymentStatusFailed,
		PaymentStatusCanceled, PaymentStatusRefunded, PaymentStatusPartiallyRefunded:
		return status, nil
	}
	return "", fmt.Errorf("unknown payment status %q", s)
}

// IsTerminal returns true once the gateway has decided the payment outcome
func (s PaymentStatus) IsTerminal() bool {
	return s != PaymentStatusInitialized
}

// CanTransitionTo reports whether moving from s to next is a legal forward step
func (s PaymentStatus) CanTransitionTo(next PaymentStatus) bool {
	for _, allowed := range paymentTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// GatewayKind identifies the external system a payment or event came from
type GatewayKind string

const (
	GatewayCard           GatewayKind = "CARD"
	GatewayRedirectPSP    GatewayKind = "REDIRECT_PSP"
	GatewayPayoutProvider GatewayKind = "PAYOUT_PROVIDER"
)

// TransitionOutcome describes what applying an external status did to an entity
type TransitionOutcome string

const (
	OutcomeApplied     TransitionOutcome = "applied"
	OutcomeNoOp        TransitionOutcome = "noop"
	OutcomeRejected    TransitionOutcome = "rejected"
	OutcomeQuarantined TransitionOutcome = "quarantined"
)

// Changed returns true when the entity must be written back
func (o TransitionOutcome) Changed() bool {
	return o == OutcomeApplied || o == OutcomeQuarantined
}

// NewInvalidTransitionError builds the error returned for a disallowed status change
func NewInvalidTransitionError(entity string, from, to string) *DomainError {
	err := NewDomainError(ErrorCodeInvalidTransition,
		fmt.Sprintf("%s cannot move from %s to %s", entity, from, to))
	err.Details["entity"] = entity
	err.Details["from"] = from
	err.Details["to"] = to
	return err
}

// FinancialTransaction is a customer payment for a rental or sale
type FinancialTransaction struct {
	CreatedAt          time.Time       `json:"created_at"`
	LastTransitionedAt time.Time       `json:"last_transitioned_at"`
	DeletedAt          *time.Time      `json:"deleted_at,omitempty"`
	GatewayReference   *string         `json:"gateway_reference,omitempty"`
	UnrecognizedStatus *string         `json:"unrecognized_status,omitempty"`
	Amount             decimal.Decimal `json:"amount"`
	PayerRef           string          `json:"payer_ref"`
	Currency           string          `json:"currency"`
	Gateway            GatewayKind     `json:"gateway"`
	Status             PaymentStatus   `json:"status"`
	Scope              PayoutScope     `json:"scope"`
	Version            int64           `json:"version"`
	ID                 uuid.UUID       `json:"id"`
	ExternalID         uuid.UUID       `json:"external_id"`
}

// NewFinancialTransaction creates an INITIALIZED transaction
func NewFinancialTransaction(payerRef string, scope PayoutScope, amount decimal.Decimal, currency string, gateway GatewayKind, now time.Time) (*FinancialTransaction, error) {
	if !amount.IsPositive() {
		return nil, ErrValidationAmountInvalid.WithDetail("amount", amount.String())
	}
	currency, err := NormalizeCurrency(currency)
	if err != nil {
		return nil, err
	}
	if gateway != GatewayCard && gateway != GatewayRedirectPSP {
		return nil, ErrValidationFailed.WithDetail("gateway", string(gateway))
	}
	return &FinancialTransaction{
		ID:                 uuid.New(),
		ExternalID:         uuid.New(),
		PayerRef:           payerRef,
		Scope:              scope,
		Amount:             amount,
		Currency:           currency,
		Gateway:            gateway,
		Status:             PaymentStatusInitialized,
		CreatedAt:          now,
		LastTransitionedAt: now,
	}, nil
}

// TransitionTo moves the transaction to next.
// Re-applying the current status is a no-op. Anything the lifecycle does not
// allow leaves the transaction untouched and returns an invalid transition error.
func (t *FinancialTransaction) TransitionTo(next PaymentStatus, at time.Time) (TransitionOutcome, error) {
	if next == t.Status {
		return OutcomeNoOp, nil
	}
	if !t.Status.CanTransitionTo(next) {
		return OutcomeRejected, NewInvalidTransitionError("transaction", string(t.Status), string(next))
	}
	t.Status = next
	t.LastTransitionedAt = at
	t.UnrecognizedStatus = nil
	return OutcomeApplied, nil
}

// Quarantine records a provider status that has no mapping without touching Status
func (t *FinancialTransaction) Quarantine(raw string, at time.Time) TransitionOutcome {
	if t.UnrecognizedStatus != nil && *t.UnrecognizedStatus == raw {
		return OutcomeNoOp
	}
	t.UnrecognizedStatus = &raw
	t.LastTransitionedAt = at
	return OutcomeQuarantined
}

// AttachGatewayReference sets the gateway reference the first time the gateway reports one
func (t *FinancialTransaction) AttachGatewayReference(ref string) bool {
	if ref == "" || (t.GatewayReference != nil && *t.GatewayReference != "") {
		return false
	}
	t.GatewayReference = &ref
	return true
}

// IsRefundable returns true if refunds can still be recorded against the transaction
func (t *FinancialTransaction) IsRefundable() bool {
	return t.Status == PaymentStatusSucceeded || t.Status == PaymentStatusPartiallyRefunded
}

// GetGatewayReference safely retrieves the gateway reference
func (t *FinancialTransaction) GetGatewayReference() string {
	if t.GatewayReference != nil {
		return *t.GatewayReference
	}
	return ""
}
