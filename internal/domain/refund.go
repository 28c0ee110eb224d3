package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// RefundStatus represents the lifecycle of a refund
type RefundStatus string

const (
	RefundStatusPending   RefundStatus = "PENDING"
	RefundStatusCompleted RefundStatus = "COMPLETED"
	RefundStatusFailed    RefundStatus = "FAILED"
	RefundStatusCancelled RefundStatus = "CANCELLED"
)

// Refund is a full or partial return of a transaction's amount
type Refund struct {
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
	CompletedAt     *time.Time      `json:"completed_at,omitempty"`
	GatewayRefundID *string         `json:"gateway_refund_id,omitempty"`
	Amount          decimal.Decimal `json:"amount"`
	Currency        string          `json:"currency"`
	ReasonCode      string          `json:"reason_code"`
	Status          RefundStatus    `json:"status"`
	ID              uuid.UUID       `json:"id"`
	ExternalID      uuid.UUID       `json:"external_id"`
	TransactionID   uuid.UUID       `json:"transaction_id"`
}

// NewRefund creates a refund in the given initial status
func NewRefund(txn *FinancialTransaction, amount decimal.Decimal, reasonCode string, status RefundStatus, now time.Time) *Refund {
	r := &Refund{
		ID:            uuid.New(),
		ExternalID:    uuid.New(),
		TransactionID: txn.ID,
		Amount:        amount,
		Currency:      txn.Currency,
		ReasonCode:    reasonCode,
		Status:        status,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if status == RefundStatusCompleted {
		r.CompletedAt = &now
	}
	return r
}

// Complete marks a pending refund as settled
func (r *Refund) Complete(gatewayRefundID string, at time.Time) (TransitionOutcome, error) {
	switch r.Status {
	case RefundStatusCompleted:
		return OutcomeNoOp, nil
	case RefundStatusPending:
		r.Status = RefundStatusCompleted
		r.CompletedAt = &at
		r.UpdatedAt = at
		if gatewayRefundID != "" {
			r.GatewayRefundID = &gatewayRefundID
		}
		return OutcomeApplied, nil
	}
	return OutcomeRejected, NewInvalidTransitionError("refund", string(r.Status), string(RefundStatusCompleted))
}

// Fail marks a pending refund as rejected by the gateway
func (r *Refund) Fail(at time.Time) (TransitionOutcome, error) {
	switch r.Status {
	case RefundStatusFailed:
		return OutcomeNoOp, nil
	case RefundStatusPending:
		r.Status = RefundStatusFailed
		r.UpdatedAt = at
		return OutcomeApplied, nil
	}
	return OutcomeRejected, NewInvalidTransitionError("refund", string(r.Status), string(RefundStatusFailed))
}

// Cancel withdraws a pending refund request
func (r *Refund) Cancel(at time.Time) error {
	if r.Status != RefundStatusPending {
		return ErrRefundInvalidState.WithDetail("status", string(r.Status))
	}
	r.Status = RefundStatusCancelled
	r.UpdatedAt = at
	return nil
}

// RefundLedger summarizes the refunds recorded against one transaction
type RefundLedger struct {
	Completed decimal.Decimal
	Pending   decimal.Decimal
}

// SummarizeRefunds totals completed and pending refunds
func SummarizeRefunds(refunds []*Refund) RefundLedger {
	ledger := RefundLedger{Completed: decimal.Zero, Pending: decimal.Zero}
	for _, r := range refunds {
		switch r.Status {
		case RefundStatusCompleted:
			ledger.Completed = ledger.Completed.Add(r.Amount)
		case RefundStatusPending:
			ledger.Pending = ledger.Pending.Add(r.Amount)
		}
	}
	return ledger
}

// Refundable is what may still be requested: amount minus completed and pending refunds
func (l RefundLedger) Refundable(amount decimal.Decimal) decimal.Decimal {
	left := amount.Sub(l.Completed).Sub(l.Pending)
	if left.IsNegative() {
		return decimal.Zero
	}
	return left
}

// CheckCompletedWithin verifies completed refunds never exceed the transaction amount
func (l RefundLedger) CheckCompletedWithin(amount decimal.Decimal) error {
	if l.Completed.GreaterThan(amount) {
		return ErrRefundExceedsAmount.
			WithDetail("completed", l.Completed.String()).
			WithDetail("amount", amount.String())
	}
	return nil
}

// StatusForRefundTotal derives the payment status implied by the completed refund sum
func StatusForRefundTotal(amount, completed decimal.Decimal) PaymentStatus {
	switch {
	case completed.GreaterThanOrEqual(amount):
		return PaymentStatusRefunded
	case completed.IsPositive():
		return PaymentStatusPartiallyRefunded
	default:
		return PaymentStatusSucceeded
	}
}
