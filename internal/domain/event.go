package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// EventKind tells the ingestor which entity and lifecycle an event targets
type EventKind string

const (
	EventKindPaymentStatus EventKind = "payment_status"
	EventKindRefund        EventKind = "refund"
	EventKindPayoutStatus  EventKind = "payout_status"
)

// GatewayEvent is a verified, strictly parsed webhook notification with the
// provider vocabulary already mapped to canonical statuses.
type GatewayEvent struct {
	OccurredAt time.Time
	Refund     *RefundNotice
	// MerchantRef is our transaction external id when the provider echoes it back
	MerchantRef   string
	Gateway       GatewayKind
	EventID       string
	EventType     string
	TargetRef     string
	RawStatus     string
	FailureReason string
	Kind          EventKind
	PaymentStatus PaymentStatus
	PayoutStatus  PayoutStatus
	// Recognized is false when RawStatus has no canonical mapping
	Recognized bool
}

// RefundNotice carries refund details from a gateway
type RefundNotice struct {
	Amount decimal.Decimal
	// CumulativeAmount is set by gateways that report the total refunded so far
	CumulativeAmount decimal.Decimal
	GatewayRefundID  string
	Status           RefundStatus
	Cumulative       bool
}

// TargetType names the entity kind an idempotency record points to
type TargetType string

const (
	TargetTransaction TargetType = "transaction"
	TargetPayout      TargetType = "payout"
)

// ProcessedEvent is the idempotency record written once an event was handled
type ProcessedEvent struct {
	ProcessedAt time.Time
	TargetID    *uuid.UUID
	Gateway     GatewayKind
	EventID     string
	EventType   string
	TargetType  TargetType
	Outcome     TransitionOutcome
}
