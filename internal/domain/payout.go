package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PayoutStatus is the lifecycle state of a revenue-share payout
type PayoutStatus string

const (
	PayoutStatusPending    PayoutStatus = "PENDING"
	PayoutStatusProcessing PayoutStatus = "PROCESSING"
	PayoutStatusCompleted  PayoutStatus = "COMPLETED"
	PayoutStatusFailed     PayoutStatus = "FAILED"
	PayoutStatusCancelled  PayoutStatus = "CANCELLED"
)

// ParsePayoutStatus parses a stored status value
func ParsePayoutStatus(s string) (PayoutStatus, error) {
	status := PayoutStatus(strings.ToUpper(strings.TrimSpace(s)))
	switch status {
	case PayoutStatusPending, PayoutStatusProcessing, PayoutStatusCompleted,
		PayoutStatusFailed, PayoutStatusCancelled:
		return status, nil
	}
	return "", fmt.Errorf("unknown payout status %q", s)
}

// PayoutActor is who requests a payout transition. Some edges are reserved
// for a specific actor: FAILED -> PROCESSING for retry, CANCELLED for operators.
type PayoutActor string

const (
	ActorDispatcher PayoutActor = "dispatcher"
	ActorWebhook    PayoutActor = "webhook"
	ActorRetry      PayoutActor = "retry"
	ActorOperator   PayoutActor = "operator"
)

type payoutEdge struct {
	from PayoutStatus
	to   PayoutStatus
}

// payoutTransitions maps each legal edge to the actors allowed to take it
var payoutTransitions = map[payoutEdge][]PayoutActor{
	{PayoutStatusPending, PayoutStatusProcessing}:   {ActorDispatcher},
	{PayoutStatusPending, PayoutStatusFailed}:       {ActorDispatcher},
	{PayoutStatusProcessing, PayoutStatusCompleted}: {ActorWebhook, ActorDispatcher},
	{PayoutStatusProcessing, PayoutStatusFailed}:    {ActorWebhook, ActorDispatcher},
	{PayoutStatusFailed, PayoutStatusProcessing}:    {ActorRetry},
	{PayoutStatusPending, PayoutStatusCancelled}:    {ActorOperator},
	{PayoutStatusProcessing, PayoutStatusCancelled}: {ActorOperator},
}

// CanPayoutTransition reports whether actor may move a payout from one status to another
func CanPayoutTransition(from, to PayoutStatus, actor PayoutActor) bool {
	for _, a := range payoutTransitions[payoutEdge{from, to}] {
		if a == actor {
			return true
		}
	}
	return false
}

// ScopeType is the kind of business a payout is computed for
type ScopeType string

const (
	ScopeCompany  ScopeType = "COMPANY"
	ScopeLocation ScopeType = "LOCATION"
)

// PayoutScope identifies the company or location receiving a revenue share
type PayoutScope struct {
	Type ScopeType `json:"type"`
	ID   string    `json:"id"`
}

func (s PayoutScope) String() string {
	return strings.ToLower(string(s.Type)) + ":" + s.ID
}

// IsZero returns true if no scope is set
func (s PayoutScope) IsZero() bool {
	return s.Type == "" && s.ID == ""
}

// Validate checks the scope type and id
func (s PayoutScope) Validate() error {
	if s.Type != ScopeCompany && s.Type != ScopeLocation {
		return ErrValidationFailed.WithDetail("scope_type", string(s.Type))
	}
	if strings.TrimSpace(s.ID) == "" {
		return ErrValidationMissingField.WithDetail("field", "scope_id")
	}
	return nil
}

// ParseScope parses "location:<id>" or "company:<id>"
func ParseScope(s string) (PayoutScope, error) {
	kind, id, ok := strings.Cut(s, ":")
	if !ok {
		return PayoutScope{}, ErrValidationFailed.WithDetail("scope", s)
	}
	scope := PayoutScope{Type: ScopeType(strings.ToUpper(kind)), ID: id}
	return scope, scope.Validate()
}

// FailureCategory classifies a synchronous dispatch failure
type FailureCategory string

const (
	FailureNone      FailureCategory = ""
	FailureTransient FailureCategory = "TRANSIENT"
	FailurePermanent FailureCategory = "PERMANENT"
)

// Payout is a B2B revenue-share payout for one scope, period and currency
type Payout struct {
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
	PeriodStart        time.Time       `json:"period_start"`
	PeriodEnd          time.Time       `json:"period_end"`
	DispatchedAt       *time.Time      `json:"dispatched_at,omitempty"`
	CompletedAt        *time.Time      `json:"completed_at,omitempty"`
	ExternalReference  *string         `json:"external_reference,omitempty"`
	FailureReason      *string         `json:"failure_reason,omitempty"`
	UnrecognizedStatus *string         `json:"unrecognized_status,omitempty"`
	TotalAmount        decimal.Decimal `json:"total_amount"`
	PaidAmount         decimal.Decimal `json:"paid_amount"`
	RemainingAmount    decimal.Decimal `json:"remaining_amount"`
	Scope              PayoutScope     `json:"scope"`
	Currency           string          `json:"currency"`
	Status             PayoutStatus    `json:"status"`
	FailureCategory    FailureCategory `json:"failure_category,omitempty"`
	Attempts           int             `json:"attempts"`
	Version            int64           `json:"version"`
	ID                 uuid.UUID       `json:"id"`
	ExternalID         uuid.UUID       `json:"external_id"`
	BankAccountID      uuid.UUID       `json:"bank_account_id"`
	Retryable          bool            `json:"retryable"`
}

// PayoutItem is one source transaction's contribution to a payout
type PayoutItem struct {
	CreatedAt           time.Time       `json:"created_at"`
	Amount              decimal.Decimal `json:"amount"`
	GrossAmount         decimal.Decimal `json:"gross_amount"`
	RefundedAmount      decimal.Decimal `json:"refunded_amount"`
	Currency            string          `json:"currency"`
	ID                  uuid.UUID       `json:"id"`
	PayoutID            uuid.UUID       `json:"payout_id"`
	SourceTransactionID uuid.UUID       `json:"source_transaction_id"`
	RevenueRecordID     uuid.UUID       `json:"revenue_record_id"`
}

// TransitionTo moves the payout to next on behalf of actor and keeps the
// paid/remaining split consistent with the new status.
func (p *Payout) TransitionTo(next PayoutStatus, actor PayoutActor, at time.Time) (TransitionOutcome, error) {
	if next == p.Status {
		return OutcomeNoOp, nil
	}
	if !CanPayoutTransition(p.Status, next, actor) {
		return OutcomeRejected, NewInvalidTransitionError("payout", string(p.Status), string(next)).
			WithDetail("actor", string(actor))
	}

	p.Status = next
	p.UpdatedAt = at
	p.UnrecognizedStatus = nil
	switch next {
	case PayoutStatusCompleted:
		p.PaidAmount = p.TotalAmount
		p.RemainingAmount = decimal.Zero
		p.CompletedAt = &at
	default:
		p.PaidAmount = decimal.Zero
		p.RemainingAmount = p.TotalAmount
	}
	if next == PayoutStatusProcessing {
		p.FailureReason = nil
		p.FailureCategory = FailureNone
		p.Retryable = false
	}
	return OutcomeApplied, p.CheckInvariants()
}

// MarkDispatched records a successful payout API call. The dispatcher moves
// PENDING payouts, retries move FAILED ones.
func (p *Payout) MarkDispatched(externalRef string, actor PayoutActor, at time.Time) (TransitionOutcome, error) {
	outcome, err := p.TransitionTo(PayoutStatusProcessing, actor, at)
	if err != nil {
		return outcome, err
	}
	p.ExternalReference = &externalRef
	p.DispatchedAt = &at
	return outcome, nil
}

// MarkFailed records a failure reason reported synchronously or by webhook
func (p *Payout) MarkFailed(reason string, category FailureCategory, actor PayoutActor, at time.Time) (TransitionOutcome, error) {
	outcome, err := p.TransitionTo(PayoutStatusFailed, actor, at)
	if err != nil || outcome != OutcomeApplied {
		return outcome, err
	}
	if reason != "" {
		p.FailureReason = &reason
	}
	p.FailureCategory = category
	p.Retryable = category != FailurePermanent
	return outcome, nil
}

// RecordRetryFailure keeps a FAILED payout FAILED after an unsuccessful retry
// and replaces the failure details with the latest attempt's.
func (p *Payout) RecordRetryFailure(reason string, category FailureCategory, at time.Time) error {
	if p.Status != PayoutStatusFailed {
		return ErrPayoutInvalidState.WithDetail("status", string(p.Status))
	}
	p.FailureReason = &reason
	p.FailureCategory = category
	p.Retryable = category != FailurePermanent
	p.UpdatedAt = at
	return nil
}

// Quarantine records an unmapped provider status without touching Status
func (p *Payout) Quarantine(raw string, at time.Time) TransitionOutcome {
	if p.UnrecognizedStatus != nil && *p.UnrecognizedStatus == raw {
		return OutcomeNoOp
	}
	p.UnrecognizedStatus = &raw
	p.UpdatedAt = at
	return OutcomeQuarantined
}

// CheckInvariants verifies paid + remaining == total and COMPLETED implies nothing remains
func (p *Payout) CheckInvariants() error {
	if !p.PaidAmount.Add(p.RemainingAmount).Equal(p.TotalAmount) {
		return ErrPayoutInvariant.
			WithDetail("total", p.TotalAmount.String()).
			WithDetail("paid", p.PaidAmount.String()).
			WithDetail("remaining", p.RemainingAmount.String())
	}
	if p.Status == PayoutStatusCompleted && !p.RemainingAmount.IsZero() {
		return ErrPayoutInvariant.WithDetail("remaining", p.RemainingAmount.String())
	}
	return nil
}

// IdempotencyKey is sent to the payout API so a repeated request for the same
// attempt never produces a second transfer.
func (p *Payout) IdempotencyKey() string {
	return fmt.Sprintf("%s-%d", p.ExternalID, p.Attempts)
}

// GetExternalReference safely retrieves the payout API reference
func (p *Payout) GetExternalReference() string {
	if p.ExternalReference != nil {
		return *p.ExternalReference
	}
	return ""
}

// GetFailureReason safely retrieves the failure reason
func (p *Payout) GetFailureReason() string {
	if p.FailureReason != nil {
		return *p.FailureReason
	}
	return ""
}

// BankAccount is a payout destination registered for a scope
type BankAccount struct {
	ID         uuid.UUID   `json:"id"`
	Scope      PayoutScope `json:"scope"`
	IBAN       string      `json:"iban"`
	HolderName string      `json:"holder_name"`
	Verified   bool        `json:"verified"`
	Active     bool        `json:"active"`
}

// CanReceivePayouts returns true if the account is verified and not deactivated
func (b *BankAccount) CanReceivePayouts() bool {
	return b != nil && b.Verified && b.Active
}
