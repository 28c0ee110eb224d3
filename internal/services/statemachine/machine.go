// Package statemachine applies canonical status changes to transactions and
// payouts, records the outcome and logs anything that is not a clean forward move.
package statemachine

import (
	"time"

	"github.com/kevin07696/bikeshare-payments/internal/domain"
	"github.com/kevin07696/bikeshare-payments/pkg/observability"
	"go.uber.org/zap"
)

// Machine is stateless apart from its logger and clock and is safe for concurrent use
type Machine struct {
	logger *zap.Logger
	now    func() time.Time
}

// New creates a state machine
func New(logger *zap.Logger) *Machine {
	return &Machine{logger: logger, now: time.Now}
}

// WithClock overrides the clock, for tests
func (m *Machine) WithClock(now func() time.Time) *Machine {
	m.now = now
	return m
}

// ApplyPaymentEvent applies a gateway payment status to txn.
// An unrecognized status is quarantined and never changes txn.Status.
func (m *Machine) ApplyPaymentEvent(txn *domain.FinancialTransaction, ev *domain.GatewayEvent) (domain.TransitionOutcome, error) {
	at := m.now().UTC()
	if !ev.Recognized {
		outcome := txn.Quarantine(ev.RawStatus, at)
		m.quarantined("transaction", ev, txn.ID.String(), string(txn.Status))
		return outcome, nil
	}
	return m.transitionPayment(txn, ev.PaymentStatus, ev, at)
}

// ApplyRefundTotal moves txn to the status implied by its completed refund sum
func (m *Machine) ApplyRefundTotal(txn *domain.FinancialTransaction, completed domain.RefundLedger, ev *domain.GatewayEvent) (domain.TransitionOutcome, error) {
	if err := completed.CheckCompletedWithin(txn.Amount); err != nil {
		m.logger.Error("Refund total exceeds transaction amount",
			zap.String("transaction_id", txn.ID.String()),
			zap.String("amount", txn.Amount.String()),
			zap.String("completed", completed.Completed.String()),
		)
		return domain.OutcomeRejected, err
	}
	target := domain.StatusForRefundTotal(txn.Amount, completed.Completed)
	return m.transitionPayment(txn, target, ev, m.now().UTC())
}

func (m *Machine) transitionPayment(txn *domain.FinancialTransaction, next domain.PaymentStatus, ev *domain.GatewayEvent, at time.Time) (domain.TransitionOutcome, error) {
	from := txn.Status
	outcome, err := txn.TransitionTo(next, at)
	observability.RecordStateTransition("transaction", string(from), string(next), string(outcome))

	switch outcome {
	case domain.OutcomeRejected:
		m.logger.Warn("Rejected transaction status change",
			append([]zap.Field{
				zap.String("transaction_id", txn.ID.String()),
				zap.String("from", string(from)),
				zap.String("to", string(next)),
			}, eventFields(ev)...)...,
		)
	case domain.OutcomeApplied:
		m.logger.Info("Transaction status changed",
			zap.String("transaction_id", txn.ID.String()),
			zap.String("from", string(from)),
			zap.String("to", string(next)),
		)
	}
	return outcome, err
}

// ApplyPayoutEvent applies a payout provider status to p on behalf of the webhook
func (m *Machine) ApplyPayoutEvent(p *domain.Payout, ev *domain.GatewayEvent) (domain.TransitionOutcome, error) {
	at := m.now().UTC()
	if !ev.Recognized {
		outcome := p.Quarantine(ev.RawStatus, at)
		m.quarantined("payout", ev, p.ID.String(), string(p.Status))
		return outcome, nil
	}
	if ev.PayoutStatus == domain.PayoutStatusFailed {
		return m.record(p, p.Status, domain.PayoutStatusFailed, domain.ActorWebhook, ev)(
			p.MarkFailed(ev.FailureReason, domain.FailureNone, domain.ActorWebhook, at))
	}
	return m.TransitionPayout(p, ev.PayoutStatus, domain.ActorWebhook, ev)
}

// TransitionPayout moves p to next on behalf of actor
func (m *Machine) TransitionPayout(p *domain.Payout, next domain.PayoutStatus, actor domain.PayoutActor, ev *domain.GatewayEvent) (domain.TransitionOutcome, error) {
	return m.record(p, p.Status, next, actor, ev)(p.TransitionTo(next, actor, m.now().UTC()))
}

// MarkDispatched records a payout API request the provider accepted
func (m *Machine) MarkDispatched(p *domain.Payout, externalRef string, actor domain.PayoutActor) (domain.TransitionOutcome, error) {
	return m.record(p, p.Status, domain.PayoutStatusProcessing, actor, nil)(
		p.MarkDispatched(externalRef, actor, m.now().UTC()))
}

// MarkDispatchFailed records a synchronous payout API failure. A failed retry
// leaves the payout FAILED with the latest attempt's failure details.
func (m *Machine) MarkDispatchFailed(p *domain.Payout, reason string, category domain.FailureCategory, actor domain.PayoutActor) (domain.TransitionOutcome, error) {
	if actor == domain.ActorRetry && p.Status == domain.PayoutStatusFailed {
		return domain.OutcomeNoOp, p.RecordRetryFailure(reason, category, m.now().UTC())
	}
	return m.record(p, p.Status, domain.PayoutStatusFailed, actor, nil)(
		p.MarkFailed(reason, category, actor, m.now().UTC()))
}

// record returns a func that logs and counts the result of a payout transition
func (m *Machine) record(p *domain.Payout, from, to domain.PayoutStatus, actor domain.PayoutActor, ev *domain.GatewayEvent) func(domain.TransitionOutcome, error) (domain.TransitionOutcome, error) {
	return func(outcome domain.TransitionOutcome, err error) (domain.TransitionOutcome, error) {
		observability.RecordStateTransition("payout", string(from), string(to), string(outcome))
		switch {
		case outcome == domain.OutcomeRejected:
			m.logger.Warn("Rejected payout status change",
				append([]zap.Field{
					zap.String("payout_id", p.ID.String()),
					zap.String("from", string(from)),
					zap.String("to", string(to)),
					zap.String("actor", string(actor)),
				}, eventFields(ev)...)...,
			)
		case err != nil:
			m.logger.Error("Payout invariant violated",
				zap.String("payout_id", p.ID.String()),
				zap.Error(err),
			)
		case outcome == domain.OutcomeApplied:
			m.logger.Info("Payout status changed",
				zap.String("payout_id", p.ID.String()),
				zap.String("from", string(from)),
				zap.String("to", string(to)),
				zap.String("actor", string(actor)),
			)
		}
		return outcome, err
	}
}

func (m *Machine) quarantined(entity string, ev *domain.GatewayEvent, id, current string) {
	observability.RecordStatusQuarantined(string(ev.Gateway), entity)
	m.logger.Warn("Unrecognized provider status quarantined",
		append([]zap.Field{
			zap.String("entity", entity),
			zap.String("entity_id", id),
			zap.String("current_status", current),
		}, eventFields(ev)...)...,
	)
}

func eventFields(ev *domain.GatewayEvent) []zap.Field {
	if ev == nil {
		return nil
	}
	return []zap.Field{
		zap.String("gateway", string(ev.Gateway)),
		zap.String("event_id", ev.EventID),
		zap.String("event_type", ev.EventType),
		zap.String("raw_status", ev.RawStatus),
	}
}
