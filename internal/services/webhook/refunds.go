package webhook

import (
	"context"

	"github.com/google/uuid"
	"github.com/kevin07696/bikeshare-payments/internal/domain"
	"github.com/kevin07696/bikeshare-payments/internal/domain/ports"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// applyRefund reconciles a gateway refund notice with the recorded refunds.
// The transaction status change is computed before any refund row is written
// so a rejected change leaves both untouched.
func (i *Ingestor) applyRefund(ctx context.Context, tx ports.DBTX, ev *domain.GatewayEvent) (uuid.UUID, domain.TransitionOutcome, error) {
	notice := ev.Refund
	if notice == nil {
		return uuid.Nil, "", domain.ErrMalformedPayload.WithDetail("refund", "missing")
	}

	txn, attached, err := i.findTransaction(ctx, tx, ev)
	if err != nil {
		return uuid.Nil, "", err
	}
	refunds, err := i.refunds.ListByTransaction(ctx, tx, txn.ID)
	if err != nil {
		return txn.ID, "", err
	}
	ledger := domain.SummarizeRefunds(refunds)
	at := i.now().UTC()

	switch notice.Status {
	case domain.RefundStatusFailed:
		outcome, err := i.failRefund(ctx, tx, refunds, notice, ev)
		return txn.ID, outcome, err
	case domain.RefundStatusPending:
		outcome, err := i.recordPendingRefund(ctx, tx, txn, refunds, notice)
		return txn.ID, outcome, err
	case domain.RefundStatusCompleted:
	default:
		return txn.ID, domain.OutcomeNoOp, nil
	}

	amount := notice.Amount
	if notice.Cumulative {
		amount = notice.CumulativeAmount.Sub(ledger.Completed)
		if !amount.IsPositive() {
			return txn.ID, domain.OutcomeNoOp, nil
		}
	}

	match := matchRefund(refunds, notice.GatewayRefundID, amount)
	if match != nil && match.Status == domain.RefundStatusCompleted {
		return txn.ID, domain.OutcomeNoOp, nil
	}
	if match != nil && (match.Status != domain.RefundStatusPending || !match.Amount.Equal(amount)) {
		// Settled amount differs from the request or the request was given up on;
		// record the money that actually moved as its own refund
		match = nil
	}

	ledger.Completed = ledger.Completed.Add(amount)
	outcome, err := i.machine.ApplyRefundTotal(txn, ledger, ev)
	if err != nil {
		if domain.IsDomainError(err, domain.ErrorCodeInvalidTransition) {
			return txn.ID, domain.OutcomeRejected, nil
		}
		return txn.ID, outcome, err
	}

	if match != nil {
		if _, err := match.Complete(notice.GatewayRefundID, at); err != nil {
			return txn.ID, outcome, err
		}
		if err := i.refunds.UpdateStatus(ctx, tx, match); err != nil {
			return txn.ID, outcome, err
		}
	} else {
		refund := domain.NewRefund(txn, amount, "gateway", domain.RefundStatusCompleted, at)
		if notice.GatewayRefundID != "" && !hasGatewayRefund(refunds, notice.GatewayRefundID) {
			id := notice.GatewayRefundID
			refund.GatewayRefundID = &id
		}
		if err := i.refunds.Create(ctx, tx, refund); err != nil {
			return txn.ID, outcome, err
		}
	}

	if outcome.Changed() || attached {
		if err := i.transactions.Update(ctx, tx, txn); err != nil {
			return txn.ID, outcome, err
		}
	}
	// A refund row was written even when the status did not move
	// (second partial refund), so report the event as applied.
	return txn.ID, domain.OutcomeApplied, nil
}

func (i *Ingestor) failRefund(ctx context.Context, tx ports.DBTX, refunds []*domain.Refund, notice *domain.RefundNotice, ev *domain.GatewayEvent) (domain.TransitionOutcome, error) {
	match := matchRefund(refunds, notice.GatewayRefundID, notice.Amount)
	if match == nil {
		i.logger.Warn("Refund failure for unknown refund",
			zap.String("gateway", string(ev.Gateway)),
			zap.String("event_id", ev.EventID),
			zap.String("gateway_refund_id", notice.GatewayRefundID),
		)
		return domain.OutcomeNoOp, nil
	}
	outcome, err := match.Fail(i.now().UTC())
	if err != nil {
		if domain.IsDomainError(err, domain.ErrorCodeInvalidTransition) {
			i.logger.Warn("Rejected refund status change",
				zap.String("refund_id", match.ID.String()),
				zap.String("from", string(match.Status)),
				zap.String("event_id", ev.EventID),
			)
			return domain.OutcomeRejected, nil
		}
		return outcome, err
	}
	if outcome == domain.OutcomeApplied {
		if err := i.refunds.UpdateStatus(ctx, tx, match); err != nil {
			return outcome, err
		}
	}
	return outcome, nil
}

func (i *Ingestor) recordPendingRefund(ctx context.Context, tx ports.DBTX, txn *domain.FinancialTransaction, refunds []*domain.Refund, notice *domain.RefundNotice) (domain.TransitionOutcome, error) {
	if matchRefund(refunds, notice.GatewayRefundID, notice.Amount) != nil {
		return domain.OutcomeNoOp, nil
	}
	ledger := domain.SummarizeRefunds(refunds)
	if notice.Amount.GreaterThan(ledger.Refundable(txn.Amount)) {
		return domain.OutcomeRejected, nil
	}
	refund := domain.NewRefund(txn, notice.Amount, "gateway", domain.RefundStatusPending, i.now().UTC())
	if notice.GatewayRefundID != "" {
		id := notice.GatewayRefundID
		refund.GatewayRefundID = &id
	}
	if err := i.refunds.Create(ctx, tx, refund); err != nil {
		return "", err
	}
	return domain.OutcomeApplied, nil
}

// matchRefund finds the refund a notice refers to: by gateway refund id first,
// then the oldest pending refund of the same amount not yet tied to a gateway id.
func matchRefund(refunds []*domain.Refund, gatewayRefundID string, amount decimal.Decimal) *domain.Refund {
	if gatewayRefundID != "" {
		for _, r := range refunds {
			if r.GatewayRefundID != nil && *r.GatewayRefundID == gatewayRefundID {
				return r
			}
		}
	}
	for _, r := range refunds {
		if r.Status == domain.RefundStatusPending && r.GatewayRefundID == nil && r.Amount.Equal(amount) {
			return r
		}
	}
	return nil
}

func hasGatewayRefund(refunds []*domain.Refund, gatewayRefundID string) bool {
	for _, r := range refunds {
		if r.GatewayRefundID != nil && *r.GatewayRefundID == gatewayRefundID {
			return true
		}
	}
	return false
}
