// Package refund handles operator-initiated refunds and refunds settled
// outside the card and PSP gateways.
package refund

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/kevin07696/bikeshare-payments/internal/domain"
	"github.com/kevin07696/bikeshare-payments/internal/domain/ports"
	"github.com/kevin07696/bikeshare-payments/internal/services/statemachine"
)

// Service records refunds against financial transactions
type Service struct {
	db           ports.DBPort
	transactions ports.TransactionRepository
	refunds      ports.RefundRepository
	machine      *statemachine.Machine
	logger       *zap.Logger
	now          func() time.Time
}

// NewService creates the refund service
func NewService(
	db ports.DBPort,
	transactions ports.TransactionRepository,
	refunds ports.RefundRepository,
	machine *statemachine.Machine,
	logger *zap.Logger,
) *Service {
	return &Service{
		db:           db,
		transactions: transactions,
		refunds:      refunds,
		machine:      machine,
		logger:       logger,
		now:          time.Now,
	}
}

// Request creates a PENDING refund. The transaction must be SUCCEEDED or
// PARTIALLY_REFUNDED and amount may not exceed what is left after completed
// and pending refunds.
func (s *Service) Request(ctx context.Context, transactionExternalID uuid.UUID, amount decimal.Decimal, reasonCode string) (*domain.Refund, error) {
	reasonCode = strings.TrimSpace(reasonCode)
	if reasonCode == "" {
		return nil, domain.ErrValidationMissingField.WithDetail("field", "reason_code")
	}
	if !amount.IsPositive() {
		return nil, domain.ErrValidationAmountInvalid.WithDetail("amount", amount.String())
	}

	var refund *domain.Refund
	err := s.withRetry(ctx, "request", func(ctx context.Context, tx pgx.Tx) error {
		txn, err := s.transactions.GetByExternalID(ctx, tx, transactionExternalID)
		if err != nil {
			return err
		}
		if !txn.IsRefundable() {
			return domain.ErrRefundInvalidState.
				WithDetail("transaction_id", txn.ID.String()).
				WithDetail("transaction_status", string(txn.Status))
		}
		if !domain.RoundToCurrency(amount, txn.Currency).Equal(amount) {
			return domain.ErrValidationAmountInvalid.
				WithDetail("amount", amount.String()).
				WithDetail("currency", txn.Currency)
		}

		existing, err := s.refunds.ListByTransaction(ctx, tx, txn.ID)
		if err != nil {
			return err
		}
		refundable := domain.SummarizeRefunds(existing).Refundable(txn.Amount)
		if amount.GreaterThan(refundable) {
			return domain.ErrRefundExceedsAmount.
				WithDetail("requested", amount.String()).
				WithDetail("refundable", refundable.String())
		}

		refund = domain.NewRefund(txn, amount, reasonCode, domain.RefundStatusPending, s.now().UTC())
		if err := s.refunds.Create(ctx, tx, refund); err != nil {
			return err
		}
		// Bumps the version so a concurrent request for the same transaction
		// fails its own update and re-reads the refunds.
		return s.transactions.Update(ctx, tx, txn)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Refund requested",
		zap.String("refund_id", refund.ID.String()),
		zap.String("transaction_id", refund.TransactionID.String()),
		zap.String("amount", refund.Amount.String()),
		zap.String("reason_code", refund.ReasonCode),
	)
	return refund, nil
}

// Complete confirms a PENDING refund settled outside the gateways and moves
// the transaction to PARTIALLY_REFUNDED or REFUNDED.
func (s *Service) Complete(ctx context.Context, refundExternalID uuid.UUID) (*domain.Refund, error) {
	var (
		refund  *domain.Refund
		outcome domain.TransitionOutcome
	)
	err := s.withRetry(ctx, "complete", func(ctx context.Context, tx pgx.Tx) error {
		var err error
		refund, err = s.refunds.GetByExternalID(ctx, tx, refundExternalID)
		if err != nil {
			return err
		}
		if refund.Status == domain.RefundStatusCompleted {
			outcome = domain.OutcomeNoOp
			return nil
		}
		if refund.Status != domain.RefundStatusPending {
			return domain.ErrRefundInvalidState.
				WithDetail("refund_id", refund.ID.String()).
				WithDetail("status", string(refund.Status))
		}

		txn, err := s.transactions.GetByID(ctx, tx, refund.TransactionID)
		if err != nil {
			return err
		}
		all, err := s.refunds.ListByTransaction(ctx, tx, txn.ID)
		if err != nil {
			return err
		}
		ledger := domain.SummarizeRefunds(all)
		ledger.Completed = ledger.Completed.Add(refund.Amount)

		outcome, err = s.machine.ApplyRefundTotal(txn, ledger, nil)
		if err != nil {
			if domain.IsDomainError(err, domain.ErrorCodeInvalidTransition) {
				return domain.ErrRefundInvalidState.
					WithDetail("transaction_id", txn.ID.String()).
					WithDetail("transaction_status", string(txn.Status))
			}
			return err
		}

		if _, err := refund.Complete("", s.now().UTC()); err != nil {
			return err
		}
		if err := s.refunds.UpdateStatus(ctx, tx, refund); err != nil {
			return err
		}
		return s.transactions.Update(ctx, tx, txn)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Refund completed",
		zap.String("refund_id", refund.ID.String()),
		zap.String("transaction_id", refund.TransactionID.String()),
		zap.String("amount", refund.Amount.String()),
		zap.String("outcome", string(outcome)),
	)
	return refund, nil
}

// Cancel withdraws a PENDING refund
func (s *Service) Cancel(ctx context.Context, refundExternalID uuid.UUID) (*domain.Refund, error) {
	var refund *domain.Refund
	err := s.db.WithTransaction(ctx, func(ctx context.Context, tx pgx.Tx) error {
		var err error
		refund, err = s.refunds.GetByExternalID(ctx, tx, refundExternalID)
		if err != nil {
			return err
		}
		if err := refund.Cancel(s.now().UTC()); err != nil {
			return err
		}
		return s.refunds.UpdateStatus(ctx, tx, refund)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Refund cancelled", zap.String("refund_id", refund.ID.String()))
	return refund, nil
}

// ListForTransaction returns a transaction's refunds, oldest first
func (s *Service) ListForTransaction(ctx context.Context, transactionExternalID uuid.UUID) ([]*domain.Refund, error) {
	txn, err := s.transactions.GetByExternalID(ctx, nil, transactionExternalID)
	if err != nil {
		return nil, err
	}
	return s.refunds.ListByTransaction(ctx, nil, txn.ID)
}

// withRetry runs fn in a transaction and repeats it once if the transaction
// row changed underneath it.
func (s *Service) withRetry(ctx context.Context, operation string, fn func(ctx context.Context, tx pgx.Tx) error) error {
	err := s.db.WithTransaction(ctx, fn)
	if !errors.Is(err, domain.ErrConcurrentModification) {
		return err
	}
	s.logger.Info("Concurrent update during refund, retrying", zap.String("operation", operation))
	return s.db.WithTransaction(ctx, fn)
}
