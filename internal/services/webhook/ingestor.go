// Package webhook turns verified gateway notifications into state changes.
//
// Every delivery is acknowledged unless the payload cannot be parsed at all.
// What happened to the event is reported separately in Result.
package webhook

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/kevin07696/bikeshare-payments/internal/domain"
	"github.com/kevin07696/bikeshare-payments/internal/domain/ports"
	"github.com/kevin07696/bikeshare-payments/internal/services/statemachine"
	"github.com/kevin07696/bikeshare-payments/pkg/observability"
	"go.uber.org/zap"
)

// GatewayAdapter verifies and parses one provider's webhook format
type GatewayAdapter interface {
	// Name labels logs and metrics
	Name() string

	// Parse authenticates the payload and maps it to a canonical event.
	// Returns domain.ErrInvalidSignature, domain.ErrMalformedPayload or domain.ErrIgnoredEvent.
	Parse(ctx context.Context, payload []byte, headers http.Header) (*domain.GatewayEvent, error)
}

// Result separates the transport acknowledgement from the processing outcome
type Result struct {
	TargetID *uuid.UUID
	// Failure is why the event was not applied, if it was not
	Failure   error
	EventID   string
	Outcome   domain.TransitionOutcome
	Ack       bool
	Duplicate bool
	// TargetMissing is set when no transaction or payout matched the event
	TargetMissing bool
	// NotReady is set when the payout is still being dispatched. The event is
	// not recorded so a redelivery can apply it.
	NotReady bool
	Ignored  bool
}

// Label is the metrics outcome label for the result
func (r *Result) Label() string {
	switch {
	case !r.Ack:
		return "malformed"
	case errors.Is(r.Failure, domain.ErrInvalidSignature):
		return "invalid_signature"
	case r.Failure != nil:
		return "error"
	case r.Ignored:
		return "ignored"
	case r.Duplicate:
		return "duplicate"
	case r.TargetMissing:
		return "target_not_found"
	case r.NotReady:
		return "target_not_ready"
	case r.Outcome == "":
		return "unknown"
	}
	return string(r.Outcome)
}

var (
	errTargetNotFound = errors.New("webhook target not found")
	errTargetNotReady = errors.New("webhook target not ready")
)

// Ingestor applies gateway events exactly once per (gateway, event id)
type Ingestor struct {
	db           ports.DBPort
	transactions ports.TransactionRepository
	refunds      ports.RefundRepository
	payouts      ports.PayoutRepository
	processed    ports.IdempotencyStore
	machine      *statemachine.Machine
	logger       *zap.Logger
	now          func() time.Time
}

// NewIngestor creates a webhook ingestor
func NewIngestor(
	db ports.DBPort,
	transactions ports.TransactionRepository,
	refunds ports.RefundRepository,
	payouts ports.PayoutRepository,
	processed ports.IdempotencyStore,
	machine *statemachine.Machine,
	logger *zap.Logger,
) *Ingestor {
	return &Ingestor{
		db:           db,
		transactions: transactions,
		refunds:      refunds,
		payouts:      payouts,
		processed:    processed,
		machine:      machine,
		logger:       logger,
		now:          time.Now,
	}
}

// Ingest verifies, deduplicates and applies one webhook delivery.
// The returned error is non-nil only for payloads that could not be parsed.
func (i *Ingestor) Ingest(ctx context.Context, adapter GatewayAdapter, payload []byte, headers http.Header) (*Result, error) {
	start := time.Now()
	res := &Result{Ack: true}
	defer func() {
		observability.RecordWebhookEvent(adapter.Name(), res.Label(), time.Since(start).Seconds())
	}()

	ev, err := adapter.Parse(ctx, payload, headers)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrMalformedPayload):
			i.logger.Warn("Malformed webhook payload",
				zap.String("gateway", adapter.Name()),
				zap.Error(err),
			)
			res.Ack = false
			return res, err
		case errors.Is(err, domain.ErrInvalidSignature):
			i.logger.Warn("Webhook signature verification failed",
				zap.String("gateway", adapter.Name()),
				zap.Error(err),
			)
			res.Failure = err
		case errors.Is(err, domain.ErrIgnoredEvent):
			i.logger.Debug("Ignoring webhook event",
				zap.String("gateway", adapter.Name()),
				zap.Error(err),
			)
			res.Ignored = true
		default:
			i.logger.Error("Webhook parse failed",
				zap.String("gateway", adapter.Name()),
				zap.Error(err),
			)
			res.Failure = err
		}
		return res, nil
	}
	res.EventID = ev.EventID

	done, err := i.processed.HasProcessed(ctx, nil, ev.Gateway, ev.EventID)
	if err != nil {
		i.fail(res, ev, fmt.Errorf("check idempotency: %w", err))
		return res, nil
	}
	if done {
		i.duplicate(res, ev)
		return res, nil
	}

	err = i.applyOnce(ctx, ev, res)
	if errors.Is(err, domain.ErrConcurrentModification) {
		i.logger.Info("Concurrent update while applying webhook, retrying",
			zap.String("gateway", string(ev.Gateway)),
			zap.String("event_id", ev.EventID),
		)
		err = i.applyOnce(ctx, ev, res)
	}
	switch {
	case errors.Is(err, domain.ErrEventAlreadyProcessed):
		i.duplicate(res, ev)
	case err != nil:
		i.fail(res, ev, err)
	case res.TargetMissing:
		i.logger.Warn("Webhook target not found",
			zap.String("gateway", string(ev.Gateway)),
			zap.String("event_id", ev.EventID),
			zap.String("event_type", ev.EventType),
			zap.String("target_ref", ev.TargetRef),
			zap.String("merchant_ref", ev.MerchantRef),
		)
	case res.NotReady:
		i.logger.Warn("Webhook target not ready, awaiting redelivery",
			zap.String("gateway", string(ev.Gateway)),
			zap.String("event_id", ev.EventID),
			zap.String("event_type", ev.EventType),
			zap.String("target_ref", ev.TargetRef),
		)
	default:
		i.logger.Info("Webhook event processed",
			zap.String("gateway", string(ev.Gateway)),
			zap.String("event_id", ev.EventID),
			zap.String("event_type", ev.EventType),
			zap.String("outcome", string(res.Outcome)),
		)
	}
	return res, nil
}

func (i *Ingestor) duplicate(res *Result, ev *domain.GatewayEvent) {
	res.Duplicate = true
	res.Outcome = domain.OutcomeNoOp
	res.TargetMissing = false
	res.NotReady = false
	i.logger.Info("Duplicate webhook event acknowledged",
		zap.String("gateway", string(ev.Gateway)),
		zap.String("event_id", ev.EventID),
	)
}

func (i *Ingestor) fail(res *Result, ev *domain.GatewayEvent, err error) {
	res.Failure = err
	i.logger.Error("Failed to apply webhook event",
		zap.String("gateway", string(ev.Gateway)),
		zap.String("event_id", ev.EventID),
		zap.String("event_type", ev.EventType),
		zap.String("category", string(domain.CategoryOf(err))),
		zap.Error(err),
	)
}

// applyOnce runs one read-check-write cycle. The entity write and the
// idempotency record commit together or not at all.
func (i *Ingestor) applyOnce(ctx context.Context, ev *domain.GatewayEvent, res *Result) error {
	res.Outcome = ""
	res.TargetID = nil
	res.TargetMissing = false
	res.NotReady = false

	return i.db.WithTransaction(ctx, func(ctx context.Context, tx pgx.Tx) error {
		var (
			targetType domain.TargetType
			targetID   uuid.UUID
			outcome    domain.TransitionOutcome
			err        error
		)
		switch ev.Kind {
		case domain.EventKindPaymentStatus:
			targetType = domain.TargetTransaction
			targetID, outcome, err = i.applyPayment(ctx, tx, ev)
		case domain.EventKindRefund:
			targetType = domain.TargetTransaction
			targetID, outcome, err = i.applyRefund(ctx, tx, ev)
		case domain.EventKindPayoutStatus:
			targetType = domain.TargetPayout
			targetID, outcome, err = i.applyPayout(ctx, tx, ev)
		default:
			return domain.ErrMalformedPayload.WithDetail("kind", string(ev.Kind))
		}
		if errors.Is(err, errTargetNotFound) {
			res.TargetMissing = true
			return nil
		}
		if errors.Is(err, errTargetNotReady) {
			res.NotReady = true
			return nil
		}
		if err != nil {
			return err
		}

		res.Outcome = outcome
		res.TargetID = &targetID
		return i.processed.MarkProcessed(ctx, tx, &domain.ProcessedEvent{
			Gateway:     ev.Gateway,
			EventID:     ev.EventID,
			EventType:   ev.EventType,
			TargetType:  targetType,
			TargetID:    &targetID,
			Outcome:     outcome,
			ProcessedAt: i.now().UTC(),
		})
	})
}

// findTransaction resolves the gateway reference, falling back to our
// external id echoed as merchant reference. The fallback attaches the
// gateway reference to the transaction.
func (i *Ingestor) findTransaction(ctx context.Context, tx ports.DBTX, ev *domain.GatewayEvent) (*domain.FinancialTransaction, bool, error) {
	if ev.TargetRef != "" {
		txn, err := i.transactions.GetByGatewayReference(ctx, tx, ev.Gateway, ev.TargetRef)
		if err == nil {
			return txn, false, nil
		}
		if !errors.Is(err, domain.ErrTxnNotFound) {
			return nil, false, err
		}
	}

	externalID, err := uuid.Parse(ev.MerchantRef)
	if err != nil {
		return nil, false, errTargetNotFound
	}
	txn, err := i.transactions.GetByExternalID(ctx, tx, externalID)
	if errors.Is(err, domain.ErrTxnNotFound) {
		return nil, false, errTargetNotFound
	}
	if err != nil {
		return nil, false, err
	}
	if txn.Gateway != ev.Gateway {
		return nil, false, errTargetNotFound
	}
	return txn, txn.AttachGatewayReference(ev.TargetRef), nil
}

func (i *Ingestor) applyPayment(ctx context.Context, tx ports.DBTX, ev *domain.GatewayEvent) (uuid.UUID, domain.TransitionOutcome, error) {
	txn, attached, err := i.findTransaction(ctx, tx, ev)
	if err != nil {
		return uuid.Nil, "", err
	}

	outcome, err := i.machine.ApplyPaymentEvent(txn, ev)
	if err != nil {
		if domain.IsDomainError(err, domain.ErrorCodeInvalidTransition) {
			return txn.ID, domain.OutcomeRejected, nil
		}
		return txn.ID, outcome, err
	}
	if outcome.Changed() || attached {
		if err := i.transactions.Update(ctx, tx, txn); err != nil {
			return txn.ID, outcome, err
		}
	}
	return txn.ID, outcome, nil
}

func (i *Ingestor) applyPayout(ctx context.Context, tx ports.DBTX, ev *domain.GatewayEvent) (uuid.UUID, domain.TransitionOutcome, error) {
	p, err := i.payouts.GetByExternalReference(ctx, tx, ev.TargetRef)
	if errors.Is(err, domain.ErrPayoutNotFound) {
		// The provider may echo our own payout id
		if externalID, perr := uuid.Parse(ev.TargetRef); perr == nil {
			p, err = i.payouts.GetByExternalID(ctx, tx, externalID)
		}
	}
	if errors.Is(err, domain.ErrPayoutNotFound) {
		return uuid.Nil, "", errTargetNotFound
	}
	if err != nil {
		return uuid.Nil, "", err
	}
	// Dispatch has claimed an attempt but not stored the API result yet
	if p.Status == domain.PayoutStatusPending {
		return p.ID, "", errTargetNotReady
	}

	outcome, err := i.machine.ApplyPayoutEvent(p, ev)
	if err != nil {
		if domain.IsDomainError(err, domain.ErrorCodeInvalidTransition) {
			return p.ID, domain.OutcomeRejected, nil
		}
		return p.ID, outcome, err
	}
	if !outcome.Changed() {
		return p.ID, outcome, nil
	}
	if err := i.payouts.Update(ctx, tx, p); err != nil {
		return p.ID, outcome, err
	}
	if outcome == domain.OutcomeApplied {
		observability.RecordPayoutEvent(string(p.Status), p.Currency)
	}
	return p.ID, outcome, nil
}
