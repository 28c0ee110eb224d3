package payout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/kevin07696/bikeshare-payments/internal/domain"
	"github.com/kevin07696/bikeshare-payments/internal/domain/ports"
	"github.com/kevin07696/bikeshare-payments/internal/services/statemachine"
	pkgerrors "github.com/kevin07696/bikeshare-payments/pkg/errors"
	"github.com/kevin07696/bikeshare-payments/pkg/observability"
	"github.com/kevin07696/bikeshare-payments/pkg/resilience"
)

// Dispatcher persists payouts and hands them to the payout API
type Dispatcher struct {
	db       ports.DBPort
	payouts  ports.PayoutRepository
	accounts ports.BankAccountRegistry
	gateway  ports.PayoutGateway
	machine  *statemachine.Machine
	timeouts *resilience.TimeoutConfig
	logger   *zap.Logger
	now      func() time.Time
}

// NewDispatcher creates a payout dispatcher
func NewDispatcher(
	db ports.DBPort,
	payouts ports.PayoutRepository,
	accounts ports.BankAccountRegistry,
	gateway ports.PayoutGateway,
	machine *statemachine.Machine,
	timeouts *resilience.TimeoutConfig,
	logger *zap.Logger,
) *Dispatcher {
	return &Dispatcher{
		db:       db,
		payouts:  payouts,
		accounts: accounts,
		gateway:  gateway,
		machine:  machine,
		timeouts: timeouts,
		logger:   logger,
		now:      time.Now,
	}
}

// Dispatch persists draft as a PENDING payout with its items and requests the
// transfer. A payout API failure is not an error: the returned payout is FAILED
// with the failure classified.
func (d *Dispatcher) Dispatch(ctx context.Context, draft *domain.PayoutDraft) (*domain.Payout, error) {
	if draft.Skipped {
		return nil, domain.ErrPayoutInvalidState.WithDetail("skip_reason", draft.SkipReason)
	}
	if err := draft.Verify(); err != nil {
		return nil, err
	}

	account, err := d.payoutAccount(ctx, draft.Scope)
	if err != nil {
		return nil, err
	}

	p, items, err := domain.NewPayoutFromDraft(draft, account.ID, d.now().UTC())
	if err != nil {
		return nil, err
	}

	sourceIDs := make([]uuid.UUID, 0, len(items))
	for _, item := range items {
		sourceIDs = append(sourceIDs, item.SourceTransactionID)
	}

	err = d.db.WithTransaction(ctx, func(ctx context.Context, tx pgx.Tx) error {
		if err := d.payouts.LockScope(ctx, tx, draft.Scope); err != nil {
			return fmt.Errorf("lock payout scope: %w", err)
		}
		attached, err := d.payouts.CountAttachedTransactions(ctx, tx, sourceIDs)
		if err != nil {
			return fmt.Errorf("count attached transactions: %w", err)
		}
		if attached > 0 {
			return domain.ErrPayoutAlreadyExists.
				WithDetail("scope", draft.Scope.String()).
				WithDetail("attached_transactions", attached)
		}
		return d.payouts.CreateWithItems(ctx, tx, p, items)
	})
	if err != nil {
		d.logger.Warn("Payout not created",
			zap.String("scope", draft.Scope.String()),
			zap.String("currency", draft.Currency),
			zap.Error(err),
		)
		return nil, err
	}

	observability.RecordPayoutEvent("created", p.Currency)
	d.logger.Info("Payout created",
		zap.String("payout_id", p.ID.String()),
		zap.String("external_id", p.ExternalID.String()),
		zap.String("scope", p.Scope.String()),
		zap.String("currency", p.Currency),
		zap.String("total", p.TotalAmount.String()),
		zap.Int("items", len(items)),
	)

	return p, d.send(ctx, p, account, domain.ActorDispatcher)
}

// Retry re-dispatches a FAILED payout from its stored items. Permanent failures
// need force, which operators set after correcting the cause. A PENDING payout
// with a claimed attempt is resumed under the same idempotency key.
func (d *Dispatcher) Retry(ctx context.Context, externalID uuid.UUID, force bool) (*domain.Payout, error) {
	p, err := d.payouts.GetByExternalID(ctx, nil, externalID)
	if err != nil {
		return nil, err
	}
	resume := p.Status == domain.PayoutStatusPending && p.Attempts > 0
	if p.Status != domain.PayoutStatusFailed && !resume {
		return nil, domain.ErrPayoutInvalidState.
			WithDetail("external_id", externalID.String()).
			WithDetail("status", string(p.Status))
	}
	if !resume && !p.Retryable && !force {
		return nil, domain.ErrPayoutNotRetryable.
			WithDetail("external_id", externalID.String()).
			WithDetail("failure_category", string(p.FailureCategory))
	}

	items, err := d.payouts.ListItems(ctx, nil, p.ID)
	if err != nil {
		return nil, fmt.Errorf("list payout items: %w", err)
	}
	if err := domain.VerifyItems(p, items); err != nil {
		d.logger.Error("Stored payout items do not match payout total",
			zap.String("payout_id", p.ID.String()),
			zap.Error(err),
		)
		return nil, err
	}

	account, err := d.payoutAccount(ctx, p.Scope)
	if err != nil {
		return nil, err
	}
	p.BankAccountID = account.ID

	if resume {
		d.logger.Info("Resuming interrupted payout dispatch",
			zap.String("payout_id", p.ID.String()),
			zap.Int("attempts", p.Attempts),
		)
		return p, d.call(ctx, p, account, domain.ActorDispatcher)
	}

	d.logger.Info("Retrying payout",
		zap.String("payout_id", p.ID.String()),
		zap.Int("attempts", p.Attempts),
		zap.Bool("force", force),
	)
	observability.RecordPayoutEvent("retried", p.Currency)
	return p, d.send(ctx, p, account, domain.ActorRetry)
}

// ExternalStatus queries the payout API for its view of a dispatched payout
func (d *Dispatcher) ExternalStatus(ctx context.Context, externalID uuid.UUID) (*domain.Payout, *ports.PayoutStatusResult, error) {
	p, err := d.payouts.GetByExternalID(ctx, nil, externalID)
	if err != nil {
		return nil, nil, err
	}
	ref := p.GetExternalReference()
	if ref == "" {
		return p, nil, domain.ErrPayoutInvalidState.
			WithDetail("external_id", externalID.String()).
			WithDetail("reason", "payout was never accepted by the payout API")
	}

	callCtx, cancel := d.timeouts.ExternalAPIContext(ctx)
	defer cancel()
	status, err := d.gateway.GetPayout(callCtx, ref)
	if err != nil {
		return p, nil, d.integrationError(err)
	}
	return p, status, nil
}

func (d *Dispatcher) payoutAccount(ctx context.Context, scope domain.PayoutScope) (*domain.BankAccount, error) {
	account, err := d.accounts.GetPayoutAccount(ctx, nil, scope)
	if err != nil {
		return nil, err
	}
	if !account.CanReceivePayouts() {
		return nil, domain.ErrBankAccountUnverified.WithDetail("scope", scope.String())
	}
	return account, nil
}

// send claims the next attempt and makes the payout API call for it
func (d *Dispatcher) send(ctx context.Context, p *domain.Payout, account *domain.BankAccount, actor domain.PayoutActor) error {
	// The attempt is stored before the call: the idempotency key stays stable
	// across a crash and Cancel refuses a PENDING payout that has attempts.
	p.Attempts++
	err := d.db.WithTransaction(ctx, func(ctx context.Context, tx pgx.Tx) error {
		return d.payouts.Update(ctx, tx, p)
	})
	if err != nil {
		p.Attempts--
		return fmt.Errorf("claim payout attempt: %w", err)
	}
	return d.call(ctx, p, account, actor)
}

// call sends the claimed attempt to the payout API and persists the result
func (d *Dispatcher) call(ctx context.Context, p *domain.Payout, account *domain.BankAccount, actor domain.PayoutActor) error {
	from := p.Status
	req := &ports.PayoutRequest{
		Amount:         p.TotalAmount,
		Currency:       p.Currency,
		IBAN:           account.IBAN,
		HolderName:     account.HolderName,
		Description:    fmt.Sprintf("Revenue share %s %s", p.Scope.String(), p.PeriodStart.Format("2006-01")),
		IdempotencyKey: p.IdempotencyKey(),
		PayoutID:       p.ExternalID,
	}

	callCtx, cancel := d.timeouts.ExternalAPIContext(ctx)
	result, callErr := d.gateway.CreatePayout(callCtx, req)
	cancel()

	apply := func(p *domain.Payout) error {
		if callErr == nil {
			_, err := d.machine.MarkDispatched(p, result.ExternalReference, actor)
			return err
		}
		category := domain.FailurePermanent
		if pkgerrors.IsRetriable(callErr) {
			category = domain.FailureTransient
		}
		_, err := d.machine.MarkDispatchFailed(p, callErr.Error(), category, actor)
		return err
	}
	if err := apply(p); err != nil {
		return err
	}

	if err := d.persistResult(ctx, p, from, apply); err != nil {
		d.logger.Error("Payout API result not persisted",
			zap.String("payout_id", p.ID.String()),
			zap.String("idempotency_key", req.IdempotencyKey),
			zap.String("external_reference", p.GetExternalReference()),
			zap.Bool("api_accepted", callErr == nil),
			zap.Error(err),
		)
		return fmt.Errorf("persist payout dispatch: %w", err)
	}

	if callErr != nil {
		observability.RecordPayoutEvent("failed", p.Currency)
		d.logger.Warn("Payout dispatch failed",
			zap.String("payout_id", p.ID.String()),
			zap.String("failure_category", string(p.FailureCategory)),
			zap.Bool("retryable", p.Retryable),
			zap.Int("attempts", p.Attempts),
			zap.Error(callErr),
		)
		return nil
	}

	observability.RecordPayoutEvent("dispatched", p.Currency)
	observability.RecordPayoutDispatched(p.Currency, p.TotalAmount.InexactFloat64())
	d.logger.Info("Payout dispatched",
		zap.String("payout_id", p.ID.String()),
		zap.String("external_reference", p.GetExternalReference()),
		zap.Int("attempts", p.Attempts),
	)
	return nil
}

// persistResult stores the API outcome. On a version conflict it re-reads the
// payout and applies the outcome again once, as long as the row still holds
// the attempt this call claimed.
func (d *Dispatcher) persistResult(ctx context.Context, p *domain.Payout, from domain.PayoutStatus, apply func(*domain.Payout) error) error {
	return d.db.WithTransaction(ctx, func(ctx context.Context, tx pgx.Tx) error {
		err := d.payouts.Update(ctx, tx, p)
		if !errors.Is(err, domain.ErrConcurrentModification) {
			return err
		}

		fresh, gerr := d.payouts.GetByID(ctx, tx, p.ID)
		if gerr != nil {
			return fmt.Errorf("reload payout: %w", gerr)
		}
		if fresh.Status != from || fresh.Attempts != p.Attempts {
			return err
		}
		d.logger.Info("Concurrent update during dispatch, reapplying result",
			zap.String("payout_id", p.ID.String()),
			zap.Int64("version", fresh.Version),
		)
		if err := apply(fresh); err != nil {
			return err
		}
		if err := d.payouts.Update(ctx, tx, fresh); err != nil {
			return err
		}
		*p = *fresh
		return nil
	})
}

// integrationError maps a payout API error onto the domain taxonomy
func (d *Dispatcher) integrationError(err error) error {
	var integrationErr *pkgerrors.IntegrationError
	if !errors.As(err, &integrationErr) {
		return err
	}
	code := domain.ErrorCodeGatewayPermanent
	if integrationErr.IsRetriable {
		code = domain.ErrorCodeGatewayTransient
	}
	return domain.WrapError(code, "payout API request failed", err)
}
