package payout

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/kevin07696/bikeshare-payments/internal/domain"
	"github.com/kevin07696/bikeshare-payments/internal/domain/ports"
	"github.com/kevin07696/bikeshare-payments/internal/services/statemachine"
	"github.com/kevin07696/bikeshare-payments/pkg/observability"
)

// ScopeFailure describes a scope/currency the run could not pay out
type ScopeFailure struct {
	PayoutID *uuid.UUID           `json:"payout_id,omitempty"`
	Scope    domain.PayoutScope   `json:"scope"`
	Currency string               `json:"currency,omitempty"`
	Code     string               `json:"code"`
	Category domain.ErrorCategory `json:"category"`
	Message  string               `json:"message"`
}

// RunReport summarizes a payout run
type RunReport struct {
	PeriodStart time.Time             `json:"period_start"`
	PeriodEnd   time.Time             `json:"period_end"`
	Created     []*domain.Payout      `json:"created"`
	Skipped     []*domain.PayoutDraft `json:"skipped"`
	Failed      []ScopeFailure        `json:"failed"`
	Scopes      int                   `json:"scopes"`
}

// Result is "success" when nothing failed, else "partial" or "failed"
func (r *RunReport) Result() string {
	switch {
	case len(r.Failed) == 0:
		return "success"
	case len(r.Created) > 0:
		return "partial"
	default:
		return "failed"
	}
}

// PayoutDetail is a payout with its items
type PayoutDetail struct {
	Payout *domain.Payout       `json:"payout"`
	Items  []*domain.PayoutItem `json:"items"`
}

// ExternalStatus pairs a payout with the payout API's view of it
type ExternalStatus struct {
	Payout   *domain.Payout            `json:"payout"`
	Provider *ports.PayoutStatusResult `json:"provider"`
}

// Service is the entry point for schedulers and operators
type Service struct {
	db         ports.DBPort
	payouts    ports.PayoutRepository
	calculator *Calculator
	dispatcher *Dispatcher
	machine    *statemachine.Machine
	logger     *zap.Logger
}

// NewService creates the payout service
func NewService(
	db ports.DBPort,
	payouts ports.PayoutRepository,
	calculator *Calculator,
	dispatcher *Dispatcher,
	machine *statemachine.Machine,
	logger *zap.Logger,
) *Service {
	return &Service{
		db:         db,
		payouts:    payouts,
		calculator: calculator,
		dispatcher: dispatcher,
		machine:    machine,
		logger:     logger,
	}
}

// RunPayoutPeriod calculates and dispatches payouts for every scope with
// eligible records in [start, end). Runs of the same period are serialized by
// an advisory lock; a second concurrent run gets ErrPayoutRunInProgress.
func (s *Service) RunPayoutPeriod(ctx context.Context, start, end time.Time) (*RunReport, error) {
	scopes, err := s.calculator.ListScopes(ctx, start, end)
	if err != nil {
		return nil, err
	}

	var report *RunReport
	err = s.db.WithTransaction(ctx, func(ctx context.Context, tx pgx.Tx) error {
		locked, err := s.payouts.TryLockPeriod(ctx, tx, start, end)
		if err != nil {
			return fmt.Errorf("lock payout period: %w", err)
		}
		if !locked {
			return domain.ErrPayoutRunInProgress.
				WithDetail("period_start", start.Format(time.RFC3339)).
				WithDetail("period_end", end.Format(time.RFC3339))
		}
		report = s.run(ctx, scopes, start, end)
		return nil
	})
	if err != nil {
		observability.RecordPayoutRun("period", "rejected")
		return nil, err
	}

	observability.RecordPayoutRun("period", report.Result())
	s.logger.Info("Payout period run completed",
		zap.Time("period_start", start),
		zap.Time("period_end", end),
		zap.Int("scopes", report.Scopes),
		zap.Int("created", len(report.Created)),
		zap.Int("skipped", len(report.Skipped)),
		zap.Int("failed", len(report.Failed)),
	)
	return report, nil
}

// RunScope calculates and dispatches payouts for a single scope
func (s *Service) RunScope(ctx context.Context, scope domain.PayoutScope, start, end time.Time) (*RunReport, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	if err := validatePeriod(start, end); err != nil {
		return nil, err
	}
	report := s.run(ctx, []domain.PayoutScope{scope}, start, end)
	observability.RecordPayoutRun("scope", report.Result())
	return report, nil
}

func (s *Service) run(ctx context.Context, scopes []domain.PayoutScope, start, end time.Time) *RunReport {
	report := &RunReport{
		PeriodStart: start,
		PeriodEnd:   end,
		Created:     make([]*domain.Payout, 0),
		Skipped:     make([]*domain.PayoutDraft, 0),
		Failed:      make([]ScopeFailure, 0),
		Scopes:      len(scopes),
	}

	for _, scope := range scopes {
		if ctx.Err() != nil {
			report.Failed = append(report.Failed, failure(scope, "", nil, ctx.Err()))
			continue
		}

		drafts, err := s.calculator.Calculate(ctx, scope, start, end)
		if err != nil {
			s.logger.Error("Payout calculation failed",
				zap.String("scope", scope.String()),
				zap.Error(err),
			)
			report.Failed = append(report.Failed, failure(scope, "", nil, err))
			continue
		}

		for _, draft := range drafts {
			if draft.Skipped {
				s.logger.Info("Payout skipped",
					zap.String("scope", scope.String()),
					zap.String("currency", draft.Currency),
					zap.String("total", draft.Total.String()),
					zap.String("reason", draft.SkipReason),
				)
				report.Skipped = append(report.Skipped, draft)
				continue
			}

			p, err := s.dispatcher.Dispatch(ctx, draft)
			switch {
			case err != nil && p == nil:
				report.Failed = append(report.Failed, failure(scope, draft.Currency, nil, err))
			case err != nil:
				report.Failed = append(report.Failed, failure(scope, draft.Currency, &p.ExternalID, err))
			case p.Status == domain.PayoutStatusFailed:
				report.Failed = append(report.Failed, dispatchFailure(p))
			default:
				report.Created = append(report.Created, p)
			}
		}
	}
	return report
}

func failure(scope domain.PayoutScope, currency string, payoutID *uuid.UUID, err error) ScopeFailure {
	code := string(domain.GetErrorCode(err))
	if code == "" {
		code = string(domain.ErrorCodeInternalError)
	}
	return ScopeFailure{
		PayoutID: payoutID,
		Scope:    scope,
		Currency: currency,
		Code:     code,
		Category: domain.CategoryOf(err),
		Message:  err.Error(),
	}
}

func dispatchFailure(p *domain.Payout) ScopeFailure {
	code, category := domain.ErrorCodeGatewayTransient, domain.CategoryIntegrationTransient
	if p.FailureCategory == domain.FailurePermanent {
		code, category = domain.ErrorCodeGatewayPermanent, domain.CategoryIntegrationPermanent
	}
	id := p.ExternalID
	return ScopeFailure{
		PayoutID: &id,
		Scope:    p.Scope,
		Currency: p.Currency,
		Code:     string(code),
		Category: category,
		Message:  p.GetFailureReason(),
	}
}

// Preview calculates drafts without persisting anything. A nil scope previews
// every scope with eligible records.
func (s *Service) Preview(ctx context.Context, scope *domain.PayoutScope, start, end time.Time) ([]*domain.PayoutDraft, error) {
	scopes := []domain.PayoutScope{}
	if scope != nil {
		scopes = append(scopes, *scope)
	} else {
		all, err := s.calculator.ListScopes(ctx, start, end)
		if err != nil {
			return nil, err
		}
		scopes = all
	}

	drafts := make([]*domain.PayoutDraft, 0, len(scopes))
	for _, sc := range scopes {
		d, err := s.calculator.Calculate(ctx, sc, start, end)
		if err != nil {
			return nil, err
		}
		drafts = append(drafts, d...)
	}
	return drafts, nil
}

// Retry re-dispatches a FAILED payout or resumes an interrupted dispatch
func (s *Service) Retry(ctx context.Context, externalID uuid.UUID, force bool) (*domain.Payout, error) {
	return s.dispatcher.Retry(ctx, externalID, force)
}

// ExternalStatus queries the payout API; operators check it before retrying
func (s *Service) ExternalStatus(ctx context.Context, externalID uuid.UUID) (*ExternalStatus, error) {
	p, status, err := s.dispatcher.ExternalStatus(ctx, externalID)
	if err != nil {
		return nil, err
	}
	return &ExternalStatus{Payout: p, Provider: status}, nil
}

// Cancel moves a PENDING or PROCESSING payout to CANCELLED, releasing its
// transactions for a later run. A PENDING payout whose attempt is already
// claimed by the dispatcher cannot be cancelled.
func (s *Service) Cancel(ctx context.Context, externalID uuid.UUID, reason string) (*domain.Payout, error) {
	if reason == "" {
		return nil, domain.ErrValidationMissingField.WithDetail("field", "reason")
	}

	var p *domain.Payout
	err := s.db.WithTransaction(ctx, func(ctx context.Context, tx pgx.Tx) error {
		var err error
		p, err = s.payouts.GetByExternalID(ctx, tx, externalID)
		if err != nil {
			return err
		}
		// A claimed attempt may already be accepted by the provider
		if p.Status == domain.PayoutStatusPending && p.Attempts > 0 {
			return domain.ErrPayoutInvalidState.
				WithDetail("external_id", externalID.String()).
				WithDetail("status", string(p.Status)).
				WithDetail("attempts", p.Attempts)
		}
		if _, err := s.machine.TransitionPayout(p, domain.PayoutStatusCancelled, domain.ActorOperator, nil); err != nil {
			if domain.IsDomainError(err, domain.ErrorCodeInvalidTransition) {
				return domain.ErrPayoutInvalidState.
					WithDetail("external_id", externalID.String()).
					WithDetail("status", string(p.Status))
			}
			return err
		}
		p.FailureReason = &reason
		return s.payouts.Update(ctx, tx, p)
	})
	if err != nil {
		return nil, err
	}

	observability.RecordPayoutEvent("cancelled", p.Currency)
	s.logger.Info("Payout cancelled",
		zap.String("payout_id", p.ID.String()),
		zap.String("reason", reason),
	)
	return p, nil
}

// Get returns a payout with its items
func (s *Service) Get(ctx context.Context, externalID uuid.UUID) (*PayoutDetail, error) {
	var detail PayoutDetail
	err := s.db.WithReadOnlyTransaction(ctx, func(ctx context.Context, tx pgx.Tx) error {
		p, err := s.payouts.GetByExternalID(ctx, tx, externalID)
		if err != nil {
			return err
		}
		items, err := s.payouts.ListItems(ctx, tx, p.ID)
		if err != nil {
			return fmt.Errorf("list payout items: %w", err)
		}
		detail = PayoutDetail{Payout: p, Items: items}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &detail, nil
}

// History lists payouts newest first
func (s *Service) History(ctx context.Context, filter ports.PayoutFilter) ([]*domain.Payout, error) {
	if filter.Limit <= 0 || filter.Limit > 500 {
		filter.Limit = 50
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	return s.payouts.List(ctx, nil, filter)
}
