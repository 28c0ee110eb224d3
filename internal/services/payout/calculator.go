// Package payout computes revenue-share payouts, dispatches them to the payout
// API and exposes the operator and scheduler operations around them.
package payout

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/kevin07696/bikeshare-payments/internal/domain"
	"github.com/kevin07696/bikeshare-payments/internal/domain/ports"
)

var hundred = decimal.NewFromInt(100)

// CalculatorConfig holds the revenue-share rules
type CalculatorConfig struct {
	// Minimums is the smallest payout per currency; DefaultMinimum applies to the rest
	Minimums       map[string]decimal.Decimal
	SharePercent   decimal.Decimal
	DefaultMinimum decimal.Decimal
}

// DefaultCalculatorConfig pays out the full amount once at least 10.00 accumulated
func DefaultCalculatorConfig() CalculatorConfig {
	return CalculatorConfig{
		SharePercent:   hundred,
		DefaultMinimum: decimal.RequireFromString("10.00"),
	}
}

// MinimumFor returns the payout threshold of currency
func (c CalculatorConfig) MinimumFor(currency string) decimal.Decimal {
	if m, ok := c.Minimums[currency]; ok {
		return m
	}
	return c.DefaultMinimum
}

// Validate checks the share percentage and thresholds
func (c CalculatorConfig) Validate() error {
	if c.SharePercent.LessThanOrEqual(decimal.Zero) || c.SharePercent.GreaterThan(hundred) {
		return fmt.Errorf("share percent must be in (0, 100], got %s", c.SharePercent)
	}
	if c.DefaultMinimum.IsNegative() {
		return fmt.Errorf("default minimum must not be negative, got %s", c.DefaultMinimum)
	}
	for currency, m := range c.Minimums {
		if m.IsNegative() {
			return fmt.Errorf("minimum for %s must not be negative, got %s", currency, m)
		}
	}
	return nil
}

// Calculator turns eligible revenue records into payout drafts. It only reads.
type Calculator struct {
	revenue ports.RevenueSource
	logger  *zap.Logger
	config  CalculatorConfig
}

// NewCalculator creates a payout calculator
func NewCalculator(revenue ports.RevenueSource, config CalculatorConfig, logger *zap.Logger) *Calculator {
	return &Calculator{revenue: revenue, config: config, logger: logger}
}

// ListScopes returns the scopes with eligible records in [start, end)
func (c *Calculator) ListScopes(ctx context.Context, start, end time.Time) ([]domain.PayoutScope, error) {
	if err := validatePeriod(start, end); err != nil {
		return nil, err
	}
	scopes, err := c.revenue.ListScopes(ctx, nil, start, end)
	if err != nil {
		return nil, fmt.Errorf("list payout scopes: %w", err)
	}
	return scopes, nil
}

// Calculate builds one draft per currency for scope and [start, end)
func (c *Calculator) Calculate(ctx context.Context, scope domain.PayoutScope, start, end time.Time) ([]*domain.PayoutDraft, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	if err := validatePeriod(start, end); err != nil {
		return nil, err
	}

	records, err := c.revenue.ListEligible(ctx, nil, scope, start, end)
	if err != nil {
		return nil, fmt.Errorf("list eligible revenue: %w", err)
	}
	return c.BuildDrafts(scope, start, end, records)
}

// BuildDrafts groups records by currency and applies the share. Every draft is
// verified before it is returned.
func (c *Calculator) BuildDrafts(scope domain.PayoutScope, start, end time.Time, records []domain.RevenueTransaction) ([]*domain.PayoutDraft, error) {
	byCurrency := make(map[string]*domain.PayoutDraft)
	seen := make(map[string]bool, len(records))

	for _, rec := range records {
		if rec.Status != domain.PaymentStatusSucceeded && rec.Status != domain.PaymentStatusPartiallyRefunded {
			continue
		}
		if seen[rec.TransactionID.String()] {
			c.logger.Warn("Transaction referenced by more than one revenue record",
				zap.String("transaction_id", rec.TransactionID.String()),
				zap.String("revenue_record_id", rec.RevenueRecordID.String()),
				zap.String("scope", scope.String()),
			)
			continue
		}
		seen[rec.TransactionID.String()] = true

		currency, err := domain.NormalizeCurrency(rec.Currency)
		if err != nil {
			return nil, domain.ErrCalculationMismatch.
				WithDetail("transaction_id", rec.TransactionID.String()).
				WithDetail("currency", rec.Currency)
		}

		eligible := rec.EligibleAmount()
		if !eligible.IsPositive() {
			// fully refunded
			continue
		}

		draft, ok := byCurrency[currency]
		if !ok {
			draft = &domain.PayoutDraft{
				Scope:        scope,
				PeriodStart:  start,
				PeriodEnd:    end,
				Currency:     currency,
				Total:        decimal.Zero,
				Minimum:      c.config.MinimumFor(currency),
				SharePercent: c.config.SharePercent,
			}
			byCurrency[currency] = draft
		}

		share := domain.RoundToCurrency(eligible.Mul(c.config.SharePercent).Div(hundred), currency)
		draft.Items = append(draft.Items, domain.PayoutDraftItem{
			SourceTransactionID: rec.TransactionID,
			RevenueRecordID:     rec.RevenueRecordID,
			GrossAmount:         rec.Amount,
			RefundedAmount:      rec.RefundedAmount,
			Amount:              share,
		})
		draft.Total = draft.Total.Add(share)
	}

	currencies := make([]string, 0, len(byCurrency))
	for currency := range byCurrency {
		currencies = append(currencies, currency)
	}
	sort.Strings(currencies)

	drafts := make([]*domain.PayoutDraft, 0, len(currencies))
	for _, currency := range currencies {
		draft := byCurrency[currency]
		if err := draft.Verify(); err != nil {
			c.logger.Error("Payout draft failed verification",
				zap.String("scope", scope.String()),
				zap.String("currency", currency),
				zap.Error(err),
			)
			return nil, err
		}
		if draft.Total.LessThan(draft.Minimum) {
			draft.Skipped = true
			draft.SkipReason = domain.SkipReasonBelowMinimum
		}
		drafts = append(drafts, draft)
	}
	return drafts, nil
}

func validatePeriod(start, end time.Time) error {
	if start.IsZero() || end.IsZero() || !end.After(start) {
		return domain.ErrValidationFailed.
			WithDetail("period_start", start.Format(time.RFC3339)).
			WithDetail("period_end", end.Format(time.RFC3339))
	}
	return nil
}
