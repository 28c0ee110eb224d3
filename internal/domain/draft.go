package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SkipReasonBelowMinimum marks drafts whose total does not reach the payout minimum
const SkipReasonBelowMinimum = "below_minimum"

// RevenueTransaction is a rental or sale record eligible for revenue share,
// joined with the financial transaction that paid for it.
type RevenueTransaction struct {
	OccurredAt      time.Time
	Amount          decimal.Decimal
	RefundedAmount  decimal.Decimal
	Currency        string
	Status          PaymentStatus
	Scope           PayoutScope
	RevenueRecordID uuid.UUID
	TransactionID   uuid.UUID
}

// EligibleAmount is the amount left after completed refunds
func (r RevenueTransaction) EligibleAmount() decimal.Decimal {
	return r.Amount.Sub(r.RefundedAmount)
}

// PayoutDraftItem is a calculated item before persistence
type PayoutDraftItem struct {
	GrossAmount         decimal.Decimal `json:"gross_amount"`
	RefundedAmount      decimal.Decimal `json:"refunded_amount"`
	Amount              decimal.Decimal `json:"amount"`
	SourceTransactionID uuid.UUID       `json:"source_transaction_id"`
	RevenueRecordID     uuid.UUID       `json:"revenue_record_id"`
}

// PayoutDraft is the calculator's result for one scope, period and currency
type PayoutDraft struct {
	PeriodStart  time.Time         `json:"period_start"`
	PeriodEnd    time.Time         `json:"period_end"`
	Items        []PayoutDraftItem `json:"items"`
	Total        decimal.Decimal   `json:"total"`
	Minimum      decimal.Decimal   `json:"minimum"`
	SharePercent decimal.Decimal   `json:"share_percent"`
	Scope        PayoutScope       `json:"scope"`
	Currency     string            `json:"currency"`
	SkipReason   string            `json:"skip_reason,omitempty"`
	Skipped      bool              `json:"skipped"`
}

// Verify checks that the items sum exactly to the total and agree on currency
func (d *PayoutDraft) Verify() error {
	sum := decimal.Zero
	for _, item := range d.Items {
		if item.Amount.IsNegative() {
			return ErrCalculationMismatch.
				WithDetail("source_transaction_id", item.SourceTransactionID.String()).
				WithDetail("amount", item.Amount.String())
		}
		sum = sum.Add(item.Amount)
	}
	if !sum.Equal(d.Total) {
		return ErrCalculationMismatch.
			WithDetail("items_sum", sum.String()).
			WithDetail("total", d.Total.String())
	}
	if d.Currency == "" {
		return ErrCalculationMismatch.WithDetail("currency", "")
	}
	return nil
}

// NewPayoutFromDraft builds a PENDING payout and its items from a verified draft
func NewPayoutFromDraft(d *PayoutDraft, bankAccountID uuid.UUID, now time.Time) (*Payout, []*PayoutItem, error) {
	if d.Skipped {
		return nil, nil, ErrPayoutInvalidState.WithDetail("skip_reason", d.SkipReason)
	}
	if err := d.Verify(); err != nil {
		return nil, nil, err
	}

	p := &Payout{
		ID:              uuid.New(),
		ExternalID:      uuid.New(),
		Scope:           d.Scope,
		PeriodStart:     d.PeriodStart,
		PeriodEnd:       d.PeriodEnd,
		TotalAmount:     d.Total,
		PaidAmount:      decimal.Zero,
		RemainingAmount: d.Total,
		Currency:        d.Currency,
		Status:          PayoutStatusPending,
		BankAccountID:   bankAccountID,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	items := make([]*PayoutItem, 0, len(d.Items))
	for _, di := range d.Items {
		items = append(items, &PayoutItem{
			ID:                  uuid.New(),
			PayoutID:            p.ID,
			SourceTransactionID: di.SourceTransactionID,
			RevenueRecordID:     di.RevenueRecordID,
			Amount:              di.Amount,
			GrossAmount:         di.GrossAmount,
			RefundedAmount:      di.RefundedAmount,
			Currency:            d.Currency,
			CreatedAt:           now,
		})
	}
	return p, items, p.CheckInvariants()
}

// VerifyItems checks a stored payout against its stored items before re-dispatch
func VerifyItems(p *Payout, items []*PayoutItem) error {
	sum := decimal.Zero
	for _, item := range items {
		if item.Currency != p.Currency {
			return ErrCalculationMismatch.WithDetail("item_currency", item.Currency)
		}
		sum = sum.Add(item.Amount)
	}
	if !sum.Equal(p.TotalAmount) {
		return ErrCalculationMismatch.
			WithDetail("items_sum", sum.String()).
			WithDetail("total", p.TotalAmount.String())
	}
	return nil
}
