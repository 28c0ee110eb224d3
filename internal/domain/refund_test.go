package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestRefund_Lifecycle(t *testing.T) {
	txn := newTestTransaction(t, PaymentStatusSucceeded)
	now := time.Now()

	r := NewRefund(txn, dec("5.00"), "damaged_bike", RefundStatusPending, now)
	assert.Equal(t, txn.ID, r.TransactionID)
	assert.Equal(t, "EUR", r.Currency)
	assert.Nil(t, r.CompletedAt)

	outcome, err := r.Complete("re_1", now)
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, outcome)
	assert.Equal(t, "re_1", *r.GatewayRefundID)

	outcome, err = r.Complete("re_1", now)
	require.NoError(t, err)
	assert.Equal(t, OutcomeNoOp, outcome)

	_, err = r.Fail(now)
	assert.True(t, IsDomainError(err, ErrorCodeInvalidTransition))

	assert.Error(t, r.Cancel(now))
}

func TestRefund_CancelOnlyPending(t *testing.T) {
	txn := newTestTransaction(t, PaymentStatusSucceeded)
	r := NewRefund(txn, dec("1.00"), "goodwill", RefundStatusPending, time.Now())

	require.NoError(t, r.Cancel(time.Now()))
	assert.Equal(t, RefundStatusCancelled, r.Status)

	_, err := r.Complete("", time.Now())
	assert.Error(t, err)
}

func TestRefundLedger(t *testing.T) {
	txn := newTestTransaction(t, PaymentStatusSucceeded)
	now := time.Now()
	refunds := []*Refund{
		NewRefund(txn, dec("5.00"), "a", RefundStatusCompleted, now),
		NewRefund(txn, dec("3.00"), "b", RefundStatusPending, now),
		NewRefund(txn, dec("100.00"), "c", RefundStatusFailed, now),
		NewRefund(txn, dec("7.00"), "d", RefundStatusCancelled, now),
	}

	ledger := SummarizeRefunds(refunds)
	assert.True(t, dec("5.00").Equal(ledger.Completed))
	assert.True(t, dec("3.00").Equal(ledger.Pending))
	assert.True(t, dec("17.00").Equal(ledger.Refundable(txn.Amount)))
	assert.NoError(t, ledger.CheckCompletedWithin(txn.Amount))

	over := RefundLedger{Completed: dec("25.01"), Pending: decimal.Zero}
	assert.True(t, IsDomainError(over.CheckCompletedWithin(txn.Amount), ErrorCodeRefundExceedsAmount))
	assert.True(t, over.Refundable(txn.Amount).IsZero())
}

func TestStatusForRefundTotal(t *testing.T) {
	tests := []struct {
		name      string
		completed string
		expected  PaymentStatus
	}{
		{"nothing_refunded", "0", PaymentStatusSucceeded},
		{"partial", "10.00", PaymentStatusPartiallyRefunded},
		{"full", "25.00", PaymentStatusRefunded},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, StatusForRefundTotal(dec("25.00"), dec(tt.completed)))
		})
	}
}
