// Package psp parses notifications from the redirect payment service provider.
package psp

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/kevin07696/bikeshare-payments/internal/domain"
	"github.com/kevin07696/bikeshare-payments/pkg/crypto"
)

// Header names used by the PSP
const (
	SignatureHeader = "X-PSP-Signature"
	TimestampHeader = "X-PSP-Timestamp"
)

// Config holds webhook verification settings
type Config struct {
	SigningSecret string
	// Tolerance bounds the age of X-PSP-Timestamp when the PSP sends one; zero disables the check
	Tolerance time.Duration
}

// WebhookAdapter verifies and maps PSP notifications
type WebhookAdapter struct {
	now    func() time.Time
	config Config
}

// NewWebhookAdapter creates a PSP webhook adapter
func NewWebhookAdapter(config Config) *WebhookAdapter {
	return NewWebhookAdapterWithClock(config, time.Now)
}

// NewWebhookAdapterWithClock creates a PSP webhook adapter reading time from now
func NewWebhookAdapterWithClock(config Config, now func() time.Time) *WebhookAdapter {
	return &WebhookAdapter{config: config, now: now}
}

type notification struct {
	OccurredAt        *time.Time    `json:"occurred_at"`
	Refund            *refundDetail `json:"refund"`
	EventID           string        `json:"event_id"`
	EventType         string        `json:"event_type"`
	PaymentID         string        `json:"payment_id"`
	MerchantReference string        `json:"merchant_reference"`
	Status            string        `json:"status"`
	FailureReason     string        `json:"failure_reason"`
}

type refundDetail struct {
	ID       string          `json:"id"`
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
}

// Name identifies the gateway in logs and metrics
func (a *WebhookAdapter) Name() string {
	return "psp"
}

// Parse verifies X-PSP-Signature over the raw body and maps the notification.
// When X-PSP-Timestamp is present the signature covers "<timestamp>.<body>".
func (a *WebhookAdapter) Parse(ctx context.Context, payload []byte, headers http.Header) (*domain.GatewayEvent, error) {
	timestamp := headers.Get(TimestampHeader)
	if timestamp != "" {
		if err := crypto.CheckTimestamp(timestamp, a.now(), a.config.Tolerance); err != nil {
			return nil, domain.ErrInvalidSignature.WithDetail("reason", err.Error())
		}
	}
	if err := crypto.ValidateSignature(a.config.SigningSecret, crypto.SignedMessage(timestamp, payload), headers.Get(SignatureHeader)); err != nil {
		return nil, domain.ErrInvalidSignature.WithDetail("reason", err.Error())
	}

	var n notification
	if err := json.Unmarshal(payload, &n); err != nil {
		return nil, domain.ErrMalformedPayload.WithDetail("reason", err.Error())
	}
	if n.EventID == "" {
		return nil, domain.ErrMalformedPayload.WithDetail("missing", "event_id")
	}
	if n.PaymentID == "" {
		return nil, domain.ErrMalformedPayload.WithDetail("missing", "payment_id")
	}

	ev := &domain.GatewayEvent{
		Gateway:     domain.GatewayRedirectPSP,
		EventID:     n.EventID,
		EventType:   n.EventType,
		TargetRef:   n.PaymentID,
		MerchantRef: n.MerchantReference,
		OccurredAt:  a.now().UTC(),
	}
	if n.OccurredAt != nil {
		ev.OccurredAt = n.OccurredAt.UTC()
	}

	if strings.HasPrefix(n.EventType, "refund.") {
		return ev, mapRefund(ev, &n)
	}

	if n.Status == "" {
		return nil, domain.ErrMalformedPayload.WithDetail("missing", "status")
	}
	ev.Kind = domain.EventKindPaymentStatus
	ev.RawStatus = n.Status
	ev.PaymentStatus, ev.Recognized = MapPaymentStatus(n.Status)
	if ev.PaymentStatus == domain.PaymentStatusFailed {
		ev.FailureReason = n.FailureReason
	}
	return ev, nil
}

// MapPaymentStatus translates the PSP payment vocabulary
func MapPaymentStatus(raw string) (domain.PaymentStatus, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "paid", "authorized":
		return domain.PaymentStatusSucceeded, true
	case "failed":
		return domain.PaymentStatusFailed, true
	case "canceled", "cancelled", "expired":
		return domain.PaymentStatusCanceled, true
	case "open", "pending":
		return domain.PaymentStatusInitialized, true
	}
	return "", false
}

func mapRefund(ev *domain.GatewayEvent, n *notification) error {
	if n.Refund == nil || n.Refund.ID == "" {
		return domain.ErrMalformedPayload.WithDetail("missing", "refund")
	}

	ev.Kind = domain.EventKindRefund
	ev.RawStatus = strings.TrimPrefix(n.EventType, "refund.")
	notice := &domain.RefundNotice{
		GatewayRefundID: n.Refund.ID,
		Amount:          n.Refund.Amount,
	}
	switch n.EventType {
	case "refund.succeeded":
		notice.Status = domain.RefundStatusCompleted
	case "refund.failed":
		notice.Status = domain.RefundStatusFailed
	case "refund.pending":
		notice.Status = domain.RefundStatusPending
	}
	if notice.Status == domain.RefundStatusCompleted && !notice.Amount.IsPositive() {
		return domain.ErrMalformedPayload.WithDetail("invalid", "refund.amount")
	}
	ev.Recognized = notice.Status != ""
	ev.Refund = notice
	return nil
}
