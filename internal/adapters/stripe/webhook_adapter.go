// Package stripe parses card processor webhooks in the Stripe format.
package stripe

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	stripeapi "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/kevin07696/bikeshare-payments/internal/domain"
)

// MerchantRefKey is the PaymentIntent metadata key holding our transaction external id
const MerchantRefKey = "external_id"

// Config holds webhook verification settings
type Config struct {
	SigningSecret string
	// Tolerance bounds the age of the signed timestamp; zero uses the library default
	Tolerance time.Duration
}

// WebhookAdapter verifies and maps card processor events
type WebhookAdapter struct {
	config Config
}

// NewWebhookAdapter creates a card processor webhook adapter
func NewWebhookAdapter(config Config) *WebhookAdapter {
	if config.Tolerance <= 0 {
		config.Tolerance = webhook.DefaultTolerance
	}
	return &WebhookAdapter{config: config}
}

// Name identifies the gateway in logs and metrics
func (a *WebhookAdapter) Name() string {
	return "card"
}

// Parse verifies the Stripe-Signature header and maps the event
func (a *WebhookAdapter) Parse(ctx context.Context, payload []byte, headers http.Header) (*domain.GatewayEvent, error) {
	if a.config.SigningSecret == "" {
		return nil, domain.ErrInvalidSignature.WithDetail("reason", "signing secret not configured")
	}
	event, err := webhook.ConstructEventWithOptions(payload, headers.Get("Stripe-Signature"), a.config.SigningSecret,
		webhook.ConstructEventOptions{
			Tolerance:                a.config.Tolerance,
			IgnoreAPIVersionMismatch: true,
		})
	if err != nil {
		if isSignatureError(err) {
			return nil, domain.ErrInvalidSignature.WithDetail("reason", err.Error())
		}
		return nil, domain.ErrMalformedPayload.WithDetail("reason", err.Error())
	}
	if event.ID == "" || event.Data == nil || len(event.Data.Raw) == 0 {
		return nil, domain.ErrMalformedPayload.WithDetail("reason", "event id or data missing")
	}

	ev := &domain.GatewayEvent{
		Gateway:    domain.GatewayCard,
		EventID:    event.ID,
		EventType:  string(event.Type),
		OccurredAt: time.Unix(event.Created, 0).UTC(),
	}

	eventType := string(event.Type)
	switch {
	case eventType == "charge.refunded":
		return ev, mapChargeRefunded(ev, event.Data.Raw)
	case eventType == "charge.refund.updated" || eventType == "refund.updated":
		return ev, mapRefundUpdated(ev, event.Data.Raw)
	case strings.HasPrefix(eventType, "payment_intent."):
		return ev, mapPaymentIntent(ev, eventType, event.Data.Raw)
	}
	return nil, domain.ErrIgnoredEvent.WithDetail("event_type", eventType)
}

func isSignatureError(err error) bool {
	return errors.Is(err, webhook.ErrNotSigned) ||
		errors.Is(err, webhook.ErrInvalidHeader) ||
		errors.Is(err, webhook.ErrNoValidSignature) ||
		errors.Is(err, webhook.ErrTooOld)
}

// Event types with a fixed meaning regardless of the intent's status field
var paymentIntentEvents = map[string]domain.PaymentStatus{
	"payment_intent.succeeded":       domain.PaymentStatusSucceeded,
	"payment_intent.payment_failed":  domain.PaymentStatusFailed,
	"payment_intent.canceled":        domain.PaymentStatusCanceled,
	"payment_intent.processing":      domain.PaymentStatusInitialized,
	"payment_intent.requires_action": domain.PaymentStatusInitialized,
}

// MapIntentStatus translates a PaymentIntent status into a payment status
func MapIntentStatus(status stripeapi.PaymentIntentStatus) (domain.PaymentStatus, bool) {
	switch status {
	case stripeapi.PaymentIntentStatusSucceeded:
		return domain.PaymentStatusSucceeded, true
	case stripeapi.PaymentIntentStatusCanceled:
		return domain.PaymentStatusCanceled, true
	case stripeapi.PaymentIntentStatusProcessing,
		stripeapi.PaymentIntentStatusRequiresAction,
		stripeapi.PaymentIntentStatusRequiresConfirmation,
		stripeapi.PaymentIntentStatusRequiresPaymentMethod:
		return domain.PaymentStatusInitialized, true
	}
	return "", false
}

func mapPaymentIntent(ev *domain.GatewayEvent, eventType string, raw json.RawMessage) error {
	var pi stripeapi.PaymentIntent
	if err := json.Unmarshal(raw, &pi); err != nil {
		return domain.ErrMalformedPayload.WithDetail("reason", err.Error())
	}
	if pi.ID == "" {
		return domain.ErrMalformedPayload.WithDetail("missing", "payment_intent.id")
	}

	ev.Kind = domain.EventKindPaymentStatus
	ev.TargetRef = pi.ID
	ev.MerchantRef = pi.Metadata[MerchantRefKey]
	ev.RawStatus = string(pi.Status)

	if status, ok := paymentIntentEvents[eventType]; ok {
		ev.PaymentStatus, ev.Recognized = status, true
	} else {
		ev.PaymentStatus, ev.Recognized = MapIntentStatus(pi.Status)
	}
	if ev.RawStatus == "" {
		ev.RawStatus = strings.TrimPrefix(eventType, "payment_intent.")
	}
	if ev.PaymentStatus == domain.PaymentStatusFailed && pi.LastPaymentError != nil {
		ev.FailureReason = pi.LastPaymentError.Msg
	}
	return nil
}

// charge.refunded reports the running total refunded on the charge
func mapChargeRefunded(ev *domain.GatewayEvent, raw json.RawMessage) error {
	var charge stripeapi.Charge
	if err := json.Unmarshal(raw, &charge); err != nil {
		return domain.ErrMalformedPayload.WithDetail("reason", err.Error())
	}
	if charge.PaymentIntent == nil || charge.PaymentIntent.ID == "" {
		return domain.ErrMalformedPayload.WithDetail("missing", "charge.payment_intent")
	}

	currency := strings.ToUpper(string(charge.Currency))
	ev.Kind = domain.EventKindRefund
	ev.TargetRef = charge.PaymentIntent.ID
	ev.MerchantRef = charge.Metadata[MerchantRefKey]
	ev.RawStatus = "refunded"
	ev.Recognized = true
	ev.Refund = &domain.RefundNotice{
		Cumulative:       true,
		CumulativeAmount: domain.FromMinorUnits(charge.AmountRefunded, currency),
		Status:           domain.RefundStatusCompleted,
	}
	return nil
}

func mapRefundUpdated(ev *domain.GatewayEvent, raw json.RawMessage) error {
	var refund stripeapi.Refund
	if err := json.Unmarshal(raw, &refund); err != nil {
		return domain.ErrMalformedPayload.WithDetail("reason", err.Error())
	}
	if refund.ID == "" || refund.PaymentIntent == nil || refund.PaymentIntent.ID == "" {
		return domain.ErrMalformedPayload.WithDetail("missing", "refund.id or refund.payment_intent")
	}

	currency := strings.ToUpper(string(refund.Currency))
	ev.Kind = domain.EventKindRefund
	ev.TargetRef = refund.PaymentIntent.ID
	ev.RawStatus = string(refund.Status)
	notice := &domain.RefundNotice{
		GatewayRefundID: refund.ID,
		Amount:          domain.FromMinorUnits(refund.Amount, currency),
	}
	switch refund.Status {
	case stripeapi.RefundStatusSucceeded:
		notice.Status = domain.RefundStatusCompleted
	case stripeapi.RefundStatusFailed, stripeapi.RefundStatusCanceled:
		notice.Status = domain.RefundStatusFailed
	case stripeapi.RefundStatusPending, "requires_action":
		notice.Status = domain.RefundStatusPending
	}
	ev.Recognized = notice.Status != ""
	ev.Refund = notice
	return nil
}
