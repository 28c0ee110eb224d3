package payoutapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/kevin07696/bikeshare-payments/internal/domain"
	"github.com/kevin07696/bikeshare-payments/pkg/crypto"
)

// SignatureHeader carries the hex HMAC-SHA256 of the raw body
const SignatureHeader = "X-Payout-Signature"

// WebhookAdapter parses payout status notifications from the payout provider
type WebhookAdapter struct {
	now    func() time.Time
	secret string
}

// NewWebhookAdapter creates the adapter. With an empty secret every delivery fails verification.
func NewWebhookAdapter(secret string) *WebhookAdapter {
	return &WebhookAdapter{secret: secret, now: time.Now}
}

type payoutNotification struct {
	OccurredAt   *time.Time `json:"occurred_at"`
	PayoutID     string     `json:"payout_id"`
	Status       string     `json:"status"`
	ErrorMessage string     `json:"error_message"`
	EventID      string     `json:"event_id"`
}

// Name identifies the gateway in logs and metrics
func (a *WebhookAdapter) Name() string {
	return "payout_provider"
}

// Parse verifies and decodes a payout notification
func (a *WebhookAdapter) Parse(ctx context.Context, payload []byte, headers http.Header) (*domain.GatewayEvent, error) {
	if err := crypto.ValidateSignature(a.secret, payload, headers.Get(SignatureHeader)); err != nil {
		return nil, domain.ErrInvalidSignature.WithDetail("reason", err.Error())
	}

	var n payoutNotification
	if err := json.Unmarshal(payload, &n); err != nil {
		return nil, domain.ErrMalformedPayload.WithDetail("reason", err.Error())
	}
	n.PayoutID = strings.TrimSpace(n.PayoutID)
	n.Status = strings.TrimSpace(n.Status)
	if n.PayoutID == "" {
		return nil, domain.ErrMalformedPayload.WithDetail("missing", "payout_id")
	}
	if n.Status == "" {
		return nil, domain.ErrMalformedPayload.WithDetail("missing", "status")
	}

	eventID := n.EventID
	if eventID == "" {
		eventID = n.PayoutID + ":" + strings.ToLower(n.Status)
	}
	occurredAt := a.now().UTC()
	if n.OccurredAt != nil {
		occurredAt = n.OccurredAt.UTC()
	}

	status, ok := MapPayoutStatus(n.Status)
	return &domain.GatewayEvent{
		Gateway:       domain.GatewayPayoutProvider,
		Kind:          domain.EventKindPayoutStatus,
		EventID:       eventID,
		EventType:     "payout." + strings.ToLower(n.Status),
		TargetRef:     n.PayoutID,
		RawStatus:     n.Status,
		PayoutStatus:  status,
		Recognized:    ok,
		FailureReason: n.ErrorMessage,
		OccurredAt:    occurredAt,
	}, nil
}

// MapPayoutStatus translates the provider vocabulary into a payout status.
// The same vocabulary is returned by the status query endpoint.
func MapPayoutStatus(raw string) (domain.PayoutStatus, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "paid", "completed", "succeeded":
		return domain.PayoutStatusCompleted, true
	case "failed", "rejected", "returned", "canceled", "cancelled":
		return domain.PayoutStatusFailed, true
	case "pending", "processing", "in_transit":
		return domain.PayoutStatusProcessing, true
	}
	return "", false
}
