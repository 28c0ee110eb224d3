// Package webhook exposes the gateway webhook endpoints.
package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"

	webhooksvc "github.com/kevin07696/bikeshare-payments/internal/services/webhook"
	"github.com/kevin07696/bikeshare-payments/pkg/resilience"
)

// maxPayloadBytes bounds webhook bodies; provider payloads are a few KB
const maxPayloadBytes = 1 << 20

// notReadyRetryAfter covers one payout API call
const notReadyRetryAfter = "30"

// Ingestor applies verified gateway events
type Ingestor interface {
	Ingest(ctx context.Context, adapter webhooksvc.GatewayAdapter, payload []byte, headers http.Header) (*webhooksvc.Result, error)
}

// Handler receives deliveries for one gateway
type Handler struct {
	ingestor Ingestor
	adapter  webhooksvc.GatewayAdapter
	timeouts *resilience.TimeoutConfig
	logger   *zap.Logger
}

// NewHandler creates a webhook handler bound to one gateway adapter
func NewHandler(ingestor Ingestor, adapter webhooksvc.GatewayAdapter, timeouts *resilience.TimeoutConfig, logger *zap.Logger) *Handler {
	return &Handler{
		ingestor: ingestor,
		adapter:  adapter,
		timeouts: timeouts,
		logger:   logger,
	}
}

// Response is the acknowledgement body
type Response struct {
	Received  bool   `json:"received"`
	Duplicate bool   `json:"duplicate"`
	Error     string `json:"error,omitempty"`
}

// ServeHTTP acknowledges every delivery with 200 unless the body cannot be
// read or parsed. Signature failures and unknown targets are acknowledged too.
// A payout still being dispatched gets 503 so the provider redelivers.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxPayloadBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.respond(w, http.StatusRequestEntityTooLarge, Response{Error: "payload too large"})
			return
		}
		h.logger.Warn("Failed to read webhook body",
			zap.String("gateway", h.adapter.Name()),
			zap.Error(err),
		)
		h.respond(w, http.StatusBadRequest, Response{Error: "unreadable body"})
		return
	}

	ctx, cancel := h.timeouts.WebhookContext(r.Context())
	defer cancel()

	res, err := h.ingestor.Ingest(ctx, h.adapter, payload, r.Header)
	if err != nil || !res.Ack {
		h.respond(w, http.StatusBadRequest, Response{Error: "malformed payload"})
		return
	}
	if res.NotReady {
		w.Header().Set("Retry-After", notReadyRetryAfter)
		h.respond(w, http.StatusServiceUnavailable, Response{Error: "target not ready"})
		return
	}
	h.respond(w, http.StatusOK, Response{Received: true, Duplicate: res.Duplicate})
}

func (h *Handler) respond(w http.ResponseWriter, status int, body Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error("Failed to encode webhook response", zap.Error(err))
	}
}
