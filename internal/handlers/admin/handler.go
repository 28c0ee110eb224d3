// Package admin exposes the operator HTTP surface for payouts and refunds.
package admin

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/kevin07696/bikeshare-payments/internal/domain"
	"github.com/kevin07696/bikeshare-payments/internal/domain/ports"
	"github.com/kevin07696/bikeshare-payments/internal/services/payout"
	"github.com/kevin07696/bikeshare-payments/pkg/resilience"
)

// TokenHeader carries the shared operator secret
const TokenHeader = "X-Admin-Token"

// PayoutService is the payout operations the admin surface needs
type PayoutService interface {
	RunPayoutPeriod(ctx context.Context, start, end time.Time) (*payout.RunReport, error)
	RunScope(ctx context.Context, scope domain.PayoutScope, start, end time.Time) (*payout.RunReport, error)
	Preview(ctx context.Context, scope *domain.PayoutScope, start, end time.Time) ([]*domain.PayoutDraft, error)
	Retry(ctx context.Context, externalID uuid.UUID, force bool) (*domain.Payout, error)
	Cancel(ctx context.Context, externalID uuid.UUID, reason string) (*domain.Payout, error)
	Get(ctx context.Context, externalID uuid.UUID) (*payout.PayoutDetail, error)
	History(ctx context.Context, filter ports.PayoutFilter) ([]*domain.Payout, error)
	ExternalStatus(ctx context.Context, externalID uuid.UUID) (*payout.ExternalStatus, error)
}

// RefundService is the refund operations the admin surface needs
type RefundService interface {
	Request(ctx context.Context, transactionExternalID uuid.UUID, amount decimal.Decimal, reasonCode string) (*domain.Refund, error)
	Complete(ctx context.Context, refundExternalID uuid.UUID) (*domain.Refund, error)
	Cancel(ctx context.Context, refundExternalID uuid.UUID) (*domain.Refund, error)
	ListForTransaction(ctx context.Context, transactionExternalID uuid.UUID) ([]*domain.Refund, error)
}

// Handler serves /admin
type Handler struct {
	payouts  PayoutService
	refunds  RefundService
	timeouts *resilience.TimeoutConfig
	token    string
	logger   *zap.Logger
}

// NewHandler creates the admin handler. An empty token rejects every request.
func NewHandler(payouts PayoutService, refunds RefundService, timeouts *resilience.TimeoutConfig, token string, logger *zap.Logger) *Handler {
	return &Handler{
		payouts:  payouts,
		refunds:  refunds,
		timeouts: timeouts,
		token:    token,
		logger:   logger,
	}
}

// Routes returns the admin router, to be mounted at /admin
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(h.authenticate)

	// run and retry detach from the request and set their own deadline
	r.Post("/payouts/run", h.RunPayouts)
	r.Post("/payouts/{externalID}/retry", h.RetryPayout)

	r.Group(func(r chi.Router) {
		r.Use(h.bounded)
		r.Get("/payouts", h.ListPayouts)
		r.Post("/payouts/preview", h.PreviewPayouts)
		r.Get("/payouts/{externalID}", h.GetPayout)
		r.Get("/payouts/{externalID}/external-status", h.PayoutExternalStatus)
		r.Post("/payouts/{externalID}/cancel", h.CancelPayout)
		r.Get("/transactions/{externalID}/refunds", h.ListRefunds)
		r.Post("/transactions/{externalID}/refunds", h.RequestRefund)
		r.Post("/refunds/{externalID}/complete", h.CompleteRefund)
		r.Post("/refunds/{externalID}/cancel", h.CancelRefund)
	})
	return r
}

func (h *Handler) bounded(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := h.timeouts.HandlerContext(r.Context())
		defer cancel()
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (h *Handler) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got := r.Header.Get(TokenHeader)
		if h.token == "" || subtle.ConstantTimeCompare([]byte(got), []byte(h.token)) != 1 {
			h.logger.Warn("Unauthorized admin request",
				zap.String("remote_addr", r.RemoteAddr),
				zap.String("path", r.URL.Path),
			)
			h.respondJSON(w, http.StatusUnauthorized, errorResponse{
				Error: errorBody{Code: "UNAUTHORIZED", Category: "unauthorized", Message: "missing or invalid admin token"},
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}

type successResponse struct {
	Data    interface{} `json:"data"`
	Success bool        `json:"success"`
}

type errorBody struct {
	Details  map[string]interface{} `json:"details,omitempty"`
	Code     string                 `json:"code"`
	Category string                 `json:"category"`
	Message  string                 `json:"message"`
}

type errorResponse struct {
	Error   errorBody `json:"error"`
	Success bool      `json:"success"`
}

func (h *Handler) respondJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error("Failed to encode response", zap.Error(err))
	}
}

func (h *Handler) respondOK(w http.ResponseWriter, data interface{}) {
	h.respondJSON(w, http.StatusOK, successResponse{Success: true, Data: data})
}

// respondError reports err with the status its category implies. Internal
// errors are logged and never echoed to the caller.
func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	category := domain.CategoryOf(err)
	status := statusForCategory(category)

	body := errorBody{
		Code:     string(domain.GetErrorCode(err)),
		Category: string(category),
		Message:  "internal error",
	}
	var domainErr *domain.DomainError
	if errors.As(err, &domainErr) && category != domain.CategoryInternal {
		body.Message = domainErr.Message
		if len(domainErr.Details) > 0 {
			body.Details = domainErr.Details
		}
		if domainErr.Err != nil && (category == domain.CategoryIntegrationTransient || category == domain.CategoryIntegrationPermanent) {
			body.Message = domainErr.Message + ": " + domainErr.Err.Error()
		}
	}
	if body.Code == "" {
		body.Code = string(domain.ErrorCodeInternalError)
	}

	if status >= http.StatusInternalServerError {
		h.logger.Error("Admin request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("category", string(category)),
			zap.Error(err),
		)
	} else {
		h.logger.Info("Admin request rejected",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("code", body.Code),
		)
	}
	h.respondJSON(w, status, errorResponse{Error: body})
}

func statusForCategory(c domain.ErrorCategory) int {
	switch c {
	case domain.CategoryValidation, domain.CategoryUntrustedInput:
		return http.StatusBadRequest
	case domain.CategoryNotFound:
		return http.StatusNotFound
	case domain.CategoryInvalidState, domain.CategoryInvalidTransition, domain.CategoryConflict, domain.CategoryDuplicate:
		return http.StatusConflict
	case domain.CategoryInvariantViolation:
		return http.StatusUnprocessableEntity
	case domain.CategoryIntegrationTransient:
		return http.StatusServiceUnavailable
	case domain.CategoryIntegrationPermanent:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// decode reads an optional JSON body into v
func decode(w http.ResponseWriter, r *http.Request, v interface{}) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return domain.ErrValidationFailed.WithDetail("body", err.Error())
	}
	return nil
}

func pathID(r *http.Request) (uuid.UUID, error) {
	raw := chi.URLParam(r, "externalID")
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, domain.ErrValidationFailed.WithDetail("external_id", raw)
	}
	return id, nil
}
