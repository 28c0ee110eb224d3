package cron

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kevin07696/bikeshare-payments/internal/domain"
	"github.com/kevin07696/bikeshare-payments/internal/services/payout"
	"github.com/kevin07696/bikeshare-payments/pkg/resilience"
	"github.com/kevin07696/bikeshare-payments/pkg/timeutil"
)

// PayoutRunner runs a payout period
type PayoutRunner interface {
	RunPayoutPeriod(ctx context.Context, start, end time.Time) (*payout.RunReport, error)
}

// PayoutRunHandler handles the scheduler's monthly payout trigger
type PayoutRunHandler struct {
	runner     PayoutRunner
	timeouts   *resilience.TimeoutConfig
	logger     *zap.Logger
	cronSecret string
	now        func() time.Time
}

// NewPayoutRunHandler creates a new payout run cron handler
func NewPayoutRunHandler(
	runner PayoutRunner,
	timeouts *resilience.TimeoutConfig,
	logger *zap.Logger,
	cronSecret string,
) *PayoutRunHandler {
	return &PayoutRunHandler{
		runner:     runner,
		timeouts:   timeouts,
		logger:     logger,
		cronSecret: cronSecret,
		now:        timeutil.Now,
	}
}

// PayoutRunRequest optionally overrides the period; both bounds or neither
type PayoutRunRequest struct {
	PeriodStart *string `json:"period_start"`
	PeriodEnd   *string `json:"period_end"`
}

// ScopeFailureSummary is one failed scope in the response
type ScopeFailureSummary struct {
	PayoutID string `json:"payout_id,omitempty"`
	Scope    string `json:"scope"`
	Currency string `json:"currency,omitempty"`
	Code     string `json:"code"`
	Category string `json:"category"`
}

// PayoutRunResponse represents the response from a payout run
type PayoutRunResponse struct {
	Success      bool                  `json:"success"`
	Result       string                `json:"result"`
	PeriodStart  string                `json:"period_start"`
	PeriodEnd    string                `json:"period_end"`
	Scopes       int                   `json:"scopes"`
	CreatedCount int                   `json:"created_count"`
	SkippedCount int                   `json:"skipped_count"`
	FailureCount int                   `json:"failure_count"`
	Failures     []ScopeFailureSummary `json:"failures,omitempty"`
	ProcessedAt  string                `json:"processed_at"`
}

// ProcessPayoutRun handles POST /cron/payout-run. Without a body it pays out
// the previous calendar month (UTC).
func (h *PayoutRunHandler) ProcessPayoutRun(w http.ResponseWriter, r *http.Request) {
	h.logger.Info("Payout run cron job triggered",
		zap.String("remote_addr", r.RemoteAddr),
		zap.String("user_agent", r.UserAgent()),
	)

	if r.Method != http.MethodPost {
		h.respondError(w, http.StatusMethodNotAllowed, "only POST method is allowed")
		return
	}
	if !h.authenticateRequest(r) {
		h.logger.Warn("Unauthorized cron request", zap.String("remote_addr", r.RemoteAddr))
		h.respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req PayoutRunRequest
	if r.Body != nil && r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			h.respondError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	start, end, err := h.period(req)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	// The scheduler may give up on the request; the run still finishes
	ctx, cancel := h.timeouts.PayoutRunContext(context.WithoutCancel(r.Context()))
	defer cancel()

	report, err := h.runner.RunPayoutPeriod(ctx, start, end)
	if err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, domain.ErrPayoutRunInProgress):
			status = http.StatusConflict
		case domain.IsValidationError(err):
			status = http.StatusBadRequest
		}
		h.logger.Error("Payout run failed",
			zap.Time("period_start", start),
			zap.Time("period_end", end),
			zap.Error(err),
		)
		h.respondError(w, status, string(domain.CategoryOf(err)))
		return
	}

	resp := PayoutRunResponse{
		Success:      len(report.Failed) == 0,
		Result:       report.Result(),
		PeriodStart:  start.Format(time.RFC3339),
		PeriodEnd:    end.Format(time.RFC3339),
		Scopes:       report.Scopes,
		CreatedCount: len(report.Created),
		SkippedCount: len(report.Skipped),
		FailureCount: len(report.Failed),
		ProcessedAt:  h.now().Format(time.RFC3339),
	}
	for _, f := range report.Failed {
		summary := ScopeFailureSummary{
			Scope:    f.Scope.String(),
			Currency: f.Currency,
			Code:     f.Code,
			Category: string(f.Category),
		}
		if f.PayoutID != nil {
			summary.PayoutID = f.PayoutID.String()
		}
		resp.Failures = append(resp.Failures, summary)
	}

	status := http.StatusOK
	if !resp.Success {
		status = http.StatusPartialContent
	}
	h.respondJSON(w, status, resp)
}

func (h *PayoutRunHandler) period(req PayoutRunRequest) (time.Time, time.Time, error) {
	if req.PeriodStart == nil && req.PeriodEnd == nil {
		start, end := timeutil.PreviousMonth(h.now())
		return start, end, nil
	}
	if req.PeriodStart == nil || req.PeriodEnd == nil {
		return time.Time{}, time.Time{}, errors.New("period_start and period_end must be given together")
	}
	start, err := timeutil.ParsePeriodBound(*req.PeriodStart)
	if err != nil {
		return time.Time{}, time.Time{}, errors.New("invalid period_start")
	}
	end, err := timeutil.ParsePeriodBound(*req.PeriodEnd)
	if err != nil {
		return time.Time{}, time.Time{}, errors.New("invalid period_end")
	}
	if !end.After(start) {
		return time.Time{}, time.Time{}, errors.New("period_end must be after period_start")
	}
	return start, end, nil
}

// authenticateRequest accepts the secret in X-Cron-Secret or as a Bearer token
func (h *PayoutRunHandler) authenticateRequest(r *http.Request) bool {
	if h.cronSecret == "" {
		return false
	}
	if secret := r.Header.Get("X-Cron-Secret"); secret != "" {
		return subtle.ConstantTimeCompare([]byte(secret), []byte(h.cronSecret)) == 1
	}
	bearer, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	return ok && subtle.ConstantTimeCompare([]byte(bearer), []byte(h.cronSecret)) == 1
}

func (h *PayoutRunHandler) respondError(w http.ResponseWriter, statusCode int, message string) {
	h.respondJSON(w, statusCode, map[string]interface{}{
		"success": false,
		"error":   message,
	})
}

func (h *PayoutRunHandler) respondJSON(w http.ResponseWriter, statusCode int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error("Failed to encode response", zap.Error(err))
	}
}

// HealthCheck handles GET /cron/health for monitoring
func (h *PayoutRunHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"status": "healthy",
		"time":   h.now().Format(time.RFC3339),
	})
}
