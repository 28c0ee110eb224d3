package admin

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kevin07696/bikeshare-payments/internal/domain"
	"github.com/kevin07696/bikeshare-payments/internal/domain/ports"
	"github.com/kevin07696/bikeshare-payments/internal/services/payout"
	"github.com/kevin07696/bikeshare-payments/pkg/timeutil"
)

// RunPayoutsRequest selects the period and optionally a single scope
type RunPayoutsRequest struct {
	PeriodStart string `json:"period_start"`
	PeriodEnd   string `json:"period_end"`
	ScopeType   string `json:"scope_type,omitempty"`
	ScopeID     string `json:"scope_id,omitempty"`
}

// RunPayoutsResponse is the run report with its overall result
type RunPayoutsResponse struct {
	*payout.RunReport
	Result string `json:"result"`
}

// RetryPayoutRequest forces a retry of a permanently failed payout
type RetryPayoutRequest struct {
	Force bool `json:"force"`
}

// CancelPayoutRequest explains why an operator cancelled a payout
type CancelPayoutRequest struct {
	Reason string `json:"reason"`
}

func (req RunPayoutsRequest) parse() (start, end time.Time, scope *domain.PayoutScope, err error) {
	if req.PeriodStart == "" {
		return start, end, nil, domain.ErrValidationMissingField.WithDetail("field", "period_start")
	}
	if req.PeriodEnd == "" {
		return start, end, nil, domain.ErrValidationMissingField.WithDetail("field", "period_end")
	}
	if start, err = timeutil.ParsePeriodBound(req.PeriodStart); err != nil {
		return start, end, nil, domain.ErrValidationFailed.WithDetail("period_start", req.PeriodStart)
	}
	if end, err = timeutil.ParsePeriodBound(req.PeriodEnd); err != nil {
		return start, end, nil, domain.ErrValidationFailed.WithDetail("period_end", req.PeriodEnd)
	}
	if !end.After(start) {
		return start, end, nil, domain.ErrValidationFailed.WithDetail("period", "period_end must be after period_start")
	}
	if req.ScopeType == "" && req.ScopeID == "" {
		return start, end, nil, nil
	}
	sc, err := parseScope(req.ScopeType, req.ScopeID)
	if err != nil {
		return start, end, nil, err
	}
	return start, end, &sc, nil
}

func parseScope(scopeType, scopeID string) (domain.PayoutScope, error) {
	sc := domain.PayoutScope{Type: domain.ScopeType(strings.ToUpper(scopeType)), ID: scopeID}
	return sc, sc.Validate()
}

// RunPayouts handles POST /admin/payouts/run. The run is detached from the
// request so a dropped connection cannot stop it between scopes.
func (h *Handler) RunPayouts(w http.ResponseWriter, r *http.Request) {
	var req RunPayoutsRequest
	if err := decode(w, r, &req); err != nil {
		h.respondError(w, r, err)
		return
	}
	start, end, scope, err := req.parse()
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	ctx, cancel := h.timeouts.PayoutRunContext(context.WithoutCancel(r.Context()))
	defer cancel()

	h.logger.Info("Payout run requested by operator",
		zap.Time("period_start", start),
		zap.Time("period_end", end),
		zap.Bool("single_scope", scope != nil),
	)

	var report *payout.RunReport
	if scope != nil {
		report, err = h.payouts.RunScope(ctx, *scope, start, end)
	} else {
		report, err = h.payouts.RunPayoutPeriod(ctx, start, end)
	}
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondOK(w, RunPayoutsResponse{RunReport: report, Result: report.Result()})
}

// PreviewPayouts handles POST /admin/payouts/preview
func (h *Handler) PreviewPayouts(w http.ResponseWriter, r *http.Request) {
	var req RunPayoutsRequest
	if err := decode(w, r, &req); err != nil {
		h.respondError(w, r, err)
		return
	}
	start, end, scope, err := req.parse()
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	drafts, err := h.payouts.Preview(r.Context(), scope, start, end)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondOK(w, drafts)
}

// ListPayouts handles GET /admin/payouts
func (h *Handler) ListPayouts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var filter ports.PayoutFilter

	if raw := q.Get("status"); raw != "" {
		status, err := domain.ParsePayoutStatus(strings.ToUpper(raw))
		if err != nil {
			h.respondError(w, r, domain.ErrValidationFailed.WithDetail("status", raw))
			return
		}
		filter.Status = &status
	}
	if q.Get("scope_type") != "" || q.Get("scope_id") != "" {
		sc, err := parseScope(q.Get("scope_type"), q.Get("scope_id"))
		if err != nil {
			h.respondError(w, r, err)
			return
		}
		filter.Scope = &sc
	}
	for name, dst := range map[string]*int32{"limit": &filter.Limit, "offset": &filter.Offset} {
		raw := q.Get(name)
		if raw == "" {
			continue
		}
		n, err := strconv.ParseInt(raw, 10, 32)
		if err != nil {
			h.respondError(w, r, domain.ErrValidationFailed.WithDetail(name, raw))
			return
		}
		*dst = int32(n)
	}

	payouts, err := h.payouts.History(r.Context(), filter)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondOK(w, payouts)
}

// GetPayout handles GET /admin/payouts/{externalID}
func (h *Handler) GetPayout(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	detail, err := h.payouts.Get(r.Context(), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondOK(w, detail)
}

// PayoutExternalStatus handles GET /admin/payouts/{externalID}/external-status
func (h *Handler) PayoutExternalStatus(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	status, err := h.payouts.ExternalStatus(r.Context(), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondOK(w, status)
}

// RetryPayout handles POST /admin/payouts/{externalID}/retry
func (h *Handler) RetryPayout(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	var req RetryPayoutRequest
	if err := decode(w, r, &req); err != nil {
		h.respondError(w, r, err)
		return
	}

	p, err := h.payouts.Retry(context.WithoutCancel(r.Context()), id, req.Force)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondOK(w, p)
}

// CancelPayout handles POST /admin/payouts/{externalID}/cancel
func (h *Handler) CancelPayout(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	var req CancelPayoutRequest
	if err := decode(w, r, &req); err != nil {
		h.respondError(w, r, err)
		return
	}

	p, err := h.payouts.Cancel(r.Context(), id, strings.TrimSpace(req.Reason))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondOK(w, p)
}
