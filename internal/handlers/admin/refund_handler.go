package admin

import (
	"net/http"

	"github.com/shopspring/decimal"
)

// RequestRefundRequest is the body of a refund request
type RequestRefundRequest struct {
	Amount     decimal.Decimal `json:"amount"`
	ReasonCode string          `json:"reason_code"`
}

// RequestRefund handles POST /admin/transactions/{externalID}/refunds
func (h *Handler) RequestRefund(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	var req RequestRefundRequest
	if err := decode(w, r, &req); err != nil {
		h.respondError(w, r, err)
		return
	}

	refund, err := h.refunds.Request(r.Context(), id, req.Amount, req.ReasonCode)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusCreated, successResponse{Success: true, Data: refund})
}

// ListRefunds handles GET /admin/transactions/{externalID}/refunds
func (h *Handler) ListRefunds(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	refunds, err := h.refunds.ListForTransaction(r.Context(), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondOK(w, refunds)
}

// CompleteRefund handles POST /admin/refunds/{externalID}/complete
func (h *Handler) CompleteRefund(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	refund, err := h.refunds.Complete(r.Context(), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondOK(w, refund)
}

// CancelRefund handles POST /admin/refunds/{externalID}/cancel
func (h *Handler) CancelRefund(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	refund, err := h.refunds.Cancel(r.Context(), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondOK(w, refund)
}
