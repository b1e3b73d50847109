package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/gtonpay/backend/internal/middleware"
	"github.com/gtonpay/backend/internal/services"
	"github.com/shopspring/decimal"
)

type PayoutHandler struct {
	service   *services.PayoutService
	validator *services.ValidationHelper
}

func NewPayoutHandler(service *services.PayoutService) *PayoutHandler {
	return &PayoutHandler{
		service:   service,
		validator: services.NewValidationHelper(),
	}
}

// RequestPayout creates a payout request
// @Summary Request payout
// @Description Request a partner payout; the amount is frozen until an admin decides
// @Tags Payouts
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body object{amount=string,method=string,details=object,currency=string} true "Payout request"
// @Success 200 {object} services.PayoutResult
// @Failure 400 {object} services.ErrorResponse
// @Failure 403 {object} services.ErrorResponse
// @Failure 503 {object} services.ErrorResponse
// @Router /payouts [post]
func (h *PayoutHandler) RequestPayout(w http.ResponseWriter, r *http.Request) {
	partnerID, ok := h.callerPartner(w, r)
	if !ok {
		return
	}

	var req struct {
		Amount   string            `json:"amount" validate:"required"`
		Method   string            `json:"method" validate:"required,oneof=card sbp usdt"`
		Details  map[string]string `json:"details" validate:"required"`
		Currency string            `json:"currency" validate:"omitempty,len=3"`
	}

	r.Body = http.MaxBytesReader(w, r.Body, 1_048_576)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(&req); err != nil {
		services.SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}

	if err := dec.Decode(&struct{}{}); err != io.EOF {
		services.SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return
	}

	if err := h.validator.ValidateStruct(&req); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		services.SendErrorResponse(w, "Invalid amount", http.StatusBadRequest, nil)
		return
	}

	result, err := h.service.RequestPayout(partnerID, amount, req.Method, req.Details, req.Currency)
	if err != nil {
		sendServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"success": true,
		"data":    result,
	})
}

// CancelPayout cancels the caller's own pending payout
// @Summary Cancel payout
// @Description Cancel a pending payout request and unfreeze the amount
// @Tags Payouts
// @Produce json
// @Security BearerAuth
// @Param id path int true "Payout ID"
// @Success 200 {object} services.PayoutResult
// @Failure 404 {object} services.ErrorResponse
// @Failure 409 {object} services.ErrorResponse
// @Router /payouts/{id}/cancel [post]
func (h *PayoutHandler) CancelPayout(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserID(r)
	if err != nil {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	payoutID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		services.SendErrorResponse(w, "Invalid payout id", http.StatusBadRequest, nil)
		return
	}

	result, err := h.service.CancelPayout(payoutID, userID)
	if err != nil {
		sendServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"success": true,
		"data":    result,
	})
}

// ListPayouts returns the caller's payout history
// @Summary List payouts
// @Description Get the caller's payout requests, newest first
// @Tags Payouts
// @Produce json
// @Security BearerAuth
// @Param limit query int false "Max rows to return" default(20)
// @Success 200 {array} models.Payout
// @Failure 401 {object} services.ErrorResponse
// @Router /payouts [get]
func (h *PayoutHandler) ListPayouts(w http.ResponseWriter, r *http.Request) {
	partnerID, ok := h.callerPartner(w, r)
	if !ok {
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	payouts, err := h.service.GetPartnerPayouts(partnerID, limit)
	if err != nil {
		sendServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"success": true,
		"payouts": payouts,
	})
}

// AvailableBalance returns the caller's withdrawable balance
// @Summary Available balance
// @Description Get the partner balance minus frozen funds
// @Tags Payouts
// @Produce json
// @Security BearerAuth
// @Success 200 {object} object{available=string}
// @Failure 404 {object} services.ErrorResponse
// @Router /payouts/available [get]
func (h *PayoutHandler) AvailableBalance(w http.ResponseWriter, r *http.Request) {
	partnerID, ok := h.callerPartner(w, r)
	if !ok {
		return
	}

	available, err := h.service.GetAvailableBalance(partnerID)
	if err != nil {
		sendServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"success":   true,
		"available": available,
	})
}

// PendingPayouts returns the admin review queue
// @Summary Pending payouts
// @Description List pending payout requests, oldest first
// @Tags Admin
// @Produce json
// @Security BearerAuth
// @Param limit query int false "Max rows to return" default(50)
// @Success 200 {array} models.Payout
// @Failure 403 {object} services.ErrorResponse
// @Router /admin/payouts/pending [get]
func (h *PayoutHandler) PendingPayouts(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	payouts, err := h.service.GetPendingPayouts(limit)
	if err != nil {
		sendServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"success": true,
		"payouts": payouts,
	})
}

// ApprovePayout settles a pending payout
// @Summary Approve payout
// @Description Approve a pending payout and settle the frozen amount
// @Tags Admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Payout ID"
// @Param request body object{comment=string} false "Approval comment"
// @Success 200 {object} services.PayoutResult
// @Failure 404 {object} services.ErrorResponse
// @Failure 409 {object} services.ErrorResponse
// @Router /admin/payouts/{id}/approve [post]
func (h *PayoutHandler) ApprovePayout(w http.ResponseWriter, r *http.Request) {
	adminID, payoutID, body, ok := h.decodeDecision(w, r)
	if !ok {
		return
	}

	result, err := h.service.ApprovePayout(payoutID, adminID, body.Comment)
	if err != nil {
		sendServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"success": true,
		"data":    result,
	})
}

// RejectPayout rejects a pending payout
// @Summary Reject payout
// @Description Reject a pending payout and unfreeze the amount
// @Tags Admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Payout ID"
// @Param request body object{reason=string} true "Rejection reason"
// @Success 200 {object} services.PayoutResult
// @Failure 404 {object} services.ErrorResponse
// @Failure 409 {object} services.ErrorResponse
// @Router /admin/payouts/{id}/reject [post]
func (h *PayoutHandler) RejectPayout(w http.ResponseWriter, r *http.Request) {
	adminID, payoutID, body, ok := h.decodeDecision(w, r)
	if !ok {
		return
	}
	if body.Reason == "" {
		services.SendErrorResponse(w, "Rejection reason is required", http.StatusBadRequest, nil)
		return
	}

	result, err := h.service.RejectPayout(payoutID, adminID, body.Reason)
	if err != nil {
		sendServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"success": true,
		"data":    result,
	})
}

type decisionBody struct {
	Comment string `json:"comment"`
	Reason  string `json:"reason"`
}

func (h *PayoutHandler) decodeDecision(w http.ResponseWriter, r *http.Request) (adminID, payoutID int64, body decisionBody, ok bool) {
	adminID, err := middleware.UserID(r)
	if err != nil {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return 0, 0, body, false
	}

	payoutID, err = strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		services.SendErrorResponse(w, "Invalid payout id", http.StatusBadRequest, nil)
		return 0, 0, body, false
	}

	r.Body = http.MaxBytesReader(w, r.Body, 1_048_576)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&body); err != nil && err != io.EOF {
		services.SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return 0, 0, body, false
	}

	return adminID, payoutID, body, true
}

func (h *PayoutHandler) callerPartner(w http.ResponseWriter, r *http.Request) (int64, bool) {
	userID, err := middleware.UserID(r)
	if err != nil {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return 0, false
	}

	partnerID, err := h.service.GetPartnerID(userID)
	if err != nil {
		sendServiceError(w, err)
		return 0, false
	}
	return partnerID, true
}
