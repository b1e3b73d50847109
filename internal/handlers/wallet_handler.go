package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/gtonpay/backend/internal/middleware"
	"github.com/gtonpay/backend/internal/models"
	"github.com/gtonpay/backend/internal/services"
	"github.com/shopspring/decimal"
)

type WalletHandler struct {
	service   *services.LedgerService
	validator *services.ValidationHelper
}

func NewWalletHandler(service *services.LedgerService) *WalletHandler {
	return &WalletHandler{
		service:   service,
		validator: services.NewValidationHelper(),
	}
}

type mutateRequest struct {
	UserID      int64  `json:"user_id" validate:"required,gt=0"`
	WalletType  string `json:"wallet_type" validate:"omitempty,oneof=main bonus"`
	Amount      string `json:"amount" validate:"required"`
	Source      string `json:"source" validate:"required"`
	Action      string `json:"action"`
	Reference   string `json:"reference"`
	Description string `json:"description"`
}

// Credit credits a user wallet
// @Summary Credit wallet
// @Description Credit an amount to a user's wallet, creating the wallet on first use
// @Tags Wallet
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body mutateRequest true "Credit request"
// @Success 200 {object} services.TransactionResult
// @Failure 400 {object} services.ErrorResponse
// @Failure 403 {object} services.ErrorResponse
// @Router /admin/wallet/credit [post]
func (h *WalletHandler) Credit(w http.ResponseWriter, r *http.Request) {
	req, amount, ok := h.decodeMutation(w, r)
	if !ok {
		return
	}

	result, err := h.service.Credit(req.UserID, amount, req.WalletType, req.Source, req.Description)
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

// Debit debits a user wallet
// @Summary Debit wallet
// @Description Debit an amount from a user's wallet; triggers the referral commission cascade
// @Tags Wallet
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body mutateRequest true "Debit request"
// @Success 200 {object} services.TransactionResult
// @Failure 400 {object} services.ErrorResponse
// @Failure 404 {object} services.ErrorResponse
// @Router /admin/wallet/debit [post]
func (h *WalletHandler) Debit(w http.ResponseWriter, r *http.Request) {
	req, amount, ok := h.decodeMutation(w, r)
	if !ok {
		return
	}

	result, err := h.service.Debit(req.UserID, amount, req.WalletType, req.Source, req.Action, req.Reference)
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

// GetBalance returns the caller's balance for one wallet
// @Summary Get wallet balance
// @Description Get the authenticated user's balance for a wallet type
// @Tags Wallet
// @Produce json
// @Security BearerAuth
// @Param type query string false "Wallet type (main or bonus)" default(main)
// @Success 200 {object} object{balance=string}
// @Failure 401 {object} services.ErrorResponse
// @Router /wallet/balance [get]
func (h *WalletHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserID(r)
	if err != nil {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	walletType := r.URL.Query().Get("type")
	if walletType == "" {
		walletType = models.WalletTypeMain
	}
	if walletType != models.WalletTypeMain && walletType != models.WalletTypeBonus {
		services.SendErrorResponse(w, "Invalid wallet type", http.StatusBadRequest, nil)
		return
	}

	balance, err := h.service.GetBalance(userID, walletType)
	if err != nil {
		sendServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"success":     true,
		"wallet_type": walletType,
		"balance":     balance,
	})
}

// GetBalances returns all of the caller's wallet balances
// @Summary Get all balances
// @Description Get the authenticated user's balance for every wallet type
// @Tags Wallet
// @Produce json
// @Security BearerAuth
// @Success 200 {object} object{balances=object}
// @Failure 401 {object} services.ErrorResponse
// @Router /wallet/balances [get]
func (h *WalletHandler) GetBalances(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserID(r)
	if err != nil {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	balances, err := h.service.GetAllBalances(userID)
	if err != nil {
		sendServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"success":  true,
		"balances": balances,
	})
}

// GetTransactions returns the caller's transaction history
// @Summary Get transaction history
// @Description Get the authenticated user's transactions, newest first
// @Tags Wallet
// @Produce json
// @Security BearerAuth
// @Param limit query int false "Max rows to return" default(50)
// @Success 200 {array} models.Transaction
// @Failure 401 {object} services.ErrorResponse
// @Router /wallet/transactions [get]
func (h *WalletHandler) GetTransactions(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserID(r)
	if err != nil {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	transactions, err := h.service.GetTransactions(userID, limit)
	if err != nil {
		sendServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"success":      true,
		"transactions": transactions,
	})
}

func (h *WalletHandler) decodeMutation(w http.ResponseWriter, r *http.Request) (*mutateRequest, decimal.Decimal, bool) {
	var req mutateRequest

	r.Body = http.MaxBytesReader(w, r.Body, 1_048_576)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(&req); err != nil {
		services.SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return nil, decimal.Zero, false
	}

	if err := dec.Decode(&struct{}{}); err != io.EOF {
		services.SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return nil, decimal.Zero, false
	}

	if err := h.validator.ValidateStruct(&req); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return nil, decimal.Zero, false
	}

	if req.WalletType == "" {
		req.WalletType = models.WalletTypeMain
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		services.SendErrorResponse(w, "Invalid amount", http.StatusBadRequest, nil)
		return nil, decimal.Zero, false
	}

	return &req, amount, true
}
