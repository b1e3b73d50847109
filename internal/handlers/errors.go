package handlers

import (
	"errors"
	"net/http"

	"github.com/gtonpay/backend/internal/services"
)

// statusFromError maps service failures onto HTTP status codes. Unknown
// errors are reported as 500 without leaking internals.
func statusFromError(err error) int {
	switch {
	case errors.Is(err, services.ErrWalletNotFound),
		errors.Is(err, services.ErrPartnerNotFound),
		errors.Is(err, services.ErrPayoutNotFound):
		return http.StatusNotFound
	case errors.Is(err, services.ErrPayoutAlreadyProcessed):
		return http.StatusConflict
	case errors.Is(err, services.ErrPartnerNotActive):
		return http.StatusForbidden
	case errors.Is(err, services.ErrRateUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, services.ErrInvalidAmount),
		errors.Is(err, services.ErrInsufficientFunds),
		errors.Is(err, services.ErrBelowMinimum),
		errors.Is(err, services.ErrInsufficientAvailableBalance):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func sendServiceError(w http.ResponseWriter, err error) {
	status := statusFromError(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		message = "Internal server error"
	}
	services.SendErrorResponse(w, message, status, nil)
}
