package services

import "errors"

// Sentinel errors surfaced by the ledger, cascade, and payout services.
// Handlers map these to HTTP status codes; anything else is a 500.
var (
	ErrInvalidAmount                = errors.New("invalid amount")
	ErrWalletNotFound               = errors.New("wallet not found")
	ErrInsufficientFunds            = errors.New("insufficient funds")
	ErrBelowMinimum                 = errors.New("amount below minimum payout")
	ErrPartnerNotFound              = errors.New("partner not found")
	ErrPartnerNotActive             = errors.New("partner not active")
	ErrInsufficientAvailableBalance = errors.New("insufficient available balance")
	ErrPayoutNotFound               = errors.New("payout not found")
	ErrPayoutAlreadyProcessed       = errors.New("payout already processed")
	ErrRateUnavailable              = errors.New("rate unavailable")
)
