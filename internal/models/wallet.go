package models

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	WalletTypeMain  = "main"
	WalletTypeBonus = "bonus"
)

// Wallet holds a user's GTON balance. One row per (user, wallet type),
// created lazily on the first credit.
type Wallet struct {
	ID         int64           `json:"id" db:"id"`
	UserID     int64           `json:"user_id" db:"user_id"`
	WalletType string          `json:"wallet_type" db:"wallet_type"` // main or bonus
	Balance    decimal.Decimal `json:"balance" db:"balance"`
	Frozen     decimal.Decimal `json:"frozen" db:"frozen"`
	CreatedAt  time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt  *time.Time      `json:"updated_at,omitempty" db:"updated_at"`
}

// AvailableBalance is the spendable part of the balance.
func (w *Wallet) AvailableBalance() decimal.Decimal {
	available := w.Balance.Sub(w.Frozen)
	if available.IsNegative() {
		return decimal.Zero
	}
	return available
}
