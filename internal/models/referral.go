package models

import (
	"database/sql"
	"time"

	"github.com/shopspring/decimal"
)

// Referral is a directed invite edge: referred_id was invited by
// referrer_id. When the referrer is sponsored by an active partner,
// partner_id points at that partner so commission attribution skips a hop.
type Referral struct {
	ID              int64           `json:"id" db:"id"`
	ReferrerID      int64           `json:"referrer_id" db:"referrer_id"`
	ReferredID      int64           `json:"referred_id" db:"referred_id"`
	PartnerID       sql.NullInt64   `json:"partner_id" db:"partner_id"`
	Level           int             `json:"level" db:"level"`
	TotalPayments   decimal.Decimal `json:"total_payments" db:"total_payments"`
	TotalCommission decimal.Decimal `json:"total_commission" db:"total_commission"`
	IsActive        bool            `json:"is_active" db:"is_active"`
	CreatedAt       time.Time       `json:"created_at" db:"created_at"`
	FirstPaymentAt  *time.Time      `json:"first_payment_at,omitempty" db:"first_payment_at"`
	LastPaymentAt   *time.Time      `json:"last_payment_at,omitempty" db:"last_payment_at"`
}
