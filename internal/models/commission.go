package models

import (
	"database/sql"
	"time"

	"github.com/shopspring/decimal"
)

// Commission is the audit record written for every cascade credit,
// independent of the transaction log. One row per credited party.
type Commission struct {
	ID                      int64           `json:"id" db:"id"`
	ReferrerID              int64           `json:"referrer_id" db:"referrer_id"`
	ReferredID              int64           `json:"referred_id" db:"referred_id"`
	ReferralID              sql.NullInt64   `json:"referral_id" db:"referral_id"`
	SourceAmount            decimal.Decimal `json:"source_amount" db:"source_amount"`
	CommissionAmount        decimal.Decimal `json:"commission_amount" db:"commission_amount"`
	CommissionPercent       decimal.Decimal `json:"commission_percent" db:"commission_percent"`
	Level                   int             `json:"level" db:"level"`
	Source                  string          `json:"source" db:"source"`
	Action                  string          `json:"action" db:"action"`
	SourceTransactionID     sql.NullInt64   `json:"source_transaction_id" db:"source_transaction_id"`
	CommissionTransactionID sql.NullInt64   `json:"commission_transaction_id" db:"commission_transaction_id"`
	CreatedAt               time.Time       `json:"created_at" db:"created_at"`
}
