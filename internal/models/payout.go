package models

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

const (
	PayoutStatusPending   = "pending"
	PayoutStatusCompleted = "completed"
	PayoutStatusRejected  = "rejected"
	PayoutStatusCancelled = "cancelled"
)

// Payout is a partner's request to convert accrued GTON into fiat.
// amount_gton is frozen on the partner while the payout is pending;
// pending transitions to exactly one terminal state and is never reopened.
type Payout struct {
	ID              int64           `json:"id" db:"id"`
	PartnerID       int64           `json:"partner_id" db:"partner_id"`
	AmountGTON      decimal.Decimal `json:"amount_gton" db:"amount_gton"`
	FeeGTON         decimal.Decimal `json:"fee_gton" db:"fee_gton"`
	AmountFiat      decimal.Decimal `json:"amount_fiat" db:"amount_fiat"`
	Currency        string          `json:"currency" db:"currency"`
	GTONRate        decimal.Decimal `json:"gton_rate" db:"gton_rate"` // rate captured at request time
	Method          string          `json:"method" db:"method"`       // card, sbp, usdt
	Details         json.RawMessage `json:"details" db:"details"`
	Status          string          `json:"status" db:"status"`
	ProcessedBy     sql.NullInt64   `json:"processed_by" db:"processed_by"`
	ProcessedAt     *time.Time      `json:"processed_at,omitempty" db:"processed_at"`
	RejectionReason sql.NullString  `json:"rejection_reason" db:"rejection_reason"`
	AdminComment    sql.NullString  `json:"admin_comment" db:"admin_comment"`
	CreatedAt       time.Time       `json:"created_at" db:"created_at"`
}
