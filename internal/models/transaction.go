package models

import (
	"database/sql"
	"time"

	"github.com/shopspring/decimal"
)

const (
	TransactionTypeCredit = "credit"
	TransactionTypeDebit  = "debit"

	TransactionStatusPending   = "pending"
	TransactionStatusCompleted = "completed"
	TransactionStatusFailed    = "failed"
)

// Transaction is an immutable ledger entry capturing one balance mutation.
// balance_after always equals the wallet balance at commit time; rows are
// never updated once completed.
type Transaction struct {
	ID            int64           `json:"id" db:"id"`
	UserID        int64           `json:"user_id" db:"user_id"`
	WalletID      sql.NullInt64   `json:"wallet_id" db:"wallet_id"` // NULL for partner-balance credits
	Type          string          `json:"type" db:"type"`           // credit or debit
	Amount        decimal.Decimal `json:"amount" db:"amount"`
	BalanceBefore decimal.Decimal `json:"balance_before" db:"balance_before"`
	BalanceAfter  decimal.Decimal `json:"balance_after" db:"balance_after"`
	Source        string          `json:"source" db:"source"`
	Action        string          `json:"action" db:"action"`
	ReferenceID   string          `json:"reference_id" db:"reference_id"`
	Description   string          `json:"description" db:"description"`
	Status        string          `json:"status" db:"status"`
	CreatedAt     time.Time       `json:"created_at" db:"created_at"`
	CompletedAt   *time.Time      `json:"completed_at,omitempty" db:"completed_at"`
}
