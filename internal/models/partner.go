package models

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	PartnerStatusPending  = "pending"
	PartnerStatusActive   = "active"
	PartnerStatusInactive = "inactive"
	PartnerStatusRejected = "rejected"
)

// Partner is a user with an approved partner application. Its balance is
// credited by the commission cascade and drained by the payout service;
// frozen_balance tracks amounts reserved against pending payouts.
// Invariant: 0 <= frozen_balance <= balance.
type Partner struct {
	ID             int64           `json:"id" db:"id"`
	UserID         int64           `json:"user_id" db:"user_id"`
	ReferralCode   string          `json:"referral_code" db:"referral_code"`
	Level1Percent  decimal.Decimal `json:"level1_percent" db:"level1_percent"`
	Level2Percent  decimal.Decimal `json:"level2_percent" db:"level2_percent"`
	Balance        decimal.Decimal `json:"balance" db:"balance"`
	FrozenBalance  decimal.Decimal `json:"frozen_balance" db:"frozen_balance"`
	TotalEarned    decimal.Decimal `json:"total_earned" db:"total_earned"`
	TotalWithdrawn decimal.Decimal `json:"total_withdrawn" db:"total_withdrawn"`
	TotalReferrals int             `json:"total_referrals" db:"total_referrals"`
	Status         string          `json:"status" db:"status"`
	CreatedAt      time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt      *time.Time      `json:"updated_at,omitempty" db:"updated_at"`
}

func (p *Partner) IsActive() bool {
	return p.Status == PartnerStatusActive
}

// AvailableBalance is what the partner may still request for payout.
func (p *Partner) AvailableBalance() decimal.Decimal {
	return p.Balance.Sub(p.FrozenBalance)
}
