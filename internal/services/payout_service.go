package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"

	"github.com/go-redis/redis/v8"
	"github.com/gtonpay/backend/internal/models"
	"github.com/shopspring/decimal"
)

const payoutEventsQueue = "payout_events"

var defaultMinPayout = decimal.NewFromInt(5)

// PayoutService runs the partner withdrawal state machine:
// pending -> completed | rejected | cancelled, all terminal. The
// requested amount is frozen on the partner while pending; the first
// successful transition wins and the loser observes
// ErrPayoutAlreadyProcessed. Locks are taken partner first, payout
// second, everywhere.
type PayoutService struct {
	db       *sql.DB
	settings SettingsProvider
	rates    RateConverter
	redis    *redis.Client
	audit    *AuditLogger
}

type PayoutResult struct {
	PayoutID   int64           `json:"payout_id"`
	AmountGTON decimal.Decimal `json:"amount_gton"`
	FeeGTON    decimal.Decimal `json:"fee_gton"`
	AmountFiat decimal.Decimal `json:"amount_fiat"`
	Currency   string          `json:"currency"`
}

func NewPayoutService(db *sql.DB, settings SettingsProvider, rates RateConverter, redisClient *redis.Client) *PayoutService {
	return &PayoutService{
		db:       db,
		settings: settings,
		rates:    rates,
		redis:    redisClient,
		audit:    NewAuditLogger(),
	}
}

// RequestPayout freezes amount on the partner and inserts a pending
// payout priced at the current GTON rate.
func (s *PayoutService) RequestPayout(partnerID int64, amount decimal.Decimal, method string, details map[string]string, currency string) (*PayoutResult, error) {
	if amount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	if currency == "" {
		currency = "RUB"
	}

	minPayout := s.settings.GetDecimal("payout.min_gton", defaultMinPayout)
	if amount.LessThan(minPayout) {
		return nil, fmt.Errorf("%w: minimum is %s GTON", ErrBelowMinimum, minPayout)
	}

	// Rate lookup happens before any row lock is taken.
	rate, err := s.rates.ConvertFromGTON(decimal.NewFromInt(1), currency)
	if err != nil {
		return nil, err
	}

	feePercent := s.settings.GetDecimal("payout.fee_percent", decimal.Zero)
	fee := amount.Mul(feePercent).Div(decimal.NewFromInt(100)).Round(6)
	amountFiat := amount.Sub(fee).Mul(rate).Round(2)

	detailsJSON, err := json.Marshal(details)
	if err != nil {
		return nil, err
	}

	tx, err := s.db.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	partner, err := s.lockPartner(tx, partnerID)
	if err != nil {
		return nil, err
	}
	if !partner.IsActive() {
		return nil, ErrPartnerNotActive
	}
	if partner.AvailableBalance().LessThan(amount) {
		return nil, ErrInsufficientAvailableBalance
	}

	_, err = tx.Exec(`
		UPDATE partners SET frozen_balance = frozen_balance + $1, updated_at = NOW()
		WHERE id = $2`, amount, partnerID)
	if err != nil {
		return nil, err
	}

	var payoutID int64
	err = tx.QueryRow(`
		INSERT INTO payouts
		(partner_id, amount_gton, fee_gton, amount_fiat, currency, gton_rate, method, details, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 'pending', NOW())
		RETURNING id`,
		partnerID, amount, fee, amountFiat, currency, rate, method, detailsJSON).Scan(&payoutID)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	log.Printf("[PAYOUT] Request created: partner=%d, amount=%s GTON (~%s %s), method=%s, id=%d",
		partnerID, amount, amountFiat, currency, method, payoutID)
	s.audit.LogPayout(payoutID, partnerID, "PAYOUT_REQUESTED", amount)

	return &PayoutResult{
		PayoutID:   payoutID,
		AmountGTON: amount,
		FeeGTON:    fee,
		AmountFiat: amountFiat,
		Currency:   currency,
	}, nil
}

// ApprovePayout settles a pending payout: the partner's balance and
// frozen balance both drop by the payout amount. Any failure leaves the
// payout pending and the funds frozen.
func (s *PayoutService) ApprovePayout(payoutID, adminID int64, comment string) (*PayoutResult, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	partnerID, err := s.findPayoutPartner(tx, payoutID)
	if err != nil {
		return nil, err
	}

	partner, err := s.lockPartner(tx, partnerID)
	if err != nil {
		return nil, err
	}

	payout, err := s.lockPayout(tx, payoutID)
	if err != nil {
		return nil, err
	}
	if payout.Status != models.PayoutStatusPending {
		return nil, ErrPayoutAlreadyProcessed
	}

	amount := payout.AmountGTON
	if partner.FrozenBalance.LessThan(amount) || partner.Balance.LessThan(amount) {
		return nil, fmt.Errorf("frozen balance invariant violated for partner %d", partnerID)
	}

	_, err = tx.Exec(`
		UPDATE partners
		SET balance = balance - $1, frozen_balance = frozen_balance - $1,
		    total_withdrawn = total_withdrawn + $1, updated_at = NOW()
		WHERE id = $2`, amount, partnerID)
	if err != nil {
		return nil, err
	}

	_, err = tx.Exec(`
		UPDATE payouts
		SET status = 'completed', processed_by = $1, processed_at = NOW(), admin_comment = NULLIF($2, '')
		WHERE id = $3`, adminID, comment, payoutID)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	log.Printf("[PAYOUT] Approved: id=%d, partner=%d, amount=%s GTON, admin=%d", payoutID, partnerID, amount, adminID)
	s.audit.LogPayout(payoutID, partnerID, "PAYOUT_APPROVED", amount)
	s.publishEvent(payoutID, partnerID, models.PayoutStatusCompleted, amount)

	return &PayoutResult{
		PayoutID:   payoutID,
		AmountGTON: amount,
		FeeGTON:    payout.FeeGTON,
		AmountFiat: payout.AmountFiat,
		Currency:   payout.Currency,
	}, nil
}

// RejectPayout unfreezes the requested amount; the partner balance is
// untouched.
func (s *PayoutService) RejectPayout(payoutID, adminID int64, reason string) (*PayoutResult, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	partnerID, err := s.findPayoutPartner(tx, payoutID)
	if err != nil {
		return nil, err
	}

	if _, err := s.lockPartner(tx, partnerID); err != nil {
		return nil, err
	}

	payout, err := s.lockPayout(tx, payoutID)
	if err != nil {
		return nil, err
	}
	if payout.Status != models.PayoutStatusPending {
		return nil, ErrPayoutAlreadyProcessed
	}

	if err := s.unfreeze(tx, partnerID, payout.AmountGTON); err != nil {
		return nil, err
	}

	_, err = tx.Exec(`
		UPDATE payouts
		SET status = 'rejected', processed_by = $1, processed_at = NOW(), rejection_reason = $2
		WHERE id = $3`, adminID, reason, payoutID)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	log.Printf("[PAYOUT] Rejected: id=%d, partner=%d, reason=%s, admin=%d", payoutID, partnerID, reason, adminID)
	s.audit.LogPayout(payoutID, partnerID, "PAYOUT_REJECTED", payout.AmountGTON)
	s.publishEvent(payoutID, partnerID, models.PayoutStatusRejected, payout.AmountGTON)

	return &PayoutResult{PayoutID: payoutID, AmountGTON: payout.AmountGTON, Currency: payout.Currency}, nil
}

// CancelPayout is the partner-initiated variant of reject. The payout
// must belong to a partner owned by userID.
func (s *PayoutService) CancelPayout(payoutID, userID int64) (*PayoutResult, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var partnerID int64
	err = tx.QueryRow(`
		SELECT p.partner_id FROM payouts p
		JOIN partners pa ON pa.id = p.partner_id
		WHERE p.id = $1 AND pa.user_id = $2`,
		payoutID, userID).Scan(&partnerID)
	if err == sql.ErrNoRows {
		return nil, ErrPayoutNotFound
	}
	if err != nil {
		return nil, err
	}

	if _, err := s.lockPartner(tx, partnerID); err != nil {
		return nil, err
	}

	payout, err := s.lockPayout(tx, payoutID)
	if err != nil {
		return nil, err
	}
	if payout.Status != models.PayoutStatusPending {
		return nil, ErrPayoutAlreadyProcessed
	}

	if err := s.unfreeze(tx, partnerID, payout.AmountGTON); err != nil {
		return nil, err
	}

	_, err = tx.Exec(`
		UPDATE payouts
		SET status = 'cancelled', processed_at = NOW()
		WHERE id = $1`, payoutID)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	log.Printf("[PAYOUT] Cancelled by user: id=%d, user=%d", payoutID, userID)
	s.audit.LogPayout(payoutID, partnerID, "PAYOUT_CANCELLED", payout.AmountGTON)

	return &PayoutResult{PayoutID: payoutID, AmountGTON: payout.AmountGTON, Currency: payout.Currency}, nil
}

// GetPartnerID resolves the partner record owned by a user.
func (s *PayoutService) GetPartnerID(userID int64) (int64, error) {
	var partnerID int64
	err := s.db.QueryRow(`SELECT id FROM partners WHERE user_id = $1`, userID).Scan(&partnerID)
	if err == sql.ErrNoRows {
		return 0, ErrPartnerNotFound
	}
	return partnerID, err
}

// GetAvailableBalance is the partner balance minus frozen funds, always
// computed from a fresh read.
func (s *PayoutService) GetAvailableBalance(partnerID int64) (decimal.Decimal, error) {
	var balance, frozen decimal.Decimal
	err := s.db.QueryRow(`
		SELECT balance, frozen_balance FROM partners WHERE id = $1`,
		partnerID).Scan(&balance, &frozen)
	if err == sql.ErrNoRows {
		return decimal.Zero, ErrPartnerNotFound
	}
	if err != nil {
		return decimal.Zero, err
	}
	return balance.Sub(frozen), nil
}

// GetPendingPayouts returns the admin review queue, oldest first.
func (s *PayoutService) GetPendingPayouts(limit int) ([]models.Payout, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	rows, err := s.db.Query(`
		SELECT id, partner_id, amount_gton, fee_gton, amount_fiat, currency, gton_rate, method, details, status, created_at
		FROM payouts
		WHERE status = 'pending'
		ORDER BY created_at ASC
		LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	payouts := []models.Payout{}
	for rows.Next() {
		var p models.Payout
		err := rows.Scan(&p.ID, &p.PartnerID, &p.AmountGTON, &p.FeeGTON, &p.AmountFiat,
			&p.Currency, &p.GTONRate, &p.Method, &p.Details, &p.Status, &p.CreatedAt)
		if err != nil {
			return nil, err
		}
		payouts = append(payouts, p)
	}
	return payouts, rows.Err()
}

// GetPartnerPayouts returns a partner's payout history, newest first.
func (s *PayoutService) GetPartnerPayouts(partnerID int64, limit int) ([]models.Payout, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	rows, err := s.db.Query(`
		SELECT id, partner_id, amount_gton, fee_gton, amount_fiat, currency, gton_rate, method, details, status,
		       processed_by, processed_at, rejection_reason, created_at
		FROM payouts
		WHERE partner_id = $1
		ORDER BY created_at DESC
		LIMIT $2`, partnerID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	payouts := []models.Payout{}
	for rows.Next() {
		var p models.Payout
		err := rows.Scan(&p.ID, &p.PartnerID, &p.AmountGTON, &p.FeeGTON, &p.AmountFiat,
			&p.Currency, &p.GTONRate, &p.Method, &p.Details, &p.Status,
			&p.ProcessedBy, &p.ProcessedAt, &p.RejectionReason, &p.CreatedAt)
		if err != nil {
			return nil, err
		}
		payouts = append(payouts, p)
	}
	return payouts, rows.Err()
}

func (s *PayoutService) findPayoutPartner(tx *sql.Tx, payoutID int64) (int64, error) {
	var partnerID int64
	err := tx.QueryRow(`SELECT partner_id FROM payouts WHERE id = $1`, payoutID).Scan(&partnerID)
	if err == sql.ErrNoRows {
		return 0, ErrPayoutNotFound
	}
	return partnerID, err
}

func (s *PayoutService) lockPartner(tx *sql.Tx, partnerID int64) (*models.Partner, error) {
	partner := &models.Partner{ID: partnerID}
	err := tx.QueryRow(`
		SELECT user_id, balance, frozen_balance, status FROM partners
		WHERE id = $1
		FOR UPDATE`, partnerID).Scan(&partner.UserID, &partner.Balance, &partner.FrozenBalance, &partner.Status)
	if err == sql.ErrNoRows {
		return nil, ErrPartnerNotFound
	}
	if err != nil {
		return nil, err
	}
	return partner, nil
}

func (s *PayoutService) lockPayout(tx *sql.Tx, payoutID int64) (*models.Payout, error) {
	payout := &models.Payout{ID: payoutID}
	err := tx.QueryRow(`
		SELECT amount_gton, fee_gton, amount_fiat, currency, status FROM payouts
		WHERE id = $1
		FOR UPDATE`, payoutID).Scan(&payout.AmountGTON, &payout.FeeGTON, &payout.AmountFiat, &payout.Currency, &payout.Status)
	if err == sql.ErrNoRows {
		return nil, ErrPayoutNotFound
	}
	if err != nil {
		return nil, err
	}
	return payout, nil
}

func (s *PayoutService) unfreeze(tx *sql.Tx, partnerID int64, amount decimal.Decimal) error {
	_, err := tx.Exec(`
		UPDATE partners SET frozen_balance = frozen_balance - $1, updated_at = NOW()
		WHERE id = $2`, amount, partnerID)
	return err
}

func (s *PayoutService) publishEvent(payoutID, partnerID int64, status string, amount decimal.Decimal) {
	if s.redis == nil {
		return
	}

	data, err := json.Marshal(map[string]any{
		"payout_id":  payoutID,
		"partner_id": partnerID,
		"status":     status,
		"amount":     amount.String(),
	})
	if err != nil {
		return
	}

	if err := s.redis.RPush(context.Background(), payoutEventsQueue, data).Err(); err != nil {
		log.Printf("[PAYOUT] Failed to queue payout event for %d: %v", payoutID, err)
	}
}
