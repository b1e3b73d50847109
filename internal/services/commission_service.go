package services

import (
	"database/sql"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/gtonpay/backend/internal/models"
	"github.com/shopspring/decimal"
)

var (
	defaultLevel1Percent        = decimal.NewFromInt(10)
	defaultPartnerLevel1Percent = decimal.NewFromInt(20)
	defaultLevel2Percent        = decimal.NewFromInt(5)
)

// CommissionService walks the referrer chain after a debit and credits
// each eligible party. Partner attribution supersedes the plain referrer
// payout at level one; an optional second hop pays the referrer's own
// referrer. The whole cascade for one debit runs in a single database
// transaction, keyed by the originating transaction id so a re-drive
// never credits twice.
type CommissionService struct {
	db       *sql.DB
	settings SettingsProvider
	audit    *AuditLogger
}

func NewCommissionService(db *sql.DB, settings SettingsProvider) *CommissionService {
	return &CommissionService{
		db:       db,
		settings: settings,
		audit:    NewAuditLogger(),
	}
}

func (s *CommissionService) ProcessCommission(userID int64, amount decimal.Decimal, source, action string, sourceTransactionID int64) error {
	if !s.settings.GetBool("referral.commission_enabled", true) {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	// Re-drive guard: the originating transaction id is the dedup key.
	var alreadyPaid bool
	err = tx.QueryRow(`
		SELECT EXISTS(SELECT 1 FROM commissions WHERE source_transaction_id = $1)`,
		sourceTransactionID).Scan(&alreadyPaid)
	if err != nil {
		return err
	}
	if alreadyPaid {
		log.Printf("[CASCADE] Commission already recorded for transaction %d, skipping", sourceTransactionID)
		return nil
	}

	referral, err := s.findReferral(tx, userID)
	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		return err
	}

	level1Commission, err := s.creditLevel1(tx, referral, userID, amount, source, action, sourceTransactionID)
	if err != nil {
		return err
	}

	if s.settings.GetBool("referral.level2_enabled", false) {
		if err := s.creditLevel2(tx, referral, userID, amount, source, action, sourceTransactionID); err != nil {
			return err
		}
	}

	// Spend stats are tracked even when no commission was payable.
	_, err = tx.Exec(`
		UPDATE referrals
		SET total_payments = total_payments + $1,
		    total_commission = total_commission + $2,
		    first_payment_at = COALESCE(first_payment_at, NOW()),
		    last_payment_at = NOW()
		WHERE id = $3`,
		amount, level1Commission, referral.ID)
	if err != nil {
		return err
	}

	return tx.Commit()
}

// creditLevel1 pays the direct referrer, or the attributed partner when
// one is set and still active. Returns the amount credited.
func (s *CommissionService) creditLevel1(tx *sql.Tx, referral *models.Referral, userID int64, amount decimal.Decimal, source, action string, sourceTransactionID int64) (decimal.Decimal, error) {
	if referral.PartnerID.Valid {
		partner, err := s.lockPartner(tx, referral.PartnerID.Int64)
		if err != nil && err != sql.ErrNoRows {
			return decimal.Zero, err
		}
		if err == nil && partner.IsActive() {
			return s.creditPartner(tx, partner, referral, userID, amount, source, action, sourceTransactionID)
		}
		// Inactive partner: fall through to the plain referrer percent.
	}

	percent := s.settings.GetDecimal("referral.level1_percent", defaultLevel1Percent)
	return s.creditReferrerWallet(tx, referral.ReferrerID, referral.ID, userID, amount, percent, 1, source, action, sourceTransactionID)
}

func (s *CommissionService) creditLevel2(tx *sql.Tx, referral *models.Referral, userID int64, amount decimal.Decimal, source, action string, sourceTransactionID int64) error {
	parent, err := s.findReferral(tx, referral.ReferrerID)
	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		return err
	}

	percent := s.settings.GetDecimal("referral.level2_percent", defaultLevel2Percent)
	_, err = s.creditReferrerWallet(tx, parent.ReferrerID, parent.ID, userID, amount, percent, 2, source, action, sourceTransactionID)
	return err
}

// creditPartner pays commission onto the partner balance (withdrawable),
// not a spendable wallet.
func (s *CommissionService) creditPartner(tx *sql.Tx, partner *models.Partner, referral *models.Referral, userID int64, amount decimal.Decimal, source, action string, sourceTransactionID int64) (decimal.Decimal, error) {
	percent := partner.Level1Percent
	if percent.Sign() <= 0 {
		percent = s.settings.GetDecimal("referral.partner_level1_percent", defaultPartnerLevel1Percent)
	}
	commission := commissionFor(amount, percent)
	if commission.Sign() <= 0 {
		return decimal.Zero, nil
	}

	newBalance := partner.Balance.Add(commission)
	_, err := tx.Exec(`
		UPDATE partners
		SET balance = balance + $1, total_earned = total_earned + $1, updated_at = NOW()
		WHERE id = $2`,
		commission, partner.ID)
	if err != nil {
		return decimal.Zero, err
	}

	now := time.Now()
	commissionTxID, err := insertTransactionTx(tx, &models.Transaction{
		UserID:        partner.UserID,
		Type:          models.TransactionTypeCredit,
		Amount:        commission,
		BalanceBefore: partner.Balance,
		BalanceAfter:  newBalance,
		Source:        "referral",
		Action:        "partner_commission",
		ReferenceID:   strconv.FormatInt(sourceTransactionID, 10),
		Description:   fmt.Sprintf("Partner commission %s%% of %s GTON", percent, amount),
		Status:        models.TransactionStatusCompleted,
		CreatedAt:     now,
		CompletedAt:   &now,
	})
	if err != nil {
		return decimal.Zero, err
	}

	err = s.insertCommission(tx, &models.Commission{
		ReferrerID:              partner.UserID,
		ReferredID:              userID,
		ReferralID:              sql.NullInt64{Int64: referral.ID, Valid: true},
		SourceAmount:            amount,
		CommissionAmount:        commission,
		CommissionPercent:       percent,
		Level:                   1,
		Source:                  source,
		Action:                  action,
		SourceTransactionID:     sql.NullInt64{Int64: sourceTransactionID, Valid: true},
		CommissionTransactionID: sql.NullInt64{Int64: commissionTxID, Valid: true},
	})
	if err != nil {
		return decimal.Zero, err
	}

	log.Printf("[CASCADE] Partner commission: partner=%d, amount=%s GTON (%s%%), from user=%d",
		partner.ID, commission, percent, userID)
	s.audit.LogMutation(commissionTxID, partner.UserID, "PARTNER_COMMISSION", commission, "SUCCESS")
	return commission, nil
}

// creditReferrerWallet pays commission into the referrer's main wallet,
// creating the wallet when absent.
func (s *CommissionService) creditReferrerWallet(tx *sql.Tx, referrerID, referralID, userID int64, amount, percent decimal.Decimal, level int, source, action string, sourceTransactionID int64) (decimal.Decimal, error) {
	commission := commissionFor(amount, percent)
	if commission.Sign() <= 0 {
		return decimal.Zero, nil
	}

	wallet, err := lockWalletTx(tx, referrerID, models.WalletTypeMain)
	if err == sql.ErrNoRows {
		wallet, err = createWalletTx(tx, referrerID, models.WalletTypeMain)
	}
	if err != nil {
		return decimal.Zero, err
	}

	newBalance := wallet.Balance.Add(commission)
	if err := updateWalletBalanceTx(tx, wallet.ID, newBalance); err != nil {
		return decimal.Zero, err
	}

	now := time.Now()
	commissionTxID, err := insertTransactionTx(tx, &models.Transaction{
		UserID:        referrerID,
		WalletID:      sql.NullInt64{Int64: wallet.ID, Valid: true},
		Type:          models.TransactionTypeCredit,
		Amount:        commission,
		BalanceBefore: wallet.Balance,
		BalanceAfter:  newBalance,
		Source:        "referral",
		Action:        "commission",
		ReferenceID:   strconv.FormatInt(sourceTransactionID, 10),
		Description:   fmt.Sprintf("Referral commission %s%% of %s GTON", percent, amount),
		Status:        models.TransactionStatusCompleted,
		CreatedAt:     now,
		CompletedAt:   &now,
	})
	if err != nil {
		return decimal.Zero, err
	}

	err = s.insertCommission(tx, &models.Commission{
		ReferrerID:              referrerID,
		ReferredID:              userID,
		ReferralID:              sql.NullInt64{Int64: referralID, Valid: true},
		SourceAmount:            amount,
		CommissionAmount:        commission,
		CommissionPercent:       percent,
		Level:                   level,
		Source:                  source,
		Action:                  action,
		SourceTransactionID:     sql.NullInt64{Int64: sourceTransactionID, Valid: true},
		CommissionTransactionID: sql.NullInt64{Int64: commissionTxID, Valid: true},
	})
	if err != nil {
		return decimal.Zero, err
	}

	log.Printf("[CASCADE] Referral commission: referrer=%d, amount=%s GTON (%s%%), level=%d, from user=%d",
		referrerID, commission, percent, level, userID)
	s.audit.LogMutation(commissionTxID, referrerID, "REFERRAL_COMMISSION", commission, "SUCCESS")
	return commission, nil
}

func (s *CommissionService) findReferral(tx *sql.Tx, referredID int64) (*models.Referral, error) {
	referral := &models.Referral{ReferredID: referredID}
	err := tx.QueryRow(`
		SELECT id, referrer_id, partner_id FROM referrals
		WHERE referred_id = $1 AND is_active = TRUE`,
		referredID).Scan(&referral.ID, &referral.ReferrerID, &referral.PartnerID)
	if err != nil {
		return nil, err
	}
	return referral, nil
}

func (s *CommissionService) lockPartner(tx *sql.Tx, partnerID int64) (*models.Partner, error) {
	partner := &models.Partner{ID: partnerID}
	err := tx.QueryRow(`
		SELECT user_id, balance, level1_percent, status FROM partners
		WHERE id = $1
		FOR UPDATE`, partnerID).Scan(&partner.UserID, &partner.Balance, &partner.Level1Percent, &partner.Status)
	if err != nil {
		return nil, err
	}
	return partner, nil
}

func (s *CommissionService) insertCommission(tx *sql.Tx, c *models.Commission) error {
	_, err := tx.Exec(`
		INSERT INTO commissions
		(referrer_id, referred_id, referral_id, source_amount, commission_amount, commission_percent, level, source, action, source_transaction_id, commission_transaction_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NOW())`,
		c.ReferrerID, c.ReferredID, c.ReferralID, c.SourceAmount, c.CommissionAmount,
		c.CommissionPercent, c.Level, c.Source, c.Action, c.SourceTransactionID, c.CommissionTransactionID)
	return err
}

func commissionFor(amount, percent decimal.Decimal) decimal.Decimal {
	return amount.Mul(percent).Div(decimal.NewFromInt(100)).Round(6)
}
