package services

import (
	"database/sql"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/gtonpay/backend/internal/models"
	"github.com/shopspring/decimal"
)

// CommissionProcessor is the referral cascade hook invoked after a debit
// commits. Failures are logged, never propagated: a spend must not be
// undone by a commission defect.
type CommissionProcessor interface {
	ProcessCommission(userID int64, amount decimal.Decimal, source, action string, sourceTransactionID int64) error
}

// LedgerService owns wallet balances and the append-only transaction log.
// Every mutation locks the wallet row, writes the balance and the
// transaction in one database transaction, and records before/after
// balances on the log entry.
type LedgerService struct {
	db      *sql.DB
	cascade CommissionProcessor
	audit   *AuditLogger
}

type TransactionResult struct {
	TransactionID int64           `json:"transaction_id"`
	NewBalance    decimal.Decimal `json:"new_balance"`
}

func NewLedgerService(db *sql.DB, cascade CommissionProcessor) *LedgerService {
	return &LedgerService{
		db:      db,
		cascade: cascade,
		audit:   NewAuditLogger(),
	}
}

// Credit adds GTON to a user's wallet, creating the wallet at zero if it
// does not exist yet.
func (s *LedgerService) Credit(userID int64, amount decimal.Decimal, walletType, source, reason string) (*TransactionResult, error) {
	if amount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	if walletType == "" {
		walletType = models.WalletTypeMain
	}

	tx, err := s.db.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	wallet, err := lockWalletTx(tx, userID, walletType)
	if err == sql.ErrNoRows {
		wallet, err = createWalletTx(tx, userID, walletType)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock wallet: %w", err)
	}

	newBalance := wallet.Balance.Add(amount)
	if err := updateWalletBalanceTx(tx, wallet.ID, newBalance); err != nil {
		return nil, err
	}

	now := time.Now()
	txID, err := insertTransactionTx(tx, &models.Transaction{
		UserID:        userID,
		WalletID:      sql.NullInt64{Int64: wallet.ID, Valid: true},
		Type:          models.TransactionTypeCredit,
		Amount:        amount,
		BalanceBefore: wallet.Balance,
		BalanceAfter:  newBalance,
		Source:        source,
		ReferenceID:   uuid.NewString(),
		Description:   reason,
		Status:        models.TransactionStatusCompleted,
		CreatedAt:     now,
		CompletedAt:   &now,
	})
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	log.Printf("[LEDGER] Credit: user=%d, amount=%s, wallet=%s, source=%s", userID, amount, walletType, source)
	s.audit.LogMutation(txID, userID, "CREDIT", amount, "SUCCESS")

	return &TransactionResult{TransactionID: txID, NewBalance: newBalance}, nil
}

// Debit removes GTON from a user's wallet and hands the committed amount
// to the commission cascade. The debit commits first; the cascade runs in
// its own transaction afterwards.
func (s *LedgerService) Debit(userID int64, amount decimal.Decimal, walletType, source, action, reference string) (*TransactionResult, error) {
	if amount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	if walletType == "" {
		walletType = models.WalletTypeMain
	}
	if reference == "" {
		reference = uuid.NewString()
	}

	tx, err := s.db.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	wallet, err := lockWalletTx(tx, userID, walletType)
	if err == sql.ErrNoRows {
		return nil, ErrWalletNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock wallet: %w", err)
	}

	if wallet.AvailableBalance().LessThan(amount) {
		return nil, ErrInsufficientFunds
	}

	newBalance := wallet.Balance.Sub(amount)
	if err := updateWalletBalanceTx(tx, wallet.ID, newBalance); err != nil {
		return nil, err
	}

	now := time.Now()
	txID, err := insertTransactionTx(tx, &models.Transaction{
		UserID:        userID,
		WalletID:      sql.NullInt64{Int64: wallet.ID, Valid: true},
		Type:          models.TransactionTypeDebit,
		Amount:        amount,
		BalanceBefore: wallet.Balance,
		BalanceAfter:  newBalance,
		Source:        source,
		Action:        action,
		ReferenceID:   reference,
		Status:        models.TransactionStatusCompleted,
		CreatedAt:     now,
		CompletedAt:   &now,
	})
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	log.Printf("[LEDGER] Debit: user=%d, amount=%s, wallet=%s, source=%s, action=%s", userID, amount, walletType, source, action)
	s.audit.LogMutation(txID, userID, "DEBIT", amount, "SUCCESS")

	// Commission crediting is best-effort relative to the spend itself.
	if s.cascade != nil {
		if err := s.cascade.ProcessCommission(userID, amount, source, action, txID); err != nil {
			log.Printf("[LEDGER] Commission cascade failed for transaction %d: %v", txID, err)
			s.audit.LogError(txID, userID, err)
		}
	}

	return &TransactionResult{TransactionID: txID, NewBalance: newBalance}, nil
}

// GetBalance returns the wallet balance, zero when no wallet row exists.
func (s *LedgerService) GetBalance(userID int64, walletType string) (decimal.Decimal, error) {
	if walletType == "" {
		walletType = models.WalletTypeMain
	}

	var balance decimal.Decimal
	err := s.db.QueryRow(`
		SELECT balance FROM wallets
		WHERE user_id = $1 AND wallet_type = $2`,
		userID, walletType).Scan(&balance)
	if err == sql.ErrNoRows {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, err
	}
	return balance, nil
}

// GetAllBalances returns every wallet the user has, keyed by wallet type.
func (s *LedgerService) GetAllBalances(userID int64) (map[string]decimal.Decimal, error) {
	rows, err := s.db.Query(`
		SELECT wallet_type, balance FROM wallets
		WHERE user_id = $1`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	balances := map[string]decimal.Decimal{}
	for rows.Next() {
		var walletType string
		var balance decimal.Decimal
		if err := rows.Scan(&walletType, &balance); err != nil {
			return nil, err
		}
		balances[walletType] = balance
	}
	return balances, rows.Err()
}

// GetTransactions returns the user's most recent ledger entries.
func (s *LedgerService) GetTransactions(userID int64, limit int) ([]models.Transaction, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	rows, err := s.db.Query(`
		SELECT id, user_id, wallet_id, type, amount, balance_before, balance_after,
		       source, action, reference_id, description, status, created_at, completed_at
		FROM transactions
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	transactions := []models.Transaction{}
	for rows.Next() {
		var t models.Transaction
		err := rows.Scan(
			&t.ID, &t.UserID, &t.WalletID, &t.Type, &t.Amount, &t.BalanceBefore, &t.BalanceAfter,
			&t.Source, &t.Action, &t.ReferenceID, &t.Description, &t.Status, &t.CreatedAt, &t.CompletedAt,
		)
		if err != nil {
			return nil, err
		}
		transactions = append(transactions, t)
	}
	return transactions, rows.Err()
}

func lockWalletTx(tx *sql.Tx, userID int64, walletType string) (*models.Wallet, error) {
	wallet := &models.Wallet{UserID: userID, WalletType: walletType}
	err := tx.QueryRow(`
		SELECT id, balance, frozen FROM wallets
		WHERE user_id = $1 AND wallet_type = $2
		FOR UPDATE`, userID, walletType).Scan(&wallet.ID, &wallet.Balance, &wallet.Frozen)
	if err != nil {
		return nil, err
	}
	return wallet, nil
}

func createWalletTx(tx *sql.Tx, userID int64, walletType string) (*models.Wallet, error) {
	wallet := &models.Wallet{UserID: userID, WalletType: walletType}
	err := tx.QueryRow(`
		INSERT INTO wallets (user_id, wallet_type, balance, frozen, created_at)
		VALUES ($1, $2, 0, 0, NOW())
		RETURNING id`, userID, walletType).Scan(&wallet.ID)
	if err != nil {
		return nil, err
	}
	return wallet, nil
}

func updateWalletBalanceTx(tx *sql.Tx, walletID int64, balance decimal.Decimal) error {
	_, err := tx.Exec(`
		UPDATE wallets SET balance = $1, updated_at = NOW()
		WHERE id = $2`, balance, walletID)
	return err
}

func insertTransactionTx(tx *sql.Tx, t *models.Transaction) (int64, error) {
	var id int64
	err := tx.QueryRow(`
		INSERT INTO transactions
		(user_id, wallet_id, type, amount, balance_before, balance_after, source, action, reference_id, description, status, created_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id`,
		t.UserID, t.WalletID, t.Type, t.Amount, t.BalanceBefore, t.BalanceAfter,
		t.Source, t.Action, t.ReferenceID, t.Description, t.Status, t.CreatedAt, t.CompletedAt).Scan(&id)
	return id, err
}
