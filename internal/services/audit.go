package services

import (
	"encoding/json"
	"log"
	"time"

	"github.com/shopspring/decimal"
)

type AuditEvent struct {
	Timestamp     time.Time `json:"timestamp"`
	EventType     string    `json:"event_type"`
	TransactionID int64     `json:"transaction_id,omitempty"`
	PayoutID      int64     `json:"payout_id,omitempty"`
	UserID        int64     `json:"user_id,omitempty"`
	Amount        string    `json:"amount,omitempty"`
	Status        string    `json:"status"`
	Details       any       `json:"details,omitempty"`
}

// AuditLogger writes a JSONL trail of every balance mutation and payout
// transition alongside the regular logs.
type AuditLogger struct{}

func NewAuditLogger() *AuditLogger {
	return &AuditLogger{}
}

func (a *AuditLogger) LogMutation(transactionID, userID int64, kind string, amount decimal.Decimal, status string) {
	a.log(AuditEvent{
		Timestamp:     time.Now(),
		EventType:     kind,
		TransactionID: transactionID,
		UserID:        userID,
		Amount:        amount.String(),
		Status:        status,
	})
}

func (a *AuditLogger) LogPayout(payoutID, partnerID int64, event string, amount decimal.Decimal) {
	a.log(AuditEvent{
		Timestamp: time.Now(),
		EventType: event,
		PayoutID:  payoutID,
		UserID:    partnerID,
		Amount:    amount.String(),
		Status:    "SUCCESS",
	})
}

func (a *AuditLogger) LogError(transactionID, userID int64, err error) {
	a.log(AuditEvent{
		Timestamp:     time.Now(),
		EventType:     "ERROR",
		TransactionID: transactionID,
		UserID:        userID,
		Status:        "FAILED",
		Details:       map[string]string{"error": err.Error()},
	})
}

func (a *AuditLogger) log(event AuditEvent) {
	data, _ := json.Marshal(event)
	log.Printf("AUDIT: %s", string(data))
}
