// Package audit writes structured ledger audit events to the process log.
package audit

import (
	"encoding/json"
	"log"
	"time"
)

type Event struct {
	Timestamp     time.Time `json:"timestamp"`
	EventType     string    `json:"event_type"`
	Operation     string    `json:"operation,omitempty"`
	TransactionID string    `json:"transaction_id,omitempty"`
	AccountID     string    `json:"account_id,omitempty"`
	Amount        int64     `json:"amount"`
	Status        string    `json:"status"`
	Details       any       `json:"details,omitempty"`
}

// Logger is safe for concurrent use; each event is a single log line.
type Logger struct {
	out *log.Logger
	now func() time.Time
}

func NewLogger() *Logger {
	return &Logger{out: log.Default(), now: time.Now}
}

// NewLoggerTo is used by tests to capture output.
func NewLoggerTo(out *log.Logger) *Logger {
	return &Logger{out: out, now: time.Now}
}

func (l *Logger) LogTransaction(operation, transactionID, accountID string, amount int64, status string) {
	l.log(Event{
		EventType:     "TRANSACTION",
		Operation:     operation,
		TransactionID: transactionID,
		AccountID:     accountID,
		Amount:        amount,
		Status:        status,
	})
}

func (l *Logger) LogTransfer(transactionID, fromAccount, toAccount string, amount int64, status string) {
	l.log(Event{
		EventType:     "TRANSFER",
		Operation:     "transfer",
		TransactionID: transactionID,
		Amount:        amount,
		Status:        status,
		Details: map[string]string{
			"from_account": fromAccount,
			"to_account":   toAccount,
		},
	})
}

func (l *Logger) LogRejection(operation, accountID string, amount int64, reason string) {
	l.log(Event{
		EventType: "REJECTION",
		Operation: operation,
		AccountID: accountID,
		Amount:    amount,
		Status:    "REJECTED",
		Details:   map[string]string{"reason": reason},
	})
}

// LogReconciliation flags a unit of work whose commit outcome is unknown.
func (l *Logger) LogReconciliation(operation, accountID string, err error) {
	l.log(Event{
		EventType: "RECONCILIATION_REQUIRED",
		Operation: operation,
		AccountID: accountID,
		Status:    "UNKNOWN",
		Details:   map[string]string{"error": err.Error()},
	})
}

func (l *Logger) LogError(operation, accountID string, err error) {
	l.log(Event{
		EventType: "ERROR",
		Operation: operation,
		AccountID: accountID,
		Status:    "FAILED",
		Details:   map[string]string{"error": err.Error()},
	})
}

func (l *Logger) log(event Event) {
	event.Timestamp = l.now()
	data, _ := json.Marshal(event)
	l.out.Printf("AUDIT: %s", string(data))
}
