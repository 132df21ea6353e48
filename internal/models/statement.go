package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	"github.com/cbcbank/ledger/internal/money"
)

// Statement is an issued snapshot. Its balances are never recomputed.
type Statement struct {
	ID               string          `json:"id" db:"id"`
	AccountNumber    string          `json:"accountNumber" db:"account_number"`
	UserID           string          `json:"userId" db:"user_id"`
	Location         string          `json:"location" db:"location"`
	StartDate        time.Time       `json:"startDate" db:"start_date"`
	EndDate          time.Time       `json:"endDate" db:"end_date"`
	OpeningBalance   money.Amount    `json:"openingBalance" db:"opening_balance"`
	ClosingBalance   money.Amount    `json:"balance" db:"closing_balance"`
	TotalCredits     money.Amount    `json:"totalCredits" db:"total_credits"`
	TotalDebits      money.Amount    `json:"totalDebits" db:"total_debits"`
	TotalFees        money.Amount    `json:"totalFees" db:"total_fees"`
	TransactionCount int             `json:"totalTransactions" db:"transaction_count"`
	Transactions     TransactionList `json:"transaction" db:"transactions"`
	CreatedAt        time.Time       `json:"createdAt" db:"created_at"`
}

type ReportStatus string

const (
	ReportGenerated ReportStatus = "generated"
	ReportReviewed  ReportStatus = "reviewed"
)

// AuditReport totals an account's own rows over a window.
type AuditReport struct {
	ID                string       `json:"id" db:"id"`
	AccountID         string       `json:"accountId" db:"account_id"`
	GeneratedByUserID string       `json:"generatedByUserId" db:"generated_by_user_id"`
	StartDate         time.Time    `json:"startDate" db:"start_date"`
	EndDate           time.Time    `json:"endDate" db:"end_date"`
	TotalCredits      money.Amount `json:"totalCredits" db:"total_credits"`
	TotalDebits       money.Amount `json:"totalDebits" db:"total_debits"`
	NetBalance        money.Amount `json:"netBalance" db:"net_balance"`
	TotalTransactions int          `json:"totalTransactions" db:"total_transactions"`
	Status            ReportStatus `json:"status" db:"status"`
	ReviewedAt        *time.Time   `json:"reviewedAt,omitempty" db:"reviewed_at"`
	CreatedAt         time.Time    `json:"createdAt" db:"created_at"`
}

// TransactionList is stored as a JSONB snapshot
type TransactionList []Transaction

func (l TransactionList) Value() (driver.Value, error) {
	if l == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(l)
}

func (l *TransactionList) Scan(value any) error {
	if value == nil {
		*l = nil
		return nil
	}

	b, ok := value.([]byte)
	if !ok {
		return errors.New("type assertion to []byte failed")
	}

	return json.Unmarshal(b, l)
}
