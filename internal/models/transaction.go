package models

import (
	"time"

	"github.com/cbcbank/ledger/internal/money"
)

type Direction string

const (
	DirectionCredit Direction = "credit"
	DirectionDebit  Direction = "debit"
)

type TransactionKind string

const (
	KindDeposit     TransactionKind = "deposit"
	KindWithdrawal  TransactionKind = "withdrawal"
	KindTransfer    TransactionKind = "transfer"
	KindLoanPayment TransactionKind = "loan-payment"
	KindReversal    TransactionKind = "reversal"
)

type TransactionStatus string

const (
	StatusPending   TransactionStatus = "pending"
	StatusCompleted TransactionStatus = "completed"
	StatusFailed    TransactionStatus = "failed"
	StatusCanceled  TransactionStatus = "canceled"
	StatusDeclined  TransactionStatus = "declined"
)

type ReversalStatus string

const (
	ReversalNone      ReversalStatus = ""
	ReversalCompleted ReversalStatus = "completed"
	ReversalDeclined  ReversalStatus = "declined"
)

// Transaction is an immutable ledger row. IsReversed and ReversalStatus are
// the only fields that change after insert, and only once.
type Transaction struct {
	ID                 string            `json:"id" db:"id"`
	AccountID          string            `json:"accountId" db:"account_id"`
	AccountNumber      string            `json:"accountNumber" db:"account_number"`
	ToAccountNumber    string            `json:"toAccountNumber,omitempty" db:"to_account_number"`
	UserID             string            `json:"userId" db:"user_id"`
	CounterpartyUserID string            `json:"counterpartyUserId,omitempty" db:"counterparty_user_id"`
	Amount             money.Amount      `json:"amount" db:"amount"` // gross, never net of fee
	Fee                money.Amount      `json:"transactionCharges" db:"fee"`
	Direction          Direction         `json:"direction" db:"direction"`
	Kind               TransactionKind   `json:"transactionType" db:"kind"`
	Status             TransactionStatus `json:"status" db:"status"`
	Reference          string            `json:"reference" db:"reference"`
	Description        string            `json:"description" db:"description"`
	FailureReason      string            `json:"failureReason,omitempty" db:"failure_reason"`
	IsReversed         bool              `json:"isReversed" db:"is_reversed"`
	ReversalStatus     ReversalStatus    `json:"reversalStatus,omitempty" db:"reversal_status"`
	ReversalOf         string            `json:"reversalOf,omitempty" db:"reversal_of"`
	BalanceAfter       money.Amount      `json:"balanceAfter" db:"balance_after"`
	Metadata           Metadata          `json:"metadata,omitempty" db:"metadata"`
	CreatedAt          time.Time         `json:"createdAt" db:"created_at"`
	UpdatedAt          time.Time         `json:"updatedAt" db:"updated_at"`
}

// Counts reports whether the row moved money on its own account.
func (t *Transaction) Counts() bool {
	return t.Status == StatusCompleted || t.Status == StatusDeclined
}

// Reversible reports whether the kind supports reversal at all.
func (t *Transaction) Reversible() bool {
	return t.Kind == KindWithdrawal || t.Kind == KindTransfer
}
