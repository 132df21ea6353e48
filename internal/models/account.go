package models

import (
	"time"

	"github.com/cbcbank/ledger/internal/money"
)

type AccountType string

const (
	AccountTypeSavings  AccountType = "savings"
	AccountTypeChecking AccountType = "checking"
	AccountTypeLoan     AccountType = "loan"
)

// Account is mutated only by the ledger engine.
type Account struct {
	ID                string       `json:"id" db:"id"`
	AccountNumber     string       `json:"accountNumber" db:"account_number"`
	AccountHolderName string       `json:"accountHolderName" db:"account_holder_name"`
	BranchCode        string       `json:"branchCode" db:"branch_code"`
	AccountType       AccountType  `json:"accountType" db:"account_type"`
	Balance           money.Amount `json:"balance" db:"balance"`
	OverdraftLimit    money.Amount `json:"overdraftLimit" db:"overdraft_limit"` // weekly debit cap
	UserID            string       `json:"userId" db:"user_id"`
	Version           int          `json:"version" db:"version"` // for optimistic locking
	CreatedAt         time.Time    `json:"createdAt" db:"created_at"`
	UpdatedAt         time.Time    `json:"updatedAt" db:"updated_at"`
}
