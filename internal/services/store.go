package services

import (
	"context"
	"database/sql"
	"time"

	"github.com/cbcbank/ledger/internal/models"
	"github.com/cbcbank/ledger/internal/money"
)

// Store opens units of work. Every mutation made through a LedgerTx becomes
// visible together on Commit or not at all.
type Store interface {
	Begin(ctx context.Context, opts *sql.TxOptions) (LedgerTx, error)
}

type LedgerTx interface {
	Commit() error
	Rollback() error

	AccountStore
	TransactionStore
	LoanStore
	StatementStore
}

type AccountStore interface {
	// LockAccounts row-locks the accounts in ascending id order. A missing id
	// yields errors.ErrAccountNotFound.
	LockAccounts(ctx context.Context, ids ...string) (map[string]*models.Account, error)
	AccountByID(ctx context.Context, id string) (*models.Account, error)
	AccountByNumber(ctx context.Context, accountNumber string) (*models.Account, error)
	PrimaryAccountForUser(ctx context.Context, userID string) (*models.Account, error)
	// UpdateAccountBalance writes balance only if the stored version still
	// matches account.Version, then advances the in-memory copy.
	UpdateAccountBalance(ctx context.Context, account *models.Account, balance money.Amount) error
}

type TransactionStore interface {
	InsertTransaction(ctx context.Context, txn *models.Transaction) error
	TransactionByID(ctx context.Context, id string) (*models.Transaction, error)
	LockTransaction(ctx context.Context, id string) (*models.Transaction, error)
	DepositByReference(ctx context.Context, accountID, reference string) (*models.Transaction, error)
	// MarkReversed sets the reversal flags once; a second call is a conflict.
	MarkReversed(ctx context.Context, id string, status models.ReversalStatus, at time.Time) error
	SumRecentDebits(ctx context.Context, accountID string, since time.Time) (money.Amount, error)
	// TransactionsSince returns rows owned by, or naming as counterparty, the
	// account number, oldest first.
	TransactionsSince(ctx context.Context, accountNumber string, since time.Time) ([]models.Transaction, error)
}

type LoanStore interface {
	InsertLoan(ctx context.Context, loan *models.Loan) error
	LoanByID(ctx context.Context, id string) (*models.Loan, error)
	LockLoan(ctx context.Context, id string) (*models.Loan, error)
	// LockLoanForUser locks the user's active loan, or their newest one when
	// none is active.
	LockLoanForUser(ctx context.Context, userID string) (*models.Loan, error)
	UpdateLoan(ctx context.Context, loan *models.Loan) error
	InsertLoanPayment(ctx context.Context, payment *models.LoanPayment) error
}

type StatementStore interface {
	InsertStatement(ctx context.Context, statement *models.Statement) error
	StatementByID(ctx context.Context, id string) (*models.Statement, error)
	StatementsByAccount(ctx context.Context, accountNumber string) ([]models.Statement, error)
	InsertAuditReport(ctx context.Context, report *models.AuditReport) error
	LockAuditReport(ctx context.Context, id string) (*models.AuditReport, error)
	MarkAuditReportReviewed(ctx context.Context, id string, at time.Time) error
}
