package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cbcbank/ledger/internal/errors"
	"github.com/cbcbank/ledger/internal/models"
	"github.com/cbcbank/ledger/internal/money"
)

var accountRowColumns = []string{
	"id", "account_number", "account_holder_name", "branch_code", "account_type",
	"balance", "overdraft_limit", "user_id", "version", "created_at", "updated_at",
}

func beginTx(t *testing.T) (*ledgerTx, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	mock.ExpectBegin()
	tx, err := NewPostgresStore(db).Begin(context.Background(), nil)
	require.NoError(t, err)
	return tx.(*ledgerTx), mock
}

func TestPostgresStore_BeginCommit(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewPostgresStore(db)

	mock.ExpectBegin()
	mock.ExpectCommit()
	tx, err := store.Begin(context.Background(), &sql.TxOptions{Isolation: sql.LevelRepeatableRead})
	require.NoError(t, err)
	assert.NoError(t, tx.Commit())
	assert.NoError(t, tx.Rollback(), "rollback after commit is a no-op")

	mock.ExpectBegin()
	mock.ExpectCommit().WillReturnError(&pq.Error{Code: codeSerializationFailure, Message: "could not serialize access"})
	tx, err = store.Begin(context.Background(), nil)
	require.NoError(t, err)
	assert.True(t, errors.IsConflict(tx.Commit()))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClassify(t *testing.T) {
	for _, code := range []pq.ErrorCode{codeUniqueViolation, codeSerializationFailure, codeDeadlockDetected} {
		err := classify(&pq.Error{Code: code, Message: "boom"}, "update")
		assert.True(t, errors.IsConflict(err), string(code))
	}

	err := classify(&pq.Error{Code: "23503", Message: "foreign key"}, "insert transaction")
	assert.False(t, errors.IsConflict(err))
	assert.Contains(t, err.Error(), "failed to insert transaction")

	assert.False(t, errors.IsConflict(classify(sql.ErrConnDone, "begin transaction")))
}

func TestLedgerTx_LockAccounts(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	query := regexp.QuoteMeta("FROM accounts WHERE id = ANY($1) ORDER BY id FOR UPDATE")

	t.Run("locks sorted unique ids", func(t *testing.T) {
		tx, mock := beginTx(t)

		mock.ExpectQuery(query).
			WithArgs(pq.Array([]string{"acc-a", "acc-b"})).
			WillReturnRows(sqlmock.NewRows(accountRowColumns).
				AddRow("acc-a", "1000000001", "Thandi Mokoena", "250655", "savings", int64(10000), int64(500000), "user-a", 1, now, now).
				AddRow("acc-b", "1000000002", "Pieter Botha", "250655", "checking", int64(0), int64(0), "user-b", 3, now, now))

		accounts, err := tx.LockAccounts(ctx, "acc-b", "acc-a", "acc-b")
		require.NoError(t, err)
		require.Len(t, accounts, 2)
		assert.Equal(t, money.Amount(10000), accounts["acc-a"].Balance)
		assert.Equal(t, models.AccountTypeChecking, accounts["acc-b"].AccountType)
		assert.Equal(t, 3, accounts["acc-b"].Version)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing account", func(t *testing.T) {
		tx, mock := beginTx(t)

		mock.ExpectQuery(query).
			WithArgs(pq.Array([]string{"acc-a", "ghost"})).
			WillReturnRows(sqlmock.NewRows(accountRowColumns).
				AddRow("acc-a", "1000000001", "Thandi Mokoena", "250655", "savings", int64(10000), int64(500000), "user-a", 1, now, now))

		_, err := tx.LockAccounts(ctx, "acc-a", "ghost")
		assert.ErrorIs(t, err, errors.ErrAccountNotFound)
	})

	t.Run("deadlock is a conflict", func(t *testing.T) {
		tx, mock := beginTx(t)

		mock.ExpectQuery(query).WillReturnError(&pq.Error{Code: codeDeadlockDetected, Message: "deadlock detected"})

		_, err := tx.LockAccounts(ctx, "acc-a")
		assert.True(t, errors.IsConflict(err))
	})
}

func TestLedgerTx_AccountLookups(t *testing.T) {
	ctx := context.Background()
	tx, mock := beginTx(t)

	mock.ExpectQuery(regexp.QuoteMeta("FROM accounts WHERE account_number = $1")).
		WithArgs("1999999999").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery(regexp.QuoteMeta("FROM accounts WHERE user_id = $1 AND account_type <> 'loan' ORDER BY created_at, id LIMIT 1")).
		WithArgs("user-a").
		WillReturnRows(sqlmock.NewRows(accountRowColumns).
			AddRow("acc-a", "1000000001", "Thandi Mokoena", "250655", "savings", int64(10000), int64(0), "user-a", 1, time.Now(), time.Now()))

	_, err := tx.AccountByNumber(ctx, "1999999999")
	assert.ErrorIs(t, err, errors.ErrAccountNotFound)

	account, err := tx.PrimaryAccountForUser(ctx, "user-a")
	require.NoError(t, err)
	assert.Equal(t, "acc-a", account.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLedgerTx_UpdateAccountBalance(t *testing.T) {
	ctx := context.Background()
	query := regexp.QuoteMeta("UPDATE accounts SET balance = $1, version = version + 1, updated_at = $2 WHERE id = $3 AND version = $4")

	t.Run("advances the in-memory copy", func(t *testing.T) {
		tx, mock := beginTx(t)
		account := &models.Account{ID: "acc-a", Balance: 10000, Version: 4}

		mock.ExpectExec(query).
			WithArgs(money.Amount(7975), sqlmock.AnyArg(), "acc-a", 4).
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, tx.UpdateAccountBalance(ctx, account, 7975))
		assert.Equal(t, money.Amount(7975), account.Balance)
		assert.Equal(t, 5, account.Version)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("stale version is a conflict", func(t *testing.T) {
		tx, mock := beginTx(t)
		account := &models.Account{ID: "acc-a", Balance: 10000, Version: 4}

		mock.ExpectExec(query).
			WithArgs(money.Amount(7975), sqlmock.AnyArg(), "acc-a", 4).
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := tx.UpdateAccountBalance(ctx, account, 7975)
		assert.True(t, errors.IsConflict(err))
		assert.Equal(t, money.Amount(10000), account.Balance)
		assert.Equal(t, 4, account.Version)
	})
}

func TestLedgerTx_Transactions(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)

	t.Run("insert", func(t *testing.T) {
		tx, mock := beginTx(t)
		txn := &models.Transaction{
			ID: "tx-1", AccountID: "acc-a", AccountNumber: "1000000001", UserID: "user-a",
			Amount: 2000, Fee: 25, Direction: models.DirectionDebit, Kind: models.KindWithdrawal,
			Status: models.StatusCompleted, BalanceAfter: 7975, CreatedAt: now, UpdatedAt: now,
		}

		mock.ExpectExec("INSERT INTO transactions").
			WithArgs("tx-1", "acc-a", "1000000001", "", "user-a", "",
				money.Amount(2000), money.Amount(25), "debit", "withdrawal", "completed", "", "", "",
				false, "", "", money.Amount(7975), nil, now, now).
			WillReturnResult(sqlmock.NewResult(0, 1))

		assert.NoError(t, tx.InsertTransaction(ctx, txn))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("duplicate deposit reference is a conflict", func(t *testing.T) {
		tx, mock := beginTx(t)

		mock.ExpectExec("INSERT INTO transactions").
			WillReturnError(&pq.Error{Code: codeUniqueViolation, Message: "duplicate key value"})

		err := tx.InsertTransaction(ctx, &models.Transaction{ID: "tx-2"})
		assert.True(t, errors.IsConflict(err))
	})

	t.Run("not found", func(t *testing.T) {
		tx, mock := beginTx(t)

		mock.ExpectQuery(regexp.QuoteMeta("FROM transactions WHERE id = $1 FOR UPDATE")).
			WithArgs("missing").
			WillReturnError(sql.ErrNoRows)

		_, err := tx.LockTransaction(ctx, "missing")
		assert.ErrorIs(t, err, errors.ErrTransactionNotFound)
	})

	t.Run("mark reversed once", func(t *testing.T) {
		tx, mock := beginTx(t)
		query := regexp.QuoteMeta("UPDATE transactions SET is_reversed = true, reversal_status = $1, updated_at = $2 WHERE id = $3 AND is_reversed = false")

		mock.ExpectExec(query).WithArgs("completed", now, "tx-1").WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(query).WithArgs("declined", now, "tx-1").WillReturnResult(sqlmock.NewResult(0, 0))

		assert.NoError(t, tx.MarkReversed(ctx, "tx-1", models.ReversalCompleted, now))
		assert.True(t, errors.IsConflict(tx.MarkReversed(ctx, "tx-1", models.ReversalDeclined, now)))
	})

	t.Run("sum recent debits includes loan payments", func(t *testing.T) {
		tx, mock := beginTx(t)
		since := now.Add(-7 * 24 * time.Hour)

		query := "SELECT COALESCE(SUM(amount), 0)::bigint FROM transactions WHERE account_id = $1 " +
			"AND direction = 'debit' AND kind IN ('withdrawal', 'transfer', 'loan-payment') AND status = 'completed'"

		mock.ExpectQuery(regexp.QuoteMeta(query)).
			WithArgs("acc-a", since).
			WillReturnRows(sqlmock.NewRows([]string{"sum"}).AddRow(int64(4000)))

		total, err := tx.SumRecentDebits(ctx, "acc-a", since)
		require.NoError(t, err)
		assert.Equal(t, money.Amount(4000), total)
	})

	t.Run("transactions since include counterparty rows", func(t *testing.T) {
		tx, mock := beginTx(t)
		columns := []string{
			"id", "account_id", "account_number", "to_account_number", "user_id", "counterparty_user_id",
			"amount", "fee", "direction", "kind", "status", "reference", "description", "failure_reason",
			"is_reversed", "reversal_status", "reversal_of", "balance_after", "metadata", "created_at", "updated_at",
		}

		mock.ExpectQuery(regexp.QuoteMeta("WHERE (account_number = $1 OR to_account_number = $1) AND created_at >= $2")).
			WithArgs("1000000002", now).
			WillReturnRows(sqlmock.NewRows(columns).
				AddRow("tx-1", "acc-a", "1000000001", "1000000002", "user-a", "user-b",
					int64(2000), int64(25), "debit", "transfer", "completed", "rent", "", "",
					false, "", "", int64(7975), []byte(`{"channel":"qr"}`), now, now))

		rows, err := tx.TransactionsSince(ctx, "1000000002", now)
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.Equal(t, models.KindTransfer, rows[0].Kind)
		assert.Equal(t, "qr", rows[0].Metadata["channel"])
	})
}

func TestLedgerTx_Loans(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)
	loanRowColumns := []string{
		"id", "user_id", "loan_type", "loan_amount", "interest_rate", "loan_term", "total_amount",
		"remaining_balance", "monthly_payment", "status", "application_status", "version", "created_at", "updated_at",
	}

	t.Run("lock for user loads payments", func(t *testing.T) {
		tx, mock := beginTx(t)

		mock.ExpectQuery(regexp.QuoteMeta("ORDER BY (status = 'active') DESC, created_at DESC")).
			WithArgs("user-a").
			WillReturnRows(sqlmock.NewRows(loanRowColumns).
				AddRow("loan-1", "user-a", "personal", int64(120000), 12.0, 12, int64(120000),
					int64(109338), int64(10662), "active", "accepted", 2, now, now))
		mock.ExpectQuery(regexp.QuoteMeta("FROM loan_payments WHERE loan_id = $1 ORDER BY sequence")).
			WithArgs("loan-1").
			WillReturnRows(sqlmock.NewRows([]string{"loan_id", "sequence", "amount", "transaction_id", "date_paid"}).
				AddRow("loan-1", 1, int64(10662), "tx-9", now))

		loan, err := tx.LockLoanForUser(ctx, "user-a")
		require.NoError(t, err)
		assert.Equal(t, models.LoanStatusActive, loan.Status)
		require.Len(t, loan.Payments, 1)
		assert.Equal(t, "tx-9", loan.Payments[0].TransactionID)
		assert.Equal(t, money.Amount(10662), loan.TotalPaid())
	})

	t.Run("update is compare and swap", func(t *testing.T) {
		tx, mock := beginTx(t)
		loan := &models.Loan{
			ID: "loan-1", TotalAmount: 120000, RemainingBalance: 98676, MonthlyPayment: 10662,
			Status: models.LoanStatusActive, ApplicationStatus: models.ApplicationAccepted, Version: 2, UpdatedAt: now,
		}
		query := regexp.QuoteMeta("UPDATE loans SET total_amount = $1")

		mock.ExpectExec(query).
			WithArgs(money.Amount(120000), money.Amount(98676), money.Amount(10662), "active", "accepted", now, "loan-1", 2).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(query).WillReturnResult(sqlmock.NewResult(0, 0))

		require.NoError(t, tx.UpdateLoan(ctx, loan))
		assert.Equal(t, 3, loan.Version)
		assert.True(t, errors.IsConflict(tx.UpdateLoan(ctx, loan)))
	})

	t.Run("unknown loan", func(t *testing.T) {
		tx, mock := beginTx(t)

		mock.ExpectQuery(regexp.QuoteMeta("FROM loans WHERE id = $1")).WithArgs("nope").WillReturnError(sql.ErrNoRows)

		_, err := tx.LoanByID(ctx, "nope")
		assert.ErrorIs(t, err, errors.ErrLoanNotFound)
	})
}

func TestLedgerTx_Statements(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 3, 31, 0, 0, 0, 0, time.UTC)

	t.Run("insert stores rows as json", func(t *testing.T) {
		tx, mock := beginTx(t)
		statement := &models.Statement{ID: "st-1", AccountNumber: "1000000001", StartDate: now, EndDate: now, CreatedAt: now}

		mock.ExpectExec("INSERT INTO statements").
			WithArgs("st-1", "1000000001", "", "", now, now, money.Amount(0), money.Amount(0), money.Amount(0),
				money.Amount(0), money.Amount(0), 0, []byte("[]"), now).
			WillReturnResult(sqlmock.NewResult(0, 1))

		assert.NoError(t, tx.InsertStatement(ctx, statement))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("list is never nil", func(t *testing.T) {
		tx, mock := beginTx(t)

		mock.ExpectQuery(regexp.QuoteMeta("FROM statements WHERE account_number = $1 ORDER BY created_at DESC")).
			WithArgs("1000000001").
			WillReturnRows(sqlmock.NewRows([]string{"id"}))

		statements, err := tx.StatementsByAccount(ctx, "1000000001")
		require.NoError(t, err)
		assert.NotNil(t, statements)
		assert.Empty(t, statements)
	})

	t.Run("missing statement", func(t *testing.T) {
		tx, mock := beginTx(t)

		mock.ExpectQuery(regexp.QuoteMeta("FROM statements WHERE id = $1")).WithArgs("nope").WillReturnError(sql.ErrNoRows)

		_, err := tx.StatementByID(ctx, "nope")
		assert.ErrorIs(t, err, errors.ErrStatementNotFound)
	})

	t.Run("audit report", func(t *testing.T) {
		tx, mock := beginTx(t)

		mock.ExpectExec("INSERT INTO audit_reports").WillReturnResult(sqlmock.NewResult(0, 1))

		assert.NoError(t, tx.InsertAuditReport(ctx, &models.AuditReport{ID: "rep-1", Status: models.ReportGenerated}))
	})

	t.Run("review audit report", func(t *testing.T) {
		tx, mock := beginTx(t)
		columns := []string{
			"id", "account_id", "generated_by_user_id", "start_date", "end_date", "total_credits",
			"total_debits", "net_balance", "total_transactions", "status", "reviewed_at", "created_at",
		}
		update := regexp.QuoteMeta("UPDATE audit_reports SET status = 'reviewed', reviewed_at = $1 WHERE id = $2 AND status = 'generated'")

		mock.ExpectQuery(regexp.QuoteMeta("FROM audit_reports WHERE id = $1 FOR UPDATE")).
			WithArgs("rep-1").
			WillReturnRows(sqlmock.NewRows(columns).
				AddRow("rep-1", "acc-a", "auditor", now, now, int64(15000), int64(3000), int64(12000), 5, "generated", nil, now))
		mock.ExpectExec(update).WithArgs(now, "rep-1").WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(update).WithArgs(now, "rep-1").WillReturnResult(sqlmock.NewResult(0, 0))

		report, err := tx.LockAuditReport(ctx, "rep-1")
		require.NoError(t, err)
		assert.Equal(t, models.ReportGenerated, report.Status)
		assert.Equal(t, money.Amount(12000), report.NetBalance)
		assert.Nil(t, report.ReviewedAt)

		assert.NoError(t, tx.MarkAuditReportReviewed(ctx, "rep-1", now))
		assert.True(t, errors.IsConflict(tx.MarkAuditReportReviewed(ctx, "rep-1", now)))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing audit report", func(t *testing.T) {
		tx, mock := beginTx(t)

		mock.ExpectQuery(regexp.QuoteMeta("FROM audit_reports WHERE id = $1")).WithArgs("nope").WillReturnError(sql.ErrNoRows)

		_, err := tx.LockAuditReport(ctx, "nope")
		assert.ErrorIs(t, err, errors.ErrReportNotFound)
	})
}
