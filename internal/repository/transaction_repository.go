package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/cbcbank/ledger/internal/errors"
	"github.com/cbcbank/ledger/internal/models"
	"github.com/cbcbank/ledger/internal/money"
)

const transactionColumns = `id, account_id, account_number, to_account_number, user_id, counterparty_user_id,
	amount, fee, direction, kind, status, reference, description, failure_reason,
	is_reversed, reversal_status, reversal_of, balance_after, metadata, created_at, updated_at`

func scanTransaction(row scanner) (*models.Transaction, error) {
	txn := &models.Transaction{}
	err := row.Scan(
		&txn.ID, &txn.AccountID, &txn.AccountNumber, &txn.ToAccountNumber, &txn.UserID, &txn.CounterpartyUserID,
		&txn.Amount, &txn.Fee, &txn.Direction, &txn.Kind, &txn.Status, &txn.Reference, &txn.Description, &txn.FailureReason,
		&txn.IsReversed, &txn.ReversalStatus, &txn.ReversalOf, &txn.BalanceAfter, &txn.Metadata, &txn.CreatedAt, &txn.UpdatedAt,
	)
	return txn, err
}

func (t *ledgerTx) InsertTransaction(ctx context.Context, txn *models.Transaction) error {
	query := `INSERT INTO transactions (` + transactionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)`

	_, err := t.tx.ExecContext(ctx, query,
		txn.ID, txn.AccountID, txn.AccountNumber, txn.ToAccountNumber, txn.UserID, txn.CounterpartyUserID,
		txn.Amount, txn.Fee, txn.Direction, txn.Kind, txn.Status, txn.Reference, txn.Description, txn.FailureReason,
		txn.IsReversed, txn.ReversalStatus, txn.ReversalOf, txn.BalanceAfter, txn.Metadata, txn.CreatedAt, txn.UpdatedAt,
	)
	if err != nil {
		return classify(err, "insert transaction")
	}
	return nil
}

func (t *ledgerTx) getTransaction(ctx context.Context, query string, args ...any) (*models.Transaction, error) {
	txn, err := scanTransaction(t.tx.QueryRowContext(ctx, query, args...))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.ErrTransactionNotFound
		}
		return nil, classify(err, "get transaction")
	}
	return txn, nil
}

func (t *ledgerTx) TransactionByID(ctx context.Context, id string) (*models.Transaction, error) {
	return t.getTransaction(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id = $1`, id)
}

func (t *ledgerTx) LockTransaction(ctx context.Context, id string) (*models.Transaction, error) {
	return t.getTransaction(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id = $1 FOR UPDATE`, id)
}

func (t *ledgerTx) DepositByReference(ctx context.Context, accountID, reference string) (*models.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions
		WHERE account_id = $1 AND reference = $2 AND kind = 'deposit' AND status = 'completed'
		LIMIT 1`
	return t.getTransaction(ctx, query, accountID, reference)
}

func (t *ledgerTx) MarkReversed(ctx context.Context, id string, status models.ReversalStatus, at time.Time) error {
	query := `UPDATE transactions SET is_reversed = true, reversal_status = $1, updated_at = $2
		WHERE id = $3 AND is_reversed = false`

	result, err := t.tx.ExecContext(ctx, query, status, at, id)
	if err != nil {
		return classify(err, "mark transaction reversed")
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected after marking transaction reversed: %w", err)
	}

	if rowsAffected == 0 {
		return fmt.Errorf("%w: transaction %s already reversed", errors.ErrConcurrencyConflict, id)
	}
	return nil
}

// SumRecentDebits counts completed withdrawals, transfers and loan payments
// that have not been reversed.
func (t *ledgerTx) SumRecentDebits(ctx context.Context, accountID string, since time.Time) (money.Amount, error) {
	query := `SELECT COALESCE(SUM(amount), 0)::bigint FROM transactions
		WHERE account_id = $1
		  AND direction = 'debit'
		  AND kind IN ('withdrawal', 'transfer', 'loan-payment')
		  AND status = 'completed'
		  AND reversal_status <> 'completed'
		  AND created_at >= $2`

	var total money.Amount
	if err := t.tx.QueryRowContext(ctx, query, accountID, since).Scan(&total); err != nil {
		return 0, classify(err, "sum recent debits")
	}
	return total, nil
}

func (t *ledgerTx) TransactionsSince(ctx context.Context, accountNumber string, since time.Time) ([]models.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions
		WHERE (account_number = $1 OR to_account_number = $1) AND created_at >= $2
		ORDER BY created_at, id`

	rows, err := t.tx.QueryContext(ctx, query, accountNumber, since)
	if err != nil {
		return nil, classify(err, "list transactions")
	}
	defer rows.Close()

	var txns []models.Transaction
	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		txns = append(txns, *txn)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err, "list transactions")
	}
	return txns, nil
}
