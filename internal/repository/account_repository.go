package repository

import (
	"context"
	"database/sql"
	"fmt"
	"slices"
	"time"

	"github.com/lib/pq"

	"github.com/cbcbank/ledger/internal/errors"
	"github.com/cbcbank/ledger/internal/models"
	"github.com/cbcbank/ledger/internal/money"
)

const accountColumns = `id, account_number, account_holder_name, branch_code, account_type,
	balance, overdraft_limit, user_id, version, created_at, updated_at`

func scanAccount(row scanner) (*models.Account, error) {
	account := &models.Account{}
	err := row.Scan(
		&account.ID, &account.AccountNumber, &account.AccountHolderName, &account.BranchCode, &account.AccountType,
		&account.Balance, &account.OverdraftLimit, &account.UserID, &account.Version, &account.CreatedAt, &account.UpdatedAt,
	)
	return account, err
}

func (t *ledgerTx) LockAccounts(ctx context.Context, ids ...string) (map[string]*models.Account, error) {
	unique := slices.Clone(ids)
	slices.Sort(unique)
	unique = slices.Compact(unique)

	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = ANY($1) ORDER BY id FOR UPDATE`

	rows, err := t.tx.QueryContext(ctx, query, pq.Array(unique))
	if err != nil {
		return nil, classify(err, "lock accounts")
	}
	defer rows.Close()

	accounts := make(map[string]*models.Account, len(unique))
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		accounts[account.ID] = account
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err, "lock accounts")
	}

	if len(accounts) != len(unique) {
		return nil, errors.ErrAccountNotFound
	}
	return accounts, nil
}

func (t *ledgerTx) getAccount(ctx context.Context, where string, arg any) (*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE ` + where

	account, err := scanAccount(t.tx.QueryRowContext(ctx, query, arg))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.ErrAccountNotFound
		}
		return nil, classify(err, "get account")
	}
	return account, nil
}

func (t *ledgerTx) AccountByID(ctx context.Context, id string) (*models.Account, error) {
	return t.getAccount(ctx, `id = $1`, id)
}

func (t *ledgerTx) AccountByNumber(ctx context.Context, accountNumber string) (*models.Account, error) {
	return t.getAccount(ctx, `account_number = $1`, accountNumber)
}

func (t *ledgerTx) PrimaryAccountForUser(ctx context.Context, userID string) (*models.Account, error) {
	return t.getAccount(ctx, `user_id = $1 AND account_type <> 'loan' ORDER BY created_at, id LIMIT 1`, userID)
}

func (t *ledgerTx) UpdateAccountBalance(ctx context.Context, account *models.Account, balance money.Amount) error {
	now := time.Now().UTC()
	query := `UPDATE accounts SET balance = $1, version = version + 1, updated_at = $2
		WHERE id = $3 AND version = $4`

	result, err := t.tx.ExecContext(ctx, query, balance, now, account.ID, account.Version)
	if err != nil {
		return classify(err, "update account balance")
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected after updating account balance: %w", err)
	}

	if rowsAffected == 0 {
		return fmt.Errorf("%w: account %s changed since it was read", errors.ErrConcurrencyConflict, account.ID)
	}

	account.Balance = balance
	account.Version++
	account.UpdatedAt = now
	return nil
}
