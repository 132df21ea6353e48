package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/cbcbank/ledger/internal/errors"
	"github.com/cbcbank/ledger/internal/services"
)

// PostgreSQL error codes the ledger reacts to.
const (
	codeUniqueViolation      = "23505"
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
)

var (
	_ services.Store    = (*PostgresStore)(nil)
	_ services.LedgerTx = (*ledgerTx)(nil)
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Begin(ctx context.Context, opts *sql.TxOptions) (services.LedgerTx, error) {
	tx, err := s.db.BeginTx(ctx, opts)
	if err != nil {
		return nil, classify(err, "begin transaction")
	}
	return &ledgerTx{tx: tx}, nil
}

// ledgerTx implements services.LedgerTx on a single *sql.Tx.
type ledgerTx struct {
	tx *sql.Tx
}

func (t *ledgerTx) Commit() error {
	if err := t.tx.Commit(); err != nil {
		return classify(err, "commit transaction")
	}
	return nil
}

func (t *ledgerTx) Rollback() error {
	if err := t.tx.Rollback(); err != nil && err != sql.ErrTxDone {
		return fmt.Errorf("failed to rollback transaction: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

// classify turns retryable PostgreSQL failures into ErrConcurrencyConflict.
func classify(err error, action string) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case codeSerializationFailure, codeDeadlockDetected, codeUniqueViolation:
			return fmt.Errorf("%s: %w: %s", action, errors.ErrConcurrencyConflict, pqErr.Message)
		}
	}
	return fmt.Errorf("failed to %s: %w", action, err)
}
