package services

import (
	"context"
	"database/sql"
	"fmt"
	"log"

	"github.com/cbcbank/ledger/internal/audit"
	"github.com/cbcbank/ledger/internal/errors"
)

// unitOfWork runs a function inside one store transaction, retrying the
// whole attempt when the store reports a concurrency conflict.
type unitOfWork struct {
	store      Store
	maxRetries int
	audit      *audit.Logger
	opts       *sql.TxOptions
}

func newUnitOfWork(store Store, maxRetries int, auditLogger *audit.Logger) *unitOfWork {
	if maxRetries < 1 {
		maxRetries = 1
	}
	if auditLogger == nil {
		auditLogger = audit.NewLogger()
	}
	return &unitOfWork{store: store, maxRetries: maxRetries, audit: auditLogger}
}

func (u *unitOfWork) withOptions(opts *sql.TxOptions) *unitOfWork {
	clone := *u
	clone.opts = opts
	return &clone
}

// run commits when fn succeeds or returns a recorded rejection; in the
// latter case the rejection is returned alongside the committed result.
func run[T any](ctx context.Context, u *unitOfWork, operation, accountRef string, fn func(tx LedgerTx) (T, error)) (T, error) {
	var zero T

	for attempt := 1; attempt <= u.maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		tx, err := u.store.Begin(ctx, u.opts)
		if err != nil {
			if errors.IsConflict(err) {
				continue
			}
			return zero, errors.NewOperationError(operation, err)
		}

		result, fnErr := fn(tx)
		if fnErr != nil && !errors.IsRecorded(fnErr) {
			tx.Rollback()
			if errors.IsConflict(fnErr) {
				log.Printf("[LEDGER] %s conflict on %s (attempt %d/%d): %v", operation, accountRef, attempt, u.maxRetries, fnErr)
				continue
			}
			return zero, fnErr
		}

		if err := tx.Commit(); err != nil {
			if errors.IsConflict(err) {
				log.Printf("[LEDGER] %s commit conflict on %s (attempt %d/%d): %v", operation, accountRef, attempt, u.maxRetries, err)
				continue
			}
			u.audit.LogReconciliation(operation, accountRef, err)
			return zero, fmt.Errorf("%w: %s on %s: %v", errors.ErrReconciliationRequired, operation, accountRef, err)
		}

		return result, fnErr
	}

	log.Printf("[LEDGER] %s on %s gave up after %d attempts", operation, accountRef, u.maxRetries)
	return zero, fmt.Errorf("%w: %s on %s gave up after %d attempts", errors.ErrUnavailable, operation, accountRef, u.maxRetries)
}

// read runs fn in a read-only transaction that is always rolled back.
func read[T any](ctx context.Context, u *unitOfWork, opts *sql.TxOptions, fn func(tx LedgerTx) (T, error)) (T, error) {
	var zero T

	if opts == nil {
		opts = &sql.TxOptions{ReadOnly: true}
	}
	tx, err := u.store.Begin(ctx, opts)
	if err != nil {
		return zero, errors.NewOperationError("read", err)
	}
	defer tx.Rollback()

	return fn(tx)
}
