package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/cbcbank/ledger/internal/errors"
	"github.com/cbcbank/ledger/internal/models"
)

const statementColumns = `id, account_number, user_id, location, start_date, end_date, opening_balance,
	closing_balance, total_credits, total_debits, total_fees, transaction_count, transactions, created_at`

func scanStatement(row scanner) (*models.Statement, error) {
	s := &models.Statement{}
	err := row.Scan(
		&s.ID, &s.AccountNumber, &s.UserID, &s.Location, &s.StartDate, &s.EndDate, &s.OpeningBalance,
		&s.ClosingBalance, &s.TotalCredits, &s.TotalDebits, &s.TotalFees, &s.TransactionCount, &s.Transactions, &s.CreatedAt,
	)
	return s, err
}

func (t *ledgerTx) InsertStatement(ctx context.Context, s *models.Statement) error {
	query := `INSERT INTO statements (` + statementColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

	_, err := t.tx.ExecContext(ctx, query,
		s.ID, s.AccountNumber, s.UserID, s.Location, s.StartDate, s.EndDate, s.OpeningBalance,
		s.ClosingBalance, s.TotalCredits, s.TotalDebits, s.TotalFees, s.TransactionCount, s.Transactions, s.CreatedAt,
	)
	if err != nil {
		return classify(err, "insert statement")
	}
	return nil
}

func (t *ledgerTx) StatementByID(ctx context.Context, id string) (*models.Statement, error) {
	query := `SELECT ` + statementColumns + ` FROM statements WHERE id = $1`

	s, err := scanStatement(t.tx.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.ErrStatementNotFound
		}
		return nil, classify(err, "get statement")
	}
	return s, nil
}

func (t *ledgerTx) StatementsByAccount(ctx context.Context, accountNumber string) ([]models.Statement, error) {
	query := `SELECT ` + statementColumns + ` FROM statements
		WHERE account_number = $1 ORDER BY created_at DESC`

	rows, err := t.tx.QueryContext(ctx, query, accountNumber)
	if err != nil {
		return nil, classify(err, "list statements")
	}
	defer rows.Close()

	statements := []models.Statement{}
	for rows.Next() {
		s, err := scanStatement(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan statement: %w", err)
		}
		statements = append(statements, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err, "list statements")
	}
	return statements, nil
}

const auditReportColumns = `id, account_id, generated_by_user_id, start_date, end_date,
	total_credits, total_debits, net_balance, total_transactions, status, reviewed_at, created_at`

func (t *ledgerTx) InsertAuditReport(ctx context.Context, r *models.AuditReport) error {
	query := `INSERT INTO audit_reports (id, account_id, generated_by_user_id, start_date, end_date,
		total_credits, total_debits, net_balance, total_transactions, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err := t.tx.ExecContext(ctx, query,
		r.ID, r.AccountID, r.GeneratedByUserID, r.StartDate, r.EndDate,
		r.TotalCredits, r.TotalDebits, r.NetBalance, r.TotalTransactions, r.Status, r.CreatedAt,
	)
	if err != nil {
		return classify(err, "insert audit report")
	}
	return nil
}

func (t *ledgerTx) LockAuditReport(ctx context.Context, id string) (*models.AuditReport, error) {
	query := `SELECT ` + auditReportColumns + ` FROM audit_reports WHERE id = $1 FOR UPDATE`

	r := &models.AuditReport{}
	err := t.tx.QueryRowContext(ctx, query, id).Scan(
		&r.ID, &r.AccountID, &r.GeneratedByUserID, &r.StartDate, &r.EndDate,
		&r.TotalCredits, &r.TotalDebits, &r.NetBalance, &r.TotalTransactions, &r.Status, &r.ReviewedAt, &r.CreatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.ErrReportNotFound
		}
		return nil, classify(err, "get audit report")
	}
	return r, nil
}

// MarkAuditReportReviewed only moves a generated report forward.
func (t *ledgerTx) MarkAuditReportReviewed(ctx context.Context, id string, at time.Time) error {
	query := `UPDATE audit_reports SET status = 'reviewed', reviewed_at = $1
		WHERE id = $2 AND status = 'generated'`

	result, err := t.tx.ExecContext(ctx, query, at, id)
	if err != nil {
		return classify(err, "review audit report")
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected after reviewing audit report: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%w: audit report %s changed since it was read", errors.ErrConcurrencyConflict, id)
	}
	return nil
}
