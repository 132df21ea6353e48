package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/cbcbank/ledger/internal/errors"
	"github.com/cbcbank/ledger/internal/models"
)

const loanColumns = `id, user_id, loan_type, loan_amount, interest_rate, loan_term, total_amount,
	remaining_balance, monthly_payment, status, application_status, version, created_at, updated_at`

func scanLoan(row scanner) (*models.Loan, error) {
	loan := &models.Loan{}
	err := row.Scan(
		&loan.ID, &loan.UserID, &loan.LoanType, &loan.LoanAmount, &loan.InterestRate, &loan.LoanTerm, &loan.TotalAmount,
		&loan.RemainingBalance, &loan.MonthlyPayment, &loan.Status, &loan.ApplicationStatus, &loan.Version, &loan.CreatedAt, &loan.UpdatedAt,
	)
	return loan, err
}

func (t *ledgerTx) InsertLoan(ctx context.Context, loan *models.Loan) error {
	query := `INSERT INTO loans (` + loanColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

	_, err := t.tx.ExecContext(ctx, query,
		loan.ID, loan.UserID, loan.LoanType, loan.LoanAmount, loan.InterestRate, loan.LoanTerm, loan.TotalAmount,
		loan.RemainingBalance, loan.MonthlyPayment, loan.Status, loan.ApplicationStatus, loan.Version, loan.CreatedAt, loan.UpdatedAt,
	)
	if err != nil {
		return classify(err, "insert loan")
	}
	return nil
}

func (t *ledgerTx) getLoan(ctx context.Context, query string, arg any) (*models.Loan, error) {
	loan, err := scanLoan(t.tx.QueryRowContext(ctx, query, arg))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.ErrLoanNotFound
		}
		return nil, classify(err, "get loan")
	}

	if loan.Payments, err = t.loanPayments(ctx, loan.ID); err != nil {
		return nil, err
	}
	return loan, nil
}

func (t *ledgerTx) LoanByID(ctx context.Context, id string) (*models.Loan, error) {
	return t.getLoan(ctx, `SELECT `+loanColumns+` FROM loans WHERE id = $1`, id)
}

func (t *ledgerTx) LockLoan(ctx context.Context, id string) (*models.Loan, error) {
	return t.getLoan(ctx, `SELECT `+loanColumns+` FROM loans WHERE id = $1 FOR UPDATE`, id)
}

func (t *ledgerTx) LockLoanForUser(ctx context.Context, userID string) (*models.Loan, error) {
	query := `SELECT ` + loanColumns + ` FROM loans WHERE user_id = $1
		ORDER BY (status = 'active') DESC, created_at DESC
		LIMIT 1 FOR UPDATE`
	return t.getLoan(ctx, query, userID)
}

func (t *ledgerTx) UpdateLoan(ctx context.Context, loan *models.Loan) error {
	query := `UPDATE loans SET total_amount = $1, remaining_balance = $2, monthly_payment = $3,
		status = $4, application_status = $5, version = version + 1, updated_at = $6
		WHERE id = $7 AND version = $8`

	result, err := t.tx.ExecContext(ctx, query,
		loan.TotalAmount, loan.RemainingBalance, loan.MonthlyPayment,
		loan.Status, loan.ApplicationStatus, loan.UpdatedAt, loan.ID, loan.Version,
	)
	if err != nil {
		return classify(err, "update loan")
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected after updating loan: %w", err)
	}

	if rowsAffected == 0 {
		return fmt.Errorf("%w: loan %s changed since it was read", errors.ErrConcurrencyConflict, loan.ID)
	}

	loan.Version++
	return nil
}

func (t *ledgerTx) InsertLoanPayment(ctx context.Context, payment *models.LoanPayment) error {
	query := `INSERT INTO loan_payments (loan_id, sequence, amount, transaction_id, date_paid)
		VALUES ($1, $2, $3, $4, $5)`

	_, err := t.tx.ExecContext(ctx, query,
		payment.LoanID, payment.Sequence, payment.Amount, payment.TransactionID, payment.DatePaid)
	if err != nil {
		return classify(err, "insert loan payment")
	}
	return nil
}

func (t *ledgerTx) loanPayments(ctx context.Context, loanID string) ([]models.LoanPayment, error) {
	query := `SELECT loan_id, sequence, amount, transaction_id, date_paid
		FROM loan_payments WHERE loan_id = $1 ORDER BY sequence`

	rows, err := t.tx.QueryContext(ctx, query, loanID)
	if err != nil {
		return nil, classify(err, "list loan payments")
	}
	defer rows.Close()

	var payments []models.LoanPayment
	for rows.Next() {
		var p models.LoanPayment
		if err := rows.Scan(&p.LoanID, &p.Sequence, &p.Amount, &p.TransactionID, &p.DatePaid); err != nil {
			return nil, fmt.Errorf("failed to scan loan payment: %w", err)
		}
		payments = append(payments, p)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err, "list loan payments")
	}
	return payments, nil
}
