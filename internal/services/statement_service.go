package services

import (
	"context"
	"database/sql"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/cbcbank/ledger/internal/config"
	"github.com/cbcbank/ledger/internal/errors"
	"github.com/cbcbank/ledger/internal/models"
	"github.com/cbcbank/ledger/internal/money"
)

// Summary is the deterministic aggregate of a transaction set as seen from
// one account.
type Summary struct {
	OpeningBalance money.Amount
	TotalCredits   money.Amount
	TotalDebits    money.Amount
	TotalFees      money.Amount
	NetBalance     money.Amount
	Counted        int
}

type AuditReportRequest struct {
	AccountID   string    `json:"accountId" validate:"required"`
	StartDate   time.Time `json:"startDate" validate:"required"`
	EndDate     time.Time `json:"endDate" validate:"required"`
	GeneratedBy string    `json:"-"`
}

// effect returns what txn did to the account's balance. Own rows carry the
// fee; rows naming the account as counterparty move the amount the other way.
func effect(accountNumber string, txn *models.Transaction) (credit, debit, fee money.Amount, counted bool) {
	switch {
	case txn.AccountNumber == accountNumber:
		switch txn.Status {
		case models.StatusCompleted:
			if txn.Direction == models.DirectionCredit {
				credit = txn.Amount
			} else {
				debit = txn.Amount
			}
			return credit, debit, txn.Fee, true
		case models.StatusDeclined:
			return 0, 0, txn.Fee, true
		}
	case txn.ToAccountNumber == accountNumber && txn.Status == models.StatusCompleted:
		if txn.Direction == models.DirectionCredit {
			return 0, txn.Amount, 0, true
		}
		return txn.Amount, 0, 0, true
	}
	return 0, 0, 0, false
}

// Summarize computes net = opening + credits - debits - fees.
func Summarize(accountNumber string, opening money.Amount, txns []models.Transaction) Summary {
	summary := Summary{OpeningBalance: opening}
	for i := range txns {
		credit, debit, fee, counted := effect(accountNumber, &txns[i])
		if !counted {
			continue
		}
		summary.TotalCredits += credit
		summary.TotalDebits += debit
		summary.TotalFees += fee
		summary.Counted++
	}
	summary.NetBalance = opening + summary.TotalCredits - summary.TotalDebits - summary.TotalFees
	return summary
}

// OpeningBalance unwinds the current balance over every row since the start.
func OpeningBalance(accountNumber string, current money.Amount, since []models.Transaction) money.Amount {
	moved := Summarize(accountNumber, 0, since).NetBalance
	return current - moved
}

type StatementService struct {
	uow      *unitOfWork
	snapshot *unitOfWork
	location string
	now      func() time.Time
}

func NewStatementService(store Store, cfg *config.LedgerConfig) *StatementService {
	uow := newUnitOfWork(store, cfg.MaxRetries, nil)
	// the balance and the rows it is unwound over must share a snapshot
	snapshot := uow.withOptions(&sql.TxOptions{Isolation: sql.LevelRepeatableRead})
	return &StatementService{
		uow:      uow,
		snapshot: snapshot,
		location: cfg.StatementLocation,
		now:      time.Now,
	}
}

// BuildStatement snapshots the account's rows in [start, end] together with
// the balances derived from them and persists the result.
func (s *StatementService) BuildStatement(ctx context.Context, accountNumber string, start, end time.Time) (*models.Statement, error) {
	if accountNumber == "" {
		return nil, errors.NewValidationError("accountNumber", "is required")
	}
	if err := validateRange(start, end); err != nil {
		return nil, err
	}

	statement, err := run(ctx, s.snapshot, "statement", accountNumber, func(tx LedgerTx) (*models.Statement, error) {
		account, err := tx.AccountByNumber(ctx, accountNumber)
		if err != nil {
			return nil, err
		}
		since, err := tx.TransactionsSince(ctx, accountNumber, start)
		if err != nil {
			return nil, err
		}

		window := within(since, start, end)
		opening := OpeningBalance(accountNumber, account.Balance, since)
		summary := Summarize(accountNumber, opening, window)

		statement := &models.Statement{
			ID:               uuid.New().String(),
			AccountNumber:    account.AccountNumber,
			UserID:           account.UserID,
			Location:         s.location,
			StartDate:        start,
			EndDate:          end,
			OpeningBalance:   summary.OpeningBalance,
			ClosingBalance:   summary.NetBalance,
			TotalCredits:     summary.TotalCredits,
			TotalDebits:      summary.TotalDebits,
			TotalFees:        summary.TotalFees,
			TransactionCount: len(window),
			Transactions:     models.TransactionList(window),
			CreatedAt:        s.now().UTC(),
		}
		if err := tx.InsertStatement(ctx, statement); err != nil {
			return nil, err
		}
		return statement, nil
	})
	if err != nil {
		return nil, err
	}

	log.Printf("[STATEMENTS] Issued statement %s for %s: opening=%s closing=%s rows=%d",
		statement.ID, accountNumber, statement.OpeningBalance, statement.ClosingBalance, statement.TransactionCount)
	return statement, nil
}

func (s *StatementService) GetStatement(ctx context.Context, statementID string) (*models.Statement, error) {
	if statementID == "" {
		return nil, errors.NewValidationError("statementId", "is required")
	}
	return read(ctx, s.uow, nil, func(tx LedgerTx) (*models.Statement, error) {
		return tx.StatementByID(ctx, statementID)
	})
}

func (s *StatementService) ListStatements(ctx context.Context, accountNumber string) ([]models.Statement, error) {
	if accountNumber == "" {
		return nil, errors.NewValidationError("accountNumber", "is required")
	}
	return read(ctx, s.uow, nil, func(tx LedgerTx) ([]models.Statement, error) {
		return tx.StatementsByAccount(ctx, accountNumber)
	})
}

// BuildAuditReport totals the account's own completed rows in the window;
// net is credits minus debits.
func (s *StatementService) BuildAuditReport(ctx context.Context, req AuditReportRequest) (*models.AuditReport, error) {
	if req.AccountID == "" {
		return nil, errors.NewValidationError("accountId", "is required")
	}
	if err := validateRange(req.StartDate, req.EndDate); err != nil {
		return nil, err
	}

	report, err := run(ctx, s.snapshot, "audit-report", req.AccountID, func(tx LedgerTx) (*models.AuditReport, error) {
		account, err := tx.AccountByID(ctx, req.AccountID)
		if err != nil {
			return nil, err
		}
		since, err := tx.TransactionsSince(ctx, account.AccountNumber, req.StartDate)
		if err != nil {
			return nil, err
		}

		report := &models.AuditReport{
			ID:                uuid.New().String(),
			AccountID:         account.ID,
			GeneratedByUserID: req.GeneratedBy,
			StartDate:         req.StartDate,
			EndDate:           req.EndDate,
			Status:            models.ReportGenerated,
			CreatedAt:         s.now().UTC(),
		}
		for _, txn := range within(since, req.StartDate, req.EndDate) {
			if txn.AccountID != account.ID {
				continue
			}
			report.TotalTransactions++
			if txn.Status != models.StatusCompleted {
				continue
			}
			if txn.Direction == models.DirectionCredit {
				report.TotalCredits += txn.Amount
			} else {
				report.TotalDebits += txn.Amount
			}
		}
		report.NetBalance = report.TotalCredits - report.TotalDebits

		if err := tx.InsertAuditReport(ctx, report); err != nil {
			return nil, err
		}
		return report, nil
	})
	if err != nil {
		return nil, err
	}

	log.Printf("[REPORTS] Audit report %s for account %s: credits=%s debits=%s net=%s",
		report.ID, report.AccountID, report.TotalCredits, report.TotalDebits, report.NetBalance)
	return report, nil
}

// MarkAuditReportReviewed moves a generated report to reviewed. A report is
// reviewed once.
func (s *StatementService) MarkAuditReportReviewed(ctx context.Context, reportID string) (*models.AuditReport, error) {
	if reportID == "" {
		return nil, errors.NewValidationError("reportId", "is required")
	}

	report, err := run(ctx, s.uow, "audit-review", reportID, func(tx LedgerTx) (*models.AuditReport, error) {
		report, err := tx.LockAuditReport(ctx, reportID)
		if err != nil {
			return nil, err
		}
		if report.Status != models.ReportGenerated {
			return nil, errors.ErrReportReviewed
		}

		at := s.now().UTC()
		if err := tx.MarkAuditReportReviewed(ctx, reportID, at); err != nil {
			return nil, err
		}
		report.Status = models.ReportReviewed
		report.ReviewedAt = &at
		return report, nil
	})
	if err != nil {
		return nil, err
	}

	log.Printf("[REPORTS] Audit report %s reviewed", report.ID)
	return report, nil
}

func within(txns []models.Transaction, start, end time.Time) []models.Transaction {
	out := make([]models.Transaction, 0, len(txns))
	for _, txn := range txns {
		if txn.CreatedAt.Before(start) || txn.CreatedAt.After(end) {
			continue
		}
		out = append(out, txn)
	}
	return out
}

func validateRange(start, end time.Time) error {
	if start.IsZero() {
		return errors.NewValidationError("startDate", "is required")
	}
	if end.IsZero() {
		return errors.NewValidationError("endDate", "is required")
	}
	if end.Before(start) {
		return errors.NewValidationError("endDate", "must not be before startDate")
	}
	return nil
}
