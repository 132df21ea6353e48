package services

import (
	"context"
	"log"
	"math"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/cbcbank/ledger/internal/audit"
	"github.com/cbcbank/ledger/internal/config"
	"github.com/cbcbank/ledger/internal/errors"
	"github.com/cbcbank/ledger/internal/models"
	"github.com/cbcbank/ledger/internal/money"
)

type LoanApplication struct {
	UserID       string          `json:"userId"`
	LoanType     models.LoanType `json:"loanType" validate:"required,oneof=personal mortgage auto"`
	Amount       decimal.Decimal `json:"loanAmount"`
	InterestRate float64         `json:"interestRate" validate:"gte=0,lte=100"`
	TermMonths   int             `json:"loanTerm" validate:"required,gt=0,lte=600"`
}

type LoanRepaymentRequest struct {
	UserID string
	// LoanID and AccountNumber are optional. Without them the user's active
	// loan and first non-loan account are used.
	LoanID        string
	AccountNumber string
	Amount        decimal.Decimal
}

type RepaymentResult struct {
	Loan        *models.Loan        `json:"loan"`
	Transaction *models.Transaction `json:"transaction"`
}

type LoanBalance struct {
	LoanID           string            `json:"loanId"`
	Status           models.LoanStatus `json:"status"`
	MonthlyPayment   money.Amount      `json:"monthlyPayment"`
	RemainingBalance money.Amount      `json:"remainingBalance"`
	TotalPaid        money.Amount      `json:"totalPaid"`
	PaymentsMade     int               `json:"paymentsMade"`
}

type LoanService struct {
	uow     *unitOfWork
	fees    *money.FeeCalculator
	limiter *RateLimiter
	events  EventPublisher
	audit   *audit.Logger
	now     func() time.Time
}

func NewLoanService(store Store, cfg *config.LedgerConfig, events EventPublisher, auditLogger *audit.Logger) *LoanService {
	if auditLogger == nil {
		auditLogger = audit.NewLogger()
	}
	return &LoanService{
		uow:     newUnitOfWork(store, cfg.MaxRetries, auditLogger),
		fees:    money.NewFeeCalculator(cfg.FeeRate),
		limiter: NewRateLimiter(cfg.RateLimitWindow),
		events:  events,
		audit:   auditLogger,
		now:     time.Now,
	}
}

// ComputeMonthlyPayment applies the standard amortization formula and rounds
// half-up to minor units only on return. A zero rate spreads principal evenly.
func ComputeMonthlyPayment(principal money.Amount, annualRatePercent float64, termMonths int) money.Amount {
	if termMonths <= 0 || principal <= 0 {
		return 0
	}
	if annualRatePercent <= 0 {
		return money.Amount(decimal.NewFromInt(int64(principal)).
			Div(decimal.NewFromInt(int64(termMonths))).Round(0).IntPart())
	}

	p := float64(principal)
	r := annualRatePercent / 100 / 12
	growth := math.Pow(1+r, float64(termMonths))
	payment := p * r * growth / (growth - 1)

	return money.Amount(decimal.NewFromFloat(payment).Round(0).IntPart())
}

// ApplyRepayment returns the loan with the payment appended. The input loan
// is not modified.
func ApplyRepayment(loan models.Loan, amount money.Amount, at time.Time) (models.Loan, models.LoanPayment, error) {
	if loan.Status != models.LoanStatusActive {
		return loan, models.LoanPayment{}, errors.ErrLoanNotActive
	}
	if !amount.IsPositive() {
		return loan, models.LoanPayment{}, errors.ErrInvalidAmount
	}
	if amount > loan.RemainingBalance {
		return loan, models.LoanPayment{}, errors.ErrOverpayment
	}

	payment := models.LoanPayment{
		LoanID:   loan.ID,
		Sequence: len(loan.Payments) + 1,
		Amount:   amount,
		DatePaid: at,
	}

	loan.Payments = append(slices.Clone(loan.Payments), payment)
	loan.RemainingBalance -= amount
	if loan.RemainingBalance <= 0 {
		loan.RemainingBalance = 0
		loan.Status = models.LoanStatusPaid
	}
	loan.UpdatedAt = at

	return loan, payment, nil
}

func (s *LoanService) ApplyForLoan(ctx context.Context, application LoanApplication) (*models.Loan, error) {
	if application.UserID == "" {
		return nil, errors.NewValidationError("userId", "is required")
	}
	if application.TermMonths <= 0 {
		return nil, errors.NewValidationError("loanTerm", "must be greater than zero")
	}
	if application.InterestRate < 0 {
		return nil, errors.NewValidationError("interestRate", "must not be negative")
	}
	principal, err := parseAmount(application.Amount)
	if err != nil {
		return nil, err
	}

	loanType := application.LoanType
	if loanType == "" {
		loanType = models.LoanTypePersonal
	}

	now := s.now().UTC()
	loan := &models.Loan{
		ID:                uuid.New().String(),
		UserID:            application.UserID,
		LoanType:          loanType,
		LoanAmount:        principal,
		InterestRate:      application.InterestRate,
		LoanTerm:          application.TermMonths,
		MonthlyPayment:    ComputeMonthlyPayment(principal, application.InterestRate, application.TermMonths),
		Status:            models.LoanStatusReview,
		ApplicationStatus: models.ApplicationPending,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	_, err = run(ctx, s.uow, "loan-apply", application.UserID, func(tx LedgerTx) (*models.Loan, error) {
		return loan, tx.InsertLoan(ctx, loan)
	})
	if err != nil {
		return nil, err
	}

	log.Printf("[LOANS] Loan %s of %s submitted for review by user %s", loan.ID, loan.LoanAmount, loan.UserID)
	return loan, nil
}

// ApproveLoan activates a loan under review and sets total and remaining
// balance to the principal.
func (s *LoanService) ApproveLoan(ctx context.Context, loanID string) (*models.Loan, error) {
	return s.decide(ctx, "loan-approve", loanID, func(loan *models.Loan) {
		loan.Status = models.LoanStatusActive
		loan.ApplicationStatus = models.ApplicationAccepted
		loan.TotalAmount = loan.LoanAmount
		loan.RemainingBalance = loan.LoanAmount
		loan.MonthlyPayment = ComputeMonthlyPayment(loan.LoanAmount, loan.InterestRate, loan.LoanTerm)
	})
}

func (s *LoanService) RejectLoan(ctx context.Context, loanID string) (*models.Loan, error) {
	return s.decide(ctx, "loan-reject", loanID, func(loan *models.Loan) {
		loan.Status = models.LoanStatusDefaulted
		loan.ApplicationStatus = models.ApplicationRejected
	})
}

func (s *LoanService) decide(ctx context.Context, operation, loanID string, apply func(loan *models.Loan)) (*models.Loan, error) {
	if loanID == "" {
		return nil, errors.NewValidationError("loanId", "is required")
	}

	loan, err := run(ctx, s.uow, operation, loanID, func(tx LedgerTx) (*models.Loan, error) {
		loan, err := tx.LockLoan(ctx, loanID)
		if err != nil {
			return nil, err
		}
		if loan.Status != models.LoanStatusReview || loan.ApplicationStatus != models.ApplicationPending {
			return nil, errors.NewValidationError("loanId", "loan is not under review")
		}

		apply(loan)
		loan.UpdatedAt = s.now().UTC()
		if err := tx.UpdateLoan(ctx, loan); err != nil {
			return nil, err
		}
		return loan, nil
	})
	if err != nil {
		return nil, err
	}

	log.Printf("[LOANS] %s %s: status=%s application=%s", operation, loan.ID, loan.Status, loan.ApplicationStatus)
	return loan, nil
}

// ApplyLoanRepayment reduces the loan and debits the paying account by the
// payment plus its fee in one unit of work. The payment counts toward the
// weekly debit limit. Insufficient funds or an exceeded limit records a
// failed row and leaves the loan untouched.
func (s *LoanService) ApplyLoanRepayment(ctx context.Context, req LoanRepaymentRequest) (*RepaymentResult, error) {
	if req.UserID == "" {
		return nil, errors.NewValidationError("userId", "is required")
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		return nil, err
	}

	result, err := run(ctx, s.uow, "loan-repayment", req.UserID, func(tx LedgerTx) (*RepaymentResult, error) {
		var loan *models.Loan
		var err error
		if req.LoanID != "" {
			loan, err = tx.LockLoan(ctx, req.LoanID)
		} else {
			loan, err = tx.LockLoanForUser(ctx, req.UserID)
		}
		if err != nil {
			return nil, err
		}
		if loan.UserID != req.UserID {
			return nil, errors.ErrLoanNotFound
		}

		payer, err := s.payingAccount(ctx, tx, req)
		if err != nil {
			return nil, err
		}

		now := s.now().UTC()
		updated, payment, err := ApplyRepayment(*loan, amount, now)
		if err != nil {
			return nil, err
		}

		fee := s.fees.Fee(amount)
		debit := &models.Transaction{
			ID:            uuid.New().String(),
			AccountID:     payer.ID,
			AccountNumber: payer.AccountNumber,
			UserID:        payer.UserID,
			Amount:        amount,
			Fee:           fee,
			Direction:     models.DirectionDebit,
			Kind:          models.KindLoanPayment,
			Status:        models.StatusPending,
			Reference:     "loan:" + loan.ID,
			Description:   "loan repayment",
			Metadata:      models.Metadata{"loanId": loan.ID, "sequence": payment.Sequence},
			CreatedAt:     now,
			UpdatedAt:     now,
		}

		reject := func(kind error, reason string) (*RepaymentResult, error) {
			debit.Status = models.StatusFailed
			debit.FailureReason = reason
			debit.BalanceAfter = payer.Balance
			if err := tx.InsertTransaction(ctx, debit); err != nil {
				return nil, err
			}
			return &RepaymentResult{Loan: loan, Transaction: debit}, errors.NewRejection(kind, reason)
		}

		if payer.Balance < amount+fee {
			return reject(errors.ErrInsufficientFunds, shortfall(payer.Balance, amount+fee))
		}

		decision, err := s.limiter.Check(ctx, tx, payer, amount, now)
		if err != nil {
			return nil, err
		}
		if !decision.Approved {
			return reject(errors.ErrLimitExceeded, decision.Reason)
		}

		balance := payer.Balance - amount - fee
		if err := tx.UpdateAccountBalance(ctx, payer, balance); err != nil {
			return nil, err
		}

		debit.Status = models.StatusCompleted
		debit.BalanceAfter = balance
		if err := tx.InsertTransaction(ctx, debit); err != nil {
			return nil, err
		}

		payment.TransactionID = debit.ID
		updated.Payments[len(updated.Payments)-1] = payment
		if err := tx.InsertLoanPayment(ctx, &payment); err != nil {
			return nil, err
		}
		if err := tx.UpdateLoan(ctx, &updated); err != nil {
			return nil, err
		}

		return &RepaymentResult{Loan: &updated, Transaction: debit}, nil
	})
	if err != nil {
		if result != nil {
			s.audit.LogRejection("loan-repayment", result.Transaction.AccountID, int64(amount), err.Error())
			publish(ctx, s.events, result.Transaction)
		} else if !errors.IsInvalidInput(err) && !errors.IsNotFound(err) {
			s.audit.LogError("loan-repayment", req.UserID, err)
		}
		return result, err
	}

	s.audit.LogTransaction("loan-repayment", result.Transaction.ID, result.Transaction.AccountID, int64(amount), string(result.Transaction.Status))
	publish(ctx, s.events, result.Transaction)
	if result.Loan.Status == models.LoanStatusPaid {
		log.Printf("[LOANS] Loan %s fully repaid", result.Loan.ID)
	}
	return result, nil
}

func (s *LoanService) payingAccount(ctx context.Context, tx LedgerTx, req LoanRepaymentRequest) (*models.Account, error) {
	var account *models.Account
	var err error
	if req.AccountNumber != "" {
		account, err = tx.AccountByNumber(ctx, req.AccountNumber)
	} else {
		account, err = tx.PrimaryAccountForUser(ctx, req.UserID)
	}
	if err != nil {
		return nil, err
	}
	if account.UserID != req.UserID {
		return nil, errors.NewValidationError("accountNumber", "account does not belong to user")
	}

	accounts, err := tx.LockAccounts(ctx, account.ID)
	if err != nil {
		return nil, err
	}
	return accounts[account.ID], nil
}

func (s *LoanService) GetLoan(ctx context.Context, loanID string) (*models.Loan, error) {
	if loanID == "" {
		return nil, errors.NewValidationError("loanId", "is required")
	}
	return read(ctx, s.uow, nil, func(tx LedgerTx) (*models.Loan, error) {
		return tx.LoanByID(ctx, loanID)
	})
}

func (s *LoanService) LoanBalance(ctx context.Context, loanID string) (*LoanBalance, error) {
	loan, err := s.GetLoan(ctx, loanID)
	if err != nil {
		return nil, err
	}
	return &LoanBalance{
		LoanID:           loan.ID,
		Status:           loan.Status,
		MonthlyPayment:   loan.MonthlyPayment,
		RemainingBalance: loan.RemainingBalance,
		TotalPaid:        loan.TotalPaid(),
		PaymentsMade:     len(loan.Payments),
	}, nil
}
