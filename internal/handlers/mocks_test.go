package handlers

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"

	"github.com/cbcbank/ledger/internal/models"
	"github.com/cbcbank/ledger/internal/money"
	"github.com/cbcbank/ledger/internal/services"
)

type MockLedger struct {
	mock.Mock
}

func (m *MockLedger) Deposit(ctx context.Context, accountID string, amount decimal.Decimal, reference, description string) (*models.Transaction, error) {
	args := m.Called(accountID, amount, reference, description)
	return transactionArg(args, 0), args.Error(1)
}

func (m *MockLedger) Withdraw(ctx context.Context, accountID string, amount decimal.Decimal, reference, description string) (*models.Transaction, error) {
	args := m.Called(accountID, amount, reference, description)
	return transactionArg(args, 0), args.Error(1)
}

func (m *MockLedger) Transfer(ctx context.Context, accountID, toAccountNumber string, amount decimal.Decimal, reference, description string) (*models.Transaction, error) {
	args := m.Called(accountID, toAccountNumber, amount, reference, description)
	return transactionArg(args, 0), args.Error(1)
}

func (m *MockLedger) ReverseTransaction(ctx context.Context, transactionID string) (*models.Transaction, error) {
	args := m.Called(transactionID)
	return transactionArg(args, 0), args.Error(1)
}

func (m *MockLedger) GetTransaction(ctx context.Context, transactionID string) (*models.Transaction, error) {
	args := m.Called(transactionID)
	return transactionArg(args, 0), args.Error(1)
}

func transactionArg(args mock.Arguments, i int) *models.Transaction {
	if args.Get(i) == nil {
		return nil
	}
	return args.Get(i).(*models.Transaction)
}

type MockExporter struct {
	mock.Mock
}

func (m *MockExporter) Export(txn *models.Transaction) (*services.ISO20022Message, error) {
	args := m.Called(txn)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.ISO20022Message), args.Error(1)
}

type MockLoans struct {
	mock.Mock
}

func (m *MockLoans) ApplyForLoan(ctx context.Context, application services.LoanApplication) (*models.Loan, error) {
	args := m.Called(application)
	return loanArg(args), args.Error(1)
}

func (m *MockLoans) ApproveLoan(ctx context.Context, loanID string) (*models.Loan, error) {
	args := m.Called(loanID)
	return loanArg(args), args.Error(1)
}

func (m *MockLoans) RejectLoan(ctx context.Context, loanID string) (*models.Loan, error) {
	args := m.Called(loanID)
	return loanArg(args), args.Error(1)
}

func (m *MockLoans) GetLoan(ctx context.Context, loanID string) (*models.Loan, error) {
	args := m.Called(loanID)
	return loanArg(args), args.Error(1)
}

func (m *MockLoans) LoanBalance(ctx context.Context, loanID string) (*services.LoanBalance, error) {
	args := m.Called(loanID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.LoanBalance), args.Error(1)
}

func (m *MockLoans) ApplyLoanRepayment(ctx context.Context, req services.LoanRepaymentRequest) (*services.RepaymentResult, error) {
	args := m.Called(req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.RepaymentResult), args.Error(1)
}

func loanArg(args mock.Arguments) *models.Loan {
	if args.Get(0) == nil {
		return nil
	}
	return args.Get(0).(*models.Loan)
}

type MockStatements struct {
	mock.Mock
}

func (m *MockStatements) BuildStatement(ctx context.Context, accountNumber string, start, end time.Time) (*models.Statement, error) {
	args := m.Called(accountNumber, start, end)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Statement), args.Error(1)
}

func (m *MockStatements) GetStatement(ctx context.Context, statementID string) (*models.Statement, error) {
	args := m.Called(statementID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Statement), args.Error(1)
}

func (m *MockStatements) ListStatements(ctx context.Context, accountNumber string) ([]models.Statement, error) {
	args := m.Called(accountNumber)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Statement), args.Error(1)
}

func (m *MockStatements) BuildAuditReport(ctx context.Context, req services.AuditReportRequest) (*models.AuditReport, error) {
	args := m.Called(req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.AuditReport), args.Error(1)
}

func (m *MockStatements) MarkAuditReportReviewed(ctx context.Context, reportID string) (*models.AuditReport, error) {
	args := m.Called(reportID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.AuditReport), args.Error(1)
}

type MockQRCodes struct {
	mock.Mock
}

func (m *MockQRCodes) GenerateQRCode(ctx context.Context, userID, accountNumber string, amount money.Amount) (string, string, error) {
	args := m.Called(userID, accountNumber, amount)
	return args.String(0), args.String(1), args.Error(2)
}

func (m *MockQRCodes) ProcessQRCode(ctx context.Context, qrData string) (*services.TransferRequest, error) {
	args := m.Called(qrData)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.TransferRequest), args.Error(1)
}
