package models

import (
	"time"

	"github.com/cbcbank/ledger/internal/money"
)

type LoanType string

const (
	LoanTypePersonal LoanType = "personal"
	LoanTypeMortgage LoanType = "mortgage"
	LoanTypeAuto     LoanType = "auto"
)

type LoanStatus string

const (
	LoanStatusReview    LoanStatus = "review"
	LoanStatusActive    LoanStatus = "active"
	LoanStatusPaid      LoanStatus = "paid"
	LoanStatusDefaulted LoanStatus = "defaulted"
)

type ApplicationStatus string

const (
	ApplicationPending  ApplicationStatus = "pending"
	ApplicationAccepted ApplicationStatus = "accepted"
	ApplicationRejected ApplicationStatus = "rejected"
)

type Loan struct {
	ID                string            `json:"id" db:"id"`
	UserID            string            `json:"userId" db:"user_id"`
	LoanType          LoanType          `json:"loanType" db:"loan_type"`
	LoanAmount        money.Amount      `json:"loanAmount" db:"loan_amount"`
	InterestRate      float64           `json:"interestRate" db:"interest_rate"` // annual percent
	LoanTerm          int               `json:"loanTerm" db:"loan_term"`         // months
	TotalAmount       money.Amount      `json:"totalAmount" db:"total_amount"`
	RemainingBalance  money.Amount      `json:"remainingBalance" db:"remaining_balance"`
	MonthlyPayment    money.Amount      `json:"monthlyPayment" db:"monthly_payment"`
	Status            LoanStatus        `json:"status" db:"status"`
	ApplicationStatus ApplicationStatus `json:"applicationStatus" db:"application_status"`
	Payments          []LoanPayment     `json:"payments"`
	Version           int               `json:"version" db:"version"`
	CreatedAt         time.Time         `json:"createdAt" db:"created_at"`
	UpdatedAt         time.Time         `json:"updatedAt" db:"updated_at"`
}

type LoanPayment struct {
	LoanID        string       `json:"loanId" db:"loan_id"`
	Sequence      int          `json:"month" db:"sequence"`
	Amount        money.Amount `json:"paymentAmount" db:"amount"`
	TransactionID string       `json:"transactionId" db:"transaction_id"`
	DatePaid      time.Time    `json:"datePaid" db:"date_paid"`
}

// TotalPaid sums the recorded payments.
func (l *Loan) TotalPaid() money.Amount {
	var total money.Amount
	for _, p := range l.Payments {
		total += p.Amount
	}
	return total
}
