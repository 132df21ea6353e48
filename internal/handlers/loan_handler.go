package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/cbcbank/ledger/internal/models"
	"github.com/cbcbank/ledger/internal/money"
	"github.com/cbcbank/ledger/internal/services"
)

type Loans interface {
	ApplyForLoan(ctx context.Context, application services.LoanApplication) (*models.Loan, error)
	ApproveLoan(ctx context.Context, loanID string) (*models.Loan, error)
	RejectLoan(ctx context.Context, loanID string) (*models.Loan, error)
	GetLoan(ctx context.Context, loanID string) (*models.Loan, error)
	LoanBalance(ctx context.Context, loanID string) (*services.LoanBalance, error)
	ApplyLoanRepayment(ctx context.Context, req services.LoanRepaymentRequest) (*services.RepaymentResult, error)
}

type LoanHandler struct {
	loans     Loans
	validator *services.ValidationHelper
}

func NewLoanHandler(loans Loans) *LoanHandler {
	return &LoanHandler{
		loans:     loans,
		validator: services.NewValidationHelper(),
	}
}

type RepaymentRequest struct {
	LoanID        string          `json:"loanId"`
	AccountNumber string          `json:"accountNumber" validate:"omitempty,len=10,numeric"`
	Amount        decimal.Decimal `json:"amount"`
}

type MonthlyPaymentRequest struct {
	Principal    decimal.Decimal `json:"principal"`
	InterestRate float64         `json:"interestRate" validate:"gte=0,lte=100"`
	TermMonths   int             `json:"loanTerm" validate:"required,gt=0,lte=600"`
}

// Apply submits a loan application
// @Summary Apply for a loan
// @Tags loans
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body services.LoanApplication true "Loan application"
// @Success 201 {object} models.Loan
// @Failure 400 {object} services.ErrorResponse
// @Router /loans [post]
func (h *LoanHandler) Apply(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req services.LoanApplication
	if !decodeJSON(w, r, h.validator, &req) {
		return
	}
	req.UserID = userID

	loan, err := h.loans.ApplyForLoan(r.Context(), req)
	if err != nil {
		services.SendServiceError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusCreated, loan)
}

// Approve activates a loan under review
// @Summary Approve loan
// @Tags loans
// @Produce json
// @Security BearerAuth
// @Param loanId path string true "Loan ID"
// @Success 200 {object} models.Loan
// @Failure 400 {object} services.ErrorResponse
// @Failure 404 {object} services.ErrorResponse
// @Router /loans/{loanId}/approve [put]
func (h *LoanHandler) Approve(w http.ResponseWriter, r *http.Request) {
	loan, err := h.loans.ApproveLoan(r.Context(), chi.URLParam(r, "loanId"))
	if err != nil {
		services.SendServiceError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, loan)
}

// Reject declines a loan under review
// @Summary Reject loan
// @Tags loans
// @Produce json
// @Security BearerAuth
// @Param loanId path string true "Loan ID"
// @Success 200 {object} models.Loan
// @Failure 400 {object} services.ErrorResponse
// @Failure 404 {object} services.ErrorResponse
// @Router /loans/{loanId}/reject [put]
func (h *LoanHandler) Reject(w http.ResponseWriter, r *http.Request) {
	loan, err := h.loans.RejectLoan(r.Context(), chi.URLParam(r, "loanId"))
	if err != nil {
		services.SendServiceError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, loan)
}

// Get returns a loan with its payments
// @Summary Get loan
// @Tags loans
// @Produce json
// @Security BearerAuth
// @Param loanId path string true "Loan ID"
// @Success 200 {object} models.Loan
// @Failure 404 {object} services.ErrorResponse
// @Router /loans/{loanId} [get]
func (h *LoanHandler) Get(w http.ResponseWriter, r *http.Request) {
	loan, err := h.loans.GetLoan(r.Context(), chi.URLParam(r, "loanId"))
	if err != nil {
		services.SendServiceError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, loan)
}

// Balance returns the outstanding balance of a loan
// @Summary Loan balance
// @Tags loans
// @Produce json
// @Security BearerAuth
// @Param loanId path string true "Loan ID"
// @Success 200 {object} services.LoanBalance
// @Failure 404 {object} services.ErrorResponse
// @Router /loans/{loanId}/balance [get]
func (h *LoanHandler) Balance(w http.ResponseWriter, r *http.Request) {
	balance, err := h.loans.LoanBalance(r.Context(), chi.URLParam(r, "loanId"))
	if err != nil {
		services.SendServiceError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, balance)
}

// Repay applies a repayment to the caller's loan
// @Summary Repay loan
// @Description Reduce the loan and debit the paying account by the payment plus charge in one unit of work
// @Tags loans
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body RepaymentRequest true "Repayment request"
// @Success 201 {object} services.RepaymentResult
// @Failure 400 {object} services.ErrorResponse
// @Failure 404 {object} services.ErrorResponse
// @Failure 422 {object} services.ErrorResponse "Rejected and recorded"
// @Router /loans/repay [post]
func (h *LoanHandler) Repay(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req RepaymentRequest
	if !decodeJSON(w, r, h.validator, &req) {
		return
	}

	result, err := h.loans.ApplyLoanRepayment(r.Context(), services.LoanRepaymentRequest{
		UserID:        userID,
		LoanID:        req.LoanID,
		AccountNumber: req.AccountNumber,
		Amount:        req.Amount,
	})
	if err != nil {
		var recorded any
		if result != nil {
			recorded = result.Transaction
		}
		services.SendServiceError(w, err, recorded)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

// MonthlyPayment quotes the amortized monthly payment
// @Summary Compute monthly payment
// @Tags loans
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body MonthlyPaymentRequest true "Loan terms"
// @Success 200 {object} object{monthlyPayment=int64,display=string}
// @Failure 400 {object} services.ErrorResponse
// @Router /loans/monthly-payment [post]
func (h *LoanHandler) MonthlyPayment(w http.ResponseWriter, r *http.Request) {
	var req MonthlyPaymentRequest
	if !decodeJSON(w, r, h.validator, &req) {
		return
	}

	principal, err := money.FromDecimal(req.Principal)
	if err != nil || !principal.IsPositive() {
		services.SendErrorResponse(w, "principal must be greater than zero", http.StatusBadRequest, nil)
		return
	}

	payment := services.ComputeMonthlyPayment(principal, req.InterestRate, req.TermMonths)
	writeJSON(w, http.StatusOK, map[string]any{
		"monthlyPayment": payment,
		"display":        payment.String(),
	})
}
