package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/cbcbank/ledger/internal/models"
	"github.com/cbcbank/ledger/internal/services"
)

type Ledger interface {
	Deposit(ctx context.Context, accountID string, amount decimal.Decimal, reference, description string) (*models.Transaction, error)
	Withdraw(ctx context.Context, accountID string, amount decimal.Decimal, reference, description string) (*models.Transaction, error)
	Transfer(ctx context.Context, accountID, toAccountNumber string, amount decimal.Decimal, reference, description string) (*models.Transaction, error)
	ReverseTransaction(ctx context.Context, transactionID string) (*models.Transaction, error)
	GetTransaction(ctx context.Context, transactionID string) (*models.Transaction, error)
}

type MessageExporter interface {
	Export(txn *models.Transaction) (*services.ISO20022Message, error)
}

type LedgerHandler struct {
	ledger    Ledger
	iso       MessageExporter
	validator *services.ValidationHelper
}

func NewLedgerHandler(ledger Ledger, iso MessageExporter) *LedgerHandler {
	return &LedgerHandler{
		ledger:    ledger,
		iso:       iso,
		validator: services.NewValidationHelper(),
	}
}

// MovementRequest is the body for deposits and withdrawals. Amount is a
// major-unit decimal such as "125.50".
type MovementRequest struct {
	AccountID   string          `json:"accountId" validate:"required"`
	Amount      decimal.Decimal `json:"amount"`
	Reference   string          `json:"reference" validate:"max=64"`
	Description string          `json:"description" validate:"max=255"`
}

type TransferRequest struct {
	AccountID       string          `json:"accountId" validate:"required"`
	ToAccountNumber string          `json:"toAccountNumber" validate:"required,len=10,numeric"`
	Amount          decimal.Decimal `json:"amount"`
	Reference       string          `json:"reference" validate:"max=64"`
	Description     string          `json:"description" validate:"max=255"`
}

// Deposit credits an account
// @Summary Deposit funds
// @Description Credit an account with amount less the transaction charge. Replaying a reference returns the original deposit.
// @Tags transactions
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body MovementRequest true "Deposit request"
// @Success 201 {object} models.Transaction
// @Failure 400 {object} services.ErrorResponse
// @Failure 404 {object} services.ErrorResponse
// @Router /transactions/deposit [post]
func (h *LedgerHandler) Deposit(w http.ResponseWriter, r *http.Request) {
	var req MovementRequest
	if !decodeJSON(w, r, h.validator, &req) {
		return
	}

	txn, err := h.ledger.Deposit(r.Context(), req.AccountID, req.Amount, req.Reference, req.Description)
	if err != nil {
		services.SendServiceError(w, err, txn)
		return
	}
	writeJSON(w, http.StatusCreated, txn)
}

// Withdraw debits an account
// @Summary Withdraw funds
// @Description Debit amount plus the transaction charge, subject to the weekly limit
// @Tags transactions
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body MovementRequest true "Withdrawal request"
// @Success 201 {object} models.Transaction
// @Failure 400 {object} services.ErrorResponse
// @Failure 422 {object} services.ErrorResponse "Rejected and recorded"
// @Router /transactions/withdraw [post]
func (h *LedgerHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	var req MovementRequest
	if !decodeJSON(w, r, h.validator, &req) {
		return
	}

	txn, err := h.ledger.Withdraw(r.Context(), req.AccountID, req.Amount, req.Reference, req.Description)
	if err != nil {
		services.SendServiceError(w, err, txn)
		return
	}
	writeJSON(w, http.StatusCreated, txn)
}

// Transfer moves funds between accounts
// @Summary Transfer funds
// @Description Debit the source by amount plus charge and credit the destination with the full amount
// @Tags transactions
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body TransferRequest true "Transfer request"
// @Success 201 {object} models.Transaction
// @Failure 400 {object} services.ErrorResponse
// @Failure 404 {object} services.ErrorResponse
// @Failure 422 {object} services.ErrorResponse "Rejected and recorded"
// @Router /transactions/transfer [post]
func (h *LedgerHandler) Transfer(w http.ResponseWriter, r *http.Request) {
	var req TransferRequest
	if !decodeJSON(w, r, h.validator, &req) {
		return
	}

	txn, err := h.ledger.Transfer(r.Context(), req.AccountID, req.ToAccountNumber, req.Amount, req.Reference, req.Description)
	if err != nil {
		services.SendServiceError(w, err, txn)
		return
	}
	writeJSON(w, http.StatusCreated, txn)
}

// Reverse reverses a withdrawal or transfer
// @Summary Reverse transaction
// @Description Reverse a completed withdrawal or transfer within the reversal window. Declined reversals are charged.
// @Tags transactions
// @Produce json
// @Security BearerAuth
// @Param txId path string true "Transaction ID"
// @Success 201 {object} models.Transaction
// @Failure 404 {object} services.ErrorResponse
// @Failure 409 {object} services.ErrorResponse "Already reversed"
// @Failure 422 {object} services.ErrorResponse "Declined and recorded"
// @Router /transactions/{txId}/reverse [post]
func (h *LedgerHandler) Reverse(w http.ResponseWriter, r *http.Request) {
	txn, err := h.ledger.ReverseTransaction(r.Context(), chi.URLParam(r, "txId"))
	if err != nil {
		services.SendServiceError(w, err, txn)
		return
	}
	writeJSON(w, http.StatusCreated, txn)
}

// GetTransaction returns a ledger row
// @Summary Get transaction
// @Tags transactions
// @Produce json
// @Security BearerAuth
// @Param txId path string true "Transaction ID"
// @Success 200 {object} models.Transaction
// @Failure 404 {object} services.ErrorResponse
// @Router /transactions/{txId} [get]
func (h *LedgerHandler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	txn, err := h.ledger.GetTransaction(r.Context(), chi.URLParam(r, "txId"))
	if err != nil {
		services.SendServiceError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, txn)
}

// ExportISO20022 renders a transfer or reversal as an ISO 20022 message
// @Summary Export transaction as ISO 20022
// @Description Completed transfers export as pacs.008, reversals as pacs.002
// @Tags iso20022
// @Produce json
// @Security BearerAuth
// @Param txId path string true "Transaction ID"
// @Success 200 {object} services.ISO20022Message
// @Failure 400 {object} services.ErrorResponse
// @Failure 404 {object} services.ErrorResponse
// @Router /transactions/{txId}/iso20022 [get]
func (h *LedgerHandler) ExportISO20022(w http.ResponseWriter, r *http.Request) {
	txn, err := h.ledger.GetTransaction(r.Context(), chi.URLParam(r, "txId"))
	if err != nil {
		services.SendServiceError(w, err, nil)
		return
	}

	message, err := h.iso.Export(txn)
	if err != nil {
		services.SendServiceError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, message)
}
