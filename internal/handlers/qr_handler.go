package handlers

import (
	"context"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/cbcbank/ledger/internal/errors"
	"github.com/cbcbank/ledger/internal/money"
	"github.com/cbcbank/ledger/internal/services"
)

type QRCodes interface {
	GenerateQRCode(ctx context.Context, userID, accountNumber string, amount money.Amount) (string, string, error)
	ProcessQRCode(ctx context.Context, qrData string) (*services.TransferRequest, error)
}

type QRHandler struct {
	service   QRCodes
	ledger    Ledger
	validator *services.ValidationHelper
}

func NewQRHandler(service QRCodes, ledger Ledger) *QRHandler {
	return &QRHandler{
		service:   service,
		ledger:    ledger,
		validator: services.NewValidationHelper(),
	}
}

type GenerateQRRequest struct {
	AccountNumber string          `json:"accountNumber" validate:"required,len=10,numeric"`
	Amount        decimal.Decimal `json:"amount"`
}

type ProcessQRRequest struct {
	QRData    string `json:"qrData" validate:"required"`
	AccountID string `json:"accountId" validate:"required"`
}

// GenerateQR generates a pay-to-account QR code
// @Summary Generate QR Code
// @Description Generate a single-use QR code asking the scanner to transfer an amount into the given account
// @Tags QR
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body GenerateQRRequest true "QR generation request"
// @Success 200 {object} object{qrCode=string,qrImage=string}
// @Failure 400 {object} services.ErrorResponse
// @Failure 401 {object} services.ErrorResponse
// @Router /qr/generate [post]
func (h *QRHandler) GenerateQR(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req GenerateQRRequest
	if !decodeJSON(w, r, h.validator, &req) {
		return
	}

	amount, err := money.FromDecimal(req.Amount)
	if err != nil {
		services.SendServiceError(w, errors.ErrInvalidAmount, nil)
		return
	}

	qrCode, qrImage, err := h.service.GenerateQRCode(r.Context(), userID, req.AccountNumber, amount)
	if err != nil {
		services.SendServiceError(w, err, nil)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"qrCode":  qrCode,
		"qrImage": qrImage,
	})
}

// ProcessQR pays a scanned QR code
// @Summary Process QR Code
// @Description Redeem a scanned QR code by transferring its amount from the payer's account
// @Tags QR
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body ProcessQRRequest true "QR processing request"
// @Success 201 {object} models.Transaction
// @Failure 400 {object} services.ErrorResponse
// @Failure 422 {object} services.ErrorResponse "Rejected and recorded"
// @Router /qr/process [post]
func (h *QRHandler) ProcessQR(w http.ResponseWriter, r *http.Request) {
	var req ProcessQRRequest
	if !decodeJSON(w, r, h.validator, &req) {
		return
	}

	request, err := h.service.ProcessQRCode(r.Context(), req.QRData)
	if err != nil {
		services.SendServiceError(w, err, nil)
		return
	}

	txn, err := h.ledger.Transfer(r.Context(), req.AccountID, request.AccountNumber, request.Amount.Decimal(),
		request.Reference(), "QR payment")
	if err != nil {
		services.SendServiceError(w, err, txn)
		return
	}
	writeJSON(w, http.StatusCreated, txn)
}
