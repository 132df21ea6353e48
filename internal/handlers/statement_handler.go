package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/cbcbank/ledger/internal/models"
	"github.com/cbcbank/ledger/internal/services"
)

type Statements interface {
	BuildStatement(ctx context.Context, accountNumber string, start, end time.Time) (*models.Statement, error)
	GetStatement(ctx context.Context, statementID string) (*models.Statement, error)
	ListStatements(ctx context.Context, accountNumber string) ([]models.Statement, error)
	BuildAuditReport(ctx context.Context, req services.AuditReportRequest) (*models.AuditReport, error)
	MarkAuditReportReviewed(ctx context.Context, reportID string) (*models.AuditReport, error)
}

type StatementHandler struct {
	statements Statements
	validator  *services.ValidationHelper
}

func NewStatementHandler(statements Statements) *StatementHandler {
	return &StatementHandler{
		statements: statements,
		validator:  services.NewValidationHelper(),
	}
}

type StatementRequest struct {
	AccountNumber string    `json:"accountNumber" validate:"required,len=10,numeric"`
	StartDate     time.Time `json:"startDate" validate:"required"`
	EndDate       time.Time `json:"endDate" validate:"required,gtefield=StartDate"`
}

// Create issues a statement
// @Summary Generate statement
// @Description Snapshot an account's transactions and balances for a date range
// @Tags statements
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body StatementRequest true "Statement request"
// @Success 201 {object} models.Statement
// @Failure 400 {object} services.ErrorResponse
// @Failure 404 {object} services.ErrorResponse
// @Router /statements [post]
func (h *StatementHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req StatementRequest
	if !decodeJSON(w, r, h.validator, &req) {
		return
	}

	statement, err := h.statements.BuildStatement(r.Context(), req.AccountNumber, req.StartDate, req.EndDate)
	if err != nil {
		services.SendServiceError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusCreated, statement)
}

// Get returns an issued statement
// @Summary Get statement
// @Tags statements
// @Produce json
// @Security BearerAuth
// @Param statementId path string true "Statement ID"
// @Success 200 {object} models.Statement
// @Failure 404 {object} services.ErrorResponse
// @Router /statements/{statementId} [get]
func (h *StatementHandler) Get(w http.ResponseWriter, r *http.Request) {
	statement, err := h.statements.GetStatement(r.Context(), chi.URLParam(r, "statementId"))
	if err != nil {
		services.SendServiceError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, statement)
}

// List returns an account's statements, newest first
// @Summary List statements
// @Tags statements
// @Produce json
// @Security BearerAuth
// @Param accountNumber path string true "Account number"
// @Success 200 {array} models.Statement
// @Router /accounts/{accountNumber}/statements [get]
func (h *StatementHandler) List(w http.ResponseWriter, r *http.Request) {
	statements, err := h.statements.ListStatements(r.Context(), chi.URLParam(r, "accountNumber"))
	if err != nil {
		services.SendServiceError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, statements)
}

// AuditReport totals an account's activity
// @Summary Generate audit report
// @Tags reports
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body services.AuditReportRequest true "Report request"
// @Success 201 {object} models.AuditReport
// @Failure 400 {object} services.ErrorResponse
// @Failure 404 {object} services.ErrorResponse
// @Router /reports/audit [post]
func (h *StatementHandler) AuditReport(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req services.AuditReportRequest
	if !decodeJSON(w, r, h.validator, &req) {
		return
	}
	req.GeneratedBy = userID

	report, err := h.statements.BuildAuditReport(r.Context(), req)
	if err != nil {
		services.SendServiceError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusCreated, report)
}

// ReviewAuditReport marks a generated report as reviewed
// @Summary Review audit report
// @Tags reports
// @Produce json
// @Security BearerAuth
// @Param reportId path string true "Report ID"
// @Success 200 {object} models.AuditReport
// @Failure 400 {object} services.ErrorResponse
// @Failure 404 {object} services.ErrorResponse
// @Router /reports/{reportId}/review [put]
func (h *StatementHandler) ReviewAuditReport(w http.ResponseWriter, r *http.Request) {
	report, err := h.statements.MarkAuditReportReviewed(r.Context(), chi.URLParam(r, "reportId"))
	if err != nil {
		services.SendServiceError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, report)
}
