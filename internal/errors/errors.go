package errors

import (
	"errors"
	"fmt"
)

// Domain errors for the ledger engine
var (
	ErrNotFound            = errors.New("not found")
	ErrAccountNotFound     = fmt.Errorf("account %w", ErrNotFound)
	ErrLoanNotFound        = fmt.Errorf("loan %w", ErrNotFound)
	ErrTransactionNotFound = fmt.Errorf("transaction %w", ErrNotFound)
	ErrStatementNotFound   = fmt.Errorf("statement %w", ErrNotFound)
	ErrReportNotFound      = fmt.Errorf("audit report %w", ErrNotFound)

	ErrInvalidInput   = errors.New("invalid input")
	ErrInvalidAmount  = fmt.Errorf("%w: amount must be positive and within range", ErrInvalidInput)
	ErrBalanceRange   = fmt.Errorf("%w: resulting balance is out of range", ErrInvalidInput)
	ErrSameAccount    = fmt.Errorf("%w: source and destination accounts cannot be the same", ErrInvalidInput)
	ErrLoanNotActive  = fmt.Errorf("%w: loan is not active", ErrInvalidInput)
	ErrOverpayment    = fmt.Errorf("%w: payment amount exceeds remaining balance", ErrInvalidInput)
	ErrReportReviewed = fmt.Errorf("%w: audit report already reviewed", ErrInvalidInput)

	ErrInsufficientFunds   = errors.New("insufficient funds")
	ErrLimitExceeded       = errors.New("weekly limit exceeded")
	ErrReversalNotEligible = errors.New("reversal not eligible")
	ErrAlreadyReversed     = fmt.Errorf("%w: transaction already reversed", ErrReversalNotEligible)
	ErrNotReversible       = fmt.Errorf("%w: transaction kind cannot be reversed", ErrInvalidInput)

	ErrConcurrencyConflict    = errors.New("concurrent update conflict")
	ErrUnavailable            = errors.New("service temporarily unavailable")
	ErrReconciliationRequired = errors.New("reconciliation required")
)

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error on field '%s': %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidInput
}

func NewValidationError(field, message string) error {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}

// RejectionError is a business rejection that was written to the ledger
// before being returned. Reason is the text stored on the failed row.
type RejectionError struct {
	Kind   error
	Reason string
}

func (e *RejectionError) Error() string {
	if e.Reason == "" {
		return e.Kind.Error()
	}
	return fmt.Sprintf("%s: %s", e.Kind.Error(), e.Reason)
}

func (e *RejectionError) Unwrap() error {
	return e.Kind
}

func NewRejection(kind error, reason string) error {
	return &RejectionError{Kind: kind, Reason: reason}
}

type OperationError struct {
	Operation string
	Cause     error
}

func (e *OperationError) Error() string {
	return fmt.Sprintf("ledger error during '%s': %v", e.Operation, e.Cause)
}

func (e *OperationError) Unwrap() error {
	return e.Cause
}

func NewOperationError(operation string, cause error) error {
	return &OperationError{
		Operation: operation,
		Cause:     cause,
	}
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func IsInvalidInput(err error) bool {
	return errors.Is(err, ErrInvalidInput)
}

func IsConflict(err error) bool {
	return errors.Is(err, ErrConcurrencyConflict)
}

// IsRecorded reports whether err is a rejection that already has a ledger row.
func IsRecorded(err error) bool {
	var rejection *RejectionError
	return errors.As(err, &rejection)
}

func Is(err, target error) bool {
	return errors.Is(err, target)
}

func As(err error, target any) bool {
	return errors.As(err, target)
}
