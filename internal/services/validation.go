package services

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/cbcbank/ledger/internal/errors"
)

// ErrorResponse represents error response structure
type ErrorResponse struct {
	Error   string            `json:"error"`             // Error message
	Details map[string]string `json:"details,omitempty"` // Validation details
	// Transaction is the recorded row for rejections that were written to
	// the ledger before being returned.
	Transaction any `json:"transaction,omitempty"`
}

// ValidationHelper provides shared validation functionality
type ValidationHelper struct {
	validator *validator.Validate
}

// NewValidationHelper creates a new validation helper
func NewValidationHelper() *ValidationHelper {
	return &ValidationHelper{
		validator: validator.New(),
	}
}

// ValidateStruct validates a struct and returns validation errors
func (vh *ValidationHelper) ValidateStruct(s any) error {
	return vh.validator.Struct(s)
}

// SendErrorResponse sends a JSON error response
func SendErrorResponse(w http.ResponseWriter, message string, statusCode int, validationErr error) {
	writeError(w, statusCode, ErrorResponse{Error: message, Details: validationDetails(validationErr)})
}

// StatusForError maps ledger errors onto HTTP status codes. Rejections that
// were recorded as ledger rows are 422 so clients can tell them apart from
// requests that never reached the ledger.
func StatusForError(err error) int {
	switch {
	case errors.IsNotFound(err):
		return http.StatusNotFound
	case errors.IsInvalidInput(err):
		return http.StatusBadRequest
	case errors.IsRecorded(err):
		return http.StatusUnprocessableEntity
	case errors.Is(err, errors.ErrReversalNotEligible):
		return http.StatusConflict
	case errors.IsConflict(err):
		return http.StatusConflict
	case errors.Is(err, errors.ErrUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// SendServiceError writes err with its mapped status. recorded is the ledger
// row written for a rejection, if any.
func SendServiceError(w http.ResponseWriter, err error, recorded any) {
	status := StatusForError(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		message = "Internal server error"
	}

	resp := ErrorResponse{Error: message}
	var fieldErr *errors.ValidationError
	if errors.As(err, &fieldErr) {
		resp.Details = map[string]string{fieldErr.Field: fieldErr.Message}
	}
	if errors.IsRecorded(err) {
		resp.Transaction = recorded
	}
	writeError(w, status, resp)
}

func validationDetails(validationErr error) map[string]string {
	if validationErr == nil {
		return nil
	}
	details := make(map[string]string)
	fieldErrs, ok := validationErr.(validator.ValidationErrors)
	if !ok {
		details["request"] = validationErr.Error()
		return details
	}
	for _, err := range fieldErrs {
		details[err.Field()] = fmt.Sprintf("Field Validation Failed on '%s' tag", err.Tag())
	}
	return details
}

func writeError(w http.ResponseWriter, statusCode int, resp ErrorResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(resp)
}
