package rest

import (
	"errors"
	"net/http"

	"github.com/smilemakc/nbflow/internal/domain"
)

// APIError is the JSON error body for non-cell errors. Cell-scoped errors
// never reach this layer; they surface on cells and in cell_error events.
type APIError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	HTTPStatus int    `json:"-"`
}

func (e *APIError) Error() string {
	return e.Message
}

// NewAPIError creates an APIError.
func NewAPIError(code, message string, httpStatus int) *APIError {
	return &APIError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
	}
}

var (
	ErrInvalidJSON    = NewAPIError("INVALID_JSON", "Invalid JSON in request body", http.StatusBadRequest)
	ErrNotFound       = NewAPIError("NOT_FOUND", "Resource not found", http.StatusNotFound)
	ErrInternalServer = NewAPIError("INTERNAL_ERROR", "Internal server error", http.StatusInternalServerError)
)

// TranslateError maps domain errors to API errors.
func TranslateError(err error) *APIError {
	if err == nil {
		return nil
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}

	if errors.Is(err, domain.ErrCellNotFound) {
		return NewAPIError("CELL_NOT_FOUND", err.Error(), http.StatusNotFound)
	}

	return NewAPIError("INTERNAL_ERROR", err.Error(), http.StatusInternalServerError)
}
