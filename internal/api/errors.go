package api

import (
	"encoding/json"
	"net/http"

	apperrors "github.com/wallet-watch/internal/errors"
	"github.com/wallet-watch/internal/types"
)

// ErrorResponse represents an API error response.
type ErrorResponse struct {
	Error types.ServiceError `json:"error"`
}

// respondError sends an error response.
func respondError(w http.ResponseWriter, statusCode int, code, message string, details map[string]interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	response := ErrorResponse{
		Error: types.ServiceError{
			Code:    code,
			Message: message,
			Details: details,
		},
	}

	json.NewEncoder(w).Encode(response)
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// respondServiceError renders a categorized error. System errors never leak
// their cause to the caller.
func respondServiceError(w http.ResponseWriter, err error) {
	ce := apperrors.Categorize(err)
	if !apperrors.IsUserError(ce) {
		respondError(w, ce.StatusCode, ErrCodeInternalError, "An internal error occurred", nil)
		return
	}
	respondError(w, ce.StatusCode, ce.Code, ce.Message, ce.Details)
}

// Common error codes
const (
	ErrCodeInvalidInput       = "INVALID_INPUT"
	ErrCodeUnauthorized       = "UNAUTHORIZED"
	ErrCodeRateLimited        = "RATE_LIMIT_EXCEEDED"
	ErrCodeInternalError      = "INTERNAL_ERROR"
	ErrCodeServiceUnavailable = "SERVICE_UNAVAILABLE"
)
