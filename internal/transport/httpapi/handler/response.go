package handler

import (
	"encoding/json"
	"net/http"

	apperrors "github.com/agrinova/agrinova/internal/shared/errors"
)

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// respondWithJSON sends a JSON response
func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(payload)
}

// respondWithError sends an error response
func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, ErrorResponse{Error: message})
}

// respondAppError maps an application error to its HTTP status. Unknown
// errors collapse to a generic 500 so internals never leak to clients.
func respondAppError(w http.ResponseWriter, err error) {
	appErr := apperrors.GetAppError(err)
	if appErr == nil {
		respondWithError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	status := http.StatusInternalServerError
	switch appErr.Code {
	case apperrors.ErrCodeValidation:
		status = http.StatusBadRequest
	case apperrors.ErrCodeNotFound:
		status = http.StatusNotFound
	case apperrors.ErrCodeUnauthorized:
		status = http.StatusUnauthorized
	case apperrors.ErrCodeConflict, apperrors.ErrCodeConcurrencyConflict:
		status = http.StatusConflict
	case apperrors.ErrCodeInsufficientBalance:
		status = http.StatusUnprocessableEntity
	case apperrors.ErrCodePersistenceFailure, apperrors.ErrCodeInternal:
		status = http.StatusInternalServerError
	}

	respondWithJSON(w, status, ErrorResponse{Error: appErr.Message, Code: appErr.Code})
}
