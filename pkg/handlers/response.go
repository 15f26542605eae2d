package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/mc-review/submission-engine/pkg/apperrors"
)

// ApiResponse is the envelope every successful JSON response uses.
type ApiResponse struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
}

// ErrorResponse writes a JSON error response and returns any encoding error.
func ErrorResponse(w http.ResponseWriter, statusCode int, errorCode, message string) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	return json.NewEncoder(w).Encode(map[string]string{
		"error":   errorCode,
		"message": message,
	})
}

// WriteJSON writes a JSON response and returns any encoding error.
func WriteJSON(w http.ResponseWriter, statusCode int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	if statusCode != http.StatusOK {
		w.WriteHeader(statusCode)
	}
	return json.NewEncoder(w).Encode(data)
}

// serviceErrorStatus maps a service error to an HTTP status and error code.
// Precondition failures keep their message; anything else is reported generically.
func serviceErrorStatus(err error) (status int, code string, expose bool) {
	switch {
	case errors.Is(err, apperrors.ErrNotFound):
		return http.StatusNotFound, "not_found", true
	case errors.Is(err, apperrors.ErrInvalidInput):
		return http.StatusBadRequest, "invalid_input", true
	case errors.Is(err, apperrors.ErrForbidden):
		return http.StatusForbidden, "forbidden", true
	case errors.Is(err, apperrors.ErrRateWithUnsubmittedContract),
		errors.Is(err, apperrors.ErrContractWithUnsubmittedRate):
		return http.StatusBadRequest, "unsubmitted_counterpart", true
	case errors.Is(err, apperrors.ErrNoDraftRevision):
		return http.StatusConflict, "no_draft_revision", true
	case errors.Is(err, apperrors.ErrDraftExists):
		return http.StatusConflict, "draft_exists", true
	case errors.Is(err, apperrors.ErrNotSubmitted):
		return http.StatusConflict, "not_submitted", true
	default:
		return http.StatusInternalServerError, "internal_error", false
	}
}

// writeServiceError logs err and writes the matching error response.
func writeServiceError(w http.ResponseWriter, logger *zap.Logger, action string, err error, fields ...zap.Field) {
	status, code, expose := serviceErrorStatus(err)
	message := "Internal server error"
	if expose {
		message = err.Error()
	}

	fields = append(fields, zap.Error(err))
	if status >= http.StatusInternalServerError {
		logger.Error("Failed to "+action, fields...)
	} else {
		logger.Debug("Rejected request to "+action, fields...)
	}

	if err := ErrorResponse(w, status, code, message); err != nil {
		logger.Error("Failed to write error response", zap.Error(err))
	}
}

// writeSuccess wraps data in the ApiResponse envelope.
func writeSuccess(w http.ResponseWriter, logger *zap.Logger, status int, data any) {
	if err := WriteJSON(w, status, ApiResponse{Success: true, Data: data}); err != nil {
		logger.Error("Failed to write response", zap.Error(err))
	}
}
