package handlers

import (
	"errors"
	"net/http"

	"github.com/upb/stockbot/services"
	"github.com/upb/stockbot/utils"
	"go.uber.org/zap"
)

// HandleServiceError maps domain errors to HTTP responses
func HandleServiceError(w http.ResponseWriter, err error, logger *zap.Logger) {
	if err == nil {
		return
	}

	details := services.GetErrorDetails(err)
	status := http.StatusInternalServerError
	message := err.Error()

	switch {
	case services.IsNotFoundError(err):
		status = http.StatusNotFound

	case services.IsValidationError(err):
		status = http.StatusBadRequest

	case services.IsForbiddenError(err):
		status = http.StatusForbidden
		details = nil

	case services.IsConflictError(err), services.IsSessionStateError(err):
		status = http.StatusConflict

	case services.IsResolutionError(err):
		// the text is echoed back by the client, not by us
		status = http.StatusUnprocessableEntity
		details = nil

	case services.IsBudgetError(err):
		status = http.StatusPaymentRequired

	case services.IsExternalError(err):
		status = http.StatusBadGateway

	case services.IsEstimationError(err):
		logger.Error("cost estimation failed", zap.Error(err))
		message = "cost estimation failed"

	case services.IsInternalError(err):
		// Log internal errors but return generic message
		logger.Error("internal server error", zap.Error(err))
		message = "An internal error occurred"
		details = nil

	default:
		logger.Error("unhandled error type",
			zap.Error(err),
			zap.String("error_type", string(services.GetErrorType(err))))
		message = "An unexpected error occurred"
		details = nil
	}

	if err := utils.WriteError(w, status, message, details); err != nil {
		logger.Error("failed to write error response", zap.Int("status", status), zap.Error(err))
	}
}

// HandleValidationError handles errors from request parsing
func HandleValidationError(w http.ResponseWriter, err error, logger *zap.Logger) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		if err := utils.WriteError(w, http.StatusRequestEntityTooLarge, "Request body too large", nil); err != nil {
			logger.Error("failed to write validation error response", zap.Error(err))
		}
		return
	}

	if utils.IsValidationError(err) {
		fields := utils.GetValidationFields(err)
		details := make(map[string]interface{}, len(fields))
		for k, v := range fields {
			details[k] = v
		}
		if err := utils.WriteBadRequest(w, "Validation failed", details); err != nil {
			logger.Error("failed to write validation error response", zap.Error(err))
		}
		return
	}

	if err := utils.WriteBadRequest(w, err.Error(), nil); err != nil {
		logger.Error("failed to write validation error response", zap.Error(err))
	}
}
