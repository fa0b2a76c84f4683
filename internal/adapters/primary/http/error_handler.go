package http

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/lorrc/service-desk-realtime/internal/adapters/primary/validation"
	"github.com/lorrc/service-desk-realtime/internal/core/domain"
	apperrors "github.com/lorrc/service-desk-realtime/internal/core/errors"
)

// ErrorResponse is the standard JSON error response format
type ErrorResponse struct {
	Error   string            `json:"error"`
	Code    string            `json:"code,omitempty"`
	Details map[string]string `json:"details,omitempty"`
}

// ErrorHandler provides centralized error handling with logging
type ErrorHandler struct {
	logger *slog.Logger
}

func NewErrorHandler(logger *slog.Logger) *ErrorHandler {
	return &ErrorHandler{logger: logger}
}

// Handle maps err to a status code and writes the JSON error body.
func (h *ErrorHandler) Handle(w http.ResponseWriter, r *http.Request, err error) {
	statusCode, response := mapError(err)
	h.logError(r, statusCode, err)
	WriteJSON(w, statusCode, response)
}

func mapError(err error) (int, ErrorResponse) {
	var verrs *validation.Errors

	switch {
	// Request validation
	case errors.As(err, &verrs):
		return http.StatusBadRequest, ErrorResponse{
			Error:   "Validation failed",
			Code:    "VALIDATION_ERROR",
			Details: verrs.Fields,
		}
	case errors.Is(err, domain.ErrTicketIDRequired),
		errors.Is(err, domain.ErrInvalidPage),
		errors.Is(err, domain.ErrInvalidStatus):
		return http.StatusBadRequest, ErrorResponse{
			Error: err.Error(),
			Code:  "VALIDATION_ERROR",
		}

	case errors.Is(err, domain.ErrNoMorePages):
		return http.StatusConflict, ErrorResponse{
			Error: "No more pages",
			Code:  "NO_MORE_PAGES",
		}

	case errors.Is(err, apperrors.ErrTicketNotFound):
		return http.StatusNotFound, ErrorResponse{
			Error: "Ticket not found",
			Code:  "TICKET_NOT_FOUND",
		}

	// Upstream failures
	case errors.Is(err, apperrors.ErrAuthentication):
		return http.StatusBadGateway, ErrorResponse{
			Error: "No credential available for the ticket API",
			Code:  apperrors.Code(err),
		}
	case errors.Is(err, apperrors.ErrFetchFailed):
		return http.StatusBadGateway, ErrorResponse{
			Error: "Ticket API request failed",
			Code:  "FETCH_FAILED",
		}
	case errors.Is(err, apperrors.ErrRateLimited):
		return http.StatusTooManyRequests, ErrorResponse{
			Error: "Too many requests. Please try again later.",
			Code:  "RATE_LIMITED",
		}
	case errors.Is(err, apperrors.ErrNotConnected),
		errors.Is(err, apperrors.ErrRoomOperationIgnored):
		return http.StatusServiceUnavailable, ErrorResponse{
			Error: "Realtime connection is not established",
			Code:  "NOT_CONNECTED",
		}

	default:
		return http.StatusInternalServerError, ErrorResponse{
			Error: "An unexpected error occurred",
			Code:  "INTERNAL_ERROR",
		}
	}
}

func (h *ErrorHandler) logError(r *http.Request, statusCode int, err error) {
	attrs := []any{
		"method", r.Method,
		"path", r.URL.Path,
		"status_code", statusCode,
		"error", err.Error(),
	}

	switch {
	case statusCode >= 500:
		h.logger.ErrorContext(r.Context(), "server error", attrs...)
	case statusCode >= 400:
		h.logger.WarnContext(r.Context(), "client error", attrs...)
	default:
		h.logger.InfoContext(r.Context(), "request error", attrs...)
	}
}

// HandleError handles err inline in handlers.
// Usage: if HandleError(w, r, err, h.errorHandler) { return }
func HandleError(w http.ResponseWriter, r *http.Request, err error, handler *ErrorHandler) bool {
	if err != nil {
		handler.Handle(w, r, err)
		return true
	}
	return false
}
