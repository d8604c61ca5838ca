// Package respond centralizes JSON responses and the mapping from domain
// errors to HTTP status codes, so every handler reports the error taxonomy
// the same way.
package respond

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/aristath/treasury/internal/domain"
)

// JSON writes a JSON response with the given status.
func JSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// Error writes a JSON error body with the status implied by err.
func Error(w http.ResponseWriter, err error) {
	JSON(w, StatusFor(err), map[string]interface{}{
		"error":   true,
		"message": err.Error(),
	})
}

// ErrorMessage writes a JSON error body with an explicit status and message.
func ErrorMessage(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]interface{}{
		"error":   true,
		"message": message,
	})
}

// StatusFor maps a domain error to an HTTP status code.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrProposalNotFound),
		errors.Is(err, domain.ErrBatchNotFound),
		errors.Is(err, domain.ErrUnknownPool):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidCategory),
		errors.Is(err, domain.ErrInvalidAmount),
		errors.Is(err, domain.ErrInvalidRecipient),
		errors.Is(err, domain.ErrPolicyPercentages),
		errors.Is(err, domain.ErrArrayLengthMismatch):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrInsufficientFunds),
		errors.Is(err, domain.ErrInsufficientReservation),
		errors.Is(err, domain.ErrProposalNotPending),
		errors.Is(err, domain.ErrAlreadyApproved),
		errors.Is(err, domain.ErrInsufficientApprovals),
		errors.Is(err, domain.ErrTimelockNotExpired),
		errors.Is(err, domain.ErrBatchExecuted):
		return http.StatusConflict
	case errors.Is(err, domain.ErrPaused):
		return http.StatusServiceUnavailable
	case errors.Is(err, domain.ErrDisbursementFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
