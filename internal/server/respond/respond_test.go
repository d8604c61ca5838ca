package respond

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/treasury/internal/domain"
)

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{domain.ErrUnauthorized, http.StatusForbidden},
		{domain.ErrProposalNotFound, http.StatusNotFound},
		{domain.ErrBatchNotFound, http.StatusNotFound},
		{domain.ErrUnknownPool, http.StatusNotFound},
		{domain.ErrInvalidCategory, http.StatusBadRequest},
		{domain.ErrInvalidAmount, http.StatusBadRequest},
		{domain.ErrInvalidRecipient, http.StatusBadRequest},
		{domain.ErrPolicyPercentages, http.StatusBadRequest},
		{domain.ErrArrayLengthMismatch, http.StatusBadRequest},
		{domain.ErrInsufficientFunds, http.StatusConflict},
		{domain.ErrInsufficientReservation, http.StatusConflict},
		{domain.ErrProposalNotPending, http.StatusConflict},
		{domain.ErrAlreadyApproved, http.StatusConflict},
		{domain.ErrInsufficientApprovals, http.StatusConflict},
		{domain.ErrTimelockNotExpired, http.StatusConflict},
		{domain.ErrBatchExecuted, http.StatusConflict},
		{domain.ErrPaused, http.StatusServiceUnavailable},
		{domain.ErrDisbursementFailed, http.StatusBadGateway},
		{errors.New("something else"), http.StatusInternalServerError},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.want, StatusFor(tc.err), "error %v", tc.err)
	}
}

func TestStatusForWrappedErrors(t *testing.T) {
	err := fmt.Errorf("context: %w", domain.ErrInsufficientFunds)
	assert.Equal(t, http.StatusConflict, StatusFor(err))

	err = fmt.Errorf("outer: %w", fmt.Errorf("inner: %w", domain.ErrPaused))
	assert.Equal(t, http.StatusServiceUnavailable, StatusFor(err))
}

func TestErrorWritesJSONBody(t *testing.T) {
	rec := httptest.NewRecorder()
	Error(rec, fmt.Errorf("category %s: %w", "MARKETING", domain.ErrInvalidCategory))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, true, body["error"])
	assert.Contains(t, body["message"], "MARKETING")
}

func TestJSONWritesStatusAndPayload(t *testing.T) {
	rec := httptest.NewRecorder()
	JSON(rec, http.StatusCreated, map[string]int64{"amount": 1000})

	assert.Equal(t, http.StatusCreated, rec.Code)

	var body map[string]int64
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, int64(1000), body["amount"])
}
