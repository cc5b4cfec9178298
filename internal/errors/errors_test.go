package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/wallet-watch/internal/types"
)

func TestSentinelMatchingThroughWrapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		kind error
	}{
		{"already monitored", NewAlreadyMonitoredError("0xabc"), ErrAlreadyMonitored},
		{"quota", NewQuotaExceededError(types.PlanFree, 1), ErrQuotaExceeded},
		{"not found", NewNotFoundError("wallet", "main"), ErrNotFound},
		{"name taken", NewNameTakenError("main"), ErrNameTaken},
		{"invalid plan", NewInvalidPlanError("gold"), ErrInvalidPlan},
		{"upstream unavailable", NewUpstreamUnavailableError("etherscan", stderrors.New("eof")), ErrUpstreamUnavailable},
		{"upstream rejected", NewUpstreamRejectedError("etherscan", "NOTOK", "Invalid API Key"), ErrUpstreamRejected},
		{"delivery", NewDeliveryFailedError(42, stderrors.New("blocked")), ErrDeliveryFailed},
		{"store", NewStoreUnavailableError("list", stderrors.New("conn refused")), ErrStoreUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wrapped := fmt.Errorf("outer: %w", fmt.Errorf("inner: %w", tt.err))
			assert.ErrorIs(t, wrapped, tt.kind)
			assert.NotErrorIs(t, wrapped, ErrInternal)
		})
	}
}

func TestCauseIsReachable(t *testing.T) {
	cause := stderrors.New("connection reset")
	err := NewUpstreamUnavailableError("etherscan", cause)

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "connection reset")
	assert.Contains(t, err.Error(), "UPSTREAM_UNAVAILABLE")
}

func TestUpstreamRejectedCarriesResult(t *testing.T) {
	err := NewUpstreamRejectedError("etherscan", "NOTOK", "Max rate limit reached")

	assert.Equal(t, "Max rate limit reached", err.Details["result"])
	assert.Equal(t, http.StatusBadGateway, err.StatusCode)
}

func TestCategorize(t *testing.T) {
	assert.Nil(t, Categorize(nil))

	cat := NewNameTakenError("x")
	assert.Same(t, cat, Categorize(fmt.Errorf("wrap: %w", cat)))

	svc := Categorize(&types.ServiceError{Code: "SOMETHING", Message: "odd"})
	assert.Equal(t, "SOMETHING", svc.Code)
	assert.Equal(t, http.StatusInternalServerError, svc.StatusCode)

	plain := Categorize(stderrors.New("boom"))
	assert.ErrorIs(t, plain, ErrInternal)
	assert.Equal(t, "INTERNAL_ERROR", plain.Code)
}

func TestGetHTTPStatusCode(t *testing.T) {
	assert.Equal(t, http.StatusConflict, GetHTTPStatusCode(NewAlreadyMonitoredError("0x1")))
	assert.Equal(t, http.StatusForbidden, GetHTTPStatusCode(NewQuotaExceededError(types.PlanBasic, 5)))
	assert.Equal(t, http.StatusBadRequest, GetHTTPStatusCode(NewInvalidPlanError("gold")))
	assert.Equal(t, http.StatusUnauthorized, GetHTTPStatusCode(NewUnauthorizedError("bad signature")))
	assert.Equal(t, http.StatusInternalServerError, GetHTTPStatusCode(stderrors.New("boom")))
}

func TestIsRetryable(t *testing.T) {
	assert.False(t, IsRetryable(nil))
	assert.True(t, IsRetryable(NewUpstreamUnavailableError("etherscan", nil)))
	assert.True(t, IsRetryable(fmt.Errorf("x: %w", NewStoreUnavailableError("op", nil))))
	assert.False(t, IsRetryable(NewUpstreamRejectedError("etherscan", "NOTOK", "bad key")))
	assert.False(t, IsRetryable(NewQuotaExceededError(types.PlanFree, 1)))
}

func TestIsUserError(t *testing.T) {
	assert.True(t, IsUserError(NewQuotaExceededError(types.PlanFree, 1)))
	assert.True(t, IsUserError(NewNotFoundError("wallet", "x")))
	assert.False(t, IsUserError(NewStoreUnavailableError("op", nil)))
	assert.False(t, IsUserError(stderrors.New("boom")))
}

func TestToServiceError(t *testing.T) {
	svc := NewQuotaExceededError(types.PlanPro, 50).ToServiceError()

	assert.Equal(t, "QUOTA_EXCEEDED", svc.Code)
	assert.Equal(t, 50, svc.Details["limit"])
}
