package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"

	"github.com/wallet-watch/internal/types"
)

// Sentinel kinds. Every CategorizedError built by this package matches exactly
// one of these through errors.Is, however deeply it is wrapped.
var (
	ErrUpstreamUnavailable = stderrors.New("upstream unavailable")
	ErrUpstreamRejected    = stderrors.New("upstream rejected request")
	ErrAlreadyMonitored    = stderrors.New("address already monitored")
	ErrQuotaExceeded       = stderrors.New("wallet quota exceeded")
	ErrNotFound            = stderrors.New("not found")
	ErrNameTaken           = stderrors.New("wallet name already in use")
	ErrDeliveryFailed      = stderrors.New("notification delivery failed")
	ErrStoreUnavailable    = stderrors.New("store unavailable")
	ErrInvalidPlan         = stderrors.New("invalid plan")
	ErrInvalidInput        = stderrors.New("invalid input")
	ErrUnauthorized        = stderrors.New("unauthorized")
	ErrInternal            = stderrors.New("internal error")
)

// ErrorCategory represents the category of an error
type ErrorCategory string

const (
	// CategoryUserInput represents user input errors (4xx)
	CategoryUserInput ErrorCategory = "user_input"
	// CategorySystem represents system errors (5xx)
	CategorySystem ErrorCategory = "system"
	// CategoryProvider represents explorer / messaging provider errors
	CategoryProvider ErrorCategory = "provider"
	// CategoryDatabase represents database errors
	CategoryDatabase ErrorCategory = "database"
	// CategoryAuthorization represents authorization errors
	CategoryAuthorization ErrorCategory = "authorization"
	// CategoryNotFound represents not found errors
	CategoryNotFound ErrorCategory = "not_found"
	// CategoryConflict represents conflict errors
	CategoryConflict ErrorCategory = "conflict"
	// CategoryLimit represents plan quota errors
	CategoryLimit ErrorCategory = "limit"
)

// CategorizedError represents an error with category and HTTP status code
type CategorizedError struct {
	Kind       error
	Category   ErrorCategory
	StatusCode int
	Code       string
	Message    string
	Details    map[string]interface{}
	Cause      error
}

// Error implements the error interface
func (e *CategorizedError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause
func (e *CategorizedError) Unwrap() error {
	return e.Cause
}

// Is matches the sentinel kind of the error
func (e *CategorizedError) Is(target error) bool {
	return e.Kind != nil && target == e.Kind
}

// ToServiceError converts to a ServiceError
func (e *CategorizedError) ToServiceError() *types.ServiceError {
	return &types.ServiceError{
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
	}
}

// Registry errors (user facing, never fatal to the sweep)

// NewAlreadyMonitoredError is returned when an address already has an owner
func NewAlreadyMonitoredError(address string) *CategorizedError {
	return &CategorizedError{
		Kind:       ErrAlreadyMonitored,
		Category:   CategoryConflict,
		StatusCode: http.StatusConflict,
		Code:       "ALREADY_MONITORED",
		Message:    fmt.Sprintf("address already monitored: %s", address),
		Details: map[string]interface{}{
			"address": address,
		},
	}
}

// NewQuotaExceededError is returned when an add would exceed the plan quota
func NewQuotaExceededError(plan types.PlanTier, limit int) *CategorizedError {
	return &CategorizedError{
		Kind:       ErrQuotaExceeded,
		Category:   CategoryLimit,
		StatusCode: http.StatusForbidden,
		Code:       "QUOTA_EXCEEDED",
		Message:    fmt.Sprintf("wallet quota exceeded for %s plan (limit: %d)", plan, limit),
		Details: map[string]interface{}{
			"plan":  plan,
			"limit": limit,
		},
	}
}

// NewNotFoundError creates a not found error
func NewNotFoundError(resource string, id string) *CategorizedError {
	return &CategorizedError{
		Kind:       ErrNotFound,
		Category:   CategoryNotFound,
		StatusCode: http.StatusNotFound,
		Code:       "NOT_FOUND",
		Message:    fmt.Sprintf("%s not found: %s", resource, id),
		Details: map[string]interface{}{
			"resource": resource,
			"id":       id,
		},
	}
}

// NewNameTakenError is returned when the owner already has a wallet with that name
func NewNameTakenError(name string) *CategorizedError {
	return &CategorizedError{
		Kind:       ErrNameTaken,
		Category:   CategoryConflict,
		StatusCode: http.StatusConflict,
		Code:       "NAME_TAKEN",
		Message:    fmt.Sprintf("wallet name already in use: %s", name),
		Details: map[string]interface{}{
			"name": name,
		},
	}
}

// NewInvalidPlanError creates an unknown plan error
func NewInvalidPlanError(plan string) *CategorizedError {
	return &CategorizedError{
		Kind:       ErrInvalidPlan,
		Category:   CategoryUserInput,
		StatusCode: http.StatusBadRequest,
		Code:       "INVALID_PLAN",
		Message:    fmt.Sprintf("unknown plan: %s", plan),
		Details: map[string]interface{}{
			"plan": plan,
		},
	}
}

// NewInvalidParameterError creates an invalid parameter error
func NewInvalidParameterError(param string, reason string) *CategorizedError {
	return &CategorizedError{
		Kind:       ErrInvalidInput,
		Category:   CategoryUserInput,
		StatusCode: http.StatusBadRequest,
		Code:       "INVALID_PARAMETER",
		Message:    fmt.Sprintf("invalid parameter '%s': %s", param, reason),
		Details: map[string]interface{}{
			"parameter": param,
			"reason":    reason,
		},
	}
}

// NewUnauthorizedError creates an unauthorized error
func NewUnauthorizedError(message string) *CategorizedError {
	return &CategorizedError{
		Kind:       ErrUnauthorized,
		Category:   CategoryAuthorization,
		StatusCode: http.StatusUnauthorized,
		Code:       "UNAUTHORIZED",
		Message:    message,
	}
}

// Upstream errors (explorer)

// NewUpstreamUnavailableError covers network errors, timeouts, rate limits and
// malformed payloads. The sweep skips the wallet and retries next tick.
func NewUpstreamUnavailableError(provider string, cause error) *CategorizedError {
	return &CategorizedError{
		Kind:       ErrUpstreamUnavailable,
		Category:   CategoryProvider,
		StatusCode: http.StatusBadGateway,
		Code:       "UPSTREAM_UNAVAILABLE",
		Message:    fmt.Sprintf("upstream unavailable: %s", provider),
		Cause:      cause,
		Details: map[string]interface{}{
			"provider": provider,
		},
	}
}

// NewUpstreamRejectedError is a structured explorer error that is not the
// canonical empty result.
func NewUpstreamRejectedError(provider, message, result string) *CategorizedError {
	return &CategorizedError{
		Kind:       ErrUpstreamRejected,
		Category:   CategoryProvider,
		StatusCode: http.StatusBadGateway,
		Code:       "UPSTREAM_REJECTED",
		Message:    fmt.Sprintf("%s rejected request: %s", provider, message),
		Details: map[string]interface{}{
			"provider": provider,
			"result":   result,
		},
	}
}

// NewDeliveryFailedError wraps a notification channel failure
func NewDeliveryFailedError(chatID int64, cause error) *CategorizedError {
	return &CategorizedError{
		Kind:       ErrDeliveryFailed,
		Category:   CategoryProvider,
		StatusCode: http.StatusBadGateway,
		Code:       "DELIVERY_FAILED",
		Message:    fmt.Sprintf("failed to deliver notification to chat %d", chatID),
		Cause:      cause,
		Details: map[string]interface{}{
			"chatId": chatID,
		},
	}
}

// System errors (5xx)

// NewStoreUnavailableError wraps a persistence failure
func NewStoreUnavailableError(operation string, cause error) *CategorizedError {
	return &CategorizedError{
		Kind:       ErrStoreUnavailable,
		Category:   CategoryDatabase,
		StatusCode: http.StatusServiceUnavailable,
		Code:       "STORE_UNAVAILABLE",
		Message:    fmt.Sprintf("store unavailable during %s", operation),
		Cause:      cause,
		Details: map[string]interface{}{
			"operation": operation,
		},
	}
}

// NewInternalError creates an internal server error
func NewInternalError(message string, cause error) *CategorizedError {
	return &CategorizedError{
		Kind:       ErrInternal,
		Category:   CategorySystem,
		StatusCode: http.StatusInternalServerError,
		Code:       "INTERNAL_ERROR",
		Message:    message,
		Cause:      cause,
	}
}

// Categorize categorizes an existing error
func Categorize(err error) *CategorizedError {
	if err == nil {
		return nil
	}

	var catErr *CategorizedError
	if stderrors.As(err, &catErr) {
		return catErr
	}

	var svcErr *types.ServiceError
	if stderrors.As(err, &svcErr) {
		return &CategorizedError{
			Kind:       ErrInternal,
			Category:   CategorySystem,
			StatusCode: http.StatusInternalServerError,
			Code:       svcErr.Code,
			Message:    svcErr.Message,
			Details:    svcErr.Details,
		}
	}

	// Default to internal error
	return NewInternalError("unexpected error", err)
}

// GetHTTPStatusCode returns the HTTP status code for an error
func GetHTTPStatusCode(err error) int {
	if catErr := Categorize(err); catErr != nil {
		return catErr.StatusCode
	}
	return http.StatusInternalServerError
}

// IsRetryable determines if an error is worth retrying within the same call
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	return stderrors.Is(err, ErrUpstreamUnavailable) || stderrors.Is(err, ErrStoreUnavailable)
}

// IsUserError determines if an error is a user error (4xx)
func IsUserError(err error) bool {
	catErr := Categorize(err)
	if catErr == nil {
		return false
	}

	return catErr.StatusCode >= 400 && catErr.StatusCode < 500
}
