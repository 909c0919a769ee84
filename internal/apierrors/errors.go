package apierrors

import (
	"fmt"
	"net/http"
)

// Machine-readable error codes returned to API clients.
const (
	CodeInvalidInput         = "INVALID_INPUT"
	CodeNotFound             = "NOT_FOUND"
	CodeSessionNotFound      = "SESSION_NOT_FOUND"
	CodeCampaignNotFound     = "CAMPAIGN_NOT_FOUND"
	CodeDuplicateSession     = "DUPLICATE_ACTIVE_SESSION"
	CodeCapacityExceeded     = "CAPACITY_EXCEEDED"
	CodeCorrelationConflict  = "CORRELATION_CONFLICT"
	CodeInvalidTransition    = "INVALID_TRANSITION"
	CodeUnauthorized         = "UNAUTHORIZED"
	CodeTelephonyError       = "TELEPHONY_PROVIDER_ERROR"
	CodePaymentProviderError = "PAYMENT_PROVIDER_ERROR"
	CodeEmailServiceError    = "EMAIL_SERVICE_ERROR"
	CodeAIServiceError       = "AI_SERVICE_ERROR"
	CodeInternalError        = "INTERNAL_ERROR"
)

// APIError is a client-safe error with an HTTP status. The wrapped internal
// error is logged, never serialized.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Err        error
}

func (e *APIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// BadRequest builds a 400 error.
func BadRequest(code, message string) *APIError {
	return &APIError{StatusCode: http.StatusBadRequest, Code: code, Message: message}
}

// NotFound builds a 404 error.
func NotFound(code, message string) *APIError {
	return &APIError{StatusCode: http.StatusNotFound, Code: code, Message: message}
}

// Unauthorized builds a 401 error.
func Unauthorized(message string) *APIError {
	return &APIError{StatusCode: http.StatusUnauthorized, Code: CodeUnauthorized, Message: message}
}

// Conflict builds a 409 error.
func Conflict(code, message string) *APIError {
	return &APIError{StatusCode: http.StatusConflict, Code: code, Message: message}
}

// TooManyRequests builds a 429 error.
func TooManyRequests(code, message string) *APIError {
	return &APIError{StatusCode: http.StatusTooManyRequests, Code: code, Message: message}
}

// ServiceUnavailable builds a 503 error wrapping the provider failure.
func ServiceUnavailable(code, message string, err error) *APIError {
	return &APIError{StatusCode: http.StatusServiceUnavailable, Code: code, Message: message, Err: err}
}

// InternalError builds a sanitized 500 error - never exposes internal details.
func InternalError(err error) *APIError {
	return &APIError{
		StatusCode: http.StatusInternalServerError,
		Code:       CodeInternalError,
		Message:    "An internal error occurred. Please try again later.",
		Err:        err,
	}
}
