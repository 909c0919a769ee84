package apierrors

import (
	"errors"
	"strings"

	"outreach-server/internal/campaign"
	"outreach-server/internal/session"
	"outreach-server/internal/store"
)

// MapError converts domain errors to APIErrors. This centralizes all error
// mapping so every handler responds consistently.
//
// If the error is already an APIError, it returns it as-is.
// If the error is a known domain error, it maps it to an appropriate APIError.
// If the error is unknown, it returns a sanitized InternalError (500).
func MapError(err error) *APIError {
	if err == nil {
		return nil
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}

	switch {
	case errors.Is(err, campaign.ErrValidation):
		return BadRequest(CodeInvalidInput, err.Error())

	case errors.Is(err, session.ErrCapacityExceeded):
		return TooManyRequests(CodeCapacityExceeded, "Maximum concurrent call sessions reached. Try again shortly.")

	case errors.Is(err, session.ErrDuplicateActiveSession):
		return Conflict(CodeDuplicateSession, "An active call already exists for this phone number")

	case errors.Is(err, session.ErrSessionNotFound):
		return NotFound(CodeSessionNotFound, "Call session not found")

	case errors.Is(err, session.ErrCorrelationConflict):
		return Conflict(CodeCorrelationConflict, "Session is already bound to a different call")

	case errors.Is(err, session.ErrInvalidTransition):
		return Conflict(CodeInvalidTransition, "Session is past the requested state")

	case errors.Is(err, store.ErrNotFound):
		return NotFound(CodeNotFound, "Resource not found")

	default:
		return mapExternalServiceError(err)
	}
}

// mapExternalServiceError attempts to identify external service errors and
// map them to service-specific 503 responses.
func mapExternalServiceError(err error) *APIError {
	errMsg := strings.ToLower(err.Error())

	if strings.Contains(errMsg, "twilio") || strings.Contains(errMsg, "outbound call") {
		return ServiceUnavailable(
			CodeTelephonyError,
			"Telephony provider is temporarily unavailable. Please try again later.",
			err,
		)
	}

	if strings.Contains(errMsg, "stripe") || strings.Contains(errMsg, "promotion code") {
		return ServiceUnavailable(
			CodePaymentProviderError,
			"Payment provider is temporarily unavailable. Please try again later.",
			err,
		)
	}

	if strings.Contains(errMsg, "resend") || strings.Contains(errMsg, "email service") {
		return ServiceUnavailable(
			CodeEmailServiceError,
			"Email service is temporarily unavailable. Please try again later.",
			err,
		)
	}

	if strings.Contains(errMsg, "openai") || strings.Contains(errMsg, "gemini") || strings.Contains(errMsg, "ai service") {
		return ServiceUnavailable(
			CodeAIServiceError,
			"AI service is temporarily unavailable. Please try again later.",
			err,
		)
	}

	return InternalError(err)
}
