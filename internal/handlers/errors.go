package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/franchiseos/leadhub/internal/channel"
	"github.com/franchiseos/leadhub/internal/inbound"
	"github.com/franchiseos/leadhub/internal/integration"
	"github.com/franchiseos/leadhub/internal/leads"
)

// Stable error codes returned in the error envelope.
const (
	CodeUnsupportedChannel    = "unsupported_channel"
	CodeIntegrationNotFound   = "integration_not_found"
	CodeChannelMismatch       = "channel_mismatch"
	CodeMalformedPayload      = "malformed_payload"
	CodeInvalidSignature      = "invalid_signature"
	CodeVerificationFailed    = "verification_failed"
	CodePayloadTooLarge       = "payload_too_large"
	CodeRateLimited           = "rate_limited"
	CodeAssignmentUnavailable = "assignment_unavailable"
	CodeTimeout               = "timeout"
	CodeInternal              = "internal_error"
)

// ErrorBody is the error part of the response envelope.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ErrorResponse is the envelope returned for every failed webhook delivery.
type ErrorResponse struct {
	Success bool      `json:"success"`
	Error   ErrorBody `json:"error"`
}

// webhookError maps a pipeline error to an HTTP status and a stable code.
// Anything unrecognized is a server-side failure.
func webhookError(err error) (int, string) {
	switch {
	case errors.Is(err, channel.ErrUnsupportedChannel):
		return http.StatusBadRequest, CodeUnsupportedChannel
	case errors.Is(err, integration.ErrIntegrationNotFound):
		return http.StatusNotFound, CodeIntegrationNotFound
	case errors.Is(err, inbound.ErrChannelMismatch):
		return http.StatusBadRequest, CodeChannelMismatch
	case errors.Is(err, channel.ErrMalformedPayload):
		return http.StatusBadRequest, CodeMalformedPayload
	case errors.Is(err, channel.ErrInvalidSignature):
		return http.StatusForbidden, CodeInvalidSignature
	case errors.Is(err, channel.ErrVerificationFailed):
		return http.StatusForbidden, CodeVerificationFailed
	case errors.Is(err, leads.ErrDefaultAssigneeMissing), errors.Is(err, leads.ErrNoAvailableAdmin):
		return http.StatusUnprocessableEntity, CodeAssignmentUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, CodeTimeout
	default:
		return http.StatusInternalServerError, CodeInternal
	}
}

func errorJSON(c echo.Context, status int, code, message string) error {
	return c.JSON(status, ErrorResponse{
		Success: false,
		Error:   ErrorBody{Code: code, Message: message},
	})
}

// writeWebhookError renders err in the envelope. Server-side details stay in
// the log; the client only sees the code.
func writeWebhookError(c echo.Context, err error) error {
	status, code := webhookError(err)
	message := err.Error()
	if status >= http.StatusInternalServerError {
		message = http.StatusText(status)
	}
	return errorJSON(c, status, code, message)
}

// internalError hides err from API clients. The echo request logger still
// records it through HTTPError.Internal.
func internalError(err error) *echo.HTTPError {
	return echo.NewHTTPError(http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError)).SetInternal(err)
}
