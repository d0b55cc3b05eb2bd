package handlers

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/franchiseos/leadhub/internal/channel"
	"github.com/franchiseos/leadhub/internal/config"
	"github.com/franchiseos/leadhub/internal/inbound"
	"github.com/franchiseos/leadhub/internal/integration"
	"github.com/franchiseos/leadhub/internal/ratelimit"
)

// DeliveryProcessor runs one webhook delivery end to end. inbound.Pipeline
// satisfies it.
type DeliveryProcessor interface {
	Handle(ctx context.Context, d inbound.Delivery) (inbound.Outcome, error)
}

// WebhookResponse is the success envelope of POST /webhooks.
type WebhookResponse struct {
	Success bool `json:"success"`
	inbound.Outcome
}

type WebhookHandler struct {
	logger       *slog.Logger
	processor    DeliveryProcessor
	registry     *channel.Registry
	integrations inbound.IntegrationSource
	limiter      *ratelimit.Limiter
	cfg          config.WebhookConfig
}

// NewWebhookHandler builds the public webhook endpoints. integrations and
// limiter may be nil.
func NewWebhookHandler(log *slog.Logger, processor DeliveryProcessor, registry *channel.Registry, integrations inbound.IntegrationSource, limiter *ratelimit.Limiter, cfg config.WebhookConfig) *WebhookHandler {
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = config.DefaultWebhookMaxBodyBytes
	}
	return &WebhookHandler{
		logger:       log.With(slog.String("handler", "webhook")),
		processor:    processor,
		registry:     registry,
		integrations: integrations,
		limiter:      limiter,
		cfg:          cfg,
	}
}

func (h *WebhookHandler) Register(e *echo.Echo) {
	group := e.Group("/webhooks")
	group.POST("/:channel/:id", h.HandleDelivery)
	group.GET("/:channel/:id", h.HandleVerify)
}

// HandleDelivery godoc
// @Summary Receive a webhook delivery
// @Description Normalize, route and apply a platform event
// @Tags webhooks
// @Param channel path string true "Channel type"
// @Param id path string true "Integration ID"
// @Success 200 {object} WebhookResponse
// @Failure 400 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 413 {object} ErrorResponse
// @Failure 429 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /webhooks/{channel}/{id} [post]
func (h *WebhookHandler) HandleDelivery(c echo.Context) error {
	channelName := c.Param("channel")
	// Integration ids are UUIDs. Anything else cannot exist and must not
	// mint a rate-limit counter.
	parsedID, err := uuid.Parse(strings.TrimSpace(c.Param("id")))
	if err != nil {
		return writeWebhookError(c, integration.ErrIntegrationNotFound)
	}
	integrationID := parsedID.String()

	body, err := h.readBody(c.Request())
	if err != nil {
		if errors.Is(err, errBodyTooLarge) {
			return errorJSON(c, http.StatusRequestEntityTooLarge, CodePayloadTooLarge, err.Error())
		}
		return errorJSON(c, http.StatusBadRequest, CodeMalformedPayload, "read request body")
	}

	ctx := c.Request().Context()
	if !h.limiter.Allow(ctx, "webhook:"+integrationID) {
		return errorJSON(c, http.StatusTooManyRequests, CodeRateLimited, "too many deliveries for this integration")
	}

	outcome, err := h.processor.Handle(ctx, inbound.Delivery{
		Channel:       channelName,
		IntegrationID: integrationID,
		Header:        c.Request().Header,
		Body:          body,
		ReceivedAt:    time.Now().UTC(),
	})
	if err != nil {
		status, code := webhookError(err)
		attrs := []any{
			slog.String("channel", channelName),
			slog.String("integration_id", integrationID),
			slog.String("code", code),
			slog.Any("error", err),
		}
		if status >= http.StatusInternalServerError {
			h.logger.Error("webhook delivery failed", attrs...)
		} else {
			h.logger.Info("webhook delivery rejected", attrs...)
		}
		return writeWebhookError(c, err)
	}
	if outcome.Confirmed {
		return c.String(http.StatusOK, outcome.Confirmation)
	}
	if ack := h.ackFor(channelName); ack != "" {
		return c.String(http.StatusOK, ack)
	}
	return c.JSON(http.StatusOK, WebhookResponse{Success: true, Outcome: outcome})
}

// HandleVerify godoc
// @Summary Answer a subscription handshake
// @Description Echo hub.challenge for challenge channels, "ok" for the rest
// @Tags webhooks
// @Param channel path string true "Channel type"
// @Param id path string true "Integration ID"
// @Success 200 {string} string
// @Failure 400 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Router /webhooks/{channel}/{id} [get]
func (h *WebhookHandler) HandleVerify(c echo.Context) error {
	channelType, err := h.registry.ParseChannelType(c.Param("channel"))
	if err != nil {
		return writeWebhookError(c, err)
	}
	desc, ok := h.registry.GetDescriptor(channelType)
	if !ok {
		return writeWebhookError(c, channel.ErrUnsupportedChannel)
	}
	secret := h.verifySecret(c.Request().Context(), channelType, strings.TrimSpace(c.Param("id")))
	challenge, err := channel.Verify(desc, secret, channel.VerifyRequestFromQuery(c.QueryParams()))
	if err != nil {
		h.logger.Info("webhook verification rejected",
			slog.String("channel", channelType.String()),
			slog.String("integration_id", c.Param("id")),
		)
		return errorJSON(c, http.StatusForbidden, CodeVerificationFailed, "verification failed")
	}
	return c.String(http.StatusOK, challenge)
}

// verifySecret prefers the integration's own verify_token and falls back to
// the configured one.
func (h *WebhookHandler) verifySecret(ctx context.Context, channelType channel.ChannelType, integrationID string) string {
	if h.integrations != nil && integrationID != "" {
		integ, err := h.integrations.Get(ctx, integrationID)
		if err == nil && integ.Channel == channelType {
			if token := channel.ReadString(integ.Credentials, "verify_token", "verifyToken"); token != "" {
				return token
			}
		}
	}
	return h.cfg.VerifyTokenFor(channelType.String())
}

// ackFor returns the plain-text success body of platforms that retry
// anything else, such as VK's "ok".
func (h *WebhookHandler) ackFor(channelName string) string {
	channelType, err := h.registry.ParseChannelType(channelName)
	if err != nil {
		return ""
	}
	desc, ok := h.registry.GetDescriptor(channelType)
	if !ok {
		return ""
	}
	return desc.Ack
}

var errBodyTooLarge = errors.New("request body exceeds the configured limit")

func (h *WebhookHandler) readBody(r *http.Request) ([]byte, error) {
	if r.ContentLength > h.cfg.MaxBodyBytes {
		return nil, errBodyTooLarge
	}
	if r.Body == nil {
		return nil, nil
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, h.cfg.MaxBodyBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(body)) > h.cfg.MaxBodyBytes {
		return nil, errBodyTooLarge
	}
	return body, nil
}
