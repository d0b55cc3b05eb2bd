package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/franchiseos/leadhub/internal/channel"
)

type ChannelHandler struct {
	registry *channel.Registry
}

func NewChannelHandler(registry *channel.Registry) *ChannelHandler {
	return &ChannelHandler{registry: registry}
}

func (h *ChannelHandler) Register(e *echo.Echo) {
	metaGroup := e.Group("/channels")
	metaGroup.GET("", h.ListChannels)
	metaGroup.GET("/:platform", h.GetChannel)
}

type ChannelMeta struct {
	Type           string                   `json:"type"`
	DisplayName    string                   `json:"display_name"`
	Verification   channel.VerificationMode `json:"verification"`
	ProvidesPhone  bool                     `json:"provides_phone"`
	CredentialKeys []string                 `json:"credential_keys,omitempty"`
}

func channelMeta(desc channel.Descriptor) ChannelMeta {
	return ChannelMeta{
		Type:           desc.Type.String(),
		DisplayName:    desc.DisplayName,
		Verification:   desc.Verification,
		ProvidesPhone:  desc.ProvidesPhone,
		CredentialKeys: desc.CredentialKeys,
	}
}

// ListChannels godoc
// @Summary List supported channels
// @Description List the registered channels with their verification mode and credential keys
// @Tags channel
// @Success 200 {array} ChannelMeta
// @Router /channels [get]
func (h *ChannelHandler) ListChannels(c echo.Context) error {
	descs := h.registry.ListDescriptors()
	items := make([]ChannelMeta, 0, len(descs))
	for _, desc := range descs {
		items = append(items, channelMeta(desc))
	}
	return c.JSON(http.StatusOK, items)
}

// GetChannel godoc
// @Summary Get channel
// @Tags channel
// @Param platform path string true "Channel platform"
// @Success 200 {object} ChannelMeta
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /channels/{platform} [get]
func (h *ChannelHandler) GetChannel(c echo.Context) error {
	channelType, err := h.registry.ParseChannelType(c.Param("platform"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	desc, ok := h.registry.GetDescriptor(channelType)
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "channel not found")
	}
	return c.JSON(http.StatusOK, channelMeta(desc))
}
