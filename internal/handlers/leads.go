package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/franchiseos/leadhub/internal/auth"
	"github.com/franchiseos/leadhub/internal/inbound"
	"github.com/franchiseos/leadhub/internal/integration"
	"github.com/franchiseos/leadhub/internal/leads"
)

// LeadManager is the lead surface the API exposes. leads.Service satisfies it.
type LeadManager interface {
	Get(ctx context.Context, leadID string) (leads.Lead, error)
	Events(ctx context.Context, leadID string) ([]leads.Event, error)
	MoveStage(ctx context.Context, leadID, stage, actorID string) (leads.Lead, error)
}

type MoveStageRequest struct {
	Stage string `json:"stage" validate:"required,max=64"`
}

type LeadResponse struct {
	leads.Lead
	Events []leads.Event `json:"events,omitempty"`
}

type LeadHandler struct {
	logger       *slog.Logger
	leads        LeadManager
	integrations inbound.IntegrationSource
}

func NewLeadHandler(log *slog.Logger, leadManager LeadManager, integrations inbound.IntegrationSource) *LeadHandler {
	return &LeadHandler{
		logger:       log.With(slog.String("handler", "lead")),
		leads:        leadManager,
		integrations: integrations,
	}
}

func (h *LeadHandler) Register(e *echo.Echo) {
	group := e.Group("/leads")
	group.GET("/:id", h.Get)
	group.PATCH("/:id/stage", h.MoveStage)
}

// Get godoc
// @Summary Get lead with its history
// @Tags leads
// @Param id path string true "Lead ID"
// @Success 200 {object} LeadResponse
// @Failure 404 {object} ErrorResponse
// @Router /leads/{id} [get]
func (h *LeadHandler) Get(c echo.Context) error {
	lead, _, err := h.authorized(c)
	if err != nil {
		return err
	}
	events, err := h.leads.Events(c.Request().Context(), lead.ID)
	if err != nil {
		return internalError(err)
	}
	return c.JSON(http.StatusOK, LeadResponse{Lead: lead, Events: events})
}

// MoveStage godoc
// @Summary Move a lead to another stage
// @Description Terminal stages close the lead; moving back reopens it
// @Tags leads
// @Param id path string true "Lead ID"
// @Param payload body MoveStageRequest true "Stage"
// @Success 200 {object} leads.Lead
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /leads/{id}/stage [patch]
func (h *LeadHandler) MoveStage(c echo.Context) error {
	lead, principal, err := h.authorized(c)
	if err != nil {
		return err
	}
	var req MoveStageRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	updated, err := h.leads.MoveStage(c.Request().Context(), lead.ID, req.Stage, principal.UserID)
	if err != nil {
		return leadHTTPError(err)
	}
	return c.JSON(http.StatusOK, updated)
}

// authorized loads the lead and checks the caller may manage the
// integration it came from. Leads whose integration is gone are visible to
// platform admins only.
func (h *LeadHandler) authorized(c echo.Context) (leads.Lead, auth.Principal, error) {
	principal, err := auth.PrincipalFromContext(c)
	if err != nil {
		return leads.Lead{}, auth.Principal{}, err
	}
	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		return leads.Lead{}, principal, echo.NewHTTPError(http.StatusBadRequest, "lead id is required")
	}
	ctx := c.Request().Context()
	lead, err := h.leads.Get(ctx, id)
	if err != nil {
		return leads.Lead{}, principal, leadHTTPError(err)
	}
	if principal.IsPlatform() {
		return lead, principal, nil
	}
	notFound := echo.NewHTTPError(http.StatusNotFound, leads.ErrLeadNotFound.Error())
	if lead.IntegrationID == "" || h.integrations == nil {
		return leads.Lead{}, principal, notFound
	}
	integ, err := h.integrations.Get(ctx, lead.IntegrationID)
	if err != nil {
		if errors.Is(err, integration.ErrIntegrationNotFound) {
			return leads.Lead{}, principal, notFound
		}
		return leads.Lead{}, principal, internalError(err)
	}
	if !principal.CanManage(string(integ.OwnerType), integ.OwnerID) {
		return leads.Lead{}, principal, notFound
	}
	return lead, principal, nil
}

func leadHTTPError(err error) error {
	switch {
	case errors.Is(err, leads.ErrLeadNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, leads.ErrInvalidStage):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, leads.ErrOpenLeadExists):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	default:
		return internalError(err)
	}
}
