package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/franchiseos/leadhub/internal/auth"
	"github.com/franchiseos/leadhub/internal/channel"
	"github.com/franchiseos/leadhub/internal/integration"
	"github.com/franchiseos/leadhub/internal/leads"
	"github.com/franchiseos/leadhub/internal/trigger"
)

// IntegrationManager is the configuration surface of integration.Service.
type IntegrationManager interface {
	Create(ctx context.Context, req integration.CreateRequest) (integration.Integration, error)
	Get(ctx context.Context, integrationID string) (integration.Integration, error)
	List(ctx context.Context, scope integration.Scope) ([]integration.Integration, error)
	Update(ctx context.Context, integrationID string, req integration.UpdateRequest) (integration.Integration, error)
	Delete(ctx context.Context, integrationID string, hard bool) (integration.DeleteOutcome, error)
	ListRules(ctx context.Context, integrationID string) ([]trigger.Rule, error)
	CreateRule(ctx context.Context, integrationID string, req integration.RuleRequest) (trigger.Rule, error)
	UpdateRule(ctx context.Context, integrationID string, ruleID int64, req integration.RuleRequest) (trigger.Rule, error)
	DeleteRule(ctx context.Context, integrationID string, ruleID int64) error
}

// DuplicateManager reads and resets per-integration duplicate counters.
// leads.Service satisfies it.
type DuplicateManager interface {
	DuplicateStat(ctx context.Context, integrationID string) (leads.DuplicateStat, error)
	ResetDuplicates(ctx context.Context, integrationID, actorID string) (leads.DuplicateStat, error)
}

// UserDirectory resolves staff records. *leads.DBStore satisfies it.
type UserDirectory interface {
	GetUser(ctx context.Context, userID string) (leads.User, error)
}

// IntegrationView is an integration as returned by the configuration API.
type IntegrationView struct {
	integration.Integration
	WebhookPath    string   `json:"webhook_path"`
	CredentialKeys []string `json:"credential_keys,omitempty"`
}

type DeleteIntegrationResponse struct {
	ID      string                    `json:"id"`
	Outcome integration.DeleteOutcome `json:"outcome"`
}

type IntegrationHandler struct {
	logger       *slog.Logger
	integrations IntegrationManager
	duplicates   DuplicateManager
	users        UserDirectory
}

func NewIntegrationHandler(log *slog.Logger, integrations IntegrationManager, duplicates DuplicateManager, users UserDirectory) *IntegrationHandler {
	return &IntegrationHandler{
		logger:       log.With(slog.String("handler", "integration")),
		integrations: integrations,
		duplicates:   duplicates,
		users:        users,
	}
}

func (h *IntegrationHandler) Register(e *echo.Echo) {
	group := e.Group("/integrations")
	group.POST("", h.Create)
	group.GET("", h.List)
	group.GET("/:id", h.Get)
	group.PATCH("/:id", h.Update)
	group.DELETE("/:id", h.Delete)

	group.POST("/:id/rules", h.CreateRule)
	group.GET("/:id/rules", h.ListRules)
	group.PATCH("/:id/rules/:ruleId", h.UpdateRule)
	group.DELETE("/:id/rules/:ruleId", h.DeleteRule)

	group.GET("/:id/duplicates", h.GetDuplicates)
	group.DELETE("/:id/duplicates", h.ResetDuplicates)
}

// Create godoc
// @Summary Create integration
// @Tags integrations
// @Param payload body integration.CreateRequest true "Integration"
// @Success 201 {object} IntegrationView
// @Failure 400 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /integrations [post]
func (h *IntegrationHandler) Create(c echo.Context) error {
	principal, err := auth.PrincipalFromContext(c)
	if err != nil {
		return err
	}
	var req integration.CreateRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	if !principal.CanManage(req.OwnerType, req.OwnerID) {
		return echo.NewHTTPError(http.StatusForbidden, "not allowed to manage this owner")
	}
	ctx := c.Request().Context()
	if err := h.checkAssignee(ctx, integration.OwnerType(req.OwnerType), req.OwnerID, req.DefaultAssigneeID); err != nil {
		return err
	}
	item, err := h.integrations.Create(ctx, req)
	if err != nil {
		return integrationHTTPError(err)
	}
	h.logger.Info("integration created via api",
		slog.String("integration_id", item.ID),
		slog.String("actor_id", principal.UserID),
	)
	return c.JSON(http.StatusCreated, newIntegrationView(item))
}

// List godoc
// @Summary List integrations visible to the caller
// @Tags integrations
// @Success 200 {array} IntegrationView
// @Failure 403 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /integrations [get]
func (h *IntegrationHandler) List(c echo.Context) error {
	principal, err := auth.PrincipalFromContext(c)
	if err != nil {
		return err
	}
	var scope integration.Scope
	if !principal.IsPlatform() {
		if principal.Role != auth.RoleAdmin || principal.FranchiseID == "" {
			return echo.NewHTTPError(http.StatusForbidden, "not allowed to list integrations")
		}
		scope = integration.Scope{OwnerType: integration.OwnerFranchise, OwnerID: principal.FranchiseID}
	}
	items, err := h.integrations.List(c.Request().Context(), scope)
	if err != nil {
		return integrationHTTPError(err)
	}
	views := make([]IntegrationView, 0, len(items))
	for _, item := range items {
		views = append(views, newIntegrationView(item))
	}
	return c.JSON(http.StatusOK, views)
}

// Get godoc
// @Summary Get integration
// @Tags integrations
// @Param id path string true "Integration ID"
// @Success 200 {object} IntegrationView
// @Failure 404 {object} ErrorResponse
// @Router /integrations/{id} [get]
func (h *IntegrationHandler) Get(c echo.Context) error {
	item, _, err := h.authorized(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, newIntegrationView(item))
}

// Update godoc
// @Summary Update integration
// @Tags integrations
// @Param id path string true "Integration ID"
// @Param payload body integration.UpdateRequest true "Changes"
// @Success 200 {object} IntegrationView
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /integrations/{id} [patch]
func (h *IntegrationHandler) Update(c echo.Context) error {
	item, principal, err := h.authorized(c)
	if err != nil {
		return err
	}
	var req integration.UpdateRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	ctx := c.Request().Context()
	if req.DefaultAssigneeID != nil {
		if err := h.checkAssignee(ctx, item.OwnerType, item.OwnerID, *req.DefaultAssigneeID); err != nil {
			return err
		}
	}
	updated, err := h.integrations.Update(ctx, item.ID, req)
	if err != nil {
		return integrationHTTPError(err)
	}
	h.logger.Info("integration updated via api",
		slog.String("integration_id", item.ID),
		slog.String("actor_id", principal.UserID),
	)
	return c.JSON(http.StatusOK, newIntegrationView(updated))
}

// Delete godoc
// @Summary Delete integration
// @Description Archives integrations with history unless hard=true
// @Tags integrations
// @Param id path string true "Integration ID"
// @Param hard query bool false "Cascade delete rules and message history"
// @Success 200 {object} DeleteIntegrationResponse
// @Failure 404 {object} ErrorResponse
// @Router /integrations/{id} [delete]
func (h *IntegrationHandler) Delete(c echo.Context) error {
	item, principal, err := h.authorized(c)
	if err != nil {
		return err
	}
	hard, _ := strconv.ParseBool(c.QueryParam("hard"))
	outcome, err := h.integrations.Delete(c.Request().Context(), item.ID, hard)
	if err != nil {
		return integrationHTTPError(err)
	}
	h.logger.Info("integration deleted via api",
		slog.String("integration_id", item.ID),
		slog.String("actor_id", principal.UserID),
		slog.String("outcome", string(outcome)),
	)
	return c.JSON(http.StatusOK, DeleteIntegrationResponse{ID: item.ID, Outcome: outcome})
}

// CreateRule godoc
// @Summary Add a trigger rule
// @Tags integrations
// @Param id path string true "Integration ID"
// @Param payload body integration.RuleRequest true "Rule"
// @Success 201 {object} trigger.Rule
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /integrations/{id}/rules [post]
func (h *IntegrationHandler) CreateRule(c echo.Context) error {
	item, _, err := h.authorized(c)
	if err != nil {
		return err
	}
	var req integration.RuleRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	rule, err := h.integrations.CreateRule(c.Request().Context(), item.ID, req)
	if err != nil {
		return integrationHTTPError(err)
	}
	return c.JSON(http.StatusCreated, rule)
}

// ListRules godoc
// @Summary List trigger rules
// @Tags integrations
// @Param id path string true "Integration ID"
// @Success 200 {array} trigger.Rule
// @Failure 404 {object} ErrorResponse
// @Router /integrations/{id}/rules [get]
func (h *IntegrationHandler) ListRules(c echo.Context) error {
	item, _, err := h.authorized(c)
	if err != nil {
		return err
	}
	rules, err := h.integrations.ListRules(c.Request().Context(), item.ID)
	if err != nil {
		return integrationHTTPError(err)
	}
	if rules == nil {
		rules = []trigger.Rule{}
	}
	return c.JSON(http.StatusOK, rules)
}

// UpdateRule godoc
// @Summary Replace a trigger rule
// @Tags integrations
// @Param id path string true "Integration ID"
// @Param ruleId path int true "Rule ID"
// @Param payload body integration.RuleRequest true "Rule"
// @Success 200 {object} trigger.Rule
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /integrations/{id}/rules/{ruleId} [patch]
func (h *IntegrationHandler) UpdateRule(c echo.Context) error {
	item, _, err := h.authorized(c)
	if err != nil {
		return err
	}
	ruleID, err := parseRuleID(c)
	if err != nil {
		return err
	}
	var req integration.RuleRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	rule, err := h.integrations.UpdateRule(c.Request().Context(), item.ID, ruleID, req)
	if err != nil {
		return integrationHTTPError(err)
	}
	return c.JSON(http.StatusOK, rule)
}

// DeleteRule godoc
// @Summary Delete a trigger rule
// @Tags integrations
// @Param id path string true "Integration ID"
// @Param ruleId path int true "Rule ID"
// @Success 204
// @Failure 404 {object} ErrorResponse
// @Router /integrations/{id}/rules/{ruleId} [delete]
func (h *IntegrationHandler) DeleteRule(c echo.Context) error {
	item, _, err := h.authorized(c)
	if err != nil {
		return err
	}
	ruleID, err := parseRuleID(c)
	if err != nil {
		return err
	}
	if err := h.integrations.DeleteRule(c.Request().Context(), item.ID, ruleID); err != nil {
		return integrationHTTPError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// GetDuplicates godoc
// @Summary Duplicate contact counter
// @Tags integrations
// @Param id path string true "Integration ID"
// @Success 200 {object} leads.DuplicateStat
// @Failure 404 {object} ErrorResponse
// @Router /integrations/{id}/duplicates [get]
func (h *IntegrationHandler) GetDuplicates(c echo.Context) error {
	item, _, err := h.authorized(c)
	if err != nil {
		return err
	}
	stat, err := h.duplicates.DuplicateStat(c.Request().Context(), item.ID)
	if err != nil {
		return internalError(err)
	}
	return c.JSON(http.StatusOK, stat)
}

// ResetDuplicates godoc
// @Summary Reset the duplicate contact counter
// @Tags integrations
// @Param id path string true "Integration ID"
// @Success 200 {object} leads.DuplicateStat
// @Failure 404 {object} ErrorResponse
// @Router /integrations/{id}/duplicates [delete]
func (h *IntegrationHandler) ResetDuplicates(c echo.Context) error {
	item, principal, err := h.authorized(c)
	if err != nil {
		return err
	}
	stat, err := h.duplicates.ResetDuplicates(c.Request().Context(), item.ID, principal.UserID)
	if err != nil {
		return internalError(err)
	}
	return c.JSON(http.StatusOK, stat)
}

// authorized loads the integration named by :id and checks the caller may
// manage it. Integrations of other tenants look like missing ones.
func (h *IntegrationHandler) authorized(c echo.Context) (integration.Integration, auth.Principal, error) {
	principal, err := auth.PrincipalFromContext(c)
	if err != nil {
		return integration.Integration{}, auth.Principal{}, err
	}
	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		return integration.Integration{}, principal, echo.NewHTTPError(http.StatusBadRequest, "integration id is required")
	}
	item, err := h.integrations.Get(c.Request().Context(), id)
	if err != nil {
		return integration.Integration{}, principal, integrationHTTPError(err)
	}
	if !principal.CanManage(string(item.OwnerType), item.OwnerID) {
		return integration.Integration{}, principal, echo.NewHTTPError(http.StatusNotFound, integration.ErrIntegrationNotFound.Error())
	}
	return item, principal, nil
}

// checkAssignee accepts an empty assignee, or an active user on the staff
// of the integration owner. Platform integrations take platform staff only.
func (h *IntegrationHandler) checkAssignee(ctx context.Context, ownerType integration.OwnerType, ownerID, assigneeID string) error {
	assigneeID = strings.TrimSpace(assigneeID)
	if assigneeID == "" {
		return nil
	}
	if h.users == nil {
		return internalError(errors.New("user directory not configured"))
	}
	user, err := h.users.GetUser(ctx, assigneeID)
	if err != nil {
		if errors.Is(err, leads.ErrUserNotFound) {
			return integrationHTTPError(fmt.Errorf("%w: default_assignee_id: user not found", integration.ErrInvalidIntegration))
		}
		return internalError(err)
	}
	if !user.Active {
		return integrationHTTPError(fmt.Errorf("%w: default_assignee_id: user is inactive", integration.ErrInvalidIntegration))
	}
	var inScope bool
	switch ownerType {
	case integration.OwnerFranchise:
		inScope = user.FranchiseID != "" && strings.EqualFold(user.FranchiseID, strings.TrimSpace(ownerID))
	case integration.OwnerPlatform:
		inScope = user.FranchiseID == ""
	}
	if !inScope {
		return integrationHTTPError(fmt.Errorf("%w: default_assignee_id: user is not staff of the integration owner", integration.ErrInvalidIntegration))
	}
	return nil
}

func parseRuleID(c echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("ruleId"), 10, 64)
	if err != nil || id <= 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid rule id")
	}
	return id, nil
}

func integrationHTTPError(err error) error {
	switch {
	case errors.Is(err, integration.ErrIntegrationNotFound), errors.Is(err, integration.ErrRuleNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, integration.ErrInvalidIntegration), errors.Is(err, integration.ErrInvalidRule),
		errors.Is(err, channel.ErrUnsupportedChannel):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	default:
		return internalError(err)
	}
}

func newIntegrationView(item integration.Integration) IntegrationView {
	keys := make([]string, 0, len(item.Credentials))
	for key := range item.Credentials {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return IntegrationView{
		Integration:    item,
		WebhookPath:    item.WebhookPath(),
		CredentialKeys: keys,
	}
}
