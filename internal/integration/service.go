package integration

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/franchiseos/leadhub/internal/channel"
	"github.com/franchiseos/leadhub/internal/db"
	"github.com/franchiseos/leadhub/internal/db/sqlc"
	"github.com/franchiseos/leadhub/internal/trigger"
)

var (
	ErrIntegrationNotFound = errors.New("integration not found")
	ErrRuleNotFound        = errors.New("trigger rule not found")
	ErrInvalidIntegration  = errors.New("invalid integration")
	ErrInvalidRule         = errors.New("invalid trigger rule")
)

// Service provides integration and trigger rule CRUD.
type Service struct {
	queries  *sqlc.Queries
	channels *channel.Registry
	logger   *slog.Logger
}

// NewService creates an integration service. channels validates channel
// names against the registered adapters.
func NewService(log *slog.Logger, queries *sqlc.Queries, channels *channel.Registry) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		queries:  queries,
		channels: channels,
		logger:   log.With(slog.String("service", "integration")),
	}
}

// Create stores a new integration.
func (s *Service) Create(ctx context.Context, req CreateRequest) (Integration, error) {
	if s.queries == nil {
		return Integration{}, fmt.Errorf("integration queries not configured")
	}
	ct, err := s.parseChannel(req.Channel)
	if err != nil {
		return Integration{}, err
	}
	ownerType := OwnerType(strings.TrimSpace(req.OwnerType))
	ownerID, err := db.ParseOptionalUUID(req.OwnerID)
	if err != nil {
		return Integration{}, fmt.Errorf("%w: owner_id: %v", ErrInvalidIntegration, err)
	}
	switch ownerType {
	case OwnerFranchise:
		if !ownerID.Valid {
			return Integration{}, fmt.Errorf("%w: franchise integrations require owner_id", ErrInvalidIntegration)
		}
	case OwnerPlatform:
		ownerID = pgtype.UUID{}
	default:
		return Integration{}, fmt.Errorf("%w: unknown owner type %q", ErrInvalidIntegration, req.OwnerType)
	}
	strategy, err := ParseStrategy(req.AssignmentStrategy)
	if err != nil {
		return Integration{}, err
	}
	assignee, err := db.ParseOptionalUUID(req.DefaultAssigneeID)
	if err != nil {
		return Integration{}, fmt.Errorf("%w: default_assignee_id: %v", ErrInvalidIntegration, err)
	}
	if strategy == StrategyFixed && !assignee.Valid {
		return Integration{}, fmt.Errorf("%w: fixed assignment requires default_assignee_id", ErrInvalidIntegration)
	}
	credentials, err := marshalCredentials(req.Credentials)
	if err != nil {
		return Integration{}, err
	}
	active := true
	if req.Active != nil {
		active = *req.Active
	}
	requireMatch := true
	if req.RequireRuleMatch != nil {
		requireMatch = *req.RequireRuleMatch
	}
	row, err := s.queries.CreateIntegration(ctx, sqlc.CreateIntegrationParams{
		OwnerType:          string(ownerType),
		OwnerID:            ownerID,
		Channel:            ct.String(),
		IsActive:           active,
		Credentials:        credentials,
		AssignmentStrategy: string(strategy),
		DefaultAssigneeID:  assignee,
		RequireRuleMatch:   requireMatch,
	})
	if err != nil {
		return Integration{}, fmt.Errorf("create integration: %w", err)
	}
	item, err := toIntegration(row)
	if err != nil {
		return Integration{}, err
	}
	s.logger.Info("integration created",
		slog.String("integration_id", item.ID),
		slog.String("channel", item.Channel.String()),
		slog.String("owner_type", string(item.OwnerType)),
	)
	return item, nil
}

// Get returns an integration by id, archived ones included.
func (s *Service) Get(ctx context.Context, integrationID string) (Integration, error) {
	if s.queries == nil {
		return Integration{}, fmt.Errorf("integration queries not configured")
	}
	pgID, err := db.ParseUUID(integrationID)
	if err != nil {
		return Integration{}, ErrIntegrationNotFound
	}
	row, err := s.queries.GetIntegrationByID(ctx, pgID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Integration{}, ErrIntegrationNotFound
		}
		return Integration{}, fmt.Errorf("get integration: %w", err)
	}
	return toIntegration(row)
}

// List returns the integrations visible within scope.
func (s *Service) List(ctx context.Context, scope Scope) ([]Integration, error) {
	if s.queries == nil {
		return nil, fmt.Errorf("integration queries not configured")
	}
	var (
		rows []sqlc.Integration
		err  error
	)
	if scope.OwnerType == "" {
		rows, err = s.queries.ListIntegrations(ctx)
	} else {
		ownerID, parseErr := db.ParseOptionalUUID(scope.OwnerID)
		if parseErr != nil {
			return nil, fmt.Errorf("%w: owner_id: %v", ErrInvalidIntegration, parseErr)
		}
		rows, err = s.queries.ListIntegrationsByOwner(ctx, sqlc.ListIntegrationsByOwnerParams{
			OwnerType: string(scope.OwnerType),
			OwnerID:   ownerID,
		})
	}
	if err != nil {
		return nil, fmt.Errorf("list integrations: %w", err)
	}
	items := make([]Integration, 0, len(rows))
	for _, row := range rows {
		item, err := toIntegration(row)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

// Update applies the non-nil fields of req.
func (s *Service) Update(ctx context.Context, integrationID string, req UpdateRequest) (Integration, error) {
	existing, err := s.Get(ctx, integrationID)
	if err != nil {
		return Integration{}, err
	}
	if existing.Archived() && req.Active != nil && *req.Active {
		return Integration{}, fmt.Errorf("%w: archived integrations cannot be reactivated", ErrInvalidIntegration)
	}
	active := existing.Active
	if req.Active != nil {
		active = *req.Active
	}
	strategy := existing.AssignmentStrategy
	if req.AssignmentStrategy != nil {
		if strategy, err = ParseStrategy(*req.AssignmentStrategy); err != nil {
			return Integration{}, err
		}
	}
	assigneeID := existing.DefaultAssigneeID
	if req.DefaultAssigneeID != nil {
		assigneeID = strings.TrimSpace(*req.DefaultAssigneeID)
	}
	assignee, err := db.ParseOptionalUUID(assigneeID)
	if err != nil {
		return Integration{}, fmt.Errorf("%w: default_assignee_id: %v", ErrInvalidIntegration, err)
	}
	if strategy == StrategyFixed && !assignee.Valid {
		return Integration{}, fmt.Errorf("%w: fixed assignment requires default_assignee_id", ErrInvalidIntegration)
	}
	credentials := existing.Credentials
	if req.Credentials != nil {
		credentials = req.Credentials
	}
	rawCredentials, err := marshalCredentials(credentials)
	if err != nil {
		return Integration{}, err
	}
	requireMatch := existing.RequireRuleMatch
	if req.RequireRuleMatch != nil {
		requireMatch = *req.RequireRuleMatch
	}
	pgID, err := db.ParseUUID(existing.ID)
	if err != nil {
		return Integration{}, err
	}
	row, err := s.queries.UpdateIntegration(ctx, sqlc.UpdateIntegrationParams{
		ID:                 pgID,
		IsActive:           active,
		Credentials:        rawCredentials,
		AssignmentStrategy: string(strategy),
		DefaultAssigneeID:  assignee,
		RequireRuleMatch:   requireMatch,
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Integration{}, ErrIntegrationNotFound
		}
		return Integration{}, fmt.Errorf("update integration: %w", err)
	}
	return toIntegration(row)
}

// Delete archives an integration that still has trigger rules or message
// history, and removes it otherwise. hard forces removal, cascading to the
// rules and messages.
func (s *Service) Delete(ctx context.Context, integrationID string, hard bool) (DeleteOutcome, error) {
	if s.queries == nil {
		return "", fmt.Errorf("integration queries not configured")
	}
	pgID, err := db.ParseUUID(integrationID)
	if err != nil {
		return "", ErrIntegrationNotFound
	}
	if !hard {
		children, err := s.queries.CountIntegrationChildren(ctx, pgID)
		if err != nil {
			return "", fmt.Errorf("count integration children: %w", err)
		}
		if children > 0 {
			if _, err := s.queries.ArchiveIntegration(ctx, pgID); err != nil {
				if errors.Is(err, pgx.ErrNoRows) {
					return "", ErrIntegrationNotFound
				}
				return "", fmt.Errorf("archive integration: %w", err)
			}
			s.logger.Info("integration archived", slog.String("integration_id", integrationID), slog.Int64("children", children))
			return DeleteArchived, nil
		}
	}
	affected, err := s.queries.DeleteIntegration(ctx, pgID)
	if err != nil {
		return "", fmt.Errorf("delete integration: %w", err)
	}
	if affected == 0 {
		return "", ErrIntegrationNotFound
	}
	s.logger.Info("integration deleted", slog.String("integration_id", integrationID), slog.Bool("hard", hard))
	return DeleteRemoved, nil
}

// ListActiveRules returns the active rules in match order.
func (s *Service) ListActiveRules(ctx context.Context, integrationID string) ([]trigger.Rule, error) {
	if s.queries == nil {
		return nil, fmt.Errorf("integration queries not configured")
	}
	pgID, err := db.ParseUUID(integrationID)
	if err != nil {
		return nil, ErrIntegrationNotFound
	}
	rows, err := s.queries.ListActiveTriggerRules(ctx, pgID)
	if err != nil {
		return nil, fmt.Errorf("list active trigger rules: %w", err)
	}
	return toRules(rows), nil
}

// ListRules returns every rule of an integration in match order.
func (s *Service) ListRules(ctx context.Context, integrationID string) ([]trigger.Rule, error) {
	if s.queries == nil {
		return nil, fmt.Errorf("integration queries not configured")
	}
	pgID, err := db.ParseUUID(integrationID)
	if err != nil {
		return nil, ErrIntegrationNotFound
	}
	rows, err := s.queries.ListTriggerRules(ctx, pgID)
	if err != nil {
		return nil, fmt.Errorf("list trigger rules: %w", err)
	}
	return toRules(rows), nil
}

// CreateRule adds a trigger rule to an integration.
func (s *Service) CreateRule(ctx context.Context, integrationID string, req RuleRequest) (trigger.Rule, error) {
	if s.queries == nil {
		return trigger.Rule{}, fmt.Errorf("integration queries not configured")
	}
	rule, err := ruleFromRequest(req)
	if err != nil {
		return trigger.Rule{}, err
	}
	pgID, err := db.ParseUUID(integrationID)
	if err != nil {
		return trigger.Rule{}, ErrIntegrationNotFound
	}
	row, err := s.queries.CreateTriggerRule(ctx, sqlc.CreateTriggerRuleParams{
		IntegrationID: pgID,
		Keywords:      rule.Keywords,
		MatchType:     string(rule.MatchType),
		IsActive:      rule.Active,
		Priority:      rule.Priority,
	})
	if err != nil {
		return trigger.Rule{}, fmt.Errorf("create trigger rule: %w", err)
	}
	return toRule(row), nil
}

// UpdateRule replaces a rule's keywords, match type, active flag and priority.
func (s *Service) UpdateRule(ctx context.Context, integrationID string, ruleID int64, req RuleRequest) (trigger.Rule, error) {
	if s.queries == nil {
		return trigger.Rule{}, fmt.Errorf("integration queries not configured")
	}
	rule, err := ruleFromRequest(req)
	if err != nil {
		return trigger.Rule{}, err
	}
	pgID, err := db.ParseUUID(integrationID)
	if err != nil {
		return trigger.Rule{}, ErrIntegrationNotFound
	}
	row, err := s.queries.UpdateTriggerRule(ctx, sqlc.UpdateTriggerRuleParams{
		ID:            ruleID,
		IntegrationID: pgID,
		Keywords:      rule.Keywords,
		MatchType:     string(rule.MatchType),
		IsActive:      rule.Active,
		Priority:      rule.Priority,
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return trigger.Rule{}, ErrRuleNotFound
		}
		return trigger.Rule{}, fmt.Errorf("update trigger rule: %w", err)
	}
	return toRule(row), nil
}

// DeleteRule removes a rule.
func (s *Service) DeleteRule(ctx context.Context, integrationID string, ruleID int64) error {
	if s.queries == nil {
		return fmt.Errorf("integration queries not configured")
	}
	pgID, err := db.ParseUUID(integrationID)
	if err != nil {
		return ErrIntegrationNotFound
	}
	affected, err := s.queries.DeleteTriggerRule(ctx, sqlc.DeleteTriggerRuleParams{ID: ruleID, IntegrationID: pgID})
	if err != nil {
		return fmt.Errorf("delete trigger rule: %w", err)
	}
	if affected == 0 {
		return ErrRuleNotFound
	}
	return nil
}

func (s *Service) parseChannel(raw string) (channel.ChannelType, error) {
	if s.channels != nil {
		return s.channels.ParseChannelType(raw)
	}
	return channel.ParseChannelType(raw)
}

func marshalCredentials(credentials map[string]any) ([]byte, error) {
	if credentials == nil {
		return []byte("{}"), nil
	}
	raw, err := json.Marshal(credentials)
	if err != nil {
		return nil, fmt.Errorf("%w: credentials: %v", ErrInvalidIntegration, err)
	}
	return raw, nil
}

func toIntegration(row sqlc.Integration) (Integration, error) {
	credentials, err := channel.DecodeConfigMap(row.Credentials)
	if err != nil {
		return Integration{}, fmt.Errorf("decode integration credentials: %w", err)
	}
	item := Integration{
		ID:                 db.UUIDToString(row.ID),
		OwnerType:          OwnerType(row.OwnerType),
		OwnerID:            db.UUIDToString(row.OwnerID),
		Channel:            channel.ChannelType(row.Channel),
		Active:             row.IsActive,
		Credentials:        credentials,
		AssignmentStrategy: AssignmentStrategy(row.AssignmentStrategy),
		DefaultAssigneeID:  db.UUIDToString(row.DefaultAssigneeID),
		RequireRuleMatch:   row.RequireRuleMatch,
		CreatedAt:          db.TimeFromPg(row.CreatedAt),
		UpdatedAt:          db.TimeFromPg(row.UpdatedAt),
	}
	if row.ArchivedAt.Valid {
		archived := row.ArchivedAt.Time
		item.ArchivedAt = &archived
	}
	return item, nil
}

func toRule(row sqlc.TriggerRule) trigger.Rule {
	return trigger.Rule{
		ID:            row.ID,
		IntegrationID: db.UUIDToString(row.IntegrationID),
		Keywords:      append([]string(nil), row.Keywords...),
		MatchType:     trigger.MatchType(row.MatchType),
		Active:        row.IsActive,
		Priority:      row.Priority,
	}
}

func toRules(rows []sqlc.TriggerRule) []trigger.Rule {
	items := make([]trigger.Rule, 0, len(rows))
	for _, row := range rows {
		items = append(items, toRule(row))
	}
	return items
}
