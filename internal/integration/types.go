// Package integration manages the per-tenant channel configurations that
// webhook deliveries are addressed to, together with their trigger rules.
package integration

import (
	"fmt"
	"strings"
	"time"

	"github.com/franchiseos/leadhub/internal/channel"
	"github.com/franchiseos/leadhub/internal/trigger"
)

// OwnerType says whether an integration belongs to the platform or to one franchise.
type OwnerType string

const (
	OwnerPlatform  OwnerType = "platform"
	OwnerFranchise OwnerType = "franchise"
)

// AssignmentStrategy selects how the responsible user of a new lead is chosen.
type AssignmentStrategy string

const (
	StrategyFirstAvailableAdmin AssignmentStrategy = "first_available_admin"
	StrategyRoundRobin          AssignmentStrategy = "round_robin"
	StrategyFixed               AssignmentStrategy = "fixed"
)

// ParseStrategy normalizes raw, defaulting to first_available_admin.
func ParseStrategy(raw string) (AssignmentStrategy, error) {
	switch s := AssignmentStrategy(strings.ToLower(strings.TrimSpace(raw))); s {
	case "":
		return StrategyFirstAvailableAdmin, nil
	case StrategyFirstAvailableAdmin, StrategyRoundRobin, StrategyFixed:
		return s, nil
	default:
		return "", fmt.Errorf("%w: unknown assignment strategy %q", ErrInvalidIntegration, raw)
	}
}

// Integration is one configured channel endpoint of a tenant.
type Integration struct {
	ID                 string              `json:"id"`
	OwnerType          OwnerType           `json:"owner_type"`
	OwnerID            string              `json:"owner_id,omitempty"`
	Channel            channel.ChannelType `json:"channel"`
	Active             bool                `json:"is_active"`
	Credentials        map[string]any      `json:"-"`
	AssignmentStrategy AssignmentStrategy  `json:"assignment_strategy"`
	DefaultAssigneeID  string              `json:"default_assignee_id,omitempty"`
	RequireRuleMatch   bool                `json:"require_rule_match"`
	ArchivedAt         *time.Time          `json:"archived_at,omitempty"`
	CreatedAt          time.Time           `json:"created_at"`
	UpdatedAt          time.Time           `json:"updated_at"`
}

// WebhookPath is the delivery URL path platforms are configured with.
func (i Integration) WebhookPath() string {
	return "/webhooks/" + i.Channel.String() + "/" + i.ID
}

// Archived reports whether the integration was soft-deleted.
func (i Integration) Archived() bool {
	return i.ArchivedAt != nil
}

// CreateRequest is the body of POST /integrations.
type CreateRequest struct {
	OwnerType          string         `json:"owner_type" validate:"required,oneof=platform franchise"`
	OwnerID            string         `json:"owner_id" validate:"omitempty,uuid"`
	Channel            string         `json:"channel" validate:"required"`
	Active             *bool          `json:"is_active"`
	Credentials        map[string]any `json:"credentials"`
	AssignmentStrategy string         `json:"assignment_strategy" validate:"omitempty,oneof=first_available_admin round_robin fixed"`
	DefaultAssigneeID  string         `json:"default_assignee_id" validate:"omitempty,uuid"`
	RequireRuleMatch   *bool          `json:"require_rule_match"`
}

// UpdateRequest is the body of PATCH /integrations/{id}. Nil fields are left unchanged.
type UpdateRequest struct {
	Active             *bool          `json:"is_active"`
	Credentials        map[string]any `json:"credentials"`
	AssignmentStrategy *string        `json:"assignment_strategy" validate:"omitempty,oneof=first_available_admin round_robin fixed"`
	DefaultAssigneeID  *string        `json:"default_assignee_id" validate:"omitempty"`
	RequireRuleMatch   *bool          `json:"require_rule_match"`
}

// RuleRequest is the body of rule create and update calls.
type RuleRequest struct {
	Keywords  []string `json:"keywords" validate:"required,min=1,dive,required"`
	MatchType string   `json:"match_type" validate:"omitempty,oneof=any all"`
	Active    *bool    `json:"is_active"`
	Priority  int32    `json:"priority"`
}

// DeleteOutcome reports what Delete did.
type DeleteOutcome string

const (
	DeleteArchived DeleteOutcome = "archived"
	DeleteRemoved  DeleteOutcome = "deleted"
)

// Scope restricts listings to what a caller may see. A zero Scope lists
// everything.
type Scope struct {
	OwnerType OwnerType
	OwnerID   string
}

// ruleFromRequest validates req into a rule value.
func ruleFromRequest(req RuleRequest) (trigger.Rule, error) {
	keywords, err := trigger.NormalizeKeywords(req.Keywords)
	if err != nil {
		return trigger.Rule{}, fmt.Errorf("%w: %v", ErrInvalidRule, err)
	}
	matchType, err := trigger.ParseMatchType(req.MatchType)
	if err != nil {
		return trigger.Rule{}, fmt.Errorf("%w: %v", ErrInvalidRule, err)
	}
	active := true
	if req.Active != nil {
		active = *req.Active
	}
	return trigger.Rule{
		Keywords:  keywords,
		MatchType: matchType,
		Active:    active,
		Priority:  req.Priority,
	}, nil
}
