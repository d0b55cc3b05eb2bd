// Package routing decides what an inbound message does: open a new lead,
// attach to the contact's open lead, or nothing.
package routing

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/franchiseos/leadhub/internal/channel"
	"github.com/franchiseos/leadhub/internal/integration"
	"github.com/franchiseos/leadhub/internal/trigger"
)

// Action is the routing outcome of one message.
type Action string

const (
	ActionCreate  Action = "create_lead"
	ActionAttach  Action = "attach_to_existing"
	ActionDiscard Action = "discard"
)

// Reasons recorded on decisions.
const (
	ReasonIntegrationInactive = "integration_inactive"
	ReasonNoRuleMatch         = "no_rule_match"
	ReasonOpenLeadExists      = "open_lead_exists"
	ReasonNewContact          = "new_contact"
)

// Decision is the routing engine's verdict. ExistingLeadID is set for
// ActionAttach only.
type Decision struct {
	Action         Action `json:"action"`
	ExistingLeadID string `json:"existing_lead_id,omitempty"`
	RuleID         int64  `json:"rule_id,omitempty"`
	Reason         string `json:"reason"`
}

// LeadLookup finds the open lead holding a contact slot.
type LeadLookup interface {
	FindOpenLeadID(ctx context.Context, key channel.ContactKey) (leadID string, found bool, err error)
}

// Engine produces routing decisions.
type Engine struct {
	leads  LeadLookup
	logger *slog.Logger
}

func NewEngine(log *slog.Logger, leads LeadLookup) *Engine {
	if log == nil {
		log = slog.Default()
	}
	return &Engine{
		leads:  leads,
		logger: log.With(slog.String("component", "routing")),
	}
}

// Route decides for msg. rule is nil when no trigger rule matched. The
// decision may be stale by the time it is applied; lead creation re-checks
// the open-lead slot.
func (e *Engine) Route(ctx context.Context, msg channel.InboundMessage, integ integration.Integration, rule *trigger.Rule) (Decision, error) {
	var ruleID int64
	if rule != nil {
		ruleID = rule.ID
	}
	if !integ.Active {
		return Decision{Action: ActionDiscard, RuleID: ruleID, Reason: ReasonIntegrationInactive}, nil
	}
	if rule == nil && integ.RequireRuleMatch {
		return Decision{Action: ActionDiscard, Reason: ReasonNoRuleMatch}, nil
	}
	key := msg.ContactKey()
	if key.IntegrationID == "" {
		key.IntegrationID = integ.ID
	}
	if key.Channel == "" {
		key.Channel = integ.Channel
	}
	if key.ExternalUserID == "" {
		return Decision{}, fmt.Errorf("route message %s: external user id is empty", msg.ID)
	}
	leadID, found, err := e.leads.FindOpenLeadID(ctx, key)
	if err != nil {
		return Decision{}, fmt.Errorf("find open lead: %w", err)
	}
	decision := Decision{Action: ActionCreate, RuleID: ruleID, Reason: ReasonNewContact}
	if found {
		decision = Decision{Action: ActionAttach, ExistingLeadID: leadID, RuleID: ruleID, Reason: ReasonOpenLeadExists}
	}
	e.logger.Debug("message routed",
		slog.String("integration_id", key.IntegrationID),
		slog.String("contact", key.String()),
		slog.String("action", string(decision.Action)),
	)
	return decision, nil
}
