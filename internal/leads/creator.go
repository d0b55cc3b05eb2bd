package leads

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/franchiseos/leadhub/internal/audit"
	"github.com/franchiseos/leadhub/internal/channel"
	"github.com/franchiseos/leadhub/internal/integration"
	"github.com/franchiseos/leadhub/internal/routing"
)

// LeadSummary is what an assignee is told about a new lead.
type LeadSummary struct {
	LeadID         string              `json:"lead_id"`
	IntegrationID  string              `json:"integration_id"`
	Channel        channel.ChannelType `json:"channel"`
	ExternalUserID string              `json:"external_user_id"`
	Username       string              `json:"username,omitempty"`
	DisplayName    string              `json:"display_name,omitempty"`
	Phone          string              `json:"phone,omitempty"`
	Text           string              `json:"text"`
	RuleID         int64               `json:"rule_id,omitempty"`
	CreatedAt      time.Time           `json:"created_at"`
}

// Notifier tells an assignee about a new lead. Errors are logged only.
type Notifier interface {
	Notify(ctx context.Context, assigneeID string, summary LeadSummary) error
}

// Result is the applied outcome of a routing decision.
type Result struct {
	Action         routing.Action `json:"action"`
	LeadID         string         `json:"lead_id,omitempty"`
	AssigneeID     string         `json:"assignee_id,omitempty"`
	DuplicateCount int64          `json:"duplicate_count,omitempty"`
	Reason         string         `json:"reason,omitempty"`

	// Converted is set when a create lost the race for the contact slot and
	// was attached to the winning lead instead.
	Converted bool `json:"converted,omitempty"`
}

// Creator applies routing decisions.
type Creator struct {
	store    Store
	assigner *Assigner
	notifier Notifier
	audit    audit.Sink
	logger   *slog.Logger
}

func NewCreator(log *slog.Logger, store Store, assigner *Assigner, notifier Notifier, sink audit.Sink) *Creator {
	if log == nil {
		log = slog.Default()
	}
	return &Creator{
		store:    store,
		assigner: assigner,
		notifier: notifier,
		audit:    sink,
		logger:   log.With(slog.String("component", "lead_creator")),
	}
}

// Apply carries out decision for msg. msg must already be stored.
func (c *Creator) Apply(ctx context.Context, decision routing.Decision, msg channel.InboundMessage, integ integration.Integration) (Result, error) {
	switch decision.Action {
	case routing.ActionDiscard:
		return Result{Action: routing.ActionDiscard, Reason: decision.Reason}, nil
	case routing.ActionAttach:
		return c.attach(ctx, decision.ExistingLeadID, msg, integ, false)
	case routing.ActionCreate:
		return c.create(ctx, decision, msg, integ)
	default:
		return Result{}, fmt.Errorf("unknown routing action %q", decision.Action)
	}
}

func (c *Creator) create(ctx context.Context, decision routing.Decision, msg channel.InboundMessage, integ integration.Integration) (Result, error) {
	assignee, err := c.assigner.Resolve(ctx, integ)
	if err != nil {
		return Result{}, fmt.Errorf("resolve assignee: %w", err)
	}
	key := msg.ContactKey()
	lead, created, err := c.store.CreateLead(ctx, NewLead{
		IntegrationID:     integ.ID,
		Channel:           integ.Channel,
		ExternalUserID:    key.ExternalUserID,
		ResponsibleUserID: assignee,
		MatchedRuleID:     decision.RuleID,
		SourceMessageID:   msg.ID,
		Details: map[string]any{
			"rule_id":  decision.RuleID,
			"username": msg.Sender.Username,
			"phone":    msg.Sender.Phone,
		},
	})
	if err != nil {
		return Result{}, fmt.Errorf("create lead: %w", err)
	}
	if !created {
		c.logger.Info("lead create lost race, attaching",
			slog.String("lead_id", lead.ID),
			slog.String("contact", key.String()),
		)
		return c.attach(ctx, lead.ID, msg, integ, true)
	}

	c.record(ctx, audit.Event{
		Type:     audit.LeadCreated,
		EntityID: lead.ID,
		Details: map[string]any{
			"integration_id": integ.ID,
			"channel":        integ.Channel.String(),
			"assignee_id":    assignee,
			"message_id":     msg.ID,
			"rule_id":        decision.RuleID,
		},
	})
	if c.notifier != nil {
		summary := LeadSummary{
			LeadID:         lead.ID,
			IntegrationID:  integ.ID,
			Channel:        integ.Channel,
			ExternalUserID: key.ExternalUserID,
			Username:       msg.Sender.Username,
			DisplayName:    msg.Sender.DisplayName,
			Phone:          msg.Sender.Phone,
			Text:           msg.Text,
			RuleID:         decision.RuleID,
			CreatedAt:      lead.CreatedAt,
		}
		if err := c.notifier.Notify(ctx, assignee, summary); err != nil {
			c.logger.Warn("lead notification not queued",
				slog.String("lead_id", lead.ID),
				slog.String("assignee_id", assignee),
				slog.Any("error", err),
			)
		}
	}
	c.logger.Info("lead created",
		slog.String("lead_id", lead.ID),
		slog.String("integration_id", integ.ID),
		slog.String("assignee_id", assignee),
	)
	return Result{Action: routing.ActionCreate, LeadID: lead.ID, AssigneeID: assignee, Reason: decision.Reason}, nil
}

func (c *Creator) attach(ctx context.Context, leadID string, msg channel.InboundMessage, integ integration.Integration, converted bool) (Result, error) {
	if leadID == "" {
		return Result{}, fmt.Errorf("attach: %w", ErrLeadNotFound)
	}
	stat, err := c.store.RecordDuplicate(ctx, Duplicate{
		LeadID:        leadID,
		IntegrationID: integ.ID,
		MessageID:     msg.ID,
		Details: map[string]any{
			"external_user_id": msg.Sender.SubjectID,
			"replayed":         msg.Replayed,
		},
	})
	if err != nil {
		return Result{}, fmt.Errorf("record duplicate: %w", err)
	}
	c.record(ctx, audit.Event{
		Type:     audit.LeadDuplicateContact,
		EntityID: leadID,
		Details: map[string]any{
			"integration_id": integ.ID,
			"message_id":     msg.ID,
			"converted":      converted,
		},
	})
	return Result{
		Action:         routing.ActionAttach,
		LeadID:         leadID,
		Converted:      converted,
		DuplicateCount: stat.Count,
		Reason:         routing.ReasonOpenLeadExists,
	}, nil
}

func (c *Creator) record(ctx context.Context, event audit.Event) {
	if c.audit == nil {
		return
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	c.audit.Record(ctx, event)
}
