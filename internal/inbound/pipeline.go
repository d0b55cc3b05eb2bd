package inbound

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/franchiseos/leadhub/internal/channel"
	"github.com/franchiseos/leadhub/internal/integration"
	"github.com/franchiseos/leadhub/internal/leads"
	"github.com/franchiseos/leadhub/internal/routing"
	"github.com/franchiseos/leadhub/internal/trigger"
)

// RoutingSkipped is reported for deliveries that carried no message.
const RoutingSkipped = "skipped"

// RuleSource lists the active trigger rules of an integration.
type RuleSource interface {
	ListActiveRules(ctx context.Context, integrationID string) ([]trigger.Rule, error)
}

// MessageResult is the applied outcome for one stored message.
type MessageResult struct {
	MessageID string `json:"message_id"`
	Replayed  bool   `json:"replayed,omitempty"`
	RuleID    int64  `json:"rule_id,omitempty"`
	leads.Result
}

// Outcome summarizes a processed delivery. Routing, MessageID and LeadID
// mirror the first message.
type Outcome struct {
	Routing   string          `json:"routing"`
	MessageID string          `json:"message_id,omitempty"`
	LeadID    string          `json:"lead_id,omitempty"`
	Results   []MessageResult `json:"results,omitempty"`

	// Confirmation is the plain-text answer to an in-band handshake.
	Confirmation string `json:"-"`
	Confirmed    bool   `json:"-"`
}

// Pipeline runs normalizer, matcher, routing and lead creation for one
// delivery under an overall timeout.
type Pipeline struct {
	normalizer *Normalizer
	rules      RuleSource
	engine     *routing.Engine
	creator    *leads.Creator
	timeout    time.Duration
	logger     *slog.Logger
}

func NewPipeline(log *slog.Logger, normalizer *Normalizer, rules RuleSource, engine *routing.Engine, creator *leads.Creator, timeout time.Duration) *Pipeline {
	if log == nil {
		log = slog.Default()
	}
	return &Pipeline{
		normalizer: normalizer,
		rules:      rules,
		engine:     engine,
		creator:    creator,
		timeout:    timeout,
		logger:     log.With(slog.String("component", "pipeline")),
	}
}

// Handle processes d. Messages are handled in payload order; the first
// failure aborts the rest, and a retried delivery resumes idempotently
// because stored messages are recognized as replays.
func (p *Pipeline) Handle(ctx context.Context, d Delivery) (Outcome, error) {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}
	normalized, err := p.normalizer.Normalize(ctx, d)
	if err != nil {
		return Outcome{}, err
	}
	if normalized.Confirmed {
		return Outcome{
			Routing:      RoutingSkipped,
			Confirmation: normalized.Confirmation,
			Confirmed:    true,
		}, nil
	}
	if len(normalized.Messages) == 0 {
		return Outcome{Routing: RoutingSkipped}, nil
	}

	integ := normalized.Integration
	var rules []trigger.Rule
	if integ.Active {
		rules, err = p.rules.ListActiveRules(ctx, integ.ID)
		if err != nil {
			return Outcome{}, fmt.Errorf("load trigger rules: %w", err)
		}
	}

	results := make([]MessageResult, 0, len(normalized.Messages))
	for _, msg := range normalized.Messages {
		res, err := p.handleMessage(ctx, msg, integ, rules)
		if err != nil {
			return Outcome{}, err
		}
		results = append(results, res)
	}

	out := Outcome{
		Routing:   string(results[0].Action),
		MessageID: results[0].MessageID,
		Results:   results,
	}
	for _, res := range results {
		if res.LeadID != "" {
			out.LeadID = res.LeadID
			break
		}
	}
	return out, nil
}

func (p *Pipeline) handleMessage(ctx context.Context, msg channel.InboundMessage, integ integration.Integration, rules []trigger.Rule) (MessageResult, error) {
	var matched *trigger.Rule
	if rule, ok := trigger.Match(rules, msg.Text); ok {
		matched = &rule
	}
	decision, err := p.engine.Route(ctx, msg, integ, matched)
	if err != nil {
		return MessageResult{}, fmt.Errorf("routing: %w", err)
	}
	applied, err := p.creator.Apply(ctx, decision, msg, integ)
	if err != nil {
		return MessageResult{}, fmt.Errorf("apply routing for message %s: %w", msg.ID, err)
	}
	p.logger.Info("inbound message routed",
		slog.String("message_id", msg.ID),
		slog.String("integration_id", integ.ID),
		slog.String("action", string(applied.Action)),
		slog.String("reason", applied.Reason),
		slog.String("lead_id", applied.LeadID),
		slog.Bool("replayed", msg.Replayed),
	)
	return MessageResult{
		MessageID: msg.ID,
		Replayed:  msg.Replayed,
		RuleID:    decision.RuleID,
		Result:    applied,
	}, nil
}
