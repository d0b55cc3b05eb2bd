package leads

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/franchiseos/leadhub/internal/audit"
)

// Service exposes stage transitions and duplicate statistics.
type Service struct {
	store  Store
	policy StagePolicy
	audit  audit.Sink
	logger *slog.Logger
}

func NewService(log *slog.Logger, store Store, policy StagePolicy, sink audit.Sink) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		store:  store,
		policy: policy,
		audit:  sink,
		logger: log.With(slog.String("service", "leads")),
	}
}

// Get returns a lead by id.
func (s *Service) Get(ctx context.Context, leadID string) (Lead, error) {
	return s.store.GetLead(ctx, leadID)
}

// Events returns the lead's history, oldest first.
func (s *Service) Events(ctx context.Context, leadID string) ([]Event, error) {
	return s.store.ListEvents(ctx, leadID)
}

// MoveStage sets a lead's stage. is_open follows from the terminal stage set.
func (s *Service) MoveStage(ctx context.Context, leadID, stage, actorID string) (Lead, error) {
	stage = normalizeStage(stage)
	if stage == "" {
		return Lead{}, fmt.Errorf("%w: stage is required", ErrInvalidStage)
	}
	if strings.ContainsAny(stage, " \t\n") {
		return Lead{}, fmt.Errorf("%w: %q", ErrInvalidStage, stage)
	}
	current, err := s.store.GetLead(ctx, leadID)
	if err != nil {
		return Lead{}, err
	}
	open := !s.policy.IsTerminal(stage)
	lead, err := s.store.UpdateStage(ctx, leadID, stage, open, actorID)
	if err != nil {
		return Lead{}, err
	}
	if s.audit != nil {
		s.audit.Record(ctx, audit.Event{
			Type:     audit.LeadStageChanged,
			EntityID: lead.ID,
			ActorID:  actorID,
			Details: map[string]any{
				"from":    current.Stage,
				"to":      lead.Stage,
				"is_open": lead.IsOpen,
			},
		})
	}
	s.logger.Info("lead stage changed",
		slog.String("lead_id", lead.ID),
		slog.String("from", current.Stage),
		slog.String("to", lead.Stage),
		slog.Bool("is_open", lead.IsOpen),
	)
	return lead, nil
}

// DuplicateStat returns the integration's repeat-contact counter.
func (s *Service) DuplicateStat(ctx context.Context, integrationID string) (DuplicateStat, error) {
	return s.store.DuplicateStat(ctx, integrationID)
}

// ResetDuplicates zeroes the integration's repeat-contact counter.
func (s *Service) ResetDuplicates(ctx context.Context, integrationID, actorID string) (DuplicateStat, error) {
	stat, err := s.store.ResetDuplicateStat(ctx, integrationID)
	if err != nil {
		return DuplicateStat{}, err
	}
	if s.audit != nil {
		s.audit.Record(ctx, audit.Event{Type: audit.DuplicatesReset, EntityID: integrationID, ActorID: actorID})
	}
	return stat, nil
}
