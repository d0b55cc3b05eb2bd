// Package leadstest provides an in-memory leads.Store and leads.Roster for
// tests. It enforces the one-open-lead-per-contact rule the way the partial
// unique index does.
package leadstest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/franchiseos/leadhub/internal/channel"
	"github.com/franchiseos/leadhub/internal/integration"
	"github.com/franchiseos/leadhub/internal/leads"
)

// Store is a concurrency-safe in-memory implementation of leads.Store and
// leads.Roster.
type Store struct {
	mu      sync.Mutex
	leads   map[string]leads.Lead
	open    map[string]string
	events  map[string][]leads.Event
	stats   map[string]leads.DuplicateStat
	cursors map[string]int64
	users   []leads.User
	nextEv  int64

	// Hooks let tests inject failures. A non-nil error is returned as-is.
	FailCreate error
	FailAttach error
}

// New returns an empty store with the given roster.
func New(users ...leads.User) *Store {
	return &Store{
		leads:   map[string]leads.Lead{},
		open:    map[string]string{},
		events:  map[string][]leads.Event{},
		stats:   map[string]leads.DuplicateStat{},
		cursors: map[string]int64{},
		users:   users,
	}
}

func (s *Store) FindOpenLeadID(_ context.Context, key channel.ContactKey) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.open[key.String()]
	return id, ok, nil
}

func (s *Store) GetLead(_ context.Context, leadID string) (leads.Lead, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	lead, ok := s.leads[leadID]
	if !ok {
		return leads.Lead{}, leads.ErrLeadNotFound
	}
	return lead, nil
}

func (s *Store) CreateLead(_ context.Context, in leads.NewLead) (leads.Lead, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailCreate != nil {
		return leads.Lead{}, false, s.FailCreate
	}
	key := channel.ContactKey{IntegrationID: in.IntegrationID, Channel: in.Channel, ExternalUserID: in.ExternalUserID}.String()
	if id, ok := s.open[key]; ok {
		return s.leads[id], false, nil
	}
	now := time.Now().UTC()
	lead := leads.Lead{
		ID:                uuid.NewString(),
		IntegrationID:     in.IntegrationID,
		Channel:           in.Channel,
		ExternalUserID:    in.ExternalUserID,
		ResponsibleUserID: in.ResponsibleUserID,
		Stage:             leads.StageNew,
		IsOpen:            true,
		MatchedRuleID:     in.MatchedRuleID,
		SourceMessageID:   in.SourceMessageID,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	s.leads[lead.ID] = lead
	s.open[key] = lead.ID
	s.appendEvent(lead.ID, leads.EventLeadCreated, leads.PriorityNormal, in.SourceMessageID, in.Details)
	return lead, true, nil
}

func (s *Store) RecordDuplicate(_ context.Context, dup leads.Duplicate) (leads.DuplicateStat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailAttach != nil {
		return leads.DuplicateStat{}, s.FailAttach
	}
	if _, ok := s.leads[dup.LeadID]; !ok {
		return leads.DuplicateStat{}, leads.ErrLeadNotFound
	}
	now := time.Now().UTC()
	stat := s.stats[dup.IntegrationID]
	stat.IntegrationID = dup.IntegrationID
	stat.Count++
	stat.LastDuplicateAt = &now
	s.stats[dup.IntegrationID] = stat
	s.appendEvent(dup.LeadID, leads.EventDuplicateContact, leads.PriorityLow, dup.MessageID, dup.Details)
	return stat, nil
}

func (s *Store) DuplicateStat(_ context.Context, integrationID string) (leads.DuplicateStat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stat, ok := s.stats[integrationID]
	if !ok {
		return leads.DuplicateStat{IntegrationID: integrationID}, nil
	}
	return stat, nil
}

func (s *Store) ResetDuplicateStat(_ context.Context, integrationID string) (leads.DuplicateStat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	stat := s.stats[integrationID]
	stat.IntegrationID = integrationID
	stat.Count = 0
	stat.ResetAt = &now
	s.stats[integrationID] = stat
	return stat, nil
}

func (s *Store) UpdateStage(_ context.Context, leadID, stage string, open bool, actorID string) (leads.Lead, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	lead, ok := s.leads[leadID]
	if !ok {
		return leads.Lead{}, leads.ErrLeadNotFound
	}
	key := lead.ContactKey().String()
	if open && !lead.IsOpen {
		if holder, taken := s.open[key]; taken && holder != leadID {
			return leads.Lead{}, leads.ErrOpenLeadExists
		}
	}
	if open {
		s.open[key] = leadID
	} else if s.open[key] == leadID {
		delete(s.open, key)
	}
	lead.Stage = stage
	lead.IsOpen = open
	lead.UpdatedAt = time.Now().UTC()
	s.leads[leadID] = lead
	s.appendEvent(leadID, leads.EventStageChanged, leads.PriorityNormal, "", map[string]any{"stage": stage, "actor_id": actorID})
	return lead, nil
}

func (s *Store) ListEvents(_ context.Context, leadID string) ([]leads.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]leads.Event(nil), s.events[leadID]...), nil
}

func (s *Store) ActiveAdmins(_ context.Context, ownerType integration.OwnerType, ownerID string) ([]leads.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []leads.User
	for _, u := range s.users {
		if !u.Active {
			continue
		}
		switch ownerType {
		case integration.OwnerPlatform:
			if u.FranchiseID == "" && u.Role == "platform_admin" {
				out = append(out, u)
			}
		case integration.OwnerFranchise:
			if u.FranchiseID == ownerID && u.Role == "admin" {
				out = append(out, u)
			}
		default:
			return nil, fmt.Errorf("unknown owner type %q", ownerType)
		}
	}
	leads.SortRoster(out)
	return out, nil
}

// AdvanceCursor returns 0 on the first call per integration, then counts up.
func (s *Store) AdvanceCursor(_ context.Context, integrationID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pos, ok := s.cursors[integrationID]
	if ok {
		pos++
	}
	s.cursors[integrationID] = pos
	return pos, nil
}

func (s *Store) GetUser(_ context.Context, userID string) (leads.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.ID == userID {
			return u, nil
		}
	}
	return leads.User{}, leads.ErrUserNotFound
}

// Leads returns a snapshot of every stored lead.
func (s *Store) Leads() []leads.Lead {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]leads.Lead, 0, len(s.leads))
	for _, lead := range s.leads {
		out = append(out, lead)
	}
	return out
}

func (s *Store) appendEvent(leadID, typ, priority, messageID string, details map[string]any) {
	s.nextEv++
	s.events[leadID] = append(s.events[leadID], leads.Event{
		ID:        s.nextEv,
		LeadID:    leadID,
		Type:      typ,
		Priority:  priority,
		MessageID: messageID,
		Details:   details,
		CreatedAt: time.Now().UTC(),
	})
}
