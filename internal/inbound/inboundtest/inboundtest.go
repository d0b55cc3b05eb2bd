// Package inboundtest provides in-memory integration and message stores for
// tests of the inbound pipeline and its HTTP surface.
package inboundtest

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/franchiseos/leadhub/internal/channel"
	"github.com/franchiseos/leadhub/internal/integration"
	"github.com/franchiseos/leadhub/internal/trigger"
)

// Messages is an in-memory inbound.MessageStore with replay detection on
// (integration, external message id).
type Messages struct {
	mu       sync.Mutex
	messages []channel.InboundMessage
	external map[string]int

	// FailSave is returned by Save when non-nil.
	FailSave error
}

func NewMessages() *Messages {
	return &Messages{external: map[string]int{}}
}

func (m *Messages) Save(_ context.Context, msg channel.InboundMessage) (channel.InboundMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailSave != nil {
		return channel.InboundMessage{}, m.FailSave
	}
	if msg.ExternalMessageID != "" {
		key := msg.IntegrationID + "/" + msg.ExternalMessageID
		if idx, ok := m.external[key]; ok {
			stored := msg
			stored.ID = m.messages[idx].ID
			stored.ReceivedAt = m.messages[idx].ReceivedAt
			stored.Replayed = true
			return stored, nil
		}
		m.external[key] = len(m.messages)
	}
	msg.ID = uuid.NewString()
	m.messages = append(m.messages, msg)
	return msg, nil
}

// All returns a copy of every stored message in insertion order.
func (m *Messages) All() []channel.InboundMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]channel.InboundMessage(nil), m.messages...)
}

// Integrations is an in-memory integration and rule source.
type Integrations struct {
	mu    sync.RWMutex
	items map[string]integration.Integration
	rules map[string][]trigger.Rule
}

func NewIntegrations() *Integrations {
	return &Integrations{
		items: map[string]integration.Integration{},
		rules: map[string][]trigger.Rule{},
	}
}

// Put stores integ and replaces its rules.
func (s *Integrations) Put(integ integration.Integration, rules ...trigger.Rule) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[integ.ID] = integ
	s.rules[integ.ID] = append([]trigger.Rule(nil), rules...)
}

func (s *Integrations) Get(_ context.Context, integrationID string) (integration.Integration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	integ, ok := s.items[integrationID]
	if !ok {
		return integration.Integration{}, integration.ErrIntegrationNotFound
	}
	return integ, nil
}

func (s *Integrations) ListActiveRules(_ context.Context, integrationID string) ([]trigger.Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var active []trigger.Rule
	for _, r := range s.rules[integrationID] {
		if r.Active {
			active = append(active, r)
		}
	}
	return trigger.Order(active), nil
}
