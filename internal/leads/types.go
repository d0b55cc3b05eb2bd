// Package leads opens sales leads for new contacts, attaches repeat contacts
// to their open lead, and maintains the lead stage lifecycle.
package leads

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/franchiseos/leadhub/internal/channel"
	"github.com/franchiseos/leadhub/internal/integration"
)

// StageNew is the stage every lead starts in.
const StageNew = "new"

// Lead event types and priorities.
const (
	EventLeadCreated      = "lead_created"
	EventDuplicateContact = "duplicate_contact"
	EventStageChanged     = "stage_changed"

	PriorityNormal = "normal"
	PriorityLow    = "low"
)

var (
	ErrLeadNotFound           = errors.New("lead not found")
	ErrDefaultAssigneeMissing = errors.New("default assignee is not configured")
	ErrNoAvailableAdmin       = errors.New("no active admin available for assignment")
	ErrInvalidStage           = errors.New("invalid lead stage")
	ErrOpenLeadExists         = errors.New("contact already has an open lead")
	ErrUserNotFound           = errors.New("user not found")
)

// Lead is a sales lead for one external contact.
type Lead struct {
	ID                string              `json:"id"`
	IntegrationID     string              `json:"integration_id"`
	Channel           channel.ChannelType `json:"channel"`
	ExternalUserID    string              `json:"external_user_id"`
	ResponsibleUserID string              `json:"responsible_user_id"`
	Stage             string              `json:"stage"`
	IsOpen            bool                `json:"is_open"`
	MatchedRuleID     int64               `json:"matched_rule_id,omitempty"`
	SourceMessageID   string              `json:"source_message_id,omitempty"`
	CreatedAt         time.Time           `json:"created_at"`
	UpdatedAt         time.Time           `json:"updated_at"`
}

// ContactKey returns the open-lead slot the lead occupies.
func (l Lead) ContactKey() channel.ContactKey {
	return channel.ContactKey{IntegrationID: l.IntegrationID, Channel: l.Channel, ExternalUserID: l.ExternalUserID}
}

// Event is one entry of a lead's history.
type Event struct {
	ID        int64          `json:"id"`
	LeadID    string         `json:"lead_id"`
	Type      string         `json:"type"`
	Priority  string         `json:"priority"`
	MessageID string         `json:"message_id,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// DuplicateStat counts repeat contacts per integration since the last reset.
type DuplicateStat struct {
	IntegrationID   string     `json:"integration_id"`
	Count           int64      `json:"count"`
	LastDuplicateAt *time.Time `json:"last_duplicate_at,omitempty"`
	ResetAt         *time.Time `json:"reset_at,omitempty"`
}

// User is a staff member leads can be assigned to.
type User struct {
	ID             string    `json:"id"`
	FranchiseID    string    `json:"franchise_id,omitempty"`
	DisplayName    string    `json:"display_name"`
	Role           string    `json:"role"`
	Active         bool      `json:"is_active"`
	TelegramChatID string    `json:"telegram_chat_id,omitempty"`
	Email          string    `json:"email,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// NewLead holds the values of a lead about to be inserted.
type NewLead struct {
	IntegrationID     string
	Channel           channel.ChannelType
	ExternalUserID    string
	ResponsibleUserID string
	MatchedRuleID     int64
	SourceMessageID   string
	Details           map[string]any
}

// Duplicate describes a repeat contact being attached to an open lead.
type Duplicate struct {
	LeadID        string
	IntegrationID string
	MessageID     string
	Details       map[string]any
}

// Store persists leads. CreateLead must insert the lead and its creation
// event atomically, and when the contact slot is already taken it returns
// the open lead holding it with created set to false.
type Store interface {
	FindOpenLeadID(ctx context.Context, key channel.ContactKey) (string, bool, error)
	GetLead(ctx context.Context, leadID string) (Lead, error)
	CreateLead(ctx context.Context, lead NewLead) (Lead, bool, error)
	RecordDuplicate(ctx context.Context, dup Duplicate) (DuplicateStat, error)
	DuplicateStat(ctx context.Context, integrationID string) (DuplicateStat, error)
	ResetDuplicateStat(ctx context.Context, integrationID string) (DuplicateStat, error)
	UpdateStage(ctx context.Context, leadID, stage string, open bool, actorID string) (Lead, error)
	ListEvents(ctx context.Context, leadID string) ([]Event, error)
}

// Roster provides the users leads are assigned to.
type Roster interface {
	ActiveAdmins(ctx context.Context, ownerType integration.OwnerType, ownerID string) ([]User, error)
	AdvanceCursor(ctx context.Context, integrationID string) (int64, error)
	GetUser(ctx context.Context, userID string) (User, error)
}

// StagePolicy knows which stages close a lead.
type StagePolicy struct {
	terminal map[string]struct{}
}

func NewStagePolicy(terminal []string) StagePolicy {
	set := make(map[string]struct{}, len(terminal))
	for _, stage := range terminal {
		if stage = normalizeStage(stage); stage != "" {
			set[stage] = struct{}{}
		}
	}
	return StagePolicy{terminal: set}
}

// IsTerminal reports whether stage closes a lead.
func (p StagePolicy) IsTerminal(stage string) bool {
	_, ok := p.terminal[normalizeStage(stage)]
	return ok
}

func normalizeStage(stage string) string {
	return strings.ToLower(strings.TrimSpace(stage))
}
