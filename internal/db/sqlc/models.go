package sqlc

import (
	"github.com/jackc/pgx/v5/pgtype"
)

type AuditEvent struct {
	ID        int64              `json:"id"`
	Type      string             `json:"type"`
	EntityID  string             `json:"entity_id"`
	ActorID   string             `json:"actor_id"`
	Details   []byte             `json:"details"`
	CreatedAt pgtype.Timestamptz `json:"created_at"`
}

type DuplicateStat struct {
	IntegrationID   pgtype.UUID        `json:"integration_id"`
	Count           int64              `json:"count"`
	LastDuplicateAt pgtype.Timestamptz `json:"last_duplicate_at"`
	ResetAt         pgtype.Timestamptz `json:"reset_at"`
}

type InboundMessage struct {
	ID                pgtype.UUID        `json:"id"`
	IntegrationID     pgtype.UUID        `json:"integration_id"`
	Channel           string             `json:"channel"`
	ExternalMessageID pgtype.Text        `json:"external_message_id"`
	ExternalUserID    string             `json:"external_user_id"`
	ExternalUsername  pgtype.Text        `json:"external_username"`
	ExternalPhone     pgtype.Text        `json:"external_phone"`
	Text              string             `json:"text"`
	Attachments       []byte             `json:"attachments"`
	RawPayload        []byte             `json:"raw_payload"`
	ReceivedAt        pgtype.Timestamptz `json:"received_at"`
}

type Integration struct {
	ID                 pgtype.UUID        `json:"id"`
	OwnerType          string             `json:"owner_type"`
	OwnerID            pgtype.UUID        `json:"owner_id"`
	Channel            string             `json:"channel"`
	IsActive           bool               `json:"is_active"`
	Credentials        []byte             `json:"credentials"`
	AssignmentStrategy string             `json:"assignment_strategy"`
	DefaultAssigneeID  pgtype.UUID        `json:"default_assignee_id"`
	RequireRuleMatch   bool               `json:"require_rule_match"`
	ArchivedAt         pgtype.Timestamptz `json:"archived_at"`
	CreatedAt          pgtype.Timestamptz `json:"created_at"`
	UpdatedAt          pgtype.Timestamptz `json:"updated_at"`
}

type Lead struct {
	ID                pgtype.UUID        `json:"id"`
	IntegrationID     pgtype.UUID        `json:"integration_id"`
	Channel           string             `json:"channel"`
	ExternalUserID    string             `json:"external_user_id"`
	ResponsibleUserID pgtype.UUID        `json:"responsible_user_id"`
	Stage             string             `json:"stage"`
	IsOpen            bool               `json:"is_open"`
	MatchedRuleID     pgtype.Int8        `json:"matched_rule_id"`
	SourceMessageID   pgtype.UUID        `json:"source_message_id"`
	CreatedAt         pgtype.Timestamptz `json:"created_at"`
	UpdatedAt         pgtype.Timestamptz `json:"updated_at"`
}

type LeadEvent struct {
	ID        int64              `json:"id"`
	LeadID    pgtype.UUID        `json:"lead_id"`
	Type      string             `json:"type"`
	Priority  string             `json:"priority"`
	MessageID pgtype.UUID        `json:"message_id"`
	Details   []byte             `json:"details"`
	CreatedAt pgtype.Timestamptz `json:"created_at"`
}

type TriggerRule struct {
	ID            int64              `json:"id"`
	IntegrationID pgtype.UUID        `json:"integration_id"`
	Keywords      []string           `json:"keywords"`
	MatchType     string             `json:"match_type"`
	IsActive      bool               `json:"is_active"`
	Priority      int32              `json:"priority"`
	CreatedAt     pgtype.Timestamptz `json:"created_at"`
	UpdatedAt     pgtype.Timestamptz `json:"updated_at"`
}

type User struct {
	ID             pgtype.UUID        `json:"id"`
	FranchiseID    pgtype.UUID        `json:"franchise_id"`
	DisplayName    string             `json:"display_name"`
	Role           string             `json:"role"`
	IsActive       bool               `json:"is_active"`
	TelegramChatID pgtype.Text        `json:"telegram_chat_id"`
	Email          pgtype.Text        `json:"email"`
	CreatedAt      pgtype.Timestamptz `json:"created_at"`
}
