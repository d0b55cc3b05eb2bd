package sqlc

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
)

const getLead = `-- name: GetLead :one
SELECT id, integration_id, channel, external_user_id, responsible_user_id, stage, is_open, matched_rule_id, source_message_id, created_at, updated_at
FROM leads
WHERE id = $1
`

func (q *Queries) GetLead(ctx context.Context, id pgtype.UUID) (Lead, error) {
	row := q.db.QueryRow(ctx, getLead, id)
	var i Lead
	err := row.Scan(
		&i.ID,
		&i.IntegrationID,
		&i.Channel,
		&i.ExternalUserID,
		&i.ResponsibleUserID,
		&i.Stage,
		&i.IsOpen,
		&i.MatchedRuleID,
		&i.SourceMessageID,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const getOpenLeadByContact = `-- name: GetOpenLeadByContact :one
SELECT id, integration_id, channel, external_user_id, responsible_user_id, stage, is_open, matched_rule_id, source_message_id, created_at, updated_at
FROM leads
WHERE integration_id = $1 AND channel = $2 AND external_user_id = $3 AND is_open
`

type GetOpenLeadByContactParams struct {
	IntegrationID  pgtype.UUID `json:"integration_id"`
	Channel        string      `json:"channel"`
	ExternalUserID string      `json:"external_user_id"`
}

func (q *Queries) GetOpenLeadByContact(ctx context.Context, arg GetOpenLeadByContactParams) (Lead, error) {
	row := q.db.QueryRow(ctx, getOpenLeadByContact, arg.IntegrationID, arg.Channel, arg.ExternalUserID)
	var i Lead
	err := row.Scan(
		&i.ID,
		&i.IntegrationID,
		&i.Channel,
		&i.ExternalUserID,
		&i.ResponsibleUserID,
		&i.Stage,
		&i.IsOpen,
		&i.MatchedRuleID,
		&i.SourceMessageID,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const insertLead = `-- name: InsertLead :one
INSERT INTO leads (integration_id, channel, external_user_id, responsible_user_id, stage, is_open, matched_rule_id, source_message_id)
VALUES ($1, $2, $3, $4, $5, true, $6, $7)
ON CONFLICT (integration_id, channel, external_user_id) WHERE is_open DO NOTHING
RETURNING id, integration_id, channel, external_user_id, responsible_user_id, stage, is_open, matched_rule_id, source_message_id, created_at, updated_at
`

type InsertLeadParams struct {
	IntegrationID     pgtype.UUID `json:"integration_id"`
	Channel           string      `json:"channel"`
	ExternalUserID    string      `json:"external_user_id"`
	ResponsibleUserID pgtype.UUID `json:"responsible_user_id"`
	Stage             string      `json:"stage"`
	MatchedRuleID     pgtype.Int8 `json:"matched_rule_id"`
	SourceMessageID   pgtype.UUID `json:"source_message_id"`
}

// InsertLead returns pgx.ErrNoRows when another open lead already holds the
// contact slot.
func (q *Queries) InsertLead(ctx context.Context, arg InsertLeadParams) (Lead, error) {
	row := q.db.QueryRow(ctx, insertLead,
		arg.IntegrationID,
		arg.Channel,
		arg.ExternalUserID,
		arg.ResponsibleUserID,
		arg.Stage,
		arg.MatchedRuleID,
		arg.SourceMessageID,
	)
	var i Lead
	err := row.Scan(
		&i.ID,
		&i.IntegrationID,
		&i.Channel,
		&i.ExternalUserID,
		&i.ResponsibleUserID,
		&i.Stage,
		&i.IsOpen,
		&i.MatchedRuleID,
		&i.SourceMessageID,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const updateLeadStage = `-- name: UpdateLeadStage :one
UPDATE leads
SET stage = $2, is_open = $3, updated_at = now()
WHERE id = $1
RETURNING id, integration_id, channel, external_user_id, responsible_user_id, stage, is_open, matched_rule_id, source_message_id, created_at, updated_at
`

type UpdateLeadStageParams struct {
	ID     pgtype.UUID `json:"id"`
	Stage  string      `json:"stage"`
	IsOpen bool        `json:"is_open"`
}

func (q *Queries) UpdateLeadStage(ctx context.Context, arg UpdateLeadStageParams) (Lead, error) {
	row := q.db.QueryRow(ctx, updateLeadStage, arg.ID, arg.Stage, arg.IsOpen)
	var i Lead
	err := row.Scan(
		&i.ID,
		&i.IntegrationID,
		&i.Channel,
		&i.ExternalUserID,
		&i.ResponsibleUserID,
		&i.Stage,
		&i.IsOpen,
		&i.MatchedRuleID,
		&i.SourceMessageID,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const insertLeadEvent = `-- name: InsertLeadEvent :one
INSERT INTO lead_events (lead_id, type, priority, message_id, details)
VALUES ($1, $2, $3, $4, $5)
RETURNING id, lead_id, type, priority, message_id, details, created_at
`

type InsertLeadEventParams struct {
	LeadID    pgtype.UUID `json:"lead_id"`
	Type      string      `json:"type"`
	Priority  string      `json:"priority"`
	MessageID pgtype.UUID `json:"message_id"`
	Details   []byte      `json:"details"`
}

func (q *Queries) InsertLeadEvent(ctx context.Context, arg InsertLeadEventParams) (LeadEvent, error) {
	row := q.db.QueryRow(ctx, insertLeadEvent,
		arg.LeadID,
		arg.Type,
		arg.Priority,
		arg.MessageID,
		arg.Details,
	)
	var i LeadEvent
	err := row.Scan(
		&i.ID,
		&i.LeadID,
		&i.Type,
		&i.Priority,
		&i.MessageID,
		&i.Details,
		&i.CreatedAt,
	)
	return i, err
}

const listLeadEvents = `-- name: ListLeadEvents :many
SELECT id, lead_id, type, priority, message_id, details, created_at
FROM lead_events
WHERE lead_id = $1
ORDER BY created_at ASC, id ASC
`

func (q *Queries) ListLeadEvents(ctx context.Context, leadID pgtype.UUID) ([]LeadEvent, error) {
	rows, err := q.db.Query(ctx, listLeadEvents, leadID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []LeadEvent
	for rows.Next() {
		var i LeadEvent
		if err := rows.Scan(
			&i.ID,
			&i.LeadID,
			&i.Type,
			&i.Priority,
			&i.MessageID,
			&i.Details,
			&i.CreatedAt,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
