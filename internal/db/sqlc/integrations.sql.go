package sqlc

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
)

const archiveIntegration = `-- name: ArchiveIntegration :one
UPDATE integrations
SET archived_at = now(), is_active = false, updated_at = now()
WHERE id = $1
RETURNING id, owner_type, owner_id, channel, is_active, credentials, assignment_strategy, default_assignee_id, require_rule_match, archived_at, created_at, updated_at
`

func (q *Queries) ArchiveIntegration(ctx context.Context, id pgtype.UUID) (Integration, error) {
	row := q.db.QueryRow(ctx, archiveIntegration, id)
	var i Integration
	err := row.Scan(
		&i.ID,
		&i.OwnerType,
		&i.OwnerID,
		&i.Channel,
		&i.IsActive,
		&i.Credentials,
		&i.AssignmentStrategy,
		&i.DefaultAssigneeID,
		&i.RequireRuleMatch,
		&i.ArchivedAt,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const countIntegrationChildren = `-- name: CountIntegrationChildren :one
SELECT
  (SELECT count(*) FROM trigger_rules tr WHERE tr.integration_id = $1)
  + (SELECT count(*) FROM inbound_messages im WHERE im.integration_id = $1) AS children
`

func (q *Queries) CountIntegrationChildren(ctx context.Context, integrationID pgtype.UUID) (int64, error) {
	row := q.db.QueryRow(ctx, countIntegrationChildren, integrationID)
	var children int64
	err := row.Scan(&children)
	return children, err
}

const createIntegration = `-- name: CreateIntegration :one
INSERT INTO integrations (owner_type, owner_id, channel, is_active, credentials, assignment_strategy, default_assignee_id, require_rule_match)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING id, owner_type, owner_id, channel, is_active, credentials, assignment_strategy, default_assignee_id, require_rule_match, archived_at, created_at, updated_at
`

type CreateIntegrationParams struct {
	OwnerType          string      `json:"owner_type"`
	OwnerID            pgtype.UUID `json:"owner_id"`
	Channel            string      `json:"channel"`
	IsActive           bool        `json:"is_active"`
	Credentials        []byte      `json:"credentials"`
	AssignmentStrategy string      `json:"assignment_strategy"`
	DefaultAssigneeID  pgtype.UUID `json:"default_assignee_id"`
	RequireRuleMatch   bool        `json:"require_rule_match"`
}

func (q *Queries) CreateIntegration(ctx context.Context, arg CreateIntegrationParams) (Integration, error) {
	row := q.db.QueryRow(ctx, createIntegration,
		arg.OwnerType,
		arg.OwnerID,
		arg.Channel,
		arg.IsActive,
		arg.Credentials,
		arg.AssignmentStrategy,
		arg.DefaultAssigneeID,
		arg.RequireRuleMatch,
	)
	var i Integration
	err := row.Scan(
		&i.ID,
		&i.OwnerType,
		&i.OwnerID,
		&i.Channel,
		&i.IsActive,
		&i.Credentials,
		&i.AssignmentStrategy,
		&i.DefaultAssigneeID,
		&i.RequireRuleMatch,
		&i.ArchivedAt,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const deleteIntegration = `-- name: DeleteIntegration :execrows
DELETE FROM integrations WHERE id = $1
`

func (q *Queries) DeleteIntegration(ctx context.Context, id pgtype.UUID) (int64, error) {
	result, err := q.db.Exec(ctx, deleteIntegration, id)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

const getIntegrationByID = `-- name: GetIntegrationByID :one
SELECT id, owner_type, owner_id, channel, is_active, credentials, assignment_strategy, default_assignee_id, require_rule_match, archived_at, created_at, updated_at
FROM integrations
WHERE id = $1
`

func (q *Queries) GetIntegrationByID(ctx context.Context, id pgtype.UUID) (Integration, error) {
	row := q.db.QueryRow(ctx, getIntegrationByID, id)
	var i Integration
	err := row.Scan(
		&i.ID,
		&i.OwnerType,
		&i.OwnerID,
		&i.Channel,
		&i.IsActive,
		&i.Credentials,
		&i.AssignmentStrategy,
		&i.DefaultAssigneeID,
		&i.RequireRuleMatch,
		&i.ArchivedAt,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const listIntegrations = `-- name: ListIntegrations :many
SELECT id, owner_type, owner_id, channel, is_active, credentials, assignment_strategy, default_assignee_id, require_rule_match, archived_at, created_at, updated_at
FROM integrations
WHERE archived_at IS NULL
ORDER BY created_at ASC, id ASC
`

func (q *Queries) ListIntegrations(ctx context.Context) ([]Integration, error) {
	rows, err := q.db.Query(ctx, listIntegrations)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Integration
	for rows.Next() {
		var i Integration
		if err := rows.Scan(
			&i.ID,
			&i.OwnerType,
			&i.OwnerID,
			&i.Channel,
			&i.IsActive,
			&i.Credentials,
			&i.AssignmentStrategy,
			&i.DefaultAssigneeID,
			&i.RequireRuleMatch,
			&i.ArchivedAt,
			&i.CreatedAt,
			&i.UpdatedAt,
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

const listIntegrationsByOwner = `-- name: ListIntegrationsByOwner :many
SELECT id, owner_type, owner_id, channel, is_active, credentials, assignment_strategy, default_assignee_id, require_rule_match, archived_at, created_at, updated_at
FROM integrations
WHERE owner_type = $1
  AND owner_id IS NOT DISTINCT FROM $2
  AND archived_at IS NULL
ORDER BY created_at ASC, id ASC
`

type ListIntegrationsByOwnerParams struct {
	OwnerType string      `json:"owner_type"`
	OwnerID   pgtype.UUID `json:"owner_id"`
}

func (q *Queries) ListIntegrationsByOwner(ctx context.Context, arg ListIntegrationsByOwnerParams) ([]Integration, error) {
	rows, err := q.db.Query(ctx, listIntegrationsByOwner, arg.OwnerType, arg.OwnerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Integration
	for rows.Next() {
		var i Integration
		if err := rows.Scan(
			&i.ID,
			&i.OwnerType,
			&i.OwnerID,
			&i.Channel,
			&i.IsActive,
			&i.Credentials,
			&i.AssignmentStrategy,
			&i.DefaultAssigneeID,
			&i.RequireRuleMatch,
			&i.ArchivedAt,
			&i.CreatedAt,
			&i.UpdatedAt,
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

const updateIntegration = `-- name: UpdateIntegration :one
UPDATE integrations
SET is_active = $2,
    credentials = $3,
    assignment_strategy = $4,
    default_assignee_id = $5,
    require_rule_match = $6,
    updated_at = now()
WHERE id = $1
RETURNING id, owner_type, owner_id, channel, is_active, credentials, assignment_strategy, default_assignee_id, require_rule_match, archived_at, created_at, updated_at
`

type UpdateIntegrationParams struct {
	ID                 pgtype.UUID `json:"id"`
	IsActive           bool        `json:"is_active"`
	Credentials        []byte      `json:"credentials"`
	AssignmentStrategy string      `json:"assignment_strategy"`
	DefaultAssigneeID  pgtype.UUID `json:"default_assignee_id"`
	RequireRuleMatch   bool        `json:"require_rule_match"`
}

func (q *Queries) UpdateIntegration(ctx context.Context, arg UpdateIntegrationParams) (Integration, error) {
	row := q.db.QueryRow(ctx, updateIntegration,
		arg.ID,
		arg.IsActive,
		arg.Credentials,
		arg.AssignmentStrategy,
		arg.DefaultAssigneeID,
		arg.RequireRuleMatch,
	)
	var i Integration
	err := row.Scan(
		&i.ID,
		&i.OwnerType,
		&i.OwnerID,
		&i.Channel,
		&i.IsActive,
		&i.Credentials,
		&i.AssignmentStrategy,
		&i.DefaultAssigneeID,
		&i.RequireRuleMatch,
		&i.ArchivedAt,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}
