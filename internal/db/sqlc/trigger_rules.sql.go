package sqlc

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
)

const createTriggerRule = `-- name: CreateTriggerRule :one
INSERT INTO trigger_rules (integration_id, keywords, match_type, is_active, priority)
VALUES ($1, $2, $3, $4, $5)
RETURNING id, integration_id, keywords, match_type, is_active, priority, created_at, updated_at
`

type CreateTriggerRuleParams struct {
	IntegrationID pgtype.UUID `json:"integration_id"`
	Keywords      []string    `json:"keywords"`
	MatchType     string      `json:"match_type"`
	IsActive      bool        `json:"is_active"`
	Priority      int32       `json:"priority"`
}

func (q *Queries) CreateTriggerRule(ctx context.Context, arg CreateTriggerRuleParams) (TriggerRule, error) {
	row := q.db.QueryRow(ctx, createTriggerRule,
		arg.IntegrationID,
		arg.Keywords,
		arg.MatchType,
		arg.IsActive,
		arg.Priority,
	)
	var i TriggerRule
	err := row.Scan(
		&i.ID,
		&i.IntegrationID,
		&i.Keywords,
		&i.MatchType,
		&i.IsActive,
		&i.Priority,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const deleteTriggerRule = `-- name: DeleteTriggerRule :execrows
DELETE FROM trigger_rules WHERE id = $1 AND integration_id = $2
`

type DeleteTriggerRuleParams struct {
	ID            int64       `json:"id"`
	IntegrationID pgtype.UUID `json:"integration_id"`
}

func (q *Queries) DeleteTriggerRule(ctx context.Context, arg DeleteTriggerRuleParams) (int64, error) {
	result, err := q.db.Exec(ctx, deleteTriggerRule, arg.ID, arg.IntegrationID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

const getTriggerRule = `-- name: GetTriggerRule :one
SELECT id, integration_id, keywords, match_type, is_active, priority, created_at, updated_at
FROM trigger_rules
WHERE id = $1 AND integration_id = $2
`

type GetTriggerRuleParams struct {
	ID            int64       `json:"id"`
	IntegrationID pgtype.UUID `json:"integration_id"`
}

func (q *Queries) GetTriggerRule(ctx context.Context, arg GetTriggerRuleParams) (TriggerRule, error) {
	row := q.db.QueryRow(ctx, getTriggerRule, arg.ID, arg.IntegrationID)
	var i TriggerRule
	err := row.Scan(
		&i.ID,
		&i.IntegrationID,
		&i.Keywords,
		&i.MatchType,
		&i.IsActive,
		&i.Priority,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const listActiveTriggerRules = `-- name: ListActiveTriggerRules :many
SELECT id, integration_id, keywords, match_type, is_active, priority, created_at, updated_at
FROM trigger_rules
WHERE integration_id = $1 AND is_active
ORDER BY priority DESC, id ASC
`

func (q *Queries) ListActiveTriggerRules(ctx context.Context, integrationID pgtype.UUID) ([]TriggerRule, error) {
	return q.listTriggerRules(ctx, listActiveTriggerRules, integrationID)
}

const listTriggerRules = `-- name: ListTriggerRules :many
SELECT id, integration_id, keywords, match_type, is_active, priority, created_at, updated_at
FROM trigger_rules
WHERE integration_id = $1
ORDER BY priority DESC, id ASC
`

func (q *Queries) ListTriggerRules(ctx context.Context, integrationID pgtype.UUID) ([]TriggerRule, error) {
	return q.listTriggerRules(ctx, listTriggerRules, integrationID)
}

func (q *Queries) listTriggerRules(ctx context.Context, query string, integrationID pgtype.UUID) ([]TriggerRule, error) {
	rows, err := q.db.Query(ctx, query, integrationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []TriggerRule
	for rows.Next() {
		var i TriggerRule
		if err := rows.Scan(
			&i.ID,
			&i.IntegrationID,
			&i.Keywords,
			&i.MatchType,
			&i.IsActive,
			&i.Priority,
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

const updateTriggerRule = `-- name: UpdateTriggerRule :one
UPDATE trigger_rules
SET keywords = $3,
    match_type = $4,
    is_active = $5,
    priority = $6,
    updated_at = now()
WHERE id = $1 AND integration_id = $2
RETURNING id, integration_id, keywords, match_type, is_active, priority, created_at, updated_at
`

type UpdateTriggerRuleParams struct {
	ID            int64       `json:"id"`
	IntegrationID pgtype.UUID `json:"integration_id"`
	Keywords      []string    `json:"keywords"`
	MatchType     string      `json:"match_type"`
	IsActive      bool        `json:"is_active"`
	Priority      int32       `json:"priority"`
}

func (q *Queries) UpdateTriggerRule(ctx context.Context, arg UpdateTriggerRuleParams) (TriggerRule, error) {
	row := q.db.QueryRow(ctx, updateTriggerRule,
		arg.ID,
		arg.IntegrationID,
		arg.Keywords,
		arg.MatchType,
		arg.IsActive,
		arg.Priority,
	)
	var i TriggerRule
	err := row.Scan(
		&i.ID,
		&i.IntegrationID,
		&i.Keywords,
		&i.MatchType,
		&i.IsActive,
		&i.Priority,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}
