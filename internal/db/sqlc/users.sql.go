package sqlc

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
)

const advanceAssignmentCursor = `-- name: AdvanceAssignmentCursor :one
INSERT INTO assignment_cursors (integration_id, position)
VALUES ($1, 0)
ON CONFLICT (integration_id) DO UPDATE
SET position = assignment_cursors.position + 1, updated_at = now()
RETURNING position
`

// AdvanceAssignmentCursor returns 0 on the first call for an integration and
// one more than the previous value afterwards.
func (q *Queries) AdvanceAssignmentCursor(ctx context.Context, integrationID pgtype.UUID) (int64, error) {
	row := q.db.QueryRow(ctx, advanceAssignmentCursor, integrationID)
	var position int64
	err := row.Scan(&position)
	return position, err
}

const getUser = `-- name: GetUser :one
SELECT id, franchise_id, display_name, role, is_active, telegram_chat_id, email, created_at
FROM users
WHERE id = $1
`

func (q *Queries) GetUser(ctx context.Context, id pgtype.UUID) (User, error) {
	row := q.db.QueryRow(ctx, getUser, id)
	var i User
	err := row.Scan(
		&i.ID,
		&i.FranchiseID,
		&i.DisplayName,
		&i.Role,
		&i.IsActive,
		&i.TelegramChatID,
		&i.Email,
		&i.CreatedAt,
	)
	return i, err
}

const listActiveFranchiseAdmins = `-- name: ListActiveFranchiseAdmins :many
SELECT id, franchise_id, display_name, role, is_active, telegram_chat_id, email, created_at
FROM users
WHERE franchise_id = $1 AND role = 'admin' AND is_active
ORDER BY created_at ASC, id ASC
`

func (q *Queries) ListActiveFranchiseAdmins(ctx context.Context, franchiseID pgtype.UUID) ([]User, error) {
	return q.listUsers(ctx, listActiveFranchiseAdmins, franchiseID)
}

const listActivePlatformAdmins = `-- name: ListActivePlatformAdmins :many
SELECT id, franchise_id, display_name, role, is_active, telegram_chat_id, email, created_at
FROM users
WHERE franchise_id IS NULL AND role = 'platform_admin' AND is_active
ORDER BY created_at ASC, id ASC
`

func (q *Queries) ListActivePlatformAdmins(ctx context.Context) ([]User, error) {
	return q.listUsers(ctx, listActivePlatformAdmins)
}

func (q *Queries) listUsers(ctx context.Context, query string, args ...interface{}) ([]User, error) {
	rows, err := q.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []User
	for rows.Next() {
		var i User
		if err := rows.Scan(
			&i.ID,
			&i.FranchiseID,
			&i.DisplayName,
			&i.Role,
			&i.IsActive,
			&i.TelegramChatID,
			&i.Email,
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
