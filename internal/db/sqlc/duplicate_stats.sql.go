package sqlc

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
)

const getDuplicateStat = `-- name: GetDuplicateStat :one
SELECT integration_id, count, last_duplicate_at, reset_at
FROM duplicate_stats
WHERE integration_id = $1
`

func (q *Queries) GetDuplicateStat(ctx context.Context, integrationID pgtype.UUID) (DuplicateStat, error) {
	row := q.db.QueryRow(ctx, getDuplicateStat, integrationID)
	var i DuplicateStat
	err := row.Scan(
		&i.IntegrationID,
		&i.Count,
		&i.LastDuplicateAt,
		&i.ResetAt,
	)
	return i, err
}

const incrementDuplicateStat = `-- name: IncrementDuplicateStat :one
INSERT INTO duplicate_stats (integration_id, count, last_duplicate_at)
VALUES ($1, 1, now())
ON CONFLICT (integration_id) DO UPDATE
SET count = duplicate_stats.count + 1, last_duplicate_at = now()
RETURNING integration_id, count, last_duplicate_at, reset_at
`

func (q *Queries) IncrementDuplicateStat(ctx context.Context, integrationID pgtype.UUID) (DuplicateStat, error) {
	row := q.db.QueryRow(ctx, incrementDuplicateStat, integrationID)
	var i DuplicateStat
	err := row.Scan(
		&i.IntegrationID,
		&i.Count,
		&i.LastDuplicateAt,
		&i.ResetAt,
	)
	return i, err
}

const resetDuplicateStat = `-- name: ResetDuplicateStat :one
INSERT INTO duplicate_stats (integration_id, count, reset_at)
VALUES ($1, 0, now())
ON CONFLICT (integration_id) DO UPDATE
SET count = 0, reset_at = now()
RETURNING integration_id, count, last_duplicate_at, reset_at
`

func (q *Queries) ResetDuplicateStat(ctx context.Context, integrationID pgtype.UUID) (DuplicateStat, error) {
	row := q.db.QueryRow(ctx, resetDuplicateStat, integrationID)
	var i DuplicateStat
	err := row.Scan(
		&i.IntegrationID,
		&i.Count,
		&i.LastDuplicateAt,
		&i.ResetAt,
	)
	return i, err
}
