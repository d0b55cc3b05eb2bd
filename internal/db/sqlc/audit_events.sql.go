package sqlc

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
)

const insertAuditEvent = `-- name: InsertAuditEvent :exec
INSERT INTO audit_events (type, entity_id, actor_id, details, created_at)
VALUES ($1, $2, $3, $4, COALESCE($5, now()))
`

type InsertAuditEventParams struct {
	Type      string             `json:"type"`
	EntityID  string             `json:"entity_id"`
	ActorID   string             `json:"actor_id"`
	Details   []byte             `json:"details"`
	CreatedAt pgtype.Timestamptz `json:"created_at"`
}

func (q *Queries) InsertAuditEvent(ctx context.Context, arg InsertAuditEventParams) error {
	_, err := q.db.Exec(ctx, insertAuditEvent,
		arg.Type,
		arg.EntityID,
		arg.ActorID,
		arg.Details,
		arg.CreatedAt,
	)
	return err
}
