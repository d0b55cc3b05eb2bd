package sqlc

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
)

const getInboundMessageByExternalID = `-- name: GetInboundMessageByExternalID :one
SELECT id, integration_id, channel, external_message_id, external_user_id, external_username, external_phone, text, attachments, raw_payload, received_at
FROM inbound_messages
WHERE integration_id = $1 AND external_message_id = $2
`

type GetInboundMessageByExternalIDParams struct {
	IntegrationID     pgtype.UUID `json:"integration_id"`
	ExternalMessageID pgtype.Text `json:"external_message_id"`
}

func (q *Queries) GetInboundMessageByExternalID(ctx context.Context, arg GetInboundMessageByExternalIDParams) (InboundMessage, error) {
	row := q.db.QueryRow(ctx, getInboundMessageByExternalID, arg.IntegrationID, arg.ExternalMessageID)
	var i InboundMessage
	err := row.Scan(
		&i.ID,
		&i.IntegrationID,
		&i.Channel,
		&i.ExternalMessageID,
		&i.ExternalUserID,
		&i.ExternalUsername,
		&i.ExternalPhone,
		&i.Text,
		&i.Attachments,
		&i.RawPayload,
		&i.ReceivedAt,
	)
	return i, err
}

const insertInboundMessage = `-- name: InsertInboundMessage :one
INSERT INTO inbound_messages (integration_id, channel, external_message_id, external_user_id, external_username, external_phone, text, attachments, raw_payload, received_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
ON CONFLICT (integration_id, external_message_id) WHERE external_message_id IS NOT NULL DO NOTHING
RETURNING id, integration_id, channel, external_message_id, external_user_id, external_username, external_phone, text, attachments, raw_payload, received_at
`

type InsertInboundMessageParams struct {
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

// InsertInboundMessage returns pgx.ErrNoRows when the external message id was
// already stored for the integration.
func (q *Queries) InsertInboundMessage(ctx context.Context, arg InsertInboundMessageParams) (InboundMessage, error) {
	row := q.db.QueryRow(ctx, insertInboundMessage,
		arg.IntegrationID,
		arg.Channel,
		arg.ExternalMessageID,
		arg.ExternalUserID,
		arg.ExternalUsername,
		arg.ExternalPhone,
		arg.Text,
		arg.Attachments,
		arg.RawPayload,
		arg.ReceivedAt,
	)
	var i InboundMessage
	err := row.Scan(
		&i.ID,
		&i.IntegrationID,
		&i.Channel,
		&i.ExternalMessageID,
		&i.ExternalUserID,
		&i.ExternalUsername,
		&i.ExternalPhone,
		&i.Text,
		&i.Attachments,
		&i.RawPayload,
		&i.ReceivedAt,
	)
	return i, err
}
