package inbound

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/franchiseos/leadhub/internal/channel"
	"github.com/franchiseos/leadhub/internal/db"
	"github.com/franchiseos/leadhub/internal/db/sqlc"
)

// DBMessageStore writes inbound messages to PostgreSQL. Replays of the same
// external message id resolve to the stored row.
type DBMessageStore struct {
	queries *sqlc.Queries
	logger  *slog.Logger
}

func NewDBMessageStore(log *slog.Logger, queries *sqlc.Queries) *DBMessageStore {
	if log == nil {
		log = slog.Default()
	}
	return &DBMessageStore{
		queries: queries,
		logger:  log.With(slog.String("store", "inbound_messages")),
	}
}

func (s *DBMessageStore) Save(ctx context.Context, msg channel.InboundMessage) (channel.InboundMessage, error) {
	if s.queries == nil {
		return channel.InboundMessage{}, fmt.Errorf("inbound message queries not configured")
	}
	params, err := insertParams(msg)
	if err != nil {
		return channel.InboundMessage{}, err
	}
	row, err := s.queries.InsertInboundMessage(ctx, params)
	if err == nil {
		return fromRow(msg, row, false), nil
	}
	if !errors.Is(err, pgx.ErrNoRows) || !params.ExternalMessageID.Valid {
		return channel.InboundMessage{}, fmt.Errorf("insert inbound message: %w", err)
	}
	row, err = s.queries.GetInboundMessageByExternalID(ctx, sqlc.GetInboundMessageByExternalIDParams{
		IntegrationID:     params.IntegrationID,
		ExternalMessageID: params.ExternalMessageID,
	})
	if err != nil {
		return channel.InboundMessage{}, fmt.Errorf("load replayed inbound message: %w", err)
	}
	s.logger.Info("inbound message replayed",
		slog.String("message_id", db.UUIDToString(row.ID)),
		slog.String("external_message_id", params.ExternalMessageID.String),
	)
	return fromRow(msg, row, true), nil
}

func insertParams(msg channel.InboundMessage) (sqlc.InsertInboundMessageParams, error) {
	integrationID, err := db.ParseUUID(msg.IntegrationID)
	if err != nil {
		return sqlc.InsertInboundMessageParams{}, fmt.Errorf("integration id: %w", err)
	}
	attachments := msg.Attachments
	if attachments == nil {
		attachments = []channel.Attachment{}
	}
	attachmentsJSON, err := json.Marshal(attachments)
	if err != nil {
		return sqlc.InsertInboundMessageParams{}, fmt.Errorf("marshal attachments: %w", err)
	}
	receivedAt := msg.ReceivedAt
	if receivedAt.IsZero() {
		receivedAt = time.Now().UTC()
	}
	raw := []byte(msg.RawPayload)
	if len(raw) == 0 || !json.Valid(raw) {
		raw = []byte("{}")
	}
	return sqlc.InsertInboundMessageParams{
		IntegrationID:     integrationID,
		Channel:           msg.Channel.String(),
		ExternalMessageID: db.TextFromString(msg.ExternalMessageID),
		ExternalUserID:    strings.TrimSpace(msg.Sender.SubjectID),
		ExternalUsername:  db.TextFromString(msg.Sender.Username),
		ExternalPhone:     db.TextFromString(msg.Sender.Phone),
		Text:              msg.Text,
		Attachments:       attachmentsJSON,
		RawPayload:        raw,
		ReceivedAt:        db.TimeToPg(receivedAt),
	}, nil
}

// fromRow keeps the parsed sender details of msg, which carry more than the
// stored columns, and takes identity and timing from row.
func fromRow(msg channel.InboundMessage, row sqlc.InboundMessage, replayed bool) channel.InboundMessage {
	msg.ID = db.UUIDToString(row.ID)
	if t := db.TimeFromPg(row.ReceivedAt); !t.IsZero() {
		msg.ReceivedAt = t
	}
	msg.Replayed = replayed
	return msg
}
