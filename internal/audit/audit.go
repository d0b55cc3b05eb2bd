// Package audit records write-only domain events.
package audit

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/franchiseos/leadhub/internal/db"
	"github.com/franchiseos/leadhub/internal/db/sqlc"
)

// Event types.
const (
	LeadCreated          = "lead.created"
	LeadDuplicateContact = "lead.duplicate_contact"
	LeadStageChanged     = "lead.stage_changed"
	DuplicatesReset      = "integration.duplicates_reset"
)

// Event is one audit record.
type Event struct {
	Type      string
	EntityID  string
	ActorID   string
	Details   map[string]any
	CreatedAt time.Time
}

// Sink accepts audit events. Implementations never fail the caller.
type Sink interface {
	Record(ctx context.Context, event Event)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, event Event)

func (f SinkFunc) Record(ctx context.Context, event Event) {
	f(ctx, event)
}

// DBSink writes events to the audit_events table.
type DBSink struct {
	queries *sqlc.Queries
	logger  *slog.Logger
}

func NewDBSink(log *slog.Logger, queries *sqlc.Queries) *DBSink {
	if log == nil {
		log = slog.Default()
	}
	return &DBSink{
		queries: queries,
		logger:  log.With(slog.String("component", "audit")),
	}
}

// Record inserts the event. Failures are logged and dropped.
func (s *DBSink) Record(ctx context.Context, event Event) {
	details := []byte("{}")
	if len(event.Details) > 0 {
		raw, err := json.Marshal(event.Details)
		if err != nil {
			s.logger.Warn("audit details not serializable", slog.String("type", event.Type), slog.Any("error", err))
		} else {
			details = raw
		}
	}
	err := s.queries.InsertAuditEvent(ctx, sqlc.InsertAuditEventParams{
		Type:      event.Type,
		EntityID:  event.EntityID,
		ActorID:   event.ActorID,
		Details:   details,
		CreatedAt: db.TimeToPg(event.CreatedAt),
	})
	if err != nil {
		s.logger.Error("audit event not recorded",
			slog.String("type", event.Type),
			slog.String("entity_id", event.EntityID),
			slog.Any("error", err),
		)
	}
}
