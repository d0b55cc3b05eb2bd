package leads

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/franchiseos/leadhub/internal/channel"
	"github.com/franchiseos/leadhub/internal/db"
	"github.com/franchiseos/leadhub/internal/db/sqlc"
	"github.com/franchiseos/leadhub/internal/integration"
)

// createAttempts bounds the insert-or-fetch loop. A retry only happens when
// the winning lead was closed between our insert and our lookup.
const createAttempts = 3

// Conn is satisfied by *pgxpool.Pool.
type Conn interface {
	sqlc.DBTX
	db.TxBeginner
}

// DBStore implements Store and Roster on PostgreSQL.
type DBStore struct {
	conn    Conn
	queries *sqlc.Queries
	logger  *slog.Logger
}

func NewDBStore(log *slog.Logger, conn Conn) *DBStore {
	if log == nil {
		log = slog.Default()
	}
	return &DBStore{
		conn:    conn,
		queries: sqlc.New(conn),
		logger:  log.With(slog.String("store", "leads")),
	}
}

func (s *DBStore) FindOpenLeadID(ctx context.Context, key channel.ContactKey) (string, bool, error) {
	params, err := contactParams(key)
	if err != nil {
		return "", false, err
	}
	row, err := s.queries.GetOpenLeadByContact(ctx, params)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", false, nil
		}
		return "", false, err
	}
	return db.UUIDToString(row.ID), true, nil
}

func (s *DBStore) GetLead(ctx context.Context, leadID string) (Lead, error) {
	pgID, err := db.ParseUUID(leadID)
	if err != nil {
		return Lead{}, ErrLeadNotFound
	}
	row, err := s.queries.GetLead(ctx, pgID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Lead{}, ErrLeadNotFound
		}
		return Lead{}, err
	}
	return toLead(row), nil
}

// CreateLead inserts the lead and its creation event in one transaction.
// ON CONFLICT DO NOTHING on the open-contact index makes the loser of a
// concurrent insert read the winner instead.
func (s *DBStore) CreateLead(ctx context.Context, lead NewLead) (Lead, bool, error) {
	params, err := insertParams(lead)
	if err != nil {
		return Lead{}, false, err
	}
	details, err := marshalDetails(lead.Details)
	if err != nil {
		return Lead{}, false, err
	}
	for attempt := 0; attempt < createAttempts; attempt++ {
		var (
			result  Lead
			created bool
			retry   bool
		)
		err := db.Begin(ctx, s.conn, func(tx pgx.Tx) error {
			q := s.queries.WithTx(tx)
			row, err := q.InsertLead(ctx, params)
			if errors.Is(err, pgx.ErrNoRows) {
				winner, err := q.GetOpenLeadByContact(ctx, sqlc.GetOpenLeadByContactParams{
					IntegrationID:  params.IntegrationID,
					Channel:        params.Channel,
					ExternalUserID: params.ExternalUserID,
				})
				if errors.Is(err, pgx.ErrNoRows) {
					retry = true
					return nil
				}
				if err != nil {
					return fmt.Errorf("load winning lead: %w", err)
				}
				result = toLead(winner)
				return nil
			}
			if err != nil {
				return fmt.Errorf("insert lead: %w", err)
			}
			if _, err := q.InsertLeadEvent(ctx, sqlc.InsertLeadEventParams{
				LeadID:    row.ID,
				Type:      EventLeadCreated,
				Priority:  PriorityNormal,
				MessageID: params.SourceMessageID,
				Details:   details,
			}); err != nil {
				return fmt.Errorf("insert lead event: %w", err)
			}
			result = toLead(row)
			created = true
			return nil
		})
		if err != nil {
			return Lead{}, false, err
		}
		if !retry {
			return result, created, nil
		}
		s.logger.Debug("open lead closed during create, retrying",
			slog.String("integration_id", lead.IntegrationID),
			slog.Int("attempt", attempt+1),
		)
	}
	return Lead{}, false, fmt.Errorf("create lead: contact slot kept changing after %d attempts", createAttempts)
}

// RecordDuplicate bumps the integration's duplicate counter and notes the
// repeat contact on the lead, atomically.
func (s *DBStore) RecordDuplicate(ctx context.Context, dup Duplicate) (DuplicateStat, error) {
	leadID, err := db.ParseUUID(dup.LeadID)
	if err != nil {
		return DuplicateStat{}, ErrLeadNotFound
	}
	integrationID, err := db.ParseUUID(dup.IntegrationID)
	if err != nil {
		return DuplicateStat{}, err
	}
	messageID, err := db.ParseOptionalUUID(dup.MessageID)
	if err != nil {
		return DuplicateStat{}, err
	}
	details, err := marshalDetails(dup.Details)
	if err != nil {
		return DuplicateStat{}, err
	}
	var stat DuplicateStat
	err = db.Begin(ctx, s.conn, func(tx pgx.Tx) error {
		q := s.queries.WithTx(tx)
		row, err := q.IncrementDuplicateStat(ctx, integrationID)
		if err != nil {
			return fmt.Errorf("increment duplicate stat: %w", err)
		}
		if _, err := q.InsertLeadEvent(ctx, sqlc.InsertLeadEventParams{
			LeadID:    leadID,
			Type:      EventDuplicateContact,
			Priority:  PriorityLow,
			MessageID: messageID,
			Details:   details,
		}); err != nil {
			return fmt.Errorf("insert duplicate event: %w", err)
		}
		stat = toDuplicateStat(row)
		return nil
	})
	return stat, err
}

func (s *DBStore) DuplicateStat(ctx context.Context, integrationID string) (DuplicateStat, error) {
	pgID, err := db.ParseUUID(integrationID)
	if err != nil {
		return DuplicateStat{}, err
	}
	row, err := s.queries.GetDuplicateStat(ctx, pgID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return DuplicateStat{IntegrationID: integrationID}, nil
		}
		return DuplicateStat{}, err
	}
	return toDuplicateStat(row), nil
}

func (s *DBStore) ResetDuplicateStat(ctx context.Context, integrationID string) (DuplicateStat, error) {
	pgID, err := db.ParseUUID(integrationID)
	if err != nil {
		return DuplicateStat{}, err
	}
	row, err := s.queries.ResetDuplicateStat(ctx, pgID)
	if err != nil {
		return DuplicateStat{}, err
	}
	return toDuplicateStat(row), nil
}

// UpdateStage moves a lead and logs the transition. Reopening a lead whose
// contact already has another open lead fails with ErrOpenLeadExists.
func (s *DBStore) UpdateStage(ctx context.Context, leadID, stage string, open bool, actorID string) (Lead, error) {
	pgID, err := db.ParseUUID(leadID)
	if err != nil {
		return Lead{}, ErrLeadNotFound
	}
	details, err := marshalDetails(map[string]any{"stage": stage, "is_open": open, "actor_id": actorID})
	if err != nil {
		return Lead{}, err
	}
	var lead Lead
	err = db.Begin(ctx, s.conn, func(tx pgx.Tx) error {
		q := s.queries.WithTx(tx)
		row, err := q.UpdateLeadStage(ctx, sqlc.UpdateLeadStageParams{ID: pgID, Stage: stage, IsOpen: open})
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrLeadNotFound
			}
			if db.IsUniqueViolation(err) {
				return ErrOpenLeadExists
			}
			return fmt.Errorf("update lead stage: %w", err)
		}
		if _, err := q.InsertLeadEvent(ctx, sqlc.InsertLeadEventParams{
			LeadID:   pgID,
			Type:     EventStageChanged,
			Priority: PriorityNormal,
			Details:  details,
		}); err != nil {
			return fmt.Errorf("insert stage event: %w", err)
		}
		lead = toLead(row)
		return nil
	})
	return lead, err
}

func (s *DBStore) ListEvents(ctx context.Context, leadID string) ([]Event, error) {
	pgID, err := db.ParseUUID(leadID)
	if err != nil {
		return nil, ErrLeadNotFound
	}
	rows, err := s.queries.ListLeadEvents(ctx, pgID)
	if err != nil {
		return nil, err
	}
	items := make([]Event, 0, len(rows))
	for _, row := range rows {
		var details map[string]any
		if len(row.Details) > 0 {
			if err := json.Unmarshal(row.Details, &details); err != nil {
				s.logger.Warn("lead event details not decodable", slog.Int64("event_id", row.ID), slog.Any("error", err))
			}
		}
		items = append(items, Event{
			ID:        row.ID,
			LeadID:    db.UUIDToString(row.LeadID),
			Type:      row.Type,
			Priority:  row.Priority,
			MessageID: db.UUIDToString(row.MessageID),
			Details:   details,
			CreatedAt: db.TimeFromPg(row.CreatedAt),
		})
	}
	return items, nil
}

// ActiveAdmins lists the admins of a franchise, or the platform admins for
// platform-owned integrations, earliest created first.
func (s *DBStore) ActiveAdmins(ctx context.Context, ownerType integration.OwnerType, ownerID string) ([]User, error) {
	var (
		rows []sqlc.User
		err  error
	)
	switch ownerType {
	case integration.OwnerPlatform:
		rows, err = s.queries.ListActivePlatformAdmins(ctx)
	case integration.OwnerFranchise:
		franchiseID, parseErr := db.ParseUUID(ownerID)
		if parseErr != nil {
			return nil, parseErr
		}
		rows, err = s.queries.ListActiveFranchiseAdmins(ctx, franchiseID)
	default:
		return nil, fmt.Errorf("unknown owner type %q", ownerType)
	}
	if err != nil {
		return nil, err
	}
	users := make([]User, 0, len(rows))
	for _, row := range rows {
		users = append(users, toUser(row))
	}
	SortRoster(users)
	return users, nil
}

func (s *DBStore) AdvanceCursor(ctx context.Context, integrationID string) (int64, error) {
	pgID, err := db.ParseUUID(integrationID)
	if err != nil {
		return 0, err
	}
	return s.queries.AdvanceAssignmentCursor(ctx, pgID)
}

func (s *DBStore) GetUser(ctx context.Context, userID string) (User, error) {
	pgID, err := db.ParseUUID(userID)
	if err != nil {
		return User{}, ErrUserNotFound
	}
	row, err := s.queries.GetUser(ctx, pgID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, ErrUserNotFound
		}
		return User{}, err
	}
	return toUser(row), nil
}

// SortRoster orders users by creation time, then id.
func SortRoster(users []User) {
	sort.SliceStable(users, func(i, j int) bool {
		if !users[i].CreatedAt.Equal(users[j].CreatedAt) {
			return users[i].CreatedAt.Before(users[j].CreatedAt)
		}
		return users[i].ID < users[j].ID
	})
}

func contactParams(key channel.ContactKey) (sqlc.GetOpenLeadByContactParams, error) {
	integrationID, err := db.ParseUUID(key.IntegrationID)
	if err != nil {
		return sqlc.GetOpenLeadByContactParams{}, err
	}
	return sqlc.GetOpenLeadByContactParams{
		IntegrationID:  integrationID,
		Channel:        key.Channel.String(),
		ExternalUserID: key.ExternalUserID,
	}, nil
}

func insertParams(lead NewLead) (sqlc.InsertLeadParams, error) {
	integrationID, err := db.ParseUUID(lead.IntegrationID)
	if err != nil {
		return sqlc.InsertLeadParams{}, err
	}
	responsible, err := db.ParseUUID(lead.ResponsibleUserID)
	if err != nil {
		return sqlc.InsertLeadParams{}, fmt.Errorf("responsible user: %w", err)
	}
	source, err := db.ParseOptionalUUID(lead.SourceMessageID)
	if err != nil {
		return sqlc.InsertLeadParams{}, err
	}
	var rule pgtype.Int8
	if lead.MatchedRuleID > 0 {
		rule = pgtype.Int8{Int64: lead.MatchedRuleID, Valid: true}
	}
	return sqlc.InsertLeadParams{
		IntegrationID:     integrationID,
		Channel:           lead.Channel.String(),
		ExternalUserID:    lead.ExternalUserID,
		ResponsibleUserID: responsible,
		Stage:             StageNew,
		MatchedRuleID:     rule,
		SourceMessageID:   source,
	}, nil
}

func marshalDetails(details map[string]any) ([]byte, error) {
	if len(details) == 0 {
		return []byte("{}"), nil
	}
	raw, err := json.Marshal(details)
	if err != nil {
		return nil, fmt.Errorf("marshal event details: %w", err)
	}
	return raw, nil
}

func toLead(row sqlc.Lead) Lead {
	lead := Lead{
		ID:                db.UUIDToString(row.ID),
		IntegrationID:     db.UUIDToString(row.IntegrationID),
		Channel:           channel.ChannelType(row.Channel),
		ExternalUserID:    row.ExternalUserID,
		ResponsibleUserID: db.UUIDToString(row.ResponsibleUserID),
		Stage:             row.Stage,
		IsOpen:            row.IsOpen,
		SourceMessageID:   db.UUIDToString(row.SourceMessageID),
		CreatedAt:         db.TimeFromPg(row.CreatedAt),
		UpdatedAt:         db.TimeFromPg(row.UpdatedAt),
	}
	if row.MatchedRuleID.Valid {
		lead.MatchedRuleID = row.MatchedRuleID.Int64
	}
	return lead
}

func toDuplicateStat(row sqlc.DuplicateStat) DuplicateStat {
	stat := DuplicateStat{
		IntegrationID: db.UUIDToString(row.IntegrationID),
		Count:         row.Count,
	}
	if row.LastDuplicateAt.Valid {
		t := row.LastDuplicateAt.Time
		stat.LastDuplicateAt = &t
	}
	if row.ResetAt.Valid {
		t := row.ResetAt.Time
		stat.ResetAt = &t
	}
	return stat
}

func toUser(row sqlc.User) User {
	return User{
		ID:             db.UUIDToString(row.ID),
		FranchiseID:    db.UUIDToString(row.FranchiseID),
		DisplayName:    row.DisplayName,
		Role:           row.Role,
		Active:         row.IsActive,
		TelegramChatID: db.TextToString(row.TelegramChatID),
		Email:          db.TextToString(row.Email),
		CreatedAt:      db.TimeFromPg(row.CreatedAt),
	}
}
