package inbound

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/franchiseos/leadhub/internal/channel"
	"github.com/franchiseos/leadhub/internal/db/sqlc"
	"github.com/franchiseos/leadhub/internal/logger"
)

type fakeRow struct {
	scanFunc func(dest ...any) error
}

func (r *fakeRow) Scan(dest ...any) error {
	return r.scanFunc(dest...)
}

type fakeDBTX struct {
	queryRowFunc func(ctx context.Context, sql string, args ...any) pgx.Row
	executed     []string
}

func (d *fakeDBTX) Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, errors.New("not implemented")
}

func (d *fakeDBTX) Query(context.Context, string, ...interface{}) (pgx.Rows, error) {
	return nil, errors.New("not implemented")
}

func (d *fakeDBTX) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	d.executed = append(d.executed, sql)
	return d.queryRowFunc(ctx, sql, args...)
}

func mustParseUUID(s string) pgtype.UUID {
	var u pgtype.UUID
	_ = u.Scan(s)
	return u
}

func makeMessageRow(id string, receivedAt time.Time) *fakeRow {
	return &fakeRow{scanFunc: func(dest ...any) error {
		*dest[0].(*pgtype.UUID) = mustParseUUID(id)
		*dest[10].(*pgtype.Timestamptz) = pgtype.Timestamptz{Time: receivedAt, Valid: true}
		return nil
	}}
}

const (
	storedID      = "11111111-2222-3333-4444-555555555555"
	integrationID = "00000000-0000-0000-0000-0000000000a1"
)

func testMessage() channel.InboundMessage {
	return channel.InboundMessage{
		IntegrationID:     integrationID,
		Channel:           channel.Telegram,
		ExternalMessageID: "900001",
		Sender:            channel.Identity{SubjectID: "555", DisplayName: "Ivan"},
		Text:              "бронь",
		RawPayload:        []byte(`{"update_id":900001}`),
	}
}

func TestDBMessageStoreInsert(t *testing.T) {
	t.Parallel()

	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	var args []any
	fake := &fakeDBTX{queryRowFunc: func(_ context.Context, _ string, a ...any) pgx.Row {
		args = a
		return makeMessageRow(storedID, at)
	}}
	store := NewDBMessageStore(logger.Discard(), sqlc.New(fake))

	saved, err := store.Save(context.Background(), testMessage())
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if saved.ID != storedID || saved.Replayed || !saved.ReceivedAt.Equal(at) {
		t.Fatalf("unexpected saved message: %+v", saved)
	}
	if saved.Sender.DisplayName != "Ivan" {
		t.Fatalf("sender details lost: %+v", saved.Sender)
	}
	if got := string(args[7].([]byte)); got != "[]" {
		t.Fatalf("attachments = %s, want []", got)
	}
	if got := args[9].(pgtype.Timestamptz); !got.Valid {
		t.Fatalf("received_at must default to now")
	}
}

func TestDBMessageStoreReplay(t *testing.T) {
	t.Parallel()

	fake := &fakeDBTX{queryRowFunc: func(_ context.Context, sql string, _ ...any) pgx.Row {
		if strings.Contains(sql, "InsertInboundMessage") {
			return &fakeRow{scanFunc: func(...any) error { return pgx.ErrNoRows }}
		}
		return makeMessageRow(storedID, time.Now())
	}}
	store := NewDBMessageStore(logger.Discard(), sqlc.New(fake))

	saved, err := store.Save(context.Background(), testMessage())
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if !saved.Replayed || saved.ID != storedID {
		t.Fatalf("expected replay of %s, got %+v", storedID, saved)
	}
	if len(fake.executed) != 2 {
		t.Fatalf("expected insert and lookup, got %d queries", len(fake.executed))
	}
}

func TestDBMessageStoreErrors(t *testing.T) {
	t.Parallel()

	fake := &fakeDBTX{queryRowFunc: func(context.Context, string, ...any) pgx.Row {
		return &fakeRow{scanFunc: func(...any) error { return pgx.ErrNoRows }}
	}}
	store := NewDBMessageStore(logger.Discard(), sqlc.New(fake))

	msg := testMessage()
	msg.ExternalMessageID = ""
	if _, err := store.Save(context.Background(), msg); err == nil {
		t.Fatalf("expected error when insert returns no row without external id")
	}

	msg.IntegrationID = "not-a-uuid"
	if _, err := store.Save(context.Background(), msg); err == nil {
		t.Fatalf("expected invalid integration id error")
	}
}
