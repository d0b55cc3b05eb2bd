package integration

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/franchiseos/leadhub/internal/channel"
	"github.com/franchiseos/leadhub/internal/db/sqlc"
)

// fakeRow implements pgx.Row with a custom scan function.
type fakeRow struct {
	scanFunc func(dest ...any) error
}

func (r *fakeRow) Scan(dest ...any) error {
	return r.scanFunc(dest...)
}

// fakeDBTX implements sqlc.DBTX for unit testing.
type fakeDBTX struct {
	queryRowFunc func(ctx context.Context, sql string, args ...any) pgx.Row
	execFunc     func(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	executed     []string
}

func (d *fakeDBTX) Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error) {
	d.executed = append(d.executed, sql)
	if d.execFunc != nil {
		return d.execFunc(ctx, sql, args...)
	}
	return pgconn.CommandTag{}, nil
}

func (d *fakeDBTX) Query(context.Context, string, ...interface{}) (pgx.Rows, error) {
	return nil, errors.New("not implemented")
}

func (d *fakeDBTX) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	d.executed = append(d.executed, sql)
	if d.queryRowFunc != nil {
		return d.queryRowFunc(ctx, sql, args...)
	}
	return makeNoRow()
}

func makeNoRow() *fakeRow {
	return &fakeRow{scanFunc: func(dest ...any) error { return pgx.ErrNoRows }}
}

func mustParseUUID(s string) pgtype.UUID {
	var u pgtype.UUID
	_ = u.Scan(s)
	return u
}

// makeIntegrationRow populates a sqlc.Integration via Scan.
func makeIntegrationRow(id pgtype.UUID, ownerType, ch string, active bool) *fakeRow {
	return &fakeRow{
		scanFunc: func(dest ...any) error {
			if len(dest) < 12 {
				return pgx.ErrNoRows
			}
			*dest[0].(*pgtype.UUID) = id
			*dest[1].(*string) = ownerType
			*dest[2].(*pgtype.UUID) = pgtype.UUID{}
			*dest[3].(*string) = ch
			*dest[4].(*bool) = active
			*dest[5].(*[]byte) = []byte(`{"app_secret":"s3"}`)
			*dest[6].(*string) = string(StrategyRoundRobin)
			*dest[7].(*pgtype.UUID) = pgtype.UUID{}
			*dest[8].(*bool) = true
			*dest[9].(*pgtype.Timestamptz) = pgtype.Timestamptz{}
			*dest[10].(*pgtype.Timestamptz) = pgtype.Timestamptz{}
			*dest[11].(*pgtype.Timestamptz) = pgtype.Timestamptz{}
			return nil
		},
	}
}

const integrationID = "00000000-0000-0000-0000-0000000000a1"

func TestCreateValidation(t *testing.T) {
	t.Parallel()

	svc := NewService(nil, sqlc.New(&fakeDBTX{}), nil)
	tests := []struct {
		name string
		req  CreateRequest
		want error
	}{
		{"unsupported channel", CreateRequest{OwnerType: "platform", Channel: "fax"}, channel.ErrUnsupportedChannel},
		{"franchise without owner", CreateRequest{OwnerType: "franchise", Channel: "telegram"}, ErrInvalidIntegration},
		{"unknown owner type", CreateRequest{OwnerType: "tenant", Channel: "telegram"}, ErrInvalidIntegration},
		{"fixed without assignee", CreateRequest{OwnerType: "platform", Channel: "vk", AssignmentStrategy: "fixed"}, ErrInvalidIntegration},
		{"bad strategy", CreateRequest{OwnerType: "platform", Channel: "vk", AssignmentStrategy: "lottery"}, ErrInvalidIntegration},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if _, err := svc.Create(context.Background(), tt.req); !errors.Is(err, tt.want) {
				t.Fatalf("Create error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestGetMapsNoRowsToNotFound(t *testing.T) {
	t.Parallel()

	svc := NewService(nil, sqlc.New(&fakeDBTX{}), nil)
	if _, err := svc.Get(context.Background(), integrationID); !errors.Is(err, ErrIntegrationNotFound) {
		t.Fatalf("Get error = %v, want ErrIntegrationNotFound", err)
	}
	if _, err := svc.Get(context.Background(), "not-a-uuid"); !errors.Is(err, ErrIntegrationNotFound) {
		t.Fatalf("Get(invalid) error = %v, want ErrIntegrationNotFound", err)
	}
}

func TestGetDecodesRow(t *testing.T) {
	t.Parallel()

	pgID := mustParseUUID(integrationID)
	dbtx := &fakeDBTX{
		queryRowFunc: func(ctx context.Context, sql string, args ...any) pgx.Row {
			return makeIntegrationRow(pgID, "platform", "instagram", true)
		},
	}
	got, err := NewService(nil, sqlc.New(dbtx), nil).Get(context.Background(), integrationID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.ID != integrationID || got.Channel != channel.Instagram || !got.Active {
		t.Fatalf("unexpected integration: %+v", got)
	}
	if got.Credentials["app_secret"] != "s3" {
		t.Fatalf("credentials not decoded: %v", got.Credentials)
	}
	if got.WebhookPath() != "/webhooks/instagram/"+integrationID {
		t.Fatalf("webhook path = %q", got.WebhookPath())
	}
}

func TestDeleteArchivesWhenChildrenExist(t *testing.T) {
	t.Parallel()

	pgID := mustParseUUID(integrationID)
	dbtx := &fakeDBTX{
		queryRowFunc: func(ctx context.Context, sql string, args ...any) pgx.Row {
			switch {
			case strings.Contains(sql, "CountIntegrationChildren"):
				return &fakeRow{scanFunc: func(dest ...any) error {
					*dest[0].(*int64) = 3
					return nil
				}}
			case strings.Contains(sql, "ArchiveIntegration"):
				return makeIntegrationRow(pgID, "platform", "vk", false)
			}
			return makeNoRow()
		},
		execFunc: func(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
			t.Fatalf("unexpected exec: %s", sql)
			return pgconn.CommandTag{}, nil
		},
	}
	outcome, err := NewService(nil, sqlc.New(dbtx), nil).Delete(context.Background(), integrationID, false)
	if err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if outcome != DeleteArchived {
		t.Fatalf("outcome = %q, want archived", outcome)
	}
}

func TestDeleteRemovesWhenEmptyOrHard(t *testing.T) {
	t.Parallel()

	for _, hard := range []bool{false, true} {
		dbtx := &fakeDBTX{
			queryRowFunc: func(ctx context.Context, sql string, args ...any) pgx.Row {
				if hard {
					t.Fatalf("hard delete must not count children: %s", sql)
				}
				return &fakeRow{scanFunc: func(dest ...any) error {
					*dest[0].(*int64) = 0
					return nil
				}}
			},
			execFunc: func(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
				return pgconn.NewCommandTag("DELETE 1"), nil
			},
		}
		outcome, err := NewService(nil, sqlc.New(dbtx), nil).Delete(context.Background(), integrationID, hard)
		if err != nil {
			t.Fatalf("Delete(hard=%v): %v", hard, err)
		}
		if outcome != DeleteRemoved {
			t.Fatalf("Delete(hard=%v) outcome = %q", hard, outcome)
		}
	}
}

func TestDeleteMissingIntegration(t *testing.T) {
	t.Parallel()

	dbtx := &fakeDBTX{
		execFunc: func(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
			return pgconn.NewCommandTag("DELETE 0"), nil
		},
	}
	if _, err := NewService(nil, sqlc.New(dbtx), nil).Delete(context.Background(), integrationID, true); !errors.Is(err, ErrIntegrationNotFound) {
		t.Fatalf("Delete error = %v, want ErrIntegrationNotFound", err)
	}
}

func TestRuleValidation(t *testing.T) {
	t.Parallel()

	svc := NewService(nil, sqlc.New(&fakeDBTX{}), nil)
	for _, req := range []RuleRequest{
		{Keywords: nil},
		{Keywords: []string{"ok", "  "}},
		{Keywords: []string{"ok"}, MatchType: "most"},
	} {
		if _, err := svc.CreateRule(context.Background(), integrationID, req); !errors.Is(err, ErrInvalidRule) {
			t.Fatalf("CreateRule(%+v) error = %v, want ErrInvalidRule", req, err)
		}
	}
}

func TestDeleteRuleNotFound(t *testing.T) {
	t.Parallel()

	dbtx := &fakeDBTX{
		execFunc: func(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
			return pgconn.NewCommandTag("DELETE 0"), nil
		},
	}
	if err := NewService(nil, sqlc.New(dbtx), nil).DeleteRule(context.Background(), integrationID, 9); !errors.Is(err, ErrRuleNotFound) {
		t.Fatalf("DeleteRule error = %v, want ErrRuleNotFound", err)
	}
}
