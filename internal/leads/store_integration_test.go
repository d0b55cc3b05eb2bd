package leads

import (
	"context"
	"os"
	"sync"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/franchiseos/leadhub/internal/channel"
	"github.com/franchiseos/leadhub/internal/config"
	"github.com/franchiseos/leadhub/internal/db"
	"github.com/franchiseos/leadhub/internal/logger"
)

// setupPostgres migrates the database named by TEST_POSTGRES_DSN and returns
// a pool, skipping the test when the variable is unset.
func setupPostgres(t *testing.T) *pgxpool.Pool {
	t.Helper()
	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TEST_POSTGRES_DSN not set")
	}
	connCfg, err := pgx.ParseConfig(dsn)
	if err != nil {
		t.Fatalf("parse dsn: %v", err)
	}
	cfg := config.PostgresConfig{
		Host:     connCfg.Host,
		Port:     int(connCfg.Port),
		User:     connCfg.User,
		Password: connCfg.Password,
		Database: connCfg.Database,
		SSLMode:  "disable",
	}
	if _, err := db.MigrateUp(logger.Discard(), cfg); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	pool, err := db.Open(context.Background(), cfg)
	if err != nil {
		t.Fatalf("open pool: %v", err)
	}
	t.Cleanup(pool.Close)
	return pool
}

func seedIntegration(t *testing.T, pool *pgxpool.Pool) (integrationID, adminID string) {
	t.Helper()
	ctx := context.Background()
	err := pool.QueryRow(ctx,
		`INSERT INTO users (franchise_id, display_name, role) VALUES (gen_random_uuid(), 'Admin', 'admin') RETURNING id::text`,
	).Scan(&adminID)
	if err != nil {
		t.Fatalf("seed user: %v", err)
	}
	err = pool.QueryRow(ctx,
		`INSERT INTO integrations (owner_type, channel) VALUES ('platform', 'telegram') RETURNING id::text`,
	).Scan(&integrationID)
	if err != nil {
		t.Fatalf("seed integration: %v", err)
	}
	return integrationID, adminID
}

func TestDBStoreConcurrentCreateKeepsOneOpenLead(t *testing.T) {
	pool := setupPostgres(t)
	integrationID, adminID := seedIntegration(t, pool)
	store := NewDBStore(logger.Discard(), pool)

	const n = 16
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
		ids     = map[string]struct{}{}
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			lead, ok, err := store.CreateLead(context.Background(), NewLead{
				IntegrationID:     integrationID,
				Channel:           channel.Telegram,
				ExternalUserID:    "contact-1",
				ResponsibleUserID: adminID,
			})
			if err != nil {
				t.Errorf("CreateLead: %v", err)
				return
			}
			mu.Lock()
			defer mu.Unlock()
			if ok {
				created++
			}
			ids[lead.ID] = struct{}{}
		}()
	}
	wg.Wait()

	if created != 1 {
		t.Fatalf("created = %d, want 1", created)
	}
	if len(ids) != 1 {
		t.Fatalf("callers saw %d distinct leads, want 1", len(ids))
	}
	for id := range ids {
		found, ok, err := store.FindOpenLeadID(context.Background(), channel.ContactKey{
			IntegrationID:  integrationID,
			Channel:        channel.Telegram,
			ExternalUserID: "contact-1",
		})
		if err != nil || !ok || found != id {
			t.Fatalf("FindOpenLeadID = %q, %v, %v", found, ok, err)
		}
	}
}

func TestDBStoreDuplicateAndStageLifecycle(t *testing.T) {
	pool := setupPostgres(t)
	integrationID, adminID := seedIntegration(t, pool)
	store := NewDBStore(logger.Discard(), pool)
	ctx := context.Background()

	lead, created, err := store.CreateLead(ctx, NewLead{
		IntegrationID:     integrationID,
		Channel:           channel.Telegram,
		ExternalUserID:    "contact-2",
		ResponsibleUserID: adminID,
	})
	if err != nil || !created {
		t.Fatalf("CreateLead = %v, %v", created, err)
	}
	stat, err := store.RecordDuplicate(ctx, Duplicate{LeadID: lead.ID, IntegrationID: integrationID})
	if err != nil || stat.Count != 1 {
		t.Fatalf("RecordDuplicate = %+v, %v", stat, err)
	}
	closed, err := store.UpdateStage(ctx, lead.ID, "completed", false, adminID)
	if err != nil || closed.IsOpen {
		t.Fatalf("UpdateStage = %+v, %v", closed, err)
	}
	second, created, err := store.CreateLead(ctx, NewLead{
		IntegrationID:     integrationID,
		Channel:           channel.Telegram,
		ExternalUserID:    "contact-2",
		ResponsibleUserID: adminID,
	})
	if err != nil || !created || second.ID == lead.ID {
		t.Fatalf("second CreateLead = %+v, %v, %v", second, created, err)
	}
	if _, err := store.UpdateStage(ctx, lead.ID, "new", true, adminID); err != ErrOpenLeadExists {
		t.Fatalf("reopen error = %v, want ErrOpenLeadExists", err)
	}
	events, err := store.ListEvents(ctx, lead.ID)
	if err != nil {
		t.Fatalf("ListEvents: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("events = %d, want 3 (created, duplicate, stage)", len(events))
	}
	stat, err = store.ResetDuplicateStat(ctx, integrationID)
	if err != nil || stat.Count != 0 || stat.ResetAt == nil {
		t.Fatalf("ResetDuplicateStat = %+v, %v", stat, err)
	}
}
