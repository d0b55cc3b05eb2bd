package db

import (
	"embed"
	"errors"
	"fmt"
	"log/slog"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/franchiseos/leadhub/internal/config"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// MigrationStatus reports the schema version after a migrate run.
type MigrationStatus struct {
	Version uint
	Dirty   bool
}

func newMigrator(cfg config.PostgresConfig) (*migrate.Migrate, error) {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("open embedded migrations: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, cfg.URL("pgx5"))
	if err != nil {
		return nil, fmt.Errorf("init migrator: %w", err)
	}
	return m, nil
}

// MigrateUp applies every pending migration.
func MigrateUp(log *slog.Logger, cfg config.PostgresConfig) (MigrationStatus, error) {
	return runMigration(log, cfg, "up", func(m *migrate.Migrate) error { return m.Up() })
}

// MigrateDown rolls back a number of steps. steps <= 0 rolls back everything.
func MigrateDown(log *slog.Logger, cfg config.PostgresConfig, steps int) (MigrationStatus, error) {
	return runMigration(log, cfg, "down", func(m *migrate.Migrate) error {
		if steps > 0 {
			return m.Steps(-steps)
		}
		return m.Down()
	})
}

// MigrationVersion reads the current schema version without changing it.
func MigrationVersion(cfg config.PostgresConfig) (MigrationStatus, error) {
	m, err := newMigrator(cfg)
	if err != nil {
		return MigrationStatus{}, err
	}
	defer closeMigrator(m)
	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return MigrationStatus{}, err
	}
	return MigrationStatus{Version: version, Dirty: dirty}, nil
}

func runMigration(log *slog.Logger, cfg config.PostgresConfig, direction string, fn func(*migrate.Migrate) error) (MigrationStatus, error) {
	m, err := newMigrator(cfg)
	if err != nil {
		return MigrationStatus{}, err
	}
	defer closeMigrator(m)
	if err := fn(m); err != nil {
		if !errors.Is(err, migrate.ErrNoChange) {
			return MigrationStatus{}, fmt.Errorf("migrate %s: %w", direction, err)
		}
		log.Info("schema already current", slog.String("direction", direction))
	}
	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return MigrationStatus{}, err
	}
	log.Info("migration finished",
		slog.String("direction", direction),
		slog.Uint64("version", uint64(version)),
		slog.Bool("dirty", dirty),
	)
	return MigrationStatus{Version: version, Dirty: dirty}, nil
}

func closeMigrator(m *migrate.Migrate) {
	_, _ = m.Close()
}
