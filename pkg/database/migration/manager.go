// Package migration applies the versioned base schema with golang-migrate.
// The SQL files are embedded, so binaries need no migrations directory.
package migration

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/developer-mesh/style-guide-service/pkg/observability"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
)

//go:embed sql/*.sql
var migrationFiles embed.FS

// Config holds the migration configuration
type Config struct {
	// MigrationTimeout bounds a whole Up or Down run
	MigrationTimeout time.Duration
	// MigrationsTable overrides golang-migrate's bookkeeping table
	MigrationsTable string
}

// Manager handles the versioned migrations
type Manager struct {
	db     *sqlx.DB
	config Config
	logger observability.Logger
}

// NewManager creates a new migration manager
func NewManager(db *sqlx.DB, config Config, logger observability.Logger) (*Manager, error) {
	if db == nil {
		return nil, errors.New("db connection cannot be nil")
	}
	if config.MigrationTimeout == 0 {
		config.MigrationTimeout = 1 * time.Minute
	}
	if config.MigrationsTable == "" {
		config.MigrationsTable = "schema_migrations"
	}
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	return &Manager{db: db, config: config, logger: logger}, nil
}

// withMigrator runs fn against a migrator bound to one pinned connection.
// postgres.WithInstance would close the shared pool on Close, so the driver
// is built from a dedicated *sql.Conn instead.
func (m *Manager) withMigrator(ctx context.Context, fn func(*migrate.Migrate) error) error {
	source, err := iofs.New(migrationFiles, "sql")
	if err != nil {
		return fmt.Errorf("failed to open embedded migrations: %w", err)
	}

	conn, err := m.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire migration connection: %w", err)
	}

	driver, err := postgres.WithConnection(ctx, conn, &postgres.Config{
		MigrationsTable: m.config.MigrationsTable,
	})
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("failed to create postgres driver: %w", err)
	}

	migrator, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		_ = driver.Close()
		return fmt.Errorf("failed to create migrator: %w", err)
	}
	defer func() {
		if srcErr, dbErr := migrator.Close(); srcErr != nil || dbErr != nil {
			m.logger.Warn("Failed to close migrator", map[string]any{
				"source_error":   fmt.Sprint(srcErr),
				"database_error": fmt.Sprint(dbErr),
			})
		}
	}()

	return m.runWithTimeout(ctx, migrator, fn)
}

func (m *Manager) runWithTimeout(ctx context.Context, migrator *migrate.Migrate, fn func(*migrate.Migrate) error) error {
	ctx, cancel := context.WithTimeout(ctx, m.config.MigrationTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- fn(migrator)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		// Ask golang-migrate to stop after the current file, then wait for it
		select {
		case migrator.GracefulStop <- true:
		default:
		}
		<-done
		return fmt.Errorf("migration timeout after %s", m.config.MigrationTimeout)
	}
}

// Up applies all pending migrations. Nothing to apply is not an error.
func (m *Manager) Up(ctx context.Context) error {
	return m.withMigrator(ctx, func(migrator *migrate.Migrate) error {
		err := migrator.Up()
		if errors.Is(err, migrate.ErrNoChange) {
			m.logger.Debug("No migrations to run", nil)
			return nil
		}
		if err != nil {
			return fmt.Errorf("migration error: %w", err)
		}
		m.logger.Info("Migrations applied", nil)
		return nil
	})
}

// Down rolls back every migration
func (m *Manager) Down(ctx context.Context) error {
	return m.withMigrator(ctx, func(migrator *migrate.Migrate) error {
		err := migrator.Down()
		if errors.Is(err, migrate.ErrNoChange) {
			return nil
		}
		return err
	})
}

// Version reports the applied version and whether the last run left it dirty
func (m *Manager) Version(ctx context.Context) (version uint, dirty bool, err error) {
	err = m.withMigrator(ctx, func(migrator *migrate.Migrate) error {
		var vErr error
		version, dirty, vErr = migrator.Version()
		if errors.Is(vErr, migrate.ErrNilVersion) {
			return nil
		}
		return vErr
	})
	return version, dirty, err
}

// Files lists the embedded migration file names, in order
func Files() ([]string, error) {
	entries, err := migrationFiles.ReadDir("sql")
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names, nil
}
