package database

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/developer-mesh/style-guide-service/pkg/observability"
	"github.com/jmoiron/sqlx"

	// Import PostgreSQL driver
	_ "github.com/lib/pq"
)

// Common errors
var (
	ErrMissingAWSRegion      = errors.New("AWS region is required when using IAM authentication")
	ErrInvalidDatabaseConfig = errors.New("invalid database configuration: dsn or host is required")
	ErrClosed                = errors.New("database is closed")
)

// sanitizeDSN removes sensitive information from a DSN for safe logging
func sanitizeDSN(dsn string) string {
	if strings.Contains(dsn, "password=") {
		parts := strings.Split(dsn, " ")
		for i, part := range parts {
			if strings.HasPrefix(part, "password=") {
				parts[i] = "password=***"
			}
		}
		return strings.Join(parts, " ")
	}
	if idx := strings.Index(dsn, "://"); idx != -1 {
		if atIdx := strings.Index(dsn[idx:], "@"); atIdx != -1 {
			return dsn[:idx+3] + "***:***" + dsn[idx+atIdx:]
		}
	}
	return dsn
}

// Database is the explicitly constructed connection pool. Build it once at
// startup, pass it to every component and Close it at shutdown.
type Database struct {
	db     *sqlx.DB
	config Config
	logger observability.Logger
}

// NewDatabase opens the pool and verifies it with a ping, retrying with
// exponential backoff while the server is unreachable
func NewDatabase(ctx context.Context, cfg Config, logger observability.Logger) (*Database, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	if cfg.Driver == "" {
		cfg.Driver = "postgres"
	}

	password := cfg.Password
	if cfg.UseIAM {
		token, err := BuildIAMAuthToken(ctx, cfg)
		if err != nil {
			return nil, err
		}
		password = token
	}
	dsn := cfg.GetDSN(password)

	db, err := sqlx.Open(cfg.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	database := &Database{db: db, config: cfg, logger: logger}

	attempt := 0
	ping := func() error {
		attempt++
		pingCtx := ctx
		if cfg.ConnectTimeout > 0 {
			var cancel context.CancelFunc
			pingCtx, cancel = context.WithTimeout(ctx, cfg.ConnectTimeout)
			defer cancel()
		}
		if err := db.PingContext(pingCtx); err != nil {
			logger.Warn("Database connection failed", map[string]any{
				"attempt": attempt,
				"dsn":     sanitizeDSN(dsn),
				"error":   err.Error(),
			})
			return err
		}
		return nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), cfg.ConnectRetries),
		ctx,
	)
	if err := backoff.Retry(ping, policy); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	logger.Info("Database connection established", map[string]any{
		"attempt":        attempt,
		"max_open_conns": cfg.MaxOpenConns,
	})
	return database, nil
}

// NewDatabaseWithConnection creates a Database around an existing connection
func NewDatabaseWithConnection(db *sqlx.DB) *Database {
	return &Database{
		db:     db,
		logger: observability.NewNoopLogger(),
	}
}

// Transaction executes fn inside a transaction. The transaction is rolled
// back when fn returns an error or panics and committed otherwise.
func (d *Database) Transaction(ctx context.Context, fn func(*sqlx.Tx) error) error {
	if d == nil || d.db == nil {
		return ErrClosed
	}

	tx, err := d.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			d.logger.Error("Failed to rollback transaction", map[string]any{
				"error":          rbErr.Error(),
				"original_error": err.Error(),
			})
		}
		return err
	}

	return tx.Commit()
}

// WithConn pins a single pooled connection for the duration of fn
func (d *Database) WithConn(ctx context.Context, fn func(*sqlx.Conn) error) error {
	if d == nil || d.db == nil {
		return ErrClosed
	}
	conn, err := d.db.Connx(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire connection: %w", err)
	}
	defer func() {
		_ = conn.Close()
	}()
	return fn(conn)
}

// Close closes the pool
func (d *Database) Close() error {
	if d == nil || d.db == nil {
		return nil
	}
	return d.db.Close()
}

// Ping checks if the database connection is alive
func (d *Database) Ping(ctx context.Context) error {
	if d == nil || d.db == nil {
		return ErrClosed
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return d.db.PingContext(ctx)
}

// DB returns the underlying sqlx.DB instance
func (d *Database) DB() *sqlx.DB {
	return d.db
}

// Stats reports pool usage for readiness output
func (d *Database) Stats() map[string]any {
	s := d.db.Stats()
	return map[string]any{
		"open_connections": s.OpenConnections,
		"in_use":           s.InUse,
		"idle":             s.Idle,
		"wait_count":       s.WaitCount,
	}
}
