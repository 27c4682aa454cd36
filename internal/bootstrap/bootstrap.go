// Package bootstrap wires the configured components of the service. Both
// binaries build on it so the server and the migrate tool share one graph.
package bootstrap

import (
	"context"
	"errors"
	"fmt"

	"github.com/developer-mesh/style-guide-service/pkg/auth"
	"github.com/developer-mesh/style-guide-service/pkg/config"
	"github.com/developer-mesh/style-guide-service/pkg/database"
	"github.com/developer-mesh/style-guide-service/pkg/database/migration"
	"github.com/developer-mesh/style-guide-service/pkg/embedding"
	"github.com/developer-mesh/style-guide-service/pkg/observability"
	"github.com/developer-mesh/style-guide-service/pkg/repository"
	"github.com/developer-mesh/style-guide-service/pkg/schema"
	"github.com/developer-mesh/style-guide-service/pkg/services"
)

// App holds the wired components
type App struct {
	Config     *config.Config
	Logger     observability.Logger
	Metrics    *observability.PrometheusMetricsClient
	DB         *database.Database
	Migrations *migration.Manager
	Schema     *schema.Manager
	Readiness  *database.ReadinessChecker
	Embedder   embedding.Embedder

	Profiles    *services.ProfileService
	Samples     *services.SampleService
	Maintenance *services.MaintenanceService

	closers []func() error
}

// DatabaseConfig converts the database section of the configuration
func DatabaseConfig(cfg config.DatabaseConfig) database.Config {
	dbCfg := database.NewConfig()
	if cfg.Driver != "" {
		dbCfg.Driver = cfg.Driver
	}
	dbCfg.DSN = cfg.DSN
	dbCfg.Host = cfg.Host
	if cfg.Port > 0 {
		dbCfg.Port = cfg.Port
	}
	dbCfg.Database = cfg.Database
	dbCfg.Username = cfg.Username
	dbCfg.Password = cfg.Password
	if cfg.SSLMode != "" {
		dbCfg.SSLMode = cfg.SSLMode
	}
	if cfg.MaxOpenConns > 0 {
		dbCfg.MaxOpenConns = cfg.MaxOpenConns
	}
	if cfg.MaxIdleConns > 0 {
		dbCfg.MaxIdleConns = cfg.MaxIdleConns
	}
	if cfg.ConnMaxLifetime > 0 {
		dbCfg.ConnMaxLifetime = cfg.ConnMaxLifetime
	}
	if cfg.ConnMaxIdleTime > 0 {
		dbCfg.ConnMaxIdleTime = cfg.ConnMaxIdleTime
	}
	if cfg.ConnectTimeout > 0 {
		dbCfg.ConnectTimeout = cfg.ConnectTimeout
	}
	dbCfg.ConnectRetries = cfg.ConnectRetries
	dbCfg.UseIAM = cfg.UseIAMAuth
	dbCfg.AWSRegion = cfg.Region
	return *dbCfg
}

// New connects to the database and builds the services
func New(ctx context.Context, cfg *config.Config, logger observability.Logger) (*App, error) {
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	app := &App{
		Config:  cfg,
		Logger:  logger,
		Metrics: observability.NewPrometheusMetricsClient(cfg.Observability.Metrics.Namespace),
	}

	db, err := database.NewDatabase(ctx, DatabaseConfig(cfg.Database), logger.WithPrefix("database"))
	if err != nil {
		return nil, err
	}
	app.DB = db
	app.closers = append(app.closers, db.Close)

	app.Migrations, err = migration.NewManager(db.DB(), migration.Config{}, logger.WithPrefix("migration"))
	if err != nil {
		_ = app.Close()
		return nil, err
	}
	app.Schema = schema.NewManager(db, app.Migrations, schema.Config{
		Dimension:        cfg.Embedding.Dimension,
		StatementTimeout: cfg.Database.MigrationStatementTimeout,
	}, logger)
	app.Readiness = database.NewReadinessChecker(db.DB())

	app.Embedder = embedding.NewEmbedder(ctx, cfg.Embedding, logger, app.Metrics)

	sc := services.ServiceConfig{Logger: logger, Metrics: app.Metrics}
	profileRepo := repository.NewProfileRepository(db, logger, app.Metrics)
	sampleRepo := repository.NewSampleRepository(db, logger, app.Metrics)
	metadataRepo := repository.NewMetadataRepository(db, logger, app.Metrics)

	app.Profiles, err = services.NewProfileService(profileRepo, cfg.Profile, sc)
	if err != nil {
		_ = app.Close()
		return nil, err
	}
	app.Samples = services.NewSampleService(sampleRepo, metadataRepo, app.Profiles, app.Embedder, app.Schema, sc)
	app.Maintenance = services.NewMaintenanceService(app.Schema, app.Readiness, sampleRepo, profileRepo, app.Embedder, cfg.Profile.ID, sc,
		services.WithMigrations(app.Migrations),
		services.WithPoolStats(db.Stats),
	)

	return app, nil
}

// NewGateway builds the auth gateway and, for the redis session store, its client
func (a *App) NewGateway(ctx context.Context) (*auth.Gateway, error) {
	dash := a.Config.Auth.Dashboard

	var sessions auth.SessionStore
	var err error
	if dash.SessionStore == auth.SessionStoreRedis {
		client, err := auth.NewRedisClient(ctx, a.Config.Redis)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, client.Close)
		sessions, err = auth.NewSessionStore(dash, client, a.Logger)
		if err != nil {
			return nil, err
		}
	} else {
		sessions, err = auth.NewSessionStore(dash, nil, a.Logger)
		if err != nil {
			return nil, err
		}
	}
	return auth.NewGateway(a.Config.Auth, sessions, a.Logger, a.Metrics), nil
}

// Prepare provisions the schema, or with skipProvision only adopts the
// dimension of an existing column.
func (a *App) Prepare(ctx context.Context, skipProvision bool) error {
	if skipProvision {
		info, err := a.Schema.Sync(ctx)
		if err != nil {
			return fmt.Errorf("failed to inspect schema: %w", err)
		}
		a.Logger.Info("Schema provisioning skipped", map[string]any{
			"column_exists": info.Exists,
			"dimension":     a.Schema.Dimension(),
		})
		return nil
	}

	report, err := a.Schema.Provision(ctx)
	if err != nil {
		return err
	}
	for _, w := range report.Warnings() {
		a.Logger.Warn("Schema step did not complete", map[string]any{
			"step":   w.Step,
			"detail": w.Detail,
		})
	}
	return nil
}

// Close releases everything New opened, in reverse order
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
