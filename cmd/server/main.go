package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/developer-mesh/style-guide-service/internal/api"
	"github.com/developer-mesh/style-guide-service/internal/bootstrap"
	"github.com/developer-mesh/style-guide-service/pkg/config"
	"github.com/developer-mesh/style-guide-service/pkg/observability"
)

// Command-line flags
var (
	skipMigration = flag.Bool("skip-migration", false, "Skip schema provisioning on startup")
	migrateOnly   = flag.Bool("migrate", false, "Provision the schema and exit")
	healthCheck   = flag.Bool("health-check", false, "Run health check and exit")
)

const shutdownTimeout = 30 * time.Second

func main() {
	flag.Parse()

	if *healthCheck {
		os.Exit(runHealthCheck())
	}

	// A missing .env file is normal outside local development
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if port := os.Getenv("PORT"); port != "" {
		cfg.API.ListenAddress = ":" + port
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	zl, err := observability.NewZapLogger(cfg.Observability.Logging)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = zl.Sync() }()
	logger := zl.WithPrefix(api.ServiceName)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("Service stopped with error", map[string]any{"error": err.Error()})
		_ = zl.Sync()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger observability.Logger) error {
	tracingCfg := cfg.Observability.Tracing
	if tracingCfg.ServiceName == "" {
		tracingCfg.ServiceName = api.ServiceName
	}
	shutdownTracing, err := observability.InitTracing(ctx, tracingCfg)
	if err != nil {
		return err
	}
	defer shutdownTracing()

	app, err := bootstrap.New(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize service: %w", err)
	}
	defer func() {
		if err := app.Close(); err != nil {
			logger.Warn("Error releasing resources", map[string]any{"error": err.Error()})
		}
	}()

	if err := app.Prepare(ctx, *skipMigration); err != nil {
		return fmt.Errorf("failed to prepare schema: %w", err)
	}
	if *migrateOnly {
		logger.Info("Schema provisioned, exiting", map[string]any{"dimension": app.Schema.Dimension()})
		return nil
	}

	gateway, err := app.NewGateway(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize auth: %w", err)
	}

	health := api.NewHealthChecker(cfg.Version)
	health.RegisterCheck("database", app.DB.Ping)
	health.RegisterCheck("tables", app.Readiness.Check)

	opts := api.Options{
		Version:              cfg.Version,
		ExposeInternalErrors: !cfg.IsProduction(),
		Logger:               logger,
		Metrics:              app.Metrics,
		Health:               health,
	}
	if cfg.Observability.Metrics.Enabled {
		opts.MetricsHandler = app.Metrics.Handler()
	}

	server, err := api.NewServer(cfg.API, gateway, api.Services{
		Profiles:    app.Profiles,
		Samples:     app.Samples,
		Maintenance: app.Maintenance,
	}, opts)
	if err != nil {
		return err
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("Starting server", map[string]any{
			"address":     cfg.API.ListenAddress,
			"environment": cfg.Environment,
			"dimension":   app.Schema.Dimension(),
		})
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case sig := <-quit:
		logger.Info("Shutting down server", map[string]any{"signal": sig.String()})
	case err, ok := <-serverErr:
		if ok {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	logger.Info("Server exited", nil)
	return nil
}

// runHealthCheck calls the local /health endpoint and returns the exit code
func runHealthCheck() int {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(fmt.Sprintf("http://localhost:%s/health", port))
	if err != nil {
		log.Printf("Health check failed: %v", err)
		return 1
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		log.Printf("Health check failed with status: %d", resp.StatusCode)
		return 1
	}
	return 0
}
