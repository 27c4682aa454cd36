// Command migrate runs the privileged schema operations from the command line.
// It needs the same admin token as the /api/admin endpoints.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/developer-mesh/style-guide-service/internal/bootstrap"
	"github.com/developer-mesh/style-guide-service/pkg/auth"
	"github.com/developer-mesh/style-guide-service/pkg/config"
	"github.com/developer-mesh/style-guide-service/pkg/observability"
)

var (
	provision = flag.Bool("provision", false, "Provision the schema (base migrations and embedding column)")
	dimension = flag.Int("dimension", -1, "Migrate the embedding column to this dimension (0 uses the embedder's)")
	reembed   = flag.Bool("reembed", false, "Re-embed every sample of the profile")
	check     = flag.Bool("check", false, "Print the schema status")
	down      = flag.Bool("down", false, "Roll back every base migration, dropping all tables")
	confirm   = flag.String("confirm", "", "Must be \""+downConfirmation+"\" together with -down")
	token     = flag.String("token", "", "Admin token")
	timeout   = flag.Duration("timeout", 30*time.Minute, "Overall timeout")
)

const downConfirmation = "drop-all"

var errDownNotConfirmed = errors.New("-down drops every table and needs -confirm=" + downConfirmation)

// downMigrator is the part of migration.Manager used by -down
type downMigrator interface {
	Down(ctx context.Context) error
	Version(ctx context.Context) (uint, bool, error)
}

func main() {
	flag.Parse()

	if !*provision && *dimension < 0 && !*reembed && !*check && !*down {
		flag.Usage()
		os.Exit(2)
	}
	if *down && (*provision || *dimension >= 0 || *reembed || *check) {
		log.Fatal("-down cannot be combined with other operations")
	}
	if *down && *confirm != downConfirmation {
		log.Fatal(errDownNotConfirmed)
	}

	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	zl, err := observability.NewZapLogger(cfg.Observability.Logging)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = zl.Sync() }()
	logger := zl.WithPrefix("migrate")

	gateway := auth.NewGateway(cfg.Auth, nil, logger, nil)
	if err := gateway.VerifyAdminToken(*token); err != nil {
		log.Fatalf("Admin token rejected: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("Migration failed", map[string]any{"error": err.Error()})
		_ = zl.Sync()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger observability.Logger) error {
	app, err := bootstrap.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = app.Close() }()

	if *down {
		return rollback(ctx, app.Migrations, *confirm, logger)
	}

	maintenance := app.Maintenance

	if *provision {
		report, err := maintenance.Provision(ctx)
		if err != nil {
			return err
		}
		printJSON("provision", report)
	} else if _, err := app.Schema.Sync(ctx); err != nil {
		return err
	}

	if *dimension >= 0 {
		report, err := maintenance.MigrateEmbeddings(ctx, *dimension)
		if err != nil {
			return err
		}
		printJSON("migrate-embeddings", report)
	}

	if *reembed {
		report, err := maintenance.ReembedAll(ctx)
		if err != nil {
			return err
		}
		printJSON("reembed", report)
	}

	if *check {
		status, err := maintenance.CheckSchema(ctx)
		if err != nil {
			return err
		}
		printJSON("check-schema", status)
	}
	return nil
}

// rollback reverts every base migration once confirmed
func rollback(ctx context.Context, m downMigrator, confirmation string, logger observability.Logger) error {
	if confirmation != downConfirmation {
		return errDownNotConfirmed
	}
	before, _, err := m.Version(ctx)
	if err != nil {
		return fmt.Errorf("failed to read migration version: %w", err)
	}
	if err := m.Down(ctx); err != nil {
		return fmt.Errorf("failed to roll back migrations: %w", err)
	}
	logger.Warn("Base migrations rolled back", map[string]any{"from_version": before})
	printJSON("down", map[string]any{"from_version": before, "version": 0})
	return nil
}

func printJSON(step string, v any) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		log.Printf("%s: %v", step, err)
		return
	}
	fmt.Printf("%s:\n%s\n", step, out)
}
