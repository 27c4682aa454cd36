// Package schema provisions the sample store and migrates the dimension of
// the embedding column.
package schema

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/developer-mesh/style-guide-service/pkg/database"
	apperrors "github.com/developer-mesh/style-guide-service/pkg/errors"
	"github.com/developer-mesh/style-guide-service/pkg/observability"
)

const (
	// MinDimension and MaxDimension bound the pgvector column size
	MinDimension = 1
	MaxDimension = 16000

	embeddingColumn = "embedding_vector"
	embeddingIndex  = "idx_samples_embedding"
)

// Migrator applies the versioned base migrations
type Migrator interface {
	Up(ctx context.Context) error
}

// Config configures the manager
type Config struct {
	// Dimension is the embedding dimension provisioned on a fresh schema
	Dimension int
	// StatementTimeout bounds each DDL statement of a dimension migration
	StatementTimeout time.Duration
}

// ColumnInfo describes the embedding column as stored in the catalog
type ColumnInfo struct {
	Exists     bool   `json:"exists"`
	ColumnName string `json:"column_name,omitempty" db:"column_name"`
	DataType   string `json:"data_type,omitempty" db:"data_type"`
	UDTName    string `json:"udt_name,omitempty" db:"udt_name"`
	Dimension  int    `json:"dimension,omitempty"`
}

// Manager owns the schema of the sample store and the process-wide
// embedding dimension.
type Manager struct {
	db        *database.Database
	migrator  Migrator
	config    Config
	dimension atomic.Int64
	logger    observability.Logger
}

// NewManager creates a schema manager. migrator may be nil when the base
// schema is managed elsewhere.
func NewManager(db *database.Database, migrator Migrator, cfg Config, logger observability.Logger) *Manager {
	if cfg.StatementTimeout == 0 {
		cfg.StatementTimeout = 30 * time.Second
	}
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	m := &Manager{
		db:       db,
		migrator: migrator,
		config:   cfg,
		logger:   logger.WithPrefix("schema"),
	}
	m.dimension.Store(int64(cfg.Dimension))
	return m
}

// Dimension returns the embedding dimension this process treats as provisioned
func (m *Manager) Dimension() int {
	return int(m.dimension.Load())
}

// Provision creates every table, column and index that is missing. Running
// it again on a provisioned schema changes nothing.
func (m *Manager) Provision(ctx context.Context) (*ProvisionReport, error) {
	const op = "schema.Provision"
	ctx, span := observability.StartSpan(ctx, op)
	defer span.End()

	dim := m.Dimension()
	report := &ProvisionReport{Report: Report{Dimension: dim}}

	if m.migrator != nil {
		if err := m.migrator.Up(ctx); err != nil {
			report.record(StepBaseMigrations, OutcomeFatal, err.Error())
			span.RecordError(err)
			return report, apperrors.Wrap(err, "SCHEMA_PROVISION_FAILED", op, "base migrations failed", apperrors.ClassInternal).
				WithDetails(report)
		}
		report.record(StepBaseMigrations, OutcomeOK, "")
	} else {
		report.record(StepBaseMigrations, OutcomeSkipped, "no migrator configured")
	}

	column, err := m.Inspect(ctx)
	if err != nil {
		report.record(StepEmbeddingColumn, OutcomeFatal, err.Error())
		span.RecordError(err)
		return report, apperrors.NewInternalError(op, err).WithDetails(report)
	}

	switch {
	case !column.Exists:
		stmt := fmt.Sprintf("ALTER TABLE samples ADD COLUMN IF NOT EXISTS %s vector(%d)", embeddingColumn, dim)
		if _, err := m.db.DB().ExecContext(ctx, stmt); err != nil {
			report.record(StepEmbeddingColumn, OutcomeFatal, err.Error())
			span.RecordError(err)
			return report, apperrors.NewInternalError(op, err).WithDetails(report)
		}
		report.ColumnCreated = true
		report.record(StepEmbeddingColumn, OutcomeOK, fmt.Sprintf("added vector(%d)", dim))
	case column.Dimension != dim:
		detail := fmt.Sprintf("%s is %s but %d is configured; run the dimension migration", embeddingColumn, column.DataType, dim)
		report.record(StepEmbeddingColumn, OutcomeFatal, detail)
		return report, apperrors.New("SCHEMA_DIMENSION_MISMATCH", op, detail, apperrors.ClassInternal).WithDetails(report)
	default:
		report.record(StepEmbeddingColumn, OutcomeOK, "already provisioned")
	}

	if _, err := m.db.DB().ExecContext(ctx, createIndexSQL(true)); err != nil {
		m.logger.Warn("Failed to create embedding index", map[string]any{"error": err.Error()})
		report.record(StepCreateIndex, OutcomeWarned, err.Error())
	} else {
		report.record(StepCreateIndex, OutcomeOK, "")
	}

	m.logger.Info("Schema provisioned", map[string]any{
		"dimension":      dim,
		"column_created": report.ColumnCreated,
		"warnings":       len(report.Warnings()),
	})
	return report, nil
}

// MigrateEmbeddingDimension replaces the embedding column with one of
// newDim. Existing vectors are dropped and not recomputed.
//
// Index steps are best effort and end as warned on failure. Column steps are
// fatal and skip everything after them.
func (m *Manager) MigrateEmbeddingDimension(ctx context.Context, newDim int) (*MigrationReport, error) {
	const op = "schema.MigrateEmbeddingDimension"
	if newDim < MinDimension || newDim > MaxDimension {
		return nil, apperrors.NewValidationError(op, fmt.Sprintf("dimension must be between %d and %d", MinDimension, MaxDimension))
	}

	ctx, span := observability.StartSpan(ctx, op)
	defer span.End()
	span.SetAttribute("embedding.dimension", newDim)

	report := &MigrationReport{
		Report:            Report{Dimension: newDim},
		PreviousDimension: m.Dimension(),
	}

	steps := []struct {
		name  string
		stmt  string
		fatal bool
	}{
		{StepDropIndex, "DROP INDEX IF EXISTS " + embeddingIndex, false},
		{StepDropColumn, "ALTER TABLE samples DROP COLUMN IF EXISTS " + embeddingColumn + " CASCADE", true},
		{StepAddColumn, fmt.Sprintf("ALTER TABLE samples ADD COLUMN %s vector(%d)", embeddingColumn, newDim), true},
		{StepCreateIndex, createIndexSQL(false), false},
	}

	err := m.db.WithConn(ctx, func(conn *sqlx.Conn) error {
		timeout := fmt.Sprintf("SET statement_timeout = %d", m.config.StatementTimeout.Milliseconds())
		if _, err := conn.ExecContext(ctx, timeout); err != nil {
			return fmt.Errorf("failed to set statement timeout: %w", err)
		}
		defer func() {
			// The connection returns to the pool afterwards
			if _, err := conn.ExecContext(context.WithoutCancel(ctx), "RESET statement_timeout"); err != nil {
				m.logger.Warn("Failed to reset statement timeout", map[string]any{"error": err.Error()})
			}
		}()

		aborted := false
		for _, step := range steps {
			if aborted {
				report.record(step.name, OutcomeSkipped, "")
				continue
			}
			if _, err := conn.ExecContext(ctx, step.stmt); err != nil {
				if step.fatal {
					m.logger.Error("Migration step failed", map[string]any{"step": step.name, "error": err.Error()})
					report.record(step.name, OutcomeFatal, err.Error())
					aborted = true
					continue
				}
				m.logger.Warn("Migration step failed, continuing", map[string]any{"step": step.name, "error": err.Error()})
				report.record(step.name, OutcomeWarned, err.Error())
				continue
			}
			report.record(step.name, OutcomeOK, "")
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return report, apperrors.NewInternalError(op, err).WithDetails(report)
	}

	if fatal := report.Fatal(); fatal != nil {
		err := apperrors.New("SCHEMA_MIGRATION_FAILED", op, fmt.Sprintf("step %s failed", fatal.Step), apperrors.ClassInternal).
			WithDetails(report)
		span.RecordError(err)
		return report, err
	}

	m.dimension.Store(int64(newDim))
	m.logger.Info("Embedding dimension migrated", map[string]any{
		"previous_dimension": report.PreviousDimension,
		"dimension":          newDim,
		"warnings":           len(report.Warnings()),
	})
	return report, nil
}

// Inspect reads the embedding column definition from the catalog
func (m *Manager) Inspect(ctx context.Context) (*ColumnInfo, error) {
	query := `
		SELECT a.attname AS column_name,
			format_type(a.atttypid, a.atttypmod) AS data_type,
			t.typname AS udt_name
		FROM pg_attribute a
		JOIN pg_class c ON c.oid = a.attrelid
		JOIN pg_type t ON t.oid = a.atttypid
		WHERE c.relname = 'samples'
		AND a.attname = $1
		AND a.attnum > 0
		AND NOT a.attisdropped
		AND pg_table_is_visible(c.oid)
	`

	var info ColumnInfo
	err := m.db.DB().GetContext(ctx, &info, query, embeddingColumn)
	if errors.Is(err, sql.ErrNoRows) {
		return &ColumnInfo{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to inspect %s: %w", embeddingColumn, err)
	}
	info.Exists = true
	info.Dimension = parseVectorDimension(info.DataType)
	return &info, nil
}

// Sync adopts the dimension of an existing embedding column. The configured
// dimension stays in place when the column has not been created yet.
func (m *Manager) Sync(ctx context.Context) (*ColumnInfo, error) {
	info, err := m.Inspect(ctx)
	if err != nil {
		return nil, err
	}
	if info.Exists && info.Dimension > 0 && info.Dimension != m.Dimension() {
		m.logger.Warn("Embedding column differs from the configured dimension", map[string]any{
			"column_dimension":     info.Dimension,
			"configured_dimension": m.config.Dimension,
		})
		m.dimension.Store(int64(info.Dimension))
	}
	return info, nil
}

// parseVectorDimension extracts N from "vector(N)"; zero when unconstrained
func parseVectorDimension(dataType string) int {
	inner, ok := strings.CutPrefix(dataType, "vector(")
	if !ok {
		return 0
	}
	n, err := strconv.Atoi(strings.TrimSuffix(inner, ")"))
	if err != nil {
		return 0
	}
	return n
}

func createIndexSQL(ifNotExists bool) string {
	clause := ""
	if ifNotExists {
		clause = "IF NOT EXISTS "
	}
	return fmt.Sprintf("CREATE INDEX %s%s ON samples USING ivfflat (%s vector_cosine_ops) WITH (lists = 100)",
		clause, embeddingIndex, embeddingColumn)
}
