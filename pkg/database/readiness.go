package database

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// RequiredTables are the tables the service cannot serve requests without
var RequiredTables = []string{"user_profile", "samples", "metadata"}

// ReadinessChecker checks that the provisioned schema is in place
type ReadinessChecker struct {
	db             *sqlx.DB
	requiredTables []string
}

// NewReadinessChecker creates a new readiness checker
func NewReadinessChecker(db *sqlx.DB) *ReadinessChecker {
	return &ReadinessChecker{
		db:             db,
		requiredTables: RequiredTables,
	}
}

// MissingTables returns the required tables absent from the current schema
func (r *ReadinessChecker) MissingTables(ctx context.Context) ([]string, error) {
	query := `
		SELECT required.table_name
		FROM unnest($1::text[]) AS required(table_name)
		WHERE NOT EXISTS (
			SELECT 1
			FROM information_schema.tables
			WHERE table_schema = current_schema()
			AND table_name = required.table_name
		)
		ORDER BY required.table_name
	`

	var missing []string
	if err := r.db.SelectContext(ctx, &missing, query, pq.Array(r.requiredTables)); err != nil {
		return nil, fmt.Errorf("failed to check tables: %w", err)
	}
	return missing, nil
}

// Check returns an error naming the missing tables, if any
func (r *ReadinessChecker) Check(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	missing, err := r.MissingTables(ctx)
	if err != nil {
		return err
	}
	if len(missing) > 0 {
		return fmt.Errorf("schema not provisioned, missing tables: %v", missing)
	}
	return nil
}
