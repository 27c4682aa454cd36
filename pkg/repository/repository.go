// Package repository persists profiles, samples and their metadata.
package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/developer-mesh/style-guide-service/pkg/database"
	"github.com/developer-mesh/style-guide-service/pkg/observability"
)

// Common repository errors
var (
	// ErrNotFound covers both absent rows and rows owned by someone else
	ErrNotFound = errors.New("entity not found")
	// ErrDuplicate is returned when a unique constraint rejects a write
	ErrDuplicate = errors.New("entity already exists")
)

const uniqueViolation = "23505"

// base carries what every repository needs
type base struct {
	db      *database.Database
	logger  observability.Logger
	metrics observability.MetricsClient
}

func newBase(db *database.Database, logger observability.Logger, metrics observability.MetricsClient) base {
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	if metrics == nil {
		metrics = observability.NewNoopMetricsClient()
	}
	return base{db: db, logger: logger, metrics: metrics}
}

// track opens a span for a database operation. The returned function ends
// it and records the outcome; call it with the operation's final error.
func (b base) track(ctx context.Context, operation, table string) (context.Context, func(error)) {
	ctx, span := observability.StartSpan(ctx, "repository."+table+"."+operation)
	span.SetAttribute("db.table", table)
	start := time.Now()
	return ctx, func(err error) {
		if err != nil && !errors.Is(err, ErrNotFound) {
			span.RecordError(err)
		}
		b.metrics.RecordDatabaseOperation(operation, table, err, time.Since(start))
		span.End()
	}
}

// validID reports whether id is a well-formed uuid. Malformed ids can never
// match a row, so callers answer ErrNotFound without a round trip.
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

func nonNilArray(a pq.StringArray) pq.StringArray {
	if a == nil {
		return pq.StringArray{}
	}
	return a
}
