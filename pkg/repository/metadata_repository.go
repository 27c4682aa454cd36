package repository

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/developer-mesh/style-guide-service/pkg/database"
	"github.com/developer-mesh/style-guide-service/pkg/models"
	"github.com/developer-mesh/style-guide-service/pkg/observability"
)

const metadataColumns = `id, sample_id, source, license, language, mood, duration_seconds, file_size_bytes, created_at, updated_at`

// MetadataRepository stores the optional descriptors of samples
type MetadataRepository interface {
	Create(ctx context.Context, sampleID string, meta *models.NewMetadata) (*models.Metadata, error)
	GetBySample(ctx context.Context, sampleID string) ([]*models.Metadata, error)
}

type metadataRepository struct {
	base
}

// NewMetadataRepository creates a new metadata repository
func NewMetadataRepository(db *database.Database, logger observability.Logger, metrics observability.MetricsClient) MetadataRepository {
	return &metadataRepository{base: newBase(db, logger, metrics)}
}

func (r *metadataRepository) Create(ctx context.Context, sampleID string, meta *models.NewMetadata) (_ *models.Metadata, err error) {
	ctx, done := r.track(ctx, "create", "metadata")
	defer func() { done(err) }()

	if !validID(sampleID) {
		return nil, ErrNotFound
	}
	return insertMetadata(ctx, r.db.DB(), sampleID, meta)
}

func (r *metadataRepository) GetBySample(ctx context.Context, sampleID string) (_ []*models.Metadata, err error) {
	ctx, done := r.track(ctx, "get_by_sample", "metadata")
	defer func() { done(err) }()

	entries := []*models.Metadata{}
	if !validID(sampleID) {
		return entries, nil
	}

	query := `SELECT ` + metadataColumns + ` FROM metadata WHERE sample_id = $1 ORDER BY created_at`
	if err := r.db.DB().SelectContext(ctx, &entries, query, sampleID); err != nil {
		return nil, errors.Wrap(err, "failed to get metadata")
	}
	return entries, nil
}

// insertMetadata writes one metadata row through q, which may be the pool or
// the transaction that created the sample.
func insertMetadata(ctx context.Context, q sqlx.QueryerContext, sampleID string, meta *models.NewMetadata) (*models.Metadata, error) {
	query := `
		INSERT INTO metadata (sample_id, source, license, language, mood, duration_seconds, file_size_bytes)
		VALUES ($1, $2, $3, COALESCE($4, 'en'), $5, $6, $7)
		RETURNING ` + metadataColumns

	var stored models.Metadata
	err := sqlx.GetContext(ctx, q, &stored, query,
		sampleID, meta.Source, meta.License, meta.Language, meta.Mood,
		meta.DurationSeconds, meta.FileSizeBytes,
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create metadata")
	}
	return &stored, nil
}
