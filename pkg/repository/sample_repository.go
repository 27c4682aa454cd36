package repository

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
	"github.com/pgvector/pgvector-go"
	"github.com/pkg/errors"

	"github.com/developer-mesh/style-guide-service/pkg/database"
	"github.com/developer-mesh/style-guide-service/pkg/models"
	"github.com/developer-mesh/style-guide-service/pkg/observability"
)

// List limits
const (
	DefaultListLimit = 50
	MaxListLimit     = 200
)

const sampleColumns = `id, user_id, type, url, context, tags, modes, embedding_vector, created_at, updated_at`

// SampleRepository stores samples and their embeddings
type SampleRepository interface {
	// Create inserts sample and, when meta is set, its metadata in the same
	// transaction. The generated id and timestamps are written back.
	Create(ctx context.Context, sample *models.Sample, meta *models.NewMetadata) error
	Get(ctx context.Context, id string) (*models.Sample, error)
	GetOwned(ctx context.Context, id, ownerID string) (*models.Sample, error)
	List(ctx context.Context, ownerID string, limit int) ([]*models.Sample, error)
	Update(ctx context.Context, id, ownerID string, patch models.SamplePatch) (*models.Sample, error)
	Delete(ctx context.Context, id, ownerID string) error

	// ListMissingEmbeddings pages through text samples without a vector,
	// ordered by id and starting after afterID.
	ListMissingEmbeddings(ctx context.Context, afterID string, limit int) ([]*models.Sample, error)
	SetEmbedding(ctx context.Context, id string, vec []float32) error
}

type sampleRepository struct {
	base
}

// NewSampleRepository creates a new sample repository
func NewSampleRepository(db *database.Database, logger observability.Logger, metrics observability.MetricsClient) SampleRepository {
	return &sampleRepository{base: newBase(db, logger, metrics)}
}

func (r *sampleRepository) Create(ctx context.Context, sample *models.Sample, meta *models.NewMetadata) (err error) {
	ctx, done := r.track(ctx, "create", "samples")
	defer func() { done(err) }()

	sample.Tags = nonNilArray(sample.Tags)
	sample.Modes = nonNilArray(sample.Modes)

	query := `
		INSERT INTO samples (user_id, type, url, context, tags, modes, embedding_vector)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at
	`

	return r.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		row := tx.QueryRowxContext(ctx, query,
			sample.UserID, sample.Type, sample.URL, sample.Context,
			sample.Tags, sample.Modes, sample.Embedding,
		)
		if err := row.Scan(&sample.ID, &sample.CreatedAt, &sample.UpdatedAt); err != nil {
			return errors.Wrap(err, "failed to create sample")
		}

		if meta != nil {
			if _, err := insertMetadata(ctx, tx, sample.ID, meta); err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *sampleRepository) Get(ctx context.Context, id string) (_ *models.Sample, err error) {
	ctx, done := r.track(ctx, "get", "samples")
	defer func() { done(err) }()

	if !validID(id) {
		return nil, ErrNotFound
	}

	var sample models.Sample
	err = r.db.DB().GetContext(ctx, &sample, `SELECT `+sampleColumns+` FROM samples WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get sample")
	}
	return &sample, nil
}

func (r *sampleRepository) GetOwned(ctx context.Context, id, ownerID string) (_ *models.Sample, err error) {
	ctx, done := r.track(ctx, "get", "samples")
	defer func() { done(err) }()

	return loadOwned(ctx, r.db.DB(), id, ownerID, false)
}

func (r *sampleRepository) List(ctx context.Context, ownerID string, limit int) (_ []*models.Sample, err error) {
	ctx, done := r.track(ctx, "list", "samples")
	defer func() { done(err) }()

	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	if !validID(ownerID) {
		return []*models.Sample{}, nil
	}

	query := `SELECT ` + sampleColumns + `
		FROM samples
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2`

	samples := []*models.Sample{}
	if err := r.db.DB().SelectContext(ctx, &samples, query, ownerID, limit); err != nil {
		return nil, errors.Wrap(err, "failed to list samples")
	}
	return samples, nil
}

func (r *sampleRepository) Update(ctx context.Context, id, ownerID string, patch models.SamplePatch) (_ *models.Sample, err error) {
	ctx, done := r.track(ctx, "update", "samples")
	defer func() { done(err) }()

	var updated *models.Sample
	err = r.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		sample, err := loadOwned(ctx, tx, id, ownerID, true)
		if err != nil {
			return err
		}

		patch.Apply(sample)
		sample.Tags = nonNilArray(sample.Tags)
		sample.Modes = nonNilArray(sample.Modes)

		query := `
			UPDATE samples
			SET tags = $1, modes = $2, context = $3, updated_at = NOW()
			WHERE id = $4
			RETURNING updated_at
		`
		if err := tx.QueryRowxContext(ctx, query, sample.Tags, sample.Modes, sample.Context, sample.ID).
			Scan(&sample.UpdatedAt); err != nil {
			return errors.Wrap(err, "failed to update sample")
		}
		updated = sample
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (r *sampleRepository) Delete(ctx context.Context, id, ownerID string) (err error) {
	ctx, done := r.track(ctx, "delete", "samples")
	defer func() { done(err) }()

	return r.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		if _, err := loadOwned(ctx, tx, id, ownerID, true); err != nil {
			return err
		}
		// metadata rows go with it through ON DELETE CASCADE
		if _, err := tx.ExecContext(ctx, `DELETE FROM samples WHERE id = $1`, id); err != nil {
			return errors.Wrap(err, "failed to delete sample")
		}
		return nil
	})
}

func (r *sampleRepository) ListMissingEmbeddings(ctx context.Context, afterID string, limit int) (_ []*models.Sample, err error) {
	ctx, done := r.track(ctx, "list_missing_embeddings", "samples")
	defer func() { done(err) }()

	if limit <= 0 {
		limit = DefaultListLimit
	}

	samples := []*models.Sample{}
	if afterID == "" {
		err = r.db.DB().SelectContext(ctx, &samples, `SELECT `+sampleColumns+`
			FROM samples
			WHERE type = 'text' AND embedding_vector IS NULL
			ORDER BY id
			LIMIT $1`, limit)
	} else {
		err = r.db.DB().SelectContext(ctx, &samples, `SELECT `+sampleColumns+`
			FROM samples
			WHERE type = 'text' AND embedding_vector IS NULL AND id > $1
			ORDER BY id
			LIMIT $2`, afterID, limit)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to list samples without embeddings")
	}
	return samples, nil
}

func (r *sampleRepository) SetEmbedding(ctx context.Context, id string, vec []float32) (err error) {
	ctx, done := r.track(ctx, "set_embedding", "samples")
	defer func() { done(err) }()

	if !validID(id) {
		return ErrNotFound
	}

	result, err := r.db.DB().ExecContext(ctx,
		`UPDATE samples SET embedding_vector = $1 WHERE id = $2`,
		pgvector.NewVector(vec), id,
	)
	if err != nil {
		return errors.Wrap(err, "failed to store embedding")
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to get rows affected")
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// loadOwned loads the sample only when it belongs to ownerID. Absent rows,
// foreign rows and malformed ids all yield ErrNotFound, so callers cannot
// discover samples of other profiles.
func loadOwned(ctx context.Context, q sqlx.QueryerContext, id, ownerID string, forUpdate bool) (*models.Sample, error) {
	if !validID(id) || !validID(ownerID) {
		return nil, ErrNotFound
	}

	query := `SELECT ` + sampleColumns + ` FROM samples WHERE id = $1 AND user_id = $2`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	var sample models.Sample
	err := sqlx.GetContext(ctx, q, &sample, query, id, ownerID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to load sample")
	}
	return &sample, nil
}
