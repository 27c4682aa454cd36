package services

import (
	"context"
	"errors"

	"github.com/stretchr/testify/mock"

	"github.com/developer-mesh/style-guide-service/pkg/embedding"
	"github.com/developer-mesh/style-guide-service/pkg/models"
	"github.com/developer-mesh/style-guide-service/pkg/schema"
)

type mockProfileRepository struct {
	mock.Mock
}

func (m *mockProfileRepository) GetOrCreate(ctx context.Context, id string, defaults models.ProfileDefaults) (*models.UserProfile, error) {
	args := m.Called(ctx, id, defaults)
	if p := args.Get(0); p != nil {
		return p.(*models.UserProfile), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockProfileRepository) Update(ctx context.Context, id string, defaults models.ProfileDefaults, patch models.ProfilePatch) (*models.UserProfile, error) {
	args := m.Called(ctx, id, defaults, patch)
	if p := args.Get(0); p != nil {
		return p.(*models.UserProfile), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockProfileRepository) Insert(ctx context.Context, profile *models.UserProfile) (*models.UserProfile, bool, error) {
	args := m.Called(ctx, profile)
	if p := args.Get(0); p != nil {
		return p.(*models.UserProfile), args.Bool(1), args.Error(2)
	}
	return nil, args.Bool(1), args.Error(2)
}

type mockSampleRepository struct {
	mock.Mock
}

func (m *mockSampleRepository) Create(ctx context.Context, sample *models.Sample, meta *models.NewMetadata) error {
	args := m.Called(ctx, sample, meta)
	return args.Error(0)
}

func (m *mockSampleRepository) Get(ctx context.Context, id string) (*models.Sample, error) {
	args := m.Called(ctx, id)
	if s := args.Get(0); s != nil {
		return s.(*models.Sample), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockSampleRepository) GetOwned(ctx context.Context, id, ownerID string) (*models.Sample, error) {
	args := m.Called(ctx, id, ownerID)
	if s := args.Get(0); s != nil {
		return s.(*models.Sample), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockSampleRepository) List(ctx context.Context, ownerID string, limit int) ([]*models.Sample, error) {
	args := m.Called(ctx, ownerID, limit)
	if s := args.Get(0); s != nil {
		return s.([]*models.Sample), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockSampleRepository) Update(ctx context.Context, id, ownerID string, patch models.SamplePatch) (*models.Sample, error) {
	args := m.Called(ctx, id, ownerID, patch)
	if s := args.Get(0); s != nil {
		return s.(*models.Sample), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockSampleRepository) Delete(ctx context.Context, id, ownerID string) error {
	args := m.Called(ctx, id, ownerID)
	return args.Error(0)
}

func (m *mockSampleRepository) ListMissingEmbeddings(ctx context.Context, afterID string, limit int) ([]*models.Sample, error) {
	args := m.Called(ctx, afterID, limit)
	if s := args.Get(0); s != nil {
		return s.([]*models.Sample), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockSampleRepository) SetEmbedding(ctx context.Context, id string, vec []float32) error {
	args := m.Called(ctx, id, vec)
	return args.Error(0)
}

type mockMetadataRepository struct {
	mock.Mock
}

func (m *mockMetadataRepository) Create(ctx context.Context, sampleID string, meta *models.NewMetadata) (*models.Metadata, error) {
	args := m.Called(ctx, sampleID, meta)
	if md := args.Get(0); md != nil {
		return md.(*models.Metadata), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockMetadataRepository) GetBySample(ctx context.Context, sampleID string) ([]*models.Metadata, error) {
	args := m.Called(ctx, sampleID)
	if md := args.Get(0); md != nil {
		return md.([]*models.Metadata), args.Error(1)
	}
	return nil, args.Error(1)
}

type mockSchemaManager struct {
	mock.Mock
	dimension int
}

func (m *mockSchemaManager) Provision(ctx context.Context) (*schema.ProvisionReport, error) {
	args := m.Called(ctx)
	if r := args.Get(0); r != nil {
		return r.(*schema.ProvisionReport), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockSchemaManager) MigrateEmbeddingDimension(ctx context.Context, newDim int) (*schema.MigrationReport, error) {
	args := m.Called(ctx, newDim)
	if r := args.Get(0); r != nil {
		return r.(*schema.MigrationReport), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockSchemaManager) Inspect(ctx context.Context) (*schema.ColumnInfo, error) {
	args := m.Called(ctx)
	if r := args.Get(0); r != nil {
		return r.(*schema.ColumnInfo), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockSchemaManager) Dimension() int {
	return m.dimension
}

type staticTables []string

func (s staticTables) MissingTables(context.Context) ([]string, error) {
	return s, nil
}

// fixedDimension satisfies DimensionSource
type fixedDimension int

func (d fixedDimension) Dimension() int { return int(d) }

type staticMigrations struct {
	version uint
	dirty   bool
	err     error
}

func (m staticMigrations) Version(context.Context) (uint, bool, error) {
	return m.version, m.dirty, m.err
}

// failingEmbedder fails for one input text
type failingEmbedder struct {
	embedding.Embedder
	failOn string
}

func (f failingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == f.failOn {
		return nil, errors.New("throttled")
	}
	return f.Embedder.Embed(ctx, text)
}
