package services

import (
	"context"
	"errors"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/developer-mesh/style-guide-service/pkg/config"
	"github.com/developer-mesh/style-guide-service/pkg/embedding"
	apperrors "github.com/developer-mesh/style-guide-service/pkg/errors"
	"github.com/developer-mesh/style-guide-service/pkg/models"
	"github.com/developer-mesh/style-guide-service/pkg/repository"
	"github.com/developer-mesh/style-guide-service/pkg/schema"
)

const (
	testProfileID = "00000000-0000-0000-0000-000000000000"
	testSampleID  = "6f1c1f0e-3a52-4d4b-9a7e-2d6b8c1e4f10"
)

var profileConfig = config.ProfileConfig{
	ID:            testProfileID,
	Name:          "default_user",
	DefaultTone:   "professional-casual",
	DefaultLength: 20,
}

func newProfileService(t *testing.T, repo *mockProfileRepository) *ProfileService {
	t.Helper()
	svc, err := NewProfileService(repo, profileConfig, ServiceConfig{})
	require.NoError(t, err)
	return svc
}

func TestNewProfileService_RejectsMalformedID(t *testing.T) {
	_, err := NewProfileService(&mockProfileRepository{}, config.ProfileConfig{ID: "default"}, ServiceConfig{})
	assert.Error(t, err)
}

func TestProfileService_Get(t *testing.T) {
	repo := &mockProfileRepository{}
	svc := newProfileService(t, repo)

	expected := &models.UserProfile{ID: testProfileID, DefaultTone: "professional-casual", DefaultLength: 20, PersonaTags: pq.StringArray{}}
	repo.On("GetOrCreate", mock.Anything, testProfileID, mock.MatchedBy(func(d models.ProfileDefaults) bool {
		return d.DefaultTone == "professional-casual" && d.DefaultLength == 20 && d.PersonaTags != nil
	})).Return(expected, nil).Twice()

	first, err := svc.Get(context.Background())
	require.NoError(t, err)
	second, err := svc.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, first, second)
	repo.AssertExpectations(t)
}

func TestProfileService_Update(t *testing.T) {
	t.Run("Valid patch", func(t *testing.T) {
		repo := &mockProfileRepository{}
		svc := newProfileService(t, repo)

		repo.On("Update", mock.Anything, testProfileID, mock.Anything, mock.MatchedBy(func(p models.ProfilePatch) bool {
			return p.DefaultLength != nil && *p.DefaultLength == 150 && p.DefaultTone == nil && p.PersonaTags == nil
		})).Return(&models.UserProfile{ID: testProfileID, DefaultLength: 150}, nil)

		profile, err := svc.Update(context.Background(), []byte(`{"default_length": 150}`))
		require.NoError(t, err)
		assert.Equal(t, 150, profile.DefaultLength)
		repo.AssertExpectations(t)
	})

	t.Run("Null fields are left alone", func(t *testing.T) {
		svc := newProfileService(t, &mockProfileRepository{})
		patch, err := svc.ParsePatch([]byte(`{"default_tone": null, "persona_tags": ["writer"]}`))
		require.NoError(t, err)
		assert.Nil(t, patch.DefaultTone)
		require.NotNil(t, patch.PersonaTags)
		assert.Equal(t, []string{"writer"}, *patch.PersonaTags)
	})

	invalid := map[string]string{
		"Tags not an array":      `{"persona_tags": "writer"}`,
		"Tag not a string":       `{"persona_tags": [1, 2]}`,
		"Tone not a string":      `{"default_tone": 5}`,
		"Length not numeric":     `{"default_length": "long"}`,
		"Length not an integer":  `{"default_length": 1.5}`,
		"Length below one":       `{"default_length": 0}`,
		"Body not an object":     `["default_length"]`,
		"Body not JSON":          `{default_length: 1`,
		"Empty body":             ``,
	}
	for name, body := range invalid {
		t.Run(name, func(t *testing.T) {
			repo := &mockProfileRepository{}
			svc := newProfileService(t, repo)

			_, err := svc.Update(context.Background(), []byte(body))
			require.Error(t, err)
			assert.True(t, apperrors.IsClass(err, apperrors.ClassValidation), err.Error())
			repo.AssertNotCalled(t, "Update", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

type sampleFixture struct {
	samples  *mockSampleRepository
	metadata *mockMetadataRepository
	profiles *mockProfileRepository
	service  *SampleService
}

func newSampleFixture(t *testing.T, embedder embedding.Embedder, dim int) *sampleFixture {
	t.Helper()
	f := &sampleFixture{
		samples:  &mockSampleRepository{},
		metadata: &mockMetadataRepository{},
		profiles: &mockProfileRepository{},
	}
	f.service = NewSampleService(f.samples, f.metadata, newProfileService(t, f.profiles), embedder, fixedDimension(dim), ServiceConfig{})
	return f
}

func (f *sampleFixture) expectProfile() {
	f.profiles.On("GetOrCreate", mock.Anything, testProfileID, mock.Anything).
		Return(&models.UserProfile{ID: testProfileID}, nil)
}

func TestSampleService_Create(t *testing.T) {
	t.Run("Text sample is embedded", func(t *testing.T) {
		f := newSampleFixture(t, embedding.NewMockProvider(8), 8)
		f.expectProfile()
		f.samples.On("Create", mock.Anything, mock.MatchedBy(func(s *models.Sample) bool {
			return s.UserID == testProfileID && s.URL == "Hello world" && s.EmbeddingLength() == 8
		}), (*models.NewMetadata)(nil)).Run(func(args mock.Arguments) {
			args.Get(1).(*models.Sample).ID = testSampleID
		}).Return(nil)

		sample, err := f.service.Create(context.Background(), models.NewSample{
			Type:    models.SampleTypeText,
			Content: "Hello world",
			Tags:    []string{"greeting"},
			Modes:   []string{"Email"},
		})
		require.NoError(t, err)
		assert.Equal(t, testSampleID, sample.ID)
		assert.Equal(t, 8, sample.EmbeddingLength())
		assert.Equal(t, pq.StringArray{"greeting"}, sample.Tags)
		f.samples.AssertExpectations(t)
	})

	t.Run("Media sample skips embedding", func(t *testing.T) {
		f := newSampleFixture(t, embedding.NewUnconfigured(8, nil), 8)
		f.expectProfile()
		f.samples.On("Create", mock.Anything, mock.MatchedBy(func(s *models.Sample) bool {
			return s.Embedding == nil
		}), mock.Anything).Return(nil)

		sample, err := f.service.Create(context.Background(), models.NewSample{
			Type:     models.SampleTypeImage,
			Content:  "https://cdn.example.com/a.png",
			Metadata: &models.NewMetadata{},
		})
		require.NoError(t, err)
		assert.Equal(t, 0, sample.EmbeddingLength())
	})

	t.Run("Invalid type has no side effects", func(t *testing.T) {
		f := newSampleFixture(t, embedding.NewMockProvider(8), 8)
		_, err := f.service.Create(context.Background(), models.NewSample{Type: "pdf", Content: "x"})
		assert.True(t, apperrors.IsClass(err, apperrors.ClassValidation))
		f.samples.AssertNotCalled(t, "Create", mock.Anything, mock.Anything, mock.Anything)
		f.profiles.AssertNotCalled(t, "GetOrCreate", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("Missing content", func(t *testing.T) {
		f := newSampleFixture(t, embedding.NewMockProvider(8), 8)
		_, err := f.service.Create(context.Background(), models.NewSample{Type: models.SampleTypeText, Content: "  "})
		assert.True(t, apperrors.IsClass(err, apperrors.ClassValidation))
	})

	t.Run("Dimension mismatch is never written", func(t *testing.T) {
		f := newSampleFixture(t, embedding.NewMockProvider(8), 1024)
		f.expectProfile()

		_, err := f.service.Create(context.Background(), models.NewSample{Type: models.SampleTypeText, Content: "Hello"})
		require.Error(t, err)
		assert.True(t, apperrors.IsClass(err, apperrors.ClassInternal))
		assert.Contains(t, err.Error(), "dimension mismatch")
		f.samples.AssertNotCalled(t, "Create", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("Unconfigured embedder", func(t *testing.T) {
		f := newSampleFixture(t, embedding.NewUnconfigured(8, nil), 8)
		f.expectProfile()

		_, err := f.service.Create(context.Background(), models.NewSample{Type: models.SampleTypeText, Content: "Hello"})
		require.Error(t, err)
		assert.ErrorIs(t, err, embedding.ErrNotConfigured)
		assert.True(t, apperrors.IsClass(err, apperrors.ClassInternal))
	})
}

func TestSampleService_OwnershipErrorsAreNotFound(t *testing.T) {
	f := newSampleFixture(t, embedding.NewMockProvider(8), 8)

	f.samples.On("Delete", mock.Anything, testSampleID, testProfileID).Return(repository.ErrNotFound)
	f.samples.On("Update", mock.Anything, testSampleID, testProfileID, mock.Anything).Return(nil, repository.ErrNotFound)
	f.samples.On("GetOwned", mock.Anything, testSampleID, testProfileID).Return(nil, repository.ErrNotFound)

	err := f.service.Delete(context.Background(), testSampleID)
	assert.True(t, apperrors.IsClass(err, apperrors.ClassNotFound))

	_, err = f.service.Update(context.Background(), testSampleID, models.SamplePatch{})
	assert.True(t, apperrors.IsClass(err, apperrors.ClassNotFound))

	_, err = f.service.Get(context.Background(), testSampleID)
	assert.True(t, apperrors.IsClass(err, apperrors.ClassNotFound))

	_, err = f.service.Metadata(context.Background(), testSampleID)
	assert.True(t, apperrors.IsClass(err, apperrors.ClassNotFound))
	f.metadata.AssertNotCalled(t, "GetBySample", mock.Anything, mock.Anything)
}

func TestSampleService_StorageErrorsAreInternal(t *testing.T) {
	f := newSampleFixture(t, embedding.NewMockProvider(8), 8)
	f.samples.On("List", mock.Anything, testProfileID, 0).Return(nil, errors.New("connection reset"))

	_, err := f.service.List(context.Background(), 0)
	assert.True(t, apperrors.IsClass(err, apperrors.ClassInternal))
}

type maintenanceFixture struct {
	schema   *mockSchemaManager
	samples  *mockSampleRepository
	profiles *mockProfileRepository
	service  *MaintenanceService
}

func newMaintenanceFixture(embedder embedding.Embedder, dim int, missing ...string) *maintenanceFixture {
	f := &maintenanceFixture{
		schema:   &mockSchemaManager{dimension: dim},
		samples:  &mockSampleRepository{},
		profiles: &mockProfileRepository{},
	}
	f.service = NewMaintenanceService(f.schema, staticTables(missing), f.samples, f.profiles, embedder, testProfileID, ServiceConfig{})
	return f
}

func textSample(id, text string) *models.Sample {
	return &models.Sample{ID: id, Type: models.SampleTypeText, URL: text}
}

func TestMaintenanceService_ReembedAll(t *testing.T) {
	t.Run("Pages until no sample is missing", func(t *testing.T) {
		f := newMaintenanceFixture(embedding.NewMockProvider(4), 4)
		f.service.batchSize = 2

		f.samples.On("ListMissingEmbeddings", mock.Anything, "", 2).
			Return([]*models.Sample{textSample("a", "one"), textSample("b", "two")}, nil)
		f.samples.On("ListMissingEmbeddings", mock.Anything, "b", 2).
			Return([]*models.Sample{textSample("c", "three")}, nil)
		f.samples.On("SetEmbedding", mock.Anything, mock.Anything, mock.MatchedBy(func(v []float32) bool { return len(v) == 4 })).
			Return(nil).Times(3)

		report, err := f.service.ReembedAll(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 3, report.Embedded)
		assert.Nil(t, report.Failure)
		f.samples.AssertExpectations(t)
	})

	t.Run("Stops at the first failure", func(t *testing.T) {
		f := newMaintenanceFixture(embedding.NewMockProvider(4), 4)

		f.samples.On("ListMissingEmbeddings", mock.Anything, "", defaultReembedBatchSize).
			Return([]*models.Sample{textSample("a", "one"), textSample("b", "two"), textSample("c", "three")}, nil)
		f.samples.On("SetEmbedding", mock.Anything, "a", mock.Anything).Return(nil)
		f.samples.On("SetEmbedding", mock.Anything, "b", mock.Anything).Return(errors.New("deadlock detected"))

		report, err := f.service.ReembedAll(context.Background())
		require.Error(t, err)
		assert.Equal(t, 1, report.Embedded)
		require.NotNil(t, report.Failure)
		assert.Equal(t, "b", report.Failure.SampleID)
		f.samples.AssertNotCalled(t, "SetEmbedding", mock.Anything, "c", mock.Anything)
	})

	t.Run("Embedding failure names the sample and keeps earlier writes", func(t *testing.T) {
		f := newMaintenanceFixture(failingEmbedder{Embedder: embedding.NewMockProvider(4), failOn: "two"}, 4)

		f.samples.On("ListMissingEmbeddings", mock.Anything, "", defaultReembedBatchSize).
			Return([]*models.Sample{textSample("a", "one"), textSample("b", "two"), textSample("c", "three")}, nil)
		f.samples.On("SetEmbedding", mock.Anything, "a", mock.Anything).Return(nil).Once()

		report, err := f.service.ReembedAll(context.Background())
		require.Error(t, err)
		assert.Equal(t, 1, report.Embedded)
		require.NotNil(t, report.Failure)
		assert.Equal(t, "b", report.Failure.SampleID)
		f.samples.AssertExpectations(t)
		f.samples.AssertNotCalled(t, "SetEmbedding", mock.Anything, "c", mock.Anything)
	})

	t.Run("Embedder at another dimension writes nothing", func(t *testing.T) {
		f := newMaintenanceFixture(embedding.NewMockProvider(8), 4)
		f.samples.On("ListMissingEmbeddings", mock.Anything, "", defaultReembedBatchSize).
			Return([]*models.Sample{textSample("a", "one")}, nil)

		report, err := f.service.ReembedAll(context.Background())
		require.Error(t, err)
		assert.Zero(t, report.Embedded)
		f.samples.AssertNotCalled(t, "SetEmbedding", mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestMaintenanceService_MigrateEmbeddings(t *testing.T) {
	f := newMaintenanceFixture(embedding.NewMockProvider(1024), 1536)
	f.schema.On("MigrateEmbeddingDimension", mock.Anything, 1024).
		Return(&schema.MigrationReport{Report: schema.Report{Dimension: 1024}}, nil)

	report, err := f.service.MigrateEmbeddings(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 1024, report.Dimension)
	f.schema.AssertExpectations(t)
}

func TestMaintenanceService_CheckSchema(t *testing.T) {
	t.Run("Consistent", func(t *testing.T) {
		f := newMaintenanceFixture(embedding.NewMockProvider(1024), 1024)
		f.schema.On("Inspect", mock.Anything).Return(&schema.ColumnInfo{Exists: true, DataType: "vector(1024)", Dimension: 1024}, nil)

		status, err := f.service.CheckSchema(context.Background())
		require.NoError(t, err)
		assert.True(t, status.Consistent)
		assert.Empty(t, status.MissingTables)
		assert.Equal(t, "mock", status.EmbedderModel)
	})

	t.Run("Column at old dimension", func(t *testing.T) {
		f := newMaintenanceFixture(embedding.NewMockProvider(1024), 1024)
		f.schema.On("Inspect", mock.Anything).Return(&schema.ColumnInfo{Exists: true, DataType: "vector(1536)", Dimension: 1536}, nil)

		status, err := f.service.CheckSchema(context.Background())
		require.NoError(t, err)
		assert.False(t, status.Consistent)
	})

	t.Run("Migration version and pool usage", func(t *testing.T) {
		f := newMaintenanceFixture(embedding.NewMockProvider(1024), 1024)
		f.service = NewMaintenanceService(f.schema, staticTables(nil), f.samples, f.profiles, embedding.NewMockProvider(1024), testProfileID, ServiceConfig{},
			WithMigrations(staticMigrations{version: 3}),
			WithPoolStats(func() map[string]any { return map[string]any{"open_connections": 2} }))
		f.schema.On("Inspect", mock.Anything).Return(&schema.ColumnInfo{Exists: true, Dimension: 1024}, nil)

		status, err := f.service.CheckSchema(context.Background())
		require.NoError(t, err)
		require.NotNil(t, status.Migration)
		assert.Equal(t, uint(3), status.Migration.Version)
		assert.False(t, status.Migration.Dirty)
		assert.Equal(t, 2, status.Pool["open_connections"])
		assert.True(t, status.Consistent)
	})

	t.Run("Dirty migration is inconsistent", func(t *testing.T) {
		f := newMaintenanceFixture(embedding.NewMockProvider(1024), 1024)
		f.service = NewMaintenanceService(f.schema, staticTables(nil), f.samples, f.profiles, embedding.NewMockProvider(1024), testProfileID, ServiceConfig{},
			WithMigrations(staticMigrations{version: 2, dirty: true}))
		f.schema.On("Inspect", mock.Anything).Return(&schema.ColumnInfo{Exists: true, Dimension: 1024}, nil)

		status, err := f.service.CheckSchema(context.Background())
		require.NoError(t, err)
		assert.True(t, status.Migration.Dirty)
		assert.False(t, status.Consistent)
	})

	t.Run("Migration version failure", func(t *testing.T) {
		f := newMaintenanceFixture(embedding.NewMockProvider(1024), 1024)
		f.service = NewMaintenanceService(f.schema, staticTables(nil), f.samples, f.profiles, embedding.NewMockProvider(1024), testProfileID, ServiceConfig{},
			WithMigrations(staticMigrations{err: errors.New("connection refused")}))
		f.schema.On("Inspect", mock.Anything).Return(&schema.ColumnInfo{Exists: true, Dimension: 1024}, nil)

		_, err := f.service.CheckSchema(context.Background())
		assert.True(t, apperrors.IsClass(err, apperrors.ClassInternal))
	})

	t.Run("Missing tables", func(t *testing.T) {
		f := newMaintenanceFixture(embedding.NewMockProvider(1024), 1024, "metadata")
		f.schema.On("Inspect", mock.Anything).Return(&schema.ColumnInfo{}, nil)

		status, err := f.service.CheckSchema(context.Background())
		require.NoError(t, err)
		assert.Equal(t, []string{"metadata"}, status.MissingTables)
		assert.False(t, status.Consistent)
	})
}

func TestMaintenanceService_CreateTestUser(t *testing.T) {
	f := newMaintenanceFixture(embedding.NewMockProvider(4), 4)
	f.profiles.On("Insert", mock.Anything, mock.MatchedBy(func(p *models.UserProfile) bool {
		return p.ID == testProfileID && len(p.PersonaTags) == 2 && p.DefaultTone == "professional"
	})).Return(&models.UserProfile{ID: testProfileID}, false, nil)

	profile, created, err := f.service.CreateTestUser(context.Background())
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, testProfileID, profile.ID)
}

func TestMaintenanceService_TestEmbedding(t *testing.T) {
	f := newMaintenanceFixture(embedding.NewMockProvider(16), 16)

	sample, err := f.service.TestEmbedding(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 16, sample.Dimensions)
	assert.Len(t, sample.FirstFive, 5)
	assert.Len(t, sample.LastFive, 5)
	assert.Equal(t, EmbeddingTestText, sample.TestText)

	f = newMaintenanceFixture(embedding.NewUnconfigured(16, nil), 16)
	_, err = f.service.TestEmbedding(context.Background())
	assert.ErrorIs(t, err, embedding.ErrNotConfigured)
}
