package services

import (
	"context"
	"fmt"

	"github.com/lib/pq"

	"github.com/developer-mesh/style-guide-service/pkg/embedding"
	apperrors "github.com/developer-mesh/style-guide-service/pkg/errors"
	"github.com/developer-mesh/style-guide-service/pkg/models"
	"github.com/developer-mesh/style-guide-service/pkg/observability"
	"github.com/developer-mesh/style-guide-service/pkg/repository"
	"github.com/developer-mesh/style-guide-service/pkg/schema"
)

// EmbeddingTestText is embedded by TestEmbedding
const EmbeddingTestText = "This is a test sentence for embedding generation"

const defaultReembedBatchSize = 50

// SchemaManager is the part of schema.Manager the maintenance service drives
type SchemaManager interface {
	Provision(ctx context.Context) (*schema.ProvisionReport, error)
	MigrateEmbeddingDimension(ctx context.Context, newDim int) (*schema.MigrationReport, error)
	Inspect(ctx context.Context) (*schema.ColumnInfo, error)
	Dimension() int
}

// TableChecker reports required tables absent from the schema
type TableChecker interface {
	MissingTables(ctx context.Context) ([]string, error)
}

// MigrationSource reports the applied base migration version
type MigrationSource interface {
	Version(ctx context.Context) (version uint, dirty bool, err error)
}

// MaintenanceOption configures optional parts of the maintenance service
type MaintenanceOption func(*MaintenanceService)

// WithMigrations adds the base migration version to CheckSchema
func WithMigrations(migrations MigrationSource) MaintenanceOption {
	return func(s *MaintenanceService) {
		s.migrations = migrations
	}
}

// WithPoolStats adds connection pool usage to CheckSchema
func WithPoolStats(stats func() map[string]any) MaintenanceOption {
	return func(s *MaintenanceService) {
		s.poolStats = stats
	}
}

// MaintenanceService runs the privileged schema and embedding operations
type MaintenanceService struct {
	schema     SchemaManager
	tables     TableChecker
	migrations MigrationSource
	poolStats  func() map[string]any
	samples    repository.SampleRepository
	profiles   repository.ProfileRepository
	embedder   embedding.Embedder
	profileID  string
	batchSize  int
	logger     observability.Logger
}

// NewMaintenanceService creates a new maintenance service
func NewMaintenanceService(
	schemaManager SchemaManager,
	tables TableChecker,
	samples repository.SampleRepository,
	profiles repository.ProfileRepository,
	embedder embedding.Embedder,
	profileID string,
	sc ServiceConfig,
	opts ...MaintenanceOption,
) *MaintenanceService {
	sc = sc.withDefaults()
	s := &MaintenanceService{
		schema:    schemaManager,
		tables:    tables,
		samples:   samples,
		profiles:  profiles,
		embedder:  embedder,
		profileID: profileID,
		batchSize: defaultReembedBatchSize,
		logger:    sc.Logger.WithPrefix("maintenance"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Provision creates whatever part of the schema is missing
func (s *MaintenanceService) Provision(ctx context.Context) (*schema.ProvisionReport, error) {
	return s.schema.Provision(ctx)
}

// MigrateEmbeddings moves the embedding column to dimension. Zero means the
// dimension of the configured embedder.
func (s *MaintenanceService) MigrateEmbeddings(ctx context.Context, dimension int) (*schema.MigrationReport, error) {
	if dimension == 0 {
		dimension = s.embedder.Dimension()
	}
	if dimension != s.embedder.Dimension() {
		s.logger.Warn("Target dimension differs from the embedder, text samples will be rejected until they match", map[string]any{
			"dimension":          dimension,
			"embedder_dimension": s.embedder.Dimension(),
		})
	}
	return s.schema.MigrateEmbeddingDimension(ctx, dimension)
}

// ReembedFailure identifies the sample that stopped a re-embedding run
type ReembedFailure struct {
	SampleID string `json:"sample_id"`
	Error    string `json:"error"`
}

// ReembedReport is the progress of a re-embedding run
type ReembedReport struct {
	Embedded  int             `json:"embedded"`
	Dimension int             `json:"dimension"`
	Failure   *ReembedFailure `json:"failure,omitempty"`
}

// ReembedAll embeds every text sample that has no vector, one page at a
// time. Samples are embedded and stored one by one, so a failure leaves the
// earlier ones written and names the sample that failed.
func (s *MaintenanceService) ReembedAll(ctx context.Context) (*ReembedReport, error) {
	const op = "maintenance.ReembedAll"
	report := &ReembedReport{Dimension: s.schema.Dimension()}

	afterID := ""
	for {
		page, err := s.samples.ListMissingEmbeddings(ctx, afterID, s.batchSize)
		if err != nil {
			return report, classify(op, "sample", err)
		}
		if len(page) == 0 {
			break
		}

		for _, sample := range page {
			vec, err := s.embedder.Embed(ctx, sample.URL)
			if err != nil {
				report.Failure = &ReembedFailure{SampleID: sample.ID, Error: err.Error()}
				return report, apperrors.Wrap(err, "REEMBED_FAILED", op, "failed to generate embeddings", apperrors.ClassInternal).
					WithDetails(report)
			}
			if len(vec) != report.Dimension {
				report.Failure = &ReembedFailure{
					SampleID: sample.ID,
					Error:    fmt.Sprintf("dimension mismatch: got %d, schema expects %d", len(vec), report.Dimension),
				}
				return report, apperrors.New("DIMENSION_MISMATCH", op, report.Failure.Error, apperrors.ClassInternal).
					WithDetails(report)
			}
			if err := s.samples.SetEmbedding(ctx, sample.ID, vec); err != nil {
				report.Failure = &ReembedFailure{SampleID: sample.ID, Error: err.Error()}
				return report, apperrors.NewInternalError(op, err).WithDetails(report)
			}
			report.Embedded++
		}
		afterID = page[len(page)-1].ID

		if len(page) < s.batchSize {
			break
		}
	}

	s.logger.Info("Re-embedding finished", map[string]any{"embedded": report.Embedded})
	return report, nil
}

// SchemaStatus describes the embedding column and whether it matches the
// running configuration
type SchemaStatus struct {
	Column               *schema.ColumnInfo `json:"column"`
	MissingTables        []string           `json:"missing_tables"`
	ProvisionedDimension int                `json:"provisioned_dimension"`
	EmbedderDimension    int                `json:"embedder_dimension"`
	EmbedderModel        string             `json:"embedder_model"`
	Migration            *MigrationStatus   `json:"migration,omitempty"`
	Pool                 map[string]any     `json:"pool,omitempty"`
	Consistent           bool               `json:"consistent"`
}

// MigrationStatus is the golang-migrate bookkeeping of the base schema.
// Version 0 means no migration has been applied.
type MigrationStatus struct {
	Version uint `json:"version"`
	Dirty   bool `json:"dirty"`
}

// CheckSchema reports the state of the schema without changing it
func (s *MaintenanceService) CheckSchema(ctx context.Context) (*SchemaStatus, error) {
	const op = "maintenance.CheckSchema"

	missing, err := s.tables.MissingTables(ctx)
	if err != nil {
		return nil, apperrors.NewInternalError(op, err)
	}
	column, err := s.schema.Inspect(ctx)
	if err != nil {
		return nil, apperrors.NewInternalError(op, err)
	}

	status := &SchemaStatus{
		Column:               column,
		MissingTables:        missing,
		ProvisionedDimension: s.schema.Dimension(),
		EmbedderDimension:    s.embedder.Dimension(),
		EmbedderModel:        s.embedder.Model(),
	}
	if status.MissingTables == nil {
		status.MissingTables = []string{}
	}
	if s.migrations != nil {
		version, dirty, err := s.migrations.Version(ctx)
		if err != nil {
			return nil, apperrors.NewInternalError(op, err)
		}
		status.Migration = &MigrationStatus{Version: version, Dirty: dirty}
	}
	if s.poolStats != nil {
		status.Pool = s.poolStats()
	}
	status.Consistent = len(missing) == 0 &&
		(status.Migration == nil || !status.Migration.Dirty) &&
		column.Exists &&
		column.Dimension == status.ProvisionedDimension &&
		status.ProvisionedDimension == status.EmbedderDimension
	return status, nil
}

// CreateTestUser inserts the development profile unless it exists
func (s *MaintenanceService) CreateTestUser(ctx context.Context) (*models.UserProfile, bool, error) {
	profile, created, err := s.profiles.Insert(ctx, &models.UserProfile{
		ID:            s.profileID,
		Name:          "default_user",
		PersonaTags:   pq.StringArray{"test", "development"},
		DefaultTone:   "professional",
		DefaultLength: 20,
	})
	if err != nil {
		return nil, false, classify("maintenance.CreateTestUser", "profile", err)
	}
	return profile, created, nil
}

// EmbeddingSample is the result of TestEmbedding
type EmbeddingSample struct {
	TestText   string    `json:"testText"`
	Dimensions int       `json:"embeddingDimensions"`
	FirstFive  []float32 `json:"firstFiveDimensions"`
	LastFive   []float32 `json:"lastFiveDimensions"`
	Model      string    `json:"model"`
}

// TestEmbedding embeds a fixed sentence to check the provider end to end
func (s *MaintenanceService) TestEmbedding(ctx context.Context) (*EmbeddingSample, error) {
	vec, err := s.embedder.Embed(ctx, EmbeddingTestText)
	if err != nil {
		return nil, apperrors.Wrap(err, "EMBEDDING_FAILED", "maintenance.TestEmbedding", "failed to test embedding", apperrors.ClassInternal)
	}

	n := min(5, len(vec))
	return &EmbeddingSample{
		TestText:   EmbeddingTestText,
		Dimensions: len(vec),
		FirstFive:  vec[:n],
		LastFive:   vec[len(vec)-n:],
		Model:      s.embedder.Model(),
	}, nil
}
