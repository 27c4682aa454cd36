package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/developer-mesh/style-guide-service/pkg/embedding"
	apperrors "github.com/developer-mesh/style-guide-service/pkg/errors"
	"github.com/developer-mesh/style-guide-service/pkg/models"
	"github.com/developer-mesh/style-guide-service/pkg/observability"
	"github.com/developer-mesh/style-guide-service/pkg/repository"
)

// DimensionSource reports the embedding dimension the schema is provisioned for
type DimensionSource interface {
	Dimension() int
}

// SampleService manages the samples of the service profile
type SampleService struct {
	samples  repository.SampleRepository
	metadata repository.MetadataRepository
	profiles *ProfileService
	embedder embedding.Embedder
	dims     DimensionSource
	logger   observability.Logger
}

// NewSampleService creates a new sample service
func NewSampleService(
	samples repository.SampleRepository,
	metadata repository.MetadataRepository,
	profiles *ProfileService,
	embedder embedding.Embedder,
	dims DimensionSource,
	sc ServiceConfig,
) *SampleService {
	sc = sc.withDefaults()
	return &SampleService{
		samples:  samples,
		metadata: metadata,
		profiles: profiles,
		embedder: embedder,
		dims:     dims,
		logger:   sc.Logger.WithPrefix("samples"),
	}
}

// Create validates and stores a sample. Text samples are embedded first;
// other kinds are stored without a vector.
func (s *SampleService) Create(ctx context.Context, in models.NewSample) (*models.Sample, error) {
	const op = "samples.Create"

	if !in.Type.Valid() {
		return nil, apperrors.NewValidationError(op, fmt.Sprintf("invalid sample type %q: must be one of text, audio, video, image", in.Type))
	}
	if strings.TrimSpace(in.Content) == "" {
		return nil, apperrors.NewValidationError(op, "content is required")
	}

	// The profile row must exist before the sample references it
	profile, err := s.profiles.Get(ctx)
	if err != nil {
		return nil, err
	}

	sample := &models.Sample{
		UserID:  profile.ID,
		Type:    in.Type,
		URL:     in.Content,
		Context: in.Context,
		Tags:    pq.StringArray(in.Tags),
		Modes:   pq.StringArray(in.Modes),
	}

	if in.Type == models.SampleTypeText {
		vec, err := s.embed(ctx, op, in.Content)
		if err != nil {
			return nil, err
		}
		sample.SetEmbedding(vec)
	}

	if err := s.samples.Create(ctx, sample, in.Metadata); err != nil {
		return nil, classify(op, "sample", err)
	}

	s.logger.Info("Sample created", map[string]any{
		"sample_id":        sample.ID,
		"type":             string(sample.Type),
		"embedding_length": sample.EmbeddingLength(),
	})
	return sample, nil
}

// embed computes the vector of text and checks it against the provisioned
// dimension, so a mismatched row is never written.
func (s *SampleService) embed(ctx context.Context, op, text string) ([]float32, error) {
	vec, err := s.embedder.Embed(ctx, text)
	if errors.Is(err, embedding.ErrNotConfigured) {
		return nil, apperrors.Wrap(err, "EMBEDDING_NOT_CONFIGURED", op, "embedding provider not configured", apperrors.ClassInternal)
	}
	if err != nil {
		return nil, apperrors.Wrap(err, "EMBEDDING_FAILED", op, "failed to generate embedding", apperrors.ClassInternal)
	}

	if want := s.dims.Dimension(); len(vec) != want {
		return nil, apperrors.New("DIMENSION_MISMATCH", op,
			fmt.Sprintf("dimension mismatch: embedding has %d values, schema expects %d", len(vec), want),
			apperrors.ClassInternal)
	}
	return vec, nil
}

// Get returns a sample of the service profile
func (s *SampleService) Get(ctx context.Context, id string) (*models.Sample, error) {
	sample, err := s.samples.GetOwned(ctx, id, s.profiles.ProfileID())
	if err != nil {
		return nil, classify("samples.Get", "sample", err)
	}
	return sample, nil
}

// Metadata returns the metadata of a sample of the service profile
func (s *SampleService) Metadata(ctx context.Context, id string) ([]*models.Metadata, error) {
	const op = "samples.Metadata"
	if _, err := s.samples.GetOwned(ctx, id, s.profiles.ProfileID()); err != nil {
		return nil, classify(op, "sample", err)
	}
	entries, err := s.metadata.GetBySample(ctx, id)
	if err != nil {
		return nil, classify(op, "metadata", err)
	}
	return entries, nil
}

// List returns the newest samples first
func (s *SampleService) List(ctx context.Context, limit int) ([]*models.Sample, error) {
	samples, err := s.samples.List(ctx, s.profiles.ProfileID(), limit)
	if err != nil {
		return nil, classify("samples.List", "sample", err)
	}
	return samples, nil
}

// Update merge-patches tags, modes and context
func (s *SampleService) Update(ctx context.Context, id string, patch models.SamplePatch) (*models.Sample, error) {
	sample, err := s.samples.Update(ctx, id, s.profiles.ProfileID(), patch)
	if err != nil {
		return nil, classify("samples.Update", "sample", err)
	}
	return sample, nil
}

// Delete removes a sample and, by cascade, its metadata
func (s *SampleService) Delete(ctx context.Context, id string) error {
	if err := s.samples.Delete(ctx, id, s.profiles.ProfileID()); err != nil {
		return classify("samples.Delete", "sample", err)
	}
	s.logger.Info("Sample deleted", map[string]any{"sample_id": id})
	return nil
}
