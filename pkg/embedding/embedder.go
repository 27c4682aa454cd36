// Package embedding turns sample text into fixed-length vectors.
//
// The service only consumes Embed(text) -> []float32 with a known dimension.
// BedrockProvider calls Amazon Titan models, MockProvider produces
// deterministic vectors for local runs, and CachedEmbedder memoizes either.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/developer-mesh/style-guide-service/pkg/config"
	"github.com/developer-mesh/style-guide-service/pkg/observability"
)

var (
	// ErrNotConfigured is returned when no usable provider is configured
	ErrNotConfigured = errors.New("embedding provider not configured")
	// ErrDimensionMismatch is returned when a vector has the wrong length
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
	// ErrEmptyText is returned for blank input
	ErrEmptyText = errors.New("text cannot be empty")
)

// Provider names accepted by NewEmbedder
const (
	ProviderBedrock = "bedrock"
	ProviderMock    = "mock"
)

// Embedder produces embeddings of a fixed dimension
type Embedder interface {
	// Embed returns the vector for one text
	Embed(ctx context.Context, text string) ([]float32, error)
	// EmbedBatch returns one vector per text, in input order
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	// Dimension is the length of every returned vector
	Dimension() int
	// Model identifies the model producing the vectors
	Model() string
}

// NewEmbedder builds the embedder described by cfg. A provider that cannot be
// built yields an embedder whose calls fail with ErrNotConfigured, so the
// rest of the service keeps working without embeddings.
func NewEmbedder(ctx context.Context, cfg config.EmbeddingConfig, logger observability.Logger, metrics observability.MetricsClient) Embedder {
	if logger == nil {
		logger = observability.NewNoopLogger()
	}

	var (
		embedder Embedder
		err      error
	)
	switch strings.ToLower(cfg.Provider) {
	case ProviderBedrock, "":
		embedder, err = NewBedrockProvider(ctx, BedrockConfig{
			Region:            cfg.Region,
			Model:             cfg.Model,
			Dimension:         cfg.Dimension,
			Normalize:         cfg.Normalize,
			Endpoint:          cfg.Endpoint,
			Timeout:           cfg.Timeout,
			RequestsPerSecond: cfg.RequestsPerSecond,
		}, logger, metrics)
	case ProviderMock:
		embedder = NewMockProvider(cfg.Dimension)
	default:
		err = fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}

	if err != nil {
		logger.Warn("Embedding provider unavailable, text samples will be rejected", map[string]any{
			"provider": cfg.Provider,
			"error":    err.Error(),
		})
		return NewUnconfigured(cfg.Dimension, err)
	}

	if cfg.CacheSize > 0 {
		cached, cacheErr := NewCachedEmbedder(embedder, cfg.CacheSize)
		if cacheErr != nil {
			logger.Warn("Embedding cache disabled", map[string]any{"error": cacheErr.Error()})
			return embedder
		}
		return cached
	}
	return embedder
}

// Unconfigured fails every call with ErrNotConfigured
type Unconfigured struct {
	dimension int
	reason    error
}

// NewUnconfigured creates an embedder that always fails. reason is kept for
// the error message.
func NewUnconfigured(dimension int, reason error) *Unconfigured {
	return &Unconfigured{dimension: dimension, reason: reason}
}

func (u *Unconfigured) err() error {
	if u.reason == nil || errors.Is(u.reason, ErrNotConfigured) {
		return ErrNotConfigured
	}
	return fmt.Errorf("%w: %v", ErrNotConfigured, u.reason)
}

// Embed always fails
func (u *Unconfigured) Embed(context.Context, string) ([]float32, error) {
	return nil, u.err()
}

// EmbedBatch always fails
func (u *Unconfigured) EmbedBatch(context.Context, []string) ([][]float32, error) {
	return nil, u.err()
}

// Dimension returns the configured dimension
func (u *Unconfigured) Dimension() int { return u.dimension }

// Model returns an empty model name
func (u *Unconfigured) Model() string { return "" }

// checkDimension verifies len(vec) against the expected dimension
func checkDimension(vec []float32, want int) error {
	if want > 0 && len(vec) != want {
		return fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(vec), want)
	}
	return nil
}
