package embedding

import (
	"context"
	"hash/fnv"
	"math"
	"math/rand"
	"strings"
)

// MockProvider returns deterministic unit vectors seeded by the text hash.
// Equal texts always map to equal vectors.
type MockProvider struct {
	dimension int
}

// NewMockProvider creates a mock provider of the given dimension
func NewMockProvider(dimension int) *MockProvider {
	if dimension <= 0 {
		dimension = 1024
	}
	return &MockProvider{dimension: dimension}
}

// Dimension returns the vector length
func (m *MockProvider) Dimension() int { return m.dimension }

// Model returns the mock model name
func (m *MockProvider) Model() string { return "mock" }

// Embed returns the vector of text
func (m *MockProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyText
	}

	h := fnv.New64a()
	_, _ = h.Write([]byte(text))
	rng := rand.New(rand.NewSource(int64(h.Sum64())))

	vec := make([]float32, m.dimension)
	var norm float64
	for i := range vec {
		v := rng.Float64()*2 - 1
		vec[i] = float32(v)
		norm += v * v
	}
	norm = math.Sqrt(norm)
	if norm > 0 {
		for i := range vec {
			vec[i] = float32(float64(vec[i]) / norm)
		}
	}
	return vec, nil
}

// EmbedBatch embeds each text in order
func (m *MockProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := m.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}
