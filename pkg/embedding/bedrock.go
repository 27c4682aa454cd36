package embedding

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"golang.org/x/time/rate"

	"github.com/developer-mesh/style-guide-service/pkg/observability"
)

// DefaultBedrockModel is the Titan model used when none is configured
const DefaultBedrockModel = "amazon.titan-embed-text-v2:0"

// InvokeModelAPI is the part of the Bedrock runtime client the provider uses
type InvokeModelAPI interface {
	InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

// BedrockConfig configures the Bedrock provider
type BedrockConfig struct {
	Region    string
	Model     string
	Dimension int
	Normalize bool
	// Endpoint overrides the regional endpoint, for VPC endpoints and tests
	Endpoint string
	Timeout  time.Duration
	// RequestsPerSecond paces batch calls; zero disables pacing
	RequestsPerSecond float64
}

// titanModel describes what a Titan model accepts
type titanModel struct {
	defaultDimensions int
	// supportsDimensions is true for v2, which takes dimensions/normalize
	supportsDimensions bool
	allowedDimensions  []int
}

var titanModels = map[string]titanModel{
	"amazon.titan-embed-text-v1": {
		defaultDimensions: 1536,
	},
	"amazon.titan-embed-text-v2:0": {
		defaultDimensions:  1024,
		supportsDimensions: true,
		allowedDimensions:  []int{256, 512, 1024},
	},
}

type titanEmbeddingRequest struct {
	InputText  string `json:"inputText"`
	Dimensions int    `json:"dimensions,omitempty"`
	Normalize  *bool  `json:"normalize,omitempty"`
}

type titanEmbeddingResponse struct {
	Embedding           []float32 `json:"embedding"`
	InputTextTokenCount int       `json:"inputTextTokenCount"`
}

// BedrockProvider implements Embedder on Amazon Titan text embedding models
type BedrockProvider struct {
	client    InvokeModelAPI
	model     string
	titan     titanModel
	dimension int
	normalize bool
	limiter   *rate.Limiter
	logger    observability.Logger
	metrics   observability.MetricsClient
}

// NewBedrockProvider creates a provider backed by the AWS SDK client
func NewBedrockProvider(ctx context.Context, cfg BedrockConfig, logger observability.Logger, metrics observability.MetricsClient) (*BedrockProvider, error) {
	if cfg.Region == "" {
		return nil, fmt.Errorf("%w: AWS region is required", ErrNotConfigured)
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithHTTPClient(&http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := bedrockruntime.NewFromConfig(awsCfg, func(o *bedrockruntime.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	return NewBedrockProviderWithClient(client, cfg, logger, metrics)
}

// NewBedrockProviderWithClient creates a provider around an existing client
func NewBedrockProviderWithClient(client InvokeModelAPI, cfg BedrockConfig, logger observability.Logger, metrics observability.MetricsClient) (*BedrockProvider, error) {
	if client == nil {
		return nil, fmt.Errorf("%w: bedrock client is nil", ErrNotConfigured)
	}
	if cfg.Model == "" {
		cfg.Model = DefaultBedrockModel
	}
	titan, ok := titanModels[cfg.Model]
	if !ok {
		return nil, fmt.Errorf("unsupported bedrock embedding model %q", cfg.Model)
	}

	dimension := cfg.Dimension
	if dimension == 0 {
		dimension = titan.defaultDimensions
	}
	if err := titan.validateDimension(dimension); err != nil {
		return nil, fmt.Errorf("model %s: %w", cfg.Model, err)
	}

	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	if metrics == nil {
		metrics = observability.NewNoopMetricsClient()
	}

	p := &BedrockProvider{
		client:    client,
		model:     cfg.Model,
		titan:     titan,
		dimension: dimension,
		normalize: cfg.Normalize,
		logger:    logger.WithPrefix("bedrock"),
		metrics:   metrics,
	}
	if cfg.RequestsPerSecond > 0 {
		p.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}
	return p, nil
}

func (m titanModel) validateDimension(dim int) error {
	if !m.supportsDimensions {
		if dim != m.defaultDimensions {
			return fmt.Errorf("dimension %d not supported, model only produces %d", dim, m.defaultDimensions)
		}
		return nil
	}
	for _, allowed := range m.allowedDimensions {
		if dim == allowed {
			return nil
		}
	}
	return fmt.Errorf("dimension %d not supported, choose one of %v", dim, m.allowedDimensions)
}

// Dimension returns the vector length the provider produces
func (p *BedrockProvider) Dimension() int { return p.dimension }

// Model returns the Bedrock model id
func (p *BedrockProvider) Model() string { return p.model }

// Embed generates the embedding of one text
func (p *BedrockProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyText
	}

	ctx, span := observability.StartSpan(ctx, "embedding.bedrock.embed")
	defer span.End()
	span.SetAttribute("embedding.model", p.model)
	span.SetAttribute("embedding.dimension", p.dimension)

	start := time.Now()
	vec, err := p.invoke(ctx, text)
	p.metrics.RecordEmbedding(p.model, err, time.Since(start))
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return vec, nil
}

// EmbedBatch embeds texts one call at a time, in order, and stops at the
// first failure.
func (p *BedrockProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	embeddings := make([][]float32, len(texts))
	for i, text := range texts {
		if p.limiter != nil {
			if err := p.limiter.Wait(ctx); err != nil {
				return nil, fmt.Errorf("failed to generate embedding %d: %w", i, err)
			}
		}
		vec, err := p.Embed(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("failed to generate embedding %d: %w", i, err)
		}
		embeddings[i] = vec
	}
	return embeddings, nil
}

func (p *BedrockProvider) invoke(ctx context.Context, text string) ([]float32, error) {
	req := titanEmbeddingRequest{InputText: text}
	if p.titan.supportsDimensions {
		req.Dimensions = p.dimension
		req.Normalize = aws.Bool(p.normalize)
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	resp, err := p.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(p.model),
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
		Body:        body,
	})
	if err != nil {
		p.logger.Warn("InvokeModel failed", map[string]any{"model": p.model, "error": err.Error()})
		return nil, fmt.Errorf("bedrock invoke %s: %w", p.model, err)
	}

	var titanResp titanEmbeddingResponse
	if err := json.Unmarshal(resp.Body, &titanResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	if err := checkDimension(titanResp.Embedding, p.dimension); err != nil {
		return nil, err
	}

	p.logger.Debug("Generated embedding", map[string]any{
		"model":  p.model,
		"tokens": titanResp.InputTextTokenCount,
	})
	return titanResp.Embedding, nil
}
