package embedder

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// GeminiProvider embeds text with the Gemini embedding API
type GeminiProvider struct {
	client    *genai.Client
	model     string
	dimension int
	cache     *Cache
	retry     RetryConfig
}

// NewGeminiProvider creates a Gemini embedder
func NewGeminiProvider(ctx context.Context, apiKey, model string, cache *Cache) (*GeminiProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: gemini API key not set", ErrUnavailable)
	}
	if model == "" {
		model = DefaultGeminiModel
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	return &GeminiProvider{
		client:    client,
		model:     model,
		dimension: GeminiDimension,
		cache:     cache,
		retry:     DefaultRetryConfig(),
	}, nil
}

func (g *GeminiProvider) GenerateEmbedding(ctx context.Context, req EmbeddingRequest) (*Embedding, error) {
	return cachedSingle(ctx, g, g.cache, req)
}

func (g *GeminiProvider) GenerateBatch(ctx context.Context, req BatchEmbeddingRequest) (*BatchEmbeddingResponse, error) {
	if err := ValidateBatchRequest(req); err != nil {
		return nil, err
	}
	if len(req.Texts) > MaxBatchSize {
		return nil, fmt.Errorf("%w: max %d texts allowed", ErrBatchTooLarge, MaxBatchSize)
	}

	model := req.Model
	if model == "" {
		model = g.model
	}

	contents := make([]*genai.Content, len(req.Texts))
	for i, text := range req.Texts {
		contents[i] = genai.NewContentFromText(text, genai.RoleUser)
	}
	dim := int32(g.dimension)
	cfg := &genai.EmbedContentConfig{OutputDimensionality: &dim}

	result, err := retryWithBackoff(ctx, g.retry, func() (*genai.EmbedContentResponse, error) {
		return g.client.Models.EmbedContent(ctx, model, contents, cfg)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: gemini: %v", ErrProviderFailed, err)
	}
	if result == nil || len(result.Embeddings) != len(req.Texts) {
		return nil, fmt.Errorf("%w: gemini returned an incomplete batch", ErrProviderFailed)
	}

	embeddings := make([]*Embedding, len(result.Embeddings))
	for i, e := range result.Embeddings {
		if e == nil || len(e.Values) == 0 {
			return nil, fmt.Errorf("%w: gemini returned an empty vector at %d", ErrProviderFailed, i)
		}
		embeddings[i] = &Embedding{
			Vector:    e.Values,
			Dimension: len(e.Values),
			Provider:  ProviderGemini,
			Model:     model,
		}
	}

	cacheAll(g.cache, req.Texts, embeddings)
	return &BatchEmbeddingResponse{Embeddings: embeddings, Provider: ProviderGemini, Model: model}, nil
}

func (g *GeminiProvider) Dimension() int   { return g.dimension }
func (g *GeminiProvider) Provider() string { return ProviderGemini }
func (g *GeminiProvider) Model() string    { return g.model }
func (g *GeminiProvider) Close() error     { return nil }
