package embedder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"io"
	"math"
	"net/http"
	"strings"
	"time"
	"unicode"
)

// Provider names
const (
	ProviderJina   = "jina"
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
	ProviderLocal  = "local"
	ProviderNone   = "none"

	DefaultJinaModel   = "jina-embeddings-v3"
	DefaultOpenAIModel = "text-embedding-3-small"
	DefaultGeminiModel = "text-embedding-004"

	JinaDimension   = 1024
	OpenAIDimension = 1536
	GeminiDimension = 768
	LocalDimension  = 384

	DefaultJinaURL   = "https://api.jina.ai/v1/embeddings"
	DefaultOpenAIURL = "https://api.openai.com/v1/embeddings"

	MaxBatchSize = 100

	MaxRetries        = 3
	InitialBackoffMs  = 100
	MaxBackoffMs      = 5000
	BackoffMultiplier = 2.0
)

// RemoteProvider calls an OpenAI-compatible /embeddings endpoint. Jina and
// OpenAI share the request and response shape.
type RemoteProvider struct {
	name       string
	apiKey     string
	model      string
	url        string
	dimension  int
	httpClient *http.Client
	cache      *Cache
	retry      RetryConfig
}

// NewJinaProvider creates a Jina AI embedder
func NewJinaProvider(apiKey string, cache *Cache) (*RemoteProvider, error) {
	return newRemoteProvider(ProviderJina, apiKey, DefaultJinaModel, DefaultJinaURL, JinaDimension, cache)
}

// NewOpenAIProvider creates an OpenAI embedder
func NewOpenAIProvider(apiKey string, cache *Cache) (*RemoteProvider, error) {
	return newRemoteProvider(ProviderOpenAI, apiKey, DefaultOpenAIModel, DefaultOpenAIURL, OpenAIDimension, cache)
}

func newRemoteProvider(name, apiKey, model, url string, dim int, cache *Cache) (*RemoteProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: %s API key not set", ErrUnavailable, name)
	}
	return &RemoteProvider{
		name:       name,
		apiKey:     apiKey,
		model:      model,
		url:        url,
		dimension:  dim,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		cache:      cache,
		retry:      DefaultRetryConfig(),
	}, nil
}

// WithEndpoint points the provider at a different URL, e.g. a proxy
func (r *RemoteProvider) WithEndpoint(url string) *RemoteProvider {
	if url != "" {
		r.url = url
	}
	return r
}

// WithModel overrides the default model
func (r *RemoteProvider) WithModel(model string) *RemoteProvider {
	if model != "" {
		r.model = model
	}
	return r
}

func (r *RemoteProvider) GenerateEmbedding(ctx context.Context, req EmbeddingRequest) (*Embedding, error) {
	return cachedSingle(ctx, r, r.cache, req)
}

func (r *RemoteProvider) GenerateBatch(ctx context.Context, req BatchEmbeddingRequest) (*BatchEmbeddingResponse, error) {
	if err := ValidateBatchRequest(req); err != nil {
		return nil, err
	}
	if len(req.Texts) > MaxBatchSize {
		return nil, fmt.Errorf("%w: max %d texts allowed", ErrBatchTooLarge, MaxBatchSize)
	}

	model := req.Model
	if model == "" {
		model = r.model
	}

	embeddings, err := retryWithBackoff(ctx, r.retry, func() ([]*Embedding, error) {
		return r.callAPI(ctx, req.Texts, model)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrProviderFailed, r.name, err)
	}
	if len(embeddings) != len(req.Texts) {
		return nil, fmt.Errorf("%w: %s returned %d embeddings for %d texts", ErrProviderFailed, r.name, len(embeddings), len(req.Texts))
	}

	cacheAll(r.cache, req.Texts, embeddings)
	return &BatchEmbeddingResponse{Embeddings: embeddings, Provider: r.name, Model: model}, nil
}

// statusError carries the HTTP status so retries can skip client errors
type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.code, e.body)
}

func (r *RemoteProvider) callAPI(ctx context.Context, texts []string, model string) ([]*Embedding, error) {
	body, err := json.Marshal(map[string]interface{}{
		"input": texts,
		"model": model,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+r.apiKey)

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("api call: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &statusError{code: resp.StatusCode, body: string(msg)}
	}

	var apiResp struct {
		Data []struct {
			Embedding []float32 `json:"embedding"`
			Index     int       `json:"index"`
		} `json:"data"`
		Model string `json:"model"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	if apiResp.Model == "" {
		apiResp.Model = model
	}
	embeddings := make([]*Embedding, len(apiResp.Data))
	for i, data := range apiResp.Data {
		idx := data.Index
		if idx < 0 || idx >= len(embeddings) || embeddings[idx] != nil {
			idx = i
		}
		embeddings[idx] = &Embedding{
			Vector:    data.Embedding,
			Dimension: len(data.Embedding),
			Provider:  r.name,
			Model:     apiResp.Model,
		}
	}
	return embeddings, nil
}

func (r *RemoteProvider) Dimension() int   { return r.dimension }
func (r *RemoteProvider) Provider() string { return r.name }
func (r *RemoteProvider) Model() string    { return r.model }

func (r *RemoteProvider) Close() error {
	r.httpClient.CloseIdleConnections()
	return nil
}

// LocalProvider embeds offline by hashing word and character-trigram
// features into a fixed-size vector. Texts that share vocabulary land close
// together, which is enough for catalog search without a model download.
type LocalProvider struct {
	model string
	cache *Cache
}

// NewLocalProvider creates the offline embedder
func NewLocalProvider(cache *Cache) (*LocalProvider, error) {
	return &LocalProvider{model: "local-hash-384", cache: cache}, nil
}

func (l *LocalProvider) GenerateEmbedding(ctx context.Context, req EmbeddingRequest) (*Embedding, error) {
	if err := ValidateRequest(req); err != nil {
		return nil, err
	}
	hash := ComputeHash(req.Text)
	if emb, ok := l.cache.Get(hash); ok {
		return emb, nil
	}

	emb := &Embedding{
		Vector:    hashFeatures(req.Text, LocalDimension),
		Dimension: LocalDimension,
		Provider:  ProviderLocal,
		Model:     l.model,
		Hash:      hash,
	}
	l.cache.Set(hash, emb)
	return emb, nil
}

func (l *LocalProvider) GenerateBatch(ctx context.Context, req BatchEmbeddingRequest) (*BatchEmbeddingResponse, error) {
	if err := ValidateBatchRequest(req); err != nil {
		return nil, err
	}
	embeddings := make([]*Embedding, len(req.Texts))
	for i, text := range req.Texts {
		emb, err := l.GenerateEmbedding(ctx, EmbeddingRequest{Text: text})
		if err != nil {
			return nil, fmt.Errorf("embedding text %d: %w", i, err)
		}
		embeddings[i] = emb
	}
	return &BatchEmbeddingResponse{Embeddings: embeddings, Provider: ProviderLocal, Model: l.model}, nil
}

func (l *LocalProvider) Dimension() int   { return LocalDimension }
func (l *LocalProvider) Provider() string { return ProviderLocal }
func (l *LocalProvider) Model() string    { return l.model }
func (l *LocalProvider) Close() error     { return nil }

// hashFeatures builds a unit vector from hashed word and trigram features
func hashFeatures(text string, dim int) []float32 {
	vec := make([]float32, dim)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	add := func(feature string, weight float32) {
		h := fnv.New32a()
		_, _ = h.Write([]byte(feature))
		sum := h.Sum32()
		sign := float32(1)
		if sum&1 == 1 {
			sign = -1
		}
		vec[(sum>>1)%uint32(dim)] += sign * weight
	}
	for _, w := range words {
		add("w:"+w, 1)
		padded := []rune("^" + w + "$")
		for i := 0; i+3 <= len(padded); i++ {
			add("t:"+string(padded[i:i+3]), 0.5)
		}
	}
	return NormalizeVector(vec)
}

// NoneProvider is used when semantic search is switched off. Every call
// returns ErrUnavailable.
type NoneProvider struct{}

func (NoneProvider) GenerateEmbedding(context.Context, EmbeddingRequest) (*Embedding, error) {
	return nil, ErrUnavailable
}

func (NoneProvider) GenerateBatch(context.Context, BatchEmbeddingRequest) (*BatchEmbeddingResponse, error) {
	return nil, ErrUnavailable
}

func (NoneProvider) Dimension() int   { return 0 }
func (NoneProvider) Provider() string { return ProviderNone }
func (NoneProvider) Model() string    { return "" }
func (NoneProvider) Close() error     { return nil }

// NormalizeVector scales v to unit length; a zero vector is returned unchanged
func NormalizeVector(v []float32) []float32 {
	var sum float64
	for _, val := range v {
		sum += float64(val) * float64(val)
	}
	if sum == 0 {
		return v
	}
	norm := math.Sqrt(sum)
	out := make([]float32, len(v))
	for i, val := range v {
		out[i] = float32(float64(val) / norm)
	}
	return out
}
