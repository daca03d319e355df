package embedder

import (
	"context"
	"fmt"
	"strings"
)

// Config selects and configures an embedding provider
type Config struct {
	Provider  string
	APIKey    string
	Model     string
	Endpoint  string
	CacheSize int
}

// New creates an embedder from cfg. An empty provider means local.
func New(ctx context.Context, cfg Config) (Embedder, error) {
	cache := NewCache(cfg.CacheSize)

	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case ProviderJina:
		p, err := NewJinaProvider(cfg.APIKey, cache)
		if err != nil {
			return nil, err
		}
		return p.WithEndpoint(cfg.Endpoint).WithModel(cfg.Model), nil
	case ProviderOpenAI:
		p, err := NewOpenAIProvider(cfg.APIKey, cache)
		if err != nil {
			return nil, err
		}
		return p.WithEndpoint(cfg.Endpoint).WithModel(cfg.Model), nil
	case ProviderGemini:
		return NewGeminiProvider(ctx, cfg.APIKey, cfg.Model, cache)
	case ProviderLocal, "":
		return NewLocalProvider(cache)
	case ProviderNone:
		return NoneProvider{}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedModel, cfg.Provider)
	}
}
