package enricher

import (
	"context"
	"fmt"
	"strings"
)

// Config selects and configures an enrichment provider
type Config struct {
	Provider      string
	APIKey        string
	Model         string
	BaseURL       string
	MaxTokens     int
	RatePerMinute int
	RateBurst     int
}

// New builds the configured provider, rate limited when a rate is set
func New(ctx context.Context, cfg Config) (Provider, error) {
	var (
		p   Provider
		err error
	)
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case ProviderClaude:
		p, err = NewClaudeProvider(ClaudeConfig{APIKey: cfg.APIKey, Model: cfg.Model, MaxTokens: cfg.MaxTokens, BaseURL: cfg.BaseURL})
	case ProviderGemini:
		p, err = NewGeminiProvider(ctx, GeminiConfig{APIKey: cfg.APIKey, Model: cfg.Model, BaseURL: cfg.BaseURL})
	case ProviderLocal, "":
		return LocalProvider{}, nil
	case ProviderNone:
		return NoneProvider{}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, cfg.Provider)
	}
	if err != nil {
		return nil, err
	}
	return WithRateLimit(p, cfg.RatePerMinute, cfg.RateBurst), nil
}
