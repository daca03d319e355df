package enricher

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// DefaultClaudeModel is used when no model is configured
const DefaultClaudeModel = "claude-3-5-haiku-latest"

// ClaudeConfig configures the Claude provider
type ClaudeConfig struct {
	APIKey    string
	Model     string
	MaxTokens int
	// BaseURL overrides the API endpoint, e.g. for a proxy
	BaseURL string
}

// ClaudeProvider enriches files with Claude: vision for images, text otherwise
type ClaudeProvider struct {
	client    anthropic.Client
	model     string
	maxTokens int64
}

// NewClaudeProvider creates a Claude provider
func NewClaudeProvider(cfg ClaudeConfig) (*ClaudeProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("claude API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultClaudeModel
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 1024
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &ClaudeProvider{
		client:    anthropic.NewClient(opts...),
		model:     cfg.Model,
		maxTokens: int64(cfg.MaxTokens),
	}, nil
}

func (c *ClaudeProvider) Name() string { return ProviderClaude }

func (c *ClaudeProvider) Enrich(ctx context.Context, in Input) (*Result, error) {
	blocks := []anthropic.ContentBlockParamUnion{}
	if in.HasImage() {
		blocks = append(blocks, anthropic.NewImageBlockBase64(in.ImageMediaType, base64.StdEncoding.EncodeToString(in.Image)))
	}
	blocks = append(blocks, anthropic.NewTextBlock(userPrompt(in)))

	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(c.model),
		MaxTokens:   c.maxTokens,
		Messages:    []anthropic.MessageParam{anthropic.NewUserMessage(blocks...)},
		System:      []anthropic.TextBlockParam{{Text: systemPrompt}},
		Temperature: anthropic.Float(0.2),
	}

	resp, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("claude API call failed: %w", err)
	}

	var reply strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			reply.WriteString(block.Text)
		}
	}
	return ParseResponse(reply.String(), ProviderClaude)
}
