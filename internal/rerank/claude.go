package rerank

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// DefaultClaudeModel is used when no model is configured
const DefaultClaudeModel = "claude-3-5-haiku-latest"

const (
	captionLimit = 300
	ocrLimit     = 200
)

const rerankPrompt = `You rank files in a personal search index by how well they match a search query.
Reply with ONLY a JSON array of file ids, most relevant first, for example [12, 4, 9].
Leave out files that do not match the query at all.`

// Claude asks a Claude model to order candidates
type Claude struct {
	client anthropic.Client
	model  string
}

// NewClaude creates a Claude reranker
func NewClaude(cfg Config) (*Claude, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("claude API key is required for reranking")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultClaudeModel
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &Claude{client: anthropic.NewClient(opts...), model: cfg.Model}, nil
}

func (c *Claude) Name() string { return ProviderClaude }

func (c *Claude) Rerank(ctx context.Context, query string, items []Item) ([]int64, error) {
	if len(items) == 0 {
		return nil, ErrNoRanking
	}
	if len(items) > MaxItems {
		items = items[:MaxItems]
	}

	known := make(map[int64]bool, len(items))
	payload := make([]Item, len(items))
	for i, it := range items {
		known[it.ID] = true
		it.Caption = truncateRunes(it.Caption, captionLimit)
		it.OCRText = truncateRunes(it.OCRText, ocrLimit)
		payload[i] = it
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal candidates: %w", err)
	}

	prompt := fmt.Sprintf("Query: %s\n\nFiles:\n%s", query, data)
	resp, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:       anthropic.Model(c.model),
		MaxTokens:   512,
		System:      []anthropic.TextBlockParam{{Text: rerankPrompt}},
		Messages:    []anthropic.MessageParam{anthropic.NewUserMessage(anthropic.NewTextBlock(prompt))},
		Temperature: anthropic.Float(0),
	})
	if err != nil {
		return nil, fmt.Errorf("claude rerank call failed: %w", err)
	}

	var reply strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			reply.WriteString(block.Text)
		}
	}
	return parseIDs(reply.String(), known)
}
