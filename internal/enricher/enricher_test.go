package enricher

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseResponse(t *testing.T) {
	tests := []struct {
		name    string
		reply   string
		want    *Result
		wantErr bool
	}{
		{
			name:  "plain object",
			reply: `{"type":"Invoice","caption":"An invoice for March","tags":["Invoice","march"," billing ","invoice"],"detected_text":"INV-42","confidence":0.9}`,
			want: &Result{
				Label: "Invoice", Caption: "An invoice for March", Tags: []string{"invoice", "march", "billing"},
				ExtractedText: "INV-42", Confidence: 0.9, Source: "test",
			},
		},
		{
			name:  "wrapped in prose and fences",
			reply: "Sure!\n```json\n{\"type\":\"meme\",\"tags\":[\"cat\"]}\n```\nHope this helps.",
			want:  &Result{Label: "meme", Tags: []string{"cat"}, Source: "test"},
		},
		{
			name:  "alternate keys and string tags",
			reply: `{"label":"receipt","description":"Coffee shop receipt","tags":"coffee, receipt","confidence":"0.4"}`,
			want:  &Result{Label: "receipt", Caption: "Coffee shop receipt", Tags: []string{"coffee", "receipt"}, Confidence: 0.4, Source: "test"},
		},
		{
			name:  "detected text none is dropped and confidence clamped",
			reply: `{"type":"photo","detected_text":"None","confidence":7}`,
			want:  &Result{Label: "photo", Confidence: 1, Source: "test"},
		},
		{name: "no object", reply: "I cannot help with that", wantErr: true},
		{name: "broken json", reply: `{"type": "x",}`, wantErr: true},
		{name: "empty object", reply: `{}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseResponse(tt.reply, "test")
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrNoResult)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseResponseLimits(t *testing.T) {
	tags := make([]string, 60)
	for i := range tags {
		tags[i] = strings.Repeat("t", i+1)
	}
	body, _ := json.Marshal(map[string]interface{}{
		"type":    "x",
		"caption": strings.Repeat("c", 1000),
		"tags":    tags,
	})

	got, err := ParseResponse(string(body), "test")
	require.NoError(t, err)
	assert.Len(t, got.Tags, maxTags)
	assert.Len(t, got.Caption, maxCaption)
}

func TestNormalizeTags(t *testing.T) {
	assert.Nil(t, NormalizeTags(nil))
	assert.Nil(t, NormalizeTags([]string{" ", ""}))
	assert.Equal(t, []string{"a", "b"}, NormalizeTags([]string{"A", "b", "a ", "B"}))
}

func TestLocalProvider(t *testing.T) {
	p := LocalProvider{}

	t.Run("keyword from name", func(t *testing.T) {
		res, err := p.Enrich(context.Background(), Input{
			Name: "Screenshot 2024-03-01 at 10.png", Extension: ".png", Category: "images",
		})
		require.NoError(t, err)
		assert.Equal(t, "screenshot", res.Label)
		assert.Contains(t, res.Tags, "images")
		assert.Contains(t, res.Tags, "png")
		assert.Equal(t, ProviderLocal, res.Source)
		assert.Equal(t, 0.5, res.Confidence)
	})

	t.Run("keyword from text", func(t *testing.T) {
		res, err := p.Enrich(context.Background(), Input{
			Name: "scan_0042.pdf", Extension: ".pdf", Category: "documents",
			Text: "ACME Corp. Amount due: $120. Payment terms net 30. Payment by wire.",
		})
		require.NoError(t, err)
		assert.Equal(t, "invoice", res.Label)
		assert.Contains(t, res.Tags, "payment")
		assert.Contains(t, res.Caption, "ACME Corp.")
	})

	t.Run("category fallback", func(t *testing.T) {
		res, err := p.Enrich(context.Background(), Input{Name: "IMG_1234.jpg", Extension: ".jpg", Category: "images"})
		require.NoError(t, err)
		assert.Equal(t, "photograph", res.Label)
		assert.Equal(t, 0.3, res.Confidence)
		assert.NotContains(t, res.Tags, "img")
	})

	t.Run("unknown everything", func(t *testing.T) {
		res, err := p.Enrich(context.Background(), Input{Name: "x"})
		require.NoError(t, err)
		assert.Equal(t, "file", res.Label)
	})

	t.Run("cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := p.Enrich(ctx, Input{Name: "x"})
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestWords(t *testing.T) {
	assert.Equal(t, []string{"quarterly", "budget", "draft"}, words("QuarterlyBudget_final-draft v2"))
}

func TestContainsWord(t *testing.T) {
	assert.True(t, containsWord("my invoice here", "invoice"))
	assert.False(t, containsWord("invoices", "invoice"))
	assert.True(t, containsWord("a screen shot", "screen shot"))
}

// countingProvider records calls
type countingProvider struct {
	mu    sync.Mutex
	calls int
}

func (c *countingProvider) Name() string { return "counting" }

func (c *countingProvider) Enrich(context.Context, Input) (*Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	return &Result{Label: "x"}, nil
}

func TestRateLimited(t *testing.T) {
	inner := &countingProvider{}
	assert.Same(t, Provider(inner), WithRateLimit(inner, 0, 0))

	p := WithRateLimit(inner, 60, 1)
	assert.Equal(t, "counting", p.Name())

	_, err := p.Enrich(context.Background(), Input{})
	require.NoError(t, err)

	// the second call must wait about a second; a short deadline fails it
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = p.Enrich(ctx, Input{})
	assert.Error(t, err)
	assert.Equal(t, 1, inner.calls)
}

func TestNew(t *testing.T) {
	ctx := context.Background()

	p, err := New(ctx, Config{})
	require.NoError(t, err)
	assert.Equal(t, ProviderLocal, p.Name())

	p, err = New(ctx, Config{Provider: "none"})
	require.NoError(t, err)
	res, err := p.Enrich(ctx, Input{})
	require.NoError(t, err)
	assert.True(t, res.Empty())

	p, err = New(ctx, Config{Provider: "claude", APIKey: "k", RatePerMinute: 30})
	require.NoError(t, err)
	assert.Equal(t, ProviderClaude, p.Name())
	_, limited := p.(*RateLimited)
	assert.True(t, limited)

	_, err = New(ctx, Config{Provider: "claude"})
	assert.Error(t, err)

	_, err = New(ctx, Config{Provider: "gemini"})
	assert.Error(t, err)

	_, err = New(ctx, Config{Provider: "ollama"})
	assert.ErrorIs(t, err, ErrUnknownProvider)
}

func TestClaudeProvider(t *testing.T) {
	var (
		mu      sync.Mutex
		gotBody map[string]interface{}
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		mu.Lock()
		_ = json.Unmarshal(raw, &gotBody)
		mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"id": "msg_1", "type": "message", "role": "assistant", "model": "claude-test",
			"content": [{"type": "text", "text": "{\"type\":\"receipt\",\"tags\":[\"coffee\"],\"caption\":\"A coffee receipt\",\"confidence\":0.8}"}],
			"stop_reason": "end_turn", "stop_sequence": null,
			"usage": {"input_tokens": 10, "output_tokens": 20}
		}`)
	}))
	defer srv.Close()

	p, err := NewClaudeProvider(ClaudeConfig{APIKey: "test", Model: "claude-test", BaseURL: srv.URL})
	require.NoError(t, err)

	res, err := p.Enrich(context.Background(), Input{
		Name: "r.jpg", Image: []byte{0xff, 0xd8, 0xff}, ImageMediaType: "image/jpeg",
	})
	require.NoError(t, err)
	assert.Equal(t, "receipt", res.Label)
	assert.Equal(t, []string{"coffee"}, res.Tags)
	assert.Equal(t, ProviderClaude, res.Source)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "claude-test", gotBody["model"])
	messages, ok := gotBody["messages"].([]interface{})
	require.True(t, ok)
	require.Len(t, messages, 1)
	content := messages[0].(map[string]interface{})["content"].([]interface{})
	require.Len(t, content, 2)
	assert.Equal(t, "image", content[0].(map[string]interface{})["type"])
	assert.Equal(t, "text", content[1].(map[string]interface{})["type"])
}

func TestUserPrompt(t *testing.T) {
	p := userPrompt(Input{Name: "a.txt", Category: "documents", Text: "hello"})
	assert.Contains(t, p, "File name: a.txt")
	assert.Contains(t, p, "Extracted content:\nhello")

	p = userPrompt(Input{Name: "a.bin"})
	assert.Contains(t, p, "No content could be extracted")
}
