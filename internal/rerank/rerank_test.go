package rerank

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseIDs(t *testing.T) {
	known := map[int64]bool{1: true, 2: true, 3: true}

	tests := []struct {
		name    string
		reply   string
		want    []int64
		wantErr bool
	}{
		{name: "plain", reply: "[3, 1, 2]", want: []int64{3, 1, 2}},
		{name: "prose around", reply: "Here you go:\n```json\n[2,3]\n```", want: []int64{2, 3}},
		{name: "string ids", reply: `["1", " 3 "]`, want: []int64{1, 3}},
		{name: "unknown and duplicate dropped", reply: "[9, 1, 1, 2]", want: []int64{1, 2}},
		{name: "nothing known", reply: "[7, 8]", wantErr: true},
		{name: "no array", reply: "none match", wantErr: true},
		{name: "broken", reply: "[1, 2", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseIDs(tt.reply, known)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrNoRanking)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLexical(t *testing.T) {
	items := []Item{
		{ID: 1, Name: "notes.txt", Caption: "grocery list"},
		{ID: 2, Name: "beach.jpg", Label: "photograph", Tags: []string{"beach", "sunset"}},
		{ID: 3, Name: "sunset_beach_2023.jpg", Tags: []string{"beach"}},
		{ID: 4, Name: "report.pdf", OCRText: "quarterly revenue"},
	}

	ids, err := Lexical{}.Rerank(context.Background(), "beach sunset", items)
	require.NoError(t, err)
	// 3: name beach+sunset (6) + tag beach (2) = 8; 2: name beach (3) + tags beach+sunset (4) = 7
	assert.Equal(t, []int64{3, 2}, ids)

	_, err = Lexical{}.Rerank(context.Background(), "mountain", items)
	assert.ErrorIs(t, err, ErrNoRanking)

	_, err = Lexical{}.Rerank(context.Background(), "", items)
	assert.ErrorIs(t, err, ErrNoRanking)
}

func TestLexicalTiesKeepOrder(t *testing.T) {
	items := []Item{
		{ID: 5, Name: "cat a"},
		{ID: 6, Name: "cat b"},
	}
	ids, err := Lexical{}.Rerank(context.Background(), "cat", items)
	require.NoError(t, err)
	assert.Equal(t, []int64{5, 6}, ids)
}

func TestNew(t *testing.T) {
	r, err := New(Config{})
	require.NoError(t, err)
	assert.Nil(t, r)

	r, err = New(Config{Provider: "none"})
	require.NoError(t, err)
	assert.Nil(t, r)

	r, err = New(Config{Provider: "lexical"})
	require.NoError(t, err)
	assert.Equal(t, ProviderLexical, r.Name())

	_, err = New(Config{Provider: "claude"})
	assert.Error(t, err)

	_, err = New(Config{Provider: "cohere"})
	assert.ErrorIs(t, err, ErrUnknownProvider)
}

func TestClaudeRerank(t *testing.T) {
	var (
		mu     sync.Mutex
		prompt string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		var body struct {
			Messages []struct {
				Content []struct {
					Text string `json:"text"`
				} `json:"content"`
			} `json:"messages"`
		}
		_ = json.Unmarshal(raw, &body)
		mu.Lock()
		if len(body.Messages) > 0 && len(body.Messages[0].Content) > 0 {
			prompt = body.Messages[0].Content[0].Text
		}
		mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"id": "msg_1", "type": "message", "role": "assistant", "model": "claude-test",
			"content": [{"type": "text", "text": "[2, 1, 99]"}],
			"stop_reason": "end_turn", "stop_sequence": null,
			"usage": {"input_tokens": 10, "output_tokens": 5}
		}`)
	}))
	defer srv.Close()

	c, err := NewClaude(Config{APIKey: "k", Model: "claude-test", BaseURL: srv.URL})
	require.NoError(t, err)

	ids, err := c.Rerank(context.Background(), "sunset", []Item{
		{ID: 1, Name: "a.jpg", Caption: strings.Repeat("x", 500)},
		{ID: 2, Name: "b.jpg"},
	})
	require.NoError(t, err)
	assert.Equal(t, []int64{2, 1}, ids)

	mu.Lock()
	defer mu.Unlock()
	assert.Contains(t, prompt, "Query: sunset")
	assert.Contains(t, prompt, strings.Repeat("x", captionLimit))
	assert.NotContains(t, prompt, strings.Repeat("x", captionLimit+1))

	_, err = c.Rerank(context.Background(), "q", nil)
	assert.ErrorIs(t, err, ErrNoRanking)
}
