package rerank

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Provider names
const (
	ProviderClaude  = "claude"
	ProviderLexical = "lexical"
	ProviderNone    = "none"
)

// MaxItems is the most candidates a reranker is asked to order
const MaxItems = 20

var (
	// ErrNoRanking means the reranker produced no usable order
	ErrNoRanking = errors.New("no ranking produced")
	// ErrUnknownProvider is returned by New for an unrecognized provider name
	ErrUnknownProvider = errors.New("unknown rerank provider")
)

// Item is one candidate file shown to the reranker
type Item struct {
	ID      int64    `json:"id"`
	Name    string   `json:"name"`
	Label   string   `json:"label,omitempty"`
	Tags    []string `json:"tags,omitempty"`
	Caption string   `json:"caption,omitempty"`
	OCRText string   `json:"ocr,omitempty"`
}

// Reranker orders candidates by relevance to a query, most relevant first.
// The returned ids are a subset of the input ids without duplicates.
type Reranker interface {
	Rerank(ctx context.Context, query string, items []Item) ([]int64, error)
	Name() string
}

// Config selects and configures a reranker
type Config struct {
	Provider string
	APIKey   string
	Model    string
	BaseURL  string
}

// New builds the configured reranker. It returns nil for "none" and for an
// empty provider, meaning search falls back to semantic similarity.
func New(cfg Config) (Reranker, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case ProviderNone, "":
		return nil, nil
	case ProviderLexical:
		return Lexical{}, nil
	case ProviderClaude:
		return NewClaude(cfg)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, cfg.Provider)
	}
}

// truncateRunes cuts s to at most n runes
func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// parseIDs reads a JSON array of ids from a model reply and keeps only known,
// unique ids in reply order. Ids may be numbers or numeric strings.
func parseIDs(reply string, known map[int64]bool) ([]int64, error) {
	start := strings.Index(reply, "[")
	end := strings.LastIndex(reply, "]")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("%w: no JSON array in reply", ErrNoRanking)
	}

	var raw []interface{}
	if err := json.Unmarshal([]byte(reply[start:end+1]), &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoRanking, err)
	}

	ids := make([]int64, 0, len(raw))
	seen := make(map[int64]bool, len(raw))
	for _, v := range raw {
		var id int64
		switch x := v.(type) {
		case float64:
			id = int64(x)
		case string:
			n, err := strconv.ParseInt(strings.TrimSpace(x), 10, 64)
			if err != nil {
				continue
			}
			id = n
		default:
			continue
		}
		if !known[id] || seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}

	if len(ids) == 0 {
		return nil, ErrNoRanking
	}
	return ids, nil
}
