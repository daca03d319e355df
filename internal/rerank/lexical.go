package rerank

import (
	"context"
	"sort"
	"strings"
	"unicode"
)

// field weights for lexical scoring
const (
	weightName    = 3.0
	weightLabel   = 3.0
	weightTag     = 2.0
	weightCaption = 1.0
	weightOCR     = 0.5
)

// Lexical orders candidates by weighted token overlap with the query.
// Candidates sharing no token with the query are dropped.
type Lexical struct{}

func (Lexical) Name() string { return ProviderLexical }

func (Lexical) Rerank(ctx context.Context, query string, items []Item) ([]int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	terms := tokenSet(query)
	if len(terms) == 0 || len(items) == 0 {
		return nil, ErrNoRanking
	}
	if len(items) > MaxItems {
		items = items[:MaxItems]
	}

	type scored struct {
		id    int64
		score float64
		pos   int
	}
	var ranked []scored
	for i, it := range items {
		s := overlap(terms, it.Name, weightName) +
			overlap(terms, it.Label, weightLabel) +
			overlap(terms, strings.Join(it.Tags, " "), weightTag) +
			overlap(terms, it.Caption, weightCaption) +
			overlap(terms, it.OCRText, weightOCR)
		if s > 0 {
			ranked = append(ranked, scored{id: it.ID, score: s, pos: i})
		}
	}
	if len(ranked) == 0 {
		return nil, ErrNoRanking
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].score > ranked[j].score
	})

	ids := make([]int64, len(ranked))
	for i, r := range ranked {
		ids[i] = r.id
	}
	return ids, nil
}

func overlap(terms map[string]bool, text string, weight float64) float64 {
	if text == "" {
		return 0
	}
	var hits float64
	for tok := range tokenSet(text) {
		if terms[tok] {
			hits++
		}
	}
	return hits * weight
}

func tokenSet(s string) map[string]bool {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	set := make(map[string]bool, len(fields))
	for _, f := range fields {
		if len(f) > 1 {
			set[f] = true
		}
	}
	return set
}
