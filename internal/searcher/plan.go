package searcher

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/dshills/filesense/internal/queryparser"
	"github.com/dshills/filesense/internal/storage"
)

// openEnd bounds a date range that only has a start
var openEnd = time.Date(9999, time.December, 31, 23, 59, 59, 0, time.UTC)

// plan is a validated request merged with what the parser found
type plan struct {
	query      *queryparser.Query
	terms      []string
	filters    *storage.SearchFilters
	typeFilter string
	extensions []string
	date       *queryparser.DateRange
	filterOnly bool
	limit      int
	pool       int
}

func (s *Searcher) plan(req Request) (*plan, error) {
	q := &queryparser.Query{Raw: req.Query}
	if req.Query != "" {
		q = s.parser.Parse(req.Query)
	}

	p := &plan{
		query:      q,
		terms:      q.Terms,
		typeFilter: q.TypeFilter,
		extensions: q.Extensions,
		date:       q.Date,
		limit:      req.Limit,
		filters: &storage.SearchFilters{
			Label:     q.Label,
			Tags:      q.Tags,
			HasOCR:    q.HasOCR,
			HasVision: q.HasVision,
		},
	}

	if req.TypeFilter != "" {
		exts, ok := queryparser.TypeExtensions(req.TypeFilter)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownType, req.TypeFilter)
		}
		p.typeFilter = req.TypeFilter
		p.extensions = exts
	}
	if len(req.Extensions) > 0 {
		p.extensions = normalizeExtensions(req.Extensions)
	}
	if !req.DateStart.IsZero() || !req.DateEnd.IsZero() {
		end := req.DateEnd
		if end.IsZero() {
			end = openEnd
		}
		p.date = &queryparser.DateRange{Start: req.DateStart, End: end}
	}

	p.filterOnly = len(p.terms) == 0 && p.filters.Label == "" && len(p.filters.Tags) == 0
	if p.filterOnly {
		p.pool = filterOnlyPool
	} else {
		p.pool = poolFactor * p.limit
	}
	return p, nil
}

// semanticText is what the query is embedded as: text, label and tags
func (p *plan) semanticText() string {
	parts := make([]string, 0, 2+len(p.filters.Tags))
	text := p.query.Text
	if text == "" {
		text = strings.Join(p.terms, " ")
	}
	for _, s := range append([]string{text, p.filters.Label}, p.filters.Tags...) {
		if s = strings.TrimSpace(s); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, " ")
}

// matchesFilters applies the structured filters to a record that did not come
// through the keyword query, using the same case-insensitive containment
func (p *plan) matchesFilters(rec *storage.FileRecord) bool {
	f := p.filters
	if f.Label != "" && !containsFold(rec.Label, f.Label) {
		return false
	}
	if len(f.Tags) > 0 {
		all := strings.Join(append(slices.Clone(rec.Tags), rec.UserTags...), " ")
		for _, tag := range f.Tags {
			if !containsFold(all, tag) {
				return false
			}
		}
	}
	if f.HasOCR && !rec.HasOCR {
		return false
	}
	if f.HasVision && !rec.HasVision() {
		return false
	}
	return true
}

func (p *plan) interpretation() Interpretation {
	return Interpretation{
		Text:        p.query.Text,
		Terms:       p.terms,
		DateFilter:  p.query.DateFilter,
		TypeFilter:  p.typeFilter,
		Extensions:  p.extensions,
		Label:       p.filters.Label,
		Tags:        p.filters.Tags,
		HasOCR:      p.filters.HasOCR,
		HasVision:   p.filters.HasVision,
		Corrections: p.query.Corrections,
	}
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(strings.TrimSpace(substr)))
}

// normalizeExtensions lowercases and dot-prefixes each extension
func normalizeExtensions(exts []string) []string {
	out := make([]string, 0, len(exts))
	for _, e := range exts {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" {
			continue
		}
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		if !slices.Contains(out, e) {
			out = append(out, e)
		}
	}
	return out
}
