package queryparser

import (
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/olebedev/when"
)

// Options configures optional behavior of the parser
type Options struct {
	// FuzzyCorrection rewrites near-miss date and type keywords
	FuzzyCorrection bool
	// SpellCorrection rewrites words against the trained vocabulary
	SpellCorrection bool
	// Now overrides the clock; nil means time.Now
	Now func() time.Time
}

// Parser turns free-text queries into structured queries
type Parser struct {
	opts    Options
	now     func() time.Time
	speller *speller
	natural *when.Parser
}

// New creates a parser
func New(opts Options) *Parser {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	p := &Parser{opts: opts, now: now, natural: newNaturalDateParser()}
	if opts.SpellCorrection {
		p.speller = newSpeller()
	}
	return p
}

// TrainSpelling adds catalog vocabulary to the spelling model. It is a no-op
// when spell correction is disabled.
func (p *Parser) TrainSpelling(words []string) {
	if p.speller == nil {
		return
	}
	p.speller.train(words)
}

var fillerWords = map[string]struct{}{
	"i": {}, "the": {}, "a": {}, "an": {}, "my": {}, "from": {}, "created": {},
	"made": {}, "that": {}, "which": {}, "were": {}, "was": {}, "in": {}, "on": {},
	"all": {}, "show": {}, "get": {}, "find": {}, "me": {}, "for": {}, "with": {},
	"files": {}, "file": {},
}

var spaceRe = regexp.MustCompile(`\s+`)

func collapse(s string) string {
	return strings.TrimSpace(spaceRe.ReplaceAllString(s, " "))
}

// Parse extracts filters from raw and returns the structured query
func (p *Parser) Parse(raw string) *Query {
	q := &Query{Raw: raw}
	now := p.now()

	text := p.extractOperators(q, raw)
	text = strings.ToLower(collapse(text))

	if p.opts.FuzzyCorrection {
		var notes []string
		text, notes = fuzzyCorrect(text)
		q.Corrections = append(q.Corrections, notes...)
	}
	if p.speller != nil {
		var notes []string
		text, notes = p.speller.correct(text)
		q.Corrections = append(q.Corrections, notes...)
	}
	corrected := text

	text = p.extractDate(q, text, now)

	q.TypeFilter, q.Extensions, text = extractType(text)

	var kept []string
	for _, w := range strings.Fields(text) {
		if _, filler := fillerWords[w]; !filler {
			kept = append(kept, w)
		}
	}
	q.Text = strings.Join(kept, " ")

	if q.Text == "" && !q.HasFilters() {
		q.Text = corrected
	}
	q.Terms = terms(q.Text)
	return q
}

// extractOperators consumes key:value tokens and returns the remaining text
func (p *Parser) extractOperators(q *Query, raw string) string {
	var rest []string
	for _, tok := range strings.Fields(raw) {
		key, value, ok := strings.Cut(tok, ":")
		if !ok || value == "" {
			rest = append(rest, tok)
			continue
		}
		switch strings.ToLower(key) {
		case "type", "label":
			q.Label = value
		case "tag":
			q.Tags = append(q.Tags, value)
		case "has":
			switch strings.ToLower(value) {
			case "ocr":
				q.HasOCR = true
			case "vision":
				q.HasVision = true
			default:
				rest = append(rest, tok)
			}
		default:
			rest = append(rest, tok)
		}
	}
	return strings.Join(rest, " ")
}

func (p *Parser) extractDate(q *Query, text string, now time.Time) string {
	if m, rest, ok := matchSimpleDate(text, now); ok {
		q.DateFilter, q.Date = m.filter, m.rng
		return rest
	}
	if m, ok := p.matchComplexDate(text, now); ok {
		q.DateFilter, q.Date = m.filter, m.rng
		if m.text != "" {
			text = strings.ReplaceAll(text, m.text, " ")
		}
	}
	return text
}

// terms splits text into words with surrounding punctuation trimmed
func terms(text string) []string {
	var out []string
	for _, w := range strings.Fields(text) {
		w = strings.TrimFunc(w, func(r rune) bool {
			return unicode.IsPunct(r) || unicode.IsSymbol(r)
		})
		if w != "" {
			out = append(out, w)
		}
	}
	return out
}
