package enricher

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"unicode"
)

// labelKeywords maps a label to words that suggest it, checked in order
var labelKeywords = []struct {
	label string
	words []string
}{
	{"screenshot", []string{"screenshot", "screen shot", "screencap", "capture"}},
	{"invoice", []string{"invoice", "bill to", "amount due", "factura"}},
	{"receipt", []string{"receipt", "subtotal", "total paid"}},
	{"resume", []string{"resume", "curriculum vitae", "work experience"}},
	{"contract", []string{"contract", "agreement", "hereby", "terms and conditions"}},
	{"bank statement", []string{"statement", "account balance"}},
	{"presentation", []string{"slide", "deck", "presentation"}},
	{"thumbnail", []string{"thumbnail", "thumb"}},
	{"logo", []string{"logo"}},
	{"meme", []string{"meme"}},
	{"diagram", []string{"diagram", "flowchart", "chart", "graph"}},
	{"report", []string{"report", "summary", "analysis"}},
	{"notes", []string{"notes", "todo", "meeting"}},
}

// categoryLabels is the fallback label for a catalog category
var categoryLabels = map[string]string{
	"images":        "photograph",
	"videos":        "video",
	"audio":         "audio recording",
	"documents":     "document",
	"spreadsheets":  "spreadsheet",
	"presentations": "presentation",
	"archives":      "archive",
	"code":          "source code",
	"data":          "data file",
	"installers":    "installer",
	"fonts":         "font",
	"3d-models":     "3d model",
	"ebooks":        "ebook",
}

var stopWords = map[string]struct{}{
	"the": {}, "and": {}, "for": {}, "with": {}, "this": {}, "that": {}, "from": {},
	"are": {}, "was": {}, "were": {}, "you": {}, "your": {}, "have": {}, "has": {},
	"not": {}, "but": {}, "all": {}, "any": {}, "can": {}, "will": {}, "into": {},
	"img": {}, "dsc": {}, "copy": {}, "final": {}, "new": {}, "file": {},
}

// LocalProvider labels files offline from their name, category and text.
// It never fails, so it also serves as a fallback.
type LocalProvider struct{}

func (LocalProvider) Name() string { return ProviderLocal }

func (LocalProvider) Enrich(ctx context.Context, in Input) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	name := strings.TrimSuffix(in.Name, filepath.Ext(in.Name))
	nameWords := words(name)
	textWords := words(in.Text)
	haystack := strings.ToLower(strings.Join(nameWords, " ") + " " + in.Text)

	label, matched := "", false
	for _, lk := range labelKeywords {
		for _, w := range lk.words {
			if containsWord(haystack, w) {
				label, matched = lk.label, true
				break
			}
		}
		if matched {
			break
		}
	}
	if label == "" {
		label = categoryLabels[in.Category]
	}
	if label == "" {
		label = "file"
	}

	tags := []string{label}
	if in.Category != "" {
		tags = append(tags, in.Category)
	}
	if ext := strings.TrimPrefix(strings.ToLower(in.Extension), "."); ext != "" {
		tags = append(tags, ext)
	}
	tags = append(tags, nameWords...)
	tags = append(tags, topWords(textWords, 10)...)

	confidence := 0.3
	if matched {
		confidence = 0.5
	}

	return &Result{
		Label:      label,
		Tags:       NormalizeTags(tags),
		Caption:    localCaption(label, in),
		Confidence: confidence,
		Source:     ProviderLocal,
	}, nil
}

func localCaption(label string, in Input) string {
	caption := fmt.Sprintf("%s named %q", strings.ToUpper(label[:1])+label[1:], in.Name)
	if snippet := firstSentence(in.Text); snippet != "" {
		caption += ": " + snippet
	}
	return truncate(caption, maxCaption)
}

func firstSentence(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	if i := strings.IndexAny(text, ".!?"); i > 0 {
		text = text[:i+1]
	}
	return truncate(text, 200)
}

// words splits s into lowercase alphabetic words of at least three letters,
// minus stop words. CamelCase and separators both split.
func words(s string) []string {
	var (
		out []string
		cur []rune
	)
	flush := func() {
		if len(cur) >= 3 {
			w := strings.ToLower(string(cur))
			if _, stop := stopWords[w]; !stop {
				out = append(out, w)
			}
		}
		cur = cur[:0]
	}
	var prev rune
	for _, r := range s {
		switch {
		case unicode.IsLetter(r):
			if unicode.IsUpper(r) && unicode.IsLower(prev) {
				flush()
			}
			cur = append(cur, r)
		default:
			flush()
		}
		prev = r
	}
	flush()
	return out
}

// topWords returns the n most frequent words of at least four letters
func topWords(ws []string, n int) []string {
	counts := map[string]int{}
	for _, w := range ws {
		if len(w) >= 4 {
			counts[w]++
		}
	}
	type wc struct {
		w string
		c int
	}
	list := make([]wc, 0, len(counts))
	for w, c := range counts {
		list = append(list, wc{w, c})
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].c != list[j].c {
			return list[i].c > list[j].c
		}
		return list[i].w < list[j].w
	})
	out := make([]string, 0, n)
	for i := 0; i < len(list) && i < n; i++ {
		out = append(out, list[i].w)
	}
	return out
}

// containsWord reports whether phrase occurs in s on word boundaries
func containsWord(s, phrase string) bool {
	for start := 0; ; {
		i := strings.Index(s[start:], phrase)
		if i < 0 {
			return false
		}
		i += start
		end := i + len(phrase)
		before := i == 0 || !isWordByte(s[i-1])
		after := end == len(s) || !isWordByte(s[end])
		if before && after {
			return true
		}
		start = i + 1
	}
}

func isWordByte(b byte) bool {
	return b == '_' || (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || (b >= '0' && b <= '9')
}
