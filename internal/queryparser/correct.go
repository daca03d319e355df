package queryparser

import (
	"fmt"
	"strings"
	"sync"
	"unicode"

	"github.com/agnivade/levenshtein"
	"github.com/sajari/fuzzy"
)

// fuzzyThreshold is the minimum similarity ratio, in percent, for a keyword rewrite
const fuzzyThreshold = 80

var dateKeywords = []string{
	"today", "yesterday", "week", "month", "year",
	"monday", "tuesday", "wednesday", "thursday", "friday", "saturday", "sunday",
	"january", "february", "march", "april", "may", "june", "july",
	"august", "september", "october", "november", "december",
	"last", "this", "previous", "next", "past", "ago", "days",
}

var typeKeywords = []string{
	"image", "images", "photo", "photos", "picture", "pictures",
	"screenshot", "screenshots", "thumbnail", "thumbnails",
	"document", "documents", "pdf", "pdfs", "video", "videos",
	"audio", "music", "code", "spreadsheet", "spreadsheets",
}

// spellingSeed is always part of the spelling vocabulary
var spellingSeed = []string{
	"thumbnail", "screenshot", "pdf", "jpeg", "png", "webp", "avif",
	"docx", "xlsx", "pptx", "csv", "json", "yaml",
}

var keywordSet = func() map[string]struct{} {
	out := make(map[string]struct{}, len(dateKeywords)+len(typeKeywords))
	for _, w := range dateKeywords {
		out[w] = struct{}{}
	}
	for _, w := range typeKeywords {
		out[w] = struct{}{}
	}
	return out
}()

// similarity returns a 0-100 ratio derived from edit distance
func similarity(a, b string) int {
	total := len(a) + len(b)
	if total == 0 {
		return 100
	}
	dist := levenshtein.ComputeDistance(a, b)
	return (total - dist) * 100 / total
}

// fuzzyCorrect snaps near-miss date and type keywords to their canonical spelling
func fuzzyCorrect(text string) (string, []string) {
	words := strings.Fields(text)
	var notes []string
	for i, w := range words {
		if len(w) < 3 {
			continue
		}
		if _, ok := keywordSet[w]; ok {
			continue
		}
		best, bestScore := "", 0
		for _, kw := range dateKeywords {
			if s := similarity(w, kw); s > bestScore {
				best, bestScore = kw, s
			}
		}
		for _, kw := range typeKeywords {
			if s := similarity(w, kw); s > bestScore {
				best, bestScore = kw, s
			}
		}
		if bestScore >= fuzzyThreshold {
			notes = append(notes, fmt.Sprintf("%s -> %s", w, best))
			words[i] = best
		}
	}
	return strings.Join(words, " "), notes
}

// speller wraps a trained spelling model
type speller struct {
	mu    sync.RWMutex
	model *fuzzy.Model
}

func newSpeller() *speller {
	model := fuzzy.NewModel()
	model.SetThreshold(1)
	model.SetDepth(2)
	model.Train(append(append(append([]string(nil), spellingSeed...), dateKeywords...), typeKeywords...))
	return &speller{model: model}
}

func (s *speller) train(words []string) {
	var clean []string
	for _, w := range words {
		w = strings.ToLower(strings.TrimSpace(w))
		if isAlphaWord(w) {
			clean = append(clean, w)
		}
	}
	if len(clean) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.model.Train(clean)
}

func isAlphaWord(w string) bool {
	if len(w) < 3 {
		return false
	}
	for _, r := range w {
		if !unicode.IsLetter(r) {
			return false
		}
	}
	return true
}

func (s *speller) correct(text string) (string, []string) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	words := strings.Fields(text)
	var notes []string
	for i, w := range words {
		if !isAlphaWord(w) {
			continue
		}
		fixed := s.model.SpellCheck(w)
		if fixed != "" && fixed != w {
			notes = append(notes, fmt.Sprintf("%s -> %s", w, fixed))
			words[i] = fixed
		}
	}
	return strings.Join(words, " "), notes
}
