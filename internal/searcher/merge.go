package searcher

import (
	"os"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/dshills/filesense/internal/queryparser"
	"github.com/dshills/filesense/internal/storage"
)

// ocrPreviewChars bounds the OCR text shown with a result
const ocrPreviewChars = 200

// candidate is a record with its best score so far
type candidate struct {
	record *storage.FileRecord
	score  float64
	source Source
}

// merger unions results from several retrieval paths, keeping the max score
type merger struct {
	byID  map[int64]*candidate
	order []int64
}

func newMerger() *merger {
	return &merger{byID: make(map[int64]*candidate)}
}

func (m *merger) add(rec *storage.FileRecord, score float64, source Source) {
	if c, ok := m.byID[rec.ID]; ok {
		if score > c.score {
			c.score = score
			c.source = source
		}
		return
	}
	m.byID[rec.ID] = &candidate{record: rec, score: score, source: source}
	m.order = append(m.order, rec.ID)
}

// sorted returns candidates by descending score, ties broken by name then id
func (m *merger) sorted() []*candidate {
	out := make([]*candidate, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.byID[id])
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].score != out[j].score {
			return out[i].score > out[j].score
		}
		if out[i].record.Name != out[j].record.Name {
			return out[i].record.Name < out[j].record.Name
		}
		return out[i].record.ID < out[j].record.ID
	})
	return out
}

// filterExtensions keeps candidates whose path ends with one of exts, ignoring case
func filterExtensions(in []*candidate, exts []string) []*candidate {
	if len(exts) == 0 {
		return in
	}
	out := in[:0]
	for _, c := range in {
		path := strings.ToLower(c.record.Path)
		for _, ext := range exts {
			if strings.HasSuffix(path, strings.ToLower(ext)) {
				out = append(out, c)
				break
			}
		}
	}
	return out
}

// filterDates keeps candidates whose best date falls in r. Records without
// any usable date are kept.
func filterDates(in []*candidate, r *queryparser.DateRange) []*candidate {
	if r == nil {
		return in
	}
	out := in[:0]
	for _, c := range in {
		t, ok := c.record.BestDate()
		if !ok || r.Contains(t) {
			out = append(out, c)
		}
	}
	return out
}

func toResult(c *candidate) Result {
	rec := c.record
	res := Result{
		ID:             rec.ID,
		Path:           rec.Path,
		Name:           rec.Name,
		Extension:      rec.Extension,
		Category:       rec.Category,
		MimeType:       rec.MimeType,
		Size:           rec.Size,
		SizeHuman:      humanize.Bytes(uint64(max(rec.Size, 0))),
		Label:          rec.Label,
		Tags:           rec.Tags,
		UserTags:       rec.UserTags,
		Caption:        rec.Caption,
		OCRPreview:     preview(rec.OCRText, ocrPreviewChars),
		Score:          c.score,
		RelevanceScore: min(c.score/10.0, 1.0),
		Source:         c.source,
	}
	if t, ok := rec.BestDate(); ok {
		res.Date = t
		res.DateHuman = humanize.Time(t)
	}
	if _, err := os.Stat(rec.Path); err == nil {
		res.Exists = true
	}
	return res
}

// preview cuts s to n runes and marks the cut with "..."
func preview(s string, n int) string {
	r := []rune(strings.TrimSpace(s))
	if len(r) <= n {
		return string(r)
	}
	return string(r[:n]) + "..."
}
