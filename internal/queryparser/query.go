package queryparser

import "time"

// DateRange is an inclusive time window
type DateRange struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether t falls within the range
func (r *DateRange) Contains(t time.Time) bool {
	if r == nil {
		return true
	}
	return !t.Before(r.Start) && !t.After(r.End)
}

// Query is the structured form of a free-text search
type Query struct {
	// Raw is the input exactly as received
	Raw string
	// Text is what remains after operators, dates, type words and filler are removed
	Text  string
	Terms []string

	// DateFilter labels the matched date expression, e.g. "last_week",
	// "specific_date:2024-03-01", "month:march_2024", "year:2023", "range:3_day"
	DateFilter string
	Date       *DateRange

	TypeFilter string
	Extensions []string

	Label     string
	Tags      []string
	HasOCR    bool
	HasVision bool

	// Corrections describes each fuzzy or spelling rewrite that was applied
	Corrections []string
}

// HasFilters reports whether any structured filter was extracted
func (q *Query) HasFilters() bool {
	return q.Date != nil || q.TypeFilter != "" || q.Label != "" || len(q.Tags) > 0 || q.HasOCR || q.HasVision
}
