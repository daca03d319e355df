package queryparser

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
)

const (
	day = 24 * time.Hour
	// maxRelativeDays caps "N days ago" style amounts
	maxRelativeDays = 100 * 365
)

type simplePattern struct {
	re     *regexp.Regexp
	filter string
}

// simpleDatePatterns are tried in order; the first match wins
var simpleDatePatterns = []simplePattern{
	{regexp.MustCompile(`\btoday\b`), "today"},
	{regexp.MustCompile(`\bthis day\b`), "today"},
	{regexp.MustCompile(`\byesterday\b`), "yesterday"},
	{regexp.MustCompile(`\bthis week\b`), "this_week"},
	{regexp.MustCompile(`\blast week\b`), "last_week"},
	{regexp.MustCompile(`\bpast week\b`), "last_week"},
	{regexp.MustCompile(`\bprevious week\b`), "last_week"},
	{regexp.MustCompile(`\bpast 7 days\b`), "last_week"},
	{regexp.MustCompile(`\blast 7 days\b`), "last_week"},
	{regexp.MustCompile(`\bwithin 7 days\b`), "last_week"},
	{regexp.MustCompile(`\bthis month\b`), "this_month"},
	{regexp.MustCompile(`\blast month\b`), "last_month"},
	{regexp.MustCompile(`\bpast month\b`), "last_month"},
	{regexp.MustCompile(`\bprevious month\b`), "last_month"},
	{regexp.MustCompile(`\bpast 30 days\b`), "last_month"},
	{regexp.MustCompile(`\blast 30 days\b`), "last_month"},
	{regexp.MustCompile(`\bwithin 30 days\b`), "last_month"},
	{regexp.MustCompile(`\bthis year\b`), "this_year"},
	{regexp.MustCompile(`\blast year\b`), "last_year"},
	{regexp.MustCompile(`\bthe previous year\b`), "previous_year"},
	{regexp.MustCompile(`\bprevious year\b`), "previous_year"},
	{regexp.MustCompile(`\brecent\b`), "last_week"},
	{regexp.MustCompile(`\brecently\b`), "last_week"},
}

var weekdays = map[string]time.Weekday{
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
	"sunday":    time.Sunday,
}

// monthOrder keeps standalone-month detection deterministic
var monthOrder = []string{
	"january", "jan", "february", "feb", "march", "mar", "april", "apr", "may",
	"june", "jun", "july", "jul", "august", "aug", "september", "sept", "sep",
	"october", "oct", "november", "nov", "december", "dec",
}

var months = map[string]time.Month{
	"january": time.January, "jan": time.January,
	"february": time.February, "feb": time.February,
	"march": time.March, "mar": time.March,
	"april": time.April, "apr": time.April,
	"may":  time.May,
	"june": time.June, "jun": time.June,
	"july": time.July, "jul": time.July,
	"august": time.August, "aug": time.August,
	"september": time.September, "sept": time.September, "sep": time.September,
	"october": time.October, "oct": time.October,
	"november": time.November, "nov": time.November,
	"december": time.December, "dec": time.December,
}

const (
	dayAlt   = `monday|tuesday|wednesday|thursday|friday|saturday|sunday`
	monthAlt = `january|february|march|april|may|june|july|august|september|october|november|december|jan|feb|mar|apr|jun|jul|aug|sept|sep|oct|nov|dec`
)

var (
	modifiedDayRe   = regexp.MustCompile(`\b(last|previous|this|next)\s+(` + dayAlt + `)\b`)
	standaloneDayRe = regexp.MustCompile(`\b(` + dayAlt + `)\b`)
	agoRe           = regexp.MustCompile(`\b(\d+)\s+(days?|weeks?|months?|years?)\s+ago\b`)
	withinRe        = regexp.MustCompile(`\b(past|last|within)\s+(\d+)\s+(days?|weeks?|months?)\b`)
	modifiedMonthRe = regexp.MustCompile(`\b(last|this|previous)\s+(` + monthAlt + `)\b`)
	monthYearRe     = regexp.MustCompile(`\b(` + monthAlt + `)\s+(20\d{2})\b`)
	yearRe          = regexp.MustCompile(`\b(20\d{2})\b`)
	dayMonthRe      = regexp.MustCompile(`\b(\d{1,2})(?:st|nd|rd|th)?\s+(?:of\s+)?(` + monthAlt + `)\b(?:,?\s+(\d{4})\b)?`)
	monthDayRe      = regexp.MustCompile(`\b(` + monthAlt + `)\s+(\d{1,2})(?:st|nd|rd|th)?\b(?:,?\s*(\d{4})\b)?`)
	isoDateRe       = regexp.MustCompile(`\b(\d{4})[/\-.](\d{1,2})[/\-.](\d{1,2})\b`)
	numericDateRe   = regexp.MustCompile(`\b(\d{1,2})[/\-.](\d{1,2})[/\-.](\d{2,4})\b`)
)

// dateMatch is the outcome of one step of the date cascade
type dateMatch struct {
	filter string
	rng    *DateRange
	text   string
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func endOfDay(t time.Time) time.Time {
	return startOfDay(t).Add(day - time.Nanosecond)
}

// calendar ranges end on their last instant; Contains is inclusive
func singleDay(t time.Time) *DateRange {
	return &DateRange{Start: startOfDay(t), End: endOfDay(t)}
}

func monthRange(year int, month time.Month, loc *time.Location) *DateRange {
	start := time.Date(year, month, 1, 0, 0, 0, 0, loc)
	return &DateRange{Start: start, End: start.AddDate(0, 1, 0).Add(-time.Nanosecond)}
}

func yearRange(year int, loc *time.Location) *DateRange {
	start := time.Date(year, time.January, 1, 0, 0, 0, 0, loc)
	return &DateRange{Start: start, End: start.AddDate(1, 0, 0).Add(-time.Nanosecond)}
}

// mondayIndex numbers weekdays from Monday = 0
func mondayIndex(w time.Weekday) int {
	return (int(w) + 6) % 7
}

// simpleRange resolves the fixed phrases of simpleDatePatterns
func simpleRange(filter string, now time.Time) *DateRange {
	today := startOfDay(now)
	switch filter {
	case "today":
		return &DateRange{Start: today, End: now}
	case "yesterday":
		return &DateRange{Start: today.Add(-day), End: today.Add(-time.Nanosecond)}
	case "this_week":
		return &DateRange{Start: today.AddDate(0, 0, -mondayIndex(today.Weekday())), End: now}
	case "last_week":
		return &DateRange{Start: today.AddDate(0, 0, -7), End: now}
	case "this_month":
		return &DateRange{Start: time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location()), End: now}
	case "last_month":
		return &DateRange{Start: today.AddDate(0, 0, -30), End: now}
	case "this_year":
		return &DateRange{Start: time.Date(now.Year(), time.January, 1, 0, 0, 0, 0, now.Location()), End: now}
	case "last_year":
		return &DateRange{Start: today.AddDate(0, 0, -365), End: now}
	case "previous_year":
		return yearRange(now.Year()-1, now.Location())
	}
	return nil
}

// weekdayDate resolves "last/this/next <weekday>" relative to now
func weekdayDate(modifier string, target time.Weekday, now time.Time) time.Time {
	cur := mondayIndex(now.Weekday())
	tgt := mondayIndex(target)
	today := startOfDay(now)

	switch modifier {
	case "this":
		return today.AddDate(0, 0, tgt-cur)
	case "next":
		diff := tgt - cur
		if diff <= 0 {
			diff += 7
		}
		return today.AddDate(0, 0, diff)
	default: // last, previous
		ago := ((cur-tgt)%7 + 7) % 7
		if ago == 0 {
			ago = 7
		}
		return today.AddDate(0, 0, -ago)
	}
}

func specificDate(t time.Time) dateMatch {
	return dateMatch{filter: "specific_date:" + t.Format("2006-01-02"), rng: singleDay(t)}
}

// matchSimpleDate runs the fixed-phrase step and strips every occurrence of the winning phrase
func matchSimpleDate(text string, now time.Time) (dateMatch, string, bool) {
	for _, p := range simpleDatePatterns {
		if p.re.MatchString(text) {
			return dateMatch{filter: p.filter, rng: simpleRange(p.filter, now)}, p.re.ReplaceAllString(text, " "), true
		}
	}
	return dateMatch{}, text, false
}

// matchComplexDate runs the remaining steps of the cascade in order
func (p *Parser) matchComplexDate(text string, now time.Time) (dateMatch, bool) {
	steps := []func(string, time.Time) (dateMatch, bool){
		matchWeekday,
		matchRelative,
		matchModifiedMonth,
		matchStandaloneMonth,
		matchYear,
		matchExplicitDate,
		p.matchNaturalDate,
	}
	for _, step := range steps {
		if m, ok := step(text, now); ok {
			return m, true
		}
	}
	return dateMatch{}, false
}

func matchWeekday(text string, now time.Time) (dateMatch, bool) {
	if sm := modifiedDayRe.FindStringSubmatch(text); sm != nil {
		m := specificDate(weekdayDate(sm[1], weekdays[sm[2]], now))
		m.text = sm[0]
		return m, true
	}
	if sm := standaloneDayRe.FindStringSubmatch(text); sm != nil {
		m := specificDate(weekdayDate("last", weekdays[sm[1]], now))
		m.text = sm[0]
		return m, true
	}
	return dateMatch{}, false
}

// unitDays converts an amount of day/week/month/year units into days
func unitDays(amount int, unit string) int {
	switch strings.TrimSuffix(unit, "s") {
	case "week":
		amount *= 7
	case "month":
		amount *= 30
	case "year":
		amount *= 365
	}
	return min(amount, maxRelativeDays)
}

func matchRelative(text string, now time.Time) (dateMatch, bool) {
	if sm := agoRe.FindStringSubmatch(text); sm != nil {
		if n, err := strconv.Atoi(sm[1]); err == nil {
			m := specificDate(startOfDay(now).AddDate(0, 0, -unitDays(min(n, maxRelativeDays), sm[2])))
			m.text = sm[0]
			return m, true
		}
	}
	if sm := withinRe.FindStringSubmatch(text); sm != nil {
		if n, err := strconv.Atoi(sm[2]); err == nil {
			days := unitDays(min(n, maxRelativeDays), sm[3])
			return dateMatch{
				filter: fmt.Sprintf("range:%d_%s", n, strings.TrimSuffix(sm[3], "s")),
				rng:    &DateRange{Start: startOfDay(now).AddDate(0, 0, -days), End: endOfDay(now)},
				text:   sm[0],
			}, true
		}
	}
	return dateMatch{}, false
}

func monthMatch(name string, year int, now time.Time, text string) dateMatch {
	return dateMatch{
		filter: fmt.Sprintf("month:%s_%d", name, year),
		rng:    monthRange(year, months[name], now.Location()),
		text:   text,
	}
}

func matchModifiedMonth(text string, now time.Time) (dateMatch, bool) {
	if sm := modifiedMonthRe.FindStringSubmatch(text); sm != nil {
		year := now.Year()
		if sm[1] != "this" && months[sm[2]] >= now.Month() {
			year--
		}
		return monthMatch(sm[2], year, now, sm[0]), true
	}
	if sm := monthYearRe.FindStringSubmatch(text); sm != nil {
		year, _ := strconv.Atoi(sm[2])
		return monthMatch(sm[1], year, now, sm[0]), true
	}
	return dateMatch{}, false
}

var standaloneMonthRes = func() map[string][3]*regexp.Regexp {
	out := make(map[string][3]*regexp.Regexp, len(monthOrder))
	for _, name := range monthOrder {
		out[name] = [3]*regexp.Regexp{
			regexp.MustCompile(`\b` + name + `\b`),
			regexp.MustCompile(`\b\d{1,2}(?:st|nd|rd|th)?(?:\s+of)?\s+` + name + `\b`),
			regexp.MustCompile(`\b` + name + `\s+\d{1,2}(?:st|nd|rd|th)?\b`),
		}
	}
	return out
}()

// matchStandaloneMonth covers a bare month name; a month later than the current one means last year
func matchStandaloneMonth(text string, now time.Time) (dateMatch, bool) {
	for _, name := range monthOrder {
		res := standaloneMonthRes[name]
		if !res[0].MatchString(text) || res[1].MatchString(text) || res[2].MatchString(text) {
			continue
		}
		year := now.Year()
		if months[name] > now.Month() {
			year--
		}
		return monthMatch(name, year, now, name), true
	}
	return dateMatch{}, false
}

// matchYear accepts a bare year close to now, unless it belongs to an explicit date
func matchYear(text string, now time.Time) (dateMatch, bool) {
	loc := yearRe.FindStringSubmatchIndex(text)
	if loc == nil {
		return dateMatch{}, false
	}
	for _, re := range []*regexp.Regexp{dayMonthRe, monthDayRe, isoDateRe, numericDateRe} {
		if span := re.FindStringIndex(text); span != nil && span[0] <= loc[0] && loc[1] <= span[1] {
			return dateMatch{}, false
		}
	}
	year, _ := strconv.Atoi(text[loc[2]:loc[3]])
	if year < now.Year()-10 || year > now.Year()+1 {
		return dateMatch{}, false
	}
	return dateMatch{filter: fmt.Sprintf("year:%d", year), rng: yearRange(year, now.Location()), text: text[loc[0]:loc[1]]}, true
}

// buildDate validates a calendar date; with no year the most recent past occurrence is used
func buildDate(year int, month time.Month, dayOfMonth int, hasYear bool, now time.Time) (time.Time, bool) {
	if month < time.January || month > time.December || dayOfMonth < 1 || dayOfMonth > 31 {
		return time.Time{}, false
	}
	if !hasYear {
		year = now.Year()
	} else if year < 100 {
		year += 2000
	}
	t := time.Date(year, month, dayOfMonth, 0, 0, 0, 0, now.Location())
	if t.Day() != dayOfMonth {
		return time.Time{}, false
	}
	if !hasYear && t.After(now) {
		t = t.AddDate(-1, 0, 0)
	}
	return t, true
}

func matchExplicitDate(text string, now time.Time) (dateMatch, bool) {
	accept := func(t time.Time, ok bool) (dateMatch, bool) {
		if !ok {
			return dateMatch{}, false
		}
		return specificDate(t), true
	}

	if sm := dayMonthRe.FindStringSubmatch(text); sm != nil {
		d, _ := strconv.Atoi(sm[1])
		y, _ := strconv.Atoi(sm[3])
		if m, ok := accept(buildDate(y, months[sm[2]], d, sm[3] != "", now)); ok {
			m.text = sm[0]
			return m, true
		}
	}
	if sm := monthDayRe.FindStringSubmatch(text); sm != nil {
		d, _ := strconv.Atoi(sm[2])
		y, _ := strconv.Atoi(sm[3])
		if m, ok := accept(buildDate(y, months[sm[1]], d, sm[3] != "", now)); ok {
			m.text = sm[0]
			return m, true
		}
	}
	if sm := isoDateRe.FindStringSubmatch(text); sm != nil {
		y, _ := strconv.Atoi(sm[1])
		mo, _ := strconv.Atoi(sm[2])
		d, _ := strconv.Atoi(sm[3])
		if m, ok := accept(buildDate(y, time.Month(mo), d, true, now)); ok {
			m.text = sm[0]
			return m, true
		}
	}
	if sm := numericDateRe.FindStringSubmatch(text); sm != nil {
		a, _ := strconv.Atoi(sm[1])
		b, _ := strconv.Atoi(sm[2])
		y, _ := strconv.Atoi(sm[3])
		// Month first unless the first number cannot be a month
		mo, d := a, b
		if a > 12 {
			mo, d = b, a
		}
		if m, ok := accept(buildDate(y, time.Month(mo), d, true, now)); ok {
			m.text = sm[0]
			return m, true
		}
	}
	return dateMatch{}, false
}

func newNaturalDateParser() *when.Parser {
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	return w
}

// matchNaturalDate is the last resort for phrasings the explicit patterns miss
func (p *Parser) matchNaturalDate(text string, now time.Time) (dateMatch, bool) {
	if p.natural == nil {
		return dateMatch{}, false
	}
	r, err := p.natural.Parse(text, now)
	if err != nil || r == nil || strings.TrimSpace(r.Text) == "" {
		return dateMatch{}, false
	}
	m := specificDate(r.Time.In(now.Location()))
	m.text = strings.TrimSpace(r.Text)
	return m, true
}
