package quote

import (
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"
)

// TargetDate returns today+offsetDays, clamped into [min, max] when the form
// declares those bounds. Zero bounds are ignored.
func TargetDate(now time.Time, offsetDays int, min, max time.Time) time.Time {
	t := truncateDay(now).AddDate(0, 0, offsetDays)
	if !min.IsZero() && t.Before(truncateDay(min)) {
		t = truncateDay(min)
	}
	if !max.IsZero() && t.After(truncateDay(max)) {
		t = truncateDay(max)
	}
	return t
}

var months = map[string]time.Month{
	"JAN": time.January, "FEB": time.February, "MAR": time.March, "APR": time.April,
	"MAY": time.May, "JUN": time.June, "JUL": time.July, "AUG": time.August,
	"SEP": time.September, "OCT": time.October, "NOV": time.November, "DEC": time.December,
	// Portuguese abbreviations that differ from English.
	"FEV": time.February, "ABR": time.April, "MAI": time.May, "AGO": time.August,
	"SET": time.September, "OUT": time.October, "DEZ": time.December,
}

var dayDigits = regexp.MustCompile(`\d{1,2}`)

// ParseMonth maps an English or Portuguese month name or abbreviation.
func ParseMonth(s string) (time.Month, bool) {
	letters := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) {
			return unicode.ToUpper(r)
		}
		return -1
	}, s)
	if len([]rune(letters)) < 3 {
		return 0, false
	}
	m, ok := months[string([]rune(letters)[:3])]
	return m, ok
}

// ParseDayMonth builds a date from a card's day and month texts, e.g. "19" and
// "JAN". The year is the target's, shifted by one when that puts the date more
// than 180 days away from target.
func ParseDayMonth(dayText, monthText string, target time.Time) (time.Time, bool) {
	m := dayDigits.FindString(dayText)
	if m == "" {
		return time.Time{}, false
	}
	day, err := strconv.Atoi(m)
	if err != nil || day < 1 || day > 31 {
		return time.Time{}, false
	}
	month, ok := ParseMonth(monthText)
	if !ok {
		return time.Time{}, false
	}

	year := target.Year()
	t := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	if t.Day() != day {
		return time.Time{}, false
	}
	base := truncateDay(target)
	const halfYear = 180 * 24 * time.Hour
	switch {
	case t.Sub(base) > halfYear:
		t = t.AddDate(-1, 0, 0)
	case base.Sub(t) > halfYear:
		t = t.AddDate(1, 0, 0)
	}
	return t, true
}

var dateLayouts = []string{
	"2006-01-02",
	"02/01/2006",
	"2 Jan 2006",
	"02 Jan 2006",
	"Jan 2, 2006",
	"Mon 02 Jan 2006",
	"Mon, 02 Jan 2006",
	"Mon Jan 02 2006",
}

// ParseDate parses the date formats portals print on result cards.
func ParseDate(s string) (time.Time, bool) {
	s = strings.Join(strings.Fields(s), " ")
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
