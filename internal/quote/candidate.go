package quote

import (
	"sort"
	"time"
)

// Candidate is one entry of a result list.
type Candidate struct {
	// Index is the entry's position in the result list.
	Index int
	// Date is the sailing date; zero when the entry shows none that parses.
	Date time.Time
	// Actionable reports whether the entry exposes an "open details" control.
	Actionable bool
	Label      string
}

// Rank orders the actionable candidates by preference against target:
// first the earliest on or after target, then the closest before it, then
// undated ones in list order. Dates compare by calendar day.
func Rank(cands []Candidate, target time.Time) []Candidate {
	day := truncateDay(target)

	var onOrAfter, before, undated []Candidate
	for _, c := range cands {
		if !c.Actionable {
			continue
		}
		switch {
		case c.Date.IsZero():
			undated = append(undated, c)
		case !truncateDay(c.Date).Before(day):
			onOrAfter = append(onOrAfter, c)
		default:
			before = append(before, c)
		}
	}

	sort.SliceStable(onOrAfter, func(i, j int) bool {
		return truncateDay(onOrAfter[i].Date).Before(truncateDay(onOrAfter[j].Date))
	})
	sort.SliceStable(before, func(i, j int) bool {
		return truncateDay(before[i].Date).After(truncateDay(before[j].Date))
	})

	out := make([]Candidate, 0, len(onOrAfter)+len(before)+len(undated))
	out = append(out, onOrAfter...)
	out = append(out, before...)
	return append(out, undated...)
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
